// Package e2e runs the Gherkin scenarios in features/ against a rotrust node.
package e2e

import (
	"github.com/cucumber/godog"

	"rotrust/e2e/steps/escrow"
	"rotrust/pkg/client"
)

// TestContext carries one scenario's client and last outcome.
type TestContext struct {
	client  *client.Client
	lastErr error
}

func NewTestContext(c *client.Client) *TestContext {
	return &TestContext{client: c}
}

func (tc *TestContext) Client() *client.Client { return tc.client }

func (tc *TestContext) Record(err error) { tc.lastErr = err }

func (tc *TestContext) LastError() error { return tc.lastErr }

// RegisterSteps registers all step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	escrow.RegisterSteps(ctx, tc)
}
