//go:build e2e

package e2e

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cucumber/godog"
	"github.com/prometheus/client_golang/prometheus"

	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/ledger/memory"
	"rotrust/internal/platform/invoke"
	"rotrust/internal/platform/metrics"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transferservice "rotrust/internal/transfer/service"
	httptransport "rotrust/internal/transport/http"
	"rotrust/pkg/client"
	"rotrust/pkg/platform/retry"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			var node *httptest.Server
			tc := NewTestContext(nil)
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				node = startNode()
				*tc = *NewTestContext(client.New(node.URL, client.WithRetryPolicy(retry.Policy{
					InitialInterval: time.Millisecond,
					MaxInterval:     10 * time.Millisecond,
					MaxElapsedTime:  time.Second,
				})))
				return ctx, nil
			})
			sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
				node.Close()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// startNode serves a fresh in-memory ledger.
func startNode() *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	reg := prometheus.NewRegistry()
	runner, err := invoke.New(store, invoke.WithLogger(logger), invoke.WithMetrics(metrics.New(reg)))
	if err != nil {
		panic(err)
	}
	h := httptransport.New(
		propertyservice.New(runner),
		transferservice.New(runner),
		escrowservice.New(runner),
		query.New(store),
		logger,
	)
	return httptest.NewServer(httptransport.NewRouter(h, logger, reg, nil))
}
