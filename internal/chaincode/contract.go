// Package chaincode exposes the ledger operations as a Hyperledger Fabric
// contract. Each invocation builds its services over the invocation's stub;
// nothing survives between invocations.
//
// Arguments are strings, with JSON for structured values. Results are JSON
// strings. Failures are returned as a JSON error document carrying the error
// code, so off-ledger callers can tell a version conflict from a business
// rejection.
package chaincode

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"

	escrowmodels "rotrust/internal/escrow/models"
	escrowservice "rotrust/internal/escrow/service"
	"rotrust/internal/events"
	"rotrust/internal/ledger/fabric"
	"rotrust/internal/platform/invoke"
	propertyservice "rotrust/internal/property/service"
	"rotrust/internal/query"
	transferservice "rotrust/internal/transfer/service"
	dErrors "rotrust/pkg/domain-errors"
	"rotrust/pkg/requestcontext"
)

// EventName is the chaincode event carrying a transaction's ledger events.
const EventName = "rotrust.ledger-events"

// Contract is the Fabric contract.
type Contract struct {
	contractapi.Contract
	policy escrowmodels.ReadinessPolicy
	logger *slog.Logger
}

// Option configures the contract.
type Option func(*Contract)

func WithReadinessPolicy(p escrowmodels.ReadinessPolicy) Option {
	return func(c *Contract) {
		c.policy = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Contract) {
		c.logger = logger
	}
}

// New creates the contract.
func New(opts ...Option) *Contract {
	c := &Contract{policy: escrowmodels.ReadinessOnCondition, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.Info.Title = "rotrust"
	c.Info.Version = "1.0.0"
	return c
}

// NewChaincode wraps the contract for the Fabric shim.
func NewChaincode(opts ...Option) (*contractapi.ContractChaincode, error) {
	return contractapi.NewChaincode(New(opts...))
}

type invocation struct {
	ctx        context.Context
	properties *propertyservice.Service
	transfers  *transferservice.Service
	escrows    *escrowservice.Service
	query      *query.Service
}

// begin binds the services to the invocation's stub. The transaction
// timestamp and id stand in for wall time and request id, so every endorser
// computes identical records and events.
func (c *Contract) begin(tctx contractapi.TransactionContextInterface) (*invocation, error) {
	stub := tctx.GetStub()
	ctx := requestcontext.WithRequestID(context.Background(), stub.GetTxID())
	ts, err := stub.GetTxTimestamp()
	if err != nil {
		return nil, reject(dErrors.Wrap(err, dErrors.CodeInternal, "read transaction timestamp"))
	}
	ctx = requestcontext.WithTime(ctx, ts.AsTime())
	if ci := tctx.GetClientIdentity(); ci != nil {
		if msp, err := ci.GetMSPID(); err == nil {
			ctx = requestcontext.WithInvoker(ctx, msp)
		}
	}

	store := fabric.New(stub)
	runner, err := invoke.New(store,
		invoke.WithLogger(c.logger),
		invoke.WithPublisher(stubPublisher{stub: stub}),
	)
	if err != nil {
		return nil, reject(err)
	}
	return &invocation{
		ctx:        ctx,
		properties: propertyservice.New(runner),
		transfers:  transferservice.New(runner),
		escrows:    escrowservice.New(runner, escrowservice.WithReadinessPolicy(c.policy)),
		query:      query.New(store),
	}, nil
}

// stubPublisher emits the batch as the transaction's single chaincode event.
// The peer delivers it only if the transaction commits.
type stubPublisher struct {
	stub interface {
		SetEvent(name string, payload []byte) error
	}
}

func (p stubPublisher) Publish(_ context.Context, evs []events.Event) error {
	payload, err := json.Marshal(evs)
	if err != nil {
		return err
	}
	return p.stub.SetEvent(EventName, payload)
}

// errorDocument is the JSON body of a failed invocation.
type errorDocument struct {
	Error       dErrors.Code `json:"error"`
	Description string       `json:"error_description,omitempty"`
	Retryable   bool         `json:"retryable,omitempty"`
}

// reject renders err as a JSON error document.
func reject(err error) error {
	err = invoke.Translate(err)
	doc := errorDocument{Error: dErrors.CodeOf(err), Retryable: dErrors.Retryable(err)}
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		doc.Description = de.Message
	}
	raw, _ := json.Marshal(doc)
	return errors.New(string(raw))
}

// respond renders v as the JSON result, or err as an error document.
func respond(v any, err error) (string, error) {
	if err != nil {
		return "", reject(err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", reject(err)
	}
	return string(raw), nil
}

// versioned pairs a record with the ledger version it was read at.
type versioned struct {
	Value   any    `json:"value"`
	Version uint64 `json:"version"`
}

func decodeArg(field, raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return dErrors.Newf(dErrors.CodeValidation, "%s is not valid JSON", field)
	}
	return nil
}
