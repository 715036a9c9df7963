// Package events defines the notifications emitted by committed ledger
// operations and the port they are published through.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"rotrust/pkg/requestcontext"
)

// Type names an event.
type Type string

const (
	PropertyRegistered     Type = "property.registered"
	PropertyDetailsUpdated Type = "property.details_updated"
	PropertyStatusChanged  Type = "property.status_changed"
	OwnershipTransferred   Type = "property.ownership_transferred"

	TransferCreated   Type = "transfer.created"
	TransferCancelled Type = "transfer.cancelled"
	TransferCompleted Type = "transfer.completed"

	EscrowCreated    Type = "escrow.created"
	PaymentAdded     Type = "escrow.payment_added"
	DocumentAttached Type = "escrow.document_attached"
	ConditionMet     Type = "escrow.condition_met"
	EscrowReady      Type = "escrow.ready_for_completion"
	EscrowCompleted  Type = "escrow.completed"
	EscrowCancelled  Type = "escrow.cancelled"
)

// Aggregate names.
const (
	AggregateProperty = "property"
	AggregateTransfer = "transfer"
	AggregateEscrow   = "escrow"
)

// eventNamespace seeds deterministic event ids derived from a request id.
var eventNamespace = uuid.MustParse("5b0f7f2e-8d8c-4c1e-9a55-0c1f4a3b9d21")

// Event is one committed state change.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	Aggregate   string          `json:"aggregate"`
	AggregateID string          `json:"aggregate_id"`
	PropertyID  string          `json:"property_id"`
	RequestID   string          `json:"request_id,omitempty"`
	Invoker     string          `json:"invoker,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

//go:generate mockgen -source=events.go -destination=mocks/mocks.go -package=mocks Publisher

// Publisher delivers committed events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events []Event) error
}

// Batch collects the events of one transaction. Ids are derived from the
// request id when one is present, so every endorser of a Fabric transaction
// produces byte-identical events.
type Batch struct {
	requestID string
	invoker   string
	now       time.Time
	events    []Event
}

// NewBatch starts an empty batch bound to the invocation in ctx.
func NewBatch(ctx context.Context) *Batch {
	return &Batch{
		requestID: requestcontext.RequestID(ctx),
		invoker:   requestcontext.Invoker(ctx),
		now:       requestcontext.Now(ctx),
	}
}

// Add appends an event. payload is JSON-encoded; encoding failures are
// returned so the enclosing transaction aborts.
func (b *Batch) Add(t Type, aggregate, aggregateID, propertyID string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", t, err)
		}
	}
	b.events = append(b.events, Event{
		ID:          b.nextID(),
		Type:        t,
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		PropertyID:  propertyID,
		RequestID:   b.requestID,
		Invoker:     b.invoker,
		OccurredAt:  b.now,
		Payload:     raw,
	})
	return nil
}

// Events returns the collected events in emission order.
func (b *Batch) Events() []Event {
	if b == nil {
		return nil
	}
	return b.events
}

func (b *Batch) nextID() string {
	if b.requestID == "" {
		return uuid.NewString()
	}
	seed := b.requestID + "#" + strconv.Itoa(len(b.events))
	return uuid.NewSHA1(eventNamespace, []byte(seed)).String()
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []Event) error { return nil }

// MemoryPublisher keeps published events, for tests and local inspection.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, events []Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the published event types in order.
func (p *MemoryPublisher) Types() []Type {
	evs := p.Events()
	out := make([]Type, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// Reset discards everything published so far.
func (p *MemoryPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, events []Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
