// Package kafka publishes committed ledger events to a Kafka topic.
//
// Records are keyed by property id so every event about one property lands on
// one partition in commit order. Publishing sits behind a circuit breaker: a
// broker outage fails fast instead of stalling every committed operation.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"rotrust/internal/events"
	"rotrust/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the breaker rejects publishes.
var ErrCircuitOpen = errors.New("kafka publisher circuit open")

// Producer is the part of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Publisher implements events.Publisher over Kafka.
type Publisher struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// Option configures a Publisher.
type Option func(*Publisher)

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New creates a publisher writing to topic.
func New(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("kafka-events"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish produces one record per event and waits for broker acks.
func (p *Publisher) Publish(ctx context.Context, evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}

	records := make([]*kgo.Record, 0, len(evs))
	for _, e := range evs {
		rec, err := p.record(e)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	if err := p.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "circuit breaker opened", "breaker", p.breaker.Name(), "error", err)
		}
		return fmt.Errorf("produce %d events: %w", len(records), err)
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "circuit breaker closed", "breaker", p.breaker.Name())
	}
	return nil
}

func (p *Publisher) record(e events.Event) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(e.PropertyID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(e.Type)},
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "request-id", Value: []byte(e.RequestID)},
		},
		Timestamp: e.OccurredAt,
	}, nil
}
