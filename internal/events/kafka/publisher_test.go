package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"rotrust/internal/events"
	"rotrust/pkg/platform/circuit"
)

type fakeProducer struct {
	err     error
	records []*kgo.Record
	calls   int
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.calls++
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

type PublisherSuite struct {
	suite.Suite
	producer *fakeProducer
	now      time.Time
	breaker  *circuit.Breaker
	pub      *Publisher
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.producer = &fakeProducer{}
	s.now = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	s.breaker = circuit.New("test",
		circuit.WithFailureThreshold(2),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.pub = New(s.producer, "ledger-events", WithBreaker(s.breaker))
}

func (s *PublisherSuite) batch() []events.Event {
	return []events.Event{
		{ID: "ev-1", Type: events.PaymentAdded, Aggregate: events.AggregateEscrow, AggregateID: "E1", PropertyID: "P1", RequestID: "req-1", OccurredAt: s.now},
		{ID: "ev-2", Type: events.EscrowReady, Aggregate: events.AggregateEscrow, AggregateID: "E1", PropertyID: "P1", RequestID: "req-1", OccurredAt: s.now},
	}
}

func (s *PublisherSuite) TestRecordsAreKeyedByProperty() {
	s.Require().NoError(s.pub.Publish(context.Background(), s.batch()))
	s.Require().Len(s.producer.records, 2)

	rec := s.producer.records[0]
	s.Equal("ledger-events", rec.Topic)
	s.Equal([]byte("P1"), rec.Key)
	s.Equal(s.now, rec.Timestamp)
	s.Contains(rec.Headers, kgo.RecordHeader{Key: "event-type", Value: []byte(events.PaymentAdded)})

	var decoded events.Event
	s.Require().NoError(json.Unmarshal(rec.Value, &decoded))
	s.Equal("ev-1", decoded.ID)
}

func (s *PublisherSuite) TestEmptyBatchIsNoop() {
	s.Require().NoError(s.pub.Publish(context.Background(), nil))
	s.Zero(s.producer.calls)
}

func (s *PublisherSuite) TestBreakerOpensAndRecovers() {
	s.producer.err = errors.New("broker unreachable")
	ctx := context.Background()

	s.Error(s.pub.Publish(ctx, s.batch()))
	s.Error(s.pub.Publish(ctx, s.batch()))
	s.True(s.breaker.IsOpen())

	s.Run("open circuit fails fast", func() {
		err := s.pub.Publish(ctx, s.batch())
		s.ErrorIs(err, ErrCircuitOpen)
		s.Equal(2, s.producer.calls)
	})

	s.Run("probe after cooldown closes the circuit", func() {
		s.producer.err = nil
		s.now = s.now.Add(2 * time.Minute)
		s.Require().NoError(s.pub.Publish(ctx, s.batch()))
		s.False(s.breaker.IsOpen())
	})
}
