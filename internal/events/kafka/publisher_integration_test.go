//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"rotrust/internal/events"
	"rotrust/internal/platform/config"
	platformkafka "rotrust/internal/platform/kafka"
	"rotrust/pkg/testutil/containers"
)

type PublisherIntegrationSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	client   *kgo.Client
}

func TestPublisherIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PublisherIntegrationSuite))
}

func (s *PublisherIntegrationSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	client, err := platformkafka.NewClient(config.Kafka{Brokers: s.redpanda.Brokers, Topic: "rotrust.test-events"})
	s.Require().NoError(err)
	s.client = client
}

func (s *PublisherIntegrationSuite) TearDownSuite() {
	s.client.Close()
}

func (s *PublisherIntegrationSuite) TestEnsureTopicIsIdempotent() {
	ctx := context.Background()
	s.Require().NoError(platformkafka.EnsureTopic(ctx, s.client, "rotrust.idempotent", 1, 1))
	s.Require().NoError(platformkafka.EnsureTopic(ctx, s.client, "rotrust.idempotent", 1, 1))
}

func (s *PublisherIntegrationSuite) TestPublishedEventsCanBeConsumed() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "rotrust.test-events"
	s.Require().NoError(platformkafka.EnsureTopic(ctx, s.client, topic, 1, 1))

	pub := New(s.client, topic)
	s.Require().NoError(pub.Publish(ctx, []events.Event{
		{ID: "ev-1", Type: events.EscrowCompleted, Aggregate: events.AggregateEscrow, AggregateID: "E1", PropertyID: "P1", OccurredAt: time.Now().UTC()},
	}))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	var got events.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(events.EscrowCompleted, got.Type)
	s.Equal("P1", string(records[0].Key))
}
