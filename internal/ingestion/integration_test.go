//go:build integration

package ingestion_test

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	kafkaTC "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/ingestion"
	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/Log-Tools/telegram-ingest/internal/tail"
	"github.com/Log-Tools/telegram-ingest/internal/topics"
)

type staticNames map[int64]string

func (s staticNames) Resolve(_ context.Context, id int64) string {
	if name, ok := s[id]; ok {
		return name
	}
	return platform.UnknownName
}

// PublishIntegrationSuite runs the publish path against a real broker
type PublishIntegrationSuite struct {
	suite.Suite
	kafkaContainer testcontainers.Container
	brokers        string
}

func (s *PublishIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	kafkaContainer, err := kafkaTC.RunContainer(ctx,
		testcontainers.WithImage("confluentinc/cp-kafka:7.4.0"),
		kafkaTC.WithClusterID("test-cluster"),
	)
	require.NoError(s.T(), err)
	s.kafkaContainer = kafkaContainer

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(s.T(), err)
	s.brokers = brokers[0]

	s.T().Logf("✅ Kafka started at: %s", s.brokers)
}

func (s *PublishIntegrationSuite) TearDownSuite() {
	if s.kafkaContainer != nil {
		require.NoError(s.T(), s.kafkaContainer.Terminate(context.Background()))
	}
}

func (s *PublishIntegrationSuite) kafkaConfig(topic string) config.KafkaConfig {
	return config.KafkaConfig{
		Brokers:           s.brokers,
		Topic:             topic,
		Partitions:        1,
		ReplicationFactor: 1,
		Producer: config.ProducerConfig{
			Acks:                "all",
			Retries:             3,
			FlushTimeoutMs:      10000,
			DeliveryChannelSize: 1000,
		},
		Consumer: config.ConsumerConfig{
			Group:           "test-" + uuid.NewString(),
			AutoOffsetReset: "earliest",
		},
	}
}

func (s *PublishIntegrationSuite) createTopic(cfg config.KafkaConfig) {
	admin, err := topics.NewKafkaAdmin(cfg.Brokers)
	require.NoError(s.T(), err)
	defer admin.Close()

	provisioner := topics.NewProvisioner(admin, 30*time.Second, nil)
	summary, err := provisioner.Create(context.Background(), topics.FromConfig(cfg))
	require.NoError(s.T(), err)
	require.Equal(s.T(), []string{cfg.Topic}, summary.Created)

	// A second run only reports the topic as existing
	summary, err = provisioner.Create(context.Background(), topics.FromConfig(cfg))
	require.NoError(s.T(), err)
	require.Equal(s.T(), []string{cfg.Topic}, summary.Existing)
}

func (s *PublishIntegrationSuite) TestNormalizeAndPublish() {
	cfg := s.kafkaConfig(fmt.Sprintf("telegram_messages_%d", time.Now().UnixNano()))
	s.createTopic(cfg)
	require.NoError(s.T(), ingestion.CheckConnection(cfg.Brokers, 5000, nil))

	producer, err := ingestion.NewKafkaProducer(cfg)
	require.NoError(s.T(), err)
	publisher := ingestion.NewPublisher(producer, ingestion.PublisherConfig{
		Topic:          cfg.Topic,
		FlushTimeoutMs: cfg.Producer.FlushTimeoutMs,
		RunID:          "integration-run",
	}, nil)

	ts := time.Date(2025, 12, 6, 21, 30, 45, 123456000, time.UTC)
	normalizer := ingestion.NewNormalizer(staticNames{1050820672: "Топор Live"},
		ingestion.WithClock(func() time.Time { return ts }))

	withSender, err := normalizer.Normalize(context.Background(), platform.Event{
		Chat:      &platform.Chat{ID: -1050820672},
		Sender:    &platform.Sender{ID: 42, Username: "ivan", FirstName: "Иван"},
		MessageID: 1,
		Text:      "привет <мир> & all",
		Timestamp: ts,
	})
	require.NoError(s.T(), err)
	anonymous, err := normalizer.Normalize(context.Background(), platform.Event{
		Chat:      &platform.Chat{ID: 1050820672},
		MessageID: 2,
		Text:      "broadcast",
		Timestamp: ts,
	})
	require.NoError(s.T(), err)

	require.NoError(s.T(), publisher.Publish(withSender))
	require.NoError(s.T(), publisher.Publish(anonymous))
	publisher.Release()

	stats := publisher.Stats()
	assert.Equal(s.T(), int64(2), stats.Enqueued)

	consumer, err := tail.NewKafkaConsumer(cfg)
	require.NoError(s.T(), err)
	defer consumer.Close()
	require.NoError(s.T(), consumer.SubscribeTopics([]string{cfg.Topic}, nil))

	var received []*kafka.Message
	deadline := time.Now().Add(30 * time.Second)
	for len(received) < 2 && time.Now().Before(deadline) {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			continue
		}
		received = append(received, msg)
	}
	require.Len(s.T(), received, 2)

	first, err := events.UnmarshalRecord(received[0].Value)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), withSender, first)
	assert.Equal(s.T(), "42", string(received[0].Key))
	assert.Contains(s.T(), string(received[0].Value), `"text":"привет <мир> & all"`)
	assert.Contains(s.T(), string(received[0].Value), `"event_time":"2025-12-06T21:30:45.123456+00:00"`)

	second, err := events.UnmarshalRecord(received[1].Value)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "anonymous", second.SenderUsername)
	assert.Nil(s.T(), second.SenderID)
	assert.Empty(s.T(), received[1].Key)
	assert.Contains(s.T(), string(received[1].Value), `"sender_id":null`)

	for _, msg := range received {
		var runID string
		for _, h := range msg.Headers {
			if h.Key == events.HeaderRunID {
				runID = string(h.Value)
			}
		}
		assert.Equal(s.T(), "integration-run", runID)
	}
}

func (s *PublishIntegrationSuite) TestTailFiltersBySender() {
	cfg := s.kafkaConfig(fmt.Sprintf("telegram_tail_%d", time.Now().UnixNano()))
	s.createTopic(cfg)

	producer, err := ingestion.NewKafkaProducer(cfg)
	require.NoError(s.T(), err)
	publisher := ingestion.NewPublisher(producer, ingestion.PublisherConfig{Topic: cfg.Topic, FlushTimeoutMs: 10000}, nil)

	normalizer := ingestion.NewNormalizer(staticNames{})
	for i, username := range []string{"ivan", "petr", "ivan"} {
		record, err := normalizer.Normalize(context.Background(), platform.Event{
			Chat:      &platform.Chat{ID: 7},
			Sender:    &platform.Sender{ID: int64(100 + i), Username: username},
			MessageID: i + 1,
			Text:      fmt.Sprintf("message from %s", username),
			Timestamp: time.Now(),
		})
		require.NoError(s.T(), err)
		require.NoError(s.T(), publisher.Publish(record))
	}
	publisher.Release()

	consumer, err := tail.NewKafkaConsumer(cfg)
	require.NoError(s.T(), err)

	var out bytes.Buffer
	tailer := tail.NewTailer(consumer, []string{cfg.Topic}, tail.FilterOptions{Sender: "@ivan"}, &out, nil)
	defer tailer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(s.T(), tailer.Start(ctx))

	assert.Contains(s.T(), out.String(), "message from ivan")
	assert.NotContains(s.T(), out.String(), "message from petr")
}

func TestPublishIntegration(t *testing.T) {
	suite.Run(t, new(PublishIntegrationSuite))
}
