package ingestion

import (
	"fmt"
	"log/slog"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// KafkaProducerWrapper wraps the confluent-kafka-go producer to implement our Producer interface
type KafkaProducerWrapper struct {
	*kafka.Producer
}

func (w *KafkaProducerWrapper) Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error {
	return w.Producer.Produce(msg, deliveryChan)
}

func (w *KafkaProducerWrapper) Events() chan kafka.Event {
	return w.Producer.Events()
}

func (w *KafkaProducerWrapper) Flush(timeoutMs int) int {
	return w.Producer.Flush(timeoutMs)
}

func (w *KafkaProducerWrapper) Close() {
	w.Producer.Close()
}

// ProducerConfigMap builds the librdkafka settings for the message producer.
// Every record needs acknowledgement from all in-sync replicas and gets a
// small bounded number of retries.
func ProducerConfigMap(cfg config.KafkaConfig) *kafka.ConfigMap {
	return &kafka.ConfigMap{
		"bootstrap.servers":      cfg.Brokers,
		"client.id":              "telegram-ingest",
		"acks":                   cfg.Producer.Acks,
		"retries":                cfg.Producer.Retries,
		"retry.backoff.ms":       100,
		"linger.ms":              5,
		"go.delivery.reports":    true,
		"go.events.channel.size": cfg.Producer.DeliveryChannelSize,
	}
}

// NewKafkaProducer creates the production Kafka producer
func NewKafkaProducer(cfg config.KafkaConfig) (*KafkaProducerWrapper, error) {
	producer, err := kafka.NewProducer(ProducerConfigMap(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &KafkaProducerWrapper{producer}, nil
}

// CheckConnection fetches cluster metadata to verify the brokers are reachable.
func CheckConnection(brokers string, timeoutMs int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("🔍 testing Kafka connection", slog.String("brokers", brokers))

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
		"acks":              "all",
	})
	if err != nil {
		return fmt.Errorf("failed to create test producer: %w", err)
	}
	defer producer.Close()

	metadata, err := producer.GetMetadata(nil, false, timeoutMs)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	logger.Info(fmt.Sprintf("✅ connected to Kafka cluster with %d brokers", len(metadata.Brokers)))
	for _, broker := range metadata.Brokers {
		logger.Info(fmt.Sprintf("  - broker %d: %s:%d", broker.ID, broker.Host, broker.Port))
	}
	for name, topic := range metadata.Topics {
		if topic.Error.Code() != kafka.ErrNoError {
			continue
		}
		logger.Debug("topic", slog.String("name", name), slog.Int("partitions", len(topic.Partitions)))
	}

	return nil
}
