package ingestion

import (
	"context"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Producer interface abstracts Kafka producer
type Producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Events() chan kafka.Event
	Flush(timeoutMs int) int
	Close()
}

// NameResolver maps a channel id to its display name
type NameResolver interface {
	Resolve(ctx context.Context, id int64) string
}
