package ingestion

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

var (
	// ErrFlushTimeout is returned when records are still in flight after the flush timeout.
	ErrFlushTimeout = errors.New("flush timed out with records still in flight")

	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")

	// ErrSerialize is returned by Publish when a record cannot be encoded.
	ErrSerialize = errors.New("failed to serialize record")
)

// PublisherConfig contains the settings the publish path needs
type PublisherConfig struct {
	Topic          string
	FlushTimeoutMs int
	RunID          string
}

// PublisherStats is a snapshot of publish counters
type PublisherStats struct {
	SerializeFailed int64
	Enqueued        int64
	EnqueueFailed   int64
	Delivered       int64
	DeliveryFailed  int64
}

// Publisher enqueues IngestRecords on a Kafka producer without waiting for
// acknowledgement. Delivery reports are consumed in the background and only
// update counters and logs.
type Publisher struct {
	producer Producer
	cfg      PublisherConfig
	logger   *slog.Logger
	marshal  func(events.IngestRecord) ([]byte, error)

	// mu guards closed; Close takes it exclusively so no Produce or Flush
	// runs against a released producer.
	mu     sync.RWMutex
	closed bool

	serializeFailed atomic.Int64
	enqueued        atomic.Int64
	enqueueFailed   atomic.Int64
	delivered       atomic.Int64
	deliveryFailed  atomic.Int64
}

// NewPublisher creates a publisher and starts draining the producer's delivery events.
func NewPublisher(producer Producer, cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		producer: producer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "publisher"), slog.String("topic", cfg.Topic)),
		marshal:  events.IngestRecord.Marshal,
	}

	// Start a background goroutine to log delivery reports so we can see real broker errors.
	go p.handleDeliveryEvents(producer.Events())

	return p
}

// Publish serializes record and enqueues it keyed by sender id.
func (p *Publisher) Publish(record events.IngestRecord) error {
	value, err := p.marshal(record)
	if err != nil {
		p.serializeFailed.Add(1)
		telemetry.IncEventsDropped(telemetry.DropSerialize)
		return fmt.Errorf("%w: message %d (channel %d): %v", ErrSerialize, record.MessageID, record.ChannelID, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.cfg.Topic, Partition: kafka.PartitionAny},
		Key:            events.PartitionKey(record.SenderID),
		Value:          value,
	}
	if p.cfg.RunID != "" {
		message.Headers = []kafka.Header{{Key: events.HeaderRunID, Value: []byte(p.cfg.RunID)}}
	}

	// Use nil delivery channel; reports arrive on Events()
	if err := p.producer.Produce(message, nil); err != nil {
		p.enqueueFailed.Add(1)
		telemetry.IncEnqueueFailures()
		return fmt.Errorf("failed to enqueue message %d (channel %d): %w", record.MessageID, record.ChannelID, err)
	}

	p.enqueued.Add(1)
	telemetry.IncEnqueued()
	return nil
}

// Flush blocks until in-flight records are delivered or the flush timeout
// elapses. It is a no-op once closed.
func (p *Publisher) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}

	remaining := p.producer.Flush(p.cfg.FlushTimeoutMs)
	if remaining > 0 {
		return fmt.Errorf("%w: %d records pending after %dms", ErrFlushTimeout, remaining, p.cfg.FlushTimeoutMs)
	}
	return nil
}

// Close releases the producer. It is a no-op once closed.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.producer.Close()

	stats := p.Stats()
	p.logger.Info("publisher closed",
		slog.Int64("serialize_failed", stats.SerializeFailed),
		slog.Int64("enqueued", stats.Enqueued),
		slog.Int64("enqueue_failed", stats.EnqueueFailed),
		slog.Int64("delivered", stats.Delivered),
		slog.Int64("delivery_failed", stats.DeliveryFailed))
}

// Release flushes and then closes the publisher. A flush timeout is logged
// and close still proceeds.
func (p *Publisher) Release() {
	if err := p.Flush(); err != nil {
		p.logger.Warn("⚠️ flush did not complete, closing anyway", slog.Any("err", err))
	}
	p.Close()
}

// Stats returns a snapshot of the publish counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		SerializeFailed: p.serializeFailed.Load(),
		Enqueued:        p.enqueued.Load(),
		EnqueueFailed:   p.enqueueFailed.Load(),
		Delivered:       p.delivered.Load(),
		DeliveryFailed:  p.deliveryFailed.Load(),
	}
}

// handleDeliveryEvents handles Kafka delivery events until the channel is closed
func (p *Publisher) handleDeliveryEvents(deliveryChan chan kafka.Event) {
	for e := range deliveryChan {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				p.deliveryFailed.Add(1)
				telemetry.ObserveDelivery(true)
				topic := ""
				if ev.TopicPartition.Topic != nil {
					topic = *ev.TopicPartition.Topic
				}
				p.logger.Error("❌ delivery failed",
					slog.String("delivery_topic", topic),
					slog.String("key", string(ev.Key)),
					slog.Any("err", ev.TopicPartition.Error))
				continue
			}
			p.delivered.Add(1)
			telemetry.ObserveDelivery(false)
		case kafka.Error:
			p.logger.Error("❌ kafka producer error", slog.Any("err", ev))
		}
	}
}
