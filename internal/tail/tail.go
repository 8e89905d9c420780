// Package tail follows the message topic and prints decoded ingest records.
package tail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/ingestion"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// Consumer is the subset of the Kafka consumer used by the tailer
type Consumer interface {
	SubscribeTopics(topics []string, rebalanceCb kafka.RebalanceCb) error
	ReadMessage(timeout time.Duration) (*kafka.Message, error)
	Close() error
}

// FilterOptions selects which records are printed
type FilterOptions struct {
	ChannelID    int64
	Sender       string
	ShowRaw      bool
	OutputFormat string // json, text
}

// Tailer consumes ingest records and writes them to an output stream
type Tailer struct {
	consumer Consumer
	topics   []string
	opts     FilterOptions
	out      io.Writer
	logger   *slog.Logger
}

// NewKafkaConsumer creates a consumer for the configured group
func NewKafkaConsumer(cfg config.KafkaConfig) (*kafka.Consumer, error) {
	configMap := kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.Consumer.Group,
		"auto.offset.reset":  cfg.Consumer.AutoOffsetReset,
		"enable.auto.commit": true,
	}

	consumer, err := kafka.NewConsumer(&configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}

// NewTailer creates a tailer over consumer
func NewTailer(consumer Consumer, topics []string, opts FilterOptions, out io.Writer, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = "text"
	}
	return &Tailer{
		consumer: consumer,
		topics:   topics,
		opts:     opts,
		out:      out,
		logger:   logger.With(slog.String("component", "tail")),
	}
}

// Start consumes until ctx is cancelled
func (t *Tailer) Start(ctx context.Context) error {
	if err := t.consumer.SubscribeTopics(t.topics, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topics: %w", err)
	}
	t.logger.Info(fmt.Sprintf("🚀 tailing topics: %s", strings.Join(t.topics, ", ")))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("🛑 shutting down tail")
			return nil
		default:
		}

		msg, err := t.consumer.ReadMessage(time.Second)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			t.logger.Error("❌ consumer error", slog.Any("err", err))
			continue
		}

		if err := t.handle(msg); err != nil {
			t.logger.Warn("⚠️ skipping undecodable record", slog.Int64("offset", int64(msg.TopicPartition.Offset)), slog.Any("err", err))
		}
	}
}

// Close closes the underlying consumer
func (t *Tailer) Close() error {
	return t.consumer.Close()
}

func (t *Tailer) handle(msg *kafka.Message) error {
	record, err := events.UnmarshalRecord(msg.Value)
	if err != nil {
		return err
	}
	if !t.matches(record) {
		return nil
	}
	return t.display(msg, record)
}

// matches applies the channel and sender filters
func (t *Tailer) matches(record events.IngestRecord) bool {
	if t.opts.ChannelID != 0 {
		want := t.opts.ChannelID
		if want < 0 {
			want = -want
		}
		if record.ChannelID != want {
			return false
		}
	}

	if t.opts.Sender != "" {
		sender := strings.TrimPrefix(t.opts.Sender, "@")
		if !strings.EqualFold(record.SenderUsername, sender) {
			if record.SenderID == nil || fmt.Sprint(*record.SenderID) != sender {
				return false
			}
		}
	}
	return true
}

func (t *Tailer) display(msg *kafka.Message, record events.IngestRecord) error {
	if t.opts.OutputFormat == "json" {
		var payload interface{} = record
		if t.opts.ShowRaw {
			payload = rawMessage(msg, record)
		}
		jsonBytes, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(t.out, string(jsonBytes))
		return err
	}

	if t.opts.ShowRaw {
		_, err := fmt.Fprintf(t.out, "🕐 %s | 📝 %s[%d]@%d | 🔑 %s\n%s\n---\n",
			msg.Timestamp.Format("15:04:05.000"),
			topicName(msg),
			msg.TopicPartition.Partition,
			int64(msg.TopicPartition.Offset),
			keyLabel(msg.Key),
			string(msg.Value))
		return err
	}

	_, err := fmt.Fprintf(t.out, "🕐 %s | 📺 %s (%d) | 👤 %s | %s\n",
		record.EventTime,
		record.ChannelName,
		record.ChannelID,
		record.SenderUsername,
		ingestion.Preview(record.Text))
	return err
}

type rawRecord struct {
	Topic     string              `json:"topic"`
	Partition int32               `json:"partition"`
	Offset    int64               `json:"offset"`
	Key       string              `json:"key,omitempty"`
	SenderKey *int64              `json:"sender_key"`
	KeyError  string              `json:"key_error,omitempty"`
	Headers   map[string]string   `json:"headers,omitempty"`
	Record    events.IngestRecord `json:"record"`
}

func rawMessage(msg *kafka.Message, record events.IngestRecord) rawRecord {
	raw := rawRecord{
		Topic:     topicName(msg),
		Partition: msg.TopicPartition.Partition,
		Offset:    int64(msg.TopicPartition.Offset),
		Key:       string(msg.Key),
		Record:    record,
	}
	if id, err := events.ParsePartitionKey(msg.Key); err != nil {
		raw.KeyError = err.Error()
	} else {
		raw.SenderKey = id
	}
	if len(msg.Headers) > 0 {
		raw.Headers = make(map[string]string, len(msg.Headers))
		for _, header := range msg.Headers {
			raw.Headers[header.Key] = string(header.Value)
		}
	}
	return raw
}

// keyLabel renders a partition key as the sender id it encodes.
func keyLabel(key []byte) string {
	id, err := events.ParsePartitionKey(key)
	switch {
	case err != nil:
		return fmt.Sprintf("%q (not a sender id)", key)
	case id == nil:
		return "none"
	default:
		return strconv.FormatInt(*id, 10)
	}
}

func topicName(msg *kafka.Message) string {
	if msg.TopicPartition.Topic == nil {
		return ""
	}
	return *msg.TopicPartition.Topic
}
