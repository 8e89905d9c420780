// Package topics provisions the Kafka topics the ingestion pipeline writes to.
package topics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"gopkg.in/yaml.v3"
)

// Spec is the configuration of a single topic as read from YAML
type Spec struct {
	Partitions        int                    `yaml:"partitions"`
	ReplicationFactor int                    `yaml:"replication_factor"`
	CleanupPolicy     string                 `yaml:"cleanup.policy"`
	Other             map[string]interface{} `yaml:",inline"`
}

// File is the layout of a topics YAML file
type File struct {
	Topics map[string]Spec `yaml:"topics"`
}

// Admin is the subset of the Kafka admin client used for provisioning
type Admin interface {
	CreateTopics(ctx context.Context, topics []kafka.TopicSpecification, options ...kafka.CreateTopicsAdminOption) ([]kafka.TopicResult, error)
	Close()
}

// Summary counts the outcome of a provisioning run
type Summary struct {
	Created  []string
	Existing []string
	Failed   map[string]error
}

// LoadFile reads topic definitions from a YAML file
func LoadFile(path string) (File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var tf File
	if err := yaml.Unmarshal(content, &tf); err != nil {
		return File{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	return tf, nil
}

// FromConfig builds the topic definitions for the configured message topic
func FromConfig(cfg config.KafkaConfig) File {
	return File{Topics: map[string]Spec{
		cfg.Topic: {
			Partitions:        cfg.Partitions,
			ReplicationFactor: cfg.ReplicationFactor,
			CleanupPolicy:     "delete",
		},
	}}
}

// Specifications converts the file into admin requests, sorted by topic name
func (f File) Specifications() []kafka.TopicSpecification {
	names := make([]string, 0, len(f.Topics))
	for name := range f.Topics {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]kafka.TopicSpecification, 0, len(names))
	for _, name := range names {
		t := f.Topics[name]

		cfg := map[string]string{}
		if t.CleanupPolicy != "" {
			cfg["cleanup.policy"] = t.CleanupPolicy
		}
		for k, v := range t.Other {
			cfg[k] = fmt.Sprint(v)
		}

		partitions := t.Partitions
		if partitions <= 0 {
			partitions = 1
		}
		replication := t.ReplicationFactor
		if replication <= 0 {
			replication = 1
		}

		specs = append(specs, kafka.TopicSpecification{
			Topic:             name,
			NumPartitions:     partitions,
			ReplicationFactor: replication,
			Config:            cfg,
		})
	}
	return specs
}

// Provisioner creates topics through a Kafka admin client
type Provisioner struct {
	admin   Admin
	timeout time.Duration
	logger  *slog.Logger
}

// NewProvisioner wraps an admin client. The admin client is not closed by the provisioner.
func NewProvisioner(admin Admin, timeout time.Duration, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Provisioner{
		admin:   admin,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "topics")),
	}
}

// NewKafkaAdmin creates an admin client for the configured brokers
func NewKafkaAdmin(brokers string) (*kafka.AdminClient, error) {
	admin, err := kafka.NewAdminClient(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}
	return admin, nil
}

// Create creates every topic in the file. Topics that already exist are
// reported as existing, not failed.
func (p *Provisioner) Create(ctx context.Context, f File) (Summary, error) {
	summary := Summary{Failed: map[string]error{}}

	specs := f.Specifications()
	if len(specs) == 0 {
		p.logger.Warn("⚠️ no topics defined")
		return summary, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results, err := p.admin.CreateTopics(ctx, specs, kafka.SetAdminOperationTimeout(p.timeout))
	if err != nil {
		return summary, fmt.Errorf("CreateTopics request failed: %w", err)
	}

	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError:
			p.logger.Info("✅ created topic", slog.String("topic", res.Topic))
			summary.Created = append(summary.Created, res.Topic)
		case kafka.ErrTopicAlreadyExists:
			p.logger.Info("topic already exists", slog.String("topic", res.Topic))
			summary.Existing = append(summary.Existing, res.Topic)
		default:
			p.logger.Error("❌ failed to create topic", slog.String("topic", res.Topic), slog.Any("err", res.Error))
			summary.Failed[res.Topic] = res.Error
		}
	}

	p.logger.Info(fmt.Sprintf("📊 Summary: %d created, %d existing, %d failed",
		len(summary.Created), len(summary.Existing), len(summary.Failed)))

	if len(summary.Failed) > 0 {
		return summary, fmt.Errorf("failed to create %d topic(s)", len(summary.Failed))
	}
	return summary, nil
}
