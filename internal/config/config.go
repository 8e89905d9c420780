package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/Log-Tools/telegram-ingest/internal/events"
	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingCredentials is returned when the Telegram api id/hash pair is absent.
	ErrMissingCredentials = errors.New("telegram credentials are required (api_id and api_hash)")

	// ErrMalformedCredentials is returned when the credential pair is present but unusable.
	ErrMalformedCredentials = errors.New("telegram credentials are malformed")
)

const defaultProducerRetries = 3

var apiHashPattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// Config represents the ingestion service configuration
type Config struct {
	// Telegram session configuration
	Telegram TelegramConfig `yaml:"telegram"`

	// Ordered list of channel references (ids, usernames, links or invite links)
	Channels []string `yaml:"channels" env:"TELEGRAM_CHANNELS"`

	// Kafka configuration
	Kafka KafkaConfig `yaml:"kafka"`

	// Metrics endpoint configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configuration
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" default:"text"`
}

// TelegramConfig contains the MTProto application credentials and session settings
type TelegramConfig struct {
	APIID       int    `yaml:"api_id" env:"TELEGRAM_API_ID"`
	APIHash     string `yaml:"api_hash" env:"TELEGRAM_API_HASH"`
	Phone       string `yaml:"phone" env:"TELEGRAM_PHONE"`
	Password    string `yaml:"password" env:"TELEGRAM_PASSWORD"`
	SessionFile string `yaml:"session_file" env:"TELEGRAM_SESSION_FILE" default:"tmp/telegram_session.json"`
}

// KafkaConfig contains Kafka connection settings
type KafkaConfig struct {
	Brokers string `yaml:"brokers" env:"KAFKA_BOOTSTRAP_SERVERS" default:"kafka:9092"`

	// Topic for normalized messages
	Topic string `yaml:"topic" env:"KAFKA_TOPIC" default:"telegram_messages"`

	// Topic layout used by the topics command
	Partitions        int `yaml:"partitions" env:"KAFKA_TOPIC_PARTITIONS" default:"3"`
	ReplicationFactor int `yaml:"replication_factor" env:"KAFKA_TOPIC_REPLICATION" default:"1"`

	// Producer configuration
	Producer ProducerConfig `yaml:"producer"`

	// Consumer configuration (tail command)
	Consumer ConsumerConfig `yaml:"consumer"`
}

// ProducerConfig contains Kafka producer settings
type ProducerConfig struct {
	Acks                string `yaml:"acks" env:"KAFKA_PRODUCER_ACKS" default:"all"`
	Retries             int    `yaml:"retries" env:"KAFKA_PRODUCER_RETRIES" default:"3"`
	FlushTimeoutMs      int    `yaml:"flush_timeout_ms" env:"KAFKA_PRODUCER_FLUSH_TIMEOUT_MS" default:"30000"`
	DeliveryChannelSize int    `yaml:"delivery_channel_size" env:"KAFKA_PRODUCER_DELIVERY_CHANNEL_SIZE" default:"10000"`
}

// ConsumerConfig contains Kafka consumer settings
type ConsumerConfig struct {
	Group           string `yaml:"group" env:"KAFKA_CONSUMER_GROUP" default:"telegram-tail"`
	AutoOffsetReset string `yaml:"auto_offset_reset" env:"KAFKA_CONSUMER_AUTO_OFFSET_RESET" default:"latest"`
}

// MetricsConfig contains the Prometheus listener address; empty disables it
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Credentials is the application credential pair used to open a session.
type Credentials struct {
	APIID   int
	APIHash string
}

// Validate checks that the pair is present and well-formed. It never
// touches the network.
func (c Credentials) Validate() error {
	if c.APIID == 0 || strings.TrimSpace(c.APIHash) == "" {
		return ErrMissingCredentials
	}
	if c.APIID < 0 {
		return fmt.Errorf("%w: api_id must be positive", ErrMalformedCredentials)
	}
	if !apiHashPattern.MatchString(c.APIHash) {
		return fmt.Errorf("%w: api_hash must be 32 hex characters", ErrMalformedCredentials)
	}
	return nil
}

// Credentials returns the configured credential pair.
func (c *Config) Credentials() Credentials {
	return Credentials{APIID: c.Telegram.APIID, APIHash: c.Telegram.APIHash}
}

// ChannelRefs parses the configured channel list, preserving order.
func (c *Config) ChannelRefs() ([]platform.ChannelRef, error) {
	return platform.ParseChannelRefs(c.Channels)
}

// Validate validates the configuration needed to run ingestion
func (c *Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return err
	}
	if c.Telegram.SessionFile == "" {
		return fmt.Errorf("telegram session_file is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if _, err := c.ChannelRefs(); err != nil {
		return err
	}
	if c.Metrics.Addr != "" && !strings.Contains(c.Metrics.Addr, ":") {
		return fmt.Errorf("metrics addr %q must be host:port", c.Metrics.Addr)
	}
	return c.ValidateKafka()
}

// ValidateKafka validates only the Kafka settings, for commands that never
// open a Telegram session.
func (c *Config) ValidateKafka() error {
	if c.Kafka.Brokers == "" {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required")
	}
	if c.Kafka.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive")
	}
	if c.Kafka.ReplicationFactor <= 0 {
		return fmt.Errorf("replication_factor must be positive")
	}
	// Records are only considered delivered once every in-sync replica has them
	switch c.Kafka.Producer.Acks {
	case "all", "-1":
	default:
		return fmt.Errorf("invalid producer acks %q, must be all (or -1)", c.Kafka.Producer.Acks)
	}
	if c.Kafka.Producer.Retries < 1 {
		return fmt.Errorf("producer retries must be at least 1, got %d", c.Kafka.Producer.Retries)
	}
	if c.Kafka.Producer.FlushTimeoutMs <= 0 {
		return fmt.Errorf("flush_timeout_ms must be positive")
	}
	switch c.Kafka.Consumer.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("invalid auto_offset_reset %q, must be 'earliest' or 'latest'", c.Kafka.Consumer.AutoOffsetReset)
	}
	return nil
}

// LoadConfigFromFile loads configuration from a YAML file. Credentials set in
// the environment override the file so secrets can stay out of it.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Zero is a meaningful retries value, so seed the default before parsing
	// instead of filling it in afterwards.
	cfg := Config{Kafka: KafkaConfig{Producer: ProducerConfig{Retries: defaultProducerRetries}}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := applyCredentialEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	return &cfg, nil
}

// LoadConfigFromEnv loads configuration from environment variables with defaults
func LoadConfigFromEnv() (*Config, error) {
	cfg := Config{
		Channels:  parseStringSliceEnv("TELEGRAM_CHANNELS"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Telegram: TelegramConfig{
			SessionFile: getEnv("TELEGRAM_SESSION_FILE", "tmp/telegram_session.json"),
		},
		Kafka: KafkaConfig{
			Brokers:           getEnv("KAFKA_BOOTSTRAP_SERVERS", "kafka:9092"),
			Topic:             getEnv("KAFKA_TOPIC", events.TopicMessages),
			Partitions:        parseIntEnv("KAFKA_TOPIC_PARTITIONS", 3),
			ReplicationFactor: parseIntEnv("KAFKA_TOPIC_REPLICATION", 1),
			Producer: ProducerConfig{
				Acks:                getEnv("KAFKA_PRODUCER_ACKS", "all"),
				Retries:             parseIntEnv("KAFKA_PRODUCER_RETRIES", defaultProducerRetries),
				FlushTimeoutMs:      parseIntEnv("KAFKA_PRODUCER_FLUSH_TIMEOUT_MS", 30000),
				DeliveryChannelSize: parseIntEnv("KAFKA_PRODUCER_DELIVERY_CHANNEL_SIZE", 10000),
			},
			Consumer: ConsumerConfig{
				Group:           getEnv("KAFKA_CONSUMER_GROUP", "telegram-tail"),
				AutoOffsetReset: getEnv("KAFKA_CONSUMER_AUTO_OFFSET_RESET", "latest"),
			},
		},
		Metrics: MetricsConfig{
			Addr: os.Getenv("METRICS_ADDR"),
		},
	}

	if err := applyCredentialEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyCredentialEnv overlays TELEGRAM_* credentials from the environment.
func applyCredentialEnv(cfg *Config) error {
	if value := os.Getenv("TELEGRAM_API_ID"); value != "" {
		id, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: TELEGRAM_API_ID must be an integer", ErrMalformedCredentials)
		}
		cfg.Telegram.APIID = id
	}
	if value := os.Getenv("TELEGRAM_API_HASH"); value != "" {
		cfg.Telegram.APIHash = strings.TrimSpace(value)
	}
	if value := os.Getenv("TELEGRAM_PHONE"); value != "" {
		cfg.Telegram.Phone = value
	}
	if value := os.Getenv("TELEGRAM_PASSWORD"); value != "" {
		cfg.Telegram.Password = value
	}
	if value := os.Getenv("TELEGRAM_SESSION_FILE"); value != "" {
		cfg.Telegram.SessionFile = value
	}
	return nil
}

// Helper functions for parsing environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseStringSliceEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	// Split by comma and trim spaces
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return defaultValue
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.Telegram.SessionFile == "" {
		cfg.Telegram.SessionFile = "tmp/telegram_session.json"
	}
	if cfg.Kafka.Brokers == "" {
		cfg.Kafka.Brokers = "kafka:9092"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = events.TopicMessages
	}
	if cfg.Kafka.Partitions == 0 {
		cfg.Kafka.Partitions = 3
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = 1
	}
	if cfg.Kafka.Producer.Acks == "" {
		cfg.Kafka.Producer.Acks = "all"
	}
	if cfg.Kafka.Producer.FlushTimeoutMs == 0 {
		cfg.Kafka.Producer.FlushTimeoutMs = 30000
	}
	if cfg.Kafka.Producer.DeliveryChannelSize == 0 {
		cfg.Kafka.Producer.DeliveryChannelSize = 10000
	}
	if cfg.Kafka.Consumer.Group == "" {
		cfg.Kafka.Consumer.Group = "telegram-tail"
	}
	if cfg.Kafka.Consumer.AutoOffsetReset == "" {
		cfg.Kafka.Consumer.AutoOffsetReset = "latest"
	}
}
