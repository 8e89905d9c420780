package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Log-Tools/telegram-ingest/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIHash = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	cfg := &Config{
		Telegram: TelegramConfig{APIID: 12345, APIHash: testAPIHash},
		Channels: []string{"@toporlive", "https://t.me/+ULjQI9CfYMI0OGQy"},
		Kafka:    KafkaConfig{Producer: ProducerConfig{Retries: defaultProducerRetries}},
	}
	applyDefaults(cfg)
	return cfg
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name        string
		creds       Credentials
		expectedErr error
	}{
		{name: "valid", creds: Credentials{APIID: 1, APIHash: testAPIHash}},
		{name: "missing id", creds: Credentials{APIHash: testAPIHash}, expectedErr: ErrMissingCredentials},
		{name: "missing hash", creds: Credentials{APIID: 1}, expectedErr: ErrMissingCredentials},
		{name: "blank hash", creds: Credentials{APIID: 1, APIHash: "   "}, expectedErr: ErrMissingCredentials},
		{name: "negative id", creds: Credentials{APIID: -1, APIHash: testAPIHash}, expectedErr: ErrMalformedCredentials},
		{name: "short hash", creds: Credentials{APIID: 1, APIHash: "abc"}, expectedErr: ErrMalformedCredentials},
		{name: "non-hex hash", creds: Credentials{APIID: 1, APIHash: "zz23456789abcdef0123456789abcdef"}, expectedErr: ErrMalformedCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.expectedErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "no channels", mutate: func(c *Config) { c.Channels = nil }, expectError: true},
		{name: "bad channel ref", mutate: func(c *Config) { c.Channels = []string{"@x"} }, expectError: true},
		{name: "no brokers", mutate: func(c *Config) { c.Kafka.Brokers = "" }, expectError: true},
		{name: "no topic", mutate: func(c *Config) { c.Kafka.Topic = "" }, expectError: true},
		{name: "bad acks", mutate: func(c *Config) { c.Kafka.Producer.Acks = "most" }, expectError: true},
		{name: "acks minus one", mutate: func(c *Config) { c.Kafka.Producer.Acks = "-1" }},
		{name: "acks zero", mutate: func(c *Config) { c.Kafka.Producer.Acks = "0" }, expectError: true},
		{name: "acks leader only", mutate: func(c *Config) { c.Kafka.Producer.Acks = "1" }, expectError: true},
		{name: "negative retries", mutate: func(c *Config) { c.Kafka.Producer.Retries = -1 }, expectError: true},
		{name: "zero retries", mutate: func(c *Config) { c.Kafka.Producer.Retries = 0 }, expectError: true},
		{name: "single retry", mutate: func(c *Config) { c.Kafka.Producer.Retries = 1 }},
		{name: "bad offset reset", mutate: func(c *Config) { c.Kafka.Consumer.AutoOffsetReset = "middle" }, expectError: true},
		{name: "bad metrics addr", mutate: func(c *Config) { c.Metrics.Addr = "9090" }, expectError: true},
		{name: "metrics addr", mutate: func(c *Config) { c.Metrics.Addr = ":9090" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("missing credentials checked first", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram.APIHash = ""
		cfg.Kafka.Brokers = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
	})

	t.Run("kafka-only validation ignores credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Telegram = TelegramConfig{}
		cfg.Channels = nil
		assert.NoError(t, cfg.ValidateKafka())
	})
}

func TestConfig_ChannelRefs(t *testing.T) {
	cfg := validConfig()
	refs, err := cfg.ChannelRefs()
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, platform.RefUsername, refs[0].Kind)
	assert.Equal(t, "toporlive", refs[0].Username)
	assert.Equal(t, platform.RefInvite, refs[1].Kind)
	assert.Equal(t, "ULjQI9CfYMI0OGQy", refs[1].InviteHash)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "")
		t.Setenv("TELEGRAM_API_HASH", "")
		t.Setenv("TELEGRAM_CHANNELS", "")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "kafka:9092", cfg.Kafka.Brokers)
		assert.Equal(t, "telegram_messages", cfg.Kafka.Topic)
		assert.Equal(t, 3, cfg.Kafka.Partitions)
		assert.Equal(t, 1, cfg.Kafka.ReplicationFactor)
		assert.Equal(t, "all", cfg.Kafka.Producer.Acks)
		assert.Equal(t, 3, cfg.Kafka.Producer.Retries)
		assert.Equal(t, 30000, cfg.Kafka.Producer.FlushTimeoutMs)
		assert.Equal(t, "telegram-tail", cfg.Kafka.Consumer.Group)
		assert.Equal(t, "latest", cfg.Kafka.Consumer.AutoOffsetReset)
		assert.Equal(t, "tmp/telegram_session.json", cfg.Telegram.SessionFile)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, "text", cfg.LogFormat)

		assert.ErrorIs(t, cfg.Validate(), ErrMissingCredentials)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "98765")
		t.Setenv("TELEGRAM_API_HASH", testAPIHash)
		t.Setenv("TELEGRAM_CHANNELS", " @cybers , -1001050820672,,https://t.me/mosnews ")
		t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "localhost:29092")
		t.Setenv("KAFKA_TOPIC", "tg")
		t.Setenv("KAFKA_PRODUCER_RETRIES", "5")
		t.Setenv("KAFKA_PRODUCER_FLUSH_TIMEOUT_MS", "not-a-number")
		t.Setenv("METRICS_ADDR", ":9100")

		cfg, err := LoadConfigFromEnv()
		require.NoError(t, err)

		assert.Equal(t, 98765, cfg.Telegram.APIID)
		assert.Equal(t, []string{"@cybers", "-1001050820672", "https://t.me/mosnews"}, cfg.Channels)
		assert.Equal(t, "localhost:29092", cfg.Kafka.Brokers)
		assert.Equal(t, "tg", cfg.Kafka.Topic)
		assert.Equal(t, 5, cfg.Kafka.Producer.Retries)
		assert.Equal(t, 30000, cfg.Kafka.Producer.FlushTimeoutMs, "unparseable values fall back to the default")
		assert.Equal(t, ":9100", cfg.Metrics.Addr)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("weakened delivery settings are rejected", func(t *testing.T) {
		tests := []struct {
			name  string
			key   string
			value string
		}{
			{name: "acks 1", key: "KAFKA_PRODUCER_ACKS", value: "1"},
			{name: "acks 0", key: "KAFKA_PRODUCER_ACKS", value: "0"},
			{name: "zero retries", key: "KAFKA_PRODUCER_RETRIES", value: "0"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Setenv("TELEGRAM_API_ID", "98765")
				t.Setenv("TELEGRAM_API_HASH", testAPIHash)
				t.Setenv("TELEGRAM_CHANNELS", "@cybers")
				t.Setenv(tt.key, tt.value)

				cfg, err := LoadConfigFromEnv()
				require.NoError(t, err)
				assert.Error(t, cfg.Validate())
			})
		}
	})

	t.Run("non-numeric api id", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "abc")

		_, err := LoadConfigFromEnv()
		assert.ErrorIs(t, err, ErrMalformedCredentials)
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingest.yaml")
	content := `
telegram:
  api_id: 111
  api_hash: "` + testAPIHash + `"
channels:
  - "@toporlive"
  - "@ecotopor"
kafka:
  brokers: "broker-1:9092,broker-2:9092"
  producer:
    retries: 7
log_format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("file values with defaults", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "")
		t.Setenv("TELEGRAM_API_HASH", "")

		cfg, err := LoadConfigFromFile(path)
		require.NoError(t, err)

		assert.Equal(t, 111, cfg.Telegram.APIID)
		assert.Equal(t, []string{"@toporlive", "@ecotopor"}, cfg.Channels)
		assert.Equal(t, "broker-1:9092,broker-2:9092", cfg.Kafka.Brokers)
		assert.Equal(t, 7, cfg.Kafka.Producer.Retries)
		assert.Equal(t, "all", cfg.Kafka.Producer.Acks)
		assert.Equal(t, "telegram_messages", cfg.Kafka.Topic)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("environment credentials override file", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "222")
		t.Setenv("TELEGRAM_API_HASH", "")

		cfg, err := LoadConfigFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 222, cfg.Telegram.APIID)
		assert.Equal(t, testAPIHash, cfg.Telegram.APIHash)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfigFromFile(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("weakened delivery settings are rejected", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "")
		t.Setenv("TELEGRAM_API_HASH", "")

		tests := []struct {
			name     string
			producer string
			acks     string
			retries  int
		}{
			{name: "acks 0", producer: "    acks: \"0\"\n", acks: "0", retries: defaultProducerRetries},
			{name: "acks 1", producer: "    acks: \"1\"\n", acks: "1", retries: defaultProducerRetries},
			{name: "explicit zero retries", producer: "    retries: 0\n", acks: "all", retries: 0},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				weak := filepath.Join(dir, "weak.yaml")
				body := "telegram:\n  api_id: 111\n  api_hash: \"" + testAPIHash + "\"\n" +
					"channels:\n  - \"@toporlive\"\n" +
					"kafka:\n  producer:\n" + tt.producer
				require.NoError(t, os.WriteFile(weak, []byte(body), 0o600))

				cfg, err := LoadConfigFromFile(weak)
				require.NoError(t, err)
				assert.Equal(t, tt.acks, cfg.Kafka.Producer.Acks)
				assert.Equal(t, tt.retries, cfg.Kafka.Producer.Retries, "file and environment agree on retries")
				assert.Error(t, cfg.Validate())
			})
		}
	})

	t.Run("retries default when omitted", func(t *testing.T) {
		t.Setenv("TELEGRAM_API_ID", "")
		t.Setenv("TELEGRAM_API_HASH", "")

		minimal := filepath.Join(dir, "minimal.yaml")
		require.NoError(t, os.WriteFile(minimal, []byte("channels:\n  - \"@toporlive\"\n"), 0o600))

		cfg, err := LoadConfigFromFile(minimal)
		require.NoError(t, err)
		assert.Equal(t, defaultProducerRetries, cfg.Kafka.Producer.Retries)
		assert.Equal(t, "all", cfg.Kafka.Producer.Acks)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(bad, []byte("channels: [unterminated"), 0o600))
		_, err := LoadConfigFromFile(bad)
		assert.Error(t, err)
	})
}
