package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	serviceName    = "telegram-ingest"
	serviceVersion = "0.1.0"
)

type rootOptions struct {
	configPath string
	brokers    string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   serviceName,
		Short: "Stream Telegram channel messages into Kafka",
		Long: `Joins a configured set of Telegram channels and publishes every new
message to a Kafka topic as a normalized JSON record.

Examples:
  # Run ingestion with a config file
  telegram-ingest run --config configs/ingest.yaml

  # Run ingestion configured from the environment / .env
  telegram-ingest run

  # Create the message topic
  telegram-ingest topics

  # Follow published records for one channel
  telegram-ingest tail --channel 1050820672`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file path (default: environment)")
	root.PersistentFlags().StringVar(&opts.brokers, "brokers", "", "Kafka brokers (overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text, json (overrides config)")

	root.AddCommand(
		newRunCmd(opts),
		newTopicsCmd(opts),
		newTailCmd(opts),
		newCheckKafkaCmd(opts),
	)
	return root
}

// load reads the configuration and installs the default logger
func (o *rootOptions) load() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadConfigFromFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from file: %w", err)
		}
	} else {
		cfg, err = config.LoadConfigFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
	}

	if o.brokers != "" {
		cfg.Kafka.Brokers = o.brokers
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.LogFormat = o.logFormat
	}

	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
	return cfg, nil
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level, format string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "", "info":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown log level, using info", slog.String("value", level))
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	return slog.New(handler)
}
