package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/Log-Tools/telegram-ingest/internal/ingestion"
	"github.com/Log-Tools/telegram-ingest/internal/membership"
	"github.com/Log-Tools/telegram-ingest/internal/namecache"
	"github.com/Log-Tools/telegram-ingest/internal/service"
	"github.com/Log-Tools/telegram-ingest/internal/telegram"
	"github.com/Log-Tools/telegram-ingest/internal/telemetry"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// statsInterval is how many received events pass between statistics log lines
const statsInterval = 100

func newRunCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join the configured channels and publish new messages to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := shutdownContext(cmd.Context())
			defer stop()

			return runIngest(ctx, cfg)
		},
	}
}

func runIngest(ctx context.Context, cfg *config.Config) error {
	// Credentials and channel refs are checked before anything connects
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	refs, err := cfg.ChannelRefs()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	logger := slog.Default().With(slog.String("run_id", runID))
	logger.Info("🚀 starting ingestion",
		slog.String("version", serviceVersion),
		slog.String("topic", cfg.Kafka.Topic),
		slog.Int("channels", len(refs)))

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(telemetry.TracingConfig{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		RunID:          runID,
		Topic:          cfg.Kafka.Topic,
	}, logger)
	if err != nil {
		logger.Warn("⚠️ tracing initialization failed", slog.Any("err", err))
	} else {
		defer shutdownTracing()
	}

	if cfg.Metrics.Addr != "" {
		srv := startMetricsServer(cfg.Metrics.Addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	producer, err := ingestion.NewKafkaProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	publisher := ingestion.NewPublisher(producer, ingestion.PublisherConfig{
		Topic:          cfg.Kafka.Topic,
		FlushTimeoutMs: cfg.Kafka.Producer.FlushTimeoutMs,
		RunID:          runID,
	}, logger)

	client, err := telegram.New(cfg.Credentials(), telegram.Options{
		Phone:       cfg.Telegram.Phone,
		Password:    cfg.Telegram.Password,
		SessionFile: cfg.Telegram.SessionFile,
		Logger:      logger,
	})
	if err != nil {
		publisher.Release()
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	names := namecache.New(client, logger)
	members := membership.NewManager(client, names, membership.WithLogger(logger))
	normalizer := ingestion.NewNormalizer(names)

	controller := service.NewController(service.Options{
		Credentials:   cfg.Credentials(),
		Channels:      refs,
		RunID:         runID,
		Logger:        logger,
		StatsInterval: statsInterval,
	}, client, members, normalizer, publisher)

	if err := controller.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("🛑 ingestion cancelled during startup")
			return nil
		}
		return err
	}
	return nil
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("📊 metrics listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("❌ metrics server failed", slog.Any("err", err))
		}
	}()
	return srv
}

// shutdownContext is cancelled on SIGINT or SIGTERM
func shutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
