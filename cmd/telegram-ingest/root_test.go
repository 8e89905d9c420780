package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()

	assert.True(t, newLogger("debug", "text").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info", "json").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("warn", "text").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger("error", "text").Enabled(ctx, slog.LevelError))
	assert.True(t, newLogger("bogus", "text").Enabled(ctx, slog.LevelInfo))
}

func TestRootOptions_LoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.yaml")
	content := `telegram:
  api_id: 12345
  api_hash: 0123456789abcdef0123456789abcdef
channels:
  - "@toporlive"
kafka:
  brokers: file-broker:9092
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	opts := &rootOptions{configPath: path, brokers: "flag-broker:9092", logLevel: "debug"}
	cfg, err := opts.load()
	require.NoError(t, err)

	assert.Equal(t, "flag-broker:9092", cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"@toporlive"}, cfg.Channels)
}

func TestRootOptions_LoadMissingFile(t *testing.T) {
	opts := &rootOptions{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := opts.load()
	assert.Error(t, err)
}

func TestRunIngest_MissingCredentialsFailsBeforeConnecting(t *testing.T) {
	cfg := &config.Config{
		Channels: []string{"@toporlive"},
		Kafka:    config.KafkaConfig{Brokers: "localhost:1", Topic: "telegram_messages"},
	}

	err := runIngest(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrMissingCredentials)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"run", "topics", "tail", "check-kafka"})
}

func TestShutdownContext_CancelledBySignal(t *testing.T) {
	ctx, stop := shutdownContext(context.Background())
	defer stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context was not cancelled by SIGTERM")
	}
}

func TestShutdownContext_FollowsParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := shutdownContext(parent)
	defer stop()

	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
