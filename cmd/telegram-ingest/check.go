package main

import (
	"fmt"
	"log/slog"

	"github.com/Log-Tools/telegram-ingest/internal/ingestion"
	"github.com/spf13/cobra"
)

func newCheckKafkaCmd(root *rootOptions) *cobra.Command {
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "check-kafka",
		Short: "Test the connection to the Kafka brokers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Kafka.Brokers == "" {
				return fmt.Errorf("kafka brokers are required")
			}

			if err := ingestion.CheckConnection(cfg.Kafka.Brokers, timeoutMs, slog.Default()); err != nil {
				return fmt.Errorf("kafka connection test failed: %w", err)
			}
			slog.Info("✅ Kafka connection test successful")
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 5000, "metadata request timeout in milliseconds")
	return cmd
}
