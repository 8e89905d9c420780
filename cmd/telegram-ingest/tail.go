package main

import (
	"fmt"
	"os"

	"github.com/Log-Tools/telegram-ingest/internal/tail"
	"github.com/spf13/cobra"
)

func newTailCmd(root *rootOptions) *cobra.Command {
	var (
		opts  tail.FilterOptions
		group string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow published records, optionally filtered by channel or sender",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if group != "" {
				cfg.Kafka.Consumer.Group = group
			}
			if err := cfg.ValidateKafka(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if opts.OutputFormat != "text" && opts.OutputFormat != "json" {
				return fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", opts.OutputFormat)
			}

			consumer, err := tail.NewKafkaConsumer(cfg.Kafka)
			if err != nil {
				return err
			}

			tailer := tail.NewTailer(consumer, []string{cfg.Kafka.Topic}, opts, os.Stdout, nil)
			defer tailer.Close()

			ctx, stop := shutdownContext(cmd.Context())
			defer stop()

			return tailer.Start(ctx)
		},
	}

	cmd.Flags().Int64Var(&opts.ChannelID, "channel", 0, "only show records from this channel id")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "only show records from this sender (username or id)")
	cmd.Flags().StringVarP(&opts.OutputFormat, "format", "f", "text", "output format: text, json")
	cmd.Flags().BoolVar(&opts.ShowRaw, "raw", false, "show raw message metadata")
	cmd.Flags().StringVarP(&group, "consumer-group", "g", "", "Kafka consumer group ID (overrides config)")
	return cmd
}
