package main

import (
	"fmt"
	"time"

	"github.com/Log-Tools/telegram-ingest/internal/topics"
	"github.com/spf13/cobra"
)

func newTopicsCmd(root *rootOptions) *cobra.Command {
	var (
		topicsFile string
		dryRun     bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Create the Kafka topics records are published to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateKafka(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			tf := topics.FromConfig(cfg.Kafka)
			if topicsFile != "" {
				if tf, err = topics.LoadFile(topicsFile); err != nil {
					return err
				}
			}

			if dryRun {
				specs := tf.Specifications()
				fmt.Printf("🔍 Dry run mode - would create/verify %d topic(s):\n", len(specs))
				for _, spec := range specs {
					fmt.Printf("   📋 %s (partitions: %d, replication: %d)\n", spec.Topic, spec.NumPartitions, spec.ReplicationFactor)
					for k, v := range spec.Config {
						fmt.Printf("      %s: %s\n", k, v)
					}
				}
				return nil
			}

			admin, err := topics.NewKafkaAdmin(cfg.Kafka.Brokers)
			if err != nil {
				return err
			}
			defer admin.Close()

			_, err = topics.NewProvisioner(admin, timeout, nil).Create(cmd.Context(), tf)
			return err
		},
	}

	cmd.Flags().StringVar(&topicsFile, "file", "", "topics YAML file (default: the configured message topic)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be created without creating topics")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "admin operation timeout")
	return cmd
}
