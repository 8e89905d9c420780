// Command telegram-ingest streams messages from Telegram channels into Kafka.
//
// Usage:
//
//	telegram-ingest run --config configs/ingest.yaml
//	telegram-ingest topics --config configs/ingest.yaml
//	telegram-ingest tail --channel 1050820672
//	telegram-ingest check-kafka --brokers localhost:9092
//
// Without --config, settings are read from the environment (and a .env file
// in the working directory, if present).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
