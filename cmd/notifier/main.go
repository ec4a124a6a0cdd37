package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "notifier",
		Short:        "Asynchronous notification delivery pipeline",
		Long:         "notifier consumes notification events and delivers them over email, WhatsApp and app push with retries, a circuit breaker and a dead-letter queue",
		SilenceUsage: true,
		RunE:         serveCmd().RunE,
	}

	rootCmd.AddCommand(serveCmd(), dlqCmd(), migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
