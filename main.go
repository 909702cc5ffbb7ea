// Package main provides the eventhint entry point.
// eventhint turns screenshots, emails, and links into calendar events
// with a human approval step in between.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eventhint/eventhint/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "eventhint",
	Short: "Calendar event extraction service",
	Long: `eventhint ingests messages from Gmail, uploads, and web pages,
extracts calendar events with a deterministic parser and an LLM
fallback, and syncs approved events to Google Calendar.

The service runs as two processes:

  eventhint serve    HTTP API (uploads, approval queue, OAuth, metrics)
  eventhint worker   background workers (OCR, extraction, sync, cleanup)

Run 'eventhint migrate' once against a fresh database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(cmd.NewServeCommand())
	rootCmd.AddCommand(cmd.NewWorkerCommand())
	rootCmd.AddCommand(cmd.NewMigrateCommand())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
