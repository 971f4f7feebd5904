// Package main provides the entry point for the job harvester CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "harvest_agent",
	Short: "Job posting harvester",
	Long:  "Harvest agent collects job postings from upstream APIs, reconciles them against the local store, tags them with detected skills and aggregates statistics.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
