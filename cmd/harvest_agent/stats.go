package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/observability"
	"github.com/jonathan/job-harvester/internal/stats"
)

var statsPrintOnly bool

var statsCommand = &cobra.Command{
	Use:   "stats",
	Short: "Generate and print aggregate statistics",
	Long:  `Aggregates the stored records for a source into a snapshot (record counts, top skills, monthly distribution), persists it for the current period and prints it. With --print-only, the latest stored snapshot is printed without regenerating.`,
	RunE:  runStatsCmd,
}

func init() {
	statsCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	statsCommand.Flags().StringVarP(&runSource, "source", "s", "", "Source name to aggregate")
	statsCommand.Flags().BoolVar(&statsPrintOnly, "print-only", false, "Print the latest stored snapshot without regenerating")
	statsCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")
	statsCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL")

	rootCmd.AddCommand(statsCommand)
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	h, err := buildHarvester(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.Close()

	printer := observability.NewPrinter(os.Stdout)

	if statsPrintOnly {
		return printLatestSnapshot(ctx, h, printer)
	}

	// Run through the orchestrator so the stage marker is recorded,
	// same as a gated run, then print the snapshot just persisted.
	if _, err := h.orchestrator.StatsOnce(ctx); err != nil {
		return fmt.Errorf("stats generation failed: %w", err)
	}

	return printLatestSnapshot(ctx, h, printer)
}

func printLatestSnapshot(ctx context.Context, h *harvester, printer *observability.Printer) error {
	stored, err := h.db.LatestStatsSnapshot(ctx, h.source.Name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if stored == nil {
		return fmt.Errorf("no statistics snapshot stored for %s", h.source.Name)
	}

	snap, err := decodeSnapshot(stored)
	if err != nil {
		return err
	}
	printer.PrintStats(snap)
	return nil
}

func decodeSnapshot(stored *db.StatsSnapshot) (*stats.Snapshot, error) {
	var snap stats.Snapshot
	if err := json.Unmarshal(stored.Payload, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode stored snapshot: %w", err)
	}
	return &snap, nil
}
