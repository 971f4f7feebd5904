package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var extractForce bool

var extractCommand = &cobra.Command{
	Use:   "extract",
	Short: "Run skill extraction over stored records",
	Long:  `Applies the skill pattern library to every unprocessed active record, persisting one detection per matched skill and refreshing each record's tag set. With --reanalyze, already-processed records are analyzed again.`,
	RunE:  runExtractCmd,
}

func init() {
	extractCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	extractCommand.Flags().StringVarP(&runSource, "source", "s", "", "Source name to process")
	extractCommand.Flags().BoolVar(&extractForce, "reanalyze", false, "Re-analyze records already marked processed")
	extractCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")
	extractCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL")

	rootCmd.AddCommand(extractCommand)
}

func runExtractCmd(cmd *cobra.Command, _ []string) error {
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

	counts, err := h.orchestrator.ExtractOnce(ctx, extractForce)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	fmt.Printf("Extraction complete for %s:\n", h.source.Name)
	printCounts(counts)
	return nil
}
