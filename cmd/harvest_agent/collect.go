package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var collectCommand = &cobra.Command{
	Use:   "collect",
	Short: "Collect and reconcile records from the upstream source",
	Long:  `Fetches every record matching the source query, reconciles them against the store (new, duplicate, closed, reactivated), and persists the outcome. Skips the extraction and statistics stages.`,
	RunE:  runCollectCmd,
}

var collectRequireSkills bool

func init() {
	collectCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	collectCommand.Flags().BoolVar(&collectRequireSkills, "require-skills", false, "Drop records matching no skill pattern (disables closures)")
	collectCommand.Flags().StringVarP(&runSource, "source", "s", "", "Source name to harvest")
	collectCommand.Flags().IntVar(&runMaxRecords, "max-records", 0, "Cap on records collected (0 = unlimited)")
	collectCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")
	collectCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL")

	rootCmd.AddCommand(collectCommand)
}

func runCollectCmd(cmd *cobra.Command, _ []string) error {
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

	opts := h.options(true, false, false)
	opts.RequireSkills = collectRequireSkills
	counts, err := h.orchestrator.CollectOnce(ctx, opts)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	fmt.Printf("Collection complete for %s:\n", h.source.Name)
	printCounts(counts)
	return nil
}

func printCounts(counts map[string]int) {
	for _, key := range []string{"fetched", "filtered_out", "created", "skipped", "reactivated", "closed", "failed_pages", "analyzed", "updated", "detections", "failed_records", "active", "top_skills"} {
		if v, ok := counts[key]; ok {
			fmt.Printf("  %-15s %d\n", key, v)
		}
	}
}
