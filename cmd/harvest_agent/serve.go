package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing the harvested job store: record queries, skill statistics, pipeline markers, and an authenticated endpoint for triggering pipeline runs.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	serveCmd.Flags().StringVarP(&runSource, "source", "s", "", "Default source for query endpoints")
	serveCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")
	serveCmd.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL")

	rootCmd.AddCommand(serveCmd)
}

// cliRunner adapts the wired harvester to the server's run endpoint,
// carrying the configured staleness windows into each triggered run.
type cliRunner struct {
	h *harvester
}

func (r *cliRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.Report, error) {
	merged := r.h.options(opts.ForceCollect, opts.ForceExtract, opts.ForceStats)
	if opts.MaxRecords > 0 {
		merged.MaxRecords = opts.MaxRecords
	}
	return r.h.orchestrator.Run(ctx, merged)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	if os.Getenv("ADMIN_PASSWORD_HASH") == "" {
		fmt.Fprintln(os.Stderr, "Warning: ADMIN_PASSWORD_HASH not set; POST /pipeline/run will be unavailable")
	}

	// The server shares the harvester's pool; h.Close releases it on exit.
	srv, err := server.New(server.Config{
		Port:   servePort,
		Source: h.source.Name,
		Runner: &cliRunner{h: h},
	}, h.db, nil)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
