package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
	"github.com/jonathan/job-harvester/internal/db"
	"github.com/jonathan/job-harvester/internal/extract"
	"github.com/jonathan/job-harvester/internal/observability"
	"github.com/jonathan/job-harvester/internal/pipeline"
	"github.com/jonathan/job-harvester/internal/skills"
	"github.com/jonathan/job-harvester/internal/stats"
	"github.com/jonathan/job-harvester/internal/upstream"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run the full harvesting pipeline end-to-end",
	Long: `Orchestrates the harvesting pipeline: collection -> reconciliation -> skill extraction -> statistics.

Each stage is gated by its own staleness window and only runs when due; use the --force flags to override. Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runPipelineCmd,
}

var (
	runConfigPath   string
	runSource       string
	runMaxRecords   int
	runForceCollect bool
	runForceExtract bool
	runForceStats   bool
	runForceAll     bool
	runVerbose      bool
	runDatabaseURL  string
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runSource, "source", "s", "", "Source name to harvest (defaults to the only configured source)")
	runCommand.Flags().IntVar(&runMaxRecords, "max-records", 0, "Cap on records per collection run (0 = unlimited)")
	runCommand.Flags().BoolVar(&runForceCollect, "force-collect", false, "Run the collect stage regardless of staleness")
	runCommand.Flags().BoolVar(&runForceExtract, "force-extract", false, "Run the extract stage regardless of staleness")
	runCommand.Flags().BoolVar(&runForceStats, "force-stats", false, "Run the stats stage regardless of staleness")
	runCommand.Flags().BoolVarP(&runForceAll, "force", "f", false, "Force every stage")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed progress information")

	// Database URL for the job store
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

// configDefaults are the built-in fallbacks applied after config file and
// flag merging.
func configDefaults() config.Config {
	return config.Config{
		SourcesPath:           "configs/sources.yaml",
		SkillLibraryPath:      "data/skill_library.json",
		SchemaPath:            "schemas/skill_library.schema.json",
		PageSize:              upstream.MaxPageSize,
		RateLimitMS:           120,
		Workers:               extract.DefaultWorkers,
		TimeoutSec:            30,
		CollectStalenessHours: 24,
		ExtractStalenessHours: 12,
		StatsStalenessHours:   168,
	}
}

// loadRunConfig merges config file, explicit flags and defaults.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
		if runVerbose {
			fmt.Printf("Loaded config from: %s\n", runConfigPath)
		}
	}

	// Command-line args take priority when explicitly set
	if cmd.Flags().Changed("source") {
		cfg.Source = runSource
	}
	if cmd.Flags().Changed("max-records") {
		cfg.MaxRecords = runMaxRecords
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}

	cfg = cfg.MergeWithDefaults(configDefaults())
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// harvester holds the wired pipeline components for one source.
type harvester struct {
	db           *db.DB
	source       *config.Source
	library      *skills.Library
	orchestrator *pipeline.Orchestrator
	cfg          *config.Config
}

func (h *harvester) Close() {
	h.db.Close()
}

// options translates config and force flags into orchestrator options.
func (h *harvester) options(forceCollect, forceExtract, forceStats bool) pipeline.Options {
	return pipeline.Options{
		Query: upstream.Query{
			RomeCode: h.source.RomeCode,
			Params:   h.source.Params,
		},
		MaxRecords:    h.cfg.MaxRecords,
		ForceCollect:  forceCollect,
		ForceExtract:  forceExtract,
		ForceStats:    forceStats,
		CollectWindow: time.Duration(h.cfg.CollectStalenessHours) * time.Hour,
		ExtractWindow: time.Duration(h.cfg.ExtractStalenessHours) * time.Hour,
		StatsWindow:   time.Duration(h.cfg.StatsStalenessHours) * time.Hour,
	}
}

// buildHarvester connects the store and wires collector, extractor, stats
// generator and orchestrator for the configured source.
func buildHarvester(ctx context.Context, cfg *config.Config) (*harvester, error) {
	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	source, err := config.FindSource(sources, cfg.Source)
	if err != nil {
		return nil, err
	}

	library, err := skills.LoadLibrary(cfg.SkillLibraryPath, cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill library: %w", err)
	}
	matcher, err := skills.NewMatcher(library)
	if err != nil {
		return nil, fmt.Errorf("failed to compile skill patterns: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	clientID, clientSecret := source.Credentials()
	tokens := upstream.NewTokenProvider(source.TokenURL, clientID, clientSecret, source.Scope)
	client := upstream.NewClient(source.BaseURL, tokens, &upstream.ClientOptions{
		Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
	})

	pageSize := source.PageSize
	if pageSize == 0 {
		pageSize = cfg.PageSize
	}
	rateLimitMS := source.RateLimitMS
	if rateLimitMS == 0 {
		rateLimitMS = cfg.RateLimitMS
	}
	collector := upstream.NewCollector(client, pageSize, time.Duration(rateLimitMS)*time.Millisecond)

	processor := extract.NewProcessor(database, matcher, cfg.Workers)
	generator := stats.NewGenerator(database, library)
	gate := pipeline.NewGate(database)

	orchestrator := pipeline.NewOrchestrator(source.Name, database, gate, collector, processor, generator)
	orchestrator.Matcher = matcher
	if cfg.Verbose {
		logf := func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		}
		collector.Logf = logf
		processor.Logf = logf
		orchestrator.Logf = logf
	}

	return &harvester{
		db:           database,
		source:       source,
		library:      library,
		orchestrator: orchestrator,
		cfg:          cfg,
	}, nil
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
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

	forceCollect := runForceCollect || runForceAll
	forceExtract := runForceExtract || runForceAll
	forceStats := runForceStats || runForceAll

	report, err := h.orchestrator.Run(ctx, h.options(forceCollect, forceExtract, forceStats))
	if err != nil {
		return err
	}

	observability.NewPrinter(os.Stdout).PrintReport(report)

	if report.Failed() {
		return fmt.Errorf("pipeline run finished with failed stages")
	}
	return nil
}
