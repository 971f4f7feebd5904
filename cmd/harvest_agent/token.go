package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-harvester/internal/config"
	"github.com/jonathan/job-harvester/internal/upstream"
)

var tokenCommand = &cobra.Command{
	Use:   "token",
	Short: "Fetch an access token for the configured source",
	Long:  `Performs the client-credentials exchange against the source's token endpoint and prints the bearer token. Useful for verifying credentials and for manual API calls.`,
	RunE:  runTokenCmd,
}

func init() {
	tokenCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file")
	tokenCommand.Flags().StringVarP(&runSource, "source", "s", "", "Source name (defaults to the only configured source)")

	rootCmd.AddCommand(tokenCommand)
}

// runTokenCmd resolves the source without touching the database: credential
// checks should work before any store exists.
func runTokenCmd(cmd *cobra.Command, _ []string) error {
	var cfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loadedCfg
	}
	if cmd.Flags().Changed("source") {
		cfg.Source = runSource
	}
	cfg = cfg.MergeWithDefaults(configDefaults())

	sources, err := config.LoadSources(cfg.SourcesPath)
	if err != nil {
		return err
	}
	source, err := config.FindSource(sources, cfg.Source)
	if err != nil {
		return err
	}

	clientID, clientSecret := source.Credentials()
	tokens := upstream.NewTokenProvider(source.TokenURL, clientID, clientSecret, source.Scope)

	token, err := tokens.Token(context.Background())
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}

	fmt.Println(token)
	return nil
}
