// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or must be provided via CLI flags.
type Config struct {
	// Source selection
	Source      string `json:"source,omitempty" validate:"omitempty,alphanum"` // Source name, e.g. "francetravail"
	SourcesPath string `json:"sources_path,omitempty"`                         // Path to the sources YAML file

	// Skill library
	SkillLibraryPath string `json:"skill_library_path,omitempty"` // Path to the skill library JSON file
	SchemaPath       string `json:"schema_path,omitempty"`        // Path to the skill library JSON schema

	// Collection limits
	MaxRecords  int `json:"max_records,omitempty" validate:"min=0"`          // Cap on records per collection run, 0 = unlimited
	PageSize    int `json:"page_size,omitempty" validate:"min=0,max=150"`    // Records per upstream page
	RateLimitMS int `json:"rate_limit_ms,omitempty" validate:"min=0"`        // Inter-page delay in milliseconds
	Workers     int `json:"workers,omitempty" validate:"min=0,max=64"`       // Extraction worker pool size
	TimeoutSec  int `json:"timeout_sec,omitempty" validate:"min=0,max=3600"` // Per-HTTP-call timeout

	// Staleness windows in hours per stage
	CollectStalenessHours int `json:"collect_staleness_hours,omitempty" validate:"min=0"`
	ExtractStalenessHours int `json:"extract_staleness_hours,omitempty" validate:"min=0"`
	StatsStalenessHours   int `json:"stats_staleness_hours,omitempty" validate:"min=0"`

	// Behavior
	Verbose     bool   `json:"verbose,omitempty"`      // Print detailed debug information
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("config error: field '%s' failed '%s' validation", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}

	// Validate file paths exist (if specified)
	if c.SkillLibraryPath != "" {
		if _, err := os.Stat(c.SkillLibraryPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: skill library file not found: %s", c.SkillLibraryPath)
		}
	}
	if c.SourcesPath != "" {
		if _, err := os.Stat(c.SourcesPath); os.IsNotExist(err) {
			return fmt.Errorf("config error: sources file not found: %s", c.SourcesPath)
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Source == "" {
		result.Source = defaults.Source
	}
	if result.SourcesPath == "" {
		result.SourcesPath = defaults.SourcesPath
	}
	if result.SkillLibraryPath == "" {
		result.SkillLibraryPath = defaults.SkillLibraryPath
	}
	if result.SchemaPath == "" {
		result.SchemaPath = defaults.SchemaPath
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Int fields: use default if zero
	if result.MaxRecords == 0 {
		result.MaxRecords = defaults.MaxRecords
	}
	if result.PageSize == 0 {
		result.PageSize = defaults.PageSize
	}
	if result.RateLimitMS == 0 {
		result.RateLimitMS = defaults.RateLimitMS
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.TimeoutSec == 0 {
		result.TimeoutSec = defaults.TimeoutSec
	}
	if result.CollectStalenessHours == 0 {
		result.CollectStalenessHours = defaults.CollectStalenessHours
	}
	if result.ExtractStalenessHours == 0 {
		result.ExtractStalenessHours = defaults.ExtractStalenessHours
	}
	if result.StatsStalenessHours == 0 {
		result.StatsStalenessHours = defaults.StatsStalenessHours
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
