package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source describes one upstream provider: its identity, endpoints and the
// query used for full-source collection runs.
type Source struct {
	Name          string            `yaml:"name" validate:"required,alphanum"`
	BaseURL       string            `yaml:"base_url" validate:"required,url"`
	TokenURL      string            `yaml:"token_url" validate:"required,url"`
	Scope         string            `yaml:"scope,omitempty"`
	RomeCode      string            `yaml:"rome_code,omitempty"`
	Params        map[string]string `yaml:"params,omitempty"`
	ClientIDEnv   string            `yaml:"client_id_env" validate:"required"`
	ClientSecEnv  string            `yaml:"client_secret_env" validate:"required"`
	PageSize      int               `yaml:"page_size,omitempty" validate:"min=0,max=150"`
	RateLimitMS   int               `yaml:"rate_limit_ms,omitempty" validate:"min=0"`
}

// Credentials resolves the source's OAuth client credentials from the
// environment variables it names.
func (s *Source) Credentials() (clientID, clientSecret string) {
	return os.Getenv(s.ClientIDEnv), os.Getenv(s.ClientSecEnv)
}

type sourcesFile struct {
	Sources []Source `yaml:"sources" validate:"required,min=1,dive"`
}

// LoadSources reads and validates the sources YAML file.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}
	if err := validate.Struct(&file); err != nil {
		return nil, fmt.Errorf("invalid sources file: %w", err)
	}

	names := make(map[string]struct{}, len(file.Sources))
	for _, s := range file.Sources {
		if _, dup := names[s.Name]; dup {
			return nil, fmt.Errorf("invalid sources file: duplicate source name %q", s.Name)
		}
		names[s.Name] = struct{}{}
	}

	return file.Sources, nil
}

// FindSource returns the named source, or the only source when name is
// empty and exactly one is configured.
func FindSource(sources []Source, name string) (*Source, error) {
	if name == "" {
		if len(sources) == 1 {
			return &sources[0], nil
		}
		return nil, fmt.Errorf("source name required when %d sources are configured", len(sources))
	}
	for i := range sources {
		if sources[i].Name == name {
			return &sources[i], nil
		}
	}
	return nil, fmt.Errorf("unknown source %q", name)
}
