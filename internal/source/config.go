package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk sources file (sources.yaml).
type Config struct {
	Sources []Source `yaml:"sources"`
}

// LoadConfig reads and validates the sources file. Duplicate identifiers
// among enabled sources and negative priorities are configuration errors;
// duplicate priorities are legal and surface later as resolver conflicts.
func LoadConfig(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := Validate(cfg.Sources); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg.Sources, nil
}

// Validate checks structural invariants on a source list.
func Validate(sources []Source) error {
	seen := make(map[string]bool, len(sources))
	for i := range sources {
		s := &sources[i]
		if s.Owner == "" || s.Repo == "" {
			return fmt.Errorf("source %d: owner and repo are required", i)
		}
		if s.Priority < 0 {
			return fmt.Errorf("source %s: priority must be non-negative, got %d", s.ID(), s.Priority)
		}
		if !s.Enabled {
			continue
		}
		if seen[s.ID()] {
			return fmt.Errorf("duplicate enabled source %s", s.ID())
		}
		seen[s.ID()] = true
	}
	return nil
}
