package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML config file. Flags override it.
type Config struct {
	// Database is the snapshot database path.
	Database string `yaml:"database"`

	// LogLevel is "debug", "info", or "warn". Default "warn".
	LogLevel string `yaml:"log_level"`
}

// LoadConfig reads the config file at path. An empty path returns defaults;
// a missing explicit path is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{LogLevel: "warn"}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn":
	default:
		return nil, fmt.Errorf("invalid log_level %q in %s", cfg.LogLevel, path)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	return cfg, nil
}
