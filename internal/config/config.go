// Package config reads hmerge.yml, the settings of the class merger.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cottand/hmerge/horizontal"
	"gopkg.in/yaml.v3"
)

// Config holds settings loaded from hmerge.yml. Unset fields keep the defaults of
// horizontal.DefaultOptions.
type Config struct {
	// Enabled is a pointer so that an absent key does not disable merging
	Enabled                   *bool    `yaml:"enabled,omitempty"`
	MaxGroupSize              int      `yaml:"maxGroupSize,omitempty"`
	ConstructorCodeSizeBudget int      `yaml:"constructorCodeSizeBudget,omitempty"`
	Workers                   int      `yaml:"workers,omitempty"`
	LogLevel                  string   `yaml:"logLevel,omitempty"`
	LogSections               []string `yaml:"logSections,omitempty"`
}

var fileNames = []string{"hmerge.yml", "hmerge.yaml"}

// Load reads hmerge.yml or hmerge.yaml from dir. A missing file is not an error and
// yields the zero Config.
func Load(dir string) (*Config, error) {
	for _, name := range fileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
		cfg, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return cfg, nil
	}
	return &Config{}, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	if cfg.MaxGroupSize < 0 || cfg.ConstructorCodeSizeBudget < 0 || cfg.Workers < 0 {
		return nil, fmt.Errorf("negative limits are not allowed")
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options maps the config onto the merger options.
func (c *Config) Options() horizontal.Options {
	opts := horizontal.DefaultOptions()
	if c.Enabled != nil {
		opts.Enabled = *c.Enabled
	}
	if c.MaxGroupSize > 0 {
		opts.MaxGroupSize = c.MaxGroupSize
	}
	if c.ConstructorCodeSizeBudget > 0 {
		opts.ConstructorCodeSizeBudget = c.ConstructorCodeSizeBudget
	}
	opts.Workers = c.Workers
	return opts
}

// Level parses LogLevel, defaulting to error.
func (c *Config) Level() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelError, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
