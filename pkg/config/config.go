// Package config loads oscript settings from YAML files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectFile is looked up in the project directory.
	ProjectFile = ".oscript.yaml"
	// UserFile is looked up under the home directory.
	UserFile = ".oscript/config.yaml"
)

// Config holds runtime, storage and server settings.
type Config struct {
	MaxComplexity      int           `yaml:"max_complexity"`
	MaxChainDepth      int           `yaml:"max_chain_depth"`
	LogLevel           string        `yaml:"log_level"`
	StateDB            string        `yaml:"state_db"`
	LedgerDB           string        `yaml:"ledger_db"`
	Listen             string        `yaml:"listen"`
	CachePruneInterval time.Duration `yaml:"cache_prune_interval"`
	CacheMaxEntries    int           `yaml:"cache_max_entries"`

	// Source is the file the settings were read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the built-in settings. Empty StateDB and LedgerDB select
// in-memory stores.
func Default() *Config {
	return &Config{
		MaxComplexity:      100,
		MaxChainDepth:      10,
		LogLevel:           "info",
		Listen:             "127.0.0.1:7777",
		CachePruneInterval: 5 * time.Minute,
		CacheMaxEntries:    1024,
	}
}

// Load reads settings with precedence project (.oscript.yaml in projectDir),
// then user (~/.oscript/config.yaml), then defaults. The first file found wins;
// keys it leaves out keep their default.
func Load(projectDir string) (*Config, error) {
	paths := []string{filepath.Join(projectDir, ProjectFile)}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, UserFile))
	}
	for _, path := range paths {
		cfg, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return cfg, err
	}
	return Default(), nil
}

// LoadFile reads one settings file over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MaxComplexity <= 0 {
		return fmt.Errorf("max_complexity must be positive, got %d", c.MaxComplexity)
	}
	if c.MaxChainDepth <= 0 {
		return fmt.Errorf("max_chain_depth must be positive, got %d", c.MaxChainDepth)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("cache_max_entries must be positive, got %d", c.CacheMaxEntries)
	}
	if c.CachePruneInterval < 0 {
		return fmt.Errorf("cache_prune_interval must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the zerolog level named by LogLevel.
func (c *Config) Level() (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// YAML renders the settings as a config file.
func (c *Config) YAML() (string, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
