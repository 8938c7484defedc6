// Package config provides configuration loading and structs for kensaku.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug  bool         `yaml:"debug"`
	Server ServerConfig `yaml:"server"`
	Index  IndexConfig  `yaml:"index"`
	Search SearchConfig `yaml:"search"`
	Watch  WatchConfig  `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// IndexConfig says where the index lives and what it is built from.
type IndexConfig struct {
	Path            string `yaml:"path"`
	Directory       string `yaml:"directory"`
	Suffix          string `yaml:"suffix"`
	Recursive       *bool  `yaml:"recursive"`
	MaxBufferedDocs int    `yaml:"max_buffered_docs"`
}

// RecursiveOrDefault returns whether to walk subdirectories; defaults to
// true when unset.
func (c *IndexConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultField  string `yaml:"default_field"`
	DefaultLimit  int    `yaml:"default_limit"`
	MaxLimit      int    `yaml:"max_limit"`
	MaxExpansions int    `yaml:"max_expansions"`
	Suggestions   *bool  `yaml:"suggestions"`
}

// SuggestionsOrDefault returns whether zero-hit queries get spelling
// suggestions; defaults to true when unset.
func (c *SearchConfig) SuggestionsOrDefault() bool {
	if c.Suggestions != nil {
		return *c.Suggestions
	}
	return true
}

// WatchConfig holds watch-and-rebuild settings.
type WatchConfig struct {
	Enabled    bool `yaml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms"`
}

// Debounce returns the quiet period before a rebuild.
func (w *WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// Load reads and parses the config file at path, applies defaults and
// expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	if cfg.Index.Directory != "" {
		cfg.Index.Directory = expandPath(cfg.Index.Directory, configDir)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
