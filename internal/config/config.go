// Package config handles mcptok configuration: the optional settings
// file, logging setup, and tool-argument files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the settings file name looked up in each search directory.
const FileName = "mcptok.yaml"

// TokenEnv is the environment variable consulted for the bearer token
// when none is given on the command line or in the settings file.
const TokenEnv = "MCPTOK_TOKEN"

// DefaultSearchPaths returns the settings file search order:
// ./mcptok.yaml, ~/.config/mcptok/mcptok.yaml, /etc/mcptok/mcptok.yaml.
func DefaultSearchPaths() []string {
	paths := []string{FileName}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mcptok", FileName))
	}

	paths = append(paths, filepath.Join("/etc", "mcptok", FileName))
	return paths
}

// FindConfig locates a settings file. If explicit is non-empty, it must
// exist. Otherwise DefaultSearchPaths is searched and the first existing
// file is returned. The settings file is optional, so finding nothing
// in the search paths returns "" and a nil error.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", p, err)
		}
	}

	return "", nil
}

// Config holds mcptok settings. Command-line flags override every field.
type Config struct {
	// ServerURL is the default MCP endpoint.
	ServerURL string `yaml:"server_url"`

	// Token is the bearer token for the MCP server.
	Token string `yaml:"token"`

	// Timeout bounds each MCP request (e.g. "30s").
	Timeout time.Duration `yaml:"timeout"`

	// Insecure skips TLS verification for self-signed development servers.
	Insecure bool `yaml:"insecure"`

	// Encoding selects the tokenizer (see tokenizer.Encodings).
	Encoding string `yaml:"encoding"`

	// CostPerMillion is the price of one million input tokens. When nil,
	// Model is looked up in Pricing instead.
	CostPerMillion *float64 `yaml:"cost_per_million"`

	// Model names a Pricing entry.
	Model string `yaml:"model"`

	// Pricing maps model names to their token prices.
	Pricing map[string]PricingEntry `yaml:"pricing"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// HistoryDB is the SQLite file estimation runs are recorded in.
	HistoryDB string `yaml:"history_db"`
}

// PricingEntry is the price of a model's input tokens.
type PricingEntry struct {
	InputPerMillion float64 `yaml:"input_per_million"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, nil
}

// Default returns the configuration used when no settings file exists.
func Default() *Config {
	return &Config{
		Timeout:   30 * time.Second,
		HistoryDB: defaultHistoryDB(),
	}
}

// Validate checks values that the YAML decoder cannot.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if c.CostPerMillion != nil && *c.CostPerMillion < 0 {
		return fmt.Errorf("cost_per_million must not be negative, got %g", *c.CostPerMillion)
	}
	for model, p := range c.Pricing {
		if p.InputPerMillion < 0 {
			return fmt.Errorf("pricing for %s must not be negative", model)
		}
	}
	if c.Model != "" && c.CostPerMillion == nil {
		if _, ok := c.Pricing[c.Model]; !ok {
			return fmt.Errorf("model %q has no pricing entry", c.Model)
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Rate returns the cost per million tokens: CostPerMillion when set,
// otherwise the Pricing entry for Model. It reports false when neither
// yields a price.
func (c *Config) Rate() (float64, bool) {
	if c.CostPerMillion != nil {
		return *c.CostPerMillion, true
	}
	if c.Model == "" {
		return 0, false
	}
	p, ok := c.Pricing[c.Model]
	if !ok {
		return 0, false
	}
	return p.InputPerMillion, true
}

func defaultHistoryDB() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "mcptok", "history.db")
	}
	return "mcptok-history.db"
}
