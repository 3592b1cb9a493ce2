// Package config loads the optional YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration. Command-line flags override it.
type Config struct {
	DataDir       string `yaml:"data_dir"`
	Archive       string `yaml:"archive"`
	ArchivePrefix string `yaml:"archive_prefix"`
	OutputDir     string `yaml:"output_dir"`
	Clean         bool   `yaml:"clean"`

	Policy struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
	} `yaml:"policy"`

	GeoIP struct {
		Database string   `yaml:"database"`
		Codes    []string `yaml:"codes"`
	} `yaml:"geoip"`

	Server struct {
		Listen          string        `yaml:"listen"`
		BaseURL         string        `yaml:"base_url"`
		RepoURL         string        `yaml:"repo_url"`
		ResultTTL       time.Duration `yaml:"result_ttl"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
		Watch           bool          `yaml:"watch"`
	} `yaml:"server"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		DataDir:   "domain-list-community/data",
		OutputDir: "output",
		Clean:     true,
	}
	cfg.Policy.Name = "PROXY"
	cfg.Server.Listen = ":8080"
	cfg.Server.ResultTTL = 24 * time.Hour
	cfg.Server.CleanupInterval = 10 * time.Minute
	cfg.Server.Watch = true
	return cfg
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field combinations.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.Archive == "" {
		return errors.New("either data_dir or archive is required")
	}
	if c.Policy.Enabled && c.Policy.Name == "" {
		return errors.New("policy.name is required when policy is enabled")
	}
	if c.Server.ResultTTL < 0 {
		return errors.New("server.result_ttl must not be negative")
	}
	return nil
}
