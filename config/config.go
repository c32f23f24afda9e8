// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvMongoURI      = "DOAJSYNC_MONGO_URI"
	EnvBaseURL       = "DOAJSYNC_BASE_URL"
	EnvCheckpointDir = "DOAJSYNC_CHECKPOINT_DIR"
	EnvLogLevel      = "DOAJSYNC_LOG_LEVEL"
)

// Configuration validation errors.
var (
	ErrMissingBaseURL           = errors.New("source.base_url is required")
	ErrInvalidPageSize          = errors.New("source.page_size must be at least 1")
	ErrInvalidSourceTimeout     = errors.New("source.timeout_sec must be at least 1")
	ErrNoCategories             = errors.New("at least one category is required")
	ErrEmptyCategory            = errors.New("category names must not be empty")
	ErrDuplicateCategory        = errors.New("category names must be unique")
	ErrMissingMongoURI          = errors.New("mongo.uri is required")
	ErrMissingMongoDatabase     = errors.New("mongo.database is required")
	ErrMissingMongoCollection   = errors.New("mongo.collection is required")
	ErrInvalidMongoTimeout      = errors.New("mongo.timeout_sec must be at least 1")
	ErrMissingCheckpointDir     = errors.New("checkpoint.dir is required unless checkpoint.in_memory is set")
	ErrInvalidPageDelay         = errors.New("ingest.page_delay_ms must be non-negative")
	ErrInvalidSweepDelay        = errors.New("ingest.sweep_delay_sec must be non-negative")
	ErrInvalidMaxConsecutiveErr = errors.New("ingest.max_consecutive_errors must be at least 1")
	ErrInvalidTransformWorkers  = errors.New("ingest.transform_workers must be non-negative")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
	ErrSharedLogFile            = errors.New("logging.error_file must differ from logging.file")
)

// Config represents the complete service configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Categories []string         `yaml:"categories"`
	Reputed    ReputedConfig    `yaml:"reputed"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the article API.
type SourceConfig struct {
	BaseURL    string `yaml:"base_url"`
	PageSize   int    `yaml:"page_size"`
	TimeoutSec int    `yaml:"timeout_sec"`
	UserAgent  string `yaml:"user_agent"`
}

// ReputedConfig lists publishers and journals stored ahead of the rest of a page.
type ReputedConfig struct {
	Publishers []string `yaml:"publishers"`
	Journals   []string `yaml:"journals"`
}

// MongoConfig describes the document store.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CheckpointConfig describes where category cursors are kept.
type CheckpointConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

// IngestConfig tunes the sweep loop.
type IngestConfig struct {
	PageDelayMs          int `yaml:"page_delay_ms"`
	SweepDelaySec        int `yaml:"sweep_delay_sec"`
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
	TransformWorkers     int `yaml:"transform_workers"` // 0 picks a size from the CPU count
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	File      string `yaml:"file"`       // Optional; also log to this file
	ErrorFile string `yaml:"error_file"` // Optional; error records only
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:    "https://doaj.org/api/search/articles/",
			PageSize:   100,
			TimeoutSec: 30,
			UserAgent:  "doajsync/1.0",
		},
		Categories: []string{"science"},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "academic_sources",
			Collection: "articles_collection",
			TimeoutSec: 10,
		},
		Checkpoint: CheckpointConfig{
			Dir: "./data/checkpoints",
		},
		Ingest: IngestConfig{
			PageDelayMs:          500,
			SweepDelaySec:        3600,
			MaxConsecutiveErrors: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMongoURI); ok && v != "" {
		c.Mongo.URI = v
	}
	if v, ok := lookup(EnvBaseURL); ok && v != "" {
		c.Source.BaseURL = v
	}
	if v, ok := lookup(EnvCheckpointDir); ok && v != "" {
		c.Checkpoint.Dir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return ErrMissingBaseURL
	}
	if c.Source.PageSize < 1 {
		return ErrInvalidPageSize
	}
	if c.Source.TimeoutSec < 1 {
		return ErrInvalidSourceTimeout
	}

	if len(c.Categories) == 0 {
		return ErrNoCategories
	}
	seen := make(map[string]struct{}, len(c.Categories))
	for i, category := range c.Categories {
		if strings.TrimSpace(category) == "" {
			return fmt.Errorf("%w: categories[%d]", ErrEmptyCategory, i)
		}
		if _, dup := seen[category]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateCategory, category)
		}
		seen[category] = struct{}{}
	}

	if c.Mongo.URI == "" {
		return ErrMissingMongoURI
	}
	if c.Mongo.Database == "" {
		return ErrMissingMongoDatabase
	}
	if c.Mongo.Collection == "" {
		return ErrMissingMongoCollection
	}
	if c.Mongo.TimeoutSec < 1 {
		return ErrInvalidMongoTimeout
	}

	if !c.Checkpoint.InMemory && c.Checkpoint.Dir == "" {
		return ErrMissingCheckpointDir
	}

	if c.Ingest.PageDelayMs < 0 {
		return ErrInvalidPageDelay
	}
	if c.Ingest.SweepDelaySec < 0 {
		return ErrInvalidSweepDelay
	}
	if c.Ingest.MaxConsecutiveErrors < 1 {
		return ErrInvalidMaxConsecutiveErr
	}
	if c.Ingest.TransformWorkers < 0 {
		return ErrInvalidTransformWorkers
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}
	if c.Logging.ErrorFile != "" && c.Logging.ErrorFile == c.Logging.File {
		return ErrSharedLogFile
	}

	return nil
}

// Timeout returns the per-request timeout.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// Timeout returns the connect and operation timeout.
func (m MongoConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSec) * time.Second
}

// PageDelay returns the pause between pages.
func (i IngestConfig) PageDelay() time.Duration {
	return time.Duration(i.PageDelayMs) * time.Millisecond
}

// SweepDelay returns the pause between sweeps.
func (i IngestConfig) SweepDelay() time.Duration {
	return time.Duration(i.SweepDelaySec) * time.Second
}
