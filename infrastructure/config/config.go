// Package config provides configuration loading for the preloading engine.
// Values come from defaults, an optional YAML file, and environment variable
// overrides, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	// Provider selects the data-provider variant
	Provider string `yaml:"provider" validate:"omitempty,oneof=cached legacy external"`

	// ChunkSize bounds the number of keys per backing-store batch call
	ChunkSize int `yaml:"chunk_size" validate:"gte=0,lte=1000"`

	LogLevel    string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `yaml:"development"`
	MetricsAddr string `yaml:"metrics_addr"`

	Postgres PostgresConfig `yaml:"postgres"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// TracingConfig holds settings for the trace export pipeline
type TracingConfig struct {
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// PostgresConfig holds connection strings for the relational stores.
// The catalog database serves the work-edition join and redirect lookups;
// the archive database serves external metadata rows.
type PostgresConfig struct {
	CatalogDSN string `yaml:"catalog_dsn"`
	ArchiveDSN string `yaml:"archive_dsn"`
}

// DynamoDBConfig holds settings for the document-store table
type DynamoDBConfig struct {
	TableName string `yaml:"table_name"`
	Region    string `yaml:"region"`
}

// CatalogConfig holds settings for the public catalog API client
type CatalogConfig struct {
	Host           string `yaml:"host"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Provider:    "cached",
		ChunkSize:   100,
		LogLevel:    "info",
		MetricsAddr: ":9090",
		DynamoDB: DynamoDBConfig{
			TableName: "bibdata-documents",
			Region:    "us-east-1",
		},
		Catalog: CatalogConfig{
			Host:           "openlibrary.org",
			TimeoutSeconds: 30,
		},
		Tracing: TracingConfig{
			Endpoint:   "localhost:4317",
			SampleRate: 1.0,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if it
// exists), then environment variables, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies BIBDATA_* environment variables on top of the
// file values. Environment variables win.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIBDATA_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("BIBDATA_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("BIBDATA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BIBDATA_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("BIBDATA_CATALOG_DSN"); v != "" {
		cfg.Postgres.CatalogDSN = v
	}
	if v := os.Getenv("BIBDATA_ARCHIVE_DSN"); v != "" {
		cfg.Postgres.ArchiveDSN = v
	}
	if v := os.Getenv("BIBDATA_TABLE_NAME"); v != "" {
		cfg.DynamoDB.TableName = v
	}
	if v := os.Getenv("BIBDATA_AWS_REGION"); v != "" {
		cfg.DynamoDB.Region = v
	}
	if v := os.Getenv("BIBDATA_CATALOG_HOST"); v != "" {
		cfg.Catalog.Host = v
	}
	if v := os.Getenv("BIBDATA_TRACE_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("BIBDATA_DEVELOPMENT"); v == "true" {
		cfg.Development = true
	}
}
