// Package config loads application settings from the environment and the
// dataset catalog from the sources file.
package config

import (
	"strings"
	"time"

	"github.com/aryanagg/si206-final/pkg/database"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

const defaultSQLiteFile = "final_data.db"

// Config holds all configuration for the application, typically loaded from
// environment variables (which may be populated by the .env file in main.go).
type Config struct {
	StoreDriver   string
	StoreDSN      string
	MongoDatabase string
	HTTPTimeout   time.Duration
	LogJSON       bool
	LogFile       string
}

// LoadConfig reads INGEST_* environment variables, applying defaults that
// point at a local sqlite file.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INGEST")
	v.AutomaticEnv()

	v.SetDefault("store_driver", database.DriverSQLite)
	v.SetDefault("mongo_database", "final_data")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("log_json", false)
	v.SetDefault("log_file", "")

	cfg := &Config{
		StoreDriver:   strings.ToLower(v.GetString("store_driver")),
		StoreDSN:      v.GetString("store_dsn"),
		MongoDatabase: v.GetString("mongo_database"),
		HTTPTimeout:   v.GetDuration("http_timeout"),
		LogJSON:       v.GetBool("log_json"),
		LogFile:       v.GetString("log_file"),
	}

	switch cfg.StoreDriver {
	case database.DriverSQLite:
		if cfg.StoreDSN == "" {
			cfg.StoreDSN = defaultSQLiteFile
		}
	case database.DriverSQLServer, database.DriverMongo:
		if cfg.StoreDSN == "" {
			return nil, errors.Newf("INGEST_STORE_DSN environment variable not set (required for %s)", cfg.StoreDriver)
		}
	default:
		return nil, errors.WithHint(
			errors.Newf("unsupported INGEST_STORE_DRIVER %q", cfg.StoreDriver),
			"use sqlite, sqlserver or mongo",
		)
	}

	if cfg.HTTPTimeout <= 0 {
		return nil, errors.Newf("INGEST_HTTP_TIMEOUT must be positive, got %s", cfg.HTTPTimeout)
	}
	return cfg, nil
}
