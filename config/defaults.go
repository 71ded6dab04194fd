package config

import (
	"strings"
	"time"
)

// ApplyDefaults replaces zero values with defaults and normalizes values.
// Explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySessionDefaults(&cfg.Session)
	applyStoreDefaults(&cfg.Store)
	applyServerDefaults(&cfg.Server)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.Name == "" {
		cfg.Name = "SESSIONMESH"
	}
	if cfg.MaxLifetime == 0 {
		cfg.MaxLifetime = 24 * time.Minute
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "SESSIONMESHID"
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = StoreMemory
	}
	if cfg.File.Prefix == "" {
		cfg.File.Prefix = "sess"
	}
	if cfg.SQL.Driver == "" {
		cfg.SQL.Driver = "sqlite"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8080"
	}
}

// GetDefaultConfig returns a valid configuration using the in-memory store.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Session: SessionConfig{GCProbability: 0.01},
	}
	ApplyDefaults(cfg)
	return cfg
}
