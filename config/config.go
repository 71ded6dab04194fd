// Package config loads, validates and persists the sessionmesh
// configuration and turns it into a wired session Manager.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (SESSIONMESH_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the sessionmesh configuration.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Session holds the values the host runtime hands to the handler chain
	Session SessionConfig `mapstructure:"session" yaml:"session"`

	// Store selects and configures the canonical session store
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Handlers are decorators registered above the store, in order.
	// The last entry runs first.
	Handlers []HandlerConfig `mapstructure:"handlers" validate:"dive" yaml:"handlers,omitempty"`

	// Server configures the HTTP admin API
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// SessionConfig holds per-application session settings.
type SessionConfig struct {
	// SavePath is passed to Open. Its meaning depends on the store
	// (a directory for the file store).
	SavePath string `mapstructure:"save_path" yaml:"save_path"`

	// Name is the session name passed to Open
	// Default: "SESSIONMESH"
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// MaxLifetime is the age after which GC purges a session. GC works in
	// whole seconds, so it must be at least 1s. Bare numbers are seconds.
	// Default: 24m
	MaxLifetime time.Duration `mapstructure:"max_lifetime" validate:"required,gte=1s" yaml:"max_lifetime"`

	// CookieName carries the session id in HTTP requests
	// Default: "SESSIONMESHID"
	CookieName string `mapstructure:"cookie_name" validate:"required" yaml:"cookie_name"`

	// GCProbability is the chance (0.0 to 1.0) that a request triggers GC
	// Default: 0.01
	GCProbability float64 `mapstructure:"gc_probability" validate:"gte=0,lte=1" yaml:"gc_probability"`
}

// Store types.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreS3     = "s3"
	StoreSQL    = "sql"
)

// StoreConfig selects the canonical store. Only the block matching Type is used.
type StoreConfig struct {
	// Type is one of memory, file, badger, s3, sql
	Type string `mapstructure:"type" validate:"required,oneof=memory file badger s3 sql" yaml:"type"`

	File   FileStoreConfig   `mapstructure:"file" yaml:"file,omitempty"`
	Badger BadgerStoreConfig `mapstructure:"badger" yaml:"badger,omitempty"`
	S3     S3StoreConfig     `mapstructure:"s3" yaml:"s3,omitempty"`
	SQL    SQLStoreConfig    `mapstructure:"sql" yaml:"sql,omitempty"`
}

// FileStoreConfig configures the file store.
type FileStoreConfig struct {
	// Prefix of session file names
	// Default: "sess"
	Prefix string `mapstructure:"prefix" yaml:"prefix,omitempty"`
}

// BadgerStoreConfig configures the BadgerDB store.
type BadgerStoreConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir,omitempty"`
	InMemory bool          `mapstructure:"in_memory" yaml:"in_memory,omitempty"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty"`
}

// S3StoreConfig configures the S3 store.
type S3StoreConfig struct {
	Bucket          string        `mapstructure:"bucket" yaml:"bucket,omitempty"`
	Prefix          string        `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Region          string        `mapstructure:"region" yaml:"region,omitempty"`
	Endpoint        string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKeyID     string        `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string        `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// SQLStoreConfig configures the SQL store.
type SQLStoreConfig struct {
	// Driver is sqlite or postgres
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=sqlite postgres" yaml:"driver,omitempty"`
	// DSN is a file path for SQLite or a connection string for PostgreSQL
	DSN string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// Handler types.
const (
	HandlerLogging = "logging"
	HandlerEncrypt = "encrypt"
	HandlerCache   = "cache"
	HandlerMetrics = "metrics"
	HandlerTracing = "tracing"
)

// HandlerConfig configures one decorator.
type HandlerConfig struct {
	// Type is one of logging, encrypt, cache, metrics, tracing
	Type string `mapstructure:"type" validate:"required,oneof=logging encrypt cache metrics tracing" yaml:"type"`

	// Key is the encryption secret (encrypt only)
	Key string `mapstructure:"key" validate:"required_if=Type encrypt" yaml:"key,omitempty"`

	// Salt for key derivation (encrypt only)
	Salt string `mapstructure:"salt" yaml:"salt,omitempty"`

	// MaxCost bounds the cache size in bytes (cache only)
	MaxCost int64 `mapstructure:"max_cost" validate:"gte=0" yaml:"max_cost,omitempty"`

	// TTL of cached entries (cache only)
	TTL time.Duration `mapstructure:"ttl" validate:"gte=0" yaml:"ttl,omitempty"`

	// LogPayloads includes raw payloads in log entries (logging only)
	LogPayloads bool `mapstructure:"log_payloads" yaml:"log_payloads,omitempty"`
}

// ServerConfig configures the HTTP admin API.
type ServerConfig struct {
	// Listen is the address the admin API binds to
	// Default: "127.0.0.1:8080"
	Listen string `mapstructure:"listen" validate:"required" yaml:"listen"`

	// Metrics exposes /metrics when true
	Metrics bool `mapstructure:"metrics" yaml:"metrics"`
}

// Load loads configuration from file, environment, and defaults, then
// validates it. An empty path uses the default location; a missing file
// is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)
	setViperDefaults(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config files may carry encryption keys and S3 credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the settings required by the
// selected store.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	switch cfg.Store.Type {
	case StoreBadger:
		if !cfg.Store.Badger.InMemory && cfg.Store.Badger.Dir == "" {
			return fmt.Errorf("%w: store.badger.dir is required unless in_memory is set", ErrInvalid)
		}
	case StoreS3:
		if cfg.Store.S3.Bucket == "" {
			return fmt.Errorf("%w: store.s3.bucket is required", ErrInvalid)
		}
	case StoreSQL:
		if cfg.Store.SQL.DSN == "" {
			return fmt.Errorf("%w: store.sql.dsn is required", ErrInvalid)
		}
	}

	seen := map[string]bool{}
	for _, h := range cfg.Handlers {
		if h.Type == HandlerMetrics && seen[HandlerMetrics] {
			return fmt.Errorf("%w: metrics handler listed more than once", ErrInvalid)
		}
		seen[h.Type] = true
	}
	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: SESSIONMESH_STORE_TYPE=badger
	v.SetEnvPrefix("SESSIONMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// setViperDefaults registers every scalar key so AutomaticEnv can override
// it even when no config file exists.
func setViperDefaults(v *viper.Viper) {
	d := GetDefaultConfig()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)
	v.SetDefault("session.save_path", d.Session.SavePath)
	v.SetDefault("session.name", d.Session.Name)
	v.SetDefault("session.max_lifetime", d.Session.MaxLifetime)
	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.gc_probability", d.Session.GCProbability)
	v.SetDefault("store.type", d.Store.Type)
	v.SetDefault("store.file.prefix", d.Store.File.Prefix)
	v.SetDefault("store.badger.dir", "")
	v.SetDefault("store.badger.in_memory", false)
	v.SetDefault("store.badger.ttl", time.Duration(0))
	v.SetDefault("store.s3.bucket", "")
	v.SetDefault("store.s3.prefix", "")
	v.SetDefault("store.s3.region", "")
	v.SetDefault("store.s3.endpoint", "")
	v.SetDefault("store.s3.access_key_id", "")
	v.SetDefault("store.s3.secret_access_key", "")
	v.SetDefault("store.s3.timeout", time.Duration(0))
	v.SetDefault("store.sql.driver", "")
	v.SetDefault("store.sql.dsn", "")
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.metrics", d.Server.Metrics)
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook converts strings like "30s", "24m" or "1h" to
// time.Duration. Bare numbers, and strings holding only a number, are
// seconds, matching the classic gc_maxlifetime setting.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if secs, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return secondsToDuration(secs), nil
			}
			return time.ParseDuration(v)
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case uint64:
			return time.Duration(v) * time.Second, nil
		case float64:
			// YAML often deserializes numbers as float64
			return secondsToDuration(v), nil
		default:
			return data, nil
		}
	}
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

// getConfigDir returns $XDG_CONFIG_HOME/sessionmesh, ~/.config/sessionmesh,
// or "." as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "sessionmesh")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "sessionmesh")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
