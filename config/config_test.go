package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	def := GetDefaultConfig()
	assert.Equal(t, def.Logging, cfg.Logging)
	assert.Equal(t, def.Session, cfg.Session)
	assert.Equal(t, StoreMemory, cfg.Store.Type)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Listen)
	assert.Empty(t, cfg.Handlers)
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
session:
  save_path: /var/lib/sessions
  name: APP
  max_lifetime: 1h
  gc_probability: 0.5
store:
  type: badger
  badger:
    in_memory: true
    ttl: 2h
handlers:
  - type: cache
    max_cost: 1024
    ttl: 30s
  - type: encrypt
    key: secret
  - type: logging
    log_payloads: true
server:
  listen: ":9000"
  metrics: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/var/lib/sessions", cfg.Session.SavePath)
	assert.Equal(t, "APP", cfg.Session.Name)
	assert.Equal(t, time.Hour, cfg.Session.MaxLifetime)
	assert.Equal(t, 0.5, cfg.Session.GCProbability)
	assert.Equal(t, "SESSIONMESHID", cfg.Session.CookieName)
	assert.Equal(t, StoreBadger, cfg.Store.Type)
	assert.True(t, cfg.Store.Badger.InMemory)
	assert.Equal(t, 2*time.Hour, cfg.Store.Badger.TTL)

	require.Len(t, cfg.Handlers, 3)
	assert.Equal(t, HandlerConfig{Type: HandlerCache, MaxCost: 1024, TTL: 30 * time.Second}, cfg.Handlers[0])
	assert.Equal(t, "secret", cfg.Handlers[1].Key)
	assert.True(t, cfg.Handlers[2].LogPayloads)

	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.True(t, cfg.Server.Metrics)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("SESSIONMESH_LOGGING_LEVEL", "error")
	t.Setenv("SESSIONMESH_STORE_TYPE", "file")
	t.Setenv("SESSIONMESH_SESSION_MAX_LIFETIME", "2h")

	path := writeConfig(t, `
logging:
  level: INFO
store:
  type: memory
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, StoreFile, cfg.Store.Type)
	assert.Equal(t, 2*time.Hour, cfg.Session.MaxLifetime)
}

func TestLoad_BareNumberDurationsAreSeconds(t *testing.T) {
	path := writeConfig(t, `
session:
  max_lifetime: 1440
store:
  type: badger
  badger:
    in_memory: true
    ttl: 1.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1440*time.Second, cfg.Session.MaxLifetime)
	assert.Equal(t, 1500*time.Millisecond, cfg.Store.Badger.TTL)
}

func TestLoad_BareNumberDurationFromEnvironment(t *testing.T) {
	t.Setenv("SESSIONMESH_SESSION_MAX_LIFETIME", "600")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Session.MaxLifetime)
}

func TestLoad_SubSecondMaxLifetimeRejected(t *testing.T) {
	path := writeConfig(t, `
session:
  max_lifetime: 500ms
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "MaxLifetime")
}

func TestLoad_EnvironmentWithoutFile(t *testing.T) {
	t.Setenv("SESSIONMESH_SERVER_LISTEN", ":7000")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Listen)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging: [unclosed")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
store:
  type: s3
`)
	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "store.s3.bucket")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"log level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"store type", func(c *Config) { c.Store.Type = "redis" }},
		{"gc probability", func(c *Config) { c.Session.GCProbability = 1.5 }},
		{"max lifetime", func(c *Config) { c.Session.MaxLifetime = 0 }},
		{"sub-second max lifetime", func(c *Config) { c.Session.MaxLifetime = 999 * time.Millisecond }},
		{"badger dir", func(c *Config) { c.Store.Type = StoreBadger }},
		{"sql dsn", func(c *Config) { c.Store.Type = StoreSQL }},
		{"sql driver", func(c *Config) {
			c.Store.Type = StoreSQL
			c.Store.SQL = SQLStoreConfig{Driver: "mysql", DSN: "x"}
		}},
		{"handler type", func(c *Config) { c.Handlers = []HandlerConfig{{Type: "compress"}} }},
		{"encrypt key", func(c *Config) { c.Handlers = []HandlerConfig{{Type: HandlerEncrypt}} }},
		{"duplicate metrics", func(c *Config) {
			c.Handlers = []HandlerConfig{{Type: HandlerMetrics}, {Type: HandlerMetrics}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.modify(cfg)
			assert.ErrorIs(t, Validate(cfg), ErrInvalid)
		})
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, Validate(GetDefaultConfig()))
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{Level: "warn", Format: "json", Output: "stdout"},
		Session: SessionConfig{Name: "X", MaxLifetime: time.Minute, CookieName: "C"},
		Store:   StoreConfig{Type: StoreFile, File: FileStoreConfig{Prefix: "s"}},
		Server:  ServerConfig{Listen: ":1"},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "X", cfg.Session.Name)
	assert.Equal(t, time.Minute, cfg.Session.MaxLifetime)
	assert.Equal(t, "s", cfg.Store.File.Prefix)
	assert.Equal(t, ":1", cfg.Server.Listen)
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Store.Type = StoreFile
	cfg.Session.MaxLifetime = 90 * time.Minute
	cfg.Handlers = []HandlerConfig{
		{Type: HandlerCache, MaxCost: 2048, TTL: time.Minute},
		{Type: HandlerLogging},
	}

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Session, loaded.Session)
	assert.Equal(t, cfg.Store.Type, loaded.Store.Type)
	assert.Equal(t, cfg.Handlers, loaded.Handlers)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "sessionmesh", "config.yaml"), DefaultConfigPath())
}
