package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Second, cfg.Ledger.AppendTimeout)
	assert.Equal(t, "mcg.db", cfg.Store.Path)
	assert.False(t, cfg.Store.SyncWrites)
	assert.False(t, cfg.Schema.Enabled)
}

func TestLoader_NoSources(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_YAMLFile(t *testing.T) {
	path := writeFile(t, "mcg.yaml", `
store:
  path: /var/lib/mcg/store.db
  sync_writes: true
ledger:
  append_timeout: 250ms
schema:
  enabled: true
  files: [extra.cue]
log:
  level: debug
  format: console
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/mcg/store.db", cfg.Store.Path)
	assert.True(t, cfg.Store.SyncWrites)
	assert.Equal(t, 250*time.Millisecond, cfg.Ledger.AppendTimeout)
	assert.True(t, cfg.Schema.Enabled)
	assert.Equal(t, []string{"extra.cue"}, cfg.Schema.Files)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Untouched sections keep defaults.
	assert.Equal(t, 4, cfg.Store.HashWorkers)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "store: [unterminated")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "mcg.yaml", "store:\n  path: from-file.db\n")
	t.Setenv("MCG_STORE_PATH", "from-env.db")
	t.Setenv("MCG_STORE_SYNC_WRITES", "true")
	t.Setenv("MCG_LEDGER_APPEND_TIMEOUT", "2s")
	t.Setenv("MCG_SNAPSHOT_MINIO_ENDPOINT", "minio.local:9000")
	t.Setenv("MCG_LOG_OUTPUT_PATHS", "stdout, /tmp/mcg.log")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env.db", cfg.Store.Path)
	assert.True(t, cfg.Store.SyncWrites)
	assert.Equal(t, 2*time.Second, cfg.Ledger.AppendTimeout)
	assert.Equal(t, "minio.local:9000", cfg.Snapshot.MinIO.Endpoint)
	assert.Equal(t, []string{"stdout", "/tmp/mcg.log"}, cfg.Log.OutputPaths)
}

func TestLoader_EnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "MCG_SNAPSHOT_MINIO_ACCESS_KEY=from-dotenv\nMCG_SERVER_ADDR=0.0.0.0:9999\n")
	// Real environment beats the .env file.
	t.Setenv("MCG_SERVER_ADDR", "127.0.0.1:1234")
	t.Cleanup(func() { os.Unsetenv("MCG_SNAPSHOT_MINIO_ACCESS_KEY") })

	cfg, err := NewLoader().WithEnvFile(envFile).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Snapshot.MinIO.AccessKey)
	assert.Equal(t, "127.0.0.1:1234", cfg.Server.Addr)
}

func TestLoader_MissingEnvFileIgnored(t *testing.T) {
	_, err := NewLoader().WithEnvFile(filepath.Join(t.TempDir(), ".env")).Load()
	require.NoError(t, err)
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("MCG_LEDGER_APPEND_TIMEOUT", "soon")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MCG_LEDGER_APPEND_TIMEOUT")
}

func TestLoader_CustomPrefix(t *testing.T) {
	t.Setenv("PROV_STORE_PATH", "prov.db")
	cfg, err := NewLoader().WithEnvPrefix("PROV").Load()
	require.NoError(t, err)
	assert.Equal(t, "prov.db", cfg.Store.Path)
}

func TestLoader_Validators(t *testing.T) {
	_, err := NewLoader().WithValidator(func(c *Config) error {
		return errors.New("custom rejection")
	}).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom rejection")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative retries", func(c *Config) { c.Store.JournalRetries = -1 }, "journal_retries"},
		{"zero workers", func(c *Config) { c.Store.HashWorkers = 0 }, "hash_workers"},
		{"zero timeout", func(c *Config) { c.Ledger.AppendTimeout = 0 }, "append_timeout"},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Level = "trace"
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.format")
}
