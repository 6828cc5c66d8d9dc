package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the complete mcg configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" env:"STORE"`
	Ledger   LedgerConfig   `yaml:"ledger" env:"LEDGER"`
	Schema   SchemaConfig   `yaml:"schema" env:"SCHEMA"`
	Snapshot SnapshotConfig `yaml:"snapshot" env:"SNAPSHOT"`
	Server   ServerConfig   `yaml:"server" env:"SERVER"`
	Log      LogConfig      `yaml:"log" env:"LOG"`
}

// StoreConfig configures durable storage.
type StoreConfig struct {
	// Path is the SQLite database file. Empty keeps the store in memory.
	Path string `yaml:"path" env:"PATH"`
	// SyncWrites makes mutating calls wait until their records are on disk.
	SyncWrites bool `yaml:"sync_writes" env:"SYNC_WRITES"`
	// JournalRetries is how often a failed disk batch is retried.
	JournalRetries int `yaml:"journal_retries" env:"JOURNAL_RETRIES"`
	// JournalBackoff is the first retry delay; it doubles per attempt.
	JournalBackoff time.Duration `yaml:"journal_backoff" env:"JOURNAL_BACKOFF"`
	// HashWorkers bounds parallel hashing in one PutAssets call.
	HashWorkers int `yaml:"hash_workers" env:"HASH_WORKERS"`
}

// LedgerConfig configures the edge ledger.
type LedgerConfig struct {
	// AppendTimeout bounds the wait for the append slot.
	AppendTimeout time.Duration `yaml:"append_timeout" env:"APPEND_TIMEOUT"`
}

// SchemaConfig configures optional payload shape checks.
type SchemaConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Files are extra CUE sources compiled after the built-in definitions.
	Files []string `yaml:"files" env:"FILES"`
}

// SnapshotConfig configures snapshot sinks.
type SnapshotConfig struct {
	// Dir is the default directory for file snapshots.
	Dir   string      `yaml:"dir" env:"DIR"`
	MinIO MinIOConfig `yaml:"minio" env:"MINIO"`
}

// MinIOConfig addresses S3-compatible object storage.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"BUCKET"`
	UseSSL    bool   `yaml:"use_ssl" env:"USE_SSL"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           "mcg.db",
			JournalRetries: 3,
			JournalBackoff: 50 * time.Millisecond,
			HashWorkers:    4,
		},
		Ledger: LedgerConfig{
			AppendTimeout: 5 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Dir: ".",
			MinIO: MinIOConfig{
				Bucket: "mcg-snapshots",
			},
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8750",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "json",
			OutputPaths: []string{"stderr"},
		},
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Store.JournalRetries < 0 {
		errs = append(errs, "store.journal_retries must not be negative")
	}
	if c.Store.JournalBackoff < 0 {
		errs = append(errs, "store.journal_backoff must not be negative")
	}
	if c.Store.HashWorkers <= 0 {
		errs = append(errs, "store.hash_workers must be positive")
	}
	if c.Ledger.AppendTimeout <= 0 {
		errs = append(errs, "ledger.append_timeout must be positive")
	}
	if c.Server.Addr == "" {
		errs = append(errs, "server.addr is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, "server.max_body_bytes must be positive")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q is not json or console", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
