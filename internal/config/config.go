// Package config holds the runtime settings of the data management core:
// storage, encryption, sync and backup preferences. Values are populated
// from defaults, then an optional JSON file, then command-line flags, with
// later sources taking precedence.
package config

import "time"

// StorageConfig configures the local persistent store.
type StorageConfig struct {
	// DSN is the SQLite database path or ":memory:".
	DSN string
	// QuotaBytes caps total record payload size; 0 disables the check.
	QuotaBytes int64
}

// EncryptionConfig configures field-level encryption.
type EncryptionConfig struct {
	// Enabled turns on transparent field encryption for sensitive paths.
	Enabled bool
}

// SyncConfig configures the offline sync manager.
type SyncConfig struct {
	// Endpoint is the base URL of the remote endpoint.
	Endpoint string
	// AuthToken is sent as an opaque bearer token; issuing and refreshing
	// it belongs to the auth layer, not this subsystem.
	AuthToken string
	// BatchSize is the number of actions processed per batch.
	BatchSize int
	// MaxRetries is the per-action retry budget before it turns failed.
	MaxRetries int
	// Interval between automatic sync attempts while online and idle.
	Interval time.Duration
	// ConflictStrategy is one of "client", "server", "latest".
	ConflictStrategy string
}

// BackupConfig configures the backup manager.
type BackupConfig struct {
	// Frequency is one of "daily", "weekly", "monthly", "manual".
	Frequency string
	// MaxBackups is how many most-recent entries retention keeps.
	MaxBackups int
	// MaxAge is the oldest a retained entry may be.
	MaxAge time.Duration
	// Compress enables the gzip stage for backup payloads.
	Compress bool
	// AutoCleanup runs retention cleanup after each scheduled backup.
	AutoCleanup bool
	// S3 optionally mirrors backup payloads off-device.
	S3 S3Config
}

// S3Config points at an S3-compatible bucket for off-device backup copies.
// The mirror is active when Bucket is non-empty.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Config is the single configuration object owned by the orchestrator.
type Config struct {
	Storage    StorageConfig
	Encryption EncryptionConfig
	Sync       SyncConfig
	Backup     BackupConfig
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.Storage.DSN = "datakeeper.db"
	c.Storage.QuotaBytes = 0
	c.Encryption.Enabled = true
	c.Sync.Endpoint = "http://127.0.0.1:8080"
	c.Sync.BatchSize = 10
	c.Sync.MaxRetries = 3
	c.Sync.Interval = 5 * time.Minute
	c.Sync.ConflictStrategy = "latest"
	c.Backup.Frequency = "daily"
	c.Backup.MaxBackups = 10
	c.Backup.MaxAge = 30 * 24 * time.Hour
	c.Backup.Compress = true
	c.Backup.AutoCleanup = true
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
