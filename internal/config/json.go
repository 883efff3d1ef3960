package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/flagx"
	"github.com/dmitrijs2005/datakeeper/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations
// accept either strings like "5m" or integer nanoseconds via
// timex.Duration. Pointer fields distinguish "absent" from "zero" so only
// keys present in the file overlay the defaults.
type JsonConfig struct {
	Storage *struct {
		DSN        *string `json:"dsn"`
		QuotaBytes *int64  `json:"quota_bytes"`
	} `json:"storage"`
	Encryption *struct {
		Enabled *bool `json:"enabled"`
	} `json:"encryption"`
	Sync *struct {
		Endpoint         *string         `json:"endpoint"`
		AuthToken        *string         `json:"auth_token"`
		BatchSize        *int            `json:"batch_size"`
		MaxRetries       *int            `json:"max_retries"`
		Interval         *timex.Duration `json:"interval"`
		ConflictStrategy *string         `json:"conflict_strategy"`
	} `json:"sync"`
	Backup *struct {
		Frequency   *string         `json:"frequency"`
		MaxBackups  *int            `json:"max_backups"`
		MaxAge      *timex.Duration `json:"max_age"`
		Compress    *bool           `json:"compress"`
		AutoCleanup *bool           `json:"auto_cleanup"`
		S3          *struct {
			Bucket    *string `json:"bucket"`
			Region    *string `json:"region"`
			Endpoint  *string `json:"endpoint"`
			AccessKey *string `json:"access_key"`
			SecretKey *string `json:"secret_key"`
		} `json:"s3"`
	} `json:"backup"`
}

// parseJson overlays cfg with values loaded from the JSON file named by
// the -c/-config flags. Missing file path means no JSON is loaded. Read
// or unmarshal errors panic, matching the flags stage.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	applyJson(cfg, &jc)
}

func applyJson(cfg *Config, jc *JsonConfig) {
	if s := jc.Storage; s != nil {
		setString(&cfg.Storage.DSN, s.DSN)
		if s.QuotaBytes != nil {
			cfg.Storage.QuotaBytes = *s.QuotaBytes
		}
	}
	if e := jc.Encryption; e != nil && e.Enabled != nil {
		cfg.Encryption.Enabled = *e.Enabled
	}
	if s := jc.Sync; s != nil {
		setString(&cfg.Sync.Endpoint, s.Endpoint)
		setString(&cfg.Sync.AuthToken, s.AuthToken)
		setInt(&cfg.Sync.BatchSize, s.BatchSize)
		setInt(&cfg.Sync.MaxRetries, s.MaxRetries)
		setDuration(&cfg.Sync.Interval, s.Interval)
		setString(&cfg.Sync.ConflictStrategy, s.ConflictStrategy)
	}
	if b := jc.Backup; b != nil {
		setString(&cfg.Backup.Frequency, b.Frequency)
		setInt(&cfg.Backup.MaxBackups, b.MaxBackups)
		setDuration(&cfg.Backup.MaxAge, b.MaxAge)
		if b.Compress != nil {
			cfg.Backup.Compress = *b.Compress
		}
		if b.AutoCleanup != nil {
			cfg.Backup.AutoCleanup = *b.AutoCleanup
		}
		if s3 := b.S3; s3 != nil {
			setString(&cfg.Backup.S3.Bucket, s3.Bucket)
			setString(&cfg.Backup.S3.Region, s3.Region)
			setString(&cfg.Backup.S3.Endpoint, s3.Endpoint)
			setString(&cfg.Backup.S3.AccessKey, s3.AccessKey)
			setString(&cfg.Backup.S3.SecretKey, s3.SecretKey)
		}
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
