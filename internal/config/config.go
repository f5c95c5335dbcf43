// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package config loads TableSnap configuration.
//
// Values are layered with koanf, lowest priority first:
//
//  1. built-in defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/tablesnap/config.yaml)
//  3. environment variables listed in envMappings
//
// The merged result is validated with go-playground/validator tags plus the
// cross-field checks in Validate.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Store   StoreConfig   `koanf:"store"`
	Remote  RemoteConfig  `koanf:"remote"`
	Retry   RetryConfig   `koanf:"retry"`
	Breaker BreakerConfig `koanf:"breaker"`
	Backup  BackupConfig  `koanf:"backup"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// StoreConfig selects the relational store to back up.
type StoreConfig struct {
	// Driver is the database/sql driver: duckdb, sqlite or pgx.
	Driver   string `koanf:"driver" validate:"oneof=duckdb sqlite pgx"`
	DSN      string `koanf:"dsn" validate:"required"`
	PageSize int    `koanf:"page_size" validate:"min=1,max=100000"`
}

// RemoteConfig selects and configures the archive destination.
type RemoteConfig struct {
	Provider           string      `koanf:"provider" validate:"oneof=drive s3 local"`
	ListPageSize       int         `koanf:"list_page_size" validate:"min=1,max=1000"`
	RateLimitPerSecond float64     `koanf:"rate_limit_per_second" validate:"gte=0"`
	RateLimitBurst     int         `koanf:"rate_limit_burst" validate:"min=1"`

	// MetadataCacheSize of -1 disables the archive metadata cache.
	MetadataCacheSize int           `koanf:"metadata_cache_size" validate:"gte=-1"`
	MetadataCacheTTL  time.Duration `koanf:"metadata_cache_ttl" validate:"gte=0"`

	Drive              DriveConfig `koanf:"drive"`
	S3                 S3Config    `koanf:"s3"`
	Local              LocalConfig `koanf:"local"`
}

// DriveConfig configures the Google Drive backend.
type DriveConfig struct {
	FolderID        string `koanf:"folder_id"`
	CredentialsFile string `koanf:"credentials_file"`
}

// S3Config configures the S3-compatible backend.
type S3Config struct {
	Endpoint     string `koanf:"endpoint"`
	Bucket       string `koanf:"bucket"`
	Region       string `koanf:"region"`
	AccessKey    string `koanf:"access_key"`
	SecretKey    string `koanf:"secret_key"`
	Prefix       string `koanf:"prefix"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

// LocalConfig configures the directory backend.
type LocalConfig struct {
	Dir string `koanf:"dir"`
}

// RetryConfig controls remote call retries.
type RetryConfig struct {
	MaxAttempts         int           `koanf:"max_attempts" validate:"min=1,max=20"`
	InitialInterval     time.Duration `koanf:"initial_interval" validate:"gt=0"`
	MaxInterval         time.Duration `koanf:"max_interval" validate:"gt=0"`
	Multiplier          float64       `koanf:"multiplier" validate:"gte=1"`
	RandomizationFactor float64       `koanf:"randomization_factor" validate:"gte=0,lte=1"`
}

// BreakerConfig controls the circuit breaker in front of the remote store.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests" validate:"min=1"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout" validate:"gt=0"`
	MinRequests  uint32        `koanf:"min_requests" validate:"min=1"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
}

// BackupConfig controls the backup pipeline.
type BackupConfig struct {
	WorkDir string `koanf:"work_dir" validate:"required"`

	// Engine is the tag written into every archive header. Defaults to
	// the store driver when empty.
	Engine string `koanf:"engine"`

	CompressionLevel   int           `koanf:"compression_level" validate:"min=1,max=9"`
	CompressionTimeout time.Duration `koanf:"compression_timeout" validate:"gt=0"`
	JobCleanupDelay    time.Duration `koanf:"job_cleanup_delay" validate:"gte=0"`
	LogCapacity        int           `koanf:"log_capacity" validate:"min=1"`
	HistoryLimit       int           `koanf:"history_limit" validate:"gte=0"`
	RetentionDays      int           `koanf:"retention_days" validate:"gte=0"`

	// SingleFlight rejects a new backup while another one is active.
	SingleFlight bool `koanf:"single_flight"`

	// DrainTimeout bounds how long shutdown waits for running jobs.
	DrainTimeout time.Duration `koanf:"drain_timeout" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host             string        `koanf:"host"`
	Port             int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	TriggerRateLimit int           `koanf:"trigger_rate_limit" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// EngineTag returns the archive engine tag.
func (c *Config) EngineTag() string {
	if c.Backup.Engine != "" {
		return c.Backup.Engine
	}
	return c.Store.Driver
}
