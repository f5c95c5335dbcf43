// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tablesnap/config.yaml",
	"/etc/tablesnap/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// sliceConfigPaths may be given as comma-separated env values.
var sliceConfigPaths = []string{"server.cors_origins"}

func defaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:   "duckdb",
			DSN:      "/data/tablesnap.duckdb",
			PageSize: 1000,
		},
		Remote: RemoteConfig{
			Provider:           "drive",
			ListPageSize:       10,
			RateLimitPerSecond: 5,
			RateLimitBurst:     10,
			MetadataCacheSize:  256,
			MetadataCacheTTL:   time.Hour,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "backups/",
			},
			Local: LocalConfig{Dir: "/data/backups/archive"},
		},
		Retry: RetryConfig{
			MaxAttempts:         3,
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         30 * time.Second,
			Multiplier:          2.0,
			RandomizationFactor: 0.5,
		},
		Breaker: BreakerConfig{
			MaxRequests:  3,
			Interval:     time.Minute,
			Timeout:      2 * time.Minute,
			MinRequests:  5,
			FailureRatio: 0.6,
		},
		Backup: BackupConfig{
			WorkDir:            "/data/backups/tmp",
			CompressionLevel:   6,
			CompressionTimeout: 60 * time.Second,
			JobCleanupDelay:    5 * time.Second,
			LogCapacity:        500,
			HistoryLimit:       100,
			DrainTimeout:       30 * time.Second,
		},
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			ShutdownTimeout:  30 * time.Second,
			CORSOrigins:      []string{"*"},
			TriggerRateLimit: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		values := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				values = append(values, p)
			}
		}
		if err := k.Set(path, values); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"store_driver":    "store.driver",
	"store_dsn":       "store.dsn",
	"store_page_size": "store.page_size",

	"remote_provider":              "remote.provider",
	"remote_list_page_size":        "remote.list_page_size",
	"remote_rate_limit_per_second": "remote.rate_limit_per_second",
	"remote_rate_limit_burst":      "remote.rate_limit_burst",
	"remote_metadata_cache_size":   "remote.metadata_cache_size",
	"remote_metadata_cache_ttl":    "remote.metadata_cache_ttl",

	"drive_folder_id":                "remote.drive.folder_id",
	"google_application_credentials": "remote.drive.credentials_file",

	"s3_endpoint":       "remote.s3.endpoint",
	"s3_bucket":         "remote.s3.bucket",
	"s3_region":         "remote.s3.region",
	"s3_access_key":     "remote.s3.access_key",
	"s3_secret_key":     "remote.s3.secret_key",
	"s3_prefix":         "remote.s3.prefix",
	"s3_use_path_style": "remote.s3.use_path_style",

	"local_backup_dir": "remote.local.dir",

	"retry_max_attempts":         "retry.max_attempts",
	"retry_initial_interval":     "retry.initial_interval",
	"retry_max_interval":         "retry.max_interval",
	"retry_multiplier":           "retry.multiplier",
	"retry_randomization_factor": "retry.randomization_factor",

	"breaker_max_requests":  "breaker.max_requests",
	"breaker_interval":      "breaker.interval",
	"breaker_timeout":       "breaker.timeout",
	"breaker_min_requests":  "breaker.min_requests",
	"breaker_failure_ratio": "breaker.failure_ratio",

	"backup_work_dir":            "backup.work_dir",
	"backup_engine":              "backup.engine",
	"backup_compression_level":   "backup.compression_level",
	"backup_compression_timeout": "backup.compression_timeout",
	"backup_job_cleanup_delay":   "backup.job_cleanup_delay",
	"backup_log_capacity":        "backup.log_capacity",
	"backup_history_limit":       "backup.history_limit",
	"backup_retention_days":      "backup.retention_days",
	"backup_drain_timeout":       "backup.drain_timeout",
	"backup_single_flight":       "backup.single_flight",

	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"http_write_timeout":      "server.write_timeout",
	"http_shutdown_timeout":   "server.shutdown_timeout",
	"cors_origins":            "server.cors_origins",
	"backup_trigger_rate_max": "server.trigger_rate_limit",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to a koanf path.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
