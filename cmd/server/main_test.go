// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/tablesnap/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DSN: ":memory:", PageSize: 250},
		Remote: config.RemoteConfig{
			Provider:           "local",
			RateLimitPerSecond: 2,
			RateLimitBurst:     4,
			MetadataCacheSize:  -1,
			Local:              config.LocalConfig{Dir: filepath.Join(t.TempDir(), "archives")},
		},
		Retry: config.RetryConfig{
			MaxAttempts:         4,
			InitialInterval:     time.Second,
			MaxInterval:         time.Minute,
			Multiplier:          2,
			RandomizationFactor: 0.25,
		},
		Breaker: config.BreakerConfig{MaxRequests: 1, Timeout: time.Minute, MinRequests: 3, FailureRatio: 0.5},
		Backup: config.BackupConfig{
			WorkDir:          t.TempDir(),
			CompressionLevel: 4,
			RetentionDays:    14,
			SingleFlight:     true,
			DrainTimeout:     time.Minute,
		},
		Server: config.ServerConfig{CORSOrigins: []string{"https://ops.example"}, TriggerRateLimit: 2},
	}
}

func TestNewBackend(t *testing.T) {
	cfg := testConfig(t)

	b, err := newBackend(context.Background(), cfg)
	if err != nil {
		t.Fatalf("newBackend(local): %v", err)
	}
	if b.Name() != "local" {
		t.Errorf("Name() = %q, want local", b.Name())
	}

	cfg.Remote.Provider = "s3"
	cfg.Remote.S3 = config.S3Config{Bucket: "backups", Region: "us-east-1", AccessKey: "k", SecretKey: "s"}
	if b, err := newBackend(context.Background(), cfg); err != nil || b.Name() != "s3" {
		t.Errorf("newBackend(s3) = %v, %v", b, err)
	}

	cfg.Remote.Provider = "drive"
	cfg.Remote.Drive.FolderID = ""
	if _, err := newBackend(context.Background(), cfg); err == nil {
		t.Error("drive without folder id accepted")
	}

	cfg.Remote.Provider = "ftp"
	if _, err := newBackend(context.Background(), cfg); err == nil {
		t.Error("unknown provider accepted")
	}
}

func TestClientOptions(t *testing.T) {
	opts := clientOptions(testConfig(t), "local")

	if opts.Policy.MaxAttempts != 4 || opts.Policy.InitialInterval != time.Second || opts.Policy.MaxRetryAfter != maxRetryAfter {
		t.Errorf("policy = %+v", opts.Policy)
	}
	if opts.Breaker.Name != "remote-local" || opts.Breaker.MinRequests != 3 || opts.Breaker.FailureRatio != 0.5 {
		t.Errorf("breaker = %+v", opts.Breaker)
	}
	if opts.RateLimit != 2 || opts.RateBurst != 4 {
		t.Errorf("rate = %v/%d", opts.RateLimit, opts.RateBurst)
	}
	if opts.MetadataCacheSize != -1 {
		t.Errorf("MetadataCacheSize = %d, want -1", opts.MetadataCacheSize)
	}
}

func TestBackupConfig(t *testing.T) {
	cfg := testConfig(t)

	bc := backupConfig(cfg, "sqlite")
	if bc.Engine != "sqlite" {
		t.Errorf("Engine = %q, want store engine", bc.Engine)
	}
	if bc.PageSize != 250 || bc.CompressionLevel != 4 || bc.RetentionDays != 14 || !bc.SingleFlight || bc.DrainTimeout != time.Minute {
		t.Errorf("backup config = %+v", bc)
	}

	cfg.Backup.Engine = "app-primary"
	if got := backupConfig(cfg, "sqlite").Engine; got != "app-primary" {
		t.Errorf("Engine = %q, want override", got)
	}
}

func TestMiddlewareConfig(t *testing.T) {
	mw := middlewareConfig(testConfig(t))
	if len(mw.CORSAllowedOrigins) != 1 || mw.CORSAllowedOrigins[0] != "https://ops.example" {
		t.Errorf("origins = %v", mw.CORSAllowedOrigins)
	}
	if mw.TriggerRequests != 2 || mw.TriggerWindow != time.Minute {
		t.Errorf("trigger limit = %d/%v", mw.TriggerRequests, mw.TriggerWindow)
	}
}
