// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/tablesnap/internal/config"
	"github.com/tomtom215/tablesnap/internal/remote"
	"github.com/tomtom215/tablesnap/internal/remote/drive"
	"github.com/tomtom215/tablesnap/internal/remote/localfs"
	"github.com/tomtom215/tablesnap/internal/remote/s3store"
)

// maxRetryAfter caps how long a single Retry-After hint may hold a call.
const maxRetryAfter = 5 * time.Minute

// newBackend builds the configured remote backend.
func newBackend(ctx context.Context, cfg *config.Config) (remote.Backend, error) {
	switch cfg.Remote.Provider {
	case "drive":
		b, err := drive.New(ctx, drive.Config{
			FolderID:        cfg.Remote.Drive.FolderID,
			CredentialsFile: cfg.Remote.Drive.CredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create drive backend: %w", err)
		}
		return b, nil
	case "s3":
		return s3store.New(s3store.Config{
			Endpoint:     cfg.Remote.S3.Endpoint,
			Bucket:       cfg.Remote.S3.Bucket,
			Region:       cfg.Remote.S3.Region,
			AccessKey:    cfg.Remote.S3.AccessKey,
			SecretKey:    cfg.Remote.S3.SecretKey,
			Prefix:       cfg.Remote.S3.Prefix,
			UsePathStyle: cfg.Remote.S3.UsePathStyle,
		}), nil
	case "local":
		b, err := localfs.New(cfg.Remote.Local.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local backend: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown remote provider %q", cfg.Remote.Provider)
	}
}

// clientOptions maps configuration onto remote.ClientOptions.
func clientOptions(cfg *config.Config, backendName string) remote.ClientOptions {
	return remote.ClientOptions{
		Policy: remote.Policy{
			MaxAttempts:         cfg.Retry.MaxAttempts,
			InitialInterval:     cfg.Retry.InitialInterval,
			MaxInterval:         cfg.Retry.MaxInterval,
			Multiplier:          cfg.Retry.Multiplier,
			RandomizationFactor: cfg.Retry.RandomizationFactor,
			MaxRetryAfter:       maxRetryAfter,
		},
		Breaker: remote.BreakerSettings{
			Name:         "remote-" + backendName,
			MaxRequests:  cfg.Breaker.MaxRequests,
			Interval:     cfg.Breaker.Interval,
			Timeout:      cfg.Breaker.Timeout,
			MinRequests:  cfg.Breaker.MinRequests,
			FailureRatio: cfg.Breaker.FailureRatio,
		},
		RateLimit: cfg.Remote.RateLimitPerSecond,
		RateBurst: cfg.Remote.RateLimitBurst,

		MetadataCacheSize: cfg.Remote.MetadataCacheSize,
		MetadataCacheTTL:  cfg.Remote.MetadataCacheTTL,
	}
}
