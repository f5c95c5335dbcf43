// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"fmt"
	"os"
	"time"
)

// Config configures the Manager.
type Config struct {
	// WorkDir holds temporary exports and archives kept after a failed
	// upload.
	WorkDir string

	// Engine is written into the archive header.
	Engine string

	PageSize           int
	CompressionLevel   int
	CompressionTimeout time.Duration

	// JobCleanupDelay is how long a terminal job stays in the active set.
	JobCleanupDelay time.Duration

	LogCapacity  int
	HistoryLimit int

	// RetentionDays deletes older remote archives after each upload.
	// Zero disables the sweep.
	RetentionDays int

	// SingleFlight rejects StartBackup while a job is active.
	SingleFlight bool

	// DrainTimeout bounds how long shutdown waits for in-flight jobs
	// before cancelling them.
	DrainTimeout time.Duration
}

// DefaultConfig returns the defaults used when fields are left zero.
func DefaultConfig() Config {
	return Config{
		WorkDir:            "/data/backups/tmp",
		PageSize:           1000,
		CompressionLevel:   6,
		CompressionTimeout: 60 * time.Second,
		JobCleanupDelay:    5 * time.Second,
		LogCapacity:        500,
		HistoryLimit:       100,
		DrainTimeout:       30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultConfig. JobCleanupDelay and
// the counters that allow zero keep their value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WorkDir == "" {
		c.WorkDir = d.WorkDir
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = d.CompressionLevel
	}
	if c.CompressionTimeout <= 0 {
		c.CompressionTimeout = d.CompressionTimeout
	}
	if c.LogCapacity <= 0 {
		c.LogCapacity = d.LogCapacity
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	return c
}

// ensureWorkDir creates the work directory.
func (c Config) ensureWorkDir() error {
	if err := os.MkdirAll(c.WorkDir, 0o750); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	return nil
}
