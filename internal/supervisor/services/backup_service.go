// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tablesnap/internal/logging"
)

// BackupManager is the shutdown side of the backup Job Manager.
type BackupManager interface {
	// Shutdown refuses new jobs and waits for running ones until ctx ends,
	// then cancels them.
	Shutdown(ctx context.Context) error
}

// BackupManagerService ties a BackupManager's lifetime to the supervisor.
// Jobs run on their own goroutines; this service only drains them when
// the process stops.
type BackupManagerService struct {
	manager      BackupManager
	drainTimeout time.Duration
	name         string
}

// NewBackupManagerService wraps manager. drainTimeout defaults to 30s.
func NewBackupManagerService(manager BackupManager, drainTimeout time.Duration) *BackupManagerService {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &BackupManagerService{
		manager:      manager,
		drainTimeout: drainTimeout,
		name:         "backup-manager",
	}
}

// Serve implements suture.Service. It blocks until ctx is cancelled, then
// drains the manager.
func (s *BackupManagerService) Serve(ctx context.Context) error {
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	log := logging.WithComponent(s.name)
	start := time.Now()
	if err := s.manager.Shutdown(drainCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("drain_timeout", s.drainTimeout).Msg("Backup jobs cancelled after drain timeout")
		}
		return fmt.Errorf("backup manager shutdown failed: %w", err)
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("Backup manager drained")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logging.
func (s *BackupManagerService) String() string {
	return s.name
}
