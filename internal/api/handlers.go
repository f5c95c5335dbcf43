// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/tablesnap/internal/backup"
	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/remote"
)

// BackupService is the part of the Job Manager the HTTP layer drives.
type BackupService interface {
	StartBackup(jobType backup.JobType) (*backup.Job, error)
	GetCurrentJobs() []backup.Job
	GetJobHistory() []backup.Job
	GetLogs(limit int) []backup.LogEntry
	ListRemoteArchives(ctx context.Context, limit int) ([]remote.ArchiveInfo, error)
	GetBackupDiff(ctx context.Context, remoteID string) ([]backup.DiffRow, error)
	Subscribe() (<-chan backup.Job, func())
}

// RemoteStatus reports the health of the remote store client.
type RemoteStatus interface {
	Backend() string
	BreakerState() string
}

// Handler serves the backup API.
type Handler struct {
	backups     BackupService
	remote      RemoteStatus
	corsOrigins []string
	startTime   time.Time

	// heartbeat is the idle interval between SSE comments and WebSocket pings.
	heartbeat time.Duration
}

// NewHandler creates a Handler. corsOrigins also gate WebSocket upgrades.
func NewHandler(backups BackupService, corsOrigins []string) *Handler {
	return &Handler{
		backups:     backups,
		corsOrigins: corsOrigins,
		startTime:   time.Now(),
		heartbeat:   15 * time.Second,
	}
}

// SetRemoteStatus attaches the remote client reported by HealthLive.
func (h *Handler) SetRemoteStatus(rs RemoteStatus) {
	h.remote = rs
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Browsers always send Origin; an empty one would bypass CORS.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	for _, allowed := range h.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected: origin not allowed")
	return false
}
