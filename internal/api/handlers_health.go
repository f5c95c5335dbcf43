// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package api

import (
	"net/http"
	"time"
)

// LiveStatus is the liveness payload.
type LiveStatus struct {
	Status     string            `json:"status"`
	Uptime     float64           `json:"uptime_seconds"`
	ActiveJobs int               `json:"active_jobs"`
	Remote     *RemoteLiveStatus `json:"remote,omitempty"`
}

// RemoteLiveStatus describes the remote store client.
type RemoteLiveStatus struct {
	Backend string `json:"backend"`
	Breaker string `json:"circuit_breaker"`
}

// HealthLive handles GET /api/v1/health/live. It reports that the process
// is serving requests; an open breaker is informational and still 200.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	status := LiveStatus{
		Status:     "alive",
		Uptime:     time.Since(h.startTime).Seconds(),
		ActiveJobs: len(h.backups.GetCurrentJobs()),
	}
	if h.remote != nil {
		status.Remote = &RemoteLiveStatus{
			Backend: h.remote.Backend(),
			Breaker: h.remote.BreakerState(),
		}
	}
	respondSuccess(w, http.StatusOK, status)
}
