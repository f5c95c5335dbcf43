// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/tablesnap/internal/backup"
	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
)

const wsWriteTimeout = 10 * time.Second

// Events handles GET /api/v1/backups/events as a Server-Sent Events stream.
// Each job update is sent as "event: job" with the job JSON as data. The
// current active jobs are sent first so a late subscriber still sees them.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming is not supported", nil)
		return
	}

	updates, cancel := h.backups.Subscribe()
	defer cancel()

	metrics.APIStreamSubscribers.Inc()
	defer metrics.APIStreamSubscribers.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, job := range h.backups.GetCurrentJobs() {
		if err := writeSSEJob(w, job); err != nil {
			return
		}
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case job, open := <-updates:
			if !open {
				return
			}
			if err := writeSSEJob(w, job); err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("SSE client went away")
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEJob(w http.ResponseWriter, job backup.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: job\ndata: %s\n\n", data)
	return err
}

// WebSocket handles GET /api/v1/backups/ws. It streams the same job
// snapshots as Events, one JSON text message per update. Client messages
// are read and discarded so close frames are noticed.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.backups.Subscribe()
	defer cancel()

	metrics.APIStreamSubscribers.Inc()
	defer metrics.APIStreamSubscribers.Dec()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, job := range h.backups.GetCurrentJobs() {
		if err := writeWSJob(conn, job); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case job, open := <-updates:
			if !open {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
				return
			}
			if err := writeWSJob(conn, job); err != nil {
				logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket client went away")
				return
			}
		case <-heartbeat.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func writeWSJob(conn *websocket.Conn, job backup.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
