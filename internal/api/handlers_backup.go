// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tablesnap/internal/backup"
	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/remote"
)

const (
	defaultLogLimit    = 100
	defaultRemoteLimit = 10
)

// startBackupRequest is the optional body of POST /backups.
type startBackupRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=full scheduled"`
}

type logsQuery struct {
	Limit int `validate:"min=1,max=1000"`
}

type remoteQuery struct {
	Limit int `validate:"min=1,max=100"`
}

type diffResponse struct {
	RemoteID string           `json:"remote_id"`
	Tables   []backup.DiffRow `json:"tables"`
	InSync   bool             `json:"in_sync"`
}

// StartBackup handles POST /api/v1/backups. The job runs in the
// background; the response carries its initial snapshot.
func (h *Handler) StartBackup(w http.ResponseWriter, r *http.Request) {
	var req startBackupRequest
	if r.Body != nil {
		if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Request body must be JSON", nil)
			return
		}
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	jobType := backup.JobTypeFull
	if req.Type != "" {
		jobType = backup.JobType(req.Type)
	}

	job, err := h.backups.StartBackup(jobType)
	if err != nil {
		switch {
		case errors.Is(err, backup.ErrBackupInProgress):
			respondError(w, http.StatusConflict, "BACKUP_IN_PROGRESS", "A backup is already running", nil)
		case errors.Is(err, backup.ErrManagerClosed):
			respondError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down", nil)
		default:
			respondError(w, http.StatusInternalServerError, "BACKUP_START_FAILED", "Failed to start backup", err)
		}
		return
	}

	logging.Ctx(r.Context()).Info().Str("job_id", job.ID).Str("type", string(job.Type)).Msg("Backup triggered via API")
	respondSuccess(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/v1/backups/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := h.backups.GetCurrentJobs()
	respondList(w, jobs, len(jobs))
}

// JobHistory handles GET /api/v1/backups/history.
func (h *Handler) JobHistory(w http.ResponseWriter, _ *http.Request) {
	jobs := h.backups.GetJobHistory()
	respondList(w, jobs, len(jobs))
}

// Logs handles GET /api/v1/backups/logs?limit=N.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	q := logsQuery{Limit: getIntParam(r, "limit", defaultLogLimit)}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	entries := h.backups.GetLogs(q.Limit)
	respondList(w, entries, len(entries))
}

// RemoteArchives handles GET /api/v1/backups/remote?limit=N.
func (h *Handler) RemoteArchives(w http.ResponseWriter, r *http.Request) {
	q := remoteQuery{Limit: getIntParam(r, "limit", defaultRemoteLimit)}
	if apiErr := validateRequest(&q); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}

	archives, err := h.backups.ListRemoteArchives(r.Context(), q.Limit)
	if err != nil {
		respondRemoteError(w, err)
		return
	}
	respondList(w, archives, len(archives))
}

// BackupDiff handles GET /api/v1/backups/remote/{remoteID}/diff. It scans
// every live table, so it costs as much as an export.
func (h *Handler) BackupDiff(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "remoteID")
	if remoteID == "" {
		respondError(w, http.StatusBadRequest, "MISSING_ID", "Remote archive id is required", nil)
		return
	}

	rows, err := h.backups.GetBackupDiff(r.Context(), remoteID)
	if err != nil {
		if errors.Is(err, backup.ErrNoArchiveStats) {
			respondError(w, http.StatusUnprocessableEntity, "NO_ARCHIVE_STATS", "Archive has no table statistics to compare", nil)
			return
		}
		respondRemoteError(w, err)
		return
	}

	if rows == nil {
		rows = []backup.DiffRow{}
	}
	respondSuccess(w, http.StatusOK, diffResponse{
		RemoteID: remoteID,
		Tables:   rows,
		InSync:   len(rows) == 0,
	})
}

// respondRemoteError maps a classified remote failure onto the envelope.
// A remote 404 stays a 404; every other remote failure is a bad gateway.
func respondRemoteError(w http.ResponseWriter, err error) {
	apiErr, ok := remote.AsAPIError(err)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", err)
		return
	}

	status := http.StatusBadGateway
	code := "REMOTE_ERROR"
	switch {
	case apiErr.Code == http.StatusNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case apiErr.Reason == remote.ReasonCircuitOpen:
		status, code = http.StatusServiceUnavailable, "REMOTE_UNAVAILABLE"
	}

	logging.Warn().Int("code", apiErr.Code).Str("reason", apiErr.Reason).Str("domain", apiErr.Domain).Msg("Remote store request failed")
	respondAPIError(w, status, &APIError{
		Code:    code,
		Message: apiErr.Message,
		Details: map[string]interface{}{
			"remote_code": apiErr.Code,
			"reason":      apiErr.Reason,
			"domain":      apiErr.Domain,
		},
	})
}
