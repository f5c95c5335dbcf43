// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/tablesnap/internal/backup"
	"github.com/tomtom215/tablesnap/internal/metrics"
	"github.com/tomtom215/tablesnap/internal/remote"
)

type fakeBackups struct {
	mu sync.Mutex

	startErr   error
	started    []backup.JobType
	current    []backup.Job
	history    []backup.Job
	logs       []backup.LogEntry
	logLimit   int
	archives   []remote.ArchiveInfo
	remoteErr  error
	diffRows   []backup.DiffRow
	diffErr    error
	diffTarget string

	updates chan backup.Job
}

func newFakeBackups() *fakeBackups {
	return &fakeBackups{updates: make(chan backup.Job, 8)}
}

func (f *fakeBackups) StartBackup(jobType backup.JobType) (*backup.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, jobType)
	return &backup.Job{
		ID:        fmt.Sprintf("job-%d", len(f.started)),
		Type:      jobType,
		Status:    backup.StatusRunning,
		StartedAt: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}, nil
}

func (f *fakeBackups) GetCurrentJobs() []backup.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backup.Job(nil), f.current...)
}

func (f *fakeBackups) GetJobHistory() []backup.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backup.Job(nil), f.history...)
}

func (f *fakeBackups) GetLogs(limit int) []backup.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logLimit = limit
	return f.logs
}

func (f *fakeBackups) ListRemoteArchives(_ context.Context, _ int) ([]remote.ArchiveInfo, error) {
	if f.remoteErr != nil {
		return nil, f.remoteErr
	}
	return f.archives, nil
}

func (f *fakeBackups) GetBackupDiff(_ context.Context, remoteID string) ([]backup.DiffRow, error) {
	f.mu.Lock()
	f.diffTarget = remoteID
	f.mu.Unlock()
	if f.diffErr != nil {
		return nil, f.diffErr
	}
	return f.diffRows, nil
}

func (f *fakeBackups) Subscribe() (<-chan backup.Job, func()) {
	return f.updates, func() {}
}

type testEnvelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Count *int `json:"count"`
	} `json:"metadata"`
	Error *APIError `json:"error"`
}

func newTestRouter(t *testing.T, svc BackupService, cfg *ChiMiddlewareConfig) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = DefaultChiMiddlewareConfig()
		cfg.TriggerRequests = 0
	}
	return NewRouter(NewHandler(svc, []string{"http://example.com"}), NewChiMiddleware(cfg)).SetupChi()
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestStartBackup(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		startErr   error
		wantStatus int
		wantCode   string
		wantType   backup.JobType
	}{
		{name: "no body starts full", wantStatus: http.StatusAccepted, wantType: backup.JobTypeFull},
		{name: "explicit type", body: `{"type":"scheduled"}`, wantStatus: http.StatusAccepted, wantType: backup.JobTypeScheduled},
		{name: "invalid type", body: `{"type":"partial"}`, wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_ERROR"},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_REQUEST"},
		{name: "in progress", startErr: backup.ErrBackupInProgress, wantStatus: http.StatusConflict, wantCode: "BACKUP_IN_PROGRESS"},
		{name: "closed", startErr: backup.ErrManagerClosed, wantStatus: http.StatusServiceUnavailable, wantCode: "SHUTTING_DOWN"},
		{name: "other error", startErr: errors.New("disk gone"), wantStatus: http.StatusInternalServerError, wantCode: "BACKUP_START_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeBackups()
			svc.startErr = tt.startErr
			h := newTestRouter(t, svc, nil)

			rec, env := doRequest(t, h, http.MethodPost, "/api/v1/backups", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Fatalf("error = %+v, want code %s", env.Error, tt.wantCode)
				}
				if len(svc.started) != 0 {
					t.Errorf("started %v, want none", svc.started)
				}
				return
			}

			var job backup.Job
			if err := json.Unmarshal(env.Data, &job); err != nil {
				t.Fatalf("decode job: %v", err)
			}
			if job.Type != tt.wantType || job.Status != backup.StatusRunning {
				t.Errorf("job = %+v", job)
			}
			if len(svc.started) != 1 || svc.started[0] != tt.wantType {
				t.Errorf("started = %v", svc.started)
			}
		})
	}
}

func TestStartBackupRateLimited(t *testing.T) {
	svc := newFakeBackups()
	cfg := DefaultChiMiddlewareConfig()
	cfg.TriggerRequests = 1
	h := newTestRouter(t, svc, cfg)

	if rec, _ := doRequest(t, h, http.MethodPost, "/api/v1/backups", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d", rec.Code)
	}
	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/backups", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger status = %d, want 429", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("error = %+v", env.Error)
	}

	// Reads are not limited.
	if rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/backups/jobs", ""); rec.Code != http.StatusOK {
		t.Errorf("jobs status = %d", rec.Code)
	}
}

func TestJobListings(t *testing.T) {
	svc := newFakeBackups()
	svc.current = []backup.Job{{ID: "a", Status: backup.StatusUploading, Progress: 90}}
	svc.history = []backup.Job{
		{ID: "b", Status: backup.StatusCompleted, Progress: 100},
		{ID: "c", Status: backup.StatusFailed, Error: "boom"},
	}
	h := newTestRouter(t, svc, nil)

	tests := []struct {
		path    string
		wantIDs []string
	}{
		{"/api/v1/backups/jobs", []string{"a"}},
		{"/api/v1/backups/history", []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec, env := doRequest(t, h, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK || env.Status != "success" {
				t.Fatalf("status = %d %q", rec.Code, env.Status)
			}
			var jobs []backup.Job
			if err := json.Unmarshal(env.Data, &jobs); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(jobs) != len(tt.wantIDs) {
				t.Fatalf("got %d jobs, want %d", len(jobs), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if jobs[i].ID != id {
					t.Errorf("jobs[%d].ID = %q, want %q", i, jobs[i].ID, id)
				}
			}
			if env.Metadata.Count == nil || *env.Metadata.Count != len(tt.wantIDs) {
				t.Errorf("metadata count = %v", env.Metadata.Count)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
			}
		})
	}
}

func TestLogsLimit(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
	}{
		{name: "default", query: "", wantStatus: http.StatusOK, wantLimit: defaultLogLimit},
		{name: "explicit", query: "?limit=5", wantStatus: http.StatusOK, wantLimit: 5},
		{name: "zero", query: "?limit=0", wantStatus: http.StatusBadRequest},
		{name: "too large", query: "?limit=5000", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "?limit=ten", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeBackups()
			svc.logs = []backup.LogEntry{{Message: "Backup job-1 started (full)"}}
			h := newTestRouter(t, svc, nil)

			rec, env := doRequest(t, h, http.MethodGet, "/api/v1/backups/logs"+tt.query, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
					t.Errorf("error = %+v", env.Error)
				}
				return
			}
			if svc.logLimit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", svc.logLimit, tt.wantLimit)
			}
		})
	}
}

func TestRemoteArchives(t *testing.T) {
	t.Run("lists", func(t *testing.T) {
		svc := newFakeBackups()
		svc.archives = []remote.ArchiveInfo{{RemoteID: "r1", Name: "tablesnap-backup-x.json.gz", CustomChecksum: "abc"}}
		h := newTestRouter(t, svc, nil)

		rec, env := doRequest(t, h, http.MethodGet, "/api/v1/backups/remote?limit=3", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var got []remote.ArchiveInfo
		if err := json.Unmarshal(env.Data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(got) != 1 || got[0].RemoteID != "r1" || got[0].CustomChecksum != "abc" {
			t.Errorf("archives = %+v", got)
		}
	})

	t.Run("remote failure", func(t *testing.T) {
		svc := newFakeBackups()
		svc.remoteErr = remote.Classify(errors.New("connection reset"))
		h := newTestRouter(t, svc, nil)

		rec, env := doRequest(t, h, http.MethodGet, "/api/v1/backups/remote", "")
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if env.Error == nil || env.Error.Code != "REMOTE_ERROR" {
			t.Errorf("error = %+v", env.Error)
		}
	})
}

func TestBackupDiff(t *testing.T) {
	notFound := &remote.APIError{Code: 404, Reason: remote.ReasonNotFound, Domain: "global", Message: "File not found"}
	circuitOpen := &remote.APIError{Code: 503, Reason: remote.ReasonCircuitOpen, Domain: "client", Message: "Remote storage is temporarily unavailable"}

	tests := []struct {
		name       string
		rows       []backup.DiffRow
		err        error
		wantStatus int
		wantCode   string
		wantInSync bool
	}{
		{name: "in sync", wantStatus: http.StatusOK, wantInSync: true},
		{
			name:       "drift",
			rows:       []backup.DiffRow{{Table: "orders", Status: backup.DiffCountMismatch, LocalCount: 3, RemoteCount: 2}},
			wantStatus: http.StatusOK,
		},
		{name: "no stats", err: backup.ErrNoArchiveStats, wantStatus: http.StatusUnprocessableEntity, wantCode: "NO_ARCHIVE_STATS"},
		{name: "unknown archive", err: fmt.Errorf("failed to read metadata: %w", notFound), wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "breaker open", err: circuitOpen, wantStatus: http.StatusServiceUnavailable, wantCode: "REMOTE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeBackups()
			svc.diffRows = tt.rows
			svc.diffErr = tt.err
			h := newTestRouter(t, svc, nil)

			rec, env := doRequest(t, h, http.MethodGet, "/api/v1/backups/remote/file-123/diff", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if svc.diffTarget != "file-123" {
				t.Errorf("diff target = %q", svc.diffTarget)
			}
			if tt.wantCode != "" {
				if env.Error == nil || env.Error.Code != tt.wantCode {
					t.Errorf("error = %+v, want %s", env.Error, tt.wantCode)
				}
				return
			}

			var got diffResponse
			if err := json.Unmarshal(env.Data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.InSync != tt.wantInSync || len(got.Tables) != len(tt.rows) || got.RemoteID != "file-123" {
				t.Errorf("diff = %+v", got)
			}
		})
	}
}

func TestHealthLive(t *testing.T) {
	svc := newFakeBackups()
	svc.current = []backup.Job{{ID: "a"}}
	h := newTestRouter(t, svc, nil)

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var live LiveStatus
	if err := json.Unmarshal(env.Data, &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if live.Status != "alive" || live.ActiveJobs != 1 {
		t.Errorf("live = %+v", live)
	}
	if live.Remote != nil {
		t.Errorf("remote = %+v, want omitted without a remote client", live.Remote)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

type fakeRemoteStatus struct{ state string }

func (f fakeRemoteStatus) Backend() string      { return "drive" }
func (f fakeRemoteStatus) BreakerState() string { return f.state }

func TestHealthLiveReportsBreakerState(t *testing.T) {
	handler := NewHandler(newFakeBackups(), []string{"http://example.com"})
	handler.SetRemoteStatus(fakeRemoteStatus{state: "open"})
	cfg := DefaultChiMiddlewareConfig()
	cfg.TriggerRequests = 0
	h := NewRouter(handler, NewChiMiddleware(cfg)).SetupChi()

	rec, env := doRequest(t, h, http.MethodGet, "/api/v1/health/live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var live LiveStatus
	if err := json.Unmarshal(env.Data, &live); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if live.Remote == nil || live.Remote.Backend != "drive" || live.Remote.Breaker != "open" {
		t.Errorf("remote = %+v", live.Remote)
	}
}

func TestRequestIDHeader(t *testing.T) {
	h := newTestRouter(t, newFakeBackups(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-42" {
		t.Errorf("X-Request-Id = %q, want req-42", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("generated request id missing")
	}
}

func TestAPIMetricsUsesRoutePattern(t *testing.T) {
	h := newTestRouter(t, newFakeBackups(), nil)
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/backups/remote/{remoteID}/diff", "200")
	before := testutil.ToFloat64(counter)

	doRequest(t, h, http.MethodGet, "/api/v1/backups/remote/a/diff", "")
	doRequest(t, h, http.MethodGet, "/api/v1/backups/remote/b/diff", "")

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(t, newFakeBackups(), nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "backup_active_jobs") {
		t.Error("backup collectors missing from /metrics")
	}
}
