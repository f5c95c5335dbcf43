// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
manager.go - Job Manager

The Manager owns the job lifecycle. StartBackup registers a job, moves it
to running and hands it to a dedicated goroutine; the caller gets a
snapshot back immediately and never waits for the pipeline.

Job state lives in a JobStore owned by the Manager. Only the job's own
goroutine changes a job after it starts, through progress and the
terminal transitions in pipeline.go.

Concurrency:
Jobs do not exclude each other unless Config.SingleFlight is set, in which
case StartBackup fails with ErrBackupInProgress while a job is active.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
	"github.com/tomtom215/tablesnap/internal/remote"
	"github.com/tomtom215/tablesnap/internal/store"
)

// RemoteStore is the archive destination. *remote.Client satisfies it.
type RemoteStore interface {
	Upload(ctx context.Context, localPath, filename string, meta remote.ArchiveMetadata) (*remote.UploadResult, error)
	ListRecent(ctx context.Context, limit int) ([]remote.ArchiveInfo, error)
	GetMetadata(ctx context.Context, remoteID string) (*remote.ArchiveMetadata, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Manager runs backup jobs.
type Manager struct {
	cfg      Config
	store    store.Store
	remote   RemoteStore
	exporter *Exporter

	jobs   *JobStore
	logs   *LogBuffer
	events *broadcaster

	now   func() time.Time
	newID func() string

	// baseCtx is the parent of every job context. It is cancelled only
	// when shutdown gives up waiting.
	baseCtx    context.Context
	cancelJobs context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager and its work directory.
func NewManager(cfg Config, st store.Store, rs RemoteStore) (*Manager, error) {
	if st == nil {
		return nil, errors.New("backup: store is required")
	}
	if rs == nil {
		return nil, errors.New("backup: remote store is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.ensureWorkDir(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		store:      st,
		remote:     rs,
		exporter:   NewExporter(st, cfg.Engine, cfg.PageSize),
		jobs:       NewJobStore(cfg.HistoryLimit),
		logs:       NewLogBuffer(cfg.LogCapacity),
		events:     newBroadcaster(),
		now:        time.Now,
		newID:      newJobID,
		baseCtx:    ctx,
		cancelJobs: cancel,
	}
	m.exporter.now = func() time.Time { return m.now() }
	return m, nil
}

// newJobID returns a time-ordered UUIDv7.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// StartBackup registers a job and starts it in the background. The
// returned snapshot is already running.
func (m *Manager) StartBackup(jobType JobType) (*Job, error) {
	if !jobType.IsValid() {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if m.cfg.SingleFlight && m.jobs.Running() {
		m.mu.Unlock()
		return nil, ErrBackupInProgress
	}
	job := Job{
		ID:          m.newID(),
		Type:        jobType,
		Status:      StatusPending,
		CurrentStep: "Queued",
		StartedAt:   m.now().UTC(),
	}
	m.jobs.Add(job)
	m.wg.Add(1)
	m.mu.Unlock()

	ctx := logging.ContextWithJobID(m.baseCtx, job.ID)
	snapshot, _ := m.jobs.Update(job.ID, func(j *Job) {
		j.Status = StatusRunning
		j.CurrentStep = "Starting backup"
	})
	m.events.publish(snapshot)
	m.appendLog(ctx, fmt.Sprintf("Backup %s started (%s)", job.ID, jobType))
	metrics.BackupActiveJobs.Inc()

	go m.run(ctx, job.ID)
	return &snapshot, nil
}

// GetCurrentJobs returns the active jobs, including terminal ones that
// have not been cleaned up yet.
func (m *Manager) GetCurrentJobs() []Job {
	return m.jobs.Active()
}

// GetJobHistory returns terminal jobs in completion order.
func (m *Manager) GetJobHistory() []Job {
	return m.jobs.History()
}

// GetLogs returns up to limit recent log entries, oldest first.
func (m *Manager) GetLogs(limit int) []LogEntry {
	return m.logs.Recent(limit)
}

// ListRemoteArchives returns the newest remote archives.
func (m *Manager) ListRemoteArchives(ctx context.Context, limit int) ([]remote.ArchiveInfo, error) {
	return m.remote.ListRecent(ctx, limit)
}

// Subscribe returns a channel of job snapshots and a function that ends
// the subscription. The channel is closed on shutdown.
func (m *Manager) Subscribe() (<-chan Job, func()) {
	return m.events.subscribe()
}

// Shutdown stops accepting jobs and waits for running ones. If ctx ends
// first the remaining jobs are cancelled and awaited.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn().Msg("Backup jobs still running at shutdown, cancelling")
		m.cancelJobs()
		<-done
		err = ctx.Err()
	}
	m.cancelJobs()
	m.events.close()
	return err
}

// progress records a pipeline report on the job. Reaching StepDone moves
// the job to uploading; it stays there until a terminal transition.
func (m *Manager) progress(ctx context.Context, id string, p Progress) {
	snapshot, ok := m.jobs.Update(id, func(j *Job) {
		j.Progress = p.Percent
		j.CurrentStep = p.Message
		if p.Step == StepDone {
			j.Status = StatusUploading
		}
	})
	if !ok {
		return
	}
	m.events.publish(snapshot)
	m.appendLog(ctx, p.Message)
}

// appendLog adds a line to the shared log and the process log.
func (m *Manager) appendLog(ctx context.Context, message string) {
	m.logs.Append(m.now().UTC(), message)
	logging.Ctx(ctx).Info().Str("component", "backup").Msg(message)
}

// scheduleCleanup drops a terminal job from the active set after the
// configured delay.
func (m *Manager) scheduleCleanup(id string) {
	if m.cfg.JobCleanupDelay <= 0 {
		m.jobs.Remove(id)
		return
	}
	time.AfterFunc(m.cfg.JobCleanupDelay, func() {
		m.jobs.Remove(id)
	})
}
