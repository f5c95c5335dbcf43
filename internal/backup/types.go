// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"errors"
	"time"

	"github.com/tomtom215/tablesnap/internal/remote"
)

var (
	// ErrBackupInProgress is returned by StartBackup in single-flight mode
	// while another job is active.
	ErrBackupInProgress = errors.New("a backup is already in progress")

	// ErrManagerClosed is returned by StartBackup after shutdown began.
	ErrManagerClosed = errors.New("backup manager is shutting down")

	// ErrCompressionTimeout is returned when compression exceeds its limit.
	ErrCompressionTimeout = errors.New("compression timed out")

	// ErrNoArchiveStats is returned by GetBackupDiff for archives stored
	// without per-table statistics.
	ErrNoArchiveStats = errors.New("archive has no table statistics")
)

// JobType identifies what triggered a job.
type JobType string

// Job types.
const (
	JobTypeFull      JobType = "full"
	JobTypeScheduled JobType = "scheduled"
)

// IsValid reports whether t is a known job type.
func (t JobType) IsValid() bool {
	return t == JobTypeFull || t == JobTypeScheduled
}

// JobStatus is the state of a job.
type JobStatus string

// Job states.
const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusUploading JobStatus = "uploading"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions can happen.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsActive reports whether the job is doing work.
func (s JobStatus) IsActive() bool {
	return s == StatusRunning || s == StatusUploading
}

// TableStat is the row count and content hash of one table.
type TableStat = remote.TableStat

// Archive is the artifact produced by one successful export.
type Archive struct {
	Filename   string               `json:"filename"`
	Path       string               `json:"path"`
	Checksum   string               `json:"checksum"`
	SizeBytes  int64                `json:"size_bytes"`
	DurationMs int64                `json:"duration_ms"`
	Tables     []string             `json:"tables"`
	Stats      map[string]TableStat `json:"stats"`
}

// JobResult is attached to a completed job.
type JobResult struct {
	Archive
	RemoteID string `json:"remote_id,omitempty"`
	WebLink  string `json:"web_link,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
}

// Job is a snapshot of one backup run.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      *JobResult `json:"result,omitempty"`
}

// clone returns a copy that shares nothing mutable with j.
func (j *Job) clone() Job {
	c := *j
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return c
}

// LogEntry is one line of user-facing progress text.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Step names reported through Progress.
const (
	StepExport   = "export"
	StepCompress = "compress"
	StepVerify   = "verify"
	StepChecksum = "checksum"
	StepDone     = "done"
	StepDedup    = "dedup"
	StepUpload   = "upload"
)

// Progress is one progress report from the pipeline.
type Progress struct {
	Step    string `json:"step"`
	Percent int    `json:"progress"`
	Message string `json:"message"`
}

// ProgressFunc receives progress reports.
type ProgressFunc func(Progress)

// DiffStatus classifies one table in a diff.
type DiffStatus string

// Diff statuses. Matching tables are not reported.
const (
	DiffMissingRemote   DiffStatus = "missing_remote"
	DiffMissingLocal    DiffStatus = "missing_local"
	DiffCountMismatch   DiffStatus = "count_mismatch"
	DiffContentMismatch DiffStatus = "content_mismatch"
	DiffMatch           DiffStatus = "match"
)

// DiffRow is one differing table.
type DiffRow struct {
	Table       string     `json:"table"`
	Status      DiffStatus `json:"status"`
	LocalCount  int64      `json:"local_count"`
	RemoteCount int64      `json:"remote_count"`
	LocalHash   string     `json:"local_hash,omitempty"`
	RemoteHash  string     `json:"remote_hash,omitempty"`
}
