// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/metrics"
	"github.com/tomtom215/tablesnap/internal/remote"
)

// archiveTimeLayout is used in archive file names.
const archiveTimeLayout = "2006-01-02T15-04-05.000Z"

// uploadError is an upload failure. The archive is kept at path.
type uploadError struct {
	path string
	err  error
}

func (e *uploadError) Error() string { return "upload failed: " + e.err.Error() }
func (e *uploadError) Unwrap() error { return e.err }

// archiveFilename derives the remote file name from the start time.
func archiveFilename(t time.Time) string {
	return "tablesnap-backup-" + t.UTC().Format(archiveTimeLayout) + ".json.gz"
}

// run executes one job and records its terminal state.
func (m *Manager) run(ctx context.Context, id string) {
	defer m.wg.Done()
	defer metrics.BackupActiveJobs.Dec()

	start := m.now()
	result, err := m.execute(ctx, id, start)
	duration := m.now().Sub(start)

	if err != nil {
		m.fail(ctx, id, err, duration)
	} else {
		m.complete(ctx, id, result, duration)
		if !result.Skipped {
			m.sweepRetention(ctx)
		}
	}
	m.scheduleCleanup(id)
}

// execute runs the pipeline. Temp files are removed on every path except
// a failed upload, which keeps the compressed archive.
func (m *Manager) execute(ctx context.Context, id string, start time.Time) (*JobResult, error) {
	filename := archiveFilename(start)
	prefix := filepath.Join(m.cfg.WorkDir, shortID(id)+"-")
	jsonPath := prefix + strings.TrimSuffix(filename, ".gz")
	archivePath := prefix + filename

	keepArchive := false
	defer func() {
		removeQuietly(ctx, jsonPath)
		if !keepArchive {
			removeQuietly(ctx, archivePath)
		}
	}()

	report := func(p Progress) { m.progress(ctx, id, p) }

	tables, err := m.store.ListTableNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	report(Progress{Step: StepExport, Percent: 0, Message: fmt.Sprintf("Exporting %d tables", len(tables))})

	exported, err := m.exporter.Export(ctx, jsonPath, tables, report)
	if err != nil {
		return nil, fmt.Errorf("export failed: %w", err)
	}

	report(Progress{Step: StepCompress, Percent: 75, Message: "Compressing archive"})
	if err := Compress(ctx, jsonPath, archivePath, m.cfg.CompressionLevel, m.cfg.CompressionTimeout); err != nil {
		return nil, fmt.Errorf("compression failed: %w", err)
	}
	removeQuietly(ctx, jsonPath)

	report(Progress{Step: StepVerify, Percent: 82, Message: "Verifying archive"})
	if _, err := VerifyArchive(archivePath); err != nil {
		return nil, fmt.Errorf("verification failed: %w", err)
	}

	report(Progress{Step: StepChecksum, Percent: 86, Message: "Calculating checksum"})
	checksum, err := FileChecksum(archivePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	archive := Archive{
		Filename:   filename,
		Path:       archivePath,
		Checksum:   checksum,
		SizeBytes:  info.Size(),
		DurationMs: m.now().Sub(start).Milliseconds(),
		Tables:     exported.Tables,
		Stats:      exported.Stats,
	}
	metrics.BackupArchiveBytes.Set(float64(archive.SizeBytes))
	report(Progress{Step: StepDone, Percent: 90, Message: fmt.Sprintf("Archive ready: %s (%d bytes)", filename, archive.SizeBytes)})

	report(Progress{Step: StepDedup, Percent: 92, Message: "Checking for an identical remote backup"})
	if latest, ok := m.latestRemoteChecksum(ctx); ok && latest == checksum {
		metrics.BackupDedupSkips.Inc()
		return &JobResult{Archive: archive, Skipped: true}, nil
	}

	report(Progress{Step: StepUpload, Percent: 95, Message: "Uploading archive"})
	uploaded, err := m.remote.Upload(ctx, archivePath, filename, remote.ArchiveMetadata{
		Tables:         archive.Tables,
		Stats:          archive.Stats,
		CustomChecksum: checksum,
	})
	if err != nil {
		keepArchive = true
		return nil, &uploadError{path: archivePath, err: err}
	}

	return &JobResult{
		Archive:  archive,
		RemoteID: uploaded.RemoteID,
		WebLink:  uploaded.WebLink,
	}, nil
}

// latestRemoteChecksum returns the checksum of the newest remote archive.
// ok is false when there is none or the lookup failed.
func (m *Manager) latestRemoteChecksum(ctx context.Context) (checksum string, ok bool) {
	archives, err := m.remote.ListRecent(ctx, 1)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Dedup check failed, uploading anyway")
		m.appendLog(ctx, "Could not check remote backups, uploading anyway")
		return "", false
	}
	if len(archives) == 0 || archives[0].CustomChecksum == "" {
		return "", false
	}
	return archives[0].CustomChecksum, true
}

func (m *Manager) complete(ctx context.Context, id string, result *JobResult, duration time.Duration) {
	message := "Backup completed"
	if result.Skipped {
		message = "Backup skipped: identical to the latest remote backup"
	}
	now := m.now().UTC()
	snapshot, ok := m.jobs.Update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Progress = 100
		j.CurrentStep = message
		j.CompletedAt = &now
		j.Result = result
	})
	if !ok {
		return
	}

	status := "completed"
	if result.Skipped {
		status = "skipped"
	}
	metrics.RecordJobFinished(status, duration)
	m.events.publish(snapshot)
	m.appendLog(ctx, message)

	logging.Ctx(ctx).Info().
		Str("checksum", result.Checksum).
		Str("remote_id", result.RemoteID).
		Int64("size_bytes", result.SizeBytes).
		Int("tables", len(result.Tables)).
		Bool("skipped", result.Skipped).
		Dur("duration", duration).
		Msg("Backup job finished")
}

// fail marks the job failed with a one-line message. Remote failures use
// their classified message.
func (m *Manager) fail(ctx context.Context, id string, err error, duration time.Duration) {
	message := err.Error()
	var upErr *uploadError
	if errors.As(err, &upErr) {
		if apiErr, ok := remote.AsAPIError(upErr.err); ok {
			message = "Upload failed: " + apiErr.Message
		} else {
			message = "Upload failed: " + upErr.err.Error()
		}
	}

	now := m.now().UTC()
	snapshot, ok := m.jobs.Update(id, func(j *Job) {
		j.Status = StatusFailed
		j.CurrentStep = "Backup failed"
		j.CompletedAt = &now
		j.Error = message
	})
	if !ok {
		return
	}
	metrics.RecordJobFinished("failed", duration)
	m.events.publish(snapshot)
	m.appendLog(ctx, "Backup failed: "+message)

	event := logging.Ctx(ctx).Error().Err(err)
	if upErr != nil {
		event = event.Str("archive", upErr.path)
	}
	event.Msg("Backup job failed")
}

// sweepRetention deletes remote archives older than the retention window.
// Failures are logged only.
func (m *Manager) sweepRetention(ctx context.Context) {
	if m.cfg.RetentionDays <= 0 {
		return
	}
	cutoff := m.now().Add(-time.Duration(m.cfg.RetentionDays) * 24 * time.Hour)
	deleted, err := m.remote.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int("deleted", deleted).Msg("Retention sweep incomplete")
	}
	if deleted > 0 {
		m.appendLog(ctx, fmt.Sprintf("Deleted %d expired remote backups", deleted))
	}
}

// shortID is the last block of a job id, used to keep concurrent jobs'
// temp files apart.
func shortID(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

func removeQuietly(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Ctx(ctx).Warn().Err(err).Str("path", path).Msg("Failed to remove temp file")
	}
}
