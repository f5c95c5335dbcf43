// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package backup snapshots a relational store into a single compressed
// archive and ships it to remote storage.
//
// # Overview
//
// A backup run is one job. The Manager starts each job on its own
// goroutine and returns immediately; callers follow progress through
// GetCurrentJobs, GetLogs or Subscribe.
//
// # Pipeline
//
// Phases run strictly in order on the job's goroutine:
//
//	export    - every table is streamed to one JSON document on disk
//	compress  - the document is gzipped under a hard timeout
//	verify    - the archive is read back to EOF (gzip CRC and length)
//	checksum  - sha256 of the compressed bytes
//	dedup     - the newest remote archive's checksum is compared
//	upload    - the archive is stored with its per-table stats
//	retention - remote archives older than the retention window are deleted
//
// # Job States
//
//	pending -> running -> uploading -> completed | failed
//
// A job skipped by dedup still completes, with Result.Skipped set.
// Terminal jobs are appended to history and dropped from the active set
// after Config.JobCleanupDelay.
//
// # Archive Format
//
// The archive is gzip-compressed UTF-8 JSON:
//
//	{"version":"1.0","createdAt":"...","engine":"duckdb","tables":[...],"data":{"users":[...],...}}
//
// Integers outside the float64 safe range are written as decimal strings.
// Tables appear in the store's sorted order, so identical data produces a
// byte-identical archive for the same createdAt.
//
// # Failure Handling
//
// A table that cannot be read is written as [] and the run continues. Disk
// errors abort the run and remove its temp files. A failed upload keeps
// the compressed archive in the work directory for manual recovery.
//
// # Usage
//
//	mgr, err := backup.NewManager(cfg, st, client)
//	if err != nil {
//		return err
//	}
//	job, err := mgr.StartBackup(backup.JobTypeFull)
package backup
