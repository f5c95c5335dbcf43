// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

// Package main is the TableSnap server.
//
// TableSnap snapshots every table of a relational store into one gzip
// archive, skips the upload when the archive is identical to the newest
// remote copy, and otherwise uploads it to Google Drive, an S3-compatible
// bucket or a local directory. Job progress is served over HTTP, SSE and
// WebSocket.
//
// # Startup
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Logging (zerolog)
//  3. Store: database/sql with the duckdb, sqlite or pgx driver
//  4. Remote backend and client (retry, rate limit, circuit breaker)
//  5. Backup manager
//  6. HTTP API
//  7. Supervisor tree, until SIGINT or SIGTERM
//
// # Examples
//
// Back up a DuckDB file to Drive with a service account:
//
//	export STORE_DRIVER=duckdb
//	export STORE_DSN=/data/app.duckdb
//	export DRIVE_FOLDER_ID=1AbC...
//	export GOOGLE_APPLICATION_CREDENTIALS=/secrets/sa.json
//	./tablesnap
//
// Back up Postgres to MinIO:
//
//	export STORE_DRIVER=pgx
//	export STORE_DSN=postgres://backup@db/app
//	export REMOTE_PROVIDER=s3
//	export S3_ENDPOINT=http://minio:9000 S3_BUCKET=backups S3_USE_PATH_STYLE=true
//	./tablesnap
//
// Trigger a backup:
//
//	curl -X POST localhost:8080/api/v1/backups
//
// # Signals
//
// On SIGINT or SIGTERM the HTTP server stops accepting requests and the
// backup manager waits up to backup.drain_timeout for running jobs before
// cancelling them. A cancelled job removes its temporary files.
package main
