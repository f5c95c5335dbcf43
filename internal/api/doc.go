// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
Package api exposes the backup Job Manager over HTTP.

Routes:

	POST /api/v1/backups                         start a full backup (202 + job)
	GET  /api/v1/backups/jobs                    active jobs
	GET  /api/v1/backups/history                 finished jobs
	GET  /api/v1/backups/logs?limit=N            recent progress log lines
	GET  /api/v1/backups/remote?limit=N          newest remote archives
	GET  /api/v1/backups/remote/{remoteID}/diff  compare an archive with the live store
	GET  /api/v1/backups/events                  Server-Sent Events job stream
	GET  /api/v1/backups/ws                      WebSocket job stream
	GET  /api/v1/health/live                     liveness
	GET  /metrics                                Prometheus

Every JSON response uses the same envelope:

	{"status":"success","data":...,"metadata":{"timestamp":"..."}}
	{"status":"error","data":null,"metadata":{...},"error":{"code":"...","message":"..."}}

The diff endpoint rescans every table in the live store and is as expensive
as a full export.

Authentication is expected to be handled in front of this server.

Middleware Stack:

  - RequestIDWithLogging: X-Request-ID plus request_id in log context
  - RealIP and Recoverer from chi
  - CORS via go-chi/cors
  - APIMetrics: request counters and latency by chi route pattern
  - httprate limit on the trigger endpoint
*/
package api
