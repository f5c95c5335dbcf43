// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
Package remote talks to the object store that holds backup archives.

A Client wraps a Backend (Google Drive, S3, or a local directory) and adds
the resilience stack every call goes through:

	Client.call
	  └─ Retry           bounded exponential backoff, honors Retry-After
	      └─ rate.Limiter
	          └─ Breaker  gobreaker circuit breaker
	              └─ Backend call

Every failure leaving the Client is an *APIError produced by Classify. The
classifier understands googleapi errors, AWS smithy errors, OAuth2 token
errors and raw HTTP responses (ResponseError). Anything else becomes
{code:500, reason:"unknown", domain:"application"}.

# Idempotency

Callers state per call whether repeating it is safe. Rate-limit rejections
are retried for every call because the remote refused the request before
acting on it. Ambiguous failures (5xx, timeouts, dropped connections) are
only retried for idempotent calls, so an upload is never duplicated by a
retry unless the backend overwrites by name (IdempotentCreator).

# Metadata

Each archive carries ArchiveMetadata. The checksum and table count go into
small indexed properties; the full tables/stats document is stored as the
object's description (Drive), a sidecar object (S3) or a sidecar file
(local).
*/
package remote
