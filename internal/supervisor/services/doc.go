// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
Package services adapts TableSnap components to suture's Serve(ctx) model.

	type Service interface {
	    Serve(ctx context.Context) error
	}

HTTPServerService runs an *http.Server and shuts it down gracefully when the
supervisor stops it.

BackupManagerService owns the backup Job Manager's lifetime: it idles while
the process runs and, on stop, drains in-flight backup jobs for at most the
configured drain timeout before cancelling them.

Both implement fmt.Stringer so suture's event hook can name them in logs.
*/
package services
