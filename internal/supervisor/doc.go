// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

/*
Package supervisor runs TableSnap's long-lived services under suture v4.

# Overview

	RootSupervisor ("tablesnap")
	├── BackupSupervisor ("backup-layer")
	│   └── BackupManagerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Backup jobs are goroutines owned by the backup manager, not supervised
services; BackupManagerService exists so that stopping the tree drains
them before the process exits.

# Shutdown

Cancelling the context passed to Serve stops both layers concurrently. The
HTTP server stops accepting requests and closes event streams once the
manager closes its subscribers. TreeConfig.ShutdownTimeout must be longer
than the backup drain timeout.

# Logging

Supervisor events go through sutureslog to a *slog.Logger; cmd/server
passes logging.NewSlogLogger() so they land in the zerolog stream.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.Backup.DrainTimeout + 10*time.Second,
	})
	tree.AddBackupService(services.NewBackupManagerService(mgr, cfg.Backup.DrainTimeout))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor
