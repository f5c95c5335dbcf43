// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tomtom215/tablesnap/internal/api"
	"github.com/tomtom215/tablesnap/internal/backup"
	"github.com/tomtom215/tablesnap/internal/config"
	"github.com/tomtom215/tablesnap/internal/logging"
	"github.com/tomtom215/tablesnap/internal/remote"
	"github.com/tomtom215/tablesnap/internal/store"
	"github.com/tomtom215/tablesnap/internal/supervisor"
	"github.com/tomtom215/tablesnap/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("TableSnap stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().
		Str("store_driver", cfg.Store.Driver).
		Str("remote_provider", cfg.Remote.Provider).
		Str("work_dir", cfg.Backup.WorkDir).
		Msg("Starting TableSnap")

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	client := remote.NewClient(backend, clientOptions(cfg, backend.Name()))
	logging.Info().Str("backend", client.Backend()).Msg("Remote store ready")

	manager, err := backup.NewManager(backupConfig(cfg, st.Engine()), st, client)
	if err != nil {
		return fmt.Errorf("failed to create backup manager: %w", err)
	}

	handler := api.NewHandler(manager, cfg.Server.CORSOrigins)
	handler.SetRemoteStatus(client)
	router := api.NewRouter(handler, api.NewChiMiddleware(middlewareConfig(cfg)))
	httpServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		// Zero keeps event streams open; a non-zero value would cut them.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Backup.DrainTimeout + cfg.Server.ShutdownTimeout + 5*time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}
	tree.AddBackupService(services.NewBackupManagerService(manager, cfg.Backup.DrainTimeout))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", httpServer.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	if ctx.Err() == nil {
		return errors.New("supervisor tree exited unexpectedly")
	}
	return nil
}

func backupConfig(cfg *config.Config, storeEngine string) backup.Config {
	engine := cfg.Backup.Engine
	if engine == "" {
		engine = storeEngine
	}
	return backup.Config{
		WorkDir:            cfg.Backup.WorkDir,
		Engine:             engine,
		PageSize:           cfg.Store.PageSize,
		CompressionLevel:   cfg.Backup.CompressionLevel,
		CompressionTimeout: cfg.Backup.CompressionTimeout,
		JobCleanupDelay:    cfg.Backup.JobCleanupDelay,
		LogCapacity:        cfg.Backup.LogCapacity,
		HistoryLimit:       cfg.Backup.HistoryLimit,
		RetentionDays:      cfg.Backup.RetentionDays,
		SingleFlight:       cfg.Backup.SingleFlight,
		DrainTimeout:       cfg.Backup.DrainTimeout,
	}
}

func middlewareConfig(cfg *config.Config) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mw.TriggerRequests = cfg.Server.TriggerRateLimit
	mw.TriggerWindow = time.Minute
	return mw
}
