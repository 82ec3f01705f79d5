// Copyright (C) 2026 Proscenium AI (engineering@proscenium.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The stage server hosts live improv sessions: it upgrades play sockets,
// runs the turn loop against the generative backend, and exposes the admin
// API. Configuration comes from a YAML file plus PROSCENIUM_* environment
// overrides; see services/stage/config.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/ProsceniumAI/Proscenium/pkg/logging"
	"github.com/ProsceniumAI/Proscenium/services/genai"
	"github.com/ProsceniumAI/Proscenium/services/stage/archive"
	"github.com/ProsceniumAI/Proscenium/services/stage/config"
	"github.com/ProsceniumAI/Proscenium/services/stage/content"
	"github.com/ProsceniumAI/Proscenium/services/stage/observability"
	"github.com/ProsceniumAI/Proscenium/services/stage/profile"
	"github.com/ProsceniumAI/Proscenium/services/stage/routes"
	"github.com/ProsceniumAI/Proscenium/services/stage/session"
	"github.com/ProsceniumAI/Proscenium/services/stage/telemetry"
	"github.com/ProsceniumAI/Proscenium/services/stage/timeseries"
)

// shutdownGrace bounds how long in-flight requests and sessions get to
// drain after a termination signal.
const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("PROSCENIUM_CONFIG"), "path to stage.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: could not load configuration: %v", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.File,
		Service: "stage",
		JSON:    cfg.Logging.Format != "text",
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("stage server exited with error", "error", err)
		os.Exit(1)
	}
}

// run owns the whole server lifetime. Everything constructed here is torn
// down, in reverse order, before it returns.
func run(ctx context.Context, cfg config.Config) error {
	telemetryCfg := telemetry.DefaultConfig()
	if !cfg.Telemetry.Enabled {
		telemetryCfg.Exporter = "none"
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdownTracer, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", "error", err)
		}
	}()

	observability.InitMetrics()

	backend, err := genai.New(cfg.BackendConfig())
	if err != nil {
		return err
	}

	store, err := openProfileStore(cfg.Profiles)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	library := loadLibrary(cfg.Content)
	if library != nil {
		defer library.Close()
	}

	recorder := timeseries.New(timeseries.Config{
		URL:    cfg.Timeseries.URL,
		Token:  cfg.Timeseries.Token,
		Org:    cfg.Timeseries.Org,
		Bucket: cfg.Timeseries.Bucket,
	})
	defer recorder.Close()

	sessionCfg := cfg.SessionConfig()
	sessionCfg.TurnSink = recorder.Sink()
	if archiveStore := buildArchive(ctx, cfg.Archive, backend); archiveStore != nil {
		sessionCfg.Archiver = archiveStore
	}

	var registryStore profile.Store
	if store != nil {
		registryStore = store
	}
	registry := session.NewRegistry(backend, registryStore, library, sessionCfg)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("proscenium-stage"))
	routes.SetupRoutes(router, registry, registryStore, library)

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("stage server listening",
			"addr", server.Addr,
			"backend", cfg.Backend.Type,
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down stage server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "error", err)
		}

		// Sessions drain after the listener so no new ones arrive while
		// teardown runs.
		registry.CloseAll()
		return nil
	})
	return group.Wait()
}

// openProfileStore opens the badger-backed profile store, or returns nil
// when profiles are disabled by an empty directory.
func openProfileStore(cfg config.Profiles) (*profile.BadgerStore, error) {
	if cfg.InMemory {
		return profile.Open(profile.InMemoryConfig())
	}
	if cfg.Dir == "" {
		slog.Warn("no profile directory configured, profiles are session-only")
		return nil, nil
	}
	storeCfg := profile.DefaultConfig(cfg.Dir)
	storeCfg.SyncWrites = cfg.SyncWrites
	return profile.Open(storeCfg)
}

// loadLibrary loads the scene pack directory. Content problems never stop
// the server; sessions fall back to the built-in scene.
func loadLibrary(cfg config.Content) *content.Library {
	if cfg.Dir == "" {
		return nil
	}
	library, err := content.LoadLibrary(cfg.Dir)
	if err != nil {
		slog.Warn("scene content unavailable, using built-in scene only",
			"dir", cfg.Dir,
			"error", err,
		)
		return nil
	}
	if cfg.HotReload {
		if err := library.Watch(); err != nil {
			slog.Warn("scene hot reload unavailable", "error", err)
		}
	}
	return library
}

// buildArchive wires the optional Weaviate archive. Any failure degrades
// to lightweight mode rather than stopping the server.
func buildArchive(ctx context.Context, cfg config.Archive, backend genai.Backend) *archive.Store {
	client := archive.NewClient(cfg.WeaviateURL)
	if client == nil {
		return nil
	}
	archiveStore := archive.New(client, backend)
	if err := archiveStore.EnsureSchema(ctx); err != nil {
		slog.Error("weaviate schema setup failed, running in lightweight mode",
			"error", err,
		)
		return nil
	}
	return archiveStore
}
