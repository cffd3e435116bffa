// Package main is the entry point for the viewer engine server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/TissueMAPS/TissueMAPS-sub004/internal/api"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/cache"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/config"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/jobs"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/render"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/stream"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/tools"
	"github.com/TissueMAPS/TissueMAPS-sub004/internal/toolstore"
)

func main() {
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("starting viewer engine server", zap.Int("port", cfg.Server.Port))

	// Cache manager (shared across all viewers)
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB:   cfg.Cache.TileSizeMB,
		TileTTL:           time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		SnapshotCacheSize: cfg.Cache.SnapshotCacheSize,
	})
	if err != nil {
		logger.Fatal("failed to initialize cache", zap.Error(err))
	}
	defer cacheManager.Close()

	// Tile renderer (shared across all viewers)
	tileRenderer := render.NewTileRenderer(render.Config{
		TileSize: cfg.Render.TileSize,
	})

	// Tool catalog
	var catalog *tools.Catalog
	if cfg.Tools.ManifestPath != "" {
		catalog, err = tools.LoadManifest(cfg.Tools.ManifestPath)
		if err != nil {
			logger.Fatal("failed to load tool manifest", zap.Error(err))
		}
		logger.Info("tool manifest loaded",
			zap.String("path", cfg.Tools.ManifestPath),
			zap.Int("tools", catalog.Len()))
	} else {
		catalog, _ = tools.ParseManifest(nil)
		logger.Warn("no tool manifest configured; catalog is empty")
	}

	// Tool backend client and viewer registry
	toolClient := tools.NewClient(
		cfg.Tools.BackendURL,
		time.Duration(cfg.Tools.RequestTimeoutSec)*time.Second,
		logger,
	)
	registry := api.NewViewerRegistry(catalog, toolClient, logger)

	// Submission manager (SQLite persistence)
	manager, err := jobs.NewManager(jobs.ManagerConfig{
		MaxConcurrent: cfg.Store.MaxConcurrent,
		SQLitePath:    cfg.Store.SQLitePath,
		RetentionDays: cfg.Store.RetentionDays,
		CleanupPeriod: 1 * time.Hour,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize submission manager", zap.Error(err))
	}
	logger.Info("submission manager ready",
		zap.Int("max_concurrent", cfg.Store.MaxConcurrent),
		zap.Int("retention_days", cfg.Store.RetentionDays),
		zap.String("sqlite", cfg.Store.SQLitePath))

	executor := api.ToolExecutor(registry)

	// Optional status stream from the backend
	var streamClient *stream.Client
	if cfg.Stream.URL != "" {
		streamClient = stream.NewClient(
			cfg.Stream.URL,
			"",
			time.Duration(cfg.Stream.RetryIntervalSec)*time.Second,
			logger,
		)
		go streamClient.Run()
		defer streamClient.Close()

		// Surface backend-side progress for each submission while it runs.
		inner := executor
		executor = func(ctx context.Context, store *toolstore.Store, id string) error {
			streamClient.Watch(id, func(msg stream.Message) {
				logger.Info("backend update",
					zap.String("job", msg.JobID),
					zap.String("type", msg.Type),
					zap.String("status", msg.Status),
					zap.String("line", msg.Line))
			})
			defer streamClient.Unwatch(id)
			return inner(ctx, store, id)
		}
	}

	manager.Executor = executor
	manager.Start()
	defer manager.Stop()

	router := api.NewRouter(api.RouterConfig{
		Registry:    registry,
		CORSOrigins: cfg.Server.CORSOrigins,
		Catalog:     catalog,
		Renderer:    tileRenderer,
		Cache:       cacheManager,
		Jobs:        manager,
		Log:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
