package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saturnino-fabrica-de-software/facegate/internal/api"
	"github.com/saturnino-fabrica-de-software/facegate/internal/audit"
	"github.com/saturnino-fabrica-de-software/facegate/internal/config"
	"github.com/saturnino-fabrica-de-software/facegate/internal/database"
	"github.com/saturnino-fabrica-de-software/facegate/internal/face"
	"github.com/saturnino-fabrica-de-software/facegate/internal/gallery"
	"github.com/saturnino-fabrica-de-software/facegate/internal/repository"
	"github.com/saturnino-fabrica-de-software/facegate/internal/service"
	"github.com/saturnino-fabrica-de-software/facegate/internal/storage"
	"github.com/saturnino-fabrica-de-software/facegate/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	logger.Info("starting Facegate API",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.Port),
		slog.String("detector", cfg.DetectorBackend),
		slog.String("embedder", cfg.EmbedderBackend),
	)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, cfg.DatabaseName); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	pool, err := database.NewPool(ctx, database.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	// Storage
	files, err := storage.NewGallery(cfg.GalleryDir())
	if err != nil {
		return fmt.Errorf("failed to open gallery: %w", err)
	}
	scratch, err := storage.NewScratch(cfg.ScratchDir())
	if err != nil {
		return fmt.Errorf("failed to open scratch dir: %w", err)
	}
	if n, err := scratch.Sweep(); err != nil {
		logger.Warn("failed to sweep scratch dir", slog.Any("error", err))
	} else if n > 0 {
		logger.Info("removed stale working copies", slog.Int("count", n))
	}

	// Face backends; startup refuses to continue without them
	backends, err := face.NewBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize face backends: %w", err)
	}

	auditLogger := audit.NewSlogLogger(logger)

	// Repositories
	identities := repository.NewIdentityRepository(pool)
	visits := repository.NewVisitRepository(pool)
	embeddings := repository.NewEmbeddingRepository(pool)

	// Gallery index
	index := gallery.NewIndex()
	builder := gallery.NewBuilder(index, gallery.BuilderConfig{
		Files:      files,
		Embedder:   backends.Embedder,
		Detector:   backends.Detector,
		Model:      cfg.DetectorModel(),
		Cache:      embeddings,
		CacheModel: backends.Embedder.Name() + ":" + cfg.EmbeddingModel,
		Workers:    cfg.MatchWorkers,
		Audit:      auditLogger,
		Logger:     logger,
	})
	if _, err := builder.Rebuild(ctx); err != nil {
		return fmt.Errorf("failed to build gallery: %w", err)
	}
	matcher := gallery.NewMatcher(backends.Embedder, index, identities, cfg.MatchThreshold)

	// Live feed
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Periodic gallery refresh
	go gallery.NewRefreshWorker(builder, logger, cfg.GalleryRefreshInterval).Run(ctx)

	// Services
	recorder := service.NewVisitRecorder(visits, hub, auditLogger, logger)
	recognition := service.NewRecognitionService(backends.Detector, matcher, recorder, service.RecognitionConfig{
		DefaultModel: cfg.DetectorModel(),
		Workers:      cfg.MatchWorkers,
	}, logger).WithAuditLogger(auditLogger)
	if cfg.DeepFaceShared {
		recognition.WithScratch(scratch)
	}
	enrollment := service.NewEnrollmentService(identities, files, builder, hub, logger).
		WithAuditLogger(auditLogger)

	// Setup router
	router := api.NewRouter(logger, &api.Dependencies{
		Recognition:  recognition,
		Enrollment:   enrollment,
		Visits:       service.NewVisitService(visits),
		Hub:          hub,
		DB:           pool,
		Gallery:      index,
		MediaRoot:    cfg.MediaRoot,
		MaxImageSize: cfg.MaxImageSize,

		RecognitionTimeout: cfg.RecognitionTimeout,
	})
	router.Setup()

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("server listening", slog.String("addr", addr))
		if err := router.Listen(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")

	done := make(chan error, 1)
	go func() { done <- router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown error", slog.Any("error", err))
		}
	case <-time.After(10 * time.Second):
		logger.Warn("shutdown timed out")
	}

	logger.Info("server stopped")

	return nil
}
