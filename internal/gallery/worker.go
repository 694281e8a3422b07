package gallery

import (
	"context"
	"log/slog"
	"time"
)

// Rebuilder is implemented by Builder.
type Rebuilder interface {
	Rebuild(ctx context.Context) (RebuildStats, error)
}

// RefreshWorker re-scans the gallery periodically to pick up files
// changed outside the enrollment API.
type RefreshWorker struct {
	builder  Rebuilder
	logger   *slog.Logger
	interval time.Duration
}

// NewRefreshWorker creates a new gallery refresh worker
func NewRefreshWorker(builder Rebuilder, logger *slog.Logger, interval time.Duration) *RefreshWorker {
	return &RefreshWorker{
		builder:  builder,
		logger:   logger.With("component", "gallery_refresh"),
		interval: interval,
	}
}

// Run starts the worker loop. A non-positive interval disables it.
func (w *RefreshWorker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("gallery refresh disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("gallery refresh worker started", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("gallery refresh worker stopped")
			return
		case <-ticker.C:
			if _, err := w.builder.Rebuild(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("gallery refresh failed", "error", err)
			}
		}
	}
}
