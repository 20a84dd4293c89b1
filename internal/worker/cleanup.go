package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// sessionCleaner is the part of the session manager the worker needs.
type sessionCleaner interface {
	CleanupExpiredSessions(ctx context.Context) (int, error)
}

// CleanupWorker periodically sweeps expired sessions out of the store. Redis
// TTLs remove most keys on their own; the sweep catches sessions whose record
// outlived its logical expiry (clock drift, deactivated-but-present records).
type CleanupWorker struct {
	cleaner  sessionCleaner
	interval time.Duration
	logger   *zap.Logger
}

// NewCleanupWorker creates a worker sweeping at the given interval.
func NewCleanupWorker(cleaner sessionCleaner, interval time.Duration, logger *zap.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupWorker{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, sweeping on each tick until ctx is cancelled.
func (w *CleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Session cleanup worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	if _, err := w.cleaner.CleanupExpiredSessions(sweepCtx); err != nil {
		w.logger.Error("Failed to cleanup expired sessions", zap.Error(err))
	}
}
