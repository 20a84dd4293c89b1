package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ActivitySink receives best-effort session activity bumps. Enqueue must
// never block the caller; it reports whether the bump was accepted.
type ActivitySink interface {
	Enqueue(sessionID string) bool
}

// activityBumper is the part of the session manager the updater needs.
type activityBumper interface {
	UpdateSessionActivity(ctx context.Context, sessionID string) error
}

// ActivityUpdater applies lastActivity bumps asynchronously so the request
// path never waits on, or fails because of, an activity write. Updates are
// dropped when the queue is full; activity tracking is best-effort.
type ActivityUpdater struct {
	bumper  activityBumper
	logger  *zap.Logger
	queue   chan string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewActivityUpdater creates an updater with the given queue capacity.
func NewActivityUpdater(bumper activityBumper, logger *zap.Logger, queueSize int) *ActivityUpdater {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &ActivityUpdater{
		bumper:  bumper,
		logger:  logger,
		queue:   make(chan string, queueSize),
		timeout: 5 * time.Second,
	}
}

// Start launches the worker goroutine. It drains until ctx is cancelled.
func (u *ActivityUpdater) Start(ctx context.Context) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case sessionID := <-u.queue:
				u.apply(sessionID)
			}
		}
	}()
}

// Enqueue queues an activity bump, dropping it when the queue is full.
func (u *ActivityUpdater) Enqueue(sessionID string) bool {
	select {
	case u.queue <- sessionID:
		return true
	default:
		u.logger.Debug("Dropping session activity update, queue full",
			zap.String("session_id", sessionID),
		)
		return false
	}
}

// Wait blocks until the worker goroutine has exited.
func (u *ActivityUpdater) Wait() {
	u.wg.Wait()
}

func (u *ActivityUpdater) apply(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout)
	defer cancel()

	if err := u.bumper.UpdateSessionActivity(ctx, sessionID); err != nil {
		u.logger.Warn("Failed to update session activity",
			zap.Error(err),
			zap.String("session_id", sessionID),
		)
	}
}

var _ ActivitySink = (*ActivityUpdater)(nil)
