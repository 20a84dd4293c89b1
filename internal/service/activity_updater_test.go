package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingBumper struct {
	mu      sync.Mutex
	applied []string
	done    chan struct{}
	want    int
}

func newCountingBumper(want int) *countingBumper {
	return &countingBumper{done: make(chan struct{}), want: want}
}

func (b *countingBumper) UpdateSessionActivity(_ context.Context, sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applied = append(b.applied, sessionID)
	if len(b.applied) == b.want {
		close(b.done)
	}
	return nil
}

func (b *countingBumper) sessions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.applied...)
}

func TestActivityUpdater_AppliesEnqueuedBumps(t *testing.T) {
	bumper := newCountingBumper(2)
	updater := NewActivityUpdater(bumper, zap.NewNop(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	updater.Start(ctx)

	require.True(t, updater.Enqueue("session-1"))
	require.True(t, updater.Enqueue("session-2"))

	select {
	case <-bumper.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for activity bumps")
	}

	cancel()
	updater.Wait()

	assert.Equal(t, []string{"session-1", "session-2"}, bumper.sessions())
}

func TestActivityUpdater_DropsWhenQueueFull(t *testing.T) {
	// Worker never started, so the queue only holds its capacity.
	updater := NewActivityUpdater(newCountingBumper(0), zap.NewNop(), 1)

	assert.True(t, updater.Enqueue("session-1"))
	assert.False(t, updater.Enqueue("session-2"), "enqueue must not block on a full queue")
}

func TestActivityUpdater_StopsOnContextCancel(t *testing.T) {
	updater := NewActivityUpdater(newCountingBumper(0), zap.NewNop(), 8)

	ctx, cancel := context.WithCancel(context.Background())
	updater.Start(ctx)
	cancel()

	finished := make(chan struct{})
	go func() {
		updater.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
