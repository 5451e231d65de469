package taskq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityOrdering(t *testing.T) {
	t.Parallel()

	// One worker so execution order equals dispatch order.
	q := New(Options{MinWorkers: 1, MaxWorkers: 1})

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// A blocker lets the backlog accumulate before dispatch begins.
	release := make(chan struct{})
	require.NoError(t, q.Submit(Item{Name: "blocker", Fn: func(context.Context) error {
		<-release
		return nil
	}}))

	require.NoError(t, q.Submit(Item{Name: "low", Priority: 9, Fn: record("low")}))
	require.NoError(t, q.Submit(Item{Name: "high", Priority: 1, Fn: record("high")}))
	require.NoError(t, q.Submit(Item{Name: "mid", Priority: 5, Fn: record("mid")}))
	require.NoError(t, q.Submit(Item{Name: "high2", Priority: 1, Fn: record("high2")}))
	close(release)

	require.NoError(t, q.WaitIdle(context.Background(), 50*time.Millisecond))
	require.NoError(t, q.Shutdown(context.Background(), CancelAll))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "high2", "mid", "low"}, order,
		"lower rank first, FIFO within a rank")
}

func TestWorkerPoolGrowsAndShrinks(t *testing.T) {
	t.Parallel()

	q := New(Options{MinWorkers: 1, MaxWorkers: 4, IdleTimeout: 30 * time.Millisecond})

	release := make(chan struct{})
	var running atomic.Int64
	for i := 0; i < 8; i++ {
		require.NoError(t, q.Submit(Item{Name: "hold", Fn: func(context.Context) error {
			running.Add(1)
			<-release
			return nil
		}}))
	}

	// Backlog forces growth to the cap.
	assert.Eventually(t, func() bool { return q.Workers() == 4 },
		time.Second, 5*time.Millisecond)

	close(release)
	require.NoError(t, q.WaitIdle(context.Background(), 50*time.Millisecond))

	// Idle workers drain back to the minimum.
	assert.Eventually(t, func() bool { return q.Workers() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, q.Shutdown(context.Background(), CancelAll))
}

func TestFailuresDoNotAbortSiblings(t *testing.T) {
	t.Parallel()

	q := New(Options{MinWorkers: 2, MaxWorkers: 2})

	var ok atomic.Int64
	require.NoError(t, q.Submit(Item{Name: "boom", Fn: func(context.Context) error {
		panic("worker must survive this")
	}}))
	require.NoError(t, q.Submit(Item{Name: "err", Fn: func(context.Context) error {
		return errors.New("recorded, not fatal")
	}}))
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Submit(Item{Name: "fine", Fn: func(context.Context) error {
			ok.Add(1)
			return nil
		}}))
	}

	require.NoError(t, q.WaitIdle(context.Background(), 50*time.Millisecond))
	completed, failed := q.Stats()
	assert.Equal(t, int64(5), ok.Load())
	assert.Equal(t, int64(5), completed)
	assert.Equal(t, int64(2), failed)

	require.NoError(t, q.Shutdown(context.Background(), CancelAll))
}

func TestShutdownDrainCritical(t *testing.T) {
	t.Parallel()

	q := New(Options{MinWorkers: 1, MaxWorkers: 1})

	var criticalRan, casualRan atomic.Bool
	release := make(chan struct{})
	require.NoError(t, q.Submit(Item{Name: "blocker", Fn: func(context.Context) error {
		<-release
		return nil
	}}))
	require.NoError(t, q.Submit(Item{Name: "casual", Fn: func(context.Context) error {
		casualRan.Store(true)
		return nil
	}}))
	require.NoError(t, q.Submit(Item{Name: "final-snapshot", Critical: true, Fn: func(context.Context) error {
		criticalRan.Store(true)
		return nil
	}}))

	// Begin the drain while the blocker still holds the only worker, so the
	// backlog filter runs before anything else is dispatched.
	done := make(chan error, 1)
	go func() { done <- q.Shutdown(context.Background(), DrainCritical) }()
	require.Eventually(t, func() bool { return q.Pending() == 1 },
		time.Second, time.Millisecond, "casual item dropped, critical kept")

	close(release)
	require.NoError(t, <-done)

	assert.True(t, criticalRan.Load(), "must-complete item survives the drain")
	assert.False(t, casualRan.Load(), "non-critical backlog is discarded")

	assert.ErrorIs(t, q.Submit(Item{Name: "late", Fn: func(context.Context) error { return nil }}), ErrQueueClosed)
}

func TestShutdownCancelAll(t *testing.T) {
	t.Parallel()

	q := New(Options{MinWorkers: 1, MaxWorkers: 1})

	started := make(chan struct{})
	canceled := make(chan struct{})
	require.NoError(t, q.Submit(Item{Name: "long", Fn: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	}}))
	var ran atomic.Bool
	require.NoError(t, q.Submit(Item{Name: "pending", Critical: true, Fn: func(context.Context) error {
		ran.Store(true)
		return nil
	}}))

	<-started
	require.NoError(t, q.Shutdown(context.Background(), CancelAll))

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("running item was not canceled")
	}
	assert.False(t, ran.Load(), "cancel-all drops even critical backlog")
}

func TestWaitIdleHonorsDeadline(t *testing.T) {
	t.Parallel()

	q := New(Options{MinWorkers: 1, MaxWorkers: 1})
	release := make(chan struct{})
	require.NoError(t, q.Submit(Item{Name: "hold", Fn: func(context.Context) error {
		<-release
		return nil
	}}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.WaitIdle(ctx, 20*time.Millisecond), context.DeadlineExceeded)

	close(release)
	require.NoError(t, q.Shutdown(context.Background(), CancelAll))
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	q := New(Options{})
	assert.Error(t, q.Submit(Item{Name: "nil fn"}))
	require.NoError(t, q.Shutdown(context.Background(), CancelAll))

	// Shutdown is idempotent.
	require.NoError(t, q.Shutdown(context.Background(), DrainCritical))
}
