package lockstep

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

func TestNewRejectsBadCount(t *testing.T) {
	t.Parallel()
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(-1)
	assert.Error(t, err)
}

func TestClockAdvancesOnlyWhenAllArrive(t *testing.T) {
	t.Parallel()

	b, err := New(2)
	require.NoError(t, err)

	var advances atomic.Int64
	ctrl := NewController(b, func(ctx context.Context) error {
		advances.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// One arrival alone must not advance the clock.
	first := make(chan error, 1)
	go func() { first <- b.Arrive(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, advances.Load(), "one of two arrivals must not advance")

	// The second arrival completes the generation: exactly one advance.
	require.NoError(t, b.Arrive(ctx))
	require.NoError(t, <-first)
	assert.Equal(t, int64(1), advances.Load())

	cancel()
	<-done
}

func TestAllParticipantsObserveEachGeneration(t *testing.T) {
	t.Parallel()

	const parties = 4
	const steps = 25

	b, err := New(parties)
	require.NoError(t, err)

	// The controller publishes a new cursor value each step; participants
	// record what they see between arrivals.
	var cursor atomic.Int64
	ctrl := NewController(b, func(ctx context.Context) error {
		if cursor.Load() >= steps {
			return errors.New("end of run")
		}
		cursor.Add(1)
		return nil
	}, nil)

	ctx := context.Background()
	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctx) }()

	var wg sync.WaitGroup
	seen := make([][]int64, parties)
	for i := 0; i < parties; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				if err := b.Arrive(ctx); err != nil {
					return
				}
				seen[i] = append(seen[i], cursor.Load())
			}
		}(i)
	}

	wg.Wait()
	require.Error(t, <-ctrlDone)

	// Every participant saw the same strictly increasing cursor sequence:
	// nobody skipped a generation, nobody saw one twice.
	for i := 1; i < parties; i++ {
		assert.Equal(t, seen[0], seen[i], "participant %d diverged", i)
	}
	require.NotEmpty(t, seen[0])
	for j := 1; j < len(seen[0]); j++ {
		assert.Equal(t, seen[0][j-1]+1, seen[0][j])
	}
}

func TestStopReleasesBlockedParticipants(t *testing.T) {
	t.Parallel()

	b, err := New(3)
	require.NoError(t, err)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() { errs <- b.Arrive(context.Background()) }()
	}

	time.Sleep(20 * time.Millisecond)
	b.Stop()

	assert.ErrorIs(t, <-errs, ErrStopped)
	assert.ErrorIs(t, <-errs, ErrStopped)
	assert.True(t, b.Stopped())

	// Late arrivals get the same distinguishable outcome.
	assert.ErrorIs(t, b.Arrive(context.Background()), ErrStopped)

	// Stop is idempotent.
	b.Stop()
}

func TestArriveHonorsContext(t *testing.T) {
	t.Parallel()

	b, err := New(2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Arrive(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestControllerStepErrorStopsEveryone(t *testing.T) {
	t.Parallel()

	b, err := New(1)
	require.NoError(t, err)

	boom := errors.New("maintenance failed")
	ctrl := NewController(b, func(ctx context.Context) error { return boom }, nil)

	ctx := context.Background()
	ctrlDone := make(chan error, 1)
	go func() { ctrlDone <- ctrl.Run(ctx) }()

	// The single participant arrives; the step fails; the barrier stops and
	// the participant is released with the cancellation outcome.
	assert.ErrorIs(t, b.Arrive(ctx), ErrStopped)
	assert.ErrorIs(t, <-ctrlDone, boom)
}
