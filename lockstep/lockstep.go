// Package lockstep synchronizes N strategy tasks onto one simulated clock.
//
// Every participant calls Arrive after finishing its work for the current
// step and blocks. Once all N have arrived the controller runs the per-step
// callback (maintenance pass plus clock advance) strictly between
// generations, then releases everyone at once. No participant can observe a
// cursor another participant has not also observed.
package lockstep

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is the cancellation outcome delivered to blocked participants
// when the barrier shuts down.
var ErrStopped = errors.New("lockstep: stopped")

// Barrier is the rendezvous primitive. Generations are represented by a
// gate channel that is closed when the controller releases the step.
type Barrier struct {
	mu       sync.Mutex
	parties  int
	arrived  int
	gate     chan struct{} // closed to release the current generation
	full     chan struct{} // signaled when the last participant arrives
	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a barrier for n participants.
func New(n int) (*Barrier, error) {
	if n <= 0 {
		return nil, fmt.Errorf("lockstep: participant count must be positive, got %d", n)
	}
	return &Barrier{
		parties: n,
		gate:    make(chan struct{}),
		full:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}, nil
}

// Parties returns the configured participant count.
func (b *Barrier) Parties() int { return b.parties }

// Arrive blocks until the controller releases the current generation.
// It returns ErrStopped when the barrier shuts down, or the context error
// when ctx is done first.
func (b *Barrier) Arrive(ctx context.Context) error {
	b.mu.Lock()
	select {
	case <-b.stopped:
		b.mu.Unlock()
		return ErrStopped
	default:
	}
	gate := b.gate
	b.arrived++
	if b.arrived == b.parties {
		// Wake the controller. Buffered, so this never blocks.
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wait blocks the controller until all participants arrived, the barrier
// stopped, or ctx was canceled.
func (b *Barrier) wait(ctx context.Context) error {
	select {
	case <-b.full:
		return nil
	case <-b.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release resets the arrival count and opens the gate, letting every blocked
// participant continue into the next generation simultaneously.
func (b *Barrier) release() {
	b.mu.Lock()
	gate := b.gate
	b.gate = make(chan struct{})
	b.arrived = 0
	b.mu.Unlock()
	close(gate)
}

// Stop shuts the barrier down. Every participant blocked in Arrive, and any
// future caller, gets ErrStopped. Safe to call more than once.
func (b *Barrier) Stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
}

// Stopped reports whether Stop has been called.
func (b *Barrier) Stopped() bool {
	select {
	case <-b.stopped:
		return true
	default:
		return false
	}
}
