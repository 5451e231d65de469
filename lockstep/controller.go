package lockstep

import (
	"context"

	"go.uber.org/zap"
)

// StepFunc runs the work the controller performs between generations: the
// engine's maintenance pass and the clock advance. Returning an error stops
// the run.
type StepFunc func(ctx context.Context) error

// Controller drives the barrier: wait for all arrivals, run the step
// callback, release. It owns the clock through the callback.
type Controller struct {
	barrier *Barrier
	step    StepFunc
	log     *zap.Logger
}

// NewController wires a step callback to a barrier.
func NewController(b *Barrier, step StepFunc, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{barrier: b, step: step, log: log}
}

// Run loops until the step callback fails, the barrier stops, or ctx is
// canceled. On every exit path the barrier is stopped so no participant is
// left hanging; the first error is returned (nil when the callback asked
// for a normal stop by returning an error the caller treats as terminal).
func (c *Controller) Run(ctx context.Context) error {
	defer c.barrier.Stop()

	steps := 0
	for {
		if err := c.barrier.wait(ctx); err != nil {
			c.log.Debug("controller wait ended", zap.Int("steps", steps), zap.Error(err))
			return err
		}

		// All participants are parked: the maintenance pass and clock
		// advance run with no strategy observing intermediate state.
		if err := c.step(ctx); err != nil {
			c.log.Debug("step callback ended run", zap.Int("steps", steps), zap.Error(err))
			return err
		}
		steps++

		c.barrier.release()
	}
}
