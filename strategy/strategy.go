// Package strategy defines the participant contract for a lockstep run. A
// strategy is called once per clock step, after the engine has re-marked all
// open positions for that step's quotes.
package strategy

import (
	"context"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/engine"
)

type Strategy interface {
	OnStep(ctx context.Context, e *engine.Engine, cur clock.Cursor) error
}

// Func adapts a plain function into a Strategy.
type Func func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error

func (f Func) OnStep(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
	return f(ctx, e, cur)
}

// Noop does nothing.
type Noop struct{}

func (Noop) OnStep(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
	return nil
}
