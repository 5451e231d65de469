package strategy

import (
	"context"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/trade"
)

// OpenOnce submits a single market order on the first step it sees a quote,
// then goes quiet. Useful as a smoke-test participant.
type OpenOnce struct {
	Symbol string
	Side   trade.Side
	Volume float64

	done bool
}

func (s *OpenOnce) OnStep(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
	if s.done {
		return nil
	}
	if _, err := e.Tick(s.Symbol); err != nil {
		return nil // no quote yet, try next step
	}
	res := e.OrderSend(ctx, engine.OrderRequest{
		Action:  engine.ActionOpen,
		Symbol:  s.Symbol,
		Side:    s.Side,
		Volume:  s.Volume,
		Comment: "open once",
	})
	if res.Retcode.OK() {
		s.done = true
	}
	return nil
}
