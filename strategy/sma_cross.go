package strategy

import (
	"context"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/trade"
)

// SMACross holds one position in the direction of a fast/slow moving average
// crossover, flipping when the averages cross the other way. Averages are
// built from mid prices observed step by step, so a resumed run warms up
// again before trading.
type SMACross struct {
	Symbol string
	Fast   int
	Slow   int
	Volume float64

	mids []float64
}

func (s *SMACross) OnStep(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
	tick, err := e.Tick(s.Symbol)
	if err != nil {
		return nil
	}
	s.mids = append(s.mids, tick.Mid())
	if len(s.mids) > s.Slow {
		s.mids = s.mids[len(s.mids)-s.Slow:]
	}
	if len(s.mids) < s.Slow {
		return nil
	}

	want := trade.Sell
	if avg(s.mids[len(s.mids)-s.Fast:]) > avg(s.mids) {
		want = trade.Buy
	}

	for _, pos := range e.Positions().OpenValues() {
		if pos.Symbol != s.Symbol {
			continue
		}
		if pos.Side == want {
			return nil // already positioned with the trend
		}
		e.ClosePosition(ctx, pos.Ticket, "crossover flip")
	}

	e.OrderSend(ctx, engine.OrderRequest{
		Action:  engine.ActionOpen,
		Symbol:  s.Symbol,
		Side:    want,
		Volume:  s.Volume,
		Comment: "sma cross",
	})
	return nil
}

func avg(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
