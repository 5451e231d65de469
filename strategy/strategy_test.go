package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/trade"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, prices []float64) *engine.Engine {
	t.Helper()

	ticks := make([]market.Tick, len(prices))
	for i, p := range prices {
		ticks[i] = market.Tick{
			Symbol: "EURUSD",
			Time:   t0.Add(time.Duration(i) * time.Minute),
			Bid:    p,
			Ask:    p,
		}
	}
	feed := market.NewFeed()
	require.NoError(t, feed.AddSymbol(market.SymbolInfo{
		Symbol:        "EURUSD",
		Digits:        5,
		Point:         0.0001,
		ContractSize:  100000,
		MarginInitial: 1,
		VolumeMin:     0.01,
		VolumeMax:     100,
		VolumeStep:    0.01,
	}, ticks))

	l, err := ledger.New(ledger.Account{Balance: 10000, Leverage: 100, StopOut: 50, Currency: "USD", Digits: 2})
	require.NoError(t, err)
	return engine.New(feed, l, nil)
}

func drive(t *testing.T, e *engine.Engine, s Strategy, steps int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < steps; i++ {
		cur := clock.Cursor{Index: i, Time: t0.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, e.Track(ctx, cur))
		require.NoError(t, s.OnStep(ctx, e, cur))
	}
}

func TestOpenOnceOpensExactlyOne(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, []float64{1.10, 1.11, 1.12})

	s := &OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 0.1}
	drive(t, e, s, 3)

	assert.Len(t, e.Positions().OpenTickets(), 1)
	assert.Len(t, e.Deals().Values(), 1)
}

func TestSMACrossFlipsWithTrend(t *testing.T) {
	t.Parallel()
	// Ramp up, then down: the fast average crosses above then below the slow.
	prices := []float64{1.10, 1.10, 1.10, 1.11, 1.12, 1.13, 1.12, 1.10, 1.08, 1.06}
	e := newTestEngine(t, prices)

	s := &SMACross{Symbol: "EURUSD", Fast: 2, Slow: 4, Volume: 0.1}
	drive(t, e, s, len(prices))

	open := e.Positions().OpenValues()
	require.Len(t, open, 1)
	assert.Equal(t, trade.Sell, open[0].Side, "downtrend at the end of the series")

	// The uptrend leg was opened and later flipped closed.
	var outs int
	for _, d := range e.Deals().Values() {
		if d.Entry == trade.DealOut {
			outs++
		}
	}
	assert.Greater(t, outs, 0)
}

func TestNoopAndFunc(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, []float64{1.10})

	require.NoError(t, Noop{}.OnStep(context.Background(), e, clock.Cursor{}))

	var called bool
	f := Func(func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
		called = true
		return nil
	})
	require.NoError(t, f.OnStep(context.Background(), e, clock.Cursor{}))
	assert.True(t, called)
}
