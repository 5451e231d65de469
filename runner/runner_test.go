package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/config"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/journal"
	"github.com/rustyeddy/backsim/strategy"
	"github.com/rustyeddy/backsim/trade"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// writeTicks produces a zero-spread dataset, one tick per minute.
func writeTicks(t *testing.T, prices []float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("time,bid,ask\n")
	for i, p := range prices {
		fmt.Fprintf(&b, "%s,%v,%v\n", t0.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), p, p)
	}
	path := filepath.Join(t.TempDir(), "eurusd.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T, prices []float64) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Run.Start = t0
	cfg.Run.End = t0.Add(time.Duration(len(prices)) * time.Minute)
	cfg.Run.Step = "1m"
	cfg.Symbols = []config.SymbolConfig{{
		Symbol:        "EURUSD",
		CSV:           writeTicks(t, prices),
		Digits:        5,
		Point:         0.0001,
		ContractSize:  100000,
		MarginInitial: 1,
		VolumeMin:     0.01,
		VolumeMax:     100,
		VolumeStep:    0.01,
	}}
	return cfg
}

func TestRunOpenOnceRideToEnd(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.1000, 1.1010, 1.1030, 1.1050})

	r, err := New(cfg, nil)
	require.NoError(t, err)
	r.AddStrategy(&strategy.OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 0.1})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopEndOfRange, res.StopCause)
	assert.Equal(t, 4, res.Steps)

	// Close-at-end flattened the ride: 0.1 lots over 50 points.
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Wins)
	assert.Equal(t, 0, res.Losses)
	assert.Equal(t, 10050.0, res.Balance)
	assert.Equal(t, 10050.0, res.Equity)
	assert.Empty(t, r.Engine().Positions().OpenTickets())
}

func TestRunLockstepParticipants(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.10, 1.11, 1.12, 1.13, 1.14})
	cfg.Run.Participants = 3

	r, err := New(cfg, nil)
	require.NoError(t, err)

	// Each participant logs the cursor indexes it observed.
	seen := make([][]int, 3)
	for i := 0; i < 3; i++ {
		i := i
		r.AddStrategy(strategy.Func(func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
			seen[i] = append(seen[i], cur.Index)
			return nil
		}))
	}

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Steps)

	// No participant can lag or lead: all saw the same generation sequence.
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, seen[1], seen[2])
	for i := 1; i < len(seen[0]); i++ {
		assert.Equal(t, seen[0][i-1]+1, seen[0][i])
	}
}

func TestRunParticipantCountMismatch(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.10, 1.11})
	cfg.Run.Participants = 2

	r, err := New(cfg, nil)
	require.NoError(t, err)
	r.AddStrategy(strategy.Noop{})

	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participants")
}

func TestRunStrategyErrorStopsEveryone(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.10, 1.11, 1.12, 1.13})
	cfg.Run.Participants = 2

	r, err := New(cfg, nil)
	require.NoError(t, err)

	boom := errors.New("boom")
	r.AddStrategy(strategy.Func(func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
		if cur.Index == 1 {
			return boom
		}
		return nil
	}))
	r.AddStrategy(strategy.Noop{})

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StopStrategy, res.StopCause)
}

func TestRunStopLossEndsPositionNotRun(t *testing.T) {
	t.Parallel()
	// Price dips onto the stop, then recovers.
	cfg := testConfig(t, []float64{1.1000, 1.0960, 1.0950, 1.1000})

	r, err := New(cfg, nil)
	require.NoError(t, err)

	r.AddStrategy(strategy.Func(func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
		if cur.Index == 0 {
			res := e.OrderSend(ctx, engine.OrderRequest{
				Action: engine.ActionOpen, Symbol: "EURUSD", Side: trade.Buy,
				Volume: 0.1, StopLoss: 1.0950,
			})
			if !res.Retcode.OK() {
				return fmt.Errorf("open rejected: %v", res.Retcode)
			}
		}
		return nil
	}))

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopEndOfRange, res.StopCause)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Losses)
	// Stopped out at 1.0950: 0.1 lots * 50 points down.
	assert.Equal(t, 9950.0, res.Balance)
}

func TestRunJournalsToSQLite(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.1000, 1.1010, 1.1050})
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: dbPath}
	cfg.Run.ID = "01TESTRUN"

	r, err := New(cfg, nil)
	require.NoError(t, err)
	r.AddStrategy(&strategy.OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 0.1})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "01TESTRUN", res.RunID)

	j, err := journal.NewSQLite(dbPath)
	require.NoError(t, err)
	defer j.Close()

	rec, ok, err := j.GetRun("01TESTRUN")
	require.NoError(t, err)
	require.True(t, ok, "run summary drained before shutdown")
	assert.Equal(t, res.Steps, rec.Steps)
	assert.Equal(t, res.Balance, rec.Balance)
	assert.Equal(t, StopEndOfRange, rec.StopCause)

	deals, err := j.DealsBetween("01TESTRUN", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deals, 2, "one in leg, one close-at-end out leg")
	assert.Equal(t, "in", deals[0].Entry)
	assert.Equal(t, "out", deals[1].Entry)
}

func TestRunSnapshotAndResume(t *testing.T) {
	t.Parallel()
	prices := []float64{1.1000, 1.1010, 1.1020, 1.1030, 1.1040, 1.1050}
	snapDir := filepath.Join(t.TempDir(), "snaps")

	cfg := testConfig(t, prices)
	cfg.Run.ID = "01RESUME"
	cfg.Run.CloseAtEnd = false
	cfg.Snapshot = config.SnapshotConfig{Dir: snapDir, Every: 2, Compress: true}

	r, err := New(cfg, nil)
	require.NoError(t, err)
	r.AddStrategy(&strategy.OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 0.1})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Steps)
	assert.Equal(t, 0, res.Trades, "position stays open without close-at-end")

	// A fresh runner resumes from the final snapshot: the position, ticket
	// counter and cursor carry over, so the resumed run trades nothing new
	// and the clock is already spent.
	cfg.Snapshot.Resume = true
	r2, err := New(cfg, nil)
	require.NoError(t, err)
	r2.AddStrategy(&strategy.OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 0.1})

	require.Len(t, r2.Engine().Positions().OpenTickets(), 1)
	assert.Equal(t, r.Engine().NextTicket(), r2.Engine().NextTicket())

	res2, err := r2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StopEndOfRange, res2.StopCause)
	assert.Equal(t, 0, res2.Steps)
	// Unrealized ride is still on the book.
	assert.Equal(t, 10000.0, res2.Balance)
	assert.Equal(t, 10050.0, res2.Equity)
}

func TestRunBurnoutStopsRun(t *testing.T) {
	t.Parallel()
	// A heavy long into a crash: equity goes negative while margin is held.
	cfg := testConfig(t, []float64{1.1000, 1.0900, 1.0000, 0.9000, 0.8000})
	cfg.Run.CloseAtEnd = true

	r, err := New(cfg, nil)
	require.NoError(t, err)
	r.AddStrategy(&strategy.OpenOnce{Symbol: "EURUSD", Side: trade.Buy, Volume: 5})

	res, err := r.Run(context.Background())
	require.NoError(t, err, "burnout is a normal termination")
	assert.Equal(t, StopBurnout, res.StopCause)
	assert.Less(t, res.Steps, 5)

	// Wrap-up still flattens the book: the loss is realized and journaled as
	// a closing deal, nothing survives open.
	assert.Empty(t, r.Engine().Positions().OpenTickets())
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Losses)
	// Burnout fired at 1.0000: 5 lots * 1000 points against the entry.
	assert.Equal(t, -40000.0, res.Balance)
	assert.Equal(t, -40000.0, res.Equity)
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, []float64{1.10, 1.11, 1.12})

	r, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.AddStrategy(strategy.Func(func(ctx context.Context, e *engine.Engine, cur clock.Cursor) error {
		if cur.Index == 1 {
			cancel()
		}
		return nil
	}))

	res, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopCanceled, res.StopCause)
}
