// Package runner assembles a run from its configuration and drives it:
// strategies execute as lockstep participants, the engine's maintenance pass
// and the clock advance run between generations, and journaling and
// snapshotting happen on the background queue.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/config"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/internal/id"
	"github.com/rustyeddy/backsim/journal"
	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/lockstep"
	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/snapshot"
	"github.com/rustyeddy/backsim/strategy"
	"github.com/rustyeddy/backsim/taskq"
	"github.com/rustyeddy/backsim/trade"
)

// Queue priorities. Lower runs first: shutdown bookkeeping beats snapshots,
// snapshots beat routine journaling.
const (
	prioFinal    = 0
	prioSnapshot = 10
	prioJournal  = 20
)

// Stop causes reported in Result and the run record.
const (
	StopEndOfRange = "end of range"
	StopBurnout    = "burnout"
	StopCanceled   = "canceled"
	StopStrategy   = "strategy error"
)

// Result summarizes a finished run.
type Result struct {
	RunID     string
	Steps     int
	Balance   float64
	Equity    float64
	Trades    int
	Wins      int
	Losses    int
	StopCause string
}

// Runner owns one run's moving parts.
type Runner struct {
	cfg config.Config
	log *zap.Logger

	runID string
	feed  *market.Feed
	eng   *engine.Engine
	clk   *clock.Clock
	queue *taskq.Queue
	jrnl  journal.Journal

	strategies []strategy.Strategy

	cursor        atomic.Pointer[clock.Cursor]
	steps         int
	lastDealSaved int64
}

// New builds the feed, ledger, engine, clock, queue and journal from cfg.
// Strategies are attached afterwards with AddStrategy; the participant count
// in the config must match the number attached before Run.
func New(cfg config.Config, log *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	feed := market.NewFeed()
	for _, sc := range cfg.Symbols {
		ticks, err := market.LoadCSV(sc.CSV, sc.Symbol)
		if err != nil {
			return nil, fmt.Errorf("runner: load %s: %w", sc.Symbol, err)
		}
		info := market.SymbolInfo{
			Symbol:        sc.Symbol,
			Digits:        sc.Digits,
			Point:         sc.Point,
			ContractSize:  sc.ContractSize,
			MarginInitial: sc.MarginInitial,
			VolumeMin:     sc.VolumeMin,
			VolumeMax:     sc.VolumeMax,
			VolumeStep:    sc.VolumeStep,
			StopsLevel:    sc.StopsLevel,
		}
		if err := feed.AddSymbol(info, ticks); err != nil {
			return nil, fmt.Errorf("runner: add %s: %w", sc.Symbol, err)
		}
	}

	mode := ledger.MarginModePercent
	if cfg.Account.MarginMode == "money" {
		mode = ledger.MarginModeMoney
	}
	l, err := ledger.New(ledger.Account{
		Balance:    cfg.Account.Balance,
		Currency:   cfg.Account.Currency,
		Digits:     cfg.Account.Digits,
		Leverage:   cfg.Account.Leverage,
		StopOut:    cfg.Account.StopOut,
		MarginMode: mode,
	})
	if err != nil {
		return nil, err
	}

	step, err := cfg.Run.StepDuration()
	if err != nil {
		return nil, err
	}
	clk, err := clock.New(cfg.Run.Start, cfg.Run.End, step)
	if err != nil {
		return nil, err
	}

	idle, err := cfg.Queue.IdleDuration()
	if err != nil {
		return nil, err
	}

	jrnl, err := openJournal(cfg.Journal)
	if err != nil {
		return nil, err
	}

	runID := cfg.Run.ID
	if runID == "" {
		runID = id.New()
	}

	r := &Runner{
		cfg:   cfg,
		log:   log.With(zap.String("run", runID)),
		runID: runID,
		feed:  feed,
		eng:   engine.New(feed, l, log),
		clk:   clk,
		queue: taskq.New(taskq.Options{
			MinWorkers:  cfg.Queue.MinWorkers,
			MaxWorkers:  cfg.Queue.MaxWorkers,
			IdleTimeout: idle,
			Logger:      log,
		}),
		jrnl: jrnl,
	}

	if cfg.Snapshot.Resume {
		if err := r.resume(); err != nil {
			jrnl.Close()
			return nil, err
		}
	}
	return r, nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "", "none":
		return journal.Nop{}, nil
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	case "csv":
		return journal.NewCSV(jc.DealsFile, jc.EquityFile, jc.RunsFile)
	default:
		return nil, fmt.Errorf("runner: unknown journal type %q", jc.Type)
	}
}

// resume restores engine and clock from the latest snapshot of this run, if
// one exists. A missing snapshot is not an error; the run starts fresh.
func (r *Runner) resume() error {
	st, ok, err := snapshot.LoadLatest(r.cfg.Snapshot.Dir, r.runID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	st.Apply(r.eng)
	if err := r.clk.Restore(st.Cursor); err != nil {
		return fmt.Errorf("runner: restore clock: %w", err)
	}
	r.cursor.Store(&st.Cursor)
	r.lastDealSaved = highestTicket(st.Deals)
	r.log.Info("resumed from snapshot",
		zap.Int("index", st.Cursor.Index),
		zap.Time("time", st.Cursor.Time))
	return nil
}

func highestTicket(deals map[int64]trade.Deal) int64 {
	var hi int64
	for t := range deals {
		if t > hi {
			hi = t
		}
	}
	return hi
}

// AddStrategy attaches one lockstep participant.
func (r *Runner) AddStrategy(s strategy.Strategy) {
	r.strategies = append(r.strategies, s)
}

// RunID returns the identifier snapshots and journal rows are keyed by.
func (r *Runner) RunID() string { return r.runID }

// Engine exposes the engine for inspection after a run.
func (r *Runner) Engine() *engine.Engine { return r.eng }

// Run executes the whole backtest and blocks until wrap-up is complete,
// including the drain of critical background work. It always returns a
// Result; the error reports strategy or infrastructure failures, not normal
// terminations like end-of-range or burnout.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if len(r.strategies) != r.cfg.Run.Participants {
		return Result{}, fmt.Errorf("runner: %d strategies attached, config wants %d participants",
			len(r.strategies), r.cfg.Run.Participants)
	}

	barrier, err := lockstep.New(len(r.strategies))
	if err != nil {
		return Result{}, err
	}

	stopCause := StopEndOfRange
	ctrl := lockstep.NewController(barrier, r.step, r.log)

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.strategies {
		s := s
		g.Go(func() error {
			return r.participant(gctx, barrier, s)
		})
	}

	runErr := ctrl.Run(gctx)
	waitErr := g.Wait()

	switch {
	case errors.Is(runErr, clock.ErrEndOfRun):
		stopCause = StopEndOfRange
		runErr = nil
	case errors.Is(runErr, engine.ErrBurnout):
		stopCause = StopBurnout
		runErr = nil
	case errors.Is(runErr, lockstep.ErrStopped):
		runErr = nil
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		stopCause = StopCanceled
		if ctx.Err() == nil {
			// The group context fell over because a strategy failed.
			stopCause = StopStrategy
		}
		runErr = nil
	}
	if waitErr != nil && !errors.Is(waitErr, lockstep.ErrStopped) &&
		!errors.Is(waitErr, context.Canceled) {
		stopCause = StopStrategy
		if runErr == nil {
			runErr = waitErr
		}
	}

	res := r.wrapUp(stopCause)
	return res, runErr
}

// participant is one strategy's lockstep loop: block on the barrier, then
// act on the cursor the controller published.
func (r *Runner) participant(ctx context.Context, b *lockstep.Barrier, s strategy.Strategy) error {
	for {
		if err := b.Arrive(ctx); err != nil {
			return err
		}
		cur := r.cursor.Load()
		if cur == nil {
			continue
		}
		if err := s.OnStep(ctx, r.eng, *cur); err != nil {
			return fmt.Errorf("runner: strategy: %w", err)
		}
	}
}

// step runs between generations with every participant parked: advance the
// clock, re-mark open positions, fire stops, then queue background work.
func (r *Runner) step(ctx context.Context) error {
	cur, err := r.clk.Advance()
	if err != nil {
		return err
	}
	if err := r.eng.Track(ctx, cur); err != nil {
		return err
	}
	r.cursor.Store(&cur)
	r.steps++

	r.journalNewDeals()

	if every := r.cfg.Run.EquityEvery; every > 0 && cur.Index%every == 0 {
		r.journalEquity(cur, false)
	}
	if every := r.cfg.Snapshot.Every; every > 0 && cur.Index > 0 && cur.Index%every == 0 {
		// Capture synchronously while strategies are parked; only the file
		// write rides the queue.
		st := snapshot.Capture(r.runID, cur, r.eng, r.feed)
		r.submit(taskq.Item{
			Name:     "snapshot",
			Priority: prioSnapshot,
			Fn: func(context.Context) error {
				_, err := snapshot.Save(r.cfg.Snapshot.Dir, st, r.cfg.Snapshot.Compress)
				return err
			},
		})
	}
	return nil
}

// journalNewDeals queues a journal write for every deal not yet persisted.
// Deal rows are the canonical trade history, so they are always critical and
// survive the drain at shutdown.
func (r *Runner) journalNewDeals() {
	for _, d := range r.eng.Deals().Values() {
		if d.Ticket <= r.lastDealSaved {
			continue
		}
		r.lastDealSaved = d.Ticket
		rec := journal.DealRecord{
			RunID:      r.runID,
			Ticket:     d.Ticket,
			OrderID:    d.OrderID,
			PositionID: d.PositionID,
			Symbol:     d.Symbol,
			Side:       d.Side.String(),
			Entry:      d.Entry.String(),
			Volume:     d.Volume,
			Price:      d.Price,
			Profit:     d.Profit,
			Time:       d.Time,
		}
		r.submit(taskq.Item{
			Name:     "journal deal",
			Priority: prioJournal,
			Critical: true,
			Fn:       func(context.Context) error { return r.jrnl.RecordDeal(rec) },
		})
	}
}

func (r *Runner) journalEquity(cur clock.Cursor, critical bool) {
	acct := r.eng.Account()
	rec := journal.EquityRecord{
		RunID:       r.runID,
		Step:        cur.Index,
		Time:        cur.Time,
		Balance:     acct.Balance,
		Equity:      acct.Equity,
		Margin:      acct.Margin,
		MarginFree:  acct.MarginFree,
		MarginLevel: acct.MarginLevel,
	}
	r.submit(taskq.Item{
		Name:     "journal equity",
		Priority: prioJournal,
		Critical: critical,
		Fn:       func(context.Context) error { return r.jrnl.RecordEquity(rec) },
	})
}

func (r *Runner) submit(item taskq.Item) {
	if err := r.queue.Submit(item); err != nil {
		r.log.Warn("background task dropped", zap.String("task", item.Name), zap.Error(err))
	}
}

// wrapUp finishes a run regardless of how it stopped: optionally flatten the
// book, persist what remains, write the run summary, then drain the queue.
func (r *Runner) wrapUp(stopCause string) Result {
	ctx := context.Background()
	cur := clock.Cursor{}
	if p := r.cursor.Load(); p != nil {
		cur = *p
	}

	if r.cfg.Run.CloseAtEnd {
		reason := "end of run"
		if stopCause == StopBurnout {
			reason = "burnout liquidation"
		}
		if n, err := r.eng.CloseAll(ctx, reason); err != nil {
			r.log.Warn("close all failed", zap.Int("closed", n), zap.Error(err))
		} else if n > 0 {
			r.log.Info("flattened open positions", zap.Int("count", n))
		}
	}

	r.journalNewDeals()
	r.journalEquity(cur, true)

	if r.cfg.Snapshot.Every > 0 || r.cfg.Snapshot.Resume {
		st := snapshot.Capture(r.runID, cur, r.eng, r.feed)
		r.submit(taskq.Item{
			Name:     "final snapshot",
			Priority: prioFinal,
			Critical: true,
			Fn: func(context.Context) error {
				_, err := snapshot.Save(r.cfg.Snapshot.Dir, st, r.cfg.Snapshot.Compress)
				return err
			},
		})
	}

	res := r.result(stopCause)
	rec := journal.RunRecord{
		RunID:     r.runID,
		Start:     r.cfg.Run.Start,
		End:       cur.Time,
		Steps:     res.Steps,
		Trades:    res.Trades,
		Wins:      res.Wins,
		Losses:    res.Losses,
		Balance:   res.Balance,
		Equity:    res.Equity,
		StopCause: stopCause,
	}
	r.submit(taskq.Item{
		Name:     "run record",
		Priority: prioFinal,
		Critical: true,
		Fn:       func(context.Context) error { return r.jrnl.RecordRun(rec) },
	})

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := r.queue.Shutdown(shutdownCtx, taskq.DrainCritical); err != nil {
		r.log.Warn("queue shutdown", zap.Error(err))
	}
	if err := r.jrnl.Close(); err != nil {
		r.log.Warn("journal close", zap.Error(err))
	}

	r.log.Info("run finished",
		zap.Int("steps", res.Steps),
		zap.Int("trades", res.Trades),
		zap.Float64("balance", res.Balance),
		zap.String("stop", stopCause))
	return res
}

// result tallies the run from the deal registry and account.
func (r *Runner) result(stopCause string) Result {
	acct := r.eng.Account()
	res := Result{
		RunID:     r.runID,
		Steps:     r.steps,
		Balance:   acct.Balance,
		Equity:    acct.Equity,
		StopCause: stopCause,
	}
	for _, d := range r.eng.Deals().Values() {
		if d.Entry != trade.DealOut {
			continue
		}
		res.Trades++
		switch {
		case d.Profit > 0:
			res.Wins++
		case d.Profit < 0:
			res.Losses++
		}
	}
	return res
}
