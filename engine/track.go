package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rustyeddy/backsim/clock"
)

// ErrBurnout is returned by Track when the account hits the stop-out
// condition. It is fatal for the whole run, not for a single position.
var ErrBurnout = errors.New("engine: account burnout")

type closedNote struct {
	ticket int64
	reason string
}

// Track is the per-step maintenance pass. It runs strictly between one
// cursor becoming visible and the next: re-price every open position from
// the recorded series, recompute profit, fire stop-loss/take-profit
// triggers, push the aggregate unrealized profit into the ledger and check
// for burnout.
func (e *Engine) Track(ctx context.Context, cur clock.Cursor) error {
	e.mu.Lock()
	e.now = cur.Time

	var closed []closedNote
	for _, ticket := range e.positions.OpenTickets() {
		if note, ok := e.checkPositionLocked(ctx, ticket); ok {
			closed = append(closed, note)
		}
	}

	floating := e.floatingProfitLocked()
	e.ledger.UpdateAccount(&floating, 0, 0)
	burnout := e.ledger.CheckBurnout()
	acct := e.ledger.Account()
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, note := range closed {
			listener.OnPositionClosed(note.ticket, note.reason)
		}
	}

	if burnout {
		e.log.Error("account burnout",
			zap.Int("step", cur.Index),
			zap.Float64("equity", acct.Equity),
			zap.Float64("margin_level", acct.MarginLevel))
		return fmt.Errorf("%w at step %d", ErrBurnout, cur.Index)
	}
	return nil
}

// CheckPosition re-prices one open position and fires its stop triggers.
// Unknown or closed tickets are reported as a no-op rejection.
func (e *Engine) CheckPosition(ctx context.Context, ticket int64) OrderResult {
	e.mu.Lock()
	if !e.positions.IsOpen(ticket) {
		e.mu.Unlock()
		e.log.Warn("check of unknown or closed position", zap.Int64("ticket", ticket))
		return OrderResult{Retcode: RetPositionClosed, Comment: fmt.Sprintf("position %d not open", ticket)}
	}
	note, closedNow := e.checkPositionLocked(ctx, ticket)
	listener := e.listener
	e.mu.Unlock()

	if closedNow && listener != nil {
		listener.OnPositionClosed(note.ticket, note.reason)
	}
	return OrderResult{Retcode: RetDone, PositionID: ticket}
}

// CheckOrder re-prices the position linked to an order. Orders fill
// immediately in this engine, so the per-step work lives on the position.
func (e *Engine) CheckOrder(ctx context.Context, ticket int64) OrderResult {
	ord, ok := e.orders.Get(ticket)
	if !ok {
		e.log.Warn("check of unknown order", zap.Int64("ticket", ticket))
		return OrderResult{Retcode: RetInvalid, Comment: fmt.Sprintf("order %d not found", ticket)}
	}
	return e.CheckPosition(ctx, ord.PositionID)
}

// checkPositionLocked does the actual per-position step: mark to the close
// side of the spread, recompute profit, close on a stop trigger. A missing
// quote leaves the position at its last mark.
func (e *Engine) checkPositionLocked(ctx context.Context, ticket int64) (closedNote, bool) {
	pos, ok := e.positions.Get(ticket)
	if !ok || !e.positions.IsOpen(ticket) {
		return closedNote{}, false
	}

	tick, err := e.feed.TickAt(pos.Symbol, e.now)
	if err != nil {
		return closedNote{}, false
	}
	mark := closePrice(pos.Side, tick)

	profit, err := e.profitCalcLocked(ctx, pos.Symbol, pos.Side, pos.Volume, pos.PriceOpen, mark)
	if err != nil {
		e.log.Warn("profit calc failed", zap.Int64("ticket", ticket), zap.Error(err))
		return closedNote{}, false
	}

	pos.PriceCurrent = mark
	pos.Profit = profit
	e.positions.Update(pos)

	if reason, hit := stopsHit(pos, mark); hit {
		res := e.settleCloseLocked(pos, mark, profit, reason)
		if res.Retcode.OK() {
			return closedNote{ticket: ticket, reason: reason}, true
		}
	}
	return closedNote{}, false
}
