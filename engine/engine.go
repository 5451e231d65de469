// Package engine is the matching engine: it validates and executes order
// requests against the current simulated tick, owns the trade registries and
// the ledger, and runs the per-step maintenance pass that re-prices open
// positions and fires stop triggers.
//
// All mutation is serialized by one engine-wide mutex. Strategy submissions
// and the scheduler's maintenance pass are the only two call sites, and
// mutation volume is bounded by one tick times the number of open positions,
// so no finer-grained locking is needed.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/trade"
	"github.com/rustyeddy/backsim/venue"
)

// ClosedListener is notified after the engine closes a position. Calls are
// made with the engine lock released.
type ClosedListener interface {
	OnPositionClosed(ticket int64, reason string)
}

// Engine owns the registries and ledger exclusively.
type Engine struct {
	mu        sync.Mutex
	feed      *market.Feed
	ledger    *ledger.Ledger
	orders    *trade.Orders
	positions *trade.Positions
	deals     *trade.Deals

	venue    venue.Venue
	listener ClosedListener
	log      *zap.Logger

	now        time.Time
	nextTicket int64
}

// New builds an engine over the recorded feed and a seeded ledger.
func New(feed *market.Feed, l *ledger.Ledger, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		feed:       feed,
		ledger:     l,
		orders:     trade.NewOrders(),
		positions:  trade.NewPositions(),
		deals:      trade.NewDeals(),
		log:        log,
		nextTicket: 1,
	}
}

// SetVenue installs the live-terminal fallback for numeric queries.
func (e *Engine) SetVenue(v venue.Venue) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.venue = v
}

// SetClosedListener installs an optional close callback.
func (e *Engine) SetClosedListener(l ClosedListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = l
}

// SetTime moves the engine's notion of "now". The lockstep controller calls
// this once per step before strategies run.
func (e *Engine) SetTime(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = t
}

// Now returns the simulated instant the engine prices against.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Account returns a copy of the current account state.
func (e *Engine) Account() ledger.Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Account()
}

// Registry accessors. The registries' own locks make reads safe, but only
// the engine writes to them.
func (e *Engine) Orders() *trade.Orders       { return e.orders }
func (e *Engine) Positions() *trade.Positions { return e.positions }
func (e *Engine) Deals() *trade.Deals         { return e.deals }

// Tick returns the quote for symbol at the current simulated instant.
func (e *Engine) Tick(symbol string) (market.Tick, error) {
	e.mu.Lock()
	now := e.now
	e.mu.Unlock()
	return e.feed.TickAt(symbol, now)
}

// SymbolInfo resolves symbol metadata, preferring the venue when set.
func (e *Engine) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	e.mu.Lock()
	v := e.venue
	e.mu.Unlock()
	if v != nil {
		return v.SymbolInfo(ctx, symbol)
	}
	info, ok := e.feed.Symbol(symbol)
	if !ok {
		return market.SymbolInfo{}, fmt.Errorf("engine: unknown symbol %q", symbol)
	}
	return info, nil
}

// OrderCheck validates a request without mutating anything. The returned
// figures are the would-be post-trade account values.
func (e *Engine) OrderCheck(ctx context.Context, req OrderRequest) CheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.orderCheckLocked(ctx, req)
}

// OrderSend re-validates and executes a request. Either the whole request is
// applied or nothing is: every rejection path leaves all state untouched.
func (e *Engine) OrderSend(ctx context.Context, req OrderRequest) OrderResult {
	e.mu.Lock()

	check := e.orderCheckLocked(ctx, req)
	if !check.Retcode.OK() {
		e.mu.Unlock()
		e.log.Debug("order rejected",
			zap.String("action", req.Action.String()),
			zap.String("symbol", req.Symbol),
			zap.Int("retcode", int(check.Retcode)),
			zap.String("comment", check.Comment))
		return OrderResult{Retcode: check.Retcode, Comment: check.Comment}
	}

	var (
		res      OrderResult
		closed   int64
		reason   string
		notified bool
	)
	switch req.Action {
	case ActionOpen:
		res = e.openLocked(ctx, req)
	case ActionClose:
		res = e.closeLocked(ctx, req.PositionID, "close order")
		closed, reason, notified = req.PositionID, "close order", true
	case ActionModify:
		res = e.modifyLocked(req)
	default:
		res = OrderResult{Retcode: RetInvalid, Comment: "unknown action"}
	}

	listener := e.listener
	e.mu.Unlock()

	if notified && res.Retcode.OK() && listener != nil {
		listener.OnPositionClosed(closed, reason)
	}
	return res
}

// ClosePosition closes one open position at the current market. Unknown or
// already-closed tickets are rejected without mutation.
func (e *Engine) ClosePosition(ctx context.Context, ticket int64, reason string) OrderResult {
	if reason == "" {
		reason = "manual close"
	}
	e.mu.Lock()
	res := e.closeLocked(ctx, ticket, reason)
	listener := e.listener
	e.mu.Unlock()

	if res.Retcode.OK() && listener != nil {
		listener.OnPositionClosed(ticket, reason)
	}
	return res
}

// CloseAll closes every open position, returning how many were closed. Used
// by the runner's wrap-up when close-at-end is configured.
func (e *Engine) CloseAll(ctx context.Context, reason string) (int, error) {
	if reason == "" {
		reason = "end of run"
	}
	e.mu.Lock()
	tickets := e.positions.OpenTickets()
	closed := make([]int64, 0, len(tickets))
	for _, ticket := range tickets {
		res := e.closeLocked(ctx, ticket, reason)
		if !res.Retcode.OK() {
			e.mu.Unlock()
			return len(closed), fmt.Errorf("engine: close all: ticket %d: %s", ticket, res.Retcode)
		}
		closed = append(closed, ticket)
	}
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		for _, ticket := range closed {
			listener.OnPositionClosed(ticket, reason)
		}
	}
	return len(closed), nil
}

// openLocked fills a market order: entry at ask for buys, bid for sells.
func (e *Engine) openLocked(ctx context.Context, req OrderRequest) OrderResult {
	tick, err := e.feed.TickAt(req.Symbol, e.now)
	if err != nil {
		return OrderResult{Retcode: RetMarketClosed, Comment: err.Error()}
	}
	price := openPrice(req.Side, tick)

	margin, err := e.marginCalcLocked(ctx, req.Symbol, req.Side, req.Volume, price)
	if err != nil {
		return OrderResult{Retcode: RetRejected, Comment: err.Error()}
	}

	orderTicket := e.takeTicket()
	posTicket := e.takeTicket()
	dealTicket := e.takeTicket()

	e.orders.Set(orderTicket, trade.Order{
		Ticket:         orderTicket,
		Symbol:         req.Symbol,
		Side:           req.Side,
		VolumeRequest:  req.Volume,
		VolumeExecuted: req.Volume,
		Price:          price,
		StopLoss:       req.StopLoss,
		TakeProfit:     req.TakeProfit,
		SetupTime:      e.now,
		DoneTime:       e.now,
		PositionID:     posTicket,
		State:          trade.OrderFilled,
	})
	e.positions.Add(trade.Position{
		Ticket:       posTicket,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Volume:       req.Volume,
		PriceOpen:    price,
		PriceCurrent: price,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		TimeOpen:     e.now,
	})
	e.positions.SetMargin(posTicket, margin)
	e.deals.Append(trade.Deal{
		Ticket:     dealTicket,
		OrderID:    orderTicket,
		PositionID: posTicket,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Entry:      trade.DealIn,
		Volume:     req.Volume,
		Price:      price,
		Time:       e.now,
	})
	e.ledger.UpdateAccount(nil, margin, 0)

	e.log.Debug("position opened",
		zap.Int64("position", posTicket),
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.Float64("volume", req.Volume),
		zap.Float64("price", price),
		zap.Float64("margin", margin))

	return OrderResult{
		Retcode:     RetDone,
		OrderTicket: orderTicket,
		DealTicket:  dealTicket,
		PositionID:  posTicket,
		Volume:      req.Volume,
		Price:       price,
	}
}

// closeLocked closes an open position at the close side of the spread,
// releases its margin and posts the realized gain.
func (e *Engine) closeLocked(ctx context.Context, ticket int64, reason string) OrderResult {
	pos, ok := e.positions.Get(ticket)
	if !ok {
		e.log.Warn("close of unknown position", zap.Int64("ticket", ticket))
		return OrderResult{Retcode: RetInvalid, Comment: fmt.Sprintf("position %d not found", ticket)}
	}
	if !e.positions.IsOpen(ticket) {
		e.log.Warn("close of closed position", zap.Int64("ticket", ticket))
		return OrderResult{Retcode: RetPositionClosed, Comment: fmt.Sprintf("position %d already closed", ticket)}
	}

	tick, err := e.feed.TickAt(pos.Symbol, e.now)
	if err != nil {
		return OrderResult{Retcode: RetMarketClosed, Comment: err.Error()}
	}
	price := closePrice(pos.Side, tick)

	realized, err := e.profitCalcLocked(ctx, pos.Symbol, pos.Side, pos.Volume, pos.PriceOpen, price)
	if err != nil {
		return OrderResult{Retcode: RetRejected, Comment: err.Error()}
	}

	return e.settleCloseLocked(pos, price, realized, reason)
}

// settleCloseLocked performs the bookkeeping of a close once the price and
// realized profit are known.
func (e *Engine) settleCloseLocked(pos trade.Position, price, realized float64, reason string) OrderResult {
	margin, _ := e.positions.Margin(pos.Ticket)

	pos.PriceCurrent = price
	pos.Profit = realized
	pos.TimeClose = e.now
	e.positions.Update(pos)
	e.positions.Close(pos.Ticket)
	e.positions.DeleteMargin(pos.Ticket)

	orderTicket := e.takeTicket()
	dealTicket := e.takeTicket()

	e.orders.Set(orderTicket, trade.Order{
		Ticket:         orderTicket,
		Symbol:         pos.Symbol,
		Side:           pos.Side.Opposite(),
		VolumeRequest:  pos.Volume,
		VolumeExecuted: pos.Volume,
		Price:          price,
		SetupTime:      e.now,
		DoneTime:       e.now,
		PositionID:     pos.Ticket,
		State:          trade.OrderFilled,
	})
	e.deals.Append(trade.Deal{
		Ticket:     dealTicket,
		OrderID:    orderTicket,
		PositionID: pos.Ticket,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Entry:      trade.DealOut,
		Volume:     pos.Volume,
		Price:      price,
		Profit:     realized,
		Time:       e.now,
	})

	// Remaining unrealized profit excludes the position that just left.
	floating := e.floatingProfitLocked()
	e.ledger.UpdateAccount(&floating, -margin, realized)

	e.log.Debug("position closed",
		zap.Int64("position", pos.Ticket),
		zap.String("reason", reason),
		zap.Float64("price", price),
		zap.Float64("profit", realized))

	return OrderResult{
		Retcode:     RetDone,
		OrderTicket: orderTicket,
		DealTicket:  dealTicket,
		PositionID:  pos.Ticket,
		Volume:      pos.Volume,
		Price:       price,
	}
}

// modifyLocked rewrites stop levels on the open order+position pair.
func (e *Engine) modifyLocked(req OrderRequest) OrderResult {
	pos, _ := e.positions.Get(req.PositionID)
	pos.StopLoss = req.StopLoss
	pos.TakeProfit = req.TakeProfit
	e.positions.Update(pos)

	// The opening order shares the position's direction; the closing order,
	// if any, never carries stops.
	for _, ord := range e.orders.ByPosition(req.PositionID) {
		if ord.Side == pos.Side {
			ord.StopLoss = req.StopLoss
			ord.TakeProfit = req.TakeProfit
			e.orders.Set(ord.Ticket, ord)
		}
	}

	return OrderResult{Retcode: RetDone, PositionID: req.PositionID}
}

// floatingProfitLocked totals the unrealized profit of all open positions.
func (e *Engine) floatingProfitLocked() float64 {
	var sum float64
	for _, pos := range e.positions.OpenValues() {
		sum += pos.Profit
	}
	return sum
}

// marginCalcLocked delegates to the venue when configured.
func (e *Engine) marginCalcLocked(ctx context.Context, symbol string, side trade.Side, volume, price float64) (float64, error) {
	if e.venue != nil {
		return e.venue.MarginCalc(ctx, venue.MarginRequest{
			Symbol: symbol, Side: side, Volume: volume, Price: price,
		})
	}
	info, ok := e.feed.Symbol(symbol)
	if !ok {
		return 0, fmt.Errorf("engine: unknown symbol %q", symbol)
	}
	acct := e.ledger.Account()
	return MarginRequired(info, volume, price, acct.Leverage, acct.Digits), nil
}

// profitCalcLocked delegates to the venue when configured.
func (e *Engine) profitCalcLocked(ctx context.Context, symbol string, side trade.Side, volume, priceOpen, priceClose float64) (float64, error) {
	if e.venue != nil {
		return e.venue.ProfitCalc(ctx, venue.ProfitRequest{
			Symbol: symbol, Side: side, Volume: volume,
			PriceOpen: priceOpen, PriceClose: priceClose,
		})
	}
	info, ok := e.feed.Symbol(symbol)
	if !ok {
		return 0, fmt.Errorf("engine: unknown symbol %q", symbol)
	}
	return Profit(info, side, volume, priceOpen, priceClose, e.ledger.Account().Digits), nil
}

func (e *Engine) takeTicket() int64 {
	t := e.nextTicket
	e.nextTicket++
	return t
}

// NextTicket exposes the counter for snapshots.
func (e *Engine) NextTicket() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextTicket
}

// View is a copy of everything the engine mutates, taken as one unit.
type View struct {
	Account     ledger.Account
	Orders      map[int64]trade.Order
	Positions   map[int64]trade.Position
	OpenTickets []int64
	Margins     map[int64]float64
	Deals       map[int64]trade.Deal
	NextTicket  int64
}

// Snapshot copies the engine state in a single critical section, so no
// order, position or ticket can move between the parts of the view.
func (e *Engine) Snapshot() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		Account:     e.ledger.Account(),
		Orders:      e.orders.Snapshot(),
		Positions:   e.positions.Snapshot(),
		OpenTickets: e.positions.OpenTickets(),
		Margins:     e.positions.Margins(),
		Deals:       e.deals.Snapshot(),
		NextTicket:  e.nextTicket,
	}
}

// Restore rewinds the engine to a serialized state: account, registries,
// ticket counter and simulated instant.
func (e *Engine) Restore(acct ledger.Account, orders map[int64]trade.Order, positions map[int64]trade.Position, open []int64, margins map[int64]float64, deals map[int64]trade.Deal, nextTicket int64, cur clock.Cursor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Restore(acct)
	e.orders.Restore(orders)
	e.positions.Restore(positions, open, margins)
	e.deals.Restore(deals)
	e.nextTicket = nextTicket
	e.now = cur.Time
}
