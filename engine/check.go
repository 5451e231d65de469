package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/venue"
)

// volumeEps absorbs float noise when checking lot steps.
const volumeEps = 1e-6

// orderCheckLocked validates req against the current tick and account.
// It never mutates state.
func (e *Engine) orderCheckLocked(ctx context.Context, req OrderRequest) CheckResult {
	acct := e.ledger.Account()
	res := CheckResult{
		Retcode:     RetDone,
		Balance:     acct.Balance,
		Equity:      acct.Equity,
		Profit:      acct.Profit,
		Margin:      acct.Margin,
		MarginFree:  acct.MarginFree,
		MarginLevel: acct.MarginLevel,
	}

	switch req.Action {
	case ActionOpen:
		return e.checkOpenLocked(ctx, req, res)
	case ActionClose:
		return e.checkCloseLocked(req, res)
	case ActionModify:
		return e.checkModifyLocked(req, res)
	default:
		res.Retcode = RetInvalid
		res.Comment = "unknown action"
		return res
	}
}

func (e *Engine) checkOpenLocked(ctx context.Context, req OrderRequest, res CheckResult) CheckResult {
	info, ok := e.feed.Symbol(req.Symbol)
	if !ok {
		res.Retcode = RetInvalid
		res.Comment = fmt.Sprintf("unknown symbol %q", req.Symbol)
		return res
	}
	tick, err := e.feed.TickAt(req.Symbol, e.now)
	if err != nil {
		res.Retcode = RetMarketClosed
		res.Comment = err.Error()
		return res
	}

	// A configured venue answers the whole pre-check.
	if e.venue != nil {
		reply, err := e.venue.OrderCheck(ctx, venue.CheckRequest{
			Symbol:     req.Symbol,
			Side:       req.Side,
			Volume:     req.Volume,
			Price:      openPrice(req.Side, tick),
			StopLoss:   req.StopLoss,
			TakeProfit: req.TakeProfit,
		})
		if err != nil {
			res.Retcode = RetRejected
			res.Comment = err.Error()
			return res
		}
		res.Retcode = Retcode(reply.Retcode)
		res.Comment = reply.Comment
		res.Margin = reply.Margin
		res.MarginFree = reply.MarginFree
		res.MarginLevel = reply.MarginLevel
		return res
	}

	if !validVolume(info.VolumeMin, info.VolumeMax, info.VolumeStep, req.Volume) {
		res.Retcode = RetInvalidVolume
		res.Comment = fmt.Sprintf("volume %v outside [%v, %v] step %v",
			req.Volume, info.VolumeMin, info.VolumeMax, info.VolumeStep)
		return res
	}

	// Stops validate against the side the position would close on.
	if !validStops(info, req.Side, closePrice(req.Side, tick), req.StopLoss, req.TakeProfit) {
		res.Retcode = RetInvalidStops
		res.Comment = "stop levels inside minimum distance or on wrong side"
		return res
	}

	acct := e.ledger.Account()
	required := MarginRequired(info, req.Volume, openPrice(req.Side, tick), acct.Leverage, acct.Digits)
	if required > acct.MarginFree {
		res.Retcode = RetNoMoney
		res.Comment = fmt.Sprintf("required margin %v exceeds free margin %v", required, acct.MarginFree)
		return res
	}

	// Would-be post-trade figures.
	newMargin := ledger.Round(acct.Margin+required, acct.Digits)
	res.Margin = newMargin
	res.MarginFree = ledger.Round(acct.Equity-newMargin, acct.Digits)
	switch {
	case newMargin == 0:
		res.MarginLevel = 0
	case acct.MarginMode == ledger.MarginModeMoney:
		res.MarginLevel = res.MarginFree
	default:
		res.MarginLevel = ledger.Round(acct.Equity/newMargin*100, acct.Digits)
	}

	// Opening straight into stop-out territory is refused, whichever unit
	// the threshold is expressed in.
	var breach bool
	switch acct.MarginMode {
	case ledger.MarginModeMoney:
		breach = res.MarginLevel < acct.StopOut
	default:
		breach = res.MarginLevel != 0 && res.MarginLevel < acct.StopOut
	}
	if breach {
		res.Retcode = RetNoMoney
		res.Comment = fmt.Sprintf("margin level %v would breach stop-out %v", res.MarginLevel, acct.StopOut)
		return res
	}

	return res
}

func (e *Engine) checkCloseLocked(req OrderRequest, res CheckResult) CheckResult {
	pos, ok := e.positions.Get(req.PositionID)
	if !ok {
		res.Retcode = RetInvalid
		res.Comment = fmt.Sprintf("position %d not found", req.PositionID)
		return res
	}
	if !e.positions.IsOpen(req.PositionID) {
		res.Retcode = RetPositionClosed
		res.Comment = fmt.Sprintf("position %d already closed", req.PositionID)
		return res
	}
	if req.Side != pos.Side.Opposite() {
		res.Retcode = RetInvalid
		res.Comment = "closing order must oppose the position"
		return res
	}
	if math.Abs(req.Volume-pos.Volume) > volumeEps {
		res.Retcode = RetInvalidVolume
		res.Comment = fmt.Sprintf("close volume %v does not match position volume %v", req.Volume, pos.Volume)
		return res
	}
	if _, err := e.feed.TickAt(pos.Symbol, e.now); err != nil {
		res.Retcode = RetMarketClosed
		res.Comment = err.Error()
		return res
	}
	return res
}

func (e *Engine) checkModifyLocked(req OrderRequest, res CheckResult) CheckResult {
	pos, ok := e.positions.Get(req.PositionID)
	if !ok {
		res.Retcode = RetInvalid
		res.Comment = fmt.Sprintf("position %d not found", req.PositionID)
		return res
	}
	if !e.positions.IsOpen(req.PositionID) {
		res.Retcode = RetPositionClosed
		res.Comment = fmt.Sprintf("position %d already closed", req.PositionID)
		return res
	}
	info, _ := e.feed.Symbol(pos.Symbol)
	tick, err := e.feed.TickAt(pos.Symbol, e.now)
	if err != nil {
		res.Retcode = RetMarketClosed
		res.Comment = err.Error()
		return res
	}
	if !validStops(info, pos.Side, closePrice(pos.Side, tick), req.StopLoss, req.TakeProfit) {
		res.Retcode = RetInvalidStops
		res.Comment = "stop levels inside minimum distance or on wrong side"
		return res
	}
	return res
}

func validVolume(min, max, step, volume float64) bool {
	if volume < min-volumeEps || volume > max+volumeEps {
		return false
	}
	ratio := volume / step
	return math.Abs(ratio-math.Round(ratio)) < volumeEps
}
