package engine

import (
	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/trade"
)

// MarginRequired computes the margin reserved against a new exposure:
//
//	volume * contractSize * price / (leverage / marginInitial)
//
// rounded to the account's currency precision.
func MarginRequired(info market.SymbolInfo, volume, price, leverage float64, digits int) float64 {
	return ledger.Round(volume*info.ContractSize*price/(leverage/info.MarginInitial), digits)
}

// Profit computes the realized or floating profit of a leg:
//
//	volume * contractSize * (close - open)
//
// sign-flipped for sells, rounded to the account's currency precision.
func Profit(info market.SymbolInfo, side trade.Side, volume, priceOpen, priceClose float64, digits int) float64 {
	p := volume * info.ContractSize * (priceClose - priceOpen)
	if side == trade.Sell {
		p = -p
	}
	return ledger.Round(p, digits)
}

// closePrice returns the spread side a position closes on: buys close on
// bid, sells on ask. The same side drives both stop triggers.
func closePrice(side trade.Side, tick market.Tick) float64 {
	if side == trade.Buy {
		return tick.Bid
	}
	return tick.Ask
}

// openPrice returns the spread side a new position fills on: buys at ask,
// sells at bid.
func openPrice(side trade.Side, tick market.Tick) float64 {
	if side == trade.Buy {
		return tick.Ask
	}
	return tick.Bid
}

// stopsHit reports whether the close-side price has crossed the position's
// stop-loss or take-profit. Zero stop levels are disabled.
func stopsHit(pos trade.Position, mark float64) (reason string, hit bool) {
	if pos.Side == trade.Buy {
		switch {
		case pos.StopLoss > 0 && mark <= pos.StopLoss:
			return "stop-loss", true
		case pos.TakeProfit > 0 && mark >= pos.TakeProfit:
			return "take-profit", true
		}
		return "", false
	}
	switch {
	case pos.StopLoss > 0 && mark >= pos.StopLoss:
		return "stop-loss", true
	case pos.TakeProfit > 0 && mark <= pos.TakeProfit:
		return "take-profit", true
	}
	return "", false
}

// validStops checks requested stop levels against the close-side price and
// the symbol's minimum stop distance. Zero levels are allowed (no stop).
func validStops(info market.SymbolInfo, side trade.Side, mark, sl, tp float64) bool {
	dist := info.StopDistance()
	if side == trade.Buy {
		if sl > 0 && sl > mark-dist {
			return false
		}
		if tp > 0 && tp < mark+dist {
			return false
		}
		return true
	}
	if sl > 0 && sl < mark+dist {
		return false
	}
	if tp > 0 && tp > mark-dist {
		return false
	}
	return true
}
