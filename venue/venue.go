// Package venue defines the optional live trading-terminal fallback. When a
// run is configured with a venue, the matching engine delegates its numeric
// queries (margin, profit, symbol metadata, order pre-checks) to it instead
// of computing them locally. The simulation never requires a venue for
// correctness; a nil venue selects the simulated path.
package venue

import (
	"context"

	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/trade"
)

// MarginRequest asks for the margin a new exposure would reserve.
type MarginRequest struct {
	Symbol string
	Side   trade.Side
	Volume float64
	Price  float64
}

// ProfitRequest asks for the realized profit of a closed leg.
type ProfitRequest struct {
	Symbol     string
	Side       trade.Side
	Volume     float64
	PriceOpen  float64
	PriceClose float64
}

// CheckRequest mirrors the engine's order pre-check inputs.
type CheckRequest struct {
	Symbol     string
	Side       trade.Side
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
}

// CheckReply carries the venue's verdict and would-be account figures.
type CheckReply struct {
	Retcode     int
	Comment     string
	Margin      float64
	MarginFree  float64
	MarginLevel float64
}

// Venue is the narrow request/response contract with a live terminal.
type Venue interface {
	SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error)
	MarginCalc(ctx context.Context, req MarginRequest) (float64, error)
	ProfitCalc(ctx context.Context, req ProfitRequest) (float64, error)
	OrderCheck(ctx context.Context, req CheckRequest) (CheckReply, error)
}
