package engine

import "github.com/rustyeddy/backsim/trade"

// Action selects what an order request does.
type Action int

const (
	// ActionOpen fills a new market order and opens a position.
	ActionOpen Action = iota
	// ActionClose closes an open position with an opposing order.
	ActionClose
	// ActionModify updates stop-loss/take-profit on an open position.
	ActionModify
)

func (a Action) String() string {
	switch a {
	case ActionOpen:
		return "open"
	case ActionClose:
		return "close"
	case ActionModify:
		return "modify"
	default:
		return "unknown"
	}
}

// OrderRequest is a strategy's instruction to the engine.
type OrderRequest struct {
	Action     Action
	Symbol     string
	Side       trade.Side
	Volume     float64
	PositionID int64 // required for close and modify
	StopLoss   float64
	TakeProfit float64
	Comment    string
}

// CheckResult is the outcome of a pre-trade validation. For an accepted open
// request the account figures are the would-be post-trade values.
type CheckResult struct {
	Retcode     Retcode
	Comment     string
	Balance     float64
	Equity      float64
	Profit      float64
	Margin      float64
	MarginFree  float64
	MarginLevel float64
}

// OrderResult is the outcome of OrderSend. On success the tickets identify
// the records the request created or touched.
type OrderResult struct {
	Retcode     Retcode
	Comment     string
	OrderTicket int64
	DealTicket  int64
	PositionID  int64
	Volume      float64
	Price       float64
}
