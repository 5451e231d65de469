// Package trade defines the order, position and deal records a simulation
// produces, and the keyed registries that hold them. The matching engine is
// the sole mutator of these collections.
package trade

import "time"

// Side is the direction of an order, position or deal.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// Opposite returns the other direction.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderState tracks an order through its short life.
type OrderState int

const (
	OrderStarted OrderState = iota
	OrderFilled
	OrderRejected
)

// DealEntry distinguishes the opening leg from the closing leg.
type DealEntry int

const (
	DealIn DealEntry = iota
	DealOut
)

func (e DealEntry) String() string {
	if e == DealOut {
		return "out"
	}
	return "in"
}

// Order is a request that was accepted by the engine. Except for explicit
// stop modification it is immutable once created.
type Order struct {
	Ticket         int64      `json:"ticket"`
	Symbol         string     `json:"symbol"`
	Side           Side       `json:"side"`
	VolumeRequest  float64    `json:"volume_request"`
	VolumeExecuted float64    `json:"volume_executed"`
	Price          float64    `json:"price"`
	StopLoss       float64    `json:"stop_loss,omitempty"`
	TakeProfit     float64    `json:"take_profit,omitempty"`
	SetupTime      time.Time  `json:"setup_time"`
	DoneTime       time.Time  `json:"done_time"`
	PositionID     int64      `json:"position_id"`
	State          OrderState `json:"state"`
}

// Position is an open or historical exposure. PriceCurrent and Profit are
// refreshed on every clock step while the position is open.
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	PriceOpen    float64   `json:"price_open"`
	PriceCurrent float64   `json:"price_current"`
	StopLoss     float64   `json:"stop_loss,omitempty"`
	TakeProfit   float64   `json:"take_profit,omitempty"`
	Profit       float64   `json:"profit"`
	TimeOpen     time.Time `json:"time_open"`
	TimeClose    time.Time `json:"time_close,omitempty"`
}

// Deal is the immutable record of one executed leg.
type Deal struct {
	Ticket     int64     `json:"ticket"`
	OrderID    int64     `json:"order_id"`
	PositionID int64     `json:"position_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Entry      DealEntry `json:"entry"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Time       time.Time `json:"time"`
}
