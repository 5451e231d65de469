// Package journal persists what a run produced: executed deal legs, the
// per-step equity curve, and a final run summary. Records are written from
// background queue items so journaling never rides the lockstep clock.
package journal

import "time"

// DealRecord is one executed leg folded into history.
type DealRecord struct {
	RunID      string
	Ticket     int64
	OrderID    int64
	PositionID int64
	Symbol     string
	Side       string
	Entry      string // "in" or "out"
	Volume     float64
	Price      float64
	Profit     float64
	Time       time.Time
}

// EquityRecord is one point on the account's equity curve.
type EquityRecord struct {
	RunID       string
	Step        int
	Time        time.Time
	Balance     float64
	Equity      float64
	Margin      float64
	MarginFree  float64
	MarginLevel float64
}

// RunRecord summarizes a finished run.
type RunRecord struct {
	RunID     string
	Start     time.Time
	End       time.Time
	Steps     int
	Trades    int
	Wins      int
	Losses    int
	Balance   float64
	Equity    float64
	StopCause string
}

// Journal is the persistence contract. Implementations must tolerate being
// called from multiple queue workers.
type Journal interface {
	RecordDeal(DealRecord) error
	RecordEquity(EquityRecord) error
	RecordRun(RunRecord) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDeal(DealRecord) error     { return nil }
func (Nop) RecordEquity(EquityRecord) error { return nil }
func (Nop) RecordRun(RunRecord) error       { return nil }
func (Nop) Close() error                    { return nil }
