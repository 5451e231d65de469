// Package market holds the recorded market data a simulation replays: per
// symbol tick series with point and range lookup, and the static symbol
// metadata the matching engine prices against.
package market

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoQuote is returned when a series has no tick at or before the
// requested time.
var ErrNoQuote = errors.New("market: no quote")

// Tick is one recorded quote.
type Tick struct {
	Symbol string    `json:"symbol"`
	Time   time.Time `json:"time"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Last   float64   `json:"last,omitempty"`
	Volume float64   `json:"volume,omitempty"`
}

// Mid returns the bid/ask midpoint.
func (t Tick) Mid() float64 { return (t.Bid + t.Ask) / 2 }

// Spread returns ask minus bid.
func (t Tick) Spread() float64 { return t.Ask - t.Bid }

// SymbolInfo is the static contract metadata for one symbol.
type SymbolInfo struct {
	Symbol        string  `json:"symbol"`
	Digits        int     `json:"digits"`
	Point         float64 `json:"point"`
	ContractSize  float64 `json:"contract_size"`
	MarginInitial float64 `json:"margin_initial"`
	VolumeMin     float64 `json:"volume_min"`
	VolumeMax     float64 `json:"volume_max"`
	VolumeStep    float64 `json:"volume_step"`
	StopsLevel    int     `json:"stops_level"` // min stop distance in points
}

// StopDistance returns the minimum price distance stops must keep from the
// market.
func (s SymbolInfo) StopDistance() float64 {
	return float64(s.StopsLevel) * s.Point
}

// Validate reports the first structural problem with the metadata.
func (s SymbolInfo) Validate() error {
	if s.Symbol == "" {
		return errors.New("market: symbol name required")
	}
	if s.ContractSize <= 0 {
		return fmt.Errorf("market: %s: contract size must be positive", s.Symbol)
	}
	if s.MarginInitial <= 0 {
		return fmt.Errorf("market: %s: margin initial must be positive", s.Symbol)
	}
	if s.VolumeMin <= 0 || s.VolumeMax < s.VolumeMin {
		return fmt.Errorf("market: %s: bad volume bounds [%v, %v]", s.Symbol, s.VolumeMin, s.VolumeMax)
	}
	if s.VolumeStep <= 0 {
		return fmt.Errorf("market: %s: volume step must be positive", s.Symbol)
	}
	return nil
}
