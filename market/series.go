package market

import (
	"fmt"
	"sort"
	"time"
)

// Series is a time-sorted tick history for one symbol. Lookups never mutate
// the series, so a populated Series is safe for concurrent readers.
type Series struct {
	symbol string
	ticks  []Tick
}

// NewSeries builds a series from recorded ticks, sorting them by time.
func NewSeries(symbol string, ticks []Tick) *Series {
	s := &Series{symbol: symbol, ticks: append([]Tick(nil), ticks...)}
	sort.Slice(s.ticks, func(i, j int) bool { return s.ticks[i].Time.Before(s.ticks[j].Time) })
	return s
}

func (s *Series) Symbol() string { return s.symbol }
func (s *Series) Len() int       { return len(s.ticks) }

// Ticks returns the underlying sorted ticks. Callers must not mutate the
// returned slice.
func (s *Series) Ticks() []Tick { return s.ticks }

// First returns the earliest tick, ok=false on an empty series.
func (s *Series) First() (Tick, bool) {
	if len(s.ticks) == 0 {
		return Tick{}, false
	}
	return s.ticks[0], true
}

// Last returns the latest tick, ok=false on an empty series.
func (s *Series) Last() (Tick, bool) {
	if len(s.ticks) == 0 {
		return Tick{}, false
	}
	return s.ticks[len(s.ticks)-1], true
}

// At returns the nearest tick at or before t. Before the first tick there is
// no quote yet and ok is false.
func (s *Series) At(t time.Time) (Tick, bool) {
	// First index strictly after t.
	i := sort.Search(len(s.ticks), func(i int) bool { return s.ticks[i].Time.After(t) })
	if i == 0 {
		return Tick{}, false
	}
	return s.ticks[i-1], true
}

// Range returns all ticks in the half-open window [from, to).
func (s *Series) Range(from, to time.Time) []Tick {
	lo := sort.Search(len(s.ticks), func(i int) bool { return !s.ticks[i].Time.Before(from) })
	hi := sort.Search(len(s.ticks), func(i int) bool { return !s.ticks[i].Time.Before(to) })
	return s.ticks[lo:hi]
}

// Resample builds a continuous series on a fixed grid over [from, to),
// carrying the nearest prior tick forward into every slot. Grid points that
// precede the first recorded tick are skipped; once the series has a quote,
// every subsequent slot holds one.
func (s *Series) Resample(from, to time.Time, step time.Duration) *Series {
	if step <= 0 || !to.After(from) {
		return NewSeries(s.symbol, nil)
	}
	var out []Tick
	for t := from; t.Before(to); t = t.Add(step) {
		tick, ok := s.At(t)
		if !ok {
			continue
		}
		tick.Time = t
		out = append(out, tick)
	}
	return &Series{symbol: s.symbol, ticks: out}
}

// Feed is the set of series a run replays, keyed by symbol, together with
// each symbol's contract metadata.
type Feed struct {
	series  map[string]*Series
	symbols map[string]SymbolInfo
}

func NewFeed() *Feed {
	return &Feed{
		series:  make(map[string]*Series),
		symbols: make(map[string]SymbolInfo),
	}
}

// AddSymbol registers metadata and recorded ticks for one symbol.
func (f *Feed) AddSymbol(info SymbolInfo, ticks []Tick) error {
	if err := info.Validate(); err != nil {
		return err
	}
	f.symbols[info.Symbol] = info
	f.series[info.Symbol] = NewSeries(info.Symbol, ticks)
	return nil
}

// Symbol returns metadata for symbol, ok=false when unknown.
func (f *Feed) Symbol(symbol string) (SymbolInfo, bool) {
	info, ok := f.symbols[symbol]
	return info, ok
}

// Symbols lists every registered symbol name.
func (f *Feed) Symbols() []string {
	out := make([]string, 0, len(f.symbols))
	for name := range f.symbols {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Series returns the tick series for symbol, ok=false when unknown.
func (f *Feed) Series(symbol string) (*Series, bool) {
	s, ok := f.series[symbol]
	return s, ok
}

// TickAt returns the quote for symbol at or before t.
func (f *Feed) TickAt(symbol string, t time.Time) (Tick, error) {
	s, ok := f.series[symbol]
	if !ok {
		return Tick{}, fmt.Errorf("%w: unknown symbol %q", ErrNoQuote, symbol)
	}
	tick, ok := s.At(t)
	if !ok {
		return Tick{}, fmt.Errorf("%w: %s has no tick at or before %v", ErrNoQuote, symbol, t)
	}
	return tick, nil
}
