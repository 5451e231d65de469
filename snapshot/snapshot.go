// Package snapshot captures a full simulation state so a run can pause and
// resume exactly where it left off. The state is a passive projection of the
// clock, ledger, registries and recorded series; it never mutates anything
// on its own.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/rustyeddy/backsim/clock"
	"github.com/rustyeddy/backsim/engine"
	"github.com/rustyeddy/backsim/ledger"
	"github.com/rustyeddy/backsim/market"
	"github.com/rustyeddy/backsim/trade"
)

// State aggregates everything a resumed run needs.
type State struct {
	RunID       string                       `json:"run_id"`
	Cursor      clock.Cursor                 `json:"cursor"`
	Account     ledger.Account               `json:"account"`
	Orders      map[int64]trade.Order        `json:"orders"`
	Positions   map[int64]trade.Position     `json:"positions"`
	OpenTickets []int64                      `json:"open_tickets"`
	Margins     map[int64]float64            `json:"margins"`
	Deals       map[int64]trade.Deal         `json:"deals"`
	NextTicket  int64                        `json:"next_ticket"`
	Symbols     map[string]market.SymbolInfo `json:"symbols"`
	Series      map[string][]market.Tick     `json:"series"`
	SavedAt     time.Time                    `json:"saved_at"`
}

// Capture projects the engine, cursor and recorded feed into a State. The
// engine's mutable parts are read through one consistent view under its lock.
func Capture(runID string, cur clock.Cursor, e *engine.Engine, feed *market.Feed) State {
	v := e.Snapshot()
	st := State{
		RunID:       runID,
		Cursor:      cur,
		Account:     v.Account,
		Orders:      v.Orders,
		Positions:   v.Positions,
		OpenTickets: v.OpenTickets,
		Margins:     v.Margins,
		Deals:       v.Deals,
		NextTicket:  v.NextTicket,
		Symbols:     make(map[string]market.SymbolInfo),
		Series:      make(map[string][]market.Tick),
		SavedAt:     time.Now().UTC(),
	}
	for _, symbol := range feed.Symbols() {
		info, _ := feed.Symbol(symbol)
		st.Symbols[symbol] = info
		if s, ok := feed.Series(symbol); ok {
			st.Series[symbol] = s.Ticks()
		}
	}
	return st
}

// Feed rebuilds the recorded market feed carried in the snapshot.
func (s State) Feed() (*market.Feed, error) {
	feed := market.NewFeed()
	for symbol, info := range s.Symbols {
		if err := feed.AddSymbol(info, s.Series[symbol]); err != nil {
			return nil, fmt.Errorf("snapshot: rebuild feed: %w", err)
		}
	}
	return feed, nil
}

// Apply restores the engine from the snapshot.
func (s State) Apply(e *engine.Engine) {
	e.Restore(s.Account, s.Orders, s.Positions, s.OpenTickets, s.Margins, s.Deals, s.NextTicket, s.Cursor)
}

// Encode writes the state as a JSON blob, xz-compressed when requested.
func Encode(w io.Writer, st State, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		return enc.Encode(st)
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot: xz writer: %w", err)
	}
	if err := json.NewEncoder(xw).Encode(st); err != nil {
		xw.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return xw.Close()
}

// xz stream magic bytes.
var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Decode reads a state blob, sniffing whether it is compressed.
func Decode(r io.Reader) (State, error) {
	br := newPeekReader(r, len(xzMagic))
	head, err := br.peek()
	if err != nil {
		return State{}, fmt.Errorf("snapshot: read header: %w", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, xzMagic) {
		xr, err := xz.NewReader(br)
		if err != nil {
			return State{}, fmt.Errorf("snapshot: xz reader: %w", err)
		}
		src = xr
	}

	var st State
	if err := json.NewDecoder(src).Decode(&st); err != nil {
		return State{}, fmt.Errorf("snapshot: decode: %w", err)
	}
	return st, nil
}

// peekReader buffers just enough of the stream to sniff the header.
type peekReader struct {
	r    io.Reader
	buf  []byte
	size int
}

func newPeekReader(r io.Reader, n int) *peekReader {
	return &peekReader{r: r, size: n}
}

func (p *peekReader) peek() ([]byte, error) {
	if p.buf == nil {
		buf := make([]byte, p.size)
		n, err := io.ReadFull(p.r, buf)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		p.buf = buf[:n]
	}
	return p.buf, nil
}

func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}
	return p.r.Read(b)
}
