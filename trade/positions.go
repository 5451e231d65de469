package trade

import "sort"

// Positions partitions its records into "all" and "open". Closing removes a
// ticket from the open set only; the full record stays behind for history.
// Each open position carries a reserved-margin entry whose sum must equal
// the ledger's outstanding margin.
type Positions struct {
	book[Position]
	extra *positionsExtra
}

// The open set and margin map share the book's lock.
type positionsExtra struct {
	open    map[int64]struct{}
	margins map[int64]float64
}

func NewPositions() *Positions {
	p := &Positions{book: newBook[Position]()}
	p.extra = &positionsExtra{
		open:    make(map[int64]struct{}),
		margins: make(map[int64]float64),
	}
	return p
}

// Add stores a freshly opened position and marks it open.
func (p *Positions) Add(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs[pos.Ticket] = pos
	p.extra.open[pos.Ticket] = struct{}{}
}

// Update replaces the record for an existing position without touching the
// open partition.
func (p *Positions) Update(pos Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs[pos.Ticket] = pos
}

// IsOpen reports whether the ticket is in the open set.
func (p *Positions) IsOpen(ticket int64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.extra.open[ticket]
	return ok
}

// OpenTickets returns the open set in ascending order.
func (p *Positions) OpenTickets() []int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]int64, 0, len(p.extra.open))
	for t := range p.extra.open {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OpenValues returns the open positions ordered by ticket.
func (p *Positions) OpenValues() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tickets := make([]int64, 0, len(p.extra.open))
	for t := range p.extra.open {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	out := make([]Position, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, p.recs[t])
	}
	return out
}

// Close removes the ticket from the open set, keeping the record for
// history. Reports whether the ticket was open.
func (p *Positions) Close(ticket int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.extra.open[ticket]; !ok {
		return false
	}
	delete(p.extra.open, ticket)
	return true
}

// SetMargin records the margin reserved against an open position.
func (p *Positions) SetMargin(ticket int64, margin float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extra.margins[ticket] = margin
}

// Margin returns the reserved margin for ticket, ok=false on a miss.
func (p *Positions) Margin(ticket int64) (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.extra.margins[ticket]
	return m, ok
}

// DeleteMargin drops the reservation for ticket, reporting whether it
// existed.
func (p *Positions) DeleteMargin(ticket int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.extra.margins[ticket]
	delete(p.extra.margins, ticket)
	return ok
}

// MarginSum totals every outstanding reservation.
func (p *Positions) MarginSum() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var sum float64
	for _, m := range p.extra.margins {
		sum += m
	}
	return sum
}

// Margins returns a copy of the margin map for serialization.
func (p *Positions) Margins() map[int64]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int64]float64, len(p.extra.margins))
	for k, v := range p.extra.margins {
		out[k] = v
	}
	return out
}

// Restore replaces records, open set and margin map from a snapshot.
func (p *Positions) Restore(recs map[int64]Position, open []int64, margins map[int64]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = make(map[int64]Position, len(recs))
	for k, v := range recs {
		p.recs[k] = v
	}
	p.extra.open = make(map[int64]struct{}, len(open))
	for _, t := range open {
		p.extra.open[t] = struct{}{}
	}
	p.extra.margins = make(map[int64]float64, len(margins))
	for k, v := range margins {
		p.extra.margins[k] = v
	}
}
