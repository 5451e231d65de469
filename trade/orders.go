package trade

import "time"

// Orders is the order registry with historical range queries.
type Orders struct {
	book[Order]
}

func NewOrders() *Orders {
	return &Orders{book: newBook[Order]()}
}

// ByWindow returns orders whose setup time falls in [from, to), ordered by
// ticket.
func (o *Orders) ByWindow(from, to time.Time) []Order {
	var out []Order
	for _, ord := range o.Values() {
		if !ord.SetupTime.Before(from) && ord.SetupTime.Before(to) {
			out = append(out, ord)
		}
	}
	return out
}

// ByPosition returns every order linked to the given position.
func (o *Orders) ByPosition(positionID int64) []Order {
	var out []Order
	for _, ord := range o.Values() {
		if ord.PositionID == positionID {
			out = append(out, ord)
		}
	}
	return out
}

// Restore replaces the registry contents from a snapshot.
func (o *Orders) Restore(recs map[int64]Order) { o.restore(recs) }

// Deals is the append-only deal history.
type Deals struct {
	book[Deal]
}

func NewDeals() *Deals {
	return &Deals{book: newBook[Deal]()}
}

// Append stores a newly executed deal.
func (d *Deals) Append(deal Deal) { d.Set(deal.Ticket, deal) }

// ByWindow returns deals executed in [from, to), ordered by ticket.
func (d *Deals) ByWindow(from, to time.Time) []Deal {
	var out []Deal
	for _, deal := range d.Values() {
		if !deal.Time.Before(from) && deal.Time.Before(to) {
			out = append(out, deal)
		}
	}
	return out
}

// ByPosition returns both legs recorded for the given position.
func (d *Deals) ByPosition(positionID int64) []Deal {
	var out []Deal
	for _, deal := range d.Values() {
		if deal.PositionID == positionID {
			out = append(out, deal)
		}
	}
	return out
}

// Restore replaces the registry contents from a snapshot.
func (d *Deals) Restore(recs map[int64]Deal) { d.restore(recs) }
