package trade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestOrdersQueries(t *testing.T) {
	t.Parallel()

	o := NewOrders()
	o.Set(1, Order{Ticket: 1, Symbol: "EURUSD", SetupTime: t0, PositionID: 100})
	o.Set(2, Order{Ticket: 2, Symbol: "EURUSD", SetupTime: t0.Add(time.Minute), PositionID: 100})
	o.Set(3, Order{Ticket: 3, Symbol: "GBPUSD", SetupTime: t0.Add(2 * time.Minute), PositionID: 200})

	_, ok := o.Get(99)
	assert.False(t, ok)

	got := o.ByWindow(t0, t0.Add(2*time.Minute))
	require.Len(t, got, 2, "window is half-open")
	assert.Equal(t, int64(1), got[0].Ticket)
	assert.Equal(t, int64(2), got[1].Ticket)

	byPos := o.ByPosition(100)
	require.Len(t, byPos, 2)
	assert.Equal(t, int64(1), byPos[0].Ticket)

	assert.Empty(t, o.ByPosition(999))
}

func TestDealsAppendOnlyHistory(t *testing.T) {
	t.Parallel()

	d := NewDeals()
	d.Append(Deal{Ticket: 10, PositionID: 100, Entry: DealIn, Time: t0})
	d.Append(Deal{Ticket: 11, PositionID: 100, Entry: DealOut, Time: t0.Add(time.Hour)})
	d.Append(Deal{Ticket: 12, PositionID: 200, Entry: DealIn, Time: t0.Add(2 * time.Hour)})

	legs := d.ByPosition(100)
	require.Len(t, legs, 2)
	assert.Equal(t, DealIn, legs[0].Entry)
	assert.Equal(t, DealOut, legs[1].Entry)

	window := d.ByWindow(t0.Add(time.Hour), t0.Add(3*time.Hour))
	require.Len(t, window, 2)
	assert.Equal(t, int64(11), window[0].Ticket)
}

func TestPositionsOpenPartition(t *testing.T) {
	t.Parallel()

	p := NewPositions()
	p.Add(Position{Ticket: 1, Symbol: "EURUSD", Volume: 0.1})
	p.Add(Position{Ticket: 2, Symbol: "EURUSD", Volume: 0.2})

	assert.True(t, p.IsOpen(1))
	assert.Equal(t, []int64{1, 2}, p.OpenTickets())
	assert.Equal(t, 2, p.Len())

	require.True(t, p.Close(1))
	assert.False(t, p.IsOpen(1))
	assert.Equal(t, []int64{2}, p.OpenTickets())

	// Record survives the close for history.
	rec, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, 0.1, rec.Volume)

	// Closing again is a reported no-op.
	assert.False(t, p.Close(1))
	assert.False(t, p.Close(99))
}

func TestPositionsMarginMap(t *testing.T) {
	t.Parallel()

	p := NewPositions()
	p.Add(Position{Ticket: 1})
	p.Add(Position{Ticket: 2})
	p.SetMargin(1, 110)
	p.SetMargin(2, 55.5)

	m, ok := p.Margin(1)
	require.True(t, ok)
	assert.Equal(t, 110.0, m)
	assert.Equal(t, 165.5, p.MarginSum())

	require.True(t, p.DeleteMargin(1))
	assert.Equal(t, 55.5, p.MarginSum())
	_, ok = p.Margin(1)
	assert.False(t, ok)
	assert.False(t, p.DeleteMargin(1))
}

func TestPositionsRestore(t *testing.T) {
	t.Parallel()

	p := NewPositions()
	p.Restore(
		map[int64]Position{1: {Ticket: 1}, 2: {Ticket: 2}},
		[]int64{2},
		map[int64]float64{2: 42},
	)

	assert.False(t, p.IsOpen(1))
	assert.True(t, p.IsOpen(2))
	assert.Equal(t, 42.0, p.MarginSum())
	assert.Equal(t, 2, p.Len())
}

func TestBookValuesOrdered(t *testing.T) {
	t.Parallel()

	o := NewOrders()
	o.Set(3, Order{Ticket: 3})
	o.Set(1, Order{Ticket: 1})
	o.Set(2, Order{Ticket: 2})

	vals := o.Values()
	require.Len(t, vals, 3)
	assert.Equal(t, int64(1), vals[0].Ticket)
	assert.Equal(t, int64(3), vals[2].Ticket)

	assert.True(t, o.Delete(2))
	assert.False(t, o.Delete(2))
	assert.Equal(t, []int64{1, 3}, o.Tickets())
}
