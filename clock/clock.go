// Package clock provides the simulated time axis for a backtest run.
//
// A run is defined by a start time, an exclusive end time, and a fixed step.
// The clock walks two parallel axes in lockstep: an absolute time axis (the
// "span") and a zero-based index axis (the "range"). The pair currently
// visible to strategies is the Cursor; it is replaced wholesale on every
// advance and never mutated in place.
package clock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEndOfRun is returned by Advance once the span is exhausted.
	ErrEndOfRun = errors.New("clock: end of run")

	// ErrJumpBack is returned by Jump when the target precedes the cursor.
	ErrJumpBack = errors.New("clock: cannot jump backward")
)

// Cursor is one (index, time) pair on the simulated axis.
type Cursor struct {
	Index int       `json:"index"`
	Time  time.Time `json:"time"`
}

// Clock advances a Cursor over the configured span. It is not safe for
// concurrent use; the lockstep controller is its only driver.
type Clock struct {
	start time.Time
	step  time.Duration
	steps int // total number of cursor positions

	pos     int // next index to hand out
	cursor  Cursor
	started bool
}

// New builds a clock covering [start, end) at the given step.
func New(start, end time.Time, step time.Duration) (*Clock, error) {
	if step <= 0 {
		return nil, fmt.Errorf("clock: step must be positive, got %v", step)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("clock: end %v is not after start %v", end, start)
	}
	steps := int(end.Sub(start) / step)
	if end.Sub(start)%step != 0 {
		steps++
	}
	return &Clock{start: start, step: step, steps: steps}, nil
}

// Cursor returns the pair most recently produced by Advance. Before the
// first Advance the zero Cursor is returned.
func (c *Clock) Cursor() Cursor { return c.cursor }

// Step returns the configured step size.
func (c *Clock) Step() time.Duration { return c.step }

// Remaining reports how many positions Advance can still produce.
func (c *Clock) Remaining() int { return c.steps - c.pos }

// Advance pops the next (index, time) pair and makes it the cursor.
func (c *Clock) Advance() (Cursor, error) {
	if c.pos >= c.steps {
		return Cursor{}, ErrEndOfRun
	}
	c.cursor = Cursor{
		Index: c.pos,
		Time:  c.start.Add(time.Duration(c.pos) * c.step),
	}
	c.pos++
	c.started = true
	return c.cursor, nil
}

// FastForward advances n times, returning the final cursor.
func (c *Clock) FastForward(n int) (Cursor, error) {
	if n <= 0 {
		return Cursor{}, fmt.Errorf("clock: fast-forward count must be positive, got %d", n)
	}
	var cur Cursor
	var err error
	for i := 0; i < n; i++ {
		cur, err = c.Advance()
		if err != nil {
			return Cursor{}, err
		}
	}
	return cur, nil
}

// Jump repositions the clock so the next Advance lands on the first span
// point at or after target. Time never moves backward: a target before the
// current cursor fails with ErrJumpBack and leaves the clock untouched.
func (c *Clock) Jump(target time.Time) error {
	if c.started && target.Before(c.cursor.Time) {
		return fmt.Errorf("%w: target %v precedes cursor %v", ErrJumpBack, target, c.cursor.Time)
	}
	pos := 0
	if target.After(c.start) {
		d := target.Sub(c.start)
		pos = int(d / c.step)
		if d%c.step != 0 {
			pos++
		}
	}
	if pos >= c.steps {
		return fmt.Errorf("%w: target %v is past the span", ErrEndOfRun, target)
	}
	if pos < c.pos {
		// Landing on the cursor's own step would replay it; reject that
		// along with anything earlier.
		if c.started && pos <= c.cursor.Index {
			return fmt.Errorf("%w: target %v precedes cursor %v", ErrJumpBack, target, c.cursor.Time)
		}
	}
	c.pos = pos
	return nil
}

// Restore rewinds or forwards the clock to resume from a serialized cursor.
// The next Advance produces the position immediately after cur.
func (c *Clock) Restore(cur Cursor) error {
	if cur.Index < 0 || cur.Index >= c.steps {
		return fmt.Errorf("clock: cursor index %d outside span of %d steps", cur.Index, c.steps)
	}
	c.cursor = cur
	c.pos = cur.Index + 1
	c.started = true
	return nil
}

// Span materializes the absolute-time axis. Intended for diagnostics and
// snapshot inspection, not for the hot path.
func (c *Clock) Span() []time.Time {
	out := make([]time.Time, c.steps)
	for i := range out {
		out[i] = c.start.Add(time.Duration(i) * c.step)
	}
	return out
}

// Range materializes the index axis parallel to Span.
func (c *Clock) Range() []int {
	out := make([]int, c.steps)
	for i := range out {
		out[i] = i
	}
	return out
}
