package engine

// Retcode is the numeric status of an order check or send. Validation
// failures are values, not errors: a rejected request is a normal outcome.
type Retcode int

const (
	// RetDone means the request was fully applied.
	RetDone Retcode = 10009

	// RetRejected is a generic rejection.
	RetRejected Retcode = 10006

	// RetInvalid marks a malformed request (unknown symbol, bad action,
	// missing position reference).
	RetInvalid Retcode = 10013

	// RetInvalidVolume marks a volume outside the symbol's bounds or step.
	RetInvalidVolume Retcode = 10014

	// RetInvalidStops marks stop levels on the wrong side of the market or
	// inside the minimum stop distance.
	RetInvalidStops Retcode = 10016

	// RetMarketClosed means no quote exists at the simulated instant.
	RetMarketClosed Retcode = 10018

	// RetNoMoney means free margin cannot cover the required margin.
	RetNoMoney Retcode = 10019

	// RetPositionClosed marks an operation on a ticket that is not open.
	RetPositionClosed Retcode = 10036
)

func (r Retcode) String() string {
	switch r {
	case RetDone:
		return "done"
	case RetRejected:
		return "rejected"
	case RetInvalid:
		return "invalid request"
	case RetInvalidVolume:
		return "invalid volume"
	case RetInvalidStops:
		return "invalid stops"
	case RetMarketClosed:
		return "market closed"
	case RetNoMoney:
		return "no money"
	case RetPositionClosed:
		return "position closed"
	default:
		return "unknown"
	}
}

// OK reports whether the request was applied.
func (r Retcode) OK() bool { return r == RetDone }
