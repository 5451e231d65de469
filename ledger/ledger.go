// Package ledger keeps the simulated account's books. Every mutation goes
// through UpdateAccount so the derived fields always satisfy:
//
//	Equity     = Balance + Profit
//	MarginFree = Equity - Margin
//	MarginLevel = Equity/Margin*100   (percent mode)
//	            = MarginFree          (money mode)
//	            = 0                   (when Margin == 0)
//
// all rounded to the account's currency precision.
package ledger

import (
	"errors"
	"fmt"
	"math"
)

// MarginMode selects how the margin level is expressed.
type MarginMode int

const (
	MarginModePercent MarginMode = iota
	MarginModeMoney
)

var (
	// ErrWithdrawExceedsBalance is returned when a withdrawal would drive
	// the balance negative.
	ErrWithdrawExceedsBalance = errors.New("ledger: withdrawal exceeds balance")

	// ErrBadAmount is returned for non-positive deposit/withdraw amounts.
	ErrBadAmount = errors.New("ledger: amount must be positive")
)

// Account is the simulated account state.
type Account struct {
	Balance     float64    `json:"balance"`
	Profit      float64    `json:"profit"` // unrealized, across all open positions
	Equity      float64    `json:"equity"`
	Margin      float64    `json:"margin"`
	MarginFree  float64    `json:"margin_free"`
	MarginLevel float64    `json:"margin_level"`
	Leverage    float64    `json:"leverage"`
	MarginMode  MarginMode `json:"margin_mode"`
	StopOut     float64    `json:"stop_out"` // burnout threshold, units per MarginMode
	Currency    string     `json:"currency"`
	Digits      int        `json:"digits"` // currency precision
}

// Ledger wraps an Account with invariant-preserving updates. Not safe for
// concurrent use; the matching engine serializes access.
type Ledger struct {
	acct Account
}

// New builds a ledger around a seeded account and normalizes its derived
// fields.
func New(acct Account) (*Ledger, error) {
	if acct.Balance < 0 {
		return nil, fmt.Errorf("ledger: negative starting balance %v", acct.Balance)
	}
	if acct.Leverage <= 0 {
		return nil, fmt.Errorf("ledger: leverage must be positive, got %v", acct.Leverage)
	}
	if acct.Digits < 0 {
		return nil, fmt.Errorf("ledger: negative currency digits %d", acct.Digits)
	}
	l := &Ledger{acct: acct}
	l.recompute()
	return l, nil
}

// Account returns a copy of the current account state.
func (l *Ledger) Account() Account { return l.acct }

// Restore replaces the whole account state, e.g. when resuming a snapshot.
func (l *Ledger) Restore(acct Account) { l.acct = acct }

// UpdateAccount applies one bookkeeping step: realized is added to the
// balance, marginDelta to the reserved margin, and when profit is non-nil it
// replaces the unrealized profit figure. Derived fields are recomputed.
func (l *Ledger) UpdateAccount(profit *float64, marginDelta, realized float64) {
	l.acct.Balance = l.round(l.acct.Balance + realized)
	l.acct.Margin = l.round(l.acct.Margin + marginDelta)
	if l.acct.Margin < 0 {
		// Released more than was reserved; clamp rather than carry a
		// negative reservation.
		l.acct.Margin = 0
	}
	if profit != nil {
		l.acct.Profit = l.round(*profit)
	}
	l.recompute()
}

// Deposit adds realized funds.
func (l *Ledger) Deposit(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: deposit %v", ErrBadAmount, amount)
	}
	l.UpdateAccount(nil, 0, amount)
	return nil
}

// Withdraw removes realized funds, failing if the balance would go negative.
func (l *Ledger) Withdraw(amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: withdraw %v", ErrBadAmount, amount)
	}
	if l.round(l.acct.Balance-amount) < 0 {
		return fmt.Errorf("%w: balance %v, requested %v", ErrWithdrawExceedsBalance, l.acct.Balance, amount)
	}
	l.UpdateAccount(nil, 0, -amount)
	return nil
}

// CheckBurnout reports whether the account has hit the stop-out condition:
// margin level below the threshold with margin reserved and negative equity.
// This is fatal for the whole run, not for a single position.
func (l *Ledger) CheckBurnout() bool {
	return l.acct.MarginLevel < l.acct.StopOut &&
		l.acct.Margin != 0 &&
		l.acct.Equity < 0
}

func (l *Ledger) recompute() {
	l.acct.Equity = l.round(l.acct.Balance + l.acct.Profit)
	l.acct.MarginFree = l.round(l.acct.Equity - l.acct.Margin)

	switch {
	case l.acct.Margin == 0:
		l.acct.MarginLevel = 0
	case l.acct.MarginMode == MarginModeMoney:
		l.acct.MarginLevel = l.acct.MarginFree
	default:
		l.acct.MarginLevel = l.round(l.acct.Equity / l.acct.Margin * 100)
	}
}

func (l *Ledger) round(v float64) float64 {
	return Round(v, l.acct.Digits)
}

// Round rounds v half-away-from-zero to the given number of decimal digits.
func Round(v float64, digits int) float64 {
	pow := math.Pow10(digits)
	return math.Round(v*pow) / pow
}
