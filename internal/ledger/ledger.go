// Package ledger tracks Pharcoins earned from reward items and spent on
// decryption.
package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNegativeBalance means reconciliation drove a counter below zero.
	ErrNegativeBalance = errors.New("cannot have negative pharcoins")
	ErrNegativeAmount  = errors.New("negative amount")
)

// Ledger is not safe for concurrent use; the session loop owns it.
type Ledger struct {
	earned int
	spent  int
}

func (l *Ledger) Earned() int { return l.earned }
func (l *Ledger) Spent() int  { return l.spent }

// Available may be negative while a spend echo races the reward replay.
func (l *Ledger) Available() int { return l.earned - l.spent }

// CanAfford reports whether cost fits in the available balance.
func (l *Ledger) CanAfford(cost int) bool { return l.Available() >= cost }

// Earn adds coins from a reward item.
func (l *Ledger) Earn(n int) error {
	if n < 0 {
		return fmt.Errorf("earn %d: %w", n, ErrNegativeAmount)
	}
	l.earned += n
	return nil
}

// SetSpent mirrors the remote spent counter.
func (l *Ledger) SetSpent(n int) error {
	if n < 0 {
		return fmt.Errorf("spent %d: %w", n, ErrNegativeBalance)
	}
	l.spent = n
	return nil
}
