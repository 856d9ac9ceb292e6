package session

import (
	"context"
	"fmt"
	"time"

	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/store"
)

type commandKind int

const (
	cmdPurchase commandKind = iota + 1
	cmdStart
)

type command struct {
	kind     commandKind
	block    int
	location int64
	password string
	reply    chan error
}

// Purchase spends the location's cost and checks it. Nothing changes locally
// until the store echoes the spend and the check back.
func (s *Session) Purchase(ctx context.Context, block int, location int64) error {
	return s.submit(ctx, command{kind: cmdPurchase, block: block, location: location})
}

// Start marks the game started and, when the slot has a time limit, seeds
// the deadline. An existing deadline is never overwritten.
func (s *Session) Start(ctx context.Context, password string) error {
	return s.submit(ctx, command{kind: cmdStart, password: password})
}

func (s *Session) submit(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// handleCommand runs on the loop goroutine. held reports whether a purchase
// went out and the guard must stay held for the cooldown.
func (s *Session) handleCommand(cmd command) (held bool, err error) {
	switch cmd.kind {
	case cmdPurchase:
		if err := s.purchase(cmd.block, cmd.location); err != nil {
			return false, err
		}
		return true, nil
	case cmdStart:
		return false, s.start(cmd.password)
	default:
		return false, fmt.Errorf("unknown command %d", cmd.kind)
	}
}

func (s *Session) purchase(blk int, location int64) error {
	snap := s.st.Snapshot()
	if !snap.Reachable(phase.SurfaceItemDecryptor) {
		return fmt.Errorf("decrypt in %s: %w", snap.Phase, ErrUnavailable)
	}
	// The decryptor stays open after the deadline, read only.
	if !snap.Phase.Active() {
		return fmt.Errorf("decrypt in %s: %w", snap.Phase, ErrUnavailable)
	}
	e, ok := snap.Table.Entry(blk, location)
	if !ok {
		return fmt.Errorf("block %d location %d: %w", blk, location, ErrUnknownLocation)
	}
	if e.Unlocked {
		return fmt.Errorf("location %d: %w", location, ErrAlreadyUnlocked)
	}
	if !snap.Table.Policy(blk, e, snap.View()).Purchasable {
		return fmt.Errorf("location %d: %w", location, ErrNotPurchasable)
	}
	if snap.Purchasing {
		return ErrPurchaseInFlight
	}
	if avail := snap.Available(); avail < e.Cost {
		return fmt.Errorf("cost %d, have %d: %w", e.Cost, avail, ErrInsufficientFunds)
	}

	s.st.SetPurchasing(true)
	if err := s.store.Set(KeySpent, 0, []store.Operation{store.Add(e.Cost)}, false); err != nil {
		s.st.SetPurchasing(false)
		return fmt.Errorf("spend %d: %w", e.Cost, err)
	}
	if err := s.store.CheckLocation(location); err != nil {
		// The spend already went out; the pair is not atomic.
		s.st.SetPurchasing(false)
		return fmt.Errorf("check location %d: %w", location, err)
	}
	s.log.Printf("decrypt block=%d location=%d cost=%d", blk, location, e.Cost)
	if s.cfg.Audit != nil {
		s.cfg.Audit.RecordPurchase(s.cfg.Now(), s.slot, blk, location, e.Cost)
	}
	return nil
}

func (s *Session) start(password string) error {
	snap := s.st.Snapshot()
	if !snap.Reachable(phase.SurfaceStart) {
		return fmt.Errorf("start in %s: %w", snap.Phase, ErrUnavailable)
	}
	if s.slotCfg.PasswordRequired() && password != s.slotCfg.Password {
		return ErrIncorrectPassword
	}
	if err := s.store.Set(KeyStarted, false, []store.Operation{store.Replace(true)}, false); err != nil {
		return fmt.Errorf("set %s: %w", KeyStarted, err)
	}
	if s.slotCfg.TimerEnabled() {
		limit := time.Duration(s.slotCfg.TimeLimitMinutes * float64(time.Minute))
		deadline := formatDeadline(s.cfg.Now().Add(limit))
		if err := s.store.Set(KeyTimeLimit, deadline, []store.Operation{}, false); err != nil {
			return fmt.Errorf("set %s: %w", KeyTimeLimit, err)
		}
	}
	s.log.Printf("start requested timelimit=%gm", s.slotCfg.TimeLimitMinutes)
	return nil
}
