// Package phase holds the four-state session lifecycle and the surfaces
// each state makes reachable.
package phase

import (
	"errors"
	"fmt"
	"time"
)

type Phase int

const (
	Disconnected Phase = iota
	PreGame
	InProgress
	PostGame
)

// ErrUnknownPhase is a programming error: only the four declared phases exist.
var ErrUnknownPhase = errors.New("unknown phase")

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "DISCONNECTED"
	case PreGame:
		return "PRE_GAME"
	case InProgress:
		return "IN_PROGRESS"
	case PostGame:
		return "POST_GAME"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

func (p Phase) Valid() bool {
	return p >= Disconnected && p <= PostGame
}

// Active reports whether gameplay actions are permitted.
func (p Phase) Active() bool { return p == InProgress }

// Validate rejects values outside the enum.
func Validate(p Phase) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownPhase, int(p))
	}
	return nil
}

// FromStarted maps the remote started flag to a phase.
func FromStarted(started bool) Phase {
	if started {
		return InProgress
	}
	return PreGame
}

// Expired reports whether the countdown should move cur to PostGame.
// Only InProgress expires, and only with a configured deadline.
func Expired(cur Phase, deadlineMS int64, now time.Time) bool {
	if cur != InProgress || deadlineMS == 0 {
		return false
	}
	return Remaining(deadlineMS, now) <= 0
}

// Remaining is the time left until deadlineMS (epoch milliseconds).
func Remaining(deadlineMS int64, now time.Time) time.Duration {
	return time.Duration(deadlineMS-now.UnixMilli()) * time.Millisecond
}
