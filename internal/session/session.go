// Package session reconciles a connected remote store with the local
// session state. One goroutine (Run) applies every event and command.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"pharcryption.gg/internal/items"
	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/readiness"
	"pharcryption.gg/internal/slot"
	"pharcryption.gg/internal/state"
	"pharcryption.gg/internal/store"
)

// Remote keys mirrored by the session.
const (
	KeyDecrypted = "Pharcryption__Decrypted"
	KeySpent     = "Pharcryption__SpentPharcoins"
	KeyTimeLimit = "Pharcryption__TimeLimit"
	KeyStarted   = "Pharcryption__Started"
)

// Reward item ids. ItemPharcoins+n grants n+1 coins for n in 0..4.
const (
	ItemPharcoins     int64 = 400400000
	ItemDecryptionKey int64 = 400400005
)

var (
	ErrInsufficientFunds = errors.New("not enough pharcoins")
	ErrPurchaseInFlight  = errors.New("purchase already in flight")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrUnavailable       = errors.New("not available in this phase")
	ErrUnknownLocation   = errors.New("unknown location")
	ErrNotPurchasable    = errors.New("not decryptable")
	ErrAlreadyUnlocked   = errors.New("already decrypted")
	ErrDisconnected      = errors.New("disconnected")
	ErrClosed            = errors.New("session closed")
)

// Journal receives every event the loop processes.
type Journal interface {
	WriteEvent(at time.Time, ev store.Event) error
}

// Audit records purchases and phase transitions.
type Audit interface {
	RecordPurchase(at time.Time, slot, block int, location int64, cost int)
	RecordPhase(at time.Time, slot int, from, to phase.Phase)
}

type Config struct {
	Store   store.Store
	Barrier readiness.Barrier
	Logger  *log.Logger
	Now     func() time.Time

	// TickInterval drives the countdown check. Default 1s.
	TickInterval time.Duration
	// PurchaseCooldown is how long the guard stays held after a spend.
	// Default 1s.
	PurchaseCooldown time.Duration

	Journal Journal
	Audit   Audit
}

type Session struct {
	cfg   Config
	log   *log.Logger
	store store.Store
	st    *state.State

	slotCfg  slot.Config
	slot     int
	hintsKey string

	cmds chan command
	stop chan struct{}
	done chan struct{}

	receivedInitial bool
	built           bool
}

// New decodes the store's slot data and prepares a session. Nothing is sent
// until Run.
func New(cfg Config) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("session: nil store")
	}
	if cfg.Barrier == nil {
		cfg.Barrier = readiness.Delay(readiness.DefaultDelay)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PurchaseCooldown <= 0 {
		cfg.PurchaseCooldown = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	slotCfg, err := slot.Decode(cfg.Store.SlotData())
	if err != nil {
		return nil, err
	}
	st := state.New()
	st.SetSlot(slotCfg)

	return &Session{
		cfg:      cfg,
		log:      logger,
		store:    cfg.Store,
		st:       st,
		slotCfg:  slotCfg,
		slot:     cfg.Store.Slot(),
		hintsKey: protocol.HintsKey(cfg.Store.Team(), cfg.Store.Slot()),
		cmds:     make(chan command),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// State is the observable session state. Safe to read from any goroutine.
func (s *Session) State() *state.State { return s.st }

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stop asks Run to return nil. It does not close the store.
func (s *Session) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Run sends the subscription handshake and then applies events, commands,
// the readiness barrier and countdown ticks until ctx ends, Stop is called,
// the store disconnects or an invariant breaks.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	if err := s.handshake(); err != nil {
		return fmt.Errorf("session handshake: %w", err)
	}
	ready := s.cfg.Barrier.Arm(s.store)

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	var guard *time.Timer
	var guardC <-chan time.Time
	defer func() {
		if guard != nil {
			guard.Stop()
		}
	}()

	events := s.store.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case ev, ok := <-events:
			if !ok {
				ev = store.Event{Kind: store.EventDisconnected}
			}
			if err := s.handleEvent(ev); err != nil {
				return err
			}
		case <-ready:
			ready = nil
			s.buildTable()
		case cmd := <-s.cmds:
			held, err := s.handleCommand(cmd)
			cmd.reply <- err
			if held {
				if guard != nil {
					guard.Stop()
				}
				guard = time.NewTimer(s.cfg.PurchaseCooldown)
				guardC = guard.C
			}
		case <-guardC:
			guardC = nil
			s.st.SetPurchasing(false)
		case <-ticker.C:
			if err := s.tick(); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handshake() error {
	if err := s.store.Subscribe([]string{KeyDecrypted, KeySpent, KeyTimeLimit, KeyStarted}); err != nil {
		return err
	}
	defaults := []struct {
		key string
		def any
	}{
		{KeyDecrypted, false},
		{KeySpent, 0},
		{KeyStarted, false},
	}
	for _, d := range defaults {
		if err := s.store.Set(d.key, d.def, nil, true); err != nil {
			return fmt.Errorf("set %s: %w", d.key, err)
		}
	}
	return s.store.Get([]string{KeyTimeLimit})
}

// buildTable runs once, after the readiness barrier.
func (s *Session) buildTable() {
	if s.built {
		return
	}
	s.built = true
	t := items.Build(s.slotCfg, s.store.CheckedLocations(), s.ownHints(s.store.Hints()), s.store)
	s.st.SetTable(t)
	sum := t.Summary()
	s.log.Printf("item table ready blocks=%d items=%d remaining=%d", sum.Blocks, sum.Total, sum.Remaining)
}

// ownHints keeps the hints for locations in this slot's world.
func (s *Session) ownHints(hints []protocol.Hint) []int64 {
	out := make([]int64, 0, len(hints))
	for _, h := range hints {
		if h.FindingPlayer == s.slot {
			out = append(out, h.Location)
		}
	}
	return out
}

func (s *Session) setPhase(to phase.Phase) error {
	from, err := s.st.SetPhase(to)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	s.log.Printf("phase %s -> %s", from, to)
	if s.cfg.Audit != nil {
		s.cfg.Audit.RecordPhase(s.cfg.Now(), s.slot, from, to)
	}
	return nil
}

func (s *Session) tick() error {
	cur, deadline := s.st.Clock()
	if phase.Expired(cur, deadline, s.cfg.Now()) {
		return s.setPhase(phase.PostGame)
	}
	return nil
}
