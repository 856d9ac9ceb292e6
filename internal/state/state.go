// Package state owns the session's shared data. One writer (the session
// loop) mutates it; any goroutine may read a Snapshot or subscribe to change
// notifications.
package state

import (
	"fmt"
	"sync"

	"pharcryption.gg/internal/items"
	"pharcryption.gg/internal/ledger"
	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/slot"
)

// Change is a bit set describing what moved.
type Change uint

const (
	ChangePhase Change = 1 << iota
	ChangeReady
	ChangeFlags
	ChangeLedger
	ChangeTable
	ChangeGuard
)

type State struct {
	mu sync.RWMutex

	phase       phase.Phase
	ready       bool
	decrypted   bool
	started     bool
	timeLimitMS int64
	ledger      ledger.Ledger
	slot        slot.Config
	table       *items.Table
	purchasing  bool

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

func New() *State {
	return &State{
		table: items.NewTable(),
		subs:  map[chan Change]struct{}{},
	}
}

// Subscribe returns a channel of change notifications and a cancel func.
// Sends never block: a slow reader misses notifications, not state, since
// every read goes through Snapshot.
func (s *State) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
		})
	}
}

func (s *State) notify(c Change) {
	if c == 0 {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// SetPhase validates and applies a phase. It returns the previous phase.
func (s *State) SetPhase(p phase.Phase) (phase.Phase, error) {
	if err := phase.Validate(p); err != nil {
		return 0, err
	}
	s.mu.Lock()
	prev := s.phase
	s.phase = p
	s.mu.Unlock()
	if prev != p {
		s.notify(ChangePhase)
	}
	return prev, nil
}

func (s *State) SetSlot(cfg slot.Config) {
	s.mu.Lock()
	s.slot = cfg
	s.mu.Unlock()
}

// SetTable installs the built table and flips ready.
func (s *State) SetTable(t *items.Table) {
	s.mu.Lock()
	s.table = t
	s.ready = true
	s.mu.Unlock()
	s.notify(ChangeTable | ChangeReady)
}

func (s *State) Decrypt() {
	s.mu.Lock()
	changed := !s.decrypted
	s.decrypted = true
	s.mu.Unlock()
	if changed {
		s.notify(ChangeFlags)
	}
}

func (s *State) SetStarted(v bool) {
	s.mu.Lock()
	s.started = v
	s.mu.Unlock()
	s.notify(ChangeFlags)
}

func (s *State) SetTimeLimit(ms int64) {
	s.mu.Lock()
	s.timeLimitMS = ms
	s.mu.Unlock()
	s.notify(ChangeFlags)
}

func (s *State) Earn(n int) error {
	s.mu.Lock()
	err := s.ledger.Earn(n)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(ChangeLedger)
	return nil
}

func (s *State) SetSpent(n int) error {
	s.mu.Lock()
	err := s.ledger.SetSpent(n)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(ChangeLedger)
	return nil
}

func (s *State) MarkUnlocked(locations ...int64) int {
	return s.mark(locations, (*items.Table).MarkUnlocked)
}

func (s *State) MarkHinted(locations ...int64) int {
	return s.mark(locations, (*items.Table).MarkHinted)
}

func (s *State) mark(locations []int64, fn func(*items.Table, int64) bool) int {
	s.mu.Lock()
	n := 0
	for _, l := range locations {
		if fn(s.table, l) {
			n++
		}
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify(ChangeTable)
	}
	return n
}

// SetPurchasing holds or releases the purchase guard.
func (s *State) SetPurchasing(v bool) {
	s.mu.Lock()
	changed := s.purchasing != v
	s.purchasing = v
	s.mu.Unlock()
	if changed {
		s.notify(ChangeGuard)
	}
}

func (s *State) Phase() phase.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Clock returns the phase and deadline without copying the table.
func (s *State) Clock() (phase.Phase, int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase, s.timeLimitMS
}

// Snapshot copies everything a reader may need.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Phase:       s.phase,
		Ready:       s.ready,
		Decrypted:   s.decrypted,
		Started:     s.started,
		TimeLimitMS: s.timeLimitMS,
		Earned:      s.ledger.Earned(),
		Spent:       s.ledger.Spent(),
		Purchasing:  s.purchasing,
		Slot:        s.slot,
		Table:       s.table.Clone(),
	}
}

// Snapshot is an immutable copy of the state at one instant.
type Snapshot struct {
	Phase       phase.Phase
	Ready       bool
	Decrypted   bool
	Started     bool
	TimeLimitMS int64
	Earned      int
	Spent       int
	Purchasing  bool
	Slot        slot.Config
	Table       *items.Table
}

func (s Snapshot) Available() int { return s.Earned - s.Spent }

func (s Snapshot) View() items.View {
	return items.View{Decrypted: s.Decrypted, Phase: s.Phase, Percentage: s.Slot.Percentage}
}

// Row is one entry with its derived visibility.
type Row struct {
	items.Entry
	items.Visibility
}

// Rows lists a block's entries with the policy applied.
func (s Snapshot) Rows(blk int) []Row {
	entries := s.Table.Entries(blk)
	out := make([]Row, 0, len(entries))
	for _, e := range entries {
		out = append(out, Row{Entry: e, Visibility: s.Table.Policy(blk, e, s.View())})
	}
	return out
}

// Row looks up one location, deriving its block.
func (s Snapshot) Row(location int64) (int, Row, error) {
	blk, e, ok := s.Table.Lookup(location)
	if !ok {
		return 0, Row{}, fmt.Errorf("location %d: not in item table", location)
	}
	return blk, Row{Entry: e, Visibility: s.Table.Policy(blk, e, s.View())}, nil
}

func (s Snapshot) Reachable(surface phase.Surface) bool {
	return phase.Reachable(surface, s.Phase, s.Ready)
}
