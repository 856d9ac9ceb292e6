package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"pharcryption.gg/internal/ledger"
	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/readiness"
	"pharcryption.gg/internal/state"
	"pharcryption.gg/internal/store"
)

// Two blocks of two locations each. Block 1 opens at 50%.
const testSlotData = `{
  "password": "hunter2",
  "percentage": 50,
  "timelimit": 30,
  "item_costs": {
    "0": {"400400000": {"id": 10, "player": 2, "cost": 2}, "400400001": {"id": 11, "player": 2, "cost": 1}},
    "1": {"400400100": {"id": 12, "player": 2, "cost": 3}, "400400101": {"id": 13, "player": 2, "cost": 1}}
  }
}`

type harness struct {
	s      *Session
	store  *fakeStore
	audit  *fakeAudit
	cancel context.CancelFunc
	errc   chan error
}

func startSession(t *testing.T, slotData string, tune func(*Config)) *harness {
	t.Helper()
	fs := newFakeStore(slotData)
	audit := &fakeAudit{}
	cfg := Config{
		Store:            fs,
		Barrier:          readiness.Signal{},
		TickInterval:     5 * time.Millisecond,
		PurchaseCooldown: 50 * time.Millisecond,
		Audit:            audit,
	}
	if tune != nil {
		tune(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{s: s, store: fs, audit: audit, cancel: cancel, errc: make(chan error, 1)}
	go func() { h.errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return h
}

// waitFor polls the state until cond holds.
func (h *harness) waitFor(t *testing.T, what string, cond func(state.Snapshot) bool) state.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := h.s.State().Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s (phase=%s ready=%v earned=%d spent=%d)", what, snap.Phase, snap.Ready, snap.Earned, snap.Spent)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) runErr(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

// inProgress drives the session to a ready InProgress state with coins.
func (h *harness) inProgress(t *testing.T, coins ...int64) {
	t.Helper()
	h.store.keyUpdated(KeyStarted, "true")
	if len(coins) > 0 {
		h.store.receive(0, coins...)
	}
	h.waitFor(t, "in progress", func(s state.Snapshot) bool {
		return s.Ready && s.Phase == phase.InProgress
	})
}

func TestHandshakePackets(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.waitFor(t, "ready", func(s state.Snapshot) bool { return s.Ready })

	calls := h.store.snapshotCalls()
	if len(calls) < 5 {
		t.Fatalf("expected 5 handshake calls, got %+v", calls)
	}
	sub := calls[0]
	if sub.op != "subscribe" || strings.Join(sub.keys, ",") != strings.Join([]string{KeyDecrypted, KeySpent, KeyTimeLimit, KeyStarted}, ",") {
		t.Fatalf("unexpected subscribe: %+v", sub)
	}
	wantSets := []struct {
		key string
		def any
	}{{KeyDecrypted, false}, {KeySpent, 0}, {KeyStarted, false}}
	for i, w := range wantSets {
		c := calls[i+1]
		if c.op != "set" || c.key != w.key || c.def != w.def || len(c.ops) != 0 || !c.wantReply {
			t.Fatalf("set %d: %+v", i, c)
		}
	}
	if g := calls[4]; g.op != "get" || len(g.keys) != 1 || g.keys[0] != KeyTimeLimit {
		t.Fatalf("unexpected get: %+v", g)
	}
}

func TestEarnedIgnoresRepeatedInitialBatch(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.store.receive(0, ItemPharcoins, ItemPharcoins+4) // 1 + 5
	h.store.receive(0, ItemPharcoins, ItemPharcoins+4) // replay
	h.store.receive(1, ItemPharcoins+2)                // 3
	h.store.receive(2, 400400999)                      // not a reward

	snap := h.waitFor(t, "earned", func(s state.Snapshot) bool { return s.Earned >= 9 })
	if snap.Earned != 9 {
		t.Fatalf("earned = %d, want 9", snap.Earned)
	}
}

func TestDecryptionKeyDecrypts(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.store.receive(0, ItemDecryptionKey)
	h.waitFor(t, "decrypted", func(s state.Snapshot) bool { return s.Decrypted })

	sets := h.store.callsFor("set", KeyDecrypted)
	last := sets[len(sets)-1]
	if len(last.ops) != 1 || last.ops[0].Operation != protocol.OpReplace || last.ops[0].Value != true || last.wantReply {
		t.Fatalf("unexpected decrypt set: %+v", last)
	}
}

func TestKeyUpdates(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.waitFor(t, "ready", func(s state.Snapshot) bool { return s.Ready })

	h.store.keyUpdated(KeySpent, "4")
	h.store.keyUpdated(KeyTimeLimit, `"2030-01-02T03:04:05.000Z"`)
	h.store.keyUpdated(KeyDecrypted, "true")
	h.store.keyUpdated(protocol.HintsKey(0, 1), `[
	  {"receiving_player":2,"finding_player":1,"location":400400100,"item":12,"found":false},
	  {"receiving_player":1,"finding_player":2,"location":400400101,"item":99,"found":false}
	]`)
	h.store.push(store.Event{Kind: store.EventRoomUpdated, CheckedLocations: []int64{400400001}})

	want := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	snap := h.waitFor(t, "updates", func(s state.Snapshot) bool {
		_, e, _ := s.Table.Lookup(400400001)
		return e.Unlocked
	})
	if snap.Spent != 4 || snap.TimeLimitMS != want || !snap.Decrypted {
		t.Fatalf("flags: spent=%d timelimit=%d decrypted=%v", snap.Spent, snap.TimeLimitMS, snap.Decrypted)
	}
	if _, e, _ := snap.Table.Lookup(400400100); !e.Hinted {
		t.Fatalf("own hint not marked")
	}
	if _, e, _ := snap.Table.Lookup(400400101); e.Hinted {
		t.Fatalf("hint found by another slot must not mark this table")
	}
}

func TestRetrievedTimeLimit(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.store.push(store.Event{Kind: store.EventRetrieved, Keys: map[string]json.RawMessage{KeyTimeLimit: json.RawMessage(`"2030-01-02T03:04:05Z"`)}})
	h.waitFor(t, "time limit", func(s state.Snapshot) bool { return s.TimeLimitMS != 0 })

	h.store.push(store.Event{Kind: store.EventRetrieved, Keys: map[string]json.RawMessage{KeyTimeLimit: json.RawMessage(`null`)}})
	h.waitFor(t, "time limit cleared", func(s state.Snapshot) bool { return s.TimeLimitMS == 0 })
}

func TestPhaseTransitions(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	past := `"2000-01-01T00:00:00.000Z"`

	h.store.keyUpdated(KeyStarted, "false")
	h.store.keyUpdated(KeyTimeLimit, past)
	snap := h.waitFor(t, "pre game", func(s state.Snapshot) bool { return s.Phase == phase.PreGame && s.TimeLimitMS != 0 })
	if snap.Started {
		t.Fatalf("started mirrored as true")
	}

	// An expired deadline never moves PreGame to PostGame.
	time.Sleep(30 * time.Millisecond)
	if p := h.s.State().Phase(); p != phase.PreGame {
		t.Fatalf("phase = %s, want PRE_GAME", p)
	}

	h.store.keyUpdated(KeyStarted, "true")
	snap = h.waitFor(t, "post game", func(s state.Snapshot) bool { return s.Phase == phase.PostGame })
	if !snap.Started {
		t.Fatalf("started not mirrored")
	}

	// PostGame is terminal.
	h.store.keyUpdated(KeyStarted, "false")
	h.store.keyUpdated(KeyStarted, "true")
	time.Sleep(30 * time.Millisecond)
	if p := h.s.State().Phase(); p != phase.PostGame {
		t.Fatalf("phase = %s, want POST_GAME", p)
	}

	h.audit.mu.Lock()
	defer h.audit.mu.Unlock()
	want := []phaseRecord{
		{phase.Disconnected, phase.PreGame},
		{phase.PreGame, phase.InProgress},
		{phase.InProgress, phase.PostGame},
	}
	if len(h.audit.phases) != len(want) {
		t.Fatalf("audited phases: %+v", h.audit.phases)
	}
	for i := range want {
		if h.audit.phases[i] != want[i] {
			t.Fatalf("phase %d: %+v, want %+v", i, h.audit.phases[i], want[i])
		}
	}
}

func TestNoDeadlineNeverExpires(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t)
	time.Sleep(30 * time.Millisecond)
	if p := h.s.State().Phase(); p != phase.InProgress {
		t.Fatalf("phase = %s, want IN_PROGRESS", p)
	}
}

func TestPurchase(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t, ItemPharcoins+4) // 5 coins
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 5 })

	if err := h.s.Purchase(context.Background(), 0, 400400000); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	spends := h.store.callsFor("set", KeySpent)
	last := spends[len(spends)-1]
	if len(last.ops) != 1 || last.ops[0].Operation != protocol.OpAdd || last.ops[0].Value != 2 || last.wantReply {
		t.Fatalf("unexpected spend: %+v", last)
	}
	checks := h.store.callsFor("check", "")
	if len(checks) != 1 || checks[0].location != 400400000 {
		t.Fatalf("unexpected checks: %+v", checks)
	}
	// Nothing changes locally until the echoes arrive.
	snap := h.s.State().Snapshot()
	if snap.Spent != 0 {
		t.Fatalf("spent changed before echo: %d", snap.Spent)
	}
	if _, e, _ := snap.Table.Lookup(400400000); e.Unlocked {
		t.Fatalf("location unlocked before echo")
	}

	h.audit.mu.Lock()
	got := h.audit.purchases
	h.audit.mu.Unlock()
	if len(got) != 1 || got[0] != (purchaseRecord{0, 400400000, 2}) {
		t.Fatalf("audited purchases: %+v", got)
	}
}

func TestPurchaseGuard(t *testing.T) {
	h := startSession(t, testSlotData, func(c *Config) { c.PurchaseCooldown = 300 * time.Millisecond })
	h.inProgress(t, ItemPharcoins+4)
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 5 })

	if err := h.s.Purchase(context.Background(), 0, 400400001); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if err := h.s.Purchase(context.Background(), 0, 400400000); !errors.Is(err, ErrPurchaseInFlight) {
		t.Fatalf("expected ErrPurchaseInFlight, got %v", err)
	}
	if n := len(h.store.callsFor("set", KeySpent)); n != 2 { // handshake default + one spend
		t.Fatalf("spend calls = %d, want 2", n)
	}

	h.waitFor(t, "guard released", func(s state.Snapshot) bool { return !s.Purchasing })
	if err := h.s.Purchase(context.Background(), 0, 400400000); err != nil {
		t.Fatalf("purchase after cooldown: %v", err)
	}
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t, ItemPharcoins) // 1 coin
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 1 })
	before := len(h.store.snapshotCalls())

	err := h.s.Purchase(context.Background(), 0, 400400000)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if after := len(h.store.snapshotCalls()); after != before {
		t.Fatalf("remote calls issued on insufficient funds")
	}
	snap := h.s.State().Snapshot()
	if snap.Purchasing || snap.Earned != 1 || snap.Spent != 0 {
		t.Fatalf("state mutated: %+v", snap)
	}
	// The guard was never taken, so an affordable purchase goes through.
	if err := h.s.Purchase(context.Background(), 0, 400400001); err != nil {
		t.Fatalf("purchase: %v", err)
	}
}

func TestPurchaseRejections(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.waitFor(t, "ready", func(s state.Snapshot) bool { return s.Ready })

	if err := h.s.Purchase(context.Background(), 0, 400400001); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable before start, got %v", err)
	}

	h.inProgress(t, ItemPharcoins+4)
	h.store.push(store.Event{Kind: store.EventRoomUpdated, CheckedLocations: []int64{400400001}})
	h.waitFor(t, "unlocked", func(s state.Snapshot) bool {
		_, e, _ := s.Table.Lookup(400400001)
		return e.Unlocked && s.Earned == 5
	})

	cases := map[string]struct {
		block    int
		location int64
		want     error
	}{
		"unknown":          {0, 400400099, ErrUnknownLocation},
		"wrong block":      {1, 400400000, ErrUnknownLocation},
		"already unlocked": {0, 400400001, ErrAlreadyUnlocked},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if err := h.s.Purchase(context.Background(), tc.block, tc.location); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// 1 of 2 unlocked meets 50%, so block 1 is open.
	if err := h.s.Purchase(context.Background(), 1, 400400101); err != nil {
		t.Fatalf("block 1 purchase: %v", err)
	}
}

func TestPurchaseAfterExpiry(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t, ItemPharcoins+4)
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 5 })

	h.store.keyUpdated(KeyTimeLimit, `"2000-01-01T00:00:00.000Z"`)
	snap := h.waitFor(t, "post game", func(s state.Snapshot) bool { return s.Phase == phase.PostGame })
	if !snap.Reachable(phase.SurfaceItemDecryptor) {
		t.Fatalf("decryptor should stay reachable after the deadline")
	}

	if err := h.s.Purchase(context.Background(), 0, 400400000); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := len(h.store.callsFor("set", KeySpent)); n != 1 {
		t.Fatalf("spend sent after deadline: %d spent sets", n)
	}
	if n := len(h.store.callsFor("check", "")); n != 0 {
		t.Fatalf("location checked after deadline")
	}
}

func TestPurchaseLockedBlock(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t, ItemPharcoins+4)
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 5 })
	if err := h.s.Purchase(context.Background(), 1, 400400101); !errors.Is(err, ErrNotPurchasable) {
		t.Fatalf("expected ErrNotPurchasable, got %v", err)
	}
}

func TestPurchaseSendFailureReleasesGuard(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t, ItemPharcoins+4)
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 5 })

	h.store.mu.Lock()
	h.store.failSets = true
	h.store.mu.Unlock()
	if err := h.s.Purchase(context.Background(), 0, 400400001); err == nil {
		t.Fatalf("expected send error")
	}
	if h.s.State().Snapshot().Purchasing {
		t.Fatalf("guard held after failed send")
	}
}

func TestStart(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.store.keyUpdated(KeyStarted, "false")
	h.waitFor(t, "pre game", func(s state.Snapshot) bool { return s.Ready && s.Phase == phase.PreGame })
	before := len(h.store.snapshotCalls())

	if err := h.s.Start(context.Background(), "nope"); !errors.Is(err, ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
	if len(h.store.snapshotCalls()) != before {
		t.Fatalf("remote calls issued on wrong password")
	}

	now := time.Now()
	if err := h.s.Start(context.Background(), "hunter2"); err != nil {
		t.Fatalf("start: %v", err)
	}
	started := h.store.callsFor("set", KeyStarted)
	last := started[len(started)-1]
	if len(last.ops) != 1 || last.ops[0].Operation != protocol.OpReplace || last.ops[0].Value != true {
		t.Fatalf("unexpected started set: %+v", last)
	}
	limits := h.store.callsFor("set", KeyTimeLimit)
	if len(limits) != 1 {
		t.Fatalf("time limit sets: %+v", limits)
	}
	if limits[0].ops == nil || len(limits[0].ops) != 0 {
		t.Fatalf("time limit must use empty operations: %+v", limits[0])
	}
	def, _ := limits[0].def.(string)
	deadline, err := time.Parse(time.RFC3339Nano, def)
	if err != nil {
		t.Fatalf("deadline %q: %v", def, err)
	}
	if d := deadline.Sub(now); d < 29*time.Minute || d > 31*time.Minute {
		t.Fatalf("deadline offset = %s", d)
	}
	if !strings.HasSuffix(def, "Z") {
		t.Fatalf("deadline not UTC: %q", def)
	}
}

func TestStartOutsidePreGame(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t)
	if err := h.s.Start(context.Background(), "hunter2"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestStartWithoutTimer(t *testing.T) {
	h := startSession(t, `{"password":"","percentage":0,"timelimit":0,"item_costs":{}}`, nil)
	h.store.keyUpdated(KeyStarted, "false")
	h.waitFor(t, "pre game", func(s state.Snapshot) bool { return s.Ready && s.Phase == phase.PreGame })
	if err := h.s.Start(context.Background(), ""); err != nil {
		t.Fatalf("start: %v", err)
	}
	if n := len(h.store.callsFor("set", KeyTimeLimit)); n != 0 {
		t.Fatalf("time limit set without timer: %d", n)
	}
}

func TestDisconnectEndsRun(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.inProgress(t)
	cause := errors.New("read: connection reset")
	h.store.push(store.Event{Kind: store.EventDisconnected, Err: cause})

	err := h.runErr(t)
	if !errors.Is(err, ErrDisconnected) || !errors.Is(err, cause) {
		t.Fatalf("unexpected run error: %v", err)
	}
	if p := h.s.State().Phase(); p != phase.Disconnected {
		t.Fatalf("phase = %s", p)
	}
	if err := h.s.Purchase(context.Background(), 0, 400400000); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Run returned, got %v", err)
	}
}

func TestNegativeSpentIsFatal(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.store.keyUpdated(KeySpent, "-1")
	if err := h.runErr(t); !errors.Is(err, ledger.ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}
}

func TestStopReturnsNil(t *testing.T) {
	h := startSession(t, testSlotData, nil)
	h.s.Stop()
	h.s.Stop()
	if err := h.runErr(t); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestJournalSeesEvents(t *testing.T) {
	j := &fakeJournal{}
	h := startSession(t, testSlotData, func(c *Config) { c.Journal = j })
	h.store.receive(0, ItemPharcoins)
	h.store.keyUpdated(KeySpent, "0")
	h.waitFor(t, "coins", func(s state.Snapshot) bool { return s.Earned == 1 })
	deadline := time.Now().Add(2 * time.Second)
	for {
		j.mu.Lock()
		n := len(j.kinds)
		j.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal saw %d events", n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewRejectsBadSlotData(t *testing.T) {
	if _, err := New(Config{Store: newFakeStore(`{"percentage": 500}`)}); err == nil {
		t.Fatalf("expected slot data error")
	}
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected nil store error")
	}
}

func TestParseDeadline(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{``, 0},
		{`null`, 0},
		{`""`, 0},
		{`"1970-01-01T00:00:01.500Z"`, 1500},
		{`"2024-01-02T03:04:05+00:00"`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()},
	}
	for _, tc := range cases {
		got, err := parseDeadline(json.RawMessage(tc.in))
		if err != nil || got != tc.want {
			t.Fatalf("parseDeadline(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
	}
	if _, err := parseDeadline(json.RawMessage(`"tomorrow"`)); err == nil {
		t.Fatalf("expected error for garbage deadline")
	}
	if got := formatDeadline(time.UnixMilli(1500)); got != "1970-01-01T00:00:01.500Z" {
		t.Fatalf("formatDeadline = %q", got)
	}
}
