package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"pharcryption.gg/internal/phase"
	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/store"
)

type call struct {
	op        string
	key       string
	keys      []string
	def       any
	ops       []store.Operation
	wantReply bool
	location  int64
}

// fakeStore records outgoing calls and lets tests push events.
type fakeStore struct {
	mu       sync.Mutex
	calls    []call
	failSets bool

	slotData json.RawMessage
	checked  []int64
	hints    []protocol.Hint

	events chan store.Event
	meta   chan struct{}
}

func newFakeStore(slotData string) *fakeStore {
	f := &fakeStore{
		slotData: json.RawMessage(slotData),
		events:   make(chan store.Event, 64),
		meta:     make(chan struct{}),
	}
	close(f.meta)
	return f
}

func (f *fakeStore) record(c call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *fakeStore) snapshotCalls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// callsFor filters recorded calls by op and, for Set, by key.
func (f *fakeStore) callsFor(op, key string) []call {
	var out []call
	for _, c := range f.snapshotCalls() {
		if c.op == op && (key == "" || c.key == key) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeStore) Subscribe(keys []string) error {
	f.record(call{op: "subscribe", keys: keys})
	return nil
}

func (f *fakeStore) Get(keys []string) error {
	f.record(call{op: "get", keys: keys})
	return nil
}

func (f *fakeStore) Set(key string, def any, ops []store.Operation, wantReply bool) error {
	f.mu.Lock()
	fail := f.failSets
	f.mu.Unlock()
	if fail {
		return errors.New("socket closed")
	}
	f.record(call{op: "set", key: key, def: def, ops: ops, wantReply: wantReply})
	return nil
}

func (f *fakeStore) CheckLocation(location int64) error {
	f.record(call{op: "check", location: location})
	return nil
}

func (f *fakeStore) ItemName(_ int, item int64) string { return "Item" }
func (f *fakeStore) PlayerName(player int) string      { return "Player" }
func (f *fakeStore) PlayerGame(player int) string      { return "Clique" }

func (f *fakeStore) Slot() int                       { return 1 }
func (f *fakeStore) Team() int                       { return 0 }
func (f *fakeStore) SlotData() json.RawMessage       { return f.slotData }
func (f *fakeStore) CheckedLocations() []int64       { return f.checked }
func (f *fakeStore) Hints() []protocol.Hint          { return f.hints }
func (f *fakeStore) Events() <-chan store.Event      { return f.events }
func (f *fakeStore) MetadataLoaded() <-chan struct{} { return f.meta }
func (f *fakeStore) Close() error                    { return nil }

func (f *fakeStore) push(ev store.Event) { f.events <- ev }

func (f *fakeStore) keyUpdated(key string, value string) {
	f.push(store.Event{Kind: store.EventKeyUpdated, Key: key, Value: json.RawMessage(value)})
}

func (f *fakeStore) receive(index int, ids ...int64) {
	its := make([]protocol.NetworkItem, 0, len(ids))
	for _, id := range ids {
		its = append(its, protocol.NetworkItem{Item: id, Location: -1})
	}
	f.push(store.Event{Kind: store.EventItemsReceived, Index: index, Items: its})
}

type purchaseRecord struct {
	block    int
	location int64
	cost     int
}

type phaseRecord struct {
	from, to phase.Phase
}

type fakeAudit struct {
	mu        sync.Mutex
	purchases []purchaseRecord
	phases    []phaseRecord
}

func (a *fakeAudit) RecordPurchase(_ time.Time, _ int, block int, location int64, cost int) {
	a.mu.Lock()
	a.purchases = append(a.purchases, purchaseRecord{block, location, cost})
	a.mu.Unlock()
}

func (a *fakeAudit) RecordPhase(_ time.Time, _ int, from, to phase.Phase) {
	a.mu.Lock()
	a.phases = append(a.phases, phaseRecord{from, to})
	a.mu.Unlock()
}

type fakeJournal struct {
	mu    sync.Mutex
	kinds []store.EventKind
}

func (j *fakeJournal) WriteEvent(_ time.Time, ev store.Event) error {
	j.mu.Lock()
	j.kinds = append(j.kinds, ev.Kind)
	j.mu.Unlock()
	return nil
}
