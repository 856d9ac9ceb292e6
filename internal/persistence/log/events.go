package log

import (
	"encoding/json"
	"time"

	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/store"
)

// EventEntry is one journal line.
type EventEntry struct {
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"`
	Index *int      `json:"index,omitempty"`

	Items            []protocol.NetworkItem     `json:"items,omitempty"`
	Keys             map[string]json.RawMessage `json:"keys,omitempty"`
	Key              string                     `json:"key,omitempty"`
	Value            json.RawMessage            `json:"value,omitempty"`
	Previous         json.RawMessage            `json:"previous,omitempty"`
	CheckedLocations []int64                    `json:"checked_locations,omitempty"`
	Err              string                     `json:"error,omitempty"`
}

// EventLogger journals every store event the session applies.
type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(dir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(dir, "events")}
}

func (l *EventLogger) WriteEvent(at time.Time, ev store.Event) error {
	e := EventEntry{
		At:               at.UTC(),
		Kind:             ev.Kind.String(),
		Items:            ev.Items,
		Keys:             ev.Keys,
		Key:              ev.Key,
		Value:            ev.Value,
		Previous:         ev.Previous,
		CheckedLocations: ev.CheckedLocations,
	}
	if ev.Kind == store.EventItemsReceived {
		idx := ev.Index
		e.Index = &idx
	}
	if ev.Err != nil {
		e.Err = ev.Err.Error()
	}
	return l.w.Write(at, e)
}

func (l *EventLogger) Close() error { return l.w.Close() }
