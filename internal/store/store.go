// Package store is the contract between the session and the remote
// key/value store it mirrors.
package store

import (
	"encoding/json"
	"errors"

	"pharcryption.gg/internal/protocol"
)

// ErrRefused marks a handshake the server answered but rejected. Retrying
// the same credentials on another endpoint will not help.
var ErrRefused = errors.New("connection refused")

// Operation is one atomic data storage operation.
type Operation = protocol.DataStorageOperation

// Replace and Add build the two operations the session issues.
func Replace(v any) Operation { return Operation{Operation: protocol.OpReplace, Value: v} }
func Add(v any) Operation     { return Operation{Operation: protocol.OpAdd, Value: v} }

// Store is what the session needs from a connected transport client.
// Replies arrive asynchronously on Events.
type Store interface {
	Subscribe(keys []string) error
	Get(keys []string) error
	Set(key string, def any, ops []Operation, wantReply bool) error
	// CheckLocation is idempotent; checking a checked location is not an error.
	CheckLocation(location int64) error

	ItemName(player int, item int64) string
	PlayerName(player int) string
	PlayerGame(player int) string

	Slot() int
	Team() int
	SlotData() json.RawMessage
	CheckedLocations() []int64
	Hints() []protocol.Hint

	Events() <-chan Event
	// MetadataLoaded is closed once every player's item names can be resolved.
	MetadataLoaded() <-chan struct{}
	Close() error
}

// Event is one notification from the store. Exactly one field group is set,
// selected by Kind.
type Event struct {
	Kind EventKind

	// EventItemsReceived
	Index int
	Items []protocol.NetworkItem

	// EventRetrieved
	Keys map[string]json.RawMessage

	// EventKeyUpdated
	Key      string
	Value    json.RawMessage
	Previous json.RawMessage

	// EventRoomUpdated
	CheckedLocations []int64

	// EventDisconnected
	Err error
}

type EventKind int

const (
	EventItemsReceived EventKind = iota + 1
	EventRetrieved
	EventKeyUpdated
	EventRoomUpdated
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventItemsReceived:
		return "items_received"
	case EventRetrieved:
		return "retrieved"
	case EventKeyUpdated:
		return "key_updated"
	case EventRoomUpdated:
		return "room_updated"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
