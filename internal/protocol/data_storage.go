package protocol

import (
	"encoding/json"
	"fmt"
)

// Data storage operations.
const (
	OpReplace = "replace"
	OpDefault = "default"
	OpAdd     = "add"
	OpMul     = "mul"
	OpMax     = "max"
	OpMin     = "min"
)

type DataStorageOperation struct {
	Operation string `json:"operation"`
	Value     any    `json:"value"`
}

// Get (client -> server)
type GetMsg struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

// Retrieved (server -> client)
type RetrievedMsg struct {
	Cmd  string                     `json:"cmd"`
	Keys map[string]json.RawMessage `json:"keys"`
}

// Set (client -> server). Operations must serialize as [] rather than null.
type SetMsg struct {
	Cmd        string                 `json:"cmd"`
	Key        string                 `json:"key"`
	Default    any                    `json:"default"`
	WantReply  bool                   `json:"want_reply"`
	Operations []DataStorageOperation `json:"operations"`
}

// SetReply (server -> client)
type SetReplyMsg struct {
	Cmd           string          `json:"cmd"`
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	OriginalValue json.RawMessage `json:"original_value,omitempty"`
	Slot          int             `json:"slot,omitempty"`
}

// SetNotify (client -> server)
type SetNotifyMsg struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

// HintsKey returns the data storage key holding the hints of one slot.
func HintsKey(team, slot int) string {
	return fmt.Sprintf("_read_hints_%d_%d", team, slot)
}
