package protocol

type NetworkItem struct {
	Item     int64 `json:"item"`
	Location int64 `json:"location"`
	Player   int   `json:"player"`
	Flags    int   `json:"flags"`
}

// ReceivedItems (server -> client)
type ReceivedItemsMsg struct {
	Cmd   string        `json:"cmd"`
	Index int           `json:"index"`
	Items []NetworkItem `json:"items"`
}

// RoomUpdate (server -> client). Only the fields this client reacts to.
type RoomUpdateMsg struct {
	Cmd              string          `json:"cmd"`
	CheckedLocations []int64         `json:"checked_locations,omitempty"`
	Players          []NetworkPlayer `json:"players,omitempty"`
	HintPoints       *int            `json:"hint_points,omitempty"`
}

// LocationChecks (client -> server)
type LocationChecksMsg struct {
	Cmd       string  `json:"cmd"`
	Locations []int64 `json:"locations"`
}

// Hint is one entry of the _read_hints_<team>_<slot> data storage list.
type Hint struct {
	ReceivingPlayer int    `json:"receiving_player"`
	FindingPlayer   int    `json:"finding_player"`
	Location        int64  `json:"location"`
	Item            int64  `json:"item"`
	Found           bool   `json:"found"`
	Entrance        string `json:"entrance,omitempty"`
	ItemFlags       int    `json:"item_flags,omitempty"`
}
