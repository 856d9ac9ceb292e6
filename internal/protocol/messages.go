package protocol

import "encoding/json"

type NetworkVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

// RoomInfo (server -> client), sent immediately after the socket opens.
type RoomInfoMsg struct {
	Cmd                  string            `json:"cmd"`
	Version              NetworkVersion    `json:"version"`
	GeneratorVersion     NetworkVersion    `json:"generator_version"`
	Tags                 []string          `json:"tags"`
	Password             bool              `json:"password"`
	HintCost             int               `json:"hint_cost"`
	LocationCheckPoints  int               `json:"location_check_points"`
	Games                []string          `json:"games"`
	DatapackageChecksums map[string]string `json:"datapackage_checksums,omitempty"`
	SeedName             string            `json:"seed_name"`
	Time                 float64           `json:"time"`
}

// Items handling flags for Connect.
const (
	ItemsHandlingRemote    = 0b001
	ItemsHandlingOwnWorld  = 0b010
	ItemsHandlingStarting  = 0b100
	ItemsHandlingRemoteAll = ItemsHandlingRemote | ItemsHandlingOwnWorld | ItemsHandlingStarting
)

// Connect (client -> server)
type ConnectMsg struct {
	Cmd           string         `json:"cmd"`
	Password      string         `json:"password"`
	Game          string         `json:"game"`
	Name          string         `json:"name"`
	UUID          string         `json:"uuid"`
	Version       NetworkVersion `json:"version"`
	ItemsHandling int            `json:"items_handling"`
	Tags          []string       `json:"tags"`
	SlotData      bool           `json:"slot_data"`
}

// ConnectionRefused (server -> client)
type ConnectionRefusedMsg struct {
	Cmd    string   `json:"cmd"`
	Errors []string `json:"errors,omitempty"`
}

type NetworkPlayer struct {
	Team  int    `json:"team"`
	Slot  int    `json:"slot"`
	Alias string `json:"alias"`
	Name  string `json:"name"`
}

type NetworkSlot struct {
	Name         string `json:"name"`
	Game         string `json:"game"`
	Type         int    `json:"type"`
	GroupMembers []int  `json:"group_members,omitempty"`
}

// Connected (server -> client)
type ConnectedMsg struct {
	Cmd              string                 `json:"cmd"`
	Team             int                    `json:"team"`
	Slot             int                    `json:"slot"`
	Players          []NetworkPlayer        `json:"players"`
	MissingLocations []int64                `json:"missing_locations"`
	CheckedLocations []int64                `json:"checked_locations"`
	SlotData         json.RawMessage        `json:"slot_data,omitempty"`
	SlotInfo         map[string]NetworkSlot `json:"slot_info"`
	HintPoints       int                    `json:"hint_points"`
}

// GetDataPackage (client -> server)
type GetDataPackageMsg struct {
	Cmd   string   `json:"cmd"`
	Games []string `json:"games,omitempty"`
}

type GamePackage struct {
	ItemNameToID     map[string]int64 `json:"item_name_to_id"`
	LocationNameToID map[string]int64 `json:"location_name_to_id"`
	Checksum         string           `json:"checksum"`
}

// DataPackage (server -> client)
type DataPackageMsg struct {
	Cmd  string `json:"cmd"`
	Data struct {
		Games map[string]GamePackage `json:"games"`
	} `json:"data"`
}

// InvalidPacket (server -> client)
type InvalidPacketMsg struct {
	Cmd        string `json:"cmd"`
	Type       string `json:"type"`
	OriginalCmd string `json:"original_cmd,omitempty"`
	Text       string `json:"text"`
}

// PrintJSON (server -> client). Only the plain text parts are kept.
type PrintJSONMsg struct {
	Cmd  string `json:"cmd"`
	Type string `json:"type,omitempty"`
	Data []struct {
		Text string `json:"text"`
	} `json:"data"`
}
