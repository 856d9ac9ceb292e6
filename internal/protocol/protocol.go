package protocol

import (
	"encoding/json"
	"fmt"
)

// Game is the Archipelago game name this client connects as.
const Game = "Pharcryption"

// ClientVersion is the Archipelago network protocol version announced in Connect.
var ClientVersion = NetworkVersion{Major: 0, Minor: 5, Build: 1, Class: "Version"}

// Packet commands.
const (
	// server -> client
	CmdRoomInfo          = "RoomInfo"
	CmdConnectionRefused = "ConnectionRefused"
	CmdConnected         = "Connected"
	CmdReceivedItems     = "ReceivedItems"
	CmdRoomUpdate        = "RoomUpdate"
	CmdDataPackage       = "DataPackage"
	CmdRetrieved         = "Retrieved"
	CmdSetReply          = "SetReply"
	CmdPrintJSON         = "PrintJSON"
	CmdInvalidPacket     = "InvalidPacket"

	// client -> server
	CmdConnect        = "Connect"
	CmdGetDataPackage = "GetDataPackage"
	CmdLocationChecks = "LocationChecks"
	CmdGet            = "Get"
	CmdSet            = "Set"
	CmdSetNotify      = "SetNotify"
)

// BaseMessage lets us route unknown packets by cmd.
type BaseMessage struct {
	Cmd string `json:"cmd"`
}

// Packet is one undecoded packet plus its routing command.
type Packet struct {
	Cmd string
	Raw json.RawMessage
}

// DecodePackets splits one websocket frame into its packets. Archipelago always
// frames packets as a JSON array, even for a single packet.
func DecodePackets(b []byte) ([]Packet, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	out := make([]Packet, 0, len(raws))
	for _, r := range raws {
		var m BaseMessage
		if err := json.Unmarshal(r, &m); err != nil {
			return nil, fmt.Errorf("decode packet: %w", err)
		}
		out = append(out, Packet{Cmd: m.Cmd, Raw: r})
	}
	return out, nil
}

// EncodePackets frames outgoing packets as a JSON array.
func EncodePackets(packets ...any) ([]byte, error) {
	if packets == nil {
		packets = []any{}
	}
	return json.Marshal(packets)
}
