package ap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pharcryption.gg/internal/protocol"
	"pharcryption.gg/internal/store"
)

type Config struct {
	URL      string
	Name     string
	Password string
	Tags     []string

	HandshakeTimeout time.Duration
	Logger           *log.Logger
}

// RefusedError is returned by Dial when the server answers ConnectionRefused.
type RefusedError struct {
	Codes []string
}

func (e *RefusedError) Error() string {
	if len(e.Codes) == 0 {
		return "connection refused"
	}
	reasons := make([]string, 0, len(e.Codes))
	for _, c := range e.Codes {
		reasons = append(reasons, protocol.Describe(c))
	}
	return "connection refused: " + strings.Join(reasons, ", ")
}

func (e *RefusedError) Unwrap() error { return store.ErrRefused }

// Client is a connected Archipelago session. It implements store.Store.
type Client struct {
	cfg Config
	log *log.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.RWMutex
	roomInfo  protocol.RoomInfoMsg
	team      int
	slot      int
	slotData  json.RawMessage
	players   map[int]protocol.NetworkPlayer
	slotInfo  map[int]protocol.NetworkSlot
	checked   map[int64]struct{}
	hints     []protocol.Hint
	itemNames map[string]map[int64]string
	connected bool

	pendingGames map[string]struct{}
	metaOnce     sync.Once
	metaLoaded   chan struct{}

	events    chan store.Event
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

var _ store.Store = (*Client)(nil)

// Dial opens the socket and runs the RoomInfo -> Connect -> Connected
// handshake. On success the read loop is running and the hint key is
// subscribed.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	d := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := d.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		cfg:          cfg,
		log:          logger,
		conn:         conn,
		players:      map[int]protocol.NetworkPlayer{},
		slotInfo:     map[int]protocol.NetworkSlot{},
		checked:      map[int64]struct{}{},
		itemNames:    map[string]map[int64]string{},
		pendingGames: map[string]struct{}{},
		metaLoaded:   make(chan struct{}),
		events:       make(chan store.Event, 256),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}

	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go c.readLoop()

	hk := protocol.HintsKey(c.Team(), c.Slot())
	if err := c.send(
		protocol.SetNotifyMsg{Cmd: protocol.CmdSetNotify, Keys: []string{hk}},
		protocol.GetMsg{Cmd: protocol.CmdGet, Keys: []string{hk}},
	); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe hints: %w", err)
	}
	return c, nil
}

func (c *Client) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = c.conn.SetReadDeadline(deadline)
	defer c.conn.SetReadDeadline(time.Time{})

	sentConnect := false
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		packets, err := protocol.DecodePackets(msg)
		if err != nil {
			continue
		}
		for i, p := range packets {
			switch p.Cmd {
			case protocol.CmdRoomInfo:
				if sentConnect {
					continue
				}
				var ri protocol.RoomInfoMsg
				if err := json.Unmarshal(p.Raw, &ri); err != nil {
					return fmt.Errorf("handshake: room info: %w", err)
				}
				if err := c.sendConnect(ri); err != nil {
					return fmt.Errorf("handshake: %w", err)
				}
				sentConnect = true

			case protocol.CmdConnectionRefused:
				var r protocol.ConnectionRefusedMsg
				_ = json.Unmarshal(p.Raw, &r)
				return &RefusedError{Codes: r.Errors}

			case protocol.CmdConnected:
				if err := c.handleConnected(p.Raw); err != nil {
					return fmt.Errorf("handshake: %w", err)
				}
				// Whatever followed Connected in the same frame belongs to the session.
				for _, rest := range packets[i+1:] {
					c.route(rest)
				}
				return nil

			default:
				c.route(p)
			}
		}
	}
}

func (c *Client) sendConnect(ri protocol.RoomInfoMsg) error {
	games := append([]string(nil), ri.Games...)
	sort.Strings(games)

	c.mu.Lock()
	c.roomInfo = ri
	for _, g := range games {
		c.pendingGames[g] = struct{}{}
	}
	c.mu.Unlock()
	if len(games) == 0 {
		c.markMetadataLoaded()
	}

	tags := c.cfg.Tags
	if tags == nil {
		tags = []string{}
	}
	packets := []any{}
	if len(games) > 0 {
		packets = append(packets, protocol.GetDataPackageMsg{Cmd: protocol.CmdGetDataPackage, Games: games})
	}
	packets = append(packets, protocol.ConnectMsg{
		Cmd:           protocol.CmdConnect,
		Password:      c.cfg.Password,
		Game:          protocol.Game,
		Name:          c.cfg.Name,
		UUID:          uuid.NewString(),
		Version:       protocol.ClientVersion,
		ItemsHandling: protocol.ItemsHandlingRemoteAll,
		Tags:          tags,
		SlotData:      true,
	})
	return c.send(packets...)
}

func (c *Client) handleConnected(raw json.RawMessage) error {
	var m protocol.ConnectedMsg
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("connected: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.team = m.Team
	c.slot = m.Slot
	c.slotData = append(json.RawMessage(nil), m.SlotData...)
	for _, p := range m.Players {
		if p.Team == m.Team {
			c.players[p.Slot] = p
		}
	}
	for k, s := range m.SlotInfo {
		var id int
		if _, err := fmt.Sscanf(k, "%d", &id); err != nil {
			continue
		}
		c.slotInfo[id] = s
	}
	for _, l := range m.CheckedLocations {
		c.checked[l] = struct{}{}
	}
	c.connected = true
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	var loopErr error
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			loopErr = err
			break
		}
		packets, err := protocol.DecodePackets(msg)
		if err != nil {
			c.log.Printf("drop frame: %v", err)
			continue
		}
		for _, p := range packets {
			c.route(p)
		}
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	select {
	case <-c.stop:
		loopErr = nil
	default:
	}
	c.emit(store.Event{Kind: store.EventDisconnected, Err: loopErr})
	close(c.events)
}

func (c *Client) route(p protocol.Packet) {
	switch p.Cmd {
	case protocol.CmdDataPackage:
		var m protocol.DataPackageMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			c.log.Printf("data package: %v", err)
			return
		}
		c.handleDataPackage(m)

	case protocol.CmdReceivedItems:
		var m protocol.ReceivedItemsMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			c.log.Printf("received items: %v", err)
			return
		}
		c.emit(store.Event{Kind: store.EventItemsReceived, Index: m.Index, Items: m.Items})

	case protocol.CmdRoomUpdate:
		var m protocol.RoomUpdateMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			c.log.Printf("room update: %v", err)
			return
		}
		c.mu.Lock()
		for _, l := range m.CheckedLocations {
			c.checked[l] = struct{}{}
		}
		for _, pl := range m.Players {
			if pl.Team == c.team {
				c.players[pl.Slot] = pl
			}
		}
		c.mu.Unlock()
		if len(m.CheckedLocations) > 0 {
			c.emit(store.Event{Kind: store.EventRoomUpdated, CheckedLocations: m.CheckedLocations})
		}

	case protocol.CmdRetrieved:
		var m protocol.RetrievedMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			c.log.Printf("retrieved: %v", err)
			return
		}
		if raw, ok := m.Keys[c.hintsKey()]; ok {
			c.storeHints(raw)
		}
		c.emit(store.Event{Kind: store.EventRetrieved, Keys: m.Keys})

	case protocol.CmdSetReply:
		var m protocol.SetReplyMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			c.log.Printf("set reply: %v", err)
			return
		}
		if m.Key == c.hintsKey() {
			c.storeHints(m.Value)
		}
		c.emit(store.Event{Kind: store.EventKeyUpdated, Key: m.Key, Value: m.Value, Previous: m.OriginalValue})

	case protocol.CmdInvalidPacket:
		var m protocol.InvalidPacketMsg
		_ = json.Unmarshal(p.Raw, &m)
		c.log.Printf("server rejected packet type=%s cmd=%s: %s", m.Type, m.OriginalCmd, m.Text)

	case protocol.CmdPrintJSON:
		var m protocol.PrintJSONMsg
		if err := json.Unmarshal(p.Raw, &m); err != nil {
			return
		}
		var sb strings.Builder
		for _, part := range m.Data {
			sb.WriteString(part.Text)
		}
		if sb.Len() > 0 {
			c.log.Printf("chat type=%s: %s", m.Type, sb.String())
		}
	}
}

func (c *Client) handleDataPackage(m protocol.DataPackageMsg) {
	c.mu.Lock()
	for game, pkg := range m.Data.Games {
		names := make(map[int64]string, len(pkg.ItemNameToID))
		for name, id := range pkg.ItemNameToID {
			names[id] = name
		}
		c.itemNames[game] = names
		delete(c.pendingGames, game)
	}
	loaded := len(c.pendingGames) == 0
	c.mu.Unlock()
	if loaded {
		c.markMetadataLoaded()
	}
}

func (c *Client) markMetadataLoaded() {
	c.metaOnce.Do(func() { close(c.metaLoaded) })
}

func (c *Client) storeHints(raw json.RawMessage) {
	var hints []protocol.Hint
	if err := json.Unmarshal(raw, &hints); err != nil {
		c.log.Printf("hints: %v", err)
		return
	}
	c.mu.Lock()
	c.hints = hints
	c.mu.Unlock()
}

func (c *Client) hintsKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return protocol.HintsKey(c.team, c.slot)
}

func (c *Client) emit(ev store.Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

func (c *Client) send(packets ...any) error {
	b, err := protocol.EncodePackets(packets...)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *Client) Subscribe(keys []string) error {
	return c.send(protocol.SetNotifyMsg{Cmd: protocol.CmdSetNotify, Keys: keys})
}

func (c *Client) Get(keys []string) error {
	return c.send(protocol.GetMsg{Cmd: protocol.CmdGet, Keys: keys})
}

func (c *Client) Set(key string, def any, ops []store.Operation, wantReply bool) error {
	if ops == nil {
		ops = []store.Operation{}
	}
	return c.send(protocol.SetMsg{Cmd: protocol.CmdSet, Key: key, Default: def, WantReply: wantReply, Operations: ops})
}

func (c *Client) CheckLocation(location int64) error {
	return c.send(protocol.LocationChecksMsg{Cmd: protocol.CmdLocationChecks, Locations: []int64{location}})
}

func (c *Client) Events() <-chan store.Event      { return c.events }
func (c *Client) MetadataLoaded() <-chan struct{} { return c.metaLoaded }

func (c *Client) Team() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.team
}

func (c *Client) Slot() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot
}

func (c *Client) RoomInfo() protocol.RoomInfoMsg {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomInfo
}

func (c *Client) SlotData() json.RawMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append(json.RawMessage(nil), c.slotData...)
}

func (c *Client) CheckedLocations() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.checked))
	for l := range c.checked {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Client) Hints() []protocol.Hint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]protocol.Hint(nil), c.hints...)
}

func (c *Client) PlayerName(player int) string {
	if player == 0 {
		return "Archipelago"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.players[player]; ok {
		if p.Alias != "" {
			return p.Alias
		}
		return p.Name
	}
	if s, ok := c.slotInfo[player]; ok {
		return s.Name
	}
	return fmt.Sprintf("Unknown Player %d", player)
}

func (c *Client) PlayerGame(player int) string {
	if player == 0 {
		return "Archipelago"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.slotInfo[player]; ok {
		return s.Game
	}
	return "Unknown Game"
}

func (c *Client) ItemName(player int, item int64) string {
	game := c.PlayerGame(player)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.itemNames[game][item]; ok {
		return name
	}
	return fmt.Sprintf("Unknown Item %d", item)
}

// Connected reports whether the socket is still up.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Close tears the socket down and waits for the read loop to finish.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		_ = c.conn.Close()
		<-c.done
	})
	return nil
}
