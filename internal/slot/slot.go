// Package slot decodes the server-supplied slot configuration for a
// Pharcryption slot.
package slot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed slot_data.schema.json
var schemaJSON []byte

const schemaURL = "slot_data.schema.json"

var (
	compileOnce sync.Once
	schema      *jsonschema.Schema
	schemaErr   error
)

// Cost is what one encrypted location holds and what it costs to decrypt.
type Cost struct {
	ItemID int64 `json:"id"`
	Player int   `json:"player"`
	Cost   int   `json:"cost"`
}

// Config is the immutable slot configuration received at handshake.
type Config struct {
	Password         string
	Percentage       float64
	TimeLimitMinutes float64
	// ItemCosts maps block -> location id -> cost entry.
	ItemCosts map[int]map[int64]Cost
}

type wireConfig struct {
	Password   string                                `json:"password"`
	Percentage float64                               `json:"percentage"`
	TimeLimit  float64                               `json:"timelimit"`
	ItemCosts  map[string]map[string]json.RawMessage `json:"item_costs"`
}

func compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Decode validates raw slot_data against the embedded schema and converts it.
func Decode(raw json.RawMessage) (Config, error) {
	if len(raw) == 0 {
		return Config{}, fmt.Errorf("slot data: empty")
	}
	s, err := compiled()
	if err != nil {
		return Config{}, fmt.Errorf("slot data schema: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Config{}, fmt.Errorf("slot data: %w", err)
	}
	if err := s.Validate(generic); err != nil {
		return Config{}, fmt.Errorf("slot data: %w", err)
	}

	var w wireConfig
	if err := json.Unmarshal(raw, &w); err != nil {
		return Config{}, fmt.Errorf("slot data: %w", err)
	}
	cfg := Config{
		Password:         w.Password,
		Percentage:       w.Percentage,
		TimeLimitMinutes: w.TimeLimit,
		ItemCosts:        make(map[int]map[int64]Cost, len(w.ItemCosts)),
	}
	for bk, locs := range w.ItemCosts {
		block, err := strconv.Atoi(bk)
		if err != nil {
			return Config{}, fmt.Errorf("slot data: block %q: %w", bk, err)
		}
		m := make(map[int64]Cost, len(locs))
		for lk, rawCost := range locs {
			loc, err := strconv.ParseInt(lk, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("slot data: location %q: %w", lk, err)
			}
			var c Cost
			if err := json.Unmarshal(rawCost, &c); err != nil {
				return Config{}, fmt.Errorf("slot data: location %d: %w", loc, err)
			}
			m[loc] = c
		}
		cfg.ItemCosts[block] = m
	}
	return cfg, nil
}

// Blocks returns the configured block indices in ascending order.
func (c Config) Blocks() []int {
	out := make([]int, 0, len(c.ItemCosts))
	for b := range c.ItemCosts {
		out = append(out, b)
	}
	sort.Ints(out)
	return out
}

// Locations returns the location ids of one block in ascending order.
func (c Config) Locations(block int) []int64 {
	locs := c.ItemCosts[block]
	out := make([]int64, 0, len(locs))
	for l := range locs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PasswordRequired reports whether starting the service is gated.
func (c Config) PasswordRequired() bool { return c.Password != "" }

// TimerEnabled reports whether a time limit applies once started.
func (c Config) TimerEnabled() bool { return c.TimeLimitMinutes > 0 }
