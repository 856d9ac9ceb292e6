package slot

import (
	"encoding/json"
	"strings"
	"testing"
)

const sample = `{
  "password": "hunter2",
  "percentage": 70,
  "timelimit": 90,
  "item_costs": {
    "1": {"400400105": {"id": 77, "player": 2, "cost": 4}},
    "0": {
      "400400003": {"id": 12, "player": 1, "cost": 1},
      "400400001": {"id": 11, "player": 3, "cost": 2}
    }
  }
}`

func TestDecode(t *testing.T) {
	cfg, err := Decode(json.RawMessage(sample))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Password != "hunter2" || cfg.Percentage != 70 || cfg.TimeLimitMinutes != 90 {
		t.Fatalf("unexpected scalars: %+v", cfg)
	}
	if got := cfg.Blocks(); len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("blocks: %v", got)
	}
	locs := cfg.Locations(0)
	if len(locs) != 2 || locs[0] != 400400001 || locs[1] != 400400003 {
		t.Fatalf("locations not sorted: %v", locs)
	}
	c := cfg.ItemCosts[1][400400105]
	if c.ItemID != 77 || c.Player != 2 || c.Cost != 4 {
		t.Fatalf("cost entry: %+v", c)
	}
	if !cfg.PasswordRequired() || !cfg.TimerEnabled() {
		t.Fatalf("expected password gate and timer")
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":            ``,
		"missing costs":    `{"percentage": 10}`,
		"percentage range": `{"percentage": 101, "item_costs": {}}`,
		"negative cost":    `{"percentage": 10, "item_costs": {"0": {"400400000": {"id": 1, "player": 1, "cost": -1}}}}`,
		"bad block key":    `{"percentage": 10, "item_costs": {"x": {}}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(json.RawMessage(raw))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.HasPrefix(err.Error(), "slot data") {
				t.Fatalf("expected slot data prefix, got %v", err)
			}
		})
	}
}

func TestNoGateNoTimer(t *testing.T) {
	cfg, err := Decode(json.RawMessage(`{"password":"","percentage":0,"timelimit":0,"item_costs":{}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.PasswordRequired() || cfg.TimerEnabled() {
		t.Fatalf("expected no gate and no timer")
	}
}
