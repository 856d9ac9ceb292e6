package items

import "pharcryption.gg/internal/slot"

// Resolver turns raw player and item ids into display names.
type Resolver interface {
	ItemName(player int, item int64) string
	PlayerName(player int) string
	PlayerGame(player int) string
}

// Build materializes the table from the slot's item costs, the locations
// already checked and the locations hinted for this slot. It runs once per
// session; later changes go through MarkUnlocked and MarkHinted.
func Build(cfg slot.Config, checked, hinted []int64, names Resolver) *Table {
	checkedSet := make(map[int64]struct{}, len(checked))
	for _, l := range checked {
		checkedSet[l] = struct{}{}
	}
	hintedSet := make(map[int64]struct{}, len(hinted))
	for _, l := range hinted {
		hintedSet[l] = struct{}{}
	}

	t := NewTable()
	for _, blk := range cfg.Blocks() {
		for _, loc := range cfg.Locations(blk) {
			c := cfg.ItemCosts[blk][loc]
			_, unlocked := checkedSet[loc]
			_, isHinted := hintedSet[loc]
			t.add(blk, Entry{
				Location: loc,
				Name:     names.ItemName(c.Player, c.ItemID),
				Player:   names.PlayerName(c.Player),
				Game:     names.PlayerGame(c.Player),
				Cost:     c.Cost,
				Unlocked: unlocked,
				Hinted:   isHinted,
			})
		}
	}
	return t
}
