package items

import "pharcryption.gg/internal/phase"

// Visibility is derived on read and never stored on entries.
type Visibility struct {
	Visible     bool
	Purchasable bool
}

// View is the slice of session state the policy depends on.
type View struct {
	Decrypted  bool
	Phase      phase.Phase
	Percentage float64
}

// BlockStats counts unlocked entries of one block.
type BlockStats struct {
	Unlocked int
	Total    int
}

func (s BlockStats) Meets(percentage float64) bool {
	if s.Total == 0 {
		return false
	}
	return float64(s.Unlocked)*100 >= percentage*float64(s.Total)
}

func (t *Table) Stats(blk int) BlockStats {
	b := t.byBlock[blk]
	if b == nil {
		return BlockStats{}
	}
	s := BlockStats{Total: len(b.order)}
	for _, e := range b.entries {
		if e.Unlocked {
			s.Unlocked++
		}
	}
	return s
}

// Policy decides whether an entry of blk is shown and can be bought.
//
// Block 0 is always open and decryption opens everything. Otherwise an entry
// shows when hinted, and shows and is purchasable once the previous block's
// unlocked share reaches the threshold. PostGame reveals every entry without
// changing purchasability.
func (t *Table) Policy(blk int, e Entry, v View) Visibility {
	if blk == 0 {
		return Visibility{Visible: true, Purchasable: true}
	}
	if v.Decrypted {
		return Visibility{Visible: true, Purchasable: true}
	}
	out := Visibility{Visible: e.Hinted}
	if t.Stats(blk - 1).Meets(v.Percentage) {
		out.Visible = true
		out.Purchasable = true
	}
	if v.Phase == phase.PostGame {
		out.Visible = true
	}
	return out
}

// Summary is the status-window rollup of the whole table.
type Summary struct {
	Blocks        int
	ItemsPerBlock int
	Total         int
	Remaining     int
}

func (t *Table) Summary() Summary {
	var s Summary
	for _, blk := range t.blocks {
		st := t.Stats(blk)
		s.Blocks++
		s.ItemsPerBlock = st.Total
		s.Total += st.Total
		s.Remaining += st.Total - st.Unlocked
	}
	return s
}
