// Package items builds and queries the per-location decryption table.
package items

import "sort"

// Entry is one encrypted location and what it holds.
type Entry struct {
	Location int64
	Name     string
	Player   string
	Game     string
	Cost     int
	Unlocked bool
	Hinted   bool
}

type block struct {
	order   []int64
	entries map[int64]*Entry
}

// Table maps block -> location -> Entry. Blocks and locations iterate in
// ascending order. Entries are never removed and their flags only go
// false -> true.
type Table struct {
	blocks  []int
	byBlock map[int]*block
}

func NewTable() *Table {
	return &Table{byBlock: map[int]*block{}}
}

func (t *Table) add(blk int, e Entry) {
	b := t.byBlock[blk]
	if b == nil {
		b = &block{entries: map[int64]*Entry{}}
		t.byBlock[blk] = b
		t.blocks = append(t.blocks, blk)
		sort.Ints(t.blocks)
	}
	if _, ok := b.entries[e.Location]; !ok {
		b.order = append(b.order, e.Location)
		sort.Slice(b.order, func(i, j int) bool { return b.order[i] < b.order[j] })
	}
	cp := e
	b.entries[e.Location] = &cp
}

// Blocks returns block indices in ascending order.
func (t *Table) Blocks() []int {
	return append([]int(nil), t.blocks...)
}

// Entries returns copies of a block's entries in ascending location order.
func (t *Table) Entries(blk int) []Entry {
	b := t.byBlock[blk]
	if b == nil {
		return nil
	}
	out := make([]Entry, 0, len(b.order))
	for _, loc := range b.order {
		out = append(out, *b.entries[loc])
	}
	return out
}

func (t *Table) Entry(blk int, location int64) (Entry, bool) {
	b := t.byBlock[blk]
	if b == nil {
		return Entry{}, false
	}
	e, ok := b.entries[location]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Lookup finds an entry by location id alone, deriving its block.
func (t *Table) Lookup(location int64) (int, Entry, bool) {
	e := t.find(location)
	if e == nil {
		return 0, Entry{}, false
	}
	blk, _ := DeriveBlock(location)
	return blk, *e, true
}

func (t *Table) find(location int64) *Entry {
	if t == nil {
		return nil
	}
	blk, err := DeriveBlock(location)
	if err != nil {
		return nil
	}
	b := t.byBlock[blk]
	if b == nil {
		return nil
	}
	return b.entries[location]
}

// MarkUnlocked flags a checked location. It reports whether anything changed;
// unknown locations are ignored.
func (t *Table) MarkUnlocked(location int64) bool {
	e := t.find(location)
	if e == nil || e.Unlocked {
		return false
	}
	e.Unlocked = true
	return true
}

// MarkHinted flags a hinted location. Same contract as MarkUnlocked.
func (t *Table) MarkHinted(location int64) bool {
	e := t.find(location)
	if e == nil || e.Hinted {
		return false
	}
	e.Hinted = true
	return true
}

// Len is the total number of entries.
func (t *Table) Len() int {
	n := 0
	for _, b := range t.byBlock {
		n += len(b.order)
	}
	return n
}

// Clone returns a deep copy safe to hand to readers outside the session loop.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := NewTable()
	out.blocks = append([]int(nil), t.blocks...)
	for k, b := range t.byBlock {
		nb := &block{order: append([]int64(nil), b.order...), entries: make(map[int64]*Entry, len(b.entries))}
		for loc, e := range b.entries {
			cp := *e
			nb.entries[loc] = &cp
		}
		out.byBlock[k] = nb
	}
	return out
}
