package blockstore

import (
	"fmt"
	"sync"
)

// directFanout is the number of direct block pointers an entry holds
// before it starts chaining through indirect entries.
const directFanout = 16

// Pointer identifies one stored block: which Store it lives in (by
// index into the engine's store list) and the block id within that
// store.
type Pointer struct {
	StoreID int
	BlockID int64
}

// PointerTable maps a logical entry id to an ordered list of block
// pointers, using indirect entries to chain past directFanout direct
// pointers — the same direct/indirect layout as a classic inode.
//
// AddPointer must avoid calling back into CreateEntry while already
// holding the table's own lock (that would deadlock the first time an
// indirect entry becomes necessary). This is resolved by computing
// whether a new indirect entry is needed while *holding* the lock, releasing it, then
// calling createEntryLocked in its own critical section, then
// re-acquiring to append the pointer — so the lock is never acquired
// twice in the same call stack.
type PointerTable struct {
	mu              sync.Mutex
	entries         [][]Pointer
	indirectEntries [][]int
}

// NewPointerTable returns an empty table.
func NewPointerTable() *PointerTable {
	return &PointerTable{}
}

// CreateEntry allocates a new, empty logical entry and returns its id.
func (t *PointerTable) CreateEntry() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createEntryLocked()
}

func (t *PointerTable) createEntryLocked() int {
	t.entries = append(t.entries, nil)
	t.indirectEntries = append(t.indirectEntries, nil)
	return len(t.entries) - 1
}

// AddPointer appends a block pointer to entryID, chaining into an
// indirect entry once the direct slots are full.
func (t *PointerTable) AddPointer(entryID int, p Pointer) error {
	for {
		t.mu.Lock()
		if entryID < 0 || entryID >= len(t.entries) {
			t.mu.Unlock()
			return fmt.Errorf("blockstore: invalid entry id %d", entryID)
		}

		if len(t.entries[entryID]) < directFanout {
			t.entries[entryID] = append(t.entries[entryID], p)
			t.mu.Unlock()
			return nil
		}

		// lock released across CreateEntry, then re-acquired and the
		// fullness check redone (the loop) — two concurrent growers can
		// each create an indirect entry, in which case one is simply
		// appended unused rather than leaving the table deadlocked.
		indirects := t.indirectEntries[entryID]
		if len(indirects) == 0 {
			t.mu.Unlock()
			newID := t.CreateEntry()
			t.mu.Lock()
			t.indirectEntries[entryID] = append(t.indirectEntries[entryID], newID)
			t.mu.Unlock()
			continue
		}

		last := indirects[len(indirects)-1]
		if len(t.entries[last]) >= directFanout {
			t.mu.Unlock()
			newID := t.CreateEntry()
			t.mu.Lock()
			t.indirectEntries[entryID] = append(t.indirectEntries[entryID], newID)
			t.mu.Unlock()
			continue
		}

		t.entries[last] = append(t.entries[last], p)
		t.mu.Unlock()
		return nil
	}
}

// GetPointers returns every pointer stored under entryID, direct
// pointers first, followed by each indirect entry's pointers in order.
func (t *PointerTable) GetPointers(entryID int) ([]Pointer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entryID < 0 || entryID >= len(t.entries) {
		return nil, fmt.Errorf("blockstore: invalid entry id %d", entryID)
	}
	result := append([]Pointer(nil), t.entries[entryID]...)
	for _, indirectID := range t.indirectEntries[entryID] {
		result = append(result, t.entries[indirectID]...)
	}
	return result, nil
}

// GetIndirectPointers returns the chain of indirect entry ids for
// entryID, or nil if it has none.
func (t *PointerTable) GetIndirectPointers(entryID int) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entryID < 0 || entryID >= len(t.indirectEntries) {
		return nil, fmt.Errorf("blockstore: invalid entry id %d", entryID)
	}
	if len(t.indirectEntries[entryID]) == 0 {
		return nil, nil
	}
	return append([]int(nil), t.indirectEntries[entryID]...), nil
}
