// Package duptable implements the duplicate table of spec.md §4.4/§6:
// a growable, ordered array of record descriptors for a single key
// that has more than one visible value, stored as its own blob.
package duptable

import (
	"encoding/binary"
	"fmt"

	"github.com/embeddkv/embeddkv/blob"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
)

// tableHeaderSize: count(4) + capacity(4), ahead of capacity*DescriptorSize
// descriptor slots.
const tableHeaderSize = 8

// initialCapacity is the first table's slot count; Insert doubles it
// once full, the standard growable-array policy the rest of the pack
// uses for dynamic arrays.
const initialCapacity = 4

// Table is the in-memory, mutable form of one key's duplicate list.
// Offset is 0 until Persist is called for the first time.
type Table struct {
	blobs    *blob.Manager
	offset   uint64
	entries  []page.Descriptor
	capacity int
}

// New returns an empty table with no backing blob yet.
func New(blobs *blob.Manager) *Table {
	return &Table{blobs: blobs, capacity: initialCapacity}
}

// Load reads an existing duplicate table from its blob offset.
func Load(blobs *blob.Manager, offset uint64) (*Table, error) {
	raw, err := blobs.Read(offset)
	if err != nil {
		return nil, fmt.Errorf("load duplicate table: %w", err)
	}
	if len(raw) < tableHeaderSize {
		return nil, fmt.Errorf("%w: duplicate table blob too small", common.ErrInternal)
	}
	count := int(binary.LittleEndian.Uint32(raw[0:4]))
	capacity := int(binary.LittleEndian.Uint32(raw[4:8]))

	t := &Table{blobs: blobs, offset: offset, capacity: capacity}
	t.entries = make([]page.Descriptor, count)
	for i := 0; i < count; i++ {
		start := tableHeaderSize + i*page.DescriptorSize
		t.entries[i] = page.DecodeDescriptor(raw[start : start+page.DescriptorSize])
	}
	return t, nil
}

// Count returns the number of visible duplicates.
func (t *Table) Count() int { return len(t.entries) }

// At returns the descriptor at position i (0-based insertion order, as
// spec.md §8's duplicate scenario walks it).
func (t *Table) At(i int) page.Descriptor { return t.entries[i] }

// insertionIndex returns the slot where mode/relativeTo resolves to an
// insertion point.
func (t *Table) insertionIndex(mode common.DupInsertMode, relativeTo int) int {
	switch mode {
	case common.DupInsertFirst:
		return 0
	case common.DupInsertBefore:
		return relativeTo
	case common.DupInsertAfter:
		return relativeTo + 1
	default: // DupInsertLast
		return len(t.entries)
	}
}

// Insert places d according to mode (relativeTo is ignored except for
// BEFORE/AFTER, spec.md §4.4 "Duplicate insert flags FIRST/LAST/
// BEFORE/AFTER control the position inside the table").
func (t *Table) Insert(mode common.DupInsertMode, relativeTo int, d page.Descriptor) int {
	idx := t.insertionIndex(mode, relativeTo)
	t.entries = append(t.entries, page.Descriptor{})
	copy(t.entries[idx+1:], t.entries[idx:])
	t.entries[idx] = d
	if len(t.entries) > t.capacity {
		t.capacity *= 2
	}
	return idx
}

// Remove deletes the descriptor at i, shrinking the visible count. The
// underlying capacity is never reduced — matching the original
// growable-array policy of amortizing reuse over shrink/regrow cycles.
func (t *Table) Remove(i int) error {
	if i < 0 || i >= len(t.entries) {
		return fmt.Errorf("%w: duplicate index %d out of range", common.ErrInvalidParameter, i)
	}
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return nil
}

// Persist writes the table to its blob, creating it on first use or
// overwriting/reallocating through blob.Manager.Overwrite afterward.
func (t *Table) Persist() (uint64, error) {
	size := tableHeaderSize + t.capacity*page.DescriptorSize
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(t.entries)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(t.capacity))
	for i, d := range t.entries {
		start := tableHeaderSize + i*page.DescriptorSize
		d.Encode(buf[start : start+page.DescriptorSize])
	}

	if t.offset == 0 {
		offset, err := t.blobs.Store(buf)
		if err != nil {
			return 0, fmt.Errorf("persist new duplicate table: %w", err)
		}
		t.offset = offset
		return offset, nil
	}

	offset, err := t.blobs.Overwrite(t.offset, buf)
	if err != nil {
		return 0, fmt.Errorf("persist duplicate table: %w", err)
	}
	t.offset = offset
	return offset, nil
}

// Offset reports the table's current backing blob offset (0 if it has
// never been persisted).
func (t *Table) Offset() uint64 { return t.offset }

// Free releases the table's backing blob entirely, used when the last
// duplicate is erased and the leaf reverts to a direct record
// descriptor (spec.md §4.4).
func (t *Table) Free() error {
	if t.offset == 0 {
		return nil
	}
	return t.blobs.Free(t.offset)
}
