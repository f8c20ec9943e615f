package btree

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/duptable"
	"github.com/embeddkv/embeddkv/page"
)

// NoDuplicateIndex erases the entire key (or its whole duplicate
// table), rather than one specific duplicate.
const NoDuplicateIndex = -1

// Erase removes key. When the key holds a duplicate table and dupIndex
// is >= 0, only that duplicate is removed (and the key survives with
// the remaining duplicates); otherwise the whole entry is removed
// (spec.md §4.5 Erase).
func (t *Tree) Erase(key []byte, dupIndex int) error {
	leafID, path, err := t.descend(key)
	if err != nil {
		return err
	}
	p, node, err := t.fetchLeaf(leafID)
	if err != nil {
		return err
	}

	idx, exact := findSlot(node, key, t.cmp)
	if !exact {
		return fmt.Errorf("%w: %x", common.ErrKeyNotFound, key)
	}

	desc := node.slots[idx].desc
	removeSlot := true
	removed := int64(1)

	if desc.Kind == page.DescDuplicateTable && dupIndex != NoDuplicateIndex {
		table, err := duptable.Load(t.blobs, desc.Ref)
		if err != nil {
			return err
		}
		if dupIndex < 0 || dupIndex >= table.Count() {
			return fmt.Errorf("%w: duplicate index %d", common.ErrInvalidParameter, dupIndex)
		}
		if err := t.freeDescriptor(table.At(dupIndex)); err != nil {
			return err
		}
		table.Remove(dupIndex)
		if table.Count() == 0 {
			if err := table.Free(); err != nil {
				return err
			}
		} else {
			offset, err := table.Persist()
			if err != nil {
				return err
			}
			node.slots[idx].desc = page.DuplicateTableDescriptor(offset)
			removeSlot = false
		}
	} else {
		if desc.Kind == page.DescDuplicateTable {
			table, err := duptable.Load(t.blobs, desc.Ref)
			if err != nil {
				return err
			}
			removed = int64(table.Count())
		}
		if err := t.freeDescriptor(desc); err != nil {
			return err
		}
	}

	if removeSlot {
		node.slots = append(node.slots[:idx], node.slots[idx+1:]...)
	}
	t.recordCount.Add(-removed)
	encodeLeaf(p, node)
	t.mgr.MarkDirty(p.ID())

	if len(node.slots) < minEntries && leafID != t.rootID {
		return t.rebalanceLeaf(p, node, path)
	}
	return nil
}
