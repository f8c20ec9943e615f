package btree

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/duptable"
	"github.com/embeddkv/embeddkv/page"
)

// InsertFlags controls how Insert resolves an existing key.
type InsertFlags struct {
	Overwrite        bool
	Duplicate        bool
	DupMode          common.DupInsertMode
	DupRelativeIndex int // meaningful only for DupInsertBefore/After
}

// Insert adds key/value, or folds it into an existing key's value or
// duplicate table per flags (spec.md §4.5 Insert).
func (t *Tree) Insert(key, value []byte, flags InsertFlags) error {
	if len(key) > t.maxKeySize {
		return fmt.Errorf("%w: key is %d bytes, max %d", common.ErrKeyTooBig, len(key), t.maxKeySize)
	}

	leafID, path, err := t.descend(key)
	if err != nil {
		return err
	}
	p, node, err := t.fetchLeaf(leafID)
	if err != nil {
		return err
	}

	idx, exact := findSlot(node, key, t.cmp)

	if exact {
		switch {
		case flags.Duplicate && t.allowDuplicateKeys:
			desc, err := t.insertDuplicate(node.slots[idx].desc, value, flags)
			if err != nil {
				return err
			}
			node.slots[idx].desc = desc
			t.recordCount.Add(1)
		case flags.Overwrite:
			replaced := int64(1)
			if old := node.slots[idx].desc; old.Kind == page.DescDuplicateTable {
				table, err := duptable.Load(t.blobs, old.Ref)
				if err != nil {
					return err
				}
				replaced = int64(table.Count())
			}
			if err := t.freeDescriptor(node.slots[idx].desc); err != nil {
				return err
			}
			desc, err := t.buildDescriptor(value)
			if err != nil {
				return err
			}
			node.slots[idx].desc = desc
			t.recordCount.Add(1 - replaced)
		default:
			return fmt.Errorf("%w: %x", common.ErrDuplicateKey, key)
		}
		encodeLeaf(p, node)
		t.mgr.MarkDirty(p.ID())
		return nil
	}

	desc, err := t.buildDescriptor(value)
	if err != nil {
		return err
	}

	if idx == len(node.slots) {
		t.stats.observe(1)
	} else if idx == 0 {
		t.stats.observe(-1)
	} else {
		t.stats.observe(0)
	}

	newSlot := leafSlot{key: append([]byte(nil), key...), desc: desc}
	node.slots = append(node.slots, leafSlot{})
	copy(node.slots[idx+1:], node.slots[idx:])
	node.slots[idx] = newSlot
	t.recordCount.Add(1)

	if leafFits(node, t.leafCapacity()) {
		encodeLeaf(p, node)
		t.mgr.MarkDirty(p.ID())
		return nil
	}

	return t.splitLeaf(p, node, path)
}

func (t *Tree) insertDuplicate(existing page.Descriptor, value []byte, flags InsertFlags) (page.Descriptor, error) {
	newValueDesc, err := t.buildDescriptor(value)
	if err != nil {
		return page.Descriptor{}, err
	}

	if existing.Kind == page.DescDuplicateTable {
		table, err := duptable.Load(t.blobs, existing.Ref)
		if err != nil {
			return page.Descriptor{}, err
		}
		table.Insert(flags.DupMode, flags.DupRelativeIndex, newValueDesc)
		offset, err := table.Persist()
		if err != nil {
			return page.Descriptor{}, err
		}
		return page.DuplicateTableDescriptor(offset), nil
	}

	table := duptable.New(t.blobs)
	table.Insert(common.DupInsertLast, 0, existing)
	table.Insert(flags.DupMode, flags.DupRelativeIndex, newValueDesc)
	offset, err := table.Persist()
	if err != nil {
		return page.Descriptor{}, err
	}
	return page.DuplicateTableDescriptor(offset), nil
}

// buildDescriptor inlines tiny/empty values directly, or stores larger
// ones as a blob (spec.md §4.4).
func (t *Tree) buildDescriptor(value []byte) (page.Descriptor, error) {
	if len(value) == 0 {
		return page.EmptyDescriptor(), nil
	}
	if len(value) <= 8 {
		return page.TinyDescriptor(value), nil
	}
	offset, err := t.blobs.Store(value)
	if err != nil {
		return page.Descriptor{}, fmt.Errorf("store blob value: %w", err)
	}
	t.metrics.BlobAllocs++
	return page.BlobDescriptor(offset), nil
}

// freeDescriptor releases whatever storage backs an existing
// descriptor before it's replaced or the slot is erased.
func (t *Tree) freeDescriptor(d page.Descriptor) error {
	switch d.Kind {
	case page.DescBlob:
		return t.blobs.Free(d.Ref)
	case page.DescDuplicateTable:
		table, err := duptable.Load(t.blobs, d.Ref)
		if err != nil {
			return err
		}
		for i := 0; i < table.Count(); i++ {
			if err := t.freeDescriptor(table.At(i)); err != nil {
				return err
			}
		}
		return table.Free()
	}
	return nil
}

func leafFits(n *leafNode, capacity int) bool {
	total := 0
	for _, s := range n.slots {
		total += leafSlotSize(s.key)
	}
	return total <= capacity
}

func internalFits(n *internalNode, capacity int) bool {
	total := 0
	for _, s := range n.slots {
		total += internalSlotSize(s.key)
	}
	return total <= capacity
}
