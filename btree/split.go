package btree

import (
	"fmt"

	"github.com/embeddkv/embeddkv/page"
)

// splitPoint picks where to cut a full node's slots, nudged by the
// statistics-driven append/prepend bias (spec.md §4.5 Insert "Split
// policy"): an append streak keeps the left side larger so newly
// appended keys land in a fresh, mostly-empty right leaf; a prepend
// streak mirrors that on the left.
func splitPoint(n int, bias int) int {
	mid := n / 2
	switch {
	case bias > 0:
		mid = n - n/4
	case bias < 0:
		mid = n / 4
	}
	if mid < 1 {
		mid = 1
	}
	if mid > n-1 {
		mid = n - 1
	}
	return mid
}

// splitLeaf cuts an overflowing leaf in two and promotes the
// separator into the parent (spec.md §4.5 Insert).
func (t *Tree) splitLeaf(p *page.Page, node *leafNode, path []pathEntry) error {
	mid := splitPoint(len(node.slots), t.stats.bias())
	leftSlots := append([]leafSlot(nil), node.slots[:mid]...)
	rightSlots := append([]leafSlot(nil), node.slots[mid:]...)

	rp, err := t.mgr.Alloc(page.TypeBTreeLeaf, 0)
	if err != nil {
		return fmt.Errorf("alloc split leaf: %w", err)
	}

	leftNode := &leafNode{slots: leftSlots}
	rightNode := &leafNode{slots: rightSlots}
	encodeLeaf(p, leftNode)
	encodeLeaf(rp, rightNode)

	oldRight := p.RightSibling()
	p.SetRightSibling(rp.ID())
	rp.SetLeftSibling(p.ID())
	rp.SetRightSibling(oldRight)
	if oldRight != page.InvalidID {
		if orp, err := t.mgr.Fetch(oldRight, 0); err == nil {
			orp.SetLeftSibling(rp.ID())
		}
	}

	t.mgr.MarkDirty(p.ID())
	t.mgr.MarkDirty(rp.ID())
	t.metrics.Splits++

	separator := leftNode.slots[len(leftNode.slots)-1].key
	return t.insertIntoParent(path, separator, p.ID(), rp.ID())
}

// insertIntoParent records that leftID now covers keys up to
// separator and rightID covers the range the old single-child pointer
// used to cover. path is the descent trail; an empty path means the
// page that split was the root.
func (t *Tree) insertIntoParent(path []pathEntry, separator []byte, leftID, rightID page.ID) error {
	if len(path) == 0 {
		newRoot, err := t.mgr.Alloc(page.TypeBTreeInternal, 0)
		if err != nil {
			return fmt.Errorf("alloc new root: %w", err)
		}
		node := &internalNode{slots: []internalSlot{{key: append([]byte(nil), separator...), childID: leftID}}}
		newRoot.SetPtrDown(rightID)
		encodeInternal(newRoot, node)
		t.mgr.MarkDirty(newRoot.ID())
		t.rootID = newRoot.ID()
		return nil
	}

	entry := path[len(path)-1]
	pp, err := t.mgr.Fetch(entry.id, 0)
	if err != nil {
		return err
	}
	pnode := decodeInternal(pp)

	if entry.slot == len(pnode.slots) {
		pp.SetPtrDown(rightID)
	} else {
		pnode.slots[entry.slot].childID = rightID
	}
	newSlot := internalSlot{key: append([]byte(nil), separator...), childID: leftID}
	pnode.slots = append(pnode.slots, internalSlot{})
	copy(pnode.slots[entry.slot+1:], pnode.slots[entry.slot:])
	pnode.slots[entry.slot] = newSlot

	if internalFits(pnode, t.leafCapacity()) {
		encodeInternal(pp, pnode)
		t.mgr.MarkDirty(pp.ID())
		return nil
	}
	return t.splitInternal(pp, pnode, path[:len(path)-1])
}

// splitInternal cuts an overflowing internal node, promoting its
// middle key into the parent without duplicating it (unlike a leaf
// split, the internal separator is removed from both halves — it's
// represented by the tree structure itself once promoted).
func (t *Tree) splitInternal(p *page.Page, node *internalNode, path []pathEntry) error {
	mid := len(node.slots) / 2
	promoted := node.slots[mid]

	leftSlots := append([]internalSlot(nil), node.slots[:mid]...)
	rightSlots := append([]internalSlot(nil), node.slots[mid+1:]...)

	rp, err := t.mgr.Alloc(page.TypeBTreeInternal, 0)
	if err != nil {
		return fmt.Errorf("alloc split internal: %w", err)
	}

	leftNode := &internalNode{slots: leftSlots}
	rightNode := &internalNode{slots: rightSlots}
	rp.SetPtrDown(p.PtrDown())
	p.SetPtrDown(promoted.childID)

	encodeInternal(p, leftNode)
	encodeInternal(rp, rightNode)

	t.mgr.MarkDirty(p.ID())
	t.mgr.MarkDirty(rp.ID())
	t.metrics.Splits++

	return t.insertIntoParent(path, promoted.key, p.ID(), rp.ID())
}
