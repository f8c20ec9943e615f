package btree

import (
	"github.com/embeddkv/embeddkv/page"
)

// rebalanceLeaf restores the minimum-entries invariant for an
// underflowing non-root leaf by shifting entries from a fuller
// sibling, or merging with one, per spec.md §4.5 Erase.
func (t *Tree) rebalanceLeaf(p *page.Page, node *leafNode, path []pathEntry) error {
	if len(path) == 0 {
		return nil // root leaf may have fewer than the minimum
	}
	entry := path[len(path)-1]
	pp, err := t.mgr.Fetch(entry.id, 0)
	if err != nil {
		return err
	}
	pnode := decodeInternal(pp)

	rightID, rightSlot, haveRight := rightSiblingOf(pnode, pp, entry.slot)
	leftID, leftSlot, haveLeft := leftSiblingOf(pnode, entry.slot)

	if haveRight {
		rp, rnode, err := t.fetchLeaf(rightID)
		if err != nil {
			return err
		}
		if len(rnode.slots) >= shiftThreshold+minEntries {
			t.shiftLeafFromRight(p, node, rp, rnode, pp, pnode, rightSlot)
			return nil
		}
	}
	if haveLeft {
		lp, lnode, err := t.fetchLeaf(leftID)
		if err != nil {
			return err
		}
		if len(lnode.slots) >= shiftThreshold+minEntries {
			t.shiftLeafFromLeft(p, node, lp, lnode, pp, pnode, leftSlot)
			return nil
		}
	}

	switch {
	case haveRight:
		rp, rnode, err := t.fetchLeaf(rightID)
		if err != nil {
			return err
		}
		return t.mergeLeaves(p, node, rp, rnode, pp, pnode, rightSlot, path[:len(path)-1])
	case haveLeft:
		lp, lnode, err := t.fetchLeaf(leftID)
		if err != nil {
			return err
		}
		return t.mergeLeaves(lp, lnode, p, node, pp, pnode, leftSlot, path[:len(path)-1])
	}
	return nil
}

// rightSiblingOf returns the child id immediately after slot index
// childSlot in an internal node, and the parent slot index that
// separates them (the slot whose key must be removed on merge).
func rightSiblingOf(pnode *internalNode, pp *page.Page, childSlot int) (page.ID, int, bool) {
	if childSlot == len(pnode.slots) {
		return 0, 0, false // already the rightmost (ptr-down) child
	}
	if childSlot+1 == len(pnode.slots) {
		return pp.PtrDown(), childSlot, true
	}
	return pnode.slots[childSlot+1].childID, childSlot, true
}

func leftSiblingOf(pnode *internalNode, childSlot int) (page.ID, int, bool) {
	if childSlot == 0 {
		return 0, 0, false
	}
	return pnode.slots[childSlot-1].childID, childSlot - 1, true
}

func (t *Tree) shiftLeafFromRight(p *page.Page, node *leafNode, rp *page.Page, rnode *leafNode, pp *page.Page, pnode *internalNode, sepSlot int) {
	n := (len(rnode.slots) - minEntries) / 2
	if n < 1 {
		n = 1
	}
	node.slots = append(node.slots, rnode.slots[:n]...)
	rnode.slots = rnode.slots[n:]
	pnode.slots[sepSlot].key = append([]byte(nil), node.slots[len(node.slots)-1].key...)

	encodeLeaf(p, node)
	encodeLeaf(rp, rnode)
	encodeInternal(pp, pnode)
	t.mgr.MarkDirty(p.ID())
	t.mgr.MarkDirty(rp.ID())
	t.mgr.MarkDirty(pp.ID())
	t.metrics.Shifts++
}

func (t *Tree) shiftLeafFromLeft(p *page.Page, node *leafNode, lp *page.Page, lnode *leafNode, pp *page.Page, pnode *internalNode, sepSlot int) {
	n := (len(lnode.slots) - minEntries) / 2
	if n < 1 {
		n = 1
	}
	moved := append([]leafSlot(nil), lnode.slots[len(lnode.slots)-n:]...)
	lnode.slots = lnode.slots[:len(lnode.slots)-n]
	node.slots = append(moved, node.slots...)
	pnode.slots[sepSlot].key = append([]byte(nil), lnode.slots[len(lnode.slots)-1].key...)

	encodeLeaf(p, node)
	encodeLeaf(lp, lnode)
	encodeInternal(pp, pnode)
	t.mgr.MarkDirty(p.ID())
	t.mgr.MarkDirty(lp.ID())
	t.mgr.MarkDirty(pp.ID())
	t.metrics.Shifts++
}

// mergeLeaves folds right into left, frees right's page, removes the
// separator from the parent, and relinks the sibling list (spec.md
// §4.5 Erase).
func (t *Tree) mergeLeaves(lp *page.Page, lnode *leafNode, rp *page.Page, rnode *leafNode, pp *page.Page, pnode *internalNode, sepSlot int, parentPath []pathEntry) error {
	lnode.slots = append(lnode.slots, rnode.slots...)
	encodeLeaf(lp, lnode)

	newRight := rp.RightSibling()
	lp.SetRightSibling(newRight)
	if newRight != page.InvalidID {
		if nrp, err := t.mgr.Fetch(newRight, 0); err == nil {
			nrp.SetLeftSibling(lp.ID())
		}
	}
	t.mgr.MarkDirty(lp.ID())

	t.mgr.FreePage(rp.ID())
	t.metrics.Merges++

	removeInternalSlot(pp, pnode, sepSlot, lp.ID())
	if internalUnderflow(pnode) {
		return t.rebalanceInternal(pp, pnode, parentPath)
	}
	encodeInternal(pp, pnode)
	t.mgr.MarkDirty(pp.ID())
	return nil
}

// removeInternalSlot drops parent slot sepSlot, whose separator is now
// subsumed by the merged child, and repoints whichever pointer used to
// target the freed right page at the surviving left page.
func removeInternalSlot(pp *page.Page, pnode *internalNode, sepSlot int, survivorID page.ID) {
	pnode.slots = append(pnode.slots[:sepSlot], pnode.slots[sepSlot+1:]...)
	if sepSlot == len(pnode.slots) {
		pp.SetPtrDown(survivorID)
	} else {
		pnode.slots[sepSlot].childID = survivorID
	}
}

func internalUnderflow(n *internalNode) bool {
	return len(n.slots) < minEntries
}

// rebalanceInternal mirrors rebalanceLeaf one level up, cascading a
// merge as far toward the root as underflow propagates, and collapses
// the root when it loses its last separator (spec.md §4.5 Erase "If
// the root becomes empty and has a single child, collapse").
func (t *Tree) rebalanceInternal(p *page.Page, node *internalNode, path []pathEntry) error {
	if len(path) == 0 {
		if len(node.slots) == 0 {
			t.rootID = p.PtrDown()
			t.mgr.FreePage(p.ID())
			return nil
		}
		encodeInternal(p, node)
		t.mgr.MarkDirty(p.ID())
		return nil
	}

	entry := path[len(path)-1]
	pp, err := t.mgr.Fetch(entry.id, 0)
	if err != nil {
		return err
	}
	pnode := decodeInternal(pp)

	rightID, rightSlot, haveRight := rightSiblingOf(pnode, pp, entry.slot)
	leftID, leftSlot, haveLeft := leftSiblingOf(pnode, entry.slot)

	if haveRight {
		rp, err := t.mgr.Fetch(rightID, 0)
		if err != nil {
			return err
		}
		rnode := decodeInternal(rp)
		return t.mergeInternal(p, node, rp, rnode, pp, pnode, rightSlot, path[:len(path)-1])
	}
	if haveLeft {
		lp, err := t.mgr.Fetch(leftID, 0)
		if err != nil {
			return err
		}
		lnode := decodeInternal(lp)
		return t.mergeInternal(lp, lnode, p, node, pp, pnode, leftSlot, path[:len(path)-1])
	}

	encodeInternal(p, node)
	t.mgr.MarkDirty(p.ID())
	return nil
}

func (t *Tree) mergeInternal(lp *page.Page, lnode *internalNode, rp *page.Page, rnode *internalNode, pp *page.Page, pnode *internalNode, sepSlot int, parentPath []pathEntry) error {
	sepKey := pnode.slots[sepSlot].key
	lnode.slots = append(lnode.slots, internalSlot{key: append([]byte(nil), sepKey...), childID: lp.PtrDown()})
	lnode.slots = append(lnode.slots, rnode.slots...)
	lp.SetPtrDown(rp.PtrDown())
	encodeInternal(lp, lnode)

	t.mgr.MarkDirty(lp.ID())
	t.mgr.FreePage(rp.ID())
	t.metrics.Merges++

	removeInternalSlot(pp, pnode, sepSlot, lp.ID())
	if internalUnderflow(pnode) {
		return t.rebalanceInternal(pp, pnode, parentPath)
	}
	encodeInternal(pp, pnode)
	t.mgr.MarkDirty(pp.ID())
	return nil
}
