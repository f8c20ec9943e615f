package btree

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
)

// FindResult reports the record found and, for an approximate match,
// the direction it resolved in (spec.md §4.5, §9 Open Question #2).
type FindResult struct {
	Key       []byte
	Desc      page.Descriptor
	Direction common.MatchDirection
}

// Find locates key under the given match flags. An exact match
// (MatchExact) returns common.ErrKeyNotFound when absent. Approximate
// flags resolve per spec.md §9's pinned behavior: when the nearest
// qualifying key is across a page boundary, Find crosses via the leaf
// sibling pointer instead of re-descending from the root — this does
// NOT depend on the tree's fanout, only on whether the boundary must
// be crossed at all. Strict MatchLT/MatchGT never return key itself.
func (t *Tree) Find(key []byte, flags common.MatchFlags) (FindResult, error) {
	leafID, _, err := t.descend(key)
	if err != nil {
		return FindResult{}, err
	}
	p, node, err := t.fetchLeaf(leafID)
	if err != nil {
		return FindResult{}, err
	}

	idx, exact := findSlot(node, key, t.cmp)
	strict := flags == common.MatchLT || flags == common.MatchGT
	if exact && !strict {
		return FindResult{Key: node.slots[idx].key, Desc: node.slots[idx].desc, Direction: common.MatchNone}, nil
	}

	if flags == common.MatchExact {
		return FindResult{}, fmt.Errorf("%w: %x", common.ErrKeyNotFound, key)
	}

	wantLT := flags&common.MatchLT != 0
	wantGT := flags&common.MatchGT != 0

	// idx is the first slot >= key (or len(slots) if none); a strict GT
	// search steps past an exact hit so idx is the first slot > key.
	if exact && wantGT {
		idx++
	}
	if wantGT && idx < len(node.slots) {
		return FindResult{Key: node.slots[idx].key, Desc: node.slots[idx].desc, Direction: common.MatchGreater}, nil
	}
	if wantLT && idx > 0 {
		return FindResult{Key: node.slots[idx-1].key, Desc: node.slots[idx-1].desc, Direction: common.MatchLower}, nil
	}

	// The match crosses this leaf's boundary: follow the sibling
	// pointer rather than re-descending from the root.
	if wantGT && idx == len(node.slots) {
		right := p.RightSibling()
		for right != page.InvalidID {
			rp, rnode, err := t.fetchLeaf(right)
			if err != nil {
				return FindResult{}, err
			}
			if len(rnode.slots) > 0 {
				s := rnode.slots[0]
				return FindResult{Key: s.key, Desc: s.desc, Direction: common.MatchGreater}, nil
			}
			right = rp.RightSibling()
		}
	}
	if wantLT && idx == 0 {
		left := p.LeftSibling()
		for left != page.InvalidID {
			lp, lnode, err := t.fetchLeaf(left)
			if err != nil {
				return FindResult{}, err
			}
			if len(lnode.slots) > 0 {
				s := lnode.slots[len(lnode.slots)-1]
				return FindResult{Key: s.key, Desc: s.desc, Direction: common.MatchLower}, nil
			}
			left = lp.LeftSibling()
		}
	}

	return FindResult{}, fmt.Errorf("%w: %x", common.ErrKeyNotFound, key)
}
