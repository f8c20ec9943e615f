package btree

import (
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
)

// First returns the smallest key in the tree, for cursor "first" moves
// (spec.md §4.8 Move).
func (t *Tree) First() (FindResult, error) {
	_, node, err := t.descendEdge(false)
	if err != nil {
		return FindResult{}, err
	}
	if len(node.slots) == 0 {
		return FindResult{}, fmt.Errorf("%w: tree is empty", common.ErrKeyNotFound)
	}
	s := node.slots[0]
	return FindResult{Key: s.key, Desc: s.desc}, nil
}

// Last returns the largest key in the tree, for cursor "last" moves.
func (t *Tree) Last() (FindResult, error) {
	_, node, err := t.descendEdge(true)
	if err != nil {
		return FindResult{}, err
	}
	if len(node.slots) == 0 {
		return FindResult{}, fmt.Errorf("%w: tree is empty", common.ErrKeyNotFound)
	}
	s := node.slots[len(node.slots)-1]
	return FindResult{Key: s.key, Desc: s.desc}, nil
}

// descendEdge walks to the leftmost (rightmost=false) or rightmost
// (rightmost=true) leaf without needing a key to compare against. The
// rightmost subtree of any internal node is always its ptr-down child
// (spec.md §8: "all keys in subtree(i) are ... > key(P,i-1)", so
// everything greater than the last slot's key lives in ptr-down).
func (t *Tree) descendEdge(rightmost bool) (*page.Page, *leafNode, error) {
	id := t.rootID
	for {
		p, err := t.mgr.Fetch(id, 0)
		if err != nil {
			return nil, nil, err
		}
		if p.Type() == page.TypeBTreeLeaf {
			return p, decodeLeaf(p), nil
		}
		node := decodeInternal(p)
		if rightmost || len(node.slots) == 0 {
			id = p.PtrDown()
		} else {
			id = node.slots[0].childID
		}
	}
}
