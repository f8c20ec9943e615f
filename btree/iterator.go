package btree

import (
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
)

// Iterator walks every key in ascending order across the leaf chain,
// implementing common.Iterator.
type Iterator struct {
	t       *Tree
	node    *leafNode
	leafID  page.ID
	idx     int
	key     []byte
	value   []byte
	err     error
	started bool
}

// NewIterator returns an ascending iterator positioned before the
// first key.
func (t *Tree) NewIterator() (*Iterator, error) {
	id := t.rootID
	for {
		p, err := t.mgr.Fetch(id, 0)
		if err != nil {
			return nil, err
		}
		if p.Type() == page.TypeBTreeLeaf {
			return &Iterator{t: t, leafID: id, node: decodeLeaf(p), idx: -1}, nil
		}
		node := decodeInternal(p)
		if len(node.slots) == 0 {
			id = p.PtrDown()
			continue
		}
		id = node.slots[0].childID
	}
}

func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.idx++
	for it.idx >= len(it.node.slots) {
		p, err := it.t.mgr.Fetch(it.leafID, 0)
		if err != nil {
			it.err = err
			return false
		}
		next := p.RightSibling()
		if next == page.InvalidID {
			return false
		}
		np, err := it.t.mgr.Fetch(next, 0)
		if err != nil {
			it.err = err
			return false
		}
		it.leafID = next
		it.node = decodeLeaf(np)
		it.idx = 0
	}
	slot := it.node.slots[it.idx]
	it.key = slot.key
	value, err := it.t.ResolveValue(slot.desc)
	if err != nil {
		it.err = err
		return false
	}
	it.value = value
	return true
}

func (it *Iterator) Key() []byte   { return it.key }
func (it *Iterator) Value() []byte { return it.value }
func (it *Iterator) Error() error  { return it.err }
func (it *Iterator) Close() error  { return nil }

var _ common.Iterator = (*Iterator)(nil)
