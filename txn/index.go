package txn

import (
	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/rbtree"
)

// Index is the per-database transaction index: a red-black tree of
// KeyNodes ordered by the database's key comparator, approximate-match
// capable exactly like the B+tree (spec.md §4.6, original_source's
// TransactionIndex).
type Index struct {
	tree *rbtree.Tree
	cmp  common.Comparator
}

// NewIndex returns an empty transaction index ordered by cmp.
func NewIndex(cmp common.Comparator) *Index {
	if cmp == nil {
		cmp = common.BytesComparator
	}
	return &Index{tree: rbtree.New(cmp), cmp: cmp}
}

// Get returns the exact KeyNode for key, or nil.
func (x *Index) Get(key []byte) *KeyNode {
	n := x.tree.Search(key)
	if n == nil {
		return nil
	}
	return n.Value.(*KeyNode)
}

// GetApprox mirrors TransactionIndex::get: it resolves LT/GT/LEQ/GEQ
// against the node keys the same way the B+tree resolves approximate
// matches, reporting which direction the match took (spec.md §4.6,
// §9 Open Question #1 resolution shared with btree.Find).
func (x *Index) GetApprox(key []byte, flags common.MatchFlags) (*KeyNode, common.MatchDirection) {
	switch {
	case flags == common.MatchExact:
		if n := x.Get(key); n != nil {
			return n, common.MatchNone
		}
		return nil, common.MatchNone
	case flags == common.MatchGEQ:
		n := x.tree.SearchGEQ(key)
		if n == nil {
			return nil, common.MatchNone
		}
		if x.cmp(key, n.Key) == 0 {
			return n.Value.(*KeyNode), common.MatchNone
		}
		return n.Value.(*KeyNode), common.MatchGreater
	case flags == common.MatchLEQ:
		n := x.tree.SearchLEQ(key)
		if n == nil {
			return nil, common.MatchNone
		}
		if x.cmp(key, n.Key) == 0 {
			return n.Value.(*KeyNode), common.MatchNone
		}
		return n.Value.(*KeyNode), common.MatchLower
	case flags == common.MatchGT:
		if n := x.tree.Search(key); n != nil {
			next := rbtree.Next(n)
			if next == nil {
				return nil, common.MatchNone
			}
			return next.Value.(*KeyNode), common.MatchGreater
		}
		n := x.tree.SearchGEQ(key)
		if n == nil {
			return nil, common.MatchNone
		}
		return n.Value.(*KeyNode), common.MatchGreater
	case flags == common.MatchLT:
		if n := x.tree.Search(key); n != nil {
			prev := rbtree.Prev(n)
			if prev == nil {
				return nil, common.MatchNone
			}
			return prev.Value.(*KeyNode), common.MatchLower
		}
		n := x.tree.SearchLEQ(key)
		if n == nil {
			return nil, common.MatchNone
		}
		return n.Value.(*KeyNode), common.MatchLower
	}
	return nil, common.MatchNone
}

// First and Last support ascending/descending cursor moves across the
// transaction side of the merged iteration (spec.md §4.8).
func (x *Index) First() *KeyNode {
	n := x.tree.First()
	if n == nil {
		return nil
	}
	return n.Value.(*KeyNode)
}

func (x *Index) Last() *KeyNode {
	n := x.tree.Last()
	if n == nil {
		return nil
	}
	return n.Value.(*KeyNode)
}

// Next and Prev return the nearest node strictly after/before key, for
// stepping the transaction-side cursor; key itself need not be in the
// index.
func (x *Index) Next(key []byte) *KeyNode {
	n := x.tree.Search(key)
	if n == nil {
		if gt := x.tree.SearchGEQ(key); gt != nil {
			return gt.Value.(*KeyNode)
		}
		return nil
	}
	next := rbtree.Next(n)
	if next == nil {
		return nil
	}
	return next.Value.(*KeyNode)
}

func (x *Index) Prev(key []byte) *KeyNode {
	n := x.tree.Search(key)
	if n == nil {
		if lt := x.tree.SearchLEQ(key); lt != nil {
			return lt.Value.(*KeyNode)
		}
		return nil
	}
	prev := rbtree.Prev(n)
	if prev == nil {
		return nil
	}
	return prev.Value.(*KeyNode)
}

// Append records a new operation against key on behalf of tx, creating
// the KeyNode on first use (TransactionNode's lazy creation in the
// original's TransactionIndex::get with an insert side effect).
func (x *Index) Append(tx *Transaction, key []byte, kind Kind, flags btree.InsertFlags, dupIndex int, lsn uint64, record []byte) *Operation {
	rn := x.tree.Search(key)
	var kn *KeyNode
	if rn == nil {
		kn = &KeyNode{key: append([]byte(nil), key...)}
		x.tree.Insert(kn.key, kn)
	} else {
		kn = rn.Value.(*KeyNode)
	}
	op := kn.append(tx, kind, flags, dupIndex, lsn, record)
	tx.env.trackOp(op)
	return op
}

// removeOperation detaches op from its node and transaction chains,
// dropping the owning KeyNode from the tree once its op list is empty
// (mirrors ~TransactionOperation's node cleanup).
func (x *Index) removeOperation(op *Operation) {
	empty := op.unlinkFromNode()
	op.unlinkFromTxn()
	if empty {
		if rn := x.tree.Search(op.node.key); rn != nil {
			x.tree.Delete(rn)
		}
	}
}

// Visible walks node's operation chain from newest to oldest and
// returns the op that decides what reader sees for this key, per
// spec.md §4.6's conflict/visibility rule: a still-active other
// transaction's op is both invisible and a conflict; aborted ops are
// skipped; flushed ops are skipped; the first committed-or-own,
// not-yet-flushed op short-circuits the scan.
func (x *Index) Visible(node *KeyNode, reader *Transaction) (*Operation, error) {
	for op := node.newest; op != nil; op = op.nodePrev {
		switch {
		case op.txn.aborted():
			continue
		case op.txn == reader || op.txn.committed():
			if op.flushed {
				continue
			}
			return op, nil
		default:
			return nil, common.ErrTxnConflict
		}
	}
	return nil, nil
}
