package txn

import "github.com/embeddkv/embeddkv/btree"

// KeyNode is the transaction index's per-key entry: one rbtree node
// holds one KeyNode, which in turn owns the chronological chain of
// Operations any transaction has logged against that key
// (original_source/src/txn.cc TransactionNode).
type KeyNode struct {
	key           []byte
	oldest, newest *Operation
}

func (n *KeyNode) Key() []byte { return n.key }

// Operations returns this node's operation chain oldest-first, for
// the cursor's duplicate-cache construction (spec.md §4.8 Duplicates:
// "plus (txn ops affecting this key in chronological order)").
func (n *KeyNode) Operations() []*Operation {
	var ops []*Operation
	for op := n.oldest; op != nil; op = op.nodeNext {
		ops = append(ops, op)
	}
	return ops
}

// append adds a new Operation to both this node's chain and tx's
// chain, newest-last in both (TransactionNode::append).
func (n *KeyNode) append(tx *Transaction, kind Kind, flags btree.InsertFlags, dupIndex int, lsn uint64, record []byte) *Operation {
	op := &Operation{
		txn:      tx,
		node:     n,
		kind:     kind,
		flags:    flags,
		dupIndex: dupIndex,
		record:   record,
		lsn:      lsn,
	}

	if n.newest == nil {
		n.oldest = op
		n.newest = op
	} else {
		n.newest.nodeNext = op
		op.nodePrev = n.newest
		n.newest = op
	}

	if tx.newestOp == nil {
		tx.oldestOp = op
		tx.newestOp = op
	} else {
		tx.newestOp.txnNext = op
		op.txnPrev = tx.newestOp
		tx.newestOp = op
	}

	return op
}
