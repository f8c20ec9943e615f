package txn

import "github.com/embeddkv/embeddkv/btree"

// Kind identifies what an Operation does to its key, mirroring the
// three operation classes the original engine tags onto each
// transaction op (original_source/src/txn.cc TransactionOperation).
type Kind int

const (
	KindNop Kind = iota
	KindInsert
	KindInsertOverwrite
	KindInsertDuplicate
	KindErase
)

// Operation is one logged mutation against one key, owned by both the
// Transaction that issued it and the KeyNode it targets. Both chains
// are chronological (oldest first); commit flushes a transaction's
// chain in order, and find/cursor visibility walks a node's chain from
// newest to oldest (spec.md §4.6).
type Operation struct {
	txn  *Transaction
	node *KeyNode

	kind      Kind
	flags     btree.InsertFlags // replay flags for Insert*/InsertDuplicate
	dupIndex  int               // duplicate index for a partial erase; btree.NoDuplicateIndex otherwise
	record    []byte            // nil for Erase/Nop
	lsn       uint64
	flushed   bool

	nodeNext, nodePrev *Operation
	txnNext, txnPrev   *Operation
}

func (o *Operation) Txn() *Transaction        { return o.txn }
func (o *Operation) Kind() Kind               { return o.kind }
func (o *Operation) Flushed() bool            { return o.flushed }
func (o *Operation) Record() []byte           { return o.record }
func (o *Operation) Flags() btree.InsertFlags { return o.flags }
func (o *Operation) DupIndex() int            { return o.dupIndex }

// unlinkFromNode removes o from its key node's chronological chain,
// and reports whether the node is now empty (caller removes it from
// the index, matching ~TransactionOperation's node cleanup).
func (o *Operation) unlinkFromNode() bool {
	n := o.node
	if o.nodePrev != nil {
		o.nodePrev.nodeNext = o.nodeNext
	} else {
		n.oldest = o.nodeNext
	}
	if o.nodeNext != nil {
		o.nodeNext.nodePrev = o.nodePrev
	} else {
		n.newest = o.nodePrev
	}
	return n.oldest == nil
}

func (o *Operation) unlinkFromTxn() {
	t := o.txn
	if o.txnPrev != nil {
		o.txnPrev.txnNext = o.txnNext
	} else {
		t.oldestOp = o.txnNext
	}
	if o.txnNext != nil {
		o.txnNext.txnPrev = o.txnPrev
	} else {
		t.newestOp = o.txnPrev
	}
}
