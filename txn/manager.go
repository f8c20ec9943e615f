// Package txn implements the per-database transaction index: a
// red-black tree of per-key operation chains providing logical
// isolation between overlapping transactions, and the oldest-first
// commit flush that replays committed operations into the B+tree
// (spec.md §4.6, original_source/src/txn.cc).
package txn

import (
	"fmt"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/rs/zerolog"
)

// Applier is the replay target for flushed operations — satisfied by
// *btree.Tree. Kept as an interface so tests can stub the replay side
// without a full page-cache-backed tree.
type Applier interface {
	Insert(key, value []byte, flags btree.InsertFlags) error
	Erase(key []byte, dupIndex int) error
}

// Manager owns one database's transaction index plus the global,
// oldest-first list of live transactions spec.md §4.6's
// flush_committed_txns walks.
type Manager struct {
	index *Index
	apply Applier

	oldestTxn, newestTxn *Transaction
	nextID               uint64
	nextLSN              uint64

	metrics *common.Metrics
	log     zerolog.Logger
}

// NewManager returns a transaction manager replaying committed ops
// into apply, ordering its index with cmp (the owning database's key
// comparator, so approximate match agrees with the B+tree).
func NewManager(cmp common.Comparator, apply Applier, metrics *common.Metrics, logger zerolog.Logger) *Manager {
	return &Manager{
		index:   NewIndex(cmp),
		apply:   apply,
		metrics: metrics,
		log:     logger.With().Str("component", "txn").Logger(),
	}
}

// Begin starts a new transaction and appends it to the tail of the
// global transaction list.
func (m *Manager) Begin(name string, flags Flags) *Transaction {
	m.nextID++
	t := &Transaction{
		id:    m.nextID,
		env:   m,
		name:  name,
		flags: flags,
		st:    stateActive,
	}
	if m.newestTxn == nil {
		m.oldestTxn = t
	} else {
		m.newestTxn.newer = t
		t.older = m.newestTxn
	}
	m.newestTxn = t
	m.log.Debug().Uint64("txn_id", t.id).Str("name", name).Msg("txn begin")
	return t
}

// trackOp assigns a monotonic lsn to a freshly logged operation.
func (m *Manager) trackOp(op *Operation) {
	m.nextLSN++
	op.lsn = m.nextLSN
}

// LogInsert records an insert-family operation against key on tx's
// behalf, without touching the B+tree yet (spec.md §4.8 Insert/erase/
// overwrite: "mutations through a cursor route through the
// transaction layer when a transaction is bound").
func (m *Manager) LogInsert(tx *Transaction, key, value []byte, kind Kind, flags btree.InsertFlags) *Operation {
	v := append([]byte(nil), value...)
	return m.index.Append(tx, key, kind, flags, btree.NoDuplicateIndex, 0, v)
}

// LogErase records an erase against key (or one duplicate of it, when
// dupIndex != btree.NoDuplicateIndex) on tx's behalf.
func (m *Manager) LogErase(tx *Transaction, key []byte, dupIndex int) *Operation {
	return m.index.Append(tx, key, KindErase, btree.InsertFlags{}, dupIndex, 0, nil)
}

// Find resolves key against the transaction layer the way
// TransactionIndex::get plus visibility scanning do: it returns the
// KeyNode's visible operation for reader (nil if the key has no
// transaction-layer presence, in which case callers fall back to the
// B+tree), the approximate-match direction, and ErrTxnConflict if a
// still-active other transaction holds the key.
func (m *Manager) Find(reader *Transaction, key []byte, flags common.MatchFlags) (*Operation, common.MatchDirection, error) {
	node, dir := m.index.GetApprox(key, flags)
	if node == nil {
		return nil, common.MatchNone, nil
	}
	op, err := m.index.Visible(node, reader)
	if err != nil {
		if m.metrics != nil {
			m.metrics.TxnConflicts++
		}
		return nil, common.MatchNone, err
	}
	return op, dir, nil
}

// Node exposes the raw KeyNode for cursor duplicate-cache building
// (spec.md §4.8 Duplicates).
func (m *Manager) Node(key []byte) *KeyNode { return m.index.Get(key) }

// FindNode resolves key against the transaction index under flags
// without any visibility filtering, for callers (cursor.Find) that
// need the matched node itself alongside its own visibility check.
func (m *Manager) FindNode(key []byte, flags common.MatchFlags) (*KeyNode, common.MatchDirection) {
	return m.index.GetApprox(key, flags)
}

// First, Last, NextKey and PrevKey expose ordered traversal of the
// transaction-layer keys, for the cursor's merged move algebra
// (spec.md §4.8 Move).
func (m *Manager) First() *KeyNode                { return m.index.First() }
func (m *Manager) Last() *KeyNode                 { return m.index.Last() }
func (m *Manager) NextKey(key []byte) *KeyNode    { return m.index.Next(key) }
func (m *Manager) PrevKey(key []byte) *KeyNode    { return m.index.Prev(key) }

// Visible exposes the node-level visibility scan directly, for the
// cursor's tie-breaking logic at a specific key.
func (m *Manager) Visible(node *KeyNode, reader *Transaction) (*Operation, error) {
	return m.index.Visible(node, reader)
}

// unlinkTxn removes t from the global transaction list once it has
// nothing left to flush or free.
func (m *Manager) unlinkTxn(t *Transaction) {
	if t.older != nil {
		t.older.newer = t.newer
	} else {
		m.oldestTxn = t.newer
	}
	if t.newer != nil {
		t.newer.older = t.older
	} else {
		m.newestTxn = t.older
	}
	t.older, t.newer = nil, nil
}

// flushCommitted walks the global transaction list from the oldest
// and, while the oldest entry is committed, drains its operation list
// in id (chronological) order, replaying each into the B+tree and
// freeing it immediately — a flushed op's effect is already durable in
// the tree, so there is nothing left for find/cursor visibility to
// gain by keeping it around. A still-active transaction blocks the
// walk: a younger committed transaction can never overtake an older
// still-active one (spec.md §4.6 Commit & flush, §5 Ordering).
func (m *Manager) flushCommitted() error {
	for cur := m.oldestTxn; cur != nil; {
		if !cur.committed() {
			break
		}
		next := cur.newer

		op := cur.oldestOp
		for op != nil {
			opNext := op.txnNext
			if err := m.applyOp(op); err != nil {
				return fmt.Errorf("flush txn %d: %w", cur.id, err)
			}
			op.flushed = true
			m.index.removeOperation(op)
			op = opNext
		}
		cur.oldestOp, cur.newestOp = nil, nil

		m.unlinkTxn(cur)
		if m.metrics != nil {
			m.metrics.TxnCommits++
		}
		m.log.Debug().Uint64("txn_id", cur.id).Msg("txn flushed")
		cur = next
	}
	return nil
}

func (m *Manager) applyOp(op *Operation) error {
	switch op.kind {
	case KindInsert, KindInsertOverwrite, KindInsertDuplicate:
		return m.apply.Insert(op.node.key, op.record, op.flags)
	case KindErase:
		return m.apply.Erase(op.node.key, op.dupIndex)
	default:
		return nil
	}
}
