// Package cursor implements the merged B+tree/transaction cursor of
// spec.md §4.8: position algebra over the union of both layers,
// duplicate-record iteration, and mutation routing through the
// transaction layer when a transaction is bound.
package cursor

import (
	"fmt"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/txn"
)

// side names which layer a coupled cursor's current position came
// from (spec.md §4.8 "exactly one side is active").
type side int

const (
	sideNone side = iota
	sideBtree
	sideTxn
)

// Cursor is positioned on the merged order of (B+tree key, txn-key).
// A nil txn makes mutations go straight to the B+tree; reads still
// consult the transaction index (when txns is non-nil), with no
// transaction as the reader.
type Cursor struct {
	tree *btree.Tree
	txns *txn.Manager // nil: transactions disabled for this database
	txn  *txn.Transaction

	cmp common.Comparator

	active side
	key    []byte

	dupCache []dupEntry
	dupIndex int // index into dupCache, or -1 when not using it
}

// dupEntry is one visible duplicate, resolved lazily via either a
// B+tree descriptor or a literal txn-op record (spec.md §4.8
// Duplicates).
type dupEntry struct {
	desc   *page.Descriptor
	record []byte
}

// New returns a cursor positioned on nothing, optionally bound to tx
// (nil for a non-transactional cursor). Binding increments tx's
// cursor-refcount, which blocks its commit/abort until Close
// (spec.md §4.6 Cursor refcount).
func New(tree *btree.Tree, txns *txn.Manager, cmp common.Comparator, tx *txn.Transaction) *Cursor {
	c := &Cursor{tree: tree, txns: txns, txn: tx, cmp: cmp, dupIndex: -1}
	if tx != nil {
		tx.IncCursorRefcount()
	}
	return c
}

// Clone deep-copies the position and, if bound, increments the
// transaction's cursor-refcount again (spec.md §4.8 Clone).
func (c *Cursor) Clone() *Cursor {
	clone := &Cursor{
		tree:     c.tree,
		txns:     c.txns,
		txn:      c.txn,
		cmp:      c.cmp,
		active:   c.active,
		key:      append([]byte(nil), c.key...),
		dupIndex: c.dupIndex,
	}
	clone.dupCache = append([]dupEntry(nil), c.dupCache...)
	if clone.txn != nil {
		clone.txn.IncCursorRefcount()
	}
	return clone
}

// Close releases the cursor's hold on its bound transaction, if any.
func (c *Cursor) Close() error {
	if c.txn != nil {
		c.txn.DecCursorRefcount()
		c.txn = nil
	}
	c.active = sideNone
	c.key = nil
	c.dupCache = nil
	c.dupIndex = -1
	return nil
}

// IsNil reports whether the cursor holds no position.
func (c *Cursor) IsNil() bool { return c.active == sideNone }

// Key returns the key the cursor is coupled to, or an error if the
// cursor holds no position (spec.md §6 error cursor-is-nil).
func (c *Cursor) Key() ([]byte, error) {
	if c.IsNil() {
		return nil, common.ErrCursorIsNil
	}
	return c.key, nil
}

// Record returns the record bytes at the cursor's current position
// (and, inside a duplicate cache, at its current duplicate index).
func (c *Cursor) Record() ([]byte, error) {
	if c.IsNil() {
		return nil, common.ErrCursorIsNil
	}
	if c.usingDupCache() {
		return c.resolveDupEntry(c.dupCache[c.dupIndex])
	}
	return c.resolveActiveSide()
}

// GetRecordSize returns len(Record()), the size-only form of
// cursor_get_record_size (spec.md §6).
func (c *Cursor) GetRecordSize() (int, error) {
	rec, err := c.Record()
	if err != nil {
		return 0, err
	}
	return len(rec), nil
}

// GetDuplicateCount returns the number of visible duplicates at the
// cursor's current key (1 when there is no duplicate cache).
func (c *Cursor) GetDuplicateCount() (int, error) {
	if c.IsNil() {
		return 0, common.ErrCursorIsNil
	}
	if c.usingDupCache() {
		return len(c.dupCache), nil
	}
	return 1, nil
}

// GetDuplicatePosition returns the cursor's index inside its current
// duplicate cache, or 0 when not iterating duplicates.
func (c *Cursor) GetDuplicatePosition() (int, error) {
	if c.IsNil() {
		return 0, common.ErrCursorIsNil
	}
	if c.usingDupCache() {
		return c.dupIndex, nil
	}
	return 0, nil
}

func (c *Cursor) usingDupCache() bool { return c.dupIndex >= 0 && c.dupIndex < len(c.dupCache) }

func (c *Cursor) resolveActiveSide() ([]byte, error) {
	switch c.active {
	case sideBtree:
		res, err := c.tree.Find(c.key, common.MatchExact)
		if err != nil {
			return nil, err
		}
		return c.tree.ResolveValue(res.Desc)
	case sideTxn:
		node := c.txns.Node(c.key)
		if node == nil {
			return nil, fmt.Errorf("%w: %x", common.ErrKeyNotFound, c.key)
		}
		op, err := c.txns.Visible(node, c.txn)
		if err != nil {
			return nil, err
		}
		if op == nil || op.Kind() == txn.KindErase {
			return nil, fmt.Errorf("%w: %x", common.ErrKeyNotFound, c.key)
		}
		return op.Record(), nil
	default:
		return nil, common.ErrCursorIsNil
	}
}

func (c *Cursor) resolveDupEntry(e dupEntry) ([]byte, error) {
	if e.desc != nil {
		return c.tree.ResolveValue(*e.desc)
	}
	return e.record, nil
}
