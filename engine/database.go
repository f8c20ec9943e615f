package engine

import (
	"fmt"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/cursor"
	"github.com/embeddkv/embeddkv/txn"
)

// Database is one logically independent key/value namespace inside an
// Environment: a B+tree index plus, when the environment enables
// transactions, a transaction index layered over it (spec.md §6
// env_create_db/env_open_db).
type Database struct {
	env   *Environment
	name  string
	slot  int
	tree  *btree.Tree
	txns  *txn.Manager // nil unless the environment has EnableTransactions
	cmp   common.Comparator
	flags DBFlags
}

// Name returns the database's name.
func (d *Database) Name() string { return d.name }

// Insert stores key/value (spec.md §6 db_insert) and returns the key
// that was actually used. tx may be nil, in which case the write goes
// straight to the B+tree (auto-commit, the same behavior as binding no
// transaction to a cursor).
//
// For a RecordNumber32/RecordNumber64 database, an empty key means
// "auto-assign": Insert draws the next record number from the
// database's descriptor, big-endian encodes it, and returns it in
// place of the supplied key (spec.md §3 "Record number key type", §8
// "record-number monotonicity"). A non-empty key is used as given,
// matching the original's behavior of only auto-assigning when the
// caller passes no key.
func (d *Database) Insert(key, value []byte, flags btree.InsertFlags, tx *txn.Transaction) ([]byte, error) {
	if len(key) == 0 && (d.flags.RecordNumber32 || d.flags.RecordNumber64) {
		bits := 64
		if d.flags.RecordNumber32 {
			bits = 32
		}
		rn, err := d.env.allocRecordNumber(d.slot, bits)
		if err != nil {
			return nil, err
		}
		key = rn
	}

	if tx != nil && d.txns != nil {
		kind := txn.KindInsert
		switch {
		case flags.Duplicate:
			kind = txn.KindInsertDuplicate
		case flags.Overwrite:
			kind = txn.KindInsertOverwrite
		}
		d.txns.LogInsert(tx, key, value, kind, flags)
		return key, nil
	}
	if err := d.tree.Insert(key, value, flags); err != nil {
		return nil, err
	}
	return key, nil
}

// Find resolves key to its exact record, consulting tx's view of the
// transaction layer first (spec.md §6 db_find).
func (d *Database) Find(key []byte, tx *txn.Transaction) ([]byte, error) {
	if d.txns != nil {
		node, _ := d.txns.FindNode(key, common.MatchExact)
		if node != nil {
			op, err := d.txns.Visible(node, tx)
			if err != nil {
				return nil, err
			}
			if op != nil {
				if op.Kind() == txn.KindErase {
					return nil, fmt.Errorf("%w: %x", common.ErrKeyNotFound, key)
				}
				return op.Record(), nil
			}
		}
	}
	res, err := d.tree.Find(key, common.MatchExact)
	if err != nil {
		return nil, err
	}
	return d.tree.ResolveValue(res.Desc)
}

// Erase removes key (spec.md §6 db_erase).
func (d *Database) Erase(key []byte, tx *txn.Transaction) error {
	if tx != nil && d.txns != nil {
		d.txns.LogErase(tx, key, btree.NoDuplicateIndex)
		return nil
	}
	return d.tree.Erase(key, btree.NoDuplicateIndex)
}

// Count returns the number of live records in the B+tree (spec.md §6
// db_count, §8 "for all sequences of inserts and erases without
// transactions, db_count equals inserts minus erases"). Uncommitted
// transaction-layer inserts/erases are not reflected until flush — a
// documented simplification, since the spec's own invariant is scoped
// to the non-transactional case.
func (d *Database) Count() int64 { return d.tree.Count() }

// Begin starts a transaction over this database, or returns nil if the
// owning environment did not enable transactions.
func (d *Database) Begin(name string, flags txn.Flags) *txn.Transaction {
	if d.txns == nil {
		return nil
	}
	return d.txns.Begin(name, flags)
}

// Cursor returns a new cursor over this database, optionally bound to
// tx (spec.md §6 cursor_create).
func (d *Database) Cursor(tx *txn.Transaction) *cursor.Cursor {
	return cursor.New(d.tree, d.txns, d.cmp, tx)
}
