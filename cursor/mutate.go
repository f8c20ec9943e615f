package cursor

import (
	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/txn"
)

// Insert stores key/value, routing through the transaction layer when
// a transaction is bound (spec.md §4.8 Insert/erase/overwrite). Without
// a transaction, it fails if key already exists and flags requests
// neither overwrite nor duplicate insertion. With a transaction bound,
// the insert is only logged; no check for an existing key is made.
func (c *Cursor) Insert(key, value []byte, flags btree.InsertFlags) error {
	if c.txn != nil {
		kind := txn.KindInsert
		switch {
		case flags.Duplicate:
			kind = txn.KindInsertDuplicate
		case flags.Overwrite:
			kind = txn.KindInsertOverwrite
		}
		c.txns.LogInsert(c.txn, key, value, kind, flags)
		return c.couple(key, sideTxn)
	}

	if err := c.tree.Insert(key, value, flags); err != nil {
		return err
	}
	return c.couple(key, sideBtree)
}

// Overwrite replaces the record at the cursor's current key (and, if
// coupled to a duplicate cache position, that specific duplicate) with
// value, keeping the cursor at the same duplicate index afterward
// (spec.md §4.8 "overwrite keeps all coupled duplicate cursors valid
// at the same index"). Inside a duplicate cache this erases the
// current duplicate and reinserts value at the same position, since
// neither the B+tree nor the transaction layer expose an in-place
// duplicate-slot update.
func (c *Cursor) Overwrite(value []byte) error {
	if c.IsNil() {
		return common.ErrCursorIsNil
	}

	if !c.usingDupCache() {
		flags := btree.InsertFlags{Overwrite: true}
		if c.txn != nil {
			c.txns.LogInsert(c.txn, c.key, value, txn.KindInsertOverwrite, flags)
		} else if err := c.tree.Insert(c.key, value, flags); err != nil {
			return err
		}
		return c.rebuildDupCache()
	}

	idx := c.dupIndex
	insertFlags := btree.InsertFlags{
		Duplicate:        true,
		DupMode:          common.DupInsertBefore,
		DupRelativeIndex: idx,
	}

	if c.txn != nil {
		c.txns.LogErase(c.txn, c.key, idx)
		c.txns.LogInsert(c.txn, c.key, value, txn.KindInsertDuplicate, insertFlags)
	} else {
		if err := c.tree.Erase(c.key, idx); err != nil {
			return err
		}
		if err := c.tree.Insert(c.key, value, insertFlags); err != nil {
			return err
		}
	}

	if err := c.rebuildDupCache(); err != nil {
		return err
	}
	if idx >= 0 && idx < len(c.dupCache) {
		c.dupIndex = idx
	}
	return nil
}

// Erase removes the record at the cursor's current position. With no
// duplicate cache active, it erases the whole key; inside a duplicate
// cache, it erases only the duplicate at the cursor's current index.
func (c *Cursor) Erase() error {
	if c.IsNil() {
		return common.ErrCursorIsNil
	}
	dupIndex := btree.NoDuplicateIndex
	if c.usingDupCache() {
		dupIndex = c.dupIndex
	}

	if c.txn != nil {
		c.txns.LogErase(c.txn, c.key, dupIndex)
	} else if err := c.tree.Erase(c.key, dupIndex); err != nil {
		return err
	}

	c.active = sideNone
	c.key = nil
	c.dupCache = nil
	c.dupIndex = -1
	return nil
}
