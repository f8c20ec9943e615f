package cursor

import (
	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/txn"
)

// rebuildDupCache seeds the cursor's duplicate cache from the B+tree's
// committed state at the coupled key, then replays every visible
// transaction-layer operation against it in chronological order
// (spec.md §4.8 Duplicates: "the merged duplicate list is the B+tree's
// duplicate table, if any, plus txn ops affecting this key in
// chronological order"). A still-active other transaction's op on this
// key surfaces as a conflict rather than being silently skipped.
func (c *Cursor) rebuildDupCache() error {
	cache, err := c.loadTreeDuplicates()
	if err != nil {
		return err
	}

	if c.txns != nil {
		node := c.txns.Node(c.key)
		if node != nil {
			for _, op := range node.Operations() {
				if op.Txn().IsAborted() || op.Flushed() {
					continue
				}
				if op.Txn() != c.txn && !op.Txn().IsCommitted() {
					return common.ErrTxnConflict
				}
				cache = applyOp(cache, op)
			}
		}
	}

	c.dupCache = cache
	if len(cache) > 1 {
		c.dupIndex = 0
	} else {
		c.dupIndex = -1
	}
	return nil
}

// loadTreeDuplicates resolves the cursor's key against the B+tree and
// returns its duplicate list (a single entry for a plain record, one
// entry per slot for a duplicate table, none if the key isn't present
// in the tree at all).
func (c *Cursor) loadTreeDuplicates() ([]dupEntry, error) {
	res, err := c.tree.Find(c.key, common.MatchExact)
	if err != nil {
		return nil, nil
	}
	if res.Desc.Kind != page.DescDuplicateTable {
		d := res.Desc
		return []dupEntry{{desc: &d}}, nil
	}
	descs, err := c.tree.LoadDuplicates(res.Desc)
	if err != nil {
		return nil, err
	}
	cache := make([]dupEntry, len(descs))
	for i, d := range descs {
		d := d
		cache[i] = dupEntry{desc: &d}
	}
	return cache, nil
}

// applyOp folds one txn operation into the in-progress duplicate
// cache, mirroring duptable.Table's FIRST/LAST/BEFORE/AFTER insertion
// rule and index-based removal (original_source/src/txn.cc's cursor
// merge, duptable.Table.Insert/Remove).
func applyOp(cache []dupEntry, op *txn.Operation) []dupEntry {
	switch op.Kind() {
	case txn.KindInsert, txn.KindInsertOverwrite:
		return []dupEntry{{record: op.Record()}}
	case txn.KindInsertDuplicate:
		idx := insertionIndex(op.Flags().DupMode, op.Flags().DupRelativeIndex, len(cache))
		cache = append(cache, dupEntry{})
		copy(cache[idx+1:], cache[idx:])
		cache[idx] = dupEntry{record: op.Record()}
		return cache
	case txn.KindErase:
		if op.DupIndex() == btree.NoDuplicateIndex {
			return nil
		}
		if op.DupIndex() >= 0 && op.DupIndex() < len(cache) {
			cache = append(cache[:op.DupIndex()], cache[op.DupIndex()+1:]...)
		}
		return cache
	default:
		return cache
	}
}

func insertionIndex(mode common.DupInsertMode, relativeTo, count int) int {
	switch mode {
	case common.DupInsertFirst:
		return 0
	case common.DupInsertBefore:
		return relativeTo
	case common.DupInsertAfter:
		return relativeTo + 1
	default:
		return count
	}
}
