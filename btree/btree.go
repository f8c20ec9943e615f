// Package btree implements the ordered index of spec.md §4.5: a
// B+tree over fixed-size pages with approximate-match find, duplicate
// keys via the duplicate-table package, and statistics-driven split
// bias.
package btree

import (
	"fmt"
	"sync/atomic"

	"github.com/embeddkv/embeddkv/blob"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/duptable"
	"github.com/embeddkv/embeddkv/freelist"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
)

// shiftThreshold is the minimum number of entries a rebalance must
// move for "shift from a fuller sibling" to be preferred over a merge
// (spec.md §4.5 Erase: "only when at least a constant number (≈50) of
// entries would move, else prefer merge").
const shiftThreshold = 50

// minEntries is the underflow threshold below which a non-root node
// triggers rebalancing.
const minEntries = 2

// Tree is one B+tree index, backed by a page cache, a freelist-backed
// blob manager for oversized records, and a comparator for key order.
type Tree struct {
	mgr    *pager.Manager
	blobs  *blob.Manager
	free   *freelist.Allocator
	cmp    common.Comparator
	rootID page.ID
	allowDuplicateKeys bool
	maxKeySize         int

	stats       splitBiasTracker
	recordCount atomic.Int64
	metrics     *common.Metrics
}

// Count returns the number of live records in the tree — one per
// non-duplicate key, one per duplicate table entry (spec.md §6
// db_count, §8 "for all sequences of inserts and erases without
// transactions, db_count equals inserts minus erases").
func (t *Tree) Count() int64 { return t.recordCount.Load() }

// Options configures a new or reopened Tree.
type Options struct {
	Comparator         common.Comparator
	AllowDuplicateKeys bool
	MaxKeySize         int
	Metrics            *common.Metrics
}

// Create allocates a brand-new, empty root leaf and returns a Tree
// bound to it.
func Create(mgr *pager.Manager, blobs *blob.Manager, free *freelist.Allocator, opts Options) (*Tree, error) {
	p, err := mgr.Alloc(page.TypeBTreeLeaf, 0)
	if err != nil {
		return nil, fmt.Errorf("create btree root: %w", err)
	}
	return open(mgr, blobs, free, p.ID(), opts), nil
}

// Open binds a Tree to an existing root page id (read from the
// database descriptor at environment-open time).
func Open(mgr *pager.Manager, blobs *blob.Manager, free *freelist.Allocator, rootID page.ID, opts Options) *Tree {
	return open(mgr, blobs, free, rootID, opts)
}

func open(mgr *pager.Manager, blobs *blob.Manager, free *freelist.Allocator, rootID page.ID, opts Options) *Tree {
	cmp := opts.Comparator
	if cmp == nil {
		cmp = common.BytesComparator
	}
	maxKeySize := opts.MaxKeySize
	if maxKeySize <= 0 {
		maxKeySize = mgr.PageSize() / 4
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = &common.Metrics{}
	}
	return &Tree{
		mgr: mgr, blobs: blobs, free: free, cmp: cmp,
		rootID: rootID, allowDuplicateKeys: opts.AllowDuplicateKeys,
		maxKeySize: maxKeySize, metrics: metrics,
	}
}

// RootID reports the current root page id, for the engine to persist
// in the database descriptor after any operation that splits or
// collapses the root.
func (t *Tree) RootID() page.ID { return t.rootID }

func (t *Tree) leafCapacity() int { return t.mgr.PageSize() - page.HeaderSize }

// path records the descent from root to a leaf, for split/merge
// backtracking without re-descending.
type pathEntry struct {
	id   page.ID
	slot int // index of the child pointer followed to get here
}

func (t *Tree) descend(key []byte) (leafID page.ID, path []pathEntry, err error) {
	id := t.rootID
	for {
		p, ferr := t.mgr.Fetch(id, 0)
		if ferr != nil {
			return 0, nil, fmt.Errorf("descend: %w", ferr)
		}
		if p.Type() == page.TypeBTreeLeaf {
			return id, path, nil
		}
		node := decodeInternal(p)
		idx := findChildIndex(node, key, t.cmp)
		var childID page.ID
		if idx == len(node.slots) {
			childID = p.PtrDown()
		} else {
			childID = node.slots[idx].childID
		}
		path = append(path, pathEntry{id: id, slot: idx})
		id = childID
	}
}

// findChildIndex returns the index of the first slot whose key is >=
// key; len(slots) means "follow ptr-down" (spec.md §3 subtree rule).
func findChildIndex(n *internalNode, key []byte, cmp common.Comparator) int {
	lo, hi := 0, len(n.slots)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.slots[mid].key, key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// findSlot returns the index of the first slot whose key is >= key,
// and whether that slot is an exact match.
func findSlot(n *leafNode, key []byte, cmp common.Comparator) (int, bool) {
	lo, hi := 0, len(n.slots)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.slots[mid].key, key) >= 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo < len(n.slots) && cmp(n.slots[lo].key, key) == 0 {
		return lo, true
	}
	return lo, false
}

// fetchLeaf returns the leaf page and its decoded node view.
func (t *Tree) fetchLeaf(id page.ID) (*page.Page, *leafNode, error) {
	p, err := t.mgr.Fetch(id, 0)
	if err != nil {
		return nil, nil, err
	}
	return p, decodeLeaf(p), nil
}
