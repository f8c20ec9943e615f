package cursor

import (
	"errors"
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/txn"
)

// Direction selects which way Move steps the cursor (spec.md §4.8
// Move).
type Direction int

const (
	MoveFirst Direction = iota
	MoveLast
	MoveNext
	MovePrevious
)

// MoveFlags controls one Move call.
type MoveFlags struct {
	Direction      Direction
	SkipDuplicates bool // spec.md §6 "skip-duplicates"
}

// Move repositions the cursor per spec.md §4.8: first/last/next/
// previous compare the two sides' candidates with the key comparator
// and take the lesser (next/first) or greater (previous/last); on a
// tie the transaction side is consulted for visibility.
func (c *Cursor) Move(flags MoveFlags) error {
	if !flags.SkipDuplicates && c.usingDupCache() {
		if c.stepDupCache(flags.Direction) {
			return nil
		}
	}

	switch flags.Direction {
	case MoveFirst:
		return c.moveEdge(false)
	case MoveLast:
		return c.moveEdge(true)
	case MoveNext:
		return c.step(true)
	case MovePrevious:
		return c.step(false)
	default:
		return fmt.Errorf("%w: unknown move direction", common.ErrInvalidParameter)
	}
}

// stepDupCache advances within the current duplicate cache, reporting
// whether it moved (false at either end means fall through to a real
// tree/txn move, per spec.md §4.8 "iterates the cache before moving
// off the key").
func (c *Cursor) stepDupCache(dir Direction) bool {
	switch dir {
	case MoveNext:
		if c.dupIndex+1 < len(c.dupCache) {
			c.dupIndex++
			return true
		}
	case MovePrevious:
		if c.dupIndex > 0 {
			c.dupIndex--
			return true
		}
	}
	return false
}

func (c *Cursor) moveEdge(last bool) error {
	var btKey []byte
	var btOK bool
	var err error
	if last {
		res, e := c.tree.Last()
		if e == nil {
			btKey, btOK = res.Key, true
		} else if !errors.Is(e, common.ErrKeyNotFound) {
			return e
		}
	} else {
		res, e := c.tree.First()
		if e == nil {
			btKey, btOK = res.Key, true
		} else if !errors.Is(e, common.ErrKeyNotFound) {
			return e
		}
	}

	var txKey []byte
	var txOK bool
	if c.txns != nil {
		var node *txn.KeyNode
		if last {
			node = c.txns.Last()
		} else {
			node = c.txns.First()
		}
		if node != nil {
			txKey, txOK = node.Key(), true
		}
	}

	key, s, ok, err := c.pick(btKey, btOK, txKey, txOK, !last)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: cursor move", common.ErrKeyNotFound)
	}
	return c.couple(key, s)
}

// step moves forward (next) or backward (previous) from the current
// key, retrying past any key whose visible txn-side operation is an
// erase (spec.md §4.8 Move: "if it is an erase, skip the key on both
// sides").
func (c *Cursor) step(forward bool) error {
	if c.IsNil() {
		return common.ErrCursorIsNil
	}
	from := c.key
	for {
		wantFlag := common.MatchGT
		if !forward {
			wantFlag = common.MatchLT
		}

		var btKey []byte
		var btOK bool
		res, err := c.tree.Find(from, wantFlag)
		if err == nil {
			btKey, btOK = res.Key, true
		} else if !errors.Is(err, common.ErrKeyNotFound) {
			return err
		}

		var txKey []byte
		var txOK bool
		if c.txns != nil {
			var node *txn.KeyNode
			if forward {
				node = c.txns.NextKey(from)
			} else {
				node = c.txns.PrevKey(from)
			}
			if node != nil {
				txKey, txOK = node.Key(), true
			}
		}

		key, s, ok, err := c.pick(btKey, btOK, txKey, txOK, forward)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: cursor move", common.ErrKeyNotFound)
		}
		if s == sideSkip {
			from = key
			continue
		}
		return c.couple(key, s)
	}
}

const sideSkip side = -1

// pick resolves the (B+tree candidate, txn candidate) pair into a
// single winning key and side, per spec.md §4.8's tie-break rule.
// forward selects whether "closer" means smaller (next/first) or
// larger (previous/last) key.
func (c *Cursor) pick(btKey []byte, btOK bool, txKey []byte, txOK bool, forward bool) ([]byte, side, bool, error) {
	switch {
	case !btOK && !txOK:
		return nil, sideNone, false, nil
	case !txOK:
		return btKey, sideBtree, true, nil
	case !btOK:
		return txKey, sideTxn, true, nil
	}

	cmp := c.cmp(btKey, txKey)
	var nearer []byte
	var nearSide side
	switch {
	case cmp == 0:
		return c.resolveTie(btKey)
	case (forward && cmp < 0) || (!forward && cmp > 0):
		nearer, nearSide = btKey, sideBtree
	default:
		nearer, nearSide = txKey, sideTxn
	}
	return nearer, nearSide, true, nil
}

// resolveTie implements spec.md §4.8's same-key reconciliation: erase
// hides the key from both sides (caller retries past it); a nop or
// already-flushed op falls back to the B+tree; any other visible op
// means the transaction side wins (it is the newer view).
func (c *Cursor) resolveTie(key []byte) ([]byte, side, bool, error) {
	if c.txns == nil {
		return key, sideBtree, true, nil
	}
	node := c.txns.Node(key)
	if node == nil {
		return key, sideBtree, true, nil
	}
	op, err := c.txns.Visible(node, c.txn)
	if err != nil {
		return nil, sideNone, false, err
	}
	switch {
	case op == nil:
		return key, sideBtree, true, nil
	case op.Kind() == txn.KindErase:
		return key, sideSkip, true, nil
	case op.Flushed():
		return key, sideBtree, true, nil
	default:
		return key, sideTxn, true, nil
	}
}

// couple positions the cursor on key/side and builds its duplicate
// cache if the key has more than one visible record.
func (c *Cursor) couple(key []byte, s side) error {
	c.key = append([]byte(nil), key...)
	c.active = s
	return c.rebuildDupCache()
}
