package cursor

import (
	"errors"
	"fmt"

	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/txn"
)

// Find issues both a B+tree find and a txn-index find under the same
// match flags, reconciles the two outcomes by picking the closer
// match, and couples the cursor accordingly. A still-active other
// transaction's op on the matched key surfaces as txn-conflict
// (spec.md §4.8 Find with approximate match).
func (c *Cursor) Find(key []byte, flags common.MatchFlags) error {
	btRes, btErr := c.tree.Find(key, flags)
	btOK := btErr == nil
	if btErr != nil && !errors.Is(btErr, common.ErrKeyNotFound) {
		return btErr
	}

	var txKey, txErased []byte
	var txOK bool
	if c.txns != nil {
		node, _ := c.txns.FindNode(key, flags)
		if node != nil {
			op, err := c.txns.Visible(node, c.txn)
			if err != nil {
				return err
			}
			if op != nil && op.Kind() != txn.KindErase {
				txKey, txOK = node.Key(), true
			} else if op != nil {
				txErased = node.Key()
			}
		}
	}
	if btOK && txErased != nil && c.cmp(btRes.Key, txErased) == 0 {
		btOK = false // the B+tree's match is erased in the transaction view
	}

	if !btOK && !txOK {
		return fmt.Errorf("%w: %x", common.ErrKeyNotFound, key)
	}
	if flags == common.MatchExact {
		if txOK {
			return c.couple(txKey, sideTxn)
		}
		return c.couple(btRes.Key, sideBtree)
	}
	if !btOK {
		return c.couple(txKey, sideTxn)
	}
	if !txOK {
		return c.couple(btRes.Key, sideBtree)
	}

	forward := flags == common.MatchGT || flags == common.MatchGEQ
	switch cmp := c.cmp(btRes.Key, txKey); {
	case cmp == 0:
		return c.couple(txKey, sideTxn) // tie: transaction side is the newer view
	case (forward && cmp < 0) || (!forward && cmp > 0):
		return c.couple(btRes.Key, sideBtree)
	default:
		return c.couple(txKey, sideTxn)
	}
}
