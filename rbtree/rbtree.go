// Package rbtree implements a red-black tree keyed by byte slices
// under a pluggable comparator, with exact and nearest-neighbor search
// (predecessor/successor), backing the transaction index of spec.md
// §4.6.
package rbtree

import "github.com/embeddkv/embeddkv/common"

type color bool

const (
	red   color = true
	black color = false
)

// Node is one tree node. Value is opaque to the tree itself — txn.Index
// stores a per-key operation list here.
type Node struct {
	Key   []byte
	Value any

	color               color
	left, right, parent *Node
}

// Tree is a red-black tree ordered by cmp, modeled on the intrusive
// rb_insert/rb_remove/rbt_nsearch/rbt_psearch operations the original
// engine's transaction index uses (original_source/src/txn.cc).
type Tree struct {
	root *Node
	cmp  common.Comparator
	size int
}

// New returns an empty tree ordered by cmp.
func New(cmp common.Comparator) *Tree {
	if cmp == nil {
		cmp = common.BytesComparator
	}
	return &Tree{cmp: cmp}
}

func (t *Tree) Len() int { return t.size }

// Search returns the node with an exact key match, or nil.
func (t *Tree) Search(key []byte) *Node {
	n := t.root
	for n != nil {
		c := t.cmp(key, n.Key)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			n = n.right
		}
	}
	return nil
}

// SearchGEQ returns the smallest node whose key is >= key (rbt_nsearch
// in the original — "next search"), or nil if none qualifies.
func (t *Tree) SearchGEQ(key []byte) *Node {
	n := t.root
	var best *Node
	for n != nil {
		c := t.cmp(key, n.Key)
		switch {
		case c == 0:
			return n
		case c < 0:
			best = n
			n = n.left
		default:
			n = n.right
		}
	}
	return best
}

// SearchLEQ returns the largest node whose key is <= key (rbt_psearch
// — "previous search"), or nil if none qualifies.
func (t *Tree) SearchLEQ(key []byte) *Node {
	n := t.root
	var best *Node
	for n != nil {
		c := t.cmp(key, n.Key)
		switch {
		case c == 0:
			return n
		case c < 0:
			n = n.left
		default:
			best = n
			n = n.right
		}
	}
	return best
}

// First returns the smallest node, or nil if the tree is empty.
func (t *Tree) First() *Node {
	n := t.root
	if n == nil {
		return nil
	}
	for n.left != nil {
		n = n.left
	}
	return n
}

// Last returns the largest node, or nil if the tree is empty.
func (t *Tree) Last() *Node {
	n := t.root
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

// Next returns n's in-order successor, or nil if n is the last node.
func Next(n *Node) *Node {
	if n.right != nil {
		n = n.right
		for n.left != nil {
			n = n.left
		}
		return n
	}
	p := n.parent
	for p != nil && n == p.right {
		n = p
		p = p.parent
	}
	return p
}

// Prev returns n's in-order predecessor, or nil if n is the first node.
func Prev(n *Node) *Node {
	if n.left != nil {
		n = n.left
		for n.right != nil {
			n = n.right
		}
		return n
	}
	p := n.parent
	for p != nil && n == p.left {
		n = p
		p = p.parent
	}
	return p
}

// Insert adds key/value and returns the new node. Caller must ensure
// key is absent (txn.Index keys each slot by the raw key bytes and
// appends to the per-key operation list stored as Value, rather than
// inserting duplicate tree nodes for the same key).
func (t *Tree) Insert(key []byte, value any) *Node {
	n := &Node{Key: key, Value: value, color: red}

	var parent *Node
	cur := t.root
	for cur != nil {
		parent = cur
		if t.cmp(key, cur.Key) < 0 {
			cur = cur.left
		} else {
			cur = cur.right
		}
	}
	n.parent = parent
	switch {
	case parent == nil:
		t.root = n
	case t.cmp(key, parent.Key) < 0:
		parent.left = n
	default:
		parent.right = n
	}
	t.size++
	t.insertFixup(n)
	return n
}

func (t *Tree) rotateLeft(x *Node) {
	y := x.right
	x.right = y.left
	if y.left != nil {
		y.left.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.left:
		x.parent.left = y
	default:
		x.parent.right = y
	}
	y.left = x
	x.parent = y
}

func (t *Tree) rotateRight(x *Node) {
	y := x.left
	x.left = y.right
	if y.right != nil {
		y.right.parent = x
	}
	y.parent = x.parent
	switch {
	case x.parent == nil:
		t.root = y
	case x == x.parent.right:
		x.parent.right = y
	default:
		x.parent.left = y
	}
	y.right = x
	x.parent = y
}

func (t *Tree) insertFixup(z *Node) {
	for z.parent != nil && z.parent.color == red {
		grandparent := z.parent.parent
		if grandparent == nil {
			break
		}
		if z.parent == grandparent.left {
			uncle := grandparent.right
			if nodeColor(uncle) == red {
				z.parent.color = black
				uncle.color = black
				grandparent.color = red
				z = grandparent
				continue
			}
			if z == z.parent.right {
				z = z.parent
				t.rotateLeft(z)
			}
			z.parent.color = black
			grandparent.color = red
			t.rotateRight(grandparent)
		} else {
			uncle := grandparent.left
			if nodeColor(uncle) == red {
				z.parent.color = black
				uncle.color = black
				grandparent.color = red
				z = grandparent
				continue
			}
			if z == z.parent.left {
				z = z.parent
				t.rotateRight(z)
			}
			z.parent.color = black
			grandparent.color = red
			t.rotateLeft(grandparent)
		}
	}
	t.root.color = black
}

func nodeColor(n *Node) color {
	if n == nil {
		return black
	}
	return n.color
}

// Delete removes n from the tree.
func (t *Tree) Delete(n *Node) {
	t.size--
	var x, xParent *Node
	y := n
	yOrigColor := y.color

	if n.left == nil {
		x = n.right
		xParent = n.parent
		t.transplant(n, n.right)
	} else if n.right == nil {
		x = n.left
		xParent = n.parent
		t.transplant(n, n.left)
	} else {
		y = minNode(n.right)
		yOrigColor = y.color
		x = y.right
		if y.parent == n {
			xParent = y
		} else {
			xParent = y.parent
			t.transplant(y, y.right)
			y.right = n.right
			y.right.parent = y
		}
		t.transplant(n, y)
		y.left = n.left
		y.left.parent = y
		y.color = n.color
	}

	if yOrigColor == black {
		t.deleteFixup(x, xParent)
	}
}

func minNode(n *Node) *Node {
	for n.left != nil {
		n = n.left
	}
	return n
}

func (t *Tree) transplant(u, v *Node) {
	switch {
	case u.parent == nil:
		t.root = v
	case u == u.parent.left:
		u.parent.left = v
	default:
		u.parent.right = v
	}
	if v != nil {
		v.parent = u.parent
	}
}

func (t *Tree) deleteFixup(x, parent *Node) {
	for x != t.root && nodeColor(x) == black && parent != nil {
		if x == parent.left {
			w := parent.right
			if nodeColor(w) == red {
				w.color = black
				parent.color = red
				t.rotateLeft(parent)
				w = parent.right
			}
			if w == nil {
				break
			}
			if nodeColor(w.left) == black && nodeColor(w.right) == black {
				w.color = red
				x = parent
				parent = x.parent
				continue
			}
			if nodeColor(w.right) == black {
				if w.left != nil {
					w.left.color = black
				}
				w.color = red
				t.rotateRight(w)
				w = parent.right
			}
			w.color = parent.color
			parent.color = black
			if w.right != nil {
				w.right.color = black
			}
			t.rotateLeft(parent)
			x = t.root
			parent = nil
		} else {
			w := parent.left
			if nodeColor(w) == red {
				w.color = black
				parent.color = red
				t.rotateRight(parent)
				w = parent.left
			}
			if w == nil {
				break
			}
			if nodeColor(w.right) == black && nodeColor(w.left) == black {
				w.color = red
				x = parent
				parent = x.parent
				continue
			}
			if nodeColor(w.left) == black {
				if w.right != nil {
					w.right.color = black
				}
				w.color = red
				t.rotateLeft(w)
				w = parent.left
			}
			w.color = parent.color
			parent.color = black
			if w.left != nil {
				w.left.color = black
			}
			t.rotateRight(parent)
			x = t.root
			parent = nil
		}
	}
	if x != nil {
		x.color = black
	}
}
