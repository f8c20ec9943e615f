package rbtree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embeddkv/embeddkv/common"
)

func keys(vals ...int) [][]byte {
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte{byte(v)}
	}
	return out
}

func TestInsertSearch_ExactMatch(t *testing.T) {
	tree := New(common.BytesComparator)
	for _, k := range keys(5, 1, 9, 3, 7) {
		tree.Insert(k, nil)
	}
	require.Equal(t, 5, tree.Len())

	n := tree.Search([]byte{7})
	require.NotNil(t, n)
	require.Equal(t, byte(7), n.Key[0])

	require.Nil(t, tree.Search([]byte{42}))
}

func TestFirstLastOrdering(t *testing.T) {
	tree := New(common.BytesComparator)
	for _, k := range keys(5, 1, 9, 3, 7) {
		tree.Insert(k, nil)
	}
	require.Equal(t, byte(1), tree.First().Key[0])
	require.Equal(t, byte(9), tree.Last().Key[0])
}

func TestNextPrev_InOrderWalk(t *testing.T) {
	tree := New(common.BytesComparator)
	for _, k := range keys(5, 1, 9, 3, 7) {
		tree.Insert(k, nil)
	}
	var order []byte
	for n := tree.First(); n != nil; n = Next(n) {
		order = append(order, n.Key[0])
	}
	require.Equal(t, []byte{1, 3, 5, 7, 9}, order)
}

func TestSearchGEQAndLEQ(t *testing.T) {
	tree := New(common.BytesComparator)
	for _, k := range keys(1, 3, 5, 7, 9) {
		tree.Insert(k, nil)
	}

	geq := tree.SearchGEQ([]byte{4})
	require.NotNil(t, geq)
	require.Equal(t, byte(5), geq.Key[0])

	leq := tree.SearchLEQ([]byte{4})
	require.NotNil(t, leq)
	require.Equal(t, byte(3), leq.Key[0])

	require.Nil(t, tree.SearchGEQ([]byte{10}))
	require.Nil(t, tree.SearchLEQ([]byte{0}))
}

func TestDelete_PreservesOrdering(t *testing.T) {
	tree := New(common.BytesComparator)
	nodes := make(map[byte]*Node)
	for _, k := range keys(5, 1, 9, 3, 7, 2, 8, 4, 6) {
		nodes[k[0]] = tree.Insert(k, nil)
	}

	tree.Delete(nodes[5])
	tree.Delete(nodes[1])
	require.Equal(t, 7, tree.Len())

	var order []byte
	for n := tree.First(); n != nil; n = Next(n) {
		order = append(order, n.Key[0])
	}
	require.Equal(t, []byte{2, 3, 4, 6, 7, 8, 9}, order)
}
