package txn

import (
	"testing"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTree stubs btree.Tree as a replay target so these tests exercise
// only the transaction layer's own logic.
type fakeTree struct {
	inserted map[string]string
	erased   []string
}

func newFakeTree() *fakeTree {
	return &fakeTree{inserted: map[string]string{}}
}

func (f *fakeTree) Insert(key, value []byte, flags btree.InsertFlags) error {
	f.inserted[string(key)] = string(value)
	return nil
}

func (f *fakeTree) Erase(key []byte, dupIndex int) error {
	f.erased = append(f.erased, string(key))
	delete(f.inserted, string(key))
	return nil
}

func newTestManager() (*Manager, *fakeTree) {
	tree := newFakeTree()
	m := NewManager(common.BytesComparator, tree, &common.Metrics{}, zerolog.Nop())
	return m, tree
}

func TestFind_UncommittedOwnOpIsVisible(t *testing.T) {
	m, _ := newTestManager()
	tx := m.Begin("t1", Flags{})

	m.LogInsert(tx, []byte("k1"), []byte("v1"), KindInsert, btree.InsertFlags{})

	op, _, err := m.Find(tx, []byte("k1"), common.MatchExact)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, KindInsert, op.Kind())
}

func TestFind_OtherActiveTxnConflicts(t *testing.T) {
	m, _ := newTestManager()
	t1 := m.Begin("t1", Flags{})
	t2 := m.Begin("t2", Flags{})

	m.LogInsert(t1, []byte("k1"), []byte("v1"), KindInsert, btree.InsertFlags{})

	_, _, err := m.Find(t2, []byte("k1"), common.MatchExact)
	assert.ErrorIs(t, err, common.ErrTxnConflict)
}

func TestCommit_FlushesIntoTreeAndUnblocksReaders(t *testing.T) {
	m, tree := newTestManager()
	t1 := m.Begin("t1", Flags{})
	t2 := m.Begin("t2", Flags{})

	m.LogInsert(t1, []byte("k1"), []byte("v1"), KindInsert, btree.InsertFlags{})

	require.NoError(t, t1.Commit())

	assert.Equal(t, "v1", tree.inserted["k1"])

	// t1's op flushed into the tree; the transaction-layer node should
	// now be empty, so t2 (still active) sees nothing in this layer
	// and falls back to the (already-updated) B+tree.
	op, _, err := m.Find(t2, []byte("k1"), common.MatchExact)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestCommit_OlderActiveTxnBlocksYoungerFlush(t *testing.T) {
	m, tree := newTestManager()
	t1 := m.Begin("t1", Flags{})
	t2 := m.Begin("t2", Flags{})

	m.LogInsert(t2, []byte("k2"), []byte("v2"), KindInsert, btree.InsertFlags{})
	require.NoError(t, t2.Commit())

	// t1 (older) is still active, so t2's committed ops cannot flush
	// past it yet, even though t2 itself is fully committed.
	assert.Empty(t, tree.inserted)

	require.NoError(t, t1.Commit())
	assert.Equal(t, "v2", tree.inserted["k2"])
}

func TestAbort_DiscardsOperationsWithoutFlushing(t *testing.T) {
	m, tree := newTestManager()
	tx := m.Begin("t1", Flags{})
	m.LogInsert(tx, []byte("k1"), []byte("v1"), KindInsert, btree.InsertFlags{})

	require.NoError(t, tx.Abort())

	assert.Empty(t, tree.inserted)
	op, _, err := m.Find(tx, []byte("k1"), common.MatchExact)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestCommit_FailsWhileCursorAttached(t *testing.T) {
	m, _ := newTestManager()
	tx := m.Begin("t1", Flags{})
	tx.incRef()

	err := tx.Commit()
	assert.ErrorIs(t, err, common.ErrCursorStillOpen)
}

func TestAbort_FailsWhileCursorAttached(t *testing.T) {
	m, _ := newTestManager()
	tx := m.Begin("t1", Flags{})
	tx.incRef()

	err := tx.Abort()
	assert.ErrorIs(t, err, common.ErrCursorStillOpen)
}

func TestGetApprox_ResolvesGEQAcrossKeys(t *testing.T) {
	m, _ := newTestManager()
	tx := m.Begin("t1", Flags{})
	m.LogInsert(tx, []byte("b"), []byte("1"), KindInsert, btree.InsertFlags{})
	m.LogInsert(tx, []byte("d"), []byte("2"), KindInsert, btree.InsertFlags{})

	node, dir := m.index.GetApprox([]byte("c"), common.MatchGEQ)
	require.NotNil(t, node)
	assert.Equal(t, "d", string(node.Key()))
	assert.Equal(t, common.MatchGreater, dir)
}
