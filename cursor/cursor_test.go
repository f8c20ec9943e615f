package cursor

import (
	"testing"

	"github.com/embeddkv/embeddkv/blob"
	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/freelist"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
	"github.com/embeddkv/embeddkv/txn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEnv(t *testing.T) (*btree.Tree, *txn.Manager) {
	t.Helper()
	dev := device.NewMemoryDevice()
	mgr := pager.New(dev, 0, pager.Options{PageSize: 4096})
	free := freelist.New(mgr, page.InvalidID)
	blobs := blob.New(mgr, free)
	tree, err := btree.Create(mgr, blobs, free, btree.Options{
		Comparator:         common.BytesComparator,
		AllowDuplicateKeys: true,
		MaxKeySize:         1024,
	})
	require.NoError(t, err)
	txns := txn.NewManager(common.BytesComparator, tree, &common.Metrics{}, zerolog.Nop())
	return tree, txns
}

func TestCursor_MoveFirstLastOverBtreeOnly(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("b"), []byte("2"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("c"), []byte("3"), btree.InsertFlags{}))

	c := New(tree, txns, common.BytesComparator, nil)
	require.NoError(t, c.Move(MoveFlags{Direction: MoveFirst}))
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "a", string(k))

	require.NoError(t, c.Move(MoveFlags{Direction: MoveLast}))
	k, err = c.Key()
	require.NoError(t, err)
	assert.Equal(t, "c", string(k))

	require.NoError(t, c.Move(MoveFlags{Direction: MoveFirst}))
	require.NoError(t, c.Move(MoveFlags{Direction: MoveNext}))
	k, err = c.Key()
	require.NoError(t, err)
	assert.Equal(t, "b", string(k))
}

func TestCursor_FindMergesUncommittedTxnInsert(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1"), btree.InsertFlags{}))

	tx := txns.Begin("t1", txn.Flags{})
	txns.LogInsert(tx, []byte("b"), []byte("2"), txn.KindInsert, btree.InsertFlags{})

	c := New(tree, txns, common.BytesComparator, tx)
	require.NoError(t, c.Find([]byte("b"), common.MatchExact))
	rec, err := c.Record()
	require.NoError(t, err)
	assert.Equal(t, "2", string(rec))
}

func TestCursor_MoveSkipsKeyErasedByUncommittedOwnTxn(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("b"), []byte("2"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("c"), []byte("3"), btree.InsertFlags{}))

	tx := txns.Begin("t1", txn.Flags{})
	txns.LogErase(tx, []byte("b"), btree.NoDuplicateIndex)

	c := New(tree, txns, common.BytesComparator, tx)
	require.NoError(t, c.Move(MoveFlags{Direction: MoveFirst}))
	require.NoError(t, c.Move(MoveFlags{Direction: MoveNext}))
	k, err := c.Key()
	require.NoError(t, err)
	assert.Equal(t, "c", string(k))
}

func TestCursor_InsertThroughTxnThenCommitIsVisibleWithoutTxn(t *testing.T) {
	tree, txns := newTestEnv(t)

	tx := txns.Begin("t1", txn.Flags{})
	c := New(tree, txns, common.BytesComparator, tx)
	require.NoError(t, c.Insert([]byte("k"), []byte("v"), btree.InsertFlags{}))
	require.NoError(t, c.Close())
	require.NoError(t, tx.Commit())

	reader := New(tree, txns, common.BytesComparator, nil)
	require.NoError(t, reader.Find([]byte("k"), common.MatchExact))
	rec, err := reader.Record()
	require.NoError(t, err)
	assert.Equal(t, "v", string(rec))
}

func TestCursor_EraseRemovesKey(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("k"), []byte("v"), btree.InsertFlags{}))

	c := New(tree, txns, common.BytesComparator, nil)
	require.NoError(t, c.Find([]byte("k"), common.MatchExact))
	require.NoError(t, c.Erase())
	assert.True(t, c.IsNil())

	_, err := tree.Find([]byte("k"), common.MatchExact)
	assert.Error(t, err)
}

func TestCursor_DuplicateCacheIteratesAllValues(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("k"), []byte("a"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("k"), []byte("b"), btree.InsertFlags{Duplicate: true, DupMode: common.DupInsertLast}))
	require.NoError(t, tree.Insert([]byte("k"), []byte("c"), btree.InsertFlags{Duplicate: true, DupMode: common.DupInsertLast}))

	c := New(tree, txns, common.BytesComparator, nil)
	require.NoError(t, c.Find([]byte("k"), common.MatchExact))
	count, err := c.GetDuplicateCount()
	require.NoError(t, err)
	require.Equal(t, 3, count)

	rec, err := c.Record()
	require.NoError(t, err)
	assert.Equal(t, "a", string(rec))

	require.NoError(t, c.Move(MoveFlags{Direction: MoveNext}))
	rec, err = c.Record()
	require.NoError(t, err)
	assert.Equal(t, "b", string(rec))
}

func TestCursor_CloneIsIndependentPosition(t *testing.T) {
	tree, txns := newTestEnv(t)
	require.NoError(t, tree.Insert([]byte("a"), []byte("1"), btree.InsertFlags{}))
	require.NoError(t, tree.Insert([]byte("b"), []byte("2"), btree.InsertFlags{}))

	c := New(tree, txns, common.BytesComparator, nil)
	require.NoError(t, c.Move(MoveFlags{Direction: MoveFirst}))

	clone := c.Clone()
	require.NoError(t, clone.Move(MoveFlags{Direction: MoveNext}))

	k1, _ := c.Key()
	k2, _ := clone.Key()
	assert.Equal(t, "a", string(k1))
	assert.Equal(t, "b", string(k2))
}
