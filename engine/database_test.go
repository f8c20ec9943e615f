package engine

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/common/testutil"
	"github.com/embeddkv/embeddkv/cursor"
	"github.com/embeddkv/embeddkv/txn"
)

func newTxnEnv(t *testing.T) (*Environment, *Database) {
	t.Helper()
	env, err := Create("", Flags{InMemory: true, EnableTransactions: true}, testParams())
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })

	db, err := env.CreateDatabase("orders", DBFlags{})
	require.NoError(t, err)
	return env, db
}

func TestDatabase_InsertThroughTxnNotVisibleUntilCommit(t *testing.T) {
	_, db := newTxnEnv(t)
	tx := db.Begin("t1", txn.Flags{})
	_, err := db.Insert([]byte("k1"), []byte("v1"), btree.InsertFlags{}, tx)
	require.NoError(t, err)

	_, err = db.Find([]byte("k1"), nil)
	assert.ErrorIs(t, err, common.ErrTxnConflict)

	v, err := db.Find([]byte("k1"), tx)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
}

func TestDatabase_EraseThroughTxn(t *testing.T) {
	_, db := newTxnEnv(t)
	_, err := db.Insert([]byte("k1"), []byte("v1"), btree.InsertFlags{}, nil)
	require.NoError(t, err)

	tx := db.Begin("t1", txn.Flags{})
	require.NoError(t, db.Erase([]byte("k1"), tx))

	_, err = db.Find([]byte("k1"), tx)
	assert.ErrorIs(t, err, common.ErrKeyNotFound)

	// another reader racing the still-open erase sees a conflict
	_, err = db.Find([]byte("k1"), nil)
	assert.ErrorIs(t, err, common.ErrTxnConflict)
}

func TestDatabase_CursorWalksInsertedKeys(t *testing.T) {
	_, db := newTxnEnv(t)
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	for _, k := range keys {
		_, err := db.Insert(k, []byte("v"), btree.InsertFlags{}, nil)
		require.NoError(t, err)
	}

	c := db.Cursor(nil)
	defer c.Close()
	var seen []string
	for i := 0; ; i++ {
		dir := cursor.MoveFirst
		if i > 0 {
			dir = cursor.MoveNext
		}
		err := c.Move(cursor.MoveFlags{Direction: dir})
		if err != nil || c.IsNil() {
			break
		}
		k, err := c.Key()
		require.NoError(t, err)
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestDatabase_BeginReturnsNilWithoutTransactionsEnabled(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDatabase("plain", DBFlags{})
	require.NoError(t, err)
	assert.Nil(t, db.Begin("t1", txn.Flags{}))
}

func TestDatabase_RecordNumber32AutoAssignsMonotonicKeys(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDatabase("events", DBFlags{RecordNumber32: true})
	require.NoError(t, err)

	var prev uint32
	for i := 0; i < 5; i++ {
		key, err := db.Insert(nil, []byte("v"), btree.InsertFlags{}, nil)
		require.NoError(t, err)
		require.Len(t, key, 4)
		got := binary.BigEndian.Uint32(key)
		assert.Greater(t, got, prev)
		prev = got
	}
}

func TestDatabase_RecordNumber32WraparoundReturnsLimitsReached(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDatabase("events", DBFlags{RecordNumber32: true})
	require.NoError(t, err)

	// seed scenario 5: the counter already sits at the maximum uint32
	env.hdr.descriptors[db.slot].nextRecordNumber = math.MaxUint32

	_, err = db.Insert(nil, []byte("v"), btree.InsertFlags{}, nil)
	assert.ErrorIs(t, err, common.ErrLimitsReached)
}

func TestDatabase_RecordNumberCounterSurvivesReopen(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "recnum.db")

	env, err := Create(path, Flags{}, testParams())
	require.NoError(t, err)

	db, err := env.CreateDatabase("events", DBFlags{RecordNumber32: true})
	require.NoError(t, err)

	first, err := db.Insert(nil, []byte("v"), btree.InsertFlags{}, nil)
	require.NoError(t, err)
	require.NoError(t, env.Close())

	reopened, err := Open(path, Flags{}, Params{})
	require.NoError(t, err)
	defer reopened.Close()

	db2, err := reopened.OpenDatabase("events")
	require.NoError(t, err)
	assert.True(t, db2.flags.RecordNumber32)

	second, err := db2.Insert(nil, []byte("v"), btree.InsertFlags{}, nil)
	require.NoError(t, err)
	assert.Greater(t, binary.BigEndian.Uint32(second), binary.BigEndian.Uint32(first))
}
