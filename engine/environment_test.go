package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embeddkv/embeddkv/btree"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/common/testutil"
)

func testParams() Params {
	p := DefaultParams()
	p.PageSize = 4096
	p.MaxDatabases = 4
	return p
}

func TestCreate_InMemory_CreateOpenInsertFind(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDatabase("default", DBFlags{})
	require.NoError(t, err)

	_, err = db.Insert([]byte("k1"), []byte("v1"), btree.InsertFlags{}, nil)
	require.NoError(t, err)
	v, err := db.Find([]byte("k1"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	assert.Equal(t, int64(1), db.Count())
}

func TestCreateDatabase_DuplicateNameRejected(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	_, err = env.CreateDatabase("orders", DBFlags{})
	require.NoError(t, err)

	_, err = env.CreateDatabase("orders", DBFlags{})
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestCreateDatabase_LimitsReached(t *testing.T) {
	params := testParams()
	params.MaxDatabases = 1
	env, err := Create("", Flags{InMemory: true}, params)
	require.NoError(t, err)
	defer env.Close()

	_, err = env.CreateDatabase("only", DBFlags{})
	require.NoError(t, err)

	_, err = env.CreateDatabase("second", DBFlags{})
	require.ErrorIs(t, err, common.ErrLimitsReached)
}

func TestRenameDatabase_FindsUnderNewName(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	_, err = env.CreateDatabase("old", DBFlags{})
	require.NoError(t, err)

	require.NoError(t, env.RenameDatabase("old", "new"))

	db, err := env.OpenDatabase("new")
	require.NoError(t, err)
	assert.Equal(t, "new", db.Name())

	_, err = env.OpenDatabase("old")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestEraseDatabase_RemovesAllKeysAndFreesSlot(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	db, err := env.CreateDatabase("scratch", DBFlags{})
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		k := []byte{byte(i)}
		_, err := db.Insert(k, []byte("v"), btree.InsertFlags{}, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(50), db.Count())

	require.NoError(t, env.EraseDatabase("scratch"))

	_, err = env.OpenDatabase("scratch")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)

	// the slot should be reusable after erase
	_, err = env.CreateDatabase("scratch", DBFlags{})
	require.NoError(t, err)
}

func TestOpen_ReattachesToExistingFile(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "env.db")

	env, err := Create(path, Flags{}, testParams())
	require.NoError(t, err)
	db, err := env.CreateDatabase("main", DBFlags{})
	require.NoError(t, err)
	_, err = db.Insert([]byte("a"), []byte("1"), btree.InsertFlags{}, nil)
	require.NoError(t, err)
	require.NoError(t, env.Close())

	reopened, err := Open(path, Flags{}, Params{})
	require.NoError(t, err)
	defer reopened.Close()

	db2, err := reopened.OpenDatabase("main")
	require.NoError(t, err)
	v, err := db2.Find([]byte("a"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)
}

func TestOpen_ConcurrentOpenFailsWithWouldBlock(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "env.db")

	env, err := Create(path, Flags{}, testParams())
	require.NoError(t, err)
	defer env.Close()

	_, err = Open(path, Flags{}, Params{})
	assert.ErrorIs(t, err, common.ErrWouldBlock)
}

func TestPrometheusCollectors_ReturnsAllCounters(t *testing.T) {
	env, err := Create("", Flags{InMemory: true}, testParams())
	require.NoError(t, err)
	defer env.Close()

	collectors := env.PrometheusCollectors()
	assert.Len(t, collectors, 12)
}
