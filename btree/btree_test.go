package btree

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/embeddkv/embeddkv/blob"
	"github.com/embeddkv/embeddkv/common"
	"github.com/embeddkv/embeddkv/device"
	"github.com/embeddkv/embeddkv/freelist"
	"github.com/embeddkv/embeddkv/page"
	"github.com/embeddkv/embeddkv/pager"
)

func newTestTree(t *testing.T, pageSize int) *Tree {
	t.Helper()
	dev := device.NewMemoryDevice()
	mgr := pager.New(dev, 0, pager.Options{PageSize: pageSize})
	free := freelist.New(mgr, page.InvalidID)
	blobs := blob.New(mgr, free)
	tree, err := Create(mgr, blobs, free, Options{
		Comparator:         common.BytesComparator,
		AllowDuplicateKeys: true,
		MaxKeySize:         pageSize / 4,
	})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	return tree
}

func TestInsertFind_SingleKey(t *testing.T) {
	tree := newTestTree(t, 4096)
	if err := tree.Insert([]byte("hello"), []byte("world"), InsertFlags{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	res, err := tree.Find([]byte("hello"), common.MatchExact)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	val, err := tree.ResolveValue(res.Desc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !bytes.Equal(val, []byte("world")) {
		t.Fatalf("got %q want %q", val, "world")
	}
}

func TestFind_MissingKeyReturnsNotFound(t *testing.T) {
	tree := newTestTree(t, 4096)
	if _, err := tree.Find([]byte("nope"), common.MatchExact); err == nil {
		t.Fatalf("expected not-found error")
	}
}

func TestInsert_DuplicateKeyWithoutFlagsFails(t *testing.T) {
	tree := newTestTree(t, 4096)
	tree.allowDuplicateKeys = false
	if err := tree.Insert([]byte("k"), []byte("a"), InsertFlags{}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("b"), InsertFlags{}); err == nil {
		t.Fatalf("expected duplicate-key error")
	}
}

func TestInsert_OverwriteReplacesValue(t *testing.T) {
	tree := newTestTree(t, 4096)
	if err := tree.Insert([]byte("k"), []byte("a"), InsertFlags{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("bb"), InsertFlags{Overwrite: true}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	res, err := tree.Find([]byte("k"), common.MatchExact)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	val, _ := tree.ResolveValue(res.Desc)
	if !bytes.Equal(val, []byte("bb")) {
		t.Fatalf("got %q want %q", val, "bb")
	}
}

func Test30KeysAscendingIteration(t *testing.T) {
	tree := newTestTree(t, 4096)
	for i := 0; i < 30; i++ {
		key := []byte(fmt.Sprintf("key-%02d", i))
		if err := tree.Insert(key, []byte(fmt.Sprintf("val-%02d", i)), InsertFlags{}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	it, err := tree.NewIterator()
	if err != nil {
		t.Fatalf("new iterator: %v", err)
	}
	count := 0
	for it.Next() {
		want := []byte(fmt.Sprintf("key-%02d", count))
		if !bytes.Equal(it.Key(), want) {
			t.Fatalf("key %d: got %q want %q", count, it.Key(), want)
		}
		count++
	}
	if it.Error() != nil {
		t.Fatalf("iterator error: %v", it.Error())
	}
	if count != 30 {
		t.Fatalf("got %d keys want 30", count)
	}
}

func TestInsert_ForcesSplitAcrossSmallPages(t *testing.T) {
	tree := newTestTree(t, 256)
	const n = 200
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		if err := tree.Insert(key, []byte("v"), InsertFlags{}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if tree.metrics.Splits == 0 {
		t.Fatalf("expected at least one split over %d keys on tiny pages", n)
	}

	it, err := tree.NewIterator()
	if err != nil {
		t.Fatalf("new iterator: %v", err)
	}
	count := 0
	for it.Next() {
		count++
	}
	if count != n {
		t.Fatalf("got %d keys want %d", count, n)
	}
}

func TestDuplicates_InsertIterateCount(t *testing.T) {
	tree := newTestTree(t, 4096)
	if err := tree.Insert([]byte("k"), []byte("a"), InsertFlags{}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("b"), InsertFlags{Duplicate: true, DupMode: common.DupInsertLast}); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := tree.Insert([]byte("k"), []byte("c"), InsertFlags{Duplicate: true, DupMode: common.DupInsertLast}); err != nil {
		t.Fatalf("insert c: %v", err)
	}

	res, err := tree.Find([]byte("k"), common.MatchExact)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if res.Desc.Kind != page.DescDuplicateTable {
		t.Fatalf("expected duplicate table descriptor, got %v", res.Desc.Kind)
	}
}

func TestErase_RemovesKey(t *testing.T) {
	tree := newTestTree(t, 4096)
	if err := tree.Insert([]byte("k"), []byte("v"), InsertFlags{}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tree.Erase([]byte("k"), NoDuplicateIndex); err != nil {
		t.Fatalf("erase: %v", err)
	}
	if _, err := tree.Find([]byte("k"), common.MatchExact); err == nil {
		t.Fatalf("expected key-not-found after erase")
	}
}

func TestErase_ManyKeysTriggersRebalance(t *testing.T) {
	tree := newTestTree(t, 256)
	const n = 150
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		if err := tree.Insert(key, []byte("v"), InsertFlags{}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	for i := 0; i < n-10; i++ {
		key := []byte(fmt.Sprintf("k%04d", i))
		if err := tree.Erase(key, NoDuplicateIndex); err != nil {
			t.Fatalf("erase %d: %v", i, err)
		}
	}

	it, err := tree.NewIterator()
	if err != nil {
		t.Fatalf("new iterator: %v", err)
	}
	count := 0
	for it.Next() {
		count++
	}
	if count != 10 {
		t.Fatalf("got %d remaining keys want 10", count)
	}
}

func TestFind_ApproximateMatch(t *testing.T) {
	tree := newTestTree(t, 4096)
	for _, k := range []string{"b", "d", "f"} {
		if err := tree.Insert([]byte(k), []byte("v"), InsertFlags{}); err != nil {
			t.Fatalf("insert %s: %v", k, err)
		}
	}

	res, err := tree.Find([]byte("c"), common.MatchGEQ)
	if err != nil {
		t.Fatalf("find geq: %v", err)
	}
	if string(res.Key) != "d" {
		t.Fatalf("geq(c) got %q want %q", res.Key, "d")
	}

	res, err = tree.Find([]byte("c"), common.MatchLEQ)
	if err != nil {
		t.Fatalf("find leq: %v", err)
	}
	if string(res.Key) != "b" {
		t.Fatalf("leq(c) got %q want %q", res.Key, "b")
	}
}
