package sfdb

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"testing"
)

// setupIndexer returns an indexer over a fresh in-memory write transaction.
func setupIndexer(t testing.TB, seed uint64) (*Indexer, *pageTx) {
	t.Helper()
	stx := must(newMemStorage().BeginTx(true))
	tx := newPageTx(stx, nil, true, nil)
	ensure(tx.checkFormat(false))
	t.Cleanup(func() { stx.Rollback() })
	return NewIndexer(tx, rand.New(rand.NewPCG(seed, seed+1))), tx
}

// indexKeysOf lists the keys of idx in dir order.
func indexKeysOf(t testing.TB, ix *Indexer, idx *CollectionIndex, dir Direction) []string {
	t.Helper()
	var keys []string
	for n, err := range ix.FindAll(idx, dir) {
		if err != nil {
			t.Fatalf("FindAll: %v", err)
		}
		keys = append(keys, n.Key.String())
	}
	return keys
}

func nodeKeys(t testing.TB, nodes []*IndexNode) []string {
	t.Helper()
	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.Key.String()
	}
	return keys
}

func TestIndexer_InsertOrder(t *testing.T) {
	ix, _ := setupIndexer(t, 1)
	idx := must(ix.CreateIndex("n", "n", false))

	values := rand.New(rand.NewPCG(7, 7)).Perm(200)
	for i, v := range values {
		must(ix.Insert(idx, Int32(int32(v)), PageAddress{1000, uint16(i)}))
	}

	var want []string
	for i := range 200 {
		want = append(want, Int32(int32(i)).String())
	}
	deepEqual(t, indexKeysOf(t, ix, idx, Ascending), want)
	slices.Reverse(want)
	deepEqual(t, indexKeysOf(t, ix, idx, Descending), want)
	deepEqual(t, must(ix.Count(idx)), 200)

	if idx.MaxLevel < 2 || idx.MaxLevel > MaxLevels {
		t.Errorf("MaxLevel = %d, wanted a grown level", idx.MaxLevel)
	}
}

func TestIndexer_Find(t *testing.T) {
	ix, _ := setupIndexer(t, 2)
	idx := must(ix.CreateIndex("n", "n", false))
	for i, v := range []int32{10, 20, 20, 30} {
		must(ix.Insert(idx, Int32(v), PageAddress{1000, uint16(i)}))
	}

	tests := []struct {
		value   int32
		sibling bool
		dir     Direction
		want    string // key and data slot, or "nil"
	}{
		{20, false, Ascending, "20@1"},
		{20, false, Descending, "20@2"},
		{15, false, Ascending, "nil"},
		{15, true, Ascending, "20@1"},
		{15, true, Descending, "10@0"},
		{5, true, Descending, "nil"},
		{35, true, Ascending, "nil"},
		{35, true, Descending, "30@3"},
		{10, false, Descending, "10@0"},
	}
	for _, tt := range tests {
		n := must(ix.Find(idx, Int32(tt.value), tt.sibling, tt.dir))
		got := "nil"
		if n != nil {
			got = n.Key.String() + "@" + strconv.Itoa(int(n.DataBlock.Index))
		}
		if got != tt.want {
			t.Errorf("Find(%d, sibling=%v, %v) = %s, wanted %s", tt.value, tt.sibling, tt.dir, got, tt.want)
		}
	}
}

func TestIndexer_NonUniqueContiguous(t *testing.T) {
	ix, _ := setupIndexer(t, 3)
	idx := must(ix.CreateIndex("n", "n", false))
	for i, v := range []int32{5, 7, 5, 5} {
		must(ix.Insert(idx, Int32(v), PageAddress{1000, uint16(i)}))
	}

	var slots []uint16
	for n, err := range ix.FindAll(idx, Ascending) {
		ensure(err)
		slots = append(slots, n.DataBlock.Index)
	}
	deepEqual(t, indexKeysOf(t, ix, idx, Ascending), []string{"5", "5", "5", "7"})
	deepEqual(t, slots, []uint16{0, 2, 3, 1})

	nodes := collectNodes(t, equalNodes(ix, idx, Int32(5)))
	deepEqual(t, nodeKeys(t, nodes), []string{"5", "5", "5"})
}

func TestIndexer_Unique(t *testing.T) {
	ix, tx := setupIndexer(t, 4)
	idx := must(ix.CreateIndex("u", "u", true))
	must(ix.Insert(idx, String("a"), PageAddress{1000, 0}))
	must(ix.Insert(idx, String("b"), PageAddress{1000, 1}))
	before := tx.nodes.Stats().KeyN

	_, err := ix.Insert(idx, String("a"), PageAddress{1000, 2})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, wanted ErrDuplicateKey", err)
	}
	deepEqual(t, tx.nodes.Stats().KeyN, before)
	deepEqual(t, indexKeysOf(t, ix, idx, Ascending), []string{`"a"`, `"b"`})

	// numeric equality crosses tags
	nidx := must(ix.CreateIndex("n", "n", true))
	must(ix.Insert(nidx, Int32(1), PageAddress{1000, 3}))
	if _, err := ix.Insert(nidx, Double(1.0), PageAddress{1000, 4}); !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, wanted ErrDuplicateKey", err)
	}
}

func TestIndexer_InvalidKeys(t *testing.T) {
	ix, _ := setupIndexer(t, 5)
	idx := must(ix.CreateIndex("n", "n", false))

	for _, key := range []Value{MinValue(), MaxValue()} {
		if _, err := ix.Insert(idx, key, PageAddress{1000, 0}); !errors.Is(err, ErrInvalidIndexKey) {
			t.Errorf("Insert(%v): err = %v, wanted ErrInvalidIndexKey", key, err)
		}
	}
	long := String(strings.Repeat("x", MaxIndexKeyLength+1))
	if _, err := ix.Insert(idx, long, PageAddress{1000, 0}); !errors.Is(err, ErrIndexKeyTooLong) {
		t.Errorf("Insert(long): err = %v, wanted ErrIndexKeyTooLong", err)
	}
	must(ix.Insert(idx, String(strings.Repeat("x", MaxIndexKeyLength)), PageAddress{1000, 0}))
}

func TestIndexer_Delete(t *testing.T) {
	ix, _ := setupIndexer(t, 6)
	idx := must(ix.CreateIndex("n", "n", false))
	var nodes []*IndexNode
	for i := range 50 {
		nodes = append(nodes, must(ix.Insert(idx, Int32(int32(i)), PageAddress{1000, uint16(i)})))
	}
	for i := 0; i < 50; i += 2 {
		ensure(ix.Delete(must(ix.GetNode(nodes[i].Position))))
	}

	var want []string
	for i := 1; i < 50; i += 2 {
		want = append(want, strconv.Itoa(i))
	}
	deepEqual(t, indexKeysOf(t, ix, idx, Ascending), want)
	slices.Reverse(want)
	deepEqual(t, indexKeysOf(t, ix, idx, Descending), want)

	isnil(t, must(ix.Find(idx, Int32(10), false, Ascending)))
	isnonnil(t, must(ix.Find(idx, Int32(11), false, Ascending)))

	_, err := ix.GetNode(nodes[0].Position)
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("GetNode(deleted): err = %v, wanted ErrCorrupted", err)
	}

	head := must(ix.GetNode(idx.Head))
	assertPanics(t, "sentinel", func() { ix.Delete(head) })
}

func TestIndexer_DropIndex(t *testing.T) {
	ix, tx := setupIndexer(t, 7)
	before := tx.nodes.Stats().KeyN
	idx := must(ix.CreateIndex("n", "n", false))
	for i := range 20 {
		must(ix.Insert(idx, Int32(int32(i%3)), PageAddress{1000, uint16(i)}))
	}
	deepEqual(t, tx.nodes.Stats().KeyN, before+22)

	ensure(ix.DropIndex(idx))
	deepEqual(t, tx.nodes.Stats().KeyN, before)
}

func TestIndexer_GetNodeEmptyAddress(t *testing.T) {
	ix, _ := setupIndexer(t, 8)
	_, err := ix.GetNode(EmptyAddress)
	var ce *CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, wanted *CorruptionError", err)
	}
}

func TestIndexer_FindFromLowMaxLevel(t *testing.T) {
	ix, _ := setupIndexer(t, 9)
	idx := must(ix.CreateIndex("n", "n", false))
	for i := range 30 {
		must(ix.Insert(idx, Int32(int32(i)), PageAddress{1000, uint16(i)}))
	}
	// a catalog written before MaxLevel was recorded
	idx.MaxLevel = 0
	n := must(ix.Find(idx, Int32(17), false, Ascending))
	deepEqual(t, n.Key.String(), "17")
}

func collectNodes(t testing.TB, seq func(yield func(*IndexNode, error) bool)) []*IndexNode {
	t.Helper()
	var nodes []*IndexNode
	for n, err := range seq {
		if err != nil {
			t.Fatalf("iteration failed: %v", err)
		}
		nodes = append(nodes, n)
	}
	return nodes
}
