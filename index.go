package sfdb

import (
	"fmt"
	"iter"
	"math/rand/v2"
)

// CollectionIndex describes one skip-list index of a collection. Head and Tail
// are sentinel nodes holding MinValue and MaxValue; MaxLevel is the highest
// level populated by any node, where searches start.
type CollectionIndex struct {
	Name       string      `msgpack:"n"`
	Expression string      `msgpack:"e"`
	Unique     bool        `msgpack:"u"`
	Head       PageAddress `msgpack:"h"`
	Tail       PageAddress `msgpack:"t"`
	MaxLevel   int         `msgpack:"l"`

	path *Path
}

// Path returns the parsed field expression of the index.
func (idx *CollectionIndex) Path() *Path {
	if idx.path == nil {
		idx.path = MustParsePath(idx.Expression)
	}
	return idx.path
}

// Field is the canonical field name queries are matched against.
func (idx *CollectionIndex) Field() string {
	return idx.Path().Field()
}

func (idx *CollectionIndex) start(dir Direction) PageAddress {
	if dir == Descending {
		return idx.Tail
	}
	return idx.Head
}

func (idx *CollectionIndex) String() string {
	u := ""
	if idx.Unique {
		u = " unique"
	}
	return fmt.Sprintf("%s(%s)%s", idx.Name, idx.Expression, u)
}

// Indexer implements the skip-list algorithms on top of a PageStore.
type Indexer struct {
	pages PageStore
	rnd   *rand.Rand
}

func NewIndexer(pages PageStore, rnd *rand.Rand) *Indexer {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Indexer{pages: pages, rnd: rnd}
}

func (ix *Indexer) Pages() PageStore {
	return ix.pages
}

// GetNode dereferences addr. A missing node means the file is corrupted.
func (ix *Indexer) GetNode(addr PageAddress) (*IndexNode, error) {
	if addr.IsEmpty() {
		return nil, &CorruptionError{Addr: addr, What: "index node"}
	}
	return ix.pages.GetNode(addr)
}

// CreateIndex allocates the head and tail sentinels of a new index.
func (ix *Indexer) CreateIndex(name, expr string, unique bool) (*CollectionIndex, error) {
	path, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	head := newIndexNode(MinValue(), EmptyAddress, MaxLevels)
	tail := newIndexNode(MaxValue(), EmptyAddress, MaxLevels)
	if _, err := ix.pages.AddNode(head); err != nil {
		return nil, err
	}
	if _, err := ix.pages.AddNode(tail); err != nil {
		return nil, err
	}
	for i := range MaxLevels {
		head.Next[i] = tail.Position
		tail.Prev[i] = head.Position
	}
	if err := ix.pages.UpdateNode(head); err != nil {
		return nil, err
	}
	if err := ix.pages.UpdateNode(tail); err != nil {
		return nil, err
	}
	return &CollectionIndex{
		Name:       name,
		Expression: expr,
		Unique:     unique,
		Head:       head.Position,
		Tail:       tail.Position,
		MaxLevel:   1,
		path:       path,
	}, nil
}

// DropIndex frees every node of idx, sentinels included.
func (ix *Indexer) DropIndex(idx *CollectionIndex) error {
	addr := idx.Head
	for !addr.IsEmpty() {
		node, err := ix.GetNode(addr)
		if err != nil {
			return err
		}
		next := node.Next[0]
		if err := ix.pages.DeleteNode(addr); err != nil {
			return err
		}
		addr = next
	}
	return nil
}

// flipLevels picks a node height: each extra level has probability 1/2.
func (ix *Indexer) flipLevels() int {
	levels := 1
	for levels < MaxLevels && ix.rnd.IntN(2) == 0 {
		levels++
	}
	return levels
}

// Insert adds a node for key pointing at dataBlock. Nodes with equal keys are
// placed after the existing ones, so equal keys stay contiguous in insertion
// order. The caller must persist idx when Insert raises idx.MaxLevel.
func (ix *Indexer) Insert(idx *CollectionIndex, key Value, dataBlock PageAddress) (*IndexNode, error) {
	if key.IsMinValue() || key.IsMaxValue() {
		return nil, ErrInvalidIndexKey
	}
	if err := checkStrings(key); err != nil {
		return nil, err
	}
	if n := ValueLength(key); n > MaxIndexKeyLength {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrIndexKeyTooLong, n, MaxIndexKeyLength)
	}

	levels := ix.flipLevels()
	searchLevels := max(levels, idx.MaxLevel)

	var preds [MaxLevels]*IndexNode
	cur, err := ix.GetNode(idx.Head)
	if err != nil {
		return nil, err
	}
	for i := searchLevels - 1; i >= 0; i-- {
		for {
			next, err := ix.GetNode(cur.Next[i])
			if err != nil {
				return nil, err
			}
			diff := Compare(next.Key, key)
			if diff == 0 && idx.Unique {
				return nil, ErrDuplicateKey
			}
			if diff > 0 {
				break
			}
			cur = next
		}
		preds[i] = cur
	}

	node := newIndexNode(key, dataBlock, levels)
	if _, err := ix.pages.AddNode(node); err != nil {
		return nil, err
	}

	dirty := make(map[PageAddress]*IndexNode)
	for i := range levels {
		pred := ix.mutable(preds[i], dirty)
		succ, err := ix.mutableAt(pred.Next[i], dirty)
		if err != nil {
			return nil, err
		}
		node.Prev[i] = pred.Position
		node.Next[i] = succ.Position
		pred.Next[i] = node.Position
		succ.Prev[i] = node.Position
	}
	if err := ix.pages.UpdateNode(node); err != nil {
		return nil, err
	}
	if err := ix.flush(dirty); err != nil {
		return nil, err
	}
	if levels > idx.MaxLevel {
		idx.MaxLevel = levels
	}
	return node, nil
}

// Delete unlinks node from every level and frees it.
func (ix *Indexer) Delete(node *IndexNode) error {
	if node.IsSentinel() {
		panic(fmt.Errorf("sfdb: attempted to delete sentinel %v", node))
	}
	dirty := make(map[PageAddress]*IndexNode)
	for i := range node.Levels() {
		prev, err := ix.mutableAt(node.Prev[i], dirty)
		if err != nil {
			return err
		}
		next, err := ix.mutableAt(node.Next[i], dirty)
		if err != nil {
			return err
		}
		prev.Next[i] = next.Position
		next.Prev[i] = prev.Position
	}
	if err := ix.flush(dirty); err != nil {
		return err
	}
	return ix.pages.DeleteNode(node.Position)
}

func (ix *Indexer) mutable(n *IndexNode, dirty map[PageAddress]*IndexNode) *IndexNode {
	if m := dirty[n.Position]; m != nil {
		return m
	}
	m := n.Clone()
	dirty[n.Position] = m
	return m
}

func (ix *Indexer) mutableAt(addr PageAddress, dirty map[PageAddress]*IndexNode) (*IndexNode, error) {
	if m := dirty[addr]; m != nil {
		return m, nil
	}
	n, err := ix.GetNode(addr)
	if err != nil {
		return nil, err
	}
	return ix.mutable(n, dirty), nil
}

func (ix *Indexer) flush(dirty map[PageAddress]*IndexNode) error {
	for _, n := range dirty {
		if err := ix.pages.UpdateNode(n); err != nil {
			return err
		}
	}
	return nil
}

// Find performs a skip search from the sentinel at the start of dir.
//
// It returns the first node (in dir order) whose key equals value. If there is
// none and sibling is true, it returns the first node past value in dir order
// instead. Sentinels are never returned; nil means nothing was found.
func (ix *Indexer) Find(idx *CollectionIndex, value Value, sibling bool, dir Direction) (*IndexNode, error) {
	cur, err := ix.GetNode(idx.start(dir))
	if err != nil {
		return nil, err
	}
	for i := max(idx.MaxLevel, 1) - 1; i >= 0; i-- {
		for {
			next, err := ix.GetNode(cur.NextIn(i, dir))
			if err != nil {
				return nil, err
			}
			if next.IsSentinel() || Compare(next.Key, value)*int(dir) >= 0 {
				break
			}
			cur = next
		}
	}
	cand, err := ix.GetNode(cur.NextIn(0, dir))
	if err != nil {
		return nil, err
	}
	if cand.IsSentinel() {
		return nil, nil
	}
	if sibling || Compare(cand.Key, value) == 0 {
		return cand, nil
	}
	return nil, nil
}

// FindAll walks level 0 from one sentinel to the other.
func (ix *Indexer) FindAll(idx *CollectionIndex, dir Direction) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		head, err := ix.GetNode(idx.start(dir))
		if err != nil {
			yield(nil, err)
			return
		}
		for node, err := range ix.walk(head.NextIn(0, dir), dir) {
			if !yield(node, err) {
				return
			}
		}
	}
}

// walk yields the node at addr and its successors in dir order, stopping
// before the sentinel at the end. After an error nothing more is yielded.
func (ix *Indexer) walk(addr PageAddress, dir Direction) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		for {
			node, err := ix.GetNode(addr)
			if err != nil {
				yield(nil, err)
				return
			}
			if node.IsSentinel() {
				return
			}
			if !yield(node, nil) {
				return
			}
			addr = node.NextIn(0, dir)
		}
	}
}

// from yields start and its successors in dir order.
func (ix *Indexer) from(start *IndexNode, dir Direction) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		if start == nil {
			return
		}
		if !yield(start, nil) {
			return
		}
		for node, err := range ix.walk(start.NextIn(0, dir), dir) {
			if !yield(node, err) {
				return
			}
		}
	}
}

// Count returns the number of non-sentinel nodes.
func (ix *Indexer) Count(idx *CollectionIndex) (int, error) {
	var n int
	for _, err := range ix.FindAll(idx, Ascending) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}
