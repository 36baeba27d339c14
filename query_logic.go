package sfdb

import (
	"fmt"
	"iter"
)

type orQuery struct {
	left, right Query
}

// Or matches documents matching either query. Results are the union of both
// children, de-duplicated by document.
func Or(left, right Query) Query {
	return &orQuery{left, right}
}

func (q *orQuery) String() string {
	return fmt.Sprintf("(%v or %v)", q.left, q.right)
}

func (q *orQuery) run(cat Catalog, ix *Indexer) Execution {
	l, r := q.left.run(cat, ix), q.right.run(cat, ix)
	return Execution{
		UseIndex:  l.UseIndex && r.UseIndex,
		UseFilter: l.UseFilter || r.UseFilter,
		Nodes:     union(l.Nodes, r.Nodes),
	}
}

func (q *orQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return union(q.left.ExecuteIndex(ix, idx), q.right.ExecuteIndex(ix, idx))
}

func (q *orQuery) FilterDocument(doc *Document) bool {
	return q.left.FilterDocument(doc) || q.right.FilterDocument(doc)
}

type andQuery struct {
	left, right Query
}

// And matches documents matching both queries. Results follow the order of
// the left query.
func And(left, right Query) Query {
	return &andQuery{left, right}
}

func (q *andQuery) String() string {
	return fmt.Sprintf("(%v and %v)", q.left, q.right)
}

func (q *andQuery) run(cat Catalog, ix *Indexer) Execution {
	l, r := q.left.run(cat, ix), q.right.run(cat, ix)
	return Execution{
		UseIndex:  l.UseIndex && r.UseIndex,
		UseFilter: l.UseFilter || r.UseFilter,
		Nodes:     intersect(l.Nodes, r.Nodes),
	}
}

func (q *andQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return intersect(q.left.ExecuteIndex(ix, idx), q.right.ExecuteIndex(ix, idx))
}

func (q *andQuery) FilterDocument(doc *Document) bool {
	return q.left.FilterDocument(doc) && q.right.FilterDocument(doc)
}

// union yields the nodes of a, then those of b, skipping data blocks already
// yielded.
func union(a, b iter.Seq2[*IndexNode, error]) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		seen := make(map[PageAddress]struct{})
		for _, nodes := range [2]iter.Seq2[*IndexNode, error]{a, b} {
			for n, err := range nodes {
				if err != nil {
					yield(nil, err)
					return
				}
				if _, dup := seen[n.DataBlock]; dup {
					continue
				}
				seen[n.DataBlock] = struct{}{}
				if !yield(n, nil) {
					return
				}
			}
		}
	}
}

// intersect yields the nodes of a whose data blocks also occur in b. b is
// read in full before the first node is yielded.
func intersect(a, b iter.Seq2[*IndexNode, error]) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		inB := make(map[PageAddress]struct{})
		for n, err := range b {
			if err != nil {
				yield(nil, err)
				return
			}
			inB[n.DataBlock] = struct{}{}
		}
		seen := make(map[PageAddress]struct{}, len(inB))
		for n, err := range a {
			if err != nil {
				yield(nil, err)
				return
			}
			if _, ok := inB[n.DataBlock]; !ok {
				continue
			}
			if _, dup := seen[n.DataBlock]; dup {
				continue
			}
			seen[n.DataBlock] = struct{}{}
			if !yield(n, nil) {
				return
			}
		}
	}
}
