package sfdb

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

type equalsQuery struct {
	field
	value Value
}

// EQ matches documents where field equals value. Numbers of different types
// are equal when their magnitudes are.
func EQ(fieldName string, value Value) Query {
	return &equalsQuery{newField(fieldName), value}
}

func (q *equalsQuery) String() string {
	return fmt.Sprintf("%s = %v", q.Field(), q.value)
}

func (q *equalsQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *equalsQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return equalNodes(ix, idx, q.value)
}

// equalNodes yields the contiguous run of nodes equal to value.
func equalNodes(ix *Indexer, idx *CollectionIndex, value Value) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		node, err := ix.Find(idx, value, false, Ascending)
		if err != nil {
			yield(nil, err)
			return
		}
		if node == nil {
			return
		}
		if idx.Unique {
			yield(node, nil)
			return
		}
		for n, err := range ix.from(node, Ascending) {
			if err != nil {
				yield(nil, err)
				return
			}
			if Compare(n.Key, value) != 0 {
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (q *equalsQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, func(v Value) bool {
		return Compare(v, q.value) == 0
	})
}

type notEqualsQuery struct {
	field
	value Value
}

// Not matches documents where field has a value different from value. The
// index cannot seek for this, so it is scanned in full.
func Not(fieldName string, value Value) Query {
	return &notEqualsQuery{newField(fieldName), value}
}

func (q *notEqualsQuery) String() string {
	return fmt.Sprintf("%s != %v", q.Field(), q.value)
}

func (q *notEqualsQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *notEqualsQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return filterNodes(ix.FindAll(idx, Ascending), func(key Value) bool {
		return Compare(key, q.value) != 0
	})
}

func (q *notEqualsQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, func(v Value) bool {
		return Compare(v, q.value) != 0
	})
}

type inQuery struct {
	field
	values []Value // sorted, without duplicates
}

// In matches documents where field equals any of values. Duplicate values are
// ignored.
func In(fieldName string, values ...Value) Query {
	vals := slices.Clone(values)
	slices.SortFunc(vals, Compare)
	vals = slices.CompactFunc(vals, Value.Equal)
	return &inQuery{newField(fieldName), vals}
}

func (q *inQuery) String() string {
	var buf strings.Builder
	buf.WriteString(q.Field())
	buf.WriteString(" in [")
	for i, v := range q.values {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(v.String())
	}
	buf.WriteString("]")
	return buf.String()
}

func (q *inQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

// ExecuteIndex seeks each requested value in turn, in ascending order, and
// never yields a node twice.
func (q *inQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		seen := make(map[PageAddress]struct{})
		for _, v := range q.values {
			for n, err := range equalNodes(ix, idx, v) {
				if err != nil {
					yield(nil, err)
					return
				}
				if _, dup := seen[n.Position]; dup {
					continue
				}
				seen[n.Position] = struct{}{}
				if !yield(n, nil) {
					return
				}
			}
		}
	}
}

func (q *inQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, func(v Value) bool {
		_, found := slices.BinarySearchFunc(q.values, v, Compare)
		return found
	})
}

// filterNodes yields the nodes whose keys satisfy pred.
func filterNodes(nodes iter.Seq2[*IndexNode, error], pred func(key Value) bool) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		for n, err := range nodes {
			if err != nil {
				yield(nil, err)
				return
			}
			if !pred(n.Key) {
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}
