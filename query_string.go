package sfdb

import (
	"fmt"
	"iter"
	"strings"
)

type startsWithQuery struct {
	field
	prefix string
}

// StartsWith matches documents where field is a string beginning with prefix.
func StartsWith(fieldName, prefix string) Query {
	return &startsWithQuery{newField(fieldName), prefix}
}

func (q *startsWithQuery) String() string {
	return fmt.Sprintf("%s startsWith %q", q.Field(), q.prefix)
}

func (q *startsWithQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *startsWithQuery) match(v Value) bool {
	return v.IsString() && strings.HasPrefix(v.AsString(), q.prefix)
}

// ExecuteIndex seeks the prefix itself; strings sharing it follow contiguously.
func (q *startsWithQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		for n, err := range seek(ix, idx, String(q.prefix), Ascending) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !q.match(n.Key) {
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (q *startsWithQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.match)
}

type containsQuery struct {
	field
	substr string
}

// Contains matches documents where field is a string containing substr. No
// index can seek for this: it always scans and always requires the document
// filter.
func Contains(fieldName, substr string) Query {
	return &containsQuery{newField(fieldName), substr}
}

func (q *containsQuery) String() string {
	return fmt.Sprintf("%s contains %q", q.Field(), q.substr)
}

func (q *containsQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, true)
}

func (q *containsQuery) match(v Value) bool {
	return v.IsString() && strings.Contains(v.AsString(), q.substr)
}

func (q *containsQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return filterNodes(ix.FindAll(idx, Ascending), q.match)
}

func (q *containsQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.match)
}
