package sfdb

import (
	"fmt"
	"iter"
)

type allQuery struct {
	field
	dir Direction
}

// All matches every document that has at least one value for field, which
// includes Null for documents without the field. With an index over field,
// documents come out in field order, which makes All the way to sort.
func All(fieldName string, dir Direction) Query {
	return &allQuery{newField(fieldName), dir}
}

func (q *allQuery) String() string {
	return fmt.Sprintf("all %s %v", q.Field(), q.dir)
}

func (q *allQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *allQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return ix.FindAll(idx, q.dir)
}

func (q *allQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, func(Value) bool { return true })
}

type whereQuery struct {
	field
	pred func(Value) bool
}

// Where matches documents where pred holds for a value of field. pred is
// opaque to the planner, so the index is always scanned in full and the
// document filter is always required.
func Where(fieldName string, pred func(Value) bool) Query {
	return &whereQuery{newField(fieldName), pred}
}

func (q *whereQuery) String() string {
	return fmt.Sprintf("where %s(...)", q.Field())
}

func (q *whereQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, true)
}

func (q *whereQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return filterNodes(ix.FindAll(idx, Ascending), q.pred)
}

func (q *whereQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.pred)
}
