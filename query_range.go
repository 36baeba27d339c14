package sfdb

import (
	"fmt"
	"iter"
)

// Range queries only match keys of the bound's type group (the same type, or
// any number for a numeric bound). Keys of other types sorting before the
// group are skipped and the walk ends at the first key past the group.

type lessQuery struct {
	field
	value     Value
	inclusive bool
}

// LT matches documents where field is less than value.
func LT(fieldName string, value Value) Query {
	return &lessQuery{newField(fieldName), value, false}
}

// LTE matches documents where field is less than or equal to value.
func LTE(fieldName string, value Value) Query {
	return &lessQuery{newField(fieldName), value, true}
}

func (q *lessQuery) String() string {
	op := "<"
	if q.inclusive {
		op = "<="
	}
	return fmt.Sprintf("%s %s %v", q.Field(), op, q.value)
}

func (q *lessQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *lessQuery) match(key Value) bool {
	if !sameGroup(key, q.value) {
		return false
	}
	c := Compare(key, q.value)
	return c < 0 || (c == 0 && q.inclusive)
}

func (q *lessQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		nodes := ix.FindAll(idx, Ascending)
		if floor, ok := groupFloor(q.value); ok {
			nodes = seek(ix, idx, floor, Ascending)
		}
		for n, err := range nodes {
			if err != nil {
				yield(nil, err)
				return
			}
			if !q.match(n.Key) {
				if Compare(n.Key, q.value) < 0 {
					continue
				}
				return
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (q *lessQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.match)
}

type greaterQuery struct {
	field
	value     Value
	inclusive bool
}

// GT matches documents where field is greater than value.
func GT(fieldName string, value Value) Query {
	return &greaterQuery{newField(fieldName), value, false}
}

// GTE matches documents where field is greater than or equal to value.
func GTE(fieldName string, value Value) Query {
	return &greaterQuery{newField(fieldName), value, true}
}

func (q *greaterQuery) String() string {
	op := ">"
	if q.inclusive {
		op = ">="
	}
	return fmt.Sprintf("%s %s %v", q.Field(), op, q.value)
}

func (q *greaterQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *greaterQuery) match(key Value) bool {
	if !sameGroup(key, q.value) {
		return false
	}
	c := Compare(key, q.value)
	return c > 0 || (c == 0 && q.inclusive)
}

func (q *greaterQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		for n, err := range seek(ix, idx, q.value, Ascending) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !sameGroup(n.Key, q.value) {
				return
			}
			if !q.match(n.Key) {
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (q *greaterQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.match)
}

type betweenQuery struct {
	field
	start, end             Value
	startEquals, endEquals bool
	lo, hi                 Value
	loEquals, hiEquals     bool
	dir                    Direction
}

// Between matches documents where field lies between start and end, each
// bound being inclusive when its flag is set.
//
// The index is walked from start towards end, so a start greater than end
// yields nodes in descending order. Membership does not depend on the order
// of the bounds. Equal bounds match that exact value only when both flags are
// set, and nothing otherwise. A key must belong to the type group of at least
// one bound.
func Between(fieldName string, start, end Value, startEquals, endEquals bool) Query {
	q := &betweenQuery{
		field:       newField(fieldName),
		start:       start,
		end:         end,
		startEquals: startEquals,
		endEquals:   endEquals,
		lo:          start,
		hi:          end,
		loEquals:    startEquals,
		hiEquals:    endEquals,
		dir:         Ascending,
	}
	if Compare(start, end) > 0 {
		q.lo, q.hi = end, start
		q.loEquals, q.hiEquals = endEquals, startEquals
		q.dir = Descending
	}
	return q
}

func (q *betweenQuery) String() string {
	l, r := "(", ")"
	if q.startEquals {
		l = "["
	}
	if q.endEquals {
		r = "]"
	}
	return fmt.Sprintf("%s in %s%v, %v%s", q.Field(), l, q.start, q.end, r)
}

func (q *betweenQuery) run(cat Catalog, ix *Indexer) Execution {
	return q.plan(q, cat, ix, false)
}

func (q *betweenQuery) match(key Value) bool {
	if !sameGroup(key, q.lo) && !sameGroup(key, q.hi) {
		return false
	}
	c := Compare(key, q.lo)
	if c < 0 || (c == 0 && !q.loEquals) {
		return false
	}
	c = Compare(key, q.hi)
	return c < 0 || (c == 0 && q.hiEquals)
}

// pastEnd reports whether the walk has gone beyond the end bound.
func (q *betweenQuery) pastEnd(key Value) bool {
	c := Compare(key, q.end) * int(q.dir)
	return c > 0 || (c == 0 && !q.endEquals)
}

func (q *betweenQuery) ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		for n, err := range seek(ix, idx, q.start, q.dir) {
			if err != nil {
				yield(nil, err)
				return
			}
			if q.pastEnd(n.Key) {
				return
			}
			if !q.match(n.Key) {
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

func (q *betweenQuery) FilterDocument(doc *Document) bool {
	return q.anyValue(doc, q.match)
}

// seek yields nodes in dir order starting from the first one at or past
// value.
func seek(ix *Indexer, idx *CollectionIndex, value Value, dir Direction) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		node, err := ix.Find(idx, value, true, dir)
		if err != nil {
			yield(nil, err)
			return
		}
		for n, err := range ix.from(node, dir) {
			if !yield(n, err) {
				return
			}
		}
	}
}
