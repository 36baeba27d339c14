package sfdb

import (
	"iter"
	"math"

	"github.com/google/uuid"
)

// Query is a predicate over one field of a document, or a combination of
// queries. The set of query kinds is closed; build queries with EQ, Not, All,
// LT, LTE, GT, GTE, Between, In, StartsWith, Contains, Where, Or and And.
//
// Every query can be evaluated two ways with the same result: by walking an
// index over its field (ExecuteIndex) or by testing each document
// (FilterDocument). A field predicate holds for a document if it holds for any
// value the field expression yields.
type Query interface {
	// ExecuteIndex returns the nodes of idx whose keys satisfy the query, in
	// index order. A document may appear more than once when the field yields
	// several matching values.
	ExecuteIndex(ix *Indexer, idx *CollectionIndex) iter.Seq2[*IndexNode, error]

	// FilterDocument reports whether doc satisfies the query.
	FilterDocument(doc *Document) bool

	String() string

	run(cat Catalog, ix *Indexer) Execution
}

// Catalog resolves the indexes of a collection for query planning.
type Catalog interface {
	// IndexFor returns the index over the given canonical field, or nil.
	IndexFor(field string) *CollectionIndex

	// PrimaryKey returns the unique _id index.
	PrimaryKey() *CollectionIndex
}

// Execution is the plan chosen by Run.
//
// With UseIndex set, Nodes was produced by seeking or scanning the index of
// the queried field; otherwise it enumerates every document of the
// collection. With UseFilter set, the caller must load each document and
// apply FilterDocument. Nodes never yields two nodes with the same data block.
type Execution struct {
	UseIndex  bool
	UseFilter bool
	Nodes     iter.Seq2[*IndexNode, error]
}

// Run plans q against the indexes of cat.
func Run(q Query, cat Catalog, ix *Indexer) Execution {
	return q.run(cat, ix)
}

// field is the part shared by all single-field queries.
type field struct {
	path *Path
}

func newField(name string) field {
	return field{path: MustParsePath(name)}
}

// Field returns the canonical name of the queried field.
func (f field) Field() string {
	return f.path.Field()
}

func (f field) anyValue(doc *Document, pred func(Value) bool) bool {
	for v := range f.path.Evaluate(doc) {
		if pred(v) {
			return true
		}
	}
	return false
}

// plan picks the index over the field when there is one, and falls back to
// a filtered scan of the whole collection otherwise.
func (f field) plan(q Query, cat Catalog, ix *Indexer, alwaysFilter bool) Execution {
	idx := cat.IndexFor(f.Field())
	if idx == nil {
		return Execution{
			UseIndex:  false,
			UseFilter: true,
			Nodes:     ix.FindAll(cat.PrimaryKey(), Ascending),
		}
	}
	return Execution{
		UseIndex:  true,
		UseFilter: alwaysFilter,
		Nodes:     distinctDataBlocks(q.ExecuteIndex(ix, idx)),
	}
}

func distinctDataBlocks(nodes iter.Seq2[*IndexNode, error]) iter.Seq2[*IndexNode, error] {
	return func(yield func(*IndexNode, error) bool) {
		seen := make(map[PageAddress]struct{})
		for node, err := range nodes {
			if err != nil {
				yield(nil, err)
				return
			}
			if _, dup := seen[node.DataBlock]; dup {
				continue
			}
			seen[node.DataBlock] = struct{}{}
			if !yield(node, nil) {
				return
			}
		}
	}
}

// sameGroup reports whether a and b are ordered by value rather than by type
// rank: they have the same type, or are both numbers.
func sameGroup(a, b Value) bool {
	return a.Type() == b.Type() || (a.IsNumber() && b.IsNumber())
}

// groupFloor returns the smallest value of the type group of v, used to seek
// to the start of the group. ok is false when the group has no smallest
// representable value.
func groupFloor(v Value) (floor Value, ok bool) {
	switch t := v.Type(); {
	case v.IsNumber():
		return Double(math.NaN()), true
	case t == TypeNull:
		return Null(), true
	case t == TypeString:
		return String(""), true
	case t == TypeDocument:
		return Doc(NewDocument()), true
	case t == TypeArray:
		return Array(), true
	case t == TypeBinary:
		return Binary(nil), true
	case t == TypeObjectID:
		return OID(ObjectID{}), true
	case t == TypeGuid:
		return Guid(uuid.Nil), true
	case t == TypeBoolean:
		return Bool(false), true
	default:
		return Value{}, false
	}
}
