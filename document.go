package sfdb

import (
	"slices"
	"strconv"
	"strings"
)

// IDField is the name of the primary key field of every stored document.
const IDField = "_id"

type Field struct {
	Name  string
	Value Value
}

// Document is an ordered set of named values. Documents are built with
// NewDocument and Set; once a document has been handed to the store or
// wrapped into a Value it must not be modified.
type Document struct {
	fields []Field
}

// NewDocument builds a document from alternating names and values, converting
// values with ValueOf:
//
//	NewDocument("_id", 1, "name", "John", "tags", []any{"a", "b"})
func NewDocument(kv ...any) *Document {
	if len(kv)%2 != 0 {
		panic("sfdb.NewDocument: odd number of arguments")
	}
	doc := &Document{fields: make([]Field, 0, len(kv)/2)}
	for i := 0; i < len(kv); i += 2 {
		name, ok := kv[i].(string)
		if !ok {
			panic("sfdb.NewDocument: field name must be a string")
		}
		doc.Set(name, ValueOf(kv[i+1]))
	}
	return doc
}

// Set adds or replaces a field and returns doc for chaining.
func (doc *Document) Set(name string, v Value) *Document {
	for i := range doc.fields {
		if doc.fields[i].Name == name {
			doc.fields[i].Value = v
			return doc
		}
	}
	doc.fields = append(doc.fields, Field{name, v})
	return doc
}

func (doc *Document) Remove(name string) bool {
	for i := range doc.fields {
		if doc.fields[i].Name == name {
			doc.fields = slices.Delete(doc.fields, i, i+1)
			return true
		}
	}
	return false
}

func (doc *Document) Get(name string) (Value, bool) {
	if doc == nil {
		return Value{}, false
	}
	for _, f := range doc.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// ID returns the _id field, or Null if it is missing.
func (doc *Document) ID() Value {
	v, _ := doc.Get(IDField)
	return v
}

func (doc *Document) Len() int {
	if doc == nil {
		return 0
	}
	return len(doc.fields)
}

// Fields returns the fields in insertion order. The slice must not be modified.
func (doc *Document) Fields() []Field {
	if doc == nil {
		return nil
	}
	return doc.fields
}

func (doc *Document) Keys() []string {
	keys := make([]string, len(doc.Fields()))
	for i, f := range doc.Fields() {
		keys[i] = f.Name
	}
	return keys
}

// Clone returns a shallow copy that can be modified independently.
func (doc *Document) Clone() *Document {
	return &Document{fields: slices.Clone(doc.Fields())}
}

func (doc *Document) String() string {
	var buf strings.Builder
	doc.format(&buf)
	return buf.String()
}

func (doc *Document) format(buf *strings.Builder) {
	buf.WriteByte('{')
	for i, f := range doc.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(f.Name))
		buf.WriteByte(':')
		f.Value.format(buf)
	}
	buf.WriteByte('}')
}
