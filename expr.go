package sfdb

import (
	"fmt"
	"iter"
	"strings"
)

// Expr is a field expression: it extracts zero or more values from a document.
// A predicate over an expression holds if it holds for any extracted value.
type Expr interface {
	Evaluate(doc *Document) iter.Seq[Value]
	String() string
}

// Path is a dotted field path like "address.city". A segment suffixed with
// "[*]" fans out over array items: "tags[*]" yields every tag, and
// "items[*].sku" yields the sku of every item. A leading "$." is accepted and
// ignored. Missing fields evaluate to a single Null, so documents without the
// field are indexed under Null.
type Path struct {
	src  string
	segs []pathSeg
}

type pathSeg struct {
	name   string
	fanout bool
}

var _ Expr = (*Path)(nil)

func ParsePath(s string) (*Path, error) {
	src := s
	s = strings.TrimPrefix(s, "$.")
	if s == "" || s == "$" {
		return nil, fmt.Errorf("invalid field path %q", src)
	}
	p := &Path{src: src}
	for _, part := range strings.Split(s, ".") {
		seg := pathSeg{name: part}
		if name, ok := strings.CutSuffix(part, "[*]"); ok {
			seg = pathSeg{name: name, fanout: true}
		}
		if seg.name == "" || strings.ContainsAny(seg.name, "[]") {
			return nil, fmt.Errorf("invalid field path %q", src)
		}
		p.segs = append(p.segs, seg)
	}
	return p, nil
}

func MustParsePath(s string) *Path {
	return must(ParsePath(s))
}

func (p *Path) String() string {
	return p.src
}

// Field returns the canonical field name used to look up a matching index.
func (p *Path) Field() string {
	return strings.TrimPrefix(p.src, "$.")
}

func (p *Path) Evaluate(doc *Document) iter.Seq[Value] {
	return func(yield func(Value) bool) {
		p.walk(Doc(doc), p.segs, yield)
	}
}

// walk yields the values reached from cur via segs. It reports false when the
// consumer stopped the iteration.
func (p *Path) walk(cur Value, segs []pathSeg, yield func(Value) bool) bool {
	if len(segs) == 0 {
		return yield(cur)
	}
	seg := segs[0]
	v, found := cur.AsDocument().Get(seg.name)
	if !cur.IsDocument() || !found {
		return yield(Null())
	}
	if !seg.fanout {
		return p.walk(v, segs[1:], yield)
	}
	if !v.IsArray() {
		return p.walk(v, segs[1:], yield)
	}
	for _, item := range v.AsArray() {
		if !p.walk(item, segs[1:], yield) {
			return false
		}
	}
	return true
}
