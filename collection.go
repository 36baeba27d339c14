package sfdb

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"slices"
	"strings"
)

// collection is a collection opened within a page transaction.
type collection struct {
	tx    *pageTx
	meta  *collectionMeta
	ix    *Indexer
	dirty bool
}

var _ Catalog = (*collection)(nil)

// openCollection loads the named collection. When it does not exist, it
// returns nil, or creates it (with its _id index) if create is set.
func (tx *pageTx) openCollection(name string, create bool, rnd *rand.Rand) (*collection, error) {
	meta, err := tx.loadCollection(name)
	if err != nil {
		return nil, err
	}
	ix := NewIndexer(tx, rnd)
	if meta != nil {
		return &collection{tx: tx, meta: meta, ix: ix}, nil
	}
	if !create {
		return nil, nil
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	pk, err := ix.CreateIndex(IDField, IDField, true)
	if err != nil {
		return nil, err
	}
	tx.log.Write(LogCommand, "create collection %s", name)
	meta = &collectionMeta{Name: name, Indexes: []*CollectionIndex{pk}}
	return &collection{tx: tx, meta: meta, ix: ix, dirty: true}, nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "\x00") || strings.HasPrefix(name, "$") {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}

func (c *collection) IndexFor(field string) *CollectionIndex {
	return c.meta.indexForField(field)
}

func (c *collection) PrimaryKey() *CollectionIndex {
	return c.meta.primaryKey()
}

// save persists the catalog record if indexes were added, dropped or grew.
func (c *collection) save() error {
	if !c.dirty {
		return nil
	}
	c.dirty = false
	return c.tx.saveCollection(c.meta)
}

// indexKeys returns the distinct values of expr in doc.
func indexKeys(idx *CollectionIndex, doc *Document) []Value {
	keys := slices.Collect(idx.Path().Evaluate(doc))
	slices.SortFunc(keys, Compare)
	return slices.CompactFunc(keys, Value.Equal)
}

func (c *collection) insertKeys(idx *CollectionIndex, doc *Document, addr PageAddress) error {
	before := idx.MaxLevel
	for _, key := range indexKeys(idx, doc) {
		if _, err := c.ix.Insert(idx, key, addr); err != nil {
			return indexErrf(c.meta.Name, idx.Name, key, err, "")
		}
	}
	if idx.MaxLevel != before {
		c.dirty = true
	}
	return nil
}

// deleteKeys removes the nodes pointing at addr for every key of doc.
func (c *collection) deleteKeys(idx *CollectionIndex, doc *Document, addr PageAddress) error {
	for _, key := range indexKeys(idx, doc) {
		var found *IndexNode
		for n, err := range equalNodes(c.ix, idx, key) {
			if err != nil {
				return err
			}
			if n.DataBlock == addr {
				found = n
				break
			}
		}
		if found == nil {
			return fmt.Errorf("%s.%s: %w: no node for %v -> %v", c.meta.Name, idx.Name, ErrCorrupted, key, addr)
		}
		if err := c.ix.Delete(found); err != nil {
			return err
		}
	}
	return nil
}

// withID returns doc with _id as its first field, generating an ObjectID when
// doc has no usable _id.
func withID(doc *Document) (*Document, Value, error) {
	id, ok := doc.Get(IDField)
	if ok && !id.IsNull() {
		if id.IsMinValue() || id.IsMaxValue() {
			return nil, Value{}, fmt.Errorf("invalid _id %v: %w", id, ErrInvalidIndexKey)
		}
		return doc, id, nil
	}
	id = OID(NewObjectID())
	out := &Document{fields: make([]Field, 0, doc.Len()+1)}
	out.fields = append(out.fields, Field{IDField, id})
	for _, f := range doc.Fields() {
		if f.Name != IDField {
			out.fields = append(out.fields, f)
		}
	}
	return out, id, nil
}

func (c *collection) insert(doc *Document) (Value, error) {
	doc, id, err := withID(doc)
	if err != nil {
		return Value{}, err
	}
	if err := checkStrings(Doc(doc)); err != nil {
		return Value{}, err
	}
	addr, err := c.tx.AddDocument(doc)
	if err != nil {
		return Value{}, err
	}
	for _, idx := range c.meta.Indexes {
		if err := c.insertKeys(idx, doc, addr); err != nil {
			return Value{}, err
		}
	}
	c.tx.recordChange(&Change{collection: c.meta.Name, op: OpInsert, id: id, doc: doc})
	return id, nil
}

// lookup finds the document with the given _id.
func (c *collection) lookup(id Value) (*Document, PageAddress, error) {
	node, err := c.ix.Find(c.PrimaryKey(), id, false, Ascending)
	if err != nil || node == nil {
		return nil, EmptyAddress, err
	}
	doc, err := c.tx.GetDocument(node.DataBlock)
	if err != nil {
		return nil, EmptyAddress, err
	}
	return doc, node.DataBlock, nil
}

func (c *collection) update(doc *Document) (bool, error) {
	id, ok := doc.Get(IDField)
	if !ok || id.IsNull() {
		return false, fmt.Errorf("update: document has no %s", IDField)
	}
	if err := checkStrings(Doc(doc)); err != nil {
		return false, err
	}
	old, addr, err := c.lookup(id)
	if err != nil || old == nil {
		return false, err
	}
	for _, idx := range c.meta.Indexes[1:] {
		if err := c.deleteKeys(idx, old, addr); err != nil {
			return false, err
		}
	}
	if err := c.tx.UpdateDocument(addr, doc); err != nil {
		return false, err
	}
	for _, idx := range c.meta.Indexes[1:] {
		if err := c.insertKeys(idx, doc, addr); err != nil {
			return false, err
		}
	}
	c.tx.recordChange(&Change{collection: c.meta.Name, op: OpUpdate, id: id, doc: doc, oldDoc: old})
	return true, nil
}

func (c *collection) deleteAt(doc *Document, addr PageAddress) error {
	for _, idx := range c.meta.Indexes {
		if err := c.deleteKeys(idx, doc, addr); err != nil {
			return err
		}
	}
	c.tx.recordChange(&Change{collection: c.meta.Name, op: OpDelete, id: doc.ID(), oldDoc: doc})
	return c.tx.DeleteDocument(addr)
}

func (c *collection) delete(id Value) (bool, error) {
	doc, addr, err := c.lookup(id)
	if err != nil || doc == nil {
		return false, err
	}
	return true, c.deleteAt(doc, addr)
}

// match runs q and yields each matching document, applying the document
// filter when the plan requires it. A non-nil error ends the sequence.
func (c *collection) match(q Query) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		exec := Run(q, c, c.ix)
		c.tx.log.Write(LogQuery, "%s: %v (index=%v filter=%v)", c.meta.Name, q, exec.UseIndex, exec.UseFilter)
		for node, err := range exec.Nodes {
			if err != nil {
				yield(nil, err)
				return
			}
			doc, err := c.tx.GetDocument(node.DataBlock)
			if err != nil {
				yield(nil, err)
				return
			}
			if exec.UseFilter && !q.FilterDocument(doc) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

// ensureIndex creates an index over expr and fills it from the existing
// documents. It returns false if an identical index already exists.
func (c *collection) ensureIndex(name, expr string, unique bool) (bool, error) {
	path, err := ParsePath(expr)
	if err != nil {
		return false, err
	}
	if existing := c.meta.index(name); existing != nil {
		if existing.Field() == path.Field() && existing.Unique == unique {
			return false, nil
		}
		return false, fmt.Errorf("index %s.%s already exists as %v", c.meta.Name, name, existing)
	}
	if other := c.meta.indexForField(path.Field()); other != nil {
		return false, fmt.Errorf("field %s.%s is already indexed by %s", c.meta.Name, path.Field(), other.Name)
	}

	idx, err := c.ix.CreateIndex(name, expr, unique)
	if err != nil {
		return false, err
	}
	for node, err := range c.ix.FindAll(c.PrimaryKey(), Ascending) {
		if err != nil {
			return false, err
		}
		doc, err := c.tx.GetDocument(node.DataBlock)
		if err != nil {
			return false, err
		}
		if err := c.insertKeys(idx, doc, node.DataBlock); err != nil {
			return false, err
		}
	}
	c.meta.Indexes = append(c.meta.Indexes, idx)
	c.dirty = true
	c.tx.log.Write(LogCommand, "create index %s.%v", c.meta.Name, idx)
	return true, nil
}

func (c *collection) dropIndex(name string) error {
	idx := c.meta.index(name)
	if idx == nil {
		return fmt.Errorf("index %s.%s: %w", c.meta.Name, name, ErrNotFound)
	}
	if idx == c.PrimaryKey() {
		return fmt.Errorf("cannot drop the %s index", IDField)
	}
	if err := c.ix.DropIndex(idx); err != nil {
		return err
	}
	c.meta.Indexes = slices.DeleteFunc(c.meta.Indexes, func(i *CollectionIndex) bool { return i == idx })
	c.dirty = true
	c.tx.log.Write(LogCommand, "drop index %s.%s", c.meta.Name, name)
	return nil
}

// drop deletes every document and index of the collection.
func (c *collection) drop() error {
	var addrs []PageAddress
	for node, err := range c.ix.FindAll(c.PrimaryKey(), Ascending) {
		if err != nil {
			return err
		}
		addrs = append(addrs, node.DataBlock)
	}
	for _, addr := range addrs {
		if err := c.tx.DeleteDocument(addr); err != nil {
			return err
		}
	}
	for _, idx := range c.meta.Indexes {
		if err := c.ix.DropIndex(idx); err != nil {
			return err
		}
	}
	c.dirty = false
	c.tx.log.Write(LogCommand, "drop collection %s (%d documents)", c.meta.Name, len(addrs))
	return c.tx.deleteCollection(c.meta.Name)
}
