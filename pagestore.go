package sfdb

import (
	"fmt"
	"log/slog"
	"math"
)

// PageStore owns index nodes and documents and hands out their addresses.
// Nodes returned by GetNode are shared: callers clone before modifying and
// write back with UpdateNode.
type PageStore interface {
	GetNode(addr PageAddress) (*IndexNode, error)
	// AddNode allocates an address for n, stores it and sets n.Position.
	AddNode(n *IndexNode) (PageAddress, error)
	UpdateNode(n *IndexNode) error
	DeleteNode(addr PageAddress) error

	GetDocument(addr PageAddress) (*Document, error)
	AddDocument(doc *Document) (PageAddress, error)
	UpdateDocument(addr PageAddress, doc *Document) error
	DeleteDocument(addr PageAddress) error
}

const (
	bucketNodes   = "nodes"
	bucketData    = "data"
	bucketCatalog = "catalog"
	bucketMeta    = "meta"
)

// slotsPerPage splits the allocation sequence into PageID and Index.
const slotsPerPage = 1 << 8

// pageTx is the PageStore of a single storage transaction.
type pageTx struct {
	stx     storageTx
	nodes   storageBucket
	data    storageBucket
	catalog storageBucket
	meta    storageBucket
	cache   *nodeCache
	utcDate bool
	log     *Logger

	evicted int

	trackChanges bool
	changes      []*Change
}

var _ PageStore = (*pageTx)(nil)

func newPageTx(stx storageTx, cache *nodeCache, utcDate bool, log *Logger) *pageTx {
	return &pageTx{
		stx:     stx,
		nodes:   stx.Bucket(bucketNodes),
		data:    stx.Bucket(bucketData),
		catalog: stx.Bucket(bucketCatalog),
		meta:    stx.Bucket(bucketMeta),
		cache:   cache,
		utcDate: utcDate,
		log:     log,
	}
}

// bootstrap creates the buckets of an empty file.
func (tx *pageTx) bootstrap() error {
	var err error
	if tx.nodes, err = tx.stx.CreateBucket(bucketNodes); err != nil {
		return err
	}
	if tx.data, err = tx.stx.CreateBucket(bucketData); err != nil {
		return err
	}
	if tx.catalog, err = tx.stx.CreateBucket(bucketCatalog); err != nil {
		return err
	}
	if tx.meta, err = tx.stx.CreateBucket(bucketMeta); err != nil {
		return err
	}
	return nil
}

func (tx *pageTx) bootstrapped() bool {
	return tx.nodes != nil && tx.data != nil && tx.catalog != nil && tx.meta != nil
}

func (tx *pageTx) writable() bool {
	return tx.stx.Writable()
}

func (tx *pageTx) allocate() (PageAddress, error) {
	if tx.meta == nil || !tx.writable() {
		return EmptyAddress, ErrReadOnly
	}
	seq, err := tx.meta.NextSequence()
	if err != nil {
		return EmptyAddress, err
	}
	page := seq / slotsPerPage
	if page >= math.MaxUint32 {
		return EmptyAddress, ErrFileSizeLimit
	}
	return PageAddress{PageID: uint32(page), Index: uint16(seq % slotsPerPage)}, nil
}

func (tx *pageTx) GetNode(addr PageAddress) (*IndexNode, error) {
	if !tx.writable() {
		if n, ok := tx.cache.get(addr); ok {
			return n, nil
		}
	}
	if tx.nodes == nil {
		return nil, &CorruptionError{Addr: addr, What: "index node"}
	}
	data := tx.nodes.Get(addr.key())
	if data == nil {
		return nil, &CorruptionError{Addr: addr, What: "index node"}
	}
	n, err := decodeNode(addr, data, tx.utcDate)
	if err != nil {
		tx.log.WriteAttrs(LogError, "undecodable index node", slog.String("addr", addr.String()), hexAttr("data", data))
		return nil, fmt.Errorf("node %v: %w", addr, err)
	}
	if !tx.writable() {
		tx.cache.put(n)
	}
	return n, nil
}

func (tx *pageTx) AddNode(n *IndexNode) (PageAddress, error) {
	addr, err := tx.allocate()
	if err != nil {
		return EmptyAddress, err
	}
	n.Position = addr
	if err := tx.nodes.Put(addr.key(), encodeNode(n)); err != nil {
		return EmptyAddress, err
	}
	return addr, nil
}

func (tx *pageTx) UpdateNode(n *IndexNode) error {
	if tx.nodes == nil || tx.nodes.Get(n.Position.key()) == nil {
		return &CorruptionError{Addr: n.Position, What: "index node"}
	}
	tx.evict(n.Position)
	return tx.nodes.Put(n.Position.key(), encodeNode(n))
}

func (tx *pageTx) DeleteNode(addr PageAddress) error {
	if tx.nodes == nil || tx.nodes.Get(addr.key()) == nil {
		return &CorruptionError{Addr: addr, What: "index node"}
	}
	tx.evict(addr)
	return tx.nodes.Delete(addr.key())
}

func (tx *pageTx) evict(addr PageAddress) {
	if tx.cache != nil {
		tx.cache.evict(addr)
		tx.evicted++
	}
}

func (tx *pageTx) GetDocument(addr PageAddress) (*Document, error) {
	if tx.data == nil {
		return nil, &CorruptionError{Addr: addr, What: "document"}
	}
	data := tx.data.Get(addr.key())
	if data == nil {
		return nil, &CorruptionError{Addr: addr, What: "document"}
	}
	doc, err := decodeDocumentRecord(data, tx.utcDate)
	if err != nil {
		tx.log.WriteAttrs(LogError, "undecodable document", slog.String("addr", addr.String()), hexAttr("data", data))
		return nil, fmt.Errorf("document %v: %w", addr, err)
	}
	return doc, nil
}

func (tx *pageTx) AddDocument(doc *Document) (PageAddress, error) {
	addr, err := tx.allocate()
	if err != nil {
		return EmptyAddress, err
	}
	if err := tx.data.Put(addr.key(), encodeDocumentRecord(doc)); err != nil {
		return EmptyAddress, err
	}
	return addr, nil
}

func (tx *pageTx) UpdateDocument(addr PageAddress, doc *Document) error {
	if tx.data == nil || tx.data.Get(addr.key()) == nil {
		return &CorruptionError{Addr: addr, What: "document"}
	}
	return tx.data.Put(addr.key(), encodeDocumentRecord(doc))
}

func (tx *pageTx) DeleteDocument(addr PageAddress) error {
	if tx.data == nil || tx.data.Get(addr.key()) == nil {
		return &CorruptionError{Addr: addr, What: "document"}
	}
	return tx.data.Delete(addr.key())
}

// commit commits the storage transaction, enforcing limitSize when positive.
func (tx *pageTx) commit(limitSize int64) error {
	if limitSize > 0 {
		if size := tx.stx.Size(); size > limitSize {
			tx.stx.Rollback()
			return fmt.Errorf("%w: %d bytes, limit %d", ErrFileSizeLimit, size, limitSize)
		}
	}
	if err := tx.stx.Commit(); err != nil {
		return err
	}
	if tx.evicted > 0 {
		tx.log.Write(LogCache, "evicted %d nodes", tx.evicted)
		tx.cache.settle()
	}
	return nil
}

func (tx *pageTx) rollback() {
	ensure(tx.stx.Rollback())
}
