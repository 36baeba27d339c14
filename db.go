package sfdb

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
)

const trackOps = true

// DB is an open data file.
type DB struct {
	cs     *ConnectionString
	locker *Locker
	cache  *nodeCache
	log    *Logger
	closed atomic.Bool

	// store is replaced by the locker hooks in shared mode, and only
	// accessed while a lock is held.
	store storage

	rndLock sync.Mutex
	rnd     *rand.Rand

	lastSize    atomic.Int64
	ReaderCount atomic.Int64
	WriterCount atomic.Int64
	ReadCount   atomic.Uint64
	WriteCount  atomic.Uint64

	ops     []*op
	opsLock sync.Mutex

	subs     []*changeSub
	subsLock sync.Mutex
}

type Options struct {
	// Logger receives the messages enabled by the "log" connection string
	// key. Defaults to slog.Default().
	Logger *slog.Logger

	// Rand drives skip-list level selection. Defaults to a randomly seeded
	// PCG source.
	Rand *rand.Rand
}

// Open opens the database described by a connection string.
func Open(connStr string) (*DB, error) {
	return OpenWith(connStr, Options{})
}

func OpenWith(connStr string, opt Options) (*DB, error) {
	cs, err := ParseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	return OpenConnection(cs, opt)
}

// OpenConnection opens the database described by cs.
func OpenConnection(cs *ConnectionString, opt Options) (*DB, error) {
	if cs.Filename == "" {
		return nil, fmt.Errorf("sfdb: connection string has no filename")
	}
	if cs.Password != "" {
		return nil, fmt.Errorf("sfdb: %w: encrypted data files are not supported", ErrUnsupportedFormat)
	}

	var err error
	rnd := opt.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	db := &DB{
		cs:  cs,
		log: NewLogger(cs.Log, opt.Logger),
		rnd: rnd,
	}
	db.log.Write(LogCommand, "open %v", cs)

	db.cache, err = newNodeCache(cs.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("sfdb: cache: %w", err)
	}

	mode := cs.Mode
	switch {
	case cs.IsMemory():
		mode = ModeExclusive
		db.store = newMemStorage()
	case mode == ModeShared:
	default:
		bdb, err := openBolt(cs, mode == ModeReadOnly)
		if err != nil {
			db.cache.close()
			return nil, fmt.Errorf("sfdb: %w", err)
		}
		db.store = newBoltStorage(bdb)
	}

	db.locker = NewLocker(mode, cs.Filename+"-lock", cs.Timeout, db.log)
	db.locker.Invalidate = db.cache.clear
	if mode == ModeShared {
		db.locker.Acquired = db.attach
		db.locker.Released = db.detach
	}

	check := func(tx *pageTx) error {
		return tx.checkFormat(cs.Upgrade)
	}
	if mode == ModeReadOnly {
		err = db.read(check)
	} else {
		err = db.write(check)
	}
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
		return nil, err
	}
	return db, nil
}

// attach opens the data file when a shared-mode process takes the lock.
func (db *DB) attach(state LockState) error {
	if db.closed.Load() {
		return ErrClosed
	}
	bdb, err := openBolt(db.cs, state == LockRead)
	if err != nil {
		return err
	}
	db.store = newBoltStorage(bdb)
	db.log.Write(LogDisk, "attached %s for %v", db.cs.Filename, state)
	return nil
}

func (db *DB) detach(state LockState) error {
	if db.store == nil {
		return nil
	}
	err := db.store.Close()
	db.store = nil
	db.log.Write(LogDisk, "detached %s", db.cs.Filename)
	return err
}

func (db *DB) ConnectionString() *ConnectionString {
	return db.cs
}

// Size is the data size observed by the last committed write.
func (db *DB) Size() int64 {
	return db.lastSize.Load()
}

// Close releases the data file, the lock file and the cache. It waits up to
// the lock timeout for running operations to finish, and fails with
// ErrLockTimeout if they don't. Operations started after Close fail with
// ErrClosed.
func (db *DB) Close() error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.locker.drain(); err != nil {
		return fmt.Errorf("sfdb: close: %w", err)
	}
	defer db.locker.undrain()
	if db.closed.Swap(true) {
		return ErrClosed
	}
	var result *multierror.Error
	if db.store != nil {
		if err := db.store.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("data file: %w", err))
		}
		db.store = nil
	}
	if db.locker != nil {
		if err := db.locker.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("lock file: %w", err))
		}
	}
	db.cache.close()
	db.log.Write(LogCommand, "closed %s", db.cs.Filename)
	return result.ErrorOrNil()
}

type op struct {
	state     LockState
	startTime time.Time
	stack     string
}

func (db *DB) enter(state LockState) (*LockControl, *op, error) {
	if db.closed.Load() {
		return nil, nil, ErrClosed
	}
	lc, err := db.locker.Enter(state)
	if err != nil {
		return nil, nil, err
	}
	if lc.Changed {
		db.log.Write(LogCache, "node cache invalidated")
	}
	if db.store == nil {
		lc.Release()
		return nil, nil, ErrClosed
	}
	var o *op
	if trackOps {
		o = &op{state: state, startTime: time.Now(), stack: string(debug.Stack())}
		db.opsLock.Lock()
		db.ops = append(db.ops, o)
		db.opsLock.Unlock()
	}
	return lc, o, nil
}

func (db *DB) exit(lc *LockControl, o *op) error {
	if o != nil {
		db.opsLock.Lock()
		db.ops = slices.DeleteFunc(db.ops, func(x *op) bool { return x == o })
		db.opsLock.Unlock()
	}
	return lc.Release()
}

// write runs fn in a write transaction under the write lock. The
// transaction is rolled back when fn fails or panics. Change subscribers are
// notified after the lock is released.
func (db *DB) write(fn func(tx *pageTx) error) error {
	changes, err := db.writeLocked(fn)
	if err == nil && len(changes) > 0 {
		db.notify(changes)
	}
	return err
}

func (db *DB) writeLocked(fn func(tx *pageTx) error) (changes []*Change, err error) {
	lc, o, err := db.enter(LockWrite)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := db.exit(lc, o); rerr != nil {
			err = multierror.Append(err, rerr).ErrorOrNil()
		}
	}()
	db.WriterCount.Add(1)
	defer db.WriterCount.Add(-1)

	db.cache.settle()
	stx, err := db.store.BeginTx(true)
	if err != nil {
		return nil, err
	}
	tx := newPageTx(stx, db.cache, db.cs.UTC, db.log)
	tx.trackChanges = len(db.subscribers()) > 0
	if err := safelyCall(fn, tx); err != nil {
		tx.rollback()
		return nil, err
	}
	size := stx.Size()
	if err := tx.commit(db.cs.LimitSize); err != nil {
		return nil, err
	}
	lc.MarkWritten()
	db.lastSize.Store(size)
	db.WriteCount.Add(1)
	return tx.changes, nil
}

// read runs fn in a read transaction under the read lock. fn may yield to
// the caller, so panics are not intercepted.
func (db *DB) read(fn func(tx *pageTx) error) (err error) {
	lc, o, err := db.enter(LockRead)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := db.exit(lc, o); rerr != nil {
			err = multierror.Append(err, rerr).ErrorOrNil()
		}
	}()
	db.ReaderCount.Add(1)
	defer db.ReaderCount.Add(-1)

	stx, err := db.store.BeginTx(false)
	if err != nil {
		return err
	}
	tx := newPageTx(stx, db.cache, db.cs.UTC, db.log)
	defer tx.rollback()
	db.ReadCount.Add(1)
	return fn(tx)
}

// writeCollection opens (creating if needed) the collection and saves its
// catalog record after fn succeeds.
func (db *DB) writeCollection(name string, create bool, fn func(c *collection) error) error {
	return db.write(func(tx *pageTx) error {
		db.rndLock.Lock()
		defer db.rndLock.Unlock()
		c, err := tx.openCollection(name, create, db.rnd)
		if err != nil {
			return err
		}
		if c == nil {
			return nil
		}
		if err := fn(c); err != nil {
			return err
		}
		return c.save()
	})
}

func (db *DB) readCollection(name string, fn func(c *collection) error) error {
	return db.read(func(tx *pageTx) error {
		c, err := tx.openCollection(name, false, nil)
		if err != nil || c == nil {
			return err
		}
		return fn(c)
	})
}

// Insert stores doc in the collection, creating the collection if needed,
// and returns its _id. A missing or null _id is replaced with a new
// ObjectID; doc itself is not modified.
func (db *DB) Insert(col string, doc *Document) (Value, error) {
	var id Value
	err := db.writeCollection(col, true, func(c *collection) error {
		var err error
		id, err = c.insert(doc)
		return err
	})
	return id, err
}

// InsertMany inserts all documents in a single transaction. Either all of
// them are stored or none.
func (db *DB) InsertMany(col string, docs ...*Document) ([]Value, error) {
	ids := make([]Value, 0, len(docs))
	err := db.writeCollection(col, true, func(c *collection) error {
		for _, doc := range docs {
			id, err := c.insert(doc)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update replaces the document with the same _id. It returns false if there
// is no such document.
func (db *DB) Update(col string, doc *Document) (bool, error) {
	var found bool
	err := db.writeCollection(col, false, func(c *collection) error {
		var err error
		found, err = c.update(doc)
		return err
	})
	return found, err
}

// Delete removes the document with the given _id.
func (db *DB) Delete(col string, id Value) (bool, error) {
	var found bool
	err := db.writeCollection(col, false, func(c *collection) error {
		var err error
		found, err = c.delete(id)
		return err
	})
	return found, err
}

// DeleteMany removes every document matching q and returns their count; nil
// q removes all documents.
func (db *DB) DeleteMany(col string, q Query) (int, error) {
	if q == nil {
		q = All(IDField, Ascending)
	}
	var n int
	err := db.writeCollection(col, false, func(c *collection) error {
		var ids []Value
		for doc, err := range c.match(q) {
			if err != nil {
				return err
			}
			ids = append(ids, doc.ID())
		}
		for _, id := range ids {
			ok, err := c.delete(id)
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
	return n, err
}

// FindByID returns the document with the given _id, or nil.
func (db *DB) FindByID(col string, id Value) (*Document, error) {
	var doc *Document
	err := db.readCollection(col, func(c *collection) error {
		var err error
		doc, _, err = c.lookup(id)
		return err
	})
	return doc, err
}

type FindOptions struct {
	Skip  int
	Limit int // zero means no limit

	// Order of the _id scan used when the query is nil.
	Order Direction
}

var errStopIteration = errors.New("stop iteration")

// Find returns the documents matching q; nil q matches every document. The
// read lock is held while the sequence is being iterated and released when
// iteration ends, including early exit. Writing to the same database from
// inside the loop waits for that lock and fails with ErrLockTimeout.
func (db *DB) Find(col string, q Query, opt FindOptions) iter.Seq2[*Document, error] {
	return func(yield func(*Document, error) bool) {
		err := db.readCollection(col, func(c *collection) error {
			query := q
			if query == nil {
				order := opt.Order
				if order == 0 {
					order = Ascending
				}
				query = All(IDField, order)
			}
			skip, n := opt.Skip, 0
			for doc, err := range c.match(query) {
				if err != nil {
					return err
				}
				if skip > 0 {
					skip--
					continue
				}
				if !yield(doc, nil) {
					return errStopIteration
				}
				n++
				if opt.Limit > 0 && n >= opt.Limit {
					return nil
				}
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopIteration) {
			yield(nil, err)
		}
	}
}

// FindAll collects the results of Find.
func (db *DB) FindAll(col string, q Query, opt FindOptions) ([]*Document, error) {
	var docs []*Document
	for doc, err := range db.Find(col, q, opt) {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Count returns the number of documents matching q; nil q counts all.
func (db *DB) Count(col string, q Query) (int, error) {
	var n int
	err := db.readCollection(col, func(c *collection) error {
		if q == nil {
			var err error
			n, err = c.ix.Count(c.PrimaryKey())
			return err
		}
		for _, err := range c.match(q) {
			if err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// Exists reports whether any document matches q.
func (db *DB) Exists(col string, q Query) (bool, error) {
	for _, err := range db.Find(col, q, FindOptions{Limit: 1}) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// EnsureIndex creates an index on expr and indexes the existing documents.
// It returns false if the same index already exists.
func (db *DB) EnsureIndex(col, name, expr string, unique bool) (bool, error) {
	var created bool
	err := db.writeCollection(col, true, func(c *collection) error {
		var err error
		created, err = c.ensureIndex(name, expr, unique)
		return err
	})
	return created, err
}

func (db *DB) DropIndex(col, name string) error {
	found := false
	err := db.writeCollection(col, false, func(c *collection) error {
		found = true
		return c.dropIndex(name)
	})
	if err == nil && !found {
		err = fmt.Errorf("collection %s: %w", col, ErrNotFound)
	}
	return err
}

// DropCollection deletes the collection with its documents and indexes.
func (db *DB) DropCollection(col string) (bool, error) {
	var found bool
	err := db.write(func(tx *pageTx) error {
		c, err := tx.openCollection(col, false, nil)
		if err != nil || c == nil {
			return err
		}
		found = true
		return c.drop()
	})
	return found, err
}

func (db *DB) CollectionNames() ([]string, error) {
	var names []string
	err := db.read(func(tx *pageTx) error {
		var err error
		names, err = tx.collectionNames()
		return err
	})
	return names, err
}

// Indexes returns copies of the index definitions of a collection, the _id
// index first.
func (db *DB) Indexes(col string) ([]CollectionIndex, error) {
	var result []CollectionIndex
	err := db.readCollection(col, func(c *collection) error {
		for _, idx := range c.meta.Indexes {
			result = append(result, *idx)
		}
		return nil
	})
	return result, err
}

// DescribeOpenOps lists the operations currently holding a lock, which helps
// to find a Find sequence that was never drained.
func (db *DB) DescribeOpenOps() string {
	if !trackOps {
		return "OPEN OPERATION TRACKING DISABLED"
	}

	db.opsLock.Lock()
	ops := slices.Clone(db.ops)
	db.opsLock.Unlock()

	if len(ops) == 0 {
		return "NO OPEN OPERATIONS"
	}

	slices.SortFunc(ops, func(a, b *op) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN OPERATIONS:\n", len(ops))
	for _, o := range ops {
		ms := now.Sub(o.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%v, open for %d ms\n", o.state, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%v, open for %d ms:\n%s", o.state, ms, o.stack)
		}
	}

	return buf.String()
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*pageTx) error, tx *pageTx) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(tx)
}
