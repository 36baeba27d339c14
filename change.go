package sfdb

import (
	"fmt"
	"slices"
)

type (
	// Change describes a document modified by a committed write.
	Change struct {
		collection string
		op         Op
		id         Value
		doc        *Document
		oldDoc     *Document
	}

	ChangeFlags uint64

	Op int
)

const (
	OpNone   Op = 0
	OpInsert Op = 1
	OpUpdate Op = 2
	OpDelete Op = 3
)

const (
	ChangeFlagNotify ChangeFlags = 1 << iota
	ChangeFlagIncludeDoc
	ChangeFlagIncludeOldDoc
)

func (chg *Change) Collection() string {
	return chg.collection
}
func (chg *Change) Op() Op {
	return chg.op
}
func (chg *Change) ID() Value {
	return chg.id
}
func (chg *Change) HasDoc() bool {
	return chg.doc != nil
}

// Doc is the document as stored by an insert or update.
func (chg *Change) Doc() *Document {
	return chg.doc
}
func (chg *Change) HasOldDoc() bool {
	return chg.oldDoc != nil
}

// OldDoc is the document replaced by an update or removed by a delete.
func (chg *Change) OldDoc() *Document {
	return chg.oldDoc
}

func (chg *Change) String() string {
	return fmt.Sprintf("%v %s/%v", chg.op, chg.collection, chg.id)
}

func (v ChangeFlags) Contains(f ChangeFlags) bool {
	return (v & f) == f
}
func (v ChangeFlags) ContainsAny(f ChangeFlags) bool {
	return (v & f) != 0
}

func (v Op) String() string {
	switch v {
	case OpNone:
		return "none"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("invalid op %d", int(v))
	}
}

type changeSub struct {
	cols map[string]ChangeFlags
	fn   func(chg *Change)
}

// OnChange registers fn to be called for every document changed in the
// given collections, once the write that changed it has committed and
// released its lock. Documents are included as requested by the flags of
// each collection. Writes rolled back never notify.
func (db *DB) OnChange(cols map[string]ChangeFlags, fn func(chg *Change)) {
	db.subsLock.Lock()
	defer db.subsLock.Unlock()
	db.subs = append(slices.Clip(db.subs), &changeSub{cols, fn})
}

func (db *DB) subscribers() []*changeSub {
	db.subsLock.Lock()
	defer db.subsLock.Unlock()
	return db.subs
}

func (db *DB) notify(changes []*Change) {
	for _, sub := range db.subscribers() {
		for _, chg := range changes {
			flags := sub.cols[chg.collection]
			if !flags.Contains(ChangeFlagNotify) {
				continue
			}
			c := &Change{collection: chg.collection, op: chg.op, id: chg.id}
			if flags.Contains(ChangeFlagIncludeDoc) {
				c.doc = chg.doc
			}
			if flags.Contains(ChangeFlagIncludeOldDoc) {
				c.oldDoc = chg.oldDoc
			}
			sub.fn(c)
		}
	}
}

// recordChange queues chg for delivery after commit when anyone listens.
func (tx *pageTx) recordChange(chg *Change) {
	if tx.trackChanges {
		tx.changes = append(tx.changes, chg)
	}
}
