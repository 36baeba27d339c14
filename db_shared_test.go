//go:build unix

package sfdb

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestDB_SharedMode(t *testing.T) {
	cs := "filename=" + filepath.Join(t.TempDir(), "test.db") + ";mode=shared;timeout=1"
	a := must(Open(cs))
	t.Cleanup(func() { a.Close() })
	b := must(Open(cs))
	t.Cleanup(func() { b.Close() })

	must(a.EnsureIndex("people", "name", "name", false))
	must(a.InsertMany("people",
		NewDocument(IDField, 1, "name", "Ann"),
		NewDocument(IDField, 2, "name", "Bob"),
	))
	deepEqual(t, docIDs(must(b.FindAll("people", All("name", Ascending), FindOptions{}))), []string{"1", "2"})

	// b has cached the index nodes that a is about to rewrite
	must(a.Update("people", NewDocument(IDField, 1, "name", "Zed")))
	must(a.Insert("people", NewDocument(IDField, 3, "name", "Cat")))
	deepEqual(t, docIDs(must(b.FindAll("people", All("name", Ascending), FindOptions{}))), []string{"2", "3", "1"})

	must(b.Delete("people", Int32(2)))
	deepEqual(t, docIDs(must(a.FindAll("people", All("name", Descending), FindOptions{}))), []string{"1", "3"})

	// the data file is only open while a lock is held
	deepEqual(t, a.locker.State(), Unlocked)
	deepEqual(t, a.store == nil, true)
}

func TestDB_ExclusiveModeBusy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	a := must(Open("filename=" + path + ";timeout=0"))
	t.Cleanup(func() { a.Close() })
	must(a.Insert("n", NewDocument(IDField, 1)))

	for _, cs := range []string{
		"filename=" + path + ";timeout=0",
		"filename=" + path + ";timeout=00:00:00.1",
		"filename=" + path + ";timeout=0;mode=readonly",
	} {
		start := time.Now()
		_, err := Open(cs)
		var te *LockTimeoutError
		if !errors.As(err, &te) || !errors.Is(err, ErrLockTimeout) {
			t.Fatalf("Open(%q) err = %v, wanted *LockTimeoutError", cs, err)
		}
		if d := time.Since(start); d > 5*time.Second {
			t.Errorf("Open(%q) took %v", cs, d)
		}
	}

	ensure(a.Close())
	b := must(Open("filename=" + path + ";timeout=0"))
	deepEqual(t, must(b.Count("n", nil)), 1)
	ensure(b.Close())
}

func TestDB_SharedModeBusy(t *testing.T) {
	cs := "filename=" + filepath.Join(t.TempDir(), "test.db") + ";mode=shared;timeout=00:00:00.05"
	a := must(Open(cs))
	t.Cleanup(func() { a.Close() })
	b := must(Open(cs))
	t.Cleanup(func() { b.Close() })
	must(a.Insert("n", NewDocument(IDField, 1)))

	for range a.Find("n", nil, FindOptions{}) {
		if _, err := b.Insert("n", NewDocument(IDField, 2)); !errors.Is(err, ErrLockTimeout) {
			t.Fatalf("err = %v, wanted ErrLockTimeout", err)
		}
		deepEqual(t, must(b.Count("n", nil)), 1)
	}
	must(b.Insert("n", NewDocument(IDField, 2)))
	deepEqual(t, must(a.Count("n", nil)), 2)
}
