package sfdb

import (
	"errors"
	"testing"
)

func TestChangeFlags_Contains(t *testing.T) {
	f := ChangeFlagNotify | ChangeFlagIncludeDoc
	if !f.Contains(ChangeFlagNotify) || !f.ContainsAny(ChangeFlagIncludeDoc|ChangeFlagIncludeOldDoc) {
		t.Fatalf("Contains/ContainsAny returned unexpected values for %v", f)
	}
	if f.Contains(ChangeFlagIncludeOldDoc) || f.ContainsAny(0) {
		t.Fatalf("Contains/ContainsAny returned unexpected values for %v", f)
	}

	if OpInsert.String() != "insert" || OpUpdate.String() != "update" || OpDelete.String() != "delete" || OpNone.String() != "none" {
		t.Fatalf("unexpected Op.String values")
	}
	if got := Op(999).String(); got != "invalid op 999" {
		t.Fatalf("unexpected Op(999).String() = %q", got)
	}
}

func TestDB_OnChange(t *testing.T) {
	db := setupMemory(t, "")

	var full, brief []*Change
	db.OnChange(map[string]ChangeFlags{
		"people": ChangeFlagNotify | ChangeFlagIncludeDoc | ChangeFlagIncludeOldDoc,
	}, func(chg *Change) {
		// the write lock is already released
		deepEqual(t, db.locker.State(), Unlocked)
		full = append(full, chg)
	})
	db.OnChange(map[string]ChangeFlags{
		"people": ChangeFlagNotify,
		"other":  ChangeFlagIncludeDoc,
	}, func(chg *Change) {
		brief = append(brief, chg)
	})

	must(db.Insert("people", NewDocument(IDField, 1, "name", "foo")))
	must(db.Update("people", NewDocument(IDField, 1, "name", "bar")))
	must(db.Delete("people", Int32(1)))
	must(db.Insert("other", NewDocument(IDField, 1)))

	var ops []string
	for _, chg := range full {
		ops = append(ops, chg.String())
	}
	deepEqual(t, ops, []string{"insert people/1", "update people/1", "delete people/1"})

	if !full[0].HasDoc() || full[0].HasOldDoc() || full[0].Doc().String() != `{"_id":1,"name":"foo"}` {
		t.Fatalf("change[0] fields not set as expected: %v", full[0])
	}
	if full[1].Doc().String() != `{"_id":1,"name":"bar"}` || full[1].OldDoc().String() != `{"_id":1,"name":"foo"}` {
		t.Fatalf("change[1] fields not set as expected: %v", full[1])
	}
	if full[2].HasDoc() || !full[2].HasOldDoc() || full[2].Collection() != "people" || full[2].Op() != OpDelete {
		t.Fatalf("change[2] fields not set as expected: %v", full[2])
	}
	deepEqual(t, full[2].ID().AsInt32(), int32(1))

	deepEqual(t, len(brief), 3)
	for _, chg := range brief {
		if chg.HasDoc() || chg.HasOldDoc() {
			t.Errorf("%v: documents included without flags", chg)
		}
	}
}

func TestDB_OnChangeRollback(t *testing.T) {
	db := setupMemory(t, "")
	must(db.EnsureIndex("people", "email", "email", true))

	var got []*Change
	db.OnChange(map[string]ChangeFlags{"people": ChangeFlagNotify}, func(chg *Change) {
		got = append(got, chg)
	})

	_, err := db.InsertMany("people",
		NewDocument(IDField, 1, "email", "a@example.com"),
		NewDocument(IDField, 2, "email", "a@example.com"),
	)
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("err = %v, wanted ErrDuplicateKey", err)
	}
	isempty(t, got)

	must(db.InsertMany("people",
		NewDocument(IDField, 1, "email", "a@example.com"),
		NewDocument(IDField, 2, "email", "b@example.com"),
	))
	deepEqual(t, len(got), 2)

	deepEqual(t, must(db.DeleteMany("people", nil)), 2)
	deepEqual(t, len(got), 4)
	deepEqual(t, got[3].Op(), OpDelete)
}
