package sfdb

import (
	"errors"
	"strings"
	"testing"
)

func TestNodeRecord_RoundTrip(t *testing.T) {
	for _, key := range []Value{MinValue(), MaxValue(), Int32(5), String("abc"), String(""), Doc(NewDocument("a", 1))} {
		n := newIndexNode(key, PageAddress{1, 2}, 3)
		n.Position = PageAddress{9, 9}
		n.Prev = []PageAddress{{0, 1}, {0, 2}, {0, 3}}
		n.Next = []PageAddress{{4, 1}, {4, 2}, EmptyAddress}

		data := encodeNode(n)
		deepEqual(t, len(data), nodeRecordSize(3, ValueLength(key)))

		got, err := decodeNode(n.Position, data, true)
		if err != nil {
			t.Fatalf("decodeNode(%v) failed: %v", key, err)
		}
		if Compare(got.Key, key) != 0 || got.Key.Type() != key.Type() {
			t.Errorf("key = %v, wanted %v", got.Key, key)
		}
		got.Key = key
		deepEqual(t, got, n)
	}
}

func TestNodeRecord_Errors(t *testing.T) {
	n := newIndexNode(String("abc"), PageAddress{1, 2}, 2)
	data := encodeNode(n)

	t.Run("truncated", func(t *testing.T) {
		_, err := decodeNode(PageAddress{}, data[:len(data)-1], false)
		if !isDataError(err) {
			t.Fatalf("err = %v, wanted *DataError", err)
		}
	})
	t.Run("trailing", func(t *testing.T) {
		_, err := decodeNode(PageAddress{}, append(data, 0), false)
		if !isDataError(err) {
			t.Fatalf("err = %v, wanted *DataError", err)
		}
	})
	t.Run("levels", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[0] = MaxLevels + 1
		_, err := decodeNode(PageAddress{}, bad, false)
		if !errors.Is(err, ErrCorrupted) {
			t.Fatalf("err = %v, wanted ErrCorrupted", err)
		}
	})
	t.Run("key too long", func(t *testing.T) {
		big := newIndexNode(String(strings.Repeat("x", MaxIndexKeyLength+1)), PageAddress{}, 1)
		assertPanics(t, "index key", func() { encodeNode(big) })
	})
}

func TestDocumentRecord(t *testing.T) {
	doc := NewDocument("_id", 1, "name", "John")
	got := must(decodeDocumentRecord(encodeDocumentRecord(doc), false))
	deepEqual(t, got.String(), doc.String())

	_, err := decodeDocumentRecord(EncodeValue(Int32(1)), false)
	if !errors.Is(err, ErrCorrupted) {
		t.Fatalf("err = %v, wanted ErrCorrupted", err)
	}
}
