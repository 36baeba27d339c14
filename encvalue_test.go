package sfdb

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func sampleValues() []Value {
	return []Value{
		Null(),
		MinValue(),
		MaxValue(),
		Int32(math.MinInt32),
		Int32(42),
		Int64(math.MaxInt64),
		Double(-1.25),
		Double(math.Inf(1)),
		Dec(MaxDecimal),
		Dec(MinDecimal),
		Dec(MustParseDecimal("-123.4500")),
		String(""),
		String("héllo, world"),
		Binary(nil),
		Binary([]byte{0, 1, 2, 0xFF}),
		OID(must(ParseObjectID("65f1c0de0102030405060708"))),
		Guid(uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")),
		Bool(false),
		Bool(true),
		DateTime(time.Date(2020, 1, 2, 3, 4, 5, 600, time.UTC)),
		Array(),
		Array(Int32(1), String("two"), Array(Null())),
		Doc(NewDocument()),
		Doc(NewDocument("_id", 1, "name", "John", "tags", []any{"a", "b"}, "addr", NewDocument("city", "Paris"))),
	}
}

func TestEncodeValue_RoundTrip(t *testing.T) {
	for _, v := range sampleValues() {
		t.Run(v.Type().String()+" "+v.String(), func(t *testing.T) {
			b := EncodeValue(v)
			deepEqual(t, b[0], byte(v.Type()))
			deepEqual(t, len(b), 1+ValueLength(v))

			got, err := DecodeValue(b, true)
			if err != nil {
				t.Fatalf("DecodeValue(%x) failed: %v", b, err)
			}
			deepEqual(t, got.Type(), v.Type())
			if Compare(got, v) != 0 {
				t.Errorf("** got %v, wanted %v", got, v)
			}
		})
	}
}

func TestValueLength_Fixed(t *testing.T) {
	tests := []struct {
		v Value
		n int
	}{
		{Null(), 0},
		{MinValue(), 0},
		{MaxValue(), 0},
		{Int32(1), 4},
		{Int64(1), 8},
		{Double(1), 8},
		{Dec(DecimalFromInt64(1)), 16},
		{OID(ObjectID{}), 12},
		{Guid(uuid.Nil), 16},
		{Bool(true), 1},
		{DateTime(time.Unix(0, 0)), 8},
		{String("abc"), 3},
		{Binary([]byte{1, 2}), 2},
		{String(""), 0},
		{Binary(nil), 0},
	}
	for _, tt := range tests {
		deepEqual(t, ValueLength(tt.v), tt.n)
	}
}

func TestDecodeValue_Errors(t *testing.T) {
	t.Run("unknown tag", func(t *testing.T) {
		_, err := DecodeValue([]byte{0x42, 1, 2}, false)
		if !isDataError(err) || !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("err = %v, wanted *DataError wrapping ErrUnsupportedFormat", err)
		}
	})
	t.Run("truncated int64", func(t *testing.T) {
		_, err := DecodeValue([]byte{byte(TypeInt64), 1, 2, 3}, false)
		if !isDataError(err) {
			t.Fatalf("err = %v, wanted *DataError", err)
		}
	})
	t.Run("trailing bytes", func(t *testing.T) {
		_, err := DecodeValue([]byte{byte(TypeBoolean), 1, 0}, false)
		if !isDataError(err) {
			t.Fatalf("err = %v, wanted *DataError", err)
		}
	})
	t.Run("empty", func(t *testing.T) {
		_, err := DecodeValue(nil, false)
		if !isDataError(err) {
			t.Fatalf("err = %v, wanted *DataError", err)
		}
	})
}

func TestByteReaderValue_ExternalLength(t *testing.T) {
	w := NewByteWriter(make([]byte, 1+5+1+4))
	w.Value(String("hello"))
	w.Value(Int32(7))
	r := NewByteReader(w.Bytes())

	v := must(r.Value(5))
	deepEqual(t, v.AsString(), "hello")
	v = must(r.Value(0)) // ignored for fixed-size types
	deepEqual(t, v.AsInt32(), int32(7))

	r = NewByteReader(w.Bytes())
	if _, err := r.Value(64); !isDataError(err) {
		t.Fatalf("Value(64): err = %v, wanted *DataError", err)
	}
	deepEqual(t, r.Position(), 0)
}

func TestDocumentPayload_FieldOrder(t *testing.T) {
	doc := NewDocument("b", 1, "a", 2, "_id", 3)
	got := must(DecodeValue(EncodeValue(Doc(doc)), false)).AsDocument()
	deepEqual(t, got.Keys(), []string{"b", "a", "_id"})
}
