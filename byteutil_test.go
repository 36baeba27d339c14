package sfdb

import (
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestByteWriterReader_RoundTrip(t *testing.T) {
	guid := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	oid := must(ParseObjectID("65f1c0de0102030405060708"))
	now := time.Date(2024, 3, 1, 12, 30, 45, 123456700, time.UTC)

	w := NewByteWriter(make([]byte, 128))
	w.Byte(0x7F)
	w.Bool(true)
	w.UInt16(0xBEEF)
	w.UInt32(0xDEADBEEF)
	w.UInt64(math.MaxUint64)
	w.Int16(-2)
	w.Int32(math.MinInt32)
	w.Int64(math.MinInt64)
	w.Float(1.5)
	w.Double(-0.25)
	w.Decimal(MaxDecimal)
	w.PrefixedString("héllo")
	w.FixedString("abc", 3)
	w.DateTime(now)
	w.Guid(guid)
	w.ObjectID(oid)
	w.PageAddress(PageAddress{7, 9})
	n := w.Position()

	r := NewByteReader(w.Bytes())
	r.UTCDate = true
	deepEqual(t, must(r.Byte()), byte(0x7F))
	deepEqual(t, must(r.Bool()), true)
	deepEqual(t, must(r.UInt16()), uint16(0xBEEF))
	deepEqual(t, must(r.UInt32()), uint32(0xDEADBEEF))
	deepEqual(t, must(r.UInt64()), uint64(math.MaxUint64))
	deepEqual(t, must(r.Int16()), int16(-2))
	deepEqual(t, must(r.Int32()), int32(math.MinInt32))
	deepEqual(t, must(r.Int64()), int64(math.MinInt64))
	deepEqual(t, must(r.Float()), float32(1.5))
	deepEqual(t, must(r.Double()), -0.25)
	deepEqual(t, must(r.Decimal()), MaxDecimal)
	deepEqual(t, must(r.PrefixedString()), "héllo")
	deepEqual(t, must(r.FixedString(3)), "abc")
	if got := must(r.DateTime()); !got.Equal(now) || got.Location() != time.UTC {
		t.Errorf("DateTime = %v, wanted %v in UTC", got, now)
	}
	deepEqual(t, must(r.Guid()), guid)
	deepEqual(t, must(r.ObjectID()), oid)
	deepEqual(t, must(r.PageAddress()), PageAddress{7, 9})
	deepEqual(t, r.Position(), n)
	deepEqual(t, r.Remaining(), 0)
}

func TestByteReader_Overrun(t *testing.T) {
	r := NewByteReader([]byte{1, 2, 3})
	if _, err := r.Int32(); !isDataError(err) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Int32 on 3 bytes: err = %v, wanted *DataError wrapping io.ErrUnexpectedEOF", err)
	}
	deepEqual(t, r.Position(), 0)

	// length prefix says 10, only 2 bytes follow
	w := NewByteWriter(make([]byte, 6))
	w.Int32(10)
	w.Raw([]byte("ab"))
	r = NewByteReader(w.Bytes())
	if _, err := r.PrefixedString(); !isDataError(err) {
		t.Fatalf("PrefixedString overrun: err = %v, wanted *DataError", err)
	}
	deepEqual(t, r.Position(), 0)

	if _, err := NewByteReader([]byte{0xFF, 0xFE}).FixedString(2); !isDataError(err) {
		t.Fatalf("FixedString(invalid utf-8): err = %v, wanted *DataError", err)
	}
}

func TestByteWriter_OverflowPanics(t *testing.T) {
	w := NewByteWriter(make([]byte, 3))
	assertPanics(t, "overflow", func() { w.Int32(1) })
}

func TestDateTime_Ticks(t *testing.T) {
	epoch := time.Unix(0, 0).UTC()
	deepEqual(t, timeToTicks(epoch), int64(ticksAtUnixEpoch))
	deepEqual(t, ticksToTime(ticksAtUnixEpoch), epoch)

	local := time.Date(2001, 2, 3, 4, 5, 6, 700, time.FixedZone("X", 3*3600))
	w := NewByteWriter(make([]byte, 8))
	w.DateTime(local)
	got := must(NewByteReader(w.Bytes()).DateTime())
	if !got.Equal(local) {
		t.Errorf("DateTime = %v, wanted %v", got, local)
	}
	if got.Location() != time.Local {
		t.Errorf("DateTime location = %v, wanted Local", got.Location())
	}
}

func TestDateTime_Clamp(t *testing.T) {
	deepEqual(t, timeToTicks(MinDateTime), int64(0))
	deepEqual(t, timeToTicks(MaxDateTime), int64(3_155_378_975_999_999_999))

	far := time.Date(50000, 1, 1, 0, 0, 0, 0, time.UTC)
	deepEqual(t, timeToTicks(far), timeToTicks(MaxDateTime))
	deepEqual(t, timeToTicks(time.Date(-50000, 1, 1, 0, 0, 0, 0, time.UTC)), int64(0))

	v := DateTime(far)
	if !v.AsDateTime().Equal(MaxDateTime) {
		t.Fatalf("DateTime(%v) = %v, wanted %v", far, v.AsDateTime(), MaxDateTime)
	}
	r := NewByteReader(EncodeValue(v))
	r.UTCDate = true
	got := must(r.Value(0))
	if !got.AsDateTime().Equal(MaxDateTime) {
		t.Errorf("decoded %v, wanted %v", got.AsDateTime(), MaxDateTime)
	}
}

func isDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
