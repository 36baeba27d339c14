package sfdb

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ticksAtUnixEpoch is the number of 100ns ticks between 0001-01-01 and
// 1970-01-01, both UTC.
const ticksAtUnixEpoch = 621355968000000000

// MinDateTime and MaxDateTime bound the instants a DateTime can hold:
// 0001-01-01 to the last tick of 9999-12-31, UTC.
var (
	MinDateTime = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)
	MaxDateTime = time.Date(9999, 12, 31, 23, 59, 59, 999_999_900, time.UTC)
)

func clampDateTime(t time.Time) time.Time {
	if t.Before(MinDateTime) {
		return MinDateTime
	}
	if t.After(MaxDateTime) {
		return MaxDateTime
	}
	return t
}

// ByteWriter writes little-endian primitives into a fixed-size buffer.
// Writing past the end of the buffer is a programming error and panics: callers
// size the buffer up front.
type ByteWriter struct {
	buf []byte
	pos int
}

func NewByteWriter(buf []byte) *ByteWriter {
	return &ByteWriter{buf: buf}
}

func (w *ByteWriter) Position() int { return w.pos }
func (w *ByteWriter) Len() int      { return len(w.buf) }
func (w *ByteWriter) Bytes() []byte { return w.buf[:w.pos] }

func (w *ByteWriter) reserve(n int) []byte {
	if w.pos+n > len(w.buf) {
		panic(fmt.Errorf("sfdb: ByteWriter overflow: writing %d bytes at %d into %d-byte buffer", n, w.pos, len(w.buf)))
	}
	b := w.buf[w.pos : w.pos+n]
	w.pos += n
	return b
}

func (w *ByteWriter) Skip(n int) {
	clear(w.reserve(n))
}

func (w *ByteWriter) Byte(v byte) {
	w.reserve(1)[0] = v
}

func (w *ByteWriter) Bool(v bool) {
	if v {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}

func (w *ByteWriter) UInt16(v uint16) { binary.LittleEndian.PutUint16(w.reserve(2), v) }
func (w *ByteWriter) UInt32(v uint32) { binary.LittleEndian.PutUint32(w.reserve(4), v) }
func (w *ByteWriter) UInt64(v uint64) { binary.LittleEndian.PutUint64(w.reserve(8), v) }
func (w *ByteWriter) Int16(v int16)   { w.UInt16(uint16(v)) }
func (w *ByteWriter) Int32(v int32)   { w.UInt32(uint32(v)) }
func (w *ByteWriter) Int64(v int64)   { w.UInt64(uint64(v)) }
func (w *ByteWriter) Float(v float32) { w.UInt32(math.Float32bits(v)) }
func (w *ByteWriter) Double(v float64) {
	w.UInt64(math.Float64bits(v))
}

func (w *ByteWriter) Decimal(v Decimal) {
	w.Int32(v.Lo)
	w.Int32(v.Mid)
	w.Int32(v.Hi)
	w.Int32(v.Flags)
}

func (w *ByteWriter) Raw(v []byte) {
	copy(w.reserve(len(v)), v)
}

// PrefixedString writes a 4-byte length followed by the UTF-8 bytes of v.
func (w *ByteWriter) PrefixedString(v string) {
	w.Int32(int32(len(v)))
	copy(w.reserve(len(v)), v)
}

// FixedString writes exactly length bytes of v. The length is not recorded;
// the reader must know it.
func (w *ByteWriter) FixedString(v string, length int) {
	if len(v) != length {
		panic(fmt.Errorf("sfdb: FixedString: string is %d bytes, wanted %d", len(v), length))
	}
	copy(w.reserve(length), v)
}

// DateTime writes v as UTC ticks.
func (w *ByteWriter) DateTime(v time.Time) {
	w.Int64(timeToTicks(v))
}

func (w *ByteWriter) Guid(v uuid.UUID) {
	copy(w.reserve(16), v[:])
}

func (w *ByteWriter) ObjectID(v ObjectID) {
	copy(w.reserve(12), v[:])
}

func (w *ByteWriter) PageAddress(v PageAddress) {
	w.UInt32(v.PageID)
	w.UInt16(v.Index)
}

// ByteReader reads little-endian primitives from a byte slice. A read past the
// end returns a *DataError and leaves the position unchanged.
type ByteReader struct {
	buf []byte
	pos int

	// UTCDate makes DateTime return UTC times instead of local ones.
	UTCDate bool
}

func NewByteReader(buf []byte) *ByteReader {
	return &ByteReader{buf: buf}
}

func (r *ByteReader) Position() int  { return r.pos }
func (r *ByteReader) Remaining() int { return len(r.buf) - r.pos }

func (r *ByteReader) take(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, dataErrf(r.buf, r.pos, io.ErrUnexpectedEOF, "not enough data: %d bytes remaining, %d wanted", len(r.buf)-r.pos, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *ByteReader) Skip(n int) error {
	_, err := r.take(n)
	return err
}

func (r *ByteReader) Byte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *ByteReader) Bool() (bool, error) {
	b, err := r.Byte()
	return b != 0, err
}

func (r *ByteReader) UInt16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *ByteReader) UInt32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *ByteReader) UInt64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *ByteReader) Int16() (int16, error) {
	v, err := r.UInt16()
	return int16(v), err
}

func (r *ByteReader) Int32() (int32, error) {
	v, err := r.UInt32()
	return int32(v), err
}

func (r *ByteReader) Int64() (int64, error) {
	v, err := r.UInt64()
	return int64(v), err
}

func (r *ByteReader) Float() (float32, error) {
	v, err := r.UInt32()
	return math.Float32frombits(v), err
}

func (r *ByteReader) Double() (float64, error) {
	v, err := r.UInt64()
	return math.Float64frombits(v), err
}

func (r *ByteReader) Decimal() (Decimal, error) {
	b, err := r.take(16)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{
		Lo:    int32(binary.LittleEndian.Uint32(b[0:])),
		Mid:   int32(binary.LittleEndian.Uint32(b[4:])),
		Hi:    int32(binary.LittleEndian.Uint32(b[8:])),
		Flags: int32(binary.LittleEndian.Uint32(b[12:])),
	}, nil
}

// Raw returns the next n bytes. The result aliases the underlying buffer.
func (r *ByteReader) Raw(n int) ([]byte, error) {
	return r.take(n)
}

func (r *ByteReader) PrefixedString() (string, error) {
	start := r.pos
	n, err := r.Int32()
	if err != nil {
		return "", err
	}
	s, err := r.FixedString(int(n))
	if err != nil {
		r.pos = start
	}
	return s, err
}

func (r *ByteReader) FixedString(length int) (string, error) {
	b, err := r.take(length)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", dataErrf(r.buf, r.pos-length, nil, "invalid UTF-8 string")
	}
	return string(b), nil
}

// DateTime reads UTC ticks and returns local time, or UTC time if UTCDate is
// set.
func (r *ByteReader) DateTime() (time.Time, error) {
	ticks, err := r.Int64()
	if err != nil {
		return time.Time{}, err
	}
	t := ticksToTime(ticks)
	if r.UTCDate {
		return t, nil
	}
	return t.Local(), nil
}

func (r *ByteReader) Guid() (uuid.UUID, error) {
	var v uuid.UUID
	b, err := r.take(16)
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}

func (r *ByteReader) ObjectID() (ObjectID, error) {
	var v ObjectID
	b, err := r.take(12)
	if err != nil {
		return v, err
	}
	copy(v[:], b)
	return v, nil
}

func (r *ByteReader) PageAddress() (PageAddress, error) {
	b, err := r.take(6)
	if err != nil {
		return EmptyAddress, err
	}
	return PageAddress{
		PageID: binary.LittleEndian.Uint32(b[0:]),
		Index:  binary.LittleEndian.Uint16(b[4:]),
	}, nil
}

func timeToTicks(t time.Time) int64 {
	t = clampDateTime(t).UTC()
	return t.Unix()*10_000_000 + int64(t.Nanosecond()/100) + ticksAtUnixEpoch
}

func ticksToTime(ticks int64) time.Time {
	ticks -= ticksAtUnixEpoch
	sec, rem := ticks/10_000_000, ticks%10_000_000
	if rem < 0 {
		sec--
		rem += 10_000_000
	}
	return time.Unix(sec, rem*100).UTC()
}

// bytesBuilder adapts a growing byte slice to io.Writer for msgpack.
type bytesBuilder struct {
	Buf []byte
}

var _ io.Writer = (*bytesBuilder)(nil)

func (bb *bytesBuilder) Write(b []byte) (int, error) {
	bb.Buf = append(bb.Buf, b...)
	return len(b), nil
}

func (bb *bytesBuilder) WriteByte(v byte) error {
	bb.Buf = append(bb.Buf, v)
	return nil
}
