package sfdb

import (
	"fmt"
)

// Tagged value encoding: one tag byte (the Type), then a type-specific
// payload. Fixed-size payloads:
//
//	Null, MinValue, MaxValue  0 bytes
//	Int32                     4 bytes
//	Int64, Double, DateTime   8 bytes (DateTime as UTC ticks)
//	Decimal                   16 bytes (lo, mid, hi, flags)
//	ObjectId                  12 bytes
//	Guid                      16 bytes
//	Boolean                   1 byte
//
// String, Binary, Document and Array payloads are variable-length and their
// length is NOT part of the encoding: it must be stored elsewhere (e.g. in the
// key length of an index node record) and passed back to ByteReader.Value.

func fixedPayloadSize(t Type) int {
	switch t {
	case TypeNull, TypeMinValue, TypeMaxValue:
		return 0
	case TypeInt32:
		return 4
	case TypeInt64, TypeDouble, TypeDateTime:
		return 8
	case TypeDecimal, TypeGuid:
		return 16
	case TypeObjectID:
		return 12
	case TypeBoolean:
		return 1
	default:
		return -1
	}
}

// ValueLength returns the payload size of v, excluding the tag byte.
func ValueLength(v Value) int {
	t := v.Type()
	if n := fixedPayloadSize(t); n >= 0 {
		return n
	}
	switch t {
	case TypeString:
		return len(v.AsString())
	case TypeBinary:
		return len(v.AsBinary())
	case TypeDocument:
		return len(encodeDocumentPayload(v.AsDocument()))
	case TypeArray:
		return len(encodeArrayPayload(v.AsArray()))
	default:
		panic(fmt.Errorf("sfdb: invalid value type %v", t))
	}
}

// EncodeValue returns the tag byte followed by the payload of v.
func EncodeValue(v Value) []byte {
	payload, n := valuePayload(v)
	w := NewByteWriter(make([]byte, 1+n))
	w.Byte(byte(v.Type()))
	w.writePayload(v, payload)
	return w.Bytes()
}

// DecodeValue decodes the output of EncodeValue; the payload length is implied
// by len(b).
func DecodeValue(b []byte, utcDate bool) (Value, error) {
	r := NewByteReader(b)
	r.UTCDate = utcDate
	v, err := r.Value(len(b) - 1)
	if err != nil {
		return Value{}, err
	}
	if r.Remaining() != 0 {
		return Value{}, dataErrf(b, r.Position(), nil, "%d trailing bytes after %v value", r.Remaining(), v.Type())
	}
	return v, nil
}

// valuePayload pre-encodes container payloads, so that their size is known
// before the buffer is allocated.
func valuePayload(v Value) ([]byte, int) {
	switch v.Type() {
	case TypeDocument:
		p := encodeDocumentPayload(v.AsDocument())
		return p, len(p)
	case TypeArray:
		p := encodeArrayPayload(v.AsArray())
		return p, len(p)
	default:
		return nil, ValueLength(v)
	}
}

// Value writes the tag byte and the payload of v.
func (w *ByteWriter) Value(v Value) {
	payload, _ := valuePayload(v)
	w.Byte(byte(v.Type()))
	w.writePayload(v, payload)
}

func (w *ByteWriter) writePayload(v Value, containerPayload []byte) {
	switch v.Type() {
	case TypeNull, TypeMinValue, TypeMaxValue:
		break
	case TypeInt32:
		w.Int32(v.AsInt32())
	case TypeInt64:
		w.Int64(v.AsInt64())
	case TypeDouble:
		w.Double(v.AsDouble())
	case TypeDecimal:
		w.Decimal(v.AsDecimal())
	case TypeString:
		w.FixedString(v.AsString(), len(v.AsString()))
	case TypeDocument, TypeArray:
		w.Raw(containerPayload)
	case TypeBinary:
		w.Raw(v.AsBinary())
	case TypeObjectID:
		w.ObjectID(v.AsObjectID())
	case TypeGuid:
		w.Guid(v.AsGuid())
	case TypeBoolean:
		w.Bool(v.AsBool())
	case TypeDateTime:
		w.DateTime(v.AsDateTime())
	default:
		panic(fmt.Errorf("sfdb: invalid value type %v", v.Type()))
	}
}

// Value reads a tag byte and its payload. length is the payload size of
// variable-length types and is ignored for fixed-size ones.
func (r *ByteReader) Value(length int) (Value, error) {
	start := r.pos
	tag, err := r.Byte()
	if err != nil {
		return Value{}, err
	}
	v, err := r.payload(Type(tag), length)
	if err != nil {
		r.pos = start
		return Value{}, err
	}
	return v, nil
}

func (r *ByteReader) payload(t Type, length int) (Value, error) {
	switch t {
	case TypeNull:
		return Null(), nil
	case TypeMinValue:
		return MinValue(), nil
	case TypeMaxValue:
		return MaxValue(), nil
	case TypeInt32:
		v, err := r.Int32()
		return Int32(v), err
	case TypeInt64:
		v, err := r.Int64()
		return Int64(v), err
	case TypeDouble:
		v, err := r.Double()
		return Double(v), err
	case TypeDecimal:
		v, err := r.Decimal()
		return Dec(v), err
	case TypeString:
		v, err := r.FixedString(length)
		return String(v), err
	case TypeBinary:
		b, err := r.take(length)
		return Binary(b), err
	case TypeDocument:
		b, err := r.take(length)
		if err != nil {
			return Value{}, err
		}
		doc, err := decodeDocumentPayload(b, r.UTCDate)
		return Doc(doc), err
	case TypeArray:
		b, err := r.take(length)
		if err != nil {
			return Value{}, err
		}
		items, err := decodeArrayPayload(b, r.UTCDate)
		return Value{TypeArray, items}, err
	case TypeObjectID:
		v, err := r.ObjectID()
		return OID(v), err
	case TypeGuid:
		v, err := r.Guid()
		return Guid(v), err
	case TypeBoolean:
		v, err := r.Bool()
		return Bool(v), err
	case TypeDateTime:
		v, err := r.DateTime()
		return Value{TypeDateTime, v}, err
	default:
		return Value{}, dataErrf(r.buf, r.pos-1, ErrUnsupportedFormat, "unknown value tag 0x%02x", byte(t))
	}
}
