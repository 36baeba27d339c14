package sfdb

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Type is the tag of a Value. Tag byte values are written to disk and define
// the cross-type sort order, so they must never be renumbered.
type Type byte

const (
	TypeMinValue Type = 0
	TypeNull     Type = 1
	TypeInt32    Type = 2
	TypeInt64    Type = 3
	TypeDouble   Type = 4
	TypeDecimal  Type = 5
	TypeString   Type = 6
	TypeDocument Type = 7
	TypeArray    Type = 8
	TypeBinary   Type = 9
	TypeObjectID Type = 10
	TypeGuid     Type = 11
	TypeBoolean  Type = 12
	TypeDateTime Type = 13
	TypeMaxValue Type = 14
)

var typeNames = [...]string{
	TypeMinValue: "MinValue",
	TypeNull:     "Null",
	TypeInt32:    "Int32",
	TypeInt64:    "Int64",
	TypeDouble:   "Double",
	TypeDecimal:  "Decimal",
	TypeString:   "String",
	TypeDocument: "Document",
	TypeArray:    "Array",
	TypeBinary:   "Binary",
	TypeObjectID: "ObjectId",
	TypeGuid:     "Guid",
	TypeBoolean:  "Boolean",
	TypeDateTime: "DateTime",
	TypeMaxValue: "MaxValue",
}

func (t Type) Valid() bool {
	return t <= TypeMaxValue
}

func (t Type) IsNumber() bool {
	return t >= TypeInt32 && t <= TypeDecimal
}

// IsVariableLength reports whether the encoded payload length of this type
// must be supplied by the caller when decoding.
func (t Type) IsVariableLength() bool {
	return t >= TypeString && t <= TypeBinary
}

func (t Type) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// Value is an immutable tagged datum used both as a document field value and
// as an index key. The zero Value is Null.
type Value struct {
	typ Type
	raw any
}

var (
	nullValue = Value{typ: TypeNull}
	minValue  = Value{TypeMinValue, boundary{}}
	maxValue  = Value{TypeMaxValue, boundary{}}
)

// boundary marks MinValue so that it differs from the zero Value.
type boundary struct{}

func Null() Value     { return nullValue }
func MinValue() Value { return minValue }
func MaxValue() Value { return maxValue }

func Int32(v int32) Value     { return Value{TypeInt32, v} }
func Int64(v int64) Value     { return Value{TypeInt64, v} }
func Double(v float64) Value  { return Value{TypeDouble, v} }
func Dec(v Decimal) Value     { return Value{TypeDecimal, v} }
func String(v string) Value   { return Value{TypeString, v} }
func Bool(v bool) Value       { return Value{TypeBoolean, v} }
func OID(v ObjectID) Value    { return Value{TypeObjectID, v} }
func Guid(v uuid.UUID) Value  { return Value{TypeGuid, v} }
func Binary(v []byte) Value   { return Value{TypeBinary, bytes.Clone(nonNilBytes(v))} }
func Doc(v *Document) Value   { return Value{TypeDocument, v} }
func DateTime(t time.Time) Value {
	// only 100ns ticks within MinDateTime..MaxDateTime survive on disk
	return Value{TypeDateTime, clampDateTime(t).Truncate(100 * time.Nanosecond)}
}

func Array(items ...Value) Value {
	return Value{TypeArray, append([]Value{}, items...)}
}

// ValueOf converts common Go values into a Value. It panics on unsupported
// types, which is a programming error.
func ValueOf(v any) Value {
	switch v := v.(type) {
	case nil:
		return nullValue
	case Value:
		return v
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return Int32(int32(v))
		}
		return Int64(int64(v))
	case int32:
		return Int32(v)
	case int64:
		return Int64(v)
	case float64:
		return Double(v)
	case float32:
		return Double(float64(v))
	case Decimal:
		return Dec(v)
	case string:
		return String(v)
	case bool:
		return Bool(v)
	case []byte:
		return Binary(v)
	case ObjectID:
		return OID(v)
	case uuid.UUID:
		return Guid(v)
	case time.Time:
		return DateTime(v)
	case *Document:
		return Doc(v)
	case []Value:
		return Array(v...)
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = ValueOf(item)
		}
		return Value{TypeArray, items}
	default:
		panic(fmt.Errorf("sfdb: cannot convert %T to a Value", v))
	}
}

func (v Value) Type() Type {
	if v.IsZero() {
		return TypeNull
	}
	return v.typ
}

func (v Value) IsNull() bool     { return v.Type() == TypeNull }
func (v Value) IsNumber() bool   { return v.Type().IsNumber() }
func (v Value) IsString() bool   { return v.typ == TypeString }
func (v Value) IsDocument() bool { return v.typ == TypeDocument }
func (v Value) IsArray() bool    { return v.typ == TypeArray }
func (v Value) IsMinValue() bool { return v.typ == TypeMinValue && v.raw != nil }
func (v Value) IsMaxValue() bool { return v.typ == TypeMaxValue }

// IsZero reports whether v is the zero Value (as opposed to an explicit Null).
func (v Value) IsZero() bool {
	return v.typ == 0 && v.raw == nil
}

func (v Value) AsInt32() int32 {
	switch x := v.raw.(type) {
	case int32:
		return x
	case int64:
		return int32(x)
	case float64:
		return int32(x)
	case Decimal:
		return int32(x.Float64())
	}
	return 0
}

func (v Value) AsInt64() int64 {
	switch x := v.raw.(type) {
	case int32:
		return int64(x)
	case int64:
		return x
	case float64:
		return int64(x)
	case Decimal:
		return int64(x.Float64())
	}
	return 0
}

func (v Value) AsDouble() float64 {
	switch x := v.raw.(type) {
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		return x
	case Decimal:
		return x.Float64()
	}
	return 0
}

func (v Value) AsDecimal() Decimal {
	switch x := v.raw.(type) {
	case int32:
		return DecimalFromInt64(int64(x))
	case int64:
		return DecimalFromInt64(x)
	case float64:
		d, _ := DecimalFromFloat64(x)
		return d
	case Decimal:
		return x
	}
	return Decimal{}
}

func (v Value) AsString() string {
	s, _ := v.raw.(string)
	return s
}

func (v Value) AsBool() bool {
	b, _ := v.raw.(bool)
	return b
}

func (v Value) AsBinary() []byte {
	b, _ := v.raw.([]byte)
	return b
}

func (v Value) AsObjectID() ObjectID {
	id, _ := v.raw.(ObjectID)
	return id
}

func (v Value) AsGuid() uuid.UUID {
	id, _ := v.raw.(uuid.UUID)
	return id
}

func (v Value) AsDateTime() time.Time {
	t, _ := v.raw.(time.Time)
	return t
}

func (v Value) AsDocument() *Document {
	d, _ := v.raw.(*Document)
	return d
}

// AsArray returns the items of an Array value. The slice must not be modified.
func (v Value) AsArray() []Value {
	a, _ := v.raw.([]Value)
	return a
}

// checkStrings returns ErrInvalidString if v holds a string, a field name
// or a nested value that is not valid UTF-8.
func checkStrings(v Value) error {
	switch v.Type() {
	case TypeString:
		if !utf8.ValidString(v.AsString()) {
			return fmt.Errorf("%w: %q", ErrInvalidString, v.AsString())
		}
	case TypeDocument:
		for _, f := range v.AsDocument().Fields() {
			if !utf8.ValidString(f.Name) {
				return fmt.Errorf("%w: field name %q", ErrInvalidString, f.Name)
			}
			if err := checkStrings(f.Value); err != nil {
				return err
			}
		}
	case TypeArray:
		for _, item := range v.AsArray() {
			if err := checkStrings(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports whether v and other compare as equal.
func (v Value) Equal(other Value) bool {
	return Compare(v, other) == 0
}

func (v Value) String() string {
	var buf strings.Builder
	v.format(&buf)
	return buf.String()
}

func (v Value) format(buf *strings.Builder) {
	switch v.Type() {
	case TypeMinValue:
		buf.WriteString("$minValue")
	case TypeMaxValue:
		buf.WriteString("$maxValue")
	case TypeNull:
		buf.WriteString("null")
	case TypeInt32, TypeInt64:
		buf.WriteString(strconv.FormatInt(v.AsInt64(), 10))
	case TypeDouble:
		buf.WriteString(strconv.FormatFloat(v.AsDouble(), 'g', -1, 64))
	case TypeDecimal:
		buf.WriteString(v.AsDecimal().String())
		buf.WriteByte('m')
	case TypeString:
		buf.WriteString(strconv.Quote(v.AsString()))
	case TypeBoolean:
		buf.WriteString(strconv.FormatBool(v.AsBool()))
	case TypeBinary:
		buf.WriteString("0x")
		buf.WriteString(hex.EncodeToString(v.AsBinary()))
	case TypeObjectID:
		buf.WriteString("ObjectId(")
		buf.WriteString(v.AsObjectID().Hex())
		buf.WriteByte(')')
	case TypeGuid:
		buf.WriteString("Guid(")
		buf.WriteString(v.AsGuid().String())
		buf.WriteByte(')')
	case TypeDateTime:
		buf.WriteString(v.AsDateTime().UTC().Format(time.RFC3339Nano))
	case TypeArray:
		buf.WriteByte('[')
		for i, item := range v.AsArray() {
			if i > 0 {
				buf.WriteByte(',')
			}
			item.format(buf)
		}
		buf.WriteByte(']')
	case TypeDocument:
		v.AsDocument().format(buf)
	}
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
