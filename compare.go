package sfdb

import (
	"bytes"
	"cmp"
	"math"
	"math/big"
	"strings"
)

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal to or
// after b. The order is total:
//
//   - MinValue sorts before and MaxValue after every other value;
//   - numbers compare by magnitude regardless of their tags;
//   - other values of different tags compare by tag;
//   - strings compare ordinally, byte by byte.
func Compare(a, b Value) int {
	at, bt := a.Type(), b.Type()
	if at != bt {
		if at.IsNumber() && bt.IsNumber() {
			return compareNumbers(a, b)
		}
		return cmp.Compare(at, bt)
	}

	switch at {
	case TypeNull, TypeMinValue, TypeMaxValue:
		return 0
	case TypeInt32, TypeInt64, TypeDouble, TypeDecimal:
		return compareNumbers(a, b)
	case TypeString:
		return strings.Compare(a.AsString(), b.AsString())
	case TypeBinary:
		return bytes.Compare(a.AsBinary(), b.AsBinary())
	case TypeObjectID:
		return a.AsObjectID().Compare(b.AsObjectID())
	case TypeGuid:
		ag, bg := a.AsGuid(), b.AsGuid()
		return bytes.Compare(ag[:], bg[:])
	case TypeBoolean:
		return compareBools(a.AsBool(), b.AsBool())
	case TypeDateTime:
		return a.AsDateTime().Compare(b.AsDateTime())
	case TypeArray:
		return compareArrays(a.AsArray(), b.AsArray())
	case TypeDocument:
		return compareDocuments(a.AsDocument(), b.AsDocument())
	default:
		panic("unreachable")
	}
}

func compareBools(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	default:
		return 1
	}
}

func compareArrays(a, b []Value) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// compareDocuments orders documents lexicographically by their (name, value)
// pairs in field order, then by field count.
func compareDocuments(a, b *Document) int {
	af, bf := a.Fields(), b.Fields()
	n := min(len(af), len(bf))
	for i := 0; i < n; i++ {
		if c := strings.Compare(af[i].Name, bf[i].Name); c != 0 {
			return c
		}
		if c := Compare(af[i].Value, bf[i].Value); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(af), len(bf))
}

func compareNumbers(a, b Value) int {
	at, bt := a.Type(), b.Type()
	if at == TypeDecimal || bt == TypeDecimal {
		return compareExact(a, b)
	}
	aInt, bInt := at != TypeDouble, bt != TypeDouble
	switch {
	case aInt && bInt:
		return cmp.Compare(a.AsInt64(), b.AsInt64())
	case aInt:
		return compareIntFloat(a.AsInt64(), b.AsDouble())
	case bInt:
		return -compareIntFloat(b.AsInt64(), a.AsDouble())
	default:
		return compareFloats(a.AsDouble(), b.AsDouble())
	}
}

// compareFloats is cmp.Compare for float64: NaN equals NaN and sorts before
// every other number.
func compareFloats(a, b float64) int {
	return cmp.Compare(a, b)
}

// compareIntFloat compares i and f exactly, without rounding i to float64.
func compareIntFloat(i int64, f float64) int {
	switch {
	case math.IsNaN(f):
		return 1
	case f >= math.MaxInt64: // 2^63, not representable as int64
		return -1
	case f < math.MinInt64:
		return 1
	}
	t := math.Trunc(f)
	if c := cmp.Compare(i, int64(t)); c != 0 {
		return c
	}
	return cmp.Compare(0, f-t)
}

func compareExact(a, b Value) int {
	ar, aSpecial := exactRat(a)
	br, bSpecial := exactRat(b)
	if aSpecial != 0 || bSpecial != 0 {
		return cmp.Compare(aSpecial, bSpecial)
	}
	return ar.Cmp(br)
}

// exactRat returns the exact value of a number, or a non-zero rank for the
// float64 values that have no rational equivalent: -2 for NaN, -1 for -Inf,
// +1 for +Inf. Finite values have rank 0, which sorts them between -Inf and
// +Inf.
func exactRat(v Value) (*big.Rat, int) {
	switch v.Type() {
	case TypeDecimal:
		return v.AsDecimal().Rat(), 0
	case TypeDouble:
		f := v.AsDouble()
		switch {
		case math.IsNaN(f):
			return nil, -2
		case math.IsInf(f, -1):
			return nil, -1
		case math.IsInf(f, 1):
			return nil, 1
		}
		return new(big.Rat).SetFloat64(f), 0
	default:
		return new(big.Rat).SetInt64(v.AsInt64()), 0
	}
}
