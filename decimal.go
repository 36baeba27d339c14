package sfdb

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// Decimal is a 128-bit decimal floating point number: a 96-bit unsigned
// mantissa split across Lo, Mid and Hi, and Flags carrying the sign (bit 31)
// and the power-of-ten scale (bits 16-23, 0 to 28).
//
// Value = (-1)^sign * mantissa / 10^scale
type Decimal struct {
	Lo, Mid, Hi, Flags int32
}

const (
	decimalSignBit    = uint32(0x80000000)
	decimalScaleShift = 16
	decimalScaleMask  = uint32(0x00FF0000)
	maxDecimalScale   = 28
)

var (
	maxDecimalMantissa = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))
	bigTen             = big.NewInt(10)
)

// MaxDecimal is the largest representable decimal, 79228162514264337593543950335.
var MaxDecimal = Decimal{-1, -1, -1, 0}

// MinDecimal is -MaxDecimal.
var MinDecimal = Decimal{-1, -1, -1, math.MinInt32}

func (d Decimal) Negative() bool {
	return uint32(d.Flags)&decimalSignBit != 0
}

func (d Decimal) Scale() int {
	return int((uint32(d.Flags) & decimalScaleMask) >> decimalScaleShift)
}

func (d Decimal) mantissa() *big.Int {
	m := new(big.Int).SetUint64(uint64(uint32(d.Hi)))
	m.Lsh(m, 32)
	m.Or(m, new(big.Int).SetUint64(uint64(uint32(d.Mid))))
	m.Lsh(m, 32)
	m.Or(m, new(big.Int).SetUint64(uint64(uint32(d.Lo))))
	return m
}

func (d Decimal) IsZero() bool {
	return d.Lo == 0 && d.Mid == 0 && d.Hi == 0
}

// Rat returns the exact value of d.
func (d Decimal) Rat() *big.Rat {
	m := d.mantissa()
	if d.Negative() {
		m.Neg(m)
	}
	den := new(big.Int).Exp(bigTen, big.NewInt(int64(d.Scale())), nil)
	return new(big.Rat).SetFrac(m, den)
}

func (d Decimal) Float64() float64 {
	f, _ := d.Rat().Float64()
	return f
}

func (d Decimal) String() string {
	m := d.mantissa().String()
	scale := d.Scale()
	if scale > 0 {
		if len(m) <= scale {
			m = strings.Repeat("0", scale-len(m)+1) + m
		}
		m = m[:len(m)-scale] + "." + m[len(m)-scale:]
	}
	if d.Negative() && !d.IsZero() {
		return "-" + m
	}
	return m
}

func DecimalFromInt64(v int64) Decimal {
	d, err := decimalFromParts(new(big.Int).SetInt64(v), 0)
	if err != nil {
		panic(err) // int64 always fits into 96 bits
	}
	return d
}

// DecimalFromFloat64 converts f using its shortest decimal representation.
func DecimalFromFloat64(f float64) (Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Decimal{}, fmt.Errorf("cannot convert %v to decimal", f)
	}
	return ParseDecimal(big.NewFloat(f).Text('f', -1))
}

// ParseDecimal parses a plain decimal literal like "-123.4500".
func ParseDecimal(s string) (Decimal, error) {
	orig := s
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return Decimal{}, fmt.Errorf("invalid decimal %q", orig)
	}
	for len(fracPart) > maxDecimalScale && strings.HasSuffix(fracPart, "0") {
		fracPart = fracPart[:len(fracPart)-1]
	}
	if len(fracPart) > maxDecimalScale {
		return Decimal{}, fmt.Errorf("invalid decimal %q: more than %d fractional digits", orig, maxDecimalScale)
	}
	m, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok || m.Sign() < 0 {
		return Decimal{}, fmt.Errorf("invalid decimal %q", orig)
	}
	if neg {
		m.Neg(m)
	}
	return decimalFromParts(m, len(fracPart))
}

func decimalFromParts(m *big.Int, scale int) (Decimal, error) {
	var flags uint32
	if m.Sign() < 0 {
		flags |= decimalSignBit
		m = new(big.Int).Abs(m)
	}
	if m.Cmp(maxDecimalMantissa) > 0 {
		return Decimal{}, fmt.Errorf("decimal overflow: %v", m)
	}
	flags |= uint32(scale) << decimalScaleShift
	var buf [12]byte
	m.FillBytes(buf[:])
	hi := binary.BigEndian.Uint32(buf[0:4])
	mid := binary.BigEndian.Uint32(buf[4:8])
	lo := binary.BigEndian.Uint32(buf[8:12])
	return Decimal{int32(lo), int32(mid), int32(hi), int32(flags)}, nil
}

func MustParseDecimal(s string) Decimal {
	return must(ParseDecimal(s))
}
