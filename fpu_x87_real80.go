// fpu_x87_real80.go - 80-bit extended real and packed BCD conversion
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/binary"
	"math"
)

const (
	real80ExpMax  uint16 = 0x7FFF
	real80IntBit  uint64 = 1 << 63
	real80QNaN    uint64 = 0xC000000000000000
	real80BiasGap        = 16383 - 1023
	x87BCDDigits         = 18
)

// Real80 is the x87 extended format: sign, 15-bit biased exponent and a
// 64-bit significand with an explicit integer bit.
type Real80 struct {
	Sign uint8
	Exp  uint16
	Mant uint64
}

func (e Real80) IsZero() bool { return e.Exp == 0 && e.Mant == 0 }
func (e Real80) IsInf() bool  { return e.Exp == real80ExpMax && e.Mant<<1 == 0 }
func (e Real80) IsNaN() bool  { return e.Exp == real80ExpMax && e.Mant<<1 != 0 }

// Real80FromFloat64 widens a double. The conversion is exact.
func Real80FromFloat64(f float64) Real80 {
	bits := math.Float64bits(f)
	sign := uint8(bits >> 63)
	switch {
	case math.IsNaN(f):
		return Real80{Sign: sign, Exp: real80ExpMax, Mant: real80QNaN}
	case math.IsInf(f, 0):
		return Real80{Sign: sign, Exp: real80ExpMax, Mant: real80IntBit}
	case f == 0:
		return Real80{Sign: sign}
	}

	exp := int(bits>>52) & 0x7FF
	frac := bits & (1<<52 - 1)
	if exp == 0 {
		// Subnormal double: normalise into the wider exponent range.
		shift := 0
		for frac&(1<<52) == 0 {
			frac <<= 1
			shift++
		}
		return Real80{Sign: sign, Exp: uint16(real80BiasGap + 1 - shift), Mant: frac << 11}
	}
	return Real80{Sign: sign, Exp: uint16(exp + real80BiasGap), Mant: (frac | 1<<52) << 11}
}

// Float64 narrows to a double, truncating the low significand bits.
// Values outside the double range become infinity or zero.
func (e Real80) Float64() float64 {
	neg := e.Sign != 0
	switch {
	case e.IsNaN():
		return math.NaN()
	case e.IsInf():
		return math.Inf(signOf(neg))
	case e.IsZero():
		return math.Copysign(0, float64(signOf(neg)))
	}

	exp := int(e.Exp) - real80BiasGap
	if exp >= 0x7FF {
		return math.Inf(signOf(neg))
	}
	var bits uint64
	if exp <= 0 {
		if exp < -52 {
			return math.Copysign(0, float64(signOf(neg)))
		}
		bits = e.Mant >> uint(12-exp)
	} else {
		bits = uint64(exp)<<52 | e.Mant>>11&(1<<52-1)
	}
	if neg {
		bits |= 1 << 63
	}
	return math.Float64frombits(bits)
}

func signOf(neg bool) int {
	if neg {
		return -1
	}
	return 1
}

// Encode writes the 10-byte little-endian memory image.
func (e Real80) Encode(b []byte) {
	binary.LittleEndian.PutUint64(b, e.Mant)
	binary.LittleEndian.PutUint16(b[8:], uint16(e.Sign&1)<<15|e.Exp&real80ExpMax)
}

// DecodeReal80 reads a 10-byte memory image.
func DecodeReal80(b []byte) Real80 {
	se := binary.LittleEndian.Uint16(b[8:])
	return Real80{
		Sign: uint8(se >> 15),
		Exp:  se & real80ExpMax,
		Mant: binary.LittleEndian.Uint64(b),
	}
}

// -----------------------------------------------------------------------------
// Packed BCD: 18 digits in bytes 0-8, low digit first, sign in bit 7 of byte 9
// -----------------------------------------------------------------------------

// decodeBCD returns the packed value. Nibbles above 9 are taken at face
// value, as the hardware result for them is undefined.
func decodeBCD(b []byte) float64 {
	var v int64
	for i := 8; i >= 0; i-- {
		v = v*100 + int64(b[i]>>4)*10 + int64(b[i]&0x0F)
	}
	if b[9]&0x80 != 0 {
		return -float64(v)
	}
	return float64(v)
}

// encodeBCD packs an already rounded integer. It reports false when the
// magnitude needs more than 18 digits; the caller stores the indefinite.
func encodeBCD(b []byte, r float64) bool {
	if math.IsNaN(r) || math.Abs(r) >= 1e18 {
		return false
	}
	neg := math.Signbit(r)
	v := uint64(math.Abs(r))
	for i := range 9 {
		lo := byte(v % 10)
		v /= 10
		hi := byte(v % 10)
		v /= 10
		b[i] = hi<<4 | lo
	}
	b[9] = 0
	if neg {
		b[9] = 0x80
	}
	return true
}

// x87BCDIndefinite is the packed BCD indefinite stored on invalid FBSTP.
var x87BCDIndefinite = [10]byte{0, 0, 0, 0, 0, 0, 0, 0xC0, 0xFF, 0xFF}
