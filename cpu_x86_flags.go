// cpu_x86_flags.go - x86 flag computation
//
// Arithmetic, logic, shift and rotate results are computed generically over
// byte/word/dword operands. Every helper takes the current EFLAGS word and
// returns the result together with the updated EFLAGS word.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"math/bits"

	"golang.org/x/exp/constraints"
)

// x86Word is the set of operand widths the integer unit works on.
type x86Word interface {
	constraints.Unsigned
	uint8 | uint16 | uint32
}

// x86Bits returns the width of T in bits.
func x86Bits[T x86Word]() uint {
	return uint(bits.Len64(uint64(^T(0))))
}

// x86Sign returns the sign bit of T.
func x86Sign[T x86Word]() T {
	return T(1) << (x86Bits[T]() - 1)
}

// x86SignExtend widens v to int64 treating its top bit as the sign.
func x86SignExtend[T x86Word](v T) int64 {
	shift := 64 - x86Bits[T]()
	return int64(uint64(v)<<shift) >> shift
}

// parity returns true for an even number of set bits in the low byte.
func parity(v byte) bool {
	return bits.OnesCount8(v)&1 == 0
}

// flagsSZP recomputes ZF, SF and PF from r.
func flagsSZP[T x86Word](f uint32, r T) uint32 {
	f &^= x86FlagZF | x86FlagSF | x86FlagPF
	if r == 0 {
		f |= x86FlagZF
	}
	if r&x86Sign[T]() != 0 {
		f |= x86FlagSF
	}
	if parity(uint8(r)) {
		f |= x86FlagPF
	}
	return f
}

// =============================================================================
// Arithmetic
// =============================================================================

// aluAdd computes a+b+carry (ADD, ADC).
func aluAdd[T x86Word](f uint32, a, b T, carry bool) (T, uint32) {
	var cin T
	if carry {
		cin = 1
	}
	r := a + b + cin
	f &^= x86FlagsArith
	if uint64(a)+uint64(b)+uint64(cin) > uint64(^T(0)) {
		f |= x86FlagCF
	}
	if (a^b^r)&0x10 != 0 {
		f |= x86FlagAF
	}
	if (a^r)&(b^r)&x86Sign[T]() != 0 {
		f |= x86FlagOF
	}
	return r, flagsSZP(f, r)
}

// aluSub computes a-b-borrow (SUB, SBB, CMP).
func aluSub[T x86Word](f uint32, a, b T, borrow bool) (T, uint32) {
	var bin T
	if borrow {
		bin = 1
	}
	r := a - b - bin
	f &^= x86FlagsArith
	if uint64(a) < uint64(b)+uint64(bin) {
		f |= x86FlagCF
	}
	if (a^b^r)&0x10 != 0 {
		f |= x86FlagAF
	}
	if (a^b)&(a^r)&x86Sign[T]() != 0 {
		f |= x86FlagOF
	}
	return r, flagsSZP(f, r)
}

// aluInc and aluDec leave CF untouched.
func aluInc[T x86Word](f uint32, a T) (T, uint32) {
	r, nf := aluAdd(f, a, 1, false)
	return r, (nf &^ x86FlagCF) | (f & x86FlagCF)
}

func aluDec[T x86Word](f uint32, a T) (T, uint32) {
	r, nf := aluSub(f, a, 1, false)
	return r, (nf &^ x86FlagCF) | (f & x86FlagCF)
}

// aluNeg computes 0-a; CF is set unless a is zero.
func aluNeg[T x86Word](f uint32, a T) (T, uint32) {
	return aluSub(f, 0, a, false)
}

// aluLogic sets flags for AND/OR/XOR/TEST results.
func aluLogic[T x86Word](f uint32, r T) uint32 {
	f &^= x86FlagCF | x86FlagOF | x86FlagAF
	return flagsSZP(f, r)
}

// ALU operation selectors, in ModRM group 1 order.
const (
	aluOpADD = iota
	aluOpOR
	aluOpADC
	aluOpSBB
	aluOpAND
	aluOpSUB
	aluOpXOR
	aluOpCMP
)

// aluBinary applies one of the eight group-1 operations.
func aluBinary[T x86Word](op int, f uint32, a, b T) (T, uint32) {
	switch op {
	case aluOpADD:
		return aluAdd(f, a, b, false)
	case aluOpOR:
		r := a | b
		return r, aluLogic(f, r)
	case aluOpADC:
		return aluAdd(f, a, b, f&x86FlagCF != 0)
	case aluOpSBB:
		return aluSub(f, a, b, f&x86FlagCF != 0)
	case aluOpAND:
		r := a & b
		return r, aluLogic(f, r)
	case aluOpSUB, aluOpCMP:
		return aluSub(f, a, b, false)
	default:
		r := a ^ b
		return r, aluLogic(f, r)
	}
}

// =============================================================================
// Shifts and rotates
// =============================================================================

// Shift/rotate selectors, in ModRM group 2 order.
const (
	shiftROL = iota
	shiftROR
	shiftRCL
	shiftRCR
	shiftSHL
	shiftSHR
	shiftSAL
	shiftSAR
)

// aluShift applies a group-2 operation. The count is masked to 5 bits; a
// masked count of zero leaves both value and flags untouched. OF is only
// defined for a masked count of one and is preserved otherwise.
func aluShift[T x86Word](op int, f uint32, v T, count byte) (T, uint32) {
	n := uint(count & 0x1F)
	if n == 0 {
		return v, f
	}
	switch op {
	case shiftROL:
		return aluROL(f, v, n)
	case shiftROR:
		return aluROR(f, v, n)
	case shiftRCL:
		return aluRCL(f, v, n)
	case shiftRCR:
		return aluRCR(f, v, n)
	case shiftSHL, shiftSAL:
		return aluSHL(f, v, n)
	case shiftSHR:
		return aluSHR(f, v, n)
	default:
		return aluSAR(f, v, n)
	}
}

func aluROL[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	r := v
	if s := n % w; s != 0 {
		r = v<<s | v>>(w-s)
	}
	cf := r&1 != 0
	f = setCF(f, cf)
	if n == 1 {
		f = setOF(f, (r&x86Sign[T]() != 0) != cf)
	}
	return r, f
}

func aluROR[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	r := v
	if s := n % w; s != 0 {
		r = v>>s | v<<(w-s)
	}
	sign := x86Sign[T]()
	f = setCF(f, r&sign != 0)
	if n == 1 {
		f = setOF(f, (r&sign != 0) != (r&(sign>>1) != 0))
	}
	return r, f
}

// aluRCL rotates the (width+1)-bit quantity CF:v left. The count is reduced
// modulo width+1; a reduced count of zero changes nothing but OF.
func aluRCL[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	s := n % (w + 1)
	r := v
	if s != 0 {
		mask := uint64(1)<<(w+1) - 1
		wide := uint64(v)
		if f&x86FlagCF != 0 {
			wide |= 1 << w
		}
		wide = (wide<<s | wide>>(w+1-s)) & mask
		r = T(wide)
		f = setCF(f, wide>>w&1 != 0)
	}
	if n == 1 {
		f = setOF(f, (r&x86Sign[T]() != 0) != (f&x86FlagCF != 0))
	}
	return r, f
}

// aluRCR rotates the (width+1)-bit quantity CF:v right.
func aluRCR[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	s := n % (w + 1)
	r := v
	if s != 0 {
		mask := uint64(1)<<(w+1) - 1
		wide := uint64(v)
		if f&x86FlagCF != 0 {
			wide |= 1 << w
		}
		wide = (wide>>s | wide<<(w+1-s)) & mask
		r = T(wide)
		f = setCF(f, wide>>w&1 != 0)
	}
	if n == 1 {
		sign := x86Sign[T]()
		f = setOF(f, (r&sign != 0) != (r&(sign>>1) != 0))
	}
	return r, f
}

func aluSHL[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	r := T(uint64(v) << n)
	cf := n <= w && (uint64(v)>>(w-n))&1 != 0
	f = flagsSZP(setCF(f, cf), r)
	if n == 1 {
		f = setOF(f, (r&x86Sign[T]() != 0) != cf)
	}
	return r, f
}

func aluSHR[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	r := T(uint64(v) >> n)
	cf := n <= w && (uint64(v)>>(n-1))&1 != 0
	f = flagsSZP(setCF(f, cf), r)
	if n == 1 {
		f = setOF(f, v&x86Sign[T]() != 0)
	}
	return r, f
}

func aluSAR[T x86Word](f uint32, v T, n uint) (T, uint32) {
	w := x86Bits[T]()
	sv := x86SignExtend(v)
	if n >= w {
		n = w
	}
	r := T(sv >> n)
	cf := (sv>>(n-1))&1 != 0
	f = flagsSZP(setCF(f, cf), r)
	if n == 1 {
		f &^= x86FlagOF
	}
	return r, f
}

// aluSHLD shifts dst left filling from src (SHLD).
func aluSHLD[T x86Word](f uint32, dst, src T, count byte) (T, uint32) {
	n := uint(count & 0x1F)
	if n == 0 {
		return dst, f
	}
	w := x86Bits[T]()
	wide := uint64(dst)<<w | uint64(src)
	r := T((wide << n) >> w)
	cf := n <= 2*w && (wide>>(2*w-n))&1 != 0
	f = flagsSZP(setCF(f, cf), r)
	if n == 1 {
		sign := x86Sign[T]()
		f = setOF(f, (r&sign != 0) != (dst&sign != 0))
	}
	return r, f
}

// aluSHRD shifts dst right filling from src (SHRD).
func aluSHRD[T x86Word](f uint32, dst, src T, count byte) (T, uint32) {
	n := uint(count & 0x1F)
	if n == 0 {
		return dst, f
	}
	w := x86Bits[T]()
	wide := uint64(src)<<w | uint64(dst)
	r := T(wide >> n)
	cf := (wide>>(n-1))&1 != 0
	f = flagsSZP(setCF(f, cf), r)
	if n == 1 {
		sign := x86Sign[T]()
		f = setOF(f, (r&sign != 0) != (dst&sign != 0))
	}
	return r, f
}

func setCF(f uint32, set bool) uint32 {
	if set {
		return f | x86FlagCF
	}
	return f &^ x86FlagCF
}

func setOF(f uint32, set bool) uint32 {
	if set {
		return f | x86FlagOF
	}
	return f &^ x86FlagOF
}

// =============================================================================
// Multiply
// =============================================================================

// aluMul returns the low and high halves of a*b; CF=OF=(high != 0).
func aluMul[T x86Word](f uint32, a, b T) (lo, hi T, nf uint32) {
	p := uint64(a) * uint64(b)
	w := x86Bits[T]()
	lo, hi = T(p), T(p>>w)
	nf = setOF(setCF(f, hi != 0), hi != 0)
	return lo, hi, flagsSZP(nf, lo)
}

// aluIMul returns the signed product halves; CF=OF when the high half is
// not the sign extension of the low half.
func aluIMul[T x86Word](f uint32, a, b T) (lo, hi T, nf uint32) {
	p := x86SignExtend(a) * x86SignExtend(b)
	w := x86Bits[T]()
	lo, hi = T(p), T(p>>w)
	over := p != x86SignExtend(lo)
	nf = setOF(setCF(f, over), over)
	return lo, hi, flagsSZP(nf, lo)
}
