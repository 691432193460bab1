// fpu_x87.go - x87 register stack, control/status words and memory formats

/*
fpu_x87.go - x87 Floating Point Unit

Registers are held as float64. The stack is eight physical slots addressed
relative to TOP (FSW bits 11-13); ST(i) is slot (TOP+i)&7. A used bitmap
records which slots hold values. The tag word is not stored: it is derived
from the used bitmap and the class of each value when read, and writing it
only restores the used bitmap.

Stack overflow (push onto a used slot) and underflow (pop of an empty slot)
are detected and counted in StackFaults, then ignored: no invalid-operation
exception is signalled and execution continues. A ninth push therefore
leaves ST(0) on a slot that is still in use.

Memory operands are converted from and to byte slices; the CPU side owns
segmentation and hands the FPU a view of the operand bytes.
*/
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/binary"
	"math"

	"github.com/sirupsen/logrus"
)

var x87SmallestNormal = math.Float64frombits(0x0010000000000000)

const (
	x87TagValid   = uint16(0)
	x87TagZero    = uint16(1)
	x87TagSpecial = uint16(2)
	x87TagEmpty   = uint16(3)
)

const (
	x87FSW_IE       = uint16(1 << 0)
	x87FSW_DE       = uint16(1 << 1)
	x87FSW_ZE       = uint16(1 << 2)
	x87FSW_OE       = uint16(1 << 3)
	x87FSW_UE       = uint16(1 << 4)
	x87FSW_PE       = uint16(1 << 5)
	x87FSW_SF       = uint16(1 << 6)
	x87FSW_ES       = uint16(1 << 7)
	x87FSW_C0       = uint16(1 << 8)
	x87FSW_C1       = uint16(1 << 9)
	x87FSW_C2       = uint16(1 << 10)
	x87FSW_TOPMask  = uint16(7 << 11)
	x87FSW_TOPShift = 11
	x87FSW_C3       = uint16(1 << 14)
	x87FSW_B        = uint16(1 << 15)

	x87FSW_Cond       = x87FSW_C0 | x87FSW_C1 | x87FSW_C2 | x87FSW_C3
	x87FSW_Exceptions = 0x3F
)

const (
	x87FCW_PCShift = 8
	x87FCW_RCShift = 10
	x87FCW_RCMask  = uint16(3 << x87FCW_RCShift)
	x87FCW_Default = uint16(0x037F)
)

const (
	x87FCW_RCNearest = uint16(0)
	x87FCW_RCDown    = uint16(1)
	x87FCW_RCUp      = uint16(2)
	x87FCW_RCChop    = uint16(3)
)

const (
	x87IndefInt16 = int16(-32768)
	x87IndefInt32 = int32(-2147483648)
	x87IndefInt64 = int64(-9223372036854775808)
)

// FPU_X87 is the coprocessor state of one logical processor.
type FPU_X87 struct {
	regs [8]float64
	used uint8 // bit i set when physical slot i holds a value

	FCW uint16
	FSW uint16

	// Last instruction and operand pointers, as stored by FSTENV/FSAVE.
	FIP uint32
	FCS uint16
	FDP uint32
	FDS uint16
	FOP uint16

	StackFaults uint64

	log *logrus.Entry
}

func NewFPU_X87() *FPU_X87 {
	f := &FPU_X87{log: logrus.NewEntry(logrus.StandardLogger())}
	f.Reset()
	return f
}

// Reset is FNINIT.
func (f *FPU_X87) Reset() {
	f.regs = [8]float64{}
	f.used = 0
	f.FCW = x87FCW_Default
	f.FSW = 0
	f.FIP, f.FCS, f.FDP, f.FDS, f.FOP = 0, 0, 0, 0, 0
}

func (f *FPU_X87) top() int {
	return int((f.FSW & x87FSW_TOPMask) >> x87FSW_TOPShift)
}

func (f *FPU_X87) setTop(top int) {
	f.FSW = (f.FSW &^ x87FSW_TOPMask) | (uint16(top&7) << x87FSW_TOPShift)
}

// Top returns the current stack top.
func (f *FPU_X87) Top() int { return f.top() }

func (f *FPU_X87) physReg(stIdx int) int {
	return (f.top() + stIdx) & 7
}

// ST returns ST(i) regardless of whether the slot is in use.
func (f *FPU_X87) ST(i int) float64 {
	return f.regs[f.physReg(i)]
}

// setST writes ST(i) and marks the slot used.
func (f *FPU_X87) setST(i int, v float64) {
	phys := f.physReg(i)
	f.regs[phys] = v
	f.used |= 1 << phys
}

// isEmpty reports whether ST(i) is unused.
func (f *FPU_X87) isEmpty(i int) bool {
	return f.used&(1<<f.physReg(i)) == 0
}

// Slot returns physical register i and whether it is in use.
func (f *FPU_X87) Slot(i int) (float64, bool) {
	return f.regs[i&7], f.used&(1<<(i&7)) != 0
}

// Tag derives the tag word from the used bitmap and the register values.
func (f *FPU_X87) Tag() uint16 {
	var tw uint16
	for i := range 8 {
		tag := x87TagEmpty
		if f.used&(1<<i) != 0 {
			tag = classifyTag(f.regs[i])
		}
		tw |= tag << (2 * i)
	}
	return tw
}

// SetTag restores the used bitmap from a tag word. Value classes are not
// reconstructed.
func (f *FPU_X87) SetTag(tw uint16) {
	f.used = 0
	for i := range 8 {
		if (tw>>(2*i))&3 != x87TagEmpty {
			f.used |= 1 << i
		}
	}
}

func classifyTag(v float64) uint16 {
	if v == 0 {
		return x87TagZero
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return x87TagSpecial
	}
	if math.Abs(v) < x87SmallestNormal {
		return x87TagSpecial
	}
	return x87TagValid
}

func (f *FPU_X87) setException(mask uint16) {
	f.FSW |= mask
	if (f.FCW & mask) == 0 {
		f.FSW |= x87FSW_ES | x87FSW_B
	}
}

func (f *FPU_X87) clearCond() {
	f.FSW &^= x87FSW_Cond
}

// stackFault counts and logs an overflow or underflow. Nothing is signalled.
func (f *FPU_X87) stackFault(kind string, slot int) {
	f.StackFaults++
	f.log.WithFields(logrus.Fields{
		"fault": kind,
		"slot":  slot,
		"top":   f.top(),
	}).Debug("x87 stack fault ignored")
}

// push decrements TOP and loads v. Pushing onto a used slot is refused.
func (f *FPU_X87) push(v float64) {
	next := (f.top() - 1) & 7
	if f.used&(1<<next) != 0 {
		f.stackFault("overflow", next)
		return
	}
	f.setTop(next)
	f.regs[next] = v
	f.used |= 1 << next
}

// pop frees ST(0) and increments TOP. An empty ST(0) is popped anyway.
func (f *FPU_X87) pop() float64 {
	top := f.top()
	if f.used&(1<<top) == 0 {
		f.stackFault("underflow", top)
	}
	v := f.regs[top]
	f.used &^= 1 << top
	f.setTop(top + 1)
	return v
}

// operand reads ST(i), noting an underflow when the slot is empty.
func (f *FPU_X87) operand(i int) float64 {
	if f.isEmpty(i) {
		f.stackFault("underflow", f.physReg(i))
	}
	return f.ST(i)
}

func (f *FPU_X87) roundingMode() uint16 {
	return (f.FCW & x87FCW_RCMask) >> x87FCW_RCShift
}

func (f *FPU_X87) roundPerFCW(v float64) float64 {
	switch f.roundingMode() {
	case x87FCW_RCDown:
		return math.Floor(v)
	case x87FCW_RCUp:
		return math.Ceil(v)
	case x87FCW_RCChop:
		return math.Trunc(v)
	default:
		return math.RoundToEven(v)
	}
}

// intFromFloat rounds per FCW and range-checks for a bits-wide integer,
// returning the integer indefinite on overflow or NaN.
func (f *FPU_X87) intFromFloat(v float64, bits int) int64 {
	r := f.roundPerFCW(v)
	if r != v {
		f.setException(x87FSW_PE)
	}
	lim := math.Ldexp(1, bits-1)
	if math.IsNaN(r) || r < -lim || r >= lim {
		f.setException(x87FSW_IE)
		switch bits {
		case 16:
			return int64(x87IndefInt16)
		case 32:
			return int64(x87IndefInt32)
		default:
			return x87IndefInt64
		}
	}
	return int64(r)
}

// -----------------------------------------------------------------------------
// Memory formats
// -----------------------------------------------------------------------------

// loadReal decodes a 4, 8 or 10 byte real.
func loadReal(b []byte) float64 {
	switch len(b) {
	case 4:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case 8:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return DecodeReal80(b).Float64()
	}
}

// storeReal encodes v into a 4, 8 or 10 byte real, flagging precision loss.
func (f *FPU_X87) storeReal(b []byte, v float64) {
	switch len(b) {
	case 4:
		f32 := float32(v)
		if float64(f32) != v && !math.IsNaN(v) {
			f.setException(x87FSW_PE)
		}
		binary.LittleEndian.PutUint32(b, math.Float32bits(f32))
	case 8:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		Real80FromFloat64(v).Encode(b)
	}
}

// loadInt decodes a 2, 4 or 8 byte signed integer.
func loadInt(b []byte) float64 {
	switch len(b) {
	case 2:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case 4:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	default:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	}
}

// storeInt rounds v per FCW into a 2, 4 or 8 byte signed integer.
func (f *FPU_X87) storeInt(b []byte, v float64) {
	i := f.intFromFloat(v, 8*len(b))
	switch len(b) {
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(i))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(i))
	default:
		binary.LittleEndian.PutUint64(b, uint64(i))
	}
}

// storeBCD rounds v per FCW and packs it, or stores the BCD indefinite.
func (f *FPU_X87) storeBCD(b []byte, v float64) {
	r := f.roundPerFCW(v)
	if r != v {
		f.setException(x87FSW_PE)
	}
	if !encodeBCD(b, r) {
		f.setException(x87FSW_IE)
		copy(b, x87BCDIndefinite[:])
	}
}

// -----------------------------------------------------------------------------
// Condition codes
// -----------------------------------------------------------------------------

// compare sets C3/C2/C0 for a ? b. Unordered sets all three; signalNaN
// additionally raises IE.
func (f *FPU_X87) compare(a, b float64, signalNaN bool) {
	f.clearCond()
	if math.IsNaN(a) || math.IsNaN(b) {
		f.FSW |= x87FSW_C0 | x87FSW_C2 | x87FSW_C3
		if signalNaN {
			f.setException(x87FSW_IE)
		}
		return
	}
	switch {
	case a > b:
	case a < b:
		f.FSW |= x87FSW_C0
	default:
		f.FSW |= x87FSW_C3
	}
}

// setQuotientFlags reports the low three quotient bits of FPREM in C0/C3/C1.
func (f *FPU_X87) setQuotientFlags(q uint64) {
	f.FSW &^= x87FSW_C0 | x87FSW_C1 | x87FSW_C3
	if q&4 != 0 {
		f.FSW |= x87FSW_C0
	}
	if q&2 != 0 {
		f.FSW |= x87FSW_C3
	}
	if q&1 != 0 {
		f.FSW |= x87FSW_C1
	}
}

// examine is FXAM on ST(0).
func (f *FPU_X87) examine() {
	f.clearCond()
	v := f.ST(0)
	if math.Signbit(v) {
		f.FSW |= x87FSW_C1
	}
	switch {
	case f.isEmpty(0):
		f.FSW |= x87FSW_C0 | x87FSW_C3
	case math.IsNaN(v):
		f.FSW |= x87FSW_C0
	case math.IsInf(v, 0):
		f.FSW |= x87FSW_C0 | x87FSW_C2
	case v == 0:
		f.FSW |= x87FSW_C3
	case math.Abs(v) < x87SmallestNormal:
		f.FSW |= x87FSW_C2 | x87FSW_C3
	default:
		f.FSW |= x87FSW_C2
	}
}

// x87ConstTable is FLD1, FLDL2T, FLDL2E, FLDPI, FLDLG2, FLDLN2, FLDZ.
var x87ConstTable = [7]float64{
	1.0,
	math.Log2(10),
	math.Log2E,
	math.Pi,
	math.Log10(2),
	math.Ln2,
	0.0,
}
