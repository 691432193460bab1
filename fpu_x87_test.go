// fpu_x87_test.go - x87 FPU unit tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func (r *cpuX86TestRig) storeFloat64(addr uint32, v float64) {
	r.mem.Load(addr, binary.LittleEndian.AppendUint64(nil, math.Float64bits(v)))
}

func TestFPU_X87_ResetState(t *testing.T) {
	f := NewFPU_X87()
	requireX86Equal(t, "FCW", f.FCW, x87FCW_Default)
	requireX86Equal(t, "FSW", f.FSW, 0)
	requireX86Equal(t, "Tag", f.Tag(), 0xFFFF)
	requireX86Equal(t, "Top", f.Top(), 0)
}

func TestFPU_X87_StackOverflowIsCounted(t *testing.T) {
	prog := make([]byte, 0, 19)
	for range 9 {
		prog = append(prog, 0xD9, 0xE8) // FLD1
	}
	r := newCPUX86TestRig(t, append(prog, 0xF4)...)
	r.step(t, 10)

	f := r.cpu.FPU
	requireX86Equal(t, "StackFaults", f.StackFaults, 1)
	requireX86Equal(t, "Top", f.Top(), 0)
	requireX86Equal(t, "Tag", f.Tag(), 0)
	if got := f.ST(0); got != 1 {
		t.Fatalf("ST(0) = %v", got)
	}
	if !r.cpu.Halted {
		t.Fatal("program did not reach HLT")
	}
}

func TestFPU_X87_StackUnderflowIsCounted(t *testing.T) {
	// FADDP ST(1), ST(0) on an empty stack
	r := newCPUX86TestRig(t, 0xDE, 0xC1, 0xF4)
	r.step(t, 2)
	if r.cpu.FPU.StackFaults == 0 {
		t.Fatal("underflow not counted")
	}
	if !r.cpu.Halted {
		t.Fatal("program did not reach HLT")
	}
}

func TestFPU_X87_TagDerived(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xD9, 0xEE, // FLDZ
		0xD9, 0xE8, // FLD1
	)
	f := r.cpu.FPU
	r.step(t, 1)
	requireX86Equal(t, "Tag after FLDZ", f.Tag(), 0x7FFF)
	r.step(t, 1)
	requireX86Equal(t, "Tag after FLD1", f.Tag(), 0x4FFF)

	f.SetTag(0xFFFF)
	requireX86Equal(t, "Tag after SetTag", f.Tag(), 0xFFFF)
	if _, used := f.Slot(6); used {
		t.Fatal("slot 6 still used")
	}
}

func TestFPU_X87_Arithmetic(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xD9, 0xE8, // FLD1
		0xD9, 0xE8, // FLD1
		0xDE, 0xC1, // FADDP ST(1), ST(0)
		0xD9, 0xFA, // FSQRT
		0xF4,
	)
	r.step(t, 5)
	f := r.cpu.FPU
	requireX86Equal(t, "Top", f.Top(), 7)
	if got, want := f.ST(0), math.Sqrt(2); got != want {
		t.Fatalf("ST(0) = %v, want %v", got, want)
	}
	requireX86Equal(t, "StackFaults", f.StackFaults, 0)
}

func TestFPU_X87_RoundingModes(t *testing.T) {
	tests := []struct {
		in   float64
		rc   uint16
		want int32
	}{
		{2.5, x87FCW_RCNearest, 2},
		{3.5, x87FCW_RCNearest, 4},
		{2.5, x87FCW_RCDown, 2},
		{2.5, x87FCW_RCUp, 3},
		{2.5, x87FCW_RCChop, 2},
		{-2.5, x87FCW_RCNearest, -2},
		{-2.5, x87FCW_RCDown, -3},
		{-2.5, x87FCW_RCUp, -2},
		{-2.5, x87FCW_RCChop, -2},
	}
	for _, tc := range tests {
		r := newCPUX86TestRig(t,
			0xDD, 0x06, 0x00, 0x02, // FLD QWORD [0200]
			0xD9, 0x2E, 0x10, 0x02, // FLDCW [0210]
			0xDB, 0x1E, 0x20, 0x02, // FISTP DWORD [0220]
			0xF4,
		)
		r.storeFloat64(0x200, tc.in)
		r.mem.SetUInt16(0x210, x87FCW_Default&^x87FCW_RCMask|tc.rc<<x87FCW_RCShift)
		r.step(t, 4)
		if got := int32(r.mem.GetUInt32(0x220)); got != tc.want {
			t.Errorf("FISTP %v rc=%d = %d, want %d", tc.in, tc.rc, got, tc.want)
		}
		if r.cpu.FPU.FSW&x87FSW_PE == 0 {
			t.Errorf("FISTP %v rc=%d: precision exception not flagged", tc.in, tc.rc)
		}
	}
}

func TestFPU_X87_FISTOverflowStoresIndefinite(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xDD, 0x06, 0x00, 0x02, // FLD QWORD [0200]
		0xDF, 0x1E, 0x20, 0x02, // FISTP WORD [0220]
		0xF4,
	)
	r.storeFloat64(0x200, 40000)
	r.step(t, 3)
	requireX86Equal(t, "stored", r.mem.GetUInt16(0x220), 0x8000)
	if r.cpu.FPU.FSW&x87FSW_IE == 0 {
		t.Fatal("invalid-operation not flagged")
	}
}

func TestFPU_X87_BCDRoundTrip(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xDB, 0x06, 0x00, 0x02, // FILD DWORD [0200]
		0xDF, 0x36, 0x20, 0x02, // FBSTP [0220]
		0xDF, 0x26, 0x20, 0x02, // FBLD [0220]
		0xDB, 0x1E, 0x40, 0x02, // FISTP DWORD [0240]
		0xF4,
	)
	v := int32(-1234567)
	r.mem.SetUInt32(0x200, uint32(v))
	r.step(t, 5)

	want := []byte{0x67, 0x45, 0x23, 0x01, 0, 0, 0, 0, 0, 0x80}
	if diff := cmp.Diff(want, r.mem.Bytes()[0x220:0x22A]); diff != "" {
		t.Fatalf("packed BCD (-want +got):\n%s", diff)
	}
	requireX86Equal(t, "reloaded", int32(r.mem.GetUInt32(0x240)), v)
	requireX86Equal(t, "Tag", r.cpu.FPU.Tag(), 0xFFFF)
}

func TestFPU_X87_BCDOutOfRange(t *testing.T) {
	var b [10]byte
	if encodeBCD(b[:], 1e18) {
		t.Fatal("19-digit value accepted")
	}
	if !encodeBCD(b[:], -999999999999999) {
		t.Fatal("15-digit value rejected")
	}
	if got := decodeBCD(b[:]); got != -999999999999999 {
		t.Fatalf("decoded %v", got)
	}
}

func TestFPU_X87_SaveRestore(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xD9, 0xE8, // FLD1
		0xD9, 0xEB, // FLDPI
		0xDD, 0x36, 0x00, 0x03, // FNSAVE [0300]
		0xDD, 0x26, 0x00, 0x03, // FRSTOR [0300]
		0xF4,
	)
	f := r.cpu.FPU
	r.step(t, 3)

	// FNSAVE reinitialises
	requireX86Equal(t, "Top after save", f.Top(), 0)
	requireX86Equal(t, "Tag after save", f.Tag(), 0xFFFF)
	requireX86Equal(t, "FCW after save", f.FCW, x87FCW_Default)

	img := r.mem.Bytes()[0x300 : 0x300+x87Save16Size]
	requireX86Equal(t, "saved FSW", binary.LittleEndian.Uint16(img[2:]), 6<<x87FSW_TOPShift)
	requireX86Equal(t, "saved FTW", binary.LittleEndian.Uint16(img[4:]), 0x0FFF)
	if got := DecodeReal80(img[x87Env16Size:]).Float64(); got != math.Pi {
		t.Fatalf("saved ST(0) = %v", got)
	}

	r.step(t, 2)
	requireX86Equal(t, "Top after restore", f.Top(), 6)
	if f.ST(0) != math.Pi || f.ST(1) != 1 {
		t.Fatalf("restored ST(0)=%v ST(1)=%v", f.ST(0), f.ST(1))
	}
	requireX86Equal(t, "Tag after restore", f.Tag(), 0x0FFF)
}

func TestFPU_X87_StoreEnvRealModePointers(t *testing.T) {
	r := newCPUX86TestRig(t)
	r.cpu.LoadSeg(x86SegCS, 0x1000)
	r.mem.Load(0x10100, []byte{
		0xD9, 0xE8, // FLD1
		0xD9, 0x36, 0x00, 0x03, // FNSTENV [0300]
		0xF4,
	})
	r.step(t, 3)

	env := r.mem.Bytes()[0x300 : 0x300+x87Env16Size]
	requireX86Equal(t, "FCW", binary.LittleEndian.Uint16(env[0:]), x87FCW_Default)
	requireX86Equal(t, "IP low", binary.LittleEndian.Uint16(env[6:]), 0x0100)
	requireX86Equal(t, "IP high|FOP", binary.LittleEndian.Uint16(env[8:]), 0x11E8)
	// FNSTENV masks every exception afterwards
	requireX86Equal(t, "FCW after", r.cpu.FPU.FCW&x87FSW_Exceptions, x87FSW_Exceptions)
}

func TestFPU_X87_StatusWordToAX(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xD9, 0xE8, // FLD1
		0xD9, 0xE8, // FLD1
		0xDE, 0xD9, // FCOMPP
		0xDF, 0xE0, // FNSTSW AX
		0xF4,
	)
	r.step(t, 5)
	requireX86Equal(t, "AX", r.cpu.AX(), x87FSW_C3)
	requireX86Equal(t, "Top", r.cpu.FPU.Top(), 0)
}

func TestFPU_X87_EmulationFault(t *testing.T) {
	r := newCPUX86TestRig(t, 0xD9, 0xE8)
	r.mem.SetUInt16(x86VecNoFPU*4, 0x0400)
	r.mem.SetByte(0x0400, 0xF4)
	r.cpu.CR[0] |= x86CR0EM
	r.step(t, 1)
	requireX86Equal(t, "EIP", r.cpu.EIP, 0x0400)
	requireX86Equal(t, "pushed IP", r.mem.GetUInt16(0x0FFA), x86TestOrigin)
	requireX86Equal(t, "Tag", r.cpu.FPU.Tag(), 0xFFFF)
}

func TestFPU_X87_Real80(t *testing.T) {
	var b [10]byte
	Real80FromFloat64(1).Encode(b[:])
	want := [10]byte{0, 0, 0, 0, 0, 0, 0, 0x80, 0xFF, 0x3F}
	if b != want {
		t.Fatalf("1.0 encodes as % X", b)
	}

	for _, v := range []float64{
		0, 1, -2.5, math.Pi, math.MaxFloat64, math.SmallestNonzeroFloat64,
		-x87SmallestNormal, math.Inf(1), math.Inf(-1),
	} {
		Real80FromFloat64(v).Encode(b[:])
		if got := DecodeReal80(b[:]).Float64(); got != v {
			t.Errorf("round trip %v = %v", v, got)
		}
	}

	Real80FromFloat64(math.NaN()).Encode(b[:])
	if e := DecodeReal80(b[:]); !e.IsNaN() || !math.IsNaN(e.Float64()) {
		t.Fatal("NaN lost")
	}

	// beyond double range
	big := Real80{Exp: 0x7FFE, Mant: real80IntBit}
	if !math.IsInf(big.Float64(), 1) {
		t.Fatalf("huge extended = %v", big.Float64())
	}
}
