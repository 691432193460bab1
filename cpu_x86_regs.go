// cpu_x86_regs.go - x86 register file
//
// General registers live in one [8]uint32 block; the 8/16/32-bit names are
// views over it. Segment registers carry a cached base that is recomputed
// on every selector load.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// General register codes (ModRM reg/rm order)
const (
	x86RegEAX = 0
	x86RegECX = 1
	x86RegEDX = 2
	x86RegEBX = 3
	x86RegESP = 4
	x86RegEBP = 5
	x86RegESI = 6
	x86RegEDI = 7
)

// Segment register indices (ModRM sreg order)
const (
	x86SegES = 0
	x86SegCS = 1
	x86SegSS = 2
	x86SegDS = 3
	x86SegFS = 4
	x86SegGS = 5

	x86SegNone = -1
)

// Flag bit positions
const (
	x86FlagCF   = 1 << 0  // Carry Flag
	x86FlagR1   = 1 << 1  // Reserved, always set
	x86FlagPF   = 1 << 2  // Parity Flag
	x86FlagAF   = 1 << 4  // Auxiliary Carry Flag
	x86FlagZF   = 1 << 6  // Zero Flag
	x86FlagSF   = 1 << 7  // Sign Flag
	x86FlagTF   = 1 << 8  // Trap Flag
	x86FlagIF   = 1 << 9  // Interrupt Enable Flag
	x86FlagDF   = 1 << 10 // Direction Flag
	x86FlagOF   = 1 << 11 // Overflow Flag
	x86FlagIOPL = 3 << 12 // I/O Privilege Level (2 bits)
	x86FlagNT   = 1 << 14 // Nested Task
	x86FlagRF   = 1 << 16 // Resume Flag
	x86FlagVM   = 1 << 17 // Virtual-8086 Mode
	x86FlagAC   = 1 << 18 // Alignment Check

	x86FlagsArith = x86FlagCF | x86FlagPF | x86FlagAF | x86FlagZF | x86FlagSF | x86FlagOF
)

// CR0 bits used by the core
const (
	x86CR0PE = 1 << 0 // Protection Enable
	x86CR0MP = 1 << 1
	x86CR0EM = 1 << 2
	x86CR0TS = 1 << 3
	x86CR0ET = 1 << 4
	x86CR0PG = 1 << 31
)

// x86Segment is a selector plus the base address derived from it.
type x86Segment struct {
	Selector uint16
	Base     uint32
}

// x86TableReg holds GDTR/IDTR contents.
type x86TableReg struct {
	Base  uint32
	Limit uint16
}

// X86Registers is the architectural register state of one processor.
type X86Registers struct {
	gpr [8]uint32
	seg [6]x86Segment

	EIP   uint32
	Flags uint32

	CR   [5]uint32
	DR   [8]uint32
	GDTR x86TableReg
	IDTR x86TableReg
	LDTR uint16
	TR   uint16

	// DescriptorBase resolves a selector to a segment base while CR0.PE is
	// set. When nil, or when it reports !ok, the real-mode rule is used.
	DescriptorBase func(selector uint16) (base uint32, ok bool)
}

// Get32 returns a full 32-bit register.
func (r *X86Registers) Get32(code int) uint32 {
	return r.gpr[code&7]
}

// Set32 writes a full 32-bit register.
func (r *X86Registers) Set32(code int, v uint32) {
	r.gpr[code&7] = v
}

// Get16 returns the low 16 bits of a register.
func (r *X86Registers) Get16(code int) uint16 {
	return uint16(r.gpr[code&7])
}

// Set16 writes the low 16 bits of a register, preserving the high half.
func (r *X86Registers) Set16(code int, v uint16) {
	p := &r.gpr[code&7]
	*p = (*p &^ 0xFFFF) | uint32(v)
}

// Get8 returns an 8-bit register. Codes 0-3 select AL/CL/DL/BL, 4-7
// select AH/CH/DH/BH.
func (r *X86Registers) Get8(code int) byte {
	code &= 7
	if code < 4 {
		return byte(r.gpr[code])
	}
	return byte(r.gpr[code-4] >> 8)
}

// Set8 writes an 8-bit register.
func (r *X86Registers) Set8(code int, v byte) {
	code &= 7
	if code < 4 {
		r.gpr[code] = (r.gpr[code] &^ 0xFF) | uint32(v)
		return
	}
	p := &r.gpr[code-4]
	*p = (*p &^ 0xFF00) | uint32(v)<<8
}

// Get reads a register at the given width in bytes (1, 2 or 4).
func (r *X86Registers) Get(width, code int) uint32 {
	switch width {
	case 1:
		return uint32(r.Get8(code))
	case 2:
		return uint32(r.Get16(code))
	default:
		return r.Get32(code)
	}
}

// Set writes a register at the given width in bytes (1, 2 or 4).
func (r *X86Registers) Set(width, code int, v uint32) {
	switch width {
	case 1:
		r.Set8(code, byte(v))
	case 2:
		r.Set16(code, uint16(v))
	default:
		r.Set32(code, v)
	}
}

// Named views
func (r *X86Registers) EAX() uint32     { return r.gpr[x86RegEAX] }
func (r *X86Registers) ECX() uint32     { return r.gpr[x86RegECX] }
func (r *X86Registers) EDX() uint32     { return r.gpr[x86RegEDX] }
func (r *X86Registers) EBX() uint32     { return r.gpr[x86RegEBX] }
func (r *X86Registers) ESP() uint32     { return r.gpr[x86RegESP] }
func (r *X86Registers) EBP() uint32     { return r.gpr[x86RegEBP] }
func (r *X86Registers) ESI() uint32     { return r.gpr[x86RegESI] }
func (r *X86Registers) EDI() uint32     { return r.gpr[x86RegEDI] }
func (r *X86Registers) SetEAX(v uint32) { r.gpr[x86RegEAX] = v }
func (r *X86Registers) SetECX(v uint32) { r.gpr[x86RegECX] = v }
func (r *X86Registers) SetEDX(v uint32) { r.gpr[x86RegEDX] = v }
func (r *X86Registers) SetEBX(v uint32) { r.gpr[x86RegEBX] = v }
func (r *X86Registers) SetESP(v uint32) { r.gpr[x86RegESP] = v }
func (r *X86Registers) SetEBP(v uint32) { r.gpr[x86RegEBP] = v }
func (r *X86Registers) SetESI(v uint32) { r.gpr[x86RegESI] = v }
func (r *X86Registers) SetEDI(v uint32) { r.gpr[x86RegEDI] = v }

func (r *X86Registers) AX() uint16     { return r.Get16(x86RegEAX) }
func (r *X86Registers) CX() uint16     { return r.Get16(x86RegECX) }
func (r *X86Registers) DX() uint16     { return r.Get16(x86RegEDX) }
func (r *X86Registers) BX() uint16     { return r.Get16(x86RegEBX) }
func (r *X86Registers) SP() uint16     { return r.Get16(x86RegESP) }
func (r *X86Registers) BP() uint16     { return r.Get16(x86RegEBP) }
func (r *X86Registers) SI() uint16     { return r.Get16(x86RegESI) }
func (r *X86Registers) DI() uint16     { return r.Get16(x86RegEDI) }
func (r *X86Registers) IP() uint16     { return uint16(r.EIP) }
func (r *X86Registers) SetAX(v uint16) { r.Set16(x86RegEAX, v) }
func (r *X86Registers) SetCX(v uint16) { r.Set16(x86RegECX, v) }
func (r *X86Registers) SetDX(v uint16) { r.Set16(x86RegEDX, v) }
func (r *X86Registers) SetBX(v uint16) { r.Set16(x86RegEBX, v) }
func (r *X86Registers) SetSP(v uint16) { r.Set16(x86RegESP, v) }
func (r *X86Registers) SetBP(v uint16) { r.Set16(x86RegEBP, v) }
func (r *X86Registers) SetSI(v uint16) { r.Set16(x86RegESI, v) }
func (r *X86Registers) SetDI(v uint16) { r.Set16(x86RegEDI, v) }
func (r *X86Registers) SetIP(v uint16) { r.EIP = uint32(v) }

func (r *X86Registers) AL() byte     { return r.Get8(0) }
func (r *X86Registers) CL() byte     { return r.Get8(1) }
func (r *X86Registers) DL() byte     { return r.Get8(2) }
func (r *X86Registers) BL() byte     { return r.Get8(3) }
func (r *X86Registers) AH() byte     { return r.Get8(4) }
func (r *X86Registers) CH() byte     { return r.Get8(5) }
func (r *X86Registers) DH() byte     { return r.Get8(6) }
func (r *X86Registers) BH() byte     { return r.Get8(7) }
func (r *X86Registers) SetAL(v byte) { r.Set8(0, v) }
func (r *X86Registers) SetCL(v byte) { r.Set8(1, v) }
func (r *X86Registers) SetDL(v byte) { r.Set8(2, v) }
func (r *X86Registers) SetBL(v byte) { r.Set8(3, v) }
func (r *X86Registers) SetAH(v byte) { r.Set8(4, v) }
func (r *X86Registers) SetCH(v byte) { r.Set8(5, v) }
func (r *X86Registers) SetDH(v byte) { r.Set8(6, v) }
func (r *X86Registers) SetBH(v byte) { r.Set8(7, v) }

// =============================================================================
// Segment registers
// =============================================================================

// ProtectedMode reports whether CR0.PE is set.
func (r *X86Registers) ProtectedMode() bool {
	return r.CR[0]&x86CR0PE != 0
}

// Seg returns a segment selector.
func (r *X86Registers) Seg(idx int) uint16 {
	return r.seg[idx].Selector
}

// SegBase returns the cached base address of a segment register.
func (r *X86Registers) SegBase(idx int) uint32 {
	return r.seg[idx].Base
}

// LoadSeg loads a selector and recomputes the cached base.
func (r *X86Registers) LoadSeg(idx int, selector uint16) {
	base := uint32(selector) << 4
	if r.ProtectedMode() && r.DescriptorBase != nil {
		if b, ok := r.DescriptorBase(selector); ok {
			base = b
		}
	}
	r.seg[idx] = x86Segment{Selector: selector, Base: base}
}

// SetSegBase overrides a cached base without touching the selector. Used
// by flat 32-bit setups and snapshot restore.
func (r *X86Registers) SetSegBase(idx int, base uint32) {
	r.seg[idx].Base = base
}

func (r *X86Registers) CS() uint16 { return r.seg[x86SegCS].Selector }
func (r *X86Registers) DS() uint16 { return r.seg[x86SegDS].Selector }
func (r *X86Registers) ES() uint16 { return r.seg[x86SegES].Selector }
func (r *X86Registers) SS() uint16 { return r.seg[x86SegSS].Selector }
func (r *X86Registers) FS() uint16 { return r.seg[x86SegFS].Selector }
func (r *X86Registers) GS() uint16 { return r.seg[x86SegGS].Selector }

// =============================================================================
// Flags
// =============================================================================

func (r *X86Registers) getFlag(mask uint32) bool {
	return r.Flags&mask != 0
}

func (r *X86Registers) setFlag(mask uint32, set bool) {
	if set {
		r.Flags |= mask
	} else {
		r.Flags &^= mask
	}
}

func (r *X86Registers) CF() bool { return r.Flags&x86FlagCF != 0 }
func (r *X86Registers) PF() bool { return r.Flags&x86FlagPF != 0 }
func (r *X86Registers) AF() bool { return r.Flags&x86FlagAF != 0 }
func (r *X86Registers) ZF() bool { return r.Flags&x86FlagZF != 0 }
func (r *X86Registers) SF() bool { return r.Flags&x86FlagSF != 0 }
func (r *X86Registers) OF() bool { return r.Flags&x86FlagOF != 0 }
func (r *X86Registers) DF() bool { return r.Flags&x86FlagDF != 0 }
func (r *X86Registers) IF() bool { return r.Flags&x86FlagIF != 0 }
func (r *X86Registers) TF() bool { return r.Flags&x86FlagTF != 0 }

// condition evaluates Jcc/SETcc condition code cc (0-15).
func (r *X86Registers) condition(cc byte) bool {
	var v bool
	switch cc >> 1 {
	case 0:
		v = r.OF()
	case 1:
		v = r.CF()
	case 2:
		v = r.ZF()
	case 3:
		v = r.CF() || r.ZF()
	case 4:
		v = r.SF()
	case 5:
		v = r.PF()
	case 6:
		v = r.SF() != r.OF()
	case 7:
		v = r.ZF() || r.SF() != r.OF()
	}
	if cc&1 != 0 {
		return !v
	}
	return v
}
