// cpu_x86_modrm.go - ModR/M, SIB and operand resolution
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// x86Mem16 is the 16-bit r/m table: base, index, default segment.
var x86Mem16 = [8]struct {
	base, index int8
	seg         int8
}{
	{x86RegEBX, x86RegESI, x86SegDS}, // [BX+SI]
	{x86RegEBX, x86RegEDI, x86SegDS}, // [BX+DI]
	{x86RegEBP, x86RegESI, x86SegSS}, // [BP+SI]
	{x86RegEBP, x86RegEDI, x86SegSS}, // [BP+DI]
	{x86RegESI, -1, x86SegDS},        // [SI]
	{x86RegEDI, -1, x86SegDS},        // [DI]
	{x86RegEBP, -1, x86SegSS},        // [BP], or [disp16] when mod=0
	{x86RegEBX, -1, x86SegDS},        // [BX]
}

// decodeX86Mem consumes the SIB byte and displacement of a memory-form
// ModR/M and fills in.Mem. It returns the number of bytes consumed.
func decodeX86Mem(buf []byte, in *x86Inst) (int, error) {
	if !in.Addr32 {
		return decodeX86Mem16(buf, in)
	}
	return decodeX86Mem32(buf, in)
}

func decodeX86Mem16(buf []byte, in *x86Inst) (int, error) {
	e := x86Mem16[in.RM]
	m := x86MemForm{Base: e.base, Index: e.index, DefaultSeg: e.seg}
	n := 0
	switch {
	case in.Mod == 0 && in.RM == 6:
		m.Base, m.DefaultSeg = -1, x86SegDS
		d, k, err := readX86Imm(buf, 2, false)
		if err != nil {
			return 0, err
		}
		m.Disp, n = int32(d), k
	case in.Mod == 1:
		d, k, err := readX86Imm(buf, 1, true)
		if err != nil {
			return 0, err
		}
		m.Disp, n = int32(d), k
	case in.Mod == 2:
		d, k, err := readX86Imm(buf, 2, true)
		if err != nil {
			return 0, err
		}
		m.Disp, n = int32(d), k
	}
	in.Mem = m
	return n, nil
}

func decodeX86Mem32(buf []byte, in *x86Inst) (int, error) {
	m := x86MemForm{Base: int8(in.RM), Index: -1, DefaultSeg: x86SegDS}
	n := 0
	noBase := false
	switch {
	case in.RM == 4:
		if len(buf) < 1 {
			return 0, ErrX86Truncated
		}
		sib := buf[0]
		n = 1
		m.Scale = sib >> 6
		if idx := (sib >> 3) & 7; idx != 4 {
			m.Index = int8(idx)
		}
		m.Base = int8(sib & 7)
		if m.Base == x86RegEBP && in.Mod == 0 {
			noBase = true
		}
	case in.RM == 5 && in.Mod == 0:
		noBase = true
	}

	if noBase {
		m.Base = -1
		d, k, err := readX86Imm(buf[n:], 4, false)
		if err != nil {
			return 0, err
		}
		m.Disp, n = int32(d), n+k
	} else {
		if m.Base == x86RegESP || m.Base == x86RegEBP {
			m.DefaultSeg = x86SegSS
		}
		switch in.Mod {
		case 1:
			d, k, err := readX86Imm(buf[n:], 1, true)
			if err != nil {
				return 0, err
			}
			m.Disp, n = int32(d), n+k
		case 2:
			d, k, err := readX86Imm(buf[n:], 4, false)
			if err != nil {
				return 0, err
			}
			m.Disp, n = int32(d), n+k
		}
	}
	in.Mem = m
	return n, nil
}

// effectiveAddress applies current register values to the decoded form.
// The offset wraps at the address size.
func (c *CPU_X86) effectiveAddress(in *x86Inst) uint32 {
	m := &in.Mem
	off := uint32(m.Disp)
	if m.Base >= 0 {
		off += c.Get32(int(m.Base))
	}
	if m.Index >= 0 {
		off += c.Get32(int(m.Index)) << m.Scale
	}
	if !in.Addr32 {
		off &= 0xFFFF
	}
	return off
}

// -----------------------------------------------------------------------------
// Operand access
// -----------------------------------------------------------------------------

// readOperand returns operand i of the decoded instruction, zero-extended.
// Immediates come back already sign-extended where the table says so.
func (c *CPU_X86) readOperand(in *x86Inst, i int) uint32 {
	o := &in.Info.Operands[i]
	switch o.Kind {
	case opkRM:
		if in.IsMem {
			return c.readMem(in.Seg, in.EA, o.Width)
		}
		return c.Get(o.Width, int(in.RM))
	case opkReg:
		return c.Get(o.Width, in.regCode())
	case opkRMReg:
		return c.Get32(int(in.RM))
	case opkAcc:
		return c.Get(o.Width, x86RegEAX)
	case opkMoffs, opkMem:
		return c.readMem(in.Seg, in.EA, o.Width)
	case opkDX:
		return uint32(c.DX())
	case opkCL:
		return uint32(c.CL())
	case opkOne:
		return 1
	case opkSeg:
		return uint32(c.Seg(o.Fixed))
	case opkSreg:
		return uint32(c.Seg(int(in.Reg)))
	case opkCR:
		return c.CR[in.Reg]
	case opkDR:
		return c.DR[in.Reg]
	case opkImm, opkRel, opkPtr:
		if o.Slot == 1 {
			return in.Imm2
		}
		return in.Imm
	}
	return 0
}

// writeOperand stores v into operand i at the operand's width.
func (c *CPU_X86) writeOperand(in *x86Inst, i int, v uint32) {
	o := &in.Info.Operands[i]
	switch o.Kind {
	case opkRM:
		if in.IsMem {
			c.writeMem(in.Seg, in.EA, o.Width, v)
			return
		}
		c.Set(o.Width, int(in.RM), v)
	case opkReg:
		c.Set(o.Width, in.regCode(), v)
	case opkRMReg:
		c.Set32(int(in.RM), v)
	case opkAcc:
		c.Set(o.Width, x86RegEAX, v)
	case opkMoffs, opkMem:
		c.writeMem(in.Seg, in.EA, o.Width, v)
	case opkSeg:
		c.LoadSeg(o.Fixed, uint16(v))
	case opkSreg:
		c.LoadSeg(int(in.Reg), uint16(v))
	case opkCR:
		c.CR[in.Reg] = v
	case opkDR:
		c.DR[in.Reg] = v
	}
}

// readOp and writeOp are the typed forms used by width-generic handlers.
func readOp[T x86Word](c *CPU_X86, in *x86Inst, i int) T {
	return T(c.readOperand(in, i))
}

func writeOp[T x86Word](c *CPU_X86, in *x86Inst, i int, v T) {
	c.writeOperand(in, i, uint32(v))
}

// x86WidthOf returns the byte width of T.
func x86WidthOf[T x86Word]() int {
	return int(x86Bits[T]() / 8)
}
