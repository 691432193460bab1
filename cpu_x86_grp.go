// cpu_x86_grp.go - Shift/rotate groups, bit operations and control transfer
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math/bits"

// -----------------------------------------------------------------------------
// Group 2: shifts and rotates
// -----------------------------------------------------------------------------

func hShift(op int) x86Handler {
	return x86Handler{execShift[uint8](op), execShift[uint16](op), execShift[uint32](op)}
}

func execShift[T x86Word](op int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		count := byte(c.readOperand(in, 1))
		if count&0x1F == 0 {
			return
		}
		r, f := aluShift(op, c.Flags, readOp[T](c, in, 0), count)
		c.Flags = f
		writeOp(c, in, 0, r)
	}
}

var hSHLD = x86Handler{nil, execSHLD[uint16], execSHLD[uint32]}

func execSHLD[T x86Word](c *CPU_X86, in *x86Inst) {
	r, f := aluSHLD(c.Flags, readOp[T](c, in, 0), readOp[T](c, in, 1), byte(c.readOperand(in, 2)))
	c.Flags = f
	writeOp(c, in, 0, r)
}

var hSHRD = x86Handler{nil, execSHRD[uint16], execSHRD[uint32]}

func execSHRD[T x86Word](c *CPU_X86, in *x86Inst) {
	r, f := aluSHRD(c.Flags, readOp[T](c, in, 0), readOp[T](c, in, 1), byte(c.readOperand(in, 2)))
	c.Flags = f
	writeOp(c, in, 0, r)
}

// -----------------------------------------------------------------------------
// Bit test and scan
// -----------------------------------------------------------------------------

const (
	bitOpTest = iota
	bitOpSet
	bitOpReset
	bitOpComplement
)

func hBitTest(op int) x86Handler {
	return x86Handler{nil, execBitTest[uint16](op), execBitTest[uint32](op)}
}

// execBitTest implements BT/BTS/BTR/BTC. With a register bit offset and a
// memory operand the offset is signed and may address outside the operand.
func execBitTest[T x86Word](op int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		n := x86Bits[T]()
		w := x86WidthOf[T]()
		off := T(c.readOperand(in, 1))
		seg, ea := in.Seg, in.EA
		if in.IsMem && in.Info.Operands[1].Kind == opkReg {
			shift := uint(bits.TrailingZeros(n))
			ea += uint32((x86SignExtend(off) >> shift) * int64(w))
			if !in.Addr32 {
				ea &= 0xFFFF
			}
		}
		bit := uint(off) & (n - 1)

		var v T
		if in.IsMem {
			v = T(c.readMem(seg, ea, w))
		} else {
			v = readOp[T](c, in, 0)
		}
		c.Flags = setCF(c.Flags, v>>bit&1 != 0)
		switch op {
		case bitOpTest:
			return
		case bitOpSet:
			v |= 1 << bit
		case bitOpReset:
			v &^= 1 << bit
		case bitOpComplement:
			v ^= 1 << bit
		}
		if in.IsMem {
			c.writeMem(seg, ea, w, uint32(v))
		} else {
			writeOp(c, in, 0, v)
		}
	}
}

var hBSF = hOne(func(c *CPU_X86, in *x86Inst) {
	src := c.readOperand(in, 1)
	if src == 0 {
		c.Flags |= x86FlagZF
		return
	}
	c.Flags &^= x86FlagZF
	c.writeOperand(in, 0, uint32(bits.TrailingZeros32(src)))
})

var hBSR = hOne(func(c *CPU_X86, in *x86Inst) {
	src := c.readOperand(in, 1)
	if src == 0 {
		c.Flags |= x86FlagZF
		return
	}
	c.Flags &^= x86FlagZF
	c.writeOperand(in, 0, uint32(bits.Len32(src)-1))
})

func execSETcc(c *CPU_X86, in *x86Inst) {
	var v uint32
	if c.condition(byte(in.Opcode & 0x0F)) {
		v = 1
	}
	c.writeOperand(in, 0, v)
}

// -----------------------------------------------------------------------------
// Jumps, calls and returns
// -----------------------------------------------------------------------------

func execJcc(c *CPU_X86, in *x86Inst) {
	if c.condition(byte(in.Opcode & 0x0F)) {
		c.jumpTo(c.EIP+in.Imm, in.Op32)
	}
}

func execJMPRel(c *CPU_X86, in *x86Inst) {
	c.jumpTo(c.EIP+in.Imm, in.Op32)
}

var hJMPNear = hOne(func(c *CPU_X86, in *x86Inst) {
	c.jumpTo(c.readOperand(in, 0), in.Op32)
})

// farTarget returns the offset:selector of a far JMP/CALL, either an
// immediate pointer or a pointer in memory.
func (c *CPU_X86) farTarget(in *x86Inst) (uint32, uint16) {
	if in.Info.Operands[0].Kind == opkPtr {
		return in.Imm, uint16(in.Imm2)
	}
	return c.farPointer(in)
}

func execJMPFar(c *CPU_X86, in *x86Inst) {
	off, sel := c.farTarget(in)
	c.LoadSeg(x86SegCS, sel)
	c.jumpTo(off, in.Op32)
}

func execCALLRel(c *CPU_X86, in *x86Inst) {
	c.push(in.Info.OpSize, c.EIP)
	c.jumpTo(c.EIP+in.Imm, in.Op32)
}

var hCALLNear = hOne(func(c *CPU_X86, in *x86Inst) {
	target := c.readOperand(in, 0)
	c.push(in.Info.OpSize, c.EIP)
	c.jumpTo(target, in.Op32)
})

func execCALLFar(c *CPU_X86, in *x86Inst) {
	off, sel := c.farTarget(in)
	c.push(in.Info.OpSize, uint32(c.CS()))
	c.push(in.Info.OpSize, c.EIP)
	c.LoadSeg(x86SegCS, sel)
	c.jumpTo(off, in.Op32)
}

// releaseStack drops the RET imm16 bytes.
func (c *CPU_X86) releaseStack(in *x86Inst) {
	if len(in.Info.Operands) > 0 {
		c.setStackPtr((c.stackPtr() + in.Imm&0xFFFF) & c.stackMask())
	}
}

func execRET(c *CPU_X86, in *x86Inst) {
	ip := c.pop(in.Info.OpSize)
	c.releaseStack(in)
	c.jumpTo(ip, in.Op32)
}

func execRETF(c *CPU_X86, in *x86Inst) {
	ip := c.pop(in.Info.OpSize)
	cs := c.pop(in.Info.OpSize)
	c.releaseStack(in)
	c.LoadSeg(x86SegCS, uint16(cs))
	c.jumpTo(ip, in.Op32)
}

func execIRET(c *CPU_X86, in *x86Inst) {
	w := in.Info.OpSize
	ip := c.pop(w)
	cs := c.pop(w)
	fl := c.pop(w)
	c.LoadSeg(x86SegCS, uint16(cs))
	c.jumpTo(ip, in.Op32)
	c.loadFlags(fl, w)
}

// countReg returns CX or ECX by address size.
func (c *CPU_X86) countReg(addr32 bool) uint32 {
	if addr32 {
		return c.ECX()
	}
	return uint32(c.CX())
}

func (c *CPU_X86) setCountReg(addr32 bool, v uint32) {
	if addr32 {
		c.SetECX(v)
		return
	}
	c.SetCX(uint16(v))
}

func execLOOP(c *CPU_X86, in *x86Inst) {
	n := c.countReg(in.Addr32) - 1
	c.setCountReg(in.Addr32, n)
	if !in.Addr32 {
		n &= 0xFFFF
	}
	take := n != 0
	switch in.Opcode {
	case 0xE0:
		take = take && !c.ZF()
	case 0xE1:
		take = take && c.ZF()
	}
	if take {
		c.jumpTo(c.EIP+in.Imm, in.Op32)
	}
}

func execJCXZ(c *CPU_X86, in *x86Inst) {
	if c.countReg(in.Addr32) == 0 {
		c.jumpTo(c.EIP+in.Imm, in.Op32)
	}
}

// -----------------------------------------------------------------------------
// Software interrupts and traps
// -----------------------------------------------------------------------------

func execINT3(c *CPU_X86, in *x86Inst) {
	c.interrupt(x86VecBreakpoint, c.EIP)
}

func execINT(c *CPU_X86, in *x86Inst) {
	c.interrupt(byte(in.Imm), c.EIP)
}

func execINTO(c *CPU_X86, in *x86Inst) {
	if c.OF() {
		c.interrupt(x86VecOverflow, c.EIP)
	}
}

var hBOUND = x86Handler{nil, execBOUND[uint16], execBOUND[uint32]}

func execBOUND[T x86Word](c *CPU_X86, in *x86Inst) {
	w := x86WidthOf[T]()
	idx := x86SignExtend(readOp[T](c, in, 0))
	lo := x86SignExtend(T(c.readMem(in.Seg, in.EA, w)))
	hi := x86SignExtend(T(c.readMem(in.Seg, in.EA+uint32(w), w)))
	if idx < lo || idx > hi {
		c.raise(x86VecBound)
	}
}

func execHLT(c *CPU_X86, in *x86Inst) {
	c.halt()
}

// execWAIT faults only when both CR0.MP and CR0.TS are set.
func execWAIT(c *CPU_X86, in *x86Inst) {
	if c.CR[0]&(x86CR0MP|x86CR0TS) == x86CR0MP|x86CR0TS {
		c.raise(x86VecNoFPU)
	}
}
