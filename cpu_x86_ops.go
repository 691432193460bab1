// cpu_x86_ops.go - x86 integer instruction handlers
//
// Handlers receive the decoded instruction with its effective address
// already resolved. Width-generic handlers are instantiated per operand
// width by the table builder.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// -----------------------------------------------------------------------------
// ALU
// -----------------------------------------------------------------------------

func hALU(op int) x86Handler {
	return x86Handler{execALU[uint8](op), execALU[uint16](op), execALU[uint32](op)}
}

func execALU[T x86Word](op int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		r, f := aluBinary(op, c.Flags, readOp[T](c, in, 0), readOp[T](c, in, 1))
		c.Flags = f
		if op != aluOpCMP {
			writeOp(c, in, 0, r)
		}
	}
}

var hTEST = x86Handler{execTEST[uint8], execTEST[uint16], execTEST[uint32]}

func execTEST[T x86Word](c *CPU_X86, in *x86Inst) {
	c.Flags = aluLogic(c.Flags, readOp[T](c, in, 0)&readOp[T](c, in, 1))
}

var hINC = x86Handler{execINC[uint8], execINC[uint16], execINC[uint32]}

func execINC[T x86Word](c *CPU_X86, in *x86Inst) {
	r, f := aluInc(c.Flags, readOp[T](c, in, 0))
	c.Flags = f
	writeOp(c, in, 0, r)
}

var hDEC = x86Handler{execDEC[uint8], execDEC[uint16], execDEC[uint32]}

func execDEC[T x86Word](c *CPU_X86, in *x86Inst) {
	r, f := aluDec(c.Flags, readOp[T](c, in, 0))
	c.Flags = f
	writeOp(c, in, 0, r)
}

var hNOT = hOne(func(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, ^c.readOperand(in, 0))
})

var hNEG = x86Handler{execNEG[uint8], execNEG[uint16], execNEG[uint32]}

func execNEG[T x86Word](c *CPU_X86, in *x86Inst) {
	r, f := aluNeg(c.Flags, readOp[T](c, in, 0))
	c.Flags = f
	writeOp(c, in, 0, r)
}

// -----------------------------------------------------------------------------
// Multiply and divide
// -----------------------------------------------------------------------------

// storeWide writes a double-width product: AX for bytes, DX:AX or EDX:EAX.
func (c *CPU_X86) storeWide(width int, lo, hi uint32) {
	switch width {
	case 1:
		c.SetAX(uint16(hi)<<8 | uint16(byte(lo)))
	case 2:
		c.SetAX(uint16(lo))
		c.SetDX(uint16(hi))
	default:
		c.SetEAX(lo)
		c.SetEDX(hi)
	}
}

// dividend returns AX, DX:AX or EDX:EAX.
func (c *CPU_X86) dividend(width int) uint64 {
	switch width {
	case 1:
		return uint64(c.AX())
	case 2:
		return uint64(c.DX())<<16 | uint64(c.AX())
	default:
		return uint64(c.EDX())<<32 | uint64(c.EAX())
	}
}

// storeQuotient writes quotient and remainder: AL/AH, AX/DX or EAX/EDX.
func (c *CPU_X86) storeQuotient(width int, q, r uint32) {
	switch width {
	case 1:
		c.SetAL(byte(q))
		c.SetAH(byte(r))
	case 2:
		c.SetAX(uint16(q))
		c.SetDX(uint16(r))
	default:
		c.SetEAX(q)
		c.SetEDX(r)
	}
}

var hMUL = x86Handler{execMUL[uint8], execMUL[uint16], execMUL[uint32]}

func execMUL[T x86Word](c *CPU_X86, in *x86Inst) {
	w := x86WidthOf[T]()
	lo, hi, f := aluMul(c.Flags, T(c.Get(w, x86RegEAX)), readOp[T](c, in, 0))
	c.Flags = f
	c.storeWide(w, uint32(lo), uint32(hi))
}

var hIMUL1 = x86Handler{execIMUL1[uint8], execIMUL1[uint16], execIMUL1[uint32]}

func execIMUL1[T x86Word](c *CPU_X86, in *x86Inst) {
	w := x86WidthOf[T]()
	lo, hi, f := aluIMul(c.Flags, T(c.Get(w, x86RegEAX)), readOp[T](c, in, 0))
	c.Flags = f
	c.storeWide(w, uint32(lo), uint32(hi))
}

// hIMULN covers the two- and three-operand forms; only the low half is kept.
var hIMULN = x86Handler{nil, execIMULN[uint16], execIMULN[uint32]}

func execIMULN[T x86Word](c *CPU_X86, in *x86Inst) {
	a, b := readOp[T](c, in, 0), readOp[T](c, in, 1)
	if len(in.Info.Operands) == 3 {
		a, b = readOp[T](c, in, 1), readOp[T](c, in, 2)
	}
	lo, _, f := aluIMul(c.Flags, a, b)
	c.Flags = f
	writeOp(c, in, 0, lo)
}

var hDIV = x86Handler{execDIV[uint8], execDIV[uint16], execDIV[uint32]}

func execDIV[T x86Word](c *CPU_X86, in *x86Inst) {
	w := x86WidthOf[T]()
	d := uint64(readOp[T](c, in, 0))
	if d == 0 {
		c.raise(x86VecDivide)
		return
	}
	n := c.dividend(w)
	q := n / d
	if q > uint64(^T(0)) {
		c.raise(x86VecDivide)
		return
	}
	c.storeQuotient(w, uint32(q), uint32(n%d))
}

var hIDIV = x86Handler{execIDIV[uint8], execIDIV[uint16], execIDIV[uint32]}

func execIDIV[T x86Word](c *CPU_X86, in *x86Inst) {
	w := x86WidthOf[T]()
	d := x86SignExtend(readOp[T](c, in, 0))
	if d == 0 {
		c.raise(x86VecDivide)
		return
	}
	bitsN := 2 * x86Bits[T]()
	n := int64(c.dividend(w)<<(64-bitsN)) >> (64 - bitsN)
	q, r := n/d, n%d
	limit := int64(1) << (x86Bits[T]() - 1)
	if q >= limit || q < -limit {
		c.raise(x86VecDivide)
		return
	}
	c.storeQuotient(w, uint32(q), uint32(r))
}

// -----------------------------------------------------------------------------
// BCD and accumulator conversions
// -----------------------------------------------------------------------------

func execDAA(c *CPU_X86, in *x86Inst) {
	al, oldAL := c.AL(), c.AL()
	oldCF := c.CF()
	f := c.Flags &^ x86FlagCF
	if al&0x0F > 9 || c.AF() {
		f = setCF(f, oldCF || al > 0xF9)
		al += 6
		f |= x86FlagAF
	} else {
		f &^= x86FlagAF
	}
	if oldAL > 0x99 || oldCF {
		al += 0x60
		f |= x86FlagCF
	} else {
		f &^= x86FlagCF
	}
	c.SetAL(al)
	c.Flags = flagsSZP(f, al)
}

func execDAS(c *CPU_X86, in *x86Inst) {
	al, oldAL := c.AL(), c.AL()
	oldCF := c.CF()
	f := c.Flags &^ x86FlagCF
	if al&0x0F > 9 || c.AF() {
		f = setCF(f, oldCF || al < 6)
		al -= 6
		f |= x86FlagAF
	} else {
		f &^= x86FlagAF
	}
	if oldAL > 0x99 || oldCF {
		al -= 0x60
		f |= x86FlagCF
	}
	c.SetAL(al)
	c.Flags = flagsSZP(f, al)
}

func execAAA(c *CPU_X86, in *x86Inst) {
	if c.AL()&0x0F > 9 || c.AF() {
		c.SetAX(c.AX() + 0x106)
		c.Flags |= x86FlagAF | x86FlagCF
	} else {
		c.Flags &^= x86FlagAF | x86FlagCF
	}
	c.SetAL(c.AL() & 0x0F)
}

func execAAS(c *CPU_X86, in *x86Inst) {
	if c.AL()&0x0F > 9 || c.AF() {
		c.SetAX(c.AX() - 6)
		c.SetAH(c.AH() - 1)
		c.Flags |= x86FlagAF | x86FlagCF
	} else {
		c.Flags &^= x86FlagAF | x86FlagCF
	}
	c.SetAL(c.AL() & 0x0F)
}

func execAAM(c *CPU_X86, in *x86Inst) {
	base := byte(in.Imm)
	if base == 0 {
		c.raise(x86VecDivide)
		return
	}
	al := c.AL()
	c.SetAH(al / base)
	c.SetAL(al % base)
	c.Flags = flagsSZP(c.Flags, c.AL())
}

func execAAD(c *CPU_X86, in *x86Inst) {
	al := c.AL() + c.AH()*byte(in.Imm)
	c.SetAX(uint16(al))
	c.Flags = flagsSZP(c.Flags, al)
}

func execSALC(c *CPU_X86, in *x86Inst) {
	if c.CF() {
		c.SetAL(0xFF)
	} else {
		c.SetAL(0)
	}
}

func execCBW(c *CPU_X86, in *x86Inst) {
	if in.Op32 {
		c.SetEAX(uint32(int32(int16(c.AX()))))
		return
	}
	c.SetAX(uint16(int16(int8(c.AL()))))
}

func execCWD(c *CPU_X86, in *x86Inst) {
	if in.Op32 {
		c.SetEDX(uint32(int32(c.EAX()) >> 31))
		return
	}
	c.SetDX(uint16(int16(c.AX()) >> 15))
}

// -----------------------------------------------------------------------------
// Data movement
// -----------------------------------------------------------------------------

var hMOV = hOne(func(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, c.readOperand(in, 1))
})

func execMOVfromSreg(c *CPU_X86, in *x86Inst) {
	if in.Reg > x86SegGS {
		c.invalid(in, "segment register")
		return
	}
	sel := uint32(c.Seg(int(in.Reg)))
	if !in.IsMem && in.Op32 {
		c.Set32(int(in.RM), sel)
		return
	}
	c.writeOperand(in, 0, sel)
}

func execMOVtoSreg(c *CPU_X86, in *x86Inst) {
	if in.Reg > x86SegGS {
		c.invalid(in, "segment register")
		return
	}
	c.LoadSeg(int(in.Reg), uint16(c.readOperand(in, 1)))
	if in.Reg == x86SegSS {
		c.intShadow = true
	}
}

func execMOVControl(c *CPU_X86, in *x86Inst) {
	for _, o := range in.Info.Operands {
		if o.Kind == opkCR && (in.Reg == 1 || in.Reg > 4) {
			c.invalid(in, "control register")
			return
		}
	}
	c.writeOperand(in, 0, c.readOperand(in, 1))
}

func hMOVX(signed bool) x86Handler {
	return hOne(func(c *CPU_X86, in *x86Inst) {
		v := c.readOperand(in, 1)
		if signed {
			switch in.Info.Operands[1].Width {
			case 1:
				v = uint32(int32(int8(v)))
			case 2:
				v = uint32(int32(int16(v)))
			}
		}
		c.writeOperand(in, 0, v)
	})
}

var hXCHG = hOne(func(c *CPU_X86, in *x86Inst) {
	a, b := c.readOperand(in, 0), c.readOperand(in, 1)
	c.writeOperand(in, 0, b)
	c.writeOperand(in, 1, a)
})

var hLEA = hOne(func(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, in.EA)
})

// farPointer reads an offset:selector pair from the instruction's memory
// operand.
func (c *CPU_X86) farPointer(in *x86Inst) (off uint32, sel uint16) {
	w := in.Info.OpSize
	off = c.readMem(in.Seg, in.EA, w)
	sel = c.read16(in.Seg, in.EA+uint32(w))
	return off, sel
}

func hLoadFar(seg int) x86Handler {
	return hOne(func(c *CPU_X86, in *x86Inst) {
		off, sel := c.farPointer(in)
		c.LoadSeg(seg, sel)
		c.writeOperand(in, 0, off)
		if seg == x86SegSS {
			c.intShadow = true
		}
	})
}

func execXLAT(c *CPU_X86, in *x86Inst) {
	seg := x86SegDS
	if in.Prefix.Seg != x86SegNone {
		seg = in.Prefix.Seg
	}
	off := c.EBX() + uint32(c.AL())
	if !in.Addr32 {
		off &= 0xFFFF
	}
	c.SetAL(c.read8(seg, off))
}

func execLAHF(c *CPU_X86, in *x86Inst) {
	c.SetAH(byte(c.Flags) | x86FlagR1)
}

func execSAHF(c *CPU_X86, in *x86Inst) {
	const mask = x86FlagSF | x86FlagZF | x86FlagAF | x86FlagPF | x86FlagCF
	c.Flags = (c.Flags &^ mask) | (uint32(c.AH()) & mask) | x86FlagR1
}

// -----------------------------------------------------------------------------
// Stack
// -----------------------------------------------------------------------------

var hPUSH = hOne(func(c *CPU_X86, in *x86Inst) {
	c.push(in.Info.OpSize, c.readOperand(in, 0))
})

var hPOP = hOne(func(c *CPU_X86, in *x86Inst) {
	v := c.pop(in.Info.OpSize)
	c.writeOperand(in, 0, v)
	if o := in.Info.Operands[0]; o.Kind == opkSeg && o.Fixed == x86SegSS {
		c.intShadow = true
	}
})

var hPUSHA = hOne(func(c *CPU_X86, in *x86Inst) {
	w := in.Info.OpSize
	sp := c.Get(w, x86RegESP)
	for r := x86RegEAX; r <= x86RegEDI; r++ {
		v := c.Get(w, r)
		if r == x86RegESP {
			v = sp
		}
		c.push(w, v)
	}
})

var hPOPA = hOne(func(c *CPU_X86, in *x86Inst) {
	w := in.Info.OpSize
	for r := x86RegEDI; r >= x86RegEAX; r-- {
		v := c.pop(w)
		if r != x86RegESP {
			c.Set(w, r, v)
		}
	}
})

// x86FlagsWritable are the EFLAGS bits POPF/IRET may change.
const x86FlagsWritable = x86FlagCF | x86FlagPF | x86FlagAF | x86FlagZF | x86FlagSF |
	x86FlagTF | x86FlagIF | x86FlagDF | x86FlagOF | x86FlagIOPL | x86FlagNT

// loadFlags installs a popped FLAGS/EFLAGS image of width bytes.
func (c *CPU_X86) loadFlags(v uint32, width int) {
	mask := uint32(x86FlagsWritable)
	if width == 4 {
		mask |= x86FlagAC
	}
	c.Flags = (c.Flags &^ mask) | (v & mask) | x86FlagR1
}

func execPUSHF(c *CPU_X86, in *x86Inst) {
	v := c.Flags | x86FlagR1
	if in.Op32 {
		v &^= x86FlagVM | x86FlagRF
	}
	c.push(in.Info.OpSize, v)
}

func execPOPF(c *CPU_X86, in *x86Inst) {
	c.loadFlags(c.pop(in.Info.OpSize), in.Info.OpSize)
}

func execENTER(c *CPU_X86, in *x86Inst) {
	w := in.Info.OpSize
	size := in.Imm & 0xFFFF
	level := int(in.Imm2 & 0x1F)
	c.push(w, c.Get(w, x86RegEBP))
	frame := c.stackPtr()
	if level > 0 {
		bp := c.Get(4, x86RegEBP)
		for i := 1; i < level; i++ {
			bp = (bp - uint32(w)) & c.stackMask()
			c.push(w, c.readMem(x86SegSS, bp, w))
		}
		c.push(w, frame)
	}
	if c.Stack32 {
		c.SetEBP(frame)
	} else {
		c.SetBP(uint16(frame))
	}
	c.setStackPtr((c.stackPtr() - size) & c.stackMask())
}

func execLEAVE(c *CPU_X86, in *x86Inst) {
	if c.Stack32 {
		c.SetESP(c.EBP())
	} else {
		c.SetSP(c.BP())
	}
	c.Set(in.Info.OpSize, x86RegEBP, c.pop(in.Info.OpSize))
}

// -----------------------------------------------------------------------------
// Flags
// -----------------------------------------------------------------------------

func execCMC(c *CPU_X86, in *x86Inst) {
	c.Flags ^= x86FlagCF
}

func execFlagOp(mask uint32, set bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		c.setFlag(mask, set)
	}
}

func execSTI(c *CPU_X86, in *x86Inst) {
	if !c.IF() {
		c.intShadow = true
	}
	c.Flags |= x86FlagIF
}

// -----------------------------------------------------------------------------
// Port I/O
// -----------------------------------------------------------------------------

// inPort reads width consecutive byte ports starting at port.
func (c *CPU_X86) inPort(port uint16, width int) uint32 {
	var v uint32
	for i := 0; i < width; i++ {
		v |= uint32(c.bus.ReadPortByte(port+uint16(i))) << (8 * i)
	}
	return v
}

// outPort writes width consecutive byte ports starting at port.
func (c *CPU_X86) outPort(port uint16, width int, v uint32) {
	for i := 0; i < width; i++ {
		c.bus.WritePortByte(port+uint16(i), byte(v>>(8*i)))
	}
}

var hIN = hOne(func(c *CPU_X86, in *x86Inst) {
	port := uint16(c.readOperand(in, 1))
	c.writeOperand(in, 0, c.inPort(port, in.Info.Width))
})

var hOUT = hOne(func(c *CPU_X86, in *x86Inst) {
	port := uint16(c.readOperand(in, 0))
	c.outPort(port, in.Info.Width, c.readOperand(in, 1))
})
