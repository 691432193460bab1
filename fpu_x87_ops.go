// fpu_x87_ops.go - x87 instruction handlers
//
// Every ESC opcode enters through execFPU, which checks CR0.EM/TS and
// records the last-instruction pointers before running the table handler.
// Memory operand formats come from the operand metadata: Float selects
// real over integer, Width selects the size.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "math"

const (
	x87OpAdd = iota
	x87OpMul
	x87OpSub
	x87OpSubR
	x87OpDiv
	x87OpDivR
)

const (
	x87UnChs = iota
	x87UnAbs
	x87Un2XM1
	x87UnSqrt
	x87UnRound
	x87UnSin
	x87UnCos
)

// x87TrigLimit is the largest magnitude FSIN/FCOS/FPTAN/FSINCOS accept.
var x87TrigLimit = math.Ldexp(1, 63)

func (c *CPU_X86) execFPU(in *x86Inst) {
	if c.CR[0]&(x86CR0EM|x86CR0TS) != 0 {
		c.raise(x86VecNoFPU)
		return
	}
	if in.Info.Flags&fFPUCtl == 0 {
		f := c.FPU
		f.FIP = c.startEIP
		f.FCS = c.CS()
		f.FOP = uint16(in.Opcode&7)<<8 | uint16(in.ModRM)
		if in.IsMem {
			f.FDP = in.EA
			f.FDS = c.Seg(in.Seg)
		}
	}
	in.Info.exec(c, in)
}

// fpuMem runs fn over the bytes of the memory operand. A size of 0 takes
// the operand's declared width.
func (c *CPU_X86) fpuMem(in *x86Inst, size int, write bool, fn func(b []byte)) {
	if size == 0 {
		size = in.Info.Operands[0].Width
	}
	spanOrBytes(c.bus, c.linear(in.Seg, in.EA), size, write, fn)
}

// fpuLoadMem reads the memory operand as a real or an integer.
func (c *CPU_X86) fpuLoadMem(in *x86Inst) float64 {
	var v float64
	float := in.Info.Operands[0].Float
	c.fpuMem(in, 0, false, func(b []byte) {
		if float {
			v = loadReal(b)
		} else {
			v = loadInt(b)
		}
	})
	return v
}

// fpuOperands resolves the destination ST index and source value of a
// two-operand arithmetic form. Memory forms operate on ST(0).
func (c *CPU_X86) fpuOperands(in *x86Inst) (dst int, src float64) {
	f := c.FPU
	ops := in.Info.Operands
	switch {
	case ops[0].Kind == opkMem:
		return 0, c.fpuLoadMem(in)
	case ops[0].Kind == opkST0:
		return 0, f.operand(int(in.RM))
	default:
		return int(in.RM), f.operand(0)
	}
}

// -----------------------------------------------------------------------------
// Arithmetic
// -----------------------------------------------------------------------------

func (f *FPU_X87) arith(op int, a, b float64) float64 {
	var r float64
	switch op {
	case x87OpAdd:
		r = a + b
	case x87OpMul:
		r = a * b
	case x87OpSub:
		r = a - b
	case x87OpSubR:
		r = b - a
	case x87OpDiv:
		if b == 0 && a != 0 && !math.IsNaN(a) && !math.IsInf(a, 0) {
			f.setException(x87FSW_ZE)
		}
		r = a / b
	case x87OpDivR:
		if a == 0 && b != 0 && !math.IsNaN(b) && !math.IsInf(b, 0) {
			f.setException(x87FSW_ZE)
		}
		r = b / a
	}
	if math.IsNaN(r) && !math.IsNaN(a) && !math.IsNaN(b) {
		f.setException(x87FSW_IE)
	}
	return r
}

func execFArith(op int, pop bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		dst, src := c.fpuOperands(in)
		f.FSW &^= x87FSW_C1
		f.setST(dst, f.arith(op, f.operand(dst), src))
		if pop {
			f.pop()
		}
	}
}

// execFCom compares ST(0) with the operand (ST(1) when there is none),
// then pops the stack pops times.
func execFCom(pops int, unordered bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		var src float64
		switch {
		case len(in.Info.Operands) == 0:
			src = f.operand(1)
		case in.Info.Operands[0].Kind == opkMem:
			src = c.fpuLoadMem(in)
		default:
			src = f.operand(int(in.RM))
		}
		f.compare(f.operand(0), src, !unordered)
		for range pops {
			f.pop()
		}
	}
}

func execFTST(c *CPU_X86, in *x86Inst) {
	c.FPU.compare(c.FPU.operand(0), 0, true)
}

func execFXAM(c *CPU_X86, in *x86Inst) {
	c.FPU.examine()
}

// -----------------------------------------------------------------------------
// Loads and stores
// -----------------------------------------------------------------------------

func execFLD(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	var v float64
	if in.Info.Operands[0].Kind == opkMem {
		v = c.fpuLoadMem(in)
	} else {
		v = f.operand(int(in.RM))
	}
	f.push(v)
}

func execFST(pop bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		v := f.operand(0)
		if in.Info.Operands[0].Kind == opkMem {
			c.fpuMem(in, 0, true, func(b []byte) { f.storeReal(b, v) })
		} else {
			f.setST(int(in.RM), v)
		}
		if pop {
			f.pop()
		}
	}
}

func execFILD(c *CPU_X86, in *x86Inst) {
	c.FPU.push(c.fpuLoadMem(in))
}

func execFIST(pop bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		v := f.operand(0)
		c.fpuMem(in, 0, true, func(b []byte) { f.storeInt(b, v) })
		if pop {
			f.pop()
		}
	}
}

func execFBLD(c *CPU_X86, in *x86Inst) {
	var v float64
	c.fpuMem(in, 10, false, func(b []byte) { v = decodeBCD(b) })
	c.FPU.push(v)
}

func execFBSTP(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	v := f.operand(0)
	c.fpuMem(in, 10, true, func(b []byte) { f.storeBCD(b, v) })
	f.pop()
}

func execFLDConst(i int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		c.FPU.push(x87ConstTable[i])
	}
}

func execFXCH(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	i := int(in.RM)
	a, b := f.operand(0), f.operand(i)
	f.setST(0, b)
	f.setST(i, a)
}

func execFFREE(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	f.used &^= 1 << f.physReg(int(in.RM))
}

func execFDECSTP(c *CPU_X86, in *x86Inst) {
	c.FPU.FSW &^= x87FSW_C1
	c.FPU.setTop(c.FPU.top() - 1)
}

func execFINCSTP(c *CPU_X86, in *x86Inst) {
	c.FPU.FSW &^= x87FSW_C1
	c.FPU.setTop(c.FPU.top() + 1)
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func execFLDCW(c *CPU_X86, in *x86Inst) {
	c.FPU.FCW = uint16(c.readOperand(in, 0))
}

func execFNSTCW(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, uint32(c.FPU.FCW))
}

func execFNSTSW(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, uint32(c.FPU.FSW))
}

func execFNCLEX(c *CPU_X86, in *x86Inst) {
	c.FPU.FSW &^= x87FSW_Exceptions | x87FSW_SF | x87FSW_ES | x87FSW_B
}

func execFNINIT(c *CPU_X86, in *x86Inst) {
	c.FPU.Reset()
}

func execFNOP(c *CPU_X86, in *x86Inst) {}

func execFLDENV(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	c.fpuMem(in, x87EnvSize(in.Op32), false, func(b []byte) {
		f.loadEnv(b, in.Op32, c.ProtectedMode())
	})
}

// execFNSTENV stores the environment, then masks all exceptions.
func execFNSTENV(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	c.fpuMem(in, x87EnvSize(in.Op32), true, func(b []byte) {
		f.storeEnv(b, in.Op32, c.ProtectedMode())
	})
	f.FCW |= x87FSW_Exceptions
}

func execFRSTOR(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	c.fpuMem(in, x87SaveSize(in.Op32), false, func(b []byte) {
		f.restore(b, in.Op32, c.ProtectedMode())
	})
}

func execFNSAVE(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	c.fpuMem(in, x87SaveSize(in.Op32), true, func(b []byte) {
		f.save(b, in.Op32, c.ProtectedMode())
	})
}

// -----------------------------------------------------------------------------
// Unary and transcendental
// -----------------------------------------------------------------------------

func execFUnary(kind int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		x := f.operand(0)
		f.FSW &^= x87FSW_C1
		var r float64
		switch kind {
		case x87UnChs:
			r = -x
		case x87UnAbs:
			r = math.Abs(x)
		case x87Un2XM1:
			r = math.Expm1(x * math.Ln2)
		case x87UnSqrt:
			if x < 0 {
				f.setException(x87FSW_IE)
			}
			r = math.Sqrt(x)
		case x87UnRound:
			r = f.roundPerFCW(x)
			if r != x {
				f.setException(x87FSW_PE)
			}
		case x87UnSin, x87UnCos:
			if !f.trigInRange(x) {
				return
			}
			if kind == x87UnSin {
				r = math.Sin(x)
			} else {
				r = math.Cos(x)
			}
		}
		f.setST(0, r)
	}
}

// trigInRange clears C2, or sets it and reports false when x is outside the
// range the trig instructions reduce.
func (f *FPU_X87) trigInRange(x float64) bool {
	if math.Abs(x) >= x87TrigLimit {
		f.FSW |= x87FSW_C2
		return false
	}
	f.FSW &^= x87FSW_C2
	return true
}

func execFPTAN(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	x := f.operand(0)
	if !f.trigInRange(x) {
		return
	}
	f.setST(0, math.Tan(x))
	f.push(1.0)
}

func execFSINCOS(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	x := f.operand(0)
	if !f.trigInRange(x) {
		return
	}
	s, co := math.Sincos(x)
	f.setST(0, s)
	f.push(co)
}

func execFPATAN(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	f.setST(1, math.Atan2(f.operand(1), f.operand(0)))
	f.pop()
}

// execFYL2X computes ST(1) * log2(ST(0)), or log2(ST(0)+1) for FYL2XP1,
// and pops.
func execFYL2X(p1 bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		x, y := f.operand(0), f.operand(1)
		var l float64
		if p1 {
			l = math.Log1p(x) / math.Ln2
		} else {
			if x == 0 {
				f.setException(x87FSW_ZE)
			} else if x < 0 {
				f.setException(x87FSW_IE)
			}
			l = math.Log2(x)
		}
		f.setST(1, y*l)
		f.pop()
	}
}

// execFXTRACT replaces ST(0) with its unbiased exponent and pushes the
// significand, so ST(0) ends up in [1,2).
func execFXTRACT(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	x := f.operand(0)
	if x == 0 {
		f.setException(x87FSW_ZE)
		f.setST(0, math.Inf(-1))
		f.push(x)
		return
	}
	if math.IsInf(x, 0) || math.IsNaN(x) {
		f.setST(0, math.Abs(x))
		f.push(x)
		return
	}
	frac, exp := math.Frexp(x)
	f.setST(0, float64(exp-1))
	f.push(frac * 2)
}

// execFPREM computes the partial remainder of ST(0) by ST(1): truncating
// quotient for FPREM, round-to-nearest for FPREM1. When the exponents
// differ by 64 or more only a partial reduction is done and C2 is set.
func execFPREM(ieee bool) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		f := c.FPU
		a, b := f.operand(0), f.operand(1)
		if b == 0 || math.IsInf(a, 0) || math.IsNaN(a) || math.IsNaN(b) {
			f.setException(x87FSW_IE)
			f.FSW &^= x87FSW_C2
			f.setST(0, math.NaN())
			return
		}
		if math.IsInf(b, 0) || a == 0 {
			f.FSW &^= x87FSW_C2
			f.setQuotientFlags(0)
			return
		}

		_, ea := math.Frexp(a)
		_, eb := math.Frexp(b)
		if d := ea - eb; d >= 64 {
			// Reduce by b*2^(d-32) and report an incomplete result.
			m := math.Ldexp(math.Abs(b), d-32)
			f.setST(0, math.Mod(a, m))
			f.FSW |= x87FSW_C2
			return
		}

		var r float64
		var q float64
		if ieee {
			r = math.Remainder(a, b)
			q = math.RoundToEven(math.Mod(math.Abs(a), 8*math.Abs(b)) / math.Abs(b))
		} else {
			r = math.Mod(a, b)
			q = math.Trunc(math.Mod(math.Abs(a), 8*math.Abs(b)) / math.Abs(b))
		}
		f.setST(0, r)
		f.FSW &^= x87FSW_C2
		f.setQuotientFlags(uint64(q) & 7)
	}
}

// execFSCALE multiplies ST(0) by 2 to the truncated ST(1).
func execFSCALE(c *CPU_X86, in *x86Inst) {
	f := c.FPU
	x, s := f.operand(0), math.Trunc(f.operand(1))
	switch {
	case math.IsNaN(s):
		f.setST(0, math.NaN())
	case s > 1<<16:
		f.setST(0, x*math.Inf(1))
	case s < -(1 << 16):
		f.setST(0, x*0)
	default:
		f.setST(0, math.Ldexp(x, int(s)))
	}
}
