// cpu_x86_string.go - String primitives and the REP/REPE/REPNE wrapper
//
// A repeated string instruction runs one element per Step. While the loop
// continues EIP is rewound to the first prefix byte so the next Step decodes
// the same instruction again; interrupts are therefore taken between
// iterations exactly as on hardware.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

const (
	strMOVS = iota
	strCMPS
	strSCAS
	strSTOS
	strLODS
	strINS
	strOUTS
)

func hString(op int) x86Handler {
	return x86Handler{execString[uint8](op), execString[uint16](op), execString[uint32](op)}
}

func execString[T x86Word](op int) x86Exec {
	return func(c *CPU_X86, in *x86Inst) {
		rep := in.Prefix.Rep
		if rep == x86RepNone {
			stringElement[T](c, in, op)
			return
		}
		n := c.countReg(in.Addr32)
		if n == 0 {
			return
		}
		stringElement[T](c, in, op)
		n--
		c.setCountReg(in.Addr32, n)
		c.RepIterations++

		more := n != 0
		if more && (op == strCMPS || op == strSCAS) {
			if rep == x86RepE {
				more = c.ZF()
			} else {
				more = !c.ZF()
			}
		}
		if more {
			c.EIP = c.startEIP
		}
	}
}

// stringSrcSeg is DS unless overridden; the destination is always ES.
func stringSrcSeg(in *x86Inst) int {
	if in.Prefix.Seg != x86SegNone {
		return in.Prefix.Seg
	}
	return x86SegDS
}

// indexReg reads SI/DI or ESI/EDI by address size.
func (c *CPU_X86) indexReg(code int, addr32 bool) uint32 {
	if addr32 {
		return c.Get32(code)
	}
	return uint32(c.Get16(code))
}

// stepIndex advances SI/DI (or ESI/EDI) by width, backwards when DF is set.
func (c *CPU_X86) stepIndex(code int, addr32 bool, width int) {
	delta := uint32(width)
	if c.DF() {
		delta = -delta
	}
	if addr32 {
		c.Set32(code, c.Get32(code)+delta)
		return
	}
	c.Set16(code, c.Get16(code)+uint16(delta))
}

func stringElement[T x86Word](c *CPU_X86, in *x86Inst, op int) {
	w := x86WidthOf[T]()
	a32 := in.Addr32
	si := c.indexReg(x86RegESI, a32)
	di := c.indexReg(x86RegEDI, a32)

	switch op {
	case strMOVS:
		v := c.readMem(stringSrcSeg(in), si, w)
		c.writeMem(x86SegES, di, w, v)
		c.stepIndex(x86RegESI, a32, w)
		c.stepIndex(x86RegEDI, a32, w)
	case strCMPS:
		a := T(c.readMem(stringSrcSeg(in), si, w))
		b := T(c.readMem(x86SegES, di, w))
		_, c.Flags = aluSub(c.Flags, a, b, false)
		c.stepIndex(x86RegESI, a32, w)
		c.stepIndex(x86RegEDI, a32, w)
	case strSCAS:
		b := T(c.readMem(x86SegES, di, w))
		_, c.Flags = aluSub(c.Flags, T(c.Get(w, x86RegEAX)), b, false)
		c.stepIndex(x86RegEDI, a32, w)
	case strSTOS:
		c.writeMem(x86SegES, di, w, c.Get(w, x86RegEAX))
		c.stepIndex(x86RegEDI, a32, w)
	case strLODS:
		c.Set(w, x86RegEAX, c.readMem(stringSrcSeg(in), si, w))
		c.stepIndex(x86RegESI, a32, w)
	case strINS:
		c.writeMem(x86SegES, di, w, c.inPort(c.DX(), w))
		c.stepIndex(x86RegEDI, a32, w)
	case strOUTS:
		c.outPort(c.DX(), w, c.readMem(stringSrcSeg(in), si, w))
		c.stepIndex(x86RegESI, a32, w)
	}
}
