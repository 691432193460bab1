// cpu_x86_system.go - Descriptor tables, control registers and the
// 286/386 system instruction subset
//
// Only what real-mode setup code and simple protected-mode entry sequences
// need: GDT descriptor reads for segment loads and LAR/LSL/VERR/VERW,
// GDTR/IDTR/LDTR/TR loads and stores, MSW/CR0 access. There is no privilege
// checking, no paging and no task switching.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// x86Descriptor is a decoded segment descriptor.
type x86Descriptor struct {
	Base   uint32
	Limit  uint32 // byte granular, after applying G
	Access byte
	Flags  byte // high nibble of byte 6: G, D/B, L, AVL
}

func (d x86Descriptor) present() bool  { return d.Access&0x80 != 0 }
func (d x86Descriptor) isCode() bool   { return d.Access&0x18 == 0x18 }
func (d x86Descriptor) isSystem() bool { return d.Access&0x10 == 0 }

// readDescriptor fetches a GDT entry. LDT selectors and the null selector
// are not resolvable.
func (c *CPU_X86) readDescriptor(selector uint16) (x86Descriptor, bool) {
	if selector&^3 == 0 || selector&4 != 0 {
		return x86Descriptor{}, false
	}
	off := uint32(selector &^ 7)
	if off+7 > uint32(c.GDTR.Limit) {
		return x86Descriptor{}, false
	}
	lo := c.bus.GetUInt32(c.GDTR.Base + off)
	hi := c.bus.GetUInt32(c.GDTR.Base + off + 4)
	d := x86Descriptor{
		Base:   lo>>16 | (hi&0xFF)<<16 | hi&0xFF000000,
		Limit:  lo&0xFFFF | hi&0x000F0000,
		Access: byte(hi >> 8),
		Flags:  byte(hi>>16) & 0xF0,
	}
	if d.Flags&0x80 != 0 {
		d.Limit = d.Limit<<12 | 0xFFF
	}
	return d, true
}

// gdtBase is the default DescriptorBase hook: segment loads in protected
// mode take their base from present GDT descriptors.
func (c *CPU_X86) gdtBase(selector uint16) (uint32, bool) {
	d, ok := c.readDescriptor(selector)
	if !ok || !d.present() {
		return 0, false
	}
	return d.Base, true
}

// -----------------------------------------------------------------------------
// Table registers
// -----------------------------------------------------------------------------

func (c *CPU_X86) storeTableReg(in *x86Inst, t x86TableReg) {
	base := t.Base
	if !in.Op32 {
		base &= 0x00FFFFFF
	}
	c.write16(in.Seg, in.EA, t.Limit)
	c.write32(in.Seg, in.EA+2, base)
}

func (c *CPU_X86) loadTableReg(in *x86Inst) x86TableReg {
	t := x86TableReg{
		Limit: c.read16(in.Seg, in.EA),
		Base:  c.read32(in.Seg, in.EA+2),
	}
	if !in.Op32 {
		t.Base &= 0x00FFFFFF
	}
	return t
}

func execSGDT(c *CPU_X86, in *x86Inst) { c.storeTableReg(in, c.GDTR) }
func execSIDT(c *CPU_X86, in *x86Inst) { c.storeTableReg(in, c.IDTR) }
func execLGDT(c *CPU_X86, in *x86Inst) { c.GDTR = c.loadTableReg(in) }
func execLIDT(c *CPU_X86, in *x86Inst) { c.IDTR = c.loadTableReg(in) }

func execSLDT(c *CPU_X86, in *x86Inst) { c.writeOperand(in, 0, uint32(c.LDTR)) }
func execSTR(c *CPU_X86, in *x86Inst)  { c.writeOperand(in, 0, uint32(c.TR)) }
func execLLDT(c *CPU_X86, in *x86Inst) { c.LDTR = uint16(c.readOperand(in, 0)) }
func execLTR(c *CPU_X86, in *x86Inst)  { c.TR = uint16(c.readOperand(in, 0)) }

// -----------------------------------------------------------------------------
// Machine status word
// -----------------------------------------------------------------------------

func execSMSW(c *CPU_X86, in *x86Inst) {
	c.writeOperand(in, 0, c.CR[0]&0xFFFF)
}

// execLMSW loads PE/MP/EM/TS; PE can be set but not cleared.
func execLMSW(c *CPU_X86, in *x86Inst) {
	v := c.readOperand(in, 0) & 0xF
	pe := c.CR[0] & x86CR0PE
	c.CR[0] = c.CR[0]&^0xF | v | pe
}

func execCLTS(c *CPU_X86, in *x86Inst) {
	c.CR[0] &^= x86CR0TS
}

// -----------------------------------------------------------------------------
// Descriptor queries
// -----------------------------------------------------------------------------

func execLAR(c *CPU_X86, in *x86Inst) {
	d, ok := c.readDescriptor(uint16(c.readOperand(in, 1)))
	c.setFlag(x86FlagZF, ok)
	if ok {
		c.writeOperand(in, 0, uint32(d.Access)<<8|uint32(d.Flags)<<16)
	}
}

func execLSL(c *CPU_X86, in *x86Inst) {
	d, ok := c.readDescriptor(uint16(c.readOperand(in, 1)))
	c.setFlag(x86FlagZF, ok)
	if ok {
		c.writeOperand(in, 0, d.Limit)
	}
}

// execVERx sets ZF when the segment is readable (VERR) or writable (VERW).
func execVERx(c *CPU_X86, in *x86Inst) {
	d, ok := c.readDescriptor(uint16(c.readOperand(in, 0)))
	if ok && (d.isSystem() || !d.present()) {
		ok = false
	}
	if ok {
		rw := d.Access&0x02 != 0
		if in.Info.Mnemonic == "VERW" {
			ok = !d.isCode() && rw
		} else {
			ok = !d.isCode() || rw
		}
	}
	c.setFlag(x86FlagZF, ok)
}

// execARPL raises the destination RPL to the source RPL.
func execARPL(c *CPU_X86, in *x86Inst) {
	dst := uint16(c.readOperand(in, 0))
	src := uint16(c.readOperand(in, 1))
	if dst&3 < src&3 {
		c.writeOperand(in, 0, uint32(dst&^3|src&3))
		c.Flags |= x86FlagZF
		return
	}
	c.Flags &^= x86FlagZF
}
