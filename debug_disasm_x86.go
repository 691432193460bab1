// debug_disasm_x86.go - X86 disassembler
//
// The listing is produced from the same decoder and opcode table the CPU
// executes, so instruction lengths and operand forms always agree with
// execution. Bytes that do not decode are listed as DB.

package main

import (
	"fmt"
	"strings"
)

var x86Reg32 = [8]string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}
var x86Reg16 = [8]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI"}
var x86Reg8 = [8]string{"AL", "CL", "DL", "BL", "AH", "CH", "DH", "BH"}
var x86SegRegs = [6]string{"ES", "CS", "SS", "DS", "FS", "GS"}

// x86MaxInstLen is the architectural instruction length limit.
const x86MaxInstLen = 15

// DecodeX86 decodes one instruction for display. ok is false when buf does
// not start with a complete instruction.
func DecodeX86(buf []byte, code32 bool) (in x86Inst, ok bool) {
	if err := decodeX86(buf, code32, &in); err != nil {
		return x86Inst{}, false
	}
	return in, true
}

func x86RegName(width, code int) string {
	switch width {
	case 1:
		return x86Reg8[code&7]
	case 2:
		return x86Reg16[code&7]
	default:
		return x86Reg32[code&7]
	}
}

func x86SizePtr(width int) string {
	switch width {
	case 1:
		return "BYTE PTR "
	case 2:
		return "WORD PTR "
	case 4:
		return "DWORD PTR "
	case 6:
		return "FWORD PTR "
	case 8:
		return "QWORD PTR "
	case 10:
		return "TBYTE PTR "
	}
	return ""
}

// formatX86Mem renders a memory operand, with its segment when overridden.
func formatX86Mem(in *x86Inst, width int) string {
	var sb strings.Builder
	sb.WriteString(x86SizePtr(width))
	if in.Prefix.Seg != x86SegNone {
		sb.WriteString(x86SegRegs[in.Prefix.Seg])
		sb.WriteByte(':')
	}
	sb.WriteByte('[')
	m := in.Mem
	names := x86Reg16
	if in.Addr32 {
		names = x86Reg32
	}
	terms := 0
	if m.Base >= 0 {
		sb.WriteString(names[m.Base])
		terms++
	}
	if m.Index >= 0 {
		if terms > 0 {
			sb.WriteByte('+')
		}
		sb.WriteString(names[m.Index])
		if m.Scale > 0 {
			fmt.Fprintf(&sb, "*%d", 1<<m.Scale)
		}
		terms++
	}
	switch {
	case terms == 0 && in.Addr32:
		fmt.Fprintf(&sb, "0x%08X", uint32(m.Disp))
	case terms == 0:
		fmt.Fprintf(&sb, "0x%04X", uint16(m.Disp))
	case m.Disp > 0:
		fmt.Fprintf(&sb, "+0x%02X", m.Disp)
	case m.Disp < 0:
		fmt.Fprintf(&sb, "-0x%02X", -int64(m.Disp))
	}
	sb.WriteByte(']')
	return sb.String()
}

func formatX86Imm(v uint32, width int) string {
	switch width {
	case 1:
		return fmt.Sprintf("0x%02X", v&0xFF)
	case 2:
		return fmt.Sprintf("0x%04X", v&0xFFFF)
	}
	return fmt.Sprintf("0x%08X", v)
}

// x86BranchTarget is the destination offset of a relative transfer at ip.
func x86BranchTarget(in *x86Inst, ip uint32) uint32 {
	t := ip + uint32(in.Len) + in.Imm
	if !in.Op32 {
		t &= 0xFFFF
	}
	return t
}

func formatX86Operand(in *x86Inst, o *x86Operand, ip uint32) string {
	switch o.Kind {
	case opkRM:
		if in.IsMem {
			return formatX86Mem(in, o.Width)
		}
		return x86RegName(o.Width, int(in.RM))
	case opkReg:
		return x86RegName(o.Width, in.regCode())
	case opkRMReg:
		return x86Reg32[in.RM]
	case opkCR:
		return fmt.Sprintf("CR%d", in.Reg)
	case opkDR:
		return fmt.Sprintf("DR%d", in.Reg)
	case opkAcc:
		return x86RegName(o.Width, x86RegEAX)
	case opkDX:
		return "DX"
	case opkCL:
		return "CL"
	case opkOne:
		return "1"
	case opkSeg:
		return x86SegRegs[o.Fixed]
	case opkSreg:
		if in.Reg < 6 {
			return x86SegRegs[in.Reg]
		}
		return fmt.Sprintf("SR%d", in.Reg)
	case opkImm:
		v := in.Imm
		if o.Slot == 1 {
			v = in.Imm2
		}
		w := o.Width
		if o.Signed {
			w = in.Info.Width
		}
		return formatX86Imm(v, w)
	case opkRel:
		if in.Op32 {
			return fmt.Sprintf("0x%08X", x86BranchTarget(in, ip))
		}
		return fmt.Sprintf("0x%04X", x86BranchTarget(in, ip))
	case opkMoffs, opkMem:
		return formatX86Mem(in, o.Width)
	case opkPtr:
		return fmt.Sprintf("0x%04X:%s", in.Imm2, formatX86Imm(in.Imm, o.Width-2))
	case opkST:
		return fmt.Sprintf("ST(%d)", in.RM)
	case opkST0:
		return "ST"
	}
	return "?"
}

// FormatX86 renders a decoded instruction located at offset ip.
func FormatX86(in *x86Inst, ip uint32) string {
	if in.Info == nil {
		return ""
	}
	if in.Opcode == 0x90 && in.Info.Mnemonic == "XCHG" {
		return "NOP"
	}
	var sb strings.Builder
	if in.Prefix.Lock {
		sb.WriteString("LOCK ")
	}
	if in.Info.Flags&fString != 0 {
		m := in.Info.Mnemonic
		compares := strings.HasPrefix(m, "CMPS") || strings.HasPrefix(m, "SCAS")
		switch {
		case in.Prefix.Rep == x86RepE && compares:
			sb.WriteString("REPE ")
		case in.Prefix.Rep == x86RepE:
			sb.WriteString("REP ")
		case in.Prefix.Rep == x86RepNE:
			sb.WriteString("REPNE ")
		}
	}
	sb.WriteString(in.Info.Mnemonic)
	for i := range in.Info.Operands {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(formatX86Operand(in, &in.Info.Operands[i], ip))
	}
	return sb.String()
}

// disassembleX86Line decodes the instruction at the start of buf. addr is
// the listing address and ip the code-segment offset used for branch
// targets.
func disassembleX86Line(buf []byte, addr uint64, ip uint32, code32 bool) DisassembledLine {
	in, ok := DecodeX86(buf, code32)
	if !ok {
		line := DisassembledLine{Address: addr, Size: 1, Mnemonic: "DB ??"}
		if len(buf) > 0 {
			line.HexBytes = fmt.Sprintf("%02X", buf[0])
			line.Mnemonic = fmt.Sprintf("DB 0x%02X", buf[0])
		}
		return line
	}
	parts := make([]string, in.Len)
	for i, b := range buf[:in.Len] {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	line := DisassembledLine{
		Address:  addr,
		HexBytes: strings.Join(parts, " "),
		Mnemonic: FormatX86(&in, ip),
		Size:     in.Len,
	}
	for _, o := range in.Info.Operands {
		if o.Kind == opkRel {
			line.IsBranch = true
			line.BranchTarget = addr - uint64(ip) + uint64(x86BranchTarget(&in, ip))
		}
	}
	return line
}

// disassembleX86 lists count instructions starting at linear address addr,
// where csBase is the linear base of the code segment.
func disassembleX86(readMem func(addr uint64, size int) []byte, addr uint64, count int, code32 bool, csBase uint32) []DisassembledLine {
	lines := make([]DisassembledLine, 0, count)
	for range count {
		buf := readMem(addr, x86MaxInstLen)
		line := disassembleX86Line(buf, addr, uint32(addr)-csBase, code32)
		lines = append(lines, line)
		addr += uint64(line.Size)
	}
	return lines
}
