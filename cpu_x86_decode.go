// cpu_x86_decode.go - Opcode table construction and instruction decoding
//
// The declarative rows in cpu_x86_table.go are expanded once into a slot
// table keyed by opcode (0x000-0x0FF one-byte, 0x100-0x1FF for 0F xx), ModRM
// group, and for the x87 escapes the full register-form ModRM byte. Every
// slot holds one cell per operand-size/address-size combination. The same
// decoded form feeds the dispatcher and the disassembler.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// x86Exec executes one decoded instruction.
type x86Exec func(c *CPU_X86, in *x86Inst)

// x86Handler carries one executor per operand width; the table binds the
// variant matching each row's resolved width.
type x86Handler struct {
	b, w, d x86Exec
}

// hOne uses the same executor for every width.
func hOne(f x86Exec) x86Handler {
	return x86Handler{f, f, f}
}

func (h x86Handler) pick(width int) x86Exec {
	switch width {
	case 1:
		return h.b
	case 2:
		return h.w
	default:
		return h.d
	}
}

var x86CondNames = [16]string{"O", "NO", "B", "AE", "E", "NE", "BE", "A", "S", "NS", "P", "NP", "L", "GE", "LE", "G"}

// =============================================================================
// Operands
// =============================================================================

type x86OperandKind uint8

const (
	opkNone   x86OperandKind = iota
	opkRM                    // ModRM r/m, register or memory
	opkReg                   // ModRM reg field, or +r register
	opkRMReg                 // ModRM r/m forced to a register
	opkCR                    // control register from ModRM reg
	opkDR                    // debug register from ModRM reg
	opkAcc                   // AL/AX/EAX
	opkDX                    // DX as a port number
	opkCL                    // CL as a count
	opkOne                   // constant 1
	opkSeg                   // fixed segment register
	opkSreg                  // segment register from ModRM reg
	opkImm                   // immediate
	opkRel                   // relative branch displacement
	opkMoffs                 // absolute memory offset
	opkPtr                   // far pointer immediate
	opkMem                   // memory-only ModRM operand
	opkST                    // ST(i)
	opkST0                   // ST(0)
)

// x86Operand describes one operand of a bound table row.
type x86Operand struct {
	Kind   x86OperandKind
	Token  string
	Width  int  // bytes moved or encoded; 0 when unsized
	Slot   int  // immediate slot: 0 for Imm, 1 for Imm2
	Fixed  int  // register index for fixed operands
	Signed bool // sign-extended immediate
	Float  bool // x87 real memory operand
}

func parseX86Operand(tok string, opSize int) (x86Operand, error) {
	o := x86Operand{Token: tok}
	switch tok {
	case "rmb":
		o.Kind, o.Width = opkRM, 1
	case "rmw":
		o.Kind, o.Width = opkRM, opSize
	case "rm16":
		o.Kind, o.Width = opkRM, 2
	case "rb":
		o.Kind, o.Width = opkReg, 1
	case "rw":
		o.Kind, o.Width = opkReg, opSize
	case "r16":
		o.Kind, o.Width = opkReg, 2
	case "r32":
		o.Kind, o.Width = opkRMReg, 4
	case "cr":
		o.Kind, o.Width = opkCR, 4
	case "dr":
		o.Kind, o.Width = opkDR, 4
	case "al":
		o.Kind, o.Width = opkAcc, 1
	case "ax":
		o.Kind, o.Width = opkAcc, opSize
	case "ax16":
		o.Kind, o.Width = opkAcc, 2
	case "dx":
		o.Kind, o.Width = opkDX, 2
	case "cl":
		o.Kind, o.Width = opkCL, 1
	case "1":
		o.Kind, o.Width = opkOne, 1
	case "es", "cs", "ss", "ds", "fs", "gs":
		o.Kind, o.Width = opkSeg, 2
		o.Fixed = strings.Index("escsssdsfsgs", tok) / 2
	case "sreg":
		o.Kind, o.Width = opkSreg, 2
	case "ib":
		o.Kind, o.Width = opkImm, 1
	case "ibs":
		o.Kind, o.Width, o.Signed = opkImm, 1, true
	case "iw":
		o.Kind, o.Width = opkImm, 2
	case "id":
		o.Kind, o.Width = opkImm, 4
	case "iv":
		o.Kind, o.Width = opkImm, opSize
	case "rel8":
		o.Kind, o.Width, o.Signed = opkRel, 1, true
	case "relv":
		o.Kind, o.Width, o.Signed = opkRel, opSize, true
	case "moffsb":
		o.Kind, o.Width = opkMoffs, 1
	case "moffsv":
		o.Kind, o.Width = opkMoffs, opSize
	case "ptr":
		o.Kind, o.Width = opkPtr, opSize+2
	case "m":
		o.Kind = opkMem
	case "mp":
		o.Kind, o.Width = opkMem, opSize+2
	case "m16":
		o.Kind, o.Width = opkMem, 2
	case "m32":
		o.Kind, o.Width = opkMem, 4
	case "m64":
		o.Kind, o.Width = opkMem, 8
	case "m80":
		o.Kind, o.Width = opkMem, 10
	case "mf32":
		o.Kind, o.Width, o.Float = opkMem, 4, true
	case "mf64":
		o.Kind, o.Width, o.Float = opkMem, 8, true
	case "mf80":
		o.Kind, o.Width, o.Float = opkMem, 10, true
	case "st":
		o.Kind = opkST
	case "st0":
		o.Kind = opkST0
	default:
		return o, fmt.Errorf("unknown operand token %q", tok)
	}
	return o, nil
}

// =============================================================================
// Table
// =============================================================================

// x86RegEnc says where an opcode-embedded field lives.
type x86RegEnc uint8

const (
	encNone x86RegEnc = iota
	encReg            // +r: register in the low opcode bits
	encST             // +st: ST(i) in the register-form ModRM
	encCC             // +cc: condition in the low opcode nibble
)

// OpcodeInfo is one table row bound to a concrete opcode and operand size.
type OpcodeInfo struct {
	Mnemonic string
	Opcode   uint16 // one-byte opcode, or 0x100|b for 0F b
	Group    int    // ModRM /digit, -1 when none
	Exact    int    // register-form ModRM byte for x87 forms, -1 when none
	Enc      x86RegEnc
	Operands []x86Operand
	OpSize   int // 2 or 4
	Width    int // primary operand width in bytes
	Flags    x86OpFlags

	modrm   bool // a ModRM byte follows the opcode
	regOnly bool // r/m always names a register
	memOnly bool // r/m must name memory
	exec    x86Exec
}

// Encoding renders the opcode bytes the way the table spells them.
func (oi *OpcodeInfo) Encoding() string {
	var sb strings.Builder
	if oi.Opcode >= 0x100 {
		sb.WriteString("0F ")
	}
	fmt.Fprintf(&sb, "%02X", byte(oi.Opcode))
	switch {
	case oi.Exact >= 0:
		fmt.Fprintf(&sb, " %02X", oi.Exact)
	case oi.Group >= 0:
		fmt.Fprintf(&sb, "/%d", oi.Group)
	}
	return sb.String()
}

// x86Cell holds one entry per size combination, indexed by
// (operand size 32 ? 1 : 0) | (address size 32 ? 2 : 0).
type x86Cell [4]*OpcodeInfo

type x86Slot struct {
	modrm bool
	plain x86Cell
	group *[8]x86Cell
	exact *[256]x86Cell
}

// x86Table is the expanded opcode map.
type x86Table struct {
	slots [512]x86Slot
	infos []*OpcodeInfo
}

var x86OpcodeWord = regexp.MustCompile(`^([0-9A-F]{2})(?:/([0-7]))?(?:\+(r|st|cc))?$`)

type x86Encoding struct {
	bytes []byte
	group int
	enc   x86RegEnc
	ops   []string
}

func parseX86Pattern(alt string) (x86Encoding, error) {
	e := x86Encoding{group: -1}
	fields := strings.Fields(alt)
	i := 0
	for ; i < len(fields); i++ {
		m := x86OpcodeWord.FindStringSubmatch(fields[i])
		if m == nil {
			break
		}
		if e.group >= 0 || e.enc != encNone {
			return e, fmt.Errorf("opcode byte after group or register suffix in %q", alt)
		}
		b, _ := strconv.ParseUint(m[1], 16, 8)
		e.bytes = append(e.bytes, byte(b))
		if m[2] != "" {
			e.group = int(m[2][0] - '0')
		}
		switch m[3] {
		case "r":
			e.enc = encReg
		case "st":
			e.enc = encST
		case "cc":
			e.enc = encCC
		}
	}
	if len(e.bytes) == 0 || len(e.bytes) > 2 {
		return e, fmt.Errorf("bad opcode bytes in %q", alt)
	}
	if rest := strings.Join(fields[i:], ""); rest != "" {
		e.ops = strings.Split(rest, ",")
	}
	return e, nil
}

// buildX86Table expands rows into the slot table. Two rows claiming the same
// encoding and size combination are a construction error.
func buildX86Table(defs []x86OpDef) (*x86Table, error) {
	t := &x86Table{}
	for _, d := range defs {
		for _, alt := range strings.Split(d.pattern, "|") {
			if err := t.addPattern(d, strings.TrimSpace(alt)); err != nil {
				return nil, fmt.Errorf("%s %q: %w", d.mnemonic, alt, err)
			}
		}
	}
	return t, nil
}

func mustBuildX86Table(defs []x86OpDef) *x86Table {
	t, err := buildX86Table(defs)
	if err != nil {
		panic("x86 opcode table: " + err.Error())
	}
	return t
}

func (t *x86Table) addPattern(d x86OpDef, alt string) error {
	e, err := parseX86Pattern(alt)
	if err != nil {
		return err
	}

	opcode := uint16(e.bytes[0])
	exact := -1
	if len(e.bytes) == 2 {
		switch {
		case e.bytes[0] == 0x0F:
			opcode = 0x100 | uint16(e.bytes[1])
		case e.bytes[0] >= 0xD8 && e.bytes[0] <= 0xDF:
			exact = int(e.bytes[1])
			if exact < 0xC0 {
				return fmt.Errorf("x87 register form %02X is not mod=3", exact)
			}
		default:
			return fmt.Errorf("unsupported two-byte opcode %02X %02X", e.bytes[0], e.bytes[1])
		}
	}
	if e.enc == encST && exact < 0 {
		return fmt.Errorf("+st needs a register-form ModRM byte")
	}

	span := 1
	switch e.enc {
	case encReg, encST:
		span = 8
	case encCC:
		span = 16
	}
	if e.enc == encReg || e.enc == encCC {
		if int(byte(opcode))+span > 0x100 {
			return fmt.Errorf("opcode range overflows")
		}
	} else if exact >= 0 && exact+span > 0x100 {
		return fmt.Errorf("ModRM range overflows")
	}

	sizes := d.sizes
	if sizes == sAny {
		sizes = 0xF
	}
	for i := 0; i < span; i++ {
		for osz := 0; osz < 2; osz++ {
			combos := sizes & sO16
			opSize := 2
			if osz == 1 {
				combos, opSize = sizes&sO32, 4
			}
			if combos == 0 {
				continue
			}
			info, err := bindX86Info(d, e, opSize)
			if err != nil {
				return err
			}
			info.Opcode, info.Exact = opcode, exact
			switch e.enc {
			case encReg:
				info.Opcode = opcode + uint16(i)
			case encCC:
				info.Opcode = opcode + uint16(i)
				info.Mnemonic = strings.Replace(d.mnemonic, "*", x86CondNames[i], 1)
			case encST:
				info.Exact = exact + i
			}
			if err := t.place(info, combos); err != nil {
				return err
			}
		}
	}
	return nil
}

func bindX86Info(d x86OpDef, e x86Encoding, opSize int) (*OpcodeInfo, error) {
	info := &OpcodeInfo{
		Mnemonic: d.mnemonic,
		Group:    e.group,
		Enc:      e.enc,
		OpSize:   opSize,
		Flags:    d.flags,
		modrm:    e.group >= 0,
	}
	slot := 0
	for _, tok := range e.ops {
		o, err := parseX86Operand(tok, opSize)
		if err != nil {
			return nil, err
		}
		switch o.Kind {
		case opkImm, opkRel, opkPtr:
			o.Slot = slot
			slot++
		case opkRM, opkSreg, opkCR, opkDR:
			info.modrm = true
		case opkReg:
			if e.enc != encReg {
				info.modrm = true
			}
		case opkRMReg:
			info.modrm, info.regOnly = true, true
		case opkMem:
			info.modrm, info.memOnly = true, true
		}
		info.Operands = append(info.Operands, o)
	}
	if slot > 2 {
		return nil, fmt.Errorf("more than two immediates")
	}

	info.Width = opSize
	if d.flags&fByte != 0 {
		info.Width = 1
	}
	for _, o := range info.Operands {
		if o.Kind == opkRM || o.Kind == opkReg || o.Kind == opkAcc || o.Kind == opkMoffs || o.Kind == opkRMReg {
			info.Width = o.Width
			break
		}
	}
	info.exec = d.handler.pick(info.Width)
	if info.exec == nil {
		return nil, fmt.Errorf("no handler for width %d", info.Width)
	}
	return info, nil
}

func (t *x86Table) place(info *OpcodeInfo, combos x86SizeMask) error {
	s := &t.slots[info.Opcode]
	var cell *x86Cell
	switch {
	case info.Exact >= 0:
		if s.exact == nil {
			s.exact = new([256]x86Cell)
		}
		cell = &s.exact[info.Exact]
		s.modrm = true
	case info.Group >= 0:
		if s.plain != (x86Cell{}) {
			return fmt.Errorf("group form on an opcode with plain forms")
		}
		if s.group == nil {
			s.group = new([8]x86Cell)
		}
		cell = &s.group[info.Group]
		s.modrm = true
	default:
		if s.group != nil || s.exact != nil {
			return fmt.Errorf("plain form on an opcode with group forms")
		}
		if s.plain != (x86Cell{}) && s.modrm != info.modrm {
			return fmt.Errorf("inconsistent ModRM use on opcode %03X", info.Opcode)
		}
		cell = &s.plain
		s.modrm = info.modrm
	}
	for i := 0; i < 4; i++ {
		if combos&(1<<i) == 0 {
			continue
		}
		if prev := cell[i]; prev != nil {
			return fmt.Errorf("duplicate encoding %s (already %s)", info.Encoding(), prev.Mnemonic)
		}
		cell[i] = info
	}
	t.infos = append(t.infos, info)
	return nil
}

// Infos returns every bound row.
func (t *x86Table) Infos() []*OpcodeInfo {
	return t.infos
}

// x86Ops is the process-wide opcode table.
var x86Ops = mustBuildX86Table(x86OpDefs)

// =============================================================================
// Decoded instruction
// =============================================================================

// x86MemForm is a ModRM/SIB addressing form before register values are
// applied. Base and Index are register codes, -1 when absent.
type x86MemForm struct {
	Base, Index int8
	Scale       uint8 // shift count 0-3
	Disp        int32
	DefaultSeg  int8
}

// x86Inst is one decoded instruction.
type x86Inst struct {
	Info   *OpcodeInfo
	Prefix x86Prefix
	Op32   bool
	Addr32 bool

	Opcode   uint16
	HasModRM bool
	ModRM    byte
	Mod      byte
	Reg      byte
	RM       byte

	IsMem bool
	Mem   x86MemForm
	Seg   int    // segment of the memory operand after overrides
	EA    uint32 // offset within Seg, resolved at execute time

	Imm  uint32
	Imm2 uint32
	Len  int
}

// regCode returns the register named by a reg-class operand.
func (in *x86Inst) regCode() int {
	if in.Info.Enc == encReg {
		return int(in.Opcode & 7)
	}
	return int(in.Reg)
}

// decodeX86 decodes one instruction from buf. code32 selects the default
// operand and address size.
func decodeX86(buf []byte, code32 bool, in *x86Inst) error {
	return x86Ops.decode(buf, code32, in)
}

func (t *x86Table) decode(buf []byte, code32 bool, in *x86Inst) error {
	*in = x86Inst{}
	in.Prefix.reset()

	pos := 0
	for pos < len(buf) && in.Prefix.accept(buf[pos]) {
		pos++
		if in.Prefix.Count > x86MaxPrefixes {
			return ErrX86UndefinedOpcode
		}
	}
	in.Op32 = code32 != in.Prefix.OpSize
	in.Addr32 = code32 != in.Prefix.AddrSize
	combo := 0
	if in.Op32 {
		combo |= 1
	}
	if in.Addr32 {
		combo |= 2
	}

	if pos >= len(buf) {
		return ErrX86Truncated
	}
	in.Opcode = uint16(buf[pos])
	pos++
	if in.Opcode == 0x0F {
		if pos >= len(buf) {
			return ErrX86Truncated
		}
		in.Opcode = 0x100 | uint16(buf[pos])
		pos++
	}

	s := &t.slots[in.Opcode]
	var info *OpcodeInfo
	if s.modrm {
		if pos >= len(buf) {
			return ErrX86Truncated
		}
		in.HasModRM = true
		in.ModRM = buf[pos]
		in.Mod, in.Reg, in.RM = in.ModRM>>6, (in.ModRM>>3)&7, in.ModRM&7
		pos++
		switch {
		case in.Mod == 3 && s.exact != nil:
			info = s.exact[in.ModRM][combo]
		case s.group != nil:
			info = s.group[in.Reg][combo]
		default:
			info = s.plain[combo]
		}
	} else {
		info = s.plain[combo]
	}
	if info == nil {
		return ErrX86UndefinedOpcode
	}
	in.Info = info

	if info.modrm && info.Exact < 0 && !info.regOnly {
		if in.Mod == 3 {
			if info.memOnly {
				return ErrX86UndefinedOpcode
			}
		} else {
			n, err := decodeX86Mem(buf[pos:], in)
			if err != nil {
				return err
			}
			pos += n
			in.IsMem = true
		}
	}

	for _, o := range info.Operands {
		switch o.Kind {
		case opkImm, opkRel:
			v, n, err := readX86Imm(buf[pos:], o.Width, o.Signed)
			if err != nil {
				return err
			}
			pos += n
			if o.Slot == 0 {
				in.Imm = v
			} else {
				in.Imm2 = v
			}
		case opkMoffs:
			w := 2
			if in.Addr32 {
				w = 4
			}
			v, n, err := readX86Imm(buf[pos:], w, false)
			if err != nil {
				return err
			}
			pos += n
			in.IsMem = true
			in.Mem = x86MemForm{Base: -1, Index: -1, Disp: int32(v), DefaultSeg: x86SegDS}
		case opkPtr:
			off, n, err := readX86Imm(buf[pos:], o.Width-2, false)
			if err != nil {
				return err
			}
			pos += n
			sel, n, err := readX86Imm(buf[pos:], 2, false)
			if err != nil {
				return err
			}
			pos += n
			in.Imm, in.Imm2 = off, sel
		}
	}

	if in.IsMem {
		in.Seg = int(in.Mem.DefaultSeg)
		if in.Prefix.Seg != x86SegNone {
			in.Seg = in.Prefix.Seg
		}
	}
	in.Len = pos
	if in.Len > 15 {
		return ErrX86UndefinedOpcode
	}
	return nil
}

// readX86Imm reads a little-endian immediate of width bytes.
func readX86Imm(buf []byte, width int, signed bool) (uint32, int, error) {
	if len(buf) < width {
		return 0, 0, ErrX86Truncated
	}
	var v uint32
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint32(buf[i])
	}
	if signed {
		switch width {
		case 1:
			v = uint32(int32(int8(v)))
		case 2:
			v = uint32(int32(int16(v)))
		}
	}
	return v, width, nil
}
