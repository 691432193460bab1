// cpu_x86_table.go - Declarative x86 opcode table (8086/80386 integer + x87)
//
// Each row is: mnemonic, encoding pattern(s), size restriction, flags, handler.
//
// Pattern grammar:
//
//	<opcode bytes>[/group][+r|+st|+cc] <operand>,<operand>,...
//
// Alternates joined by '|' share the row's handler. A leading 0F selects the
// two-byte map. On D8-DF a second opcode byte is a complete register-form
// ModRM byte. '+r' puts a register in the low three opcode bits, '+st' an
// ST(i) index, '+cc' a condition code ('*' in the mnemonic is replaced by
// the condition name).
//
// Operand tokens:
//
//	rmb rmw rm16       register-or-memory: byte, operand size, always 16-bit
//	rb rw r16          ModRM reg field (or +r register): byte, operand size, 16-bit
//	r32 cr dr          MOV CRn/DRn operands, r/m is always a register
//	al ax ax16 dx cl 1 fixed registers / constant
//	es cs ss ds fs gs  fixed segment registers; sreg is the ModRM reg field
//	ib ibs iw id iv    immediates: byte, sign-extended byte, word, dword, operand size
//	rel8 relv          relative branch targets
//	moffsb moffsv      absolute memory offset (address-size wide)
//	ptr                far pointer immediate (offset:selector)
//	m mp               any memory operand / far pointer in memory
//	m16 m32 m64 m80    integer or packed-BCD memory operands
//	mf32 mf64 mf80     floating point memory operands
//	st st0             ST(i) from '+st', ST(0)
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// x86SizeMask restricts a row to operand/address size combinations.
type x86SizeMask uint8

const (
	sAny x86SizeMask = 0
	sO16 x86SizeMask = 0b0101
	sO32 x86SizeMask = 0b1010
	sA16 x86SizeMask = 0b0011
	sA32 x86SizeMask = 0b1100
)

// x86OpFlags annotate rows with behavior the decoder or tools care about.
type x86OpFlags uint16

const (
	fByte   x86OpFlags = 1 << iota // operates on bytes with no sized operand
	fString                        // REP-capable string primitive
	fBranch                        // transfers control
	fFPU                           // x87 escape
	fFPUCtl                        // x87 control op: leaves the last-instruction pointers alone
)

type x86OpDef struct {
	mnemonic string
	pattern  string
	sizes    x86SizeMask
	flags    x86OpFlags
	handler  x86Handler
}

var x86OpDefs = []x86OpDef{
	// =========================================================================
	// Arithmetic and logic
	// =========================================================================
	{"ADD", "00 rmb,rb|01 rmw,rw|02 rb,rmb|03 rw,rmw|04 al,ib|05 ax,iv|80/0 rmb,ib|81/0 rmw,iv|82/0 rmb,ib|83/0 rmw,ibs", sAny, 0, hALU(aluOpADD)},
	{"OR", "08 rmb,rb|09 rmw,rw|0A rb,rmb|0B rw,rmw|0C al,ib|0D ax,iv|80/1 rmb,ib|81/1 rmw,iv|82/1 rmb,ib|83/1 rmw,ibs", sAny, 0, hALU(aluOpOR)},
	{"ADC", "10 rmb,rb|11 rmw,rw|12 rb,rmb|13 rw,rmw|14 al,ib|15 ax,iv|80/2 rmb,ib|81/2 rmw,iv|82/2 rmb,ib|83/2 rmw,ibs", sAny, 0, hALU(aluOpADC)},
	{"SBB", "18 rmb,rb|19 rmw,rw|1A rb,rmb|1B rw,rmw|1C al,ib|1D ax,iv|80/3 rmb,ib|81/3 rmw,iv|82/3 rmb,ib|83/3 rmw,ibs", sAny, 0, hALU(aluOpSBB)},
	{"AND", "20 rmb,rb|21 rmw,rw|22 rb,rmb|23 rw,rmw|24 al,ib|25 ax,iv|80/4 rmb,ib|81/4 rmw,iv|82/4 rmb,ib|83/4 rmw,ibs", sAny, 0, hALU(aluOpAND)},
	{"SUB", "28 rmb,rb|29 rmw,rw|2A rb,rmb|2B rw,rmw|2C al,ib|2D ax,iv|80/5 rmb,ib|81/5 rmw,iv|82/5 rmb,ib|83/5 rmw,ibs", sAny, 0, hALU(aluOpSUB)},
	{"XOR", "30 rmb,rb|31 rmw,rw|32 rb,rmb|33 rw,rmw|34 al,ib|35 ax,iv|80/6 rmb,ib|81/6 rmw,iv|82/6 rmb,ib|83/6 rmw,ibs", sAny, 0, hALU(aluOpXOR)},
	{"CMP", "38 rmb,rb|39 rmw,rw|3A rb,rmb|3B rw,rmw|3C al,ib|3D ax,iv|80/7 rmb,ib|81/7 rmw,iv|82/7 rmb,ib|83/7 rmw,ibs", sAny, 0, hALU(aluOpCMP)},
	{"TEST", "84 rmb,rb|85 rmw,rw|A8 al,ib|A9 ax,iv|F6/0 rmb,ib|F6/1 rmb,ib|F7/0 rmw,iv|F7/1 rmw,iv", sAny, 0, hTEST},
	{"INC", "40+r rw|FE/0 rmb|FF/0 rmw", sAny, 0, hINC},
	{"DEC", "48+r rw|FE/1 rmb|FF/1 rmw", sAny, 0, hDEC},
	{"NOT", "F6/2 rmb|F7/2 rmw", sAny, 0, hNOT},
	{"NEG", "F6/3 rmb|F7/3 rmw", sAny, 0, hNEG},
	{"MUL", "F6/4 rmb|F7/4 rmw", sAny, 0, hMUL},
	{"IMUL", "F6/5 rmb|F7/5 rmw", sAny, 0, hIMUL1},
	{"IMUL", "0F AF rw,rmw|69 rw,rmw,iv|6B rw,rmw,ibs", sAny, 0, hIMULN},
	{"DIV", "F6/6 rmb|F7/6 rmw", sAny, 0, hDIV},
	{"IDIV", "F6/7 rmb|F7/7 rmw", sAny, 0, hIDIV},
	{"DAA", "27", sAny, fByte, hOne(execDAA)},
	{"DAS", "2F", sAny, fByte, hOne(execDAS)},
	{"AAA", "37", sAny, fByte, hOne(execAAA)},
	{"AAS", "3F", sAny, fByte, hOne(execAAS)},
	{"AAM", "D4 ib", sAny, 0, hOne(execAAM)},
	{"AAD", "D5 ib", sAny, 0, hOne(execAAD)},
	{"SALC", "D6", sAny, fByte, hOne(execSALC)},
	{"CBW", "98", sO16, 0, hOne(execCBW)},
	{"CWDE", "98", sO32, 0, hOne(execCBW)},
	{"CWD", "99", sO16, 0, hOne(execCWD)},
	{"CDQ", "99", sO32, 0, hOne(execCWD)},

	// =========================================================================
	// Shifts, rotates and bit operations
	// =========================================================================
	{"ROL", "C0/0 rmb,ib|C1/0 rmw,ib|D0/0 rmb,1|D1/0 rmw,1|D2/0 rmb,cl|D3/0 rmw,cl", sAny, 0, hShift(shiftROL)},
	{"ROR", "C0/1 rmb,ib|C1/1 rmw,ib|D0/1 rmb,1|D1/1 rmw,1|D2/1 rmb,cl|D3/1 rmw,cl", sAny, 0, hShift(shiftROR)},
	{"RCL", "C0/2 rmb,ib|C1/2 rmw,ib|D0/2 rmb,1|D1/2 rmw,1|D2/2 rmb,cl|D3/2 rmw,cl", sAny, 0, hShift(shiftRCL)},
	{"RCR", "C0/3 rmb,ib|C1/3 rmw,ib|D0/3 rmb,1|D1/3 rmw,1|D2/3 rmb,cl|D3/3 rmw,cl", sAny, 0, hShift(shiftRCR)},
	{"SHL", "C0/4 rmb,ib|C1/4 rmw,ib|D0/4 rmb,1|D1/4 rmw,1|D2/4 rmb,cl|D3/4 rmw,cl", sAny, 0, hShift(shiftSHL)},
	{"SHR", "C0/5 rmb,ib|C1/5 rmw,ib|D0/5 rmb,1|D1/5 rmw,1|D2/5 rmb,cl|D3/5 rmw,cl", sAny, 0, hShift(shiftSHR)},
	{"SAL", "C0/6 rmb,ib|C1/6 rmw,ib|D0/6 rmb,1|D1/6 rmw,1|D2/6 rmb,cl|D3/6 rmw,cl", sAny, 0, hShift(shiftSAL)},
	{"SAR", "C0/7 rmb,ib|C1/7 rmw,ib|D0/7 rmb,1|D1/7 rmw,1|D2/7 rmb,cl|D3/7 rmw,cl", sAny, 0, hShift(shiftSAR)},
	{"SHLD", "0F A4 rmw,rw,ib|0F A5 rmw,rw,cl", sAny, 0, hSHLD},
	{"SHRD", "0F AC rmw,rw,ib|0F AD rmw,rw,cl", sAny, 0, hSHRD},
	{"BT", "0F A3 rmw,rw|0F BA/4 rmw,ib", sAny, 0, hBitTest(bitOpTest)},
	{"BTS", "0F AB rmw,rw|0F BA/5 rmw,ib", sAny, 0, hBitTest(bitOpSet)},
	{"BTR", "0F B3 rmw,rw|0F BA/6 rmw,ib", sAny, 0, hBitTest(bitOpReset)},
	{"BTC", "0F BB rmw,rw|0F BA/7 rmw,ib", sAny, 0, hBitTest(bitOpComplement)},
	{"BSF", "0F BC rw,rmw", sAny, 0, hBSF},
	{"BSR", "0F BD rw,rmw", sAny, 0, hBSR},
	{"SET*", "0F 90+cc rmb", sAny, 0, hOne(execSETcc)},

	// =========================================================================
	// Data movement
	// =========================================================================
	{"MOV", "88 rmb,rb|89 rmw,rw|8A rb,rmb|8B rw,rmw|B0+r rb,ib|B8+r rw,iv|C6/0 rmb,ib|C7/0 rmw,iv|A0 al,moffsb|A1 ax,moffsv|A2 moffsb,al|A3 moffsv,ax", sAny, 0, hMOV},
	{"MOV", "8C rm16,sreg", sAny, 0, hOne(execMOVfromSreg)},
	{"MOV", "8E sreg,rm16", sAny, 0, hOne(execMOVtoSreg)},
	{"MOV", "0F 20 r32,cr|0F 21 r32,dr|0F 22 cr,r32|0F 23 dr,r32", sAny, 0, hOne(execMOVControl)},
	{"MOVZX", "0F B6 rw,rmb|0F B7 rw,rm16", sAny, 0, hMOVX(false)},
	{"MOVSX", "0F BE rw,rmb|0F BF rw,rm16", sAny, 0, hMOVX(true)},
	{"XCHG", "86 rmb,rb|87 rmw,rw|90+r ax,rw", sAny, 0, hXCHG},
	{"LEA", "8D rw,m", sAny, 0, hLEA},
	{"LES", "C4 rw,mp", sAny, 0, hLoadFar(x86SegES)},
	{"LDS", "C5 rw,mp", sAny, 0, hLoadFar(x86SegDS)},
	{"LSS", "0F B2 rw,mp", sAny, 0, hLoadFar(x86SegSS)},
	{"LFS", "0F B4 rw,mp", sAny, 0, hLoadFar(x86SegFS)},
	{"LGS", "0F B5 rw,mp", sAny, 0, hLoadFar(x86SegGS)},
	{"XLAT", "D7", sAny, fByte, hOne(execXLAT)},
	{"LAHF", "9F", sAny, fByte, hOne(execLAHF)},
	{"SAHF", "9E", sAny, fByte, hOne(execSAHF)},

	// =========================================================================
	// Stack
	// =========================================================================
	{"PUSH", "50+r rw|FF/6 rmw|68 iv|6A ibs|06 es|0E cs|16 ss|1E ds|0F A0 fs|0F A8 gs", sAny, 0, hPUSH},
	{"POP", "58+r rw|8F/0 rmw|07 es|17 ss|1F ds|0F A1 fs|0F A9 gs", sAny, 0, hPOP},
	{"PUSHA", "60", sO16, 0, hPUSHA},
	{"PUSHAD", "60", sO32, 0, hPUSHA},
	{"POPA", "61", sO16, 0, hPOPA},
	{"POPAD", "61", sO32, 0, hPOPA},
	{"PUSHF", "9C", sO16, 0, hOne(execPUSHF)},
	{"PUSHFD", "9C", sO32, 0, hOne(execPUSHF)},
	{"POPF", "9D", sO16, 0, hOne(execPOPF)},
	{"POPFD", "9D", sO32, 0, hOne(execPOPF)},
	{"ENTER", "C8 iw,ib", sAny, 0, hOne(execENTER)},
	{"LEAVE", "C9", sAny, 0, hOne(execLEAVE)},

	// =========================================================================
	// Control transfer
	// =========================================================================
	{"J*", "70+cc rel8|0F 80+cc relv", sAny, fBranch, hOne(execJcc)},
	{"JMP", "EB rel8|E9 relv", sAny, fBranch, hOne(execJMPRel)},
	{"JMP", "FF/4 rmw", sAny, fBranch, hJMPNear},
	{"JMP", "EA ptr|FF/5 mp", sAny, fBranch, hOne(execJMPFar)},
	{"CALL", "E8 relv", sAny, fBranch, hOne(execCALLRel)},
	{"CALL", "FF/2 rmw", sAny, fBranch, hCALLNear},
	{"CALL", "9A ptr|FF/3 mp", sAny, fBranch, hOne(execCALLFar)},
	{"RET", "C3|C2 iw", sAny, fBranch, hOne(execRET)},
	{"RETF", "CB|CA iw", sAny, fBranch, hOne(execRETF)},
	{"IRET", "CF", sO16, fBranch, hOne(execIRET)},
	{"IRETD", "CF", sO32, fBranch, hOne(execIRET)},
	{"LOOPNE", "E0 rel8", sAny, fBranch, hOne(execLOOP)},
	{"LOOPE", "E1 rel8", sAny, fBranch, hOne(execLOOP)},
	{"LOOP", "E2 rel8", sAny, fBranch, hOne(execLOOP)},
	{"JCXZ", "E3 rel8", sA16, fBranch, hOne(execJCXZ)},
	{"JECXZ", "E3 rel8", sA32, fBranch, hOne(execJCXZ)},
	{"INT3", "CC", sAny, fBranch, hOne(execINT3)},
	{"INT", "CD ib", sAny, fBranch, hOne(execINT)},
	{"INTO", "CE", sAny, fBranch, hOne(execINTO)},
	{"BOUND", "62 rw,m", sAny, 0, hBOUND},
	{"HLT", "F4", sAny, 0, hOne(execHLT)},
	{"WAIT", "9B", sAny, 0, hOne(execWAIT)},

	// =========================================================================
	// Flags
	// =========================================================================
	{"CMC", "F5", sAny, 0, hOne(execCMC)},
	{"CLC", "F8", sAny, 0, hOne(execFlagOp(x86FlagCF, false))},
	{"STC", "F9", sAny, 0, hOne(execFlagOp(x86FlagCF, true))},
	{"CLI", "FA", sAny, 0, hOne(execFlagOp(x86FlagIF, false))},
	{"STI", "FB", sAny, 0, hOne(execSTI)},
	{"CLD", "FC", sAny, 0, hOne(execFlagOp(x86FlagDF, false))},
	{"STD", "FD", sAny, 0, hOne(execFlagOp(x86FlagDF, true))},

	// =========================================================================
	// Strings
	// =========================================================================
	{"MOVSB", "A4", sAny, fByte | fString, hString(strMOVS)},
	{"MOVSW", "A5", sO16, fString, hString(strMOVS)},
	{"MOVSD", "A5", sO32, fString, hString(strMOVS)},
	{"CMPSB", "A6", sAny, fByte | fString, hString(strCMPS)},
	{"CMPSW", "A7", sO16, fString, hString(strCMPS)},
	{"CMPSD", "A7", sO32, fString, hString(strCMPS)},
	{"STOSB", "AA", sAny, fByte | fString, hString(strSTOS)},
	{"STOSW", "AB", sO16, fString, hString(strSTOS)},
	{"STOSD", "AB", sO32, fString, hString(strSTOS)},
	{"LODSB", "AC", sAny, fByte | fString, hString(strLODS)},
	{"LODSW", "AD", sO16, fString, hString(strLODS)},
	{"LODSD", "AD", sO32, fString, hString(strLODS)},
	{"SCASB", "AE", sAny, fByte | fString, hString(strSCAS)},
	{"SCASW", "AF", sO16, fString, hString(strSCAS)},
	{"SCASD", "AF", sO32, fString, hString(strSCAS)},
	{"INSB", "6C", sAny, fByte | fString, hString(strINS)},
	{"INSW", "6D", sO16, fString, hString(strINS)},
	{"INSD", "6D", sO32, fString, hString(strINS)},
	{"OUTSB", "6E", sAny, fByte | fString, hString(strOUTS)},
	{"OUTSW", "6F", sO16, fString, hString(strOUTS)},
	{"OUTSD", "6F", sO32, fString, hString(strOUTS)},

	// =========================================================================
	// Port I/O
	// =========================================================================
	{"IN", "E4 al,ib|E5 ax,ib|EC al,dx|ED ax,dx", sAny, 0, hIN},
	{"OUT", "E6 ib,al|E7 ib,ax|EE dx,al|EF dx,ax", sAny, 0, hOUT},

	// =========================================================================
	// System (286/386 protected-mode subset)
	// =========================================================================
	{"SLDT", "0F 00/0 rm16", sAny, 0, hOne(execSLDT)},
	{"STR", "0F 00/1 rm16", sAny, 0, hOne(execSTR)},
	{"LLDT", "0F 00/2 rm16", sAny, 0, hOne(execLLDT)},
	{"LTR", "0F 00/3 rm16", sAny, 0, hOne(execLTR)},
	{"VERR", "0F 00/4 rm16", sAny, 0, hOne(execVERx)},
	{"VERW", "0F 00/5 rm16", sAny, 0, hOne(execVERx)},
	{"SGDT", "0F 01/0 m", sAny, 0, hOne(execSGDT)},
	{"SIDT", "0F 01/1 m", sAny, 0, hOne(execSIDT)},
	{"LGDT", "0F 01/2 m", sAny, 0, hOne(execLGDT)},
	{"LIDT", "0F 01/3 m", sAny, 0, hOne(execLIDT)},
	{"SMSW", "0F 01/4 rm16", sAny, 0, hOne(execSMSW)},
	{"LMSW", "0F 01/6 rm16", sAny, 0, hOne(execLMSW)},
	{"LAR", "0F 02 rw,rm16", sAny, 0, hOne(execLAR)},
	{"LSL", "0F 03 rw,rm16", sAny, 0, hOne(execLSL)},
	{"CLTS", "0F 06", sAny, 0, hOne(execCLTS)},
	{"ARPL", "63 rm16,r16", sAny, 0, hOne(execARPL)},

	// =========================================================================
	// x87 FPU
	// =========================================================================
	{"FADD", "D8/0 mf32|DC/0 mf64|D8 C0+st st0,st|DC C0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpAdd, false))},
	{"FMUL", "D8/1 mf32|DC/1 mf64|D8 C8+st st0,st|DC C8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpMul, false))},
	{"FCOM", "D8/2 mf32|DC/2 mf64|D8 D0+st st", sAny, fFPU, hOne(execFCom(0, false))},
	{"FCOMP", "D8/3 mf32|DC/3 mf64|D8 D8+st st", sAny, fFPU, hOne(execFCom(1, false))},
	{"FSUB", "D8/4 mf32|DC/4 mf64|D8 E0+st st0,st|DC E8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpSub, false))},
	{"FSUBR", "D8/5 mf32|DC/5 mf64|D8 E8+st st0,st|DC E0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpSubR, false))},
	{"FDIV", "D8/6 mf32|DC/6 mf64|D8 F0+st st0,st|DC F8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpDiv, false))},
	{"FDIVR", "D8/7 mf32|DC/7 mf64|D8 F8+st st0,st|DC F0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpDivR, false))},
	{"FADDP", "DE C0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpAdd, true))},
	{"FMULP", "DE C8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpMul, true))},
	{"FSUBRP", "DE E0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpSubR, true))},
	{"FSUBP", "DE E8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpSub, true))},
	{"FDIVRP", "DE F0+st st,st0", sAny, fFPU, hOne(execFArith(x87OpDivR, true))},
	{"FDIVP", "DE F8+st st,st0", sAny, fFPU, hOne(execFArith(x87OpDiv, true))},
	{"FCOMPP", "DE D9", sAny, fFPU, hOne(execFCom(2, false))},
	{"FUCOM", "DD E0+st st", sAny, fFPU, hOne(execFCom(0, true))},
	{"FUCOMP", "DD E8+st st", sAny, fFPU, hOne(execFCom(1, true))},
	{"FUCOMPP", "DA E9", sAny, fFPU, hOne(execFCom(2, true))},
	{"FIADD", "DA/0 m32|DE/0 m16", sAny, fFPU, hOne(execFArith(x87OpAdd, false))},
	{"FIMUL", "DA/1 m32|DE/1 m16", sAny, fFPU, hOne(execFArith(x87OpMul, false))},
	{"FICOM", "DA/2 m32|DE/2 m16", sAny, fFPU, hOne(execFCom(0, false))},
	{"FICOMP", "DA/3 m32|DE/3 m16", sAny, fFPU, hOne(execFCom(1, false))},
	{"FISUB", "DA/4 m32|DE/4 m16", sAny, fFPU, hOne(execFArith(x87OpSub, false))},
	{"FISUBR", "DA/5 m32|DE/5 m16", sAny, fFPU, hOne(execFArith(x87OpSubR, false))},
	{"FIDIV", "DA/6 m32|DE/6 m16", sAny, fFPU, hOne(execFArith(x87OpDiv, false))},
	{"FIDIVR", "DA/7 m32|DE/7 m16", sAny, fFPU, hOne(execFArith(x87OpDivR, false))},
	{"FLD", "D9/0 mf32|DD/0 mf64|DB/5 mf80|D9 C0+st st", sAny, fFPU, hOne(execFLD)},
	{"FST", "D9/2 mf32|DD/2 mf64|DD D0+st st", sAny, fFPU, hOne(execFST(false))},
	{"FSTP", "D9/3 mf32|DD/3 mf64|DB/7 mf80|DD D8+st st", sAny, fFPU, hOne(execFST(true))},
	{"FILD", "DF/0 m16|DB/0 m32|DF/5 m64", sAny, fFPU, hOne(execFILD)},
	{"FIST", "DF/2 m16|DB/2 m32", sAny, fFPU, hOne(execFIST(false))},
	{"FISTP", "DF/3 m16|DB/3 m32|DF/7 m64", sAny, fFPU, hOne(execFIST(true))},
	{"FBLD", "DF/4 m80", sAny, fFPU, hOne(execFBLD)},
	{"FBSTP", "DF/6 m80", sAny, fFPU, hOne(execFBSTP)},
	{"FXCH", "D9 C8+st st", sAny, fFPU, hOne(execFXCH)},
	{"FFREE", "DD C0+st st", sAny, fFPU, hOne(execFFREE)},
	{"FLDENV", "D9/4 m", sAny, fFPU|fFPUCtl, hOne(execFLDENV)},
	{"FLDCW", "D9/5 m16", sAny, fFPU|fFPUCtl, hOne(execFLDCW)},
	{"FNSTENV", "D9/6 m", sAny, fFPU|fFPUCtl, hOne(execFNSTENV)},
	{"FNSTCW", "D9/7 m16", sAny, fFPU|fFPUCtl, hOne(execFNSTCW)},
	{"FRSTOR", "DD/4 m", sAny, fFPU|fFPUCtl, hOne(execFRSTOR)},
	{"FNSAVE", "DD/6 m", sAny, fFPU|fFPUCtl, hOne(execFNSAVE)},
	{"FNSTSW", "DD/7 m16|DF E0 ax16", sAny, fFPU|fFPUCtl, hOne(execFNSTSW)},
	{"FNCLEX", "DB E2", sAny, fFPU|fFPUCtl, hOne(execFNCLEX)},
	{"FNINIT", "DB E3", sAny, fFPU|fFPUCtl, hOne(execFNINIT)},
	{"FNENI", "DB E0", sAny, fFPU|fFPUCtl, hOne(execFNOP)},
	{"FNDISI", "DB E1", sAny, fFPU|fFPUCtl, hOne(execFNOP)},
	{"FNSETPM", "DB E4", sAny, fFPU|fFPUCtl, hOne(execFNOP)},
	{"FNOP", "D9 D0", sAny, fFPU, hOne(execFNOP)},
	{"FCHS", "D9 E0", sAny, fFPU, hOne(execFUnary(x87UnChs))},
	{"FABS", "D9 E1", sAny, fFPU, hOne(execFUnary(x87UnAbs))},
	{"FTST", "D9 E4", sAny, fFPU, hOne(execFTST)},
	{"FXAM", "D9 E5", sAny, fFPU, hOne(execFXAM)},
	{"FLD1", "D9 E8", sAny, fFPU, hOne(execFLDConst(0))},
	{"FLDL2T", "D9 E9", sAny, fFPU, hOne(execFLDConst(1))},
	{"FLDL2E", "D9 EA", sAny, fFPU, hOne(execFLDConst(2))},
	{"FLDPI", "D9 EB", sAny, fFPU, hOne(execFLDConst(3))},
	{"FLDLG2", "D9 EC", sAny, fFPU, hOne(execFLDConst(4))},
	{"FLDLN2", "D9 ED", sAny, fFPU, hOne(execFLDConst(5))},
	{"FLDZ", "D9 EE", sAny, fFPU, hOne(execFLDConst(6))},
	{"F2XM1", "D9 F0", sAny, fFPU, hOne(execFUnary(x87Un2XM1))},
	{"FYL2X", "D9 F1", sAny, fFPU, hOne(execFYL2X(false))},
	{"FPTAN", "D9 F2", sAny, fFPU, hOne(execFPTAN)},
	{"FPATAN", "D9 F3", sAny, fFPU, hOne(execFPATAN)},
	{"FXTRACT", "D9 F4", sAny, fFPU, hOne(execFXTRACT)},
	{"FPREM1", "D9 F5", sAny, fFPU, hOne(execFPREM(true))},
	{"FDECSTP", "D9 F6", sAny, fFPU, hOne(execFDECSTP)},
	{"FINCSTP", "D9 F7", sAny, fFPU, hOne(execFINCSTP)},
	{"FPREM", "D9 F8", sAny, fFPU, hOne(execFPREM(false))},
	{"FYL2XP1", "D9 F9", sAny, fFPU, hOne(execFYL2X(true))},
	{"FSQRT", "D9 FA", sAny, fFPU, hOne(execFUnary(x87UnSqrt))},
	{"FSINCOS", "D9 FB", sAny, fFPU, hOne(execFSINCOS)},
	{"FRNDINT", "D9 FC", sAny, fFPU, hOne(execFUnary(x87UnRound))},
	{"FSCALE", "D9 FD", sAny, fFPU, hOne(execFSCALE)},
	{"FSIN", "D9 FE", sAny, fFPU, hOne(execFUnary(x87UnSin))},
	{"FCOS", "D9 FF", sAny, fFPU, hOne(execFUnary(x87UnCos))},
}
