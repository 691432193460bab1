// cpu_x86.go - Intel x86 CPU Emulator (8086 base + 386 32-bit extensions + x87)
//
// This implements an x86 CPU with:
// - Full 8086/8088 instruction set (testable via SingleStepTests/8088)
// - 186/286/386 additions, 32-bit operand and address sizes
// - Real-mode segmentation with a pluggable protected-mode descriptor hook
// - x87 FPU
// - Port I/O through the X86Ports interface
//
// Every instruction goes through the same path: prefixes, table decode,
// operand resolution, then the width-specific handler bound in the table.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	// ErrX86Halted is returned by Step once HLT has executed.
	ErrX86Halted = errors.New("x86: halted")
	// ErrX86UndefinedOpcode is returned for bytes that decode to nothing.
	ErrX86UndefinedOpcode = errors.New("x86: undefined opcode")
	// ErrX86Truncated is returned when a byte buffer ends mid-instruction.
	ErrX86Truncated = errors.New("x86: truncated instruction")
)

// Exception and interrupt vectors raised by the core
const (
	x86VecDivide     = 0
	x86VecDebug      = 1
	x86VecBreakpoint = 3
	x86VecOverflow   = 4
	x86VecBound      = 5
	x86VecNoFPU      = 7
)

// CPU_X86 represents the x86 CPU state
type CPU_X86 struct {
	X86Registers

	FPU *FPU_X87

	// Code32 selects 32-bit default operand and address size (CS.D).
	Code32 bool
	// Stack32 selects ESP over SP for stack operations (SS.B).
	Stack32 bool

	// Execution state
	Halted  bool
	running atomic.Bool

	// Counters
	Instructions  uint64
	RepIterations uint64
	Interrupts    uint64

	// Interrupt state
	irqPending atomic.Bool
	irqVector  atomic.Uint32
	intShadow  bool

	// Trace, when set, is called before each instruction executes with the
	// 16-byte opcode window at CS:EIP.
	Trace func(c *CPU_X86, window []byte)

	bus X86Bus
	log *logrus.Entry

	inst     x86Inst
	window   [16]byte
	err      error  // set by a handler that cannot complete
	startEIP uint32 // EIP of the executing instruction, for faults and REP rewinds
}

// NewCPU_X86 creates a new x86 CPU instance
func NewCPU_X86(bus X86Bus, logger *logrus.Logger) *CPU_X86 {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cpu := &CPU_X86{
		bus: bus,
		log: logger.WithField("cpu", "x86"),
	}
	cpu.FPU = NewFPU_X87()
	cpu.FPU.log = cpu.log
	cpu.DescriptorBase = cpu.gdtBase
	cpu.Reset()
	return cpu
}

// Reset initializes the CPU to its power-on state. Segments start at zero
// rather than the F000:FFF0 reset vector; the runner positions CS:IP.
func (c *CPU_X86) Reset() {
	hook := c.DescriptorBase
	c.X86Registers = X86Registers{DescriptorBase: hook}
	c.Flags = x86FlagR1 | x86FlagIF
	c.CR[0] = x86CR0ET
	c.IDTR.Limit = 0x3FF
	c.FPU.Reset()

	c.irqPending.Store(false)
	c.irqVector.Store(0)
	c.intShadow = false

	c.Halted = false
	c.running.Store(true)
	c.Instructions = 0
	c.RepIterations = 0
	c.Interrupts = 0
}

// Running returns the execution state (thread-safe)
func (c *CPU_X86) Running() bool {
	return c.running.Load()
}

// SetRunning sets the execution state (thread-safe)
func (c *CPU_X86) SetRunning(state bool) {
	c.running.Store(state)
}

// Bus returns the memory and port bus the CPU is attached to.
func (c *CPU_X86) Bus() X86Bus {
	return c.bus
}

// SetFlat32 configures a flat 32-bit protected-mode environment: all
// segment bases zero, 32-bit code and stack.
func (c *CPU_X86) SetFlat32(on bool) {
	c.Code32, c.Stack32 = on, on
	if on {
		c.CR[0] |= x86CR0PE
		for i := range c.seg {
			c.SetSegBase(i, 0)
		}
	} else {
		c.CR[0] &^= x86CR0PE
	}
}

// -----------------------------------------------------------------------------
// Memory access
// -----------------------------------------------------------------------------

func (c *CPU_X86) linear(seg int, off uint32) uint32 {
	return c.seg[seg].Base + off
}

func (c *CPU_X86) read8(seg int, off uint32) byte {
	return c.bus.GetByte(c.linear(seg, off))
}

func (c *CPU_X86) read16(seg int, off uint32) uint16 {
	return c.bus.GetUInt16(c.linear(seg, off))
}

func (c *CPU_X86) read32(seg int, off uint32) uint32 {
	return c.bus.GetUInt32(c.linear(seg, off))
}

func (c *CPU_X86) write8(seg int, off uint32, v byte) {
	c.bus.SetByte(c.linear(seg, off), v)
}

func (c *CPU_X86) write16(seg int, off uint32, v uint16) {
	c.bus.SetUInt16(c.linear(seg, off), v)
}

func (c *CPU_X86) write32(seg int, off uint32, v uint32) {
	c.bus.SetUInt32(c.linear(seg, off), v)
}

// readMem reads width bytes (1, 2 or 4) at seg:off.
func (c *CPU_X86) readMem(seg int, off uint32, width int) uint32 {
	switch width {
	case 1:
		return uint32(c.read8(seg, off))
	case 2:
		return uint32(c.read16(seg, off))
	default:
		return c.read32(seg, off)
	}
}

// writeMem writes width bytes (1, 2 or 4) at seg:off.
func (c *CPU_X86) writeMem(seg int, off uint32, width int, v uint32) {
	switch width {
	case 1:
		c.write8(seg, off, byte(v))
	case 2:
		c.write16(seg, off, uint16(v))
	default:
		c.write32(seg, off, v)
	}
}

// -----------------------------------------------------------------------------
// Stack
// -----------------------------------------------------------------------------

func (c *CPU_X86) stackPtr() uint32 {
	if c.Stack32 {
		return c.ESP()
	}
	return uint32(c.SP())
}

func (c *CPU_X86) setStackPtr(v uint32) {
	if c.Stack32 {
		c.SetESP(v)
		return
	}
	c.SetSP(uint16(v))
}

func (c *CPU_X86) stackMask() uint32 {
	if c.Stack32 {
		return 0xFFFFFFFF
	}
	return 0xFFFF
}

// push stores width bytes (2 or 4) below the stack pointer.
func (c *CPU_X86) push(width int, v uint32) {
	sp := (c.stackPtr() - uint32(width)) & c.stackMask()
	c.writeMem(x86SegSS, sp, width, v)
	c.setStackPtr(sp)
}

// pop loads width bytes (2 or 4) from the top of the stack.
func (c *CPU_X86) pop(width int) uint32 {
	sp := c.stackPtr()
	v := c.readMem(x86SegSS, sp, width)
	c.setStackPtr((sp + uint32(width)) & c.stackMask())
	return v
}

// -----------------------------------------------------------------------------
// Instruction pointer
// -----------------------------------------------------------------------------

func (c *CPU_X86) ipMask() uint32 {
	if c.Code32 {
		return 0xFFFFFFFF
	}
	return 0xFFFF
}

// jumpTo sets EIP, truncated to the operand size of the transfer.
func (c *CPU_X86) jumpTo(target uint32, op32 bool) {
	if !op32 {
		target &= 0xFFFF
	}
	c.EIP = target
}

// fetchWindow copies the 16 bytes at CS:EIP into the decode window,
// wrapping within the segment in 16-bit code.
func (c *CPU_X86) fetchWindow() {
	base := c.SegBase(x86SegCS)
	if c.Code32 || c.EIP+uint32(len(c.window)) <= 0x10000 {
		if s := c.bus.Span(base+c.EIP, len(c.window)); s != nil {
			copy(c.window[:], s)
			return
		}
	}
	mask := c.ipMask()
	for i := range c.window {
		c.window[i] = c.bus.GetByte(base + (c.EIP+uint32(i))&mask)
	}
}

// -----------------------------------------------------------------------------
// Instruction Execution
// -----------------------------------------------------------------------------

// Step executes a single instruction, or a single iteration of a repeated
// string instruction.
func (c *CPU_X86) Step() error {
	if c.irqPending.Load() && c.IF() && !c.intShadow {
		c.irqPending.Store(false)
		c.Halted = false
		c.interrupt(byte(c.irqVector.Load()), c.EIP)
	}
	c.intShadow = false
	if c.Halted {
		return ErrX86Halted
	}

	c.fetchWindow()
	in := &c.inst
	if err := decodeX86(c.window[:], c.Code32, in); err != nil {
		c.Halted = true
		c.log.WithFields(logrus.Fields{
			"cs":    fmt.Sprintf("%04X", c.CS()),
			"eip":   fmt.Sprintf("%08X", c.EIP),
			"bytes": fmt.Sprintf("% X", c.window[:4]),
		}).Warn("undefined opcode, halting")
		return fmt.Errorf("%04X:%08X [% X]: %w", c.CS(), c.EIP, c.window[:4], err)
	}
	if c.Trace != nil {
		c.Trace(c, c.window[:])
	}

	c.startEIP = c.EIP
	c.EIP = (c.EIP + uint32(in.Len)) & c.ipMask()
	if in.IsMem {
		in.EA = c.effectiveAddress(in)
	}
	if in.Info.Flags&fFPU != 0 {
		c.execFPU(in)
	} else {
		in.Info.exec(c, in)
	}
	c.Instructions++

	if c.err != nil {
		err := c.err
		c.err = nil
		c.Halted = true
		return err
	}
	if c.Halted {
		return ErrX86Halted
	}
	return nil
}

// Run steps until the CPU halts, faults or is stopped.
func (c *CPU_X86) Run() error {
	c.running.Store(true)
	for c.running.Load() {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// SetIRQ latches a maskable interrupt request; it is serviced before the
// next instruction once IF is set.
func (c *CPU_X86) SetIRQ(active bool, vector byte) {
	if !active {
		c.irqPending.Store(false)
		return
	}
	c.irqVector.Store(uint32(vector))
	c.irqPending.Store(true)
}

// raise delivers a fault: the saved return address is the faulting
// instruction.
func (c *CPU_X86) raise(vector byte) {
	c.interrupt(vector, c.startEIP)
}

// interrupt transfers control through the IVT (real mode) or the IDT
// (protected mode, same-privilege gates only).
func (c *CPU_X86) interrupt(vector byte, retEIP uint32) {
	c.Interrupts++
	flags := c.Flags
	if c.ProtectedMode() {
		gate := c.IDTR.Base + uint32(vector)*8
		lo := c.bus.GetUInt32(gate)
		hi := c.bus.GetUInt32(gate + 4)
		c.push(4, flags)
		c.push(4, uint32(c.CS()))
		c.push(4, retEIP)
		c.Flags &^= x86FlagIF | x86FlagTF | x86FlagNT | x86FlagRF
		c.LoadSeg(x86SegCS, uint16(lo>>16))
		c.EIP = (hi & 0xFFFF0000) | (lo & 0xFFFF)
		return
	}
	c.push(2, flags)
	c.push(2, uint32(c.CS()))
	c.push(2, retEIP)
	c.Flags &^= x86FlagIF | x86FlagTF
	addr := c.IDTR.Base + uint32(vector)*4
	c.EIP = uint32(c.bus.GetUInt16(addr))
	c.LoadSeg(x86SegCS, c.bus.GetUInt16(addr+2))
}

// halt stops execution at the end of the current instruction.
func (c *CPU_X86) halt() {
	c.Halted = true
}

// invalid aborts an instruction whose encoding decodes but names a
// register that does not exist (MOV to sreg 6/7, CR5, ...).
func (c *CPU_X86) invalid(in *x86Inst, what string) {
	c.log.WithFields(logrus.Fields{
		"cs":       fmt.Sprintf("%04X", c.CS()),
		"eip":      fmt.Sprintf("%08X", c.startEIP),
		"mnemonic": in.Info.Mnemonic,
	}).Warn("invalid operand: " + what)
	c.EIP = c.startEIP
	c.err = fmt.Errorf("%04X:%08X %s %s: %w", c.CS(), c.startEIP, in.Info.Mnemonic, what, ErrX86UndefinedOpcode)
}
