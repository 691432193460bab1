// debug_interface.go - DebuggableCPU interface and supporting types

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/x86core
License: GPLv3 or later
*/

package main

import (
	"strconv"
	"strings"
)

// RegisterInfo describes a single CPU register for display.
type RegisterInfo struct {
	Name     string // "EIP", "AX", "ST0"
	BitWidth int    // 8, 16, 32, or 64
	Value    uint64
	Group    string // "general", "segment", "flags", "control", "fpu"
}

// DisassembledLine represents one disassembled instruction.
type DisassembledLine struct {
	Address      uint64
	HexBytes     string
	Mnemonic     string
	Size         int
	IsPC         bool // true if this is the current PC
	IsBranch     bool
	BranchTarget uint64
}

// BreakpointEvent is published when a CPU hits a breakpoint during execution.
type BreakpointEvent struct {
	CPUID   int    // Stable CPU ID that hit the breakpoint
	Address uint64 // Address of the breakpoint
}

// ConditionalBreakpoint is a breakpoint with an optional condition. It
// fires when Condition is nil or evaluates true.
type ConditionalBreakpoint struct {
	Address   uint64
	Condition *BreakpointCondition
	HitCount  uint64
}

// DebuggableCPU is the interface a CPU debug adapter implements.
type DebuggableCPU interface {
	CPUName() string
	AddressWidth() int // 16, 24, 32, or 64

	GetRegisters() []RegisterInfo
	GetRegister(name string) (uint64, bool)
	SetRegister(name string, value uint64) bool
	GetPC() uint64
	SetPC(addr uint64)

	Step() error

	Disassemble(addr uint64, count int) []DisassembledLine

	SetBreakpoint(addr uint64) bool
	ClearBreakpoint(addr uint64) bool
	ClearAllBreakpoints()
	ListBreakpoints() []uint64
	HasBreakpoint(addr uint64) bool

	ReadMemory(addr uint64, size int) []byte
	WriteMemory(addr uint64, data []byte)

	SetBreakpointChannel(ch chan<- BreakpointEvent, cpuID int)
}

// ParseAddress parses a debugger address in various formats:
// $hex, 0xhex, bare hex, #decimal
func ParseAddress(s string) (uint64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// #decimal
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 10, 64)
		return v, err == nil
	}

	// $hex
	if strings.HasPrefix(s, "$") {
		v, err := strconv.ParseUint(s[1:], 16, 64)
		return v, err == nil
	}

	// 0x or 0X hex
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseUint(s[2:], 16, 64)
		return v, err == nil
	}

	// bare hex
	v, err := strconv.ParseUint(s, 16, 64)
	return v, err == nil
}
