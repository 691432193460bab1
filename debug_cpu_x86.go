// debug_cpu_x86.go - X86 debug adapter
//
// Addresses seen by the debugger are linear: the PC is CS base + EIP and
// breakpoints match the linear address of the next instruction.

package main

import (
	"math"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

const x86DisasmCacheSize = 4096

// x86DisasmKey identifies a decoded line. The byte hash invalidates entries
// when code is modified in place.
type x86DisasmKey struct {
	addr   uint64
	ip     uint32
	code32 bool
	sum    uint64
}

type DebugX86 struct {
	cpu *CPU_X86

	bpMu        sync.RWMutex
	breakpoints map[uint64]*ConditionalBreakpoint
	bpChan      chan<- BreakpointEvent
	cpuID       int

	disasm *lru.Cache[x86DisasmKey, DisassembledLine]
}

func NewDebugX86(cpu *CPU_X86) *DebugX86 {
	cache, err := lru.New[x86DisasmKey, DisassembledLine](x86DisasmCacheSize)
	if err != nil {
		panic(err)
	}
	return &DebugX86{
		cpu:         cpu,
		breakpoints: make(map[uint64]*ConditionalBreakpoint),
		disasm:      cache,
	}
}

func (d *DebugX86) CPUName() string   { return "X86" }
func (d *DebugX86) AddressWidth() int { return 32 }

var x86FlagNames = []struct {
	name string
	mask uint32
}{
	{"CF", x86FlagCF}, {"PF", x86FlagPF}, {"AF", x86FlagAF}, {"ZF", x86FlagZF},
	{"SF", x86FlagSF}, {"TF", x86FlagTF}, {"IF", x86FlagIF}, {"DF", x86FlagDF},
	{"OF", x86FlagOF},
}

func (d *DebugX86) GetRegisters() []RegisterInfo {
	c := d.cpu
	regs := make([]RegisterInfo, 0, 48)
	for i, name := range x86Reg32 {
		regs = append(regs, RegisterInfo{Name: name, BitWidth: 32, Value: uint64(c.Get32(i)), Group: "general"})
	}
	regs = append(regs,
		RegisterInfo{Name: "EIP", BitWidth: 32, Value: uint64(c.EIP), Group: "general"},
		RegisterInfo{Name: "EFLAGS", BitWidth: 32, Value: uint64(c.Flags), Group: "flags"},
	)
	for _, f := range x86FlagNames {
		var v uint64
		if c.Flags&f.mask != 0 {
			v = 1
		}
		regs = append(regs, RegisterInfo{Name: f.name, BitWidth: 1, Value: v, Group: "flags"})
	}
	for i, name := range x86SegRegs {
		regs = append(regs, RegisterInfo{Name: name, BitWidth: 16, Value: uint64(c.Seg(i)), Group: "segment"})
	}
	regs = append(regs, RegisterInfo{Name: "CR0", BitWidth: 32, Value: uint64(c.CR[0]), Group: "control"})

	f := c.FPU
	regs = append(regs,
		RegisterInfo{Name: "FCW", BitWidth: 16, Value: uint64(f.FCW), Group: "fpu"},
		RegisterInfo{Name: "FSW", BitWidth: 16, Value: uint64(f.FSW), Group: "fpu"},
		RegisterInfo{Name: "FTW", BitWidth: 16, Value: uint64(f.Tag()), Group: "fpu"},
		RegisterInfo{Name: "FTOP", BitWidth: 8, Value: uint64(f.Top()), Group: "fpu"},
	)
	for i := range 8 {
		regs = append(regs, RegisterInfo{
			Name:     "ST" + string(rune('0'+i)),
			BitWidth: 64,
			Value:    math.Float64bits(f.ST(i)),
			Group:    "fpu",
		})
	}
	return regs
}

// x86RegByName resolves a general register name at any width.
func x86RegByName(name string) (width, code int, ok bool) {
	for i := range 8 {
		switch name {
		case x86Reg32[i]:
			return 4, i, true
		case x86Reg16[i]:
			return 2, i, true
		case x86Reg8[i]:
			return 1, i, true
		}
	}
	return 0, 0, false
}

func x86SegByName(name string) (int, bool) {
	for i, s := range x86SegRegs {
		if s == name {
			return i, true
		}
	}
	return 0, false
}

func (d *DebugX86) GetRegister(name string) (uint64, bool) {
	c := d.cpu
	name = strings.ToUpper(name)
	if w, code, ok := x86RegByName(name); ok {
		return uint64(c.Get(w, code)), true
	}
	if i, ok := x86SegByName(name); ok {
		return uint64(c.Seg(i)), true
	}
	switch name {
	case "EIP", "IP":
		return uint64(c.EIP), true
	case "FLAGS", "EFLAGS":
		return uint64(c.Flags), true
	case "CR0":
		return uint64(c.CR[0]), true
	case "PC":
		return d.GetPC(), true
	}
	for _, r := range d.GetRegisters() {
		if r.Name == name {
			return r.Value, true
		}
	}
	return 0, false
}

func (d *DebugX86) SetRegister(name string, value uint64) bool {
	c := d.cpu
	name = strings.ToUpper(name)
	if w, code, ok := x86RegByName(name); ok {
		c.Set(w, code, uint32(value))
		return true
	}
	if i, ok := x86SegByName(name); ok {
		c.LoadSeg(i, uint16(value))
		return true
	}
	switch name {
	case "EIP", "IP":
		c.EIP = uint32(value)
	case "FLAGS", "EFLAGS":
		c.Flags = uint32(value) | x86FlagR1
	case "CR0":
		c.CR[0] = uint32(value)
	case "FCW":
		c.FPU.FCW = uint16(value)
	case "FSW":
		c.FPU.FSW = uint16(value)
	case "FTW":
		c.FPU.SetTag(uint16(value))
	case "PC":
		d.SetPC(value)
	default:
		for _, f := range x86FlagNames {
			if f.name == name {
				c.setFlag(f.mask, value != 0)
				return true
			}
		}
		return false
	}
	return true
}

func (d *DebugX86) GetPC() uint64 {
	return uint64(d.cpu.SegBase(x86SegCS) + d.cpu.EIP)
}

func (d *DebugX86) SetPC(addr uint64) {
	d.cpu.EIP = uint32(addr) - d.cpu.SegBase(x86SegCS)
}

func (d *DebugX86) Step() error {
	return d.cpu.Step()
}

// ShouldBreak reports whether a breakpoint at the current PC fires. A hit
// is counted whether or not its condition holds.
func (d *DebugX86) ShouldBreak() bool {
	pc := d.GetPC()
	d.bpMu.RLock()
	bp := d.breakpoints[pc]
	d.bpMu.RUnlock()
	if bp == nil {
		return false
	}
	d.bpMu.Lock()
	bp.HitCount++
	hits := bp.HitCount
	d.bpMu.Unlock()
	if !evaluateConditionWithHitCount(bp.Condition, d, hits) {
		return false
	}
	if d.bpChan != nil {
		select {
		case d.bpChan <- BreakpointEvent{CPUID: d.cpuID, Address: pc}:
		default:
		}
	}
	return true
}

func (d *DebugX86) Disassemble(addr uint64, count int) []DisassembledLine {
	c := d.cpu
	pc := d.GetPC()
	base := c.SegBase(x86SegCS)
	lines := make([]DisassembledLine, 0, count)
	for range count {
		buf := d.ReadMemory(addr, x86MaxInstLen)
		key := x86DisasmKey{addr: addr, ip: uint32(addr) - base, code32: c.Code32, sum: xxhash.Sum64(buf)}
		line, ok := d.disasm.Get(key)
		if !ok {
			line = disassembleX86Line(buf, addr, key.ip, c.Code32)
			d.disasm.Add(key, line)
		}
		line.IsPC = line.Address == pc
		lines = append(lines, line)
		addr += uint64(line.Size)
	}
	return lines
}

func (d *DebugX86) SetBreakpoint(addr uint64) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints[addr] = &ConditionalBreakpoint{Address: addr}
	return true
}

func (d *DebugX86) SetConditionalBreakpoint(addr uint64, cond *BreakpointCondition) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints[addr] = &ConditionalBreakpoint{Address: addr, Condition: cond}
	return true
}

func (d *DebugX86) ClearBreakpoint(addr uint64) bool {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	if _, ok := d.breakpoints[addr]; ok {
		delete(d.breakpoints, addr)
		return true
	}
	return false
}

func (d *DebugX86) ClearAllBreakpoints() {
	d.bpMu.Lock()
	defer d.bpMu.Unlock()
	d.breakpoints = make(map[uint64]*ConditionalBreakpoint)
}

func (d *DebugX86) ListBreakpoints() []uint64 {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	result := make([]uint64, 0, len(d.breakpoints))
	for addr := range d.breakpoints {
		result = append(result, addr)
	}
	return result
}

func (d *DebugX86) HasBreakpoint(addr uint64) bool {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	_, ok := d.breakpoints[addr]
	return ok
}

func (d *DebugX86) GetConditionalBreakpoint(addr uint64) *ConditionalBreakpoint {
	d.bpMu.RLock()
	defer d.bpMu.RUnlock()
	return d.breakpoints[addr]
}

func (d *DebugX86) ReadMemory(addr uint64, size int) []byte {
	result := make([]byte, size)
	spanOrBytes(d.cpu.bus, uint32(addr), size, false, func(b []byte) { copy(result, b) })
	return result
}

func (d *DebugX86) WriteMemory(addr uint64, data []byte) {
	for i, b := range data {
		d.cpu.bus.SetByte(uint32(addr)+uint32(i), b)
	}
}

func (d *DebugX86) SetBreakpointChannel(ch chan<- BreakpointEvent, cpuID int) {
	d.bpChan = ch
	d.cpuID = cpuID
}
