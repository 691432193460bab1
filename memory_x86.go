// memory_x86.go - Physical memory and port I/O for the x86 core

/*
memory_x86.go - Memory and Port Bus

The core consumes two narrow interfaces: X86Memory for byte-addressable
physical memory and X86Ports for the 16-bit I/O port space. FlatMemory is
the reference implementation used by the runner, the CLI and the tests.

    Memory is one contiguous slice whose size is a power of two; physical
    addresses wrap through an address mask, so a 1MB machine reproduces the
    8086 wrap at FFFF:0010.
    Span hands out direct views for bulk transfers (FPU save/restore). A view
    never crosses a 4KB page boundary or the end of memory; callers fall
    back to byte access when Span returns nil.
    Ports are latched bytes with optional per-port handlers registered via
    MapPort. Port access is serialised so debug consumers may poke ports
    while the CPU runs.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"sync"
)

const (
	x86DefaultMemorySize = 1 << 20 // 1MB real-mode address space
	x86MaxMemorySize     = 1 << 30
	x86SpanPageSize      = 0x1000
)

// X86Memory is the physical memory interface consumed by the core.
type X86Memory interface {
	GetByte(addr uint32) byte
	SetByte(addr uint32, value byte)
	GetUInt16(addr uint32) uint16
	SetUInt16(addr uint32, value uint16)
	GetUInt32(addr uint32) uint32
	SetUInt32(addr uint32, value uint32)

	// Span returns a writable view of size bytes starting at addr, or nil
	// when the range cannot be served contiguously.
	Span(addr uint32, size int) []byte
}

// X86Ports is the port I/O interface consumed by IN/OUT and INS/OUTS.
type X86Ports interface {
	ReadPortByte(port uint16) byte
	WritePortByte(port uint16, value byte)
}

// X86Bus combines memory and port access.
type X86Bus interface {
	X86Memory
	X86Ports
}

type portHandler struct {
	onRead  func(port uint16) byte
	onWrite func(port uint16, value byte)
}

// FlatMemory is a contiguous physical memory plus a latched port space.
type FlatMemory struct {
	mem  []byte
	mask uint32

	portMu   sync.Mutex
	ports    [65536]byte
	handlers map[uint16]portHandler
}

// NewFlatMemory allocates size bytes of memory. The size is rounded up to a
// power of two so the address mask stays exact.
func NewFlatMemory(size int) (*FlatMemory, error) {
	if size <= 0 {
		size = x86DefaultMemorySize
	}
	if size > x86MaxMemorySize {
		return nil, fmt.Errorf("memory size %d exceeds %d", size, x86MaxMemorySize)
	}
	if size&(size-1) != 0 {
		size = 1 << bits.Len(uint(size))
	}
	return &FlatMemory{
		mem:      make([]byte, size),
		mask:     uint32(size - 1),
		handlers: make(map[uint16]portHandler),
	}, nil
}

// Size returns the memory size in bytes.
func (m *FlatMemory) Size() int { return len(m.mem) }

// Bytes exposes the backing slice for loaders and snapshots.
func (m *FlatMemory) Bytes() []byte { return m.mem }

// Load copies data into memory at addr, wrapping at the end of memory.
func (m *FlatMemory) Load(addr uint32, data []byte) {
	for i, b := range data {
		m.mem[(addr+uint32(i))&m.mask] = b
	}
}

// Reset clears memory and the port latches.
func (m *FlatMemory) Reset() {
	clear(m.mem)
	m.portMu.Lock()
	clear(m.ports[:])
	m.portMu.Unlock()
}

func (m *FlatMemory) GetByte(addr uint32) byte {
	return m.mem[addr&m.mask]
}

func (m *FlatMemory) SetByte(addr uint32, value byte) {
	m.mem[addr&m.mask] = value
}

func (m *FlatMemory) GetUInt16(addr uint32) uint16 {
	a := addr & m.mask
	if a+1 <= m.mask {
		return binary.LittleEndian.Uint16(m.mem[a:])
	}
	return uint16(m.GetByte(addr)) | uint16(m.GetByte(addr+1))<<8
}

func (m *FlatMemory) SetUInt16(addr uint32, value uint16) {
	a := addr & m.mask
	if a+1 <= m.mask {
		binary.LittleEndian.PutUint16(m.mem[a:], value)
		return
	}
	m.SetByte(addr, byte(value))
	m.SetByte(addr+1, byte(value>>8))
}

func (m *FlatMemory) GetUInt32(addr uint32) uint32 {
	a := addr & m.mask
	if a+3 <= m.mask {
		return binary.LittleEndian.Uint32(m.mem[a:])
	}
	return uint32(m.GetUInt16(addr)) | uint32(m.GetUInt16(addr+2))<<16
}

func (m *FlatMemory) SetUInt32(addr uint32, value uint32) {
	a := addr & m.mask
	if a+3 <= m.mask {
		binary.LittleEndian.PutUint32(m.mem[a:], value)
		return
	}
	m.SetUInt16(addr, uint16(value))
	m.SetUInt16(addr+2, uint16(value>>16))
}

// Span returns a direct view when [addr, addr+size) lies within one page.
func (m *FlatMemory) Span(addr uint32, size int) []byte {
	a := addr & m.mask
	if size <= 0 || size > x86SpanPageSize || uint64(a)+uint64(size) > uint64(len(m.mem)) {
		return nil
	}
	if a/x86SpanPageSize != (a+uint32(size)-1)/x86SpanPageSize {
		return nil
	}
	return m.mem[a : int(a)+size : int(a)+size]
}

// MapPort installs handlers for one port. Either handler may be nil, in
// which case the latch is used for that direction.
func (m *FlatMemory) MapPort(port uint16, onRead func(port uint16) byte, onWrite func(port uint16, value byte)) {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	m.handlers[port] = portHandler{onRead: onRead, onWrite: onWrite}
}

func (m *FlatMemory) ReadPortByte(port uint16) byte {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	if h, ok := m.handlers[port]; ok && h.onRead != nil {
		return h.onRead(port)
	}
	return m.ports[port]
}

func (m *FlatMemory) WritePortByte(port uint16, value byte) {
	m.portMu.Lock()
	defer m.portMu.Unlock()
	m.ports[port] = value
	if h, ok := m.handlers[port]; ok && h.onWrite != nil {
		h.onWrite(port, value)
	}
}

// spanOrBytes runs fn over a direct view when available, otherwise over a
// temporary copy that is written back when write is set.
func spanOrBytes(mem X86Memory, addr uint32, size int, write bool, fn func(b []byte)) {
	if s := mem.Span(addr, size); s != nil {
		fn(s)
		return
	}
	tmp := make([]byte, size)
	for i := range tmp {
		tmp[i] = mem.GetByte(addr + uint32(i))
	}
	fn(tmp)
	if write {
		for i, b := range tmp {
			mem.SetByte(addr+uint32(i), b)
		}
	}
}
