// memory_x86_test.go - Flat memory, span and port tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"testing"
)

func newTestFlatMemory(t *testing.T) *FlatMemory {
	t.Helper()
	mem, err := NewFlatMemory(x86DefaultMemorySize)
	if err != nil {
		t.Fatal(err)
	}
	return mem
}

func TestFlatMemory_SpanStaysInPage(t *testing.T) {
	mem := newTestFlatMemory(t)
	tests := []struct {
		name string
		addr uint32
		size int
		ok   bool
	}{
		{"inside page", 0x1000, 108, true},
		{"ends on page edge", 0x1FF0, 16, true},
		{"crosses page", 0x1FF8, 14, false},
		{"larger than a page", 0x2000, x86SpanPageSize + 1, false},
		{"end of memory", x86DefaultMemorySize - 8, 8, true},
		{"past end of memory", x86DefaultMemorySize - 4, 8, false},
		{"empty", 0x1000, 0, false},
	}
	for _, tc := range tests {
		s := mem.Span(tc.addr, tc.size)
		if (s != nil) != tc.ok {
			t.Errorf("%s: Span(%05X, %d) view = %v, want %v", tc.name, tc.addr, tc.size, s != nil, tc.ok)
		}
		if s != nil && len(s) != tc.size {
			t.Errorf("%s: len %d", tc.name, len(s))
		}
	}

	s := mem.Span(0x1000, 4)
	s[0] = 0x5A
	requireX86Equal(t, "write through view", mem.GetByte(0x1000), 0x5A)
}

func TestFlatMemory_SpanOrBytesAcrossPage(t *testing.T) {
	mem := newTestFlatMemory(t)
	spanOrBytes(mem, 0x0FFC, 8, true, func(b []byte) {
		for i := range b {
			b[i] = byte(0x10 + i)
		}
	})
	for i := range 8 {
		requireX86Equal(t, "written back", mem.GetByte(0x0FFC+uint32(i)), byte(0x10+i))
	}

	var got []byte
	spanOrBytes(mem, 0x0FFC, 8, false, func(b []byte) {
		got = append(got, b...)
		b[0] = 0xFF
	})
	requireX86Equal(t, "read", got[7], 0x17)
	requireX86Equal(t, "read-only copy", mem.GetByte(0x0FFC), 0x10)
}

// An FSTENV image straddling a page boundary goes through the byte path.
func TestFlatMemory_FPUEnvAcrossPage(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xD9, 0xE8, // FLD1
		0xD9, 0x36, 0xF8, 0x0F, // FNSTENV [0x0FF8]
		0xF4,
	)
	r.step(t, 2)
	requireX86Equal(t, "FCW", r.mem.GetUInt16(0x0FF8), x87FCW_Default)
	requireX86Equal(t, "FSW TOP", r.mem.GetUInt16(0x0FFA)>>x87FSW_TOPShift&7, 7)
	requireX86Equal(t, "FTW", r.mem.GetUInt16(0x0FFC), 0x3FFF)
}

func TestFlatMemory_WrapAndPorts(t *testing.T) {
	mem := newTestFlatMemory(t)
	mem.SetByte(x86DefaultMemorySize+0x10, 0x77)
	requireX86Equal(t, "wrapped", mem.GetByte(0x10), 0x77)

	mem.WritePortByte(0x60, 0x12)
	requireX86Equal(t, "latch", mem.ReadPortByte(0x60), 0x12)

	var written byte
	mem.MapPort(0x61, func(uint16) byte { return 0xAB }, func(_ uint16, v byte) { written = v })
	mem.WritePortByte(0x61, 0x34)
	requireX86Equal(t, "handler write", written, 0x34)
	requireX86Equal(t, "handler read", mem.ReadPortByte(0x61), 0xAB)
}
