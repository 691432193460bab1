// cpu_x86_test_helpers_test.go - Shared rigs and assertions for x86 tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

const x86TestOrigin = 0x100

func quietX86Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type cpuX86TestRig struct {
	mem *FlatMemory
	cpu *CPU_X86
}

// newCPUX86TestRig returns a real-mode machine with all segments at zero,
// SP at 0x1000 and program loaded at 0x100.
func newCPUX86TestRig(t *testing.T, program ...byte) *cpuX86TestRig {
	t.Helper()
	mem, err := NewFlatMemory(x86DefaultMemorySize)
	if err != nil {
		t.Fatal(err)
	}
	r := &cpuX86TestRig{mem: mem, cpu: NewCPU_X86(mem, quietX86Logger())}
	r.load(program...)
	return r
}

// newCPUX86Flat32Rig is newCPUX86TestRig in flat 32-bit mode.
func newCPUX86Flat32Rig(t *testing.T, program ...byte) *cpuX86TestRig {
	t.Helper()
	r := newCPUX86TestRig(t)
	r.cpu.SetFlat32(true)
	r.load(program...)
	r.cpu.SetESP(0x1000)
	return r
}

func (r *cpuX86TestRig) load(program ...byte) {
	r.mem.Load(x86TestOrigin, program)
	r.cpu.EIP = x86TestOrigin
	r.cpu.SetSP(0x1000)
}

// step executes n steps and fails on any error other than a halt.
func (r *cpuX86TestRig) step(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := r.cpu.Step(); err != nil && !errors.Is(err, ErrX86Halted) {
			t.Fatalf("step %d at %04X: %v", i, r.cpu.EIP, err)
		}
	}
}

// runUntil steps until EIP reaches end or limit steps have run, and
// returns the number of steps taken.
func (r *cpuX86TestRig) runUntil(t *testing.T, end uint32, limit int) int {
	t.Helper()
	n := 0
	for r.cpu.EIP != end {
		if n == limit {
			t.Fatalf("EIP %04X did not reach %04X in %d steps", r.cpu.EIP, end, limit)
		}
		if err := r.cpu.Step(); err != nil {
			t.Fatalf("step %d: %v", n, err)
		}
		n++
	}
	return n
}

func requireX86Equal[T ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int | ~int32](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("%s = 0x%X, want 0x%X", name, got, want)
	}
}

func requireX86Flag(t *testing.T, c *CPU_X86, name string, mask uint32, want bool) {
	t.Helper()
	if got := c.Flags&mask != 0; got != want {
		t.Fatalf("%s = %v, want %v (flags %04X)", name, got, want, c.Flags)
	}
}
