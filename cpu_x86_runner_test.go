// cpu_x86_runner_test.go - Program runner tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testX86Config() *X86Config {
	return &X86Config{
		MemorySize: x86DefaultMemorySize,
		LoadAddr:   0x7C00,
		IP:         0x7C00,
		SP:         0x7C00,
		Mode:       "real",
	}
}

func newTestRunner(t *testing.T, cfg *X86Config, program ...byte) *CPUX86Runner {
	t.Helper()
	r, err := NewCPUX86Runner(cfg, quietX86Logger())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadProgramData(program); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestCPUX86Runner_Halt(t *testing.T) {
	r := newTestRunner(t, testX86Config(), 0xB0, 0x2A, 0xF4) // MOV AL, 42; HLT
	reason, err := r.Run(context.Background())
	if err != nil || reason != X86StopHalted {
		t.Fatalf("Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "AL", r.CPU().AL(), 42)
	requireX86Equal(t, "SP", r.CPU().SP(), 0x7C00)
}

func TestCPUX86Runner_StepLimit(t *testing.T) {
	cfg := testX86Config()
	cfg.MaxSteps = 100
	r := newTestRunner(t, cfg, 0xEB, 0xFE) // JMP $
	reason, err := r.Run(context.Background())
	if err != nil || reason != X86StopStepLimit {
		t.Fatalf("Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "instructions", r.CPU().Instructions, 100)
}

func TestCPUX86Runner_Breakpoint(t *testing.T) {
	cfg := testX86Config()
	cfg.Breakpoints = []string{"$7C02"}
	r := newTestRunner(t, cfg, 0x40, 0x40, 0x40, 0xF4) // INC AX x3; HLT

	reason, err := r.Run(context.Background())
	if err != nil || reason != X86StopBreakpoint {
		t.Fatalf("first Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "AX at breakpoint", r.CPU().AX(), 2)
	requireX86Equal(t, "PC", r.Debugger().GetPC(), 0x7C02)

	reason, err = r.Run(context.Background())
	if err != nil || reason != X86StopHalted {
		t.Fatalf("second Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "AX", r.CPU().AX(), 3)
}

func TestCPUX86Runner_ConditionalBreakpoint(t *testing.T) {
	cfg := testX86Config()
	cfg.Breakpoints = []string{"0x7C00"}
	cfg.BreakCondition = "AX==3"
	r := newTestRunner(t, cfg, 0x40, 0xEB, 0xFD) // INC AX; JMP -3

	reason, err := r.Run(context.Background())
	if err != nil || reason != X86StopBreakpoint {
		t.Fatalf("Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "AX", r.CPU().AX(), 3)
	requireX86Equal(t, "hits", r.Debugger().GetConditionalBreakpoint(0x7C00).HitCount, 4)
}

func TestCPUX86Runner_Cancelled(t *testing.T) {
	r := newTestRunner(t, testX86Config(), 0xEB, 0xFE)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reason, err := r.Run(ctx)
	if err != nil || reason != X86StopCancelled {
		t.Fatalf("Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "instructions", r.CPU().Instructions, 0)
}

func TestCPUX86Runner_Fault(t *testing.T) {
	r := newTestRunner(t, testX86Config(), 0x90, 0x0F, 0xFF)
	reason, err := r.Run(context.Background())
	if reason != X86StopFault || !errors.Is(err, ErrX86UndefinedOpcode) {
		t.Fatalf("Run = %v, %v", reason, err)
	}
	requireX86Equal(t, "EIP", r.CPU().EIP, 0x7C01)
}

func TestCPUX86Runner_Flat32(t *testing.T) {
	cfg := testX86Config()
	cfg.Mode = "flat32"
	cfg.SP = 0x90000
	r := newTestRunner(t, cfg,
		0xB8, 0x78, 0x56, 0x34, 0x12, // MOV EAX, 0x12345678
		0x50, // PUSH EAX
		0xF4,
	)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	requireX86Equal(t, "ESP", r.CPU().ESP(), 0x8FFFC)
	requireX86Equal(t, "stacked", r.Memory().GetUInt32(0x8FFFC), 0x12345678)
}

func TestCPUX86Runner_ResetKeepsMemory(t *testing.T) {
	r := newTestRunner(t, testX86Config(), 0xB0, 0x01, 0xF4)
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.Reset()
	requireX86Equal(t, "EIP", r.CPU().EIP, 0x7C00)
	requireX86Equal(t, "AL", r.CPU().AL(), 0)
	requireX86Equal(t, "program byte", r.Memory().GetByte(0x7C00), 0xB0)
	if reason, err := r.Run(context.Background()); err != nil || reason != X86StopHalted {
		t.Fatalf("rerun = %v, %v", reason, err)
	}
}

func TestCPUX86Runner_LoadErrors(t *testing.T) {
	cfg := testX86Config()
	cfg.MemorySize = 0x10000
	cfg.LoadAddr = 0xFFF0
	r, err := NewCPUX86Runner(cfg, quietX86Logger())
	if err != nil {
		t.Fatal(err)
	}
	if err := r.LoadProgramData(make([]byte, 0x20)); err == nil {
		t.Fatal("oversized program accepted")
	}
	if err := r.LoadProgram(filepath.Join(t.TempDir(), "missing.bin")); err == nil {
		t.Fatal("missing file accepted")
	}

	bad := testX86Config()
	bad.Breakpoints = []string{"nowhere"}
	if _, err := NewCPUX86Runner(bad, nil); err == nil {
		t.Fatal("bad breakpoint accepted")
	}
	bad = testX86Config()
	bad.BreakCondition = "lua:(("
	if _, err := NewCPUX86Runner(bad, nil); err == nil {
		t.Fatal("bad condition accepted")
	}
}

func TestCPUX86Runner_Trace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.x86t")
	r := newTestRunner(t, testX86Config(), 0x90, 0x90, 0xF4)
	if err := r.OpenTrace(path); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	recs, truncated := readTestTrace(t, data)
	if truncated || len(recs) != 3 {
		t.Fatalf("%d records, truncated %v", len(recs), truncated)
	}
	requireX86Equal(t, "last EIP", recs[2].EIP, 0x7C02)
}

func TestCPUX86Runner_ExecuteWithMetrics(t *testing.T) {
	cfg := testX86Config()
	cfg.MetricsAddr = "127.0.0.1:0"
	r := newTestRunner(t, cfg, 0xF3, 0xAA, 0xF4) // REP STOSB; HLT
	r.CPU().SetCX(3)
	r.CPU().SetDI(0x200)

	reason, err := r.Execute(context.Background())
	if err != nil || reason != X86StopHalted {
		t.Fatalf("Execute = %v, %v", reason, err)
	}
	requireX86Equal(t, "published instructions", r.stats.Instructions.Load(), r.CPU().Instructions)
	requireX86Equal(t, "published rep iterations", r.stats.RepIterations.Load(), 3)
}

func TestX86StopReason_String(t *testing.T) {
	for reason, want := range map[X86StopReason]string{
		X86StopHalted:     "halted",
		X86StopStepLimit:  "step limit",
		X86StopBreakpoint: "breakpoint",
		X86StopCancelled:  "cancelled",
		X86StopFault:      "fault",
		X86StopReason(9):  "X86StopReason(9)",
	} {
		if got := reason.String(); got != want {
			t.Errorf("%d = %q, want %q", int(reason), got, want)
		}
	}
}
