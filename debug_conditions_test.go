// debug_conditions_test.go - Breakpoint condition and debug adapter tests

package main

import (
	"testing"
)

func newDebugX86TestRig(t *testing.T, program ...byte) (*cpuX86TestRig, *DebugX86) {
	t.Helper()
	r := newCPUX86TestRig(t, program...)
	return r, NewDebugX86(r.cpu)
}

func TestParseCondition_Comparisons(t *testing.T) {
	tests := []struct {
		text   string
		source ConditionSource
		reg    string
		addr   uint64
		op     ConditionOp
		value  uint64
	}{
		{"eax==$FF", CondSourceRegister, "EAX", 0, CondOpEqual, 0xFF},
		{"AL != #10", CondSourceRegister, "AL", 0, CondOpNotEqual, 10},
		{"[$1000]==$42", CondSourceMemory, "", 0x1000, CondOpEqual, 0x42},
		{"hitcount>10", CondSourceHitCount, "", 0, CondOpGreater, 0x10},
		{"cx<=0x20", CondSourceRegister, "CX", 0, CondOpLessEqual, 0x20},
		{"ZF>=1", CondSourceRegister, "ZF", 0, CondOpGreaterEqual, 1},
	}
	for _, tc := range tests {
		cond, err := ParseCondition(tc.text)
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if cond.Source != tc.source || cond.RegName != tc.reg || cond.MemAddr != tc.addr ||
			cond.Op != tc.op || cond.Value != tc.value {
			t.Errorf("%q parsed as %+v", tc.text, cond)
		}
	}
}

func TestParseCondition_Lua(t *testing.T) {
	for _, text := range []string{
		"lua:EAX == 5",
		"EAX == 5 and ZF == 1",
		"lua:local x = EAX + 1\nreturn x == 6",
	} {
		cond, err := ParseCondition(text)
		if err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		if cond.Source != CondSourceLua {
			t.Fatalf("%q: source %v", text, cond.Source)
		}
	}
	if _, err := ParseCondition(""); err == nil {
		t.Fatal("empty condition accepted")
	}
	if _, err := ParseCondition("lua:(((("); err == nil {
		t.Fatal("bad Lua accepted")
	}
}

func TestEvaluateCondition(t *testing.T) {
	r, d := newDebugX86TestRig(t)
	r.cpu.SetEAX(5)
	r.cpu.SetCX(0x1234)
	r.cpu.setFlag(x86FlagZF, true)
	r.mem.SetByte(0x1000, 0x42)

	tests := []struct {
		text string
		hits uint64
		want bool
	}{
		{"eax==5", 0, true},
		{"eax==6", 0, false},
		{"CH==$12", 0, true},
		{"[$1000]==$42", 0, true},
		{"[$1000]<$42", 0, false},
		{"hitcount>=3", 3, true},
		{"hitcount>=3", 2, false},
		{"nosuchreg==0", 0, false},
		{"EAX == 5 and ZF == 1", 0, true},
		{"lua:mem(0x1000) == 0x42", 0, true},
		{"lua:hits % 2 == 0", 4, true},
		{"lua:hits % 2 == 0", 5, false},
		{"lua:local v = EAX * 2\nreturn v == 10", 0, true},
		{"lua:error('boom')", 0, false},
		{"lua:FTOP == 0 and FCW == 0x37F", 0, true},
	}
	for _, tc := range tests {
		cond, err := ParseCondition(tc.text)
		if err != nil {
			t.Fatalf("%q: %v", tc.text, err)
		}
		if got := evaluateConditionWithHitCount(cond, d, tc.hits); got != tc.want {
			t.Errorf("%q (hits %d) = %v, want %v", tc.text, tc.hits, got, tc.want)
		}
	}
	if !evaluateConditionWithHitCount(nil, d, 0) {
		t.Fatal("nil condition must hold")
	}
}

func TestFormatCondition(t *testing.T) {
	for text, want := range map[string]string{
		"eax==$FF":     "EAX==$FF",
		"[$1000]==$42": "[$1000]==$42",
		"hitcount>10":  "hitcount>$10",
		"lua:ZF == 1":  "lua:ZF == 1",
	} {
		cond, err := ParseCondition(text)
		if err != nil {
			t.Fatal(err)
		}
		if got := FormatCondition(cond); got != want {
			t.Errorf("FormatCondition(%q) = %q, want %q", text, got, want)
		}
	}
	if FormatCondition(nil) != "" {
		t.Fatal("nil condition formats as non-empty")
	}
}

func TestDebugX86_Registers(t *testing.T) {
	r, d := newDebugX86TestRig(t)
	r.cpu.SetEAX(0x11223344)

	for name, want := range map[string]uint64{
		"EAX": 0x11223344, "ax": 0x3344, "AH": 0x33, "AL": 0x44,
		"EIP": x86TestOrigin, "PC": x86TestOrigin, "SP": 0x1000,
		"EFLAGS": uint64(r.cpu.Flags), "FCW": uint64(x87FCW_Default),
		"FTW": 0xFFFF, "IF": 1,
	} {
		got, ok := d.GetRegister(name)
		if !ok || got != want {
			t.Errorf("GetRegister(%s) = 0x%X, %v; want 0x%X", name, got, ok, want)
		}
	}

	if !d.SetRegister("bl", 0x7F) || r.cpu.BL() != 0x7F {
		t.Fatal("SetRegister BL")
	}
	if !d.SetRegister("ds", 0x1000) || r.cpu.SegBase(x86SegDS) != 0x10000 {
		t.Fatal("SetRegister DS")
	}
	if !d.SetRegister("CF", 1) || !r.cpu.CF() {
		t.Fatal("SetRegister CF")
	}
	if !d.SetRegister("FLAGS", 0) || r.cpu.Flags != x86FlagR1 {
		t.Fatalf("SetRegister FLAGS left %04X", r.cpu.Flags)
	}
	if d.SetRegister("XYZ", 1) {
		t.Fatal("unknown register accepted")
	}
	if _, ok := d.GetRegister("XYZ"); ok {
		t.Fatal("unknown register read")
	}
}

func TestDebugX86_PCIsLinear(t *testing.T) {
	r, d := newDebugX86TestRig(t)
	r.cpu.LoadSeg(x86SegCS, 0x1000)
	requireX86Equal(t, "PC", d.GetPC(), 0x10100)
	d.SetPC(0x10200)
	requireX86Equal(t, "EIP", r.cpu.EIP, 0x0200)
}

func TestDebugX86_ConditionalBreakpoint(t *testing.T) {
	r, d := newDebugX86TestRig(t, 0x40, 0xEB, 0xFD) // INC AX; JMP $-1
	cond, err := ParseCondition("hitcount>=3")
	if err != nil {
		t.Fatal(err)
	}
	d.SetConditionalBreakpoint(x86TestOrigin, cond)

	events := make(chan BreakpointEvent, 4)
	d.SetBreakpointChannel(events, 2)

	fired := 0
	for range 8 {
		if d.ShouldBreak() {
			fired++
			break
		}
		r.step(t, 2)
	}
	if fired != 1 {
		t.Fatal("breakpoint never fired")
	}
	requireX86Equal(t, "hits", d.GetConditionalBreakpoint(x86TestOrigin).HitCount, 3)
	requireX86Equal(t, "AX", r.cpu.AX(), 2)
	select {
	case ev := <-events:
		if ev.CPUID != 2 || ev.Address != x86TestOrigin {
			t.Fatalf("event %+v", ev)
		}
	default:
		t.Fatal("no breakpoint event")
	}
}

func TestDebugX86_BreakpointList(t *testing.T) {
	_, d := newDebugX86TestRig(t)
	d.SetBreakpoint(0x100)
	d.SetBreakpoint(0x200)
	if !d.HasBreakpoint(0x200) || len(d.ListBreakpoints()) != 2 {
		t.Fatal("breakpoints not recorded")
	}
	if !d.ClearBreakpoint(0x100) || d.ClearBreakpoint(0x100) {
		t.Fatal("ClearBreakpoint")
	}
	d.ClearAllBreakpoints()
	if len(d.ListBreakpoints()) != 0 {
		t.Fatal("ClearAllBreakpoints")
	}
}

func TestParseAddress(t *testing.T) {
	for text, want := range map[string]uint64{
		"$FF": 0xFF, "0x1000": 0x1000, "#100": 100, "ff": 0xFF, " 10 ": 0x10,
	} {
		got, ok := ParseAddress(text)
		if !ok || got != want {
			t.Errorf("ParseAddress(%q) = 0x%X, %v", text, got, ok)
		}
	}
	for _, bad := range []string{"", "$", "#x", "zz"} {
		if _, ok := ParseAddress(bad); ok {
			t.Errorf("ParseAddress(%q) accepted", bad)
		}
	}
}
