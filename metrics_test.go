// metrics_test.go - Prometheus collector tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"math"
	"testing"
)

func TestX86Metrics_Gather(t *testing.T) {
	r := newCPUX86TestRig(t,
		0xF3, 0xAA, // REP STOSB
		0xDE, 0xC1, // FADDP on an empty stack
		0xF4,
	)
	r.cpu.SetCX(2)
	r.step(t, 4)

	var stats x86RunStats
	stats.publish(r.cpu)
	stats.mips.Store(math.Float64bits(12.5))
	registry := newX86Registry(&stats)

	families, err := registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := make(map[string]float64)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		if c := m.GetCounter(); c != nil {
			got[mf.GetName()] = c.GetValue()
		}
		if g := m.GetGauge(); g != nil {
			got[mf.GetName()] = g.GetValue()
		}
	}
	want := map[string]float64{
		"x86core_instructions_total":     float64(r.cpu.Instructions),
		"x86core_rep_iterations_total":   2,
		"x86core_interrupts_total":       0,
		"x86core_fpu_stack_faults_total": float64(r.cpu.FPU.StackFaults),
		"x86core_mips":                   12.5,
	}
	for name, v := range want {
		if g, ok := got[name]; !ok || g != v {
			t.Errorf("%s = %v (present %v), want %v", name, g, ok, v)
		}
	}
	if r.cpu.FPU.StackFaults == 0 {
		t.Fatal("expected stack faults from FADDP")
	}
}
