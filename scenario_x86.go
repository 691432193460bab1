// scenario_x86.go - YAML instruction scenarios
//
// A scenario file is a list of small programs with an initial machine
// state and the registers, flags and memory expected after a number of
// steps:
//
//	- name: cmp sets borrow
//	  code: "38 C8"
//	  regs: {AL: 0, CL: 1}
//	  expect:
//	    regs: {CF: 1, SF: 1, ZF: 0}
//
// Register names are the debugger's: 32/16/8-bit GPRs, segment registers,
// EIP, EFLAGS and single flag bits.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// x86Scenario is one program and its expectations.
type x86Scenario struct {
	Name   string            `yaml:"name"`
	Mode   string            `yaml:"mode"`   // real (default) or flat32
	Origin uint32            `yaml:"origin"` // load address and initial IP, default 0x100
	Code   string            `yaml:"code"`   // hex bytes, whitespace ignored
	Steps  int               `yaml:"steps"`  // default 1
	Regs   map[string]uint32 `yaml:"regs"`
	Memory []x86ScenarioMem  `yaml:"memory"`
	Expect x86ScenarioExpect `yaml:"expect"`
}

type x86ScenarioMem struct {
	Addr  uint32 `yaml:"addr"`
	Bytes string `yaml:"bytes"`
}

type x86ScenarioExpect struct {
	Regs   map[string]uint32 `yaml:"regs"`
	Memory []x86ScenarioMem  `yaml:"memory"`
	Halted bool              `yaml:"halted"`
}

// x86ScenarioResult lists every expectation that did not hold.
type x86ScenarioResult struct {
	Name       string
	Steps      int
	Mismatches []string
}

func (r *x86ScenarioResult) Passed() bool { return len(r.Mismatches) == 0 }

const x86ScenarioDefaultOrigin = 0x100

func parseHexBytes(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex bytes: %w", err)
	}
	return b, nil
}

// readX86Scenarios decodes a scenario list.
func readX86Scenarios(r io.Reader) ([]x86Scenario, error) {
	var list []x86Scenario
	if err := yaml.NewDecoder(r).Decode(&list); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding scenarios: %w", err)
	}
	return list, nil
}

func loadX86Scenarios(path string) ([]x86Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readX86Scenarios(f)
}

// Run executes the scenario on a fresh 1MB machine.
func (s *x86Scenario) Run(logger *logrus.Logger) (*x86ScenarioResult, error) {
	mem, err := NewFlatMemory(x86DefaultMemorySize)
	if err != nil {
		return nil, err
	}
	code, err := parseHexBytes(s.Code)
	if err != nil {
		return nil, fmt.Errorf("%s: code: %w", s.Name, err)
	}
	origin := s.Origin
	if origin == 0 {
		origin = x86ScenarioDefaultOrigin
	}
	mem.Load(origin, code)
	for _, m := range s.Memory {
		b, err := parseHexBytes(m.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: memory %#x: %w", s.Name, m.Addr, err)
		}
		mem.Load(m.Addr, b)
	}

	cpu := NewCPU_X86(mem, logger)
	switch s.Mode {
	case "", "real":
	case "flat32":
		cpu.SetFlat32(true)
	default:
		return nil, fmt.Errorf("%s: mode %q", s.Name, s.Mode)
	}
	cpu.EIP = origin
	dbg := NewDebugX86(cpu)
	for _, name := range sortedKeys(s.Regs) {
		if !dbg.SetRegister(name, uint64(s.Regs[name])) {
			return nil, fmt.Errorf("%s: unknown register %q", s.Name, name)
		}
	}

	steps := s.Steps
	if steps <= 0 {
		steps = 1
	}
	res := &x86ScenarioResult{Name: s.Name}
	halted := false
	for res.Steps < steps {
		err := cpu.Step()
		if errors.Is(err, ErrX86Halted) {
			halted = true
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: step %d: %w", s.Name, res.Steps, err)
		}
		res.Steps++
	}

	for _, name := range sortedKeys(s.Expect.Regs) {
		want := s.Expect.Regs[name]
		got, ok := dbg.GetRegister(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown register %q", s.Name, name)
		}
		if uint32(got) != want {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("%s = %#x, want %#x", name, got, want))
		}
	}
	for _, m := range s.Expect.Memory {
		want, err := parseHexBytes(m.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%s: expect memory %#x: %w", s.Name, m.Addr, err)
		}
		got := dbg.ReadMemory(uint64(m.Addr), len(want))
		if !slices.Equal(got, want) {
			res.Mismatches = append(res.Mismatches, fmt.Sprintf("mem[%#x] = % X, want % X", m.Addr, got, want))
		}
	}
	if s.Expect.Halted != halted {
		res.Mismatches = append(res.Mismatches, fmt.Sprintf("halted = %v, want %v", halted, s.Expect.Halted))
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
