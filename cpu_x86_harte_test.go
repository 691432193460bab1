// cpu_x86_harte_test.go - SingleStepTests 8088 JSON Test Harness
//
// Validates real-mode execution against SingleStepTests/8088: thousands of
// cases per opcode with full initial and final register and RAM state.
//
// Test Data Source:
// https://github.com/SingleStepTests/8088
//
// Usage:
//   go test -v -run TestHarte8086                      # all files present
//   go test -v -run 'TestHarteX86_Groups/ALU'          # one group
//   go test -v -short -run TestHarte8086               # sampled
//
// Tests skip when testdata/8088/v1 is absent.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
)

// -----------------------------------------------------------------------------
// Test Data Structures
// -----------------------------------------------------------------------------

type X86HarteTestCase struct {
	Name    string        `json:"name"`
	Initial X86HarteState `json:"initial"`
	Final   X86HarteState `json:"final"`
}

type X86HarteState struct {
	Regs X86HarteRegs `json:"regs"`
	RAM  [][]uint32   `json:"ram"` // [[address, value], ...]
}

type X86HarteRegs struct {
	AX    uint16 `json:"ax"`
	BX    uint16 `json:"bx"`
	CX    uint16 `json:"cx"`
	DX    uint16 `json:"dx"`
	SI    uint16 `json:"si"`
	DI    uint16 `json:"di"`
	BP    uint16 `json:"bp"`
	SP    uint16 `json:"sp"`
	IP    uint16 `json:"ip"`
	CS    uint16 `json:"cs"`
	DS    uint16 `json:"ds"`
	ES    uint16 `json:"es"`
	SS    uint16 `json:"ss"`
	Flags uint16 `json:"flags"`
}

var (
	x86HarteVerbose = flag.Bool("x86-harte-verbose", false, "Enable verbose output for x86 Harte tests")
	x86HarteSample  = flag.Int("x86-harte-sample", 0, "Run only N tests per file (0 = all)")
)

const (
	x86HarteTestDir = "testdata/8088/v1"

	// CF PF AF ZF SF TF IF DF OF
	x86HarteFlagMask = 0x0FD5
)

// LoadX86HarteTests loads a gzip-compressed JSON test file
func LoadX86HarteTests(filename string) ([]X86HarteTestCase, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open test file: %w", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var tests []X86HarteTestCase
	if err := json.NewDecoder(gzReader).Decode(&tests); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return tests, nil
}

// -----------------------------------------------------------------------------
// CPU State Management
// -----------------------------------------------------------------------------

type x86HarteRig struct {
	mem *FlatMemory
	cpu *CPU_X86
}

func newX86HarteRig(t *testing.T) *x86HarteRig {
	t.Helper()
	mem, err := NewFlatMemory(x86DefaultMemorySize)
	if err != nil {
		t.Fatal(err)
	}
	return &x86HarteRig{mem: mem, cpu: NewCPU_X86(mem, quietX86Logger())}
}

func (r *x86HarteRig) setup(s X86HarteState) {
	r.mem.Reset()
	cpu := r.cpu
	cpu.Reset()
	cpu.SetAX(s.Regs.AX)
	cpu.SetBX(s.Regs.BX)
	cpu.SetCX(s.Regs.CX)
	cpu.SetDX(s.Regs.DX)
	cpu.SetSI(s.Regs.SI)
	cpu.SetDI(s.Regs.DI)
	cpu.SetBP(s.Regs.BP)
	cpu.SetSP(s.Regs.SP)
	cpu.SetIP(s.Regs.IP)
	cpu.LoadSeg(x86SegCS, s.Regs.CS)
	cpu.LoadSeg(x86SegDS, s.Regs.DS)
	cpu.LoadSeg(x86SegES, s.Regs.ES)
	cpu.LoadSeg(x86SegSS, s.Regs.SS)
	cpu.Flags = uint32(s.Regs.Flags) | x86FlagR1
	for _, e := range s.RAM {
		if len(e) >= 2 {
			r.mem.SetByte(e[0], byte(e[1]))
		}
	}
}

func (r *x86HarteRig) regs() X86HarteRegs {
	c := r.cpu
	return X86HarteRegs{
		AX: c.AX(), BX: c.BX(), CX: c.CX(), DX: c.DX(),
		SI: c.SI(), DI: c.DI(), BP: c.BP(), SP: c.SP(),
		IP: c.IP(),
		CS: c.CS(), DS: c.DS(), ES: c.ES(), SS: c.SS(),
		Flags: uint16(c.Flags) & x86HarteFlagMask,
	}
}

// run executes one case and returns a list of mismatches.
func (r *x86HarteRig) run(tc X86HarteTestCase) []string {
	r.setup(tc.Initial)
	r.cpu.Step()

	var out []string
	want := tc.Final.Regs
	want.Flags &= x86HarteFlagMask
	if diff := cmp.Diff(want, r.regs()); diff != "" {
		out = append(out, "regs (-want +got):\n"+diff)
	}
	for _, e := range tc.Final.RAM {
		if len(e) < 2 {
			continue
		}
		if got := r.mem.GetByte(e[0]); got != byte(e[1]) {
			out = append(out, fmt.Sprintf("RAM[0x%05X]: got 0x%02X, want 0x%02X", e[0], got, byte(e[1])))
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Test Runner
// -----------------------------------------------------------------------------

func sampleX86Harte(tests []X86HarteTestCase, n int) []X86HarteTestCase {
	if n <= 0 || n >= len(tests) {
		return tests
	}
	step := len(tests) / n
	out := make([]X86HarteTestCase, 0, n)
	for i := 0; i < len(tests) && len(out) < n; i += step {
		out = append(out, tests[i])
	}
	return out
}

func runX86HarteFile(t *testing.T, filename string) {
	tests, err := LoadX86HarteTests(filename)
	if err != nil {
		t.Fatalf("Failed to load tests from %s: %v", filename, err)
	}
	if len(tests) == 0 {
		t.Skipf("No tests found in %s", filename)
	}
	tests = sampleX86Harte(tests, *x86HarteSample)
	if testing.Short() {
		tests = sampleX86Harte(tests, 100)
	}

	rig := newX86HarteRig(t)
	passed := 0
	var failures []string
	for _, tc := range tests {
		m := rig.run(tc)
		if len(m) == 0 {
			passed++
			continue
		}
		if len(failures) < 10 {
			failures = append(failures, tc.Name)
		}
		if *x86HarteVerbose || testing.Verbose() {
			t.Errorf("%s FAILED:\n  %s", tc.Name, strings.Join(m, "\n  "))
		}
	}

	total := len(tests)
	t.Logf("%s: %d/%d passed (%.1f%%)", filepath.Base(filename), passed, total,
		float64(passed)/float64(total)*100)
	if len(failures) > 0 {
		t.Logf("First failures: %v", failures)
	}
}

// TestHarte8086 runs every 8088 test file present
func TestHarte8086(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(x86HarteTestDir, "*.json.gz"))
	if err != nil || len(files) == 0 {
		t.Skip("SingleStepTests 8088 files not found in " + x86HarteTestDir)
	}
	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), ".json.gz"), func(t *testing.T) {
			runX86HarteFile(t, file)
		})
	}
}

// TestHarteX86_Groups runs opcode families for targeted debugging
func TestHarteX86_Groups(t *testing.T) {
	groups := []struct {
		name  string
		files []string
	}{
		{"NOP", []string{"90"}},
		{"MOV", []string{"88", "89", "8A", "8B", "B0", "B8"}},
		{"ALU", []string{"00", "01", "02", "03", "04", "05", "28", "29", "2A", "2B", "2C", "2D", "38", "39", "3A", "3B"}},
		{"JMP", []string{"E9", "EB"}},
		{"PUSH_POP", []string{"50", "51", "52", "53", "54", "55", "56", "57", "58", "59", "5A", "5B", "5C", "5D", "5E", "5F"}},
		{"STRING", []string{"A4", "A5", "A6", "A7", "AA", "AB", "AC", "AD", "AE", "AF"}},
	}
	for _, g := range groups {
		t.Run(g.name, func(t *testing.T) {
			ran := 0
			for _, op := range g.files {
				file := filepath.Join(x86HarteTestDir, op+".json.gz")
				if _, err := os.Stat(file); err != nil {
					continue
				}
				ran++
				t.Run(op, func(t *testing.T) { runX86HarteFile(t, file) })
			}
			if ran == 0 {
				t.Skip("no test files for " + g.name)
			}
		})
	}
}
