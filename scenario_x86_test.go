// scenario_x86_test.go - YAML instruction scenario tests

package main

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestX86Scenarios_Testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, path := range files {
		list, err := loadX86Scenarios(path)
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		for i := range list {
			s := &list[i]
			t.Run(filepath.Base(path)+"/"+s.Name, func(t *testing.T) {
				res, err := s.Run(quietX86Logger())
				if err != nil {
					t.Fatal(err)
				}
				for _, m := range res.Mismatches {
					t.Error(m)
				}
			})
		}
	}
}

func TestReadX86Scenarios_Empty(t *testing.T) {
	list, err := readX86Scenarios(strings.NewReader(""))
	if err != nil || list != nil {
		t.Fatalf("empty input = %v, %v", list, err)
	}
	if _, err := readX86Scenarios(strings.NewReader("name: [")); err == nil {
		t.Fatal("malformed YAML accepted")
	}
}

func TestX86Scenario_Errors(t *testing.T) {
	for name, s := range map[string]x86Scenario{
		"code":     {Name: "bad code", Code: "4G"},
		"memory":   {Name: "bad memory", Code: "90", Memory: []x86ScenarioMem{{Addr: 0x200, Bytes: "zz"}}},
		"register": {Name: "bad register", Code: "90", Regs: map[string]uint32{"XYZ": 1}},
		"expect":   {Name: "bad expect", Code: "90", Expect: x86ScenarioExpect{Regs: map[string]uint32{"XYZ": 1}}},
		"mode":     {Name: "bad mode", Code: "90", Mode: "long"},
		"fault":    {Name: "undefined", Code: "0F FF"},
	} {
		if _, err := s.Run(quietX86Logger()); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestX86Scenario_Mismatch(t *testing.T) {
	s := x86Scenario{
		Name: "wrong",
		Code: "B0 01",
		Expect: x86ScenarioExpect{
			Regs:   map[string]uint32{"AL": 2},
			Memory: []x86ScenarioMem{{Addr: 0x100, Bytes: "B0 02"}},
			Halted: true,
		},
	}
	res, err := s.Run(quietX86Logger())
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed() || len(res.Mismatches) != 3 {
		t.Fatalf("mismatches %q", res.Mismatches)
	}
	requireX86Equal(t, "steps", res.Steps, 1)
}
