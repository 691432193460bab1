// config_test.go - Runner configuration tests
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/pflag"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "x86core.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestX86Config_Defaults(t *testing.T) {
	cfg, err := loadX86Config(newX86Viper(), "")
	if err != nil {
		t.Fatal(err)
	}
	want := &X86Config{
		MemorySize:  x86DefaultMemorySize,
		LoadAddr:    0x7C00,
		IP:          0x7C00,
		SP:          0x7C00,
		Mode:        "real",
		TraceChunk:  x86TraceDefaultChunk,
		LogLevel:    "info",
		LogFormat:   "text",
		Breakpoints: []string{},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("defaults (-want +got):\n%s", diff)
	}
}

func TestX86Config_File(t *testing.T) {
	path := writeTestConfig(t, `
mode: flat32
ip: 4096
sp: 65536
max_steps: 50
breakpoints: ["$1000", "0x1010"]
break_condition: "hitcount>2"
log_format: json
`)
	cfg, err := loadX86Config(newX86Viper(), path)
	if err != nil {
		t.Fatal(err)
	}
	requireX86Equal(t, "IP", cfg.IP, 4096)
	requireX86Equal(t, "SP", cfg.SP, 65536)
	requireX86Equal(t, "MaxSteps", cfg.MaxSteps, 50)
	if cfg.Mode != "flat32" || cfg.LogFormat != "json" || cfg.BreakCondition != "hitcount>2" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"$1000", "0x1010"}, cfg.Breakpoints); diff != "" {
		t.Fatalf("breakpoints (-want +got):\n%s", diff)
	}
	// unset keys keep their defaults
	requireX86Equal(t, "LoadAddr", cfg.LoadAddr, 0x7C00)
}

func TestX86Config_Precedence(t *testing.T) {
	path := writeTestConfig(t, "max_steps: 50\nip: 256\nmode: flat32\n")
	t.Setenv("X86CORE_MAX_STEPS", "77")
	t.Setenv("X86CORE_IP", "512")

	v := newX86Viper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addX86ConfigFlags(fs)
	if err := fs.Parse([]string{"--max-steps=99", "--break=$7C00,$7C10"}); err != nil {
		t.Fatal(err)
	}
	if err := bindX86Flags(v, fs); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadX86Config(v, path)
	if err != nil {
		t.Fatal(err)
	}
	requireX86Equal(t, "MaxSteps (flag)", cfg.MaxSteps, 99)
	requireX86Equal(t, "IP (env)", cfg.IP, 512)
	if cfg.Mode != "flat32" {
		t.Fatalf("Mode (file) = %q", cfg.Mode)
	}
	if diff := cmp.Diff([]string{"$7C00", "$7C10"}, cfg.Breakpoints); diff != "" {
		t.Fatalf("breakpoints (-want +got):\n%s", diff)
	}
}

func TestX86Config_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"mode":       "mode: protected\n",
		"memory":     "memory_size: 0\n",
		"breakpoint": "breakpoints: [nowhere]\n",
	} {
		if _, err := loadX86Config(newX86Viper(), writeTestConfig(t, body)); err == nil {
			t.Errorf("%s: invalid config accepted", name)
		}
	}
	if _, err := loadX86Config(newX86Viper(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing config file accepted")
	}
}
