// config.go - Runner configuration
//
// Sources, lowest priority first: built-in defaults, a YAML config file,
// X86CORE_* environment variables, command-line flags.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const x86EnvPrefix = "X86CORE"

// X86Config holds everything the runner needs to start a program.
type X86Config struct {
	MemorySize int    `mapstructure:"memory_size"`
	LoadAddr   uint32 `mapstructure:"load_addr"`
	CS         uint16 `mapstructure:"cs"`
	IP         uint32 `mapstructure:"ip"`
	SS         uint16 `mapstructure:"ss"`
	SP         uint32 `mapstructure:"sp"`
	Mode       string `mapstructure:"mode"` // "real" or "flat32"
	MaxSteps   uint64 `mapstructure:"max_steps"`

	TracePath  string `mapstructure:"trace_path"`
	TraceChunk int    `mapstructure:"trace_chunk"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	Perf        bool   `mapstructure:"perf"`

	Breakpoints    []string `mapstructure:"breakpoints"`
	BreakCondition string   `mapstructure:"break_condition"`
}

var x86ConfigDefaults = map[string]any{
	"memory_size":     x86DefaultMemorySize,
	"load_addr":       0x7C00,
	"cs":              0,
	"ip":              0x7C00,
	"ss":              0,
	"sp":              0x7C00,
	"mode":            "real",
	"max_steps":       0,
	"trace_path":      "",
	"trace_chunk":     x86TraceDefaultChunk,
	"log_level":       "info",
	"log_format":      "text",
	"metrics_addr":    "",
	"perf":            false,
	"breakpoints":     []string{},
	"break_condition": "",
}

// newX86Viper returns a viper instance with defaults and environment
// binding in place.
func newX86Viper() *viper.Viper {
	v := viper.New()
	for k, val := range x86ConfigDefaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(x86EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// addX86ConfigFlags registers the runner flags on fs.
func addX86ConfigFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.Int("memory-size", x86DefaultMemorySize, "physical memory size in bytes")
	fs.Uint32("load-addr", 0x7C00, "linear load address of the program")
	fs.Uint16("cs", 0, "initial CS")
	fs.Uint32("ip", 0x7C00, "initial IP/EIP")
	fs.Uint16("ss", 0, "initial SS")
	fs.Uint32("sp", 0x7C00, "initial SP/ESP")
	fs.String("mode", "real", "execution mode: real or flat32")
	fs.Uint64("max-steps", 0, "stop after this many steps (0 = unlimited)")
	fs.String("trace-path", "", "write an execution trace to this file")
	fs.Int("trace-chunk", x86TraceDefaultChunk, "trace records per compressed chunk")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("perf", false, "report MIPS while running")
	fs.StringSlice("break", nil, "breakpoint linear addresses")
	fs.String("break-condition", "", "condition applied to every breakpoint")
}

// addX86LogFlags registers the logging flags shared by every command.
func addX86LogFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "text", "log format: text or json")
}

// bindX86Flags maps each flag onto its config key. Flags that are not
// config keys are left alone.
func bindX86Flags(v *viper.Viper, fs *pflag.FlagSet) error {
	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if f.Name == "break" {
			key = "breakpoints"
		}
		if _, ok := x86ConfigDefaults[key]; !ok {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// loadX86Config reads the optional config file and decodes the merged
// settings.
func loadX86Config(v *viper.Viper, path string) (*X86Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}
	cfg := &X86Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *X86Config) Validate() error {
	if c.MemorySize <= 0 || c.MemorySize > x86MaxMemorySize {
		return fmt.Errorf("memory_size %d out of range", c.MemorySize)
	}
	switch c.Mode {
	case "real", "flat32":
	default:
		return fmt.Errorf("mode %q: want real or flat32", c.Mode)
	}
	for _, bp := range c.Breakpoints {
		if _, ok := ParseAddress(bp); !ok {
			return fmt.Errorf("breakpoint %q is not an address", bp)
		}
	}
	return nil
}
