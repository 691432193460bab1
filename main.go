// main.go - Command line front end for the x86 core

/*
x86core runs, disassembles and traces x86 real-mode and flat 32-bit
programs, generates reference flag tables and checks instruction scenarios.

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/x86core
License: GPLv3 or later
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/k0kubun/pp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func boilerPlate(w io.Writer, colour bool) {
	lines := []string{
		"██╗  ██╗ █████╗  ██████╗  ██████╗ ██████╗ ██████╗ ███████╗",
		"╚██╗██╔╝██╔══██╗██╔════╝ ██╔════╝██╔═══██╗██╔══██╗██╔════╝",
		" ╚███╔╝ ╚█████╔╝███████╗ ██║     ██║   ██║██████╔╝█████╗  ",
		" ██╔██╗ ██╔══██╗██╔═══██╗██║     ██║   ██║██╔══██╗██╔══╝  ",
		"██╔╝ ██╗╚█████╔╝╚██████╔╝╚██████╗╚██████╔╝██║  ██║███████╗",
		"╚═╝  ╚═╝ ╚════╝  ╚═════╝  ╚═════╝ ╚═════╝ ╚═╝  ╚═╝╚══════╝",
	}
	fmt.Fprintln(w)
	for i, l := range lines {
		if colour {
			fmt.Fprintf(w, "\033[38;2;255;%d;147m%s\033[0m\n", 20+i*40, l)
		} else {
			fmt.Fprintln(w, l)
		}
	}
	fmt.Fprintln(w, "\nAn x86 16/32-bit core with x87 FPU.")
	fmt.Fprintln(w, "(c) 2024 - 2026 Zayn Otley")
	fmt.Fprintln(w, "License: GPLv3 or later")
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// x86StateDump is the post-run state printed by `run`.
type x86StateDump struct {
	Reason       string            `yaml:"reason"`
	Instructions uint64            `yaml:"instructions"`
	Regs         map[string]string `yaml:"regs"`
	FPUTop       int               `yaml:"fpu_top"`
	ST           []float64         `yaml:"st"`
	StackFaults  uint64            `yaml:"fpu_stack_faults"`
}

func newX86StateDump(r *CPUX86Runner, reason X86StopReason) *x86StateDump {
	cpu := r.CPU()
	d := &x86StateDump{
		Reason:       reason.String(),
		Instructions: cpu.Instructions,
		Regs:         make(map[string]string),
		FPUTop:       cpu.FPU.Top(),
		StackFaults:  cpu.FPU.StackFaults,
	}
	for _, reg := range r.Debugger().GetRegisters() {
		if reg.Group == "fpu" {
			continue
		}
		d.Regs[reg.Name] = fmt.Sprintf("%0*X", max(reg.BitWidth/4, 1), reg.Value)
	}
	for i := range 8 {
		d.ST = append(d.ST, cpu.FPU.ST(i))
	}
	return d
}

func printDump(w io.Writer, format string, v any) error {
	switch format {
	case "", "none":
		return nil
	case "pp":
		pp.ColoringEnabled = stdoutIsTerminal()
		_, err := pp.Fprintln(w, v)
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	}
	return fmt.Errorf("unknown dump format %q", format)
}

func commandLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")
	return newX86Logger(level, format, cmd.ErrOrStderr())
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "x86core",
		Short:         "x86 16/32-bit emulator core",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addX86LogFlags(root.PersistentFlags())
	root.AddCommand(
		newRunCommand(),
		newDisasmCommand(),
		newTraceCommand(),
		newFlagTableCommand(),
		newScenarioCommand(),
	)
	return root
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <program.bin>",
		Short: "Load a flat binary and execute it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := newX86Viper()
			if err := bindX86Flags(v, cmd.Flags()); err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadX86Config(v, path)
			if err != nil {
				return err
			}
			logger, err := newX86Logger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
				boilerPlate(cmd.ErrOrStderr(), term.IsTerminal(int(os.Stderr.Fd())))
			}

			runner, err := NewCPUX86Runner(cfg, logger)
			if err != nil {
				return err
			}
			if err := runner.LoadProgram(args[0]); err != nil {
				return err
			}
			if restore, _ := cmd.Flags().GetString("restore"); restore != "" {
				snap, err := LoadX86Snapshot(restore)
				if err != nil {
					return err
				}
				if snap.Truncated {
					logger.WithField("path", restore).Warn("snapshot truncated, restoring complete sections")
				}
				snap.Restore(runner.CPU(), runner.Memory().Bytes())
			}
			if cfg.TracePath != "" {
				if err := runner.OpenTrace(cfg.TracePath); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			reason, runErr := runner.Execute(ctx)
			if err := runner.Close(); err != nil && runErr == nil {
				runErr = err
			}
			logger.WithFields(logrus.Fields{
				"reason":       reason.String(),
				"instructions": runner.CPU().Instructions,
			}).Info("run finished")

			if save, _ := cmd.Flags().GetString("snapshot"); save != "" {
				if err := SaveX86Snapshot(save, TakeX86Snapshot(runner.CPU(), runner.Memory().Bytes())); err != nil {
					return err
				}
			}
			dump, _ := cmd.Flags().GetString("dump")
			if err := printDump(cmd.OutOrStdout(), dump, newX86StateDump(runner, reason)); err != nil {
				return err
			}
			return runErr
		},
	}
	addX86ConfigFlags(cmd.Flags())
	cmd.Flags().String("dump", "pp", "final state dump: pp, yaml or none")
	cmd.Flags().String("snapshot", "", "save a machine snapshot here after the run")
	cmd.Flags().String("restore", "", "restore a machine snapshot before running")
	cmd.Flags().Bool("quiet", false, "suppress the banner")
	return cmd
}

func newDisasmCommand() *cobra.Command {
	var (
		origin uint32
		count  int
		bits   int
	)
	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "Disassemble a flat binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bits != 16 && bits != 32 {
				return fmt.Errorf("--bits must be 16 or 32, got %d", bits)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			// instructions cut off by the end of the file list as DB
			readMem := func(addr uint64, size int) []byte {
				off := addr - uint64(origin)
				if addr < uint64(origin) || off >= uint64(len(data)) {
					return nil
				}
				return data[off:min(off+uint64(size), uint64(len(data)))]
			}
			w := cmd.OutOrStdout()
			addr := uint64(origin)
			end := uint64(origin) + uint64(len(data))
			for n := 0; addr < end && (count == 0 || n < count); n++ {
				line := disassembleX86(readMem, addr, 1, bits == 32, 0)[0]
				off := addr - uint64(origin)
				hexBytes := fmt.Sprintf("% X", data[off:off+uint64(line.Size)])
				fmt.Fprintf(w, "%08X  %-30s %s\n", line.Address, hexBytes, line.Mnemonic)
				addr += uint64(line.Size)
			}
			return nil
		},
	}
	cmd.Flags().Uint32Var(&origin, "origin", 0x100, "address of the first byte")
	cmd.Flags().IntVar(&count, "count", 0, "instructions to list (0 = whole file)")
	cmd.Flags().IntVar(&bits, "bits", 16, "code size: 16 or 32")
	return cmd
}

func newTraceCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trace <file>",
		Short: "Print the records of an execution trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			tr, err := NewX86TraceReader(f)
			if err != nil {
				return err
			}
			defer tr.Close()

			w := cmd.OutOrStdout()
			var rec X86TraceRecord
			for n := 0; limit == 0 || n < limit; n++ {
				ok, err := tr.Next(&rec)
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				code32 := rec.CR0&x86CR0PE != 0
				text := "DB ??"
				if in, ok := DecodeX86(rec.Window[:], code32); ok {
					text = FormatX86(&in, rec.EIP)
				}
				var gprs strings.Builder
				for i, v := range rec.GPR {
					fmt.Fprintf(&gprs, " %s=%08X", x86Reg32[i], v)
				}
				fmt.Fprintf(w, "%8d %04X:%08X %-28s FL=%08X%s\n",
					rec.Index, rec.Seg[x86SegCS], rec.EIP, text, rec.EFLAGS, gprs.String())
			}
			if tr.Truncated {
				logger.WithField("path", args[0]).Warn("trace truncated")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "records to print (0 = all)")
	return cmd
}

func newFlagTableCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "flagtable",
		Short: "Write CMP/SUB/SBB reference flags for every byte pair as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := buildX86FlagTables(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return writeX86FlagTables(cmd.OutOrStdout(), tables)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := writeX86FlagTables(f, tables); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newScenarioCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run YAML instruction scenarios",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := commandLogger(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				list, err := loadX86Scenarios(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				for i := range list {
					res, err := list[i].Run(logger)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					if res.Passed() {
						fmt.Fprintf(w, "PASS  %s (%d steps)\n", res.Name, res.Steps)
						continue
					}
					failed++
					fmt.Fprintf(w, "FAIL  %s\n", res.Name)
					for _, m := range res.Mismatches {
						fmt.Fprintf(w, "      %s\n", m)
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d scenario(s) failed", failed)
			}
			return nil
		},
	}
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "x86core:", err)
		os.Exit(1)
	}
}
