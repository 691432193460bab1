// cpu_x86_runner.go - x86 CPU Program Runner
//
// Loads a flat binary into FlatMemory, positions CS:IP and SS:SP from the
// configuration and steps the CPU until it halts, faults, reaches the step
// limit, hits a breakpoint or is cancelled. Optional attachments: an
// execution trace file and a Prometheus endpoint.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	x86PerfReportMask = 0xFFFFFF // perf check every ~16M instructions
	x86PublishMask    = 0xFFFF   // metrics publish interval
	x86CancelMask     = 0xFFF    // context poll interval
)

// X86StopReason says why Run returned.
type X86StopReason int

const (
	X86StopHalted X86StopReason = iota
	X86StopStepLimit
	X86StopBreakpoint
	X86StopCancelled
	X86StopFault
)

func (r X86StopReason) String() string {
	switch r {
	case X86StopHalted:
		return "halted"
	case X86StopStepLimit:
		return "step limit"
	case X86StopBreakpoint:
		return "breakpoint"
	case X86StopCancelled:
		return "cancelled"
	case X86StopFault:
		return "fault"
	}
	return fmt.Sprintf("X86StopReason(%d)", int(r))
}

// CPUX86Runner manages the x86 CPU, its memory and the debug attachments
type CPUX86Runner struct {
	cpu   *CPU_X86
	mem   *FlatMemory
	debug *DebugX86
	cfg   *X86Config
	log   *logrus.Entry

	trace     *X86TraceWriter
	traceFile *os.File
	traceBuf  *bufio.Writer

	// Performance monitoring
	PerfEnabled    bool
	perfStartTime  time.Time
	lastPerfReport time.Time
	stats          x86RunStats

	// set after a breakpoint stop so the next Run steps off it
	resumeFromBreak bool
}

// NewCPUX86Runner builds a machine from cfg. Breakpoints named in cfg are
// installed on the runner's debugger.
func NewCPUX86Runner(cfg *X86Config, logger *logrus.Logger) (*CPUX86Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	mem, err := NewFlatMemory(cfg.MemorySize)
	if err != nil {
		return nil, err
	}
	cpu := NewCPU_X86(mem, logger)
	r := &CPUX86Runner{
		cpu:         cpu,
		mem:         mem,
		debug:       NewDebugX86(cpu),
		cfg:         cfg,
		log:         logger.WithField("component", "runner"),
		PerfEnabled: cfg.Perf,
	}

	var cond *BreakpointCondition
	if cfg.BreakCondition != "" {
		if cond, err = ParseCondition(cfg.BreakCondition); err != nil {
			return nil, fmt.Errorf("break condition: %w", err)
		}
	}
	for _, s := range cfg.Breakpoints {
		addr, ok := ParseAddress(s)
		if !ok {
			return nil, fmt.Errorf("breakpoint %q is not an address", s)
		}
		r.debug.SetConditionalBreakpoint(addr, cond)
	}

	r.Reset()
	return r, nil
}

// CPU returns the CPU instance
func (r *CPUX86Runner) CPU() *CPU_X86 { return r.cpu }

// Memory returns the machine memory
func (r *CPUX86Runner) Memory() *FlatMemory { return r.mem }

// Debugger returns the debug adapter the runner checks breakpoints on
func (r *CPUX86Runner) Debugger() *DebugX86 { return r.debug }

// Reset returns the CPU to power-on state and positions the entry point.
// Memory is left alone.
func (r *CPUX86Runner) Reset() {
	c := r.cpu
	c.Reset()
	if r.cfg.Mode == "flat32" {
		c.SetFlat32(true)
		c.EIP = r.cfg.IP
		c.SetESP(r.cfg.SP)
	} else {
		c.LoadSeg(x86SegCS, r.cfg.CS)
		c.LoadSeg(x86SegSS, r.cfg.SS)
		c.LoadSeg(x86SegDS, r.cfg.CS)
		c.LoadSeg(x86SegES, r.cfg.CS)
		c.EIP = r.cfg.IP & 0xFFFF
		c.SetSP(uint16(r.cfg.SP))
	}
	r.resumeFromBreak = false
}

// LoadProgramData copies a binary image to the configured load address
func (r *CPUX86Runner) LoadProgramData(data []byte) error {
	if uint64(r.cfg.LoadAddr)+uint64(len(data)) > uint64(r.mem.Size()) {
		return fmt.Errorf("program too large: %d bytes at %#x in %d bytes of memory",
			len(data), r.cfg.LoadAddr, r.mem.Size())
	}
	r.mem.Load(r.cfg.LoadAddr, data)
	r.log.WithFields(logrus.Fields{
		"bytes": len(data),
		"addr":  fmt.Sprintf("%08X", r.cfg.LoadAddr),
	}).Debug("program loaded")
	return nil
}

// LoadProgram loads a binary program from a file
func (r *CPUX86Runner) LoadProgram(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return r.LoadProgramData(data)
}

// OpenTrace starts writing an execution trace to path.
func (r *CPUX86Runner) OpenTrace(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	buf := bufio.NewWriterSize(f, 1<<16)
	tw, err := NewX86TraceWriter(buf, r.cfg.TraceChunk)
	if err != nil {
		f.Close()
		return err
	}
	r.trace, r.traceFile, r.traceBuf = tw, f, buf
	r.cpu.Trace = tw.Hook()
	return nil
}

// Close flushes and closes the trace, if any.
func (r *CPUX86Runner) Close() error {
	if r.trace == nil {
		return nil
	}
	r.cpu.Trace = nil
	err := r.trace.Close()
	if ferr := r.traceBuf.Flush(); err == nil {
		err = ferr
	}
	if cerr := r.traceFile.Close(); err == nil {
		err = cerr
	}
	r.trace, r.traceFile, r.traceBuf = nil, nil, nil
	return err
}

// Run steps the CPU until something stops it. A fault is returned as an
// error alongside X86StopFault.
func (r *CPUX86Runner) Run(ctx context.Context) (X86StopReason, error) {
	c := r.cpu
	limit := r.cfg.MaxSteps
	start := c.Instructions
	hasBreaks := len(r.debug.ListBreakpoints()) > 0

	if r.PerfEnabled {
		r.perfStartTime = time.Now()
		r.lastPerfReport = r.perfStartTime
	}
	defer r.stats.publish(c)

	var steps uint64
	for {
		if steps&x86CancelMask == 0 && ctx.Err() != nil {
			r.log.Info("run cancelled")
			return X86StopCancelled, nil
		}
		if limit != 0 && c.Instructions-start >= limit {
			r.log.WithField("steps", limit).Info("step limit reached")
			return X86StopStepLimit, nil
		}
		if hasBreaks {
			if !r.resumeFromBreak && r.debug.ShouldBreak() {
				r.resumeFromBreak = true
				r.log.WithField("pc", fmt.Sprintf("%08X", r.debug.GetPC())).Info("breakpoint")
				return X86StopBreakpoint, nil
			}
			r.resumeFromBreak = false
		}

		err := c.Step()
		steps++
		if err != nil {
			if errors.Is(err, ErrX86Halted) {
				r.log.WithField("instructions", c.Instructions).Debug("halted")
				return X86StopHalted, nil
			}
			return X86StopFault, err
		}

		if steps&x86PublishMask == 0 {
			r.stats.publish(c)
		}
		if r.PerfEnabled && steps&x86PerfReportMask == 0 {
			r.reportPerf(steps)
		}
	}
}

func (r *CPUX86Runner) reportPerf(steps uint64) {
	now := time.Now()
	if now.Sub(r.lastPerfReport) < time.Second {
		return
	}
	elapsed := now.Sub(r.perfStartTime).Seconds()
	mips := float64(steps) / elapsed / 1_000_000
	r.stats.mips.Store(math.Float64bits(mips))
	r.log.Infof("x86: %.2f MIPS (%.0f instructions in %.1fs)", mips, float64(steps), elapsed)
	r.lastPerfReport = now
}

// Execute runs the program alongside the metrics endpoint when one is
// configured. The endpoint shuts down when the run ends.
func (r *CPUX86Runner) Execute(ctx context.Context) (X86StopReason, error) {
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	if addr := r.cfg.MetricsAddr; addr != "" {
		registry := newX86Registry(&r.stats)
		g.Go(func() error {
			r.log.WithField("addr", addr).Info("serving metrics")
			return serveX86Metrics(runCtx, addr, registry)
		})
	}

	var reason X86StopReason
	g.Go(func() error {
		defer cancel()
		var err error
		reason, err = r.Run(runCtx)
		return err
	})
	err := g.Wait()
	return reason, err
}
