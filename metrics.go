// metrics.go - Prometheus export of runner counters
//
// The CPU counters are owned by the stepping goroutine. The runner copies
// them into x86RunStats at a fixed step interval; the collectors only read
// those atomics.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// x86RunStats is the published view of the counters.
type x86RunStats struct {
	Instructions   atomic.Uint64
	RepIterations  atomic.Uint64
	Interrupts     atomic.Uint64
	FPUStackFaults atomic.Uint64
	mips           atomic.Uint64 // float64 bits
}

func (s *x86RunStats) publish(c *CPU_X86) {
	s.Instructions.Store(c.Instructions)
	s.RepIterations.Store(c.RepIterations)
	s.Interrupts.Store(c.Interrupts)
	s.FPUStackFaults.Store(c.FPU.StackFaults)
}

func newX86Registry(s *x86RunStats) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "x86core",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v.Load()) })
	}
	registry.MustRegister(
		counter("instructions_total", "Instructions executed.", &s.Instructions),
		counter("rep_iterations_total", "Repeated string iterations executed.", &s.RepIterations),
		counter("interrupts_total", "Interrupts and exceptions delivered.", &s.Interrupts),
		counter("fpu_stack_faults_total", "x87 stack overflows and underflows ignored.", &s.FPUStackFaults),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "x86core",
			Name:      "mips",
			Help:      "Million instructions per second since start.",
		}, s.loadMIPS),
	)
	return registry
}

func (s *x86RunStats) loadMIPS() float64 {
	return math.Float64frombits(s.mips.Load())
}

// serveX86Metrics serves /metrics on addr until ctx is done.
func serveX86Metrics(ctx context.Context, addr string, registry *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
