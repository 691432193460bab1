// oracle_x86.go - Reference flag tables for byte subtraction
//
// The oracle computes CMP/SUB/SBB results with signed and unsigned integer
// arithmetic at full width instead of the bit tricks the ALU uses, so the
// two can be checked against each other over all 65536 operand pairs.
//
// Table entries pack the 8-bit result in bits 16-23 and the arithmetic
// flags (CF PF AF ZF SF OF, EFLAGS positions) in the low 12 bits.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import (
	"context"
	"fmt"
	"io"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// x86FlagTable is the oracle output for one operation.
type x86FlagTable struct {
	Op      string     `yaml:"op"`
	CarryIn bool       `yaml:"carry_in"`
	Rows    [][]uint32 `yaml:"rows,flow"` // Rows[a][b]
}

// x86FlagOracleOps lists the tables the generator produces.
var x86FlagOracleOps = []struct {
	name    string
	carryIn bool
}{
	{"CMP", false},
	{"SUB", false},
	{"SBB", false},
	{"SBB", true},
}

// oracleSub8 computes a-b-cin for bytes.
func oracleSub8(a, b byte, cin bool) (byte, uint32) {
	c := 0
	if cin {
		c = 1
	}
	var f uint32
	wide := int(a) - int(b) - c
	r := byte(wide)
	if wide < 0 {
		f |= x86FlagCF
	}
	if s := int(int8(a)) - int(int8(b)) - c; s < -128 || s > 127 {
		f |= x86FlagOF
	}
	if int(a&0xF)-int(b&0xF)-c < 0 {
		f |= x86FlagAF
	}
	if r == 0 {
		f |= x86FlagZF
	}
	if r >= 0x80 {
		f |= x86FlagSF
	}
	if bits.OnesCount8(r)%2 == 0 {
		f |= x86FlagPF
	}
	return r, f
}

func oracleEntry(r byte, f uint32) uint32 {
	return uint32(r)<<16 | f
}

// buildX86FlagTables computes every table, one row per goroutine.
func buildX86FlagTables(ctx context.Context) ([]x86FlagTable, error) {
	tables := make([]x86FlagTable, len(x86FlagOracleOps))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for ti, op := range x86FlagOracleOps {
		tables[ti] = x86FlagTable{Op: op.name, CarryIn: op.carryIn, Rows: make([][]uint32, 256)}
		for a := range 256 {
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := make([]uint32, 256)
				for b := range 256 {
					row[b] = oracleEntry(oracleSub8(byte(a), byte(b), op.carryIn))
				}
				tables[ti].Rows[a] = row
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("flag oracle: %w", err)
	}
	return tables, nil
}

// writeX86FlagTables writes the tables as a YAML document.
func writeX86FlagTables(w io.Writer, tables []x86FlagTable) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(tables); err != nil {
		return fmt.Errorf("encoding flag tables: %w", err)
	}
	return enc.Close()
}
