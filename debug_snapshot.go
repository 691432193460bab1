// debug_snapshot.go - X86 machine state snapshot for save/load
//
// File layout: "X86S", u16 version, then a gzip stream of sections. Each
// section is a 4-byte tag, a u32 length and the body:
//
//	REGS  register file, control/table registers, code/stack size
//	FPU   108-byte FSAVE image (32-bit protected layout)
//	MEM   physical memory
//
// A file cut short loads the sections that are complete and reports
// Truncated. Unknown tags are skipped.

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

const (
	x86SnapshotMagic   = "X86S"
	x86SnapshotVersion = 1
)

var (
	ErrSnapshotMagic   = errors.New("not an x86 snapshot")
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// x86SnapRegs is the fixed-size REGS section body.
type x86SnapRegs struct {
	GPR     [8]uint32
	EIP     uint32
	Flags   uint32
	CR      [5]uint32
	DR      [8]uint32
	GDTR    x86TableReg
	IDTR    x86TableReg
	LDTR    uint16
	TR      uint16
	SegSel  [6]uint16
	SegBase [6]uint32
	Mode    uint8 // bit 0 Code32, bit 1 Stack32
}

// X86Snapshot is processor, FPU and memory state.
type X86Snapshot struct {
	Regs   *x86SnapRegs
	FPU    []byte
	Memory []byte

	Truncated bool
}

// TakeX86Snapshot captures cpu and the first len(mem) bytes of memory.
func TakeX86Snapshot(cpu *CPU_X86, mem []byte) *X86Snapshot {
	r := &x86SnapRegs{
		GPR:   cpu.gpr,
		EIP:   cpu.EIP,
		Flags: cpu.Flags,
		CR:    cpu.CR,
		DR:    cpu.DR,
		GDTR:  cpu.GDTR,
		IDTR:  cpu.IDTR,
		LDTR:  cpu.LDTR,
		TR:    cpu.TR,
	}
	for i, s := range cpu.seg {
		r.SegSel[i], r.SegBase[i] = s.Selector, s.Base
	}
	if cpu.Code32 {
		r.Mode |= 1
	}
	if cpu.Stack32 {
		r.Mode |= 2
	}
	fpu := make([]byte, x87Save32Size)
	cpu.FPU.writeImage(fpu, true, true)
	return &X86Snapshot{Regs: r, FPU: fpu, Memory: bytes.Clone(mem)}
}

// Restore applies the sections present in s. Memory beyond len(mem) is
// dropped.
func (s *X86Snapshot) Restore(cpu *CPU_X86, mem []byte) {
	if r := s.Regs; r != nil {
		cpu.gpr = r.GPR
		cpu.EIP = r.EIP
		cpu.Flags = r.Flags
		cpu.CR = r.CR
		cpu.DR = r.DR
		cpu.GDTR, cpu.IDTR = r.GDTR, r.IDTR
		cpu.LDTR, cpu.TR = r.LDTR, r.TR
		for i := range cpu.seg {
			cpu.seg[i] = x86Segment{Selector: r.SegSel[i], Base: r.SegBase[i]}
		}
		cpu.Code32 = r.Mode&1 != 0
		cpu.Stack32 = r.Mode&2 != 0
		cpu.Halted = false
	}
	if len(s.FPU) == x87Save32Size {
		cpu.FPU.restore(s.FPU, true, true)
	}
	if s.Memory != nil {
		copy(mem, s.Memory)
	}
}

// WriteTo encodes the snapshot.
func (s *X86Snapshot) WriteTo(w io.Writer) (int64, error) {
	var hdr [6]byte
	copy(hdr[:], x86SnapshotMagic)
	binary.LittleEndian.PutUint16(hdr[4:], x86SnapshotVersion)
	n, err := w.Write(hdr[:])
	if err != nil {
		return int64(n), err
	}

	cw := &countingWriter{w: w, n: int64(n)}
	gz := gzip.NewWriter(cw)
	if s.Regs != nil {
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, s.Regs); err != nil {
			return cw.n, err
		}
		if err := writeSection(gz, "REGS", buf.Bytes()); err != nil {
			return cw.n, err
		}
	}
	if s.FPU != nil {
		if err := writeSection(gz, "FPU ", s.FPU); err != nil {
			return cw.n, err
		}
	}
	if s.Memory != nil {
		if err := writeSection(gz, "MEM ", s.Memory); err != nil {
			return cw.n, err
		}
	}
	if err := gz.Close(); err != nil {
		return cw.n, fmt.Errorf("closing gzip: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeSection(w io.Writer, tag string, body []byte) error {
	var hdr [8]byte
	copy(hdr[:4], tag)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("section %q: %w", tag, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("section %q: %w", tag, err)
	}
	return nil
}

// isTruncation reports errors that mean the input simply ended early.
func isTruncation(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// ReadX86Snapshot decodes a snapshot. Truncated input is not an error.
func ReadX86Snapshot(r io.Reader) (*X86Snapshot, error) {
	snap := &X86Snapshot{}
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if isTruncation(err) {
			snap.Truncated = true
			return snap, nil
		}
		return nil, err
	}
	if string(hdr[:4]) != x86SnapshotMagic {
		return nil, fmt.Errorf("%q: %w", hdr[:4], ErrSnapshotMagic)
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != x86SnapshotVersion {
		return nil, fmt.Errorf("version %d: %w", v, ErrSnapshotVersion)
	}

	gz, err := gzip.NewReader(r)
	if err != nil {
		if isTruncation(err) {
			snap.Truncated = true
			return snap, nil
		}
		return nil, fmt.Errorf("opening gzip: %w", err)
	}
	defer gz.Close()

	for {
		var sh [8]byte
		if _, err := io.ReadFull(gz, sh[:]); err != nil {
			if err == io.EOF {
				return snap, nil
			}
			if isTruncation(err) {
				snap.Truncated = true
				return snap, nil
			}
			return nil, fmt.Errorf("section header: %w", err)
		}
		body := make([]byte, binary.LittleEndian.Uint32(sh[4:]))
		if _, err := io.ReadFull(gz, body); err != nil {
			if isTruncation(err) {
				snap.Truncated = true
				return snap, nil
			}
			return nil, fmt.Errorf("section %q: %w", sh[:4], err)
		}
		switch string(sh[:4]) {
		case "REGS":
			regs := &x86SnapRegs{}
			if err := binary.Read(bytes.NewReader(body), binary.LittleEndian, regs); err != nil {
				snap.Truncated = true
				return snap, nil
			}
			snap.Regs = regs
		case "FPU ":
			snap.FPU = body
		case "MEM ":
			snap.Memory = body
		}
	}
}

// SaveX86Snapshot writes a snapshot file.
func SaveX86Snapshot(path string, s *X86Snapshot) error {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadX86Snapshot reads a snapshot file.
func LoadX86Snapshot(path string) (*X86Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadX86Snapshot(f)
}
