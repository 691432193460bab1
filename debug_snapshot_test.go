// debug_snapshot_test.go - Machine snapshot save/load tests

package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func snapshotTestRig(t *testing.T) *cpuX86TestRig {
	t.Helper()
	r := newCPUX86TestRig(t,
		0xD9, 0xEB, // FLDPI
		0xF4,
	)
	r.step(t, 2)
	c := r.cpu
	c.SetEAX(0xDEADBEEF)
	c.SetEDI(0x12345678)
	c.LoadSeg(x86SegES, 0x2000)
	c.setFlag(x86FlagCF|x86FlagZF, true)
	c.IDTR.Limit = 0x1FF
	r.mem.Load(0x8000, []byte("snapshot"))
	return r
}

func TestX86Snapshot_RoundTrip(t *testing.T) {
	src := snapshotTestRig(t)
	want := TakeX86Snapshot(src.cpu, src.mem.Bytes())

	var buf bytes.Buffer
	if _, err := want.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := ReadX86Snapshot(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Truncated {
		t.Fatal("complete snapshot reported truncated")
	}
	if diff := cmp.Diff(want.Regs, got.Regs); diff != "" {
		t.Fatalf("regs (-want +got):\n%s", diff)
	}
	if !bytes.Equal(want.FPU, got.FPU) {
		t.Fatal("FPU image differs")
	}

	dst := newCPUX86TestRig(t)
	got.Restore(dst.cpu, dst.mem.Bytes())
	requireX86Equal(t, "EAX", dst.cpu.EAX(), 0xDEADBEEF)
	requireX86Equal(t, "ES base", dst.cpu.SegBase(x86SegES), 0x20000)
	requireX86Equal(t, "EIP", dst.cpu.EIP, src.cpu.EIP)
	requireX86Equal(t, "FLAGS", dst.cpu.Flags, src.cpu.Flags)
	requireX86Equal(t, "Top", dst.cpu.FPU.Top(), 7)
	requireX86Equal(t, "Tag", dst.cpu.FPU.Tag(), src.cpu.FPU.Tag())
	if dst.cpu.FPU.ST(0) != src.cpu.FPU.ST(0) {
		t.Fatalf("ST(0) = %v", dst.cpu.FPU.ST(0))
	}
	if dst.cpu.Halted {
		t.Fatal("restore left the CPU halted")
	}
	if !bytes.Equal(dst.mem.Bytes(), src.mem.Bytes()) {
		t.Fatal("memory differs")
	}
}

func TestX86Snapshot_File(t *testing.T) {
	src := snapshotTestRig(t)
	path := filepath.Join(t.TempDir(), "state.x86s")
	if err := SaveX86Snapshot(path, TakeX86Snapshot(src.cpu, src.mem.Bytes())); err != nil {
		t.Fatal(err)
	}
	snap, err := LoadX86Snapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	requireX86Equal(t, "EDI", snap.Regs.GPR[x86RegEDI], 0x12345678)
	requireX86Equal(t, "memory", len(snap.Memory), src.mem.Size())
}

func TestX86Snapshot_Truncated(t *testing.T) {
	src := snapshotTestRig(t)
	var buf bytes.Buffer
	if _, err := TakeX86Snapshot(src.cpu, src.mem.Bytes()).WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()

	for _, n := range []int{3, 6} {
		snap, err := ReadX86Snapshot(bytes.NewReader(data[:n]))
		if err != nil {
			t.Fatalf("cut at %d: %v", n, err)
		}
		if !snap.Truncated {
			t.Fatalf("cut at %d: truncation not reported", n)
		}
		if snap.Regs != nil || snap.Memory != nil {
			t.Fatalf("cut at %d: sections loaded", n)
		}
	}
}

func TestX86Snapshot_BadHeader(t *testing.T) {
	if _, err := ReadX86Snapshot(bytes.NewReader([]byte("NOPE\x01\x00"))); !errors.Is(err, ErrSnapshotMagic) {
		t.Fatalf("magic: err = %v", err)
	}
	if _, err := ReadX86Snapshot(bytes.NewReader([]byte("X86S\x09\x00"))); !errors.Is(err, ErrSnapshotVersion) {
		t.Fatalf("version: err = %v", err)
	}
}
