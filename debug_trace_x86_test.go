// debug_trace_x86_test.go - Execution trace writer/reader tests

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
)

func writeTestTrace(t *testing.T, n, chunk int) ([]byte, []X86TraceRecord) {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewX86TraceWriter(&buf, chunk)
	if err != nil {
		t.Fatal(err)
	}
	recs := make([]X86TraceRecord, n)
	for i := range recs {
		rec := &recs[i]
		rec.Index = uint32(i)
		rec.EIP = 0x100 + uint32(i)*3
		rec.EFLAGS = x86FlagR1 | uint32(i&1)
		rec.GPR[x86RegEAX] = uint32(i) * 0x01010101
		rec.Seg[x86SegCS] = 0xF000
		rec.Window[0] = byte(i)
		w.Write(rec)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes(), recs
}

func readTestTrace(t *testing.T, data []byte) ([]X86TraceRecord, bool) {
	t.Helper()
	r, err := NewX86TraceReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var out []X86TraceRecord
	for {
		var rec X86TraceRecord
		ok, err := r.Next(&rec)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return out, r.Truncated
		}
		out = append(out, rec)
	}
}

func TestX86Trace_RoundTrip(t *testing.T) {
	data, want := writeTestTrace(t, 10, 4)
	got, truncated := readTestTrace(t, data)
	if truncated {
		t.Fatal("complete trace reported truncated")
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestX86Trace_TruncatedFinalChunk(t *testing.T) {
	data, want := writeTestTrace(t, 10, 4)
	got, truncated := readTestTrace(t, data[:len(data)-3])
	if !truncated {
		t.Fatal("truncation not reported")
	}
	if diff := cmp.Diff(want[:8], got); diff != "" {
		t.Fatalf("records (-want +got):\n%s", diff)
	}
}

func TestX86Trace_TruncatedChunkHeader(t *testing.T) {
	data, _ := writeTestTrace(t, 4, 4)
	got, truncated := readTestTrace(t, append(data, 0x01, 0x00))
	if !truncated || len(got) != 4 {
		t.Fatalf("records %d, truncated %v", len(got), truncated)
	}
}

func TestX86Trace_BadMagic(t *testing.T) {
	_, err := NewX86TraceReader(bytes.NewReader([]byte("NOPE\x01\x00\x4c\x00")))
	if !errors.Is(err, ErrTraceFormat) {
		t.Fatalf("err = %v", err)
	}
}

// appendTraceChunk appends a raw chunk header and frame to a trace.
func appendTraceChunk(data []byte, count, size uint32, frame []byte) []byte {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], count)
	binary.LittleEndian.PutUint32(hdr[4:], size)
	return append(append(data, hdr[:]...), frame...)
}

func TestX86Trace_CorruptChunkHeader(t *testing.T) {
	empty, _ := writeTestTrace(t, 0, 4)
	tests := []struct {
		name        string
		count, size uint32
	}{
		{"huge frame", 1, 0xF0000000},
		{"frame over cap", 1, x86TraceMaxFrame + 1},
		{"too many records", x86TraceMaxChunk + 1, 16},
		{"no records", 0, 16},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := appendTraceChunk(bytes.Clone(empty), tc.count, tc.size, nil)
			r, err := NewX86TraceReader(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			var rec X86TraceRecord
			ok, err := r.Next(&rec)
			if ok || !errors.Is(err, ErrTraceFormat) {
				t.Fatalf("Next = %v, %v; want ErrTraceFormat", ok, err)
			}
			if r.Truncated {
				t.Fatal("corrupt header reported as truncation")
			}
			if ok, err := r.Next(&rec); ok || err != nil {
				t.Fatalf("Next after error = %v, %v", ok, err)
			}
		})
	}
}

func TestX86Trace_OversizedFrameContent(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	frame := enc.EncodeAll(make([]byte, x86TraceMaxChunk*x86TraceRecordSize+x86TraceRecordSize), nil)
	enc.Close()
	if len(frame) > x86TraceMaxFrame {
		t.Fatalf("test frame of %d bytes exceeds the frame cap", len(frame))
	}

	empty, _ := writeTestTrace(t, 0, 4)
	data := appendTraceChunk(bytes.Clone(empty), 1, uint32(len(frame)), frame)
	r, err := NewX86TraceReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	var rec X86TraceRecord
	if ok, err := r.Next(&rec); ok || !errors.Is(err, ErrTraceFormat) {
		t.Fatalf("Next = %v, %v; want ErrTraceFormat", ok, err)
	}
}

func TestX86Trace_WriterCapsChunk(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewX86TraceWriter(&buf, x86TraceMaxChunk*4)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	requireX86Equal(t, "chunk", w.chunk, x86TraceMaxChunk)
}

func TestX86Trace_CPUHook(t *testing.T) {
	r := newCPUX86TestRig(t,
		0x90,       // NOP
		0xB0, 0x07, // MOV AL, 7
		0xF4,       // HLT
	)
	var buf bytes.Buffer
	w, err := NewX86TraceWriter(&buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	r.cpu.Trace = w.Hook()
	r.step(t, 3)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, _ := readTestTrace(t, buf.Bytes())
	if len(got) != 3 {
		t.Fatalf("%d records", len(got))
	}
	for i, want := range []uint32{0x100, 0x101, 0x103} {
		requireX86Equal(t, "EIP", got[i].EIP, want)
		requireX86Equal(t, "Index", got[i].Index, uint32(i))
	}
	requireX86Equal(t, "window", got[1].Window[1], 0x07)
	requireX86Equal(t, "AL before HLT", got[2].GPR[x86RegEAX]&0xFF, 0x07)
}
