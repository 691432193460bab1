// debug_trace_x86.go - Per-instruction execution trace
//
// A trace is a header ("X86T", u16 version, u16 record size) followed by
// chunks: u32 record count, u32 compressed length, then one zstd frame
// holding the records back to back. A record is the state before the
// instruction executes:
//
//	0   EAX ECX EDX EBX ESP EBP ESI EDI EIP EFLAGS CR0 index  (12 x u32)
//	48  ES CS SS DS FS GS                                      (6 x u16)
//	60  16 bytes at CS:EIP
//
// A reader stops cleanly at a truncated final chunk. Chunk headers that
// claim more than x86TraceMaxChunk records, or a frame longer than
// x86TraceMaxFrame, are format errors.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	x86TraceMagic        = "X86T"
	x86TraceVersion      = 1
	x86TraceRecordSize   = 76
	x86TraceDefaultChunk = 4096
	x86TraceMaxChunk     = 1 << 16

	// zstd output is bounded by the input plus block and frame overhead
	x86TraceMaxFrame = x86TraceMaxChunk*x86TraceRecordSize + x86TraceMaxChunk*x86TraceRecordSize>>7 + 1<<16
)

var ErrTraceFormat = errors.New("not an x86 trace")

// X86TraceRecord is one decoded trace record.
type X86TraceRecord struct {
	GPR    [8]uint32
	EIP    uint32
	EFLAGS uint32
	CR0    uint32
	Index  uint32
	Seg    [6]uint16
	Window [16]byte
}

func (r *X86TraceRecord) encode(b []byte) {
	le := binary.LittleEndian
	for i, v := range r.GPR {
		le.PutUint32(b[4*i:], v)
	}
	le.PutUint32(b[32:], r.EIP)
	le.PutUint32(b[36:], r.EFLAGS)
	le.PutUint32(b[40:], r.CR0)
	le.PutUint32(b[44:], r.Index)
	for i, v := range r.Seg {
		le.PutUint16(b[48+2*i:], v)
	}
	copy(b[60:76], r.Window[:])
}

func (r *X86TraceRecord) decode(b []byte) {
	le := binary.LittleEndian
	for i := range r.GPR {
		r.GPR[i] = le.Uint32(b[4*i:])
	}
	r.EIP = le.Uint32(b[32:])
	r.EFLAGS = le.Uint32(b[36:])
	r.CR0 = le.Uint32(b[40:])
	r.Index = le.Uint32(b[44:])
	for i := range r.Seg {
		r.Seg[i] = le.Uint16(b[48+2*i:])
	}
	copy(r.Window[:], b[60:76])
}

// X86TraceWriter buffers records and writes them in compressed chunks.
type X86TraceWriter struct {
	mu    sync.Mutex
	w     io.Writer
	enc   *zstd.Encoder
	buf   []byte
	count int
	chunk int
	err   error
}

// NewX86TraceWriter writes the header to w. chunk is the number of records
// per compressed chunk, 0 for the default, capped at x86TraceMaxChunk.
func NewX86TraceWriter(w io.Writer, chunk int) (*X86TraceWriter, error) {
	if chunk <= 0 {
		chunk = x86TraceDefaultChunk
	}
	chunk = min(chunk, x86TraceMaxChunk)
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	var hdr [8]byte
	copy(hdr[:], x86TraceMagic)
	binary.LittleEndian.PutUint16(hdr[4:], x86TraceVersion)
	binary.LittleEndian.PutUint16(hdr[6:], x86TraceRecordSize)
	if _, err := w.Write(hdr[:]); err != nil {
		enc.Close()
		return nil, err
	}
	return &X86TraceWriter{
		w:     w,
		enc:   enc,
		buf:   make([]byte, 0, chunk*x86TraceRecordSize),
		chunk: chunk,
	}, nil
}

// Hook returns a function suitable for CPU_X86.Trace.
func (t *X86TraceWriter) Hook() func(c *CPU_X86, window []byte) {
	return func(c *CPU_X86, window []byte) {
		rec := X86TraceRecord{
			GPR:    c.gpr,
			EIP:    c.EIP,
			EFLAGS: c.Flags,
			CR0:    c.CR[0],
			Index:  uint32(c.Instructions),
		}
		for i := range rec.Seg {
			rec.Seg[i] = c.Seg(i)
		}
		copy(rec.Window[:], window)
		t.Write(&rec)
	}
}

// Write appends one record. Errors are sticky and reported by Close.
func (t *X86TraceWriter) Write(rec *X86TraceRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.buf)
	t.buf = t.buf[:n+x86TraceRecordSize]
	rec.encode(t.buf[n:])
	t.count++
	if t.count == t.chunk {
		t.flushLocked()
	}
}

func (t *X86TraceWriter) flushLocked() {
	if t.count == 0 || t.err != nil {
		t.buf, t.count = t.buf[:0], 0
		return
	}
	frame := t.enc.EncodeAll(t.buf, nil)
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(t.count))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(frame)))
	if _, err := t.w.Write(hdr[:]); err != nil {
		t.err = err
	} else if _, err := t.w.Write(frame); err != nil {
		t.err = err
	}
	t.buf, t.count = t.buf[:0], 0
}

// Flush writes any buffered records as a short chunk.
func (t *X86TraceWriter) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
	return t.err
}

// Close flushes and releases the encoder. It does not close the
// underlying writer.
func (t *X86TraceWriter) Close() error {
	err := t.Flush()
	t.enc.Close()
	return err
}

// X86TraceReader iterates the records of a trace.
type X86TraceReader struct {
	r       io.Reader
	dec     *zstd.Decoder
	pending []byte
	done    bool

	// Truncated is set when the input ended inside a chunk.
	Truncated bool
}

func NewX86TraceReader(r io.Reader) (*X86TraceReader, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("trace header: %w", err)
	}
	if string(hdr[:4]) != x86TraceMagic {
		return nil, fmt.Errorf("%q: %w", hdr[:4], ErrTraceFormat)
	}
	if v := binary.LittleEndian.Uint16(hdr[4:]); v != x86TraceVersion {
		return nil, fmt.Errorf("version %d: %w", v, ErrTraceFormat)
	}
	if sz := binary.LittleEndian.Uint16(hdr[6:]); sz != x86TraceRecordSize {
		return nil, fmt.Errorf("record size %d: %w", sz, ErrTraceFormat)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(x86TraceMaxChunk*x86TraceRecordSize),
		zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &X86TraceReader{r: r, dec: dec}, nil
}

// Next decodes the next record into rec. It returns false at the end of
// the trace, including after a truncated chunk.
func (t *X86TraceReader) Next(rec *X86TraceRecord) (bool, error) {
	for len(t.pending) < x86TraceRecordSize {
		if t.done {
			return false, nil
		}
		if err := t.readChunk(); err != nil {
			return false, err
		}
	}
	rec.decode(t.pending)
	t.pending = t.pending[x86TraceRecordSize:]
	return true, nil
}

func (t *X86TraceReader) readChunk() error {
	var hdr [8]byte
	if _, err := io.ReadFull(t.r, hdr[:]); err != nil {
		t.done = true
		if err == io.EOF {
			return nil
		}
		if isTruncation(err) {
			t.Truncated = true
			return nil
		}
		return err
	}
	count := binary.LittleEndian.Uint32(hdr[0:])
	size := binary.LittleEndian.Uint32(hdr[4:])
	if count == 0 || count > x86TraceMaxChunk {
		t.done = true
		return fmt.Errorf("trace chunk of %d records: %w", count, ErrTraceFormat)
	}
	if size > x86TraceMaxFrame {
		t.done = true
		return fmt.Errorf("trace frame of %d bytes: %w", size, ErrTraceFormat)
	}
	frame := make([]byte, size)
	if _, err := io.ReadFull(t.r, frame); err != nil {
		t.done = true
		if isTruncation(err) {
			t.Truncated = true
			return nil
		}
		return err
	}
	data, err := t.dec.DecodeAll(frame, nil)
	if err != nil {
		t.done = true
		return fmt.Errorf("trace chunk: %v: %w", err, ErrTraceFormat)
	}
	if want := int(count) * x86TraceRecordSize; len(data) != want {
		t.done = true
		return fmt.Errorf("trace chunk holds %d bytes, want %d: %w", len(data), want, ErrTraceFormat)
	}
	t.pending = data
	return nil
}

// Close releases the decoder.
func (t *X86TraceReader) Close() {
	t.dec.Close()
}
