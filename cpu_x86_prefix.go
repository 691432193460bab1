// cpu_x86_prefix.go - x86 instruction prefix accumulation
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

// x86RepMode is the active repeat prefix.
type x86RepMode uint8

const (
	x86RepNone x86RepMode = iota
	x86RepE               // F3: REP / REPE / REPZ
	x86RepNE              // F2: REPNE / REPNZ
)

// x86MaxPrefixes bounds prefix runs; the architectural instruction length
// limit is 15 bytes.
const x86MaxPrefixes = 14

// x86Prefix is the transient per-instruction prefix state.
type x86Prefix struct {
	Seg      int  // segment override, x86SegNone when absent
	OpSize   bool // 0x66 seen
	AddrSize bool // 0x67 seen
	Rep      x86RepMode
	Lock     bool
	Count    int // prefix bytes consumed
}

func (p *x86Prefix) reset() {
	*p = x86Prefix{Seg: x86SegNone}
}

// accept consumes b when it is a prefix byte. The last segment override and
// the last repeat prefix win, as on hardware.
func (p *x86Prefix) accept(b byte) bool {
	switch b {
	case 0x26:
		p.Seg = x86SegES
	case 0x2E:
		p.Seg = x86SegCS
	case 0x36:
		p.Seg = x86SegSS
	case 0x3E:
		p.Seg = x86SegDS
	case 0x64:
		p.Seg = x86SegFS
	case 0x65:
		p.Seg = x86SegGS
	case 0x66:
		p.OpSize = true
	case 0x67:
		p.AddrSize = true
	case 0xF0:
		p.Lock = true
	case 0xF2:
		p.Rep = x86RepNE
	case 0xF3:
		p.Rep = x86RepE
	default:
		return false
	}
	p.Count++
	return true
}

// isX86Prefix reports whether b is any prefix byte.
func isX86Prefix(b byte) bool {
	switch b {
	case 0x26, 0x2E, 0x36, 0x3E, 0x64, 0x65, 0x66, 0x67, 0xF0, 0xF2, 0xF3:
		return true
	}
	return false
}
