// fpu_x87_env.go - FSTENV/FLDENV/FSAVE/FRSTOR memory images
//
// Four environment layouts, chosen by operand size and CPU mode:
//
//	32-bit protected  28 bytes  FCW FSW FTW FIP FCS|FOP<<16 FDP FDS (dwords)
//	32-bit real       28 bytes  FCW FSW FTW IP[15:0] IP[31:16]<<12|FOP DP[15:0] DP[31:16]<<12
//	16-bit protected  14 bytes  FCW FSW FTW FIP FCS FDP FDS (words)
//	16-bit real       14 bytes  FCW FSW FTW IP[15:0] IP[19:16]<<12|FOP DP[15:0] DP[19:16]<<12
//
// Real-mode images carry 20-bit linear pointers. FSAVE appends ST(0)..ST(7)
// as 10-byte reals, giving 108 and 94 byte images.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package main

import "encoding/binary"

const (
	x87Env16Size  = 14
	x87Env32Size  = 28
	x87Save16Size = x87Env16Size + 80
	x87Save32Size = x87Env32Size + 80
)

func x87EnvSize(op32 bool) int {
	if op32 {
		return x87Env32Size
	}
	return x87Env16Size
}

func x87SaveSize(op32 bool) int {
	return x87EnvSize(op32) + 80
}

// envField writes field i of an environment image at the layout's width.
func envField(b []byte, op32 bool, i int, v uint32) {
	if op32 {
		binary.LittleEndian.PutUint32(b[4*i:], v)
		return
	}
	binary.LittleEndian.PutUint16(b[2*i:], uint16(v))
}

func envRead(b []byte, op32 bool, i int) uint32 {
	if op32 {
		return binary.LittleEndian.Uint32(b[4*i:])
	}
	return uint32(binary.LittleEndian.Uint16(b[2*i:]))
}

// storeEnv writes the environment image to b.
func (f *FPU_X87) storeEnv(b []byte, op32, protected bool) {
	envField(b, op32, 0, uint32(f.FCW)|0xFFFF0000)
	envField(b, op32, 1, uint32(f.FSW)|0xFFFF0000)
	envField(b, op32, 2, uint32(f.Tag())|0xFFFF0000)
	if protected {
		envField(b, op32, 3, f.FIP)
		envField(b, op32, 4, uint32(f.FCS)|uint32(f.FOP&0x7FF)<<16)
		envField(b, op32, 5, f.FDP)
		envField(b, op32, 6, uint32(f.FDS)|0xFFFF0000)
		return
	}
	ip := uint32(f.FCS)<<4 + f.FIP
	dp := uint32(f.FDS)<<4 + f.FDP
	envField(b, op32, 3, ip&0xFFFF|0xFFFF0000)
	envField(b, op32, 4, ip>>16<<12|uint32(f.FOP&0x7FF))
	envField(b, op32, 5, dp&0xFFFF|0xFFFF0000)
	envField(b, op32, 6, dp>>16<<12)
}

// loadEnv restores control, status, tag and pointers from b. Real-mode
// pointers come back as linear addresses with a zero selector.
func (f *FPU_X87) loadEnv(b []byte, op32, protected bool) {
	f.FCW = uint16(envRead(b, op32, 0))
	f.FSW = uint16(envRead(b, op32, 1))
	f.SetTag(uint16(envRead(b, op32, 2)))
	if protected {
		f.FIP = envRead(b, op32, 3)
		mix := envRead(b, op32, 4)
		f.FCS = uint16(mix)
		f.FOP = 0
		if op32 {
			f.FOP = uint16(mix>>16) & 0x7FF
		}
		f.FDP = envRead(b, op32, 5)
		f.FDS = uint16(envRead(b, op32, 6))
		return
	}
	hi := envRead(b, op32, 4)
	f.FIP = envRead(b, op32, 3)&0xFFFF | hi>>12<<16
	f.FOP = uint16(hi) & 0x7FF
	f.FDP = envRead(b, op32, 5)&0xFFFF | envRead(b, op32, 6)>>12<<16
	f.FCS, f.FDS = 0, 0
}

// writeImage stores the environment and ST(0)..ST(7) without changing state.
func (f *FPU_X87) writeImage(b []byte, op32, protected bool) {
	f.storeEnv(b, op32, protected)
	regs := b[x87EnvSize(op32):]
	for i := range 8 {
		Real80FromFloat64(f.ST(i)).Encode(regs[10*i:])
	}
}

// save writes the full FSAVE image and reinitialises the FPU.
func (f *FPU_X87) save(b []byte, op32, protected bool) {
	f.writeImage(b, op32, protected)
	f.Reset()
}

// restore loads a full FSAVE image.
func (f *FPU_X87) restore(b []byte, op32, protected bool) {
	f.loadEnv(b, op32, protected)
	regs := b[x87EnvSize(op32):]
	for i := range 8 {
		f.regs[f.physReg(i)] = DecodeReal80(regs[10*i:]).Float64()
	}
}
