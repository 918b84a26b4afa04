// Package gte implements COP2, the Geometry Transformation Engine: the
// fixed-point matrix/vector coprocessor the BIOS and game 3D libraries drive
// through MTC2/MFC2/CTC2/CFC2 and the 64 GTE command opcodes (spec §4.2).
//
// Ported from original_source/trapezoid-core/src/coprocessor/cop2.rs,
// which is itself transcribed from Nocash's PSX hardware documentation; the
// fixed-point shifts, the UNR reciprocal table and the MVMVA tx=2 "far
// color" double-evaluation quirk are reproduced exactly since software
// (famously individual Final Fantasy VII field models) depends on their
// precise rounding and saturation behaviour.
package gte

// command is a decoded GTE opcode word (spec §4.2's COP2 command field).
type command struct {
	opcode uint8
	lm     bool
	sf     bool
	tx     uint8
	vx     uint8
	mx     uint8
}

func decodeCommand(word uint32) command {
	return command{
		opcode: uint8(word & 0x3F),
		lm:     (word>>10)&1 != 0,
		sf:     (word>>19)&1 != 0,
		tx:     uint8((word >> 13) & 3),
		vx:     uint8((word >> 15) & 3),
		mx:     uint8((word >> 17) & 3),
	}
}

// Flag is the COP2 control register 31 saturation/overflow flag bank.
type Flag uint32

const (
	flagIR0Sat       Flag = 1 << 12
	flagSY2Sat       Flag = 1 << 13
	flagSX2Sat       Flag = 1 << 14
	flagMAC0NegOver  Flag = 1 << 15
	flagMAC0PosOver  Flag = 1 << 16
	flagDivOverflow  Flag = 1 << 17
	flagSZ3OTZSat    Flag = 1 << 18
	flagColorBSat    Flag = 1 << 19
	flagColorGSat    Flag = 1 << 20
	flagColorRSat    Flag = 1 << 21
	flagIR3Sat       Flag = 1 << 22
	flagIR2Sat       Flag = 1 << 23
	flagIR1Sat       Flag = 1 << 24
	flagMAC3NegOver  Flag = 1 << 25
	flagMAC2NegOver  Flag = 1 << 26
	flagMAC1NegOver  Flag = 1 << 27
	flagMAC3PosOver  Flag = 1 << 28
	flagMAC2PosOver  Flag = 1 << 29
	flagMAC1PosOver  Flag = 1 << 30
)

// bitsWithError ORs in bit 31 when any of the "real" error bits (30-23,
// 18-13) are set, matching FLAG register semantics (spec §4.2).
func (f Flag) bitsWithError() uint32 {
	const errorMask = 0b0111_1111_1000_0111_1110_0000_0000_0000
	out := uint32(f)
	if out&errorMask != 0 {
		out |= 1 << 31
	}
	return out
}

// GTE is COP2: the full fixed-point register file plus its command engine.
type GTE struct {
	vectors [3][3]int16
	rgbc    uint32
	otz     uint16
	ir      [4]int16
	res1    uint32
	mac     [4]int32
	sxy     [3][2]int16
	sz      [4]uint16
	rgb     [3]uint32
	irgb    uint16
	orgb    uint16
	lzcs    int32
	lzcr    uint32

	rotationMatrix    [3][3]int16
	translationVector [3]int32
	lightSourceMatrix [3][3]int16
	lightColorMatrix  [3][3]int16

	backgroundColor          [3]int32
	farColor                 [3]int32
	screenOffset             [2]int32
	projectionPlaneDistance  uint16
	dqa                      int16
	dqb                      int32
	zsf3                     int16
	zsf4                     int16
	flag                     Flag
}

// New returns a GTE in its post-reset (all-zero) state.
func New() *GTE {
	g := &GTE{}
	g.Reset()
	return g
}

// Reset zeroes every GTE register (spec §4.2: reset state is all-zero,
// unlike COP0 which has a BEV default).
func (g *GTE) Reset() {
	*g = GTE{}
}

func getRGB(rgbc uint32) (r, g, b int64) {
	return int64(rgbc & 0xFF), int64((rgbc >> 8) & 0xFF), int64((rgbc >> 16) & 0xFF)
}

func (g *GTE) saturateI64(value, min, max int64, flag Flag) int64 {
	if value < min {
		g.flag |= flag
		return min
	}
	if value > max {
		g.flag |= flag
		return max
	}
	return value
}

func (g *GTE) updateIR123() {
	r := g.irgb & 0x1F
	gg := (g.irgb >> 5) & 0x1F
	b := (g.irgb >> 10) & 0x1F
	g.ir[1] = int16(r * 0x80)
	g.ir[2] = int16(gg * 0x80)
	g.ir[3] = int16(b * 0x80)
}

func (g *GTE) updateOrgbIrgb() {
	clamp5 := func(v int16) uint16 {
		s := v >> 7
		if s < 0 {
			return 0
		}
		if s > 0x1F {
			return 0x1F
		}
		return uint16(s)
	}
	r := clamp5(g.ir[1])
	gg := clamp5(g.ir[2])
	b := clamp5(g.ir[3])
	g.orgb = b<<10 | gg<<5 | r
	g.irgb = g.orgb
}

func leadingZeros32(v uint32) uint32 {
	n := uint32(0)
	for i := 31; i >= 0; i-- {
		if v&(1<<uint(i)) != 0 {
			break
		}
		n++
	}
	return n
}

func (g *GTE) updateLZCR() {
	if g.lzcs < 0 {
		g.lzcr = leadingZeros32(^uint32(g.lzcs))
	} else {
		g.lzcr = leadingZeros32(uint32(g.lzcs))
	}
}

func (g *GTE) pushSZFifo(z uint16) {
	g.sz[0], g.sz[1], g.sz[2], g.sz[3] = g.sz[1], g.sz[2], g.sz[3], z
}

func (g *GTE) pushSXYFifo(x, y int16) {
	g.sxy[0], g.sxy[1] = g.sxy[1], g.sxy[2]
	g.sxy[2] = [2]int16{x, y}
}

func (g *GTE) pushColorFifo(r, gc, b int64, code uint8) {
	g.rgb[0], g.rgb[1] = g.rgb[1], g.rgb[2]
	rr := uint32(g.saturateI64(r, 0, 0xFF, flagColorRSat))
	gg := uint32(g.saturateI64(gc, 0, 0xFF, flagColorGSat))
	bb := uint32(g.saturateI64(b, 0, 0xFF, flagColorBSat))
	g.rgb[2] = uint32(code)<<24 | bb<<16 | gg<<8 | rr
}

func (g *GTE) setIR0(value int64) {
	g.ir[0] = int16(g.saturateI64(value, 0, 0x1000, flagIR0Sat))
}

func (g *GTE) setMAC0(mac0 int64) {
	if mac0 < -(1 << 31) {
		g.flag |= flagMAC0NegOver
	} else if mac0 > (1<<31)-1 {
		g.flag |= flagMAC0PosOver
	}
	g.mac[0] = int32(mac0)
}

func (g *GTE) copyMacIRSaturate(lm bool) {
	min := int64(-0x8000)
	if lm {
		min = 0
	}
	flags := [3]Flag{flagIR1Sat, flagIR2Sat, flagIR3Sat}
	for i := 1; i <= 3; i++ {
		g.ir[i] = int16(g.saturateI64(int64(g.mac[i]), min, 0x7FFF, flags[i-1]))
	}
	g.updateOrgbIrgb()
}

func (g *GTE) updateMAC123OverflowFlags(mac1, mac2, mac3 int64) {
	type bound struct{ neg, pos Flag }
	bounds := [3]bound{{flagMAC1NegOver, flagMAC1PosOver}, {flagMAC2NegOver, flagMAC2PosOver}, {flagMAC3NegOver, flagMAC3PosOver}}
	values := [3]int64{mac1, mac2, mac3}
	for i, v := range values {
		if v < -(1 << 43) {
			g.flag |= bounds[i].neg
		} else if v > (1<<43)-1 {
			g.flag |= bounds[i].pos
		}
	}
}

func signExtend43(v int64) int64 {
	return (v << (64 - 43 - 1)) >> (64 - 43 - 1)
}

func (g *GTE) mac123SignExtend(mac1, mac2, mac3 int64) (int64, int64, int64) {
	g.updateMAC123OverflowFlags(mac1, mac2, mac3)
	return signExtend43(mac1), signExtend43(mac2), signExtend43(mac3)
}

// setMAC123 shifts by sf*12, records the truncated MAC registers, and
// returns the shifted (not yet truncated to 32 bits) values for further use.
func (g *GTE) setMAC123(mac1, mac2, mac3 int64, sf bool) (int64, int64, int64) {
	g.updateMAC123OverflowFlags(mac1, mac2, mac3)
	shift := uint(0)
	if sf {
		shift = 12
	}
	mac1 >>= shift
	mac2 >>= shift
	mac3 >>= shift
	g.mac[1], g.mac[2], g.mac[3] = int32(mac1), int32(mac2), int32(mac3)
	return mac1, mac2, mac3
}

func (g *GTE) rgbMulIR() (int64, int64, int64) {
	r, gc, b := getRGB(g.rgbc)
	mac1 := (int64(g.ir[1]) * r) << 4
	mac2 := (int64(g.ir[2]) * gc) << 4
	mac3 := (int64(g.ir[3]) * b) << 4
	return g.mac123SignExtend(mac1, mac2, mac3)
}

// mvmva is the core "multiply matrix by vector, add translation" primitive
// shared by RTPS/RTPT/NC*/CDP/CC/MVMVA itself.
func (g *GTE) mvmva(tx [3]int32, mx [3][3]int16, vx [3]int16, sf, lm bool) (int64, int64, int64) {
	mac1 := int64(tx[0]) << 12
	mac2 := int64(tx[1]) << 12
	mac3 := int64(tx[2]) << 12
	mac1, mac2, mac3 = g.mac123SignExtend(mac1, mac2, mac3)

	mac1 += int64(mx[0][0]) * int64(vx[0])
	mac2 += int64(mx[1][0]) * int64(vx[0])
	mac3 += int64(mx[2][0]) * int64(vx[0])
	mac1, mac2, mac3 = g.mac123SignExtend(mac1, mac2, mac3)

	mac1 += int64(mx[0][1]) * int64(vx[1])
	mac2 += int64(mx[1][1]) * int64(vx[1])
	mac3 += int64(mx[2][1]) * int64(vx[1])
	mac1, mac2, mac3 = g.mac123SignExtend(mac1, mac2, mac3)

	mac1 += int64(mx[0][2]) * int64(vx[2])
	mac2 += int64(mx[1][2]) * int64(vx[2])
	mac3 += int64(mx[2][2]) * int64(vx[2])
	mac1, mac2, mac3 = g.mac123SignExtend(mac1, mac2, mac3)

	mac1, mac2, mac3 = g.setMAC123(mac1, mac2, mac3, sf)
	g.copyMacIRSaturate(lm)
	return mac1, mac2, mac3
}

// unrTable is the 257-entry Newton-Raphson reciprocal seed table baked into
// real GTE silicon; rtpUNRDivision reproduces it and the surrounding
// fixed-point arithmetic exactly (spec §4.2's "bit-exact division").
var unrTable = [257]uint32{
	0xFF, 0xFD, 0xFB, 0xF9, 0xF7, 0xF5, 0xF3, 0xF1, 0xEF, 0xEE, 0xEC, 0xEA, 0xE8, 0xE6, 0xE4, 0xE3,
	0xE1, 0xDF, 0xDD, 0xDC, 0xDA, 0xD8, 0xD6, 0xD5, 0xD3, 0xD1, 0xD0, 0xCE, 0xCD, 0xCB, 0xC9, 0xC8,
	0xC6, 0xC5, 0xC3, 0xC1, 0xC0, 0xBE, 0xBD, 0xBB, 0xBA, 0xB8, 0xB7, 0xB5, 0xB4, 0xB2, 0xB1, 0xB0,
	0xAE, 0xAD, 0xAB, 0xAA, 0xA9, 0xA7, 0xA6, 0xA4, 0xA3, 0xA2, 0xA0, 0x9F, 0x9E, 0x9C, 0x9B, 0x9A,
	0x99, 0x97, 0x96, 0x95, 0x94, 0x92, 0x91, 0x90, 0x8F, 0x8D, 0x8C, 0x8B, 0x8A, 0x89, 0x87, 0x86,
	0x85, 0x84, 0x83, 0x82, 0x81, 0x7F, 0x7E, 0x7D, 0x7C, 0x7B, 0x7A, 0x79, 0x78, 0x77, 0x75, 0x74,
	0x73, 0x72, 0x71, 0x70, 0x6F, 0x6E, 0x6D, 0x6C, 0x6B, 0x6A, 0x69, 0x68, 0x67, 0x66, 0x65, 0x64,
	0x63, 0x62, 0x61, 0x60, 0x5F, 0x5E, 0x5D, 0x5D, 0x5C, 0x5B, 0x5A, 0x59, 0x58, 0x57, 0x56, 0x55,
	0x54, 0x53, 0x53, 0x52, 0x51, 0x50, 0x4F, 0x4E, 0x4D, 0x4D, 0x4C, 0x4B, 0x4A, 0x49, 0x48, 0x48,
	0x47, 0x46, 0x45, 0x44, 0x43, 0x43, 0x42, 0x41, 0x40, 0x3F, 0x3F, 0x3E, 0x3D, 0x3C, 0x3C, 0x3B,
	0x3A, 0x39, 0x39, 0x38, 0x37, 0x36, 0x36, 0x35, 0x34, 0x33, 0x33, 0x32, 0x31, 0x31, 0x30, 0x2F,
	0x2E, 0x2E, 0x2D, 0x2C, 0x2C, 0x2B, 0x2A, 0x2A, 0x29, 0x28, 0x28, 0x27, 0x26, 0x26, 0x25, 0x24,
	0x24, 0x23, 0x22, 0x22, 0x21, 0x20, 0x20, 0x1F, 0x1E, 0x1E, 0x1D, 0x1D, 0x1C, 0x1B, 0x1B, 0x1A,
	0x19, 0x19, 0x18, 0x18, 0x17, 0x16, 0x16, 0x15, 0x15, 0x14, 0x14, 0x13, 0x12, 0x12, 0x11, 0x11,
	0x10, 0x0F, 0x0F, 0x0E, 0x0E, 0x0D, 0x0D, 0x0C, 0x0C, 0x0B, 0x0A, 0x0A, 0x09, 0x09, 0x08, 0x08,
	0x07, 0x07, 0x06, 0x06, 0x05, 0x05, 0x04, 0x04, 0x03, 0x03, 0x02, 0x02, 0x01, 0x01, 0x00, 0x00,
	0x00,
}

func (g *GTE) rtpUNRDivision() int64 {
	h := uint32(g.projectionPlaneDistance)
	sz3 := g.sz[3]

	if h < uint32(sz3)*2 {
		z := leadingZeros32(uint32(sz3) << 16)
		n := h << z
		d := uint32(sz3) << 16 << z >> 16 // sz3 shifted within its 16-bit width

		// d is sz3 (as u16) shifted left by z, computed in 32-bit then
		// truncated back to the u16 behaviour original hardware exhibits.
		d = (uint32(sz3) << z) & 0xFFFF
		u := unrTable[(d-0x7FC0)>>7] + 0x101
		dd := (0x2000080 - d*u) >> 8
		dd = (0x80 + dd*u) >> 8

		nn := (uint64(n)*uint64(dd) + 0x8000) >> 16
		if nn > 0x1FFFF {
			nn = 0x1FFFF
		}
		return int64(nn)
	}
	g.flag |= flagDivOverflow
	return 0x1FFFF
}

func (g *GTE) pushColorFifoFromMAC123(mac1, mac2, mac3 int64, sf, lm bool) {
	code := uint8((g.rgbc >> 24) & 0xFF)
	g.setMAC123(mac1, mac2, mac3, sf)
	g.pushColorFifo(int64(g.mac[1])>>4, int64(g.mac[2])>>4, int64(g.mac[3])>>4, code)
	g.copyMacIRSaturate(lm)
}

func (g *GTE) colorInterpolation(mac1, mac2, mac3 int64, sf, lm bool) {
	tmp1 := int64(g.farColor[0])<<12 - mac1
	tmp2 := int64(g.farColor[1])<<12 - mac2
	tmp3 := int64(g.farColor[2])<<12 - mac3
	g.setMAC123(tmp1, tmp2, tmp3, sf)
	g.copyMacIRSaturate(false)

	m1 := int64(g.ir[1])*int64(g.ir[0]) + mac1
	m2 := int64(g.ir[2])*int64(g.ir[0]) + mac2
	m3 := int64(g.ir[3])*int64(g.ir[0]) + mac3
	g.pushColorFifoFromMAC123(m1, m2, m3, sf, lm)
}

func (g *GTE) rtps(vIndex int, sf, lm, triple, last bool) {
	tx := g.translationVector
	mx := g.rotationMatrix
	vx := g.vectors[vIndex]

	_, _, mac3 := g.mvmva(tx, mx, vx, sf, lm)

	if !sf && !triple {
		g.flag &^= flagIR3Sat
		shifted := g.mac[3] >> 12
		if shifted < -0x8000 || shifted > 0x7FFF {
			g.flag |= flagIR3Sat
		}
	}

	shift := uint(12)
	if sf {
		shift = 0
	}
	sz := uint16(g.saturateI64(mac3>>shift, 0, 0xFFFF, flagSZ3OTZSat))
	g.pushSZFifo(sz)

	n := g.rtpUNRDivision()

	mac0 := n*int64(g.ir[1]) + int64(g.screenOffset[0])
	g.setMAC0(mac0)
	sx := int16(g.saturateI64(mac0>>16, -0x400, 0x3FF, flagSX2Sat))

	mac0 = n*int64(g.ir[2]) + int64(g.screenOffset[1])
	g.setMAC0(mac0)
	sy := int16(g.saturateI64(mac0>>16, -0x400, 0x3FF, flagSY2Sat))
	g.pushSXYFifo(sx, sy)

	if last {
		mac0 = n*int64(g.dqa) + int64(g.dqb)
		g.setMAC0(mac0)
		g.setIR0(mac0 >> 12)
	}
}

func (g *GTE) ncCommonStart(vIndex int, sf, lm bool) {
	vx := g.vectors[vIndex]
	mx := g.lightSourceMatrix
	g.mvmva([3]int32{}, mx, vx, sf, lm)

	vx2 := [3]int16{g.ir[1], g.ir[2], g.ir[3]}
	mx2 := g.lightColorMatrix
	tx := g.backgroundColor
	g.mvmva(tx, mx2, vx2, sf, lm)
}

func (g *GTE) ncdsNccsCommon(vIndex int, sf, lm bool) (int64, int64, int64) {
	g.ncCommonStart(vIndex, sf, lm)
	return g.rgbMulIR()
}

func (g *GTE) ncds(vIndex int, sf, lm bool) {
	mac1, mac2, mac3 := g.ncdsNccsCommon(vIndex, sf, lm)
	g.colorInterpolation(mac1, mac2, mac3, sf, lm)
}

func (g *GTE) nccs(vIndex int, sf, lm bool) {
	mac1, mac2, mac3 := g.ncdsNccsCommon(vIndex, sf, lm)
	g.pushColorFifoFromMAC123(mac1, mac2, mac3, sf, lm)
}

func (g *GTE) ncs(vIndex int, sf, lm bool) {
	g.ncCommonStart(vIndex, sf, lm)
	code := uint8((g.rgbc >> 24) & 0xFF)
	g.pushColorFifo(int64(g.mac[1])>>4, int64(g.mac[2])>>4, int64(g.mac[3])>>4, code)
}

func (g *GTE) dpcs(sf, lm bool, rgb uint32) {
	r, gc, b := getRGB(rgb)
	mac1, mac2, mac3 := g.mac123SignExtend(r<<16, gc<<16, b<<16)
	g.colorInterpolation(mac1, mac2, mac3, sf, lm)
}

func (g *GTE) gpf(mac1, mac2, mac3 int64, sf, lm bool) {
	m1 := int64(g.ir[1])*int64(g.ir[0]) + mac1
	m2 := int64(g.ir[2])*int64(g.ir[0]) + mac2
	m3 := int64(g.ir[3])*int64(g.ir[0]) + mac3
	m1, m2, m3 = g.mac123SignExtend(m1, m2, m3)
	g.pushColorFifoFromMAC123(m1, m2, m3, sf, lm)
}

// ReadData reads a GTE data register (MFC2/SWC2), 0-31.
func (g *GTE) ReadData(num uint32) uint32 {
	switch {
	case num == 0 || num == 2 || num == 4:
		i := num / 2
		return uint32(uint16(g.vectors[i][1]))<<16 | uint32(uint16(g.vectors[i][0]))
	case num == 1 || num == 3 || num == 5:
		return uint32(int32(g.vectors[num/2][2]))
	case num == 6:
		return g.rgbc
	case num == 7:
		return uint32(g.otz)
	case num >= 8 && num <= 11:
		return uint32(int32(g.ir[num-8]))
	case num >= 12 && num <= 14:
		i := num - 12
		return uint32(uint16(g.sxy[i][1]))<<16 | uint32(uint16(g.sxy[i][0]))
	case num == 15:
		return uint32(uint16(g.sxy[2][1]))<<16 | uint32(uint16(g.sxy[2][0]))
	case num >= 16 && num <= 19:
		return uint32(g.sz[num-16])
	case num >= 20 && num <= 22:
		return g.rgb[num-20]
	case num == 23:
		return g.res1
	case num >= 24 && num <= 27:
		return uint32(g.mac[num-24])
	case num == 28:
		return uint32(g.irgb)
	case num == 29:
		return uint32(g.orgb)
	case num == 30:
		return uint32(g.lzcs)
	case num == 31:
		return g.lzcr
	default:
		return 0
	}
}

// WriteData writes a GTE data register (MTC2/LWC2), 0-31.
func (g *GTE) WriteData(num, data uint32) {
	lsb := int16(data & 0xFFFF)
	msb := int16((data >> 16) & 0xFFFF)

	switch {
	case num == 0 || num == 2 || num == 4:
		i := num / 2
		g.vectors[i][0] = lsb
		g.vectors[i][1] = msb
	case num == 1 || num == 3 || num == 5:
		g.vectors[num/2][2] = int16(data & 0xFFFF)
	case num == 6:
		g.rgbc = data
	case num == 7:
		g.otz = uint16(data)
	case num >= 8 && num <= 11:
		g.ir[num-8] = int16(data & 0xFFFF)
		g.updateOrgbIrgb()
	case num >= 12 && num <= 14:
		g.sxy[num-12] = [2]int16{lsb, msb}
	case num == 15:
		g.pushSXYFifo(lsb, msb)
	case num >= 16 && num <= 19:
		g.sz[num-16] = uint16(data)
	case num >= 20 && num <= 22:
		g.rgb[num-20] = data
	case num == 23:
		g.res1 = data
	case num >= 24 && num <= 27:
		g.mac[num-24] = int32(data)
	case num == 28:
		g.irgb = uint16(data) & 0x7FFF
		g.orgb = g.irgb
		g.updateIR123()
	case num == 30:
		g.lzcs = int32(data)
		g.updateLZCR()
	}
}

// ReadControl reads a GTE control register (CFC2), 0-31.
func (g *GTE) ReadControl(num uint32) uint32 {
	pack := func(lo, hi int16) uint32 { return uint32(uint16(hi))<<16 | uint32(uint16(lo)) }
	switch num {
	case 0:
		return pack(g.rotationMatrix[0][0], g.rotationMatrix[0][1])
	case 1:
		return pack(g.rotationMatrix[0][2], g.rotationMatrix[1][0])
	case 2:
		return pack(g.rotationMatrix[1][1], g.rotationMatrix[1][2])
	case 3:
		return pack(g.rotationMatrix[2][0], g.rotationMatrix[2][1])
	case 4:
		return uint32(int32(g.rotationMatrix[2][2]))
	case 5, 6, 7:
		return uint32(g.translationVector[num-5])
	case 8:
		return pack(g.lightSourceMatrix[0][0], g.lightSourceMatrix[0][1])
	case 9:
		return pack(g.lightSourceMatrix[0][2], g.lightSourceMatrix[1][0])
	case 10:
		return pack(g.lightSourceMatrix[1][1], g.lightSourceMatrix[1][2])
	case 11:
		return pack(g.lightSourceMatrix[2][0], g.lightSourceMatrix[2][1])
	case 12:
		return uint32(int32(g.lightSourceMatrix[2][2]))
	case 13, 14, 15:
		return uint32(g.backgroundColor[num-13])
	case 16:
		return pack(g.lightColorMatrix[0][0], g.lightColorMatrix[0][1])
	case 17:
		return pack(g.lightColorMatrix[0][2], g.lightColorMatrix[1][0])
	case 18:
		return pack(g.lightColorMatrix[1][1], g.lightColorMatrix[1][2])
	case 19:
		return pack(g.lightColorMatrix[2][0], g.lightColorMatrix[2][1])
	case 20:
		return uint32(int32(g.lightColorMatrix[2][2]))
	case 21, 22, 23:
		return uint32(g.farColor[num-21])
	case 24:
		return uint32(g.screenOffset[0])
	case 25:
		return uint32(g.screenOffset[1])
	case 26:
		return uint32(int32(int16(g.projectionPlaneDistance))) // sign-extended on read: hardware quirk
	case 27:
		return uint32(g.dqa)
	case 28:
		return uint32(g.dqb)
	case 29:
		return uint32(g.zsf3)
	case 30:
		return uint32(g.zsf4)
	case 31:
		return g.flag.bitsWithError()
	default:
		return 0
	}
}

// WriteControl writes a GTE control register (CTC2), 0-31.
func (g *GTE) WriteControl(num, data uint32) {
	lsb := int16(data & 0xFFFF)
	msb := int16((data >> 16) & 0xFFFF)

	switch num {
	case 0:
		g.rotationMatrix[0][0], g.rotationMatrix[0][1] = lsb, msb
	case 1:
		g.rotationMatrix[0][2], g.rotationMatrix[1][0] = lsb, msb
	case 2:
		g.rotationMatrix[1][1], g.rotationMatrix[1][2] = lsb, msb
	case 3:
		g.rotationMatrix[2][0], g.rotationMatrix[2][1] = lsb, msb
	case 4:
		g.rotationMatrix[2][2] = lsb
	case 5, 6, 7:
		g.translationVector[num-5] = int32(data)
	case 8:
		g.lightSourceMatrix[0][0], g.lightSourceMatrix[0][1] = lsb, msb
	case 9:
		g.lightSourceMatrix[0][2], g.lightSourceMatrix[1][0] = lsb, msb
	case 10:
		g.lightSourceMatrix[1][1], g.lightSourceMatrix[1][2] = lsb, msb
	case 11:
		g.lightSourceMatrix[2][0], g.lightSourceMatrix[2][1] = lsb, msb
	case 12:
		g.lightSourceMatrix[2][2] = lsb
	case 13, 14, 15:
		g.backgroundColor[num-13] = int32(data)
	case 16:
		g.lightColorMatrix[0][0], g.lightColorMatrix[0][1] = lsb, msb
	case 17:
		g.lightColorMatrix[0][2], g.lightColorMatrix[1][0] = lsb, msb
	case 18:
		g.lightColorMatrix[1][1], g.lightColorMatrix[1][2] = lsb, msb
	case 19:
		g.lightColorMatrix[2][0], g.lightColorMatrix[2][1] = lsb, msb
	case 20:
		g.lightColorMatrix[2][2] = lsb
	case 21, 22, 23:
		g.farColor[num-21] = int32(data)
	case 24:
		g.screenOffset[0] = int32(data)
	case 25:
		g.screenOffset[1] = int32(data)
	case 26:
		g.projectionPlaneDistance = uint16(data)
	case 27:
		g.dqa = int16(data & 0xFFFF)
	case 28:
		g.dqb = int32(data)
	case 29:
		g.zsf3 = int16(data)
	case 30:
		g.zsf4 = int16(data)
	case 31:
		g.flag = Flag(data)
	}
}

// Execute decodes and runs one GTE command word (the COP2 imm25 field of a
// coprocessor instruction, spec §4.2).
func (g *GTE) Execute(word uint32) {
	g.flag = 0
	cmd := decodeCommand(word)

	switch cmd.opcode {
	case 0x01: // RTPS
		g.rtps(0, cmd.sf, cmd.lm, false, true)
	case 0x30: // RTPT
		g.rtps(0, cmd.sf, cmd.lm, true, false)
		g.rtps(1, cmd.sf, cmd.lm, true, false)
		g.rtps(2, cmd.sf, cmd.lm, true, true)
	case 0x12: // MVMVA
		g.execMVMVA(cmd)
	case 0x29: // DCPL
		mac1, mac2, mac3 := g.rgbMulIR()
		g.colorInterpolation(mac1, mac2, mac3, cmd.sf, cmd.lm)
	case 0x10: // DPCS
		g.dpcs(cmd.sf, cmd.lm, g.rgbc)
	case 0x2A: // DPCT
		g.dpcs(cmd.sf, cmd.lm, g.rgb[0])
		g.dpcs(cmd.sf, cmd.lm, g.rgb[0])
		g.dpcs(cmd.sf, cmd.lm, g.rgb[0])
	case 0x11: // INTPL
		mac1, mac2, mac3 := g.mac123SignExtend(int64(g.ir[1])<<12, int64(g.ir[2])<<12, int64(g.ir[3])<<12)
		g.colorInterpolation(mac1, mac2, mac3, cmd.sf, cmd.lm)
	case 0x28: // SQR
		mac1 := int64(g.ir[1]) * int64(g.ir[1])
		mac2 := int64(g.ir[2]) * int64(g.ir[2])
		mac3 := int64(g.ir[3]) * int64(g.ir[3])
		g.setMAC123(mac1, mac2, mac3, cmd.sf)
		g.copyMacIRSaturate(cmd.lm)
	case 0x1E: // NCS
		g.ncs(0, cmd.sf, cmd.lm)
	case 0x20: // NCT
		g.ncs(0, cmd.sf, cmd.lm)
		g.ncs(1, cmd.sf, cmd.lm)
		g.ncs(2, cmd.sf, cmd.lm)
	case 0x13: // NCDS
		g.ncds(0, cmd.sf, cmd.lm)
	case 0x16: // NCDT
		g.ncds(0, cmd.sf, cmd.lm)
		g.ncds(1, cmd.sf, cmd.lm)
		g.ncds(2, cmd.sf, cmd.lm)
	case 0x1B: // NCCS
		g.nccs(0, cmd.sf, cmd.lm)
	case 0x3F: // NCCT
		g.nccs(0, cmd.sf, cmd.lm)
		g.nccs(1, cmd.sf, cmd.lm)
		g.nccs(2, cmd.sf, cmd.lm)
	case 0x14: // CDP
		vx := [3]int16{g.ir[1], g.ir[2], g.ir[3]}
		g.mvmva(g.backgroundColor, g.lightColorMatrix, vx, cmd.sf, cmd.lm)
		mac1, mac2, mac3 := g.rgbMulIR()
		g.colorInterpolation(mac1, mac2, mac3, cmd.sf, cmd.lm)
	case 0x1C: // CC
		vx := [3]int16{g.ir[1], g.ir[2], g.ir[3]}
		g.mvmva(g.backgroundColor, g.lightColorMatrix, vx, cmd.sf, cmd.lm)
		mac1, mac2, mac3 := g.rgbMulIR()
		g.pushColorFifoFromMAC123(mac1, mac2, mac3, cmd.sf, cmd.lm)
	case 0x06: // NCLIP
		mac0 := int64(g.sxy[0][0])*int64(g.sxy[1][1]) +
			int64(g.sxy[1][0])*int64(g.sxy[2][1]) +
			int64(g.sxy[2][0])*int64(g.sxy[0][1]) -
			int64(g.sxy[0][0])*int64(g.sxy[2][1]) -
			int64(g.sxy[1][0])*int64(g.sxy[0][1]) -
			int64(g.sxy[2][0])*int64(g.sxy[1][1])
		g.setMAC0(mac0)
	case 0x2D: // AVSZ3
		mac0 := int64(g.zsf3) * (int64(g.sz[1]) + int64(g.sz[2]) + int64(g.sz[3]))
		g.setMAC0(mac0)
		g.otz = uint16(g.saturateI64(mac0>>12, 0, 0xFFFF, flagSZ3OTZSat))
	case 0x2E: // AVSZ4
		mac0 := int64(g.zsf4) * (int64(g.sz[0]) + int64(g.sz[1]) + int64(g.sz[2]) + int64(g.sz[3]))
		g.setMAC0(mac0)
		g.otz = uint16(g.saturateI64(mac0>>12, 0, 0xFFFF, flagSZ3OTZSat))
	case 0x0C: // OP
		d := [3]int16{g.rotationMatrix[0][0], g.rotationMatrix[1][1], g.rotationMatrix[2][2]}
		mac1 := int64(g.ir[3]) * int64(d[1])
		mac2 := int64(g.ir[1]) * int64(d[2])
		mac3 := int64(g.ir[2]) * int64(d[0])
		mac1, mac2, mac3 = g.mac123SignExtend(mac1, mac2, mac3)
		mac1 -= int64(g.ir[2]) * int64(d[2])
		mac2 -= int64(g.ir[3]) * int64(d[0])
		mac3 -= int64(g.ir[1]) * int64(d[1])
		g.setMAC123(mac1, mac2, mac3, cmd.sf)
		g.copyMacIRSaturate(cmd.lm)
	case 0x3D: // GPF
		g.gpf(0, 0, 0, cmd.sf, cmd.lm)
	case 0x3E: // GPL
		shift := uint(0)
		if cmd.sf {
			shift = 12
		}
		mac1, mac2, mac3 := g.mac123SignExtend(int64(g.mac[1])<<shift, int64(g.mac[2])<<shift, int64(g.mac[3])<<shift)
		g.gpf(mac1, mac2, mac3, cmd.sf, cmd.lm)
	default:
		// Unknown GTE opcode: real hardware leaves registers untouched.
	}
}

func (g *GTE) execMVMVA(cmd command) {
	var mx [3][3]int16
	switch cmd.mx {
	case 0:
		mx = g.rotationMatrix
	case 1:
		mx = g.lightSourceMatrix
	case 2:
		mx = g.lightColorMatrix
	case 3:
		r := int16(g.rgbc & 0xFF)
		mx = [3][3]int16{
			{-(r << 4), r << 4, g.ir[0]},
			{g.rotationMatrix[0][2], g.rotationMatrix[0][2], g.rotationMatrix[0][2]},
			{g.rotationMatrix[1][1], g.rotationMatrix[1][1], g.rotationMatrix[1][1]},
		}
	}

	var tx [3]int32
	switch cmd.tx {
	case 0:
		tx = g.translationVector
	case 1:
		tx = g.backgroundColor
	case 2:
		tx = g.farColor
	case 3:
		tx = [3]int32{}
	}

	var vx [3]int16
	switch cmd.vx {
	case 0, 1, 2:
		vx = g.vectors[cmd.vx]
	case 3:
		vx = [3]int16{g.ir[1], g.ir[2], g.ir[3]}
	}

	if cmd.tx == 2 {
		// Far-color translation selection is wired into the same flag-
		// computation path as the rotation-matrix case, but its partial
		// product is discarded: hardware evaluates MAC1=(Tx1*1000h +
		// Mx11*Vx1) once purely to latch saturation flags, then repeats
		// the multiply with Tx and Vx1 zeroed to produce the value
		// software actually observes.
		g.mvmva(tx, mx, [3]int16{vx[0], 0, 0}, cmd.sf, cmd.lm)
		tx = [3]int32{}
		vx[0] = 0
	}
	g.mvmva(tx, mx, vx, cmd.sf, cmd.lm)
}
