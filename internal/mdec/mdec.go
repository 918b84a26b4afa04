// Package mdec implements the macroblock decoder: run-length/zigzag
// token decode, two-pass fixed-point IDCT, YCbCr-to-RGB conversion, and
// depth-tagged output packing (4/8/15/24-bit), grounded on
// original_source/psx-core/src/mdec.rs.
package mdec

import "psxemu/internal/debug"

var zigzag = [64]int{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18, 11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20,
	13, 6, 7, 14, 21, 28, 35, 42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59,
	52, 45, 38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

var defaultIQ = [64]uint8{
	2, 16, 16, 19, 16, 19, 22, 22, 22, 22, 22, 22, 26, 24, 26, 27, 27, 27, 26, 26, 26, 26, 27, 27,
	27, 29, 29, 29, 34, 34, 34, 29, 29, 29, 27, 27, 29, 29, 32, 32, 34, 34, 37, 38, 37, 35, 35, 34,
	35, 38, 38, 40, 40, 40, 48, 48, 46, 46, 56, 56, 58, 69, 69, 83,
}

var defaultScaleTable = [64]uint16{
	23170, 23170, 23170, 23170, 23170, 23170, 23170, 23170, 32138, 27245, 18204, 6392, 59143,
	47331, 38290, 33397, 30273, 12539, 52996, 35262, 35262, 52996, 12539, 30273, 27245, 59143,
	33397, 47331, 18204, 32138, 6392, 38290, 23170, 42365, 42365, 23170, 23170, 42365, 42365,
	23170, 18204, 33397, 6392, 27245, 38290, 59143, 32138, 47331, 12539, 35262, 30273, 52996,
	52996, 30273, 35262, 12539, 6392, 47331, 27245, 33397, 32138, 38290, 18204, 59143,
}

func extendSign(x uint16, n uint) int32 {
	mask := uint32(1)<<n - 1
	xv := uint32(x) & mask
	signExtend := (0xFFFFFFFF - mask) * ((xv >> (n - 1)) & 1)
	return int32(xv | signExtend)
}

// status register bits.
const (
	statDataOutFifoEmpty = 1 << 31
	statDataInFifoFull   = 1 << 30
	statCommandBusy      = 1 << 29
	statDataInRequest    = 1 << 28
	statDataOutRequest   = 1 << 27
	statDataOutputDepth  = 0b11 << 25
	statDataSigned       = 1 << 24
	statDataOutputBit15  = 1 << 23
	statCurrentBlock     = 0b111 << 16
)

func outputDepth(status uint32) uint8 { return uint8((status & statDataOutputDepth) >> 25) }

func setCurrentBlock(status uint32, b BlockType) uint32 {
	status &^= statCurrentBlock
	return status | ((uint32(b) << 16) & statCurrentBlock)
}

// BlockType tags which 8x8 block a decoded/queued result belongs to.
type BlockType int

const (
	BlockY1 BlockType = iota
	BlockY2
	BlockY3
	BlockY4
	BlockYCr // Y in mono mode, Cr input in color mode
	BlockCb
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdDecodeMacroBlock
	cmdSetQuantTable
	cmdSetScaleTable
)

type macroBlockState struct {
	rlOut              [64]int16
	qScale             uint16
	k                  int
	first              bool
	crBlk, cbBlk       [64]int16
	colorDecodingState uint32
}

func newMacroBlockState() macroBlockState { return macroBlockState{first: true} }

func (s *macroBlockState) resetAfterBlock() {
	s.rlOut = [64]int16{}
	s.k = 0
	s.qScale = 0
	s.first = true
}

// FifoBlockState describes the head of the output fifo for DMA channel
// 1's re-interleave logic (spec §4.5).
type FifoBlockState struct {
	BlockType BlockType
	Index     int
	Is24Bit   bool
}

type fifoBlock struct {
	data  [48]uint32
	size  int
	state FifoBlockState
}

// MDEC is the macroblock decoder.
type MDEC struct {
	status          uint32
	remainingParams uint16
	currentCmd      commandKind
	decodeState     macroBlockState
	colorAndLum     bool
	paramsPtr       int

	outFifo []fifoBlock

	iqY, iqUV  [64]uint8
	scaleTable [64]uint16

	logger *debug.Logger
}

func New(logger *debug.Logger) *MDEC {
	m := &MDEC{logger: logger}
	m.Reset()
	return m
}

func (m *MDEC) Reset() {
	logger := m.logger
	*m = MDEC{logger: logger}
	m.iqY = defaultIQ
	m.iqUV = defaultIQ
	m.scaleTable = defaultScaleTable
}

func yToMono(src *[64]int16, signed bool) [64]uint32 {
	var out [64]uint32
	for i := 0; i < 64; i++ {
		y := extendSign(uint16(src[i]), 10)
		y = clampI32(y, -128, 127)
		if !signed {
			y += 128
		}
		out[i] = uint32(y) & 0xFF
	}
	return out
}

func clampI32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func yuvToRGB(crBlk, cbBlk, yBlk *[64]int16, xx, yy int, signed bool) [64]uint32 {
	var out [64]uint32
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			r := crBlk[((x+xx)/2)+(((y+yy)/2)*8)]
			b := cbBlk[((x+xx)/2)+(((y+yy)/2)*8)]
			g := int16(float32(r)*-0.3437 + float32(b)*-0.3437)

			r16 := int16(float32(r) * 1.402)
			b16 := int16(float32(b) * 1.772)

			yData := yBlk[x+y*8]

			rr := clampI16(yData+r16, -128, 127)
			gg := clampI16(yData+g, -128, 127)
			bb := clampI16(yData+b16, -128, 127)

			if !signed {
				rr += 128
				gg += 128
				bb += 128
			}

			out[x+(y*8)] = uint32(uint8(rr)) | (uint32(uint8(gg)) << 8) | (uint32(uint8(bb)) << 16)
		}
	}
	return out
}

func clampI16(v, lo, hi int16) int16 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// realIDCTCore applies the two-pass fixed-point IDCT used to turn
// dequantized run-length coefficients into spatial-domain samples.
func realIDCTCore(inp *[64]int16, scaletable *[64]uint16) [64]int16 {
	var tmp [64]int64
	var out [64]int16

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var sum int64
			for z := 0; z < 8; z++ {
				sum += int64(inp[x+z*8]) * int64(int16(scaletable[y+z*8]))
			}
			tmp[x+y*8] = sum
		}
	}

	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			var sum int64
			for z := 0; z < 8; z++ {
				sum += tmp[y*8+z] * int64(int16(scaletable[x+z*8]))
			}
			t := extendSign(uint16((sum>>32)+((sum>>31)&1)), 9)
			t = clampI32(t, -128, 127)
			out[x+y*8] = int16(t)
		}
	}
	return out
}

// rlDecodeBlockInput incrementally decodes one run-length/zigzag token
// pair as it streams in over GP0-style 32-bit words; returns true when
// the current 8x8 block is complete.
func rlDecodeBlockInput(newInput uint16, qt *[64]uint8, state *macroBlockState) bool {
	if newInput == 0xFE00 {
		return !state.first
	}

	bottom10 := newInput & 0x3FF
	top6 := (newInput >> 10) & 0x3F

	if state.first {
		if newInput == 0 {
			return false
		}
		state.first = false

		if bottom10 != 0 {
			m := int32(qt[0])
			if state.qScale == 0 {
				m = 2
			}
			val := extendSign(bottom10, 10) * m
			state.rlOut[0] = int16(clampI32(val, -0x400, 0x3FF))
		}
		state.qScale = top6
		state.k = 0
		return false
	}

	state.k += int(top6) + 1
	if state.k >= 63 {
		return true
	}
	revZigZagPos := state.k
	if state.qScale != 0 {
		revZigZagPos = zigzag[state.k]
	}

	if bottom10 != 0 {
		var val int32
		if state.qScale == 0 {
			val = extendSign(bottom10, 10) * 2
		} else {
			val = (extendSign(bottom10, 10)*int32(qt[state.k])*int32(state.qScale) + 4) >> 3
		}
		state.rlOut[revZigZagPos] = int16(clampI32(val, -0x400, 0x3FF))
	}
	return false
}

var blocksData = [4]struct {
	cur, next BlockType
	x, y      int
}{
	{BlockY1, BlockY2, 0, 0},
	{BlockY2, BlockY3, 8, 0},
	{BlockY3, BlockY4, 0, 8},
	{BlockY4, BlockYCr, 8, 8},
}

// handleCurrentCmd feeds one 32-bit data word (two 16-bit tokens) into
// whichever command is in progress, mirrors handle_current_cmd.
func (m *MDEC) handleCurrentCmd(input uint32) {
	if m.currentCmd == cmdNone {
		return
	}

	type blockDone struct {
		data  [64]uint32
		block BlockType
		has   bool
	}
	var done blockDone

	switch m.currentCmd {
	case cmdDecodeMacroBlock:
		inp := [2]uint16{uint16(input), uint16(input >> 16)}
		var idctOut [64]int16
		haveIdct := false
		for _, tok := range inp {
			if rlDecodeBlockInput(tok, &m.iqY, &m.decodeState) {
				idctOut = realIDCTCore(&m.decodeState.rlOut, &m.scaleTable)
				haveIdct = true
				m.decodeState.resetAfterBlock()
			}
		}

		if haveIdct {
			signed := m.status&statDataSigned != 0
			switch outputDepth(m.status) {
			case 0, 1:
				done = blockDone{data: yToMono(&idctOut, signed), block: BlockYCr, has: true}
			case 2, 3:
				switch m.decodeState.colorDecodingState {
				case 0:
					m.decodeState.crBlk = idctOut
					m.decodeState.colorDecodingState = 1
					m.status = setCurrentBlock(m.status, BlockCb)
				case 1:
					m.decodeState.cbBlk = idctOut
					m.decodeState.colorDecodingState = 2
					m.status = setCurrentBlock(m.status, BlockY1)
				default:
					bd := blocksData[m.decodeState.colorDecodingState-2]
					m.decodeState.colorDecodingState = (m.decodeState.colorDecodingState + 1) % 6
					rgb := yuvToRGB(&m.decodeState.crBlk, &m.decodeState.cbBlk, &idctOut, bd.x, bd.y, signed)
					done = blockDone{data: rgb, block: bd.cur, has: true}
					m.status = setCurrentBlock(m.status, bd.next)
				}
			}
		}

	case cmdSetQuantTable:
		if m.paramsPtr < 64/4 {
			start := m.paramsPtr * 4
			writeLE32(m.iqY[start:start+4], input)
		} else {
			start := (m.paramsPtr - 64/4) * 4
			writeLE32(m.iqUV[start:start+4], input)
		}

	case cmdSetScaleTable:
		start := m.paramsPtr * 2
		m.scaleTable[start] = uint16(input)
		m.scaleTable[start+1] = uint16(input >> 16)
	}

	m.remainingParams--
	m.paramsPtr++

	if done.has {
		m.pushToOutFifo(done.data, done.block)
	}

	if m.remainingParams == 0 {
		m.status &^= statCommandBusy
		m.currentCmd = cmdNone
	}
}

func writeLE32(dst []uint8, v uint32) {
	dst[0] = uint8(v)
	dst[1] = uint8(v >> 8)
	dst[2] = uint8(v >> 16)
	dst[3] = uint8(v >> 24)
}

// pushToOutFifo packs one decoded 8x8 block into the output fifo at
// the configured output depth (4/8/15/24-bit), grounded on
// push_to_out_fifo's four depth branches.
func (m *MDEC) pushToOutFifo(data [64]uint32, blockType BlockType) {
	m.status &^= statDataOutFifoEmpty

	var out [48]uint32
	var size int
	i := 0

	switch outputDepth(m.status) {
	case 0: // 4-bit, 8 words
		size = 64 / 8
		for c := 0; c < 64; c += 8 {
			b0 := uint8(data[c]) >> 4
			b1 := uint8(data[c+1]) & 0xF0
			b2 := uint8(data[c+2]) >> 4
			b3 := uint8(data[c+3]) & 0xF0
			b4 := uint8(data[c+4]) >> 4
			b5 := uint8(data[c+5]) & 0xF0
			b6 := uint8(data[c+6]) >> 4
			b7 := uint8(data[c+7]) & 0xF0
			out[i] = uint32(b0|b1) | uint32(b2|b3)<<8 | uint32(b4|b5)<<16 | uint32(b6|b7)<<24
			i++
		}

	case 1: // 8-bit, 16 words
		size = 64 / 4
		for c := 0; c < 64; c += 4 {
			out[i] = uint32(uint8(data[c])) | uint32(uint8(data[c+1]))<<8 |
				uint32(uint8(data[c+2]))<<16 | uint32(uint8(data[c+3]))<<24
			i++
		}

	case 2: // 24-bit, 48 words
		size = 48
		var wordBuf [4]uint8
		wi := 0
		for _, color := range data {
			r, g, b := uint8(color), uint8(color>>8), uint8(color>>16)
			for _, c := range [3]uint8{r, g, b} {
				wordBuf[wi] = c
				wi++
				if wi == 4 {
					out[i] = uint32(wordBuf[0]) | uint32(wordBuf[1])<<8 | uint32(wordBuf[2])<<16 | uint32(wordBuf[3])<<24
					wi = 0
					i++
				}
			}
		}

	case 3: // 15-bit, 32 words
		size = 64 / 2
		bit15 := uint16(0)
		if m.status&statDataOutputBit15 != 0 {
			bit15 = 1
		}
		pack := func(c uint32) uint16 {
			r := (uint8(c) >> 3) & 0x1F
			g := (uint8(c>>8) >> 3) & 0x1F
			b := (uint8(c>>16) >> 3) & 0x1F
			return uint16(r) | uint16(g)<<5 | uint16(b)<<10 | bit15<<15
		}
		for c := 0; c < 64; c += 2 {
			d1 := pack(data[c])
			d2 := pack(data[c+1])
			out[i] = uint32(d1) | uint32(d2)<<16
			i++
		}
	}

	m.outFifo = append(m.outFifo, fifoBlock{
		data: out,
		size: size,
		state: FifoBlockState{
			BlockType: blockType,
			Index:     0,
			Is24Bit:   outputDepth(m.status) == 2,
		},
	})
}

func (m *MDEC) readStatus() uint32 {
	return m.status | uint32(m.remainingParams-1)
}

// writeCommandParams either feeds the in-progress command or, when
// none is active, decodes a new command header from bits 29-31.
func (m *MDEC) writeCommandParams(input uint32) {
	if m.currentCmd != cmdNone {
		m.handleCurrentCmd(input)
		return
	}

	cmd := input >> 29
	m.status |= statCommandBusy
	m.paramsPtr = 0
	m.status |= (input >> 25 & 0b1111) << 23

	switch cmd {
	case 1: // decode macroblocks
		m.remainingParams = uint16(input)
		m.status = setCurrentBlock(m.status, BlockYCr)
		m.decodeState = newMacroBlockState()
		m.currentCmd = cmdDecodeMacroBlock

	case 2: // set quant tables
		m.colorAndLum = input&1 == 1
		if m.colorAndLum {
			m.remainingParams = 64 * 2 / 4
		} else {
			m.remainingParams = 64 / 4
		}
		m.currentCmd = cmdSetQuantTable

	case 3: // set scale table
		m.remainingParams = 64 / 2
		m.currentCmd = cmdSetScaleTable

	default:
		m.remainingParams = uint16(input)
		m.status &^= statCommandBusy
	}
}

func (m *MDEC) writeControl(data uint32) {
	if data>>31&1 != 0 {
		m.status = 0x80040000
	}
	if data>>30&1 != 0 {
		m.status |= statDataInRequest
	}
	if data>>29&1 != 0 {
		m.status |= statDataOutRequest
	}
}

func (m *MDEC) readFifo() uint32 {
	if len(m.outFifo) == 0 {
		if m.logger != nil {
			m.logger.LogMDEC(debug.LogLevelWarning, "mdec read fifo: fifo is empty", nil)
		}
		return 0
	}
	block := &m.outFifo[0]
	out := block.data[block.state.Index]
	block.state.Index++
	if block.state.Index == block.size {
		m.outFifo = m.outFifo[1:]
		if len(m.outFifo) == 0 {
			m.status |= statDataOutFifoEmpty
		}
	}
	return out
}

// FifoCurrentState reports the block type/depth at the head of the
// output fifo for DMA channel 1's re-interleave logic.
func (m *MDEC) FifoCurrentState() FifoBlockState {
	if len(m.outFifo) == 0 {
		return FifoBlockState{BlockType: BlockYCr}
	}
	return m.outFifo[0].state
}

// WriteCommand, ReadOut, and OutFifoState satisfy internal/dma.MDECPorts
// for channel 0 (command stream in) and channel 1 (decoded blocks out).
func (m *MDEC) WriteCommand(v uint32) { m.writeCommandParams(v) }

func (m *MDEC) ReadOut() uint32 { return m.readFifo() }

func (m *MDEC) OutFifoState() (blockType int, index int, is24bit bool) {
	s := m.FifoCurrentState()
	return int(s.BlockType), s.Index, s.Is24Bit
}

// Read32/Write32 implement the two-register (data/status at offset 0,
// control at offset 4) IOHandler surface.
func (m *MDEC) Read32(offset uint32) uint32 {
	switch offset & 0xF {
	case 0:
		return m.readFifo()
	case 4:
		return m.readStatus()
	}
	return 0
}

func (m *MDEC) Write32(offset uint32, data uint32) {
	switch offset & 0xF {
	case 0:
		m.writeCommandParams(data)
	case 4:
		m.writeControl(data)
	}
}

func (m *MDEC) Read16(offset uint32) uint16 {
	shift := (offset & 2) * 8
	return uint16(m.Read32(offset&^3) >> shift)
}

func (m *MDEC) Write16(offset uint32, data uint16) {
	cur := m.Read32(offset &^ 3)
	shift := (offset & 2) * 8
	cur = (cur &^ (0xFFFF << shift)) | (uint32(data) << shift)
	m.Write32(offset&^3, cur)
}

func (m *MDEC) Read8(offset uint32) uint8 {
	shift := (offset & 3) * 8
	return uint8(m.Read32(offset&^3) >> shift)
}

func (m *MDEC) Write8(offset uint32, data uint8) {
	cur := m.Read32(offset &^ 3)
	shift := (offset & 3) * 8
	cur = (cur &^ (0xFF << shift)) | (uint32(data) << shift)
	m.Write32(offset&^3, cur)
}
