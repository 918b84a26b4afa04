// Package cdrom implements the disc controller: index-selected register
// bank, a staged command state machine with default/second-stage
// delays, XA-ADPCM decode with the 7-table zigzag FIR resampler, and
// the documented two-attempt sector delivery rule (spec §4.9).
// Grounded on original_source/trapezoid-core/src/cdrom.rs.
package cdrom

import (
	"psxemu/internal/debug"
	"psxemu/internal/irq"
	"psxemu/internal/spu"
)

const (
	commandDefaultDelay = 0x1100
	readPlayDelay       = 0x6e400 - 0x100
)

// fifo status bits (index/status register, port 0).
const (
	fifoADPBusy              = 1 << 2
	fifoParamEmpty           = 1 << 3
	fifoParamNotFull         = 1 << 4
	fifoResponseNotEmpty     = 1 << 5
	fifoDataNotEmpty         = 1 << 6
	fifoBusy                 = 1 << 7
)

// CdromMode bits (Setmode parameter).
const (
	modeCDDA          = 1 << 0
	modeAutoPause     = 1 << 1
	modeReportEnable  = 1 << 2
	modeXAFilter      = 1 << 3
	modeIgnoreBit     = 1 << 4
	modeWholeSector   = 1 << 5
	modeXAADPCM       = 1 << 6
	modeDoubleSpeed   = 1 << 7
)

// CodingInfo bits (XA sub-header byte 3).
const (
	codingStereo       = 1 << 0
	codingSampleRate   = 1 << 2
	codingBitsPerSample = 1 << 4
	codingEmphasis     = 1 << 6
)

type actionStatus int

const (
	actionNone actionStatus = iota
	actionSeek
	actionRead
)

// status register bits (GetStat response byte).
const (
	statError     = 1 << 0
	statMotorOn   = 1 << 1
	statSeekError = 1 << 2
	statGetIDErr  = 1 << 3
	statShellOpen = 1 << 4
)

var adpcmTablePos = [4]int32{0, 60, 115, 98}
var adpcmTableNeg = [4]int32{0, 0, -52, -55}

type adpcmDecoder struct{ old, older int32 }

func (d *adpcmDecoder) decodeBlock(in []byte, blockN int, sample8bit bool, out *[28]int16) {
	shiftFilter := in[4+blockN]
	shiftNibble := int32(shiftFilter & 0xF)
	if shiftNibble > 12 {
		shiftNibble = 9
	}
	expandShift := int32(12)
	if sample8bit {
		expandShift = 8
	}
	shiftFactor := uint32(expandShift - shiftNibble)

	filter := (shiftFilter >> 4) % 4
	f0 := adpcmTablePos[filter]
	f1 := adpcmTableNeg[filter]

	for i := 0; i < 28; i++ {
		var sample int32
		if sample8bit {
			b := in[16+i*4+blockN]
			sample = int32(int8(b))
		} else {
			b := in[16+i*4+blockN/2]
			nibbleShift := uint((blockN & 1) * 4)
			m := int32((b >> nibbleShift) & 0xF)
			if m&0x8 != 0 {
				m |= ^int32(0xF)
			}
			sample = m
		}
		sample <<= shiftFactor
		sample += (d.old*f0 + d.older*f1 + 32) / 64
		sample = clampI32(sample, -0x8000, 0x7FFF)
		d.older = d.old
		d.old = sample
		out[i] = int16(sample)
	}
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

var zigzagTable = [7][29]int32{
	{0, 0, 0, 0, 0, -0x0002, 0x000A, -0x0022, 0x0041, -0x0054, 0x0034, 0x0009, -0x010A, 0x0400,
		-0x0A78, 0x234C, 0x6794, -0x1780, 0x0BCD, -0x0623, 0x0350, -0x016D, 0x006B, 0x000A,
		-0x0010, 0x0011, -0x0008, 0x0003, -0x0001},
	{0, 0, 0, -0x0002, 0, 0x0003, -0x0013, 0x003C, -0x004B, 0x00A2, -0x00E3, 0x0132, -0x0043,
		-0x0267, 0x0C9D, 0x74BB, -0x11B4, 0x09B8, -0x05BF, 0x0372, -0x01A8, 0x00A6, -0x001B,
		0x0005, 0x0006, -0x0008, 0x0003, -0x0001, 0},
	{0, 0, -0x0001, 0x0003, -0x0002, -0x0005, 0x001F, -0x004A, 0x00B3, -0x0192, 0x02B1, -0x039E,
		0x04F8, -0x05A6, 0x7939, -0x05A6, 0x04F8, -0x039E, 0x02B1, -0x0192, 0x00B3, -0x004A,
		0x001F, -0x0005, -0x0002, 0x0003, -0x0001, 0, 0},
	{0, -0x0001, 0x0003, -0x0008, 0x0006, 0x0005, -0x001B, 0x00A6, -0x01A8, 0x0372, -0x05BF,
		0x09B8, -0x11B4, 0x74BB, 0x0C9D, -0x0267, -0x0043, 0x0132, -0x00E3, 0x00A2, -0x004B,
		0x003C, -0x0013, 0x0003, 0, -0x0002, 0, 0, 0},
	{-0x0001, 0x0003, -0x0008, 0x0011, -0x0010, 0x000A, 0x006B, -0x016D, 0x0350, -0x0623,
		0x0BCD, -0x1780, 0x6794, 0x234C, -0x0A78, 0x0400, -0x010A, 0x0009, 0x0034, -0x0054, 0x0041,
		-0x0022, 0x000A, -0x0001, 0, 0x0001, 0, 0, 0},
	{0x0002, -0x0008, 0x0010, -0x0023, 0x002B, 0x001A, -0x00EB, 0x027B, -0x0548, 0x0AFA,
		-0x16FA, 0x53E0, 0x3C07, -0x1249, 0x080E, -0x0347, 0x015B, -0x0044, -0x0017, 0x0046,
		-0x0023, 0x0011, -0x0005, 0, 0, 0, 0, 0},
	{-0x0005, 0x0011, -0x0023, 0x0046, -0x0017, -0x0044, 0x015B, -0x0347, 0x080E, -0x1249,
		0x3C07, 0x53E0, -0x16FA, 0x0AFA, -0x0548, 0x027B, -0x00EB, 0x001A, 0x002B, -0x0023, 0x0010,
		-0x0008, 0x0002, 0, 0, 0, 0, 0, 0},
}

// adpcmInterpolator resamples 18900/37800Hz ADPCM output to 44100Hz via
// the zigzag FIR bank (7 tables of 29 taps), ported verbatim from
// AdpcmInterpolator.
type adpcmInterpolator struct {
	ring          [0x20]int16
	i             int
	sixStepCount  int
}

func newInterpolator() adpcmInterpolator { return adpcmInterpolator{sixStepCount: 6} }

func (p *adpcmInterpolator) outputSamples(samples []int16, rate18900 bool, out *[]int16) {
	for _, s := range samples {
		if rate18900 {
			p.ring[p.i&0x1F] = s
			p.ring[(p.i+1)&0x1F] = s
			p.i += 2
			p.sixStepCount -= 2
		} else {
			p.ring[p.i&0x1F] = s
			p.i++
			p.sixStepCount--
		}
		if p.sixStepCount == 0 {
			p.sixStepCount = 6
			for t := 0; t < 7; t++ {
				*out = append(*out, p.zigzagInterpolate(t))
			}
		}
	}
}

func (p *adpcmInterpolator) zigzagInterpolate(tableI int) int16 {
	var sum int32
	for i := 1; i < 30; i++ {
		idx := (p.i - i) & 0x1F
		sum += int32(p.ring[idx]) * zigzagTable[tableI][i-1] / 0x8000
	}
	return int16(clampI32(sum, -0x8000, 0x7FFF))
}

func fromBCD(v uint8) uint8 { return (v>>4)*10 + (v & 0xF) }
func toBCD(v uint8) uint8   { return ((v / 10) << 4) | (v % 10) }

// CDROM is the disc controller.
type CDROM struct {
	index        uint8
	fifoStatus   uint8
	status       uint8
	action       actionStatus
	secondAttempt bool

	interruptEnable uint8
	interruptFlag   uint8

	paramFifo    []uint8
	responseFifo []uint8

	command      int // -1 = none
	commandDelay uint32
	readDelay    uint32
	commandState int // -1 = first stage

	diskData []byte

	setLocParams  [3]uint8
	haveSetLoc    bool
	cursorSector  int

	mode uint8

	dataFifo      []uint8
	readDataBuf   []uint8
	dataFifoIndex int

	filterFile, filterChannel uint8

	decLeft, decRight       adpcmDecoder
	interpLeft, interpRight adpcmInterpolator

	inCDLL, inCDLR, inCDRL, inCDRR uint8
	volCDLL, volCDLR, volCDRL, volCDRR uint8

	adpcmMute, cdMute bool

	irqCtrl *irq.Controller
	logger  *debug.Logger
}

func New(irqCtrl *irq.Controller, logger *debug.Logger) *CDROM {
	c := &CDROM{irqCtrl: irqCtrl, logger: logger}
	c.Reset()
	return c
}

func (c *CDROM) Reset() {
	diskData := c.diskData
	*c = CDROM{irqCtrl: c.irqCtrl, logger: c.logger, diskData: diskData, cdMute: true}
	c.fifoStatus = fifoParamEmpty | fifoParamNotFull
	c.command = -1
	c.commandState = -1
	c.interpLeft = newInterpolator()
	c.interpRight = newInterpolator()
}

// SetDisk installs a loaded disc image (spec §4.8/§6's CUE/BIN loader
// hands a flat byte blob here; single-track only, matching the original
// source's own unfinished multi-track support).
func (c *CDROM) SetDisk(data []byte) {
	c.diskData = data
	c.status &^= statShellOpen
}

// SetShellOpen models the tray-open/closed switch (spec §6
// change_shell_open).
func (c *CDROM) SetShellOpen(open bool) {
	if open {
		c.status |= statShellOpen
	} else {
		c.status &^= statShellOpen
	}
}

func (c *CDROM) startMotor() { c.status |= statMotorOn }
func (c *CDROM) stopMotor()  { c.status &^= statMotorOn }
func (c *CDROM) resetErrorBits() {
	c.status &^= statError | statSeekError | statGetIDErr
}

// Clock advances the command/read delay timers by cpuCycles and runs
// any due command stage / sector delivery (spec §4.9, gpu.rs-style
// single clock entry point).
func (c *CDROM) Clock(cpuCycles uint32, spu *spu.SPU) {
	if c.interruptFlag&7 == 0 && c.status&statShellOpen != 0 {
		c.setResponse(c.status)
		c.requestInterrupt(5)
		return
	}

	if c.tickCommandDelay(cpuCycles) && c.command >= 0 {
		c.handleCommand(uint8(c.command))
	}

	if c.tickReadDelay(cpuCycles) {
		c.handleReadingData(spu)
	}

	if c.interruptFlag&c.interruptEnable != 0 {
		c.irqCtrl.Raise(irq.CDROM)
	}
}

func (c *CDROM) tickCommandDelay(cycles uint32) bool {
	if c.commandDelay > cycles {
		c.commandDelay -= cycles
	} else {
		c.commandDelay = 0
	}
	if c.commandDelay != 0 {
		return false
	}
	return c.interruptFlag&7 == 0
}

func (c *CDROM) tickReadDelay(cycles uint32) bool {
	if c.action != actionRead {
		return false
	}
	if c.readDelay > cycles+1 {
		c.readDelay -= cycles
		return false
	}
	if c.mode&modeDoubleSpeed != 0 {
		c.readDelay += readPlayDelay / 2
	} else {
		c.readDelay += readPlayDelay
	}
	return c.interruptFlag&7 == 0
}

func (c *CDROM) requestInterrupt(v uint8) {
	c.interruptFlag &^= 0x7
	c.interruptFlag |= v & 0x7
}

func (c *CDROM) setResponse(b uint8) {
	c.responseFifo = []uint8{b}
	c.fifoStatus |= fifoResponseNotEmpty
}

func (c *CDROM) setResponseSlice(b []uint8) {
	c.responseFifo = append([]uint8{}, b...)
	c.fifoStatus |= fifoResponseNotEmpty
}

func (c *CDROM) readNextParam() (uint8, bool) {
	if len(c.paramFifo) == 0 {
		return 0, false
	}
	v := c.paramFifo[0]
	c.paramFifo = c.paramFifo[1:]
	if len(c.paramFifo) == 0 {
		c.fifoStatus |= fifoParamEmpty
	}
	return v, true
}

func (c *CDROM) putCommand(cmd uint8) {
	c.command = int(cmd)
	c.commandDelay = commandDefaultDelay
	c.commandState = -1
	c.fifoStatus |= fifoBusy
}

func (c *CDROM) resetCommand() {
	c.command = -1
	c.commandDelay = 0
	c.commandState = -1
	c.paramFifo = nil
	c.fifoStatus &^= fifoBusy
}

func (c *CDROM) doSeek() {
	if !c.haveSetLoc {
		return
	}
	c.action = actionSeek
	minutes, seconds, sector := int(c.setLocParams[0]), int(c.setLocParams[1]), int(c.setLocParams[2])
	total := minutes*60 + seconds
	if total < 2 {
		total = 2
	}
	c.cursorSector = (total-2)*75 + sector
	c.haveSetLoc = false
}
