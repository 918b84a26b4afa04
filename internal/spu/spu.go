// Package spu implements the 24-voice ADPCM sound mixer: sound RAM with
// capture buffers, ADSR envelopes, ADPCM block decode, key-on/off, and
// the IRQ-on-touched-address latch (spec §4.7). Grounded on
// original_source/trapezoid-core/src/spu.rs (AdpcmDecoder, Voice/ADSR
// state machine, SpuRam capture-buffer layout, the register map at
// 0x1F80_1C00+).
package spu

import (
	"psxemu/internal/debug"
	"psxemu/internal/irq"
)

const ramSize = 0x40000 // 16-bit words

// capture buffer regions, spec §4.7.
const (
	captureCDLeft    = 0x000
	captureCDRight   = 0x200
	captureVoice1    = 0x400
	captureVoice3    = 0x600
	captureRegionLen = 0x200
)

var adpcmTablePos = [5]int32{0, 60, 115, 98, 122}
var adpcmTableNeg = [5]int32{0, 0, -52, -55, -60}

type adpcmDecoder struct {
	old, older int32
}

func (d *adpcmDecoder) decodeBlock(in [8]uint16, out *[28]int16) {
	shiftFilter := in[0] & 0xFF
	shift := shiftFilter & 0xF
	shiftFactor := uint32(12)
	if shift <= 12 {
		shiftFactor = uint32(12 - shift)
	} else {
		shiftFactor = 12 - 9
	}
	filter := (shiftFilter >> 4) % 5
	f0 := adpcmTablePos[filter]
	f1 := adpcmTableNeg[filter]

	for i := 0; i < 7; i++ {
		chunk := in[i+1]
		for j := 0; j < 4; j++ {
			nibble := int32(chunk & 0xF)
			if nibble&0x8 != 0 {
				nibble |= ^int32(0xF)
			}
			sample := nibble << shiftFactor
			sample += (d.old*f0 + d.older*f1 + 32) / 64
			sample = clampI32(sample, -0x8000, 0x7FFF)
			d.older = d.old
			d.old = sample
			out[i*4+j] = int16(sample)
			chunk >>= 4
		}
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

// adsrState enumerates the four envelope phases plus Stopped.
type adsrState int

const (
	adsrAttack adsrState = iota
	adsrDecay
	adsrSustain
	adsrRelease
	adsrStopped
)

var stepsPos = [4]int16{7, 6, 5, 4}
var stepsNeg = [4]int16{-8, -7, -6, -5}

// voice is one of the 24 ADPCM channels.
type voice struct {
	volumeLeft, volumeRight       uint16
	currentVolLeft, currentVolRight int16

	sampleRate      uint16
	pitchCounter    uint32
	startAddress    uint16
	repeatAddress   uint16
	currentAddress  int

	decoder adpcmDecoder

	adsrConfig  uint32
	adsrState   adsrState
	adsrVol     uint16
	adsrCycles  uint32

	cachedBlock [28]int16
	cacheIndex  int

	isOn, isOff bool
}

func (v *voice) keyOn() {
	v.currentAddress = int(v.startAddress) * 4
	v.cacheIndex = 28
	v.decoder = adpcmDecoder{}
	v.repeatAddress = v.startAddress
	v.setState(adsrAttack)
	v.adsrVol = 0
	v.isOn = true
	v.isOff = false
}

func (v *voice) keyOff() {
	v.setState(adsrRelease)
	v.isOff = true
}

func (v *voice) setState(s adsrState) {
	v.adsrState = s
	v.adsrCycles = 0
}

func (v *voice) adsrInfo() (modeExp, decrease bool, shift uint8, step int16, target uint16) {
	switch v.adsrState {
	case adsrAttack:
		modeExp = v.adsrConfig&(1<<15) != 0
		decrease = false
		shift = uint8((v.adsrConfig >> 10) & 0x1F)
		step = stepsPos[(v.adsrConfig>>8)&3]
		target = 0x7FFF
	case adsrDecay:
		modeExp = true
		decrease = true
		shift = uint8((v.adsrConfig >> 4) & 0xF)
		step = -8
		mul := uint16(v.adsrConfig&0xF) + 1
		target = mul * 0x800
		if target > 0x7FFF {
			target = 0x7FFF
		}
	case adsrSustain:
		modeExp = v.adsrConfig&(1<<31) != 0
		decrease = v.adsrConfig&(1<<30) != 0
		shift = uint8((v.adsrConfig >> 24) & 0x1F)
		idx := (v.adsrConfig >> 22) & 3
		if decrease {
			step = stepsNeg[idx]
		} else {
			step = stepsPos[idx]
		}
	case adsrRelease:
		modeExp = v.adsrConfig&(1<<21) != 0
		decrease = true
		shift = uint8((v.adsrConfig >> 16) & 0x1F)
		step = -8
	}
	return
}

func (v *voice) clockADSR() {
	if v.adsrCycles > 0 {
		v.adsrCycles--
		return
	}
	if v.adsrState == adsrStopped {
		v.isOn = false
		return
	}

	modeExp, decrease, shift, step, target := v.adsrInfo()

	shiftSub11 := int32(shift) - 11
	if shiftSub11 < 0 {
		shiftSub11 = 0
	}
	subFrom11 := int32(11) - int32(shift)
	if subFrom11 < 0 {
		subFrom11 = 0
	}
	cycles := uint32(1) << uint(shiftSub11)
	adsrStep := int32(step) << uint(subFrom11)

	if modeExp {
		if decrease {
			adsrStep = clampI32(adsrStep*int32(v.adsrVol)/0x8000, -0x8000, 0x7FFF)
			if adsrStep == 0 {
				adsrStep = -1
			}
		} else if v.adsrVol > 0x6000 {
			switch {
			case shift < 10:
				adsrStep /= 4
			case shift >= 11:
				cycles *= 4
			default:
				adsrStep /= 4
				cycles *= 4
			}
		}
	}

	if cycles < 1 {
		cycles = 1
	}
	v.adsrCycles = cycles

	newVol := clampI32(int32(int16(v.adsrVol))+adsrStep, 0, 0x7FFF)
	v.adsrVol = uint16(newVol)

	if (decrease && v.adsrVol <= target) || (!decrease && v.adsrVol >= target) {
		switch v.adsrState {
		case adsrAttack:
			v.adsrState = adsrDecay
		case adsrDecay:
			v.adsrState = adsrSustain
		case adsrRelease:
			v.adsrState = adsrStopped
		}
	}
}

// fetchNextBlock reads the 16-byte ADPCM block at the voice's current
// sound-RAM address, handles loop-start/end/repeat flags, and decodes
// it. Returns whether ENDX should latch for this voice.
func (v *voice) fetchNextBlock(ram *soundRAM) bool {
	var raw [8]uint16
	for i := 0; i < 8; i++ {
		raw[i] = ram.read(v.currentAddress + i)
	}
	v.currentAddress += 8
	v.currentAddress &= 0x3FFFF

	flags := raw[0] >> 8
	loopEnd := flags&1 == 1
	loopRepeat := flags&2 == 2
	loopStart := flags&4 == 4

	if loopStart {
		v.repeatAddress = uint16((v.currentAddress - 8) / 4)
	}

	endx := false
	if loopEnd {
		v.currentAddress = int(v.repeatAddress) * 4
		endx = true
		if !loopRepeat {
			v.setState(adsrRelease)
			v.adsrConfig = 0
		}
	}

	v.decoder.decodeBlock(raw, &v.cachedBlock)
	return endx
}

// clockVoice advances ADSR and ADPCM playback by one SPU sample tick
// (1/44100s), returning whether ENDX fired, the mono capture sample,
// and the left/right mixed contribution.
func (v *voice) clockVoice(ram *soundRAM) (endx bool, mono int16, left, right int32) {
	v.clockADSR()

	if v.cacheIndex >= 28 {
		endx = v.fetchNextBlock(ram)
		v.pitchCounter &= 0x3FFF
		v.cacheIndex = 0
	}

	cur := v.cacheIndex
	step := v.sampleRate
	if step > 0x3FFF {
		step = 0x4000
	}
	v.pitchCounter += uint32(step)
	v.cacheIndex = int(v.pitchCounter >> 12)

	sample := v.cachedBlock[cur]
	monoOut := clampI32(int32(sample)*int32(v.adsrVol)/0x8000, -0x8000, 0x7FFF)

	left = clampI32(monoOut*int32(v.currentVolLeft)/0x8000, -0x8000, 0x7FFF)
	right = clampI32(monoOut*int32(v.currentVolRight)/0x8000, -0x8000, 0x7FFF)
	return endx, int16(monoOut), left, right
}

// soundRAM is the 16-bit-word sound memory backing every voice, plus the
// four capture-buffer write cursors and the read/write IRQ-touch latch
// (spec §9: touching irqAddress by read or write sets the latch).
type soundRAM struct {
	data [ramSize]uint16

	irqAddress uint32
	irqFlag    bool

	cdLeftIdx, cdRightIdx, voice1Idx, voice3Idx int
}

func (r *soundRAM) touch(addr int) {
	if uint32(addr) == r.irqAddress {
		r.irqFlag = true
	}
}

func (r *soundRAM) read(addr int) uint16 {
	addr &= 0x3FFFF
	r.touch(addr)
	return r.data[addr]
}

func (r *soundRAM) write(addr int, v uint16) {
	addr &= 0x3FFFF
	r.touch(addr)
	r.data[addr] = v
}

func (r *soundRAM) pushCDCapture(left, right int16) {
	r.data[captureCDLeft+r.cdLeftIdx] = uint16(left)
	r.data[captureCDRight+r.cdRightIdx] = uint16(right)
	r.cdLeftIdx = (r.cdLeftIdx + 1) % captureRegionLen
	r.cdRightIdx = (r.cdRightIdx + 1) % captureRegionLen
}

func (r *soundRAM) pushVoice1(s int16) {
	r.data[captureVoice1+r.voice1Idx] = uint16(s)
	r.voice1Idx = (r.voice1Idx + 1) % captureRegionLen
}

func (r *soundRAM) pushVoice3(s int16) {
	r.data[captureVoice3+r.voice3Idx] = uint16(s)
	r.voice3Idx = (r.voice3Idx + 1) % captureRegionLen
}

// ramTransferMode selects what SPUCNT bits 4-5 mean for the data FIFO.
type ramTransferMode uint8

const (
	transferStop ramTransferMode = iota
	transferManualWrite
	transferDMAWrite
	transferDMARead
)

// SPU mixes 24 voices plus CD-DA/external input into a stereo 44.1kHz
// stream, sampled once every 0x300 CPU cycles (spec §4.7).
type SPU struct {
	voices [24]voice
	ram    soundRAM

	cpuClockTimer uint32

	mainVolLeft, mainVolRight               uint16
	currentMainVolLeft, currentMainVolRight int16
	reverbOutVolLeft, reverbOutVolRight     uint16
	cdVolLeft, cdVolRight                   uint16
	externalVolLeft, externalVolRight       uint16

	control uint32
	stat    uint32

	keyOnFlag, keyOffFlag                           uint32
	pitchModFlag, noiseModeFlag, reverbModeFlag, endxFlag uint32

	reverbWorkBase uint16
	reverbConfig   [0x20]uint16

	ramTransferControl uint32
	ramTransferAddress uint16
	ramTransferCurrent int
	writeFifo          []uint16

	inDMATransfer bool

	cdAudioLeft, cdAudioRight []int16

	outBuffer []int16

	irqCtrl *irq.Controller
	logger  *debug.Logger
}

func New(irqCtrl *irq.Controller, logger *debug.Logger) *SPU {
	s := &SPU{irqCtrl: irqCtrl, logger: logger}
	s.Reset()
	return s
}

func (s *SPU) Reset() {
	*s = SPU{irqCtrl: s.irqCtrl, logger: s.logger}
}

func (s *SPU) ramTransferMode() ramTransferMode {
	return ramTransferMode((s.control >> 4) & 3)
}

// AddCDAudio queues decoded CD-DA/XA-ADPCM stereo samples for mixing
// (spec §9, fed by internal/cdrom's audio decode).
func (s *SPU) AddCDAudio(left, right []int16) {
	s.cdAudioLeft = append(s.cdAudioLeft, left...)
	s.cdAudioRight = append(s.cdAudioRight, right...)
}

// TakeAudioBuffer drains and returns accumulated interleaved stereo
// samples (spec §6 take_audio_buffer).
func (s *SPU) TakeAudioBuffer() []int16 {
	out := s.outBuffer
	s.outBuffer = nil
	return out
}

const cpuClocksPerSPU = 0x300

// Clock advances the SPU by cpuCycles CPU clocks, running one full
// 24-voice mix step every 0x300 of them (spec §4.7/§9 mixing order).
func (s *SPU) Clock(cpuCycles uint32) {
	s.cpuClockTimer += cpuCycles
	for s.cpuClockTimer >= cpuClocksPerSPU {
		s.cpuClockTimer -= cpuClocksPerSPU
		s.tick()
	}
}

func (s *SPU) tick() {
	s.ram.irqFlag = false

	s.stat &^= 0x3F
	s.stat |= s.control & 0x3F

	const (
		statBusy      = 1 << 10
		statUsingDMA  = 1 << 9
		statDMAWrite  = 1 << 8
		statDMARead   = 1 << 7
	)
	switch s.ramTransferMode() {
	case transferStop:
		s.stat &^= statBusy | statUsingDMA | statDMAWrite | statDMARead
	case transferManualWrite:
		if len(s.writeFifo) == 0 {
			s.stat &^= statBusy
		} else {
			s.stat |= statBusy
			for _, d := range s.writeFifo {
				s.ram.write(s.ramTransferCurrent, d)
				s.ramTransferCurrent++
				s.ramTransferCurrent &= 0x3FFFF
			}
			s.writeFifo = nil
		}
	case transferDMAWrite:
		if s.inDMATransfer {
			s.stat |= statBusy
		} else {
			s.stat &^= statBusy
		}
		s.stat |= statUsingDMA | statDMAWrite
	case transferDMARead:
		if s.inDMATransfer {
			s.stat |= statBusy
		} else {
			s.stat &^= statBusy
		}
		s.stat |= statUsingDMA | statDMARead
	}

	var cdLeft, cdRight int16
	if len(s.cdAudioLeft) > 0 {
		cdLeft, s.cdAudioLeft = s.cdAudioLeft[0], s.cdAudioLeft[1:]
	}
	if len(s.cdAudioRight) > 0 {
		cdRight, s.cdAudioRight = s.cdAudioRight[0], s.cdAudioRight[1:]
	}
	s.ram.pushCDCapture(cdLeft, cdRight)

	mixLeft := clampI32(int32(cdLeft)*int32(s.cdVolLeft)/0x8000, -0x8000, 0x7FFF)
	mixRight := clampI32(int32(cdRight)*int32(s.cdVolRight)/0x8000, -0x8000, 0x7FFF)

	for i := range s.voices {
		v := &s.voices[i]
		endx, mono, left, right := v.clockVoice(&s.ram)
		switch i {
		case 1:
			s.ram.pushVoice1(mono)
		case 3:
			s.ram.pushVoice3(mono)
		}
		mixLeft = clampI32(mixLeft+clampI32(left*int32(s.currentMainVolLeft)/0x8000, -0x8000, 0x7FFF), -0x8000, 0x7FFF)
		mixRight = clampI32(mixRight+clampI32(right*int32(s.currentMainVolRight)/0x8000, -0x8000, 0x7FFF), -0x8000, 0x7FFF)
		if endx {
			s.endxFlag |= 1 << uint(i)
		}
	}

	const unmute = 1 << 14
	const spuEnable = 1 << 15
	left, right := int16(0), int16(0)
	if s.control&unmute != 0 {
		left, right = int16(mixLeft), int16(mixRight)
	}
	s.outBuffer = append(s.outBuffer, left, right)

	const irq9Enable = 1 << 6
	if s.control&(spuEnable|irq9Enable) == (spuEnable|irq9Enable) && s.ram.irqFlag {
		const statIRQFlag = 1 << 6
		s.stat |= statIRQFlag
		s.irqCtrl.Raise(irq.SPU)
	}
}

// --- DMA-facing API (psxemu/internal/dma.SPUPorts) ---

func (s *SPU) IsReadyForDMA(write bool) bool {
	s.inDMATransfer = true
	s.stat |= 1 << 10
	const statUsingDMA = 1 << 9
	if s.stat&statUsingDMA == 0 {
		return false
	}
	if write {
		return s.stat&(1<<8) != 0
	}
	return s.stat&(1<<7) != 0
}

func (s *SPU) DMAWriteBlock(words []uint32) {
	s.inDMATransfer = true
	s.stat |= 1 << 10
	for _, d := range s.writeFifo {
		s.ram.write(s.ramTransferCurrent, d)
		s.ramTransferCurrent++
		s.ramTransferCurrent &= 0x3FFFF
	}
	s.writeFifo = nil
	for _, d := range words {
		s.ram.write(s.ramTransferCurrent, uint16(d))
		s.ramTransferCurrent++
		s.ramTransferCurrent &= 0x3FFFF
		s.ram.write(s.ramTransferCurrent, uint16(d>>16))
		s.ramTransferCurrent++
		s.ramTransferCurrent &= 0x3FFFF
	}
	s.stat &^= (1 << 8) | (1 << 9)
}

func (s *SPU) DMAReadBlock(n int) []uint32 {
	s.inDMATransfer = true
	s.stat |= 1 << 10
	out := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		lo := s.ram.read(s.ramTransferCurrent)
		s.ramTransferCurrent++
		s.ramTransferCurrent &= 0x3FFFF
		hi := s.ram.read(s.ramTransferCurrent)
		s.ramTransferCurrent++
		s.ramTransferCurrent &= 0x3FFFF
		out = append(out, uint32(lo)|(uint32(hi)<<16))
	}
	s.stat &^= (1 << 8) | (1 << 9)
	return out
}

func (s *SPU) FinishDMA() { s.inDMATransfer = false }
