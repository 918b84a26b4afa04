package spu

// Register offsets are relative to 0x1F80_1C00 (spec §4.7). Voice
// registers occupy 0x000-0x17F in 8-register-wide (0x10 byte) blocks;
// the rest are fixed single registers, grounded on trapezoid-core/src/
// spu.rs's read_u16/write_u16 match arms.

func (s *SPU) readVoiceReg(voiceIdx int, reg uint32) uint16 {
	v := &s.voices[voiceIdx]
	switch reg {
	case 0x0:
		return v.volumeLeft
	case 0x2:
		return v.volumeRight
	case 0x4:
		return v.sampleRate
	case 0x6:
		return v.startAddress
	case 0x8:
		return uint16(v.adsrConfig)
	case 0xA:
		return uint16(v.adsrConfig >> 16)
	case 0xC:
		return v.adsrVol
	case 0xE:
		return v.repeatAddress
	}
	return 0
}

func (s *SPU) writeVoiceReg(voiceIdx int, reg uint32, data uint16) {
	v := &s.voices[voiceIdx]
	switch reg {
	case 0x0:
		v.volumeLeft = data
		if data&0x8000 == 0 {
			v.currentVolLeft = int16(data * 2)
		}
	case 0x2:
		v.volumeRight = data
		if data&0x8000 == 0 {
			v.currentVolRight = int16(data * 2)
		}
	case 0x4:
		v.sampleRate = data
	case 0x6:
		v.startAddress = data
	case 0x8:
		v.adsrConfig = (v.adsrConfig & 0xFFFF0000) | uint32(data)
	case 0xA:
		v.adsrConfig = (v.adsrConfig & 0xFFFF) | (uint32(data) << 16)
	case 0xC:
		v.adsrVol = data
	case 0xE:
		v.repeatAddress = data
	}
}

func bitsLow16(v *uint32, data uint16)  { *v = (*v &^ 0xFFFF) | uint32(data) }
func bitsHigh16(v *uint32, data uint16) { *v = (*v & 0xFFFF) | (uint32(data) << 16) }

func (s *SPU) Read16(offset uint32) uint16 {
	switch {
	case offset <= 0x17E:
		return s.readVoiceReg(int(offset>>4), offset&0xF)
	case offset == 0x180:
		return s.mainVolLeft
	case offset == 0x182:
		return s.mainVolRight
	case offset == 0x184:
		return s.reverbOutVolLeft
	case offset == 0x186:
		return s.reverbOutVolRight
	case offset == 0x188:
		return uint16(s.keyOnFlag)
	case offset == 0x18A:
		return uint16(s.keyOnFlag >> 16)
	case offset == 0x18C:
		return uint16(s.keyOffFlag)
	case offset == 0x18E:
		return uint16(s.keyOffFlag >> 16)
	case offset == 0x190:
		return uint16(s.pitchModFlag)
	case offset == 0x192:
		return uint16(s.pitchModFlag >> 16)
	case offset == 0x194:
		return uint16(s.noiseModeFlag)
	case offset == 0x196:
		return uint16(s.noiseModeFlag >> 16)
	case offset == 0x198:
		return uint16(s.reverbModeFlag)
	case offset == 0x19A:
		return uint16(s.reverbModeFlag >> 16)
	case offset == 0x19C:
		return uint16(s.endxFlag)
	case offset == 0x19E:
		return uint16(s.endxFlag >> 16)
	case offset == 0x1A2:
		return s.reverbWorkBase
	case offset == 0x1A4:
		return uint16(s.ram.irqAddress / 4)
	case offset == 0x1A6:
		return s.ramTransferAddress
	case offset == 0x1AA:
		return uint16(s.control)
	case offset == 0x1AC:
		return uint16(s.ramTransferControl)
	case offset == 0x1AE:
		return uint16(s.stat)
	case offset == 0x1B0:
		return s.cdVolLeft
	case offset == 0x1B2:
		return s.cdVolRight
	case offset == 0x1B4:
		return s.externalVolLeft
	case offset == 0x1B6:
		return s.externalVolRight
	case offset == 0x1B8:
		return uint16(s.currentMainVolLeft)
	case offset == 0x1BA:
		return uint16(s.currentMainVolRight)
	case offset >= 0x1C0 && offset <= 0x1FE:
		return s.reverbConfig[(offset-0x1C0)/2]
	}
	return 0
}

func (s *SPU) Write16(offset uint32, data uint16) {
	switch {
	case offset <= 0x17E:
		s.writeVoiceReg(int(offset>>4), offset&0xF, data)
		return
	}

	switch offset {
	case 0x180:
		s.mainVolLeft = data
		if data&0x8000 == 0 {
			s.currentMainVolLeft = int16(data * 2)
		}
	case 0x182:
		s.mainVolRight = data
		if data&0x8000 == 0 {
			s.currentMainVolRight = int16(data * 2)
		}
	case 0x184:
		s.reverbOutVolLeft = data
	case 0x186:
		s.reverbOutVolRight = data
	case 0x188:
		bitsLow16(&s.keyOnFlag, data)
		for i := 0; i < 16; i++ {
			if s.keyOnFlag&(1<<uint(i)) != 0 {
				s.endxFlag &^= 1 << uint(i)
				s.voices[i].keyOn()
			}
		}
	case 0x18A:
		bitsHigh16(&s.keyOnFlag, data)
		for i := 16; i < 24; i++ {
			if s.keyOnFlag&(1<<uint(i)) != 0 {
				s.endxFlag &^= 1 << uint(i)
				s.voices[i].keyOn()
			}
		}
	case 0x18C:
		bitsLow16(&s.keyOffFlag, data)
		for i := 0; i < 16; i++ {
			if s.keyOffFlag&(1<<uint(i)) != 0 {
				s.voices[i].keyOff()
			}
		}
	case 0x18E:
		bitsHigh16(&s.keyOffFlag, data)
		for i := 16; i < 24; i++ {
			if s.keyOffFlag&(1<<uint(i)) != 0 {
				s.voices[i].keyOff()
			}
		}
	case 0x190:
		bitsLow16(&s.pitchModFlag, data)
	case 0x192:
		bitsHigh16(&s.pitchModFlag, data)
	case 0x194:
		bitsLow16(&s.noiseModeFlag, data)
	case 0x196:
		bitsHigh16(&s.noiseModeFlag, data)
	case 0x198:
		bitsLow16(&s.reverbModeFlag, data)
	case 0x19A:
		bitsHigh16(&s.reverbModeFlag, data)
	case 0x19C:
		bitsLow16(&s.endxFlag, data)
	case 0x19E:
		bitsHigh16(&s.endxFlag, data)
	case 0x1A2:
		s.reverbWorkBase = data
	case 0x1A4:
		s.ram.irqAddress = uint32(data) * 4
	case 0x1A6:
		s.ramTransferAddress = data
		s.ramTransferCurrent = int(data) * 4
	case 0x1A8:
		s.writeFifo = append(s.writeFifo, data)
	case 0x1AA:
		s.control = uint32(data)
		const irq9Enable = 1 << 6
		if s.control&irq9Enable == 0 {
			const statIRQFlag = 1 << 6
			s.stat &^= statIRQFlag
		}
	case 0x1AC:
		s.ramTransferControl = uint32(data)
	case 0x1B0:
		s.cdVolLeft = data
	case 0x1B2:
		s.cdVolRight = data
	case 0x1B4:
		s.externalVolLeft = data
	case 0x1B6:
		s.externalVolRight = data
	case 0x1B8:
		s.currentMainVolLeft = int16(data)
	case 0x1BA:
		s.currentMainVolRight = int16(data)
	default:
		if offset >= 0x1C0 && offset <= 0x1FE {
			s.reverbConfig[(offset-0x1C0)/2] = data
		}
	}
}

func (s *SPU) Read32(offset uint32) uint32 {
	lo := uint32(s.Read16(offset))
	hi := uint32(s.Read16(offset + 2))
	return lo | (hi << 16)
}

func (s *SPU) Write32(offset uint32, data uint32) {
	s.Write16(offset, uint16(data))
	s.Write16(offset+2, uint16(data>>16))
}

func (s *SPU) Read8(offset uint32) uint8 {
	shift := (offset & 1) * 8
	return uint8(s.Read16(offset&^1) >> shift)
}

func (s *SPU) Write8(offset uint32, data uint8) {
	base := offset &^ 1
	cur := s.Read16(base)
	if offset&1 != 0 {
		cur = (cur & 0x00FF) | (uint16(data) << 8)
	} else {
		cur = (cur & 0xFF00) | uint16(data)
	}
	s.Write16(base, cur)
}
