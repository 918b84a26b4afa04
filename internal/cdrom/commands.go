package cdrom

import "psxemu/internal/spu"

// handleCommand runs one command to completion or advances its second
// stage, mirroring handle_command's match arms. Two-stage commands use
// commandState: -1 means "run first stage now", >=0 selects which
// second-stage response to send next tick.
func (c *CDROM) handleCommand(cmd uint8) {
	if c.commandState == -1 {
		switch cmd {
		case 0x01: // GetStat
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x02: // SetLoc
			for i := 0; i < 3 && len(c.paramFifo) > 0; i++ {
				v, _ := c.readNextParam()
				c.setLocParams[i] = fromBCD(v)
			}
			c.haveSetLoc = true
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x06, 0x1B: // ReadN, ReadS
			c.doSeek()
			c.action = actionRead
			if c.mode&modeDoubleSpeed != 0 {
				c.readDelay = readPlayDelay / 2
			} else {
				c.readDelay = readPlayDelay
			}
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x08, 0x09, 0x0A, 0x15, 0x16, 0x1A, 0x1E:
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.commandState = 0

		case 0x0B: // Mute
			c.cdMute = true
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x0C: // Demute
			c.cdMute = false
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x0D: // Setfilter
			f, _ := c.readNextParam()
			ch, _ := c.readNextParam()
			c.filterFile, c.filterChannel = f, ch
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x0E: // Setmode
			v, _ := c.readNextParam()
			c.mode = v
			c.setResponse(c.status)
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x11: // GetLocP
			c.handleGetLocP()
			c.resetCommand()

		case 0x13: // GetTN
			c.setResponseSlice([]uint8{c.status, toBCD(1), toBCD(1)})
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x14: // GetTD
			c.setResponseSlice([]uint8{c.status, toBCD(0), toBCD(0)})
			c.requestInterrupt(3)
			c.resetCommand()

		case 0x19: // Test
			c.executeTest()
			c.resetCommand()

		default:
			c.setResponseSlice([]uint8{c.status | statError, 0x40})
			c.requestInterrupt(5)
			c.resetCommand()
		}
		return
	}

	// second stage for the commands that entered it above.
	switch cmd {
	case 0x08: // Stop
		c.stopMotor()
		c.action = actionNone
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()

	case 0x09: // Pause
		c.action = actionNone
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()

	case 0x0A: // Init
		c.startMotor()
		c.resetErrorBits()
		c.mode = 0
		c.action = actionNone
		c.paramFifo = nil
		c.cursorSector = 0
		c.haveSetLoc = false
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()

	case 0x15: // SeekL
		c.doSeek()
		c.action = actionNone
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()

	case 0x16: // SeekP
		c.doSeek()
		c.action = actionNone
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()

	case 0x1A: // GetID
		if c.diskData == nil {
			c.setResponseSlice([]uint8{0x08, 0x40, 0, 0, 0, 0, 0, 0})
			c.requestInterrupt(5)
		} else {
			c.setResponseSlice([]uint8{0x02, 0x00, 0x20, 0x00, 'S', 'C', 'E', 'A'})
			c.requestInterrupt(2)
		}
		c.resetCommand()

	case 0x1E: // GetToc
		c.setResponse(c.status)
		c.requestInterrupt(2)
		c.resetCommand()
	}
}

func (c *CDROM) handleGetLocP() {
	trackMinute, trackSecond, trackSector := 0, 2, 0
	absSector := c.cursorSector
	absMinute := absSector/75/60 + trackMinute
	absSecond := (absSector/75)%60 + trackSecond
	absFrame := absSector%75 + trackSector
	c.setResponseSlice([]uint8{
		toBCD(1), toBCD(1),
		toBCD(uint8(trackMinute)), toBCD(uint8(trackSecond)), toBCD(uint8(trackSector)),
		toBCD(uint8(absMinute)), toBCD(uint8(absSecond)), toBCD(uint8(absFrame)),
	})
	c.requestInterrupt(3)
}

// executeTest handles the Test(0x19) subcommand byte: 0x20 reports a
// hardcoded hardware/firmware version, 0x04/0x05 are SCEx
// read-detection stubs that always report success.
func (c *CDROM) executeTest() {
	sub, ok := c.readNextParam()
	if !ok {
		c.setResponseSlice([]uint8{c.status | statError, 0x20})
		c.requestInterrupt(5)
		return
	}
	switch sub {
	case 0x20:
		c.setResponseSlice([]uint8{0x94, 0x09, 0x19, 0xC0})
		c.requestInterrupt(3)
	case 0x04, 0x05:
		c.setResponse(c.status)
		c.requestInterrupt(3)
	default:
		c.setResponseSlice([]uint8{c.status | statError, 0x10})
		c.requestInterrupt(5)
	}
}

const sectorSize = 2352
const sectorHeaderSize = 12 + 4 // sync + header
const sectorDataWhole = 0x924
const sectorDataNonWhole = 0x800

// handleReadingData delivers one sector on each read-delay tick: XA-
// ADPCM sectors go straight to the SPU input mixer, data sectors fill
// the data fifo for GetData DMA, matching handle_reading_data's
// three-way branch (including the documented buffer-overrun quirk
// where a filter mismatch is retried once before being treated as a
// silent skip).
func (c *CDROM) handleReadingData(spu *spu.SPU) {
	if c.action != actionRead {
		return
	}
	sector := c.readSectorRaw(c.cursorSector)
	c.cursorSector++
	if sector == nil {
		return
	}

	// bytes 12-15 header (min,sec,frame,mode), 16-19 subheader
	// (file,channel,submode,codinginfo), 20-23 subheader repeat, 24+ data.
	submode := sector[18]
	codingInfo := sector[19]
	isXA := submode&(1<<2) != 0 // audio bit
	realtime := submode&(1<<6) != 0

	if c.mode&modeXAADPCM != 0 && isXA && realtime {
		file := sector[16]
		channel := sector[17]
		filterOK := c.mode&modeXAFilter == 0 || (file == c.filterFile && channel == c.filterChannel)
		if filterOK {
			c.deliverADPCMToSPU(sector[24:], codingInfo, spu)
			return
		}
		if !c.secondAttempt {
			c.secondAttempt = true
			c.cursorSector--
			return
		}
		c.secondAttempt = false
		return
	}

	c.secondAttempt = false
	var data []uint8
	if c.mode&modeWholeSector != 0 {
		data = append([]uint8{}, sector[12:12+sectorDataWhole]...)
	} else {
		data = append([]uint8{}, sector[24:24+sectorDataNonWhole]...)
	}
	c.readDataBuf = data
	c.dataFifoIndex = 0
	c.fifoStatus |= fifoDataNotEmpty
	c.setResponse(c.status)
	c.requestInterrupt(1)
}

func (c *CDROM) readSectorRaw(sectorIndex int) []uint8 {
	offset := sectorIndex * sectorSize
	if offset < 0 || offset+sectorSize > len(c.diskData) {
		return nil
	}
	return c.diskData[offset : offset+sectorSize]
}

// deliverADPCMToSPU decodes one XA-ADPCM sector (18 portions of 128
// bytes, 8 blocks per portion for 4-bit samples or 4 for 8-bit) through
// the zigzag interpolators and pushes the resampled stereo stream into
// the SPU's CD audio input, per deliver_adpcm_to_spu.
func (c *CDROM) deliverADPCMToSPU(payload []uint8, codingInfo uint8, spu *spu.SPU) {
	stereo := codingInfo&codingStereo != 0
	sample8bit := codingInfo&codingBitsPerSample != 0
	rate18900 := codingInfo&codingSampleRate == 0

	blocksPerPortion := 8
	if sample8bit {
		blocksPerPortion = 4
	}

	var leftOut, rightOut []int16

	for portion := 0; portion < 18; portion++ {
		base := portion * 128
		if base+128 > len(payload) {
			break
		}
		chunk := payload[base : base+128]
		for block := 0; block < blocksPerPortion; block++ {
			var samples [28]int16
			if !stereo {
				c.decLeft.decodeBlock(chunk, block, sample8bit, &samples)
				c.interpLeft.outputSamples(samples[:], rate18900, &leftOut)
				c.interpRight.outputSamples(samples[:], rate18900, &rightOut)
			} else if block%2 == 0 {
				c.decLeft.decodeBlock(chunk, block, sample8bit, &samples)
				c.interpLeft.outputSamples(samples[:], rate18900, &leftOut)
			} else {
				c.decRight.decodeBlock(chunk, block, sample8bit, &samples)
				c.interpRight.outputSamples(samples[:], rate18900, &rightOut)
			}
		}
	}

	if c.adpcmMute {
		for i := range leftOut {
			leftOut[i] = 0
		}
		for i := range rightOut {
			rightOut[i] = 0
		}
	}

	n := len(leftOut)
	if len(rightOut) < n {
		n = len(rightOut)
	}
	if n == 0 {
		return
	}
	spu.AddCDAudio(leftOut[:n], rightOut[:n])
}
