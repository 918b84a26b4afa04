package controller

const memoryCardSize = 0x400 * 128 // 128 KiB, 1024 frames of 128 bytes each

// MemoryCard models a 128KiB memory card: id bytes 0x5A, 0x5D, a
// read/write/id handshake carrying a 128-byte frame plus an XOR
// checksum, backed by a flat byte slice the host can persist.
type MemoryCard struct {
	data [memoryCardSize]uint8

	stage       int
	addr        uint16
	checksum    uint8
	writeGood   bool
	readCommand uint8 // 'R' or 'W', selects the stage table
}

func newMemoryCard() *MemoryCard {
	mc := &MemoryCard{}
	mc.data[0] = 'M'
	mc.data[1] = 'C'
	mc.data[0x7F] = 0x0E
	return mc
}

// loadFrom replaces the card image with externally-supplied data
// (e.g. a saved memcardN.mcd host file), ignoring a short or
// mis-sized buffer.
func (mc *MemoryCard) loadFrom(data []uint8) {
	if len(data) != memoryCardSize {
		return
	}
	copy(mc.data[:], data)
}

func (mc *MemoryCard) startAccess(firstByte uint8) (uint8, bool) {
	if firstByte != 0x81 {
		return 0xFF, false
	}
	mc.stage = 0
	return 0xFF, true
}

// exchangeByte drives the memory-card access protocol: Command (R/W)
// -> id1 -> id2 -> addressMsb -> addressLsb -> confirmMsb -> confirmLsb
// -> 128 data bytes -> checksum -> end byte.
func (mc *MemoryCard) exchangeByte(state int, in uint8) (uint8, bool) {
	switch state {
	case 0:
		mc.readCommand = in
		return 0x5A, true
	case 1:
		return 0x5D, true
	case 2:
		if mc.readCommand == 'S' {
			return mc.exchangeID(in)
		}
		return 0x00, true
	case 3:
		mc.addr = uint16(in) << 8
		return 0x00, true
	case 4:
		mc.addr |= uint16(in)
		return mc.readCommand, true
	case 5:
		return uint8(mc.addr >> 8), true
	case 6:
		return uint8(mc.addr), true
	}

	dataIdx := state - 7
	blockOffset := int(mc.addr&0x3FF) * 128

	if mc.readCommand == 'W' {
		return mc.exchangeWriteData(dataIdx, blockOffset, in)
	}
	return mc.exchangeReadData(dataIdx, blockOffset, in)
}

func (mc *MemoryCard) exchangeID(in uint8) (uint8, bool) {
	return 0xFF, true
}

func (mc *MemoryCard) exchangeReadData(dataIdx, blockOffset int, in uint8) (uint8, bool) {
	if dataIdx < 128 {
		b := mc.data[blockOffset+dataIdx]
		if dataIdx == 0 {
			mc.checksum = uint8(mc.addr>>8) ^ uint8(mc.addr)
		}
		mc.checksum ^= b
		return b, true
	}
	if dataIdx == 128 {
		return mc.checksum, true
	}
	return 'G', false
}

func (mc *MemoryCard) exchangeWriteData(dataIdx, blockOffset int, in uint8) (uint8, bool) {
	if dataIdx < 128 {
		if dataIdx == 0 {
			mc.checksum = uint8(mc.addr>>8) ^ uint8(mc.addr)
			mc.writeGood = true
		}
		mc.data[blockOffset+dataIdx] = in
		mc.checksum ^= in
		return 0x00, true
	}
	if dataIdx == 128 {
		if in != mc.checksum {
			mc.writeGood = false
		}
		return 0x00, true
	}
	if mc.writeGood {
		return 'G', false
	}
	return 0xFF, false
}
