package memory

import (
	"encoding/binary"
	"errors"
	"os"
)

// ErrCouldNotLoadBios is returned to the host when the BIOS image cannot be
// read (spec §7).
var ErrCouldNotLoadBios = errors.New("could not load bios")

// Bios is the 512KiB little-endian BIOS ROM image with two compile-time
// patches applied on load, grounded bit-for-bit on
// original_source/trapezoid-core/src/memory.rs's apply_patches.
type Bios struct {
	data [biosSize]uint8
}

// LoadBios reads a 512KiB BIOS image from disk and applies the TTY and
// controller-cursor-blink patches when the expected original bytes match.
func LoadBios(path string) (*Bios, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrCouldNotLoadBios
	}
	b := &Bios{}
	n := copy(b.data[:], raw)
	if n < len(b.data) {
		return nil, ErrCouldNotLoadBios
	}
	b.applyPatches()
	return b, nil
}

func (b *Bios) readWord(addr uint32) uint32 {
	i := addr & 0xFFFFF
	return binary.LittleEndian.Uint32(b.data[i : i+4])
}

func (b *Bios) writeWord(addr, value uint32) {
	i := addr & 0xFFFFF
	binary.LittleEndian.PutUint32(b.data[i:i+4], value)
}

// applyPatches enables the TTY driver and fixes the controller-cursor
// blink race, each only when the untouched BIOS bytes match exactly
// (spec §6).
func (b *Bios) applyPatches() {
	if b.readWord(0x6F0C) == 0x3C01A001 && b.readWord(0x6F14) == 0xAC20B9B0 {
		b.writeWord(0x6F0C, 0x34010001)
		b.writeWord(0x6F14, 0xAF81A9C0)
	}

	if b.readWord(0x14330) == 0x92200000 &&
		b.readWord(0x14334) == 0x10000047 &&
		b.readWord(0x14338) == 0x8FAE0040 {
		b.writeWord(0x14330, 0x00000000)
		b.writeWord(0x14334, 0x10000006)
		b.writeWord(0x14338, 0x00000000)
	}
}

func (b *Bios) Read(offset uint32, width int) uint32 {
	switch width {
	case Byte:
		return uint32(b.data[offset])
	case Half:
		return uint32(b.data[offset]) | uint32(b.data[offset+1])<<8
	default:
		return uint32(b.data[offset]) | uint32(b.data[offset+1])<<8 |
			uint32(b.data[offset+2])<<16 | uint32(b.data[offset+3])<<24
	}
}
