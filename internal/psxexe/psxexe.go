// Package psxexe implements the optional PSX-EXE side-loader (spec §6):
// header "PS-X EXE", 8 zero bytes, then initial PC, initial GP, load
// destination, file size, data section start/size, bss start/size,
// initial SP+FP, with the payload starting at file offset 0x800. No
// teacher or pack precedent covers this format, so the header layout is
// grounded directly on the spec text.
package psxexe

import (
	"encoding/binary"
	"fmt"
)

const (
	headerMagic   = "PS-X EXE"
	headerSize    = 0x800
	payloadOffset = 0x800
)

// Exe is a parsed PSX-EXE: the header fields the loader needs to seed
// CPU/GP register state plus load the payload into main RAM.
type Exe struct {
	InitialPC   uint32
	InitialGP   uint32
	LoadDest    uint32
	FileSize    uint32
	DataStart   uint32
	DataSize    uint32
	BSSStart    uint32
	BSSSize     uint32
	InitialSP   uint32
	InitialFP   uint32
	Payload     []byte
}

// Parse decodes raw as a PSX-EXE, validating the 8-byte magic and the
// minimum header length.
func Parse(raw []byte) (*Exe, error) {
	if len(raw) < headerSize {
		return nil, fmt.Errorf("psxexe: file too short for header (%d bytes)", len(raw))
	}
	if string(raw[0:8]) != headerMagic {
		return nil, fmt.Errorf("psxexe: bad magic %q", raw[0:8])
	}
	// raw[8:16] is 8 zero bytes, unchecked.

	e := &Exe{
		InitialPC: binary.LittleEndian.Uint32(raw[0x10:]),
		InitialGP: binary.LittleEndian.Uint32(raw[0x14:]),
		LoadDest:  binary.LittleEndian.Uint32(raw[0x18:]),
		FileSize:  binary.LittleEndian.Uint32(raw[0x1C:]),
		DataStart: binary.LittleEndian.Uint32(raw[0x28:]),
		DataSize:  binary.LittleEndian.Uint32(raw[0x2C:]),
		BSSStart:  binary.LittleEndian.Uint32(raw[0x30:]),
		BSSSize:   binary.LittleEndian.Uint32(raw[0x34:]),
		InitialSP: binary.LittleEndian.Uint32(raw[0x38:]),
		InitialFP: binary.LittleEndian.Uint32(raw[0x3C:]),
	}

	end := payloadOffset + int(e.FileSize)
	if end > len(raw) {
		end = len(raw)
	}
	e.Payload = raw[payloadOffset:end]
	return e, nil
}

// RAMWriter is the subset of memory.MainRAM the loader needs to place
// the payload and clear bss.
type RAMWriter interface {
	Write(offset uint32, value uint32, width int)
}

// LoadInto copies the EXE payload into RAM at LoadDest (relative to
// the start of main RAM, i.e. with the KUSEG/KSEG0/1 segment bits
// already stripped by the caller) and zeroes the BSS range.
func (e *Exe) LoadInto(ram RAMWriter) {
	for i := 0; i+3 < len(e.Payload); i += 4 {
		word := binary.LittleEndian.Uint32(e.Payload[i:])
		ram.Write(e.LoadDest+uint32(i), word, 32)
	}
	for i := uint32(0); i+3 < e.BSSSize; i += 4 {
		ram.Write(e.BSSStart+i, 0, 32)
	}
}
