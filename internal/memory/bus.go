// Package memory implements the PSX address decoder: main RAM, scratchpad,
// BIOS ROM, and the dense device-register range, behind one Bus.
package memory

import (
	"fmt"

	"psxemu/internal/debug"
)

// ErrorKind classifies a bus-level fault (spec §7).
type ErrorKind int

const (
	ErrUnalignedAccess ErrorKind = iota
	ErrUnmappedRegion
	ErrRegionWriteOnly
	ErrRegionReadOnly
	ErrDeviceNotReady
	ErrInvalidRegisterValue
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnalignedAccess:
		return "UnalignedAccess"
	case ErrUnmappedRegion:
		return "UnmappedRegion"
	case ErrRegionWriteOnly:
		return "RegionWriteOnly"
	case ErrRegionReadOnly:
		return "RegionReadOnly"
	case ErrDeviceNotReady:
		return "DeviceNotReady"
	case ErrInvalidRegisterValue:
		return "InvalidRegisterValue"
	default:
		return "Unknown"
	}
}

// BusError carries the offending address and access width alongside its kind.
type BusError struct {
	Kind    ErrorKind
	Address uint32
	Width   int
}

func (e *BusError) Error() string {
	return fmt.Sprintf("%s at 0x%08X (width %d)", e.Kind, e.Address, e.Width)
}

// Width constants for load/store helpers.
const (
	Byte = 8
	Half = 16
	Word = 32
)

// IOHandler is implemented by every bus-mapped device register block.
type IOHandler interface {
	Read8(offset uint32) uint8
	Write8(offset uint32, value uint8)
	Read16(offset uint32) uint16
	Write16(offset uint32, value uint16)
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// region describes one entry of the dense device-register map.
type region struct {
	name    string
	base    uint32
	size    uint32
	handler IOHandler
}

// Bus routes byte/half/word accesses across the folded 29-bit physical
// address space, mirroring teacher's bank-routed memory.Bus but generalised
// to a range-matched device table instead of a fixed bank switch.
type Bus struct {
	RAM        *MainRAM
	Scratchpad *Scratchpad
	Bios       *Bios

	regions []region

	// CacheControl is the KSEG2 0xFFFE0130 register; it keeps its full
	// address and is never folded (spec §3).
	CacheControl uint32

	// IsolateCache mirrors COP0.SR.IsC; while set, loads from physical
	// addresses below 0x1000 read zero and stores there are swallowed
	// (spec §3, §8).
	IsolateCache bool

	logger *debug.Logger
}

// NewBus wires RAM, scratchpad and BIOS; devices register themselves via
// Map after construction (the DmaBus/emulator wiring step).
func NewBus(ram *MainRAM, scratch *Scratchpad, bios *Bios, logger *debug.Logger) *Bus {
	return &Bus{RAM: ram, Scratchpad: scratch, Bios: bios, logger: logger}
}

// Map registers a device's register block at a physical base address.
func (b *Bus) Map(name string, base, size uint32, h IOHandler) {
	b.regions = append(b.regions, region{name: name, base: base, size: size, handler: h})
}

// Translate folds KUSEG/KSEG0/KSEG1 mirrors to a 29-bit physical address.
// KSEG2 is only ever the cache-control register and is returned unfolded.
func Translate(addr uint32) (phys uint32, isKseg2 bool) {
	switch addr >> 29 {
	case 0b000, 0b100, 0b101: // KUSEG, KSEG0, KSEG1 top-3-bit groups (0,4,5 << 29)
		return addr & 0x1FFF_FFFF, false
	default:
		return addr, true
	}
}

func checkAlign(addr uint32, width int) error {
	switch width {
	case Half:
		if addr&1 != 0 {
			return &BusError{Kind: ErrUnalignedAccess, Address: addr, Width: width}
		}
	case Word:
		if addr&3 != 0 {
			return &BusError{Kind: ErrUnalignedAccess, Address: addr, Width: width}
		}
	}
	return nil
}

const (
	mainRAMSize  = 2 * 1024 * 1024
	mainRAMMask  = mainRAMSize - 1 // folds the 8MiB window's four mirrors into the 2MiB backing array
	scratchBase  = 0x1F80_0000
	scratchSize  = 1024
	biosBase     = 0x1FC0_0000
	biosSize     = 512 * 1024
	cacheCtlAddr = 0xFFFE_0130
)

// Read reads width bits from addr, returning 0 on any non-alignment fault
// per the permissive bus-error policy of spec §7 (errors are logged, not
// propagated, except alignment which the CPU turns into AddressError*).
func (b *Bus) Read(addr uint32, width int) (uint32, error) {
	if err := checkAlign(addr, width); err != nil {
		return 0, err
	}

	if addr == cacheCtlAddr {
		return b.CacheControl, nil
	}

	phys, isKseg2 := Translate(addr)
	if isKseg2 {
		b.logBusFault(ErrUnmappedRegion, addr, width)
		return 0, nil
	}

	if b.IsolateCache && phys < 0x1000 {
		return 0, nil
	}

	switch {
	case phys < mainRAMSize*4:
		return b.RAM.Read(phys&mainRAMMask, width), nil
	case phys >= scratchBase && phys < scratchBase+scratchSize:
		if addr&0xE000_0000 == 0xA000_0000 {
			// Scratchpad is inaccessible through the uncached KSEG1 mirror.
			b.logBusFault(ErrUnmappedRegion, addr, width)
			return 0, nil
		}
		return b.Scratchpad.Read(phys-scratchBase, width), nil
	case phys >= biosBase && phys < biosBase+biosSize:
		return b.Bios.Read((phys-biosBase)&(biosSize-1), width), nil
	default:
		for _, r := range b.regions {
			if phys >= r.base && phys < r.base+r.size {
				off := phys - r.base
				switch width {
				case Byte:
					return uint32(r.handler.Read8(off)), nil
				case Half:
					return uint32(r.handler.Read16(off)), nil
				default:
					return r.handler.Read32(off), nil
				}
			}
		}
		b.logBusFault(ErrUnmappedRegion, addr, width)
		return 0, nil
	}
}

// Write stores width bits of value at addr; errors are logged and swallowed
// per spec §7's permissive policy (alignment excepted, see Read).
func (b *Bus) Write(addr uint32, value uint32, width int) error {
	if err := checkAlign(addr, width); err != nil {
		return err
	}

	if addr == cacheCtlAddr {
		b.CacheControl = value
		return nil
	}

	phys, isKseg2 := Translate(addr)
	if isKseg2 {
		b.logBusFault(ErrUnmappedRegion, addr, width)
		return nil
	}

	if b.IsolateCache && phys < 0x1000 {
		return nil
	}

	switch {
	case phys < mainRAMSize*4:
		b.RAM.Write(phys&mainRAMMask, value, width)
		return nil
	case phys >= scratchBase && phys < scratchBase+scratchSize:
		if addr&0xE000_0000 == 0xA000_0000 {
			b.logBusFault(ErrUnmappedRegion, addr, width)
			return nil
		}
		b.Scratchpad.Write(phys-scratchBase, value, width)
		return nil
	case phys >= biosBase && phys < biosBase+biosSize:
		b.logBusFault(ErrRegionReadOnly, addr, width)
		return nil
	default:
		for _, r := range b.regions {
			if phys >= r.base && phys < r.base+r.size {
				off := phys - r.base
				switch width {
				case Byte:
					r.handler.Write8(off, uint8(value))
				case Half:
					r.handler.Write16(off, uint16(value))
				default:
					r.handler.Write32(off, value)
				}
				return nil
			}
		}
		b.logBusFault(ErrUnmappedRegion, addr, width)
		return nil
	}
}

func (b *Bus) logBusFault(kind ErrorKind, addr uint32, width int) {
	if b.logger == nil {
		return
	}
	b.logger.LogMemory(debug.LogLevelDebug, (&BusError{Kind: kind, Address: addr, Width: width}).Error(), nil)
}

// Read8/Read16/Read32/Write8/Write16/Write32 are thin width-fixed wrappers
// used by devices and the CPU's load/store instruction handlers.
func (b *Bus) Read8(addr uint32) (uint8, error) {
	v, err := b.Read(addr, Byte)
	return uint8(v), err
}
func (b *Bus) Read16(addr uint32) (uint16, error) {
	v, err := b.Read(addr, Half)
	return uint16(v), err
}
func (b *Bus) Read32(addr uint32) (uint32, error) {
	return b.Read(addr, Word)
}
func (b *Bus) Write8(addr uint32, v uint8) error {
	return b.Write(addr, uint32(v), Byte)
}
func (b *Bus) Write16(addr uint32, v uint16) error {
	return b.Write(addr, uint32(v), Half)
}
func (b *Bus) Write32(addr uint32, v uint32) error {
	return b.Write(addr, v, Word)
}

// SetIsolateCache mirrors COP0.SR.IsC into the bus; the CPU calls this
// whenever an MTC0 write to SR changes the bit (spec §3, §8).
func (b *Bus) SetIsolateCache(isolate bool) {
	b.IsolateCache = isolate
}
