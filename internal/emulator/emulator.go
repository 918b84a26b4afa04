// Package emulator wires every device into one struct and exposes the
// spec §6 Host API (new/reset/clock_frame/take_audio_buffer/blit_front/
// change_controller_key/change_shell_open/bus_read_u*/bus_write_*),
// grounded on teacher's internal/emulator/emulator.go (single struct
// owning every component plus a RunFrame/Reset/GetAudioSamples-shaped
// API), mapped onto the PSX device set instead of the SNES-like
// CPU/PPU/APU/cartridge machine it was built for.
package emulator

import (
	"errors"
	"fmt"

	"psxemu/internal/clock"
	"psxemu/internal/controller"
	"psxemu/internal/cpu"
	"psxemu/internal/cue"
	"psxemu/internal/cdrom"
	"psxemu/internal/debug"
	"psxemu/internal/dma"
	"psxemu/internal/gpu"
	"psxemu/internal/irq"
	"psxemu/internal/mdec"
	"psxemu/internal/memory"
	"psxemu/internal/psxexe"
	"psxemu/internal/spu"
	"psxemu/internal/timer"
)

// ErrCouldNotLoadDisk is returned to the host when the CUE/BIN pair
// cannot be parsed or read (spec §7).
var ErrCouldNotLoadDisk = errors.New("could not load disk")

// Psx is the top-level emulated machine: every device plus the
// scheduler that ticks them in the spec §5 order.
type Psx struct {
	Bus   *memory.Bus
	RAM   *memory.MainRAM
	Bios  *memory.Bios

	CPU        *cpu.CPU
	IRQ        *irq.Controller
	Timers     *timer.Bank
	DMA        *dma.Controller
	GPU        *gpu.GPU
	SPU        *spu.SPU
	CDROM      *cdrom.CDROM
	MDEC       *mdec.MDEC
	Controller *controller.ControllerAndMemoryCard

	clock *clock.MasterClock

	disk *cue.Disc

	Logger *debug.Logger
}

// ramAdapter satisfies dma.RAM over memory.MainRAM's width-parameterized
// Read/Write, since the DMA package wants fixed-width ReadWord/WriteWord
// accessors (spec §4.5's DmaBus design note).
type ramAdapter struct{ ram *memory.MainRAM }

func (r ramAdapter) ReadWord(addr uint32) uint32        { return r.ram.Read(addr, memory.Word) }
func (r ramAdapter) WriteWord(addr uint32, v uint32)    { r.ram.Write(addr, v, memory.Word) }

// New constructs a fully-wired Psx from a BIOS image path and an
// optional CUE sheet path, matching spec §6's `new(bios, disk?, ...)`.
func New(biosPath string, diskPath string, logger *debug.Logger) (*Psx, error) {
	bios, err := memory.LoadBios(biosPath)
	if err != nil {
		return nil, err
	}

	p := &Psx{Logger: logger}
	p.Bios = bios
	p.RAM = memory.NewMainRAM()
	scratch := memory.NewScratchpad()
	p.Bus = memory.NewBus(p.RAM, scratch, p.Bios, logger)

	p.IRQ = irq.New(logger)
	p.Timers = timer.NewBank()
	p.DMA = dma.New(p.IRQ, logger)
	p.GPU = gpu.New(p.IRQ, logger)
	p.SPU = spu.New(p.IRQ, logger)
	p.CDROM = cdrom.New(p.IRQ, logger)
	p.MDEC = mdec.New(logger)
	p.Controller = controller.New(p.IRQ)

	p.Bus.Map("irq", 0x1F80_1070, 8, p.IRQ)
	p.Bus.Map("controller", 0x1F80_1040, 0x10, p.Controller)
	p.Bus.Map("dma", 0x1F80_1000, 0x100, p.DMA)
	p.Bus.Map("timers", 0x1F80_1100, 0x30, p.Timers)
	p.Bus.Map("cdrom", 0x1F80_1800, 4, p.CDROM)
	p.Bus.Map("gpu", 0x1F80_1810, 8, p.GPU)
	p.Bus.Map("mdec", 0x1F80_1820, 8, p.MDEC)
	p.Bus.Map("spu", 0x1F80_1C00, 0x280, p.SPU)

	p.CPU = cpu.NewCPU(p.Bus, logger)

	dmaBus := &dma.Bus{
		RAM:   ramAdapter{p.RAM},
		MDEC:  p.MDEC,
		GPU:   p.GPU,
		CDROM: p.CDROM,
		SPU:   p.SPU,
	}

	p.clock = &clock.MasterClock{
		CPU:        p.CPU,
		DMA:        p.DMA,
		DMABus:     dmaBus,
		GPU:        p.GPU,
		SPU:        p.SPU,
		CDROM:      p.CDROM,
		Timers:     p.Timers,
		Controller: p.Controller,
		IRQ:        p.IRQ,
	}

	if diskPath != "" {
		if err := p.loadDisk(diskPath); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Psx) loadDisk(cuePath string) error {
	disc, err := cue.Load(cuePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCouldNotLoadDisk, err)
	}
	p.disk = disc
	p.CDROM.SetDisk(disc.Data)
	return nil
}

// Reset reconstructs every component to its default state while
// preserving the mounted disk (spec §4.8's "Cancellation / timeouts").
func (p *Psx) Reset() {
	p.IRQ.Reset()
	p.Timers.Reset()
	p.DMA.Reset()
	p.GPU.Reset()
	p.SPU.Reset()
	p.CDROM.Reset()
	p.MDEC.Reset()
	p.Controller.Reset()
	p.CPU.Reset()

	if p.disk != nil {
		p.CDROM.SetDisk(p.disk.Data)
	}
}

// ClockFrame runs one video frame worth of CPU instructions (spec §6
// clock_frame()).
func (p *Psx) ClockFrame() {
	p.clock.RunFrame()
}

// TakeAudioBuffer drains the accumulated 44.1kHz interleaved stereo
// buffer as float32 samples in [-1, 1] (spec §6 take_audio_buffer()).
func (p *Psx) TakeAudioBuffer() []float32 {
	raw := p.SPU.TakeAudioBuffer()
	out := make([]float32, len(raw))
	for i, s := range raw {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// BlitFront returns the current display area as straight RGBA8 plus its
// width/height (spec §6 blit_front(target_image)).
func (p *Psx) BlitFront() (pixels []byte, width, height uint32) {
	return p.GPU.DisplayFrame()
}

// ChangeControllerKey updates the digital pad's pressed-mask for key
// (spec §6 change_controller_key(key, pressed)).
func (p *Psx) ChangeControllerKey(key controller.DigitalControllerKey, pressed bool) {
	p.Controller.ChangeControllerKeyState(key, pressed)
}

// ChangeShellOpen toggles the CD-ROM drive's shell-open sense line
// (spec §6 change_shell_open(bool)).
func (p *Psx) ChangeShellOpen(open bool) {
	p.CDROM.SetShellOpen(open)
}

// BusReadU8/BusReadU16/BusReadU32/BusWriteU8/BusWriteU16/BusWriteU32
// expose raw bus access for debugging (spec §6 bus_read_u*/bus_write_*).
func (p *Psx) BusReadU8(addr uint32) (uint8, error)   { return p.Bus.Read8(addr) }
func (p *Psx) BusReadU16(addr uint32) (uint16, error) { return p.Bus.Read16(addr) }
func (p *Psx) BusReadU32(addr uint32) (uint32, error) { return p.Bus.Read32(addr) }
func (p *Psx) BusWriteU8(addr uint32, v uint8) error   { return p.Bus.Write8(addr, v) }
func (p *Psx) BusWriteU16(addr uint32, v uint16) error { return p.Bus.Write16(addr, v) }
func (p *Psx) BusWriteU32(addr uint32, v uint32) error { return p.Bus.Write32(addr, v) }

// LoadEXE side-loads a PSX-EXE into RAM and redirects the CPU to its
// entry point, bypassing the BIOS boot sequence (spec §6, the optional
// PSX-EXE loader).
func (p *Psx) LoadEXE(raw []byte) error {
	exe, err := psxexe.Parse(raw)
	if err != nil {
		return err
	}
	// LoadInto takes offsets into main RAM: strip the segment/mirror bits.
	exe.LoadDest &= 0x1F_FFFF
	exe.BSSStart &= 0x1F_FFFF
	exe.LoadInto(p.RAM)
	p.CPU.PC = exe.InitialPC
	p.CPU.GPR[28] = exe.InitialGP // $gp
	if exe.InitialSP != 0 {
		p.CPU.GPR[29] = exe.InitialSP // $sp
		p.CPU.GPR[30] = exe.InitialSP // $fp
	}
	return nil
}

// memCardSlotCount mirrors the two physical controller ports, each with
// its own memory-card slot (spec §6's memcard<slot>.mcd).
const memCardSlotCount = 2

// LoadMemoryCard installs a previously-saved memcardN.mcd image into
// slot (0 or 1).
func (p *Psx) LoadMemoryCard(slot int, data []byte) {
	if slot < 0 || slot >= memCardSlotCount {
		return
	}
	p.Controller.SetCardBackingStore(slot, data)
}

// TakeMemoryCard returns the current 128KiB image for slot, for the
// host shell to persist back to memcardN.mcd.
func (p *Psx) TakeMemoryCard(slot int) []byte {
	if slot < 0 || slot >= memCardSlotCount {
		return nil
	}
	return p.Controller.TakeCardBackingStore(slot)
}
