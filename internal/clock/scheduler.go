// Package clock implements the master scheduler: CPU runs an instruction
// burst, DMA drains between bursts, then the cycles spent are broadcast
// to GPU/SPU/CD-ROM/timers/controller, generalizing teacher's
// MasterClock/step-function shape (internal/clock/scheduler.go in
// RetroCodeRamen-Nitro-Core-DX) to the spec §5 ordering: CPU → DMA →
// {GPU, SPU, CD-ROM, timers, controller}.
package clock

import (
	"psxemu/internal/controller"
	"psxemu/internal/cpu"
	"psxemu/internal/dma"
	"psxemu/internal/gpu"
	"psxemu/internal/irq"
	"psxemu/internal/spu"
	"psxemu/internal/timer"
)

// instructionBurst bounds how many instructions CPU.Clock runs before
// the scheduler re-checks DMA/device state, matching the "DMA must run
// between CPU instructions" requirement without degrading to a
// one-instruction-at-a-time loop.
const instructionBurst = 32

// CDROMDevice is the subset of *cdrom.CDROM the scheduler drives; kept
// as an interface (rather than importing internal/cdrom directly) so
// internal/clock only depends on the packages it truly needs, following
// the dma package's own RAM/MDECPorts/GPUPorts/etc. interface-seam style.
type CDROMDevice interface {
	Clock(cpuCycles uint32, spu *spu.SPU)
}

// MasterClock drives the CPU/DMA/GPU/SPU/CD-ROM/timers/controller
// cooperative scheduling loop for one video frame at a time.
type MasterClock struct {
	CPU        *cpu.CPU
	DMA        *dma.Controller
	DMABus     *dma.Bus
	GPU        *gpu.GPU
	SPU        *spu.SPU
	CDROM      CDROMDevice
	Timers     *timer.Bank
	Controller *controller.ControllerAndMemoryCard
	IRQ        *irq.Controller
}

// RunFrame runs CPU/DMA/device cycles until the GPU crosses one VBlank
// boundary, matching spec §6's clock_frame() operation.
func (m *MasterClock) RunFrame() {
	wasInVBlank := m.GPU.InVBlank()
	for {
		m.runOneBurst()
		if m.GPU.InVBlank() && !wasInVBlank {
			return
		}
		wasInVBlank = m.GPU.InVBlank()
	}
}

// runOneBurst runs one CPU instruction burst, drains any DMA request it
// raised, and broadcasts the cycles spent to every other device.
func (m *MasterClock) runOneBurst() {
	m.CPU.COP0.SetInterruptPending(m.IRQ.Pending())

	cycles, reason := m.CPU.Clock(instructionBurst)

	for reason == cpu.StopDMARequest || m.DMA.NeedsToRun() {
		dmaCycles := m.DMA.Clock(m.DMABus)
		if dmaCycles == 0 {
			break
		}
		cycles += dmaCycles
		m.broadcastCycles(dmaCycles)
		m.CPU.COP0.SetInterruptPending(m.IRQ.Pending())
		if reason == cpu.StopDMARequest {
			reason = cpu.StopNone
		}
	}

	m.broadcastCycles(cycles)
}

// broadcastCycles feeds n CPU cycles to every cycle-driven device,
// matching spec §5's per-tick device order.
func (m *MasterClock) broadcastCycles(n uint32) {
	if n == 0 {
		return
	}

	dotClocks, hblank := m.GPU.Clock(n)
	m.SPU.Clock(n)
	m.CDROM.Clock(n, m.SPU)
	m.Controller.Clock(n)

	for _, src := range m.Timers.TickSystem(n) {
		m.IRQ.Raise(src)
	}
	for _, src := range m.Timers.TickDot(dotClocks) {
		m.IRQ.Raise(src)
	}
	if hblank {
		for _, src := range m.Timers.TickHBlank(1) {
			m.IRQ.Raise(src)
		}
	}
}
