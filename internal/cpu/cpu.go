// Package cpu implements the R3000A integer pipeline and its COP0 system
// control coprocessor (spec §4.2). Modelled per-instruction rather than
// per-stage, following teacher's single-struct, method-dispatch CPU shape
// (internal/cpu/cpu.go in RetroCodeRamen-Nitro-Core-DX) generalised from an
// 8-register banked machine to the 32-register MIPS file.
package cpu

import (
	"psxemu/internal/debug"
	"psxemu/internal/gte"
)

// Bus is the subset of memory.Bus the CPU needs; kept as an interface so
// the cpu package does not import memory (emulator wires the concrete type).
type Bus interface {
	Read8(addr uint32) (uint8, error)
	Read16(addr uint32) (uint16, error)
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
	SetIsolateCache(bool)
}

// pendingLoad models the load-delay slot: a scheduled (register, value)
// write that commits after the *next* instruction reads its operands
// (spec §3).
type pendingLoad struct {
	reg   uint32
	value uint32
	valid bool
}

// StopReason explains why Clock returned control to the scheduler early.
type StopReason int

const (
	StopNone StopReason = iota
	StopMaxInstructions
	StopBreakpoint
	StopDMARequest
)

// CPU is the R3000A integer core plus its COP0 and COP2 (GTE) coprocessors.
type CPU struct {
	GPR [32]uint32
	PC  uint32
	HI  uint32
	LO  uint32

	// nextPC is the address that will be fetched after the instruction
	// currently at PC; branches/jumps overwrite it with their target, but
	// the instruction physically following them (already queued in PC)
	// executes first — the branch-delay slot (spec §3).
	nextPC uint32

	// inBranchDelay is true while the instruction about to be fetched at
	// PC is itself sitting in a branch-delay slot; set by the branch/jump
	// that precedes it, consumed (and cleared) at the top of the next Step.
	inBranchDelay bool

	// load is committed after the instruction following the one that
	// scheduled it reads its operands (spec §3).
	load        pendingLoad
	loadPending pendingLoad

	COP0 *COP0
	GTE  *gte.GTE

	Bus    Bus
	Logger *debug.Logger
	Dbg    *debug.Debugger

	Cycles uint64

	// dmaRequested is set by device register writes that start a DMA
	// transfer; the scheduler must service DMA before the next memory
	// access (spec §4.2 step 6c, §5).
	dmaRequested bool
}

// NewCPU creates a CPU wired to bus, reset to the BIOS entry point.
func NewCPU(bus Bus, logger *debug.Logger) *CPU {
	c := &CPU{
		Bus:    bus,
		Logger: logger,
		COP0:   NewCOP0(),
		GTE:    gte.New(),
	}
	c.Reset()
	return c
}

const resetVector = 0xBFC0_0000

// Reset restores the CPU to its post-reset state: PC at the BIOS reset
// vector, SR.BEV set (boot exception vectors), caches not isolated.
func (c *CPU) Reset() {
	c.GPR = [32]uint32{}
	c.PC = resetVector
	c.nextPC = resetVector + 4
	c.inBranchDelay = false
	c.HI, c.LO = 0, 0
	c.load = pendingLoad{}
	c.loadPending = pendingLoad{}
	c.COP0.Reset()
	c.GTE.Reset()
	c.Cycles = 0
	c.dmaRequested = false
}

// RequestDMA is called by device register writes that start a DMA transfer;
// the scheduler checks this after each instruction (spec §5: "DMA must be
// run between CPU instructions").
func (c *CPU) RequestDMA() { c.dmaRequested = true }

// TakeDMARequest clears and returns the pending DMA-request flag.
func (c *CPU) TakeDMARequest() bool {
	v := c.dmaRequested
	c.dmaRequested = false
	return v
}

// getReg reads a GPR.
func (c *CPU) getReg(r uint32) uint32 {
	return c.GPR[r]
}

// setReg writes a GPR; writes to R0 are silently discarded (spec §3).
func (c *CPU) setReg(r, v uint32) {
	if r == 0 {
		return
	}
	c.GPR[r] = v
	// A direct write during the delay slot cancels an in-flight load-delay
	// targeting the same register (spec §3).
	if c.load.valid && c.load.reg == r {
		c.load.valid = false
	}
}

// scheduleLoad queues a load-delay slot write; it is committed by
// commitPendingLoad after the following instruction has read its operand
// registers.
func (c *CPU) scheduleLoad(r, v uint32) {
	if r == 0 {
		c.loadPending = pendingLoad{}
		return
	}
	c.loadPending = pendingLoad{reg: r, value: v, valid: true}
}

// pendingLoadValue returns the value an in-flight (not yet committed) load
// would produce for r, letting lwl/lwr merge against it (spec §4.2).
func (c *CPU) pendingLoadValue(r uint32) (uint32, bool) {
	if c.load.valid && c.load.reg == r {
		return c.load.value, true
	}
	return 0, false
}

// commitPendingLoad applies the load scheduled by the *previous*
// instruction, after the current instruction has already read its operand
// registers (spec §3, §4.2 step 5).
func (c *CPU) commitPendingLoad() {
	if c.load.valid {
		c.GPR[c.load.reg] = c.load.value
	}
	c.load = c.loadPending
	c.loadPending = pendingLoad{}
	c.GPR[0] = 0
}

// Step executes exactly one instruction and returns the cycles it took plus
// a stop reason (breakpoint/DMA are surfaced to Clock's caller).
func (c *CPU) Step() (cycles uint32, reason StopReason) {
	if c.checkInterrupt() {
		return 0, StopNone
	}

	if c.Dbg != nil && c.Dbg.ShouldBreak(c.PC) {
		return 0, StopBreakpoint
	}

	pc := c.PC
	isDelaySlot := c.inBranchDelay
	c.inBranchDelay = false

	raw, err := c.Bus.Read32(pc)
	if err != nil {
		c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		return 1, StopNone
	}

	instr := decode(raw)

	c.PC = c.nextPC
	c.nextPC = c.PC + 4

	c.loadPending = pendingLoad{}
	cycles = c.execute(instr, pc, isDelaySlot)
	c.commitPendingLoad()

	c.Cycles += uint64(cycles)

	if c.TakeDMARequest() {
		return cycles, StopDMARequest
	}
	return cycles, StopNone
}

// Clock runs up to maxInstructions instructions, stopping early on
// breakpoint or DMA request (spec §4.2 step 6).
func (c *CPU) Clock(maxInstructions int) (totalCycles uint32, reason StopReason) {
	for i := 0; i < maxInstructions; i++ {
		cyc, r := c.Step()
		totalCycles += cyc
		if r != StopNone {
			return totalCycles, r
		}
	}
	return totalCycles, StopMaxInstructions
}

// checkInterrupt raises an Interrupt exception if one is pending and
// enabled, per spec §4.2 step 1. Returns true if an exception was taken.
func (c *CPU) checkInterrupt() bool {
	if !c.COP0.InterruptPending() {
		return false
	}
	pc := c.PC
	bd := c.inBranchDelay
	if bd {
		pc -= 4
	}
	c.raiseException(ExcInterrupt, pc, bd)
	c.inBranchDelay = false
	return true
}

// branchTo overrides nextPC with target and marks the instruction about to
// be fetched (already queued in PC) as executing in the branch-delay slot.
func (c *CPU) branchTo(target uint32) {
	c.nextPC = target
	c.inBranchDelay = true
}
