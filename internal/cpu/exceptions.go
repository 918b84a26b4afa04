package cpu

// ExceptionCode is a COP0 Cause.ExcCode value (spec §4.2), grounded on
// original_source/trapezoid-core/src/cpu.rs's Exception enum.
type ExceptionCode uint32

const (
	ExcInterrupt          ExceptionCode = 0x00
	ExcAddressErrorLoad   ExceptionCode = 0x04
	ExcAddressErrorStore  ExceptionCode = 0x05
	ExcBusErrorFetch      ExceptionCode = 0x06
	ExcBusErrorData       ExceptionCode = 0x07
	ExcSyscall            ExceptionCode = 0x08
	ExcBreak              ExceptionCode = 0x09
	ExcReservedInstr      ExceptionCode = 0x0A
	ExcCoprocessorUnusable ExceptionCode = 0x0B
	ExcArithmeticOverflow ExceptionCode = 0x0C
)

// raiseException is the common path for an exception raised while executing
// the instruction at pc (which was itself in a branch-delay slot iff
// branchDelay is true): it records EPC, Cause, and jumps to the exception
// vector selected by SR.BEV (spec §4.2).
func (c *CPU) raiseException(code ExceptionCode, pc uint32, branchDelay bool) {
	// Callers that raise on a branch-delay-slot instruction (checkInterrupt)
	// pre-adjust pc to the branch itself; returning from the exception then
	// re-executes the branch and falls through the delay slot again.
	vector := c.COP0.EnterException(uint32(code), pc, branchDelay)
	c.PC = vector
	c.nextPC = vector + 4
	c.inBranchDelay = false
}

// raiseExceptionAt is an alias of raiseException; checkInterrupt, which
// computes the branch-delay-adjusted PC itself, calls raiseException
// directly.
func (c *CPU) raiseExceptionAt(code ExceptionCode, pc uint32, branchDelay bool) {
	c.raiseException(code, pc, branchDelay)
}
