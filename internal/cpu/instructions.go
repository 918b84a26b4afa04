package cpu

// instruction is a decoded R3000A word; fields are populated per the
// standard MIPS-I R-type/I-type/J-type layouts (spec §4.2 — the encoding
// itself is fixed by the ISA, not by any one pack repo).
type instruction struct {
	raw    uint32
	opcode uint32 // bits 31-26
	rs     uint32 // bits 25-21
	rt     uint32 // bits 20-16
	rd     uint32 // bits 15-11
	shamt  uint32 // bits 10-6
	funct  uint32 // bits 5-0
}

func decode(raw uint32) instruction {
	return instruction{
		raw:    raw,
		opcode: raw >> 26,
		rs:     (raw >> 21) & 0x1F,
		rt:     (raw >> 16) & 0x1F,
		rd:     (raw >> 11) & 0x1F,
		shamt:  (raw >> 6) & 0x1F,
		funct:  raw & 0x3F,
	}
}

func (i instruction) imm16() uint32 { return i.raw & 0xFFFF }
func (i instruction) simm16() uint32 {
	return uint32(int32(int16(i.raw & 0xFFFF)))
}
func (i instruction) imm26() uint32 { return i.raw & 0x03FF_FFFF }
func (i instruction) imm25() uint32 { return i.raw & 0x01FF_FFFF } // GTE command field (COP2)

// execute dispatches and executes one decoded instruction; pc is its own
// address and isDelaySlot tells whether pc itself sits in a branch-delay
// slot (needed by the exception path). Returns elapsed cycles.
func (c *CPU) execute(instr instruction, pc uint32, isDelaySlot bool) uint32 {
	cycles := uint32(1)

	switch instr.opcode {
	case 0x00: // SPECIAL
		cycles += c.executeSpecial(instr, pc, isDelaySlot)
	case 0x01: // REGIMM (bltz/bgez family)
		c.executeRegimm(instr)
	case 0x02: // J
		target := (c.PC & 0xF000_0000) | (instr.imm26() << 2)
		c.branchTo(target)
	case 0x03: // JAL
		target := (c.PC & 0xF000_0000) | (instr.imm26() << 2)
		c.setReg(31, c.nextPC)
		c.branchTo(target)
	case 0x04: // BEQ
		if c.getReg(instr.rs) == c.getReg(instr.rt) {
			c.branchTo(c.branchTarget(pc, instr))
		}
	case 0x05: // BNE
		if c.getReg(instr.rs) != c.getReg(instr.rt) {
			c.branchTo(c.branchTarget(pc, instr))
		}
	case 0x06: // BLEZ
		if int32(c.getReg(instr.rs)) <= 0 {
			c.branchTo(c.branchTarget(pc, instr))
		}
	case 0x07: // BGTZ
		if int32(c.getReg(instr.rs)) > 0 {
			c.branchTo(c.branchTarget(pc, instr))
		}
	case 0x08: // ADDI
		rs := c.getReg(instr.rs)
		imm := instr.simm16()
		res := rs + imm
		if overflowAdd(rs, imm, res) {
			c.raiseException(ExcArithmeticOverflow, pc, isDelaySlot)
		} else {
			c.setReg(instr.rt, res)
		}
	case 0x09: // ADDIU
		c.setReg(instr.rt, c.getReg(instr.rs)+instr.simm16())
	case 0x0A: // SLTI
		if int32(c.getReg(instr.rs)) < int32(instr.simm16()) {
			c.setReg(instr.rt, 1)
		} else {
			c.setReg(instr.rt, 0)
		}
	case 0x0B: // SLTIU
		if c.getReg(instr.rs) < instr.simm16() {
			c.setReg(instr.rt, 1)
		} else {
			c.setReg(instr.rt, 0)
		}
	case 0x0C: // ANDI
		c.setReg(instr.rt, c.getReg(instr.rs)&instr.imm16())
	case 0x0D: // ORI
		c.setReg(instr.rt, c.getReg(instr.rs)|instr.imm16())
	case 0x0E: // XORI
		c.setReg(instr.rt, c.getReg(instr.rs)^instr.imm16())
	case 0x0F: // LUI
		c.setReg(instr.rt, instr.imm16()<<16)
	case 0x10: // COP0
		c.executeCop0(instr)
	case 0x12: // COP2 (GTE)
		c.executeCop2(instr)
	case 0x20: // LB
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read8(addr); err == nil {
			c.scheduleLoad(instr.rt, uint32(int32(int8(v))))
		} else {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		}
	case 0x21: // LH
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read16(addr); err == nil {
			c.scheduleLoad(instr.rt, uint32(int32(int16(v))))
		} else {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		}
	case 0x22: // LWL
		c.executeLwl(instr, pc, isDelaySlot)
	case 0x23: // LW
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read32(addr); err == nil {
			c.scheduleLoad(instr.rt, v)
		} else {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		}
	case 0x24: // LBU
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read8(addr); err == nil {
			c.scheduleLoad(instr.rt, uint32(v))
		} else {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		}
	case 0x25: // LHU
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read16(addr); err == nil {
			c.scheduleLoad(instr.rt, uint32(v))
		} else {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
		}
	case 0x26: // LWR
		c.executeLwr(instr, pc, isDelaySlot)
	case 0x28: // SB
		addr := c.getReg(instr.rs) + instr.simm16()
		if c.Bus.Write8(addr, uint8(c.getReg(instr.rt))) != nil {
			c.raiseException(ExcAddressErrorStore, pc, isDelaySlot)
		}
	case 0x29: // SH
		addr := c.getReg(instr.rs) + instr.simm16()
		if c.Bus.Write16(addr, uint16(c.getReg(instr.rt))) != nil {
			c.raiseException(ExcAddressErrorStore, pc, isDelaySlot)
		}
	case 0x2A: // SWL
		c.executeSwl(instr)
	case 0x2B: // SW
		addr := c.getReg(instr.rs) + instr.simm16()
		if c.Bus.Write32(addr, c.getReg(instr.rt)) != nil {
			c.raiseException(ExcAddressErrorStore, pc, isDelaySlot)
		}
	case 0x2E: // SWR
		c.executeSwr(instr)
	case 0x30: // LWC0 (COP0 data load, unused by real software but legal)
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read32(addr); err == nil {
			c.COP0.MTC0(instr.rt, v)
		}
	case 0x32: // LWC2 (GTE data load)
		addr := c.getReg(instr.rs) + instr.simm16()
		if v, err := c.Bus.Read32(addr); err == nil {
			c.GTE.WriteData(instr.rt, v)
		}
	case 0x38: // SWC0
		addr := c.getReg(instr.rs) + instr.simm16()
		c.Bus.Write32(addr, c.COP0.MFC0(instr.rt))
	case 0x3A: // SWC2 (GTE data store)
		addr := c.getReg(instr.rs) + instr.simm16()
		c.Bus.Write32(addr, c.GTE.ReadData(instr.rt))
	default:
		c.raiseException(ExcReservedInstr, pc, isDelaySlot)
	}

	return cycles
}

func (c *CPU) branchTarget(pc uint32, instr instruction) uint32 {
	return pc + 4 + (instr.simm16() << 2)
}

func overflowAdd(a, b, res uint32) bool {
	// Signed overflow: operands share a sign and the result's sign differs.
	return (a^res)&(b^res)&0x8000_0000 != 0
}

func overflowSub(a, b, res uint32) bool {
	return (a^b)&(a^res)&0x8000_0000 != 0
}

// executeSpecial handles the SPECIAL (opcode 0) funct-dispatched group.
func (c *CPU) executeSpecial(instr instruction, pc uint32, isDelaySlot bool) uint32 {
	extra := uint32(0)
	switch instr.funct {
	case 0x00: // SLL
		c.setReg(instr.rd, c.getReg(instr.rt)<<instr.shamt)
	case 0x02: // SRL
		c.setReg(instr.rd, c.getReg(instr.rt)>>instr.shamt)
	case 0x03: // SRA
		c.setReg(instr.rd, uint32(int32(c.getReg(instr.rt))>>instr.shamt))
	case 0x04: // SLLV
		c.setReg(instr.rd, c.getReg(instr.rt)<<(c.getReg(instr.rs)&0x1F))
	case 0x06: // SRLV
		c.setReg(instr.rd, c.getReg(instr.rt)>>(c.getReg(instr.rs)&0x1F))
	case 0x07: // SRAV
		c.setReg(instr.rd, uint32(int32(c.getReg(instr.rt))>>(c.getReg(instr.rs)&0x1F)))
	case 0x08: // JR
		c.branchTo(c.getReg(instr.rs))
	case 0x09: // JALR
		target := c.getReg(instr.rs)
		c.setReg(instr.rd, c.nextPC)
		c.branchTo(target)
	case 0x0C: // SYSCALL
		c.raiseException(ExcSyscall, pc, isDelaySlot)
	case 0x0D: // BREAK
		c.raiseException(ExcBreak, pc, isDelaySlot)
	case 0x10: // MFHI
		c.setReg(instr.rd, c.HI)
	case 0x11: // MTHI
		c.HI = c.getReg(instr.rs)
	case 0x12: // MFLO
		c.setReg(instr.rd, c.LO)
	case 0x13: // MTLO
		c.LO = c.getReg(instr.rs)
	case 0x18: // MULT
		rs := int64(int32(c.getReg(instr.rs)))
		rt := int64(int32(c.getReg(instr.rt)))
		res := uint64(rs * rt)
		c.HI, c.LO = uint32(res>>32), uint32(res)
		extra = 5
	case 0x19: // MULTU
		res := uint64(c.getReg(instr.rs)) * uint64(c.getReg(instr.rt))
		c.HI, c.LO = uint32(res>>32), uint32(res)
		extra = 5
	case 0x1A: // DIV
		rs := int32(c.getReg(instr.rs))
		rt := int32(c.getReg(instr.rt))
		if rt == 0 {
			c.HI = uint32(rs)
			if rs >= 0 {
				c.LO = 0xFFFF_FFFF
			} else {
				c.LO = 1
			}
		} else if rs == -0x8000_0000 && rt == -1 {
			c.HI = 0
			c.LO = uint32(rs)
		} else {
			c.HI = uint32(rs % rt)
			c.LO = uint32(rs / rt)
		}
		extra = 10
	case 0x1B: // DIVU
		rs := c.getReg(instr.rs)
		rt := c.getReg(instr.rt)
		if rt == 0 {
			c.HI = rs
			c.LO = 0xFFFF_FFFF
		} else {
			c.HI = rs % rt
			c.LO = rs / rt
		}
		extra = 10
	case 0x20: // ADD
		rs, rt := c.getReg(instr.rs), c.getReg(instr.rt)
		res := rs + rt
		if overflowAdd(rs, rt, res) {
			c.raiseException(ExcArithmeticOverflow, pc, isDelaySlot)
		} else {
			c.setReg(instr.rd, res)
		}
	case 0x21: // ADDU
		c.setReg(instr.rd, c.getReg(instr.rs)+c.getReg(instr.rt))
	case 0x22: // SUB
		rs, rt := c.getReg(instr.rs), c.getReg(instr.rt)
		res := rs - rt
		if overflowSub(rs, rt, res) {
			c.raiseException(ExcArithmeticOverflow, pc, isDelaySlot)
		} else {
			c.setReg(instr.rd, res)
		}
	case 0x23: // SUBU
		c.setReg(instr.rd, c.getReg(instr.rs)-c.getReg(instr.rt))
	case 0x24: // AND
		c.setReg(instr.rd, c.getReg(instr.rs)&c.getReg(instr.rt))
	case 0x25: // OR
		c.setReg(instr.rd, c.getReg(instr.rs)|c.getReg(instr.rt))
	case 0x26: // XOR
		c.setReg(instr.rd, c.getReg(instr.rs)^c.getReg(instr.rt))
	case 0x27: // NOR
		c.setReg(instr.rd, ^(c.getReg(instr.rs) | c.getReg(instr.rt)))
	case 0x2A: // SLT
		if int32(c.getReg(instr.rs)) < int32(c.getReg(instr.rt)) {
			c.setReg(instr.rd, 1)
		} else {
			c.setReg(instr.rd, 0)
		}
	case 0x2B: // SLTU
		if c.getReg(instr.rs) < c.getReg(instr.rt) {
			c.setReg(instr.rd, 1)
		} else {
			c.setReg(instr.rd, 0)
		}
	default:
		c.raiseException(ExcReservedInstr, pc, isDelaySlot)
	}
	return extra
}

// executeRegimm handles the REGIMM (opcode 1) rt-dispatched branch group.
func (c *CPU) executeRegimm(instr instruction) {
	rs := int32(c.getReg(instr.rs))
	linkPC := c.nextPC

	var taken bool
	switch instr.rt & 0x11 {
	case 0x00: // BLTZ
		taken = rs < 0
	case 0x01: // BGEZ
		taken = rs >= 0
	case 0x10: // BLTZAL
		taken = rs < 0
		c.setReg(31, linkPC)
	case 0x11: // BGEZAL
		taken = rs >= 0
		c.setReg(31, linkPC)
	}
	if taken {
		c.branchTo(c.nextPC - 4 + (instr.simm16() << 2))
	}
}

// executeCop0 handles MFC0/MTC0/CFC0/CTC0/RFE (opcode 0x10).
func (c *CPU) executeCop0(instr instruction) {
	switch instr.rs {
	case 0x00: // MFC0
		c.scheduleLoad(instr.rt, c.COP0.MFC0(instr.rd))
	case 0x04: // MTC0
		c.COP0.MTC0(instr.rd, c.getReg(instr.rt))
		if instr.rd == 12 {
			c.Bus.SetIsolateCache(c.COP0.IsolateCache())
		}
	case 0x10: // RFE family; only the plain RFE (funct 0x10) is legal
		if instr.funct == 0x10 {
			c.COP0.Return()
		}
	}
}

// executeCop2 handles MFC2/MTC2/CFC2/CTC2/GTE commands (opcode 0x12).
func (c *CPU) executeCop2(instr instruction) {
	switch instr.rs {
	case 0x00: // MFC2
		c.scheduleLoad(instr.rt, c.GTE.ReadData(instr.rd))
	case 0x02: // CFC2
		c.scheduleLoad(instr.rt, c.GTE.ReadControl(instr.rd))
	case 0x04: // MTC2
		c.GTE.WriteData(instr.rd, c.getReg(instr.rt))
	case 0x06: // CTC2
		c.GTE.WriteControl(instr.rd, c.getReg(instr.rt))
	default: // bit 25 set selects a GTE command word
		if instr.raw&(1<<25) != 0 {
			c.GTE.Execute(instr.imm25())
		}
	}
}

// executeLwl implements the unaligned "load word left" merge against
// whatever is already in rt (or an in-flight load targeting it), matching
// original_source/trapezoid-core/src/cpu.rs's byte-at-a-time construction.
func (c *CPU) executeLwl(instr instruction, pc uint32, isDelaySlot bool) {
	addr := c.getReg(instr.rs) + instr.simm16()
	aligned := addr &^ 3
	var result uint32
	for a := addr; ; a-- {
		v, err := c.Bus.Read8(a)
		if err != nil {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
			return
		}
		result = (result << 8) | uint32(v)
		if a == aligned {
			break
		}
	}
	offset := addr & 3
	shift := (3 - offset) * 8
	result <<= shift
	mask := ^(uint32(0xFFFF_FFFF) >> shift << shift)

	original := c.getReg(instr.rt)
	if v, ok := c.pendingLoadValue(instr.rt); ok {
		original = v
	}
	c.scheduleLoad(instr.rt, (original&mask)|result)
}

// executeLwr implements the unaligned "load word right" merge.
func (c *CPU) executeLwr(instr instruction, pc uint32, isDelaySlot bool) {
	addr := c.getReg(instr.rs) + instr.simm16()
	end := addr | 3
	var result uint32
	for a := end; ; a-- {
		v, err := c.Bus.Read8(a)
		if err != nil {
			c.raiseException(ExcAddressErrorLoad, pc, isDelaySlot)
			return
		}
		result = (result << 8) | uint32(v)
		if a == addr {
			break
		}
	}
	offset := addr & 3
	shift := offset * 8
	mask := ^(uint32(0xFFFF_FFFF) >> shift)

	original := c.getReg(instr.rt)
	if v, ok := c.pendingLoadValue(instr.rt); ok {
		original = v
	}
	c.scheduleLoad(instr.rt, (original&mask)|result)
}

// executeSwl implements "store word left": the high bytes of rt spill
// downward from the aligned floor of addr up to addr itself.
func (c *CPU) executeSwl(instr instruction) {
	addr := c.getReg(instr.rs) + instr.simm16()
	rt := c.getReg(instr.rt)
	aligned := addr &^ 3
	offset := addr & 3
	shift := (3 - offset) * 8
	rt >>= shift
	for a := aligned; a <= addr; a++ {
		c.Bus.Write8(a, uint8(rt))
		rt >>= 8
	}
}

// executeSwr implements "store word right".
func (c *CPU) executeSwr(instr instruction) {
	addr := c.getReg(instr.rs) + instr.simm16()
	rt := c.getReg(instr.rt)
	end := addr | 3
	for a := addr; a <= end; a++ {
		c.Bus.Write8(a, uint8(rt))
		rt >>= 8
	}
}
