// Package controller implements the serial pad/memory-card link: a
// baud-rate-clocked bit-banger driving two communication slots, each
// multiplexing a digital-controller state machine and a memory-card
// state machine, grounded on original_source/trapezoid-core/src/
// controller_mem_card.rs.
package controller

import "psxemu/internal/irq"

// DigitalControllerKey indexes one button bit of the digital pad.
type DigitalControllerKey int

const (
	KeySelect DigitalControllerKey = iota
	KeyL3
	KeyR3
	KeyStart
	KeyUp
	KeyRight
	KeyDown
	KeyLeft
	KeyL2
	KeyR2
	KeyL1
	KeyR1
	KeyTriangle
	KeyCircle
	KeyX
	KeySquare
)

func (k DigitalControllerKey) mask() uint16 { return 1 << uint(k) }

const joyCtrlAcknowledge = 0b0000000000010000
const joyCtrlReset = 0b0000000001000000

// JoyControl bits (JOY_CTRL, R/W).
const (
	ctrlTXEnable           = 0b0000000000000001
	ctrlJoySelect          = 0b0000000000000010
	ctrlRXForceEnable      = 0b0000000000000100
	ctrlRXInterruptMode    = 0b0000001100000000
	ctrlTXInterruptEnable  = 0b0000010000000000
	ctrlRXInterruptEnable  = 0b0000100000000000
	ctrlACKInterruptEnable = 0b0001000000000000
	ctrlJoySlot            = 0b0010000000000000
)

func ctrlTXEnabled(v uint16) bool       { return v&ctrlTXEnable != 0 }
func ctrlRXForced(v uint16) bool        { return v&ctrlRXForceEnable != 0 }
func ctrlJoySelected(v uint16) bool     { return v&ctrlJoySelect != 0 }
func ctrlACKInterrupt(v uint16) bool    { return v&ctrlACKInterruptEnable != 0 }
func ctrlSlot(v uint16) int             { if v&ctrlJoySlot != 0 { return 1 }; return 0 }

// JoyMode bits (JOY_MODE, R/W).
const (
	modeBaudrateReloadFactor = 0b0000000000000011
	modeCharacterLength      = 0b0000000000001100
	modeParityEnable         = 0b0000000000010000
	modeParityType           = 0b0000000000100000
	modeClkOutputPolarity    = 0b0000000100000000
)

func modeBaudrateShift(v uint16) uint {
	bits := uint32(v & modeBaudrateReloadFactor)
	if bits == 1 {
		return 0
	}
	return uint(bits) * 2
}

func modeCharLength(v uint16) uint8 {
	bits := uint8((v & modeCharacterLength) >> 2)
	return 5 + bits
}

func modeClkIdleOnHigh(v uint16) bool { return v&modeClkOutputPolarity == 0 }

// JoyStat bits (JOY_STAT, R).
const (
	statTXReady1         = 0b0000000000000001
	statRXFifoNotEmpty   = 0b0000000000000010
	statTXReady2         = 0b0000000000000100
	statRXParityError    = 0b0000000000001000
	statACKInputLevelLow = 0b0000000010000000
	statInterruptRequest = 0b0000001000000000
)

// ControllerAndMemoryCard is the serial I/O port driving two
// controller/memory-card slots.
type ControllerAndMemoryCard struct {
	ctrl  uint16
	mode  uint16
	stat  uint32
	baudrateTimerReload uint32
	baudrateTimer       uint32
	clkPositionHigh     bool
	transferedBits      uint8
	txFifo []uint8
	rxFifo []uint8

	handlers [2]communicationHandler

	irqCtrl *irq.Controller
}

func New(irqCtrl *irq.Controller) *ControllerAndMemoryCard {
	c := &ControllerAndMemoryCard{irqCtrl: irqCtrl}
	c.Reset()
	return c
}

func (c *ControllerAndMemoryCard) Reset() {
	reload := uint32(0x0088)
	irqCtrl := c.irqCtrl
	*c = ControllerAndMemoryCard{
		mode:                0x000D,
		stat:                statTXReady1 | statTXReady2,
		baudrateTimerReload: reload,
		baudrateTimer:       reload / 2,
		irqCtrl:             irqCtrl,
	}
	c.handlers[0] = newCommunicationHandler(0, true)
	c.handlers[1] = newCommunicationHandler(1, false)
}

// SetCardBackingStore installs a 128KiB-per-slot persistent byte
// store for the given slot (spec's host file write-back); pass nil to
// use an in-memory-only card.
func (c *ControllerAndMemoryCard) SetCardBackingStore(slot int, data []uint8) {
	if slot < 0 || slot > 1 {
		return
	}
	c.handlers[slot].memoryCard.loadFrom(data)
}

// TakeCardBackingStore returns the current 128KiB memory-card image
// for the given slot (for the host to persist to disk).
func (c *ControllerAndMemoryCard) TakeCardBackingStore(slot int) []uint8 {
	if slot < 0 || slot > 1 {
		return nil
	}
	return append([]uint8{}, c.handlers[slot].memoryCard.data[:]...)
}

// ChangeControllerKeyState models a host key press/release for the
// digital pad on slot 0, spec §6 change_controller_key.
func (c *ControllerAndMemoryCard) ChangeControllerKeyState(key DigitalControllerKey, pressed bool) {
	c.handlers[0].changeControllerKeyState(key, pressed)
}

// Clock advances the baud-rate timer by cpuCycles, shifting one bit
// per half-period and exchanging a full character whenever the
// configured character length has been shifted, per ::clock.
func (c *ControllerAndMemoryCard) Clock(cpuCycles uint32) {
	cycles := cpuCycles
	for cycles > 0 {
		if c.baudrateTimer > cycles {
			c.baudrateTimer -= cycles
			return
		}
		cycles -= c.baudrateTimer
		c.baudrateTimer = 0

		c.triggerBaudrateReload()
		c.clkPositionHigh = !c.clkPositionHigh

		if len(c.txFifo) > 0 && ctrlTXEnabled(c.ctrl) && (c.clkPositionHigh != modeClkIdleOnHigh(c.mode)) {
			c.transferedBits++

			if c.transferedBits == modeCharLength(c.mode) {
				c.transferedBits = 0
				byteToSend := c.txFifo[0]
				c.txFifo = c.txFifo[1:]

				slot := ctrlSlot(c.ctrl)
				received := c.handlers[slot].exchangeBytes(byteToSend)

				if ctrlJoySelected(c.ctrl) || ctrlRXForced(c.ctrl) {
					c.pushToRXFifo(received)
				}

				if c.handlers[slot].hasMore() {
					c.sendACKInterrupt()
					if c.irqCtrl != nil {
						c.irqCtrl.Raise(irq.ControllerMemCard)
					}
				}
			}
		}
	}
}

func (c *ControllerAndMemoryCard) getStat() uint32 {
	timer := c.baudrateTimer & 0x1FFFFF
	return c.stat | (timer << 11)
}

func (c *ControllerAndMemoryCard) triggerBaudrateReload() {
	factored := c.baudrateTimerReload << modeBaudrateShift(c.mode)
	c.baudrateTimer = factored / 2
}

func (c *ControllerAndMemoryCard) pushToTXFifo(data uint8) {
	if len(c.txFifo) >= 2 {
		return
	}
	c.txFifo = append(c.txFifo, data)
}

func (c *ControllerAndMemoryCard) pushToRXFifo(data uint8) {
	if len(c.rxFifo) >= 8 {
		return
	}
	c.rxFifo = append(c.rxFifo, data)
	c.stat |= statRXFifoNotEmpty
}

func (c *ControllerAndMemoryCard) popFromRXFifo() uint8 {
	if len(c.rxFifo) == 0 {
		return 0
	}
	out := c.rxFifo[0]
	c.rxFifo = c.rxFifo[1:]
	if len(c.rxFifo) == 0 {
		c.stat &^= statRXFifoNotEmpty
	}
	return out
}

func (c *ControllerAndMemoryCard) sendACKInterrupt() {
	if ctrlACKInterrupt(c.ctrl) {
		c.stat |= statInterruptRequest
	}
}

func (c *ControllerAndMemoryCard) acknowledgeInterrupt() {
	c.stat &^= statInterruptRequest | statRXParityError
}

func (c *ControllerAndMemoryCard) resetCommunication() {
	c.triggerBaudrateReload()
	c.transferedBits = 0
	c.txFifo = nil
	c.rxFifo = nil
	c.clkPositionHigh = false
	c.handlers[0].state = 0
	c.handlers[1].state = 0
}

// Read32/Write32/Read16/Write16/Read8/Write8 implement memory.IOHandler
// for the 0x1F801040+ register bank.
func (c *ControllerAndMemoryCard) Read32(offset uint32) uint32 {
	if offset == 0x4 {
		return c.getStat()
	}
	return 0
}

func (c *ControllerAndMemoryCard) Write32(offset uint32, data uint32) {}

func (c *ControllerAndMemoryCard) Read16(offset uint32) uint16 {
	switch offset {
	case 0x4:
		return uint16(c.getStat())
	case 0x8:
		return c.mode
	case 0xA:
		return c.ctrl
	case 0xE:
		return uint16(c.baudrateTimerReload)
	}
	return 0
}

func (c *ControllerAndMemoryCard) Write16(offset uint32, data uint16) {
	switch offset {
	case 0x8:
		c.mode = data
	case 0xA:
		c.ctrl = data
		if data&joyCtrlAcknowledge != 0 {
			c.acknowledgeInterrupt()
		}
		if data&joyCtrlReset != 0 {
			c.resetCommunication()
		}
		if data == 0 {
			c.resetCommunication()
		}
	case 0xE:
		c.baudrateTimerReload = uint32(data)
		c.triggerBaudrateReload()
	}
}

func (c *ControllerAndMemoryCard) Read8(offset uint32) uint8 {
	if offset == 0 {
		return c.popFromRXFifo()
	}
	return 0
}

func (c *ControllerAndMemoryCard) Write8(offset uint32, data uint8) {
	if offset == 0 {
		c.pushToTXFifo(data)
	}
}
