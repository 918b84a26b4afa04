// Package timer implements the three 16-bit counters of spec §4.10:
// programmable source clock, sync mode, reset condition, IRQ-on-target,
// IRQ-on-wrap, one-shot vs repeated, pulse vs toggle. Grounded on the
// teacher's single-purpose device-struct pattern; original_source's
// timers.rs was filtered out of the retrieval pack, so register-bit
// layout follows spec §4.10 and Nocash-documented PSX hardware directly.
package timer

import (
	"psxemu/internal/irq"
)

// ClockSource selects what increments a timer's counter each tick.
type ClockSource uint8

const (
	ClockSystem ClockSource = iota
	ClockSystemDiv8
	ClockDotClock
	ClockHBlank
)

// mode register bit layout (spec §4.10 / Nocash TIMER registers).
const (
	modeSyncEnable    = 1 << 0
	modeSyncModeShift = 1
	modeSyncModeMask  = 0x3 << modeSyncModeShift
	modeResetOnTarget = 1 << 3
	modeIRQOnTarget   = 1 << 4
	modeIRQOnWrap     = 1 << 5
	modeIRQRepeat     = 1 << 6
	modeIRQToggle     = 1 << 7
	modeClockSrcShift = 8
	modeClockSrcMask  = 0x3 << modeClockSrcShift
	modeIRQRequest    = 1 << 10 // inverted latch: 0 = requested, cleared on mode read
	modeReachedTarget = 1 << 11
	modeReachedFFFF   = 1 << 12
)

// Timer is one of the three counters. index selects per-timer clock
// source meaning (0: dot/system, 1: hblank/system, 2: system/system÷8)
// and sync-mode meaning (tied to hblank for 0/1, always-free for 2).
type Timer struct {
	index  int
	irqSrc irq.Source

	counter uint16
	mode    uint32
	target  uint16

	irqLine    bool // current output level, for toggle-mode edge detection
	firedOnce  bool // one-shot "already fired" latch, cleared on mode write
}

func New(index int, irqSrc irq.Source) *Timer {
	t := &Timer{index: index, irqSrc: irqSrc}
	t.Reset()
	return t
}

func (t *Timer) Reset() {
	t.counter = 0
	t.mode = 1 << 10 // IRQ request bit idles high (inverted sense)
	t.target = 0
	t.irqLine = false
	t.firedOnce = false
}

func (t *Timer) clockSource() ClockSource {
	return ClockSource((t.mode & modeClockSrcMask) >> modeClockSrcShift)
}

func (t *Timer) syncEnabled() bool { return t.mode&modeSyncEnable != 0 }
func (t *Timer) syncMode() uint32  { return (t.mode & modeSyncModeMask) >> modeSyncModeShift }

// usesSystemClock reports whether this timer's programmed source is the
// plain system clock (vs dot clock / hblank / system÷8), used by the
// scheduler to decide which tick stream to feed it.
func (t *Timer) usesSystemClock() bool {
	switch t.index {
	case 0:
		return t.clockSource() == ClockSystem
	case 1:
		return t.clockSource() == ClockSystem
	default: // timer 2
		return t.clockSource() == ClockSystem || t.clockSource() == ClockSystemDiv8
	}
}

func (t *Timer) usesDotClock() bool  { return t.index == 0 && t.clockSource() == ClockDotClock }
func (t *Timer) usesHBlank() bool    { return t.index == 1 && t.clockSource() == ClockHBlank }
func (t *Timer) usesDiv8() bool      { return t.index == 2 && t.clockSource() == ClockSystemDiv8 }

// TickSystem advances the timer by n system-clock ticks if that is its
// programmed source (timers 0/1 in system mode, or n/8 ticks for timer 2
// in system÷8 mode); returns the raised interrupt source and true, or
// false when nothing fired.
func (t *Timer) TickSystem(n uint32) (raised irq.Source, ok bool) {
	if t.index == 2 && t.clockSource() == ClockSystemDiv8 {
		return t.advance(n / 8)
	}
	if t.usesSystemClock() && !(t.index == 2 && t.clockSource() == ClockSystemDiv8) {
		return t.advance(n)
	}
	return 0, false
}

// TickDot advances timer 0 when dot-clock sourced.
func (t *Timer) TickDot(n uint32) (raised irq.Source, ok bool) {
	if t.usesDotClock() {
		return t.advance(n)
	}
	return 0, false
}

// TickHBlank advances timer 1 when hblank sourced. Sync modes are not
// modelled: no timer is paused or reset at hblank.
func (t *Timer) TickHBlank(n uint32) (raised irq.Source, ok bool) {
	if t.usesHBlank() {
		return t.advance(n)
	}
	return 0, false
}

func (t *Timer) advance(n uint32) (irq.Source, bool) {
	if n == 0 {
		return 0, false
	}
	newVal := uint32(t.counter) + n
	reachedTarget := false
	reachedWrap := false

	if uint32(t.target) != 0 && newVal >= uint32(t.target) && uint32(t.counter) < uint32(t.target) {
		reachedTarget = true
	}
	if newVal > 0xFFFF {
		reachedWrap = true
	}

	if t.mode&modeResetOnTarget != 0 && uint32(t.target) != 0 {
		newVal %= uint32(t.target) + 1
	} else {
		newVal &= 0xFFFF
	}
	t.counter = uint16(newVal)

	if reachedTarget {
		t.mode |= modeReachedTarget
	}
	if reachedWrap {
		t.mode |= modeReachedFFFF
	}

	fire := false
	if reachedTarget && t.mode&modeIRQOnTarget != 0 {
		fire = true
	}
	if reachedWrap && t.mode&modeIRQOnWrap != 0 {
		fire = true
	}

	if fire && (t.mode&modeIRQRepeat != 0 || !t.firedOnce) {
		t.firedOnce = true
		if t.mode&modeIRQToggle != 0 {
			t.irqLine = !t.irqLine
			if !t.irqLine {
				t.mode &^= 1 << 10
				return t.irqSrc, true
			}
			t.mode |= 1 << 10
			return 0, false
		}
		t.mode &^= 1 << 10 // pulse: request bit goes low momentarily
		t.mode |= 1 << 10
		return t.irqSrc, true
	}
	return 0, false
}

func (t *Timer) ReadCounter() uint32 { return uint32(t.counter) }
func (t *Timer) WriteCounter(v uint32) {
	t.counter = uint16(v)
}

func (t *Timer) ReadMode() uint32 {
	v := t.mode
	// Reading mode clears the "reached target"/"reached FFFF" bits.
	t.mode &^= modeReachedTarget | modeReachedFFFF
	return v
}

func (t *Timer) WriteMode(v uint32) {
	t.mode = (v & 0x3FF) | (1 << 10)
	t.counter = 0
	t.firedOnce = false
	t.irqLine = false
}

func (t *Timer) ReadTarget() uint32  { return uint32(t.target) }
func (t *Timer) WriteTarget(v uint32) { t.target = uint16(v) }

// Bank owns all three timers and dispatches their 0x1F80_1100+ register
// block (each timer occupies a 16-byte-spaced trio of 32-bit registers).
type Bank struct {
	Timers [3]*Timer
}

func NewBank() *Bank {
	return &Bank{Timers: [3]*Timer{
		New(0, irq.Timer0),
		New(1, irq.Timer1),
		New(2, irq.Timer2),
	}}
}

func (b *Bank) Reset() {
	for _, t := range b.Timers {
		t.Reset()
	}
}

// TickSystem advances every timer by n system cycles and returns the set
// of interrupt sources that fired this step.
func (b *Bank) TickSystem(n uint32) []irq.Source {
	var fired []irq.Source
	for _, t := range b.Timers {
		if src, ok := t.TickSystem(n); ok {
			fired = append(fired, src)
		}
	}
	return fired
}

// TickDot advances timer 0's dot-clock-sourced counter by n dots.
func (b *Bank) TickDot(n uint32) []irq.Source {
	var fired []irq.Source
	if src, ok := b.Timers[0].TickDot(n); ok {
		fired = append(fired, src)
	}
	return fired
}

// TickHBlank advances timer 1's hblank-sourced counter by n lines.
func (b *Bank) TickHBlank(n uint32) []irq.Source {
	var fired []irq.Source
	if src, ok := b.Timers[1].TickHBlank(n); ok {
		fired = append(fired, src)
	}
	return fired
}

func (b *Bank) Read32(offset uint32) uint32 {
	t := b.Timers[(offset>>4)&3]
	switch offset & 0xF {
	case 0:
		return t.ReadCounter()
	case 4:
		return t.ReadMode()
	case 8:
		return t.ReadTarget()
	default:
		return 0
	}
}

func (b *Bank) Write32(offset uint32, v uint32) {
	idx := (offset >> 4) & 3
	if idx > 2 {
		return
	}
	t := b.Timers[idx]
	switch offset & 0xF {
	case 0:
		t.WriteCounter(v)
	case 4:
		t.WriteMode(v)
	case 8:
		t.WriteTarget(v)
	}
}

func (b *Bank) Read16(offset uint32) uint16 { return uint16(b.Read32(offset &^ 3)) }
func (b *Bank) Write16(offset uint32, v uint16) {
	base := offset &^ 3
	b.Write32(base, uint32(v))
}
func (b *Bank) Read8(offset uint32) uint8 { return uint8(b.Read32(offset &^ 3)) }
func (b *Bank) Write8(offset uint32, v uint8) {
	b.Write32(offset&^3, uint32(v))
}
