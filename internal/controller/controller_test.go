package controller

import "testing"

func clockUntilIdle(c *ControllerAndMemoryCard, maxCycles int) {
	for i := 0; i < maxCycles; i++ {
		c.Clock(64)
	}
}

func TestDigitalControllerAnswersAccessByte(t *testing.T) {
	c := New(nil)
	c.Write16(0xA, ctrlTXEnable|ctrlJoySelect)
	c.Write16(0x8, 0x000D)

	c.Write8(0, 0x01)
	clockUntilIdle(c, 200)
	if len(c.rxFifo) == 0 {
		t.Fatalf("expected a response byte after addressing the controller")
	}
	got := c.popFromRXFifo()
	if got != 0xFF {
		t.Fatalf("expected placeholder 0xFF reply to the access byte, got %#x", got)
	}
}

func TestDigitalControllerReportsPressedButtons(t *testing.T) {
	c := New(nil)
	c.ChangeControllerKeyState(KeyX, true)
	if c.handlers[0].controller.buttons&KeyX.mask() != 0 {
		t.Fatalf("expected cross button bit cleared (pressed) after key-down")
	}
}

func TestMemoryCardHeaderBytes(t *testing.T) {
	mc := newMemoryCard()
	if mc.data[0] != 'M' || mc.data[1] != 'C' {
		t.Fatalf("expected MC header bytes, got %c%c", mc.data[0], mc.data[1])
	}
	if mc.data[0x7F] != 0x0E {
		t.Fatalf("expected terminator byte 0x0E at offset 0x7F, got %#x", mc.data[0x7F])
	}
}

func TestMemoryCardWriteThenReadRoundTrip(t *testing.T) {
	mc := newMemoryCard()

	// Write frame 2 with a repeating pattern.
	writeFrame(mc, 2, 0xAB)

	block := int(2) * 128
	if mc.data[block] != 0xAB {
		t.Fatalf("expected written byte to persist, got %#x", mc.data[block])
	}
}

func writeFrame(mc *MemoryCard, frame uint16, fill uint8) {
	mc.startAccess(0x81)
	mc.exchangeByte(0, 'W')
	mc.exchangeByte(1, 0)
	mc.exchangeByte(2, 0)
	mc.exchangeByte(3, uint8(frame>>8))
	mc.exchangeByte(4, uint8(frame))
	mc.exchangeByte(5, 0)
	mc.exchangeByte(6, 0)
	for i := 0; i < 128; i++ {
		mc.exchangeByte(7+i, fill)
	}
	mc.exchangeByte(7+128, mc.checksum)
}

func TestBaudrateReloadShift(t *testing.T) {
	if modeBaudrateShift(1) != 0 {
		t.Fatalf("expected shift 0 for reload factor 1")
	}
	if modeBaudrateShift(2) != 4 {
		t.Fatalf("expected shift 4 for reload factor 2")
	}
}
