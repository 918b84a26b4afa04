package mdec

import "testing"

func TestStatusAfterReset(t *testing.T) {
	m := New(nil)
	if m.status&statCommandBusy != 0 {
		t.Fatalf("expected command-busy clear after reset")
	}
}

func TestSetQuantTableConsumesAllParams(t *testing.T) {
	m := New(nil)
	// header: cmd=2 (set quant table), bit0=0 -> luminance table only.
	m.writeCommandParams(2 << 29)
	if m.currentCmd != cmdSetQuantTable {
		t.Fatalf("expected quant-table command to start")
	}
	for i := 0; i < 64/4; i++ {
		m.writeCommandParams(uint32(i))
	}
	if m.currentCmd != cmdNone {
		t.Fatalf("expected command to finish after all params consumed")
	}
	if m.status&statCommandBusy != 0 {
		t.Fatalf("expected command-busy cleared after quant table load")
	}
}

func TestSetScaleTableLoadsValues(t *testing.T) {
	m := New(nil)
	m.writeCommandParams(3 << 29)
	for i := 0; i < 64/2; i++ {
		word := uint32(i) | (uint32(i+1) << 16)
		m.writeCommandParams(word)
	}
	if m.scaleTable[0] != 0 {
		t.Fatalf("expected first scale entry 0, got %d", m.scaleTable[0])
	}
	if m.scaleTable[1] != 1 {
		t.Fatalf("expected second scale entry 1, got %d", m.scaleTable[1])
	}
}

func TestWriteControlResetBit(t *testing.T) {
	m := New(nil)
	m.status = 0xFFFFFFFF
	m.writeControl(1 << 31)
	if m.status != 0x80040000 {
		t.Fatalf("expected reset status 0x80040000, got %#x", m.status)
	}
}

func TestReadFifoEmptyReturnsZero(t *testing.T) {
	m := New(nil)
	if got := m.ReadOut(); got != 0 {
		t.Fatalf("expected 0 from empty fifo read, got %#x", got)
	}
}
