package emulator

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"psxemu/internal/controller"
)

func newTestPsx(t *testing.T) *Psx {
	t.Helper()
	biosPath := filepath.Join(t.TempDir(), "bios.bin")
	require.NoError(t, os.WriteFile(biosPath, make([]byte, 512*1024), 0o644))

	psx, err := New(biosPath, "", nil)
	require.NoError(t, err)
	return psx
}

func TestNewWiresEveryDevice(t *testing.T) {
	psx := newTestPsx(t)
	require.NotNil(t, psx.CPU)
	require.NotNil(t, psx.GPU)
	require.NotNil(t, psx.SPU)
	require.NotNil(t, psx.CDROM)
	require.NotNil(t, psx.MDEC)
	require.NotNil(t, psx.Controller)
	require.Equal(t, uint32(0xBFC00000), psx.CPU.PC)
}

func TestClockFrameRunsOneVBlank(t *testing.T) {
	psx := newTestPsx(t)
	require.False(t, psx.GPU.InVBlank())
	psx.ClockFrame()
	require.True(t, psx.GPU.InVBlank())
}

func TestBusReadWriteU32RoundTrips(t *testing.T) {
	psx := newTestPsx(t)
	require.NoError(t, psx.BusWriteU32(0x1F801810, 0)) // GP0, harmless no-op command word

	_, err := psx.BusReadU32(0x1F801814) // GPUSTAT
	require.NoError(t, err)
}

func TestLoadEXESeedsCPUState(t *testing.T) {
	psx := newTestPsx(t)

	raw := make([]byte, 0x800+16)
	copy(raw[0:8], "PS-X EXE")
	binary.LittleEndian.PutUint32(raw[0x10:], 0x80010000)
	binary.LittleEndian.PutUint32(raw[0x14:], 0x80010800)
	binary.LittleEndian.PutUint32(raw[0x18:], 0x80010000)
	binary.LittleEndian.PutUint32(raw[0x1C:], 16)
	binary.LittleEndian.PutUint32(raw[0x38:], 0x801FFF00)

	require.NoError(t, psx.LoadEXE(raw))
	require.Equal(t, uint32(0x80010000), psx.CPU.PC)
	require.Equal(t, uint32(0x80010800), psx.CPU.GPR[28])
	require.Equal(t, uint32(0x801FFF00), psx.CPU.GPR[29])
	require.Equal(t, uint32(0x801FFF00), psx.CPU.GPR[30])
}

func TestMemoryCardRoundTrip(t *testing.T) {
	psx := newTestPsx(t)
	card := make([]byte, 0x400*128)
	card[0] = 'M'
	card[1] = 'C'
	psx.LoadMemoryCard(0, card)

	got := psx.TakeMemoryCard(0)
	require.Equal(t, byte('M'), got[0])
	require.Equal(t, byte('C'), got[1])

	require.Nil(t, psx.TakeMemoryCard(5))
}

func TestChangeControllerKeyDoesNotPanic(t *testing.T) {
	psx := newTestPsx(t)
	psx.ChangeControllerKey(controller.KeyStart, true)
	psx.ChangeControllerKey(controller.KeyStart, false)
}
