package psxexe

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRAM struct {
	words map[uint32]uint32
}

func newFakeRAM() *fakeRAM { return &fakeRAM{words: make(map[uint32]uint32)} }

func (r *fakeRAM) Write(offset uint32, value uint32, width int) {
	r.words[offset] = value
}

func buildTestExe(payload []byte) []byte {
	raw := make([]byte, headerSize+len(payload))
	copy(raw[0:8], headerMagic)
	binary.LittleEndian.PutUint32(raw[0x10:], 0x80010000) // InitialPC
	binary.LittleEndian.PutUint32(raw[0x14:], 0x80010800) // InitialGP
	binary.LittleEndian.PutUint32(raw[0x18:], 0x80010000) // LoadDest
	binary.LittleEndian.PutUint32(raw[0x1C:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(raw[0x30:], 0x80020000) // BSSStart
	binary.LittleEndian.PutUint32(raw[0x34:], 16)          // BSSSize
	binary.LittleEndian.PutUint32(raw[0x38:], 0x801FFF00) // InitialSP
	copy(raw[payloadOffset:], payload)
	return raw
}

func TestParseDecodesHeaderFields(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], 0xDEADBEEF)
	binary.LittleEndian.PutUint32(payload[4:], 0xCAFEF00D)

	exe, err := Parse(buildTestExe(payload))
	require.NoError(t, err)
	require.Equal(t, uint32(0x80010000), exe.InitialPC)
	require.Equal(t, uint32(0x80010800), exe.InitialGP)
	require.Equal(t, uint32(0x80010000), exe.LoadDest)
	require.Equal(t, uint32(8), exe.FileSize)
	require.Equal(t, uint32(0x80020000), exe.BSSStart)
	require.Equal(t, uint32(16), exe.BSSSize)
	require.Equal(t, uint32(0x801FFF00), exe.InitialSP)
	require.Equal(t, payload, exe.Payload)
}

func TestParseRejectsBadMagic(t *testing.T) {
	raw := buildTestExe(nil)
	copy(raw[0:8], "NOT-AN-X")
	_, err := Parse(raw)
	require.Error(t, err)
}

func TestParseRejectsShortFile(t *testing.T) {
	_, err := Parse(make([]byte, 16))
	require.Error(t, err)
}

func TestLoadIntoCopiesPayloadAndZeroesBSS(t *testing.T) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:], 0x11223344)
	binary.LittleEndian.PutUint32(payload[4:], 0x55667788)

	exe, err := Parse(buildTestExe(payload))
	require.NoError(t, err)

	ram := newFakeRAM()
	ram.words[exe.BSSStart] = 0xFFFFFFFF
	exe.LoadInto(ram)

	require.Equal(t, uint32(0x11223344), ram.words[exe.LoadDest])
	require.Equal(t, uint32(0x55667788), ram.words[exe.LoadDest+4])
	require.Equal(t, uint32(0), ram.words[exe.BSSStart])
	require.Equal(t, uint32(0), ram.words[exe.BSSStart+4])
	require.Equal(t, uint32(0), ram.words[exe.BSSStart+8])
	require.Equal(t, uint32(0), ram.words[exe.BSSStart+12])
}
