package cue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestDisc(t *testing.T, dir string, sectors int) string {
	t.Helper()
	binPath := filepath.Join(dir, "game.bin")
	data := make([]byte, sectors*SectorSize)
	require.NoError(t, os.WriteFile(binPath, data, 0o644))

	cuePath := filepath.Join(dir, "game.cue")
	cueText := "FILE \"game.bin\" BINARY\n" +
		"  TRACK 01 MODE2/2352\n" +
		"    INDEX 01 00:00:00\n"
	require.NoError(t, os.WriteFile(cuePath, []byte(cueText), 0o644))
	return cuePath
}

func TestLoadParsesSingleTrackDisc(t *testing.T) {
	dir := t.TempDir()
	cuePath := writeTestDisc(t, dir, 4)

	disc, err := Load(cuePath)
	require.NoError(t, err)
	require.Len(t, disc.Tracks, 1)
	require.Equal(t, 1, disc.Tracks[0].Number)
	require.Equal(t, "MODE2/2352", disc.Tracks[0].Mode)
	require.Equal(t, 0, disc.Tracks[0].Start)
	require.Equal(t, 4, disc.SectorCount())
}

func TestSectorReturnsNilOutOfRange(t *testing.T) {
	dir := t.TempDir()
	cuePath := writeTestDisc(t, dir, 2)

	disc, err := Load(cuePath)
	require.NoError(t, err)
	require.NotNil(t, disc.Sector(0))
	require.NotNil(t, disc.Sector(1))
	require.Nil(t, disc.Sector(2))
}

func TestLoadMissingFileLineErrors(t *testing.T) {
	dir := t.TempDir()
	cuePath := filepath.Join(dir, "broken.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte("TRACK 01 MODE2/2352\n"), 0o644))

	_, err := Load(cuePath)
	require.Error(t, err)
}

func TestParseMSF(t *testing.T) {
	sectors, err := parseMSF("01:02:03")
	require.NoError(t, err)
	require.Equal(t, (1*60+2)*75+3, sectors)

	_, err = parseMSF("bad")
	require.Error(t, err)
}

func TestSplitCueLineHandlesQuotedFilenames(t *testing.T) {
	fields := splitCueLine(`FILE "my game.bin" BINARY`)
	require.Equal(t, []string{"FILE", "my game.bin", "BINARY"}, fields)
}
