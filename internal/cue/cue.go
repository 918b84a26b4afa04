// Package cue implements a minimal single-track CUE/BIN reader: enough
// to resolve `FILE "<name>" BINARY` / `TRACK 01 MODE2/2352` / `INDEX 01
// 00:00:00` into a sector-addressable byte blob (spec §4.8/§6). There is
// no teacher precedent for disc-image parsing — the spec itself declares
// it an external collaborator kept intentionally minimal — so this is
// grounded directly on the spec text rather than a ported reference.
package cue

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SectorSize is the raw MODE2/2352 sector size this loader supports;
// formats beyond a single binary track at this sector size are out of
// scope (spec §1 Non-goals).
const SectorSize = 2352

// Track describes one TRACK entry's mode and its INDEX 01 start,
// expressed in sectors from the start of its FILE.
type Track struct {
	Number int
	Mode   string
	Start  int // sectors
}

// Disc is the sector-addressable byte blob the CD-ROM core reads.
type Disc struct {
	Data   []byte
	Tracks []Track
}

// SectorCount reports how many full sectors Data holds.
func (d *Disc) SectorCount() int { return len(d.Data) / SectorSize }

// Sector returns the raw bytes of sector n, or nil if out of range.
func (d *Disc) Sector(n int) []byte {
	off := n * SectorSize
	if off < 0 || off+SectorSize > len(d.Data) {
		return nil
	}
	return d.Data[off : off+SectorSize]
}

// Load parses the CUE sheet at cuePath and reads the referenced BIN
// file relative to the CUE's directory.
func Load(cuePath string) (*Disc, error) {
	f, err := os.Open(cuePath)
	if err != nil {
		return nil, fmt.Errorf("cue: open %q: %w", cuePath, err)
	}
	defer f.Close()

	dir := filepath.Dir(cuePath)
	disc := &Disc{}
	var binPath string
	var curTrack *Track

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		fields := splitCueLine(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "FILE":
			if len(fields) < 2 {
				return nil, fmt.Errorf("cue: malformed FILE line %q", line)
			}
			binPath = filepath.Join(dir, fields[1])

		case "TRACK":
			if len(fields) < 3 {
				return nil, fmt.Errorf("cue: malformed TRACK line %q", line)
			}
			num, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("cue: bad track number %q: %w", fields[1], err)
			}
			disc.Tracks = append(disc.Tracks, Track{Number: num, Mode: fields[2]})
			curTrack = &disc.Tracks[len(disc.Tracks)-1]

		case "INDEX":
			if curTrack == nil || len(fields) < 3 {
				continue
			}
			if fields[1] != "01" {
				continue
			}
			sectors, err := parseMSF(fields[2])
			if err != nil {
				return nil, fmt.Errorf("cue: bad INDEX timestamp %q: %w", fields[2], err)
			}
			curTrack.Start = sectors
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cue: scan %q: %w", cuePath, err)
	}
	if binPath == "" {
		return nil, fmt.Errorf("cue: no FILE line in %q", cuePath)
	}

	data, err := os.ReadFile(binPath)
	if err != nil {
		return nil, fmt.Errorf("cue: read bin %q: %w", binPath, err)
	}
	disc.Data = data
	return disc, nil
}

// splitCueLine tokenizes a CUE line, treating a double-quoted run as a
// single field (CUE's `FILE "name with spaces" BINARY` convention).
func splitCueLine(line string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

// parseMSF converts an "MM:SS:FF" CUE timestamp into an absolute
// sector count (75 frames/second, no 2-second lead-in offset since
// this is a file-relative INDEX, not an absolute disc position).
func parseMSF(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected MM:SS:FF, got %q", s)
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	sec, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	frame, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, err
	}
	return (m*60+sec)*75 + frame, nil
}
