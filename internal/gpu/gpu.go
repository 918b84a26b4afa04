// Package gpu implements the GP0/GP1 command frontend, GPUSTAT, and a
// VRAM-owning backend run on its own goroutine (spec §4.6). Grounded on
// original_source/trapezoid-core/src/gpu.rs (GpuStat bit layout,
// AtomicGpuStat, GpuStateSnapshot, scanline/dot clocking) and
// gpu/command.rs (the Gp0Command-per-command-class frontend). The
// worker-over-channel split mirrors the teacher's device-on-goroutine
// idiom, also seen in other_examples/IntuitionAmiga-IntuitionEngine's
// coprocessor workers.
//
// The frontend coalesces consecutive polygon draws that share the same
// (semi-transparency mode, draw type, drawing offset, drawing area) into
// one backend submission, flushing on any change; semi-transparency mode
// 3 (B+F/4) never batches, since it samples a back-buffer snapshot taken
// immediately before each such draw.
package gpu

import (
	"sync/atomic"

	"psxemu/internal/debug"
	"psxemu/internal/irq"
)

// GPUSTAT bit layout (original_source/trapezoid-core/src/gpu.rs).
const (
	StatTexturePageXBase     uint32 = 0xF << 0
	StatTexturePageYBase     uint32 = 1 << 4
	StatSemiTransparency     uint32 = 0x3 << 5
	StatTexturePageColors    uint32 = 0x3 << 7
	StatDitherEnabled        uint32 = 1 << 9
	StatDrawingToDisplayArea uint32 = 1 << 10
	StatDrawingMaskBit       uint32 = 1 << 11
	StatNoDrawOnMask         uint32 = 1 << 12
	StatInterlaceField       uint32 = 1 << 13
	StatReverseFlag          uint32 = 1 << 14
	StatDisableTexture       uint32 = 1 << 15
	StatHorizontalRes2       uint32 = 1 << 16
	StatHorizontalRes1       uint32 = 0x3 << 17
	StatVerticalRes          uint32 = 1 << 19
	StatVideoMode            uint32 = 1 << 20
	StatDisplayAreaColorDepth uint32 = 1 << 21
	StatVerticalInterlace    uint32 = 1 << 22
	StatDisplayDisabled      uint32 = 1 << 23
	StatInterruptRequest     uint32 = 1 << 24
	StatDmaRequest           uint32 = 1 << 25
	StatReadyForCmdRecv      uint32 = 1 << 26
	StatReadyForToSendVram   uint32 = 1 << 27
	StatReadyForDmaRecv      uint32 = 1 << 28
	StatDmaDirectionShift           = 29
	StatDmaDirectionMask     uint32 = 0x3 << StatDmaDirectionShift
	StatOddLine              uint32 = 1 << 31
)

// DmaDirection values for GP1(0x04) / GPUSTAT bits 29-30.
const (
	DmaDirOff = iota
	DmaDirFifo
	DmaDirCpuToGp0
	DmaDirVramToCpu
)

const (
	vramWidth  = 1024
	vramHeight = 512
)

// Vertex is a single drawing-primitive vertex: screen position (already
// offset), flat or per-vertex color, and texture coordinates.
type Vertex struct {
	X, Y   int32
	R, G, B uint8
	U, V   uint8
}

// TextureParams carries the texpage/clut info latched from a textured
// primitive's second/third parameter words.
type TextureParams struct {
	ClutX, ClutY   uint16
	PageX, PageY   uint16
	ColorDepth     uint8 // 0: 4bit, 1: 8bit, 2: 15bit direct
	SemiTransparency uint8
}

// stateSnapshot mirrors GpuStateSnapshot: the drawing environment latched
// at GP0 command completion time, so later env changes (drawing offset,
// drawing area) don't retroactively affect an already-queued draw.
type stateSnapshot struct {
	drawingAreaTopLeft     [2]uint32
	drawingAreaBottomRight [2]uint32
	drawingOffset          [2]int32
	textureWindowMask      [2]uint32
	textureWindowOffset    [2]uint32
	semiTransparency       uint8
	checkMaskBeforeDraw    bool
	setMaskWhileDraw       bool
	cachedGp0E5            uint32
}

// drawBatchKey is the spec's batching key: consecutive polygon draws
// coalesce into one backend submission only while all four match.
type drawBatchKey struct {
	isRect                 bool
	semiTransparent        bool
	blendMode              uint8
	drawingOffset          [2]int32
	drawingAreaTopLeft     [2]uint32
	drawingAreaBottomRight [2]uint32
}

// GPU owns GPUSTAT, the GP0 command assembler, and the VRAM backend.
type GPU struct {
	stat atomic.Uint32

	current      gp0Command
	readFifo     []uint32
	readPos      int

	state  stateSnapshot
	backend *backend

	pendingDraw *backendCommand
	pendingKey  drawBatchKey

	scanline uint32
	dot      uint32
	frameOdd bool
	inVBlank bool

	cyclesCounter uint32

	irqCtrl *irq.Controller
	logger  *debug.Logger
}

func New(irqCtrl *irq.Controller, logger *debug.Logger) *GPU {
	g := &GPU{irqCtrl: irqCtrl, logger: logger}
	g.backend = newBackend()
	g.Reset()
	return g
}

func (g *GPU) Reset() {
	g.stat.Store(StatReadyForCmdRecv | StatReadyForDmaRecv | StatReadyForToSendVram)
	g.current = nil
	g.readFifo = nil
	g.readPos = 0
	g.pendingDraw = nil
	g.pendingKey = drawBatchKey{}
	g.state = stateSnapshot{}
	g.scanline = 0
	g.dot = 0
	g.frameOdd = false
	g.inVBlank = false
	g.cyclesCounter = 0
	g.backend.reset()
}

func (g *GPU) GPUSTAT() uint32 { return g.stat.Load() }

func (g *GPU) statUpdate(f func(uint32) uint32) {
	for {
		old := g.stat.Load()
		if g.stat.CompareAndSwap(old, f(old)) {
			return
		}
	}
}

// ReadGPUREAD services the GPUREAD port: it drains the readback FIFO one
// word at a time, which holds either a pending VRAM-to-CPU transfer or a
// GP1(0x10) environment-info reply. An info reply is returned by one read
// only; with nothing queued the port reads 0.
func (g *GPU) ReadGPUREAD() uint32 {
	if g.readPos < len(g.readFifo) {
		v := g.readFifo[g.readPos]
		g.readPos++
		if g.readPos >= len(g.readFifo) {
			g.readFifo = nil
			g.readPos = 0
			g.statUpdate(func(s uint32) uint32 { return s | StatReadyForToSendVram })
		}
		return v
	}
	return 0
}

// WriteGP0 feeds one command/parameter word into the frontend assembler.
func (g *GPU) WriteGP0(data uint32) {
	if g.current != nil {
		g.current.addParam(data)
		if !g.current.stillNeedsParams() {
			g.finishCommand()
		}
		return
	}

	cmd := instantiateGp0Command(data)
	g.current = cmd
	if !cmd.stillNeedsParams() {
		g.finishCommand()
	}
}

func (g *GPU) finishCommand() {
	cmd := g.current
	g.current = nil
	bc := cmd.exec(g, &g.state)
	if bc == nil {
		return
	}

	if bc.semiTransparent {
		bc.blendMode = g.blendModeFor(bc)
	}

	if bc.kind != cmdDrawPolygon {
		g.flushBatch()
		g.backend.submit(*bc)
		return
	}

	g.queuePolygonDraw(bc)
}

// blendModeFor resolves which of the four semi-transparency equations a
// draw uses: textured primitives carry their own mode in the texpage
// word, everything else uses the GP0(E1h) drawing-mode register.
func (g *GPU) blendModeFor(bc *backendCommand) uint8 {
	if bc.textured {
		return bc.texture.SemiTransparency
	}
	return bc.state.semiTransparency
}

// drawTriangle is one fan-triangulated triangle tagged with the texture
// state of the draw it came from, so batching can coalesce draws that
// share a blend mode/offset/area even when their texture pages differ.
type drawTriangle struct {
	verts    [3]Vertex
	textured bool
	texture  TextureParams
	blending bool
}

// triangulate fan-triangulates a GP0 polygon's vertex list (3 for a
// triangle, 4 for a quad) into the independent, texture-tagged triangles
// the rasterizer and batching buffer operate on.
func triangulate(bc *backendCommand) []drawTriangle {
	verts := bc.vertices
	if len(verts) < 3 {
		return nil
	}
	tris := make([]drawTriangle, 0, len(verts)-2)
	for i := 1; i+1 < len(verts); i++ {
		tris = append(tris, drawTriangle{
			verts:    [3]Vertex{verts[0], verts[i], verts[i+1]},
			textured: bc.textured,
			texture:  bc.texture,
			blending: bc.blending,
		})
	}
	return tris
}

// queuePolygonDraw implements the batching rule: consecutive draws whose
// (semi-transparency mode, draw type, drawing offset, drawing area) match
// are coalesced into one backend submission. Mode 3 never batches, since
// it must sample a back-buffer snapshot taken right before each draw.
func (g *GPU) queuePolygonDraw(bc *backendCommand) {
	bc.triangles = triangulate(bc)

	key := drawBatchKey{
		isRect:                 bc.isRect,
		semiTransparent:        bc.semiTransparent,
		blendMode:              bc.blendMode,
		drawingOffset:          g.state.drawingOffset,
		drawingAreaTopLeft:     g.state.drawingAreaTopLeft,
		drawingAreaBottomRight: g.state.drawingAreaBottomRight,
	}

	if bc.semiTransparent && bc.blendMode == 3 {
		g.flushBatch()
		g.backend.submit(*bc)
		return
	}

	if g.pendingDraw != nil && g.pendingKey == key {
		g.pendingDraw.triangles = append(g.pendingDraw.triangles, bc.triangles...)
		return
	}

	g.flushBatch()
	g.pendingDraw = bc
	g.pendingKey = key
}

// flushBatch submits whatever draw is currently being coalesced. Called
// whenever the batch key changes, a non-polygon command is processed, or
// VRAM is about to be read/presented, so nothing is left un-rasterized.
func (g *GPU) flushBatch() {
	if g.pendingDraw == nil {
		return
	}
	g.backend.submit(*g.pendingDraw)
	g.pendingDraw = nil
}

// WriteGP1 handles the display-control/command-FIFO-reset port.
func (g *GPU) WriteGP1(data uint32) {
	op := (data >> 24) & 0xFF
	switch op {
	case 0x00: // reset GPU
		g.Reset()
	case 0x01: // reset command buffer
		g.flushBatch()
		g.current = nil
		g.readFifo = nil
		g.readPos = 0
	case 0x02: // ack GPU interrupt
		g.statUpdate(func(s uint32) uint32 { return s &^ StatInterruptRequest })
	case 0x03: // display enable
		enable := data&1 != 0
		g.statUpdate(func(s uint32) uint32 {
			if enable {
				return s | StatDisplayDisabled
			}
			return s &^ StatDisplayDisabled
		})
	case 0x04: // DMA direction
		dir := data & 3
		g.statUpdate(func(s uint32) uint32 {
			return (s &^ StatDmaDirectionMask) | (dir << StatDmaDirectionShift)
		})
	case 0x05: // start of display area in VRAM
		g.state.cachedGp0E5 = data
	case 0x06: // horizontal display range
	case 0x07: // vertical display range
	case 0x08: // display mode
		g.setDisplayMode(data)
	case 0x10: // GPU info request, queued for the next GPUREAD
		g.handleGetGPUInfo(data & 0xFF)
	default:
		if g.logger != nil {
			g.logger.LogGPUf(debug.LogLevelWarning, "unhandled GP1(0x%02X) data=0x%08X", op, data)
		}
	}
}

func (g *GPU) setDisplayMode(data uint32) {
	hres1 := data & 0x3
	hres2 := (data >> 6) & 0x1
	vres := (data >> 2) & 0x1
	videoMode := (data >> 3) & 0x1
	colorDepth := (data >> 4) & 0x1
	interlace := (data >> 5) & 0x1

	g.statUpdate(func(s uint32) uint32 {
		s &^= StatHorizontalRes1 | StatHorizontalRes2 | StatVerticalRes |
			StatVideoMode | StatDisplayAreaColorDepth | StatVerticalInterlace
		s |= hres1 << 17
		s |= hres2 << 16
		s |= vres << 19
		s |= videoMode << 20
		s |= colorDepth << 21
		s |= interlace << 22
		return s
	})
}

func (g *GPU) handleGetGPUInfo(sub uint32) {
	switch sub {
	case 2:
		g.readFifo = []uint32{g.state.textureWindowMask[0] | (g.state.textureWindowMask[1] << 5) |
			(g.state.textureWindowOffset[0] << 10) | (g.state.textureWindowOffset[1] << 15)}
	case 3:
		g.readFifo = []uint32{g.state.drawingAreaTopLeft[0] | (g.state.drawingAreaTopLeft[1] << 10)}
	case 4:
		g.readFifo = []uint32{g.state.drawingAreaBottomRight[0] | (g.state.drawingAreaBottomRight[1] << 10)}
	case 5:
		ox := uint32(g.state.drawingOffset[0]) & 0x7FF
		oy := uint32(g.state.drawingOffset[1]) & 0x7FF
		g.readFifo = []uint32{ox | (oy << 11)}
	case 7:
		g.readFifo = []uint32{2}
	default:
		g.readFifo = []uint32{0}
	}
	g.readPos = 0
}

// isPAL reports the PAL/NTSC video-mode bit (false == NTSC).
func (g *GPU) isPAL() bool { return g.stat.Load()&StatVideoMode != 0 }

// Clock advances the dot/scanline counters by cpuCycles*11/7 GPU clocks,
// raising VBlank and toggling the odd-line bit once per frame, and returns
// that GPU clock count and whether an hblank boundary was crossed (fed to
// internal/timer for dot-clock/hblank-sourced timers). The returned count
// is not divided by the resolution-dependent dot-clock divider.
func (g *GPU) Clock(cpuCycles uint32) (dotClocks uint32, hblank bool) {
	g.cyclesCounter += cpuCycles * 11
	cycles := g.cyclesCounter / 7
	g.cyclesCounter %= 7

	maxDots := uint32(3413)
	maxScanlines := uint32(263)
	if g.isPAL() {
		maxDots = 3406
		maxScanlines = 313
	}

	g.dot += cycles
	for g.dot >= maxDots {
		g.dot -= maxDots
		g.scanline++
		hblank = true
		if g.scanline >= maxScanlines {
			g.scanline = 0
			g.frameOdd = !g.frameOdd
		}
	}
	dotClocks = cycles

	vblankLine := uint32(240)
	wasVBlank := g.inVBlank
	g.inVBlank = g.scanline >= vblankLine
	if g.inVBlank && !wasVBlank {
		g.irqCtrl.Raise(irq.VBlank)
		g.flushBatch()
		g.backend.present()
	}

	g.statUpdate(func(s uint32) uint32 {
		if g.frameOdd {
			return s | StatOddLine
		}
		return s &^ StatOddLine
	})

	return dotClocks, hblank
}

func (g *GPU) InVBlank() bool { return g.inVBlank }

// ReadVRAMDebug/WriteVRAMDebug give test code and the host panels direct
// pixel access without going through a CPU-to-VRAM blit command.
func (g *GPU) ReadVRAMDebug(x, y uint32) uint16 {
	g.flushBatch()
	return g.backend.peek(x, y)
}
func (g *GPU) WriteVRAMDebug(x, y uint32, v uint16) {
	g.flushBatch()
	g.backend.poke(x, y, v)
}

// displayResolution derives the visible frame width/height from
// GPUSTAT's horizontal/vertical resolution bits.
func (g *GPU) displayResolution() (w, h uint32) {
	stat := g.stat.Load()
	switch {
	case stat&StatHorizontalRes2 != 0:
		w = 368
	case (stat&StatHorizontalRes1)>>17 == 0:
		w = 256
	case (stat&StatHorizontalRes1)>>17 == 1:
		w = 320
	case (stat&StatHorizontalRes1)>>17 == 2:
		w = 512
	default:
		w = 640
	}
	h = 240
	if stat&StatVerticalRes != 0 && stat&StatVerticalInterlace != 0 {
		h = 480
	}
	return w, h
}

// DisplayFrame blits the current display area out of VRAM as
// straight RGBA8 (spec §6 blit_front), converting each 15-bit BGR555
// pixel with the mask bit dropped. Returns the frame plus its width
// and height.
func (g *GPU) DisplayFrame() (pixels []byte, width, height uint32) {
	g.flushBatch()
	startX := g.state.cachedGp0E5 & 0x3FF
	startY := (g.state.cachedGp0E5 >> 10) & 0x1FF
	width, height = g.displayResolution()

	block := g.backend.readBlock([2]uint32{startX, startY}, [2]uint32{width, height})
	pixels = make([]byte, 0, len(block)*4)
	for _, px := range block {
		r := uint8((px & 0x1F) << 3)
		gr := uint8(((px >> 5) & 0x1F) << 3)
		b := uint8(((px >> 10) & 0x1F) << 3)
		pixels = append(pixels, r, gr, b, 0xFF)
	}
	return pixels, width, height
}

// Read32/Write32 implement memory.IOHandler over the GP0/GPUREAD and
// GP1/GPUSTAT register pair at 0x1F80_1810/0x1F80_1814.
func (g *GPU) Read32(offset uint32) uint32 {
	switch offset {
	case 0:
		return g.ReadGPUREAD()
	case 4:
		return g.GPUSTAT()
	default:
		return 0
	}
}

func (g *GPU) Write32(offset uint32, v uint32) {
	switch offset {
	case 0:
		g.WriteGP0(v)
	case 4:
		g.WriteGP1(v)
	}
}

func (g *GPU) Read16(offset uint32) uint16 {
	return uint16(g.Read32(offset &^ 3) >> ((offset & 2) * 8))
}

func (g *GPU) Write16(offset uint32, v uint16) {
	base := offset &^ 3
	if offset&2 != 0 {
		g.Write32(base, uint32(v)<<16)
	} else {
		g.Write32(base, uint32(v))
	}
}

func (g *GPU) Read8(offset uint32) uint8 {
	return uint8(g.Read32(offset&^3) >> ((offset & 3) * 8))
}

func (g *GPU) Write8(offset uint32, v uint8) {
	g.Write32(offset&^3, uint32(v))
}
