package gpu

// backend owns the 1024x512 16bpp VRAM and performs every draw/transfer
// request on its own goroutine, communicated over a channel — grounded
// on original_source/trapezoid-core/src/gpu.rs's BackendCommand enum
// sent over an mpsc channel to a dedicated render thread. Unlike the
// Rust version (genuinely async against a Vulkan device), this backend
// processes each command synchronously with respect to its sender: the
// frontend blocks until the backend acks, which keeps frame output
// deterministic for testing while preserving the "VRAM is only touched
// by its owning goroutine" shape.
type backend struct {
	vram  [vramWidth * vramHeight]uint16
	front [vramWidth * vramHeight]uint16

	// backBuffer holds the frame snapshot semi-transparency mode 3 (B+F/4)
	// blends against; it is refreshed immediately before each mode-3 draw
	// rather than sampling vram live, so a batch of mode-3 draws each see
	// the previous draw's committed result instead of racing their own
	// in-flight writes (spec: mode 3 "requires back-buffer sampling").
	backBuffer [vramWidth * vramHeight]uint16

	reqCh  chan backendRequest
	frames int
}

type backendCmdKind int

const (
	cmdFillRect backendCmdKind = iota
	cmdDrawPolygon
	cmdDrawPolyline
	cmdWriteVramBlock
	cmdVramToVramBlit
)

type backendCommand struct {
	kind backendCmdKind

	topLeft [2]uint32
	dst     [2]uint32
	size    [2]uint32
	color   [3]uint8

	vertices        []Vertex
	triangles       []drawTriangle
	textured        bool
	texture         TextureParams
	semiTransparent bool
	blending        bool
	isRect          bool
	blendMode       uint8 // resolved semi-transparency mode (0-3), valid when semiTransparent
	state           stateSnapshot

	block []uint16
}

type backendReqKind int

const (
	reqSubmit backendReqKind = iota
	reqPeek
	reqPoke
	reqReadBlock
	reqPresent
	reqReset
)

type backendRequest struct {
	kind backendReqKind
	cmd  backendCommand
	x, y uint32
	v    uint16
	tl, sz [2]uint32
	done chan []uint16
}

func newBackend() *backend {
	b := &backend{reqCh: make(chan backendRequest)}
	go b.run()
	return b
}

func (b *backend) run() {
	for req := range b.reqCh {
		switch req.kind {
		case reqSubmit:
			b.process(req.cmd)
			close(req.done)
		case reqPeek:
			req.done <- []uint16{b.vram[req.y*vramWidth+req.x]}
		case reqPoke:
			b.vram[req.y*vramWidth+req.x] = req.v
			close(req.done)
		case reqReadBlock:
			req.done <- b.extractBlock(req.tl, req.sz)
		case reqPresent:
			copy(b.front[:], b.vram[:])
			b.frames++
			close(req.done)
		case reqReset:
			for i := range b.vram {
				b.vram[i] = 0
			}
			close(req.done)
		}
	}
}

func (b *backend) submit(cmd backendCommand) {
	done := make(chan []uint16)
	b.reqCh <- backendRequest{kind: reqSubmit, cmd: cmd, done: done}
	<-done
}

func (b *backend) peek(x, y uint32) uint16 {
	done := make(chan []uint16, 1)
	b.reqCh <- backendRequest{kind: reqPeek, x: x, y: y, done: done}
	return (<-done)[0]
}

func (b *backend) poke(x, y uint32, v uint16) {
	done := make(chan []uint16)
	b.reqCh <- backendRequest{kind: reqPoke, x: x, y: y, v: v, done: done}
	<-done
}

func (b *backend) readBlock(topLeft, size [2]uint32) []uint16 {
	done := make(chan []uint16, 1)
	b.reqCh <- backendRequest{kind: reqReadBlock, tl: topLeft, sz: size, done: done}
	return <-done
}

func (b *backend) present() {
	done := make(chan []uint16)
	b.reqCh <- backendRequest{kind: reqPresent, done: done}
	<-done
}

func (b *backend) reset() {
	done := make(chan []uint16)
	b.reqCh <- backendRequest{kind: reqReset, done: done}
	<-done
}

func (b *backend) extractBlock(topLeft, size [2]uint32) []uint16 {
	out := make([]uint16, 0, size[0]*size[1])
	for y := uint32(0); y < size[1]; y++ {
		row := (topLeft[1] + y) % vramHeight
		for x := uint32(0); x < size[0]; x++ {
			col := (topLeft[0] + x) % vramWidth
			out = append(out, b.vram[row*vramWidth+col])
		}
	}
	return out
}

func packColor(r, g, b uint8, mask bool) uint16 {
	v := (uint16(r>>3) & 0x1F) | ((uint16(g>>3) & 0x1F) << 5) | ((uint16(b>>3) & 0x1F) << 10)
	if mask {
		v |= 0x8000
	}
	return v
}

// unpackColor expands a 15-bit VRAM pixel back to 8-bit-per-channel
// (the same <<3 widening DisplayFrame uses) plus its mask/STP bit.
func unpackColor(v uint16) (r, g, b uint8, mask bool) {
	r = uint8((v & 0x1F) << 3)
	g = uint8(((v >> 5) & 0x1F) << 3)
	b = uint8(((v >> 10) & 0x1F) << 3)
	mask = v&0x8000 != 0
	return
}

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// blendPixel combines background bg against foreground fg per one of the
// four GPU semi-transparency equations (spec: B/2+F/2, B+F, B-F, B+F/4).
func blendPixel(mode uint8, bg, fg [3]uint8) [3]uint8 {
	var out [3]uint8
	for i := 0; i < 3; i++ {
		b, f := int32(bg[i]), int32(fg[i])
		switch mode {
		case 0:
			out[i] = clamp8(b/2 + f/2)
		case 1:
			out[i] = clamp8(b + f)
		case 2:
			out[i] = clamp8(b - f)
		default: // 3
			out[i] = clamp8(b + f/4)
		}
	}
	return out
}

// modulate applies vertex-color texture blending: texel*color/128, with
// 0x80 (mid-gray) as the neutral "full brightness, no tint" vertex color.
func modulate(texel, vertex [3]uint8) [3]uint8 {
	var out [3]uint8
	for i := 0; i < 3; i++ {
		out[i] = clamp8(int32(texel[i]) * int32(vertex[i]) / 128)
	}
	return out
}

// sampleTexel decodes one texture-mapped pixel from VRAM, following the
// texture page/CLUT addressing of spec §3's per-draw texture params:
// 4-bit and 8-bit modes index a CLUT, 15-bit mode reads color directly.
// opaque reports whether the texel is visible (PSX treats RGB==0 as a
// transparent "hole", independent of the mask bit).
func (b *backend) sampleTexel(tex TextureParams, u, v uint8) (rgb [3]uint8, opaque bool) {
	texY := (uint32(tex.PageY) + uint32(v)) % vramHeight
	var color uint16
	switch tex.ColorDepth {
	case 0: // 4bpp CLUT
		texX := (uint32(tex.PageX) + uint32(u)/4) % vramWidth
		halfword := b.vram[texY*vramWidth+texX]
		shift := (uint32(u) % 4) * 4
		idx := (uint32(halfword) >> shift) & 0xF
		clutX := (uint32(tex.ClutX) + idx) % vramWidth
		clutY := uint32(tex.ClutY) % vramHeight
		color = b.vram[clutY*vramWidth+clutX]
	case 1: // 8bpp CLUT
		texX := (uint32(tex.PageX) + uint32(u)/2) % vramWidth
		halfword := b.vram[texY*vramWidth+texX]
		shift := (uint32(u) % 2) * 8
		idx := (uint32(halfword) >> shift) & 0xFF
		clutX := (uint32(tex.ClutX) + idx) % vramWidth
		clutY := uint32(tex.ClutY) % vramHeight
		color = b.vram[clutY*vramWidth+clutX]
	default: // 2: 15bpp direct
		texX := (uint32(tex.PageX) + uint32(u)) % vramWidth
		color = b.vram[texY*vramWidth+texX]
	}
	r, g, bl, _ := unpackColor(color)
	return [3]uint8{r, g, bl}, color&0x7FFF != 0
}

// plot writes one shaded pixel, honoring the mask-bit read/write policy
// (spec §3/§8: checkMaskBeforeDraw skips masked pixels, setMaskWhileDraw
// forces the stored mask bit) and, when semiTransparent is set, blending
// against the background source appropriate for the draw's blend mode.
func (b *backend) plot(x, y int32, fg [3]uint8, semiTransparent bool, mode uint8, state *stateSnapshot) {
	if x < 0 || y < 0 {
		return
	}
	ux, uy := uint32(x)%vramWidth, uint32(y)%vramHeight
	idx := uy*vramWidth + ux

	if state.checkMaskBeforeDraw && b.vram[idx]&0x8000 != 0 {
		return
	}

	out := fg
	if semiTransparent {
		bg := b.vram[idx]
		if mode == 3 {
			bg = b.backBuffer[idx]
		}
		bgR, bgG, bgB, _ := unpackColor(bg)
		out = blendPixel(mode, [3]uint8{bgR, bgG, bgB}, fg)
	}
	b.vram[idx] = packColor(out[0], out[1], out[2], state.setMaskWhileDraw)
}

func (b *backend) process(c backendCommand) {
	switch c.kind {
	case cmdFillRect:
		col := packColor(c.color[0], c.color[1], c.color[2], false)
		for y := uint32(0); y < c.size[1]; y++ {
			row := (c.topLeft[1] + y) % vramHeight
			for x := uint32(0); x < c.size[0]; x++ {
				col2 := (c.topLeft[0] + x) % vramWidth
				b.vram[row*vramWidth+col2] = col
			}
		}
	case cmdWriteVramBlock:
		for y := uint32(0); y < c.size[1]; y++ {
			row := (c.topLeft[1] + y) % vramHeight
			for x := uint32(0); x < c.size[0]; x++ {
				idx := y*c.size[0] + x
				if int(idx) >= len(c.block) {
					continue
				}
				col := (c.topLeft[0] + x) % vramWidth
				b.vram[row*vramWidth+col] = c.block[idx]
			}
		}
	case cmdVramToVramBlit:
		for y := uint32(0); y < c.size[1]; y++ {
			srcRow := (c.topLeft[1] + y) % vramHeight
			dstRow := (c.dst[1] + y) % vramHeight
			for x := uint32(0); x < c.size[0]; x++ {
				srcCol := (c.topLeft[0] + x) % vramWidth
				dstCol := (c.dst[0] + x) % vramWidth
				b.vram[dstRow*vramWidth+dstCol] = b.vram[srcRow*vramWidth+srcCol]
			}
		}
	case cmdDrawPolygon:
		if c.semiTransparent && c.blendMode == 3 {
			copy(b.backBuffer[:], b.vram[:])
		}
		b.rasterPolygon(c)
	case cmdDrawPolyline:
		for i := 0; i+1 < len(c.vertices); i++ {
			b.rasterLine(c, c.vertices[i], c.vertices[i+1])
		}
	}
}

// rasterPolygon draws every triangle the frontend already fan-triangulated
// (see gpu.go's triangulate), applying per-pixel texture/CLUT sampling and
// semi-transparency blending alongside flat/gouraud interpolation. Each
// triangle carries its own texture params so a batched command can mix
// draws from different texture pages as long as their blend mode, drawing
// offset, and drawing area matched at batching time.
func (b *backend) rasterPolygon(c backendCommand) {
	for _, tri := range c.triangles {
		b.fillTriangle(c, tri)
	}
}

func edge(ax, ay, bx, by, px, py int64) int64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func (b *backend) fillTriangle(c backendCommand, tri drawTriangle) {
	v0, v1, v2 := tri.verts[0], tri.verts[1], tri.verts[2]
	minX := min3(v0.X, v1.X, v2.X)
	maxX := max3(v0.X, v1.X, v2.X)
	minY := min3(v0.Y, v1.Y, v2.Y)
	maxY := max3(v0.Y, v1.Y, v2.Y)
	if minX < 0 {
		minX = 0
	}
	if minY < 0 {
		minY = 0
	}
	if maxX >= vramWidth {
		maxX = vramWidth - 1
	}
	if maxY >= vramHeight {
		maxY = vramHeight - 1
	}

	area := edge(int64(v0.X), int64(v0.Y), int64(v1.X), int64(v1.Y), int64(v2.X), int64(v2.Y))
	if area == 0 {
		return
	}

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			w0 := edge(int64(v1.X), int64(v1.Y), int64(v2.X), int64(v2.Y), int64(x), int64(y))
			w1 := edge(int64(v2.X), int64(v2.Y), int64(v0.X), int64(v0.Y), int64(x), int64(y))
			w2 := edge(int64(v0.X), int64(v0.Y), int64(v1.X), int64(v1.Y), int64(x), int64(y))
			inside := (w0 >= 0 && w1 >= 0 && w2 >= 0) || (w0 <= 0 && w1 <= 0 && w2 <= 0)
			if !inside {
				continue
			}
			r := uint8((int64(v0.R)*w0 + int64(v1.R)*w1 + int64(v2.R)*w2) / area)
			g := uint8((int64(v0.G)*w0 + int64(v1.G)*w1 + int64(v2.G)*w2) / area)
			bl := uint8((int64(v0.B)*w0 + int64(v1.B)*w1 + int64(v2.B)*w2) / area)

			fg := [3]uint8{r, g, bl}
			if tri.textured {
				u := uint8((int64(v0.U)*w0 + int64(v1.U)*w1 + int64(v2.U)*w2) / area)
				vv := uint8((int64(v0.V)*w0 + int64(v1.V)*w1 + int64(v2.V)*w2) / area)
				texel, opaque := b.sampleTexel(tri.texture, u, vv)
				if !opaque {
					continue
				}
				if tri.blending {
					fg = modulate(texel, fg)
				} else {
					fg = texel
				}
			}
			b.plot(x, y, fg, c.semiTransparent, c.blendMode, &c.state)
		}
	}
}

func (b *backend) rasterLine(c backendCommand, v0, v1 Vertex) {
	x0, y0 := int64(v0.X), int64(v0.Y)
	x1, y1 := int64(v1.X), int64(v1.Y)
	dx := abs64(x1 - x0)
	dy := -abs64(y1 - y0)
	sx := int64(1)
	if x0 >= x1 {
		sx = -1
	}
	sy := int64(1)
	if y0 >= y1 {
		sy = -1
	}
	errv := dx + dy
	for {
		b.plot(int32(x0), int32(y0), [3]uint8{v0.R, v0.G, v0.B}, c.semiTransparent, c.blendMode, &c.state)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * errv
		if e2 >= dy {
			errv += dy
			x0 += sx
		}
		if e2 <= dx {
			errv += dx
			y0 += sy
		}
	}
}

func min3(a, b, c int32) int32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c int32) int32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
