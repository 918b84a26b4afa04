package gpu

// gp0Command is the frontend-side state machine for one GP0 primitive:
// it accumulates parameter words until satisfied, then hands off a
// render/transfer request to the backend. Grounded on
// original_source/trapezoid-core/src/gpu/command.rs's Gp0Command trait
// (new/add_param/exec_command/still_need_params) — expressed here as a
// small interface over concrete structs instead of trait objects, since
// Go has no boxed-dyn equivalent worth reaching for.
type gp0Command interface {
	addParam(v uint32)
	stillNeedsParams() bool
	exec(g *GPU, state *stateSnapshot) *backendCommand
}

func instantiateGp0Command(data uint32) gp0Command {
	switch data >> 29 {
	case 0:
		if data>>24 == 0x02 {
			return newFillVramCommand(data)
		}
		return newMiscCommand(data)
	case 1:
		return newPolygonCommand(data)
	case 2:
		return newLineCommand(data)
	case 3:
		return newRectangleCommand(data)
	case 4:
		return newVramToVramBlitCommand(data)
	case 5:
		return newCpuToVramBlitCommand(data)
	case 6:
		return newVramToCpuBlitCommand(data)
	default: // 7
		return newEnvironmentCommand(data)
	}
}

func signExtend11(v uint32) int32 {
	v &= 0x7FF
	if v&0x400 != 0 {
		return int32(v) - 0x800
	}
	return int32(v)
}

// --- misc (cmd class 0, excluding fill-vram) ---

type miscCommand struct {
	op uint32
}

func newMiscCommand(data uint32) *miscCommand { return &miscCommand{op: data >> 24} }

func (c *miscCommand) addParam(uint32)          {}
func (c *miscCommand) stillNeedsParams() bool   { return false }
func (c *miscCommand) exec(g *GPU, _ *stateSnapshot) *backendCommand {
	switch c.op {
	case 0x1F:
		g.statUpdate(func(s uint32) uint32 { return s | StatInterruptRequest })
	}
	return nil
}

// --- fill vram rectangle (cmd byte 0x02) ---

type fillVramCommand struct {
	color       [3]uint8
	topLeft     [2]uint32
	size        [2]uint32
	paramsGot   int
}

func newFillVramCommand(data uint32) *fillVramCommand {
	return &fillVramCommand{color: colorFromWord(data)}
}

func (c *fillVramCommand) addParam(v uint32) {
	switch c.paramsGot {
	case 0:
		c.topLeft = [2]uint32{v & 0x3F0, (v >> 16) & 0x1FF}
	case 1:
		c.size = [2]uint32{((v & 0x3FF) + 0xF) &^ 0xF, (v >> 16) & 0x1FF}
	}
	c.paramsGot++
}

func (c *fillVramCommand) stillNeedsParams() bool { return c.paramsGot < 2 }

func (c *fillVramCommand) exec(*GPU, *stateSnapshot) *backendCommand {
	return &backendCommand{
		kind:    cmdFillRect,
		topLeft: c.topLeft,
		size:    c.size,
		color:   c.color,
	}
}

func colorFromWord(v uint32) [3]uint8 {
	return [3]uint8{uint8(v), uint8(v >> 8), uint8(v >> 16)}
}

// --- polygon (cmd class 1) ---

type polygonCommand struct {
	gouraud, quad, textured, semiTransparent, blending bool
	vertices                                           [4]Vertex
	tex                                                 TextureParams
	vIdx                                                int
	sub                                                 int // 0: color, 1: position, 2: texcoord
	done                                                bool
}

func newPolygonCommand(data uint32) *polygonCommand {
	c := &polygonCommand{
		gouraud:          data&(1<<28) != 0,
		quad:             data&(1<<27) != 0,
		textured:         data&(1<<26) != 0,
		semiTransparent:  data&(1<<25) != 0,
		blending:         data&(1<<24) == 0,
		sub:              1,
	}
	col := colorFromWord(data)
	c.vertices[0].R, c.vertices[0].G, c.vertices[0].B = col[0], col[1], col[2]
	return c
}

func (c *polygonCommand) vertexCount() int {
	if c.quad {
		return 4
	}
	return 3
}

func (c *polygonCommand) addParam(v uint32) {
	switch c.sub {
	case 0:
		col := colorFromWord(v)
		c.vertices[c.vIdx].R, c.vertices[c.vIdx].G, c.vertices[c.vIdx].B = col[0], col[1], col[2]
		c.sub = 1
	case 1:
		c.vertices[c.vIdx].X = signExtend11(v)
		c.vertices[c.vIdx].Y = signExtend11(v >> 16)
		if c.textured {
			c.sub = 2
		} else {
			c.advanceVertex()
		}
	case 2:
		c.vertices[c.vIdx].U = uint8(v)
		c.vertices[c.vIdx].V = uint8(v >> 8)
		if c.vIdx == 0 {
			c.tex.ClutX = uint16((v >> 16) & 0x3F) * 16
			c.tex.ClutY = uint16((v >> 22) & 0x1FF)
		} else if c.vIdx == 1 {
			c.tex.PageX = uint16((v >> 16) & 0xF) * 64
			c.tex.PageY = uint16((v>>20)&1) * 256
			c.tex.ColorDepth = uint8((v >> 23) & 3)
			c.tex.SemiTransparency = uint8((v >> 21) & 3)
		}
		c.advanceVertex()
	}
}

func (c *polygonCommand) advanceVertex() {
	c.vIdx++
	if c.vIdx >= c.vertexCount() {
		c.done = true
		return
	}
	if c.gouraud {
		c.sub = 0
	} else {
		col := c.vertices[0]
		c.vertices[c.vIdx].R, c.vertices[c.vIdx].G, c.vertices[c.vIdx].B = col.R, col.G, col.B
		c.sub = 1
	}
}

func (c *polygonCommand) stillNeedsParams() bool { return !c.done }

func (c *polygonCommand) exec(g *GPU, state *stateSnapshot) *backendCommand {
	n := c.vertexCount()
	verts := make([]Vertex, n)
	for i := 0; i < n; i++ {
		v := c.vertices[i]
		v.X += state.drawingOffset[0]
		v.Y += state.drawingOffset[1]
		verts[i] = v
	}
	return &backendCommand{
		kind:            cmdDrawPolygon,
		vertices:        verts,
		textured:        c.textured,
		texture:         c.tex,
		semiTransparent: c.semiTransparent,
		blending:        c.blending,
		state:           *state,
	}
}

// --- line / polyline (cmd class 2) ---

type lineCommand struct {
	gouraud, polyline, semiTransparent bool
	vertices                           []Vertex
	pending                            Vertex
	sub                                int
	done                                bool
}

func newLineCommand(data uint32) *lineCommand {
	c := &lineCommand{
		gouraud:         data&(1<<28) != 0,
		polyline:        data&(1<<27) != 0,
		semiTransparent: data&(1<<25) != 0,
		sub:             1,
	}
	col := colorFromWord(data)
	c.pending.R, c.pending.G, c.pending.B = col[0], col[1], col[2]
	return c
}

const lineTerminator = 0x50005000

func (c *lineCommand) addParam(v uint32) {
	switch c.sub {
	case 0:
		col := colorFromWord(v)
		c.pending.R, c.pending.G, c.pending.B = col[0], col[1], col[2]
		c.sub = 1
	case 1:
		if c.polyline && v&0xF000F000 == lineTerminator {
			c.done = true
			return
		}
		c.pending.X = signExtend11(v)
		c.pending.Y = signExtend11(v >> 16)
		c.vertices = append(c.vertices, c.pending)
		if !c.polyline && len(c.vertices) >= 2 {
			c.done = true
			return
		}
		if c.gouraud {
			c.sub = 0
		}
	}
}

func (c *lineCommand) stillNeedsParams() bool { return !c.done }

func (c *lineCommand) exec(g *GPU, state *stateSnapshot) *backendCommand {
	verts := make([]Vertex, len(c.vertices))
	for i, v := range c.vertices {
		v.X += state.drawingOffset[0]
		v.Y += state.drawingOffset[1]
		verts[i] = v
	}
	return &backendCommand{
		kind:            cmdDrawPolyline,
		vertices:        verts,
		semiTransparent: c.semiTransparent,
		state:           *state,
	}
}

// --- rectangle (cmd class 3) ---

type rectangleCommand struct {
	size            uint8 // 0 variable, 1 1x1, 2 8x8, 3 16x16
	textured        bool
	semiTransparent bool
	pos             [2]int32
	dims            [2]uint32
	tex             TextureParams
	baseU, baseV    uint8
	gotPos          bool
	gotTex          bool
	gotDims         bool
	color           [3]uint8
}

func newRectangleCommand(data uint32) *rectangleCommand {
	return &rectangleCommand{
		size:            uint8((data >> 27) & 3),
		textured:        data&(1<<26) != 0,
		semiTransparent: data&(1<<25) != 0,
		color:           colorFromWord(data),
	}
}

func (c *rectangleCommand) addParam(v uint32) {
	if !c.gotPos {
		c.pos = [2]int32{signExtend11(v), signExtend11(v >> 16)}
		c.gotPos = true
		if c.textured {
			return
		}
		if c.size == 0 {
			return
		}
		c.gotDims = true
		return
	}
	if c.textured && !c.gotTex {
		c.baseU = uint8(v)
		c.baseV = uint8(v >> 8)
		c.tex.ClutX = uint16((v>>16)&0x3F) * 16
		c.tex.ClutY = uint16((v >> 22) & 0x1FF)
		c.gotTex = true
		if c.size != 0 {
			c.gotDims = true
		}
		return
	}
	if c.size == 0 && !c.gotDims {
		c.dims = [2]uint32{v & 0x3FF, (v >> 16) & 0x1FF}
		c.gotDims = true
	}
}

func (c *rectangleCommand) stillNeedsParams() bool {
	if !c.gotPos {
		return true
	}
	if c.textured && !c.gotTex {
		return true
	}
	if c.size == 0 && !c.gotDims {
		return true
	}
	return false
}

func (c *rectangleCommand) exec(g *GPU, state *stateSnapshot) *backendCommand {
	dims := c.dims
	switch c.size {
	case 1:
		dims = [2]uint32{1, 1}
	case 2:
		dims = [2]uint32{8, 8}
	case 3:
		dims = [2]uint32{16, 16}
	}

	if c.textured {
		// Unlike polygons, a textured rectangle has no texpage word of its
		// own: it draws from whatever GP0(E1h) last latched into GPUSTAT.
		stat := g.GPUSTAT()
		c.tex.PageX = uint16(stat&StatTexturePageXBase) * 64
		c.tex.PageY = uint16((stat&StatTexturePageYBase)>>4) * 256
		c.tex.ColorDepth = uint8((stat & StatTexturePageColors) >> 7)
		c.tex.SemiTransparency = uint8((stat & StatSemiTransparency) >> 5)
	}

	x := c.pos[0] + state.drawingOffset[0]
	y := c.pos[1] + state.drawingOffset[1]
	u0, v0 := c.baseU, c.baseV
	u1, v1 := u0+uint8(dims[0]), v0+uint8(dims[1])
	verts := []Vertex{
		{X: x, Y: y, R: c.color[0], G: c.color[1], B: c.color[2], U: u0, V: v0},
		{X: x + int32(dims[0]), Y: y, R: c.color[0], G: c.color[1], B: c.color[2], U: u1, V: v0},
		{X: x, Y: y + int32(dims[1]), R: c.color[0], G: c.color[1], B: c.color[2], U: u0, V: v1},
		{X: x + int32(dims[0]), Y: y + int32(dims[1]), R: c.color[0], G: c.color[1], B: c.color[2], U: u1, V: v1},
	}
	return &backendCommand{
		kind:            cmdDrawPolygon,
		vertices:        verts,
		textured:        c.textured,
		texture:         c.tex,
		semiTransparent: c.semiTransparent,
		blending:        true,
		isRect:          true,
		state:           *state,
	}
}

// --- vram-to-vram blit (cmd class 4) ---

type vramToVramBlitCommand struct {
	src, dst [2]uint32
	size     [2]uint32
	got      int
}

func newVramToVramBlitCommand(uint32) *vramToVramBlitCommand { return &vramToVramBlitCommand{} }

func (c *vramToVramBlitCommand) addParam(v uint32) {
	switch c.got {
	case 0:
		c.src = [2]uint32{v & 0x3FF, (v >> 16) & 0x1FF}
	case 1:
		c.dst = [2]uint32{v & 0x3FF, (v >> 16) & 0x1FF}
	case 2:
		c.size = [2]uint32{((v-1)&0x3FF)+1, (((v>>16)-1)&0x1FF)+1}
	}
	c.got++
}

func (c *vramToVramBlitCommand) stillNeedsParams() bool { return c.got < 3 }

func (c *vramToVramBlitCommand) exec(*GPU, *stateSnapshot) *backendCommand {
	return &backendCommand{kind: cmdVramToVramBlit, topLeft: c.src, dst: c.dst, size: c.size}
}

// --- cpu-to-vram blit (cmd class 5) ---

type cpuToVramBlitCommand struct {
	dst          [2]uint32
	size         [2]uint32
	got          int
	words        []uint32
	wordsWanted  int
}

func newCpuToVramBlitCommand(uint32) *cpuToVramBlitCommand { return &cpuToVramBlitCommand{} }

func (c *cpuToVramBlitCommand) addParam(v uint32) {
	switch {
	case c.got == 0:
		c.dst = [2]uint32{v & 0x3FF, (v >> 16) & 0x1FF}
		c.got++
	case c.got == 1:
		w := ((v-1)&0x3FF)+1
		h := (((v>>16)-1)&0x1FF)+1
		c.size = [2]uint32{w, h}
		pixels := w * h
		c.wordsWanted = int((pixels + 1) / 2)
		c.got++
	default:
		c.words = append(c.words, v)
	}
}

func (c *cpuToVramBlitCommand) stillNeedsParams() bool {
	if c.got < 2 {
		return true
	}
	return len(c.words) < c.wordsWanted
}

func (c *cpuToVramBlitCommand) exec(*GPU, *stateSnapshot) *backendCommand {
	pixels := make([]uint16, 0, len(c.words)*2)
	for _, w := range c.words {
		pixels = append(pixels, uint16(w), uint16(w>>16))
	}
	return &backendCommand{kind: cmdWriteVramBlock, topLeft: c.dst, size: c.size, block: pixels}
}

// --- vram-to-cpu blit (cmd class 6) ---

type vramToCpuBlitCommand struct {
	src  [2]uint32
	size [2]uint32
	got  int
}

func newVramToCpuBlitCommand(uint32) *vramToCpuBlitCommand { return &vramToCpuBlitCommand{} }

func (c *vramToCpuBlitCommand) addParam(v uint32) {
	switch c.got {
	case 0:
		c.src = [2]uint32{v & 0x3FF, (v >> 16) & 0x1FF}
	case 1:
		w := ((v-1)&0x3FF)+1
		h := (((v>>16)-1)&0x1FF)+1
		c.size = [2]uint32{w, h}
	}
	c.got++
}

func (c *vramToCpuBlitCommand) stillNeedsParams() bool { return c.got < 2 }

func (c *vramToCpuBlitCommand) exec(g *GPU, _ *stateSnapshot) *backendCommand {
	g.flushBatch()
	block := g.backend.readBlock(c.src, c.size)
	words := make([]uint32, 0, (len(block)+1)/2)
	for i := 0; i < len(block); i += 2 {
		lo := uint32(block[i])
		hi := uint32(0)
		if i+1 < len(block) {
			hi = uint32(block[i+1])
		}
		words = append(words, lo|(hi<<16))
	}
	g.readFifo = words
	g.readPos = 0
	return nil
}

// --- environment (cmd class 7, GP0(E1h..E6h)) ---

type environmentCommand struct {
	op   uint32
	data uint32
}

func newEnvironmentCommand(data uint32) *environmentCommand {
	return &environmentCommand{op: data >> 24, data: data}
}

func (c *environmentCommand) addParam(uint32)        {}
func (c *environmentCommand) stillNeedsParams() bool { return false }

func (c *environmentCommand) exec(g *GPU, state *stateSnapshot) *backendCommand {
	v := c.data
	switch c.op {
	case 0xE1:
		state.semiTransparency = uint8((v >> 5) & 3)
		g.statUpdate(func(s uint32) uint32 {
			s &^= StatTexturePageXBase | StatTexturePageYBase | StatSemiTransparency |
				StatTexturePageColors | StatDitherEnabled | StatDrawingToDisplayArea
			s |= v & 0xF
			s |= ((v >> 4) & 1) << 4
			s |= ((v >> 5) & 3) << 5
			s |= ((v >> 7) & 3) << 7
			s |= ((v >> 9) & 1) << 9
			s |= ((v >> 10) & 1) << 10
			return s
		})
	case 0xE2:
		state.textureWindowMask = [2]uint32{v & 0x1F, (v >> 5) & 0x1F}
		state.textureWindowOffset = [2]uint32{(v >> 10) & 0x1F, (v >> 15) & 0x1F}
	case 0xE3:
		state.drawingAreaTopLeft = [2]uint32{v & 0x3FF, (v >> 10) & 0x3FF}
	case 0xE4:
		state.drawingAreaBottomRight = [2]uint32{v & 0x3FF, (v >> 10) & 0x3FF}
	case 0xE5:
		state.drawingOffset = [2]int32{signExtend11(v), signExtend11(v >> 11)}
	case 0xE6:
		state.checkMaskBeforeDraw = v&1 != 0
		state.setMaskWhileDraw = v&2 != 0
		g.statUpdate(func(s uint32) uint32 {
			s &^= StatDrawingMaskBit | StatNoDrawOnMask
			s |= (v & 3) << 11
			return s
		})
	}
	return nil
}
