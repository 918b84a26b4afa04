// Package host implements the SDL2 presentation shell: a window/texture
// pair fed by Psx.BlitFront, a 44.1kHz float32 audio queue fed by
// Psx.TakeAudioBuffer, and a keyboard-to-digital-pad mapping driving
// Psx.ChangeControllerKey, generalizing teacher's internal/ui/ui.go
// (SDL2 window + texture + audio queue + keyboard poll loop) from its
// fixed 320x200 RGB888 framebuffer to the PSX's variable-resolution
// RGBA8 display area.
package host

import (
	"fmt"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"psxemu/internal/controller"
	"psxemu/internal/emulator"
)

// Shell drives one Psx machine inside an SDL2 window.
type Shell struct {
	window   *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32

	psx        *emulator.Psx
	running    bool
	paused     bool
	scale      int
	fullscreen bool
	audioDev   sdl.AudioDeviceID
}

// keyBinding pairs an SDL scancode with the digital pad key it drives.
type keyBinding struct {
	scancode sdl.Scancode
	key      controller.DigitalControllerKey
}

// bindings mirrors a standard PSX pad layout onto a keyboard, the same
// arrows+WASD+shoulder shape teacher's updateInput used for its simpler
// 12-button pad.
var bindings = []keyBinding{
	{sdl.SCANCODE_UP, controller.KeyUp},
	{sdl.SCANCODE_DOWN, controller.KeyDown},
	{sdl.SCANCODE_LEFT, controller.KeyLeft},
	{sdl.SCANCODE_RIGHT, controller.KeyRight},
	{sdl.SCANCODE_RETURN, controller.KeyStart},
	{sdl.SCANCODE_RSHIFT, controller.KeySelect},
	{sdl.SCANCODE_LSHIFT, controller.KeySelect},
	{sdl.SCANCODE_X, controller.KeyX},
	{sdl.SCANCODE_S, controller.KeyCircle},
	{sdl.SCANCODE_Z, controller.KeySquare},
	{sdl.SCANCODE_A, controller.KeyTriangle},
	{sdl.SCANCODE_Q, controller.KeyL1},
	{sdl.SCANCODE_W, controller.KeyR1},
	{sdl.SCANCODE_1, controller.KeyL2},
	{sdl.SCANCODE_2, controller.KeyR2},
	{sdl.SCANCODE_3, controller.KeyL3},
	{sdl.SCANCODE_4, controller.KeyR3},
}

// New creates the SDL2 window, renderer, and audio device for psx,
// sized for a 640x480 display area at scale. When unlimited is true the
// renderer skips vsync pacing, running as fast as the host can clock
// frames.
func New(psx *emulator.Psx, scale int, unlimited bool) (*Shell, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("failed to initialize SDL: %w", err)
	}

	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "0")

	width := int32(640 * scale)
	height := int32(480 * scale)

	window, err := sdl.CreateWindow(
		"psxemu",
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		width, height,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE,
	)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	rendererFlags := uint32(sdl.RENDERER_ACCELERATED)
	if !unlimited {
		rendererFlags |= sdl.RENDERER_PRESENTVSYNC
	}
	renderer, err := sdl.CreateRenderer(window, -1, rendererFlags)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	audioSpec := sdl.AudioSpec{
		Freq:     44100,
		Format:   sdl.AUDIO_F32,
		Channels: 2,
		Samples:  735,
	}
	audioDev, err := sdl.OpenAudioDevice("", false, &audioSpec, nil, 0)
	if err != nil {
		fmt.Printf("warning: failed to open audio device: %v\n", err)
		audioDev = 0
	} else {
		sdl.PauseAudioDevice(audioDev, false)
	}

	return &Shell{
		window:   window,
		renderer: renderer,
		psx:      psx,
		running:  true,
		scale:    scale,
		audioDev: audioDev,
	}, nil
}

// Run blocks the calling goroutine, running one Psx frame per iteration
// until the window is closed.
func (s *Shell) Run() error {
	defer s.Cleanup()

	for s.running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			s.handleEvent(event)
		}

		if !s.paused {
			s.psx.ClockFrame()
		}

		s.pollInput()
		s.queueAudio()
		if err := s.render(); err != nil {
			return err
		}

		sdl.Delay(1)
	}

	return nil
}

func (s *Shell) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		s.running = false

	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN {
			return
		}
		switch e.Keysym.Sym {
		case sdl.K_ESCAPE:
			s.running = false
		case sdl.K_SPACE:
			s.paused = !s.paused
		case sdl.K_r:
			if sdl.GetModState()&sdl.KMOD_CTRL != 0 {
				s.psx.Reset()
			}
		case sdl.K_f:
			if sdl.GetModState()&sdl.KMOD_ALT != 0 {
				s.toggleFullscreen()
			}
		}
	}
}

// pollInput reads the current keyboard state and pushes every bound
// key's pressed/released transition to the digital pad.
func (s *Shell) pollInput() {
	keys := sdl.GetKeyboardState()
	for _, b := range bindings {
		s.psx.ChangeControllerKey(b.key, keys[b.scancode] != 0)
	}
}

func (s *Shell) queueAudio() {
	if s.audioDev == 0 {
		return
	}
	samples := s.psx.TakeAudioBuffer()
	if len(samples) == 0 {
		return
	}

	queued := sdl.GetQueuedAudioSize(s.audioDev)
	maxQueued := uint32(len(samples) * 4 * 2)
	if queued >= maxQueued {
		return
	}

	raw := make([]byte, len(samples)*4)
	for i, sample := range samples {
		bytes := (*[4]byte)(unsafe.Pointer(&sample))
		copy(raw[i*4:], bytes[:])
	}
	if err := sdl.QueueAudio(s.audioDev, raw); err != nil {
		fmt.Printf("warning: failed to queue audio: %v\n", err)
	}
}

func (s *Shell) render() error {
	pixels, width, height := s.psx.BlitFront()
	if width == 0 || height == 0 || len(pixels) == 0 {
		return nil
	}

	if err := s.ensureTexture(int32(width), int32(height)); err != nil {
		return err
	}

	if err := s.texture.Update(nil, unsafe.Pointer(&pixels[0]), int(width)*4); err != nil {
		return fmt.Errorf("failed to update texture: %w", err)
	}

	s.renderer.Clear()
	outputW, outputH, _ := s.renderer.GetOutputSize()
	dstRect := &sdl.Rect{X: 0, Y: 0, W: int32(outputW), H: int32(outputH)}
	if err := s.renderer.Copy(s.texture, nil, dstRect); err != nil {
		return fmt.Errorf("failed to copy texture: %w", err)
	}
	s.renderer.Present()
	return nil
}

// ensureTexture (re)creates the streaming texture whenever the display
// area's resolution changes, since GPUSTAT's resolution bits can change
// at runtime (spec §3 GPU display-mode switches).
func (s *Shell) ensureTexture(w, h int32) error {
	if s.texture != nil && s.texW == w && s.texH == h {
		return nil
	}
	if s.texture != nil {
		s.texture.Destroy()
	}
	texture, err := s.renderer.CreateTexture(sdl.PIXELFORMAT_ABGR8888, sdl.TEXTUREACCESS_STREAMING, w, h)
	if err != nil {
		return fmt.Errorf("failed to create texture: %w", err)
	}
	s.texture = texture
	s.texW = w
	s.texH = h
	return nil
}

func (s *Shell) toggleFullscreen() {
	if s.fullscreen {
		s.window.SetFullscreen(0)
		s.fullscreen = false
	} else {
		s.window.SetFullscreen(sdl.WINDOW_FULLSCREEN_DESKTOP)
		s.fullscreen = true
	}
}

// Cleanup releases every SDL resource the shell owns.
func (s *Shell) Cleanup() {
	if s.audioDev != 0 {
		sdl.CloseAudioDevice(s.audioDev)
	}
	if s.texture != nil {
		s.texture.Destroy()
	}
	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
}
