// Package compositor implements BadgeVMS's Compositor: ownership of the
// physical framebuffer, window creation/presentation with rotation and
// horizontal-flip transforms, and foreground-window arbitration.
//
// Grounded on compute_badgevms/compositor/pixel_functions.c for the pixel
// transform shapes and sdk_libs/sdl3/src/video/SDL_badgevmsvideo.c for the
// window/present lifecycle; the registry-with-mutex idiom follows
// pkg/virtualizers.Manager.
package compositor

import (
	"sync"

	"github.com/pkg/errors"
)

// PixelFormat identifies the layout of a Framebuffer's pixel buffer.
type PixelFormat int

const (
	RGB565 PixelFormat = iota
	BGR565
)

// Rotation is a display rotation angle in 90-degree steps.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Flags are the window creation flags from spec.md §4.6.
type Flags int

const (
	DoubleBuffered Flags = 1 << iota
	Fullscreen
	LowPriority
	FlipHorizontal
)

var (
	ErrWindowNotFound = errors.New("compositor: window not found")
	ErrNoFramebuffer  = errors.New("compositor: window has no framebuffer")
)

// Framebuffer is pixel storage attached to a Window, simulating a PSRAM
// allocation. Pixels are stored as packed 16-bit values regardless of
// format; format only affects how present.go interprets channel order.
type Framebuffer struct {
	Width, Height int
	Format        PixelFormat
	Pixels        []uint16
}

// NewFramebuffer allocates a width x height buffer of the given format.
func NewFramebuffer(width, height int, format PixelFormat) *Framebuffer {
	return &Framebuffer{
		Width:  width,
		Height: height,
		Format: format,
		Pixels: make([]uint16, width*height),
	}
}

// Window is a single application's drawable surface and event sink.
type Window struct {
	id    int
	title string
	flags Flags

	mu           sync.Mutex
	framebuffers []*Framebuffer

	events *eventQueue
}

// ID returns the window's compositor-assigned identifier.
func (w *Window) ID() int { return w.id }

// Title returns the window's current title.
func (w *Window) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

// FlagsGet returns the window's current flags.
func (w *Window) FlagsGet() Flags {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flags
}

// FlagsSet replaces the window's flags.
func (w *Window) FlagsSet(f Flags) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flags = f
}

// TitleSet replaces the window's title.
func (w *Window) TitleSet(title string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.title = title
}

// Compositor owns the one physical framebuffer and the live window set;
// matches spec.md §4.6.
type Compositor struct {
	mu       sync.Mutex
	rotation Rotation
	physical *Framebuffer
	windows  map[int]*Window
	order    []int // creation order, most recent last
	nextID   int
	queueCap int
}

// New creates a Compositor driving a physical surface of the given size,
// with per-window event queues of capacity queueCap (spec.md §4.7's
// "bounded capacity").
func New(physicalWidth, physicalHeight, queueCap int) *Compositor {
	if queueCap <= 0 {
		queueCap = 64
	}
	return &Compositor{
		physical: NewFramebuffer(physicalWidth, physicalHeight, RGB565),
		windows:  make(map[int]*Window),
		queueCap: queueCap,
	}
}

// SetRotation changes the compositor's rotation angle; subsequent presents
// honor it.
func (c *Compositor) SetRotation(r Rotation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rotation = r
}

// PhysicalPixels exposes the physical framebuffer's backing slice, for
// tests and the LCD driver collaborator to read out.
func (c *Compositor) PhysicalPixels() []uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.physical.Pixels
}

// WindowCreate allocates a Window and registers it; per spec, only the
// most-recently-created fullscreen window is foreground.
func (c *Compositor) WindowCreate(title string, flags Flags) *Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	w := &Window{
		id:     c.nextID,
		title:  title,
		flags:  flags,
		events: newEventQueue(c.queueCap),
	}
	c.windows[w.id] = w
	c.order = append(c.order, w.id)
	return w
}

// WindowFramebufferCreate attaches a new framebuffer to w, for
// app-managed double buffering.
func (c *Compositor) WindowFramebufferCreate(w *Window, width, height int, format PixelFormat) *Framebuffer {
	fb := NewFramebuffer(width, height, format)
	w.mu.Lock()
	w.framebuffers = append(w.framebuffers, fb)
	w.mu.Unlock()
	return fb
}

// foregroundLocked returns the id of the most-recently-created fullscreen
// window, or 0 if none. Callers hold c.mu.
func (c *Compositor) foregroundLocked() int {
	for i := len(c.order) - 1; i >= 0; i-- {
		id := c.order[i]
		w, ok := c.windows[id]
		if ok && w.FlagsGet()&Fullscreen != 0 {
			return id
		}
	}
	return 0
}

// IsForeground reports whether w currently drives the physical display.
func (c *Compositor) IsForeground(w *Window) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.foregroundLocked() == w.id
}

// WindowPresent composes w's most recent framebuffer onto the physical
// surface if w is foreground, honoring rotation and FLIP_HORIZONTAL; a
// non-foreground present is a no-op that returns promptly, per spec.md
// §4.6.
func (c *Compositor) WindowPresent(w *Window) error {
	c.mu.Lock()
	isForeground := c.foregroundLocked() == w.id
	rotation := c.rotation
	physical := c.physical
	c.mu.Unlock()

	if !isForeground {
		return nil
	}

	w.mu.Lock()
	if len(w.framebuffers) == 0 {
		w.mu.Unlock()
		return ErrNoFramebuffer
	}
	fb := w.framebuffers[len(w.framebuffers)-1]
	flip := w.flags&FlipHorizontal != 0
	w.mu.Unlock()

	blit(physical, fb, rotation, flip)
	return nil
}

// WindowDestroy removes w from the compositor.
func (c *Compositor) WindowDestroy(w *Window) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.windows[w.id]; !ok {
		return ErrWindowNotFound
	}
	delete(c.windows, w.id)
	for i, id := range c.order {
		if id == w.id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	w.destroyEvents()
	return nil
}
