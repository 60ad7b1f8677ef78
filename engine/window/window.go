package window

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
)

// Window is the presentation surface of the WGPU renderer backend and the source of the
// key, mouse and resize events that drive the scene.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer size changes. Sizes are
	// clamped to the window's size limits; a minimized window reports nothing.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyCallback sets the callback for key press, repeat and release events.
	//
	// Parameters:
	//   - callback: function receiving the key event
	SetKeyCallback(callback func(ev common.KeyEvent))

	// SetMouseCallback sets the callback for cursor movement. Events carry the movement
	// since the previous event and whether the primary button is held.
	//
	// Parameters:
	//   - callback: function receiving the mouse event
	SetMouseCallback(callback func(ev common.MouseEvent))

	// SetTitle replaces the title bar text. Safe to call from any goroutine; the title is
	// applied by the message loop.
	//
	// Parameters:
	//   - title: the new title
	SetTitle(title string)

	// SurfaceDescriptor returns the platform surface descriptor the renderer creates its
	// WebGPU surface from.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil if the window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still open.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop on the calling goroutine until the window
	// closes, calling the update callback each iteration.
	ProcessMessages()

	// Width returns the framebuffer width in pixels.
	//
	// Returns:
	//   - int: width in pixels
	Width() int

	// Height returns the framebuffer height in pixels.
	//
	// Returns:
	//   - int: height in pixels
	Height() int
}

// sizeLimits bound the framebuffer size. A zero maximum leaves that dimension unbounded.
type sizeLimits struct {
	minWidth, minHeight int
	maxWidth, maxHeight int
}

// clamp fits a framebuffer size into the limits. ok is false for a minimized window.
func (l sizeLimits) clamp(width, height int) (int, int, bool) {
	if width <= 0 || height <= 0 {
		return 0, 0, false
	}
	width = max(width, l.minWidth)
	height = max(height, l.minHeight)
	if l.maxWidth > 0 {
		width = min(width, l.maxWidth)
	}
	if l.maxHeight > 0 {
		height = min(height, l.maxHeight)
	}
	return width, height, true
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	title         string
	width, height int
	limits        sizeLimits

	// internalWindow holds the platform window (glfwWindow).
	internalWindow any

	onUpdate func()
	onResize func(width, height int)
	onKey    func(ev common.KeyEvent)
	onMouse  func(ev common.MouseEvent)

	drag dragTracker

	titleMu      sync.Mutex
	pendingTitle *string
}

var _ Window = &engineWindow{}
var _ renderer.Surface = &engineWindow{}

// dragTracker converts absolute cursor positions into per-event deltas. The first position
// after a button change yields a zero delta so a press never jumps the camera.
type dragTracker struct {
	lastX, lastY float64
	primed       bool
	dragging     bool
}

func (d *dragTracker) setDragging(dragging bool) {
	d.dragging = dragging
	d.primed = false
}

func (d *dragTracker) move(x, y float64) common.MouseEvent {
	ev := common.MouseEvent{Dragging: d.dragging}
	if d.primed {
		ev.DeltaX = float32(x - d.lastX)
		ev.DeltaY = float32(y - d.lastY)
	}
	d.lastX, d.lastY = x, y
	d.primed = true
	return ev
}

// newEngineWindow applies the defaults and the options without creating a platform window.
func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:  "oxy-rt",
		width:  1280,
		height: 720,
		limits: sizeLimits{minWidth: 320, minHeight: 240},
	}
	for _, opt := range options {
		opt(w)
	}
	w.width, w.height, _ = w.limits.clamp(w.width, w.height)
	return w
}

// NewWindow creates and shows a window.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the open window
func NewWindow(options ...WindowBuilderOption) Window {
	w := newEngineWindow(options...)
	if err := newPlatformWindow(w); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(ev common.KeyEvent)) {
	w.onKey = callback
}

func (w *engineWindow) SetMouseCallback(callback func(ev common.MouseEvent)) {
	w.onMouse = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	w.pendingTitle = &title
}

// takeTitle returns the title set since the last call, if any.
func (w *engineWindow) takeTitle() (string, bool) {
	w.titleMu.Lock()
	defer w.titleMu.Unlock()
	if w.pendingTitle == nil {
		return "", false
	}
	title := *w.pendingTitle
	w.pendingTitle = nil
	w.title = title
	return title, true
}

// framebufferResized records a new framebuffer size and forwards it when it is usable.
func (w *engineWindow) framebufferResized(width, height int) {
	width, height, ok := w.limits.clamp(width, height)
	if !ok {
		return
	}
	w.width, w.height = width, height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}
