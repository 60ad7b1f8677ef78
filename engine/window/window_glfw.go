package window

import (
	"fmt"
	"runtime"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// glfwWindow is the GLFW platform window behind an engineWindow.
type glfwWindow struct {
	parent  *engineWindow
	window  *glfw.Window
	running bool
}

// glfwLimit maps an unbounded maximum onto GLFW's DontCare.
func glfwLimit(v int) int {
	if v <= 0 {
		return glfw.DontCare
	}
	return v
}

// newPlatformWindow opens a GLFW window without a client API context; WebGPU creates its own
// surface from the native handle.
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	if w.limits.maxWidth > 0 && w.limits.maxWidth == w.limits.minWidth &&
		w.limits.maxHeight > 0 && w.limits.maxHeight == w.limits.minHeight {
		glfw.WindowHint(glfw.Resizable, glfw.False)
	}

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %w", err)
	}
	win.SetSizeLimits(w.limits.minWidth, w.limits.minHeight, glfwLimit(w.limits.maxWidth), glfwLimit(w.limits.maxHeight))

	gw := &glfwWindow{parent: w, window: win, running: true}
	w.internalWindow = gw

	win.SetKeyCallback(gw.key)
	win.SetMouseButtonCallback(gw.mouseButton)
	win.SetCursorPosCallback(gw.cursor)
	// framebuffer pixels, not screen coordinates, size the outputs on high-DPI displays
	win.SetFramebufferSizeCallback(gw.framebufferSize)

	w.width, w.height, _ = w.limits.clamp(win.GetFramebufferSize())
	return nil
}

func (gw *glfwWindow) key(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		gw.running = false
		gw.window.SetShouldClose(true)
		return
	}
	if gw.parent.onKey != nil {
		gw.parent.onKey(common.KeyEvent{Key: int(key), Action: keyAction(action)})
	}
}

func (gw *glfwWindow) mouseButton(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
	if button == glfw.MouseButtonLeft {
		gw.parent.drag.setDragging(action == glfw.Press)
	}
}

func (gw *glfwWindow) cursor(_ *glfw.Window, x, y float64) {
	ev := gw.parent.drag.move(x, y)
	if gw.parent.onMouse != nil {
		gw.parent.onMouse(ev)
	}
}

func (gw *glfwWindow) framebufferSize(_ *glfw.Window, width, height int) {
	gw.parent.framebufferResized(width, height)
}

// keyAction maps a GLFW key action onto the engine's key action.
func keyAction(action glfw.Action) common.KeyAction {
	switch action {
	case glfw.Press:
		return common.KeyPress
	case glfw.Repeat:
		return common.KeyRepeat
	default:
		return common.KeyRelease
	}
}

func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.window)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return false
	}
	return gw.running && !gw.window.ShouldClose()
}

// platformCloseWindow destroys the window and terminates GLFW.
func platformCloseWindow(w *engineWindow) error {
	gw, ok := w.internalWindow.(*glfwWindow)
	if !ok {
		return fmt.Errorf("window is not initialized")
	}
	gw.running = false
	gw.window.SetShouldClose(true)
	gw.window.Destroy()
	glfw.Terminate()
	return nil
}

// platformProcessMessages polls pending events without blocking and applies a pending title.
// GLFW window state may only be touched from the thread that created the window.
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	if title, ok := w.takeTitle(); ok {
		if gw, isGLFW := w.internalWindow.(*glfwWindow); isGLFW {
			gw.window.SetTitle(title)
		}
	}
	return platformIsRunningCheck(w)
}
