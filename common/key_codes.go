package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyW   = 87  // W key (ASCII), move forward
	KeyA   = 65  // A key (ASCII), strafe left
	KeyS   = 83  // S key (ASCII), move back
	KeyD   = 68  // D key (ASCII), strafe right
	KeyI   = 73  // I key (ASCII), increase camera speed
	KeyO   = 79  // O key (ASCII), decrease camera speed
	KeyR   = 82  // R key (ASCII), reset accumulation
	KeyN   = 78  // N key (ASCII), toggle full-frame rendering
	KeyEsc = 256 // Escape key (GLFW)

	Key1 = 49 // 1 key (ASCII)
	Key2 = 50 // 2 key (ASCII)
	Key3 = 51 // 3 key (ASCII)
	Key4 = 52 // 4 key (ASCII)
	Key5 = 53 // 5 key (ASCII)
	Key6 = 54 // 6 key (ASCII)
	Key7 = 55 // 7 key (ASCII)
)

// Additional non-printable keys
const (
	KeyLeftShift  = 340 // Left Shift (GLFW)
	KeyRightShift = 344 // Right Shift (GLFW)
)

// KeyAction distinguishes press, release and auto-repeat key events.
type KeyAction int

const (
	KeyRelease KeyAction = iota
	KeyPress
	KeyRepeat
)

// KeyEvent is a single discrete keyboard event delivered by the window.
type KeyEvent struct {
	Key    int
	Action KeyAction
}

// MouseEvent is a cursor movement delivered by the window. Dragging is true while the
// primary button is held.
type MouseEvent struct {
	DeltaX, DeltaY float32
	Dragging       bool
}
