package window

// WindowBuilderOption configures a window before it is shown.
type WindowBuilderOption func(w *engineWindow)

// WithTitle sets the initial title bar text.
//
// Parameters:
//   - title: the window title
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithTitle(title string) WindowBuilderOption {
	return func(w *engineWindow) {
		w.title = title
	}
}

// WithSize sets the requested framebuffer size. The size is clamped to the size limits.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSize(width, height int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.width = width
		w.height = height
	}
}

// WithSizeLimits bounds the size the user can resize the window to, and with it the size of
// every output the frame orchestrator allocates. A zero maximum leaves that dimension
// unbounded; equal minimum and maximum fix the size.
//
// Parameters:
//   - minWidth, minHeight: the smallest framebuffer size in pixels
//   - maxWidth, maxHeight: the largest framebuffer size in pixels, or 0
//
// Returns:
//   - WindowBuilderOption: option function to apply
func WithSizeLimits(minWidth, minHeight, maxWidth, maxHeight int) WindowBuilderOption {
	return func(w *engineWindow) {
		w.limits = sizeLimits{
			minWidth:  max(minWidth, 1),
			minHeight: max(minHeight, 1),
			maxWidth:  maxWidth,
			maxHeight: maxHeight,
		}
	}
}
