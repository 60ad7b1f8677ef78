package renderer

import (
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSurface sets the presentation target of the WGPU backend. Its size becomes the initial resolution.
//
// Parameters:
//   - surface: the surface, usually a window.Window
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option to a renderer
func WithSurface(surface Surface) RendererBuilderOption {
	return func(r *renderer) {
		r.surface = surface
	}
}

// WithResolution sets the initial resolution of a headless renderer. The WGPU backend takes
// its resolution from the surface.
//
// Parameters:
//   - width: the width in pixels
//   - height: the height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the resolution option to a renderer
func WithResolution(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.width, r.height = width, height
	}
}

// WithShaderCompiler sets the compiler every shader library is compiled with when its first
// pipeline is registered. Defaults to shader.NagaCompiler; nil skips compilation and leaves
// shader validation to the device.
//
// Parameters:
//   - compiler: the WGSL compiler, or nil
//
// Returns:
//   - RendererBuilderOption: a function that applies the compiler option to a renderer
func WithShaderCompiler(compiler shader.Compiler) RendererBuilderOption {
	return func(r *renderer) {
		r.compiler = compiler
	}
}

// WithDescriptorHeapCapacity sets the number of descriptor heap slots.
//
// Parameters:
//   - capacity: the slot count
//
// Returns:
//   - RendererBuilderOption: a function that applies the capacity option to a renderer
func WithDescriptorHeapCapacity(capacity int) RendererBuilderOption {
	return func(r *renderer) {
		r.heapCapacity = max(capacity, 0)
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Useful for benchmarking CPU vs GPU rendering performance.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
