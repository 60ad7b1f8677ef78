package scene

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithCamera sets the scene's camera. The camera should carry a controller for the
// movement keys to have an effect.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
	}
}

// WithLight sets the scene's light.
//
// Parameters:
//   - lt: the light
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLight(lt light.Light) SceneBuilderOption {
	return func(s *scene) {
		s.lt = lt
	}
}

// WithMode sets the initial render mode.
//
// Parameters:
//   - mode: the render mode
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMode(mode common.RenderMode) SceneBuilderOption {
	return func(s *scene) {
		s.mode = mode
	}
}

// WithRenderFull sets whether every pass writes the full frame. Defaults to true.
//
// Parameters:
//   - full: the render-full flag
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRenderFull(full bool) SceneBuilderOption {
	return func(s *scene) {
		s.renderFull = full
	}
}

// WithSamplesPerPixel sets the number of samples per pixel and frame (minimum 1).
//
// Parameters:
//   - spp: the sample count
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSamplesPerPixel(spp uint32) SceneBuilderOption {
	return func(s *scene) {
		s.samplesPerPixel = max(spp, 1)
	}
}

// WithAnimation attaches an animation to a procedural primitive.
//
// Parameters:
//   - global: the global primitive index
//   - anim: the animation
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAnimation(global int, anim Animation) SceneBuilderOption {
	return func(s *scene) {
		if anim != nil {
			s.animations[global] = anim
		}
	}
}

// WithAnimating sets whether animations and the light orbit advance. Defaults to true.
//
// Parameters:
//   - animating: true to animate
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithAnimating(animating bool) SceneBuilderOption {
	return func(s *scene) {
		s.animating = animating
	}
}

// WithSeed seeds the per-frame random number generator, making the seed sequence reproducible.
//
// Parameters:
//   - seed: the seed
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithSeed(seed int64) SceneBuilderOption {
	return func(s *scene) {
		s.seed = seed
	}
}

// WithComputeWorkers sets the number of worker goroutines used for the per-primitive
// transform prep of Update. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}
