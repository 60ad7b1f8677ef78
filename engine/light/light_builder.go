package light

import "github.com/go-gl/mathgl/mgl32"

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithPosition is an option builder that sets the world-space position of the point light.
//
// Parameters:
//   - position: the position
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(position mgl32.Vec3) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = position
	}
}

// WithSphere is an option builder that sets the center and radius of the area light.
//
// Parameters:
//   - center: the world-space center
//   - radius: the radius
//
// Returns:
//   - LightBuilderOption: a function that applies the sphere option to a lightImpl
func WithSphere(center mgl32.Vec3, radius float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.sphere = center.Vec4(radius)
	}
}

// WithColors is an option builder that sets the ambient and diffuse colors.
//
// Parameters:
//   - ambient: the ambient color
//   - diffuse: the diffuse color
//
// Returns:
//   - LightBuilderOption: a function that applies the colors option to a lightImpl
func WithColors(ambient, diffuse mgl32.Vec4) LightBuilderOption {
	return func(l *lightImpl) {
		l.ambient = ambient
		l.diffuse = diffuse
	}
}

// WithPower is an option builder that sets the emission multiplier of the area light.
//
// Parameters:
//   - power: the power
//
// Returns:
//   - LightBuilderOption: a function that applies the power option to a lightImpl
func WithPower(power float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.power = power
	}
}

// WithOrbitPeriod is an option builder that sets how many seconds one orbit of the area
// light takes. Zero or a negative value keeps the light still.
//
// Parameters:
//   - seconds: the period
//
// Returns:
//   - LightBuilderOption: a function that applies the orbit option to a lightImpl
func WithOrbitPeriod(seconds float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.orbitPeriod = seconds
	}
}
