package light

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	sphere   mgl32.Vec4
	ambient  mgl32.Vec4
	diffuse  mgl32.Vec4
	power    float32

	// orbitPeriod is the number of seconds the area light takes to circle the Y axis once.
	orbitPeriod float32
}

// Light defines the interface for the scene's light.
//
// The scene is lit by one point light, used by shadow rays and direct shading, and one
// spherical area light that the path-tracing and photon-mapping passes sample and emit from.
// Both are uploaded every frame as part of the scene constants via GPU().
type Light interface {
	// Position returns the world-space position of the point light.
	//
	// Returns:
	//   - mgl32.Vec3: the position
	Position() mgl32.Vec3

	// Sphere returns the area light as its center in xyz and its radius in w.
	//
	// Returns:
	//   - mgl32.Vec4: the light sphere
	Sphere() mgl32.Vec4

	// AmbientColor returns the ambient color.
	//
	// Returns:
	//   - mgl32.Vec4: color as (r, g, b, a)
	AmbientColor() mgl32.Vec4

	// DiffuseColor returns the diffuse color.
	//
	// Returns:
	//   - mgl32.Vec4: color as (r, g, b, a)
	DiffuseColor() mgl32.Vec4

	// Power returns the scalar emission multiplier of the area light.
	//
	// Returns:
	//   - float32: the power
	Power() float32

	// OrbitPeriod returns the seconds one orbit of the area light takes. Zero disables the orbit.
	//
	// Returns:
	//   - float32: the period in seconds
	OrbitPeriod() float32

	// SetPosition sets the world-space position of the point light.
	//
	// Parameters:
	//   - position: the position
	SetPosition(position mgl32.Vec3)

	// SetSphere sets the area light center and radius.
	//
	// Parameters:
	//   - center: the world-space center
	//   - radius: the radius
	SetSphere(center mgl32.Vec3, radius float32)

	// SetColors sets the ambient and diffuse colors.
	//
	// Parameters:
	//   - ambient: the ambient color
	//   - diffuse: the diffuse color
	SetColors(ambient, diffuse mgl32.Vec4)

	// SetPower sets the emission multiplier of the area light.
	//
	// Parameters:
	//   - power: the power
	SetPower(power float32)

	// Orbit rotates the area light about the world Y axis by -360 degrees times deltaTime
	// over the orbit period.
	//
	// Parameters:
	//   - deltaTime: elapsed seconds since the previous call
	//
	// Returns:
	//   - bool: true if the light moved
	Orbit(deltaTime float32) bool

	// GPU returns the light block of the scene constants.
	//
	// Returns:
	//   - GPULight: the GPU representation
	GPU() GPULight
}

var _ Light = &lightImpl{}

// NewLight creates the scene light with the defaults of the demo scene and any provided
// options applied: the point light at (10, 10, -10), the area light at
// (4.07625, 5.90386, 1.00545) with radius 0.5, cyan ambient, white diffuse, unit power and an
// eight second orbit.
//
// Parameters:
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:          &sync.Mutex{},
		position:    mgl32.Vec3{10, 10, -10},
		sphere:      mgl32.Vec4{4.07625, 5.90386, 1.00545, 0.5},
		ambient:     mgl32.Vec4{0, 1, 1, 1},
		diffuse:     mgl32.Vec4{1, 1, 1, 1},
		power:       1.0,
		orbitPeriod: 8.0,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Position() mgl32.Vec3 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) Sphere() mgl32.Vec4 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sphere
}

func (l *lightImpl) AmbientColor() mgl32.Vec4 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ambient
}

func (l *lightImpl) DiffuseColor() mgl32.Vec4 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.diffuse
}

func (l *lightImpl) Power() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.power
}

func (l *lightImpl) OrbitPeriod() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orbitPeriod
}

func (l *lightImpl) SetPosition(position mgl32.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = position
}

func (l *lightImpl) SetSphere(center mgl32.Vec3, radius float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sphere = center.Vec4(radius)
}

func (l *lightImpl) SetColors(ambient, diffuse mgl32.Vec4) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ambient = ambient
	l.diffuse = diffuse
}

func (l *lightImpl) SetPower(power float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.power = power
}

func (l *lightImpl) Orbit(deltaTime float32) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.orbitPeriod <= 0 || deltaTime == 0 {
		return false
	}
	angle := -2 * math.Pi * deltaTime / l.orbitPeriod
	center := mgl32.HomogRotate3DY(angle).Mul4x1(l.sphere.Vec3().Vec4(1)).Vec3()
	l.sphere = center.Vec4(l.sphere.W())
	return true
}

func (l *lightImpl) GPU() GPULight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GPULight{
		Position:     l.position.Vec4(1),
		AmbientColor: l.ambient,
		DiffuseColor: l.diffuse,
		Sphere:       l.sphere,
		Power:        l.power,
	}
}
