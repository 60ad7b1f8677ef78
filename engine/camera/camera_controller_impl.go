package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	maxPitch = 89.0
	minSpeed = 0.1
)

// cameraControllerImpl is the single implementation of CameraController.
type cameraControllerImpl struct {
	mu *sync.Mutex

	position mgl32.Vec3
	front    mgl32.Vec3

	yaw   float32
	pitch float32

	speed            float32
	mouseSensitivity float32
}

// Compile-time interface compliance check
var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates a new first-person camera controller. The defaults place the
// eye at (0, 5.3, -10) looking down +Z, one step is 0.2 units and the mouse turns 0.05
// degrees per pixel.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu:               &sync.Mutex{},
		position:         mgl32.Vec3{0, 5.3, -10},
		yaw:              90,
		speed:            0.2,
		mouseSensitivity: 0.05,
	}

	for _, option := range options {
		option(cc)
	}

	cc.updateFront()
	return cc
}

// --- internal helpers ---

// updateFront clamps the pitch and recomputes the view direction. Caller must hold the mutex.
func (cc *cameraControllerImpl) updateFront() {
	cc.pitch = mgl32.Clamp(cc.pitch, -maxPitch, maxPitch)
	yaw := float64(mgl32.DegToRad(cc.yaw))
	pitch := float64(mgl32.DegToRad(cc.pitch))
	cc.front = mgl32.Vec3{
		float32(math.Cos(pitch) * math.Cos(yaw)),
		float32(math.Sin(pitch)),
		float32(math.Cos(pitch) * math.Sin(yaw)),
	}.Normalize()
}

// right returns the horizontal strafe axis. Caller must hold the mutex.
func (cc *cameraControllerImpl) right() mgl32.Vec3 {
	return cc.front.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
}

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) SetPosition(position mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = position
}

func (cc *cameraControllerImpl) Front() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.front
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position.Add(cc.front)
}

func (cc *cameraControllerImpl) Yaw() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.yaw
}

func (cc *cameraControllerImpl) Pitch() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.pitch
}

func (cc *cameraControllerImpl) SetYawPitch(yaw, pitch float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.yaw = yaw
	cc.pitch = pitch
	cc.updateFront()
}

func (cc *cameraControllerImpl) Turn(dx, dy float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.yaw += dx * cc.mouseSensitivity
	cc.pitch -= dy * cc.mouseSensitivity
	cc.updateFront()
}

func (cc *cameraControllerImpl) MoveForward(steps float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = cc.position.Add(cc.front.Mul(steps * cc.speed))
}

func (cc *cameraControllerImpl) MoveRight(steps float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.position = cc.position.Add(cc.right().Mul(steps * cc.speed))
}

func (cc *cameraControllerImpl) HandleKey(key int) bool {
	switch key {
	case common.KeyW:
		cc.MoveForward(1)
	case common.KeyS:
		cc.MoveForward(-1)
	case common.KeyD:
		cc.MoveRight(1)
	case common.KeyA:
		cc.MoveRight(-1)
	case common.KeyI:
		cc.SpeedUp()
		return false
	case common.KeyO:
		cc.SlowDown()
		return false
	default:
		return false
	}
	return true
}

func (cc *cameraControllerImpl) Speed() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.speed
}

func (cc *cameraControllerImpl) SpeedUp() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.speed++
}

func (cc *cameraControllerImpl) SlowDown() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.speed--
	if cc.speed < 0 {
		cc.speed = minSpeed
	}
}

func (cc *cameraControllerImpl) MouseSensitivity() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.mouseSensitivity
}
