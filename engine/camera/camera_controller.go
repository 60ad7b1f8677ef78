package camera

import (
	"github.com/go-gl/mathgl/mgl32"
)

// CameraController defines a first-person camera control system. Controllers own the
// positional state (eye position, yaw and pitch); the Camera reads from the controller and
// computes view/projection matrices.
//
// Angles are in degrees. The front vector is (cos pitch * cos yaw, sin pitch, cos pitch * sin yaw),
// so a yaw of 90 looks down +Z.
type CameraController interface {
	// Position returns the camera's world-space eye position.
	//
	// Returns:
	//   - mgl32.Vec3: the eye position
	Position() mgl32.Vec3

	// SetPosition sets the camera's world-space position directly.
	//
	// Parameters:
	//   - position: the eye position
	SetPosition(position mgl32.Vec3)

	// Front returns the unit view direction.
	//
	// Returns:
	//   - mgl32.Vec3: the view direction
	Front() mgl32.Vec3

	// Target returns the look-at point one unit in front of the eye.
	//
	// Returns:
	//   - mgl32.Vec3: the look-at point
	Target() mgl32.Vec3

	// Yaw returns the horizontal angle in degrees.
	//
	// Returns:
	//   - float32: the yaw
	Yaw() float32

	// Pitch returns the vertical angle in degrees, within [-89, 89].
	//
	// Returns:
	//   - float32: the pitch
	Pitch() float32

	// SetYawPitch sets both view angles. Pitch is clamped to [-89, 89].
	//
	// Parameters:
	//   - yaw: the horizontal angle in degrees
	//   - pitch: the vertical angle in degrees
	SetYawPitch(yaw, pitch float32)

	// Turn applies a mouse movement. Each axis is scaled by the mouse sensitivity; moving
	// the mouse right turns right and moving it down looks down.
	//
	// Parameters:
	//   - dx: horizontal cursor delta in pixels
	//   - dy: vertical cursor delta in pixels
	Turn(dx, dy float32)

	// MoveForward moves the eye along the view direction by steps times the speed.
	// Negative steps move back.
	//
	// Parameters:
	//   - steps: the number of steps
	MoveForward(steps float32)

	// MoveRight strafes the eye along the horizontal right axis by steps times the speed.
	// Negative steps strafe left.
	//
	// Parameters:
	//   - steps: the number of steps
	MoveRight(steps float32)

	// HandleKey applies a movement (W, A, S, D) or speed (I, O) key.
	//
	// Parameters:
	//   - key: the key code
	//
	// Returns:
	//   - bool: true if the key moved the camera
	HandleKey(key int) bool

	// Speed returns the distance of one movement step.
	//
	// Returns:
	//   - float32: the speed
	Speed() float32

	// SpeedUp increases the speed by one.
	SpeedUp()

	// SlowDown decreases the speed by one. A speed that would drop below zero becomes the minimum speed.
	SlowDown()

	// MouseSensitivity returns the degrees turned per pixel of mouse movement.
	//
	// Returns:
	//   - float32: the sensitivity
	MouseSensitivity() float32
}
