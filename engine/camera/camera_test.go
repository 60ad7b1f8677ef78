package camera

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

const eps = 1e-4

func TestControllerDefaults(t *testing.T) {
	cc := NewCameraController()
	if got := cc.Position(); !got.ApproxEqualThreshold(mgl32.Vec3{0, 5.3, -10}, eps) {
		t.Errorf("Position() = %v", got)
	}
	if got := cc.Front(); !got.ApproxEqualThreshold(mgl32.Vec3{0, 0, 1}, eps) {
		t.Errorf("Front() = %v, want +Z", got)
	}
	if cc.Speed() != 0.2 || cc.MouseSensitivity() != 0.05 {
		t.Errorf("Speed() = %v, MouseSensitivity() = %v", cc.Speed(), cc.MouseSensitivity())
	}
}

func TestTurnClampsPitch(t *testing.T) {
	tests := []struct {
		name      string
		dx, dy    float32
		wantYaw   float32
		wantPitch float32
	}{
		{"right", 200, 0, 100, 0},
		{"look up", 0, -400, 90, 20},
		{"clamp up", 0, -4000, 90, 89},
		{"clamp down", 0, 4000, 90, -89},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc := NewCameraController()
			cc.Turn(tt.dx, tt.dy)
			if math.Abs(float64(cc.Yaw()-tt.wantYaw)) > eps || math.Abs(float64(cc.Pitch()-tt.wantPitch)) > eps {
				t.Errorf("yaw, pitch = %v, %v, want %v, %v", cc.Yaw(), cc.Pitch(), tt.wantYaw, tt.wantPitch)
			}
			if l := cc.Front().Len(); math.Abs(float64(l-1)) > eps {
				t.Errorf("|Front()| = %v", l)
			}
		})
	}
}

func TestHandleKey(t *testing.T) {
	tests := []struct {
		key       int
		wantMoved bool
		wantPos   mgl32.Vec3
	}{
		{common.KeyW, true, mgl32.Vec3{0, 5.3, -9.8}},
		{common.KeyS, true, mgl32.Vec3{0, 5.3, -10.2}},
		{common.KeyD, true, mgl32.Vec3{-0.2, 5.3, -10}},
		{common.KeyA, true, mgl32.Vec3{0.2, 5.3, -10}},
		{common.KeyI, false, mgl32.Vec3{0, 5.3, -10}},
		{common.KeyR, false, mgl32.Vec3{0, 5.3, -10}},
	}
	for _, tt := range tests {
		cc := NewCameraController()
		if moved := cc.HandleKey(tt.key); moved != tt.wantMoved {
			t.Errorf("HandleKey(%d) = %v, want %v", tt.key, moved, tt.wantMoved)
		}
		if got := cc.Position(); !got.ApproxEqualThreshold(tt.wantPos, eps) {
			t.Errorf("HandleKey(%d): Position() = %v, want %v", tt.key, got, tt.wantPos)
		}
	}
}

func TestSpeedKeys(t *testing.T) {
	cc := NewCameraController(WithSpeed(1.5))
	cc.SpeedUp()
	if cc.Speed() != 2.5 {
		t.Fatalf("Speed() = %v after SpeedUp, want 2.5", cc.Speed())
	}
	cc.SlowDown()
	cc.SlowDown()
	if math.Abs(float64(cc.Speed()-0.5)) > eps {
		t.Fatalf("Speed() = %v, want 0.5", cc.Speed())
	}
	cc.SlowDown()
	if cc.Speed() != minSpeed {
		t.Errorf("Speed() = %v below zero, want %v", cc.Speed(), minSpeed)
	}
}

func TestCameraProjectionToWorld(t *testing.T) {
	cc := NewCameraController(WithPosition(mgl32.Vec3{1, 2, 3}))
	cam := NewCamera(WithController(cc), WithFov(mgl32.DegToRad(60)), WithNear(0.1))
	cam.SetAspect(16.0 / 9.0)

	vp := cam.ViewProjectionMatrix()
	if got := vp.Mul4(cam.ProjectionToWorld()); !got.ApproxEqualThreshold(mgl32.Ident4(), 1e-3) {
		t.Errorf("viewProj * projectionToWorld = %v, want identity", got)
	}

	// the center of the far plane unprojects onto the view axis
	p := cam.ProjectionToWorld().Mul4x1(mgl32.Vec4{0, 0, 1, 1})
	dir := p.Vec3().Mul(1 / p.W()).Sub(cc.Position()).Normalize()
	if !dir.ApproxEqualThreshold(cc.Front(), 1e-2) {
		t.Errorf("center ray = %v, want %v", dir, cc.Front())
	}

	gpu := cam.GPU()
	if gpu.Position != (mgl32.Vec4{1, 2, 3, 1}) || len(gpu.Marshal()) != 80 {
		t.Errorf("GPU() = %+v", gpu)
	}
}

func TestCameraVersion(t *testing.T) {
	cc := NewCameraController()
	cam := NewCamera(WithController(cc))
	v := cam.Version()

	cam.Update()
	if cam.Version() != v {
		t.Errorf("Update without movement changed the version")
	}
	cc.MoveForward(1)
	cam.Update()
	if cam.Version() == v {
		t.Errorf("Update after movement kept version %d", v)
	}
	v = cam.Version()
	cam.SetFov(mgl32.DegToRad(60))
	if cam.Version() == v {
		t.Errorf("SetFov kept version %d", v)
	}

	bare := NewCamera()
	bare.Update()
	if bare.Version() != 0 || bare.Position() != (mgl32.Vec3{}) {
		t.Errorf("camera without controller: version %d, position %v", bare.Version(), bare.Position())
	}
}
