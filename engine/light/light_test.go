package light

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestOrbit(t *testing.T) {
	tests := []struct {
		name   string
		period float32
		dt     float32
		want   mgl32.Vec3
		moved  bool
	}{
		{"quarter turn", 8, 2, mgl32.Vec3{0, 1, 2}, true},
		{"half turn", 8, 4, mgl32.Vec3{-2, 1, 0}, true},
		{"still", 0, 2, mgl32.Vec3{2, 1, 0}, false},
		{"no time", 8, 0, mgl32.Vec3{2, 1, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLight(WithSphere(mgl32.Vec3{2, 1, 0}, 0.25), WithOrbitPeriod(tt.period))
			if moved := l.Orbit(tt.dt); moved != tt.moved {
				t.Errorf("Orbit() = %v, want %v", moved, tt.moved)
			}
			s := l.Sphere()
			if !s.Vec3().ApproxEqualThreshold(tt.want, 1e-4) || s.W() != 0.25 {
				t.Errorf("Sphere() = %v, want %v radius 0.25", s, tt.want)
			}
		})
	}
}

func TestGPULight(t *testing.T) {
	l := NewLight(WithPower(3))
	g := l.GPU()
	if g.Position != (mgl32.Vec4{10, 10, -10, 1}) || g.Power != 3 {
		t.Errorf("GPU() = %+v", g)
	}
	buf := g.Marshal()
	if len(buf) != 64 {
		t.Fatalf("len(Marshal()) = %d, want 64", len(buf))
	}
	// ambient green channel at offset 16+4
	bits := uint32(buf[20]) | uint32(buf[21])<<8 | uint32(buf[22])<<16 | uint32(buf[23])<<24
	if math.Float32frombits(bits) != 1 {
		t.Errorf("ambient.g = %v, want 1", math.Float32frombits(bits))
	}
}
