package common

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestAlignUp(t *testing.T) {
	tests := []struct {
		size, alignment, want uint64
	}{
		{0, 32, 0},
		{1, 32, 32},
		{32, 32, 32},
		{48, 32, 64},
		{80, 32, 96},
		{300, 256, 512},
		{7, 0, 7},
		{7, 1, 7},
	}
	for _, tt := range tests {
		if got := AlignUp(tt.size, tt.alignment); got != tt.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", tt.size, tt.alignment, got, tt.want)
		}
	}
}

func TestErrorTaxonomy(t *testing.T) {
	v := NewValidationError("csg", "node %d has no parent", 3)
	wrapped := fmt.Errorf("scene load: %w", v)
	if !errors.Is(wrapped, ErrValidation) {
		t.Fatal("wrapped ValidationError should match ErrValidation")
	}
	var target *ValidationError
	if !errors.As(wrapped, &target) || target.Component != "csg" {
		t.Fatalf("errors.As failed, got %+v", target)
	}

	lost := fmt.Errorf("submit: %w", &DeviceLostError{Reason: "hung"})
	if !IsDeviceLost(lost) {
		t.Error("IsDeviceLost should see through wrapping")
	}
	if IsDeviceLost(v) {
		t.Error("validation error is not a device loss")
	}

	full := &ResourceExhaustionError{Resource: "descriptor heap", Capacity: 4}
	if !errors.Is(full, ErrResourceExhausted) {
		t.Error("ResourceExhaustionError should match ErrResourceExhausted")
	}
}

func TestPutMat3x4RowMajor(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3)
	buf := make([]byte, 48)
	PutMat3x4RowMajor(buf, 0, m)

	// Row-major: translation lands in the last column of each row.
	want := []float32{1, 0, 0, 1, 0, 1, 0, 2, 0, 0, 1, 3}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		if got != w {
			t.Errorf("element %d = %v, want %v", i, got, w)
		}
	}
}

func TestTransformAABB(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}}
	out := TransformAABB(b, mgl32.Translate3D(2, 0, 0).Mul4(mgl32.Scale3D(2, 1, 1)))
	if !out.Min.ApproxEqual(mgl32.Vec3{0, -1, -1}) || !out.Max.ApproxEqual(mgl32.Vec3{4, 1, 1}) {
		t.Errorf("unexpected bounds %v", out)
	}
	if !out.Valid() {
		t.Error("transformed box should be valid")
	}
}
