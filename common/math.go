package common

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// PutFloat32 writes v little-endian at buf[offset:offset+4].
func PutFloat32(buf []byte, offset int, v float32) {
	binary.LittleEndian.PutUint32(buf[offset:], math.Float32bits(v))
}

// PutUint32 writes v little-endian at buf[offset:offset+4].
func PutUint32(buf []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(buf[offset:], v)
}

// PutInt32 writes v little-endian at buf[offset:offset+4].
func PutInt32(buf []byte, offset int, v int32) {
	binary.LittleEndian.PutUint32(buf[offset:], uint32(v))
}

// PutVec3 writes three consecutive float32 values starting at offset.
func PutVec3(buf []byte, offset int, v mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		PutFloat32(buf, offset+i*4, v[i])
	}
}

// PutVec4 writes four consecutive float32 values starting at offset.
func PutVec4(buf []byte, offset int, v mgl32.Vec4) {
	for i := 0; i < 4; i++ {
		PutFloat32(buf, offset+i*4, v[i])
	}
}

// PutMat4 writes m in column-major order (the WGSL mat4x4<f32> layout), 64 bytes.
func PutMat4(buf []byte, offset int, m mgl32.Mat4) {
	for i := 0; i < 16; i++ {
		PutFloat32(buf, offset+i*4, m[i])
	}
}

// PutMat3x4RowMajor writes the upper three rows of m in row-major order, 48 bytes.
// This is the transform layout of a top-level acceleration structure instance.
//
// Parameters:
//   - buf: destination buffer
//   - offset: byte offset of the first element
//   - m: the affine transform to write; its bottom row is dropped
func PutMat3x4RowMajor(buf []byte, offset int, m mgl32.Mat4) {
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			PutFloat32(buf, offset+(row*4+col)*4, m.At(row, col))
		}
	}
}

// TransformAABB returns the world-space bounds of b under the affine transform m.
//
// Parameters:
//   - b: the local-space box
//   - m: the transform to apply
//
// Returns:
//   - AABB: the axis-aligned box enclosing all eight transformed corners
func TransformAABB(b AABB, m mgl32.Mat4) AABB {
	out := AABB{
		Min: mgl32.Vec3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: mgl32.Vec3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
	for i := 0; i < 8; i++ {
		corner := mgl32.Vec3{b.Min.X(), b.Min.Y(), b.Min.Z()}
		if i&1 != 0 {
			corner[0] = b.Max.X()
		}
		if i&2 != 0 {
			corner[1] = b.Max.Y()
		}
		if i&4 != 0 {
			corner[2] = b.Max.Z()
		}
		p := mgl32.TransformCoordinate(corner, m)
		out = out.Union(AABB{Min: p, Max: p})
	}
	return out
}
