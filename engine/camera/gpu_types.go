package camera

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUCamera is the camera block at the start of the scene constants.
// Matches the projection_to_world and camera_position members of the WGSL SceneConstants struct.
// Size: 80 bytes.
type GPUCamera struct {
	ProjectionToWorld mgl32.Mat4 // offset  0: inverse view-projection (mat4x4<f32>)
	Position          mgl32.Vec4 // offset 64: eye position, w = 1 (vec4<f32>)
}

// Size returns the size of the GPUCamera struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (80)
func (g *GPUCamera) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUCamera struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCamera) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutMat4(buf, 0, g.ProjectionToWorld)
	common.PutVec4(buf, 64, g.Position)
	return buf
}
