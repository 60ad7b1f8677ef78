package light

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPULight is the light block of the scene constants: the light_position, light_ambient_color,
// light_diffuse_color and light_sphere members of the WGSL SceneConstants struct, in that order.
// Power is uploaded separately into the light_power member.
// Size: 64 bytes, plus Power.
type GPULight struct {
	Position     mgl32.Vec4 // offset  0: point light position, w = 1
	AmbientColor mgl32.Vec4 // offset 16
	DiffuseColor mgl32.Vec4 // offset 32
	Sphere       mgl32.Vec4 // offset 48: area light center in xyz, radius in w
	Power        float32    // not part of the block
}

// Size returns the size of the marshaled light block in bytes.
//
// Returns:
//   - int: the block size in bytes (64)
func (g *GPULight) Size() int {
	return int(unsafe.Offsetof(g.Power))
}

// Marshal serializes the light block for GPU upload.
//
// Returns:
//   - []byte: 64-byte buffer ready for GPU upload
func (g *GPULight) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutVec4(buf, 0, g.Position)
	common.PutVec4(buf, 16, g.AmbientColor)
	common.PutVec4(buf, 32, g.DiffuseColor)
	common.PutVec4(buf, 48, g.Sphere)
	return buf
}
