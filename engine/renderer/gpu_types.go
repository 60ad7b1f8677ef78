package renderer

import (
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Node kinds of a flattened acceleration structure. Must match NODE_TRIANGLE and NODE_AABB in tracing.wgsl.
const (
	AccelNodeTriangle uint32 = 0
	AccelNodeAABB     uint32 = 1
)

// GPUAccelNode is one leaf of a flattened acceleration structure as the ray libraries read it
// from the acceleration_structure binding.
// Size: 48 bytes.
type GPUAccelNode struct {
	BoundsMin mgl32.Vec3 // offset  0
	Kind      uint32     // offset 12: AccelNodeTriangle or AccelNodeAABB
	BoundsMax mgl32.Vec3 // offset 16

	// Record is the hit-group record of the radiance ray; the ray type is added by the shader.
	Record uint32 // offset 28

	// Primitive is the triangle index into the vertex buffer or the global procedural index.
	Primitive uint32    // offset 32
	_pad      [3]uint32 // offset 36: padding to 48 bytes
}

// Size returns the size of the GPUAccelNode struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUAccelNode) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Bounds returns the node's box.
func (g *GPUAccelNode) Bounds() common.AABB {
	return common.AABB{Min: g.BoundsMin, Max: g.BoundsMax}
}

// Marshal serializes the GPUAccelNode struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUAccelNode) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutVec3(buf, 0, g.BoundsMin)
	common.PutUint32(buf, 12, g.Kind)
	common.PutVec3(buf, 16, g.BoundsMax)
	common.PutUint32(buf, 28, g.Record)
	common.PutUint32(buf, 32, g.Primitive)
	return buf
}

func marshalNodes(nodes []GPUAccelNode) []byte {
	var n GPUAccelNode
	buf := make([]byte, 0, len(nodes)*n.Size())
	for i := range nodes {
		buf = append(buf, nodes[i].Marshal()...)
	}
	return buf
}
