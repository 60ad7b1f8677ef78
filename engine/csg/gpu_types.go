package csg

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// GPUCSGNodeSource is the canonical WGSL definition of the CSGNode struct.
// Matches the GPUCSGNodeSize layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/csg_node.wgsl
var GPUCSGNodeSource string

// GPUCSGNodeSize is the byte size of one node record in the CSG buffer.
//
//	offset  0: translation (vec3<f32>)
//	offset 12: op (i32)
//	offset 16: geometry (i32)
//	offset 20: parent_index (i32)
//	offset 24: left_index (i32)
//	offset 28: right_index (i32)
//	offset 32: index (u32)
//	offset 36: padding to 48 bytes
const GPUCSGNodeSize = 48

// MarshalNode serializes a single node into its GPU record.
//
// Parameters:
//   - n: the node
//
// Returns:
//   - []byte: GPUCSGNodeSize bytes
func MarshalNode(n Node) []byte {
	buf := make([]byte, GPUCSGNodeSize)
	common.PutVec3(buf, 0, n.Translation)
	common.PutInt32(buf, 12, int32(n.Op))
	common.PutInt32(buf, 16, int32(n.Geometry))
	common.PutInt32(buf, 20, int32(n.Parent))
	common.PutInt32(buf, 24, int32(n.Left))
	common.PutInt32(buf, 28, int32(n.Right))
	common.PutUint32(buf, 32, uint32(n.Index))
	return buf
}

// Marshal serializes the whole tree in node order. The result is the buffer the CSG
// intersection shader reads; node i lives at offset i*GPUCSGNodeSize.
//
// Returns:
//   - []byte: Len()*GPUCSGNodeSize bytes
func (t *Tree) Marshal() []byte {
	buf := make([]byte, 0, len(t.nodes)*GPUCSGNodeSize)
	for _, n := range t.nodes {
		buf = append(buf, MarshalNode(n)...)
	}
	return buf
}
