package geometry

import (
	_ "embed"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUPrimitiveMaterialSource is the canonical WGSL definition of the PrimitiveMaterial struct.
// Matches GPUPrimitiveMaterial layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/primitive_material.wgsl
var GPUPrimitiveMaterialSource string

// GPUPrimitiveAttributesSource is the canonical WGSL definition of the PrimitiveAttributes and
// PrimitiveInstance structs.
//
//go:embed assets/primitive_attributes.wgsl
var GPUPrimitiveAttributesSource string

// MaterialConstantCount is the number of 32-bit root constants a GPUPrimitiveMaterial occupies.
const MaterialConstantCount = 12

// GPUPrimitiveMaterial is the GPU-aligned material of a single primitive. It is bound as local
// root constants in every hit-group record and stored in the procedural material buffer.
// Size: 48 bytes.
type GPUPrimitiveMaterial struct {
	Albedo          [4]float32 // offset  0: base color (vec4<f32>)
	ReflectanceCoef float32    // offset 16
	RefractiveCoef  float32    // offset 20
	DiffuseCoef     float32    // offset 24
	SpecularCoef    float32    // offset 28
	SpecularPower   float32    // offset 32
	StepScale       float32    // offset 36: ray-march step multiplier for volumetric and SDF primitives
	_pad            [2]float32 // offset 40: padding to 48 bytes
}

// Size returns the size of the GPUPrimitiveMaterial struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUPrimitiveMaterial) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPrimitiveMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUPrimitiveMaterial) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutVec4(buf, 0, g.Albedo)
	common.PutFloat32(buf, 16, g.ReflectanceCoef)
	common.PutFloat32(buf, 20, g.RefractiveCoef)
	common.PutFloat32(buf, 24, g.DiffuseCoef)
	common.PutFloat32(buf, 28, g.SpecularCoef)
	common.PutFloat32(buf, 32, g.SpecularPower)
	common.PutFloat32(buf, 36, g.StepScale)
	return buf
}

// GPUPrimitiveAttributes holds the transform pair the intersection shaders use to move rays
// between bottom-level space and the primitive's local shape space.
// Size: 128 bytes (two mat4x4<f32>).
type GPUPrimitiveAttributes struct {
	LocalSpaceToBottomLevelAS mgl32.Mat4 // offset  0
	BottomLevelASToLocalSpace mgl32.Mat4 // offset 64
}

// Size returns the size of the GPUPrimitiveAttributes struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (128)
func (g *GPUPrimitiveAttributes) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPrimitiveAttributes struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUPrimitiveAttributes) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutMat4(buf, 0, g.LocalSpaceToBottomLevelAS)
	common.PutMat4(buf, 64, g.BottomLevelASToLocalSpace)
	return buf
}

// GPUPrimitiveInstance is the second half of an AABB hit-group's local root arguments: the
// primitive's global index and its shape within its category.
// Size: 8 bytes.
type GPUPrimitiveInstance struct {
	InstanceIndex uint32 // offset 0: global primitive index (see OffsetTable)
	PrimitiveType uint32 // offset 4: shape within the category
}

// Size returns the size of the GPUPrimitiveInstance struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (8)
func (g *GPUPrimitiveInstance) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUPrimitiveInstance struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUPrimitiveInstance) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutUint32(buf, 0, g.InstanceIndex)
	common.PutUint32(buf, 4, g.PrimitiveType)
	return buf
}

// GPUAABB is the D3D12_RAYTRACING_AABB-style record a procedural bottom-level structure is
// built from. Size: 24 bytes.
type GPUAABB struct {
	Min [3]float32
	Max [3]float32
}

// Marshal serializes the GPUAABB into 24 bytes.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUAABB) Marshal() []byte {
	buf := make([]byte, 24)
	common.PutVec3(buf, 0, g.Min)
	common.PutVec3(buf, 12, g.Max)
	return buf
}
