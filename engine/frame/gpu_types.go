package frame

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Element sizes of the storage buffers the passes share.
const (
	pixelSize       = 16 // vec4<f32>
	lightVertexSize = 48 // LightVertex
	photonSize      = 32 // Photon
	counterSize     = 16 // array<atomic<u32>>, one used word
)

// GPUCompositeParams is the parameter block of the composite pass.
// Matches the WGSL CompositeParams struct.
// Size: 32 bytes.
type GPUCompositeParams struct {
	Blend        uint32 // offset  0: 0 replace, 1 accumulate
	Accumulation uint32 // offset  4: frames already averaged into the accumulation view
	Width        uint32 // offset  8
	Height       uint32 // offset 12
	RasterOnly   uint32 // offset 16: 1 presents the raster view alone
	_            [3]uint32
}

// Size returns the size of the GPUCompositeParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (32)
func (g *GPUCompositeParams) Size() int {
	return 32
}

// Marshal serializes the GPUCompositeParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUCompositeParams) Marshal() []byte {
	buf := make([]byte, g.Size())
	common.PutUint32(buf, 0, g.Blend)
	common.PutUint32(buf, 4, g.Accumulation)
	common.PutUint32(buf, 8, g.Width)
	common.PutUint32(buf, 12, g.Height)
	common.PutUint32(buf, 16, g.RasterOnly)
	return buf
}
