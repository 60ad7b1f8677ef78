package scene

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/camera"
	"github.com/Carmen-Shannon/oxy-rt/engine/light"
	"github.com/go-gl/mathgl/mgl32"
)

// GPUSceneConstantsSource is the canonical WGSL definition of the SceneConstants struct.
// Matches GPUSceneConstants layout exactly (208 bytes, uniform aligned).
//
//go:embed assets/scene_constants.wgsl
var GPUSceneConstantsSource string

// GPUSceneConstantsSize is the marshaled size of GPUSceneConstants.
const GPUSceneConstantsSize = 208

// GPUSceneConstants is the per-frame constant block every pass reads through its scene_constant slot.
// One copy lives in each frame slot of the constant buffer, 256-byte aligned.
// Size: 208 bytes.
type GPUSceneConstants struct {
	Camera          camera.GPUCamera // offset   0: projection_to_world, camera_position
	Light           light.GPULight   // offset  80: light_position .. light_sphere, power at 180
	RandomSeeds     mgl32.Vec4       // offset 144: four per-frame seeds in [0, 1)
	ElapsedTime     float32          // offset 160: seconds since start
	FrameNumber     uint32           // offset 164
	Accumulation    uint32           // offset 168: frames accumulated since the camera last moved
	SamplesPerPixel uint32           // offset 172
	Mode            uint32           // offset 176: active render mode
	CSGNodeCount    uint32           // offset 184
	RenderFull      uint32           // offset 188: 1 when every pass writes the full frame
	Resolution      [2]uint32        // offset 192: output width and height
	PassIndex       uint32           // offset 200: sub-pass index within a multi-pass mode
}

// Size returns the size of the GPUSceneConstants struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (208)
func (g *GPUSceneConstants) Size() int {
	return GPUSceneConstantsSize
}

// Marshal serializes the GPUSceneConstants struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: the serialized byte buffer
func (g *GPUSceneConstants) Marshal() []byte {
	buf := make([]byte, g.Size())
	copy(buf[0:], g.Camera.Marshal())
	copy(buf[80:], g.Light.Marshal())
	common.PutVec4(buf, 144, g.RandomSeeds)
	common.PutFloat32(buf, 160, g.ElapsedTime)
	common.PutUint32(buf, 164, g.FrameNumber)
	common.PutUint32(buf, 168, g.Accumulation)
	common.PutUint32(buf, 172, g.SamplesPerPixel)
	common.PutUint32(buf, 176, g.Mode)
	common.PutFloat32(buf, 180, g.Light.Power)
	common.PutUint32(buf, 184, g.CSGNodeCount)
	common.PutUint32(buf, 188, g.RenderFull)
	common.PutUint32(buf, 192, g.Resolution[0])
	common.PutUint32(buf, 196, g.Resolution[1])
	common.PutUint32(buf, 200, g.PassIndex)
	return buf
}
