package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// Variant identifies one pipeline state object of the frame graph.
type Variant int

const (
	// VariantComposite is the raster and compute composite pass that runs after the ray passes.
	VariantComposite Variant = iota

	// VariantRaytracing is single-pass raytracing with reflections and shadow rays.
	VariantRaytracing

	// VariantForwardPath is forward path tracing from the camera.
	VariantForwardPath

	// VariantLightPathFirst traces the first bounce of the light subpaths.
	VariantLightPathFirst

	// VariantLightPathSecond traces the second bounce of the light subpaths and connects them to the camera.
	VariantLightPathSecond

	// VariantPhotonMapping emits photons from the light into the photon buffer.
	VariantPhotonMapping

	// VariantPhotonGather gathers the photon buffer from camera rays.
	VariantPhotonGather

	// VariantCount is the number of variants.
	VariantCount
)

var variantNames = [VariantCount]string{
	"composite",
	"raytracing",
	"forward-path",
	"light-path-1",
	"light-path-2",
	"photon-mapping",
	"photon-gather",
}

func (v Variant) String() string {
	if v >= 0 && v < VariantCount {
		return variantNames[v]
	}
	return fmt.Sprintf("variant(%d)", int(v))
}

// SelectVariant returns the ordered ray-dispatch passes of a render mode. Exactly one variant is
// active per dispatch; the composite variant always runs afterwards and is not part of the list.
// The raster mode dispatches no rays and returns an empty list.
//
// Parameters:
//   - mode: the render mode
//
// Returns:
//   - []Variant: the passes in execution order
func SelectVariant(mode common.RenderMode) []Variant {
	switch mode {
	case common.RenderModeRaytracing:
		return []Variant{VariantRaytracing}
	case common.RenderModePhotonMapping, common.RenderModePhotonMap:
		return []Variant{VariantPhotonMapping, VariantPhotonGather}
	case common.RenderModeBidirectional:
		return []Variant{VariantLightPathFirst, VariantLightPathSecond, VariantForwardPath}
	case common.RenderModeForwardPath:
		return []Variant{VariantForwardPath}
	case common.RenderModeLightPath:
		return []Variant{VariantLightPathFirst, VariantLightPathSecond}
	default:
		return nil
	}
}

// BlendPolicy selects how the composite pass combines a frame with the accumulation buffer.
type BlendPolicy int

const (
	// BlendReplace shows the current frame only.
	BlendReplace BlendPolicy = iota

	// BlendAccumulate averages the current frame into the accumulation buffer using the
	// accumulated-frame counter.
	BlendAccumulate
)

func (b BlendPolicy) String() string {
	if b == BlendAccumulate {
		return "accumulate"
	}
	return "replace"
}
