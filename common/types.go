// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// ResourceHandle is an opaque identifier for a device-resident resource (buffer, root signature,
// state object, acceleration structure) handed out by the renderer. The zero value is never a valid handle.
type ResourceHandle uint64

// InvalidHandle is the zero ResourceHandle.
const InvalidHandle ResourceHandle = 0

// Valid reports whether the handle was issued by a renderer.
func (h ResourceHandle) Valid() bool {
	return h != InvalidHandle
}

// GeometryType identifies the kind of geometry a bottom-level acceleration structure is built from.
// A single bottom-level structure never mixes geometry types.
type GeometryType int

const (
	// GeometryTypeTriangle is indexed triangle geometry (the ground plane in the demo scene).
	GeometryTypeTriangle GeometryType = iota

	// GeometryTypeAABB is procedural geometry described by axis-aligned bounding boxes,
	// resolved by an intersection shader.
	GeometryTypeAABB

	// GeometryTypeCount is the number of geometry types.
	GeometryTypeCount
)

func (g GeometryType) String() string {
	switch g {
	case GeometryTypeTriangle:
		return "triangle"
	case GeometryTypeAABB:
		return "aabb"
	default:
		return fmt.Sprintf("geometry(%d)", int(g))
	}
}

// IntersectionType identifies which intersection shader resolves a procedural primitive.
// It doubles as the primitive category of the geometry store.
type IntersectionType int

const (
	// IntersectionTypeAnalytic covers primitives with a closed-form ray intersection (spheres, boxes).
	IntersectionTypeAnalytic IntersectionType = iota

	// IntersectionTypeVolumetric covers metaball-style primitives found by ray marching a field.
	IntersectionTypeVolumetric

	// IntersectionTypeSignedDistance covers primitives found by sphere tracing a signed distance function.
	IntersectionTypeSignedDistance

	// IntersectionTypeCSG covers primitives built from a boolean CSG tree.
	IntersectionTypeCSG

	// IntersectionTypeCount is the number of intersection shader types.
	IntersectionTypeCount
)

func (t IntersectionType) String() string {
	switch t {
	case IntersectionTypeAnalytic:
		return "analytic"
	case IntersectionTypeVolumetric:
		return "volumetric"
	case IntersectionTypeSignedDistance:
		return "signed-distance"
	case IntersectionTypeCSG:
		return "csg"
	default:
		return fmt.Sprintf("intersection(%d)", int(t))
	}
}

// RayType indexes miss records and the ray-type dimension of hit-group records.
type RayType int

const (
	// RayTypeRadiance is the primary shading ray.
	RayTypeRadiance RayType = iota

	// RayTypeShadow is the occlusion ray; it needs no closest-hit shading.
	RayTypeShadow

	// RayTypeCount is the number of ray types.
	RayTypeCount
)

func (r RayType) String() string {
	switch r {
	case RayTypeRadiance:
		return "radiance"
	case RayTypeShadow:
		return "shadow"
	default:
		return fmt.Sprintf("ray(%d)", int(r))
	}
}

// AABB is an axis-aligned bounding box in a primitive's bottom-level space.
type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// Center returns the midpoint of the box.
func (b AABB) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent returns the edge lengths of the box.
func (b AABB) Extent() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

// Valid reports whether Min <= Max on every axis.
func (b AABB) Valid() bool {
	return b.Min.X() <= b.Max.X() && b.Min.Y() <= b.Max.Y() && b.Min.Z() <= b.Max.Z()
}

// Union returns the smallest box that contains both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: mgl32.Vec3{min(b.Min.X(), o.Min.X()), min(b.Min.Y(), o.Min.Y()), min(b.Min.Z(), o.Min.Z())},
		Max: mgl32.Vec3{max(b.Max.X(), o.Max.X()), max(b.Max.Y(), o.Max.Y()), max(b.Max.Z(), o.Max.Z())},
	}
}

// RenderMode selects which ray-dispatch passes run each frame. Modes map to the number keys 1-7.
type RenderMode int

const (
	// RenderModeRaytracing is single-pass Whitted-style raytracing.
	RenderModeRaytracing RenderMode = iota

	// RenderModePhotonMapping emits photons from the light, then gathers them from the camera.
	RenderModePhotonMapping

	// RenderModeBidirectional traces two light-path passes followed by the forward path pass.
	RenderModeBidirectional

	// RenderModeForwardPath runs forward path tracing only.
	RenderModeForwardPath

	// RenderModeLightPath runs the two light-path passes only.
	RenderModeLightPath

	// RenderModePhotonMap visualizes the emitted photons without gathering.
	RenderModePhotonMap

	// RenderModeRaster skips ray dispatch and presents the raster pass alone.
	RenderModeRaster

	// RenderModeCount is the number of render modes.
	RenderModeCount
)

func (m RenderMode) String() string {
	switch m {
	case RenderModeRaytracing:
		return "raytracing"
	case RenderModePhotonMapping:
		return "photon-mapping"
	case RenderModeBidirectional:
		return "bidirectional"
	case RenderModeForwardPath:
		return "forward-path"
	case RenderModeLightPath:
		return "light-path"
	case RenderModePhotonMap:
		return "photon-map"
	case RenderModeRaster:
		return "raster"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseRenderMode maps a mode name, as printed by String, back to its RenderMode.
func ParseRenderMode(name string) (RenderMode, error) {
	for m := RenderMode(0); m < RenderModeCount; m++ {
		if m.String() == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown render mode %q", name)
}
