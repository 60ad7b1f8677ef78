package pipeline

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// HitGroup links the exports run when a ray of one type hits one kind of geometry.
type HitGroup struct {
	Name     string
	Geometry common.GeometryType

	// Category is the intersection shader type of an AABB hit group. Ignored for triangles.
	Category common.IntersectionType
	RayType  common.RayType

	// ClosestHit, AnyHit and Intersection name library exports; an empty name means none.
	ClosestHit   string
	AnyHit       string
	Intersection string
}

// HitGroupName returns the conventional hit group name of a geometry, category and ray type.
func HitGroupName(g common.GeometryType, c common.IntersectionType, r common.RayType) string {
	if g == common.GeometryTypeTriangle {
		return fmt.Sprintf("hit_%s_%s", g, r)
	}
	return fmt.Sprintf("hit_%s_%s_%s", g, strings.ReplaceAll(c.String(), "-", "_"), r)
}

// VariantConfig is the data a variant's state object is built from.
type VariantConfig struct {
	Variant Variant
	Library string

	// GlobalSlots is the global root signature; it must match the library's global layout.
	GlobalSlots []Slot

	// LocalSlots holds the local root signature per geometry type. Nil entries mean the
	// variant has no records of that geometry type.
	LocalSlots [common.GeometryTypeCount][]Slot

	// RayGen is the ray-generation export. Empty for the composite variant.
	RayGen string

	// Miss holds the miss export per ray type.
	Miss []string

	HitGroups []HitGroup

	// Entries lists compute and raster exports dispatched directly.
	Entries []string

	MaxRecursionDepth uint32
	PayloadSize       uint32
	Blend             BlendPolicy
}

// Ray-library local root layouts. Material constants are the twelve words of a
// PrimitiveMaterial; AABB records add {instance index, primitive type}.
var (
	TriangleLocalSlots = []Slot{Constants("material_constant", 12)}
	AABBLocalSlots     = []Slot{Constants("material_constant", 12), Constants("geometry_index", 2)}
)

// IntersectionExports maps each intersection type to its export in the ray libraries.
var IntersectionExports = [common.IntersectionTypeCount]string{
	common.IntersectionTypeAnalytic:       "intersect_analytic",
	common.IntersectionTypeVolumetric:     "intersect_volumetric",
	common.IntersectionTypeSignedDistance: "intersect_signed_distance",
	common.IntersectionTypeCSG:            "intersect_csg",
}

// StandardHitGroups returns the hit groups shared by every ray library, triangle groups first,
// then AABB groups by intersection type, each ray type in order. Shadow rays only need the
// intersection export.
func StandardHitGroups() []HitGroup {
	groups := make([]HitGroup, 0, int(common.RayTypeCount)*(1+int(common.IntersectionTypeCount)))
	for r := common.RayType(0); r < common.RayTypeCount; r++ {
		g := HitGroup{Name: HitGroupName(common.GeometryTypeTriangle, 0, r), Geometry: common.GeometryTypeTriangle, RayType: r}
		if r == common.RayTypeRadiance {
			g.ClosestHit = "closesthit_triangle"
		}
		groups = append(groups, g)
	}
	for c := common.IntersectionType(0); c < common.IntersectionTypeCount; c++ {
		for r := common.RayType(0); r < common.RayTypeCount; r++ {
			g := HitGroup{
				Name:         HitGroupName(common.GeometryTypeAABB, c, r),
				Geometry:     common.GeometryTypeAABB,
				Category:     c,
				RayType:      r,
				Intersection: IntersectionExports[c],
			}
			if r == common.RayTypeRadiance {
				g.ClosestHit = "closesthit_aabb"
			}
			groups = append(groups, g)
		}
	}
	return groups
}

func rayConfig(v Variant, library, raygen string, global []Slot, depth uint32, blend BlendPolicy) VariantConfig {
	return VariantConfig{
		Variant:     v,
		Library:     library,
		GlobalSlots: global,
		LocalSlots: [common.GeometryTypeCount][]Slot{
			common.GeometryTypeTriangle: TriangleLocalSlots,
			common.GeometryTypeAABB:     AABBLocalSlots,
		},
		RayGen:            raygen,
		Miss:              []string{"miss_radiance", "miss_shadow"},
		HitGroups:         StandardHitGroups(),
		MaxRecursionDepth: depth,
		PayloadSize:       16,
		Blend:             blend,
	}
}

// DefaultVariantConfigs returns the configuration of every variant, indexed by Variant.
//
// Returns:
//   - []VariantConfig: VariantCount configurations
func DefaultVariantConfigs() []VariantConfig {
	sceneSlots := func(head ...Slot) []Slot {
		return append(head,
			SRV("acceleration_structure"),
			CBV("scene_constant"),
			SRV("aabb_attributes"),
			Table("vertex_buffers", shader.ResourceClassSRV, 1),
			SRV("csg_tree"),
		)
	}
	output := Table("output_view", shader.ResourceClassUAV, 1)

	configs := make([]VariantConfig, VariantCount)
	configs[VariantComposite] = VariantConfig{
		Variant: VariantComposite,
		Library: shader.LibraryComposite,
		GlobalSlots: []Slot{
			Table("output_view", shader.ResourceClassSRV, 1),
			UAV("raster_view"),
			UAV("accumulation_view"),
			UAV("present_view"),
			CBV("scene_constant"),
			Table("vertex_buffers", shader.ResourceClassSRV, 1),
			Constants("composite_params", 8),
		},
		Entries: []string{"raster_main", "composite_main"},
		Blend:   BlendReplace,
	}
	configs[VariantRaytracing] = rayConfig(VariantRaytracing, shader.LibraryRaytracing, "raygen_main",
		sceneSlots(output), 3, BlendAccumulate)
	configs[VariantForwardPath] = rayConfig(VariantForwardPath, shader.LibraryForwardPath, "raygen_forward",
		sceneSlots(output, SRV("light_vertices")), 4, BlendAccumulate)
	configs[VariantLightPathFirst] = rayConfig(VariantLightPathFirst, shader.LibraryLightPath, "raygen_light_first",
		sceneSlots(output, UAV("light_vertices")), 1, BlendReplace)
	configs[VariantLightPathSecond] = rayConfig(VariantLightPathSecond, shader.LibraryLightPath, "raygen_light_second",
		sceneSlots(output, UAV("light_vertices")), 2, BlendAccumulate)
	configs[VariantPhotonMapping] = rayConfig(VariantPhotonMapping, shader.LibraryPhotonEmit, "raygen_photon",
		sceneSlots(output, UAV("photon_buffer"), UAV("photon_counter")), 4, BlendReplace)
	configs[VariantPhotonGather] = rayConfig(VariantPhotonGather, shader.LibraryPhotonGather, "raygen_gather",
		sceneSlots(output, SRV("photon_buffer"), SRV("photon_counter")), 2, BlendReplace)
	return configs
}
