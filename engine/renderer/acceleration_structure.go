package renderer

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// AccelerationStructureLevel selects a bottom-level (geometry) or top-level (instance) build.
type AccelerationStructureLevel int

const (
	BottomLevel AccelerationStructureLevel = iota
	TopLevel
)

func (l AccelerationStructureLevel) String() string {
	if l == TopLevel {
		return "top-level"
	}
	return "bottom-level"
}

// GeometryDesc is one geometry of a bottom-level build. AABB geometries set AABB; triangle
// geometries set Triangles to three vertices per triangle.
type GeometryDesc struct {
	AABB      common.AABB
	Triangles []mgl32.Vec3
}

// InstanceDesc places a bottom-level structure in a top-level build.
type InstanceDesc struct {
	BottomLevel common.ResourceHandle
	Transform   mgl32.Mat4
	InstanceID  uint32

	// Contribution is added to the record of every node of the instance.
	Contribution uint32

	// Mask excludes the instance from traversal when zero.
	Mask uint8
}

// AccelerationStructureDesc describes one build or refit.
type AccelerationStructureDesc struct {
	Label string
	Level AccelerationStructureLevel

	// Geometry and Geometries describe a bottom-level build. Geometry i owns hit-group
	// records starting at i*RayTypeCount.
	Geometry   common.GeometryType
	Geometries []GeometryDesc

	// Instances describe a top-level build.
	Instances []InstanceDesc

	// Update refits Target in place. The node count must not change.
	Update bool
	Target common.ResourceHandle
}

// PrebuildInfo is the result size of a build.
type PrebuildInfo struct {
	NodeCount  int
	ResultSize uint64
}

// flattenBottomLevel turns the geometries of a bottom-level build into leaf nodes in geometry order.
func flattenBottomLevel(desc AccelerationStructureDesc) ([]GPUAccelNode, error) {
	if len(desc.Geometries) == 0 {
		return nil, common.NewValidationError("renderer", "%s: bottom-level build with no geometry", desc.Label)
	}

	var nodes []GPUAccelNode
	var face uint32
	for i, g := range desc.Geometries {
		record := uint32(i) * uint32(common.RayTypeCount)
		switch desc.Geometry {
		case common.GeometryTypeAABB:
			if len(g.Triangles) > 0 {
				return nil, common.NewValidationError("renderer", "%s: geometry %d mixes triangles into an aabb build", desc.Label, i)
			}
			if !g.AABB.Valid() {
				return nil, common.NewValidationError("renderer", "%s: geometry %d has inverted bounds %v", desc.Label, i, g.AABB)
			}
			nodes = append(nodes, GPUAccelNode{
				BoundsMin: g.AABB.Min,
				BoundsMax: g.AABB.Max,
				Kind:      AccelNodeAABB,
				Record:    record,
				Primitive: uint32(i),
			})
		case common.GeometryTypeTriangle:
			if len(g.Triangles) == 0 || len(g.Triangles)%3 != 0 {
				return nil, common.NewValidationError("renderer", "%s: geometry %d has %d triangle vertices", desc.Label, i, len(g.Triangles))
			}
			for v := 0; v < len(g.Triangles); v += 3 {
				p := g.Triangles[v]
				b := common.AABB{Min: p, Max: p}.
					Union(common.AABB{Min: g.Triangles[v+1], Max: g.Triangles[v+1]}).
					Union(common.AABB{Min: g.Triangles[v+2], Max: g.Triangles[v+2]})
				nodes = append(nodes, GPUAccelNode{
					BoundsMin: b.Min,
					BoundsMax: b.Max,
					Kind:      AccelNodeTriangle,
					Record:    record,
					Primitive: face,
				})
				face++
			}
		default:
			return nil, common.NewValidationError("renderer", "%s: unknown geometry type %d", desc.Label, int(desc.Geometry))
		}
	}
	return nodes, nil
}

// flattenTopLevel places the nodes of every unmasked instance's bottom-level structure.
func flattenTopLevel(desc AccelerationStructureDesc, bottom map[common.ResourceHandle][]GPUAccelNode) ([]GPUAccelNode, error) {
	if len(desc.Instances) == 0 {
		return nil, common.NewValidationError("renderer", "%s: top-level build with no instances", desc.Label)
	}

	var nodes []GPUAccelNode
	for i, inst := range desc.Instances {
		blas, ok := bottom[inst.BottomLevel]
		if !ok {
			return nil, common.NewValidationError("renderer", "%s: instance %d references unbuilt bottom-level structure %d", desc.Label, i, inst.BottomLevel)
		}
		if inst.Mask == 0 {
			continue
		}
		for _, n := range blas {
			b := common.TransformAABB(n.Bounds(), inst.Transform)
			n.BoundsMin, n.BoundsMax = b.Min, b.Max
			n.Record += inst.Contribution
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}
