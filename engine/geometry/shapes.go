package geometry

import "github.com/Carmen-Shannon/oxy-rt/common"

// Analytic shapes.
const (
	ShapeBox uint32 = iota
	ShapeSpheres
)

// Volumetric shapes.
const (
	ShapeMetaballs uint32 = iota
)

// Signed distance shapes.
const (
	ShapeMiniSpheres uint32 = iota
	ShapeIntersectedRoundCube
	ShapeSquareTorus
	ShapeTwistedTorus
	ShapeCog
	ShapeCylinder
	ShapeFractalPyramid
)

// CSG shapes. The shape of a CSG primitive selects the tree in the CSG buffer.
const (
	ShapeCSGTree uint32 = iota
)

// ShapeCount returns the number of shapes the intersection shader of category c understands.
func ShapeCount(c common.IntersectionType) uint32 {
	switch c {
	case common.IntersectionTypeAnalytic:
		return 2
	case common.IntersectionTypeVolumetric:
		return 1
	case common.IntersectionTypeSignedDistance:
		return 7
	case common.IntersectionTypeCSG:
		return 1
	default:
		return 0
	}
}
