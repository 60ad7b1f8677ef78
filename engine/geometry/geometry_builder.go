package geometry

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// StoreBuilderOption is a functional option applied to a store during construction via NewStore.
type StoreBuilderOption func(*store)

// WithPrimitives appends primitives to the store in declaration order.
//
// Parameters:
//   - primitives: the primitives to add
//
// Returns:
//   - StoreBuilderOption: a function that applies the primitives option to a store
func WithPrimitives(primitives ...Primitive) StoreBuilderOption {
	return func(s *store) {
		s.pending = append(s.pending, primitives...)
	}
}

// WithGroundPlane adds a square triangle primitive of the given half extent centered on the
// origin at height y.
//
// Parameters:
//   - halfExtent: half the edge length of the plane
//   - y: the height of the plane
//   - material: the plane's material
//
// Returns:
//   - StoreBuilderOption: a function that applies the ground plane option to a store
func WithGroundPlane(halfExtent, y float32, material Material) StoreBuilderOption {
	return func(s *store) {
		s.pending = append(s.pending, Primitive{
			Name:     "ground",
			Geometry: common.GeometryTypeTriangle,
			Material: material,
			Bounds: common.AABB{
				Min: mgl32.Vec3{-halfExtent, y, -halfExtent},
				Max: mgl32.Vec3{halfExtent, y, halfExtent},
			},
			Transform: IdentityTransform(),
			Mesh: &Mesh{
				Vertices: []mgl32.Vec3{
					{-halfExtent, y, -halfExtent},
					{halfExtent, y, -halfExtent},
					{halfExtent, y, halfExtent},
					{-halfExtent, y, halfExtent},
				},
				Indices: []uint32{0, 2, 1, 0, 3, 2},
			},
		})
	}
}
