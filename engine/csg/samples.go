package csg

import "github.com/go-gl/mathgl/mgl32"

// CoffeeMug returns the postfix listing of the mug: a hollowed body (outer shell minus a
// raised inner shell) unioned with a handle (a torus minus a slab), offset to the side.
func CoffeeMug() []PostfixEntry {
	return []PostfixEntry{
		LeafEntry(17, mgl32.Vec3{}),
		LeafEntry(18, mgl32.Vec3{0, 0.2, 0}),
		OpEntry(OpDifference),
		LeafEntry(9, mgl32.Vec3{1.1, 0, 0}),
		LeafEntry(0, mgl32.Vec3{1.1, 0, 0}),
		OpEntry(OpDifference),
		OpEntry(OpUnion),
	}
}
