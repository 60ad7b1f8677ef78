package geometry

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// OffsetTable maps a (category, local index) pair to the primitive's global index in the
// procedural primitive buffers. It is computed once from the declared per-category counts:
// base[c] is the sum of the counts of every category declared before c.
//
// The store places each procedural primitive at its table index, so the material and attribute
// buffers and the AABB geometry descriptors, which follow store order, share the indexing.
// Hit-group records and animation bindings resolve their indices through Index.
type OffsetTable struct {
	base  [common.IntersectionTypeCount]int
	count [common.IntersectionTypeCount]int
	total int
}

// NewOffsetTable computes the base offsets for the given per-category counts.
//
// Parameters:
//   - counts: the number of primitives declared for each intersection type
//
// Returns:
//   - OffsetTable: the table
func NewOffsetTable(counts [common.IntersectionTypeCount]int) OffsetTable {
	t := OffsetTable{count: counts}
	running := 0
	for c := range counts {
		t.base[c] = running
		running += counts[c]
	}
	t.total = running
	return t
}

// Base returns the global index of the first primitive of category c.
func (t OffsetTable) Base(c common.IntersectionType) int {
	return t.base[c]
}

// Count returns the number of primitives declared for category c.
func (t OffsetTable) Count(c common.IntersectionType) int {
	return t.count[c]
}

// Total returns the number of procedural primitives across all categories.
func (t OffsetTable) Total() int {
	return t.total
}

// Index resolves a category-local primitive index to its global index.
//
// Parameters:
//   - c: the primitive category
//   - local: the index within the category
//
// Returns:
//   - int: the global index
//   - error: an error if c or local is out of range
func (t OffsetTable) Index(c common.IntersectionType, local int) (int, error) {
	if c < 0 || c >= common.IntersectionTypeCount {
		return 0, fmt.Errorf("geometry: unknown category %d", int(c))
	}
	if local < 0 || local >= t.count[c] {
		return 0, fmt.Errorf("geometry: %s primitive %d out of range [0,%d)", c, local, t.count[c])
	}
	return t.base[c] + local, nil
}

// Locate is the inverse of Index.
//
// Parameters:
//   - global: a global primitive index
//
// Returns:
//   - common.IntersectionType: the category that owns the index
//   - int: the index within that category
//   - error: an error if global is out of range
func (t OffsetTable) Locate(global int) (common.IntersectionType, int, error) {
	if global < 0 || global >= t.total {
		return 0, 0, fmt.Errorf("geometry: primitive %d out of range [0,%d)", global, t.total)
	}
	for c := common.IntersectionTypeCount - 1; c >= 0; c-- {
		if t.count[c] > 0 && global >= t.base[c] {
			return c, global - t.base[c], nil
		}
	}
	return 0, 0, fmt.Errorf("geometry: primitive %d has no category", global)
}
