package shader

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// ResourceClass is the view class a root argument or binding exposes to shaders.
type ResourceClass int

const (
	// ResourceClassCBV is a constant buffer view (uniforms and root constants).
	ResourceClassCBV ResourceClass = iota

	// ResourceClassSRV is a read-only shader resource view.
	ResourceClassSRV

	// ResourceClassUAV is a read-write unordered access view.
	ResourceClassUAV
)

func (c ResourceClass) String() string {
	switch c {
	case ResourceClassCBV:
		return "cbv"
	case ResourceClassSRV:
		return "srv"
	case ResourceClassUAV:
		return "uav"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseResourceClass maps "cbv", "srv" or "uav" to its ResourceClass.
func ParseResourceClass(s string) (ResourceClass, error) {
	switch s {
	case "cbv":
		return ResourceClassCBV, nil
	case "srv":
		return ResourceClassSRV, nil
	case "uav":
		return ResourceClassUAV, nil
	default:
		return 0, fmt.Errorf("unknown resource class %q", s)
	}
}

// addressSpaceClass maps a group annotation address space to the class it binds.
func addressSpaceClass(space AnnotationArg) ResourceClass {
	switch space {
	case annotationArgStorageTypeUniform:
		return ResourceClassCBV
	case annotationArgStorageTypeReadWrite:
		return ResourceClassUAV
	default:
		return ResourceClassSRV
	}
}

// LayoutEntry is one slot of a layout as both the shader and the root signature see it.
type LayoutEntry struct {
	Name  string
	Class ResourceClass
}

// LayoutChecksum hashes an ordered slot list with 64-bit FNV-1a. Root signatures and the
// libraries compiled against them use the same function, so equal checksums mean the same
// slot names, classes and order.
//
// Parameters:
//   - entries: the ordered slots
//
// Returns:
//   - uint64: the checksum
func LayoutChecksum(entries []LayoutEntry) uint64 {
	h := fnv.New64a()
	for _, e := range entries {
		h.Write([]byte(e.Name))
		h.Write([]byte{':'})
		h.Write([]byte(e.Class.String()))
		h.Write([]byte{';'})
	}
	return h.Sum64()
}

// LayoutScope selects which of a library's layouts a tag refers to.
type LayoutScope int

const (
	// LayoutScopeGlobal is the group 0 layout shared by every export of the library.
	LayoutScopeGlobal LayoutScope = iota

	// LayoutScopeLocalTriangle is the shader record layout of triangle hit groups.
	LayoutScopeLocalTriangle

	// LayoutScopeLocalAABB is the shader record layout of procedural hit groups.
	LayoutScopeLocalAABB
)

func (s LayoutScope) String() string {
	switch s {
	case LayoutScopeGlobal:
		return "global"
	case LayoutScopeLocalTriangle:
		return "local-triangle"
	case LayoutScopeLocalAABB:
		return "local-aabb"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// LocalScope returns the local layout scope of a geometry type.
func LocalScope(g common.GeometryType) LayoutScope {
	if g == common.GeometryTypeAABB {
		return LayoutScopeLocalAABB
	}
	return LayoutScopeLocalTriangle
}

// ExportKind is the stage a library export plays in a raytracing pipeline.
type ExportKind int

const (
	ExportKindRayGen ExportKind = iota
	ExportKindMiss
	ExportKindClosestHit
	ExportKindAnyHit
	ExportKindIntersection
	ExportKindCompute
	ExportKindRaster
)

var exportKindNames = []string{"raygen", "miss", "closesthit", "anyhit", "intersection", "compute", "raster"}

func (k ExportKind) String() string {
	if int(k) >= 0 && int(k) < len(exportKindNames) {
		return exportKindNames[k]
	}
	return fmt.Sprintf("export(%d)", int(k))
}

// EntryPoint reports whether exports of this kind are dispatched directly (a compute entry
// point) rather than called from the traversal loop.
func (k ExportKind) EntryPoint() bool {
	return k == ExportKindRayGen || k == ExportKindCompute || k == ExportKindRaster
}

// ParseExportKind maps an export kind name to its ExportKind.
func ParseExportKind(s string) (ExportKind, error) {
	for i, name := range exportKindNames {
		if strings.EqualFold(s, name) {
			return ExportKind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown export kind %q", s)
}

// Export is a named function of a library.
type Export struct {
	Kind ExportKind
	Name string

	// Ordinal numbers the export among the library's exports of the same kind, in declaration order.
	Ordinal uint32
}
