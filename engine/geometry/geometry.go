package geometry

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Material holds the shading attributes of a primitive.
type Material struct {
	Albedo          mgl32.Vec4
	ReflectanceCoef float32
	RefractiveCoef  float32
	DiffuseCoef     float32
	SpecularCoef    float32
	SpecularPower   float32
	StepScale       float32
}

// GPU converts the material into its GPU layout.
func (m Material) GPU() GPUPrimitiveMaterial {
	return GPUPrimitiveMaterial{
		Albedo:          m.Albedo,
		ReflectanceCoef: m.ReflectanceCoef,
		RefractiveCoef:  m.RefractiveCoef,
		DiffuseCoef:     m.DiffuseCoef,
		SpecularCoef:    m.SpecularCoef,
		SpecularPower:   m.SpecularPower,
		StepScale:       m.StepScale,
	}
}

// Transform is a primitive's local transform, applied scale first, then rotation, then translation.
type Transform struct {
	Scale       mgl32.Vec3
	Rotation    mgl32.Quat
	Translation mgl32.Vec3
}

// IdentityTransform returns a unit-scale, unrotated, untranslated transform.
func IdentityTransform() Transform {
	return Transform{Scale: mgl32.Vec3{1, 1, 1}, Rotation: mgl32.QuatIdent()}
}

// Matrix returns translation * rotation * scale.
func (t Transform) Matrix() mgl32.Mat4 {
	scale := t.Scale
	if scale == (mgl32.Vec3{}) {
		scale = mgl32.Vec3{1, 1, 1}
	}
	rotation := t.Rotation
	if rotation == (mgl32.Quat{}) {
		rotation = mgl32.QuatIdent()
	}
	return mgl32.Translate3D(t.Translation.X(), t.Translation.Y(), t.Translation.Z()).
		Mul4(rotation.Mat4()).
		Mul4(mgl32.Scale3D(scale.X(), scale.Y(), scale.Z()))
}

// Mesh is the vertex and index data of a triangle primitive.
type Mesh struct {
	Vertices []mgl32.Vec3
	Indices  []uint32
}

// Primitive is a single entry of the geometry store.
type Primitive struct {
	// Name identifies the primitive in logs and validation errors.
	Name string
	// Geometry selects the bottom-level structure the primitive belongs to.
	Geometry common.GeometryType
	// Category selects the intersection shader for AABB primitives. Ignored for triangles.
	Category common.IntersectionType
	// Shape selects the concrete shape inside the category (sphere, torus, the CSG tree...).
	Shape uint32
	Material Material
	// Bounds is the primitive's box in bottom-level space.
	Bounds common.AABB
	// Transform places the unit shape inside Bounds.
	Transform Transform
	// Mesh is required for triangle primitives and ignored otherwise.
	Mesh *Mesh
}

// Attributes computes the GPU transform pair of p: local shape space is mapped onto the
// center of the primitive's bounds, then the primitive transform is applied.
//
// Parameters:
//   - p: the primitive
//
// Returns:
//   - GPUPrimitiveAttributes: the forward and inverse transforms
func Attributes(p Primitive) GPUPrimitiveAttributes {
	c := p.Bounds.Center()
	toBLAS := mgl32.Translate3D(c.X(), c.Y(), c.Z()).Mul4(p.Transform.Matrix())
	return GPUPrimitiveAttributes{
		LocalSpaceToBottomLevelAS: toBLAS,
		BottomLevelASToLocalSpace: toBLAS.Inv(),
	}
}

// TriangleVertices expands the mesh of a triangle primitive into three transformed vertices
// per face, in index order.
//
// Parameters:
//   - p: the triangle primitive
//
// Returns:
//   - []mgl32.Vec3: the face vertices, or nil if p has no mesh
func TriangleVertices(p Primitive) []mgl32.Vec3 {
	if p.Mesh == nil {
		return nil
	}
	m := p.Transform.Matrix()
	out := make([]mgl32.Vec3, len(p.Mesh.Indices))
	for i, idx := range p.Mesh.Indices {
		out[i] = m.Mul4x1(p.Mesh.Vertices[idx].Vec4(1)).Vec3()
	}
	return out
}

// store is the implementation of the Store interface.
type store struct {
	mu *sync.RWMutex

	triangles  []Primitive
	procedural []Primitive // global index order, see OffsetTable
	attributes []GPUPrimitiveAttributes
	offsets    OffsetTable

	// pending collects primitives from builder options before validation.
	pending []Primitive

	dirty map[int]struct{}
}

// Store holds the procedural and triangle primitives of a scene. The set of primitives is fixed
// at construction; only transforms change afterwards. Procedural primitives are ordered by
// category so that global indices are contiguous per category (see OffsetTable).
type Store interface {
	// Triangles returns the triangle primitives in declaration order.
	//
	// Returns:
	//   - []Primitive: a copy of the triangle primitive list
	Triangles() []Primitive

	// Procedural returns the AABB primitives in global index order.
	//
	// Returns:
	//   - []Primitive: a copy of the procedural primitive list
	Procedural() []Primitive

	// Primitive returns the procedural primitive with the given global index.
	//
	// Parameters:
	//   - global: the global primitive index
	//
	// Returns:
	//   - Primitive: the primitive
	//   - error: an error if the index is out of range
	Primitive(global int) (Primitive, error)

	// Offsets returns the per-category base-offset table.
	//
	// Returns:
	//   - OffsetTable: the table computed at construction
	Offsets() OffsetTable

	// SetTransform replaces the transform of a procedural primitive and marks it dirty.
	// The attribute pair is recomputed by ApplyAttributes or RefreshAttributes.
	//
	// Parameters:
	//   - global: the global primitive index
	//   - t: the new transform
	//
	// Returns:
	//   - error: an error if the index is out of range or the transform cannot be inverted
	SetTransform(global int, t Transform) error

	// ApplyAttributes stores a precomputed attribute pair for a primitive.
	//
	// Parameters:
	//   - global: the global primitive index
	//   - attributes: the attribute pair computed with Attributes
	//
	// Returns:
	//   - error: an error if the index is out of range
	ApplyAttributes(global int, attributes GPUPrimitiveAttributes) error

	// RefreshAttributes recomputes the attribute pair of every dirty primitive.
	RefreshAttributes()

	// Dirty returns the sorted global indices of primitives whose transform changed since the
	// last ClearDirty.
	//
	// Returns:
	//   - []int: the dirty indices
	Dirty() []int

	// ClearDirty forgets all dirty marks.
	ClearDirty()

	// MarshalMaterials serializes every procedural material in global index order.
	//
	// Returns:
	//   - []byte: Total()*48 bytes
	MarshalMaterials() []byte

	// MarshalAttributes serializes every procedural attribute pair in global index order.
	//
	// Returns:
	//   - []byte: Total()*128 bytes
	MarshalAttributes() []byte
}

var _ Store = &store{}

// NewStore creates a Store from the primitives supplied through options. Primitives are
// validated and procedural primitives are grouped by category.
//
// Parameters:
//   - options: functional options supplying primitives
//
// Returns:
//   - Store: the new store
//   - error: a ValidationError describing the first malformed primitive
func NewStore(options ...StoreBuilderOption) (Store, error) {
	s := &store{
		mu:    &sync.RWMutex{},
		dirty: make(map[int]struct{}),
	}
	for _, option := range options {
		option(s)
	}

	var counts [common.IntersectionTypeCount]int
	var declared []Primitive
	for i, p := range s.pending {
		if !p.Bounds.Valid() {
			return nil, common.NewValidationError("geometry", "primitive %d (%q) has inverted bounds %v", i, p.Name, p.Bounds)
		}
		switch p.Geometry {
		case common.GeometryTypeTriangle:
			if p.Mesh == nil || len(p.Mesh.Vertices) == 0 || len(p.Mesh.Indices)%3 != 0 || len(p.Mesh.Indices) == 0 {
				return nil, common.NewValidationError("geometry", "triangle primitive %d (%q) needs a mesh with a multiple of 3 indices", i, p.Name)
			}
			for _, idx := range p.Mesh.Indices {
				if int(idx) >= len(p.Mesh.Vertices) {
					return nil, common.NewValidationError("geometry", "triangle primitive %d (%q) index %d out of range", i, p.Name, idx)
				}
			}
			s.triangles = append(s.triangles, p)
		case common.GeometryTypeAABB:
			if p.Category < 0 || p.Category >= common.IntersectionTypeCount {
				return nil, common.NewValidationError("geometry", "primitive %d (%q) has unknown category %d", i, p.Name, int(p.Category))
			}
			if p.Shape >= ShapeCount(p.Category) {
				return nil, common.NewValidationError("geometry", "primitive %d (%q) has unknown %s shape %d", i, p.Name, p.Category, p.Shape)
			}
			counts[p.Category]++
			declared = append(declared, p)
		default:
			return nil, common.NewValidationError("geometry", "primitive %d (%q) has unknown geometry type %d", i, p.Name, int(p.Geometry))
		}
	}
	s.pending = nil

	// each category keeps its declaration order at the table's base offset
	s.offsets = NewOffsetTable(counts)
	s.procedural = make([]Primitive, len(declared))
	var locals [common.IntersectionTypeCount]int
	for _, p := range declared {
		global, err := s.offsets.Index(p.Category, locals[p.Category])
		if err != nil {
			return nil, err
		}
		locals[p.Category]++
		s.procedural[global] = p
	}

	s.attributes = make([]GPUPrimitiveAttributes, len(s.procedural))
	for i, p := range s.procedural {
		s.attributes[i] = Attributes(p)
	}

	return s, nil
}

func (s *store) Triangles() []Primitive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Primitive(nil), s.triangles...)
}

func (s *store) Procedural() []Primitive {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Primitive(nil), s.procedural...)
}

func (s *store) Primitive(global int) (Primitive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if global < 0 || global >= len(s.procedural) {
		return Primitive{}, fmt.Errorf("geometry: primitive %d out of range [0,%d)", global, len(s.procedural))
	}
	return s.procedural[global], nil
}

func (s *store) Offsets() OffsetTable {
	return s.offsets
}

func (s *store) SetTransform(global int, t Transform) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if global < 0 || global >= len(s.procedural) {
		return fmt.Errorf("geometry: primitive %d out of range [0,%d)", global, len(s.procedural))
	}
	// intersection shaders map rays back through the inverse
	if det := t.Matrix().Det(); det == 0 || math.IsNaN(float64(det)) || math.IsInf(float64(det), 0) {
		return fmt.Errorf("geometry: primitive %d transform is singular", global)
	}
	s.procedural[global].Transform = t
	s.dirty[global] = struct{}{}
	return nil
}

func (s *store) ApplyAttributes(global int, attributes GPUPrimitiveAttributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if global < 0 || global >= len(s.attributes) {
		return fmt.Errorf("geometry: primitive %d out of range [0,%d)", global, len(s.attributes))
	}
	s.attributes[global] = attributes
	return nil
}

func (s *store) RefreshAttributes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.dirty {
		s.attributes[i] = Attributes(s.procedural[i])
	}
}

func (s *store) Dirty() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.dirty))
	for i := range s.dirty {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (s *store) ClearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.dirty)
}

func (s *store) MarshalMaterials() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mat GPUPrimitiveMaterial
	buf := make([]byte, 0, len(s.procedural)*mat.Size())
	for _, p := range s.procedural {
		m := p.Material.GPU()
		buf = append(buf, m.Marshal()...)
	}
	return buf
}

func (s *store) MarshalAttributes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var attr GPUPrimitiveAttributes
	buf := make([]byte, 0, len(s.attributes)*attr.Size())
	for i := range s.attributes {
		buf = append(buf, s.attributes[i].Marshal()...)
	}
	return buf
}
