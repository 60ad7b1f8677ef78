package geometry

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

func unitBox(x float32) common.AABB {
	return common.AABB{Min: mgl32.Vec3{x - 1, 0, -1}, Max: mgl32.Vec3{x + 1, 2, 1}}
}

func TestOffsetTable(t *testing.T) {
	var counts [common.IntersectionTypeCount]int
	counts[common.IntersectionTypeAnalytic] = 3
	counts[common.IntersectionTypeVolumetric] = 1
	counts[common.IntersectionTypeSignedDistance] = 0
	counts[common.IntersectionTypeCSG] = 2
	table := NewOffsetTable(counts)

	tests := []struct {
		category common.IntersectionType
		local    int
		want     int
	}{
		{common.IntersectionTypeAnalytic, 0, 0},
		{common.IntersectionTypeAnalytic, 2, 2},
		{common.IntersectionTypeVolumetric, 0, 3},
		{common.IntersectionTypeCSG, 0, 4},
		{common.IntersectionTypeCSG, 1, 5},
	}
	seen := make(map[int]bool)
	for _, tt := range tests {
		got, err := table.Index(tt.category, tt.local)
		if err != nil {
			t.Fatalf("Index(%s, %d): %v", tt.category, tt.local, err)
		}
		if got != tt.want {
			t.Errorf("Index(%s, %d) = %d, want %d", tt.category, tt.local, got, tt.want)
		}
		if seen[got] {
			t.Errorf("global index %d handed out twice", got)
		}
		seen[got] = true

		c, local, err := table.Locate(got)
		if err != nil || c != tt.category || local != tt.local {
			t.Errorf("Locate(%d) = (%s, %d, %v), want (%s, %d)", got, c, local, err, tt.category, tt.local)
		}
	}

	if table.Total() != 6 {
		t.Errorf("Total() = %d, want 6", table.Total())
	}
	if _, err := table.Index(common.IntersectionTypeSignedDistance, 0); err == nil {
		t.Error("empty category should reject every local index")
	}
	if _, err := table.Index(common.IntersectionTypeAnalytic, 3); err == nil {
		t.Error("local index past the category count should fail")
	}
}

func TestNewStoreGroupsByCategory(t *testing.T) {
	s, err := NewStore(
		WithGroundPlane(10, 0, Material{Albedo: mgl32.Vec4{1, 1, 1, 1}}),
		WithPrimitives(
			Primitive{Name: "mug", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeCSG, Bounds: unitBox(0), Transform: IdentityTransform()},
			Primitive{Name: "box", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeAnalytic, Bounds: unitBox(2), Transform: IdentityTransform()},
			Primitive{Name: "blob", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeVolumetric, Shape: ShapeMetaballs, Bounds: unitBox(4), Transform: IdentityTransform()},
			Primitive{Name: "spheres", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeAnalytic, Shape: ShapeSpheres, Bounds: unitBox(6), Transform: IdentityTransform()},
		),
	)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	want := []string{"box", "spheres", "blob", "mug"}
	got := s.Procedural()
	if len(got) != len(want) {
		t.Fatalf("got %d procedural primitives, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("procedural[%d] = %q, want %q", i, got[i].Name, name)
		}
	}
	if len(s.Triangles()) != 1 {
		t.Errorf("got %d triangle primitives, want 1", len(s.Triangles()))
	}

	idx, err := s.Offsets().Index(common.IntersectionTypeCSG, 0)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := s.Primitive(idx)
	if p.Name != "mug" {
		t.Errorf("offset table resolves CSG 0 to %q, want mug", p.Name)
	}

	if n := len(s.MarshalMaterials()); n != 4*48 {
		t.Errorf("material buffer is %d bytes, want %d", n, 4*48)
	}
	if n := len(s.MarshalAttributes()); n != 4*128 {
		t.Errorf("attribute buffer is %d bytes, want %d", n, 4*128)
	}
}

func TestNewStorePlacesPrimitivesByOffsetTable(t *testing.T) {
	declared := []Primitive{
		{Name: "sdf-a", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeSignedDistance, Bounds: unitBox(0)},
		{Name: "box-a", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeAnalytic, Bounds: unitBox(2)},
		{Name: "sdf-b", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeSignedDistance, Bounds: unitBox(4)},
		{Name: "box-b", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeAnalytic, Shape: ShapeSpheres, Bounds: unitBox(6)},
		{Name: "sdf-c", Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeSignedDistance, Bounds: unitBox(8)},
	}
	s, err := NewStore(WithPrimitives(declared...))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var locals [common.IntersectionTypeCount]int
	for _, p := range declared {
		local := locals[p.Category]
		locals[p.Category]++
		global, err := s.Offsets().Index(p.Category, local)
		if err != nil {
			t.Fatalf("Index(%s, %d): %v", p.Category, local, err)
		}
		got, err := s.Primitive(global)
		if err != nil || got.Name != p.Name {
			t.Errorf("Index(%s, %d) = %d holds %q, want %q", p.Category, local, global, got.Name, p.Name)
		}
	}
}

func TestNewStoreValidation(t *testing.T) {
	tests := []struct {
		name string
		p    Primitive
	}{
		{"inverted bounds", Primitive{Geometry: common.GeometryTypeAABB, Bounds: common.AABB{Min: mgl32.Vec3{1, 1, 1}}}},
		{"unknown shape", Primitive{Geometry: common.GeometryTypeAABB, Category: common.IntersectionTypeVolumetric, Shape: 5, Bounds: unitBox(0)}},
		{"triangle without mesh", Primitive{Geometry: common.GeometryTypeTriangle, Bounds: unitBox(0)}},
		{"triangle index out of range", Primitive{Geometry: common.GeometryTypeTriangle, Bounds: unitBox(0), Mesh: &Mesh{Vertices: []mgl32.Vec3{{}, {}, {}}, Indices: []uint32{0, 1, 3}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStore(WithPrimitives(tt.p))
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("got %v, want a validation error", err)
			}
		})
	}
}

func TestTransformDirtyTracking(t *testing.T) {
	s, err := NewStore(WithPrimitives(
		Primitive{Name: "a", Geometry: common.GeometryTypeAABB, Bounds: unitBox(0), Transform: IdentityTransform()},
		Primitive{Name: "b", Geometry: common.GeometryTypeAABB, Bounds: unitBox(2), Transform: IdentityTransform()},
	))
	if err != nil {
		t.Fatal(err)
	}
	before := s.MarshalAttributes()

	tr := IdentityTransform()
	tr.Rotation = mgl32.QuatRotate(mgl32.DegToRad(45), mgl32.Vec3{0, 1, 0})
	if err := s.SetTransform(1, tr); err != nil {
		t.Fatal(err)
	}
	if d := s.Dirty(); len(d) != 1 || d[0] != 1 {
		t.Fatalf("Dirty() = %v, want [1]", d)
	}
	s.RefreshAttributes()
	after := s.MarshalAttributes()
	if string(before[:128]) != string(after[:128]) {
		t.Error("untouched primitive attributes changed")
	}
	if string(before[128:]) == string(after[128:]) {
		t.Error("rotated primitive attributes did not change")
	}
	s.ClearDirty()
	if len(s.Dirty()) != 0 {
		t.Error("ClearDirty left marks behind")
	}
	if err := s.SetTransform(7, tr); err == nil {
		t.Error("SetTransform out of range should fail")
	}

	flat := IdentityTransform()
	flat.Scale = mgl32.Vec3{1, 1, 0}
	if err := s.SetTransform(0, flat); err == nil {
		t.Error("SetTransform accepted a singular transform")
	}
	if p, _ := s.Primitive(0); p.Transform != IdentityTransform() || len(s.Dirty()) != 0 {
		t.Errorf("rejected transform was applied: %+v, dirty %v", p.Transform, s.Dirty())
	}
}

func TestAttributesInverse(t *testing.T) {
	p := Primitive{
		Bounds: unitBox(3),
		Transform: Transform{
			Scale:       mgl32.Vec3{2, 2, 2},
			Rotation:    mgl32.QuatRotate(mgl32.DegToRad(30), mgl32.Vec3{0, 1, 0}),
			Translation: mgl32.Vec3{0, 0.5, 0},
		},
	}
	a := Attributes(p)
	id := a.LocalSpaceToBottomLevelAS.Mul4(a.BottomLevelASToLocalSpace)
	if !id.ApproxEqualThreshold(mgl32.Ident4(), 1e-4) {
		t.Errorf("forward * inverse = %v, want identity", id)
	}
	origin := mgl32.TransformCoordinate(mgl32.Vec3{}, a.LocalSpaceToBottomLevelAS)
	if !origin.ApproxEqualThreshold(mgl32.Vec3{3, 1.5, 0}, 1e-4) {
		t.Errorf("local origin maps to %v, want bounds center plus translation", origin)
	}
}
