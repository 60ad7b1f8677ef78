package scene

import (
	"errors"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/csg"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

func box(name string, category common.IntersectionType, shape uint32) geometry.Primitive {
	return geometry.Primitive{
		Name:      name,
		Geometry:  common.GeometryTypeAABB,
		Category:  category,
		Shape:     shape,
		Bounds:    common.AABB{Min: mgl32.Vec3{-1, 0, -1}, Max: mgl32.Vec3{1, 2, 1}},
		Transform: geometry.IdentityTransform(),
	}
}

func newStore(t *testing.T, primitives ...geometry.Primitive) geometry.Store {
	t.Helper()
	if len(primitives) == 0 {
		primitives = []geometry.Primitive{box("box", common.IntersectionTypeAnalytic, geometry.ShapeBox)}
	}
	store, err := geometry.NewStore(geometry.WithPrimitives(primitives...))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func newScene(t *testing.T, options ...SceneBuilderOption) Scene {
	t.Helper()
	s, err := NewScene("test", newStore(t), nil, append([]SceneBuilderOption{WithComputeWorkers(2), WithSeed(7)}, options...)...)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	return s
}

func mustUpdate(t *testing.T, s Scene, deltaTime float32) FrameUpdate {
	t.Helper()
	u, err := s.Update(deltaTime)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	return u
}

func TestAccumulationCounter(t *testing.T) {
	s := newScene(t, WithAnimating(false))

	for frame := uint32(1); frame <= 5; frame++ {
		u := mustUpdate(t, s, 1.0 / 60)
		if u.Accumulation != frame || u.CameraMoved || u.FrameNumber != frame {
			t.Fatalf("stationary frame %d: %+v", frame, u)
		}
	}

	// a movement event during frame 5 resets the counter on frame 6
	s.Camera().Controller().MoveForward(1)
	if u := mustUpdate(t, s, 1.0 / 60); u.Accumulation != 0 || !u.CameraMoved {
		t.Fatalf("frame after movement: %+v", u)
	}
	if u := mustUpdate(t, s, 1.0 / 60); u.Accumulation != 1 || u.CameraMoved {
		t.Fatalf("first stationary frame after movement: %+v", u)
	}

	s.ResetAccumulation()
	if u := mustUpdate(t, s, 1.0 / 60); u.Accumulation != 0 {
		t.Errorf("frame after reset: %+v", u)
	}
	if s.Accumulation() != 0 || s.FrameNumber() != 8 {
		t.Errorf("Accumulation() = %d, FrameNumber() = %d", s.Accumulation(), s.FrameNumber())
	}
}

func TestHandleKey(t *testing.T) {
	s := newScene(t, WithAnimating(false))
	mustUpdate(t, s, 0)

	press := func(key int) bool {
		return s.HandleKey(common.KeyEvent{Key: key, Action: common.KeyPress})
	}

	if s.HandleKey(common.KeyEvent{Key: common.Key3, Action: common.KeyRelease}) {
		t.Error("a key release was consumed")
	}
	if !press(common.Key3) || s.Mode() != common.RenderModeBidirectional {
		t.Fatalf("Key3: Mode() = %s", s.Mode())
	}
	if u := mustUpdate(t, s, 0); u.Accumulation != 0 {
		t.Errorf("mode change kept accumulating: %+v", u)
	}
	if !press(common.Key7) || s.Mode() != common.RenderModeRaster {
		t.Errorf("Key7: Mode() = %s", s.Mode())
	}

	if !press(common.KeyN) || s.RenderFull() {
		t.Error("KeyN did not toggle full-frame rendering off")
	}

	before := s.Camera().Position()
	if !press(common.KeyW) {
		t.Fatal("KeyW was not consumed")
	}
	if u := mustUpdate(t, s, 0); !u.CameraMoved || u.Accumulation != 0 {
		t.Errorf("frame after KeyW: %+v", u)
	}
	if s.Camera().Position() == before {
		t.Error("KeyW did not move the camera")
	}

	if press(common.KeyEsc) {
		t.Error("KeyEsc was consumed by the scene")
	}

	s.HandleMouse(common.MouseEvent{DeltaX: 20, DeltaY: 0})
	if u := mustUpdate(t, s, 0); u.CameraMoved {
		t.Error("mouse movement without dragging turned the camera")
	}
	s.HandleMouse(common.MouseEvent{DeltaX: 20, DeltaY: 0, Dragging: true})
	if u := mustUpdate(t, s, 0); !u.CameraMoved {
		t.Error("mouse drag did not turn the camera")
	}
}

func TestAnimation(t *testing.T) {
	store := newStore(t,
		box("a", common.IntersectionTypeAnalytic, geometry.ShapeBox),
		box("b", common.IntersectionTypeAnalytic, geometry.ShapeSpheres),
	)
	slide := func(elapsed float32) geometry.Transform {
		tr := geometry.IdentityTransform()
		tr.Translation = mgl32.Vec3{elapsed, 0, 0}
		return tr
	}
	s, err := NewScene("animated", store, nil, WithAnimation(1, slide), WithComputeWorkers(2))
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}

	u := mustUpdate(t, s, 0.5)
	if !u.TransformsChanged {
		t.Fatal("Update did not report the animated transform")
	}
	if dirty := store.Dirty(); len(dirty) != 1 || dirty[0] != 1 {
		t.Errorf("Dirty() = %v, want [1]", dirty)
	}
	prim, _ := store.Primitive(1)
	if prim.Transform.Translation != (mgl32.Vec3{0.5, 0, 0}) {
		t.Errorf("Translation = %v", prim.Transform.Translation)
	}
	want := geometry.Attributes(prim)
	var first geometry.GPUPrimitiveAttributes
	got := store.MarshalAttributes()[first.Size():]
	if string(got) != string(want.Marshal()) {
		t.Error("attribute pair of the animated primitive was not recomputed")
	}

	s.SetAnimating(false)
	store.ClearDirty()
	if u := mustUpdate(t, s, 0.5); u.TransformsChanged || s.ElapsedTime() != 0.5 {
		t.Errorf("paused update: %+v, ElapsedTime() = %v", u, s.ElapsedTime())
	}

	if err := s.Animate(5, slide); !errors.Is(err, common.ErrValidation) {
		t.Errorf("Animate(5) err = %v", err)
	}
	if err := s.Animate(1, nil); err != nil {
		t.Errorf("Animate(1, nil) err = %v", err)
	}
	s.SetAnimating(true)
	if u := mustUpdate(t, s, 0.5); u.TransformsChanged {
		t.Error("detached animation still ran")
	}
}

func TestUpdateReturnsAnimationError(t *testing.T) {
	store := newStore(t,
		box("a", common.IntersectionTypeAnalytic, geometry.ShapeBox),
		box("b", common.IntersectionTypeAnalytic, geometry.ShapeSpheres),
		box("c", common.IntersectionTypeAnalytic, geometry.ShapeBox),
	)
	flatten := func(float32) geometry.Transform {
		tr := geometry.IdentityTransform()
		tr.Scale = mgl32.Vec3{1, 0, 1}
		return tr
	}
	slide := func(elapsed float32) geometry.Transform {
		tr := geometry.IdentityTransform()
		tr.Translation = mgl32.Vec3{elapsed, 0, 0}
		return tr
	}
	s, err := NewScene("broken", store, nil,
		WithAnimation(0, slide), WithAnimation(1, flatten), WithAnimation(2, flatten), WithComputeWorkers(3))
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}

	u, err := s.Update(0.5)
	if err == nil {
		t.Fatal("Update accepted a singular animated transform")
	}
	if !strings.Contains(err.Error(), "animate primitive 1") {
		t.Errorf("err = %v, want the lowest failing primitive", err)
	}
	if u != (FrameUpdate{}) {
		t.Errorf("failed update reported %+v", u)
	}
	if prim, _ := store.Primitive(1); prim.Transform != geometry.IdentityTransform() {
		t.Errorf("rejected transform was stored: %+v", prim.Transform)
	}
	if prim, _ := store.Primitive(0); prim.Transform.Translation != (mgl32.Vec3{0.5, 0, 0}) {
		t.Errorf("healthy animation did not run: %+v", prim.Transform)
	}

	if err := s.Animate(1, nil); err != nil {
		t.Fatalf("Animate(1, nil): %v", err)
	}
	if err := s.Animate(2, nil); err != nil {
		t.Fatalf("Animate(2, nil): %v", err)
	}
	if u := mustUpdate(t, s, 0.5); u.FrameNumber != 1 || !u.TransformsChanged {
		t.Errorf("update after detaching the broken animations: %+v", u)
	}
}

func TestNewSceneRejects(t *testing.T) {
	csgStore := newStore(t, box("mug", common.IntersectionTypeCSG, geometry.ShapeCSGTree))
	tests := []struct {
		name    string
		store   geometry.Store
		options []SceneBuilderOption
	}{
		{"nil store", nil, nil},
		{"csg without tree", csgStore, nil},
		{"unknown mode", newStore(t), []SceneBuilderOption{WithMode(common.RenderModeCount)}},
		{"animation out of range", newStore(t), []SceneBuilderOption{WithAnimation(3, func(float32) geometry.Transform { return geometry.IdentityTransform() })}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScene(tt.name, tt.store, nil, tt.options...); !errors.Is(err, common.ErrValidation) {
				t.Errorf("err = %v, want a ValidationError", err)
			}
		})
	}
}

func TestConstants(t *testing.T) {
	nodes, err := csg.FromPostfix(csg.CoffeeMug())
	if err != nil {
		t.Fatalf("FromPostfix: %v", err)
	}
	tree, err := csg.BuildTree(nodes)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}
	store := newStore(t, box("mug", common.IntersectionTypeCSG, geometry.ShapeCSGTree))

	a, err := NewScene("a", store, tree, WithSeed(42), WithSamplesPerPixel(4), WithMode(common.RenderModeForwardPath))
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	b, _ := NewScene("b", store, tree, WithSeed(42))
	mustUpdate(t, a, 0.25)
	mustUpdate(t, b, 0.25)

	c := a.Constants(2, 640, 480)
	if c.RandomSeeds != b.Constants(2, 640, 480).RandomSeeds {
		t.Error("scenes with the same seed drew different seeds")
	}
	for i := range 4 {
		if c.RandomSeeds[i] < 0 || c.RandomSeeds[i] >= 1 {
			t.Errorf("seed %d = %v outside [0, 1)", i, c.RandomSeeds[i])
		}
	}
	if c.CSGNodeCount != 7 || c.SamplesPerPixel != 4 || c.Mode != uint32(common.RenderModeForwardPath) {
		t.Errorf("constants = %+v", c)
	}
	if c.Resolution != [2]uint32{640, 480} || c.PassIndex != 2 || c.RenderFull != 1 || c.FrameNumber != 1 {
		t.Errorf("constants = %+v", c)
	}
	if c.ElapsedTime != 0.25 || c.Light.Power != 1 {
		t.Errorf("ElapsedTime = %v, Light.Power = %v", c.ElapsedTime, c.Light.Power)
	}

	buf := c.Marshal()
	if len(buf) != GPUSceneConstantsSize {
		t.Fatalf("len(Marshal()) = %d", len(buf))
	}
	if got := string(buf[0:80]); got != string(c.Camera.Marshal()) {
		t.Error("camera block is not at offset 0")
	}
	if got := string(buf[80:144]); got != string(c.Light.Marshal()) {
		t.Error("light block is not at offset 80")
	}
	if buf[200] != 2 {
		t.Errorf("pass index byte = %d", buf[200])
	}
}
