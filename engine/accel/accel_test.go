package accel

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

func newDevice(t *testing.T) (renderer.Renderer, renderer.HeadlessBackend) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithShaderCompiler(nil))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	if err := r.BeginCommandList(); err != nil {
		t.Fatalf("BeginCommandList: %v", err)
	}
	return r, r.Backend().(renderer.HeadlessBackend)
}

func box(name string, x float32) geometry.Primitive {
	return geometry.Primitive{
		Name:     name,
		Geometry: common.GeometryTypeAABB,
		Category: common.IntersectionTypeAnalytic,
		Bounds:   common.AABB{Min: mgl32.Vec3{x - 1, 0, -1}, Max: mgl32.Vec3{x + 1, 2, 1}},
	}
}

func ground() geometry.Primitive {
	return geometry.Primitive{
		Name:      "ground",
		Geometry:  common.GeometryTypeTriangle,
		Transform: geometry.IdentityTransform(),
		Mesh: &geometry.Mesh{
			Vertices: []mgl32.Vec3{{-5, 0, -5}, {5, 0, -5}, {5, 0, 5}, {-5, 0, 5}},
			Indices:  []uint32{0, 2, 1, 0, 3, 2},
		},
	}
}

func instances(m Manager) []Instance {
	var out []Instance
	for g := common.GeometryType(0); g < common.GeometryTypeCount; g++ {
		blas, ok := m.BottomLevel(g)
		if !ok {
			continue
		}
		out = append(out, Instance{
			BottomLevel:  blas.Handle,
			Transform:    mgl32.Ident4(),
			InstanceID:   uint32(g),
			Contribution: uint32(g) * 2,
			Mask:         0xFF,
		})
	}
	return out
}

func TestBuildBottomLevelRejects(t *testing.T) {
	r, _ := newDevice(t)
	m := NewManager(r)

	tests := []struct {
		name       string
		geometry   common.GeometryType
		primitives []geometry.Primitive
	}{
		{"empty", common.GeometryTypeAABB, nil},
		{"triangle in aabb structure", common.GeometryTypeAABB, []geometry.Primitive{box("a", 0), ground()}},
		{"aabb in triangle structure", common.GeometryTypeTriangle, []geometry.Primitive{ground(), box("a", 0)}},
		{"unknown geometry type", common.GeometryTypeCount, []geometry.Primitive{box("a", 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.BuildBottomLevel(tt.geometry, tt.primitives)
			var verr *common.ValidationError
			if !errors.As(err, &verr) || verr.Component != "accel" {
				t.Fatalf("err = %v, want accel ValidationError", err)
			}
		})
	}
	if _, ok := m.BottomLevel(common.GeometryTypeAABB); ok {
		t.Error("a rejected build left a bottom-level structure")
	}
}

func TestRefitOnTransformChange(t *testing.T) {
	r, _ := newDevice(t)
	m := NewManager(r)
	if m.State() != StateUninitialized || !m.NeedsUpdate() {
		t.Fatalf("fresh manager state %s", m.State())
	}

	if _, err := m.BuildBottomLevel(common.GeometryTypeTriangle, []geometry.Primitive{ground()}); err != nil {
		t.Fatalf("BuildBottomLevel: %v", err)
	}
	blas, err := m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0), box("b", 3)})
	if err != nil {
		t.Fatalf("BuildBottomLevel: %v", err)
	}
	if blas.Nodes != 2 || blas.Primitives != 2 {
		t.Errorf("aabb blas = %+v", blas)
	}

	first, err := m.BuildTopLevel(instances(m))
	if err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if m.State() != StateBuilt || first.Nodes != 4 || first.Instances != 2 {
		t.Fatalf("state %s, tlas %+v", m.State(), first)
	}

	if !m.MarkTransformsChanged() || m.State() != StateStale || !m.NeedsUpdate() {
		t.Fatalf("MarkTransformsChanged left state %s", m.State())
	}
	second, err := m.BuildTopLevel(instances(m))
	if err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if m.RebuildCount() != 1 || m.RefitCount() != 1 || m.State() != StateRefit {
		t.Errorf("rebuilds %d refits %d state %s, want 1 1 refit", m.RebuildCount(), m.RefitCount(), m.State())
	}
	if second.Handle != first.Handle {
		t.Error("refit moved the top-level structure")
	}
}

func TestMarkTransformsChangedOncePerFrame(t *testing.T) {
	r, _ := newDevice(t)
	m := NewManager(r)
	if m.MarkTransformsChanged() {
		t.Error("an uninitialized structure went stale")
	}

	_, _ = m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	_, _ = m.BuildTopLevel(instances(m))

	if !m.MarkTransformsChanged() {
		t.Fatal("first mark had no effect")
	}
	_, _ = m.BuildTopLevel(instances(m))
	if m.MarkTransformsChanged() {
		t.Error("second mark in the same frame had an effect")
	}
	if m.NeedsUpdate() {
		t.Error("refit structure still needs an update")
	}

	m.NextFrame()
	if !m.MarkTransformsChanged() {
		t.Error("mark after NextFrame had no effect")
	}
}

func TestRebuildOnCompositionChange(t *testing.T) {
	r, backend := newDevice(t)
	m := NewManager(r)

	_, _ = m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	first, _ := m.BuildTopLevel(instances(m))

	// adding the triangle structure changes the instance count
	_, _ = m.BuildBottomLevel(common.GeometryTypeTriangle, []geometry.Primitive{ground()})
	if m.State() != StateStale {
		t.Errorf("new bottom level left state %s, want stale", m.State())
	}
	second, err := m.BuildTopLevel(instances(m))
	if err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if m.RebuildCount() != 2 || m.RefitCount() != 0 || m.State() != StateRebuilt {
		t.Errorf("rebuilds %d refits %d state %s", m.RebuildCount(), m.RefitCount(), m.State())
	}
	if second.Nodes != 3 || second.Handle == first.Handle {
		t.Errorf("tlas %+v after growing from %+v", second, first)
	}
	if _, ok := backend.BufferData(first.Handle); ok {
		t.Error("the outgrown top-level buffer was not released")
	}

	// a bottom level with more primitives changes the composition at the same instance count
	_, _ = m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0), box("b", 3)})
	if _, err := m.BuildTopLevel(instances(m)); err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if m.RebuildCount() != 3 {
		t.Errorf("RebuildCount() = %d, want 3", m.RebuildCount())
	}

	var builds []renderer.Command
	for _, c := range backend.Commands() {
		if c.Kind == renderer.CommandBuildTopLevel {
			builds = append(builds, c)
		}
	}
	if len(builds) != 3 {
		t.Fatalf("recorded %d top-level builds, want 3", len(builds))
	}
	for i, c := range builds {
		if c.Update {
			t.Errorf("build %d recorded as a refit", i)
		}
	}
}

func TestAlwaysRebuild(t *testing.T) {
	r, _ := newDevice(t)
	m := NewManager(r, WithAlwaysRebuild(true), WithLabel("test"))
	_, _ = m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	for range 3 {
		if _, err := m.BuildTopLevel(instances(m)); err != nil {
			t.Fatalf("BuildTopLevel: %v", err)
		}
	}
	if m.RebuildCount() != 3 || m.RefitCount() != 0 {
		t.Errorf("rebuilds %d refits %d, want 3 0", m.RebuildCount(), m.RefitCount())
	}
}

func TestBuildTopLevelRejects(t *testing.T) {
	r, _ := newDevice(t)
	m := NewManager(r)
	if _, err := m.BuildTopLevel(nil); !errors.Is(err, common.ErrValidation) {
		t.Errorf("no instances: err = %v", err)
	}
	if _, err := m.BuildTopLevel([]Instance{{BottomLevel: 77, Mask: 1}}); !errors.Is(err, common.ErrValidation) {
		t.Errorf("unknown bottom level: err = %v", err)
	}
}

func TestReleaseKeepsCounters(t *testing.T) {
	r, backend := newDevice(t)
	m := NewManager(r)
	blas, _ := m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	tlas, _ := m.BuildTopLevel(instances(m))

	m.Release()
	if m.State() != StateUninitialized || !m.NeedsUpdate() {
		t.Errorf("state %s after Release", m.State())
	}
	if m.RebuildCount() != 1 {
		t.Errorf("RebuildCount() = %d after Release, want 1", m.RebuildCount())
	}
	for _, h := range []common.ResourceHandle{blas.Handle, tlas.Handle} {
		if _, ok := backend.BufferData(h); ok {
			t.Errorf("buffer %d survived Release", h)
		}
	}

	_, _ = m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	if _, err := m.BuildTopLevel(instances(m)); err != nil {
		t.Fatalf("BuildTopLevel after Release: %v", err)
	}
	if m.State() != StateBuilt || m.RebuildCount() != 2 {
		t.Errorf("state %s rebuilds %d", m.State(), m.RebuildCount())
	}
}

// liveBuffers tracks the buffers a manager holds on a device.
type liveBuffers struct {
	Device
	live map[common.ResourceHandle]bool
}

func (d *liveBuffers) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (common.ResourceHandle, error) {
	h, err := d.Device.CreateBuffer(label, size, usage)
	if err == nil {
		d.live[h] = true
	}
	return h, err
}

func (d *liveBuffers) ReleaseResource(h common.ResourceHandle) {
	delete(d.live, h)
	d.Device.ReleaseResource(h)
}

func TestFailedRebuildDropsStructure(t *testing.T) {
	r, backend := newDevice(t)
	device := &liveBuffers{Device: r, live: map[common.ResourceHandle]bool{}}
	m := NewManager(device)

	aabb, err := m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)})
	if err != nil {
		t.Fatalf("BuildBottomLevel: %v", err)
	}
	tri, err := m.BuildBottomLevel(common.GeometryTypeTriangle, []geometry.Primitive{ground()})
	if err != nil {
		t.Fatalf("BuildBottomLevel: %v", err)
	}
	all := instances(m)
	if _, err := m.BuildTopLevel(all[:1]); err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if _, err := r.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := m.BuildTopLevel(all); err == nil {
		t.Fatal("BuildTopLevel without an open command list succeeded")
	}
	if tlas, ok := m.TopLevel(); ok {
		t.Errorf("TopLevel() = %+v after a failed rebuild", tlas)
	}
	if !m.NeedsUpdate() || m.State() != StateUninitialized {
		t.Errorf("state %s after a failed rebuild", m.State())
	}
	for h := range device.live {
		if h != aabb.Handle && h != tri.Handle {
			t.Errorf("buffer %d leaked by the failed rebuild", h)
		}
		if _, ok := backend.BufferData(h); !ok {
			t.Errorf("buffer %d is tracked but not live", h)
		}
	}

	if err := r.BeginCommandList(); err != nil {
		t.Fatalf("BeginCommandList: %v", err)
	}
	tlas, err := m.BuildTopLevel(all)
	if err != nil {
		t.Fatalf("BuildTopLevel after the failure: %v", err)
	}
	if _, ok := backend.BufferData(tlas.Handle); !ok {
		t.Errorf("top-level buffer %d is not live", tlas.Handle)
	}
	if m.State() != StateBuilt {
		t.Errorf("state %s, want %s", m.State(), StateBuilt)
	}
}

func TestFailedBottomLevelBuildReleasesBuffer(t *testing.T) {
	r, _ := newDevice(t)
	device := &liveBuffers{Device: r, live: map[common.ResourceHandle]bool{}}
	m := NewManager(device)

	if _, err := m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0)}); err != nil {
		t.Fatalf("BuildBottomLevel: %v", err)
	}
	if _, err := m.BuildTopLevel(instances(m)); err != nil {
		t.Fatalf("BuildTopLevel: %v", err)
	}
	if _, err := r.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if _, err := m.BuildBottomLevel(common.GeometryTypeAABB, []geometry.Primitive{box("a", 0), box("b", 4)}); err == nil {
		t.Fatal("BuildBottomLevel without an open command list succeeded")
	}
	if _, ok := m.BottomLevel(common.GeometryTypeAABB); ok {
		t.Error("BottomLevel() reports a structure after a failed build")
	}
	if !m.NeedsUpdate() {
		t.Error("NeedsUpdate() = false with a dropped bottom-level structure")
	}
	tlas, _ := m.TopLevel()
	if len(device.live) != 1 || !device.live[tlas.Handle] {
		t.Errorf("live buffers %v, want only the top level %d", device.live, tlas.Handle)
	}
}
