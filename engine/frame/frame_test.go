package frame

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/csg"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

const dt = 1.0 / 60

func newHeadless(t *testing.T) (renderer.Renderer, renderer.HeadlessBackend) {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeHeadless, renderer.WithShaderCompiler(nil), renderer.WithResolution(4, 4))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r, r.Backend().(renderer.HeadlessBackend)
}

func newScene(t *testing.T, options ...scene.SceneBuilderOption) scene.Scene {
	t.Helper()
	nodes, err := csg.FromPostfix(csg.CoffeeMug())
	if err != nil {
		t.Fatalf("FromPostfix: %v", err)
	}
	tree, err := csg.BuildTree(nodes)
	if err != nil {
		t.Fatalf("BuildTree: %v", err)
	}

	material := geometry.Material{Albedo: mgl32.Vec4{0.8, 0.8, 0.8, 1}, DiffuseCoef: 0.9, SpecularCoef: 0.1, SpecularPower: 20}
	primitive := func(name string, category common.IntersectionType, shape uint32, x float32) geometry.Primitive {
		return geometry.Primitive{
			Name:      name,
			Geometry:  common.GeometryTypeAABB,
			Category:  category,
			Shape:     shape,
			Material:  material,
			Bounds:    common.AABB{Min: mgl32.Vec3{x - 1, 0, -1}, Max: mgl32.Vec3{x + 1, 2, 1}},
			Transform: geometry.IdentityTransform(),
		}
	}
	store, err := geometry.NewStore(
		geometry.WithGroundPlane(25, 0, material),
		geometry.WithPrimitives(
			primitive("box", common.IntersectionTypeAnalytic, geometry.ShapeBox, -2),
			primitive("mug", common.IntersectionTypeCSG, geometry.ShapeCSGTree, 2),
		),
	)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	options = append([]scene.SceneBuilderOption{scene.WithComputeWorkers(1), scene.WithSeed(3), scene.WithAnimating(false)}, options...)
	sc, err := scene.NewScene("test", store, tree, options...)
	if err != nil {
		t.Fatalf("NewScene: %v", err)
	}
	return sc
}

func newOrchestrator(t *testing.T, r renderer.Renderer, sc scene.Scene, options ...OrchestratorBuilderOption) *orchestrator {
	t.Helper()
	o, err := NewOrchestrator(r, sc, append([]OrchestratorBuilderOption{WithPhotonCapacity(64)}, options...)...)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o.(*orchestrator)
}

func render(t *testing.T, o Orchestrator, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		if err := o.RenderFrame(dt); err != nil {
			t.Fatalf("RenderFrame %d: %v", i, err)
		}
	}
}

func kinds(commands []renderer.Command) []renderer.CommandKind {
	out := make([]renderer.CommandKind, len(commands))
	for i, c := range commands {
		out[i] = c.Kind
	}
	return out
}

func count(commands []renderer.Command, kind renderer.CommandKind) int {
	n := 0
	for _, c := range commands {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func TestNewOrchestratorRejects(t *testing.T) {
	r, _ := newHeadless(t)
	sc := newScene(t)

	tests := []struct {
		name    string
		r       renderer.Renderer
		sc      scene.Scene
		options []OrchestratorBuilderOption
	}{
		{"nil renderer", nil, sc, nil},
		{"nil scene", r, nil, nil},
		{"no photon storage", r, sc, []OrchestratorBuilderOption{WithPhotonCapacity(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewOrchestrator(tt.r, tt.sc, tt.options...); !errors.Is(err, common.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestFrameCommandOrder(t *testing.T) {
	r, backend := newHeadless(t)
	o := newOrchestrator(t, r, newScene(t))
	render(t, o, 1)

	want := []renderer.CommandKind{
		renderer.CommandBuildBottomLevel, // triangles
		renderer.CommandBuildBottomLevel, // procedural
		renderer.CommandBuildTopLevel,
		renderer.CommandBarrier,
		renderer.CommandSetPipeline,
		renderer.CommandSetDescriptorTable,
		renderer.CommandDispatchRays,
		renderer.CommandBarrier,
		renderer.CommandSetPipeline,
		renderer.CommandSetDescriptorTable,
		renderer.CommandDispatch, // raster
		renderer.CommandBarrier,
		renderer.CommandDispatch, // composite
		renderer.CommandBarrier,
		renderer.CommandSubmit,
		renderer.CommandPresent,
	}
	got := kinds(backend.Commands())
	if len(got) != len(want) {
		t.Fatalf("recorded %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("command %d is %s, want %s (stream %v)", i, got[i], want[i], got)
		}
	}

	// a stationary second frame records no acceleration structure work
	backend.ResetCommands()
	render(t, o, 1)
	commands := backend.Commands()
	if n := count(commands, renderer.CommandBuildBottomLevel) + count(commands, renderer.CommandBuildTopLevel); n != 0 {
		t.Errorf("second frame recorded %d builds", n)
	}
	if s := o.Stats(); s.Frames != 2 || s.Rebuilds != 1 || s.Refits != 0 {
		t.Errorf("stats %+v", s)
	}
}

func TestPhotonMappingBarrier(t *testing.T) {
	r, backend := newHeadless(t)
	o := newOrchestrator(t, r, newScene(t, scene.WithMode(common.RenderModePhotonMapping)))
	render(t, o, 1)

	commands := backend.Commands()
	photon, gather := -1, -1
	for i, c := range commands {
		if c.Kind != renderer.CommandDispatchRays {
			continue
		}
		switch c.Export {
		case "raygen_photon":
			photon = i
		case "raygen_gather":
			gather = i
		}
	}
	if photon < 0 || gather < photon {
		t.Fatalf("photon dispatch at %d, gather at %d", photon, gather)
	}

	var barrier bool
	for _, c := range commands[photon+1 : gather] {
		if c.Kind != renderer.CommandBarrier {
			continue
		}
		for _, b := range c.Barriers {
			if b.UAV && b.Resource == o.res.photons {
				barrier = true
			}
		}
	}
	if !barrier {
		t.Error("no UAV barrier on the photon buffer between the photon and gather dispatches")
	}

	counter, ok := backend.BufferData(o.res.photonCounter)
	if !ok || binary.LittleEndian.Uint32(counter) != 0 {
		t.Errorf("photon counter was not reset: %v", counter)
	}
}

func TestBidirectionalPasses(t *testing.T) {
	r, backend := newHeadless(t)
	o := newOrchestrator(t, r, newScene(t, scene.WithMode(common.RenderModeBidirectional)))
	render(t, o, 1)

	var exports []string
	for _, c := range backend.Commands() {
		if c.Kind == renderer.CommandDispatchRays {
			exports = append(exports, c.Export)
		}
	}
	want := []string{"raygen_light_first", "raygen_light_second", "raygen_forward"}
	if len(exports) != len(want) {
		t.Fatalf("ray dispatches %v, want %v", exports, want)
	}
	for i := range want {
		if exports[i] != want[i] {
			t.Errorf("ray dispatch %d = %s, want %s", i, exports[i], want[i])
		}
	}

	// one constants record per pass plus the composite, tagged with its pass index
	data, _ := backend.BufferData(o.res.constants)
	for record := 0; record < 4; record++ {
		offset := o.constantsOffset(record) + 200
		if got := binary.LittleEndian.Uint32(data[offset:]); got != uint32(record) {
			t.Errorf("record %d pass index = %d", record, got)
		}
	}

	// the forward pass reads the light vertices the light passes write, and the composite
	// has another layout again
	if s := o.Stats(); s.Rebinds < 2 {
		t.Errorf("Rebinds = %d, want at least 2", s.Rebinds)
	}
}

func TestRasterModeDispatchesNoRays(t *testing.T) {
	r, backend := newHeadless(t)
	o := newOrchestrator(t, r, newScene(t, scene.WithMode(common.RenderModeRaster)))
	render(t, o, 1)

	commands := backend.Commands()
	if n := count(commands, renderer.CommandDispatchRays); n != 0 {
		t.Errorf("raster frame recorded %d ray dispatches", n)
	}
	if n := count(commands, renderer.CommandDispatch); n != 2 {
		t.Errorf("raster frame recorded %d compute dispatches, want 2", n)
	}

	data, _ := backend.BufferData(o.res.compositeParams)
	if got := binary.LittleEndian.Uint32(data[16:]); got != 1 {
		t.Errorf("raster_only = %d, want 1", got)
	}
}

func TestTransformChangeRefits(t *testing.T) {
	r, backend := newHeadless(t)
	spin := func(elapsed float32) geometry.Transform {
		tr := geometry.IdentityTransform()
		tr.Rotation = mgl32.QuatRotate(elapsed, mgl32.Vec3{0, 1, 0})
		return tr
	}
	sc := newScene(t, scene.WithAnimating(true), scene.WithAnimation(0, spin))
	o := newOrchestrator(t, r, sc)

	render(t, o, 1)
	before, _ := backend.BufferData(o.res.attributes)
	backend.ResetCommands()
	render(t, o, 1)

	var refit bool
	for _, c := range backend.Commands() {
		if c.Kind == renderer.CommandBuildTopLevel && c.Update {
			refit = true
		}
		if c.Kind == renderer.CommandBuildBottomLevel {
			t.Error("a transform change rebuilt a bottom-level structure")
		}
	}
	if !refit {
		t.Error("no top-level refit after a transform change")
	}
	if s := o.Stats(); s.Rebuilds != 1 || s.Refits != 1 {
		t.Errorf("Rebuilds = %d, Refits = %d, want 1 and 1", s.Rebuilds, s.Refits)
	}
	if d := sc.Store().Dirty(); len(d) != 0 {
		t.Errorf("Dirty() = %v after the refit", d)
	}

	after, _ := backend.BufferData(o.res.attributes)
	if string(before) == string(after) {
		t.Error("animated attributes were not uploaded")
	}
}

func TestDeviceLostRecovery(t *testing.T) {
	r, backend := newHeadless(t)
	sc := newScene(t)
	o := newOrchestrator(t, r, sc)
	render(t, o, 1)

	backend.InjectDeviceLost("test reset")
	if err := o.RenderFrame(dt); err != nil {
		t.Fatalf("frame during device lost: %v", err)
	}
	if n := backend.Recreations(); n != 1 {
		t.Fatalf("Recreations() = %d, want 1", n)
	}
	if s := o.Stats(); s.DroppedFrames != 1 || s.DeviceResets != 1 || s.Frames != 1 {
		t.Errorf("stats after the lost frame %+v", s)
	}

	backend.ResetCommands()
	render(t, o, 1)
	commands := backend.Commands()
	if count(commands, renderer.CommandBuildBottomLevel) != 2 || count(commands, renderer.CommandPresent) != 1 {
		t.Errorf("frame after recovery recorded %v", kinds(commands))
	}
	if n := backend.Recreations(); n != 1 {
		t.Errorf("Recreations() = %d after a healthy frame, want 1", n)
	}
	if s := o.Stats(); s.Frames != 2 {
		t.Errorf("Frames = %d, want 2", s.Frames)
	}
	if sc.Accumulation() != 0 {
		t.Errorf("Accumulation() = %d after recovery, want 0", sc.Accumulation())
	}
}

func TestFrameSlotsRotate(t *testing.T) {
	r, _ := newHeadless(t)
	o := newOrchestrator(t, r, newScene(t))
	render(t, o, renderer.FrameCount+1)

	want := [renderer.FrameCount]uint64{4, 2, 3}
	if o.fences != want {
		t.Errorf("fences = %v, want %v", o.fences, want)
	}
	if o.slot != 0 {
		t.Errorf("slot = %d, want 0", o.slot)
	}
}

func TestResize(t *testing.T) {
	r, backend := newHeadless(t)
	sc := newScene(t)
	o := newOrchestrator(t, r, sc)
	render(t, o, 2)

	if err := o.Resize(8, 6); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if size, ok := r.BufferSize(o.res.present); !ok || size != 8*6*pixelSize {
		t.Errorf("present buffer holds %d bytes, want %d", size, 8*6*pixelSize)
	}
	if size, _ := r.BufferSize(o.res.lightVertices); size != 8*6*lightVerticesPerPixel*lightVertexSize {
		t.Errorf("light vertex buffer holds %d bytes", size)
	}

	backend.ResetCommands()
	render(t, o, 1)
	var presented bool
	for _, c := range backend.Commands() {
		if c.Kind == renderer.CommandPresent && c.Size == [3]uint32{8, 6, 1} {
			presented = true
		}
	}
	if !presented {
		t.Error("no 8x6 present after the resize")
	}
	if sc.Accumulation() != 0 {
		t.Errorf("Accumulation() = %d after a resize, want 0", sc.Accumulation())
	}

	if err := o.Resize(0, 6); err != nil {
		t.Errorf("Resize to a zero width: %v", err)
	}
}

func TestCompositeParamsMarshal(t *testing.T) {
	p := GPUCompositeParams{Blend: 1, Accumulation: 9, Width: 640, Height: 480, RasterOnly: 1}
	buf := p.Marshal()
	if len(buf) != 32 {
		t.Fatalf("len = %d, want 32", len(buf))
	}
	for i, want := range []uint32{1, 9, 640, 480, 1, 0, 0, 0} {
		if got := binary.LittleEndian.Uint32(buf[i*4:]); got != want {
			t.Errorf("word %d = %d, want %d", i, got, want)
		}
	}
}
