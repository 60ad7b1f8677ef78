package frame

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/accel"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/Carmen-Shannon/oxy-rt/log"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("frame")

const (
	// DefaultPhotonCapacity is the number of photons the photon buffer holds.
	DefaultPhotonCapacity = 1 << 16

	// lightVerticesPerPixel is the vertex count of one light subpath.
	lightVerticesPerPixel = 2
)

// rayVariants are the variants that dispatch rays, in shader-table order.
var rayVariants = []pipeline.Variant{
	pipeline.VariantRaytracing,
	pipeline.VariantForwardPath,
	pipeline.VariantLightPathFirst,
	pipeline.VariantLightPathSecond,
	pipeline.VariantPhotonMapping,
	pipeline.VariantPhotonGather,
}

// orchestrator is the implementation of the Orchestrator interface.
type orchestrator struct {
	mu *sync.Mutex

	r     renderer.Renderer
	sc    scene.Scene
	label string

	photonCapacity int
	alwaysRebuild  bool

	pipelines [pipeline.VariantCount]pipeline.Pipeline
	ranges    [pipeline.VariantCount]dispatchRanges
	accel     accel.Manager
	instances []accel.Instance
	tlas      common.ResourceHandle

	res   resources
	table descriptor_table.DescriptorTable

	fences     [renderer.FrameCount]uint64
	frameIndex uint64
	slot       int
	record     int

	width, height int

	clock passClock
	stats Stats
}

// Orchestrator drives one scene through the frame graph of a renderer:
//
//	BeginFrame -> UpdateScene -> [RebuildOrRefitAS] -> Dispatch(variants) -> Composite -> Present
//
// Up to renderer.FrameCount frames are in flight; each owns a slot of the constant buffer
// that is rewritten only after the slot's fence completed. A lost device drops the frame
// and rebuilds every device object from the scene.
type Orchestrator interface {
	// RenderFrame records, submits and presents one frame.
	//
	// Parameters:
	//   - deltaTime: seconds since the previous frame, advances the scene animation
	//
	// Returns:
	//   - error: nil when the frame was presented or dropped after a successful device
	//     recovery; a ValidationError or the recovery failure otherwise
	RenderFrame(deltaTime float32) error

	// Resize recreates the size-dependent targets after the frames in flight completed and
	// restarts accumulation. A zero dimension (a minimized window) is ignored.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: an error if the targets could not be recreated
	Resize(width, height int) error

	// Scene returns the scene being rendered.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// Renderer returns the renderer the frames are recorded on.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// AccelerationStructures returns the manager of the scene's acceleration structures.
	//
	// Returns:
	//   - accel.Manager: the manager
	AccelerationStructures() accel.Manager

	// Stats returns a snapshot of the frame counters.
	//
	// Returns:
	//   - Stats: the counters
	Stats() Stats

	// WaitIdle blocks until every submitted frame completed.
	//
	// Returns:
	//   - error: a *common.DeviceLostError if the device was lost while waiting
	WaitIdle() error

	// Release waits for the frames in flight and frees every device object it created.
	Release()
}

var _ Orchestrator = &orchestrator{}

// NewOrchestrator builds the pipelines of every variant, registers them with the renderer and
// creates the buffers, shader tables and descriptor table for the scene. Registration is
// all-or-nothing: a shader that fails to compile leaves no pipeline behind.
//
// Parameters:
//   - r: the renderer
//   - sc: the scene
//   - options: variadic list of OrchestratorBuilderOption functions
//
// Returns:
//   - Orchestrator: the orchestrator
//   - error: a ValidationError for a pipeline or scene that cannot be built
func NewOrchestrator(r renderer.Renderer, sc scene.Scene, options ...OrchestratorBuilderOption) (Orchestrator, error) {
	if r == nil || sc == nil {
		return nil, common.NewValidationError("frame", "a renderer and a scene are required")
	}

	o := &orchestrator{
		mu:             &sync.Mutex{},
		r:              r,
		sc:             sc,
		label:          sc.Name(),
		photonCapacity: DefaultPhotonCapacity,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.photonCapacity < 1 {
		return nil, common.NewValidationError("frame", "%s: photon capacity %d", o.label, o.photonCapacity)
	}

	configs := pipeline.DefaultVariantConfigs()
	for v := pipeline.Variant(0); v < pipeline.VariantCount; v++ {
		cfg := configs[v]
		lib, err := shader.BuiltinLibrary(cfg.Library)
		if err != nil {
			return nil, fmt.Errorf("variant %s: %w", v, err)
		}
		p, err := pipeline.NewPipeline(cfg, lib, pipeline.WithLabel(o.label+"/"+v.String()))
		if err != nil {
			return nil, err
		}
		o.pipelines[v] = p
	}

	o.accel = accel.NewManager(r, accel.WithLabel(o.label), accel.WithAlwaysRebuild(o.alwaysRebuild))
	o.width, o.height = r.Resolution()
	if err := o.build(); err != nil {
		return nil, err
	}
	sc.Camera().SetAspect(float32(o.width) / float32(o.height))

	logger.Infof("%s: frame graph ready at %dx%d, %d frames in flight", o.label, o.width, o.height, renderer.FrameCount)
	return o, nil
}

// build creates every device object of the frame graph. The acceleration structures are
// built by the first frame's RebuildOrRefitAS.
func (o *orchestrator) build() error {
	if o.width <= 0 || o.height <= 0 {
		return common.NewValidationError("frame", "%s: resolution %dx%d", o.label, o.width, o.height)
	}
	if err := o.r.RegisterPipelines(o.pipelines[:]...); err != nil {
		return err
	}
	if err := o.createSceneResources(); err != nil {
		return err
	}
	if err := o.createTargets(o.width, o.height); err != nil {
		return err
	}
	if err := o.buildShaderTables(); err != nil {
		return err
	}
	o.tlas = common.InvalidHandle
	o.instances = nil
	o.fences = [renderer.FrameCount]uint64{}
	return nil
}

func (o *orchestrator) RenderFrame(deltaTime float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	o.clock.reset()
	err := o.renderFrame(deltaTime)
	if err == nil {
		o.stats.Frames++
		o.stats.LastFrame = time.Since(start)
		o.stats.Passes = o.clock.passes
		return nil
	}
	if !common.IsDeviceLost(err) {
		return err
	}
	return o.recover(err)
}

func (o *orchestrator) renderFrame(deltaTime float32) error {
	if err := o.beginFrame(); err != nil {
		return err
	}
	update, passes, err := o.updateScene(deltaTime)
	if err != nil {
		return err
	}
	if err := o.r.BeginCommandList(); err != nil {
		return err
	}
	if err := o.rebuildOrRefitAS(update); err != nil {
		return err
	}
	if err := o.dispatch(passes); err != nil {
		return err
	}
	if err := o.composite(passes); err != nil {
		return err
	}
	return o.present()
}

// beginFrame rotates the frame slot and waits until the GPU finished the frame that last used it.
func (o *orchestrator) beginFrame() error {
	o.slot = int(o.frameIndex % renderer.FrameCount)
	o.frameIndex++
	o.accel.NextFrame()
	return o.r.WaitForFence(o.fences[o.slot])
}

// updateScene advances the scene and writes the slot's scene constants, one record per pass,
// the composite parameters and any animated attributes.
func (o *orchestrator) updateScene(deltaTime float32) (scene.FrameUpdate, []pipeline.Variant, error) {
	o.clock.begin()
	update, err := o.sc.Update(deltaTime)
	if err != nil {
		return scene.FrameUpdate{}, nil, err
	}
	mode := o.sc.Mode()
	passes := pipeline.SelectVariant(mode)

	writes := make([]descriptor_table.BufferWrite, 0, len(passes)+4)
	for record := 0; record <= len(passes); record++ {
		constants := o.sc.Constants(uint32(record), o.width, o.height)
		writes = append(writes, descriptor_table.BufferWrite{
			Resource: o.res.constants,
			Offset:   o.constantsOffset(record),
			Data:     constants.Marshal(),
		})
	}

	params := GPUCompositeParams{
		Blend:        uint32(pipeline.BlendReplace),
		Accumulation: update.Accumulation,
		Width:        uint32(o.width),
		Height:       uint32(o.height),
	}
	if len(passes) == 0 {
		params.RasterOnly = 1
	} else {
		params.Blend = uint32(o.pipelines[passes[len(passes)-1]].Blend())
	}
	writes = append(writes, descriptor_table.BufferWrite{
		Resource: o.res.compositeParams,
		Offset:   uint64(o.slot) * o.paramsStride(),
		Data:     params.Marshal(),
	})

	if update.TransformsChanged {
		writes = append(writes, descriptor_table.BufferWrite{Resource: o.res.attributes, Data: attributeData(o.sc.Store())})
	}
	for _, v := range passes {
		if v == pipeline.VariantPhotonMapping {
			writes = append(writes, descriptor_table.BufferWrite{Resource: o.res.photonCounter, Data: make([]byte, counterSize)})
		}
	}

	if err := o.r.WriteBuffers(writes); err != nil {
		return update, nil, err
	}
	o.clock.end("update-scene")
	return update, passes, nil
}

// rebuildOrRefitAS builds the acceleration structures when none exist and refits the
// top-level structure after transforms changed, followed by a barrier on the result.
func (o *orchestrator) rebuildOrRefitAS(update scene.FrameUpdate) error {
	o.clock.begin()
	store := o.sc.Store()
	var barriers []renderer.Barrier

	if o.accel.State() == accel.StateUninitialized {
		contributions := shader_table.InstanceContributions(store)
		o.instances = o.instances[:0]
		for _, g := range []common.GeometryType{common.GeometryTypeTriangle, common.GeometryTypeAABB} {
			prims := store.Triangles()
			if g == common.GeometryTypeAABB {
				prims = store.Procedural()
			}
			if len(prims) == 0 {
				continue
			}
			blas, err := o.accel.BuildBottomLevel(g, prims)
			if err != nil {
				return err
			}
			barriers = append(barriers, renderer.Barrier{Resource: blas.Handle, UAV: true})
			o.instances = append(o.instances, accel.Instance{
				BottomLevel:  blas.Handle,
				Transform:    mgl32.Ident4(),
				InstanceID:   uint32(g),
				Contribution: contributions[g],
				Mask:         0xFF,
			})
		}
	} else if update.TransformsChanged {
		o.accel.MarkTransformsChanged()
	}

	if !o.accel.NeedsUpdate() {
		return nil
	}
	tlas, err := o.accel.BuildTopLevel(o.instances)
	if err != nil {
		return err
	}
	store.ClearDirty()
	o.tlas = tlas.Handle
	o.stats.Rebuilds = o.accel.RebuildCount()
	o.stats.Refits = o.accel.RefitCount()

	barriers = append(barriers, renderer.Barrier{Resource: tlas.Handle, UAV: true})
	if err := o.r.ResourceBarrier(barriers...); err != nil {
		return err
	}
	o.clock.end(o.accel.State().String())
	return nil
}

// passWrites returns the buffers a ray variant writes, which need a UAV barrier before the
// next pass reads them.
func (o *orchestrator) passWrites(v pipeline.Variant) []renderer.Barrier {
	barriers := []renderer.Barrier{{Resource: o.res.output, UAV: true}}
	switch v {
	case pipeline.VariantLightPathFirst, pipeline.VariantLightPathSecond:
		barriers = append(barriers, renderer.Barrier{Resource: o.res.lightVertices, UAV: true})
	case pipeline.VariantPhotonMapping:
		barriers = append(barriers,
			renderer.Barrier{Resource: o.res.photons, UAV: true},
			renderer.Barrier{Resource: o.res.photonCounter, UAV: true})
	}
	return barriers
}

// dispatch runs the ray passes of the mode in order with a UAV barrier between each pair.
func (o *orchestrator) dispatch(passes []pipeline.Variant) error {
	for i, v := range passes {
		o.clock.begin()
		if i > 0 {
			if err := o.r.ResourceBarrier(o.passWrites(passes[i-1])...); err != nil {
				return err
			}
		}
		p := o.pipelines[v]
		if err := o.r.SetPipeline(p); err != nil {
			return err
		}
		if err := o.bindPass(p, i); err != nil {
			return err
		}
		if err := o.r.SetDescriptorTable(o.table); err != nil {
			return err
		}
		ranges := o.ranges[v]
		if err := o.r.DispatchRays(renderer.DispatchRaysDesc{
			ShaderTable: o.res.shaderTable,
			RayGen:      ranges.rayGen,
			Miss:        ranges.miss,
			HitGroup:    ranges.hitGroup,
			Width:       uint32(o.width),
			Height:      uint32(o.height),
			Depth:       1,
		}); err != nil {
			return err
		}
		o.clock.end(v.String())
	}
	if len(passes) > 0 {
		return o.r.ResourceBarrier(o.passWrites(passes[len(passes)-1])...)
	}
	return nil
}

// composite runs the raster pass, then blends the ray output or the raster image into the
// accumulation view and writes the present view.
func (o *orchestrator) composite(passes []pipeline.Variant) error {
	o.clock.begin()
	p := o.pipelines[pipeline.VariantComposite]
	if err := o.r.SetPipeline(p); err != nil {
		return err
	}
	if err := o.bindPass(p, len(passes)); err != nil {
		return err
	}
	if err := o.r.SetDescriptorTable(o.table); err != nil {
		return err
	}
	w, h := uint32(o.width), uint32(o.height)
	if err := o.r.Dispatch("raster_main", w, h, 1); err != nil {
		return err
	}
	if err := o.r.ResourceBarrier(renderer.Barrier{Resource: o.res.raster, UAV: true}); err != nil {
		return err
	}
	if err := o.r.Dispatch("composite_main", w, h, 1); err != nil {
		return err
	}
	if err := o.r.ResourceBarrier(renderer.Barrier{
		Resource: o.res.present,
		Before:   renderer.ResourceStateUnorderedAccess,
		After:    renderer.ResourceStatePresent,
	}); err != nil {
		return err
	}
	o.clock.end(pipeline.VariantComposite.String())
	return nil
}

// present submits the frame, records the slot fence and presents the present view.
func (o *orchestrator) present() error {
	o.clock.begin()
	fence, err := o.r.Submit()
	if err != nil {
		return err
	}
	o.fences[o.slot] = fence
	if err := o.r.Present(o.res.present); err != nil {
		return err
	}
	o.clock.end("present")
	return nil
}

// recover tears down every device object, recreates the device and rebuilds the frame graph
// from the scene. The frame that hit the loss is dropped.
func (o *orchestrator) recover(cause error) error {
	logger.Warningf("%s: dropping frame %d: %v", o.label, o.frameIndex, cause)
	o.stats.DroppedFrames++

	o.accel.Release()
	if o.table != nil {
		o.table.Release()
		o.table = nil
	}
	o.res = resources{}
	if err := o.r.Recreate(); err != nil {
		return fmt.Errorf("recover %s from device lost: %w", o.label, err)
	}
	o.width, o.height = o.r.Resolution()
	if err := o.build(); err != nil {
		return fmt.Errorf("rebuild %s after device lost: %w", o.label, err)
	}
	o.sc.ResetAccumulation()
	o.stats.DeviceResets = o.r.DeviceResets()
	logger.Noticef("%s: frame graph rebuilt after device lost (%d resets)", o.label, o.stats.DeviceResets)
	return nil
}

func (o *orchestrator) waitIdle() error {
	for _, fence := range o.fences {
		if err := o.r.WaitForFence(fence); err != nil {
			return err
		}
	}
	return nil
}

func (o *orchestrator) Resize(width, height int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if width <= 0 || height <= 0 || (width == o.width && height == o.height) {
		return nil
	}
	if err := o.waitIdle(); err != nil && !common.IsDeviceLost(err) {
		return err
	}

	o.r.Resize(width, height)
	o.width, o.height = width, height
	o.sc.Camera().SetAspect(float32(width) / float32(height))
	o.sc.ResetAccumulation()

	if o.r.Lost() {
		return o.recover(&common.DeviceLostError{Reason: "lost during resize"})
	}
	o.releaseTargets()
	if err := o.createTargets(width, height); err != nil {
		if common.IsDeviceLost(err) {
			return o.recover(err)
		}
		return err
	}
	logger.Infof("%s: resized to %dx%d", o.label, width, height)
	return nil
}

func (o *orchestrator) Scene() scene.Scene {
	return o.sc
}

func (o *orchestrator) Renderer() renderer.Renderer {
	return o.r
}

func (o *orchestrator) AccelerationStructures() accel.Manager {
	return o.accel
}

func (o *orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stats
	s.Passes = append([]PassTiming(nil), o.stats.Passes...)
	return s
}

func (o *orchestrator) WaitIdle() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.waitIdle()
}

func (o *orchestrator) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.waitIdle(); err != nil {
		logger.Warningf("%s: release without waiting for the frames in flight: %v", o.label, err)
	}
	o.accel.Release()
	if o.table != nil {
		o.table.Release()
		o.table = nil
	}
	o.releaseResources()
	logger.Debugf("%s: released after %d frames", o.label, o.stats.Frames)
}
