package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader_table"
	"github.com/Carmen-Shannon/oxy-rt/log"
	"github.com/cogentcore/webgpu/wgpu"
)

var logger = log.New("renderer")

// DispatchRaysDesc describes one ray dispatch: where the three tables of the current pipeline
// live inside a shader-table buffer and how many rays to launch.
type DispatchRaysDesc struct {
	ShaderTable common.ResourceHandle
	RayGen      shader_table.Range
	Miss        shader_table.Range
	HitGroup    shader_table.Range
	Width       uint32
	Height      uint32
	Depth       uint32
}

// Surface is the presentation target of the WGPU backend. window.Window implements it.
type Surface interface {
	// SurfaceDescriptor returns the platform-specific descriptor used to create the WebGPU surface.
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// Width returns the surface width in pixels.
	Width() int

	// Height returns the surface height in pixels.
	Height() int
}

// bufferInfo is the host record of a device buffer.
type bufferInfo struct {
	label string
	size  uint64
	usage wgpu.BufferUsage
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	pipelineCache map[string]pipeline.Pipeline
	compiled      map[string]bool

	backendType RendererBackendType
	backend     RendererBackend

	heap    *descriptorHeap
	handles uint64
	buffers map[common.ResourceHandle]bufferInfo

	// bottomLevels keeps the flattened nodes of every bottom-level build for top-level builds.
	bottomLevels map[common.ResourceHandle][]GPUAccelNode
	topLevels    map[common.ResourceHandle]int

	recording    bool
	current      pipeline.Pipeline
	currentTable descriptor_table.DescriptorTable

	fence        uint64
	lost         bool
	deviceResets int

	width, height int

	// Pre-creation config collected from builder options
	surface              Surface
	compiler             shader.Compiler
	heapCapacity         int
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
}

// Renderer is the device capability layer of the frame graph.
//
// This is a high-level API designed to simplify raytracing tasks into a streamlined and idiomatic flow.
// The Renderer registers pipeline variants, hands out opaque handles for device buffers,
// builds acceleration structures, records dispatches and barriers into a command list and
// tracks fences. The Renderer also implements a backend which allows for multiple backend API
// implementations to exist.
//
// Once a backend call reports a *common.DeviceLostError the Renderer is lost: every command
// fails with the same error until Recreate has replaced the device. Recreate drops every
// pipeline, buffer and descriptor; the caller rebuilds them from host data.
type Renderer interface {
	// Backend returns the backend the Renderer records into.
	//
	// Returns:
	//   - RendererBackend: the backend
	Backend() RendererBackend

	// Capabilities returns the alignment rules and limits of the device.
	//
	// Returns:
	//   - Capabilities: the capabilities
	Capabilities() Capabilities

	// Pipeline retrieves the registered Pipeline associated with the given key.
	// If the Pipeline does not exist, this will return nil.
	//
	// Parameters:
	//   - key: the unique identifier for the Pipeline to retrieve
	//
	// Returns:
	//   - pipeline.Pipeline: the Pipeline associated with the key, or nil if not found
	Pipeline(key string) pipeline.Pipeline

	// Pipelines retrieves a copy of the registered Pipelines.
	//
	// Returns:
	//   - map[string]pipeline.Pipeline: a map of pipeline keys to their corresponding Pipeline objects
	Pipelines() map[string]pipeline.Pipeline

	// RegisterPipelines creates the state objects of one or more pipelines. Each shader library
	// is compiled once with the configured compiler, then the backend creates the device
	// pipelines and the root signatures receive device handles. Pipelines whose keys are
	// already registered are skipped.
	//
	// Registration is all or nothing: when any pipeline fails, the pipelines registered by
	// this call are released and the error is returned.
	//
	// Parameters:
	//   - pipelines: the Pipelines to register
	//
	// Returns:
	//   - error: a compile, validation or backend error naming the failing pipeline
	RegisterPipelines(pipelines ...pipeline.Pipeline) error

	// ShaderIdentifier returns the shader identifier of an export or hit group of a registered pipeline.
	//
	// Parameters:
	//   - p: the pipeline
	//   - name: the export or hit group name
	//
	// Returns:
	//   - []byte: the ShaderIdentifierSize byte identifier
	//   - error: a ValidationError if p is not registered or has no such name
	ShaderIdentifier(p pipeline.Pipeline, name string) ([]byte, error)

	// DescriptorHeap returns the shader-visible descriptor heap.
	//
	// Returns:
	//   - DescriptorHeap: the heap
	DescriptorHeap() DescriptorHeap

	// CreateBuffer creates a device buffer.
	//
	// Parameters:
	//   - label: a debug label
	//   - size: the size in bytes
	//   - usage: the WebGPU buffer usage
	//
	// Returns:
	//   - common.ResourceHandle: the buffer handle
	//   - error: a ValidationError for a zero size, or the backend's error
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (common.ResourceHandle, error)

	// BufferSize returns the size of a live buffer.
	//
	// Parameters:
	//   - h: the buffer handle
	//
	// Returns:
	//   - uint64: the size in bytes
	//   - bool: false if h is not a live buffer
	BufferSize(h common.ResourceHandle) (uint64, bool)

	// WriteBuffers writes all staged buffer writes to the device queue.
	//
	// Parameters:
	//   - writes: a slice of BufferWrite structs describing the data to write
	//
	// Returns:
	//   - error: a ValidationError for an unknown handle or an out of range write
	WriteBuffers(writes []descriptor_table.BufferWrite) error

	// ReleaseResource destroys a buffer or acceleration structure.
	//
	// Parameters:
	//   - h: the handle
	ReleaseResource(h common.ResourceHandle)

	// AccelerationStructurePrebuildInfo returns the buffer size a build needs.
	//
	// Parameters:
	//   - desc: the build description
	//
	// Returns:
	//   - PrebuildInfo: the node count and result size
	//   - error: a ValidationError for a malformed description
	AccelerationStructurePrebuildInfo(desc AccelerationStructureDesc) (PrebuildInfo, error)

	// BeginCommandList opens the command list. Every command below records into it until Submit.
	//
	// Returns:
	//   - error: a DeviceLostError while lost, or an error if a list is already open
	BeginCommandList() error

	// BuildAccelerationStructure builds or refits an acceleration structure into its target buffer.
	//
	// Parameters:
	//   - desc: the build description
	//
	// Returns:
	//   - error: a ValidationError for a malformed description, an undersized target or a
	//     refit that changes the node count
	BuildAccelerationStructure(desc AccelerationStructureDesc) error

	// SetPipeline makes a registered pipeline current. The bound descriptor table is dropped.
	//
	// Parameters:
	//   - p: the pipeline
	//
	// Returns:
	//   - error: a ValidationError if p is not registered
	SetPipeline(p pipeline.Pipeline) error

	// SetDescriptorTable binds a descriptor table to the current pipeline. The table must be
	// complete and laid out for the pipeline's global root signature.
	//
	// Parameters:
	//   - table: the descriptor table
	//
	// Returns:
	//   - error: a ValidationError for a missing pipeline, an incomplete table, a checksum
	//     mismatch or a binding to a dead buffer
	SetDescriptorTable(table descriptor_table.DescriptorTable) error

	// DispatchRays launches width*height*depth rays of the current pipeline.
	//
	// Parameters:
	//   - desc: the shader table ranges and dispatch size
	//
	// Returns:
	//   - error: a ValidationError for misaligned or out of range tables or a missing binding
	DispatchRays(desc DispatchRaysDesc) error

	// Dispatch runs one compute or raster entry export of the current pipeline over x*y*z threads.
	//
	// Parameters:
	//   - export: the entry export
	//   - x, y, z: the thread counts
	//
	// Returns:
	//   - error: a ValidationError if the export is not an entry of the current pipeline
	Dispatch(export string, x, y, z uint32) error

	// ResourceBarrier records barriers between dependent passes.
	//
	// Parameters:
	//   - barriers: the barriers
	//
	// Returns:
	//   - error: a ValidationError for an unknown resource
	ResourceBarrier(barriers ...Barrier) error

	// Submit closes and submits the command list and returns the fence value signalled when
	// the device finishes it.
	//
	// Returns:
	//   - uint64: the fence value
	//   - error: a DeviceLostError if the device was lost
	Submit() (uint64, error)

	// CompletedFence returns the last fence value the device signalled.
	//
	// Returns:
	//   - uint64: the fence value
	CompletedFence() uint64

	// WaitForFence blocks until the fence value is signalled. Zero returns immediately.
	//
	// Parameters:
	//   - fence: a value returned by Submit
	//
	// Returns:
	//   - error: a DeviceLostError if the device was lost
	WaitForFence(fence uint64) error

	// Present shows a buffer of vec4<f32> texels at the current resolution.
	//
	// Parameters:
	//   - source: the buffer handle
	//
	// Returns:
	//   - error: a ValidationError for an undersized buffer or a DeviceLostError
	Present(source common.ResourceHandle) error

	// Resize configures the underlying backend to handle a new surface size.
	// This should be called when re-sizing the window or when the surface size should change.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Resolution returns the current surface size.
	//
	// Returns:
	//   - int: the width in pixels
	//   - int: the height in pixels
	Resolution() (int, int)

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// Lost reports whether the device was lost and Recreate has not run yet.
	//
	// Returns:
	//   - bool: true while lost
	Lost() bool

	// Recreate replaces the device and drops every pipeline, buffer, acceleration structure
	// and descriptor.
	//
	// Returns:
	//   - error: an error if no device could be created
	Recreate() error

	// DeviceResets returns how many times Recreate replaced the device.
	//
	// Returns:
	//   - int: the number of recreations
	DeviceResets() int

	// Release destroys every device object.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer instance with the specified backend type.
// The WGPU backend requires WithSurface; the surface descriptor is platform-specific and is
// typically obtained from Window.SurfaceDescriptor().
//
// Parameters:
//   - backendType: the type of rendering backend to use (e.g., WGPU or headless)
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if the WGPU backend has no surface
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:            &sync.Mutex{},
		pipelineCache: make(map[string]pipeline.Pipeline),
		compiled:      make(map[string]bool),
		backendType:   backendType,
		buffers:       make(map[common.ResourceHandle]bufferInfo),
		bottomLevels:  make(map[common.ResourceHandle][]GPUAccelNode),
		topLevels:     make(map[common.ResourceHandle]int),
		compiler:      shader.NagaCompiler,
		heapCapacity:  DefaultDescriptorHeapCapacity,
		width:         1280,
		height:        720,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	r.heap = newDescriptorHeap(r.heapCapacity)

	switch backendType {
	case BackendTypeHeadless:
		r.backend = NewHeadlessBackend()
	case BackendTypeWGPU:
		fallthrough
	default:
		if r.surface == nil {
			return nil, fmt.Errorf("the %s backend needs a surface", backendType)
		}
		r.width, r.height = r.surface.Width(), r.surface.Height()
		r.backend = newWGPURendererBackend(r.surface.SurfaceDescriptor(), r.forceFallbackAdapter)
	}

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}

	r.backend.ConfigureSurface(r.width, r.height)
	logger.Infof("created %s renderer at %dx%d, %d descriptors", backendType, r.width, r.height, r.heapCapacity)
	return r, nil
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) Capabilities() Capabilities {
	return r.backend.Capabilities()
}

func (r *renderer) nextHandle() common.ResourceHandle {
	r.handles++
	return common.ResourceHandle(r.handles)
}

// checkLost marks the renderer lost when err is a device-lost condition.
func (r *renderer) checkLost(err error) error {
	if common.IsDeviceLost(err) && !r.lost {
		r.lost = true
		r.recording = false
		logger.Warningf("device lost: %v", err)
	}
	return err
}

func (r *renderer) lostError() error {
	return &common.DeviceLostError{Reason: "device lost, recreate the renderer"}
}

func (r *renderer) Pipeline(key string) pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelineCache[key]
}

func (r *renderer) Pipelines() map[string]pipeline.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]pipeline.Pipeline, len(r.pipelineCache))
	for k, p := range r.pipelineCache {
		out[k] = p
	}
	return out
}

func (r *renderer) RegisterPipelines(pipelines ...pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost {
		return r.lostError()
	}

	var registered []pipeline.Pipeline
	rollback := func(err error) error {
		for _, p := range registered {
			delete(r.pipelineCache, p.PipelineKey())
			p.Release()
		}
		return err
	}

	caps := r.backend.Capabilities()
	for _, p := range pipelines {
		key := p.PipelineKey()
		if _, exists := r.pipelineCache[key]; exists {
			continue
		}
		if p.MaxRecursionDepth() > caps.MaxRecursionDepth {
			return rollback(common.NewValidationError("renderer", "%s: recursion depth %d exceeds the device limit %d", key, p.MaxRecursionDepth(), caps.MaxRecursionDepth))
		}

		lib := p.Library()
		if r.compiler != nil && !r.compiled[lib.Key()] {
			if err := lib.Compile(r.compiler); err != nil {
				return rollback(fmt.Errorf("register pipeline %s: %w", key, err))
			}
			r.compiled[lib.Key()] = true
		}

		if err := r.backend.RegisterPipeline(p); err != nil {
			return rollback(r.checkLost(fmt.Errorf("register pipeline %s: %w", key, err)))
		}
		p.GlobalRootSignature().SetHandle(r.nextHandle())
		for g := common.GeometryType(0); g < common.GeometryTypeCount; g++ {
			if rs := p.LocalRootSignature(g); rs != nil {
				rs.SetHandle(r.nextHandle())
			}
		}
		p.SetStateObject(r.nextHandle())
		r.pipelineCache[key] = p
		registered = append(registered, p)
		logger.Debugf("registered pipeline %s (library %s)", key, lib.Key())
	}
	return nil
}

func (r *renderer) ShaderIdentifier(p pipeline.Pipeline, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipelineCache[p.PipelineKey()] != p {
		return nil, common.NewValidationError("renderer", "pipeline %s is not registered", p.PipelineKey())
	}
	return p.Identifier(name)
}

func (r *renderer) DescriptorHeap() DescriptorHeap {
	return r.heap
}

func (r *renderer) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (common.ResourceHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost {
		return common.InvalidHandle, r.lostError()
	}
	if size == 0 {
		return common.InvalidHandle, common.NewValidationError("renderer", "buffer %q has a size of zero", label)
	}

	h := r.nextHandle()
	if err := r.backend.CreateBuffer(h, label, size, usage); err != nil {
		return common.InvalidHandle, r.checkLost(fmt.Errorf("create buffer %q: %w", label, err))
	}
	r.buffers[h] = bufferInfo{label: label, size: size, usage: usage}
	return h, nil
}

func (r *renderer) BufferSize(h common.ResourceHandle) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.buffers[h]
	return info.size, ok
}

func (r *renderer) WriteBuffers(writes []descriptor_table.BufferWrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost {
		return r.lostError()
	}

	for _, w := range writes {
		info, ok := r.buffers[w.Resource]
		if !ok {
			return common.NewValidationError("renderer", "write to unknown buffer %d", w.Resource)
		}
		if w.Offset+uint64(len(w.Data)) > info.size {
			return common.NewValidationError("renderer", "write of %d bytes at %d overflows buffer %q of %d bytes", len(w.Data), w.Offset, info.label, info.size)
		}
		if err := r.backend.WriteBuffer(w.Resource, w.Offset, w.Data); err != nil {
			return r.checkLost(err)
		}
	}
	return nil
}

func (r *renderer) ReleaseResource(h common.ResourceHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.buffers[h]; !ok {
		return
	}
	delete(r.buffers, h)
	delete(r.bottomLevels, h)
	delete(r.topLevels, h)
	r.backend.ReleaseBuffer(h)
}

func (r *renderer) flatten(desc AccelerationStructureDesc) ([]GPUAccelNode, error) {
	switch desc.Level {
	case BottomLevel:
		return flattenBottomLevel(desc)
	case TopLevel:
		return flattenTopLevel(desc, r.bottomLevels)
	default:
		return nil, common.NewValidationError("renderer", "%s: unknown acceleration structure level %d", desc.Label, int(desc.Level))
	}
}

func (r *renderer) AccelerationStructurePrebuildInfo(desc AccelerationStructureDesc) (PrebuildInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes, err := r.flatten(desc)
	if err != nil {
		return PrebuildInfo{}, err
	}
	var n GPUAccelNode
	// an empty top level still needs one node worth of storage to be bindable
	size := uint64(max(len(nodes), 1) * n.Size())
	return PrebuildInfo{NodeCount: len(nodes), ResultSize: size}, nil
}

func (r *renderer) requireRecording() error {
	if r.lost {
		return r.lostError()
	}
	if !r.recording {
		return common.NewValidationError("renderer", "no command list is open")
	}
	return nil
}

func (r *renderer) BeginCommandList() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost {
		return r.lostError()
	}
	if r.recording {
		return fmt.Errorf("a command list is already open")
	}
	if err := r.backend.BeginCommandList(); err != nil {
		return r.checkLost(err)
	}
	r.recording = true
	r.current = nil
	r.currentTable = nil
	return nil
}

func (r *renderer) BuildAccelerationStructure(desc AccelerationStructureDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRecording(); err != nil {
		return err
	}

	info, ok := r.buffers[desc.Target]
	if !ok {
		return common.NewValidationError("renderer", "%s: unknown target buffer %d", desc.Label, desc.Target)
	}
	nodes, err := r.flatten(desc)
	if err != nil {
		return err
	}
	if desc.Update {
		var previous int
		var built bool
		if desc.Level == BottomLevel {
			var blas []GPUAccelNode
			blas, built = r.bottomLevels[desc.Target]
			previous = len(blas)
		} else {
			previous, built = r.topLevels[desc.Target]
		}
		if !built {
			return common.NewValidationError("renderer", "%s: refit of a structure that was never built", desc.Label)
		}
		if previous != len(nodes) {
			return common.NewValidationError("renderer", "%s: refit changes the node count from %d to %d", desc.Label, previous, len(nodes))
		}
	}

	data := marshalNodes(nodes)
	if uint64(len(data)) > info.size {
		return common.NewValidationError("renderer", "%s: %d bytes of nodes do not fit target %q of %d bytes", desc.Label, len(data), info.label, info.size)
	}

	cmd := Command{Kind: CommandBuildBottomLevel, Label: desc.Label, Target: desc.Target, Update: desc.Update}
	if desc.Level == TopLevel {
		cmd.Kind = CommandBuildTopLevel
	}
	if err := r.backend.BuildAccelerationStructure(cmd, data); err != nil {
		return r.checkLost(err)
	}

	if desc.Level == BottomLevel {
		r.bottomLevels[desc.Target] = nodes
	} else {
		r.topLevels[desc.Target] = len(nodes)
	}
	return nil
}

func (r *renderer) SetPipeline(p pipeline.Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRecording(); err != nil {
		return err
	}
	if p == nil || r.pipelineCache[p.PipelineKey()] != p {
		return common.NewValidationError("renderer", "set pipeline: pipeline is not registered")
	}
	r.backend.SetPipeline(p)
	r.current = p
	r.currentTable = nil
	return nil
}

func (r *renderer) SetDescriptorTable(table descriptor_table.DescriptorTable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRecording(); err != nil {
		return err
	}
	if r.current == nil {
		return common.NewValidationError("renderer", "descriptor table %s set without a pipeline", table.Label())
	}
	if err := table.Validate(); err != nil {
		return err
	}
	rs := r.current.GlobalRootSignature()
	if table.Checksum() != rs.Checksum() {
		return common.NewValidationError("renderer", "descriptor table %s (checksum %016x) does not match root signature %s (checksum %016x)",
			table.Label(), table.Checksum(), rs.Name(), rs.Checksum())
	}
	slots := rs.Slots()
	for i, b := range table.Bindings() {
		if _, ok := r.buffers[b.Resource]; !ok {
			return common.NewValidationError("renderer", "descriptor table %s: slot %q is bound to dead resource %d", table.Label(), slots[i].Name, b.Resource)
		}
	}

	if err := r.backend.SetDescriptorTable(r.current, table); err != nil {
		return r.checkLost(err)
	}
	r.currentTable = table
	return nil
}

func (r *renderer) requireBound() error {
	if err := r.requireRecording(); err != nil {
		return err
	}
	if r.current == nil || r.currentTable == nil {
		return common.NewValidationError("renderer", "dispatch without a pipeline and descriptor table")
	}
	return nil
}

func (r *renderer) DispatchRays(desc DispatchRaysDesc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireBound(); err != nil {
		return err
	}
	key := r.current.PipelineKey()
	if r.current.Config().RayGen == "" {
		return common.NewValidationError("renderer", "%s has no ray-generation export", key)
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Depth == 0 {
		return common.NewValidationError("renderer", "%s: empty dispatch %dx%dx%d", key, desc.Width, desc.Height, desc.Depth)
	}
	info, ok := r.buffers[desc.ShaderTable]
	if !ok {
		return common.NewValidationError("renderer", "%s: unknown shader table buffer %d", key, desc.ShaderTable)
	}

	caps := r.backend.Capabilities()
	for _, t := range []struct {
		name string
		rng  shader_table.Range
	}{{"ray-generation", desc.RayGen}, {"miss", desc.Miss}, {"hit-group", desc.HitGroup}} {
		if t.rng.Size == 0 {
			return common.NewValidationError("renderer", "%s: empty %s table", key, t.name)
		}
		if t.rng.Offset%uint64(caps.ShaderTableAlignment) != 0 {
			return common.NewValidationError("renderer", "%s: %s table offset %d is not %d byte aligned", key, t.name, t.rng.Offset, caps.ShaderTableAlignment)
		}
		if t.rng.Stride%uint64(caps.ShaderRecordAlignment) != 0 {
			return common.NewValidationError("renderer", "%s: %s record stride %d is not %d byte aligned", key, t.name, t.rng.Stride, caps.ShaderRecordAlignment)
		}
		if t.rng.Offset+t.rng.Size > info.size {
			return common.NewValidationError("renderer", "%s: %s table ends past shader table %q", key, t.name, info.label)
		}
	}

	if err := r.backend.DispatchRays(r.current, desc); err != nil {
		return r.checkLost(err)
	}
	return nil
}

func (r *renderer) Dispatch(export string, x, y, z uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireBound(); err != nil {
		return err
	}
	key := r.current.PipelineKey()
	e, ok := r.current.Library().Export(export)
	if !ok || !e.Kind.EntryPoint() || e.Kind == shader.ExportKindRayGen {
		return common.NewValidationError("renderer", "%s has no compute or raster export %q", key, export)
	}
	if err := r.backend.Dispatch(r.current, export, x, y, z); err != nil {
		return r.checkLost(err)
	}
	return nil
}

func (r *renderer) ResourceBarrier(barriers ...Barrier) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRecording(); err != nil {
		return err
	}
	for _, b := range barriers {
		if _, ok := r.buffers[b.Resource]; !ok {
			return common.NewValidationError("renderer", "barrier on unknown resource %d", b.Resource)
		}
	}
	r.backend.ResourceBarrier(append([]Barrier(nil), barriers...))
	return nil
}

func (r *renderer) Submit() (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireRecording(); err != nil {
		return 0, err
	}
	r.recording = false
	fence := r.fence + 1
	if err := r.backend.Submit(fence); err != nil {
		return 0, r.checkLost(err)
	}
	r.fence = fence
	return fence, nil
}

func (r *renderer) CompletedFence() uint64 {
	return r.backend.CompletedFence()
}

func (r *renderer) WaitForFence(fence uint64) error {
	r.mu.Lock()
	if r.lost {
		r.mu.Unlock()
		return r.lostError()
	}
	if fence > r.fence {
		r.mu.Unlock()
		return fmt.Errorf("fence %d was never submitted (last %d)", fence, r.fence)
	}
	r.mu.Unlock()

	if fence == 0 {
		return nil
	}
	if err := r.backend.WaitForFence(fence); err != nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.checkLost(err)
	}
	return nil
}

func (r *renderer) Present(source common.ResourceHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lost {
		return r.lostError()
	}
	info, ok := r.buffers[source]
	if !ok {
		return common.NewValidationError("renderer", "present of unknown buffer %d", source)
	}
	need := uint64(r.width) * uint64(r.height) * 16
	if info.size < need {
		return common.NewValidationError("renderer", "present buffer %q holds %d bytes, %dx%d needs %d", info.label, info.size, r.width, r.height, need)
	}
	if err := r.backend.Present(source, uint32(r.width), uint32(r.height)); err != nil {
		return r.checkLost(err)
	}
	return nil
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	r.width, r.height = width, height
	r.mu.Unlock()
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) Resolution() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
}

func (r *renderer) Lost() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

// dropDeviceObjects forgets everything that lived on the device.
func (r *renderer) dropDeviceObjects() {
	for _, p := range r.pipelineCache {
		p.Release()
	}
	r.pipelineCache = make(map[string]pipeline.Pipeline)
	r.buffers = make(map[common.ResourceHandle]bufferInfo)
	r.bottomLevels = make(map[common.ResourceHandle][]GPUAccelNode)
	r.topLevels = make(map[common.ResourceHandle]int)
	r.heap.Reset()
	r.current = nil
	r.currentTable = nil
	r.recording = false
}

func (r *renderer) Recreate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropDeviceObjects()
	if err := r.backend.Recreate(); err != nil {
		return fmt.Errorf("recreate device: %w", err)
	}
	r.backend.ConfigureSurface(r.width, r.height)
	r.lost = false
	r.deviceResets++
	logger.Noticef("device recreated (%d resets)", r.deviceResets)
	return nil
}

func (r *renderer) DeviceResets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deviceResets
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropDeviceObjects()
	r.backend.Release()
}
