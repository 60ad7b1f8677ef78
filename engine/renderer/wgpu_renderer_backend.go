package renderer

import (
	_ "embed"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed assets/blit.wgsl
var blitSource string

const (
	// dispatchParamsStride is the ring buffer stride of one dispatch's parameters, the
	// uniform buffer offset alignment of the device.
	dispatchParamsStride = 256

	// maxDispatchesPerList is the number of ray dispatches one command list can hold.
	maxDispatchesPerList = 64
)

// wgpuPipelineState holds the device objects of one registered pipeline.
type wgpuPipelineState struct {
	module  *wgpu.ShaderModule
	layouts []*wgpu.BindGroupLayout
	layout  *wgpu.PipelineLayout
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	forceFallbackAdapter bool

	surfaceFormat *wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)

	buffers   map[common.ResourceHandle]*wgpu.Buffer
	pipelines map[string]*wgpuPipelineState

	// Command list state, open between BeginCommandList and Submit
	encoder      *wgpu.CommandEncoder
	current      pipeline.Pipeline
	table        descriptor_table.DescriptorTable
	paramsRing   *wgpu.Buffer
	paramsOffset uint64
	transient    []*wgpu.BindGroup

	// Present blit state
	blitPipeline *wgpu.RenderPipeline
	blitLayout   *wgpu.BindGroupLayout
	blitParams   *wgpu.Buffer

	// completed and lostReason are written from device callbacks.
	completed  atomic.Uint64
	lostReason atomic.Pointer[string]
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) RendererBackend {
	runtime.LockOSThread()
	w := &wgpuRendererBackendImpl{
		mu:                   &sync.Mutex{},
		instance:             wgpu.CreateInstance(nil),
		presentMode:          wgpu.PresentModeImmediate,
		forceFallbackAdapter: forceFallbackAdapter,
		buffers:              make(map[common.ResourceHandle]*wgpu.Buffer),
		pipelines:            make(map[string]*wgpuPipelineState),
	}
	w.surface = w.instance.CreateSurface(surfaceDescriptor)

	if err := w.requestDevice(); err != nil {
		panic(err)
	}
	return w
}

// requestDevice acquires an adapter and device and creates the device objects every frame needs.
func (b *wgpuRendererBackendImpl) requestDevice() error {
	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return err
	}
	b.adapter = a

	// The ray libraries bind up to eight storage buffers in group 0.
	limits := wgpu.DefaultLimits()
	limits.MaxStorageBuffersPerShaderStage = 10

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
		DeviceLostCallback: func(reason wgpu.DeviceLostReason, message string) {
			msg := fmt.Sprintf("%v: %s", reason, message)
			b.lostReason.Store(&msg)
		},
	})
	if err != nil {
		return err
	}
	b.device = d
	b.queue = d.GetQueue()
	b.lostReason.Store(nil)

	b.paramsRing, err = d.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Dispatch Params Ring",
		Size:  dispatchParamsStride * maxDispatchesPerList,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.blitParams, err = d.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Blit Params",
		Size:  16,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	return err
}

func (b *wgpuRendererBackendImpl) lost() error {
	if reason := b.lostReason.Load(); reason != nil {
		return &common.DeviceLostError{Reason: *reason}
	}
	return nil
}

func (b *wgpuRendererBackendImpl) Type() RendererBackendType {
	return BackendTypeWGPU
}

func (b *wgpuRendererBackendImpl) Capabilities() Capabilities {
	return DefaultCapabilities
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capabilities := b.surface.GetCapabilities(b.adapter)
	b.surfaceFormat = &capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      *b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	// the blit pipeline targets the surface format
	if b.blitPipeline == nil {
		if err := b.createBlitPipeline(); err != nil {
			panic(err)
		}
	}
}

func (b *wgpuRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackendImpl) createBlitPipeline() error {
	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: "blit",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: blitSource,
		},
	})
	if err != nil {
		return err
	}

	b.blitLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "blit",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		return err
	}

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "blit",
		BindGroupLayouts: []*wgpu.BindGroupLayout{b.blitLayout},
	})
	if err != nil {
		return err
	}

	b.blitPipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "blit Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    *b.surfaceFormat,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology: wgpu.PrimitiveTopologyTriangleList,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	return err
}

func (b *wgpuRendererBackendImpl) RegisterPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	lib := p.Library()
	module, err := b.device.CreateShaderModule(lib.Module())
	if err != nil && lib.Module().SPIRVDescriptor != nil {
		logger.Warningf("%s: SPIR-V module rejected, falling back to WGSL: %v", lib.Key(), err)
		module, err = b.device.CreateShaderModule(lib.SourceModule())
	}
	if err != nil {
		return err
	}

	descriptors := lib.BindGroupLayoutDescriptors()
	maxGroup := -1
	for g := range descriptors {
		if g > maxGroup {
			maxGroup = g
		}
	}
	state := &wgpuPipelineState{module: module, layouts: make([]*wgpu.BindGroupLayout, maxGroup+1)}
	for g, desc := range descriptors {
		bgl, bglErr := b.device.CreateBindGroupLayout(&desc)
		if bglErr != nil {
			return fmt.Errorf("failed to create bind group layout for group %d: %w", g, bglErr)
		}
		state.layouts[g] = bgl
	}

	state.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: state.layouts,
	})
	if err != nil {
		return err
	}

	cfg := p.Config()
	entries := append([]string(nil), cfg.Entries...)
	if cfg.RayGen != "" {
		entries = append(entries, cfg.RayGen)
	}
	for _, export := range entries {
		created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  p.PipelineKey() + "/" + export + " Compute Pipeline",
			Layout: state.layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: export,
			},
		})
		if err != nil {
			return err
		}
		p.SetComputePipeline(export, created)
	}

	b.pipelines[p.PipelineKey()] = state
	return nil
}

func (b *wgpuRendererBackendImpl) CreateBuffer(h common.ResourceHandle, label string, size uint64, usage wgpu.BufferUsage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, err := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  common.AlignUp(size, 4),
		Usage: usage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return err
	}
	b.buffers[h] = buf
	return nil
}

func (b *wgpuRendererBackendImpl) WriteBuffer(h common.ResourceHandle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("write to unknown buffer %d", h)
	}
	b.queue.WriteBuffer(buf, offset, data)
	return nil
}

func (b *wgpuRendererBackendImpl) ReleaseBuffer(h common.ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if buf, ok := b.buffers[h]; ok {
		buf.Release()
		delete(b.buffers, h)
	}
}

func (b *wgpuRendererBackendImpl) BeginCommandList() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.encoder = encoder
	b.current = nil
	b.table = nil
	b.paramsOffset = 0
	return nil
}

func (b *wgpuRendererBackendImpl) BuildAccelerationStructure(cmd Command, nodes []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	buf, ok := b.buffers[cmd.Target]
	if !ok {
		return fmt.Errorf("%s: unknown target buffer %d", cmd.Label, cmd.Target)
	}
	if len(nodes) > 0 {
		b.queue.WriteBuffer(buf, 0, nodes)
	}
	return nil
}

func (b *wgpuRendererBackendImpl) SetPipeline(p pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = p
	b.table = nil
}

func (b *wgpuRendererBackendImpl) SetDescriptorTable(p pipeline.Pipeline, table descriptor_table.DescriptorTable) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if table.BindGroup() == nil {
		state, ok := b.pipelines[p.PipelineKey()]
		if !ok || len(state.layouts) == 0 || state.layouts[0] == nil {
			return fmt.Errorf("%s has no global bind group layout", p.PipelineKey())
		}
		bindings := table.Bindings()
		entries := make([]wgpu.BindGroupEntry, len(bindings))
		for i, binding := range bindings {
			buf, ok := b.buffers[binding.Resource]
			if !ok {
				return fmt.Errorf("%s: binding %d references unknown buffer %d", table.Label(), i, binding.Resource)
			}
			size := binding.Size
			if size == 0 {
				size = wgpu.WholeSize
			}
			entries[i] = wgpu.BindGroupEntry{
				Binding: uint32(i),
				Buffer:  buf,
				Offset:  binding.Offset,
				Size:    size,
			}
		}
		bg, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   table.Label() + " Bind Group",
			Layout:  state.layouts[0],
			Entries: entries,
		})
		if err != nil {
			return err
		}
		table.SetBindGroup(bg)
	}
	b.table = table
	return nil
}

func workgroups(n, size uint32) uint32 {
	return (n + size - 1) / max(size, 1)
}

func (b *wgpuRendererBackendImpl) DispatchRays(p pipeline.Pipeline, desc DispatchRaysDesc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paramsOffset >= dispatchParamsStride*maxDispatchesPerList {
		return fmt.Errorf("more than %d ray dispatches in one command list", maxDispatchesPerList)
	}
	state := b.pipelines[p.PipelineKey()]
	records, ok := b.buffers[desc.ShaderTable]
	if !ok || state == nil || len(state.layouts) <= shader.DispatchGroup {
		return fmt.Errorf("%s: dispatch group is not available", p.PipelineKey())
	}

	params := make([]byte, 32)
	for i, v := range []uint32{
		uint32(desc.RayGen.Offset),
		uint32(desc.Miss.Offset),
		uint32(desc.Miss.Stride),
		uint32(desc.HitGroup.Offset),
		uint32(desc.HitGroup.Stride),
		desc.Width,
		desc.Height,
		desc.Depth,
	} {
		common.PutUint32(params, i*4, v)
	}
	offset := b.paramsOffset
	b.paramsOffset += dispatchParamsStride
	b.queue.WriteBuffer(b.paramsRing, offset, params)

	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  p.PipelineKey() + " Dispatch Bind Group",
		Layout: state.layouts[shader.DispatchGroup],
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: records, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.paramsRing, Offset: offset, Size: uint64(len(params))},
		},
	})
	if err != nil {
		return err
	}
	b.transient = append(b.transient, group)

	size := p.Library().WorkgroupSize()
	pass := b.encoder.BeginComputePass(nil)
	pass.SetPipeline(p.ComputePipeline(p.Config().RayGen))
	pass.SetBindGroup(0, b.table.BindGroup(), nil)
	pass.SetBindGroup(shader.DispatchGroup, group, nil)
	pass.DispatchWorkgroups(workgroups(desc.Width, size[0]), workgroups(desc.Height, size[1]), desc.Depth)
	pass.End()
	return nil
}

func (b *wgpuRendererBackendImpl) Dispatch(p pipeline.Pipeline, export string, x, y, z uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := p.ComputePipeline(export)
	if cp == nil {
		return fmt.Errorf("%s has no device pipeline for %q", p.PipelineKey(), export)
	}
	size := p.Library().WorkgroupSize()
	pass := b.encoder.BeginComputePass(nil)
	pass.SetPipeline(cp)
	pass.SetBindGroup(0, b.table.BindGroup(), nil)
	pass.DispatchWorkgroups(workgroups(x, size[0]), workgroups(y, size[1]), workgroups(z, size[2]))
	pass.End()
	return nil
}

// ResourceBarrier is implicit in WebGPU: passes that share a buffer are ordered by the
// implementation, so barriers only need to separate passes, which every dispatch already does.
func (b *wgpuRendererBackendImpl) ResourceBarrier(barriers []Barrier) {}

func (b *wgpuRendererBackendImpl) releaseTransient() {
	for _, bg := range b.transient {
		bg.Release()
	}
	b.transient = b.transient[:0]
}

func (b *wgpuRendererBackendImpl) Submit(fence uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.encoder == nil {
		return errors.New("submit without an open command list")
	}
	encoder := b.encoder
	b.encoder = nil
	defer encoder.Release()

	if err := b.lost(); err != nil {
		b.releaseTransient()
		return err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		b.releaseTransient()
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.releaseTransient()

	b.queue.OnSubmittedWorkDone(func(wgpu.QueueWorkDoneStatus) {
		if fence > b.completed.Load() {
			b.completed.Store(fence)
		}
	})
	return b.lost()
}

func (b *wgpuRendererBackendImpl) CompletedFence() uint64 {
	b.device.Poll(false, nil)
	return b.completed.Load()
}

func (b *wgpuRendererBackendImpl) WaitForFence(fence uint64) error {
	if b.completed.Load() >= fence {
		return nil
	}
	b.device.Poll(true, nil)
	if err := b.lost(); err != nil {
		return err
	}
	if b.completed.Load() < fence {
		return fmt.Errorf("fence %d did not complete (completed %d)", fence, b.completed.Load())
	}
	return nil
}

func (b *wgpuRendererBackendImpl) Present(source common.ResourceHandle, width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.lost(); err != nil {
		return err
	}
	buf, ok := b.buffers[source]
	if !ok {
		return fmt.Errorf("present of unknown buffer %d", source)
	}

	params := make([]byte, 16)
	common.PutUint32(params, 0, width)
	common.PutUint32(params, 4, height)
	b.queue.WriteBuffer(b.blitParams, 0, params)

	group, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "blit Bind Group",
		Layout: b.blitLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: buf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.blitParams, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return err
	}
	defer group.Release()

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()

	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{
				View:    view,
				LoadOp:  wgpu.LoadOpClear,
				StoreOp: wgpu.StoreOpStore,
				ClearValue: wgpu.Color{
					R: 0.1, G: 0.1, B: 0.1, A: 1.0,
				},
			},
		},
	})
	pass.SetPipeline(b.blitPipeline)
	pass.SetBindGroup(0, group, nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()

	b.surface.Present()
	return b.lost()
}

// releaseDeviceObjects drops every object created on the current device.
func (b *wgpuRendererBackendImpl) releaseDeviceObjects() {
	for h, buf := range b.buffers {
		buf.Release()
		delete(b.buffers, h)
	}
	for key, state := range b.pipelines {
		for _, l := range state.layouts {
			if l != nil {
				l.Release()
			}
		}
		if state.layout != nil {
			state.layout.Release()
		}
		state.module.Release()
		delete(b.pipelines, key)
	}
	b.releaseTransient()
	if b.encoder != nil {
		b.encoder.Release()
		b.encoder = nil
	}
	for _, buf := range []*wgpu.Buffer{b.paramsRing, b.blitParams} {
		if buf != nil {
			buf.Release()
		}
	}
	if b.blitPipeline != nil {
		b.blitPipeline.Release()
		b.blitPipeline = nil
	}
	if b.blitLayout != nil {
		b.blitLayout.Release()
		b.blitLayout = nil
	}
	b.current = nil
	b.table = nil
}

func (b *wgpuRendererBackendImpl) Recreate() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseDeviceObjects()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	return b.requestDevice()
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.releaseDeviceObjects()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.surface.Release()
	b.instance.Release()
}
