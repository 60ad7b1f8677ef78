package renderer

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// FrameCount is the number of frames in flight.
const FrameCount = 3

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend. Ray dispatches run as
	// compute passes over the flattened acceleration structure.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeHeadless selects a backend without a device that keeps buffers in host memory
	// and records every command. Fences complete on submit.
	BackendTypeHeadless
)

func (t RendererBackendType) String() string {
	if t == BackendTypeHeadless {
		return "headless"
	}
	return "wgpu"
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// Capabilities are the alignment rules and limits of the device.
type Capabilities struct {
	ShaderIdentifierSize    uint32
	ShaderRecordAlignment   uint32
	ShaderTableAlignment    uint32
	ConstantBufferAlignment uint32
	MaxRecursionDepth       uint32
}

// DefaultCapabilities are the capabilities both backends report.
var DefaultCapabilities = Capabilities{
	ShaderIdentifierSize:    pipeline.ShaderIdentifierSize,
	ShaderRecordAlignment:   32,
	ShaderTableAlignment:    64,
	ConstantBufferAlignment: 256,
	MaxRecursionDepth:       31,
}

// ResourceState is the usage a resource is in between barriers.
type ResourceState int

const (
	ResourceStateCommon ResourceState = iota
	ResourceStateUnorderedAccess
	ResourceStateShaderResource
	ResourceStateAccelerationStructure
	ResourceStateCopyDest
	ResourceStatePresent
)

var resourceStateNames = []string{"common", "unordered-access", "shader-resource", "acceleration-structure", "copy-dest", "present"}

func (s ResourceState) String() string {
	if int(s) >= 0 && int(s) < len(resourceStateNames) {
		return resourceStateNames[s]
	}
	return "state(?)"
}

// Barrier orders GPU work on a resource. A UAV barrier waits for pending writes to the
// resource; a transition barrier moves it from Before to After.
type Barrier struct {
	Resource common.ResourceHandle
	Before   ResourceState
	After    ResourceState
	UAV      bool
}

// CommandKind identifies a recorded command.
type CommandKind int

const (
	CommandBuildBottomLevel CommandKind = iota
	CommandBuildTopLevel
	CommandSetPipeline
	CommandSetDescriptorTable
	CommandDispatchRays
	CommandDispatch
	CommandBarrier
	CommandSubmit
	CommandPresent
)

var commandKindNames = []string{
	"build-blas", "build-tlas", "set-pipeline", "set-descriptor-table",
	"dispatch-rays", "dispatch", "barrier", "submit", "present",
}

func (k CommandKind) String() string {
	if int(k) >= 0 && int(k) < len(commandKindNames) {
		return commandKindNames[k]
	}
	return "command(?)"
}

// Command is one entry of the command stream a backend executes.
type Command struct {
	Kind     CommandKind
	Label    string
	Pipeline string
	Export   string
	Target   common.ResourceHandle

	// Update marks an acceleration structure build that refits in place.
	Update bool

	Barriers []Barrier
	Size     [3]uint32
	Fence    uint64
}

// RendererBackend is the device layer behind the Renderer. Resource handles are issued by
// the Renderer; the backend maps them to device objects.
type RendererBackend interface {
	// Type returns the backend type.
	//
	// Returns:
	//   - RendererBackendType: the type
	Type() RendererBackendType

	// Capabilities returns the alignment rules and limits of the device.
	//
	// Returns:
	//   - Capabilities: the capabilities
	Capabilities() Capabilities

	// ConfigureSurface is a wrapper for boilerplate logic required when calling ConfigureSurface on a surface.
	// This is required when the surface size changes, such as when the window is resized.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	ConfigureSurface(width, height int)

	// SetPresentMode sets the surface present mode which controls how frames are delivered to the display.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// RegisterPipeline creates the state object of a pipeline: the device pipelines of its
	// ray-generation and entry exports and the layouts of its root signatures.
	//
	// Parameters:
	//   - p: the pipeline
	//
	// Returns:
	//   - error: an error if a device object could not be created
	RegisterPipeline(p pipeline.Pipeline) error

	// CreateBuffer creates a device buffer under a renderer-issued handle.
	//
	// Parameters:
	//   - h: the handle
	//   - label: a debug label
	//   - size: the size in bytes
	//   - usage: the WebGPU buffer usage
	//
	// Returns:
	//   - error: an error if the buffer could not be created
	CreateBuffer(h common.ResourceHandle, label string, size uint64, usage wgpu.BufferUsage) error

	// WriteBuffer writes data into a buffer at an offset.
	//
	// Parameters:
	//   - h: the buffer handle
	//   - offset: the byte offset
	//   - data: the bytes to write
	//
	// Returns:
	//   - error: an error if the handle is unknown or the write is out of range
	WriteBuffer(h common.ResourceHandle, offset uint64, data []byte) error

	// ReleaseBuffer destroys a buffer.
	//
	// Parameters:
	//   - h: the buffer handle
	ReleaseBuffer(h common.ResourceHandle)

	// BeginCommandList opens the command list the following calls record into.
	//
	// Returns:
	//   - error: an error if the command list could not be opened
	BeginCommandList() error

	// BuildAccelerationStructure writes flattened acceleration structure nodes into the target
	// buffer and records the build.
	//
	// Parameters:
	//   - cmd: the build command, CommandBuildBottomLevel or CommandBuildTopLevel
	//   - nodes: the marshalled nodes
	//
	// Returns:
	//   - error: an error if the target is unknown or too small
	BuildAccelerationStructure(cmd Command, nodes []byte) error

	// SetPipeline records a pipeline change.
	//
	// Parameters:
	//   - p: the pipeline
	SetPipeline(p pipeline.Pipeline)

	// SetDescriptorTable records the descriptor table bound to the current pipeline.
	//
	// Parameters:
	//   - p: the current pipeline
	//   - table: the validated table
	//
	// Returns:
	//   - error: an error if the device binding could not be created
	SetDescriptorTable(p pipeline.Pipeline, table descriptor_table.DescriptorTable) error

	// DispatchRays records a ray dispatch of the current pipeline's ray-generation export.
	//
	// Parameters:
	//   - p: the current pipeline
	//   - desc: the shader table ranges and dispatch size
	//
	// Returns:
	//   - error: an error if the dispatch could not be recorded
	DispatchRays(p pipeline.Pipeline, desc DispatchRaysDesc) error

	// Dispatch records a compute dispatch of one entry export of the current pipeline.
	//
	// Parameters:
	//   - p: the current pipeline
	//   - export: the entry export
	//   - x, y, z: the thread counts, rounded up to whole workgroups
	//
	// Returns:
	//   - error: an error if the dispatch could not be recorded
	Dispatch(p pipeline.Pipeline, export string, x, y, z uint32) error

	// ResourceBarrier records barriers.
	//
	// Parameters:
	//   - barriers: the barriers
	ResourceBarrier(barriers []Barrier)

	// Submit closes the command list, submits it and signals the fence value on completion.
	//
	// Parameters:
	//   - fence: the fence value to signal
	//
	// Returns:
	//   - error: a *common.DeviceLostError if the device was lost
	Submit(fence uint64) error

	// CompletedFence returns the last fence value the device signalled.
	//
	// Returns:
	//   - uint64: the fence value
	CompletedFence() uint64

	// WaitForFence blocks until the device signalled the fence value.
	//
	// Parameters:
	//   - fence: the fence value
	//
	// Returns:
	//   - error: a *common.DeviceLostError if the device was lost while waiting
	WaitForFence(fence uint64) error

	// Present shows a buffer of width*height vec4<f32> texels on the surface.
	//
	// Parameters:
	//   - source: the buffer handle
	//   - width, height: the texel dimensions of the buffer
	//
	// Returns:
	//   - error: a *common.DeviceLostError if the device was lost
	Present(source common.ResourceHandle, width, height uint32) error

	// Recreate replaces a lost device with a new one. Every device object is gone afterwards.
	//
	// Returns:
	//   - error: an error if no device could be created
	Recreate() error

	// Release destroys every device object and the device.
	Release()
}
