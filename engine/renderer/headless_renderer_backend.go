package renderer

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

type headlessRendererBackendImpl struct {
	mu *sync.Mutex

	buffers   map[common.ResourceHandle][]byte
	pipelines map[string]bool
	commands  []Command

	width, height int
	presentMode   PresentMode

	completed uint64

	// lostReason is set by InjectDeviceLost and reported by the next fence operation.
	lostReason  string
	recreations int
}

// HeadlessBackend is a RendererBackend without a device. Buffers live in host memory, every
// command is appended to an inspectable stream and fences complete on submit.
type HeadlessBackend interface {
	RendererBackend

	// Commands returns a copy of the recorded command stream.
	//
	// Returns:
	//   - []Command: the commands in recording order
	Commands() []Command

	// ResetCommands clears the recorded command stream.
	ResetCommands()

	// InjectDeviceLost makes the next Submit, WaitForFence or Present fail with a
	// *common.DeviceLostError until Recreate.
	//
	// Parameters:
	//   - reason: the reason reported by the error
	InjectDeviceLost(reason string)

	// BufferData returns a copy of a buffer's contents.
	//
	// Parameters:
	//   - h: the buffer handle
	//
	// Returns:
	//   - []byte: the contents
	//   - bool: false if h is not a live buffer
	BufferData(h common.ResourceHandle) ([]byte, bool)

	// Recreations returns how many times Recreate replaced the device.
	//
	// Returns:
	//   - int: the number of recreations
	Recreations() int
}

var _ HeadlessBackend = &headlessRendererBackendImpl{}

// NewHeadlessBackend creates a headless backend.
//
// Returns:
//   - HeadlessBackend: the backend
func NewHeadlessBackend() HeadlessBackend {
	return &headlessRendererBackendImpl{
		mu:        &sync.Mutex{},
		buffers:   make(map[common.ResourceHandle][]byte),
		pipelines: make(map[string]bool),
	}
}

func (b *headlessRendererBackendImpl) Type() RendererBackendType {
	return BackendTypeHeadless
}

func (b *headlessRendererBackendImpl) Capabilities() Capabilities {
	return DefaultCapabilities
}

func (b *headlessRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.width, b.height = width, height
}

func (b *headlessRendererBackendImpl) SetPresentMode(mode PresentMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.presentMode = mode
}

func (b *headlessRendererBackendImpl) RegisterPipeline(p pipeline.Pipeline) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pipelines[p.PipelineKey()] = true
	return nil
}

func (b *headlessRendererBackendImpl) CreateBuffer(h common.ResourceHandle, label string, size uint64, usage wgpu.BufferUsage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers[h] = make([]byte, size)
	return nil
}

func (b *headlessRendererBackendImpl) WriteBuffer(h common.ResourceHandle, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[h]
	if !ok {
		return fmt.Errorf("write to unknown buffer %d", h)
	}
	if offset+uint64(len(data)) > uint64(len(buf)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %d", len(data), offset, h)
	}
	copy(buf[offset:], data)
	return nil
}

func (b *headlessRendererBackendImpl) ReleaseBuffer(h common.ResourceHandle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.buffers, h)
}

func (b *headlessRendererBackendImpl) BeginCommandList() error {
	return nil
}

func (b *headlessRendererBackendImpl) record(cmd Command) {
	b.commands = append(b.commands, cmd)
}

func (b *headlessRendererBackendImpl) BuildAccelerationStructure(cmd Command, nodes []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[cmd.Target]
	if !ok {
		return fmt.Errorf("%s: unknown target buffer %d", cmd.Label, cmd.Target)
	}
	if len(nodes) > len(buf) {
		return fmt.Errorf("%s: %d bytes of nodes overflow target %d", cmd.Label, len(nodes), cmd.Target)
	}
	copy(buf, nodes)
	clear(buf[len(nodes):])
	b.record(cmd)
	return nil
}

func (b *headlessRendererBackendImpl) SetPipeline(p pipeline.Pipeline) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Command{Kind: CommandSetPipeline, Pipeline: p.PipelineKey()})
}

func (b *headlessRendererBackendImpl) SetDescriptorTable(p pipeline.Pipeline, table descriptor_table.DescriptorTable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Command{Kind: CommandSetDescriptorTable, Pipeline: p.PipelineKey(), Label: table.Label()})
	return nil
}

func (b *headlessRendererBackendImpl) DispatchRays(p pipeline.Pipeline, desc DispatchRaysDesc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Command{
		Kind:     CommandDispatchRays,
		Pipeline: p.PipelineKey(),
		Export:   p.Config().RayGen,
		Target:   desc.ShaderTable,
		Size:     [3]uint32{desc.Width, desc.Height, desc.Depth},
	})
	return nil
}

func (b *headlessRendererBackendImpl) Dispatch(p pipeline.Pipeline, export string, x, y, z uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Command{Kind: CommandDispatch, Pipeline: p.PipelineKey(), Export: export, Size: [3]uint32{x, y, z}})
	return nil
}

func (b *headlessRendererBackendImpl) ResourceBarrier(barriers []Barrier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(Command{Kind: CommandBarrier, Barriers: barriers})
}

func (b *headlessRendererBackendImpl) lost() error {
	if b.lostReason == "" {
		return nil
	}
	return &common.DeviceLostError{Reason: b.lostReason}
}

func (b *headlessRendererBackendImpl) Submit(fence uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lost(); err != nil {
		return err
	}
	b.record(Command{Kind: CommandSubmit, Fence: fence})
	b.completed = fence
	return nil
}

func (b *headlessRendererBackendImpl) CompletedFence() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.completed
}

func (b *headlessRendererBackendImpl) WaitForFence(fence uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lost(); err != nil {
		return err
	}
	if fence > b.completed {
		return fmt.Errorf("fence %d is not submitted (completed %d)", fence, b.completed)
	}
	return nil
}

func (b *headlessRendererBackendImpl) Present(source common.ResourceHandle, width, height uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.lost(); err != nil {
		return err
	}
	b.record(Command{Kind: CommandPresent, Target: source, Size: [3]uint32{width, height, 1}})
	return nil
}

func (b *headlessRendererBackendImpl) Recreate() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers = make(map[common.ResourceHandle][]byte)
	b.pipelines = make(map[string]bool)
	b.lostReason = ""
	b.recreations++
	return nil
}

func (b *headlessRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffers = make(map[common.ResourceHandle][]byte)
	b.pipelines = make(map[string]bool)
}

func (b *headlessRendererBackendImpl) Commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.commands...)
}

func (b *headlessRendererBackendImpl) ResetCommands() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = nil
}

func (b *headlessRendererBackendImpl) InjectDeviceLost(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lostReason = reason
}

func (b *headlessRendererBackendImpl) BufferData(h common.ResourceHandle) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	buf, ok := b.buffers[h]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), buf...), true
}

func (b *headlessRendererBackendImpl) Recreations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recreations
}
