package accel

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/log"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

var logger = log.New("accel")

// State is the lifecycle state of the top-level structure.
type State int

const (
	StateUninitialized State = iota
	StateBuilt
	StateStale
	StateRefit
	StateRebuilt
)

var stateNames = []string{"uninitialized", "built", "stale", "refit", "rebuilt"}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// BLAS is a built bottom-level structure.
type BLAS struct {
	Handle     common.ResourceHandle
	Geometry   common.GeometryType
	Primitives int
	Nodes      int
}

// TLAS is the built top-level structure. Its handle is bound as the acceleration_structure
// slot of every ray variant.
type TLAS struct {
	Handle    common.ResourceHandle
	Instances int
	Nodes     int
}

// Instance places a bottom-level structure in the top-level structure.
type Instance struct {
	BottomLevel  common.ResourceHandle
	Transform    mgl32.Mat4
	InstanceID   uint32
	Contribution uint32
	Mask         uint8
}

// Device is the part of the renderer the manager builds through. renderer.Renderer implements it.
type Device interface {
	AccelerationStructurePrebuildInfo(desc renderer.AccelerationStructureDesc) (renderer.PrebuildInfo, error)
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (common.ResourceHandle, error)
	BufferSize(h common.ResourceHandle) (uint64, bool)
	BuildAccelerationStructure(desc renderer.AccelerationStructureDesc) error
	ReleaseResource(h common.ResourceHandle)
}

// composition identifies the bottom-level structure behind one instance.
type composition struct {
	handle common.ResourceHandle
	nodes  int
}

// manager is the implementation of the Manager interface.
type manager struct {
	mu     *sync.Mutex
	device Device
	label  string

	bottom [common.GeometryTypeCount]*BLAS
	top    *TLAS
	layout []composition

	state         State
	markedFrame   bool
	alwaysRebuild bool

	rebuilds int
	refits   int
}

// Manager owns one bottom-level structure per geometry type and the top-level structure that
// instances them. The top-level structure is rebuilt when its instance count or the bottom-level
// structures behind its instances change and refit in place otherwise.
//
// Builds record into the device's open command list; the caller places the barrier that makes
// the result visible to the following dispatches.
type Manager interface {
	// BuildBottomLevel builds the bottom-level structure of one geometry type from the given
	// primitives, replacing the previous one of that type. AABB primitives contribute their
	// bounds; triangle primitives contribute their transformed faces. Primitive i owns the
	// hit-group records starting at i*RayTypeCount.
	//
	// Parameters:
	//   - geometryType: the geometry type of every primitive
	//   - primitives: the primitives in hit-group order
	//
	// Returns:
	//   - BLAS: the built structure
	//   - error: a ValidationError for an empty list or a primitive of another geometry type
	BuildBottomLevel(geometryType common.GeometryType, primitives []geometry.Primitive) (BLAS, error)

	// BuildTopLevel builds or refits the top-level structure.
	//
	// Parameters:
	//   - instances: the instances, each referencing a BLAS built by this manager
	//
	// Returns:
	//   - TLAS: the structure; its handle changes only when a rebuild changes the node count
	//   - error: a ValidationError for no instances or an unknown bottom-level structure
	BuildTopLevel(instances []Instance) (TLAS, error)

	// MarkTransformsChanged moves a built top-level structure to Stale. Only the first call
	// of a frame has an effect.
	//
	// Returns:
	//   - bool: true if the state changed
	MarkTransformsChanged() bool

	// NextFrame starts a new frame for MarkTransformsChanged.
	NextFrame()

	// NeedsUpdate reports whether the top-level structure is missing or stale.
	//
	// Returns:
	//   - bool: true if BuildTopLevel should run this frame
	NeedsUpdate() bool

	// State returns the lifecycle state.
	//
	// Returns:
	//   - State: the state
	State() State

	// BottomLevel returns the bottom-level structure of a geometry type.
	//
	// Parameters:
	//   - geometryType: the geometry type
	//
	// Returns:
	//   - BLAS: the structure
	//   - bool: false if none was built
	BottomLevel(geometryType common.GeometryType) (BLAS, bool)

	// TopLevel returns the top-level structure.
	//
	// Returns:
	//   - TLAS: the structure
	//   - bool: false if none was built
	TopLevel() (TLAS, bool)

	// RebuildCount returns how many top-level builds were full rebuilds.
	RebuildCount() int

	// RefitCount returns how many top-level builds were refits.
	RefitCount() int

	// Release frees every structure and returns to Uninitialized. The counters are kept.
	Release()
}

var _ Manager = &manager{}

// NewManager creates a Manager that builds through the given device.
//
// Parameters:
//   - device: the device, usually a renderer.Renderer
//   - options: variadic list of ManagerBuilderOption functions
//
// Returns:
//   - Manager: the new manager
func NewManager(device Device, options ...ManagerBuilderOption) Manager {
	m := &manager{
		mu:     &sync.Mutex{},
		device: device,
		label:  "scene",
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// ensureBuffer returns a buffer of exactly size bytes, reusing current when it fits.
func (m *manager) ensureBuffer(current common.ResourceHandle, label string, size uint64) (common.ResourceHandle, error) {
	if current.Valid() {
		if have, ok := m.device.BufferSize(current); ok && have == size {
			return current, nil
		}
		m.device.ReleaseResource(current)
	}
	return m.device.CreateBuffer(label, size, wgpu.BufferUsageStorage)
}

func (m *manager) BuildBottomLevel(geometryType common.GeometryType, primitives []geometry.Primitive) (BLAS, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if geometryType < 0 || geometryType >= common.GeometryTypeCount {
		return BLAS{}, common.NewValidationError("accel", "unknown geometry type %d", int(geometryType))
	}
	if len(primitives) == 0 {
		return BLAS{}, common.NewValidationError("accel", "%s bottom-level structure with no primitives", geometryType)
	}

	geometries := make([]renderer.GeometryDesc, len(primitives))
	for i, p := range primitives {
		if p.Geometry != geometryType {
			return BLAS{}, common.NewValidationError("accel", "primitive %d (%q) is %s geometry in a %s bottom-level structure",
				i, p.Name, p.Geometry, geometryType)
		}
		if geometryType == common.GeometryTypeAABB {
			geometries[i].AABB = p.Bounds
		} else {
			geometries[i].Triangles = geometry.TriangleVertices(p)
		}
	}

	label := fmt.Sprintf("%s/blas-%s", m.label, geometryType)
	desc := renderer.AccelerationStructureDesc{
		Label:      label,
		Level:      renderer.BottomLevel,
		Geometry:   geometryType,
		Geometries: geometries,
	}
	info, err := m.device.AccelerationStructurePrebuildInfo(desc)
	if err != nil {
		return BLAS{}, err
	}

	var current common.ResourceHandle
	if prev := m.bottom[geometryType]; prev != nil {
		current = prev.Handle
	}
	desc.Target, err = m.ensureBuffer(current, label, info.ResultSize)
	if err != nil {
		m.bottom[geometryType] = nil
		return BLAS{}, err
	}
	if err := m.device.BuildAccelerationStructure(desc); err != nil {
		m.device.ReleaseResource(desc.Target)
		m.bottom[geometryType] = nil
		if m.top != nil {
			m.state = StateStale
		}
		return BLAS{}, err
	}

	blas := &BLAS{Handle: desc.Target, Geometry: geometryType, Primitives: len(primitives), Nodes: info.NodeCount}
	m.bottom[geometryType] = blas
	if m.top != nil {
		m.state = StateStale
	}
	logger.Debugf("%s: %d primitives, %d nodes", label, blas.Primitives, blas.Nodes)
	return *blas, nil
}

func (m *manager) BuildTopLevel(instances []Instance) (TLAS, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(instances) == 0 {
		return TLAS{}, common.NewValidationError("accel", "top-level structure with no instances")
	}

	layout := make([]composition, len(instances))
	descs := make([]renderer.InstanceDesc, len(instances))
	for i, inst := range instances {
		var blas *BLAS
		for _, b := range m.bottom {
			if b != nil && b.Handle == inst.BottomLevel {
				blas = b
			}
		}
		if blas == nil {
			return TLAS{}, common.NewValidationError("accel", "instance %d references unknown bottom-level structure %d", i, inst.BottomLevel)
		}
		layout[i] = composition{handle: blas.Handle, nodes: blas.Nodes}
		descs[i] = renderer.InstanceDesc{
			BottomLevel:  inst.BottomLevel,
			Transform:    inst.Transform,
			InstanceID:   inst.InstanceID,
			Contribution: inst.Contribution,
			Mask:         inst.Mask,
		}
	}

	label := m.label + "/tlas"
	desc := renderer.AccelerationStructureDesc{Label: label, Level: renderer.TopLevel, Instances: descs}

	refit := !m.alwaysRebuild && m.top != nil && sameComposition(m.layout, layout)
	if refit {
		desc.Update = true
		desc.Target = m.top.Handle
		if err := m.device.BuildAccelerationStructure(desc); err != nil {
			m.state = StateStale
			return TLAS{}, err
		}
		m.refits++
		m.state = StateRefit
		logger.Debugf("%s: refit %d instances (%d refits)", label, len(instances), m.refits)
		return *m.top, nil
	}

	info, err := m.device.AccelerationStructurePrebuildInfo(desc)
	if err != nil {
		return TLAS{}, err
	}
	var current common.ResourceHandle
	if m.top != nil {
		current = m.top.Handle
	}
	desc.Target, err = m.ensureBuffer(current, label, info.ResultSize)
	if err != nil {
		m.dropTopLevel()
		return TLAS{}, err
	}
	if err := m.device.BuildAccelerationStructure(desc); err != nil {
		m.device.ReleaseResource(desc.Target)
		m.dropTopLevel()
		return TLAS{}, err
	}

	if m.top == nil {
		m.state = StateBuilt
	} else {
		m.state = StateRebuilt
	}
	m.top = &TLAS{Handle: desc.Target, Instances: len(instances), Nodes: info.NodeCount}
	m.layout = layout
	m.rebuilds++
	logger.Debugf("%s: rebuilt %d instances, %d nodes (%d rebuilds)", label, len(instances), info.NodeCount, m.rebuilds)
	return *m.top, nil
}

// dropTopLevel forgets a top-level structure whose buffer is gone, so the next build starts over.
func (m *manager) dropTopLevel() {
	m.top = nil
	m.layout = nil
	m.state = StateUninitialized
}

func sameComposition(a, b []composition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (m *manager) MarkTransformsChanged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markedFrame {
		return false
	}
	switch m.state {
	case StateBuilt, StateRefit, StateRebuilt:
		m.state = StateStale
		m.markedFrame = true
		return true
	default:
		return false
	}
}

func (m *manager) NextFrame() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedFrame = false
}

func (m *manager) NeedsUpdate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.top == nil || m.state == StateStale
}

func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manager) BottomLevel(geometryType common.GeometryType) (BLAS, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if geometryType < 0 || geometryType >= common.GeometryTypeCount || m.bottom[geometryType] == nil {
		return BLAS{}, false
	}
	return *m.bottom[geometryType], true
}

func (m *manager) TopLevel() (TLAS, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.top == nil {
		return TLAS{}, false
	}
	return *m.top, true
}

func (m *manager) RebuildCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rebuilds
}

func (m *manager) RefitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refits
}

func (m *manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for g, b := range m.bottom {
		if b != nil {
			m.device.ReleaseResource(b.Handle)
			m.bottom[g] = nil
		}
	}
	if m.top != nil {
		m.device.ReleaseResource(m.top.Handle)
		m.top = nil
	}
	m.layout = nil
	m.state = StateUninitialized
	m.markedFrame = false
}
