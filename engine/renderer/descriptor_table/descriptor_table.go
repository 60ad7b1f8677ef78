package descriptor_table

import (
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

// Allocator hands out descriptor heap slots. The renderer's descriptor heap implements it.
type Allocator interface {
	// Allocate reserves one descriptor slot.
	//
	// Returns:
	//   - uint32: the slot index
	//   - error: a *common.ResourceExhaustionError when the heap is full
	Allocate() (uint32, error)

	// Free returns a slot to the heap.
	//
	// Parameters:
	//   - index: a slot index returned by Allocate
	Free(index uint32)
}

// Binding is the resource bound to one root signature slot.
type Binding struct {
	Resource common.ResourceHandle
	Offset   uint64

	// Size is the bound byte range; zero binds the rest of the resource.
	Size uint64

	// Descriptors are the heap slots of a descriptor table slot. Root descriptors and
	// constants live in the root arguments and own no heap slots.
	Descriptors []uint32
}

// Resolver supplies a binding for a slot that a rebind could not carry over.
type Resolver func(slot string) (resource common.ResourceHandle, offset, size uint64, ok bool)

// descriptorTable is the unexported implementation of DescriptorTable.
type descriptorTable struct {
	mu *sync.Mutex

	// label is a debug label added for convenience.
	label string

	rootSignature *pipeline.RootSignature
	heap          Allocator
	bindings      map[string]Binding

	// bindGroup is the WebGPU bind group built from the bindings by the wgpu backend, or nil
	// when the bindings changed since it was built.
	bindGroup *wgpu.BindGroup
}

// DescriptorTable holds the resources bound to each slot of a global root signature. It is
// checked against the root signature of every pipeline it is used with: a table whose
// checksum differs from the pipeline's global root signature is rebound first.
//
// Usage pattern:
//  1. The frame orchestrator creates a DescriptorTable for a root signature
//  2. It binds every slot with Bind
//  3. The renderer validates it in SetDescriptorTable and builds the device binding
//  4. When the next variant's root signature differs, Rebind carries compatible bindings over
type DescriptorTable interface {
	// Label returns the debug label for this table.
	//
	// Returns:
	//   - string: the debug label
	Label() string

	// RootSignature returns the root signature the table is laid out for.
	//
	// Returns:
	//   - *pipeline.RootSignature: the root signature
	RootSignature() *pipeline.RootSignature

	// Checksum returns the checksum of the table's root signature.
	//
	// Returns:
	//   - uint64: the checksum
	Checksum() uint64

	// Bind binds a resource range to a slot. The first bind of a descriptor table slot
	// allocates its descriptors from the heap.
	//
	// Parameters:
	//   - slot: the slot name
	//   - resource: the resource handle
	//   - offset: the byte offset into the resource
	//   - size: the byte size, zero for the rest of the resource
	//
	// Returns:
	//   - error: a ValidationError for an unknown slot or invalid handle, or the heap's
	//     ResourceExhaustionError
	Bind(slot string, resource common.ResourceHandle, offset, size uint64) error

	// Binding returns the binding of a slot.
	//
	// Parameters:
	//   - slot: the slot name
	//
	// Returns:
	//   - Binding: the binding
	//   - bool: false if the slot is unbound
	Binding(slot string) (Binding, bool)

	// Bindings returns the bindings in root signature slot order. Unbound slots are zero.
	//
	// Returns:
	//   - []Binding: one binding per slot
	Bindings() []Binding

	// Validate checks that every slot is bound.
	//
	// Returns:
	//   - error: a ValidationError naming the first unbound slot
	Validate() error

	// Rebind lays the table out for another root signature. A binding is kept when the new
	// root signature has a slot of the same name, kind, class and count; every other slot is
	// resolved through resolve. Descriptors of slots that no longer exist are freed.
	//
	// Parameters:
	//   - rs: the new root signature
	//   - resolve: supplies bindings for slots that cannot be carried over, may be nil
	//
	// Returns:
	//   - error: a ValidationError naming a slot resolve could not supply; the table is unchanged
	Rebind(rs *pipeline.RootSignature, resolve Resolver) error

	// BindGroup returns the WebGPU bind group built for the current bindings.
	//
	// Returns:
	//   - *wgpu.BindGroup: the bind group, or nil if it must be rebuilt
	BindGroup() *wgpu.BindGroup

	// SetBindGroup stores the bind group built by the wgpu backend.
	//
	// Parameters:
	//   - bg: the bind group
	SetBindGroup(bg *wgpu.BindGroup)

	// Release returns every descriptor to the heap and drops the bind group.
	Release()
}

// Compile-time check that descriptorTable implements DescriptorTable
var _ DescriptorTable = &descriptorTable{}

// NewDescriptorTable creates an empty DescriptorTable for a root signature.
//
// Parameters:
//   - rs: the root signature
//   - heap: the descriptor heap descriptor table slots allocate from
//   - options: a variadic list of options to configure the table
//
// Returns:
//   - DescriptorTable: the table
//   - error: a ValidationError if rs or heap is nil
func NewDescriptorTable(rs *pipeline.RootSignature, heap Allocator, options ...DescriptorTableOption) (DescriptorTable, error) {
	if rs == nil || heap == nil {
		return nil, common.NewValidationError("descriptor_table", "a root signature and a descriptor heap are required")
	}
	t := &descriptorTable{
		mu:            &sync.Mutex{},
		label:         rs.Name(),
		rootSignature: rs,
		heap:          heap,
		bindings:      make(map[string]Binding),
	}
	for _, opt := range options {
		opt(t)
	}
	return t, nil
}

func (t *descriptorTable) Label() string {
	return t.label
}

func (t *descriptorTable) RootSignature() *pipeline.RootSignature {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootSignature
}

func (t *descriptorTable) Checksum() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rootSignature.Checksum()
}

// allocate reserves n descriptors, returning any partial allocation on failure.
func (t *descriptorTable) allocate(n uint32) ([]uint32, error) {
	out := make([]uint32, 0, n)
	for range n {
		idx, err := t.heap.Allocate()
		if err != nil {
			t.free(out)
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

func (t *descriptorTable) free(descriptors []uint32) {
	for _, d := range descriptors {
		t.heap.Free(d)
	}
}

func (t *descriptorTable) Bind(slot string, resource common.ResourceHandle, offset, size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.rootSignature.Slot(slot)
	if !ok {
		return common.NewValidationError("descriptor_table", "%s: root signature %s has no slot %q", t.label, t.rootSignature.Name(), slot)
	}
	if !resource.Valid() {
		return common.NewValidationError("descriptor_table", "%s: slot %q bound to an invalid handle", t.label, slot)
	}

	b, bound := t.bindings[slot]
	if !bound && s.Kind == pipeline.SlotKindDescriptorTable {
		descriptors, err := t.allocate(s.Count)
		if err != nil {
			return err
		}
		b.Descriptors = descriptors
	}
	b.Resource, b.Offset, b.Size = resource, offset, size
	t.bindings[slot] = b
	t.dropBindGroup()
	return nil
}

func (t *descriptorTable) Binding(slot string) (Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[slot]
	return b, ok
}

func (t *descriptorTable) Bindings() []Binding {
	t.mu.Lock()
	defer t.mu.Unlock()
	slots := t.rootSignature.Slots()
	out := make([]Binding, len(slots))
	for i, s := range slots {
		out[i] = t.bindings[s.Name]
	}
	return out
}

func (t *descriptorTable) Validate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.rootSignature.Slots() {
		if _, ok := t.bindings[s.Name]; !ok {
			return common.NewValidationError("descriptor_table", "%s: slot %q of %s is unbound", t.label, s.Name, t.rootSignature.Name())
		}
	}
	return nil
}

func (t *descriptorTable) Rebind(rs *pipeline.RootSignature, resolve Resolver) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rs == nil {
		return common.NewValidationError("descriptor_table", "%s: rebind to a nil root signature", t.label)
	}

	next := make(map[string]Binding, len(rs.Slots()))
	var allocated []uint32
	fail := func(err error) error {
		t.free(allocated)
		return err
	}

	for _, s := range rs.Slots() {
		if old, ok := t.bindings[s.Name]; ok {
			prev, _ := t.rootSignature.Slot(s.Name)
			if prev.Kind == s.Kind && prev.Class() == s.Class() && prev.Count == s.Count {
				next[s.Name] = old
				continue
			}
		}
		if resolve == nil {
			return fail(common.NewValidationError("descriptor_table", "%s: slot %q of %s cannot be carried over and no resolver was given", t.label, s.Name, rs.Name()))
		}
		resource, offset, size, ok := resolve(s.Name)
		if !ok || !resource.Valid() {
			return fail(common.NewValidationError("descriptor_table", "%s: no resource for slot %q (%s) of %s", t.label, s.Name, s.Class(), rs.Name()))
		}
		b := Binding{Resource: resource, Offset: offset, Size: size}
		if s.Kind == pipeline.SlotKindDescriptorTable {
			descriptors, err := t.allocate(s.Count)
			if err != nil {
				return fail(err)
			}
			allocated = append(allocated, descriptors...)
			b.Descriptors = descriptors
		}
		next[s.Name] = b
	}

	// release descriptors of bindings that were not carried over
	for name, old := range t.bindings {
		if kept, ok := next[name]; ok && slices.Equal(kept.Descriptors, old.Descriptors) {
			continue
		}
		t.free(old.Descriptors)
	}

	t.rootSignature = rs
	t.bindings = next
	t.dropBindGroup()
	return nil
}

func (t *descriptorTable) dropBindGroup() {
	if t.bindGroup != nil {
		t.bindGroup.Release()
		t.bindGroup = nil
	}
}

func (t *descriptorTable) BindGroup() *wgpu.BindGroup {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bindGroup
}

func (t *descriptorTable) SetBindGroup(bg *wgpu.BindGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropBindGroup()
	t.bindGroup = bg
}

func (t *descriptorTable) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for name, b := range t.bindings {
		t.free(b.Descriptors)
		delete(t.bindings, name)
	}
	t.dropBindGroup()
}
