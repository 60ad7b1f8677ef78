package descriptor_table

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// testHeap is a fixed-capacity Allocator.
type testHeap struct {
	used []bool
}

func newTestHeap(capacity int) *testHeap {
	return &testHeap{used: make([]bool, capacity)}
}

func (h *testHeap) Allocate() (uint32, error) {
	for i, u := range h.used {
		if !u {
			h.used[i] = true
			return uint32(i), nil
		}
	}
	return 0, &common.ResourceExhaustionError{Resource: "test heap", Capacity: len(h.used)}
}

func (h *testHeap) Free(index uint32) {
	h.used[index] = false
}

func (h *testHeap) inUse() int {
	n := 0
	for _, u := range h.used {
		if u {
			n++
		}
	}
	return n
}

func globalSignature(t *testing.T, v pipeline.Variant) *pipeline.RootSignature {
	t.Helper()
	cfg := pipeline.DefaultVariantConfigs()[v]
	rs, err := pipeline.CreateRootSignature(v.String(), cfg.GlobalSlots, false)
	if err != nil {
		t.Fatalf("CreateRootSignature: %v", err)
	}
	return rs
}

func bindAll(t *testing.T, table DescriptorTable) {
	t.Helper()
	for i, s := range table.RootSignature().Slots() {
		if err := table.Bind(s.Name, common.ResourceHandle(100+i), 0, 0); err != nil {
			t.Fatalf("Bind(%q): %v", s.Name, err)
		}
	}
}

func TestBindAndValidate(t *testing.T) {
	heap := newTestHeap(8)
	table, err := NewDescriptorTable(globalSignature(t, pipeline.VariantRaytracing), heap, WithLabel("rays"))
	if err != nil {
		t.Fatalf("NewDescriptorTable: %v", err)
	}
	if table.Label() != "rays" {
		t.Errorf("Label() = %q", table.Label())
	}

	if err := table.Validate(); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("empty table validated: %v", err)
	}
	bindAll(t, table)
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	// output_view and vertex_buffers are descriptor tables of one descriptor each
	if heap.inUse() != 2 {
		t.Errorf("heap slots in use = %d, want 2", heap.inUse())
	}
	b, _ := table.Binding("output_view")
	if len(b.Descriptors) != 1 {
		t.Errorf("output_view descriptors = %v", b.Descriptors)
	}
	if b, _ := table.Binding("scene_constant"); len(b.Descriptors) != 0 {
		t.Errorf("root CBV owns descriptors %v", b.Descriptors)
	}

	// rebinding the same slot keeps its descriptors
	if err := table.Bind("output_view", 999, 0, 64); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if heap.inUse() != 2 {
		t.Errorf("rebinding a slot allocated again: %d in use", heap.inUse())
	}
	bindings := table.Bindings()
	if bindings[0].Resource != 999 || bindings[0].Size != 64 {
		t.Errorf("Bindings()[0] = %+v", bindings[0])
	}

	table.Release()
	if heap.inUse() != 0 {
		t.Errorf("Release left %d descriptors allocated", heap.inUse())
	}
}

func TestBindRejects(t *testing.T) {
	table, _ := NewDescriptorTable(globalSignature(t, pipeline.VariantRaytracing), newTestHeap(8))
	if err := table.Bind("photon_buffer", 1, 0, 0); !errors.Is(err, common.ErrValidation) {
		t.Errorf("unknown slot: err = %v", err)
	}
	if err := table.Bind("scene_constant", common.InvalidHandle, 0, 0); !errors.Is(err, common.ErrValidation) {
		t.Errorf("invalid handle: err = %v", err)
	}
	if _, err := NewDescriptorTable(nil, newTestHeap(1)); err == nil {
		t.Error("nil root signature accepted")
	}
}

func TestBindHeapExhausted(t *testing.T) {
	table, _ := NewDescriptorTable(globalSignature(t, pipeline.VariantRaytracing), newTestHeap(1))
	if err := table.Bind("output_view", 1, 0, 0); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	err := table.Bind("vertex_buffers", 2, 0, 0)
	var exhausted *common.ResourceExhaustionError
	if !errors.As(err, &exhausted) || exhausted.Capacity != 1 {
		t.Fatalf("err = %v, want ResourceExhaustionError", err)
	}
}

func TestRebindAcrossVariants(t *testing.T) {
	heap := newTestHeap(8)
	emit := globalSignature(t, pipeline.VariantPhotonMapping)
	gather := globalSignature(t, pipeline.VariantPhotonGather)
	table, _ := NewDescriptorTable(emit, heap)
	bindAll(t, table)
	before, _ := table.Binding("acceleration_structure")

	var asked []string
	resolve := func(slot string) (common.ResourceHandle, uint64, uint64, bool) {
		asked = append(asked, slot)
		return 500, 0, 0, true
	}
	if err := table.Rebind(gather, resolve); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if table.Checksum() != gather.Checksum() {
		t.Error("checksum not updated")
	}
	// the photon slots change from uav to srv, everything else carries over
	if len(asked) != 2 || asked[0] != "photon_buffer" || asked[1] != "photon_counter" {
		t.Errorf("resolver asked for %v", asked)
	}
	after, _ := table.Binding("acceleration_structure")
	if after.Resource != before.Resource {
		t.Error("compatible binding not carried over")
	}
	if err := table.Validate(); err != nil {
		t.Errorf("Validate after rebind: %v", err)
	}
	if heap.inUse() != 2 {
		t.Errorf("heap slots in use = %d, want 2", heap.inUse())
	}
}

func TestRebindFailureLeavesTableUnchanged(t *testing.T) {
	heap := newTestHeap(8)
	table, _ := NewDescriptorTable(globalSignature(t, pipeline.VariantRaytracing), heap)
	bindAll(t, table)
	checksum := table.Checksum()

	composite := globalSignature(t, pipeline.VariantComposite)
	resolve := func(slot string) (common.ResourceHandle, uint64, uint64, bool) {
		return 7, 0, 0, slot != "present_view"
	}
	err := table.Rebind(composite, resolve)
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if table.Checksum() != checksum {
		t.Error("failed rebind changed the root signature")
	}
	if heap.inUse() != 2 {
		t.Errorf("failed rebind leaked descriptors: %d in use", heap.inUse())
	}

	if err := table.Rebind(composite, nil); !errors.Is(err, common.ErrValidation) {
		t.Errorf("nil resolver: err = %v", err)
	}
}

func TestRebindFreesRemovedSlots(t *testing.T) {
	heap := newTestHeap(8)
	rs, _ := pipeline.CreateRootSignature("a", []pipeline.Slot{
		pipeline.Table("t0", shader.ResourceClassSRV, 3),
		pipeline.CBV("c"),
	}, false)
	next, _ := pipeline.CreateRootSignature("b", []pipeline.Slot{pipeline.CBV("c")}, false)

	table, _ := NewDescriptorTable(rs, heap)
	bindAll(t, table)
	if heap.inUse() != 3 {
		t.Fatalf("heap slots in use = %d, want 3", heap.inUse())
	}
	if err := table.Rebind(next, nil); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if heap.inUse() != 0 {
		t.Errorf("removed table slot kept %d descriptors", heap.inUse())
	}
}
