package renderer

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

// DefaultDescriptorHeapCapacity is the descriptor heap size used when WithDescriptorHeapCapacity is not given.
const DefaultDescriptorHeapCapacity = 64

// descriptorHeap is the implementation of the DescriptorHeap interface.
type descriptorHeap struct {
	mu   *sync.Mutex
	used []bool
	free []uint32
}

// DescriptorHeap is the fixed-capacity shader-visible descriptor heap. Allocation never wraps
// around: a full heap is a ResourceExhaustionError.
type DescriptorHeap interface {
	// Allocate reserves a free descriptor slot. A fresh heap hands out slots in ascending order.
	//
	// Returns:
	//   - uint32: the slot index
	//   - error: a *common.ResourceExhaustionError when every slot is in use
	Allocate() (uint32, error)

	// Free returns a slot to the heap. Freeing a slot that is not allocated is a no-op.
	//
	// Parameters:
	//   - index: the slot index
	Free(index uint32)

	// InUse returns the number of allocated slots.
	//
	// Returns:
	//   - int: the number of allocated slots
	InUse() int

	// Capacity returns the number of slots.
	//
	// Returns:
	//   - int: the heap capacity
	Capacity() int

	// Reset frees every slot.
	Reset()
}

var _ DescriptorHeap = &descriptorHeap{}

func newDescriptorHeap(capacity int) *descriptorHeap {
	h := &descriptorHeap{mu: &sync.Mutex{}, used: make([]bool, capacity)}
	h.Reset()
	return h
}

func (h *descriptorHeap) Allocate() (uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.free) == 0 {
		return 0, &common.ResourceExhaustionError{Resource: "descriptor heap", Capacity: len(h.used)}
	}
	last := len(h.free) - 1
	idx := h.free[last]
	h.free = h.free[:last]
	h.used[idx] = true
	return idx, nil
}

func (h *descriptorHeap) Free(index uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if int(index) >= len(h.used) || !h.used[index] {
		return
	}
	h.used[index] = false
	h.free = append(h.free, index)
}

func (h *descriptorHeap) InUse() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.used) - len(h.free)
}

func (h *descriptorHeap) Capacity() int {
	return len(h.used)
}

func (h *descriptorHeap) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	// the free list is a stack, lowest index on top
	h.free = h.free[:0]
	for i := len(h.used) - 1; i >= 0; i-- {
		h.used[i] = false
		h.free = append(h.free, uint32(i))
	}
}
