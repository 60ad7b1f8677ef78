package pipeline

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

// SlotKind is the kind of a root signature slot.
type SlotKind int

const (
	// SlotKindConstants is a block of 32-bit root constants placed inline in the arguments.
	SlotKindConstants SlotKind = iota

	// SlotKindCBV is a root constant buffer view.
	SlotKindCBV

	// SlotKindSRV is a root shader resource view.
	SlotKindSRV

	// SlotKindUAV is a root unordered access view.
	SlotKindUAV

	// SlotKindDescriptorTable is a range of descriptors in the descriptor heap.
	SlotKindDescriptorTable
)

func (k SlotKind) String() string {
	switch k {
	case SlotKindConstants:
		return "constants"
	case SlotKindCBV:
		return "cbv"
	case SlotKindSRV:
		return "srv"
	case SlotKindUAV:
		return "uav"
	case SlotKindDescriptorTable:
		return "table"
	default:
		return fmt.Sprintf("slot(%d)", int(k))
	}
}

// Argument sizes in bytes.
const (
	rootConstantSize   = 4
	rootDescriptorSize = 8
)

// Slot is one entry of a root signature.
type Slot struct {
	Name string
	Kind SlotKind

	// Count is the number of 32-bit values of a constants slot, or the descriptor count of a table.
	Count uint32

	// RangeClass is the view class of a descriptor table's range. Ignored for other kinds.
	RangeClass shader.ResourceClass
}

// Constants declares a slot of n inline 32-bit constants.
func Constants(name string, n uint32) Slot {
	return Slot{Name: name, Kind: SlotKindConstants, Count: n}
}

// CBV declares a root constant buffer view.
func CBV(name string) Slot {
	return Slot{Name: name, Kind: SlotKindCBV}
}

// SRV declares a root shader resource view.
func SRV(name string) Slot {
	return Slot{Name: name, Kind: SlotKindSRV}
}

// UAV declares a root unordered access view.
func UAV(name string) Slot {
	return Slot{Name: name, Kind: SlotKindUAV}
}

// Table declares a descriptor table holding count descriptors of one class.
func Table(name string, class shader.ResourceClass, count uint32) Slot {
	return Slot{Name: name, Kind: SlotKindDescriptorTable, Count: count, RangeClass: class}
}

// Class returns the view class the slot exposes to shaders.
func (s Slot) Class() shader.ResourceClass {
	switch s.Kind {
	case SlotKindSRV:
		return shader.ResourceClassSRV
	case SlotKindUAV:
		return shader.ResourceClassUAV
	case SlotKindDescriptorTable:
		return s.RangeClass
	default:
		return shader.ResourceClassCBV
	}
}

// size returns the number of argument bytes the slot occupies and its alignment.
func (s Slot) size() (uint32, uint32) {
	if s.Kind == SlotKindConstants {
		return s.Count * rootConstantSize, rootConstantSize
	}
	return rootDescriptorSize, rootDescriptorSize
}

// RootSignature is an ordered list of slots together with the derived argument layout and
// checksum. Global root signatures describe the resources shared by a whole dispatch; local
// root signatures describe the arguments stored after the identifier of a shader record.
type RootSignature struct {
	name     string
	slots    []Slot
	local    bool
	offsets  []uint32
	size     uint32
	checksum uint64
	handle   common.ResourceHandle
}

// CreateRootSignature validates slots and computes the argument layout. Root constants are
// packed at 4 byte alignment and descriptors at 8 byte alignment, in declaration order. The
// checksum is shader.LayoutChecksum over the slot names and classes, so it matches the layout
// tag of every library authored against the same slot list.
//
// Parameters:
//   - name: a name used in logs and errors
//   - slots: the ordered slots
//   - local: true for a local (shader record) root signature
//
// Returns:
//   - *RootSignature: the root signature
//   - error: a ValidationError for an empty or duplicate slot name or an empty slot
func CreateRootSignature(name string, slots []Slot, local bool) (*RootSignature, error) {
	rs := &RootSignature{
		name:    name,
		slots:   append([]Slot(nil), slots...),
		local:   local,
		offsets: make([]uint32, len(slots)),
	}

	seen := make(map[string]bool, len(slots))
	var offset uint32
	for i, s := range slots {
		if s.Name == "" {
			return nil, common.NewValidationError("root_signature", "%s: slot %d has no name", name, i)
		}
		if seen[s.Name] {
			return nil, common.NewValidationError("root_signature", "%s: duplicate slot %q", name, s.Name)
		}
		seen[s.Name] = true
		if (s.Kind == SlotKindConstants || s.Kind == SlotKindDescriptorTable) && s.Count == 0 {
			return nil, common.NewValidationError("root_signature", "%s: %s slot %q has a count of zero", name, s.Kind, s.Name)
		}

		size, align := s.size()
		offset = uint32(common.AlignUp(uint64(offset), uint64(align)))
		rs.offsets[i] = offset
		offset += size
	}
	rs.size = offset
	rs.checksum = shader.LayoutChecksum(rs.Layout())
	return rs, nil
}

// Name returns the root signature name.
func (rs *RootSignature) Name() string {
	return rs.name
}

// Slots returns the ordered slots.
func (rs *RootSignature) Slots() []Slot {
	return rs.slots
}

// Local reports whether this is a local root signature.
func (rs *RootSignature) Local() bool {
	return rs.local
}

// ArgumentSize returns the total argument bytes. For a local root signature this is the
// exact number of local argument bytes every shader record using it carries.
func (rs *RootSignature) ArgumentSize() uint32 {
	return rs.size
}

// Offset returns the argument offset of a slot.
func (rs *RootSignature) Offset(name string) (uint32, bool) {
	for i, s := range rs.slots {
		if s.Name == name {
			return rs.offsets[i], true
		}
	}
	return 0, false
}

// Slot looks up a slot by name.
func (rs *RootSignature) Slot(name string) (Slot, bool) {
	for _, s := range rs.slots {
		if s.Name == name {
			return s, true
		}
	}
	return Slot{}, false
}

// Layout returns the slot names and classes in order.
func (rs *RootSignature) Layout() []shader.LayoutEntry {
	out := make([]shader.LayoutEntry, len(rs.slots))
	for i, s := range rs.slots {
		out[i] = shader.LayoutEntry{Name: s.Name, Class: s.Class()}
	}
	return out
}

// Checksum returns the 64-bit layout checksum.
func (rs *RootSignature) Checksum() uint64 {
	return rs.checksum
}

// Handle returns the device object created for this root signature, if any.
func (rs *RootSignature) Handle() common.ResourceHandle {
	return rs.handle
}

// SetHandle records the device object created for this root signature.
func (rs *RootSignature) SetHandle(h common.ResourceHandle) {
	rs.handle = h
}
