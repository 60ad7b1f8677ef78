package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// hostLayouts holds the built-in types a shader record, constant buffer or UAV may contain.
// bool is absent because it is not host-shareable.
var hostLayouts = func() map[string]hostLayout {
	out := map[string]hostLayout{
		"mat4x4<f32>": {64, 16},
		"mat4x4f":     {64, 16},
		"atomic<u32>": {4, 4},
		"atomic<i32>": {4, 4},
	}
	for _, scalar := range []string{"f32", "i32", "u32"} {
		out[scalar] = hostLayout{4, 4}
		for n, l := range map[int]hostLayout{2: {8, 8}, 3: {12, 16}, 4: {16, 16}} {
			out[fmt.Sprintf("vec%d<%s>", n, scalar)] = l
			out[fmt.Sprintf("vec%d%c", n, scalar[0])] = l
		}
	}
	return out
}()

// classBufferTypes is the wgpu buffer binding each resource class is bound as.
var classBufferTypes = map[ResourceClass]wgpu.BufferBindingType{
	ResourceClassCBV: wgpu.BufferBindingTypeUniform,
	ResourceClassSRV: wgpu.BufferBindingTypeReadOnlyStorage,
	ResourceClassUAV: wgpu.BufferBindingTypeStorage,
}

func alignUp(value, alignment uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

func (l hostLayout) stride() uint64 {
	return alignUp(l.size, l.align)
}

// arrayType splits array<T, N> or array<T>. count is 0 for a runtime-sized array.
func arrayType(typeName string) (elem string, count uint64, ok bool) {
	inner, found := strings.CutPrefix(typeName, "array<")
	if !found || !strings.HasSuffix(inner, ">") {
		return "", 0, false
	}
	inner = inner[:len(inner)-1]
	elem, n, sized := strings.Cut(inner, ",")
	elem = strings.TrimSpace(elem)
	if !sized {
		return elem, 0, true
	}
	count, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
	if err != nil || count == 0 {
		return "", 0, false
	}
	return elem, count, true
}

// layoutOf resolves a type against the built-ins and the structs resolved so far. A
// runtime-sized array resolves to one element, the smallest buffer a UAV or SRV can bind.
func layoutOf(typeName string, structs map[string]hostLayout) (hostLayout, bool) {
	if l, ok := hostLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := structs[typeName]; ok {
		return l, true
	}
	elem, count, ok := arrayType(typeName)
	if !ok {
		return hostLayout{}, false
	}
	el, ok := layoutOf(elem, structs)
	if !ok {
		return hostLayout{}, false
	}
	return hostLayout{el.stride() * max(count, 1), el.align}, true
}

// structLayout places each field at its aligned offset. A trailing runtime-sized array counts
// one element.
func structLayout(ps parsedStruct, structs map[string]hostLayout) (hostLayout, bool) {
	var offset uint64
	align := uint64(1)
	for _, f := range ps.fields {
		if f.isBuiltin {
			continue
		}
		fl, ok := layoutOf(f.typeName, structs)
		if !ok {
			return hostLayout{}, false
		}
		offset = alignUp(offset, fl.align) + fl.size
		align = max(align, fl.align)
	}
	return hostLayout{alignUp(offset, align), align}, true
}

// structLayouts resolves every struct, repeating until no struct that nests a later one is
// left unresolved.
func structLayouts(structs []parsedStruct) map[string]hostLayout {
	resolved := make(map[string]hostLayout, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		next := pending[:0]
		for _, ps := range pending {
			if l, ok := structLayout(ps, resolved); ok {
				resolved[ps.name] = l
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(pending) {
			break
		}
		pending = next
	}
	return resolved
}

// bindingClass maps the address space of a var<...> declaration onto its resource class.
// Textures, samplers and acceleration structures have no address space and are rejected:
// every raytracing binding is a buffer.
func bindingClass(addressSpace string) (ResourceClass, error) {
	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		return ResourceClassCBV, nil
	case "storage":
		switch strings.TrimSpace(access) {
		case "", "read":
			return ResourceClassSRV, nil
		case "read_write":
			return ResourceClassUAV, nil
		}
	case "":
		return 0, fmt.Errorf("not a buffer binding")
	}
	return 0, fmt.Errorf("address space %q is neither a constant buffer, SRV nor UAV", addressSpace)
}

// bindingEntry builds the layout entry of one buffer binding. Constant buffers must have a
// known size; SRVs and UAVs of runtime-sized arrays bind at least one element.
func bindingEntry(b parsedBinding, visibility wgpu.ShaderStage, structs map[string]hostLayout) (wgpu.BindGroupLayoutEntry, error) {
	class, err := bindingClass(b.addressSpace)
	if err != nil {
		return wgpu.BindGroupLayoutEntry{}, fmt.Errorf("group %d binding %d (%s): %w", b.group, b.binding, b.name, err)
	}
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    uint32(b.binding),
		Visibility: visibility,
	}
	entry.Buffer.Type = classBufferTypes[class]

	l, known := layoutOf(b.typeName, structs)
	if class == ResourceClassCBV {
		if _, _, isArray := arrayType(b.typeName); isArray || !known {
			return wgpu.BindGroupLayoutEntry{}, fmt.Errorf("group %d binding %d (%s): constant buffer type %s has no fixed size", b.group, b.binding, b.name, b.typeName)
		}
	}
	if known {
		entry.Buffer.MinBindingSize = l.size
	}
	return entry, nil
}

// stripComments removes // comments and nested /* */ comments, keeping line breaks.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); i++ {
		pair := ""
		if i+1 < len(source) {
			pair = source[i : i+2]
		}
		switch {
		case pair == "/*":
			depth++
			i++
		case pair == "*/" && depth > 0:
			depth--
			i++
		case depth > 0:
		case pair == "//":
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(source[i])
		}
	}
	return sb.String()
}

// splitFields splits a struct body at commas outside <...>, so array<Node, 32> stays whole.
func splitFields(body string) []string {
	var fields []string
	depth, start := 0, 0
	for i, c := range body {
		switch c {
		case '<':
			depth++
		case '>':
			depth = max(depth-1, 0)
		case ',':
			if depth == 0 {
				fields = append(fields, body[start:i])
				start = i + 1
			}
		}
	}
	return append(fields, body[start:])
}
