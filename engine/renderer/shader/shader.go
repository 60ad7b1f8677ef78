package shader

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// DispatchGroup is the bind group holding the shader records and dispatch parameters of a
// ray dispatch. It is bound by the renderer and is not part of any root signature.
const DispatchGroup = 1

// library is the implementation of the Library interface.
// It holds all of the persistent shader data required for state-object creation.
type library struct {
	key                        string
	source                     string
	exports                    []Export
	globalLayout               []LayoutEntry
	localLayouts               map[LayoutScope][]LayoutEntry
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	workGroupSize              [3]uint32
	module                     *wgpu.ShaderModuleDescriptor
	binary                     []uint32

	pp PreProcessor
}

// Library is a pre-processed WGSL shader library: the shader binary set of one or more
// pipeline variants. It exposes the named exports the state object links, the global and
// local layouts the library was authored against and the layout tags derived from them.
type Library interface {
	// Key retrieves the unique identifier for this library, used for caching and lookups.
	//
	// Returns:
	//   - string: the library's unique key
	Key() string

	// Source retrieves the pre-processed WGSL source code.
	//
	// Returns:
	//   - string: the WGSL source code of the library
	Source() string

	// Exports returns every export in declaration order.
	//
	// Returns:
	//   - []Export: the exports
	Exports() []Export

	// Export looks up an export by function name.
	//
	// Parameters:
	//   - name: the function name
	//
	// Returns:
	//   - Export: the export
	//   - bool: false if the library declares no such export
	Export(name string) (Export, bool)

	// Layout returns the slots of one of the library's layouts. The global layout is the
	// group 0 bindings in binding order; local layouts come from @oxy:local declarations.
	//
	// Parameters:
	//   - scope: which layout
	//
	// Returns:
	//   - []LayoutEntry: the slots, nil when the library declares no such layout
	Layout(scope LayoutScope) []LayoutEntry

	// LayoutTag returns the checksum of a layout. A root signature is compatible with this
	// library exactly when its checksum equals the tag.
	//
	// Parameters:
	//   - scope: which layout
	//
	// Returns:
	//   - uint64: the tag
	//   - bool: false when the library declares no such layout
	LayoutTag(scope LayoutScope) (uint64, bool)

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors.
	// These are the CPU-side descriptors extracted from the shader source which can be
	// used by the renderer to create the actual wgpu.BindGroupLayout GPU objects.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the variable name for a given group and binding index, if it exists.
	//
	// Parameters:
	//   - group: the bind group index
	//   - binding: the binding index within the group
	//
	// Returns:
	//   - string: the variable name, or an empty string if not found
	BindGroupVarName(group, binding int) string

	// WorkgroupSize returns the workgroup size of the library's compute entry points.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// Module returns the descriptor a device creates the library's shader module from: the
	// SPIR-V binary once Compile has succeeded, the processed WGSL source before that.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor
	Module() *wgpu.ShaderModuleDescriptor

	// SourceModule returns the descriptor carrying the processed WGSL source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the WGSL shader module descriptor
	SourceModule() *wgpu.ShaderModuleDescriptor

	// Compile translates the processed source to a SPIR-V binary with the given compiler
	// and keeps the result. Compiling again replaces the binary.
	//
	// Parameters:
	//   - compiler: the WGSL compiler
	//
	// Returns:
	//   - error: the compiler's error, wrapped with the library key
	Compile(compiler Compiler) error

	// Binary returns the SPIR-V words produced by the last successful Compile.
	//
	// Returns:
	//   - []uint32: the binary, nil before Compile
	Binary() []uint32

	// Declarations returns the annotations collected while pre-processing the source.
	//
	// Returns:
	//   - []Annotation: group, export and local annotations in source order
	Declarations() []Annotation
}

var _ Library = &library{}

// NewLibrary reads WGSL source from disk and builds a Library from it.
//
// Parameters:
//   - key: a unique identifier for the library
//   - sourcePath: the file path to read WGSL source from
//
// Returns:
//   - Library: the library
//   - error: an error if the file cannot be read or the source is invalid
func NewLibrary(key, sourcePath string) (Library, error) {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("shader: failed to read source file %q: %w", sourcePath, err)
	}
	return NewLibraryFromSource(key, string(data))
}

// NewLibraryFromSource pre-processes WGSL source and extracts its exports and layouts.
// Every export must name a declared function and every entry-point kind must be a
// @compute function. Group 0 bindings must be numbered 0..n-1 without gaps.
//
// Parameters:
//   - key: a unique identifier for the library
//   - source: the raw WGSL source with @oxy annotations
//
// Returns:
//   - Library: the library
//   - error: a ValidationError describing the first problem found
func NewLibraryFromSource(key, source string) (Library, error) {
	l := &library{
		key:          key,
		localLayouts: make(map[LayoutScope][]LayoutEntry),
		pp:           NewPreProcessor(),
	}

	var err error
	l.source, err = l.pp.Process(source)
	if err != nil {
		return nil, common.NewValidationError("shader", "library %s: %v", key, err)
	}
	l.module = &wgpu.ShaderModuleDescriptor{
		Label: key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: l.source,
		},
	}
	l.workGroupSize = parseWorkgroupSize(l.source)
	l.bindGroupLayoutDescriptors, l.bindingVarNames, err = parseBindGroupLayouts(l.source, wgpu.ShaderStageCompute)
	if err != nil {
		return nil, common.NewValidationError("shader", "library %s: %v", key, err)
	}

	if err := l.collectExports(); err != nil {
		return nil, err
	}
	if err := l.collectLayouts(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *library) collectExports() error {
	functions := parseFunctionNames(l.source)
	entryPoints := parseComputeEntryPoints(l.source)
	ordinals := make(map[ExportKind]uint32)

	for _, a := range l.pp.Declarations() {
		if a.Type != AnnotationTypeExport {
			continue
		}
		kind, _ := ParseExportKind(string(a.Args[0]))
		name := string(a.Args[1])
		if _, dup := l.Export(name); dup {
			return common.NewValidationError("shader", "library %s: export %q declared twice", l.key, name)
		}
		if !functions[name] {
			return common.NewValidationError("shader", "library %s: export %q names no function", l.key, name)
		}
		if kind.EntryPoint() && !slices.Contains(entryPoints, name) {
			return common.NewValidationError("shader", "library %s: %s export %q is not a @compute entry point", l.key, kind, name)
		}
		l.exports = append(l.exports, Export{Kind: kind, Name: name, Ordinal: ordinals[kind]})
		ordinals[kind]++
	}
	return nil
}

func (l *library) collectLayouts() error {
	for _, a := range l.pp.Declarations() {
		switch a.Type {
		case AnnotationTypeBindingGroup:
			if *a.Group != 0 {
				continue
			}
			if *a.Binding != len(l.globalLayout) {
				return common.NewValidationError("shader", "library %s: global binding %s is @binding(%d), want %d", l.key, a.Args[1], *a.Binding, len(l.globalLayout))
			}
			l.globalLayout = append(l.globalLayout, LayoutEntry{Name: string(a.Args[1]), Class: addressSpaceClass(a.Args[0])})
		case AnnotationTypeLocal:
			scope := LayoutScopeLocalTriangle
			if a.Args[0] == "aabb" {
				scope = LayoutScopeLocalAABB
			}
			if _, dup := l.localLayouts[scope]; dup {
				return common.NewValidationError("shader", "library %s: %s layout declared twice", l.key, scope)
			}
			entries := make([]LayoutEntry, 0, len(a.Args)-1)
			for _, slot := range a.Args[1:] {
				name, class, _ := strings.Cut(string(slot), ":")
				rc, _ := ParseResourceClass(class)
				entries = append(entries, LayoutEntry{Name: name, Class: rc})
			}
			l.localLayouts[scope] = entries
		}
	}
	return nil
}

func (l *library) Key() string {
	return l.key
}

func (l *library) Source() string {
	return l.source
}

func (l *library) Exports() []Export {
	return l.exports
}

func (l *library) Export(name string) (Export, bool) {
	for _, e := range l.exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

func (l *library) Layout(scope LayoutScope) []LayoutEntry {
	if scope == LayoutScopeGlobal {
		return l.globalLayout
	}
	return l.localLayouts[scope]
}

func (l *library) LayoutTag(scope LayoutScope) (uint64, bool) {
	entries := l.Layout(scope)
	if entries == nil {
		return 0, false
	}
	return LayoutChecksum(entries), true
}

func (l *library) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return l.bindGroupLayoutDescriptors
}

func (l *library) BindGroupVarName(group, binding int) string {
	if l.bindingVarNames[group] == nil {
		return ""
	}
	return l.bindingVarNames[group][binding]
}

func (l *library) WorkgroupSize() [3]uint32 {
	return l.workGroupSize
}

func (l *library) Module() *wgpu.ShaderModuleDescriptor {
	if len(l.binary) == 0 {
		return l.module
	}
	return &wgpu.ShaderModuleDescriptor{
		Label:           l.key,
		SPIRVDescriptor: &wgpu.ShaderModuleSPIRVDescriptor{Code: SPIRVBytes(l.binary)},
	}
}

func (l *library) SourceModule() *wgpu.ShaderModuleDescriptor {
	return l.module
}

func (l *library) Compile(compiler Compiler) error {
	binary, err := compiler(l.source)
	if err != nil {
		return fmt.Errorf("shader: failed to compile library %s: %w", l.key, err)
	}
	l.binary = binary
	return nil
}

func (l *library) Binary() []uint32 {
	return l.binary
}

func (l *library) Declarations() []Annotation {
	return l.pp.Declarations()
}
