// annotations.go defines the annotation types, argument constants, and parser for the
// Oxy WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed
// with @oxy: that drive struct and snippet injection, binding declaration, export
// registration and local root layout declaration. The parsed results are stored as
// Annotation values and consumed by the PreProcessor and Library.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
// Each type corresponds to a distinct pre-processor action and produces different
// fields on the resulting Annotation struct.
type AnnotationType string

const (
	// annotationTypeInclude injects the WGSL source of a registered struct definition or
	// shared snippet at the annotation site. Each key is injected at most once per library;
	// annotations inside injected snippets are processed as if written in place.
	//
	// Syntax: //@oxy:include <struct_type|snippet>
	//
	// Example: //@oxy:include scene_constants
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and appends an Annotation to the PreProcessor's declarations list. Group 0 bindings
	// form the library's global layout; their order and address spaces produce the layout tag.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 0 2 storage_uniform scene_constant scene_constants
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeExport registers a function as a named shader export of the library.
	// Exports of the same kind are numbered in declaration order; the number is what a
	// shader identifier carries.
	//
	// Syntax: //@oxy:export <kind> <function>
	//
	// Example: //@oxy:export intersection intersect_csg
	AnnotationTypeExport AnnotationType = "export"

	// AnnotationTypeLocal declares the local root layout the library's hit groups read from
	// their shader records, for one geometry type. Each slot is written name:class.
	//
	// Syntax: //@oxy:local <geometry> <slot:class>...
	//
	// Example: //@oxy:local aabb material_constant:cbv geometry_index:cbv
	AnnotationTypeLocal AnnotationType = "local"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
// It carries the annotation type, its arguments, the source line number, and optional
// group/binding indices. Annotations other than include are appended to the
// PreProcessor's declarations list.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include: [0] = struct type or snippet key
	//   - group:   [0] = address space, [1] = var name, [2] = WGSL type
	//   - export:  [0] = export kind, [1] = function name
	//   - local:   [0] = geometry type, [1:] = slot:class pairs
	Args []AnnotationArg

	// Line is the 1-based line number in the source where this annotation was found.
	// Annotations from injected snippets carry the line of the snippet.
	Line int

	// Group is the @group index for group annotations. Nil otherwise.
	Group *int

	// Binding is the @binding index for group annotations. Nil otherwise.
	Binding *int
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// ── Struct type arguments ──────────────────────────────────────────────────────
// These identify registered WGSL struct types. They can appear in @oxy:include annotations
// (to inject the struct source) and in @oxy:group annotations (as the type field, optionally
// wrapped in array<>). Each maps to a Go GPU type with an embedded .wgsl asset file.
const (
	// AnnotationArgSceneConstants identifies the SceneConstants struct.
	// Source: engine/scene/assets/scene_constants.wgsl
	AnnotationArgSceneConstants AnnotationArg = "scene_constants"

	// AnnotationArgPrimitiveMaterial identifies the PrimitiveMaterial struct.
	// Source: engine/geometry/assets/primitive_material.wgsl
	AnnotationArgPrimitiveMaterial AnnotationArg = "primitive_material"

	// AnnotationArgPrimitiveAttributes identifies the PrimitiveAttributes struct.
	// Source: engine/geometry/assets/primitive_attributes.wgsl
	AnnotationArgPrimitiveAttributes AnnotationArg = "primitive_attributes"

	// AnnotationArgCSGNode identifies the CSGNode struct.
	// Source: engine/csg/assets/csg_node.wgsl
	AnnotationArgCSGNode AnnotationArg = "csg_node"

	// AnnotationArgAccelNode identifies the flattened acceleration structure node.
	// Source: engine/renderer/shader/assets/include/accel_node.wgsl
	AnnotationArgAccelNode AnnotationArg = "accel_node"

	// AnnotationArgPhoton identifies the Photon struct of the photon buffer.
	// Source: engine/renderer/shader/assets/include/photon.wgsl
	AnnotationArgPhoton AnnotationArg = "photon"

	// AnnotationArgLightVertex identifies the LightVertex struct of the light path buffer.
	// Source: engine/renderer/shader/assets/include/light_vertex.wgsl
	AnnotationArgLightVertex AnnotationArg = "light_vertex"

	// AnnotationArgCompositeParams identifies the CompositeParams struct.
	// Source: engine/renderer/shader/assets/include/composite_params.wgsl
	AnnotationArgCompositeParams AnnotationArg = "composite_params"
)

// ── Snippet arguments ──────────────────────────────────────────────────────────
// These identify shared WGSL function libraries. They are only valid in @oxy:include.
const (
	// annotationArgDispatch injects the shader record bindings (group 1) and record decoding.
	annotationArgDispatch AnnotationArg = "dispatch"

	// annotationArgTracing injects the software traversal and the intersection exports.
	annotationArgTracing AnnotationArg = "tracing"

	// annotationArgShading injects the camera ray, random number and lighting helpers.
	annotationArgShading AnnotationArg = "shading"

	// annotationArgHitShaders injects the shared miss and closest-hit exports.
	annotationArgHitShaders AnnotationArg = "hit_shaders"
)

// ── Address space arguments ────────────────────────────────────────────────────
// These specify the WGSL variable address space in @oxy:group annotations.
// They map to WGSL var<> declarations and to the resource class of the binding.
const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// validStructTypes lists all AnnotationArg values that are accepted as struct type
// arguments in @oxy:include and @oxy:group annotations.
var validStructTypes = []AnnotationArg{
	AnnotationArgSceneConstants,
	AnnotationArgPrimitiveMaterial,
	AnnotationArgPrimitiveAttributes,
	AnnotationArgCSGNode,
	AnnotationArgAccelNode,
	AnnotationArgPhoton,
	AnnotationArgLightVertex,
	AnnotationArgCompositeParams,
}

// validSnippets lists the snippet keys accepted by @oxy:include.
var validSnippets = []AnnotationArg{
	annotationArgDispatch,
	annotationArgTracing,
	annotationArgShading,
	annotationArgHitShaders,
}

// validRawTypes lists the plain WGSL element types a group annotation may bind without
// a registered struct.
var validRawTypes = []AnnotationArg{
	"f32",
	"u32",
	"vec4<f32>",
	"vec4<u32>",
	"atomic<u32>",
}

// validAddressSpaces lists all AnnotationArg values that are accepted as address
// space arguments in @oxy:group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validGeometries lists the geometry arguments of @oxy:local.
var validGeometries = []AnnotationArg{"triangle", "aabb"}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Returns
// a populated Annotation for valid annotations, or an error describing the problem for
// malformed annotations with correct prefix but invalid syntax or unknown arguments.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		key := AnnotationArg(args[1])
		if !slices.Contains(validStructTypes, key) && !slices.Contains(validSnippets, key) {
			return nil, fmt.Errorf("line %d: unknown struct type or snippet %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{key},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, var name, type)", lineNum)
		}
		groupInt, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid group number %q in @oxy group annotation: %v", lineNum, args[1], err)
		}
		bindingInt, err := strconv.Atoi(args[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binding number %q in @oxy group annotation: %v", lineNum, args[2], err)
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		typeArg := args[5]
		if inner, ok := strings.CutPrefix(typeArg, "array<"); ok {
			typeArg = strings.TrimSuffix(inner, ">")
		}
		if !validBindingType(AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown type %q in @oxy group annotation", lineNum, args[5])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &groupInt,
			Binding: &bindingInt,
		}, nil
	case string(AnnotationTypeExport):
		if len(args) != 3 {
			return nil, fmt.Errorf("line %d: @oxy export annotation requires exactly two arguments (kind, function)", lineNum)
		}
		if _, err := ParseExportKind(args[1]); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		return &Annotation{
			Type: AnnotationTypeExport,
			Args: []AnnotationArg{AnnotationArg(args[1]), AnnotationArg(args[2])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeLocal):
		if len(args) < 3 {
			return nil, fmt.Errorf("line %d: @oxy local annotation requires a geometry and at least one slot", lineNum)
		}
		if !slices.Contains(validGeometries, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown geometry %q in @oxy local annotation", lineNum, args[1])
		}
		localArgs := []AnnotationArg{AnnotationArg(args[1])}
		for _, slot := range args[2:] {
			name, class, ok := strings.Cut(slot, ":")
			if !ok || name == "" {
				return nil, fmt.Errorf("line %d: malformed slot %q in @oxy local annotation, want name:class", lineNum, slot)
			}
			if _, err := ParseResourceClass(class); err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNum, err)
			}
			localArgs = append(localArgs, AnnotationArg(slot))
		}
		return &Annotation{
			Type: AnnotationTypeLocal,
			Args: localArgs,
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func validBindingType(t AnnotationArg) bool {
	return slices.Contains(validStructTypes, t) || slices.Contains(validRawTypes, t)
}
