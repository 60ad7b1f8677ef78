// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader
// source code for @oxy: annotations, replaces them with generated WGSL declarations
// or injected struct and snippet source, and collects a declarations list that the
// Library turns into its exports, layouts and layout tags.
//
// The pre-processor maintains two registries:
//   - structRegistry: maps AnnotationArg keys to embedded WGSL sources and their
//     resolved type names. Used by @oxy:include (to inject the source) and
//     @oxy:group (to resolve the WGSL type name in the generated declaration).
//     Snippets have no type name.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-rt/engine/csg"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
)

var (
	//go:embed assets/include/accel_node.wgsl
	accelNodeSource string

	//go:embed assets/include/photon.wgsl
	photonSource string

	//go:embed assets/include/light_vertex.wgsl
	lightVertexSource string

	//go:embed assets/include/composite_params.wgsl
	compositeParamsSource string

	//go:embed assets/include/dispatch.wgsl
	dispatchSnippet string

	//go:embed assets/include/tracing.wgsl
	tracingSnippet string

	//go:embed assets/include/shading.wgsl
	shadingSnippet string

	//go:embed assets/include/hit_shaders.wgsl
	hitShadersSnippet string
)

// maxIncludeDepth bounds snippet nesting.
const maxIncludeDepth = 8

// registryEntry pairs a WGSL source string (embedded from a .wgsl asset file)
// with the resolved WGSL type name used in generated @group/@binding declarations.
type registryEntry struct {
	// Source is the raw WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations. Empty for snippets.
	Type string
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	structRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates every non-include annotation during a Process call,
	// including the ones found in injected snippets.
	declarations []Annotation
	included     map[AnnotationArg]bool
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with generated declarations or injected sources while collecting
// a declarations list for the Library.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and pre-processes it by replacing
	// @oxy: annotations with their corresponding WGSL output. @oxy:include annotations
	// are replaced with the registered source, once per key, and the injected text is
	// processed recursively. @oxy:group annotations are replaced with generated
	// @group/@binding variable declarations. @oxy:export and @oxy:local annotations
	// produce no WGSL output but are recorded in the declarations list.
	//
	// The declarations list is reset at the start of each call and can be retrieved
	// via Declarations() after Process returns.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Declarations returns the group, export and local annotations collected during the
	// most recent call to Process, in source order with injected snippets expanded in place.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with all registered struct types, snippets
// and address space mappings pre-populated.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgSceneConstants:      {Source: scene.GPUSceneConstantsSource, Type: "SceneConstants"},
			AnnotationArgPrimitiveMaterial:   {Source: geometry.GPUPrimitiveMaterialSource, Type: "PrimitiveMaterial"},
			AnnotationArgPrimitiveAttributes: {Source: geometry.GPUPrimitiveAttributesSource, Type: "PrimitiveAttributes"},
			AnnotationArgCSGNode:             {Source: csg.GPUCSGNodeSource, Type: "CSGNode"},
			AnnotationArgAccelNode:           {Source: accelNodeSource, Type: "AccelNode"},
			AnnotationArgPhoton:              {Source: photonSource, Type: "Photon"},
			AnnotationArgLightVertex:         {Source: lightVertexSource, Type: "LightVertex"},
			AnnotationArgCompositeParams:     {Source: compositeParamsSource, Type: "CompositeParams"},
			annotationArgDispatch:            {Source: dispatchSnippet},
			annotationArgTracing:             {Source: tracingSnippet},
			annotationArgShading:             {Source: shadingSnippet},
			annotationArgHitShaders:          {Source: hitShadersSnippet},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	p.included = make(map[AnnotationArg]bool)

	out, err := p.process(source, "", 0)
	if err != nil {
		return "", err
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) process(source, origin string, depth int) ([]string, error) {
	if depth > maxIncludeDepth {
		return nil, fmt.Errorf("%s: includes nested deeper than %d", origin, maxIncludeDepth)
	}

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	// iterate through each line of the source and attempt to parse it as an annotation, if it's an annotation replace it with the corresponding source from the registry, otherwise keep the line as is.
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			if origin != "" {
				return nil, fmt.Errorf("%s: %w", origin, err)
			}
			return nil, err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case annotationTypeInclude:
			key := a.Args[0]
			if p.included[key] {
				continue
			}
			entry, ok := p.structRegistry[key]
			if !ok {
				return nil, fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, key)
			}
			p.included[key] = true
			injected, err := p.process(entry.Source, string(key), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, injected...)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, p.resolveType(a.Args[2])))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeExport, AnnotationTypeLocal:
			p.declarations = append(p.declarations, *a)
		default:
			return nil, fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return out, nil
}

// resolveType maps a group annotation type argument to its WGSL spelling. Registered
// struct keys resolve to their type name, raw WGSL types pass through.
func (p *preProcessor) resolveType(arg AnnotationArg) string {
	if inner, ok := strings.CutPrefix(string(arg), "array<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		return fmt.Sprintf("array<%s>", p.resolveType(AnnotationArg(inner)))
	}
	if entry, ok := p.structRegistry[arg]; ok && entry.Type != "" {
		return entry.Type
	}
	return string(arg)
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}
