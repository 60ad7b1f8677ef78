package pipeline

import (
	"encoding/binary"
	"hash/fnv"
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderIdentifierSize is the byte size of a shader identifier.
const ShaderIdentifierSize = 32

// noExport fills identifier words whose export is absent.
const noExport uint32 = 0xffffffff

// pipeline is the implementation of the Pipeline interface.
// It holds the validated state-object description of one variant and the device objects
// the backend created for it.
type pipeline struct {
	mu *sync.Mutex

	config  VariantConfig
	library shader.Library

	globalRootSignature *RootSignature
	localRootSignatures [common.GeometryTypeCount]*RootSignature
	hitGroups           map[string]HitGroup

	maxRecursionDepth uint32
	payloadSize       uint32
	blend             BlendPolicy
	label             string

	// device objects, set by the renderer backend on registration
	stateObject      common.ResourceHandle
	computePipelines map[string]*wgpu.ComputePipeline
}

// Pipeline is the state object of one variant: a shader library linked against its global and
// local root signatures, with the ray-generation, miss and hit-group exports a dispatch needs.
// Creation validates every link; a Pipeline that exists is consistent with its library.
type Pipeline interface {
	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the variant name
	PipelineKey() string

	// Variant returns the variant this pipeline implements.
	//
	// Returns:
	//   - Variant: the variant
	Variant() Variant

	// Config returns the configuration the pipeline was built from.
	//
	// Returns:
	//   - VariantConfig: the configuration
	Config() VariantConfig

	// Library returns the shader library linked into the state object.
	//
	// Returns:
	//   - shader.Library: the library
	Library() shader.Library

	// GlobalRootSignature returns the root signature shared by every export of the pipeline.
	//
	// Returns:
	//   - *RootSignature: the global root signature
	GlobalRootSignature() *RootSignature

	// LocalRootSignature returns the local root signature of a geometry type's hit records.
	//
	// Parameters:
	//   - g: the geometry type
	//
	// Returns:
	//   - *RootSignature: the local root signature, nil if the pipeline has none for g
	LocalRootSignature(g common.GeometryType) *RootSignature

	// HitGroup looks up a hit group by name.
	//
	// Parameters:
	//   - name: the hit group name
	//
	// Returns:
	//   - HitGroup: the hit group
	//   - bool: false if the pipeline declares no such group
	HitGroup(name string) (HitGroup, bool)

	// FindHitGroup returns the hit group serving a geometry, intersection type and ray type.
	//
	// Parameters:
	//   - g: the geometry type
	//   - c: the intersection type, ignored for triangles
	//   - r: the ray type
	//
	// Returns:
	//   - HitGroup: the hit group
	//   - bool: false if no hit group covers the combination
	FindHitGroup(g common.GeometryType, c common.IntersectionType, r common.RayType) (HitGroup, bool)

	// Identifier returns the shader identifier of an export or hit group. The identifier is
	// only available once the renderer has created the state object.
	//
	// Parameters:
	//   - name: a ray-generation, miss, compute or raster export, or a hit group name
	//
	// Returns:
	//   - []byte: ShaderIdentifierSize bytes
	//   - error: an error if the name is unknown or the state object does not exist
	Identifier(name string) ([]byte, error)

	// MaxRecursionDepth returns the maximum trace recursion depth of the state object.
	//
	// Returns:
	//   - uint32: the depth
	MaxRecursionDepth() uint32

	// PayloadSize returns the ray payload size in bytes.
	//
	// Returns:
	//   - uint32: the payload size
	PayloadSize() uint32

	// Blend returns the composite blend policy of the variant.
	//
	// Returns:
	//   - BlendPolicy: replace or accumulate
	Blend() BlendPolicy

	// StateObject returns the device state object handle.
	//
	// Returns:
	//   - common.ResourceHandle: the handle, invalid before registration
	StateObject() common.ResourceHandle

	// SetStateObject records the device state object created by the renderer.
	//
	// Parameters:
	//   - h: the state object handle, or common.InvalidHandle to forget it
	SetStateObject(h common.ResourceHandle)

	// ComputePipeline returns the WebGPU compute pipeline of an entry-point export.
	//
	// Parameters:
	//   - export: the export name
	//
	// Returns:
	//   - *wgpu.ComputePipeline: the pipeline, or nil if none was created
	ComputePipeline(export string) *wgpu.ComputePipeline

	// SetComputePipeline sets the WebGPU compute pipeline of an entry-point export.
	//
	// Parameters:
	//   - export: the export name
	//   - p: the WebGPU compute pipeline
	SetComputePipeline(export string, p *wgpu.ComputePipeline)

	// Release drops the device objects so the pipeline can be registered again.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline builds the state-object description of a variant from its configuration.
// It creates the global and local root signatures and checks each checksum against the
// library's layout tag, then resolves every ray-generation, miss, hit-group and entry export.
//
// Parameters:
//   - cfg: the variant configuration
//   - library: the pre-processed library named by cfg.Library
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: the pipeline
//   - error: a ValidationError describing the first mismatch
func NewPipeline(cfg VariantConfig, library shader.Library, opts ...PipelineBuilderOption) (Pipeline, error) {
	p := &pipeline{
		mu:                &sync.Mutex{},
		config:            cfg,
		library:           library,
		hitGroups:         make(map[string]HitGroup),
		maxRecursionDepth: cfg.MaxRecursionDepth,
		payloadSize:       cfg.PayloadSize,
		blend:             cfg.Blend,
		label:             cfg.Variant.String(),
		computePipelines:  make(map[string]*wgpu.ComputePipeline),
	}
	for _, opt := range opts {
		opt(p)
	}

	if library == nil || library.Key() != cfg.Library {
		return nil, common.NewValidationError("pipeline", "%s: requires library %q", p.label, cfg.Library)
	}

	var err error
	p.globalRootSignature, err = CreateRootSignature(p.label+"/global", cfg.GlobalSlots, false)
	if err != nil {
		return nil, err
	}
	if err := p.checkTag(p.globalRootSignature, shader.LayoutScopeGlobal); err != nil {
		return nil, err
	}
	for g := common.GeometryType(0); g < common.GeometryTypeCount; g++ {
		if cfg.LocalSlots[g] == nil {
			continue
		}
		rs, err := CreateRootSignature(p.label+"/local-"+g.String(), cfg.LocalSlots[g], true)
		if err != nil {
			return nil, err
		}
		if err := p.checkTag(rs, shader.LocalScope(g)); err != nil {
			return nil, err
		}
		p.localRootSignatures[g] = rs
	}

	if err := p.resolveExports(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *pipeline) checkTag(rs *RootSignature, scope shader.LayoutScope) error {
	tag, ok := p.library.LayoutTag(scope)
	if !ok {
		return common.NewValidationError("pipeline", "%s: library %s declares no %s layout for root signature %s", p.label, p.library.Key(), scope, rs.Name())
	}
	if tag != rs.Checksum() {
		return common.NewValidationError("pipeline", "%s: root signature %s checksum %#016x does not match library %s %s tag %#016x",
			p.label, rs.Name(), rs.Checksum(), p.library.Key(), scope, tag)
	}
	return nil
}

func (p *pipeline) requireExport(name string, kind shader.ExportKind) error {
	e, ok := p.library.Export(name)
	if !ok {
		return common.NewValidationError("pipeline", "%s: library %s has no export %q", p.label, p.library.Key(), name)
	}
	if e.Kind != kind {
		return common.NewValidationError("pipeline", "%s: export %q is a %s export, want %s", p.label, name, e.Kind, kind)
	}
	return nil
}

func (p *pipeline) resolveExports() error {
	cfg := p.config
	if cfg.RayGen != "" {
		if err := p.requireExport(cfg.RayGen, shader.ExportKindRayGen); err != nil {
			return err
		}
		if p.maxRecursionDepth == 0 || p.maxRecursionDepth > 31 {
			return common.NewValidationError("pipeline", "%s: max recursion depth %d outside [1,31]", p.label, p.maxRecursionDepth)
		}
		if len(cfg.Miss) != int(common.RayTypeCount) {
			return common.NewValidationError("pipeline", "%s: %d miss exports for %d ray types", p.label, len(cfg.Miss), common.RayTypeCount)
		}
	}
	for _, m := range cfg.Miss {
		if err := p.requireExport(m, shader.ExportKindMiss); err != nil {
			return err
		}
	}
	for _, entry := range cfg.Entries {
		e, ok := p.library.Export(entry)
		if !ok || !e.Kind.EntryPoint() {
			return common.NewValidationError("pipeline", "%s: entry %q is not an entry-point export of %s", p.label, entry, p.library.Key())
		}
	}

	for _, hg := range cfg.HitGroups {
		if _, dup := p.hitGroups[hg.Name]; dup || hg.Name == "" {
			return common.NewValidationError("pipeline", "%s: hit group name %q is empty or duplicated", p.label, hg.Name)
		}
		if hg.Geometry < 0 || hg.Geometry >= common.GeometryTypeCount || p.localRootSignatures[hg.Geometry] == nil {
			return common.NewValidationError("pipeline", "%s: hit group %q has no local root signature for %s geometry", p.label, hg.Name, hg.Geometry)
		}
		switch {
		case hg.Geometry == common.GeometryTypeAABB && hg.Intersection == "":
			return common.NewValidationError("pipeline", "%s: procedural hit group %q has no intersection export", p.label, hg.Name)
		case hg.Geometry == common.GeometryTypeTriangle && hg.Intersection != "":
			return common.NewValidationError("pipeline", "%s: triangle hit group %q names an intersection export", p.label, hg.Name)
		}
		for name, kind := range map[string]shader.ExportKind{
			hg.ClosestHit:   shader.ExportKindClosestHit,
			hg.AnyHit:       shader.ExportKindAnyHit,
			hg.Intersection: shader.ExportKindIntersection,
		} {
			if name == "" {
				continue
			}
			if err := p.requireExport(name, kind); err != nil {
				return err
			}
		}
		p.hitGroups[hg.Name] = hg
	}
	return nil
}

func (p *pipeline) PipelineKey() string {
	return p.label
}

func (p *pipeline) Variant() Variant {
	return p.config.Variant
}

func (p *pipeline) Config() VariantConfig {
	return p.config
}

func (p *pipeline) Library() shader.Library {
	return p.library
}

func (p *pipeline) GlobalRootSignature() *RootSignature {
	return p.globalRootSignature
}

func (p *pipeline) LocalRootSignature(g common.GeometryType) *RootSignature {
	if g < 0 || g >= common.GeometryTypeCount {
		return nil
	}
	return p.localRootSignatures[g]
}

func (p *pipeline) HitGroup(name string) (HitGroup, bool) {
	hg, ok := p.hitGroups[name]
	return hg, ok
}

func (p *pipeline) FindHitGroup(g common.GeometryType, c common.IntersectionType, r common.RayType) (HitGroup, bool) {
	for _, hg := range p.config.HitGroups {
		if hg.Geometry != g || hg.RayType != r {
			continue
		}
		if g == common.GeometryTypeAABB && hg.Category != c {
			continue
		}
		return hg, true
	}
	return HitGroup{}, false
}

// ordinal returns the export ordinal of name, or noExport when name is empty.
func (p *pipeline) ordinal(name string) uint32 {
	if name == "" {
		return noExport
	}
	e, _ := p.library.Export(name)
	return e.Ordinal
}

// Identifier layout, eight little-endian words:
//
//	word 0: primary export ordinal (ray generation, miss, entry or closest hit)
//	word 1: intersection export ordinal
//	word 2: any-hit export ordinal
//	word 3: export kind
//	words 4-7: tag derived from the state object and the name
func (p *pipeline) Identifier(name string) ([]byte, error) {
	p.mu.Lock()
	stateObject := p.stateObject
	p.mu.Unlock()
	if !stateObject.Valid() {
		return nil, common.NewValidationError("pipeline", "%s: identifier of %q requested before the state object was created", p.label, name)
	}

	words := [8]uint32{noExport, noExport, noExport}
	if hg, ok := p.hitGroups[name]; ok {
		words[0] = p.ordinal(hg.ClosestHit)
		words[1] = p.ordinal(hg.Intersection)
		words[2] = p.ordinal(hg.AnyHit)
		words[3] = uint32(shader.ExportKindClosestHit)
	} else if e, ok := p.library.Export(name); ok && (e.Kind.EntryPoint() || e.Kind == shader.ExportKindMiss) {
		words[0] = e.Ordinal
		words[3] = uint32(e.Kind)
	} else {
		return nil, common.NewValidationError("pipeline", "%s: no export or hit group named %q", p.label, name)
	}

	h := fnv.New64a()
	h.Write([]byte(p.label))
	h.Write([]byte{'/'})
	h.Write([]byte(name))
	tag := h.Sum64()
	words[4] = uint32(tag)
	words[5] = uint32(tag >> 32)
	words[6] = uint32(stateObject)
	words[7] = uint32(uint64(stateObject) >> 32)

	out := make([]byte, ShaderIdentifierSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out, nil
}

func (p *pipeline) MaxRecursionDepth() uint32 {
	return p.maxRecursionDepth
}

func (p *pipeline) PayloadSize() uint32 {
	return p.payloadSize
}

func (p *pipeline) Blend() BlendPolicy {
	return p.blend
}

func (p *pipeline) StateObject() common.ResourceHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateObject
}

func (p *pipeline) SetStateObject(h common.ResourceHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateObject = h
}

func (p *pipeline) ComputePipeline(export string) *wgpu.ComputePipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computePipelines[export]
}

func (p *pipeline) SetComputePipeline(export string, cp *wgpu.ComputePipeline) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.computePipelines[export] = cp
}

func (p *pipeline) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, cp := range p.computePipelines {
		if cp != nil {
			cp.Release()
		}
		delete(p.computePipelines, name)
	}
	p.stateObject = common.InvalidHandle
	p.globalRootSignature.SetHandle(common.InvalidHandle)
	for _, rs := range p.localRootSignatures {
		if rs != nil {
			rs.SetHandle(common.InvalidHandle)
		}
	}
}
