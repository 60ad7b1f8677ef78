package pipeline

import (
	"errors"
	"slices"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader"
)

func mustLibrary(t *testing.T, key string) shader.Library {
	t.Helper()
	lib, err := shader.BuiltinLibrary(key)
	if err != nil {
		t.Fatalf("BuiltinLibrary(%q): %v", key, err)
	}
	return lib
}

func mustPipeline(t *testing.T, v Variant) Pipeline {
	t.Helper()
	cfg := DefaultVariantConfigs()[v]
	p, err := NewPipeline(cfg, mustLibrary(t, cfg.Library))
	if err != nil {
		t.Fatalf("NewPipeline(%s): %v", v, err)
	}
	return p
}

func TestRootSignatureLayout(t *testing.T) {
	tests := []struct {
		name    string
		slots   []Slot
		size    uint32
		offsets map[string]uint32
	}{
		{
			name:    "triangle local",
			slots:   TriangleLocalSlots,
			size:    48,
			offsets: map[string]uint32{"material_constant": 0},
		},
		{
			name:    "aabb local",
			slots:   AABBLocalSlots,
			size:    56,
			offsets: map[string]uint32{"material_constant": 0, "geometry_index": 48},
		},
		{
			name:    "constants then descriptor",
			slots:   []Slot{Constants("a", 3), CBV("b"), Table("c", shader.ResourceClassSRV, 4)},
			size:    32,
			offsets: map[string]uint32{"a": 0, "b": 16, "c": 24},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := CreateRootSignature(tt.name, tt.slots, true)
			if err != nil {
				t.Fatalf("CreateRootSignature: %v", err)
			}
			if rs.ArgumentSize() != tt.size {
				t.Errorf("ArgumentSize() = %d, want %d", rs.ArgumentSize(), tt.size)
			}
			for name, want := range tt.offsets {
				got, ok := rs.Offset(name)
				if !ok || got != want {
					t.Errorf("Offset(%q) = %d, %v, want %d", name, got, ok, want)
				}
			}
		})
	}
}

func TestCreateRootSignatureRejects(t *testing.T) {
	tests := []struct {
		name  string
		slots []Slot
	}{
		{"duplicate slot", []Slot{CBV("scene_constant"), SRV("scene_constant")}},
		{"unnamed slot", []Slot{CBV("")}},
		{"empty constants", []Slot{Constants("c", 0)}},
		{"empty table", []Slot{Table("t", shader.ResourceClassUAV, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CreateRootSignature("rs", tt.slots, false)
			var verr *common.ValidationError
			if !errors.As(err, &verr) || verr.Component != "root_signature" {
				t.Fatalf("err = %v, want root_signature ValidationError", err)
			}
		})
	}
}

func TestRootSignatureChecksumIsOrderSensitive(t *testing.T) {
	a, _ := CreateRootSignature("a", []Slot{CBV("x"), SRV("y")}, false)
	b, _ := CreateRootSignature("b", []Slot{SRV("y"), CBV("x")}, false)
	c, _ := CreateRootSignature("c", []Slot{CBV("x"), SRV("y")}, true)
	if a.Checksum() == b.Checksum() {
		t.Error("reordered slots share a checksum")
	}
	if a.Checksum() != c.Checksum() {
		t.Error("identical slot lists have different checksums")
	}
}

func TestDefaultVariantsMatchBuiltinLibraries(t *testing.T) {
	for v := Variant(0); v < VariantCount; v++ {
		t.Run(v.String(), func(t *testing.T) {
			p := mustPipeline(t, v)
			if p.Variant() != v || p.PipelineKey() != v.String() {
				t.Errorf("Variant() = %s, key %q", p.Variant(), p.PipelineKey())
			}
			tag, _ := p.Library().LayoutTag(shader.LayoutScopeGlobal)
			if p.GlobalRootSignature().Checksum() != tag {
				t.Error("global checksum does not match the library tag")
			}
			if v == VariantComposite {
				if p.LocalRootSignature(common.GeometryTypeAABB) != nil {
					t.Error("composite has a local root signature")
				}
				return
			}
			if got := p.LocalRootSignature(common.GeometryTypeAABB).ArgumentSize(); got != 56 {
				t.Errorf("aabb local argument size = %d, want 56", got)
			}
		})
	}
}

func TestNewPipelineRejectsChecksumMismatch(t *testing.T) {
	cfg := DefaultVariantConfigs()[VariantPhotonGather]
	// gather reads the photon buffer; authoring it against the emit layout must fail
	cfg.GlobalSlots = DefaultVariantConfigs()[VariantPhotonMapping].GlobalSlots

	_, err := NewPipeline(cfg, mustLibrary(t, shader.LibraryPhotonGather))
	var verr *common.ValidationError
	if !errors.As(err, &verr) || verr.Component != "pipeline" {
		t.Fatalf("err = %v, want pipeline ValidationError", err)
	}
}

func TestNewPipelineRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *VariantConfig)
	}{
		{"wrong library", func(cfg *VariantConfig) { cfg.Library = shader.LibraryForwardPath }},
		{"missing raygen", func(cfg *VariantConfig) { cfg.RayGen = "raygen_nothing" }},
		{"raygen of wrong kind", func(cfg *VariantConfig) { cfg.RayGen = "miss_radiance" }},
		{"missing miss", func(cfg *VariantConfig) { cfg.Miss = []string{"miss_radiance"} }},
		{"zero recursion", func(cfg *VariantConfig) { cfg.MaxRecursionDepth = 0 }},
		{"deep recursion", func(cfg *VariantConfig) { cfg.MaxRecursionDepth = 32 }},
		{"local layout mismatch", func(cfg *VariantConfig) {
			cfg.LocalSlots[common.GeometryTypeAABB] = TriangleLocalSlots
		}},
		{"aabb group without intersection", func(cfg *VariantConfig) {
			cfg.HitGroups[len(cfg.HitGroups)-1].Intersection = ""
		}},
		{"triangle group with intersection", func(cfg *VariantConfig) {
			cfg.HitGroups[0].Intersection = "intersect_analytic"
		}},
		{"duplicate hit group", func(cfg *VariantConfig) {
			cfg.HitGroups = append(cfg.HitGroups, cfg.HitGroups[0])
		}},
		{"closest hit of wrong kind", func(cfg *VariantConfig) {
			cfg.HitGroups[0].ClosestHit = "intersect_csg"
		}},
		{"unknown entry", func(cfg *VariantConfig) { cfg.Entries = []string{"composite_main"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultVariantConfigs()[VariantRaytracing]
			tt.mutate(&cfg)
			_, err := NewPipeline(cfg, mustLibrary(t, shader.LibraryRaytracing))
			if !errors.Is(err, common.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestPipelineBuilderOptions(t *testing.T) {
	cfg := DefaultVariantConfigs()[VariantRaytracing]
	p, err := NewPipeline(cfg, mustLibrary(t, cfg.Library),
		WithMaxRecursionDepth(7), WithPayloadSize(32), WithBlendPolicy(BlendReplace), WithLabel("custom"))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if p.MaxRecursionDepth() != 7 || p.PayloadSize() != 32 || p.Blend() != BlendReplace || p.PipelineKey() != "custom" {
		t.Errorf("options not applied: depth %d payload %d blend %s key %q",
			p.MaxRecursionDepth(), p.PayloadSize(), p.Blend(), p.PipelineKey())
	}

	if _, err := NewPipeline(cfg, mustLibrary(t, cfg.Library), WithMaxRecursionDepth(40)); err == nil {
		t.Error("recursion depth 40 accepted")
	}
}

func TestFindHitGroup(t *testing.T) {
	p := mustPipeline(t, VariantRaytracing)

	hg, ok := p.FindHitGroup(common.GeometryTypeAABB, common.IntersectionTypeCSG, common.RayTypeShadow)
	if !ok || hg.Name != "hit_aabb_csg_shadow" || hg.Intersection != "intersect_csg" || hg.ClosestHit != "" {
		t.Errorf("csg shadow group = %+v, %v", hg, ok)
	}
	hg, ok = p.FindHitGroup(common.GeometryTypeTriangle, common.IntersectionTypeCSG, common.RayTypeRadiance)
	if !ok || hg.Name != "hit_triangle_radiance" {
		t.Errorf("triangle group = %+v, %v", hg, ok)
	}
	if _, ok := p.HitGroup("hit_aabb_signed_distance_radiance"); !ok {
		t.Error("signed distance group missing")
	}
}

func TestIdentifier(t *testing.T) {
	p := mustPipeline(t, VariantRaytracing)

	if _, err := p.Identifier("raygen_main"); err == nil {
		t.Fatal("identifier available before the state object exists")
	}
	p.SetStateObject(42)

	raygen, err := p.Identifier("raygen_main")
	if err != nil {
		t.Fatalf("Identifier(raygen_main): %v", err)
	}
	if len(raygen) != ShaderIdentifierSize {
		t.Fatalf("len = %d, want %d", len(raygen), ShaderIdentifierSize)
	}

	shadow, _ := p.Identifier("miss_shadow")
	if shadow[0] != 1 || shadow[12] != byte(shader.ExportKindMiss) {
		t.Errorf("miss_shadow ordinal/kind = %d/%d, want 1/%d", shadow[0], shadow[12], shader.ExportKindMiss)
	}

	csg, _ := p.Identifier("hit_aabb_csg_radiance")
	if csg[4] != 3 {
		t.Errorf("csg intersection ordinal = %d, want 3", csg[4])
	}
	if slices.Equal(raygen, shadow) || slices.Equal(shadow, csg) {
		t.Error("identifiers collide")
	}

	if _, err := p.Identifier("nothing"); err == nil {
		t.Error("unknown name accepted")
	}

	p.Release()
	if p.StateObject().Valid() {
		t.Error("Release kept the state object")
	}
}

func TestSelectVariant(t *testing.T) {
	tests := []struct {
		mode common.RenderMode
		want []Variant
	}{
		{common.RenderModeRaytracing, []Variant{VariantRaytracing}},
		{common.RenderModePhotonMapping, []Variant{VariantPhotonMapping, VariantPhotonGather}},
		{common.RenderModeBidirectional, []Variant{VariantLightPathFirst, VariantLightPathSecond, VariantForwardPath}},
		{common.RenderModeForwardPath, []Variant{VariantForwardPath}},
		{common.RenderModeLightPath, []Variant{VariantLightPathFirst, VariantLightPathSecond}},
		{common.RenderModePhotonMap, []Variant{VariantPhotonMapping, VariantPhotonGather}},
		{common.RenderModeRaster, nil},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			if got := SelectVariant(tt.mode); !slices.Equal(got, tt.want) {
				t.Errorf("SelectVariant(%s) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}
