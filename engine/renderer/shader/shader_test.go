package shader

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
)

func mustLibrary(t *testing.T, key string) Library {
	t.Helper()
	lib, err := BuiltinLibrary(key)
	if err != nil {
		t.Fatalf("BuiltinLibrary(%q): %v", key, err)
	}
	return lib
}

func layoutNames(entries []LayoutEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name + ":" + e.Class.String()
	}
	return out
}

func TestBuiltinLibrariesPreProcess(t *testing.T) {
	for _, key := range BuiltinLibraryKeys() {
		t.Run(key, func(t *testing.T) {
			lib := mustLibrary(t, key)
			if lib.Key() != key {
				t.Errorf("Key() = %q, want %q", lib.Key(), key)
			}
			if strings.Contains(lib.Source(), "@oxy:") {
				t.Error("processed source still contains annotations")
			}
			if len(lib.Layout(LayoutScopeGlobal)) == 0 {
				t.Error("library has no global layout")
			}
			if lib.WorkgroupSize() != [3]uint32{8, 8, 1} {
				t.Errorf("WorkgroupSize() = %v, want [8 8 1]", lib.WorkgroupSize())
			}
			if lib.SourceModule() == nil || lib.SourceModule().WGSLDescriptor.Code != lib.Source() {
				t.Error("module descriptor does not carry the processed source")
			}

			_, hasTriangle := lib.LayoutTag(LayoutScopeLocalTriangle)
			_, hasAABB := lib.LayoutTag(LayoutScopeLocalAABB)
			wantLocal := key != LibraryComposite
			if hasTriangle != wantLocal || hasAABB != wantLocal {
				t.Errorf("local layouts present = (%v, %v), want %v", hasTriangle, hasAABB, wantLocal)
			}
		})
	}
}

func TestBuiltinLibraryUnknownKey(t *testing.T) {
	if _, err := BuiltinLibrary("nope"); err == nil {
		t.Fatal("unknown key accepted")
	}
}

func TestStructIncludedOnce(t *testing.T) {
	lib := mustLibrary(t, LibraryForwardPath)
	for _, decl := range []string{"struct SceneConstants", "struct LightVertex", "struct Ray ", "fn trace("} {
		if n := strings.Count(lib.Source(), decl); n != 1 {
			t.Errorf("%q appears %d times, want 1", decl, n)
		}
	}
}

func TestGlobalLayoutFollowsBindingOrder(t *testing.T) {
	lib := mustLibrary(t, LibraryPhotonGather)
	got := layoutNames(lib.Layout(LayoutScopeGlobal))
	want := []string{
		"output_view:uav",
		"photon_buffer:srv",
		"photon_counter:srv",
		"acceleration_structure:srv",
		"scene_constant:cbv",
		"aabb_attributes:srv",
		"vertex_buffers:srv",
		"csg_tree:srv",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("global layout = %v, want %v", got, want)
	}

	local := layoutNames(lib.Layout(LayoutScopeLocalAABB))
	if strings.Join(local, ",") != "material_constant:cbv,geometry_index:cbv" {
		t.Errorf("aabb local layout = %v", local)
	}
}

func TestLayoutTags(t *testing.T) {
	emit := mustLibrary(t, LibraryPhotonEmit)
	gather := mustLibrary(t, LibraryPhotonGather)
	raytracing := mustLibrary(t, LibraryRaytracing)
	first := mustLibrary(t, LibraryLightPath)
	forward := mustLibrary(t, LibraryForwardPath)

	tag := func(l Library, s LayoutScope) uint64 {
		v, ok := l.LayoutTag(s)
		if !ok {
			t.Fatalf("%s has no %s layout", l.Key(), s)
		}
		return v
	}

	if tag(emit, LayoutScopeGlobal) == tag(gather, LayoutScopeGlobal) {
		t.Error("photon emit and gather share a global tag although the photon buffers change class")
	}
	if tag(first, LayoutScopeGlobal) == tag(forward, LayoutScopeGlobal) {
		t.Error("light path and forward path share a global tag although light_vertices changes class")
	}
	for _, scope := range []LayoutScope{LayoutScopeLocalTriangle, LayoutScopeLocalAABB} {
		want := tag(raytracing, scope)
		for _, l := range []Library{emit, gather, first, forward} {
			if got := tag(l, scope); got != want {
				t.Errorf("%s %s tag = %#x, want %#x", l.Key(), scope, got, want)
			}
		}
	}
	if got := tag(raytracing, LayoutScopeGlobal); got != LayoutChecksum(raytracing.Layout(LayoutScopeGlobal)) {
		t.Errorf("global tag = %#x, want the checksum of the global layout", got)
	}
}

func TestLayoutChecksumIsOrderSensitive(t *testing.T) {
	a := []LayoutEntry{{"output_view", ResourceClassUAV}, {"scene_constant", ResourceClassCBV}}
	b := []LayoutEntry{{"scene_constant", ResourceClassCBV}, {"output_view", ResourceClassUAV}}
	c := []LayoutEntry{{"output_view", ResourceClassSRV}, {"scene_constant", ResourceClassCBV}}
	if LayoutChecksum(a) == LayoutChecksum(b) {
		t.Error("reordered slots share a checksum")
	}
	if LayoutChecksum(a) == LayoutChecksum(c) {
		t.Error("slots with a different class share a checksum")
	}
	if LayoutChecksum(a) != LayoutChecksum(append([]LayoutEntry(nil), a...)) {
		t.Error("checksum is not deterministic")
	}
}

func TestExportOrdinals(t *testing.T) {
	tests := []struct {
		library string
		export  string
		kind    ExportKind
		ordinal uint32
	}{
		{LibraryRaytracing, "raygen_main", ExportKindRayGen, 0},
		{LibraryRaytracing, "intersect_analytic", ExportKindIntersection, 0},
		{LibraryRaytracing, "intersect_csg", ExportKindIntersection, 3},
		{LibraryRaytracing, "miss_shadow", ExportKindMiss, 1},
		{LibraryRaytracing, "closesthit_aabb", ExportKindClosestHit, 1},
		{LibraryLightPath, "raygen_light_first", ExportKindRayGen, 0},
		{LibraryLightPath, "raygen_light_second", ExportKindRayGen, 1},
		{LibraryComposite, "raster_main", ExportKindRaster, 0},
		{LibraryComposite, "composite_main", ExportKindCompute, 0},
	}
	for _, tt := range tests {
		t.Run(tt.library+"/"+tt.export, func(t *testing.T) {
			e, ok := mustLibrary(t, tt.library).Export(tt.export)
			if !ok {
				t.Fatalf("export %q missing", tt.export)
			}
			if e.Kind != tt.kind || e.Ordinal != tt.ordinal {
				t.Errorf("got %s #%d, want %s #%d", e.Kind, e.Ordinal, tt.kind, tt.ordinal)
			}
		})
	}
}

func TestDispatchGroupBindings(t *testing.T) {
	lib := mustLibrary(t, LibraryRaytracing)
	if lib.BindGroupVarName(DispatchGroup, 0) != "shader_records" || lib.BindGroupVarName(DispatchGroup, 1) != "dispatch" {
		t.Fatalf("dispatch group names = %q, %q", lib.BindGroupVarName(DispatchGroup, 0), lib.BindGroupVarName(DispatchGroup, 1))
	}
	if got := len(lib.BindGroupLayoutDescriptors()[DispatchGroup].Entries); got != 2 {
		t.Errorf("dispatch group has %d entries, want 2", got)
	}
	global := lib.BindGroupLayoutDescriptors()[0]
	if len(global.Entries) != len(lib.Layout(LayoutScopeGlobal)) {
		t.Fatalf("group 0 has %d entries, global layout has %d", len(global.Entries), len(lib.Layout(LayoutScopeGlobal)))
	}
	if got := global.Entries[2].Buffer.MinBindingSize; got != 208 {
		t.Errorf("scene_constant MinBindingSize = %d, want 208", got)
	}

	composite := mustLibrary(t, LibraryComposite)
	if _, ok := composite.BindGroupLayoutDescriptors()[DispatchGroup]; ok {
		t.Error("composite library declares the dispatch group")
	}
}

func TestNewLibraryFromSourceRejects(t *testing.T) {
	const body = "@compute @workgroup_size(1)\nfn main() {}\n"
	tests := []struct {
		name   string
		source string
	}{
		{"export without function", "//@oxy:group 0 0 storage_read_write data array<u32>\n//@oxy:export raygen missing\n" + body},
		{"raygen not compute", "//@oxy:group 0 0 storage_read_write data array<u32>\n//@oxy:export raygen helper\nfn helper() {}\n" + body},
		{"duplicate export", "//@oxy:group 0 0 storage_read_write data array<u32>\n//@oxy:export raygen main\n//@oxy:export raygen main\n" + body},
		{"binding gap", "//@oxy:group 0 1 storage_read_write data array<u32>\n//@oxy:export raygen main\n" + body},
		{"unknown include", "//@oxy:include teapot\n" + body},
		{"unknown export kind", "//@oxy:export callable main\n" + body},
		{"bad local class", "//@oxy:local aabb material_constant:rtv\n" + body},
		{"duplicate local", "//@oxy:local aabb a:cbv\n//@oxy:local aabb b:cbv\n" + body},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := NewLibraryFromSource("broken", tt.source)
			if lib != nil {
				t.Fatal("invalid source returned a Library")
			}
			var verr *common.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want *common.ValidationError", err)
			}
			if verr.Component != "shader" {
				t.Errorf("component = %q, want shader", verr.Component)
			}
		})
	}
}

func TestCompileKeepsBinary(t *testing.T) {
	lib := mustLibrary(t, LibraryComposite)
	if lib.Binary() != nil {
		t.Fatal("binary present before Compile")
	}

	var seen string
	fake := func(source string) ([]uint32, error) {
		seen = source
		return []uint32{SPIRVMagic, 1, 2}, nil
	}
	if err := lib.Compile(fake); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if seen != lib.Source() {
		t.Error("compiler did not receive the processed source")
	}
	if len(lib.Binary()) != 3 || lib.Binary()[0] != SPIRVMagic {
		t.Errorf("Binary() = %v", lib.Binary())
	}

	boom := errors.New("boom")
	err := lib.Compile(func(string) ([]uint32, error) { return nil, boom })
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), LibraryComposite) {
		t.Errorf("Compile error = %v, want wrapped boom naming the library", err)
	}
}

func skipOnNagaLimitation(t *testing.T, err error) {
	t.Helper()
	msg := err.Error()
	for _, limitation := range []string{"not yet implemented", "not supported", "unsupported", "lowering error", "atomic", "runtime-sized"} {
		if strings.Contains(msg, limitation) {
			t.Skipf("Skipping: naga limitation: %v", err)
		}
	}
}

func TestNagaCompiler(t *testing.T) {
	const source = `
@group(0) @binding(0) var<storage, read_write> data: array<u32, 64>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = id.x * 2u;
}
`
	words, err := NagaCompiler(source)
	if err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatalf("NagaCompiler: %v", err)
	}
	if words[0] != SPIRVMagic {
		t.Errorf("first word = %#x, want %#x", words[0], SPIRVMagic)
	}
}

func TestBuiltinLibrariesCompileWithNaga(t *testing.T) {
	for _, key := range BuiltinLibraryKeys() {
		t.Run(key, func(t *testing.T) {
			lib := mustLibrary(t, key)
			if err := lib.Compile(NagaCompiler); err != nil {
				// The pure Go naga port trails the WGSL feature set the libraries use.
				t.Skipf("Skipping: naga could not compile %s: %v", key, err)
			}
			if lib.Binary()[0] != SPIRVMagic {
				t.Errorf("binary does not start with the SPIR-V magic")
			}
		})
	}
}

func TestModuleCarriesCompiledBinary(t *testing.T) {
	lib := mustLibrary(t, LibraryComposite)
	if m := lib.Module(); m.WGSLDescriptor == nil || m.SPIRVDescriptor != nil {
		t.Fatal("uncompiled library should hand out its WGSL module")
	}

	words := []uint32{SPIRVMagic, 0x00010300, 0xdeadbeef}
	if err := lib.Compile(func(string) ([]uint32, error) { return words, nil }); err != nil {
		t.Fatalf("Compile: %v", err)
	}
	m := lib.Module()
	if m.SPIRVDescriptor == nil || m.WGSLDescriptor != nil || m.Label != lib.Key() {
		t.Fatalf("compiled module = %+v, want a SPIR-V descriptor", m)
	}
	want := []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x03, 0x01, 0x00, 0xef, 0xbe, 0xad, 0xde}
	if !bytes.Equal(m.SPIRVDescriptor.Code, want) {
		t.Errorf("SPIR-V bytes = % x, want % x", m.SPIRVDescriptor.Code, want)
	}
	if lib.SourceModule().WGSLDescriptor.Code != lib.Source() {
		t.Error("SourceModule() lost the WGSL source")
	}
}
