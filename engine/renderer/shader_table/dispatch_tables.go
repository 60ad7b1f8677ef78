package shader_table

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
)

// Range locates one table inside a packed shader-table buffer.
type Range struct {
	Offset uint64
	Size   uint64
	Stride uint64
}

// DispatchTables are the three tables of one ray dispatch.
type DispatchTables struct {
	RayGen   *Table
	Miss     *Table
	HitGroup *Table
}

// InstanceContributions returns the hit-group record offset of each geometry type's
// top-level instance. Triangle primitives own the first records, then procedural primitives
// in global index order, RayTypeCount records per primitive.
//
// Parameters:
//   - store: the geometry store
//
// Returns:
//   - [common.GeometryTypeCount]uint32: the contribution per geometry type
func InstanceContributions(store geometry.Store) [common.GeometryTypeCount]uint32 {
	var out [common.GeometryTypeCount]uint32
	out[common.GeometryTypeAABB] = uint32(len(store.Triangles()) * int(common.RayTypeCount))
	return out
}

// BuildDispatchTables builds the ray-generation, miss and hit-group tables of a registered
// pipeline for the primitives of store. Each primitive contributes one hit record per ray
// type. Triangle records carry the primitive's material; procedural records add the global
// primitive index and shape. Local argument sizes must match the local root signatures.
//
// Parameters:
//   - p: the pipeline, with its state object created
//   - store: the geometry store
//   - alignment: the shader record alignment of the device
//
// Returns:
//   - *DispatchTables: the tables
//   - error: a ValidationError when a primitive has no hit group for some ray type, when
//     local arguments disagree with a local root signature, or when an identifier is unavailable
func BuildDispatchTables(p pipeline.Pipeline, store geometry.Store, alignment uint32) (*DispatchTables, error) {
	cfg := p.Config()
	if cfg.RayGen == "" {
		return nil, common.NewValidationError("shader_table", "%s dispatches no rays", p.PipelineKey())
	}

	raygenID, err := p.Identifier(cfg.RayGen)
	if err != nil {
		return nil, err
	}
	out := &DispatchTables{}
	if out.RayGen, err = BuildShaderTable([]Entry{{Identifier: raygenID}}, alignment); err != nil {
		return nil, err
	}

	miss := make([]Entry, 0, len(cfg.Miss))
	for _, name := range cfg.Miss {
		id, err := p.Identifier(name)
		if err != nil {
			return nil, err
		}
		miss = append(miss, Entry{Identifier: id})
	}
	if out.Miss, err = BuildShaderTable(miss, alignment); err != nil {
		return nil, err
	}

	triangles := store.Triangles()
	procedural := store.Procedural()
	hits := make([]Entry, 0, (len(triangles)+len(procedural))*int(common.RayTypeCount))
	for _, prim := range triangles {
		gpu := prim.Material.GPU()
		entries, err := hitEntries(p, prim, gpu.Marshal())
		if err != nil {
			return nil, err
		}
		hits = append(hits, entries...)
	}
	offsets := store.Offsets()
	if offsets.Total() != len(procedural) {
		return nil, common.NewValidationError("shader_table", "%s: offset table covers %d primitives, the store holds %d",
			p.PipelineKey(), offsets.Total(), len(procedural))
	}
	for c := common.IntersectionType(0); c < common.IntersectionTypeCount; c++ {
		for local := 0; local < offsets.Count(c); local++ {
			global, err := offsets.Index(c, local)
			if err != nil {
				return nil, err
			}
			prim := procedural[global]
			if prim.Category != c {
				return nil, common.NewValidationError("shader_table", "%s: primitive %d (%q) is %s, the offset table places %s there",
					p.PipelineKey(), global, prim.Name, prim.Category, c)
			}
			gpu := prim.Material.GPU()
			instance := geometry.GPUPrimitiveInstance{InstanceIndex: uint32(global), PrimitiveType: prim.Shape}
			entries, err := hitEntries(p, prim, append(gpu.Marshal(), instance.Marshal()...))
			if err != nil {
				return nil, err
			}
			hits = append(hits, entries...)
		}
	}
	if len(hits) == 0 {
		return nil, common.NewValidationError("shader_table", "%s: the scene has no primitives", p.PipelineKey())
	}
	if out.HitGroup, err = BuildShaderTable(hits, alignment); err != nil {
		return nil, err
	}
	return out, nil
}

func hitEntries(p pipeline.Pipeline, prim geometry.Primitive, args []byte) ([]Entry, error) {
	rs := p.LocalRootSignature(prim.Geometry)
	if rs == nil {
		return nil, common.NewValidationError("shader_table", "%s: no local root signature for %s primitive %q", p.PipelineKey(), prim.Geometry, prim.Name)
	}
	if uint32(len(args)) != rs.ArgumentSize() {
		return nil, common.NewValidationError("shader_table", "%s: %s primitive %q has %d bytes of local arguments, root signature %s expects %d",
			p.PipelineKey(), prim.Geometry, prim.Name, len(args), rs.Name(), rs.ArgumentSize())
	}

	entries := make([]Entry, 0, common.RayTypeCount)
	for r := common.RayType(0); r < common.RayTypeCount; r++ {
		hg, ok := p.FindHitGroup(prim.Geometry, prim.Category, r)
		if !ok {
			return nil, common.NewValidationError("shader_table", "%s: no hit group for %s primitive %q (%s) and %s rays",
				p.PipelineKey(), prim.Geometry, prim.Name, prim.Category, r)
		}
		id, err := p.Identifier(hg.Name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Identifier: id, LocalArgs: args})
	}
	return entries, nil
}

// Pack concatenates the tables into one buffer, each table starting at a multiple of
// tableAlignment.
//
// Parameters:
//   - tableAlignment: the shader table start alignment of the device
//
// Returns:
//   - []byte: the packed buffer
//   - Range: the ray-generation table
//   - Range: the miss table
//   - Range: the hit-group table
func (d *DispatchTables) Pack(tableAlignment uint32) ([]byte, Range, Range, Range) {
	var ranges [3]Range
	var offset uint64
	for i, t := range []*Table{d.RayGen, d.Miss, d.HitGroup} {
		offset = common.AlignUp(offset, uint64(tableAlignment))
		ranges[i] = Range{Offset: offset, Size: t.Size(), Stride: uint64(t.Stride())}
		offset += t.Size()
	}

	buf := make([]byte, offset)
	copy(buf[ranges[0].Offset:], d.RayGen.Bytes())
	copy(buf[ranges[1].Offset:], d.Miss.Bytes())
	copy(buf[ranges[2].Offset:], d.HitGroup.Bytes())
	return buf, ranges[0], ranges[1], ranges[2]
}
