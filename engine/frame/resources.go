package frame

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/csg"
	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/descriptor_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-rt/engine/renderer/shader_table"
	"github.com/Carmen-Shannon/oxy-rt/engine/scene"
	"github.com/cogentcore/webgpu/wgpu"
)

// constantRecords is the number of scene constant records in one frame slot: one per ray
// pass of the longest mode plus one for the composite.
const constantRecords = 4

// resources are the device buffers of the frame graph.
type resources struct {
	constants       common.ResourceHandle
	compositeParams common.ResourceHandle

	attributes    common.ResourceHandle
	vertices      common.ResourceHandle
	csgTree       common.ResourceHandle
	photons       common.ResourceHandle
	photonCounter common.ResourceHandle
	shaderTable   common.ResourceHandle

	// size-dependent targets
	output        common.ResourceHandle
	raster        common.ResourceHandle
	accumulation  common.ResourceHandle
	present       common.ResourceHandle
	lightVertices common.ResourceHandle
}

// dispatchRanges locate the three tables of one ray variant in the shared shader-table buffer.
type dispatchRanges struct {
	rayGen   shader_table.Range
	miss     shader_table.Range
	hitGroup shader_table.Range
}

// slotStride is the byte size of one frame slot of the constant buffer.
func (o *orchestrator) slotStride() uint64 {
	return uint64(constantRecords) * o.recordStride()
}

func (o *orchestrator) recordStride() uint64 {
	return common.AlignUp(scene.GPUSceneConstantsSize, uint64(o.r.Capabilities().ConstantBufferAlignment))
}

func (o *orchestrator) paramsStride() uint64 {
	var params GPUCompositeParams
	return common.AlignUp(uint64(params.Size()), uint64(o.r.Capabilities().ConstantBufferAlignment))
}

// constantsOffset is the offset of a record inside the current frame slot.
func (o *orchestrator) constantsOffset(record int) uint64 {
	return uint64(o.slot)*o.slotStride() + uint64(record)*o.recordStride()
}

func (o *orchestrator) createBuffer(label string, size uint64, usage wgpu.BufferUsage) (common.ResourceHandle, error) {
	return o.r.CreateBuffer(o.label+"/"+label, size, usage)
}

// triangleVertexData expands every triangle primitive into vec4 face vertices in the order the
// triangle bottom-level structure numbers its faces.
func triangleVertexData(store geometry.Store) []byte {
	var buf []byte
	for _, p := range store.Triangles() {
		for _, v := range geometry.TriangleVertices(p) {
			vertex := make([]byte, pixelSize)
			common.PutVec4(vertex, 0, v.Vec4(1))
			buf = append(buf, vertex...)
		}
	}
	if len(buf) == 0 {
		// one vertex keeps the binding valid and reads as zero triangles
		buf = make([]byte, pixelSize)
	}
	return buf
}

func csgTreeData(tree *csg.Tree) []byte {
	if tree == nil || tree.Len() == 0 {
		return make([]byte, csg.GPUCSGNodeSize)
	}
	return tree.Marshal()
}

func attributeData(store geometry.Store) []byte {
	data := store.MarshalAttributes()
	if len(data) == 0 {
		var attr geometry.GPUPrimitiveAttributes
		data = make([]byte, attr.Size())
	}
	return data
}

// createSceneResources creates the size-independent buffers and uploads the scene's
// host-retained data into them.
func (o *orchestrator) createSceneResources() error {
	store := o.sc.Store()
	vertices := triangleVertexData(store)
	attributes := attributeData(store)
	tree := csgTreeData(o.sc.CSGTree())

	buffers := []struct {
		h     *common.ResourceHandle
		label string
		size  uint64
		usage wgpu.BufferUsage
	}{
		{&o.res.constants, "scene-constants", renderer.FrameCount * o.slotStride(), wgpu.BufferUsageUniform},
		{&o.res.compositeParams, "composite-params", renderer.FrameCount * o.paramsStride(), wgpu.BufferUsageUniform},
		{&o.res.attributes, "aabb-attributes", uint64(len(attributes)), wgpu.BufferUsageStorage},
		{&o.res.vertices, "vertices", uint64(len(vertices)), wgpu.BufferUsageStorage},
		{&o.res.csgTree, "csg-tree", uint64(len(tree)), wgpu.BufferUsageStorage},
		{&o.res.photons, "photons", uint64(o.photonCapacity) * photonSize, wgpu.BufferUsageStorage},
		{&o.res.photonCounter, "photon-counter", counterSize, wgpu.BufferUsageStorage},
	}
	for _, b := range buffers {
		h, err := o.createBuffer(b.label, b.size, b.usage)
		if err != nil {
			return err
		}
		*b.h = h
	}

	return o.r.WriteBuffers([]descriptor_table.BufferWrite{
		{Resource: o.res.attributes, Data: attributes},
		{Resource: o.res.vertices, Data: vertices},
		{Resource: o.res.csgTree, Data: tree},
	})
}

// createTargets creates the buffers whose size follows the resolution.
func (o *orchestrator) createTargets(width, height int) error {
	pixels := uint64(width) * uint64(height)
	targets := []struct {
		h     *common.ResourceHandle
		label string
		size  uint64
	}{
		{&o.res.output, "output", pixels * pixelSize},
		{&o.res.raster, "raster", pixels * pixelSize},
		{&o.res.accumulation, "accumulation", pixels * pixelSize},
		{&o.res.present, "present", pixels * pixelSize},
		{&o.res.lightVertices, "light-vertices", pixels * lightVerticesPerPixel * lightVertexSize},
	}
	for _, t := range targets {
		h, err := o.createBuffer(t.label, t.size, wgpu.BufferUsageStorage)
		if err != nil {
			return err
		}
		*t.h = h
	}
	logger.Debugf("%s: created %dx%d targets", o.label, width, height)
	return nil
}

func (o *orchestrator) releaseTargets() {
	for _, h := range []*common.ResourceHandle{&o.res.output, &o.res.raster, &o.res.accumulation, &o.res.present, &o.res.lightVertices} {
		if h.Valid() {
			o.r.ReleaseResource(*h)
		}
		*h = common.InvalidHandle
	}
}

func (o *orchestrator) releaseResources() {
	o.releaseTargets()
	for _, h := range []*common.ResourceHandle{
		&o.res.constants, &o.res.compositeParams, &o.res.attributes, &o.res.vertices,
		&o.res.csgTree, &o.res.photons, &o.res.photonCounter, &o.res.shaderTable,
	} {
		if h.Valid() {
			o.r.ReleaseResource(*h)
		}
		*h = common.InvalidHandle
	}
}

// buildShaderTables packs the dispatch tables of every ray variant into one buffer, each
// variant's tables starting on a table alignment boundary.
func (o *orchestrator) buildShaderTables() error {
	caps := o.r.Capabilities()
	store := o.sc.Store()

	var packed []byte
	for _, v := range rayVariants {
		tables, err := shader_table.BuildDispatchTables(o.pipelines[v], store, caps.ShaderRecordAlignment)
		if err != nil {
			return fmt.Errorf("shader tables of %s: %w", v, err)
		}
		buf, rayGen, miss, hitGroup := tables.Pack(caps.ShaderTableAlignment)

		base := common.AlignUp(uint64(len(packed)), uint64(caps.ShaderTableAlignment))
		packed = append(packed, make([]byte, base-uint64(len(packed)))...)
		packed = append(packed, buf...)
		rayGen.Offset += base
		miss.Offset += base
		hitGroup.Offset += base
		o.ranges[v] = dispatchRanges{rayGen: rayGen, miss: miss, hitGroup: hitGroup}
	}

	h, err := o.createBuffer("shader-table", uint64(len(packed)), wgpu.BufferUsageStorage)
	if err != nil {
		return err
	}
	o.res.shaderTable = h
	logger.Debugf("%s: packed %d variants into %d bytes of shader tables", o.label, len(rayVariants), len(packed))
	return o.r.WriteBuffers([]descriptor_table.BufferWrite{{Resource: h, Data: packed}})
}

// resolve maps a root signature slot to the frame resource it reads or writes. Scene constants
// resolve to the current record of the current frame slot.
func (o *orchestrator) resolve(slot string) (common.ResourceHandle, uint64, uint64, bool) {
	switch slot {
	case "output_view":
		return o.res.output, 0, 0, true
	case "raster_view":
		return o.res.raster, 0, 0, true
	case "accumulation_view":
		return o.res.accumulation, 0, 0, true
	case "present_view":
		return o.res.present, 0, 0, true
	case "acceleration_structure":
		return o.tlas, 0, 0, o.tlas.Valid()
	case "scene_constant":
		return o.res.constants, o.constantsOffset(o.record), scene.GPUSceneConstantsSize, true
	case "composite_params":
		var params GPUCompositeParams
		return o.res.compositeParams, uint64(o.slot) * o.paramsStride(), uint64(params.Size()), true
	case "aabb_attributes":
		return o.res.attributes, 0, 0, true
	case "vertex_buffers":
		return o.res.vertices, 0, 0, true
	case "csg_tree":
		return o.res.csgTree, 0, 0, true
	case "light_vertices":
		return o.res.lightVertices, 0, 0, true
	case "photon_buffer":
		return o.res.photons, 0, 0, true
	case "photon_counter":
		return o.res.photonCounter, 0, 0, true
	default:
		return common.InvalidHandle, 0, 0, false
	}
}

// bindPass points the descriptor table at the resources of p for the given constants record.
// A table laid out for another root signature is revalidated first; bindings whose resource
// moved since the last pass are replaced.
func (o *orchestrator) bindPass(p pipeline.Pipeline, record int) error {
	o.record = record
	rs := p.GlobalRootSignature()

	if o.table == nil {
		table, err := descriptor_table.NewDescriptorTable(rs, o.r.DescriptorHeap(), descriptor_table.WithLabel(o.label))
		if err != nil {
			return err
		}
		o.table = table
	} else if o.table.Checksum() != rs.Checksum() {
		if err := o.table.Rebind(rs, o.resolve); err != nil {
			return err
		}
		o.stats.Rebinds++
	}

	for _, s := range rs.Slots() {
		resource, offset, size, ok := o.resolve(s.Name)
		if !ok {
			return common.NewValidationError("frame", "%s: no resource for slot %q of %s", o.label, s.Name, rs.Name())
		}
		if b, bound := o.table.Binding(s.Name); bound && b.Resource == resource && b.Offset == offset && b.Size == size {
			continue
		}
		if err := o.table.Bind(s.Name, resource, offset, size); err != nil {
			return err
		}
	}
	return nil
}
