package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/engine/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// gltfMeshExtractor flattens the triangle primitives of a parsed document into one mesh,
// with every node's world transform baked into the vertices.
type gltfMeshExtractor struct {
	parser *gltfParser
	mesh   geometry.Mesh
}

// maxNodeDepth bounds the node hierarchy walk; deeper trees are treated as cyclic.
const maxNodeDepth = 64

func (e *gltfMeshExtractor) extract() (*geometry.Mesh, error) {
	doc := e.parser.document

	if len(doc.Nodes) == 0 {
		for i := range doc.Meshes {
			if err := e.appendMesh(i, mgl32.Ident4()); err != nil {
				return nil, err
			}
		}
	} else {
		for _, root := range e.roots() {
			if err := e.walk(root, mgl32.Ident4(), 0); err != nil {
				return nil, err
			}
		}
	}

	if len(e.mesh.Indices) == 0 {
		return nil, fmt.Errorf("document has no triangle geometry")
	}
	return &e.mesh, nil
}

// roots returns the root nodes of the default scene, or of scene 0 when no default is set.
func (e *gltfMeshExtractor) roots() []int {
	doc := e.parser.document
	if len(doc.Scenes) == 0 {
		roots := make([]int, len(doc.Nodes))
		for i := range roots {
			roots[i] = i
		}
		return roots
	}
	scene := 0
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		scene = *doc.Scene
	}
	return doc.Scenes[scene].Nodes
}

func (e *gltfMeshExtractor) walk(index int, parent mgl32.Mat4, depth int) error {
	doc := e.parser.document
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("node index %d out of range", index)
	}
	if depth > maxNodeDepth {
		return fmt.Errorf("node %d: hierarchy deeper than %d nodes", index, maxNodeDepth)
	}
	node := &doc.Nodes[index]
	world := parent.Mul4(nodeMatrix(node))

	if node.Mesh != nil {
		if err := e.appendMesh(*node.Mesh, world); err != nil {
			return fmt.Errorf("node %d (%q): %w", index, node.Name, err)
		}
	}
	for _, child := range node.Children {
		if err := e.walk(child, world, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (e *gltfMeshExtractor) appendMesh(index int, world mgl32.Mat4) error {
	doc := e.parser.document
	if index < 0 || index >= len(doc.Meshes) {
		return fmt.Errorf("mesh index %d out of range", index)
	}
	for i, prim := range doc.Meshes[index].Primitives {
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			continue
		}
		position, ok := prim.Attributes["POSITION"]
		if !ok {
			return fmt.Errorf("mesh %d primitive %d has no POSITION attribute", index, i)
		}
		vertices, err := e.parser.readVec3(position)
		if err != nil {
			return err
		}

		var indices []uint32
		if prim.Indices != nil {
			if indices, err = e.parser.readIndices(*prim.Indices); err != nil {
				return err
			}
		} else {
			indices = make([]uint32, len(vertices))
			for j := range indices {
				indices[j] = uint32(j)
			}
		}
		if len(indices)%3 != 0 {
			return fmt.Errorf("mesh %d primitive %d has %d indices, not a multiple of 3", index, i, len(indices))
		}

		base := uint32(len(e.mesh.Vertices))
		for _, v := range vertices {
			e.mesh.Vertices = append(e.mesh.Vertices, world.Mul4x1(v.Vec4(1)).Vec3())
		}
		for _, idx := range indices {
			if int(idx) >= len(vertices) {
				return fmt.Errorf("mesh %d primitive %d index %d out of range", index, i, idx)
			}
			e.mesh.Indices = append(e.mesh.Indices, base+idx)
		}
	}
	return nil
}

// nodeMatrix returns the local transform of a node: its matrix, or T * R * S.
func nodeMatrix(node *gltfNode) mgl32.Mat4 {
	if node.Matrix != nil {
		return mgl32.Mat4(*node.Matrix)
	}
	m := mgl32.Ident4()
	if t := node.Translation; t != nil {
		m = m.Mul4(mgl32.Translate3D(t[0], t[1], t[2]))
	}
	if r := node.Rotation; r != nil {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := node.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}
