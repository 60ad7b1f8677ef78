package csg

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Operator is the boolean operation of an internal node.
type Operator int32

const (
	// OpNone marks a leaf.
	OpNone Operator = -1
	// OpUnion keeps the volume covered by either child.
	OpUnion Operator = 0
	// OpIntersection keeps the volume covered by both children.
	OpIntersection Operator = 1
	// OpDifference keeps the volume of the left child not covered by the right child.
	OpDifference Operator = 2
)

func (o Operator) String() string {
	switch o {
	case OpNone:
		return "leaf"
	case OpUnion:
		return "union"
	case OpIntersection:
		return "intersection"
	case OpDifference:
		return "difference"
	default:
		return fmt.Sprintf("op(%d)", int32(o))
	}
}

// NoNode is the index used for an absent child or the root's parent.
const NoNode = -1

// Node is one entry of the flat CSG node array. Internal nodes have Geometry == NoNode and two
// children; leaves reference a shape of the CSG shape library through Geometry and have no
// children.
type Node struct {
	Index       int
	Op          Operator
	Geometry    int
	Left        int
	Right       int
	Parent      int
	Translation mgl32.Vec3
}

// Leaf reports whether n references a shape.
func (n Node) Leaf() bool {
	return n.Geometry >= 0
}

// Tree is a validated CSG tree. The node array is kept in its original order so it can be
// uploaded verbatim; Root is the index of the single parentless node.
type Tree struct {
	nodes []Node
	root  int
	depth []int
}

// BuildTree validates nodes and returns the tree. Validation fails fast with a
// *common.ValidationError when:
//   - the array is empty or a node's Index disagrees with its position
//   - there is not exactly one root (Parent == NoNode)
//   - a parent or child index is out of range
//   - a leaf has children or an internal node lacks one, or has no valid operator
//   - a parent does not list the node as a child, or a child does not name its parent
//   - traversal from the root revisits a node (cycle) or misses one (disconnected)
//
// Parameters:
//   - nodes: the flat node array
//
// Returns:
//   - *Tree: the validated tree
//   - error: a validation error naming the first offending node
func BuildTree(nodes []Node) (*Tree, error) {
	if len(nodes) == 0 {
		return nil, common.NewValidationError("csg", "tree has no nodes")
	}

	inRange := func(i int) bool { return i >= 0 && i < len(nodes) }
	root := NoNode
	for i, n := range nodes {
		if n.Index != i {
			return nil, common.NewValidationError("csg", "node at position %d carries index %d", i, n.Index)
		}
		if n.Parent == NoNode {
			if root != NoNode {
				return nil, common.NewValidationError("csg", "nodes %d and %d are both roots", root, i)
			}
			root = i
		} else if !inRange(n.Parent) {
			return nil, common.NewValidationError("csg", "node %d parent %d out of range [0,%d)", i, n.Parent, len(nodes))
		} else if n.Parent == i {
			return nil, common.NewValidationError("csg", "node %d is its own parent", i)
		}

		if n.Leaf() {
			if n.Left != NoNode || n.Right != NoNode {
				return nil, common.NewValidationError("csg", "leaf node %d has children (%d, %d)", i, n.Left, n.Right)
			}
			continue
		}
		if n.Geometry != NoNode {
			return nil, common.NewValidationError("csg", "node %d has invalid geometry %d", i, n.Geometry)
		}
		switch n.Op {
		case OpUnion, OpIntersection, OpDifference:
		default:
			return nil, common.NewValidationError("csg", "internal node %d has invalid operator %s", i, n.Op)
		}
		if !inRange(n.Left) || !inRange(n.Right) {
			return nil, common.NewValidationError("csg", "internal node %d children (%d, %d) out of range [0,%d)", i, n.Left, n.Right, len(nodes))
		}
		if n.Left == n.Right {
			return nil, common.NewValidationError("csg", "internal node %d uses node %d as both children", i, n.Left)
		}
	}
	if root == NoNode {
		return nil, common.NewValidationError("csg", "tree has no root node (every node has a parent)")
	}

	for i, n := range nodes {
		if n.Parent != NoNode {
			p := nodes[n.Parent]
			if p.Left != i && p.Right != i {
				return nil, common.NewValidationError("csg", "node %d names parent %d which does not list it as a child", i, n.Parent)
			}
		}
		if !n.Leaf() {
			for _, c := range [2]int{n.Left, n.Right} {
				if nodes[c].Parent != i {
					return nil, common.NewValidationError("csg", "node %d lists child %d whose parent is %d", i, c, nodes[c].Parent)
				}
			}
		}
	}

	depth := make([]int, len(nodes))
	visited := make([]bool, len(nodes))
	stack := []int{root}
	count := 0
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[i] {
			return nil, common.NewValidationError("csg", "node %d reached twice from root %d (cycle)", i, root)
		}
		visited[i] = true
		count++
		n := nodes[i]
		if !n.Leaf() {
			depth[n.Left] = depth[i] + 1
			depth[n.Right] = depth[i] + 1
			stack = append(stack, n.Right, n.Left)
		}
	}
	if count != len(nodes) {
		for i, v := range visited {
			if !v {
				return nil, common.NewValidationError("csg", "node %d is not reachable from root %d", i, root)
			}
		}
	}

	return &Tree{nodes: append([]Node(nil), nodes...), root: root, depth: depth}, nil
}

// Root returns the index of the root node.
func (t *Tree) Root() int {
	return t.root
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node at index i.
func (t *Tree) Node(i int) Node {
	return t.nodes[i]
}

// Nodes returns a copy of the flat node array.
func (t *Tree) Nodes() []Node {
	return append([]Node(nil), t.nodes...)
}

// Depth returns the distance of node i from the root.
func (t *Tree) Depth(i int) int {
	return t.depth[i]
}
