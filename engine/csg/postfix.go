package csg

import (
	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/go-gl/mathgl/mgl32"
)

// PostfixEntry is one token of a postfix CSG listing: either a leaf (Op == OpNone, Geometry >= 0)
// or an operator applied to the two most recent operands.
type PostfixEntry struct {
	Op          Operator
	Geometry    int
	Translation mgl32.Vec3
}

// LeafEntry is shorthand for a leaf token.
func LeafEntry(geometry int, translation mgl32.Vec3) PostfixEntry {
	return PostfixEntry{Op: OpNone, Geometry: geometry, Translation: translation}
}

// OpEntry is shorthand for an operator token.
func OpEntry(op Operator) PostfixEntry {
	return PostfixEntry{Op: op, Geometry: NoNode}
}

// FromPostfix converts a postfix listing into a linked node array. Node i is token i, so the
// root is the last token and the node array is already in evaluation order.
//
// Parameters:
//   - entries: the postfix tokens
//
// Returns:
//   - []Node: the node array, ready for BuildTree
//   - error: a ValidationError when an operator lacks operands or operands are left over
func FromPostfix(entries []PostfixEntry) ([]Node, error) {
	nodes := make([]Node, len(entries))
	stack := make([]int, 0, len(entries))
	for i, e := range entries {
		nodes[i] = Node{
			Index:       i,
			Op:          e.Op,
			Geometry:    e.Geometry,
			Left:        NoNode,
			Right:       NoNode,
			Parent:      NoNode,
			Translation: e.Translation,
		}
		if e.Op == OpNone {
			if e.Geometry < 0 {
				return nil, common.NewValidationError("csg", "postfix token %d is a leaf without geometry", i)
			}
			stack = append(stack, i)
			continue
		}
		if len(stack) < 2 {
			return nil, common.NewValidationError("csg", "postfix token %d (%s) needs two operands, have %d", i, e.Op, len(stack))
		}
		left, right := stack[len(stack)-2], stack[len(stack)-1]
		stack = stack[:len(stack)-2]
		nodes[i].Geometry = NoNode
		nodes[i].Left, nodes[i].Right = left, right
		nodes[left].Parent, nodes[right].Parent = i, i
		stack = append(stack, i)
	}
	if len(stack) != 1 {
		return nil, common.NewValidationError("csg", "postfix listing leaves %d operands on the stack, want 1", len(stack))
	}
	return nodes, nil
}
