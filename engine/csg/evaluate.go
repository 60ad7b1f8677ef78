package csg

// Interval is the parametric span [Enter, Exit] along a ray that lies inside a solid.
type Interval struct {
	Hit   bool
	Enter float32
	Exit  float32
}

// Miss is the empty interval.
var Miss = Interval{}

// LeafTest returns the interval a ray spends inside the shape referenced by a leaf node.
// It stands in for the per-shape bounding test of the intersection shader.
type LeafTest func(n Node) Interval

// Result is the outcome of evaluating a tree.
type Result struct {
	// Interval is the span of the ray inside the composed solid.
	Interval Interval
	// Visited lists node indices in evaluation (post) order. Every node appears exactly once.
	Visited []int
}

// Evaluate runs the host-side reference of the CSG intersection shader: children are
// evaluated before their parent, leaves through test, internal nodes by combining their
// children's intervals with the node operator. A tree that is a single leaf returns that
// leaf's test result untouched.
//
// Parameters:
//   - test: the leaf bounding test
//
// Returns:
//   - Result: the composed interval and the visit order
func (t *Tree) Evaluate(test LeafTest) Result {
	visited := make([]int, 0, len(t.nodes))
	root := t.nodes[t.root]
	if root.Leaf() {
		visited = append(visited, t.root)
		return Result{Interval: test(root), Visited: visited}
	}

	values := make([]Interval, len(t.nodes))
	type frame struct {
		index    int
		expanded bool
	}
	stack := []frame{{index: t.root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[f.index]
		if n.Leaf() {
			values[f.index] = test(n)
			visited = append(visited, f.index)
			continue
		}
		if !f.expanded {
			stack = append(stack, frame{index: f.index, expanded: true}, frame{index: n.Right}, frame{index: n.Left})
			continue
		}
		values[f.index] = Combine(n.Op, values[n.Left], values[n.Right])
		visited = append(visited, f.index)
	}

	return Result{Interval: values[t.root], Visited: visited}
}

// Combine applies op to the intervals of the left and right operand.
//
// Parameters:
//   - op: the boolean operator
//   - a: the left operand interval
//   - b: the right operand interval
//
// Returns:
//   - Interval: the nearest span of the combined solid
func Combine(op Operator, a, b Interval) Interval {
	switch op {
	case OpUnion:
		if !a.Hit {
			return b
		}
		if !b.Hit {
			return a
		}
		if a.Enter > b.Enter {
			a, b = b, a
		}
		// Overlapping spans merge; otherwise the nearer one is the visible surface.
		if b.Enter <= a.Exit {
			return Interval{Hit: true, Enter: a.Enter, Exit: max(a.Exit, b.Exit)}
		}
		return a
	case OpIntersection:
		if !a.Hit || !b.Hit {
			return Miss
		}
		enter, exit := max(a.Enter, b.Enter), min(a.Exit, b.Exit)
		if enter > exit {
			return Miss
		}
		return Interval{Hit: true, Enter: enter, Exit: exit}
	case OpDifference:
		if !a.Hit {
			return Miss
		}
		if !b.Hit || b.Exit < a.Enter || b.Enter > a.Exit {
			return a
		}
		if b.Enter <= a.Enter {
			if b.Exit >= a.Exit {
				return Miss
			}
			return Interval{Hit: true, Enter: b.Exit, Exit: a.Exit}
		}
		return Interval{Hit: true, Enter: a.Enter, Exit: b.Enter}
	default:
		return Miss
	}
}
