package sequence

// Classification says how a node is rendered.
type Classification struct {
	// LeafDisplay is true for nodes shown as a single step.
	LeafDisplay bool
	HasChildren bool
}

// Classify renders childless nodes as steps, and also the two aggregate
// exposure containers whose children are an implementation detail.
func Classify(n *Node) Classification {
	if n == nil {
		return Classification{}
	}
	has := n.HasChildren()
	switch KindOf(n.Name) {
	case KindTakeManyExposures, KindSmartExposure:
		return Classification{LeafDisplay: true, HasChildren: has}
	}
	return Classification{LeafDisplay: !has, HasChildren: has}
}

var placeholderNames = map[string]bool{
	"_Container": true,
	"_Condition": true,
	"_Trigger":   true,
}

// FilterDisplayable drops unpopulated template slots, nodes named exactly
// "_Container", "_Condition" or "_Trigger". The input is not modified.
func FilterDisplayable(children []*Node) []*Node {
	out := make([]*Node, 0, len(children))
	for _, c := range children {
		if c == nil || placeholderNames[c.Name] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// FindRunningLeaf returns the deepest running node of the forest, or nil
// when nothing runs. Containers run sequentially, so the first running
// sibling wins at every level.
func FindRunningLeaf(forest []*Node) *Node {
	path := RunningPath(forest)
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1]
}

// RunningPath returns the chain of running nodes from a root down to the
// running leaf. Items are searched before Conditions, then Triggers. A
// running descendant without a name does not count as deeper, and the
// container itself is reported instead.
func RunningPath(forest []*Node) []*Node {
	for _, n := range forest {
		if n == nil || n.Status != StatusRunning {
			continue
		}
		if !n.HasChildren() {
			return []*Node{n}
		}
		for _, coll := range n.collections() {
			sub := RunningPath(coll)
			if len(sub) == 0 {
				continue
			}
			if sub[len(sub)-1].Name == "" {
				return []*Node{n}
			}
			return append([]*Node{n}, sub...)
		}
		return []*Node{n}
	}
	return nil
}

// Walk visits every non-placeholder node depth-first, Items then
// Conditions then Triggers.
func Walk(forest []*Node, fn func(n *Node, depth int)) {
	walk(forest, 0, fn)
}

func walk(nodes []*Node, depth int, fn func(*Node, int)) {
	for _, n := range FilterDisplayable(nodes) {
		fn(n, depth)
		for _, coll := range n.collections() {
			walk(coll, depth+1, fn)
		}
	}
}

// Summary is a snapshot of sequence progress.
type Summary struct {
	// Running is the deepest running node.
	Running *Node
	// Step is the node shown to the user for Running: the outermost
	// single-step node on the running path, which folds the children of
	// aggregate exposure containers into their parent.
	Step        *Node
	Description string
	Category    Category
	// Breadcrumb holds the names of the running containers above Step.
	Breadcrumb []string
	Counts     map[Status]int
	Total      int
}

// Summarize computes the progress summary of a forest.
func (e *Engine) Summarize(forest []*Node) Summary {
	s := Summary{Counts: make(map[Status]int)}
	Walk(forest, func(n *Node, _ int) {
		s.Total++
		s.Counts[n.Status]++
	})

	path := RunningPath(forest)
	if len(path) == 0 {
		return s
	}
	s.Running = path[len(path)-1]
	s.Step = s.Running
	stepAt := len(path) - 1
	for i, n := range path {
		if Classify(n).LeafDisplay {
			s.Step, stepAt = n, i
			break
		}
	}
	for _, n := range path[:stepAt] {
		if n.Name != "" {
			s.Breadcrumb = append(s.Breadcrumb, n.Name)
		}
	}
	s.Description = e.Describe(s.Step)
	s.Category = CategoryOf(s.Step)
	return s
}
