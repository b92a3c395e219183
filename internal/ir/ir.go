// Package ir defines the symbolic intermediate representation the reducer
// produces: an immutable, content-addressed dataflow graph independent of
// any execution strategy.
package ir

// NodeId is the lowercase hex SHA-256 content identifier of a NodeSpec's
// canonical payload. See package hashing.
type NodeId = string

// NodeKind tags what a NodeSpec represents.
type NodeKind string

const (
	KindConstant  NodeKind = "constant"
	KindPrimitive NodeKind = "primitive"
	KindClosure   NodeKind = "closure"
)

// OutputKind is the coarse type tag carried by every NodeSpec. It is used for
// dispatch (does a producer support pagination?) and for goal reporting
// (print prints a header without materializing a sequence), never for
// type-checking beyond this coarse distinction.
type OutputKind string

const (
	OutputScalar   OutputKind = "scalar"
	OutputSequence OutputKind = "sequence"
	OutputTree     OutputKind = "tree"
	OutputDataset  OutputKind = "dataset"
	OutputEffect   OutputKind = "effect"
	OutputClosure  OutputKind = "closure"
	OutputUnknown  OutputKind = "unknown"
)

// KwArg is one (key, NodeId) pair in a NodeSpec.kwargs set. Keys are unique
// within a NodeSpec; order is not semantically significant (the hasher sorts
// by key before canonicalizing) but a concrete slice is kept here so callers
// have a deterministic iteration order without re-sorting on every read.
type KwArg struct {
	Key   string
	Value NodeId
}

// NodeSpec is the unit of computation: a kind, an operator name, ordered
// positional argument node ids, named keyword-argument node ids, a bag of
// literal/JSON-serializable attributes, and a coarse output kind.
//
// NodeSpec is immutable once constructed and must never hold an opaque
// runtime value (an in-memory image, an array) in Attrs — those exist only
// as results keyed by a NodeId, never as plan-time operands.
type NodeSpec struct {
	Kind       NodeKind
	Operator   string
	Args       []NodeId
	Kwargs     []KwArg
	Attrs      map[string]any
	OutputKind OutputKind
}

// Syntax is implemented by attrs values that want to control their own
// canonical projection during hashing instead of going through generic
// struct/map normalization (e.g. a compiled pattern attrs value that should
// hash by its source text, not its internal representation).
type Syntax interface {
	Syntax() any
}

// GoalSpec is an imperative request attached to a NodeId: print a labelled
// value, or save a value to a path. Name is informational for print and a
// writable filesystem path for save.
type GoalSpec struct {
	Operation string // "print" | "save"
	Id        NodeId
	Name      string
}

const (
	GoalPrint = "print"
	GoalSave  = "save"
)

// SymbolicPlan is the reducer's output: a definition graph of NodeSpecs keyed
// by content hash, an ordered sequence of goals, and the namespaces imported
// while reducing the program. It is immutable once returned by the reducer —
// callers must treat Nodes as read-only.
type SymbolicPlan struct {
	Nodes              map[NodeId]NodeSpec
	Goals              []GoalSpec
	ImportedNamespaces []string
}

// NodeCount reports the number of distinct nodes in the plan.
func (p *SymbolicPlan) NodeCount() int {
	return len(p.Nodes)
}

// Node looks up a node by id, returning ok=false if the plan has no such
// node — which, for a plan that passed Validate, only happens for a caller
// bug (referencing an id from a different plan).
func (p *SymbolicPlan) Node(id NodeId) (NodeSpec, bool) {
	n, ok := p.Nodes[id]
	return n, ok
}

// Validate checks the referential-integrity and acyclicity invariants (H2,
// H3 in spec.md §8): every id mentioned anywhere in the plan resolves in
// Nodes, and the args/kwargs relation is a DAG.
func (p *SymbolicPlan) Validate() error {
	for id, n := range p.Nodes {
		for _, a := range n.Args {
			if _, ok := p.Nodes[a]; !ok {
				return &DanglingReferenceError{From: id, To: a}
			}
		}
		for _, kw := range n.Kwargs {
			if _, ok := p.Nodes[kw.Value]; !ok {
				return &DanglingReferenceError{From: id, To: kw.Value}
			}
		}
	}
	for _, g := range p.Goals {
		if _, ok := p.Nodes[g.Id]; !ok {
			return &DanglingReferenceError{From: "goal:" + g.Name, To: g.Id}
		}
	}
	return detectCycle(p.Nodes)
}

// DanglingReferenceError reports a NodeId referenced by args/kwargs/goals
// that does not resolve in the plan (spec.md §3 referential-integrity
// invariant).
type DanglingReferenceError struct {
	From NodeId
	To   NodeId
}

func (e *DanglingReferenceError) Error() string {
	return "voxlogica: dangling reference from " + e.From + " to " + e.To
}

// CycleError reports that the args/kwargs relation is not a DAG.
type CycleError struct {
	Path []NodeId
}

func (e *CycleError) Error() string {
	msg := "voxlogica: cycle detected: "
	for i, id := range e.Path {
		if i > 0 {
			msg += " -> "
		}
		msg += id
	}
	return msg
}

func detectCycle(nodes map[NodeId]NodeSpec) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[NodeId]int, len(nodes))
	var path []NodeId

	var visit func(id NodeId) error
	visit = func(id NodeId) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			cyclePath := append(append([]NodeId{}, path...), id)
			return &CycleError{Path: cyclePath}
		}
		color[id] = gray
		path = append(path, id)
		n := nodes[id]
		for _, a := range n.Args {
			if err := visit(a); err != nil {
				return err
			}
		}
		for _, kw := range n.Kwargs {
			if err := visit(kw.Value); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for id := range nodes {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}
