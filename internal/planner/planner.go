// Package planner provides the mutable plan-builder the reducer drives while
// walking the AST, on top of the immutable types in package ir.
package planner

import (
	"github.com/voxlogica-go/voxlogica/internal/hashing"
	"github.com/voxlogica-go/voxlogica/internal/ir"
)

// Planner is the mutable builder the reducer uses while walking the AST. It
// exports an immutable SymbolicPlan via ToPlan. Structural sharing (spec.md
// §3) falls directly out of AddNode: a node is only inserted the first time
// its hash is seen, so any two equal NodeSpecs collapse to one NodeId.
type Planner struct {
	nodes              map[ir.NodeId]ir.NodeSpec
	goals              []ir.GoalSpec
	importedNamespaces []string
	seenNamespace      map[string]bool
}

// New returns an empty Planner.
func New() *Planner {
	return &Planner{
		nodes:         make(map[ir.NodeId]ir.NodeSpec),
		seenNamespace: make(map[string]bool),
	}
}

// AddNode hashes n and inserts it if its NodeId is not already present,
// returning the NodeId either way. This is the sole memoization point: two
// semantically-equal NodeSpecs anywhere in the program — even built from
// unrelated subexpressions — always yield the same NodeId.
func (p *Planner) AddNode(n ir.NodeSpec) (ir.NodeId, error) {
	id, err := hashing.HashNode(n)
	if err != nil {
		return "", err
	}
	if _, exists := p.nodes[id]; !exists {
		p.nodes[id] = n
	}
	return id, nil
}

// AddConstant is a convenience wrapper for literal values.
func (p *Planner) AddConstant(value any, outputKind ir.OutputKind) (ir.NodeId, error) {
	return p.AddNode(ir.NodeSpec{
		Kind:       ir.KindConstant,
		Operator:   "constant",
		Attrs:      map[string]any{"value": value},
		OutputKind: outputKind,
	})
}

// AddGoal records a print/save goal against an already-planned node.
func (p *Planner) AddGoal(operation string, id ir.NodeId, name string) {
	p.goals = append(p.goals, ir.GoalSpec{Operation: operation, Id: id, Name: name})
}

// ImportNamespace records ns as imported, preserving first-import order and
// ignoring duplicates (spec.md §4.3 resolution order scans namespaces in
// import order).
func (p *Planner) ImportNamespace(ns string) {
	if p.seenNamespace[ns] {
		return
	}
	p.seenNamespace[ns] = true
	p.importedNamespaces = append(p.importedNamespaces, ns)
}

// ImportedNamespaces returns the namespaces imported so far, in import order.
func (p *Planner) ImportedNamespaces() []string {
	out := make([]string, len(p.importedNamespaces))
	copy(out, p.importedNamespaces)
	return out
}

// Has reports whether id has already been planned.
func (p *Planner) Has(id ir.NodeId) bool {
	_, ok := p.nodes[id]
	return ok
}

// Node returns the NodeSpec for id as currently planned.
func (p *Planner) Node(id ir.NodeId) (ir.NodeSpec, bool) {
	n, ok := p.nodes[id]
	return n, ok
}

// ToPlan exports an immutable SymbolicPlan snapshot. The Planner remains
// usable afterward (e.g. a REPL reusing a Planner across statements), but the
// returned plan's Nodes/Goals/ImportedNamespaces are copies and are never
// mutated by further Planner calls.
func (p *Planner) ToPlan() *ir.SymbolicPlan {
	nodes := make(map[ir.NodeId]ir.NodeSpec, len(p.nodes))
	for id, n := range p.nodes {
		nodes[id] = n
	}
	goals := make([]ir.GoalSpec, len(p.goals))
	copy(goals, p.goals)
	namespaces := make([]string, len(p.importedNamespaces))
	copy(namespaces, p.importedNamespaces)

	return &ir.SymbolicPlan{
		Nodes:              nodes,
		Goals:              goals,
		ImportedNamespaces: namespaces,
	}
}
