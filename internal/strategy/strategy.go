// Package strategy defines the shared vocabulary both execution strategies
// (strict, deferred) implement and the engine façade programs against
// (spec.md §4.6-4.8): compiled plans, node events, cache summaries, and the
// run/stream/page surface.
package strategy

import (
	"context"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
)

// NodeStatus is one node's outcome for one evaluation.
type NodeStatus string

const (
	StatusCached   NodeStatus = "cached"
	StatusComputed NodeStatus = "computed"
	StatusFailed   NodeStatus = "failed"
)

// ErrorKind tags the failure modes spec.md §7 enumerates for runtime
// (as opposed to reducer-time) failures.
type ErrorKind string

const (
	ErrorKindKernel       ErrorKind = "KernelError"
	ErrorKindStore        ErrorKind = "StoreError"
	ErrorKindCancelled    ErrorKind = "Cancelled"
	ErrorKindConflicting  ErrorKind = "ConflictingContent"
	ErrorKindUnresolvable ErrorKind = "UnresolvableNode"
)

// NodeEvent is the engine's only structured "log" surface (SPEC_FULL.md
// §A.4): one record per node evaluated during a run.
type NodeEvent struct {
	NodeId ir.NodeId
	Status NodeStatus
	Kind   ErrorKind
	Err    error
}

// CacheSummary accumulates over one run (spec.md §4.7).
type CacheSummary struct {
	Computed    int
	CachedStore int
	Failed      int
}

// Failure pairs a failed node with its goal and error, for ExecutionResult.
type Failure struct {
	GoalName string
	NodeId   ir.NodeId
	Err      error
}

// ExecutionResult is what Run/ExecuteWorkplan return; the call itself never
// returns a non-nil error for ordinary kernel/store failures — those are
// reported here so independent goals can still succeed (spec.md §7).
type ExecutionResult struct {
	Success      bool
	Failures     []Failure
	CacheSummary CacheSummary
	NodeEvents   []NodeEvent
}

// PageResult is one page of a sequence-valued node (spec.md §4.8).
type PageResult struct {
	Items   []any
	HasMore bool
}

// PreparedPlan is a strategy-compiled plan, opaque to callers beyond Plan().
type PreparedPlan interface {
	Plan() *ir.SymbolicPlan
}

// Strategy is the interface internal/engine delegates to (spec.md §4.6).
type Strategy interface {
	CompilePlan(plan *ir.SymbolicPlan) (PreparedPlan, error)
	Run(ctx context.Context, prepared PreparedPlan) (*ExecutionResult, error)
	ExecuteWorkplan(ctx context.Context, prepared PreparedPlan) (*ExecutionResult, error)
	Stream(ctx context.Context, prepared PreparedPlan, node ir.NodeId, chunkSize int) (func() (lazyseq.Chunk, bool, error), error)
	Page(ctx context.Context, prepared PreparedPlan, node ir.NodeId, offset, limit int) (PageResult, error)
}
