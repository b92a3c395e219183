// Package engine is the execution engine façade spec.md §4.6 describes: it
// selects a strategy, injects the shared result store and registry, and
// exposes compile_plan/run/stream/page/execute_workplan. The engine does not
// interpret NodeSpecs itself — every one of those calls delegates straight to
// the selected strategy.Strategy.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/config"
	"github.com/voxlogica-go/voxlogica/internal/contract"
	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	dataset "github.com/voxlogica-go/voxlogica/internal/primitives/dataset"
	dfault "github.com/voxlogica-go/voxlogica/internal/primitives/default"
	strs "github.com/voxlogica-go/voxlogica/internal/primitives/strings"
	"github.com/voxlogica-go/voxlogica/internal/reducer"
	"github.com/voxlogica-go/voxlogica/internal/registry"
	"github.com/voxlogica-go/voxlogica/internal/store"
	"github.com/voxlogica-go/voxlogica/internal/strategy"
	"github.com/voxlogica-go/voxlogica/internal/strategy/deferred"
	"github.com/voxlogica-go/voxlogica/internal/strategy/strict"
)

// Engine owns the process-wide state spec.md §5 calls "global": the
// registry (read-mostly after construction) and the result store (shared
// mutably among workers). Both are populated once, here, and nowhere else.
type Engine struct {
	Registry *registry.Registry
	Store    *store.Store
	Session  *reducer.Session

	strat strategy.Strategy

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New constructs an Engine from cfg: opens the result store, registers and
// imports the built-in namespaces, and selects the configured strategy. No
// namespace beyond "default" is auto-imported — a program must still declare
// "import strings"/"import dataset" to use them, matching spec.md §4.3's
// namespace-scoped resolution.
func New(cfg config.Config) (*Engine, error) {
	reg := registry.New()
	reg.RegisterManifest(dfault.Namespace, dfault.Manifest)
	reg.RegisterManifest(strs.Namespace, strs.Manifest)
	reg.RegisterManifest(dataset.Namespace, dataset.Manifest)
	if err := reg.ImportNamespace(dfault.Namespace); err != nil {
		return nil, fmt.Errorf("voxlogica: importing default namespace: %w", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("voxlogica: opening result store %q: %w", cfg.StorePath, err)
	}

	session := reducer.NewSession(reg)

	var strat strategy.Strategy
	switch cfg.Strategy {
	case config.StrategyStrict:
		strat = strict.New(session, reg, st)
	case config.StrategyDeferred, "":
		strat = deferred.New(session, reg, st, cfg.Workers)
	default:
		_ = st.Close()
		return nil, fmt.Errorf("voxlogica: unknown strategy %q", cfg.Strategy)
	}

	return &Engine{Registry: reg, Store: st, Session: session, strat: strat}, nil
}

// Close flushes and closes the result store. The Engine must not be used
// afterwards.
func (e *Engine) Close() error {
	return e.Store.Close()
}

// Reduce runs the reducer over program, producing the SymbolicPlan that
// CompilePlan consumes. Kept separate from CompilePlan because reduction
// (AST → IR) and strategy compilation are genuinely different phases
// (spec.md §2's data-flow diagram) — a caller inspecting or caching the
// SymbolicPlan itself needs this split.
func (e *Engine) Reduce(program *ast.Program) (*ir.SymbolicPlan, error) {
	contract.NotNil(program, "program")
	plan, _, err := e.Session.Reduce(program)
	return plan, err
}

// CompilePlan delegates to the selected strategy; the engine itself never
// interprets a NodeSpec.
func (e *Engine) CompilePlan(plan *ir.SymbolicPlan) (strategy.PreparedPlan, error) {
	return e.strat.CompilePlan(plan)
}

// Run evaluates every goal in prepared to completion, triggering print/save
// side effects in goal-declaration order (spec.md §5's ordering guarantee for
// execute_workplan/run). The given ctx must not be the literal
// context.Background() value: Run derives its own cancellable child so that
// a concurrent Cancel() call reaches every in-flight task, and a caller
// passing Background() directly would otherwise have no way to ever cancel.
func (e *Engine) Run(ctx context.Context, prepared strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	contract.ContextNotBackground(ctx, "Engine.Run")
	runCtx, cancel := e.beginCancellable(ctx)
	defer e.endCancellable(cancel)
	return e.strat.Run(runCtx, prepared)
}

// ExecuteWorkplan is, for every strategy this engine selects among, identical
// to Run: both evaluate every goal in prepared to completion. The name is
// kept distinct because spec.md §4.6 lists it as its own façade operation.
func (e *Engine) ExecuteWorkplan(ctx context.Context, prepared strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	contract.ContextNotBackground(ctx, "Engine.ExecuteWorkplan")
	runCtx, cancel := e.beginCancellable(ctx)
	defer e.endCancellable(cancel)
	return e.strat.ExecuteWorkplan(runCtx, prepared)
}

// Stream returns a chunk iterator over node's sequence, each chunk holding at
// most chunkSize elements. Streaming is a pure reader (spec.md §5): it never
// triggers a goal's print/save side effect, so it is not registered against
// Cancel — callers control its lifetime through ctx directly.
func (e *Engine) Stream(ctx context.Context, prepared strategy.PreparedPlan, node ir.NodeId, chunkSize int) (func() (lazyseq.Chunk, bool, error), error) {
	contract.Positive(chunkSize, "chunkSize")
	return e.strat.Stream(ctx, prepared, node, chunkSize)
}

// Page returns up to limit elements of node's sequence starting at offset,
// without materialising skipped elements beyond what the producer's own
// partition granularity forces (spec.md §4.8).
func (e *Engine) Page(ctx context.Context, prepared strategy.PreparedPlan, node ir.NodeId, offset, limit int) (strategy.PageResult, error) {
	return e.strat.Page(ctx, prepared, node, offset, limit)
}

// Cancel cooperatively stops the Run/ExecuteWorkplan call currently in
// flight, if any (spec.md §4.8): tasks already inside a kernel invocation run
// to completion, pending tasks are dropped, and any store.Put that already
// completed is retained. A Cancel with nothing in flight is a harmless no-op.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (e *Engine) beginCancellable(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()
	return runCtx, cancel
}

func (e *Engine) endCancellable(cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancel = nil
	e.mu.Unlock()
	cancel()
}
