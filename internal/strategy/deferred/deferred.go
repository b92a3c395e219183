// Package deferred implements the parallel, task-graph execution strategy
// spec.md §4.8 describes: node evaluation fans out across a bounded worker
// pool, concurrent requests for the same node coalesce into a single build
// via singleflight (at-most-once), and default.map applies its closure to
// every element concurrently — still collapsing equal elements onto the same
// NodeId and the same in-flight build.
package deferred

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/voxlogica-go/voxlogica/internal/contract"
	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	dfault "github.com/voxlogica-go/voxlogica/internal/primitives/default"
	"github.com/voxlogica-go/voxlogica/internal/pod"
	"github.com/voxlogica-go/voxlogica/internal/reducer"
	"github.com/voxlogica-go/voxlogica/internal/registry"
	"github.com/voxlogica-go/voxlogica/internal/store"
	"github.com/voxlogica-go/voxlogica/internal/strategy"
)

// Deferred is the strategy's handle. Workers bounds the number of concurrent
// kernel invocations in flight at once across an entire Run; 0 defaults to
// runtime.GOMAXPROCS(0).
type Deferred struct {
	Registry *registry.Registry
	Store    *store.Store
	Session  *reducer.Session
	Workers  int

	// planMu serializes writes to Session's Planner (AddConstant/ApplyElement),
	// which — per reducer.Session's own contract — is built for single-writer
	// use, together with the node and closure lookups on Session that run
	// concurrently with those writes; the deferred strategy is the first
	// concurrent writer.
	planMu sync.Mutex
}

// New returns a Deferred strategy over the given shared state.
func New(session *reducer.Session, reg *registry.Registry, st *store.Store, workers int) *Deferred {
	contract.NotNil(session, "session")
	contract.NotNil(reg, "reg")
	contract.NotNil(st, "st")
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Deferred{Registry: reg, Store: st, Session: session, Workers: workers}
}

type prepared struct{ plan *ir.SymbolicPlan }

func (p *prepared) Plan() *ir.SymbolicPlan { return p.plan }

// CompilePlan does no upfront task-graph construction: dependency order
// falls out of recursive evaluation, and singleflight coalescing makes a
// separate explicit task graph unnecessary (spec.md §4.8's "in-flight map").
func (s *Deferred) CompilePlan(plan *ir.SymbolicPlan) (strategy.PreparedPlan, error) {
	contract.NotNil(plan, "plan")
	return &prepared{plan: plan}, nil
}

func nodeLookup(plan *ir.SymbolicPlan, session *reducer.Session, id ir.NodeId) (ir.NodeSpec, bool) {
	if n, ok := plan.Node(id); ok {
		return n, true
	}
	return session.Planner.Node(id)
}

// evaluator holds one Run's concurrent working state. group coalesces
// concurrent requests for the same NodeId into a single build (at-most-once,
// spec.md §4.8); sem bounds the number of concurrent kernel invocations.
type evaluator struct {
	strategy *Deferred
	plan     *ir.SymbolicPlan
	group    singleflight.Group
	sem      chan struct{}

	mu      sync.Mutex
	cache   map[ir.NodeId]any
	events  []strategy.NodeEvent
	summary strategy.CacheSummary
}

func newEvaluator(s *Deferred, plan *ir.SymbolicPlan) *evaluator {
	return &evaluator{
		strategy: s,
		plan:     plan,
		sem:      make(chan struct{}, s.Workers),
		cache:    make(map[ir.NodeId]any),
	}
}

func (e *evaluator) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *evaluator) release() { <-e.sem }

func (e *evaluator) recordEvent(ev strategy.NodeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	switch ev.Status {
	case strategy.StatusComputed:
		e.summary.Computed++
	case strategy.StatusCached:
		e.summary.CachedStore++
	case strategy.StatusFailed:
		e.summary.Failed++
	}
}

func (e *evaluator) cached(id ir.NodeId) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.cache[id]
	return v, ok
}

func (e *evaluator) setCached(id ir.NodeId, v any) {
	e.mu.Lock()
	e.cache[id] = v
	e.mu.Unlock()
}

// eval resolves id to a value, coalescing concurrent duplicate requests for
// the same id via singleflight and memoizing the result in e.cache for the
// rest of this run.
func (e *evaluator) eval(ctx context.Context, id ir.NodeId) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := e.cached(id); ok {
		return v, nil
	}

	result, err, _ := e.group.Do(string(id), func() (any, error) {
		if v, ok := e.cached(id); ok {
			return v, nil
		}
		v, err := e.evalUncached(ctx, id)
		if err != nil {
			return nil, err
		}
		e.setCached(id, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *evaluator) evalUncached(ctx context.Context, id ir.NodeId) (any, error) {
	e.strategy.planMu.Lock()
	node, ok := nodeLookup(e.plan, e.strategy.Session, id)
	e.strategy.planMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("voxlogica: node %s not found in plan", id)
	}

	switch node.Kind {
	case ir.KindConstant:
		return node.Attrs["value"], nil

	case ir.KindClosure:
		return nil, fmt.Errorf("voxlogica: node %s is a closure, not a value (applied via default.map/for_loop only)", id)

	case ir.KindPrimitive:
		return e.evalPrimitive(ctx, id, node)

	default:
		return nil, fmt.Errorf("voxlogica: node %s has unhandled kind %q", id, node.Kind)
	}
}

func (e *evaluator) evalPrimitive(ctx context.Context, id ir.NodeId, node ir.NodeSpec) (any, error) {
	if node.Operator == dfault.MapOperator || node.Operator == dfault.ForLoopOperator {
		return e.evalMap(ctx, id, node)
	}

	spec, err := e.strategy.Registry.Resolve(node.Operator, nil)
	if err != nil {
		e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindUnresolvable, Err: err})
		return nil, err
	}

	if spec.Kind == registry.Pure {
		if cached, found, err := e.probeStore(id); err != nil {
			return nil, err
		} else if found {
			return cached, nil
		}
	}

	args, err := e.evalArgsConcurrently(ctx, node)
	if err != nil {
		return nil, err
	}

	kernel, err := e.strategy.Registry.Kernel(spec)
	if err != nil {
		e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindKernel, Err: err})
		return nil, err
	}

	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	var effectLock *sync.Mutex
	if spec.Kind == registry.Effect {
		effectLock = e.strategy.Registry.EffectLock(spec.QualifiedName())
		effectLock.Lock()
	}
	result, err := kernel(args)
	if effectLock != nil {
		effectLock.Unlock()
	}
	e.release()
	if err != nil {
		e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindKernel, Err: fmt.Errorf("voxlogica: %s: %w", spec.QualifiedName(), err)})
		return nil, err
	}

	if spec.Kind == registry.Pure {
		if err := e.strategy.Store.Put(id, result, map[string]any{"operator": node.Operator}); err != nil {
			if _, ok := err.(*store.ConflictingContentError); ok {
				e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindConflicting, Err: err})
				return nil, err
			}
		}
	}

	e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusComputed})
	return result, nil
}

func (e *evaluator) probeStore(id ir.NodeId) (any, bool, error) {
	has, err := e.strategy.Store.Has(id)
	if err != nil || !has {
		return nil, false, nil
	}
	rec, found, err := e.strategy.Store.Get(id)
	if err != nil || !found {
		return nil, false, nil
	}
	if rec.VoxType == pod.TypeSequence {
		e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusCached})
		return nil, false, nil
	}
	value, err := pod.Decode(pod.Envelope{
		FormatVersion: pod.FormatVersion,
		VoxType:       rec.VoxType,
		PayloadJSON:   rec.PayloadJSON,
		PayloadBin:    rec.PayloadBin,
	})
	if err != nil {
		return nil, false, nil
	}
	e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusCached})
	return value, true, nil
}

// evalArgsConcurrently evaluates every positional/keyword argument of node in
// its own goroutine, bounded by the evaluator's singleflight coalescing and
// by eventual kernel-invocation semaphore acquisition, not by a separate cap
// here — fanning the dependency walk itself out wide is safe since only leaf
// kernel calls consume a worker slot.
func (e *evaluator) evalArgsConcurrently(ctx context.Context, node ir.NodeSpec) (map[string]any, error) {
	args := make(map[string]any, len(node.Args)+len(node.Kwargs)+len(node.Attrs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, argId := range node.Args {
		i, argId := i, argId
		g.Go(func() error {
			v, err := e.eval(gctx, argId)
			if err != nil {
				return err
			}
			mu.Lock()
			args[fmt.Sprintf("%d", i)] = v
			mu.Unlock()
			return nil
		})
	}
	for _, kw := range node.Kwargs {
		kw := kw
		g.Go(func() error {
			v, err := e.eval(gctx, kw.Value)
			if err != nil {
				return err
			}
			mu.Lock()
			args[kw.Key] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for k, v := range node.Attrs {
		if _, exists := args[k]; !exists {
			args[k] = v
		}
	}
	return args, nil
}

func (e *evaluator) evalMap(ctx context.Context, id ir.NodeId, node ir.NodeSpec) (any, error) {
	iterVal, err := e.eval(ctx, node.Args[0])
	if err != nil {
		return nil, err
	}
	closureId := node.Args[1]
	e.strategy.planMu.Lock()
	closure, ok := e.strategy.Session.Closure(closureId)
	e.strategy.planMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("voxlogica: node %s: closure %s was not recorded by the reducer", id, closureId)
	}

	elements, err := toSlice(ctx, iterVal)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(elements))
	g, gctx := errgroup.WithContext(ctx)
	for i, elemValue := range elements {
		i, elemValue := i, elemValue
		g.Go(func() error {
			// AddConstant/ApplyElement mutate the shared, mutable Planner:
			// protected by the reducer's own single-writer expectation, so
			// serialize just this minting step across concurrent elements.
			resultId, err := e.planElement(closure, elemValue)
			if err != nil {
				e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindKernel, Err: err})
				return err
			}
			resultVal, err := e.eval(gctx, resultId)
			if err != nil {
				return err
			}
			results[i] = resultVal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seq := lazyseq.FromSlice(results)
	if err := e.strategy.Store.Put(id, seq, map[string]any{"operator": node.Operator}); err != nil {
		if _, ok := err.(*store.ConflictingContentError); ok {
			e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: strategy.ErrorKindConflicting, Err: err})
			return nil, err
		}
	}
	e.recordEvent(strategy.NodeEvent{NodeId: id, Status: strategy.StatusComputed})
	return seq, nil
}

// planElement mints the element's constant NodeId and applies the closure to
// it, serialized against every other concurrent element in this (or any
// other) Run over the same Deferred strategy's Session.
func (e *evaluator) planElement(closure *reducer.Closure, elemValue any) (ir.NodeId, error) {
	e.strategy.planMu.Lock()
	defer e.strategy.planMu.Unlock()
	elementNodeId, err := e.strategy.Session.Planner.AddConstant(elemValue, outputKindOf(elemValue))
	if err != nil {
		return "", err
	}
	return e.strategy.Session.ApplyElement(closure, elementNodeId)
}

func outputKindOf(v any) ir.OutputKind {
	if _, ok := v.(lazyseq.LazySequence); ok {
		return ir.OutputSequence
	}
	return ir.OutputScalar
}

func toSlice(ctx context.Context, v any) ([]any, error) {
	switch vv := v.(type) {
	case lazyseq.LazySequence:
		return vv.Take(ctx, intMax)
	case []any:
		return vv, nil
	default:
		return nil, fmt.Errorf("voxlogica: value of type %T is not iterable", v)
	}
}

const intMax = int(^uint(0) >> 1)

func (s *Deferred) run(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	pp, ok := p.(*prepared)
	if !ok {
		return nil, fmt.Errorf("voxlogica: prepared plan was not produced by deferred.CompilePlan")
	}

	ev := newEvaluator(s, pp.plan)
	result := &strategy.ExecutionResult{Success: true}

	type outcome struct {
		goal ir.GoalSpec
		val  any
		err  error
	}
	outcomes := make([]outcome, len(pp.plan.Goals))

	g, gctx := errgroup.WithContext(ctx)
	for i, goal := range pp.plan.Goals {
		i, goal := i, goal
		g.Go(func() error {
			val, err := ev.eval(gctx, goal.Id)
			outcomes[i] = outcome{goal: goal, val: val, err: err}
			return nil // independent goals still run to completion
		})
	}
	_ = g.Wait() // errors are carried in outcomes, never returned here

	// Goal values are computed concurrently; their print/save side effects
	// run afterwards, one at a time, in goal-declaration order.
	for _, o := range outcomes {
		if o.err == nil {
			o.err = strategy.ExecuteGoal(ctx, o.goal, o.val)
		}
		if o.err != nil {
			result.Success = false
			result.Failures = append(result.Failures, strategy.Failure{GoalName: o.goal.Name, NodeId: o.goal.Id, Err: o.err})
		}
	}

	result.NodeEvents = ev.events
	result.CacheSummary = ev.summary
	return result, nil
}

func (s *Deferred) Run(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	return s.run(ctx, p)
}

// ExecuteWorkplan, for the deferred strategy, is identical to Run: both
// evaluate every goal's node to completion across the bounded worker pool.
// A standalone "workplan" (evaluate these nodes, no goals attached) is not
// part of SPEC_FULL.md's surface beyond goal-driven runs.
func (s *Deferred) ExecuteWorkplan(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	return s.run(ctx, p)
}

func (s *Deferred) Stream(ctx context.Context, p strategy.PreparedPlan, node ir.NodeId, chunkSize int) (func() (lazyseq.Chunk, bool, error), error) {
	pp, ok := p.(*prepared)
	if !ok {
		return nil, fmt.Errorf("voxlogica: prepared plan was not produced by deferred.CompilePlan")
	}
	ev := newEvaluator(s, pp.plan)
	val, err := ev.eval(ctx, node)
	if err != nil {
		return nil, err
	}
	seq, ok := val.(lazyseq.LazySequence)
	if !ok {
		return nil, fmt.Errorf("voxlogica: node %s is not a sequence", node)
	}
	return seq.Chunks(ctx, chunkSize), nil
}

func (s *Deferred) Page(ctx context.Context, p strategy.PreparedPlan, node ir.NodeId, offset, limit int) (strategy.PageResult, error) {
	pp, ok := p.(*prepared)
	if !ok {
		return strategy.PageResult{}, fmt.Errorf("voxlogica: prepared plan was not produced by deferred.CompilePlan")
	}
	ev := newEvaluator(s, pp.plan)
	val, err := ev.eval(ctx, node)
	if err != nil {
		return strategy.PageResult{}, err
	}
	seq, ok := val.(lazyseq.LazySequence)
	if !ok {
		return strategy.PageResult{}, fmt.Errorf("voxlogica: node %s is not a sequence", node)
	}
	items, hasMore, err := lazyseq.Page(ctx, seq, offset, limit)
	if err != nil {
		return strategy.PageResult{}, err
	}
	return strategy.PageResult{Items: items, HasMore: hasMore}, nil
}
