// Package strict implements the single-threaded, topological-by-recursion
// execution strategy (spec.md §4.7): evaluate a goal's node, memoizing every
// dependency exactly once per run, probing the persistent store before
// invoking a kernel, and special-casing default.map/default.for_loop by
// applying their erased closure per element through the reducer's live
// Session rather than through ordinary kernel dispatch.
package strict

import (
	"context"
	"fmt"

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

// Strict is the strategy's handle: the registry and store are shared process
// state, and Session is the live reducer that planned (and may still be
// planning, via ApplyElement) the nodes this strategy evaluates.
type Strict struct {
	Registry *registry.Registry
	Store    *store.Store
	Session  *reducer.Session
}

// New returns a Strict strategy over the given shared state.
func New(session *reducer.Session, reg *registry.Registry, st *store.Store) *Strict {
	contract.NotNil(session, "session")
	contract.NotNil(reg, "reg")
	contract.NotNil(st, "st")
	return &Strict{Registry: reg, Store: st, Session: session}
}

type prepared struct{ plan *ir.SymbolicPlan }

func (p *prepared) Plan() *ir.SymbolicPlan { return p.plan }

// CompilePlan does no upfront work for the strict strategy — there is no
// task graph to build ahead of time, since evaluation order falls directly
// out of recursive, memoized dependency resolution.
func (s *Strict) CompilePlan(plan *ir.SymbolicPlan) (strategy.PreparedPlan, error) {
	contract.NotNil(plan, "plan")
	return &prepared{plan: plan}, nil
}

// nodeLookup resolves id against plan first, falling back to the Session's
// live Planner — necessary for NodeIds minted by ApplyElement after plan was
// snapshotted (spec.md §4.7).
func nodeLookup(plan *ir.SymbolicPlan, session *reducer.Session, id ir.NodeId) (ir.NodeSpec, bool) {
	if n, ok := plan.Node(id); ok {
		return n, true
	}
	return session.Planner.Node(id)
}

// evaluator holds one Run's working state: a per-run memoization cache
// (distinct from the persistent store) and the accumulated event/summary
// trail.
type evaluator struct {
	strict  *Strict
	plan    *ir.SymbolicPlan
	cache   map[ir.NodeId]any
	events  []strategy.NodeEvent
	summary strategy.CacheSummary
}

func newEvaluator(s *Strict, plan *ir.SymbolicPlan) *evaluator {
	return &evaluator{strict: s, plan: plan, cache: make(map[ir.NodeId]any)}
}

func (e *evaluator) eval(ctx context.Context, id ir.NodeId) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := e.cache[id]; ok {
		return v, nil
	}

	node, ok := nodeLookup(e.plan, e.strict.Session, id)
	if !ok {
		return nil, fmt.Errorf("voxlogica: node %s not found in plan", id)
	}

	switch node.Kind {
	case ir.KindConstant:
		v := node.Attrs["value"]
		e.cache[id] = v
		return v, nil

	case ir.KindClosure:
		return nil, fmt.Errorf("voxlogica: node %s is a closure, not a value (applied via default.map/for_loop only)", id)

	case ir.KindPrimitive:
		v, err := e.evalPrimitive(ctx, id, node)
		if err != nil {
			return nil, err
		}
		e.cache[id] = v
		return v, nil

	default:
		return nil, fmt.Errorf("voxlogica: node %s has unhandled kind %q", id, node.Kind)
	}
}

func (e *evaluator) evalPrimitive(ctx context.Context, id ir.NodeId, node ir.NodeSpec) (any, error) {
	if node.Operator == dfault.MapOperator || node.Operator == dfault.ForLoopOperator {
		return e.evalMap(ctx, id, node)
	}

	spec, err := e.strict.Registry.Resolve(node.Operator, nil)
	if err != nil {
		e.fail(id, strategy.ErrorKindUnresolvable, err)
		return nil, err
	}

	if spec.Kind == registry.Pure {
		if cached, found, err := e.probeStore(id); err != nil {
			return nil, err
		} else if found {
			return cached, nil
		}
	}

	args, err := e.evalArgs(ctx, node)
	if err != nil {
		return nil, err
	}

	kernel, err := e.strict.Registry.Kernel(spec)
	if err != nil {
		e.fail(id, strategy.ErrorKindKernel, err)
		return nil, err
	}

	if spec.Kind == registry.Effect {
		lock := e.strict.Registry.EffectLock(spec.QualifiedName())
		lock.Lock()
		defer lock.Unlock()
	}

	result, err := kernel(args)
	if err != nil {
		e.fail(id, strategy.ErrorKindKernel, fmt.Errorf("voxlogica: %s: %w", spec.QualifiedName(), err))
		return nil, err
	}

	if spec.Kind == registry.Pure {
		if err := e.strict.Store.Put(id, result, map[string]any{"operator": node.Operator}); err != nil {
			if _, ok := err.(*store.ConflictingContentError); ok {
				e.fail(id, strategy.ErrorKindConflicting, err)
				return nil, err
			}
			// StoreError: logged by the store itself, not fatal to this run.
		}
	}

	e.events = append(e.events, strategy.NodeEvent{NodeId: id, Status: strategy.StatusComputed})
	e.summary.Computed++
	return result, nil
}

// probeStore checks the persistent store for id, decoding it back into a
// usable value when the codec can do so losslessly. Sequence envelopes only
// carry a 16-item preview (spec.md §6), so a cache hit there is reported for
// bookkeeping but the value is recomputed to preserve the exact per-element
// NodeIds a consuming default.map still needs to re-enter.
func (e *evaluator) probeStore(id ir.NodeId) (any, bool, error) {
	has, err := e.strict.Store.Has(id)
	if err != nil || !has {
		return nil, false, nil
	}
	rec, found, err := e.strict.Store.Get(id)
	if err != nil || !found {
		return nil, false, nil
	}
	if rec.VoxType == pod.TypeSequence {
		// Only a 16-item preview survives the envelope; a consumer (notably
		// default.map applying its closure per element) needs every element's
		// own NodeId, so this is recorded as a cache hit but recomputed.
		e.events = append(e.events, strategy.NodeEvent{NodeId: id, Status: strategy.StatusCached})
		e.summary.CachedStore++
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
	e.events = append(e.events, strategy.NodeEvent{NodeId: id, Status: strategy.StatusCached})
	e.summary.CachedStore++
	return value, true, nil
}

func (e *evaluator) evalArgs(ctx context.Context, node ir.NodeSpec) (map[string]any, error) {
	args := make(map[string]any, len(node.Args)+len(node.Kwargs)+len(node.Attrs))
	for i, argId := range node.Args {
		v, err := e.eval(ctx, argId)
		if err != nil {
			return nil, err
		}
		args[fmt.Sprintf("%d", i)] = v
	}
	for _, kw := range node.Kwargs {
		v, err := e.eval(ctx, kw.Value)
		if err != nil {
			return nil, err
		}
		args[kw.Key] = v
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
	closure, ok := e.strict.Session.Closure(closureId)
	if !ok {
		return nil, fmt.Errorf("voxlogica: node %s: closure %s was not recorded by the reducer", id, closureId)
	}

	elements, err := toSlice(ctx, iterVal)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, len(elements))
	for _, elemValue := range elements {
		elementNodeId, err := e.strict.Session.Planner.AddConstant(elemValue, outputKindOf(elemValue))
		if err != nil {
			return nil, err
		}
		resultId, err := e.strict.Session.ApplyElement(closure, elementNodeId)
		if err != nil {
			e.fail(id, strategy.ErrorKindKernel, err)
			return nil, err
		}
		resultVal, err := e.eval(ctx, resultId)
		if err != nil {
			return nil, err
		}
		results = append(results, resultVal)
	}

	seq := lazyseq.FromSlice(results)
	if err := e.strict.Store.Put(id, seq, map[string]any{"operator": node.Operator}); err != nil {
		if _, ok := err.(*store.ConflictingContentError); ok {
			e.fail(id, strategy.ErrorKindConflicting, err)
			return nil, err
		}
	}
	e.events = append(e.events, strategy.NodeEvent{NodeId: id, Status: strategy.StatusComputed})
	e.summary.Computed++
	return seq, nil
}

func (e *evaluator) fail(id ir.NodeId, kind strategy.ErrorKind, err error) {
	e.events = append(e.events, strategy.NodeEvent{NodeId: id, Status: strategy.StatusFailed, Kind: kind, Err: err})
	e.summary.Failed++
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
		items, err := vv.Take(ctx, intMax)
		if err != nil {
			return nil, err
		}
		return items, nil
	case []any:
		return vv, nil
	default:
		return nil, fmt.Errorf("voxlogica: value of type %T is not iterable", v)
	}
}

// intMax stands in for "all of it" when materialising an iterable fully;
// sliceSequence.Take treats any n >= len(items) as "take everything".
const intMax = int(^uint(0) >> 1)

// run is shared by Run and ExecuteWorkplan: the strict strategy never
// distinguishes a streaming workplan from a direct run — both evaluate every
// goal to completion.
func (s *Strict) run(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	pp, ok := p.(*prepared)
	if !ok {
		return nil, fmt.Errorf("voxlogica: prepared plan was not produced by strict.CompilePlan")
	}

	ev := newEvaluator(s, pp.plan)
	result := &strategy.ExecutionResult{Success: true}

	for _, goal := range pp.plan.Goals {
		val, err := ev.eval(ctx, goal.Id)
		if err != nil {
			result.Success = false
			result.Failures = append(result.Failures, strategy.Failure{GoalName: goal.Name, NodeId: goal.Id, Err: err})
			continue
		}
		if err := strategy.ExecuteGoal(ctx, goal, val); err != nil {
			result.Success = false
			result.Failures = append(result.Failures, strategy.Failure{GoalName: goal.Name, NodeId: goal.Id, Err: err})
		}
	}

	result.NodeEvents = ev.events
	result.CacheSummary = ev.summary
	return result, nil
}

func (s *Strict) Run(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	return s.run(ctx, p)
}

func (s *Strict) ExecuteWorkplan(ctx context.Context, p strategy.PreparedPlan) (*strategy.ExecutionResult, error) {
	return s.run(ctx, p)
}

func (s *Strict) Stream(ctx context.Context, p strategy.PreparedPlan, node ir.NodeId, chunkSize int) (func() (lazyseq.Chunk, bool, error), error) {
	pp, ok := p.(*prepared)
	if !ok {
		return nil, fmt.Errorf("voxlogica: prepared plan was not produced by strict.CompilePlan")
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

func (s *Strict) Page(ctx context.Context, p strategy.PreparedPlan, node ir.NodeId, offset, limit int) (strategy.PageResult, error) {
	pp, ok := p.(*prepared)
	if !ok {
		return strategy.PageResult{}, fmt.Errorf("voxlogica: prepared plan was not produced by strict.CompilePlan")
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
