// Package registry implements the primitive registry (spec.md §4.3): a
// namespaced lookup from operator name to PrimitiveSpec, with resolution
// order (qualified lookup, then import-order scan), lazy kernel loading, and
// a legacy adapter for zero-arg execute(**kwargs) style kernels.
package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/voxlogica-go/voxlogica/internal/ir"
)

// ArityKind distinguishes a fixed argument count from a variadic minimum.
type ArityKind int

const (
	ArityFixed ArityKind = iota
	ArityVariadic
)

// Arity describes how many positional arguments a primitive accepts.
type Arity struct {
	Kind ArityKind
	N    int // exact count for Fixed, minimum count for Variadic
}

// Fixed returns an Arity requiring exactly n positional arguments.
func Fixed(n int) Arity { return Arity{Kind: ArityFixed, N: n} }

// Variadic returns an Arity requiring at least min positional arguments.
func Variadic(min int) Arity { return Arity{Kind: ArityVariadic, N: min} }

// Accepts reports whether n positional arguments satisfy this arity.
func (a Arity) Accepts(n int) bool {
	switch a.Kind {
	case ArityFixed:
		return n == a.N
	case ArityVariadic:
		return n >= a.N
	default:
		return false
	}
}

func (a Arity) String() string {
	switch a.Kind {
	case ArityFixed:
		return fmt.Sprintf("exactly %d", a.N)
	case ArityVariadic:
		return fmt.Sprintf("at least %d", a.N)
	default:
		return "unknown arity"
	}
}

// PrimitiveCall is what the reducer hands a planner: already-reduced operand
// node ids plus any attrs literal to the call site (not operands).
type PrimitiveCall struct {
	Args   []ir.NodeId
	Kwargs []ir.KwArg
	Attrs  map[string]any
}

// PlannerFunc builds the NodeSpec for one application of a primitive.
type PlannerFunc func(call PrimitiveCall) ir.NodeSpec

// Kernel is the executable form of a primitive: positional args are keyed
// "0", "1", ... and named kwargs by their names, per spec.md §4.7.
type Kernel func(args map[string]any) (any, error)

// KernelLoader produces a Kernel on first use. Registration never calls
// this — kernel code (and its transitive dependencies) is only loaded when
// a strategy actually needs to run the primitive (spec.md §4.3).
type KernelLoader func() (Kernel, error)

// PrimitiveKind marks whether a primitive participates in the result cache
// (Pure) or always runs and is serialized per qualified name (Effect).
type PrimitiveKind string

const (
	Pure   PrimitiveKind = "pure"
	Effect PrimitiveKind = "effect"
)

// PrimitiveSpec is one registry entry.
type PrimitiveSpec struct {
	Name        string
	Namespace   string
	Kind        PrimitiveKind
	Arity       Arity
	AttrsSchema json.RawMessage // optional JSON Schema for call.Attrs; nil means unconstrained
	Planner     PlannerFunc
	KernelName  string
	Load        KernelLoader
	Description string

	compiledSchema *jsonschema.Schema
}

// QualifiedName is namespace + "." + name, the unambiguous address used for
// fully-qualified lookups and effect serialization.
func (s PrimitiveSpec) QualifiedName() string { return s.Namespace + "." + s.Name }

// DefaultPlanner returns the planner spec.md §4.3 describes: a PrimitiveCall
// becomes a "primitive" NodeSpec with the call's args/kwargs/attrs verbatim.
func DefaultPlanner(qualifiedName string, outputKind ir.OutputKind) PlannerFunc {
	return func(call PrimitiveCall) ir.NodeSpec {
		attrs := call.Attrs
		if attrs == nil {
			attrs = map[string]any{}
		}
		return ir.NodeSpec{
			Kind:       ir.KindPrimitive,
			Operator:   qualifiedName,
			Args:       call.Args,
			Kwargs:     call.Kwargs,
			Attrs:      attrs,
			OutputKind: outputKind,
		}
	}
}

// ManifestLoader enumerates the PrimitiveSpecs belonging to one namespace.
// Manifests are static: they do not themselves load kernel code, only
// describe what primitives exist and how to plan/load them later.
type ManifestLoader func() []PrimitiveSpec

// Registry is the process-wide namespaced primitive table. Population
// happens at engine construction (RegisterManifest); after that, reads are
// lock-free-ish snapshots guarded by a RWMutex, matching spec.md §5's
// "read-mostly" resource model.
type Registry struct {
	mu          sync.RWMutex
	manifests   map[string]ManifestLoader
	namespaces  map[string]map[string]PrimitiveSpec // namespace -> name -> spec
	loaded      map[string]bool
	kernelCache map[string]Kernel // qualifiedName -> loaded kernel
	effectLocks map[string]*sync.Mutex
	loggedOnce  map[string]bool // legacy-adapter deprecation notices, once per qualified name
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		manifests:   make(map[string]ManifestLoader),
		namespaces:  make(map[string]map[string]PrimitiveSpec),
		loaded:      make(map[string]bool),
		kernelCache: make(map[string]Kernel),
		effectLocks: make(map[string]*sync.Mutex),
		loggedOnce:  make(map[string]bool),
	}
}

// RegisterManifest associates a namespace with its static enumeration of
// primitives. The manifest is not evaluated until ImportNamespace is called
// for that namespace, so unused namespaces never even build their
// PrimitiveSpecs; a fully-qualified reference does not load a namespace.
func (r *Registry) RegisterManifest(namespace string, load ManifestLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[namespace] = load
}

// ImportNamespace loads namespace's manifest (idempotently) and registers
// every PrimitiveSpec it describes.
func (r *Registry) ImportNamespace(namespace string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadNamespaceLocked(namespace)
}

func (r *Registry) loadNamespaceLocked(namespace string) error {
	if r.loaded[namespace] {
		return nil
	}
	load, ok := r.manifests[namespace]
	if !ok {
		return &UnknownNamespaceError{Namespace: namespace, Known: r.knownNamespacesLocked()}
	}
	specs := load()
	table := make(map[string]PrimitiveSpec, len(specs))
	for _, spec := range specs {
		if spec.AttrsSchema != nil {
			compiled, err := compileSchema(spec.QualifiedName(), spec.AttrsSchema)
			if err != nil {
				return err
			}
			spec.compiledSchema = compiled
		}
		table[spec.Name] = spec
	}
	r.namespaces[namespace] = table
	r.loaded[namespace] = true
	return nil
}

func (r *Registry) knownNamespacesLocked() []string {
	out := make([]string, 0, len(r.manifests))
	for ns := range r.manifests {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

func compileSchema(qualifiedName string, raw json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	url := "mem://" + qualifiedName + "/attrs.json"
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("voxlogica: invalid attrs_schema for %s: %w", qualifiedName, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("voxlogica: invalid attrs_schema for %s: %w", qualifiedName, err)
	}
	return schema, nil
}

// Resolve implements spec.md §4.3's resolution order: a fully-qualified
// "ns.name" operator is looked up exactly in that namespace; otherwise
// imported (in import order) namespaces are scanned and the first match
// wins. A miss returns UnknownPrimitive with fuzzy "did you mean" candidates.
func (r *Registry) Resolve(operator string, importedNamespaces []string) (PrimitiveSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if ns, name, ok := splitQualified(operator); ok {
		table, exists := r.namespaces[ns]
		if !exists {
			return PrimitiveSpec{}, r.unknownPrimitiveLocked(operator, importedNamespaces)
		}
		spec, exists := table[name]
		if !exists {
			return PrimitiveSpec{}, r.unknownPrimitiveLocked(operator, importedNamespaces)
		}
		return spec, nil
	}

	for _, ns := range importedNamespaces {
		table, exists := r.namespaces[ns]
		if !exists {
			continue
		}
		if spec, exists := table[operator]; exists {
			return spec, nil
		}
	}
	return PrimitiveSpec{}, r.unknownPrimitiveLocked(operator, importedNamespaces)
}

func splitQualified(operator string) (ns, name string, ok bool) {
	idx := strings.IndexByte(operator, '.')
	if idx < 0 {
		return "", "", false
	}
	return operator[:idx], operator[idx+1:], true
}

// UnknownNamespaceError reports that no manifest is registered for a
// namespace an Import declaration named.
type UnknownNamespaceError struct {
	Namespace string
	Known     []string
}

func (e *UnknownNamespaceError) Error() string {
	return fmt.Sprintf("voxlogica: unknown namespace %q (known: %s)", e.Namespace, strings.Join(e.Known, ", "))
}

// UnknownPrimitiveError is the registry-miss failure mode from spec.md §4.3/§7.
type UnknownPrimitiveError struct {
	Operator    string
	Suggestions []string
}

func (e *UnknownPrimitiveError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("voxlogica: unknown primitive %q", e.Operator)
	}
	return fmt.Sprintf("voxlogica: unknown primitive %q (did you mean: %s?)", e.Operator, strings.Join(e.Suggestions, ", "))
}

func (r *Registry) unknownPrimitiveLocked(operator string, importedNamespaces []string) error {
	_, name, ok := splitQualified(operator)
	if !ok {
		name = operator
	}
	candidates := make([]string, 0, 16)
	for _, ns := range importedNamespaces {
		for qname := range r.namespaces[ns] {
			candidates = append(candidates, qname)
		}
	}
	sort.Strings(candidates)
	matches := fuzzy.RankFindFold(name, candidates)
	sort.Sort(matches)
	suggestions := make([]string, 0, 3)
	for i, m := range matches {
		if i >= 3 {
			break
		}
		suggestions = append(suggestions, m.Target)
	}
	return &UnknownPrimitiveError{Operator: operator, Suggestions: suggestions}
}

// ValidateAttrs checks call attrs against spec's compiled AttrsSchema, if any.
func (r *Registry) ValidateAttrs(spec PrimitiveSpec, attrs map[string]any) error {
	if spec.compiledSchema == nil {
		return nil
	}
	if err := spec.compiledSchema.Validate(attrs); err != nil {
		return fmt.Errorf("voxlogica: attrs for %s failed schema validation: %w", spec.QualifiedName(), err)
	}
	return nil
}

// Kernel lazily resolves and caches the callable for spec, loading it at
// most once per process (spec.md §4.3: kernel code loads on first use, not
// at planning time).
func (r *Registry) Kernel(spec PrimitiveSpec) (Kernel, error) {
	qname := spec.QualifiedName()

	r.mu.RLock()
	if k, ok := r.kernelCache[qname]; ok {
		r.mu.RUnlock()
		return k, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.kernelCache[qname]; ok {
		return k, nil
	}
	if spec.Load == nil {
		return nil, fmt.Errorf("voxlogica: primitive %s has no kernel loader", qname)
	}
	k, err := spec.Load()
	if err != nil {
		return nil, fmt.Errorf("voxlogica: loading kernel for %s: %w", qname, err)
	}
	r.kernelCache[qname] = k
	return k, nil
}

// EffectLock returns the per-qualified-name lock used to serialize
// concurrent invocations of an Effect-kind primitive (spec.md §5).
func (r *Registry) EffectLock(qualifiedName string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.effectLocks[qualifiedName]
	if !ok {
		lock = &sync.Mutex{}
		r.effectLocks[qualifiedName] = lock
	}
	return lock
}

// LegacyKernel adapts a zero-arg execute(**kwargs) style function — one that
// ignores PrimitiveCall.Attrs entirely and just receives the keyed argument
// map at run time — into a PrimitiveSpec using DefaultPlanner. Registering a
// legacy adapter logs a deprecation notice exactly once per qualified name.
func (r *Registry) LegacyKernel(namespace, name string, execute func(map[string]any) (any, error), outputKind ir.OutputKind, description string) PrimitiveSpec {
	qname := namespace + "." + name
	r.mu.Lock()
	if !r.loggedOnce[qname] {
		r.loggedOnce[qname] = true
		fmt.Printf("voxlogica: deprecated legacy primitive adapter registered for %s; define a PrimitiveSpec with an explicit planner instead\n", qname)
	}
	r.mu.Unlock()

	return PrimitiveSpec{
		Name:        name,
		Namespace:   namespace,
		Kind:        Pure,
		Arity:       Variadic(0),
		Planner:     DefaultPlanner(qname, outputKind),
		KernelName:  qname,
		Load:        func() (Kernel, error) { return Kernel(execute), nil },
		Description: description,
	}
}
