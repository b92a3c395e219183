// Package config collects the engine's tunables into a single explicitly
// constructed value (spec.md §9: "initialisation must be explicit at engine
// construction; no implicit module-load side effects"). There is no global,
// no init(), and no environment-variable fallback — cmd/voxlogica is the only
// caller expected to translate flags/env into a Config.
package config

// StrategyKind selects which execution strategy an Engine runs goals through.
type StrategyKind string

const (
	// StrategyStrict is the single-threaded, depth-first evaluator (spec.md §4.7).
	StrategyStrict StrategyKind = "strict"
	// StrategyDeferred is the bounded-worker-pool task-graph scheduler
	// (spec.md §4.8; called "dask" there regardless of the host language's
	// actual library, since the contract — not any specific scheduler — is
	// what's load-bearing).
	StrategyDeferred StrategyKind = "deferred"
)

// Config is the engine's full set of tunables. Zero value is not meaningful
// on its own — use Default() or New() with Options to get a usable Config.
type Config struct {
	// StorePath is the sqlite database file backing the result store.
	// ":memory:" is valid and is what the test suites use.
	StorePath string

	// Strategy selects which strategy.Strategy implementation the engine uses.
	Strategy StrategyKind

	// Workers bounds concurrent kernel invocations under StrategyDeferred.
	// Ignored by StrategyStrict. 0 defers to runtime.GOMAXPROCS(0).
	Workers int
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithStorePath overrides the default store path.
func WithStorePath(path string) Option {
	return func(c *Config) { c.StorePath = path }
}

// WithStrategy overrides the default strategy.
func WithStrategy(kind StrategyKind) Option {
	return func(c *Config) { c.Strategy = kind }
}

// WithWorkers overrides the default worker-pool bound.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// Default returns the engine's baseline configuration: a durable on-disk
// store named after the interpreter, the deferred strategy, and an
// auto-sized worker pool.
func Default() Config {
	return Config{
		StorePath: "voxlogica.db",
		Strategy:  StrategyDeferred,
		Workers:   0,
	}
}

// New builds a Config from Default() plus the given Options.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
