// Package lazyseq defines the LazySequence capability (spec.md §9): a
// language-neutral contract for sequence-shaped results that lets stream/page
// consumers skip and chunk without forcing a producer to materialise fully.
// Producers (range, load, default.map) return a LazySequence; nothing in the
// engine or strategies relies on a particular partitioning beneath it.
package lazyseq

import "context"

// Chunk is one bounded slice of a LazySequence's elements, in order.
type Chunk struct {
	Items   []any
	HasMore bool
}

// LazySequence is a possibly-unbounded, restartable source of values.
// Implementations MUST be safe to iterate via Chunks multiple times
// (restarting) and MUST honor ctx cancellation promptly between elements.
type LazySequence interface {
	// Chunks returns an iterator yielding Chunk values of at most chunkSize
	// items each. The returned function is called repeatedly; it returns
	// ok=false once exhausted.
	Chunks(ctx context.Context, chunkSize int) (next func() (Chunk, bool, error))

	// Skip returns a LazySequence equivalent to this one with the first n
	// elements dropped, without necessarily materialising them — a
	// partition-aware producer may jump directly to the right offset.
	Skip(n int) LazySequence

	// Take eagerly materialises up to n elements (used by small previews
	// and page()); it DOES force production up to n elements.
	Take(ctx context.Context, n int) ([]any, error)

	// CountLowerBound reports a cheap, possibly-approximate lower bound on
	// the number of remaining elements (exact when known without forcing
	// production, e.g. a fixed-size range; 0 if unknown).
	CountLowerBound() int
}

// FromSlice wraps a concrete, already-materialised slice as a LazySequence.
// This is what most kernels (range, a fully-evaluated default.map) return:
// the "laziness" in this implementation is about stream/page not forcing
// storage of the whole result twice, not about deferring kernel execution
// itself, which spec.md §4.7/§4.8 already handle at the node-evaluation
// level.
func FromSlice(items []any) LazySequence {
	return sliceSequence{items: items}
}

type sliceSequence struct{ items []any }

func (s sliceSequence) Chunks(ctx context.Context, chunkSize int) func() (Chunk, bool, error) {
	pos := 0
	return func() (Chunk, bool, error) {
		if err := ctx.Err(); err != nil {
			return Chunk{}, false, err
		}
		if pos >= len(s.items) {
			return Chunk{}, false, nil
		}
		end := pos + chunkSize
		if end > len(s.items) {
			end = len(s.items)
		}
		chunk := Chunk{Items: s.items[pos:end], HasMore: end < len(s.items)}
		pos = end
		return chunk, true, nil
	}
}

func (s sliceSequence) Skip(n int) LazySequence {
	if n >= len(s.items) {
		return sliceSequence{}
	}
	if n <= 0 {
		return s
	}
	return sliceSequence{items: s.items[n:]}
}

func (s sliceSequence) Take(_ context.Context, n int) ([]any, error) {
	if n >= len(s.items) {
		return s.items, nil
	}
	if n <= 0 {
		return nil, nil
	}
	return s.items[:n], nil
}

func (s sliceSequence) CountLowerBound() int { return len(s.items) }

// Page reads offset-skipped, limit-bounded items from seq the way
// internal/strategy's page() operation does, returning whether more items
// follow.
func Page(ctx context.Context, seq LazySequence, offset, limit int) (items []any, hasMore bool, err error) {
	skipped := seq.Skip(offset)
	items, err = skipped.Take(ctx, limit+1)
	if err != nil {
		return nil, false, err
	}
	if len(items) > limit {
		return items[:limit], true, nil
	}
	return items, false, nil
}
