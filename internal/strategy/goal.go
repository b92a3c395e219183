package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	"github.com/voxlogica-go/voxlogica/internal/pod"
)

// ExecuteGoal carries out one print/save goal's side effect against an
// already-evaluated value (spec.md §4.8): print never iterates a sequence's
// body — only its header — while save always serialises a sequence's full
// element set as a JSON array rather than the truncated ≤16-item preview a
// POD envelope would otherwise carry.
func ExecuteGoal(ctx context.Context, goal ir.GoalSpec, value any) error {
	switch goal.Operation {
	case ir.GoalPrint:
		if seq, ok := value.(lazyseq.LazySequence); ok {
			fmt.Printf("%s=sequence of %d items\n", goal.Name, seq.CountLowerBound())
			return nil
		}
		fmt.Printf("%s=%v\n", goal.Name, value)
		return nil

	case ir.GoalSave:
		if seq, ok := value.(lazyseq.LazySequence); ok {
			items, err := seq.Take(ctx, maxInt)
			if err != nil {
				return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
			}
			data, err := json.MarshalIndent(items, "", "  ")
			if err != nil {
				return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
			}
			if err := os.WriteFile(goal.Name, data, 0o644); err != nil {
				return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
			}
			return nil
		}

		env, err := pod.Encode(value)
		if err != nil {
			return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
		}
		data, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
		}
		if err := os.WriteFile(goal.Name, data, 0o644); err != nil {
			return fmt.Errorf("voxlogica: save %s: %w", goal.Name, err)
		}
		return nil

	default:
		return fmt.Errorf("voxlogica: unknown goal operation %q", goal.Operation)
	}
}

const maxInt = int(^uint(0) >> 1)
