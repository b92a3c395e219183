// Package dataset registers the "dataset" namespace: readdir, which
// produces a sequence of directory entry paths (SPEC_FULL.md §C.3).
package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxlogica-go/voxlogica/internal/ir"
	"github.com/voxlogica-go/voxlogica/internal/lazyseq"
	"github.com/voxlogica-go/voxlogica/internal/registry"
)

const Namespace = "dataset"

func Manifest() []registry.PrimitiveSpec {
	return []registry.PrimitiveSpec{
		{
			Name: "readdir", Namespace: Namespace, Kind: registry.Pure, Arity: registry.Fixed(1),
			Planner: registry.DefaultPlanner("dataset.readdir", ir.OutputSequence),
			Load: func() (registry.Kernel, error) {
				return func(args map[string]any) (any, error) {
					dir, ok := args["0"].(string)
					if !ok {
						return nil, fmt.Errorf("voxlogica: readdir: argument must be a string path")
					}
					entries, err := os.ReadDir(dir)
					if err != nil {
						return nil, fmt.Errorf("voxlogica: readdir(%s): %w", dir, err)
					}
					items := make([]any, 0, len(entries))
					for _, e := range entries {
						items = append(items, filepath.Join(dir, e.Name()))
					}
					return lazyseq.FromSlice(items), nil
				}, nil
			},
			Description: "readdir(dir): sequence of paths for dir's entries",
		},
	}
}
