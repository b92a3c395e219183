package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voxlogica-go/voxlogica/internal/ast"
	"github.com/voxlogica-go/voxlogica/internal/astjson"
	"github.com/voxlogica-go/voxlogica/internal/engine"
)

func newReplCommand(flags *cliFlags) *cobra.Command {
	var watch []string
	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Read one JSON program document per line, accumulating declarations across lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(flags, watch, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringArrayVar(&watch, "watch", nil, "namespace=path manifest to hot-reload while the repl runs, repeatable")
	return cmd
}

// runRepl accumulates every line's declarations and goals into one growing
// ast.Program (so a later line's identifiers can reference an earlier
// line's let-bindings) and re-runs the whole accumulated program on every
// line. Re-running is not wasted work: content-addressed planning means an
// unchanged subexpression reduces to the same NodeId and, once computed,
// is served from the result store's cache rather than recomputed
// (cache_summary reports this per turn).
func runRepl(flags *cliFlags, watch []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := flags.toConfig()
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return wrapExecution(err)
	}
	defer eng.Close()

	stops, err := startManifestWatches(eng, watch)
	if err != nil {
		return err
	}
	defer func() {
		for _, stop := range stops {
			_ = stop()
		}
	}()

	program := &ast.Program{}
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":q" {
			return nil
		}

		turn, err := astjson.Decode([]byte(line))
		if err != nil {
			fmt.Fprintln(stderr, "voxlogica:", err)
			continue
		}
		program.Declarations = append(program.Declarations, turn.Declarations...)
		program.Goals = append(program.Goals, turn.Goals...)

		if err := evalTurn(eng, program, stdout, stderr); err != nil {
			fmt.Fprintln(stderr, "voxlogica:", err)
			// Roll back this turn's additions so a bad line doesn't poison
			// every subsequent turn's re-reduction.
			program.Declarations = program.Declarations[:len(program.Declarations)-len(turn.Declarations)]
			program.Goals = program.Goals[:len(program.Goals)-len(turn.Goals)]
		}
	}
	return scanner.Err()
}

func evalTurn(eng *engine.Engine, program *ast.Program, stdout, stderr io.Writer) error {
	plan, err := eng.Reduce(program)
	if err != nil {
		return err
	}
	prepared, err := eng.CompilePlan(plan)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := eng.Run(ctx, prepared)
	if err != nil {
		return err
	}
	for _, failure := range result.Failures {
		fmt.Fprintf(stderr, "voxlogica: goal %q failed: %v\n", failure.GoalName, failure.Err)
	}
	fmt.Fprintf(stdout, "; computed=%d cached=%d failed=%d\n",
		result.CacheSummary.Computed, result.CacheSummary.CachedStore, result.CacheSummary.Failed)
	return nil
}

func startManifestWatches(eng *engine.Engine, watch []string) ([]func() error, error) {
	stops := make([]func() error, 0, len(watch))
	for _, spec := range watch {
		namespace, path, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --watch %q (want namespace=path)", spec)
		}
		stop, err := eng.Registry.WatchManifest(namespace, path)
		if err != nil {
			for _, s := range stops {
				_ = s()
			}
			return nil, err
		}
		stops = append(stops, stop)
	}
	return stops, nil
}
