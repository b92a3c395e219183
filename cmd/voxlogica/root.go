// Command voxlogica is the CLI driver for the VoxLogicA-Go interpreter
// (spec.md §6): it owns flag parsing, file I/O, and exit-code mapping, and
// delegates every interpreter behaviour to internal/engine. No package-level
// mutable state — every subcommand builds its own config.Config and its own
// engine.Engine at invocation time (spec.md §9: "initialisation must be
// explicit at engine construction").
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlogica-go/voxlogica/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliFlags holds the persistent flags shared by run/repl, translated into a
// config.Config at the point each subcommand actually builds its engine.
type cliFlags struct {
	storePath string
	strategy  string
	workers   int
}

func (f *cliFlags) toConfig() (config.Config, error) {
	var kind config.StrategyKind
	switch f.strategy {
	case "strict":
		kind = config.StrategyStrict
	case "deferred", "dask":
		kind = config.StrategyDeferred
	default:
		return config.Config{}, fmt.Errorf("unknown --strategy %q (want \"strict\" or \"deferred\")", f.strategy)
	}
	return config.New(
		config.WithStorePath(f.storePath),
		config.WithStrategy(kind),
		config.WithWorkers(f.workers),
	), nil
}

func newRootCommand() (*cobra.Command, *cliFlags) {
	flags := &cliFlags{}
	root := &cobra.Command{
		Use:           "voxlogica",
		Short:         "VoxLogicA-Go: a content-addressed dataflow interpreter",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.storePath, "store", "voxlogica.db", "result store file path")
	root.PersistentFlags().StringVar(&flags.strategy, "strategy", "deferred", "execution strategy: strict|deferred")
	root.PersistentFlags().IntVar(&flags.workers, "workers", 0, "deferred strategy worker pool size (0 = all cores)")

	root.AddCommand(newRunCommand(flags))
	root.AddCommand(newReplCommand(flags))
	root.AddCommand(newVersionCommand())
	return root, flags
}

// run executes the CLI with args and returns the process exit code
// (spec.md §6): 0 success, 1 program reduction/execution failure, 2 usage
// error.
func run(args []string) int {
	root, _ := newRootCommand()
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintln(os.Stderr, "voxlogica:", err)
	if isExecutionError(err) {
		return 1
	}
	return 2
}
