package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlogica-go/voxlogica/internal/astjson"
	"github.com/voxlogica-go/voxlogica/internal/engine"
)

func newRunCommand(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "Reduce and execute a program, printing/saving its goals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(flags, args[0])
		},
	}
}

func runProgram(flags *cliFlags, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	program, err := astjson.Decode(data)
	if err != nil {
		return err
	}

	cfg, err := flags.toConfig()
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return wrapExecution(err)
	}
	defer eng.Close()

	plan, err := eng.Reduce(program)
	if err != nil {
		return wrapExecution(err)
	}

	prepared, err := eng.CompilePlan(plan)
	if err != nil {
		return wrapExecution(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := eng.Run(ctx, prepared)
	if err != nil {
		return wrapExecution(err)
	}

	if !result.Success {
		for _, failure := range result.Failures {
			fmt.Fprintf(os.Stderr, "voxlogica: goal %q failed: %v\n", failure.GoalName, failure.Err)
		}
		return wrapExecution(errGoalsFailed)
	}

	return nil
}
