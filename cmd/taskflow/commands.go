package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"taskflow/internal/engine"
	"taskflow/internal/scheduler"
	"taskflow/internal/transform"
	"taskflow/sink"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task> [task...]",
		Short: "Run tasks and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine.Bootstrap(cmd.Context(), f.engineConfig(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			rep, err := e.Run(cmd.Context(), args...)
			if rep != nil {
				printReport(cmd, rep)
			}
			return err
		},
	}
}

func printReport(cmd *cobra.Command, rep *scheduler.Report) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, name := range rep.Order() {
		r := rep.Get(name)
		line := fmt.Sprintf("%s\t%s\t%s", name, r.State, r.Duration().Round(time.Millisecond))
		if r.Err != nil && r.State == scheduler.Failed {
			line += "\t" + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	_ = w.Flush()
}

func newListCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks with their dependencies and action kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := engine.Bootstrap(cmd.Context(), f.engineConfig(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tKIND\tDEPS\tDESCRIPTION")
			for _, t := range e.Tasks() {
				deps := strings.Join(t.Deps, ",")
				if deps == "" {
					deps = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, deps, t.Description)
			}
			return w.Flush()
		},
	}
}

func newPlanCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <task> [task...]",
		Short: "Print the order tasks would start in",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := engine.Bootstrap(cmd.Context(), f.engineConfig(cmd))
			if err != nil {
				return err
			}
			defer e.Close()

			order, err := e.Plan(args...)
			if err != nil {
				return err
			}
			for i, n := range order {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, n)
			}
			return nil
		},
	}
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List the transform types and sink kinds a pipeline can use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			types := append(transform.Types(), "grpc")
			sort.Strings(types)
			fmt.Fprintf(out, "transforms: %s\n", strings.Join(types, ", "))
			fmt.Fprintf(out, "sinks: %s\n", strings.Join(sink.Kinds(), ", "))
			return nil
		},
	}
}
