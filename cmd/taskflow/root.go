package main

import (
	"github.com/spf13/cobra"

	"taskflow/internal/engine"
	"taskflow/internal/logging"
)

type rootFlags struct {
	file        string
	dir         string
	logLevel    string
	logJSON     bool
	concurrency int
	sequential  bool
	cache       string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var f rootFlags
	root := &cobra.Command{
		Use:           "taskflow",
		Short:         "Run file pipelines and commands declared in a taskfile",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts := logging.FromEnv()
			if cmd.Flags().Changed("log-level") {
				opts.Level = f.logLevel
			}
			if cmd.Flags().Changed("log-json") {
				opts.JSON = f.logJSON
			}
			opts.Out = cmd.ErrOrStderr()
			logging.Configure(opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.file, "file", "f", "", "taskfile path (default: taskflow.yml, taskflow.yaml or taskflow.hcl in --dir)")
	pf.StringVarP(&f.dir, "dir", "C", "", "workspace root (default: the taskfile's directory)")
	pf.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	pf.BoolVar(&f.logJSON, "log-json", false, "log as JSON")
	pf.IntVarP(&f.concurrency, "concurrency", "j", 0, "max tasks running at once (0: settings or GOMAXPROCS)")
	pf.BoolVar(&f.sequential, "sequential", false, "run one task at a time in plan order")
	pf.StringVar(&f.cache, "cache", "", "sqlite file for incremental builds")
	pf.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newRunCmd(&f), newListCmd(&f), newPlanCmd(&f), newPluginsCmd())
	return root
}

func (f *rootFlags) engineConfig(cmd *cobra.Command) engine.Config {
	return engine.Config{
		File:        f.file,
		Dir:         f.dir,
		Concurrency: f.concurrency,
		Sequential:  f.sequential,
		Cache:       f.cache,
		MetricsAddr: f.metricsAddr,
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	}
}
