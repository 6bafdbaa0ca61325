package taskrunner

import (
	"context"
	"fmt"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
)

// DatasetSizes are the size labels accepted by the dataset manager, in
// ascending order. SizeAll runs every size.
var DatasetSizes = []string{"very-small", "small", "medium", "large", "x-large", "xx-large"}

const SizeAll = "all"

// Script names inside the scripts directory.
const (
	ScriptCleanup        = "cleanup_databases.py"
	ScriptDatasetManager = "dataset_manager.py"
	ScriptViewResults    = "view_results.py"
	ScriptCharts         = "make_bench_charts.py"
)

// Cleanup modes for cleanup-db.
const (
	CleanupModeScript = "script"
	CleanupModeNative = "native"
)

// Hooks are in-process alternatives to external scripts. Nil hooks make the
// corresponding option unavailable.
type Hooks struct {
	// CleanDatabases empties PostgreSQL and Neo4j (cleanup-db mode=native).
	CleanDatabases func(ctx context.Context) error
	// WaitReady blocks until the databases accept connections (docker-up wait=true).
	WaitReady func(ctx context.Context) error
	// CacheReport is called before and after the page cache drop.
	CacheReport func(ctx context.Context, stage string)
}

const helpHeader = `benchctl - PostgreSQL vs Neo4j benchmark task runner

Usage: benchctl <task> [key=value ...]

Tasks:`

const helpFooter = `Dataset sizes: very-small, small, medium, large, x-large, xx-large, all`

// Builtin returns the registry of standard tasks for cfg.
func Builtin(cfg *config.Config, hooks Hooks) (*Registry, error) {
	reg := NewRegistry()

	python := pythonScope(cfg)
	cleanup := cleanupDBAction(cfg, hooks)

	tasks := []*Task{
		{
			Name:    "help",
			Summary: "Show this help",
			Action:  HelpAction{Header: helpHeader, Footer: helpFooter},
		},
		{
			Name:    "cleanup-db",
			Summary: "Empty both databases and drop OS page caches",
			Params: []ParamSpec{
				{Name: "mode", Help: CleanupModeScript + "|" + CleanupModeNative, Validate: OneOf(CleanupModeScript, CleanupModeNative)},
			},
			Action: cleanup,
		},
	}

	for _, size := range append(append([]string{}, DatasetSizes...), SizeAll) {
		tasks = append(tasks, &Task{
			Name:    "test-" + size,
			Summary: fmt.Sprintf("Run the benchmark on the %s dataset", size),
			Action:  testAction(cfg, python, size, cleanup),
		})
	}

	tasks = append(tasks,
		&Task{
			Name:    "test-all-n",
			Summary: "Repeat test-all n times, one log per iteration",
			Params: []ParamSpec{
				{Name: "n", Help: "count", Required: true, Validate: NonNegativeInt},
			},
			Action: RepeatAction{
				Inner:             "test-" + SizeAll,
				CountParam:        "n",
				LogDir:            cfg.Repeat.LogDir,
				Separator:         cfg.Repeat.Separator,
				ContinueOnFailure: cfg.Repeat.ContinueOnFailure,
			},
		},
		&Task{
			Name:    "clear-results",
			Summary: "Delete results and generated data directories",
			Action:  ClearAction{Dirs: cfg.ClearDirs(), Paths: cfg.ClearPaths(), Message: "Results cleared"},
		},
		&Task{
			Name:    "docker-up",
			Summary: "Start PostgreSQL and Neo4j containers",
			Params: []ParamSpec{
				{Name: "wait", Help: "true|false", Validate: OneOf("true", "false")},
			},
			Action: dockerUpAction(cfg, hooks),
		},
		&Task{
			Name:    "docker-down",
			Summary: "Stop the containers",
			Action: StepsAction{Steps: []StepTemplate{
				{Program: cfg.Compose.Binary, Args: append(cfg.ComposeArgs(), "down")},
			}},
		},
		&Task{
			Name:    "view",
			Summary: "Show aggregated results of the last n result files",
			Params:  []ParamSpec{{Name: "n", Help: "files"}},
			Action: StepsAction{Steps: []StepTemplate{
				{Program: cfg.Python, Args: []string{cfg.Script(ScriptViewResults), "{n}"}},
			}},
		},
		&Task{
			Name:    "charts",
			Summary: "Render benchmark charts",
			Action: StepsAction{Steps: []StepTemplate{
				{Program: cfg.Python, Args: []string{cfg.Script(ScriptCharts)}},
			}},
		},
	)

	for _, t := range tasks {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func pythonScope(cfg *config.Config) execx.Scope {
	if cfg.VenvDir == "" {
		return execx.InheritScope{}
	}
	return execx.NewVirtualEnv(cfg.VenvDir)
}

func testAction(cfg *config.Config, python execx.Scope, size string, cleanup Action) Action {
	run := StepsAction{Steps: []StepTemplate{
		{Program: cfg.Python, Args: []string{cfg.Script(ScriptDatasetManager), size}, Scope: python},
	}}
	if !cfg.Test.CleanupBefore && !cfg.Test.CleanupAfter {
		return run
	}

	chain := ChainAction{}
	if cfg.Test.CleanupBefore {
		chain = append(chain, cleanup)
	}
	chain = append(chain, run)
	if cfg.Test.CleanupAfter {
		chain = append(chain, cleanup)
	}
	return chain
}

func cleanupDBAction(cfg *config.Config, hooks Hooks) Action {
	script := StepsAction{Steps: []StepTemplate{
		{Program: cfg.Python, Args: []string{cfg.Script(ScriptCleanup)}},
	}}

	native := ActionFunc(func(ctx context.Context, rc *RunContext) (int, error) {
		if hooks.CleanDatabases == nil {
			return CodeRunnerError, fmt.Errorf("native cleanup is not available")
		}
		if rc.DryRun {
			fmt.Fprintln(rc.Stderr, "+ (native) clean postgres and neo4j")
			return 0, nil
		}
		if err := hooks.CleanDatabases(ctx); err != nil {
			return CodeRunnerError, err
		}
		return 0, nil
	})

	drop := cacheDropAction(cfg, hooks)

	return ActionFunc(func(ctx context.Context, rc *RunContext) (int, error) {
		clean := Action(script)
		if rc.Params["mode"] == CleanupModeNative {
			clean = native
		}
		return ChainAction{clean, drop}.Run(ctx, rc)
	})
}

func cacheDropAction(cfg *config.Config, hooks Hooks) Action {
	if len(cfg.CacheDrop.Command) == 0 {
		return ActionFunc(func(_ context.Context, rc *RunContext) (int, error) {
			rc.Logger.Info("cache drop disabled")
			return 0, nil
		})
	}

	steps := StepsAction{Steps: []StepTemplate{{
		Program:    cfg.CacheDrop.Command[0],
		Args:       cfg.CacheDrop.Command[1:],
		BestEffort: cfg.CacheDrop.Policy == config.PolicyBestEffort,
	}}}

	return ActionFunc(func(ctx context.Context, rc *RunContext) (int, error) {
		if hooks.CacheReport != nil && !rc.DryRun {
			hooks.CacheReport(ctx, "before")
		}
		code, err := steps.Run(ctx, rc)
		if hooks.CacheReport != nil && !rc.DryRun && code == 0 {
			hooks.CacheReport(ctx, "after")
		}
		return code, err
	})
}

func dockerUpAction(cfg *config.Config, hooks Hooks) Action {
	up := StepsAction{Steps: []StepTemplate{
		{Program: cfg.Compose.Binary, Args: append(cfg.ComposeArgs(), "up", "-d")},
	}}

	return ActionFunc(func(ctx context.Context, rc *RunContext) (int, error) {
		code, err := up.Run(ctx, rc)
		if err != nil || code != 0 || rc.Params["wait"] != "true" || rc.DryRun {
			return code, err
		}
		if hooks.WaitReady == nil {
			return CodeRunnerError, fmt.Errorf("readiness probe is not available")
		}
		rc.Logger.Info("waiting for databases")
		if err := hooks.WaitReady(ctx); err != nil {
			return CodeRunnerError, fmt.Errorf("databases not ready: %w", err)
		}
		rc.Logger.Info("databases ready")
		return 0, nil
	})
}
