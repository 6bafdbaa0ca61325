package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/dbclean"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/history"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/logging"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/retry"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/tracing"
)

// version is set at build time with -ldflags "-X .../cmd.version=..."
var version = "dev"

// app is everything a command needs, built once per process after the
// configuration is known.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	closeLog func() error
	metrics  *report.Metrics
	history  *history.Store
	tracer   *tracing.Provider
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		JSONFormat: cfg.Log.JSON,
		File:       cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, closeLog: closeLog, metrics: report.NewMetrics()}

	if cfg.History.Enabled && !dryRun {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			// history is a convenience; tasks still run without it
			logger.Warn("run history unavailable", zap.String("path", cfg.History.Path), zap.Error(err))
		} else {
			a.history = store
		}
	}

	a.tracer, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "benchctl",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		Enabled:        cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() error {
	var firstErr error
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Debug("tracer shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.closeLog != nil {
		_ = a.logger.Sync()
		if err := a.closeLog(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func closeApp() error {
	if current == nil {
		return nil
	}
	err := current.close()
	current = nil
	return err
}

// cleaner connects to both databases. Connections are lazy, so building
// one never blocks.
func (a *app) cleaner() (*dbclean.Cleaner, error) {
	pg, err := dbclean.NewPostgres(a.cfg.Postgres.DSN)
	if err != nil {
		return nil, err
	}
	neo, err := dbclean.NewNeo4j(a.cfg.Neo4j.URI, a.cfg.Neo4j.User, a.cfg.Neo4j.Password, a.logger)
	if err != nil {
		pg.Close(context.Background())
		return nil, err
	}
	return dbclean.NewCleaner(a.logger, pg, neo), nil
}

func (a *app) withCleaner(ctx context.Context, fn func(*dbclean.Cleaner) error) error {
	c, err := a.cleaner()
	if err != nil {
		return err
	}
	defer c.Close(context.Background())
	return fn(c)
}

func (a *app) hooks() taskrunner.Hooks {
	reporter := dbclean.NewCacheReporter(a.logger)
	return taskrunner.Hooks{
		CleanDatabases: func(ctx context.Context) error {
			return a.withCleaner(ctx, func(c *dbclean.Cleaner) error { return c.Clean(ctx) })
		},
		WaitReady: func(ctx context.Context) error {
			probe := retry.DefaultConfig()
			return a.withCleaner(ctx, func(c *dbclean.Cleaner) error { return c.WaitReady(ctx, probe) })
		},
		CacheReport: reporter.Report,
	}
}

func (a *app) runner() (*taskrunner.Runner, error) {
	reg, err := taskrunner.Builtin(a.cfg, a.hooks())
	if err != nil {
		return nil, err
	}

	exec := execx.NewOSExecutor(dryRun)
	r := taskrunner.NewRunner(reg, exec, a.logger)
	r.Metrics = a.metrics
	r.Tracer = a.tracer.Tracer()
	r.DryRun = dryRun
	if a.history != nil {
		r.History = a.history
	}
	return r, nil
}

// replayHistory loads stored runs into the metrics so that counters
// survive across benchctl processes.
func (a *app) replayHistory(ctx context.Context) error {
	if a.history == nil {
		return nil
	}
	entries, err := a.history.List(ctx, history.Filter{})
	if err != nil {
		return err
	}
	// oldest first so the last-run gauges end on the newest entry
	for i := len(entries) - 1; i >= 0; i-- {
		res := entries[i].Result
		a.metrics.RecordResult(&res)
	}
	return nil
}

func runTask(cmd *cobra.Command, name string, args []string) error {
	ctx := cmd.Context()
	a := current
	r, err := a.runner()
	if err != nil {
		return &taskrunner.ExitError{Code: taskrunner.CodeRunnerError, Task: name, Err: err}
	}
	r.Stdout = cmd.OutOrStdout()
	r.Stderr = cmd.ErrOrStderr()

	if a.cfg.Metrics.Textfile != "" {
		if err := a.replayHistory(ctx); err != nil {
			a.logger.Warn("failed to load run history into metrics", zap.Error(err))
		}
	}

	_, runErr := r.Run(ctx, name, args)

	if a.cfg.Metrics.Textfile != "" && !dryRun {
		if err := report.WriteTextfile(a.cfg.Metrics.Textfile, a.metrics.Gatherer()); err != nil {
			a.logger.Warn("failed to write metrics textfile", zap.String("path", a.cfg.Metrics.Textfile), zap.Error(err))
		}
	}
	return runErr
}
