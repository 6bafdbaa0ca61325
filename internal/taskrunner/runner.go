package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
)

// ExitError carries the status the benchctl process should exit with.
type ExitError struct {
	Code int
	Task string
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("%s exited with status %d", e.Task, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the process exit status from an error returned by
// Runner.Run. Nil maps to 0 and foreign errors to CodeRunnerError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeRunnerError
}

// Recorder receives every Result, including individual iterations.
type Recorder interface {
	Record(ctx context.Context, r *report.Result)
}

// HistoryStore persists results.
type HistoryStore interface {
	Save(ctx context.Context, r *report.Result) error
}

// Runner resolves task names and executes them one at a time.
type Runner struct {
	Registry *Registry
	Exec     execx.Executor
	Logger   *zap.Logger
	Metrics  *report.Metrics
	History  HistoryStore
	Tracer   trace.Tracer

	Stdout io.Writer
	Stderr io.Writer
	DryRun bool

	newID func() string
}

// NewRunner creates a runner with process streams and no-op observers.
func NewRunner(reg *Registry, exec execx.Executor, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		Registry: reg,
		Exec:     exec,
		Logger:   logger,
		Metrics:  report.NewMetrics(),
		Tracer:   noop.NewTracerProvider().Tracer("benchctl"),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		newID:    uuid.NewString,
	}
}

// Run executes the named task with key=value args. The returned Result is
// nil only when the task could not be resolved. A non-nil error is always an
// *ExitError whose Code is the status to exit with.
func (r *Runner) Run(ctx context.Context, name string, args []string) (*report.Result, error) {
	task, err := r.Registry.Get(name)
	if err != nil {
		return nil, &ExitError{Code: CodeRunnerError, Task: name, Err: err}
	}

	runID := r.newID()
	start := time.Now()

	params, err := ParseParams(task.Params, args)
	if err != nil {
		res := report.NewResult(runID, name, nil, CodeRunnerError, start, time.Now())
		res.SetError(err)
		r.Record(ctx, res)
		return res, &ExitError{Code: CodeRunnerError, Task: name, Err: err}
	}

	ctx, span := r.Tracer.Start(ctx, "task "+name, trace.WithAttributes(
		attribute.String("benchctl.task", name),
		attribute.String("benchctl.run_id", runID),
	))
	defer span.End()

	rc := &RunContext{
		Task:     task,
		Params:   params,
		RunID:    runID,
		Exec:     r.Exec,
		Stdout:   r.Stdout,
		Stderr:   r.Stderr,
		Logger:   r.Logger.With(zap.String("task", name)),
		DryRun:   r.DryRun,
		Registry: r.Registry,
		Recorder: r,
	}

	code, runErr := task.Action.Run(ctx, rc)

	res := report.NewResult(runID, name, params, code, start, time.Now())
	res.SetError(runErr)
	r.Record(ctx, res)

	span.SetAttributes(attribute.Int("benchctl.exit_code", code))
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return res, &ExitError{Code: code, Task: name, Err: runErr}
	}
	if code != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("exit status %d", code))
		return res, &ExitError{Code: code, Task: name}
	}
	return res, nil
}

// Record implements Recorder: logs a summary, updates metrics and
// persists the result. History failures are logged, never fatal.
func (r *Runner) Record(ctx context.Context, res *report.Result) {
	res.LogSummary(r.Logger)
	if r.Metrics != nil {
		r.Metrics.RecordResult(res)
	}
	if r.History != nil && !r.DryRun {
		if err := r.History.Save(ctx, res); err != nil {
			r.Logger.Warn("failed to record run history", zap.Error(err))
		}
	}
}
