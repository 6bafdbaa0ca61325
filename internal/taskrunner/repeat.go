package taskrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
)

// IterationLogName returns the log file name for 1-based iteration i.
func IterationLogName(i int) string {
	return fmt.Sprintf("iteration_%d.log", i)
}

// RepeatAction runs another task n times in sequence. Each iteration's
// combined stdout/stderr goes to its own file under LogDir and Separator is
// printed after every iteration.
//
// With ContinueOnFailure a failing iteration is only visible in its log and
// the loop goes on; the task then exits 0 like the trailing echo of a shell
// loop would. Without it the loop stops and returns that iteration's status.
type RepeatAction struct {
	Inner             string
	CountParam        string
	LogDir            string
	Separator         string
	ContinueOnFailure bool
}

func (a RepeatAction) Run(ctx context.Context, rc *RunContext) (int, error) {
	n, err := strconv.Atoi(rc.Params[a.CountParam])
	if err != nil || n < 0 {
		return CodeRunnerError, fmt.Errorf("%w: %s=%q", ErrBadParam, a.CountParam, rc.Params[a.CountParam])
	}

	inner, err := rc.Registry.Get(a.Inner)
	if err != nil {
		return CodeRunnerError, err
	}

	if !rc.DryRun {
		if err := os.MkdirAll(a.LogDir, 0755); err != nil {
			return CodeRunnerError, fmt.Errorf("create iteration log dir: %w", err)
		}
	}

	failed := 0
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return execx.CodeCanceled, err
		}

		logPath := filepath.Join(a.LogDir, IterationLogName(i))
		res := a.runIteration(ctx, rc, inner, i, logPath)
		if rc.Recorder != nil {
			rc.Recorder.Record(ctx, res)
		}

		fmt.Fprintln(rc.Stdout, a.Separator)

		if res.ExitCode == 0 {
			continue
		}
		failed++
		rc.Logger.Warn("iteration failed",
			zap.Int("iteration", i),
			zap.Int("exit_code", res.ExitCode),
			zap.String("log", logPath))
		if !a.ContinueOnFailure {
			return res.ExitCode, nil
		}
	}

	rc.Logger.Info("repeat finished",
		zap.String("task", a.Inner),
		zap.Int("iterations", n),
		zap.Int("failed", failed))
	return 0, nil
}

func (a RepeatAction) runIteration(ctx context.Context, rc *RunContext, inner *Task, i int, logPath string) *report.Result {
	start := time.Now()

	if rc.DryRun {
		fmt.Fprintf(rc.Stderr, "+ %s > %s 2>&1\n", inner.Name, logPath)
		code, err := inner.Action.Run(ctx, &RunContext{
			Task: inner, Params: Params{}, RunID: rc.RunID,
			Exec: rc.Exec, Stdout: rc.Stdout, Stderr: rc.Stderr,
			Logger: rc.Logger, DryRun: true, Registry: rc.Registry,
		})
		res := report.NewResult(rc.RunID, inner.Name, nil, code, start, time.Now())
		res.Iteration = i
		res.SetError(err)
		return res
	}

	f, err := os.Create(logPath)
	if err != nil {
		res := report.NewResult(rc.RunID, inner.Name, nil, CodeRunnerError, start, time.Now())
		res.Iteration = i
		res.SetError(fmt.Errorf("create iteration log: %w", err))
		return res
	}
	defer f.Close()

	iterRC := rc.withOutput(f)
	iterRC.Task = inner
	iterRC.Params = Params{}

	code, runErr := inner.Action.Run(ctx, iterRC)
	if runErr != nil {
		// the log is the only place an operator looks for iteration failures
		fmt.Fprintf(f, "benchctl: %v\n", runErr)
	}

	res := report.NewResult(rc.RunID, inner.Name, nil, code, start, time.Now())
	res.Iteration = i
	res.LogPath = logPath
	res.SetError(runErr)
	return res
}
