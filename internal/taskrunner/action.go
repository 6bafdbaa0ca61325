package taskrunner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/tracing"
)

// CodeRunnerError is the exit status for failures inside benchctl itself,
// as opposed to a status propagated from an external command.
const CodeRunnerError = 2

// RunContext carries everything an action needs for one invocation.
type RunContext struct {
	Task   *Task
	Params Params
	RunID  string

	Exec   execx.Executor
	Stdout io.Writer
	Stderr io.Writer
	Logger *zap.Logger
	DryRun bool

	Registry *Registry
	Recorder Recorder
}

// withOutput returns a copy writing to w for both streams.
func (rc *RunContext) withOutput(w io.Writer) *RunContext {
	cp := *rc
	cp.Stdout = w
	cp.Stderr = w
	return &cp
}

// Action executes a task. It returns the exit status of the last external
// command it ran. A non-nil error means the action failed before or around
// the external command and the status is CodeRunnerError or a cancel code.
type Action interface {
	Run(ctx context.Context, rc *RunContext) (int, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, rc *RunContext) (int, error)

func (f ActionFunc) Run(ctx context.Context, rc *RunContext) (int, error) {
	return f(ctx, rc)
}

// HelpAction prints the static usage listing. It touches nothing outside
// the registry and always succeeds.
type HelpAction struct {
	Header string
	Footer string
}

func (a HelpAction) Run(_ context.Context, rc *RunContext) (int, error) {
	out := rc.Stdout
	if a.Header != "" {
		fmt.Fprintln(out, a.Header)
		fmt.Fprintln(out)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if rc.Registry != nil {
		for _, t := range rc.Registry.Tasks() {
			fmt.Fprintf(tw, "  %s\t%s\n", t.Usage(), t.Summary)
		}
	}
	_ = tw.Flush()

	if a.Footer != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, a.Footer)
	}
	return 0, nil
}

// ClearAction empties Dirs, keeping the directories themselves, and
// removes Paths recursively. All names are literal paths. Missing paths are
// not an error; the action always reports success after attempting every
// removal.
type ClearAction struct {
	Dirs    []string
	Paths   []string
	Message string
}

func (a ClearAction) Run(ctx context.Context, rc *RunContext) (int, error) {
	var targets []string
	for _, dir := range a.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				rc.Logger.Warn("failed to list directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}
		for _, e := range entries {
			targets = append(targets, filepath.Join(dir, e.Name()))
		}
	}
	targets = append(targets, a.Paths...)

	for _, path := range targets {
		if err := ctx.Err(); err != nil {
			return execx.CodeCanceled, err
		}
		if rc.DryRun {
			fmt.Fprintln(rc.Stderr, "+ rm -rf "+path)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			rc.Logger.Warn("failed to remove path", zap.String("path", path), zap.Error(err))
			continue
		}
		rc.Logger.Debug("removed", zap.String("path", path))
	}

	if a.Message != "" {
		fmt.Fprintln(rc.Stdout, a.Message)
	}
	return 0, nil
}

// StepTemplate describes one external command. Args may contain "{key}"
// tokens which are replaced by the value of the matching parameter.
type StepTemplate struct {
	Program string
	Args    []string
	// Scope wraps the command, e.g. an activated virtualenv. Nil inherits.
	Scope execx.Scope
	// BestEffort steps log a non-zero status instead of failing the task.
	BestEffort bool
}

// StepsAction runs external commands in order. The first non-zero step
// stops the sequence and its status is returned; otherwise the status of
// the last step is returned.
type StepsAction struct {
	Steps []StepTemplate
}

func (a StepsAction) Run(ctx context.Context, rc *RunContext) (int, error) {
	code := 0
	for _, st := range a.Steps {
		var err error
		code, err = runStep(ctx, rc, st)
		if err != nil {
			return code, err
		}
		if code == 0 {
			continue
		}
		if st.BestEffort {
			rc.Logger.Warn("best-effort step failed, continuing",
				zap.String("command", st.Program),
				zap.Int("exit_code", code))
			code = 0
			continue
		}
		return code, nil
	}
	return code, nil
}

func runStep(ctx context.Context, rc *RunContext, st StepTemplate) (int, error) {
	scope := st.Scope
	if scope == nil {
		scope = execx.InheritScope{}
	}

	step := execx.Step{
		Program: st.Program,
		Args:    expandArgs(st.Args, rc.Params),
		Stdout:  rc.Stdout,
		Stderr:  rc.Stderr,
	}

	if rc.DryRun {
		if _, inherit := scope.(execx.InheritScope); !inherit {
			fmt.Fprintf(rc.Stderr, "+ [%s]\n", scope.Name())
		}
		return rc.Exec.Run(ctx, step).Code, nil
	}

	env, release, err := scope.Enter(ctx)
	if err != nil {
		return CodeRunnerError, fmt.Errorf("enter %s: %w", scope.Name(), err)
	}
	defer release()
	step.Env = env

	rc.Logger.Debug("exec", zap.String("task", rc.Task.Name), zap.String("command", step.CommandLine()))
	res := rc.Exec.Run(ctx, step)
	tracing.AddEvent(ctx, "step",
		attribute.String("command", step.CommandLine()),
		attribute.Int("exit_code", res.Code))
	if !res.OK() {
		rc.Logger.Debug("command exited non-zero",
			zap.String("command", step.Program),
			zap.Int("exit_code", res.Code),
			zap.Duration("duration", res.Duration()),
			zap.Error(res.Err))
	}
	return res.Code, nil
}

// ChainAction runs actions in order with the same stop-on-failure rule as
// StepsAction.
type ChainAction []Action

func (c ChainAction) Run(ctx context.Context, rc *RunContext) (int, error) {
	code := 0
	for _, a := range c {
		var err error
		code, err = a.Run(ctx, rc)
		if err != nil || code != 0 {
			return code, err
		}
	}
	return code, nil
}

// commandLines renders the steps of an action for listings.
func commandLines(a Action) []string {
	switch v := a.(type) {
	case StepsAction:
		lines := make([]string, 0, len(v.Steps))
		for _, st := range v.Steps {
			lines = append(lines, strings.TrimSpace(st.Program+" "+strings.Join(st.Args, " ")))
		}
		return lines
	case ChainAction:
		var lines []string
		for _, inner := range v {
			lines = append(lines, commandLines(inner)...)
		}
		return lines
	default:
		return nil
	}
}

// CommandLines lists the external commands a task would run, in order.
func (t *Task) CommandLines() []string {
	return commandLines(t.Action)
}
