package execx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/observe"
)

// Exit codes used when the child never produced one.
const (
	CodeNotFound = 127
	CodeTimeout  = 124
	CodeCanceled = 130
	CodeFailed   = 1
)

// Step is a single external-process invocation.
type Step struct {
	Program string
	Args    []string
	Dir     string
	// Env replaces the inherited environment when non-nil.
	Env []string

	// Stdout and Stderr default to the process streams when nil.
	Stdout io.Writer
	Stderr io.Writer
}

// CommandLine renders the step the way a shell user would type it.
func (s Step) CommandLine() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, s.Program)
	for _, a := range s.Args {
		if a == "" || strings.ContainsAny(a, " \t\"'$;&|<>") {
			parts = append(parts, fmt.Sprintf("%q", a))
			continue
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of one Step.
type Result struct {
	Code        int
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the step ran
func (r Result) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// OK reports a zero exit code
func (r Result) OK() bool {
	return r.Code == 0
}

// Executor runs steps. Implementations must block until the step exits.
type Executor interface {
	Run(ctx context.Context, step Step) Result
}

// OSExecutor runs steps as real child processes.
type OSExecutor struct {
	// DryRun prints "+ <command>" to DryRunOut instead of executing.
	DryRun    bool
	DryRunOut io.Writer

	// WaitDelay bounds how long Wait blocks after the context is done.
	WaitDelay time.Duration
}

// NewOSExecutor creates an executor with default settings
func NewOSExecutor(dryRun bool) *OSExecutor {
	return &OSExecutor{
		DryRun:    dryRun,
		DryRunOut: os.Stderr,
		WaitDelay: 10 * time.Second,
	}
}

// Run executes the step and waits for it.
func (e *OSExecutor) Run(ctx context.Context, step Step) Result {
	timing := observe.NewTiming()

	if e.DryRun {
		out := e.DryRunOut
		if out == nil {
			out = os.Stderr
		}
		fmt.Fprintln(out, "+ "+step.CommandLine())
		timing.Complete()
		return Result{StartedAt: timing.StartedAt, CompletedAt: timing.CompletedAt}
	}

	program := step.Program
	if step.Env != nil {
		program = lookPathIn(step.Program, envValue(step.Env, "PATH"))
	}

	cmd := exec.CommandContext(ctx, program, step.Args...)
	cmd.Dir = step.Dir
	if step.Env != nil {
		cmd.Env = step.Env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = orDefault(step.Stdout, os.Stdout)
	cmd.Stderr = orDefault(step.Stderr, os.Stderr)

	// Interrupt first so scripts can flush their results, kill after WaitDelay.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.WaitDelay

	err := cmd.Run()
	timing.Complete()

	return Result{
		Code:        exitCode(ctx, err),
		Err:         err,
		StartedAt:   timing.StartedAt,
		CompletedAt: timing.CompletedAt,
	}
}

func exitCode(ctx context.Context, err error) int {
	if err == nil {
		return 0
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if code := ee.ExitCode(); code >= 0 {
			return code
		}
	}

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return CodeCanceled
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return CodeNotFound
	default:
		return CodeFailed
	}
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}
