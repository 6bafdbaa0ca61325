package taskrunner

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
)

// fakeExecutor records steps and answers with scripted exit codes.
type fakeExecutor struct {
	mu    sync.Mutex
	steps []execx.Step
	// codes maps "program arg0 arg1" to an exit code; missing means 0.
	codes map[string]int
	// sequence, when non-empty, is consumed one code per call.
	sequence []int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{codes: map[string]int{}}
}

func (f *fakeExecutor) Run(_ context.Context, step execx.Step) execx.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)

	line := strings.Join(append([]string{step.Program}, step.Args...), " ")
	if step.Stdout != nil {
		fmt.Fprintf(step.Stdout, "ran: %s\n", line)
	}

	code := f.codes[line]
	if len(f.sequence) > 0 {
		code = f.sequence[0]
		f.sequence = f.sequence[1:]
	}
	return execx.Result{Code: code}
}

func (f *fakeExecutor) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.steps))
	for _, s := range f.steps {
		out = append(out, strings.Join(append([]string{s.Program}, s.Args...), " "))
	}
	return out
}

type memoryHistory struct {
	mu      sync.Mutex
	results []*report.Result
}

func (m *memoryHistory) Save(_ context.Context, r *report.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, r)
	return nil
}

// testConfig returns defaults rooted in a temp dir with the venv disabled.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ScriptsDir = "scripts"
	cfg.ResultsDir = dir + "/results"
	cfg.DataDir = dir + "/data"
	cfg.Repeat.LogDir = dir + "/results/iterations"
	cfg.VenvDir = ""
	return cfg
}

type harness struct {
	runner  *Runner
	exec    *fakeExecutor
	history *memoryHistory
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func newHarness(t *testing.T, cfg *config.Config, hooks Hooks) *harness {
	t.Helper()
	reg, err := Builtin(cfg, hooks)
	require.NoError(t, err)

	h := &harness{
		exec:    newFakeExecutor(),
		history: &memoryHistory{},
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
	}
	h.runner = NewRunner(reg, h.exec, zap.NewNop())
	h.runner.History = h.history
	h.runner.Stdout = h.stdout
	h.runner.Stderr = h.stderr
	return h
}
