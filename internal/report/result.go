package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Outcome of a task invocation
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Result is the record of one task invocation. Set once at completion.
type Result struct {
	RunID     string            `json:"run_id"`
	Task      string            `json:"task"`
	Params    map[string]string `json:"params,omitempty"`
	Iteration int               `json:"iteration,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration_ns"`

	ExitCode int    `json:"exit_code"`
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`

	// LogPath is set when output was captured to a file
	LogPath string `json:"log_path,omitempty"`
}

// NewResult creates a result from the exit code of the last step
func NewResult(runID, task string, params map[string]string, exitCode int, startTime, endTime time.Time) *Result {
	outcome := OutcomeSuccess
	if exitCode != 0 {
		outcome = OutcomeFailure
	}
	return &Result{
		RunID:     runID,
		Task:      task,
		Params:    params,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
		ExitCode:  exitCode,
		Outcome:   outcome,
	}
}

// SetError marks the invocation as failed inside the runner itself
// (bad params, missing venv) rather than in the external command.
func (r *Result) SetError(err error) {
	if err == nil {
		return
	}
	r.Outcome = OutcomeError
	r.Error = err.Error()
}

// ParamString renders params as sorted key=value pairs
func (r *Result) ParamString() string {
	if len(r.Params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+r.Params[k])
	}
	return strings.Join(parts, " ")
}

// LogSummary emits a one-line summary
func (r *Result) LogSummary(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("run_id", r.RunID),
		zap.String("task", r.Task),
		zap.String("outcome", r.Outcome),
		zap.Int("exit_code", r.ExitCode),
		zap.Duration("runtime", r.Duration),
	}
	if p := r.ParamString(); p != "" {
		fields = append(fields, zap.String("params", p))
	}
	if r.Iteration > 0 {
		fields = append(fields, zap.Int("iteration", r.Iteration))
	}
	if r.LogPath != "" {
		fields = append(fields, zap.String("log", r.LogPath))
	}
	if r.Error != "" {
		fields = append(fields, zap.String("error", r.Error))
	}

	msg := fmt.Sprintf("TASK %s", r.Task)
	if r.Outcome == OutcomeSuccess {
		logger.Info(msg, fields...)
		return
	}
	logger.Warn(msg, fields...)
}
