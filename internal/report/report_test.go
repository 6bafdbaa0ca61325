package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResult_Outcome(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)

	ok := NewResult("r1", "docker-up", nil, 0, start, end)
	assert.Equal(t, OutcomeSuccess, ok.Outcome)
	assert.Equal(t, 90*time.Second, ok.Duration)

	failed := NewResult("r2", "test-small", nil, 2, start, end)
	assert.Equal(t, OutcomeFailure, failed.Outcome)

	failed.SetError(errors.New("venv missing"))
	assert.Equal(t, OutcomeError, failed.Outcome)
	assert.Equal(t, "venv missing", failed.Error)
}

func TestResult_ParamString(t *testing.T) {
	r := &Result{Params: map[string]string{"n": "3", "dataset": "small"}}
	assert.Equal(t, "dataset=small n=3", r.ParamString())
	assert.Equal(t, "", (&Result{}).ParamString())
}

func TestMetrics_RecordResult(t *testing.T) {
	m := NewMetrics()
	start := time.Now()

	m.RecordResult(NewResult("a", "view", nil, 0, start, start.Add(time.Second)))
	m.RecordResult(NewResult("b", "view", nil, 0, start, start.Add(time.Second)))
	m.RecordResult(NewResult("c", "view", nil, 4, start, start.Add(time.Second)))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("view", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("view", OutcomeFailure)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.lastExitCode.WithLabelValues("view")))
}

func TestWriteText(t *testing.T) {
	m := NewMetrics()
	start := time.Now()
	m.RecordResult(NewResult("a", "charts", nil, 0, start, start.Add(time.Second)))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, m.Gatherer()))

	assert.Contains(t, buf.String(), `benchctl_task_runs_total{outcome="success",task="charts"} 1`)
	assert.Contains(t, buf.String(), "# TYPE benchctl_task_duration_seconds histogram")
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	start := time.Now()
	m.RecordResult(NewResult("a", "charts", nil, 0, start, start.Add(time.Second)))

	path := filepath.Join(t.TempDir(), "textfile", "benchctl.prom")
	require.NoError(t, WriteTextfile(path, m.Gatherer()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "benchctl_task_last_exit_code")
}

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestMetrics_DurationHistogram(t *testing.T) {
	m := NewMetrics()
	start := time.Now()
	m.RecordResult(NewResult("a", "test-all", nil, 0, start, start.Add(3*time.Second)))
	m.RecordResult(NewResult("b", "test-all", nil, 1, start, start.Add(5*time.Second)))

	families, err := m.Gatherer().Gather()
	require.NoError(t, err)

	mf := findFamily(t, families, "benchctl_task_duration_seconds")
	assert.Equal(t, dto.MetricType_HISTOGRAM, mf.GetType())
	require.Len(t, mf.GetMetric(), 1)

	h := mf.GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.InDelta(t, 8.0, h.GetSampleSum(), 1e-9)

	last := findFamily(t, families, "benchctl_task_last_run_timestamp_seconds")
	assert.Equal(t, float64(start.Add(5*time.Second).Unix()), last.GetMetric()[0].GetGauge().GetValue())
}
