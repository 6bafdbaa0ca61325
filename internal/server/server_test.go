package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/history"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/shutdown"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

type stubHistory struct {
	entries []history.Entry
	got     history.Filter
}

func (s *stubHistory) List(_ context.Context, f history.Filter) ([]history.Entry, error) {
	s.got = f
	return s.entries, nil
}

func newTestHandler(t *testing.T) (*Handler, *stubHistory) {
	t.Helper()
	reg, err := taskrunner.Builtin(config.Default(), taskrunner.Hooks{})
	require.NoError(t, err)

	metrics := report.NewMetrics()
	metrics.RecordResult(report.NewResult("r1", "view", nil, 0, time.Now(), time.Now()))

	hist := &stubHistory{entries: []history.Entry{
		{ID: "a", Result: *report.NewResult("r1", "view", map[string]string{"n": "2"}, 0, time.Now(), time.Now())},
	}}
	return &Handler{
		ResultsDir: t.TempDir(),
		History:    hist,
		Registry:   reg,
		Gatherer:   metrics.Gatherer(),
	}, hist
}

func get(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.NewRouter().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestHealthWhileDraining(t *testing.T) {
	h, _ := newTestHandler(t)
	mgr := shutdown.New(time.Second, nil)
	h.Draining = mgr.Done()

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	require.NoError(t, mgr.Shutdown())
	w := get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "shutting down")
}

func TestTasks(t *testing.T) {
	h, _ := newTestHandler(t)

	w := get(t, h, "/tasks")
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []taskInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Equal(t, "help", tasks[0].Name)
	assert.Equal(t, h.Registry.Len(), len(tasks))

	w = get(t, h, "/tasks/view")
	require.Equal(t, http.StatusOK, w.Code)
	var view taskInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, []string{"python3 scripts/view_results.py {n}"}, view.Commands)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/tasks/nope").Code)
}

func TestHistory(t *testing.T) {
	h, hist := newTestHandler(t)

	w := get(t, h, "/history?limit=5&task=view")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, history.Filter{Task: "view", Limit: 5}, hist.got)

	var body struct {
		Runs  []history.Entry `json:"runs"`
		Count int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "2", body.Runs[0].Params["n"])

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/history?limit=-1").Code)

	h.History = nil
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/history").Code)
}

func TestResults(t *testing.T) {
	h, _ := newTestHandler(t)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/results").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/results?n=x").Code)

	body := `{"postgres":{"q":{"times":[0.002]}},"neo4j":{"q":{"times":[0.001]}},"metadata":{"dataset":"small","iterations":1}}`
	require.NoError(t, os.WriteFile(filepath.Join(h.ResultsDir, "benchmark_results_small_1.json"), []byte(body), 0644))

	w := get(t, h, "/results?n=0")
	require.Equal(t, http.StatusOK, w.Code)
	var summary map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "small", summary["dataset"])
	assert.EqualValues(t, 1, summary["files"])
}

func TestMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `benchctl_task_runs_total{outcome="success",task="view"} 1`))
}
