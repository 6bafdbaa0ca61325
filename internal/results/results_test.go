package results

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fileA = `{
  "postgres": {
    "shortest_path": {"description": "Shortest path", "times": [0.010, 0.020], "results_count": 4},
    "friends": {"description": "Friends", "times": [0.001], "results_count": 120}
  },
  "neo4j": {
    "shortest_path": {"description": "Shortest path", "times": [0.005, 0.005], "results_count": 4},
    "friends": {"description": "Friends", "times": [0.002], "results_count": 120}
  },
  "metadata": {"dataset": "small", "iterations": 2, "timestamp": "2026-01-01T00:00:00"}
}`

const fileB = `{
  "postgres": {
    "shortest_path": {"times": [0.030, null], "results_count": 0}
  },
  "neo4j": {
    "shortest_path": {"times": [0.005], "results_count": 0},
    "friends": {"times": [0.004], "results_count": 0}
  },
  "metadata": {"dataset": "small", "iterations": 3}
}`

func writeResult(t *testing.T, dir, name, body string, mod time.Time) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	require.NoError(t, os.Chtimes(p, mod, mod))
	return p
}

func TestFind_NewestFirst(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := writeResult(t, dir, "benchmark_results_small_1.json", fileA, now.Add(-time.Hour))
	recent := writeResult(t, dir, "benchmark_results_small_2.json", fileB, now)
	writeResult(t, dir, "other.json", fileA, now)

	all, err := Find(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{recent, old}, all)

	one, err := Find(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{recent}, one)

	many, err := Find(dir, 10)
	require.NoError(t, err)
	assert.Len(t, many, 2)
}

func TestFind_Empty(t *testing.T) {
	_, err := Find(t.TempDir(), 1)
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = Find(filepath.Join(t.TempDir(), "missing"), 1)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_KeepsQueryOrderAndSkipsNullTimes(t *testing.T) {
	dir := t.TempDir()
	f, err := Load(writeResult(t, dir, "benchmark_results_x.json", fileA, time.Now()))
	require.NoError(t, err)

	assert.Equal(t, []string{"shortest_path", "friends"}, f.Engines["postgres"].Order)
	assert.Equal(t, "small", f.Metadata.Dataset)
	assert.Equal(t, 2, f.Metadata.Iterations)

	f, err = Load(writeResult(t, dir, "benchmark_results_y.json", fileB, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.030}, f.Engines["postgres"].Queries["shortest_path"].Times)
}

func TestAggregate_PoolsTimes(t *testing.T) {
	dir := t.TempDir()
	a, err := Load(writeResult(t, dir, "benchmark_results_a.json", fileA, time.Now()))
	require.NoError(t, err)
	b, err := Load(writeResult(t, dir, "benchmark_results_b.json", fileB, time.Now()))
	require.NoError(t, err)

	s := Aggregate([]*File{a, b})
	assert.Equal(t, 2, s.Files)
	assert.Equal(t, "small", s.Dataset)
	require.NotNil(t, s.Iterations)
	assert.Equal(t, 2, *s.Iterations)

	pg, ok := s.Stats("postgres", "shortest_path")
	require.True(t, ok)
	assert.Equal(t, 3, pg.Samples)
	assert.InDelta(t, 0.010, *pg.Min, 1e-12)
	assert.InDelta(t, 0.030, *pg.Max, 1e-12)
	assert.InDelta(t, 0.020, *pg.Avg, 1e-12)
	assert.InDelta(t, 0.010, *pg.Std, 1e-12)
	assert.Equal(t, 4, pg.ResultsCount, "first file's count wins")
	assert.Equal(t, "Shortest path", pg.Description)

	neo, ok := s.Stats("neo4j", "friends")
	require.True(t, ok)
	assert.Equal(t, 2, neo.Samples)
	assert.InDelta(t, 0.003, *neo.Avg, 1e-12)

	require.Len(t, s.Comparison, 2)
	assert.Equal(t, "shortest_path", s.Comparison[0].Query)
	require.NotNil(t, s.Comparison[0].Ratio)
	assert.InDelta(t, 0.020/0.005, *s.Comparison[0].Ratio, 1e-9)
}

func TestAggregate_DatasetLabels(t *testing.T) {
	small := &File{Metadata: Metadata{Dataset: "small"}}
	large := &File{Metadata: Metadata{Dataset: "large"}}
	none := &File{}

	assert.Equal(t, "small", Aggregate([]*File{small, small}).Dataset)
	assert.Equal(t, DatasetMixed, Aggregate([]*File{small, large}).Dataset)
	assert.Equal(t, DatasetUnknown, Aggregate([]*File{none}).Dataset)
	assert.Nil(t, Aggregate([]*File{none}).Iterations)
}

func TestAggregate_SingleSampleAndMissingSide(t *testing.T) {
	f := &File{Engines: map[string]*EngineResults{
		"postgres": {
			Order: []string{"q1", "q2"},
			Queries: map[string]*QueryResult{
				"q1": {Times: []float64{0.5}},
				"q2": {},
			},
		},
	}}

	s := Aggregate([]*File{f})
	q1, _ := s.Stats("postgres", "q1")
	assert.Equal(t, 0.0, *q1.Std)

	q2, _ := s.Stats("postgres", "q2")
	assert.Nil(t, q2.Avg)

	for _, c := range s.Comparison {
		assert.Nil(t, c.Ratio)
	}
}

func TestSummarizeAndRender(t *testing.T) {
	dir := t.TempDir()
	writeResult(t, dir, "benchmark_results_a.json", fileA, time.Now().Add(-time.Minute))
	writeResult(t, dir, "benchmark_results_bad.json", "{not json", time.Now())

	s, skipped, err := Summarize(dir, 0)
	require.NoError(t, err)
	assert.Len(t, skipped, 1)
	assert.Equal(t, 2, s.Files, "unreadable files are still counted as selected")

	var out bytes.Buffer
	Render(&out, s)
	text := out.String()
	assert.Contains(t, text, "dataset: small")
	assert.Contains(t, text, "POSTGRESQL")
	assert.Contains(t, text, "15.00")
	assert.Contains(t, text, "3.00x")

	out.Reset()
	require.NoError(t, RenderJSON(&out, s))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, "small", decoded["dataset"])
}

func TestFormat(t *testing.T) {
	v := 0.0123
	assert.Equal(t, "12.30", FormatMillis(&v))
	assert.Equal(t, "-", FormatMillis(nil))
	r := 2.5
	assert.Equal(t, "2.50x", FormatRatio(&r))
}
