// Package results reads the benchmark result files written by the
// benchmark runner and aggregates several runs into one summary.
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FilePattern matches result files inside the results directory.
const FilePattern = "benchmark_results_*.json"

// Engines in display order.
var Engines = []string{"postgres", "neo4j"}

// ErrNoResults is returned when the results directory holds no result files.
var ErrNoResults = errors.New("no benchmark result files")

// QueryResult is one query's measurements for one engine.
type QueryResult struct {
	Description  string    `json:"description,omitempty"`
	Times        []float64 `json:"times"`
	MinTime      *float64  `json:"min_time"`
	MaxTime      *float64  `json:"max_time"`
	AvgTime      *float64  `json:"avg_time"`
	StdTime      *float64  `json:"std_time"`
	ResultsCount int       `json:"results_count"`
}

// rawQuery tolerates null entries in times, which are skipped.
type rawQuery struct {
	Description  string     `json:"description"`
	Times        []*float64 `json:"times"`
	MinTime      *float64   `json:"min_time"`
	MaxTime      *float64   `json:"max_time"`
	AvgTime      *float64   `json:"avg_time"`
	StdTime      *float64   `json:"std_time"`
	ResultsCount *int       `json:"results_count"`
}

func (r rawQuery) result() *QueryResult {
	q := &QueryResult{
		Description: r.Description,
		Times:       make([]float64, 0, len(r.Times)),
		MinTime:     r.MinTime,
		MaxTime:     r.MaxTime,
		AvgTime:     r.AvgTime,
		StdTime:     r.StdTime,
	}
	for _, t := range r.Times {
		if t != nil {
			q.Times = append(q.Times, *t)
		}
	}
	if r.ResultsCount != nil {
		q.ResultsCount = *r.ResultsCount
	}
	return q
}

// Metadata describes how a result file was produced.
type Metadata struct {
	Dataset    string `json:"dataset,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// EngineResults keeps queries in file order.
type EngineResults struct {
	Order   []string
	Queries map[string]*QueryResult
}

// File is one decoded result file.
type File struct {
	Path     string
	ModTime  time.Time
	Engines  map[string]*EngineResults
	Metadata Metadata
}

// Find lists result files in dir, newest first by modification time.
// n > 0 keeps only the n newest; n == 0 keeps all.
func Find(dir string, n int) ([]string, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("results directory %s: %w", dir, err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, FilePattern))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoResults, dir)
	}

	type stamped struct {
		path string
		mod  time.Time
	}
	files := make([]stamped, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		files = append(files, stamped{path: p, mod: info.ModTime()})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].mod.Equal(files[j].mod) {
			return files[i].path > files[j].path
		}
		return files[i].mod.After(files[j].mod)
	})

	if n > 0 && n < len(files) {
		files = files[:n]
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.path)
	}
	return out, nil
}

// Load decodes one result file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	f := &File{Path: path, ModTime: info.ModTime(), Engines: make(map[string]*EngineResults)}

	meta, ok := raw["metadata"]
	if !ok {
		meta = raw["meta"]
	}
	if len(meta) > 0 {
		// a malformed metadata block is treated as absent
		_ = json.Unmarshal(meta, &f.Metadata)
	}

	for _, engine := range Engines {
		body, ok := raw[engine]
		if !ok {
			continue
		}
		er, err := decodeEngine(body)
		if err != nil {
			return nil, fmt.Errorf("decode %s section of %s: %w", engine, path, err)
		}
		f.Engines[engine] = er
	}
	return f, nil
}

// decodeEngine decodes {"query": {...}, ...} keeping key order, which the
// summary tables reproduce.
func decodeEngine(body json.RawMessage) (*EngineResults, error) {
	er := &EngineResults{Queries: make(map[string]*QueryResult)}

	dec := json.NewDecoder(bytes.NewReader(body))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return er, nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected query name, got %v", tok)
		}
		var raw rawQuery
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("query %s: %w", name, err)
		}
		if _, seen := er.Queries[name]; !seen {
			er.Order = append(er.Order, name)
		}
		er.Queries[name] = raw.result()
	}
	return er, nil
}
