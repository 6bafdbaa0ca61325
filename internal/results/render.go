package results

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Summarize aggregates the n newest result files in dir (0 = all).
// Files that cannot be decoded are skipped and returned in skipped; they
// still count towards Summary.Files.
func Summarize(dir string, n int) (s *Summary, skipped []string, err error) {
	paths, err := Find(dir, n)
	if err != nil {
		return nil, nil, err
	}

	files := make([]*File, 0, len(paths))
	for _, p := range paths {
		f, err := Load(p)
		if err != nil {
			skipped = append(skipped, p)
			continue
		}
		files = append(files, f)
	}
	s = Aggregate(files)
	s.Files = len(paths)
	return s, skipped, nil
}

// FormatMillis renders seconds as milliseconds; nil renders as a dash.
func FormatMillis(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v*1000)
}

// FormatRatio renders a PG/Neo4j ratio such as "2.50x".
func FormatRatio(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2fx", *v)
}

var engineTitles = map[string]string{
	"postgres": "POSTGRESQL",
	"neo4j":    "NEO4J",
}

// Render writes the summary as text tables.
func Render(w io.Writer, s *Summary) {
	iterations := "-"
	if s.Iterations != nil {
		iterations = fmt.Sprint(*s.Iterations)
	}

	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Files aggregated: %d, dataset: %s, iterations: %s\n", s.Files, s.Dataset, iterations)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	for _, engine := range Engines {
		fmt.Fprintln(w, engineTitles[engine])
		table := tablewriter.NewWriter(w)
		table.Header("Query", "Avg (ms)", "Min (ms)", "Max (ms)", "Std (ms)", "Samples", "Count")
		for _, st := range s.Engines[engine] {
			table.Append(
				st.Query,
				FormatMillis(st.Avg),
				FormatMillis(st.Min),
				FormatMillis(st.Max),
				FormatMillis(st.Std),
				fmt.Sprint(st.Samples),
				fmt.Sprint(st.ResultsCount),
			)
		}
		table.Render()
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "COMPARISON (PG / NEO4J)")
	table := tablewriter.NewWriter(w)
	table.Header("Query", "PG (ms)", "Neo4j (ms)", "Ratio")
	for _, c := range s.Comparison {
		table.Append(c.Query, FormatMillis(c.Postgres), FormatMillis(c.Neo4j), FormatRatio(c.Ratio))
	}
	table.Render()
}

// RenderJSON writes the summary as indented JSON.
func RenderJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
