package results

import (
	"math"
	"sort"
)

const (
	DatasetMixed   = "mixed"
	DatasetUnknown = "unknown"
)

// Stats summarises the pooled times of one query on one engine.
type Stats struct {
	Query        string    `json:"query"`
	Description  string    `json:"description,omitempty"`
	Samples      int       `json:"samples"`
	Min          *float64  `json:"min_time"`
	Max          *float64  `json:"max_time"`
	Avg          *float64  `json:"avg_time"`
	Std          *float64  `json:"std_time"`
	ResultsCount int       `json:"results_count"`
	Times        []float64 `json:"-"`
}

// Comparison is the PostgreSQL/Neo4j average-time ratio for a query.
// Ratio is nil when either side has no data or Neo4j averaged zero.
type Comparison struct {
	Query    string   `json:"query"`
	Postgres *float64 `json:"postgres_avg"`
	Neo4j    *float64 `json:"neo4j_avg"`
	Ratio    *float64 `json:"ratio"`
}

// Summary aggregates several result files.
type Summary struct {
	// Files counts the files selected for aggregation, readable or not.
	Files      int                `json:"files"`
	Dataset    string             `json:"dataset"`
	Iterations *int               `json:"iterations"`
	Engines    map[string][]Stats `json:"engines"`
	Comparison []Comparison       `json:"comparison"`
}

// Aggregate pools the raw times of every query across files and recomputes
// the statistics. results_count is taken from the first file that has the
// query, since the benchmark only sets it on the first iteration.
func Aggregate(files []*File) *Summary {
	type acc struct {
		description string
		times       []float64
		counts      []int
	}

	datasets := map[string]struct{}{}
	iterations := map[int]struct{}{}
	perEngine := map[string]map[string]*acc{}
	order := map[string][]string{}

	for _, f := range files {
		if f.Metadata.Dataset != "" {
			datasets[f.Metadata.Dataset] = struct{}{}
		}
		if f.Metadata.Iterations != 0 {
			iterations[f.Metadata.Iterations] = struct{}{}
		}

		for _, engine := range Engines {
			er, ok := f.Engines[engine]
			if !ok {
				continue
			}
			if perEngine[engine] == nil {
				perEngine[engine] = map[string]*acc{}
			}
			for _, name := range er.Order {
				q := er.Queries[name]
				a, ok := perEngine[engine][name]
				if !ok {
					a = &acc{description: q.Description}
					perEngine[engine][name] = a
					order[engine] = append(order[engine], name)
				}
				a.times = append(a.times, q.Times...)
				a.counts = append(a.counts, q.ResultsCount)
			}
		}
	}

	s := &Summary{
		Files:   len(files),
		Dataset: datasetLabel(datasets),
		Engines: make(map[string][]Stats, len(Engines)),
	}
	if len(iterations) > 0 {
		// several distinct values collapse to the smallest
		lowest := math.MaxInt
		for it := range iterations {
			if it < lowest {
				lowest = it
			}
		}
		s.Iterations = &lowest
	}

	for _, engine := range Engines {
		stats := make([]Stats, 0, len(order[engine]))
		for _, name := range order[engine] {
			a := perEngine[engine][name]
			st := computeStats(a.times)
			st.Query = name
			st.Description = a.description
			if len(a.counts) > 0 {
				st.ResultsCount = a.counts[0]
			}
			stats = append(stats, st)
		}
		s.Engines[engine] = stats
	}

	s.Comparison = compare(s.Engines["postgres"], s.Engines["neo4j"])
	return s
}

func datasetLabel(set map[string]struct{}) string {
	switch len(set) {
	case 0:
		return DatasetUnknown
	case 1:
		names := make([]string, 0, 1)
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		return names[0]
	default:
		return DatasetMixed
	}
}

func computeStats(times []float64) Stats {
	st := Stats{Samples: len(times), Times: times}
	if len(times) == 0 {
		return st
	}

	lo, hi, sum := times[0], times[0], 0.0
	for _, t := range times {
		if t < lo {
			lo = t
		}
		if t > hi {
			hi = t
		}
		sum += t
	}
	avg := sum / float64(len(times))

	// sample standard deviation; a single sample has none
	std := 0.0
	if len(times) > 1 {
		var sq float64
		for _, t := range times {
			sq += (t - avg) * (t - avg)
		}
		std = math.Sqrt(sq / float64(len(times)-1))
	}

	st.Min, st.Max, st.Avg, st.Std = &lo, &hi, &avg, &std
	return st
}

func compare(pg, neo []Stats) []Comparison {
	neoByName := make(map[string]Stats, len(neo))
	for _, s := range neo {
		neoByName[s.Query] = s
	}

	out := make([]Comparison, 0, len(pg))
	for _, p := range pg {
		c := Comparison{Query: p.Query, Postgres: p.Avg}
		if n, ok := neoByName[p.Query]; ok {
			c.Neo4j = n.Avg
		}
		if c.Postgres != nil && c.Neo4j != nil && *c.Neo4j != 0 {
			r := *c.Postgres / *c.Neo4j
			c.Ratio = &r
		}
		out = append(out, c)
	}
	return out
}

// Stats returns the summary of query on engine.
func (s *Summary) Stats(engine, query string) (Stats, bool) {
	for _, st := range s.Engines[engine] {
		if st.Query == query {
			return st, true
		}
	}
	return Stats{}, false
}
