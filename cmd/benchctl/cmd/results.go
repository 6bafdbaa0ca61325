package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/results"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

var (
	resultsCount int
	resultsJSON  bool
)

var resultsCmd = &cobra.Command{
	Use:     "results",
	Short:   "Inspect benchmark result files",
	GroupID: "tools",
}

var resultsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Aggregate the newest result files",
	Long: `Aggregates the N newest results/benchmark_results_*.json files (0 = all).
Raw query times are pooled across files before min/avg/max/std are computed;
the result count of a query is taken from the first file that has it.`,
	Args: cobra.NoArgs,
	RunE: runResultsShow,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(resultsShowCmd)

	resultsShowCmd.Flags().IntVarP(&resultsCount, "count", "n", 1, "number of newest files to aggregate, 0 for all")
	resultsShowCmd.Flags().BoolVar(&resultsJSON, "json", false, "print JSON (same as --output json)")
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	if resultsCount < 0 {
		return &taskrunner.ExitError{Code: taskrunner.CodeRunnerError, Task: "results show", Err: fmt.Errorf("-n must be >= 0")}
	}

	a := current
	summary, skipped, err := results.Summarize(a.cfg.ResultsDir, resultsCount)
	if err != nil {
		return &taskrunner.ExitError{Code: 1, Task: "results show", Err: err}
	}
	for _, p := range skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped unreadable file %s\n", p)
	}

	if resultsJSON || IsJSONOutput() {
		return results.RenderJSON(cmd.OutOrStdout(), summary)
	}
	results.Render(cmd.OutOrStdout(), summary)
	return nil
}
