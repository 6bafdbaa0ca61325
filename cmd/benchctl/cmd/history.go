package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/history"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

var (
	historyLimit int
	historyTask  string
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List recorded task runs",
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE:    runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show, 0 for all")
	historyCmd.Flags().StringVar(&historyTask, "task", "", "only show runs of this task")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a := current
	if a.history == nil {
		return &taskrunner.ExitError{Code: 1, Task: "history", Err: fmt.Errorf("run history is disabled or unavailable (history.path=%s)", a.cfg.History.Path)}
	}

	entries, err := a.history.List(cmd.Context(), history.Filter{Task: historyTask, Limit: historyLimit})
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Started", "Task", "Params", "Iter", "Exit", "Outcome", "Duration", "Run ID")
	for _, e := range entries {
		iter := ""
		if e.Iteration > 0 {
			iter = fmt.Sprint(e.Iteration)
		}
		table.Append([]string{
			e.StartTime.Local().Format("2006-01-02 15:04:05"),
			e.Task,
			e.ParamString(),
			iter,
			fmt.Sprint(e.ExitCode),
			e.Outcome,
			e.Duration.Round(time.Millisecond).String(),
			shortID(e.RunID),
		})
	}
	table.Render()

	if historyTask == "" && historyLimit > 0 && len(entries) == historyLimit {
		if total, err := a.history.Count(cmd.Context()); err == nil && total > len(entries) {
			fmt.Fprintf(out, "Showing %d of %d runs, use --limit 0 for all\n", len(entries), total)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
