package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Print task metrics in Prometheus text format",
	Long: `Rebuilds the benchctl_task_* metrics from the run history and prints them
in the Prometheus text exposition format.`,
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := current
		if err := a.replayHistory(cmd.Context()); err != nil {
			return err
		}
		return report.WriteText(cmd.OutOrStdout(), a.metrics.Gatherer())
	},
}

func init() {
	rootCmd.AddCommand(metricsCmd)
}
