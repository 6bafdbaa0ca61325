package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/dbclean"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

var inspectTimeout time.Duration

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show row, node and relationship counts in both databases",
	Long: `Counts the rows of every public PostgreSQL table and the nodes and
relationships in Neo4j, per label and per relationship type. On Neo4j
apoc.meta.stats is used when APOC is installed.`,
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE:    runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().DurationVar(&inspectTimeout, "timeout", 5*time.Minute, "give up after this long")
}

func runInspect(cmd *cobra.Command, args []string) error {
	a := current
	ctx := cmd.Context()
	if inspectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inspectTimeout)
		defer cancel()
	}

	var inventories []dbclean.Inventory
	err := a.withCleaner(ctx, func(c *dbclean.Cleaner) error {
		inventories = c.Inspect(ctx)
		return nil
	})
	if err != nil {
		return &taskrunner.ExitError{Code: 1, Task: "inspect", Err: err}
	}

	if err := writeInventories(cmd.OutOrStdout(), inventories, IsJSONOutput()); err != nil {
		return err
	}

	failed := 0
	for _, inv := range inventories {
		if inv.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return &taskrunner.ExitError{Code: 1, Task: "inspect", Err: fmt.Errorf("%d database(s) could not be inspected", failed)}
	}
	return nil
}

func writeInventories(w io.Writer, inventories []dbclean.Inventory, asJSON bool) error {
	if asJSON {
		if inventories == nil {
			inventories = []dbclean.Inventory{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(inventories)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Database", "Group", "Name", "Count")
	for _, inv := range inventories {
		if inv.Error != "" {
			table.Append([]string{inv.DB, "error", inv.Error, "-"})
			continue
		}
		for _, c := range inv.Counts {
			table.Append([]string{inv.DB, c.Group, c.Name, fmt.Sprint(c.Value)})
		}
	}
	return table.Render()
}
