package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/dbclean"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

const (
	statusOK   = "ok"
	statusWarn = "warn"
	statusFail = "fail"
)

var doctorDB bool

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Short:   "Check that the tools and files the tasks need are in place",
	GroupID: "tools",
	Args:    cobra.NoArgs,
	RunE:    runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorDB, "db", false, "also ping PostgreSQL and Neo4j")
}

type check struct {
	name string
	run  func(ctx context.Context) (status, detail string)
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// runChecks runs independent read-only checks concurrently; results keep
// the order of checks.
func runChecks(ctx context.Context, checks []check) []checkResult {
	out := make([]checkResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, c := range checks {
		i, c := i, c
		g.Go(func() error {
			status, detail := c.run(gctx)
			out[i] = checkResult{Name: c.name, Status: status, Detail: detail}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func binaryCheck(name, program string) check {
	return check{name: name, run: func(context.Context) (string, string) {
		path, err := exec.LookPath(program)
		if err != nil {
			return statusFail, program + " not found in PATH"
		}
		return statusOK, path
	}}
}

func fileCheck(name, path string, required bool) check {
	return check{name: name, run: func(context.Context) (string, string) {
		if _, err := os.Stat(path); err != nil {
			if required {
				return statusFail, path + " missing"
			}
			return statusWarn, path + " missing"
		}
		return statusOK, path
	}}
}

func doctorChecks(a *app) []check {
	cfg := a.cfg
	checks := []check{
		binaryCheck("compose", cfg.Compose.Binary),
		binaryCheck("python", cfg.Python),
	}
	if cfg.VenvDir != "" {
		checks = append(checks, fileCheck("virtualenv", filepath.Join(cfg.VenvDir, "bin", "activate"), true))
	}
	for _, s := range []string{taskrunner.ScriptDatasetManager, taskrunner.ScriptCleanup, taskrunner.ScriptViewResults, taskrunner.ScriptCharts} {
		checks = append(checks, fileCheck("script "+s, cfg.Script(s), true))
	}
	if len(cfg.CacheDrop.Command) > 0 {
		status := statusFail
		if cfg.CacheDrop.Policy == config.PolicyBestEffort {
			status = statusWarn
		}
		program := cfg.CacheDrop.Command[0]
		checks = append(checks, check{name: "cache drop", run: func(context.Context) (string, string) {
			if _, err := exec.LookPath(program); err != nil {
				return status, program + " not found in PATH"
			}
			return statusOK, fmt.Sprintf("%s (policy %s)", program, cfg.CacheDrop.Policy)
		}})
	}

	checks = append(checks,
		check{name: "memory", run: func(ctx context.Context) (string, string) {
			m, err := dbclean.ReadMemory(ctx)
			if err != nil {
				return statusWarn, err.Error()
			}
			return statusOK, fmt.Sprintf("%.1f GiB available of %.1f GiB, %.1f GiB page cache",
				gib(m.Available), gib(m.Total), gib(m.Cached+m.Buffers))
		}},
		check{name: "disk", run: func(ctx context.Context) (string, string) {
			dir := cfg.DataDir
			if _, err := os.Stat(dir); err != nil {
				dir = "."
			}
			u, err := disk.UsageWithContext(ctx, dir)
			if err != nil {
				return statusWarn, err.Error()
			}
			status := statusOK
			if u.UsedPercent > 90 {
				status = statusWarn
			}
			return status, fmt.Sprintf("%.1f GiB free on %s (%.0f%% used)", gib(u.Free), u.Path, u.UsedPercent)
		}},
	)

	if doctorDB {
		checks = append(checks, check{name: "databases", run: func(ctx context.Context) (string, string) {
			ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			err := a.withCleaner(ctx, func(c *dbclean.Cleaner) error {
				for _, t := range c.Targets {
					if err := t.Ping(ctx); err != nil {
						return fmt.Errorf("%s: %w", t.Name(), err)
					}
				}
				return nil
			})
			if err != nil {
				return statusFail, err.Error()
			}
			return statusOK, "postgres and neo4j reachable"
		}})
	}
	return checks
}

func gib(b uint64) float64 {
	return float64(b) / (1 << 30)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	res := runChecks(cmd.Context(), doctorChecks(current))

	failed := 0
	for _, r := range res {
		if r.Status == statusFail {
			failed++
		}
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.Header("Check", "Status", "Detail")
		for _, r := range res {
			table.Append([]string{r.Name, r.Status, r.Detail})
		}
		table.Render()
	}

	if failed > 0 {
		return &taskrunner.ExitError{Code: 1, Task: "doctor", Err: fmt.Errorf("%d check(s) failed", failed)}
	}
	return nil
}
