package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/execx"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

// convenience flags that translate to key=value params
var taskFlags = map[string]struct {
	flag, help, param, value string
}{
	"cleanup-db": {flag: "native", help: "clean the databases in-process instead of running the script", param: "mode", value: taskrunner.CleanupModeNative},
	"docker-up":  {flag: "wait", help: "wait until both databases accept connections", param: "wait", value: "true"},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "tools", Title: "Tools:"},
	)

	// Task names and parameters do not depend on configuration values, so
	// the command tree is built from the defaults and the real registry is
	// built per invocation.
	reg, err := taskrunner.Builtin(config.Default(), taskrunner.Hooks{})
	if err != nil {
		panic(err)
	}

	for _, task := range reg.Tasks() {
		if task.Name == "help" {
			help := newTaskCommand(task)
			help.RunE = func(cmd *cobra.Command, args []string) error { return printHelp(cmd) }
			rootCmd.SetHelpCommand(help)
			continue
		}
		rootCmd.AddCommand(newTaskCommand(task))
	}
}

func newTaskCommand(task *taskrunner.Task) *cobra.Command {
	name := task.Name
	c := &cobra.Command{
		Use:     strings.Replace(task.Usage(), name, name+" [flags]", 1),
		Short:   task.Summary,
		GroupID: "tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f, ok := taskFlags[name]; ok {
				if set, _ := cmd.Flags().GetBool(f.flag); set {
					args = append(args, fmt.Sprintf("%s=%s", f.param, f.value))
				}
			}
			return runTask(cmd, name, args)
		},
	}
	if lines := task.CommandLines(); len(lines) > 0 {
		c.Long = task.Summary + ".\n\nRuns:\n  " + strings.Join(lines, "\n  ")
	}
	if f, ok := taskFlags[name]; ok {
		c.Flags().Bool(f.flag, false, f.help)
	}
	return c
}

// printHelp runs the help task without loading configuration, so it works
// whatever state the checkout is in.
func printHelp(cmd *cobra.Command) error {
	reg, err := taskrunner.Builtin(config.Default(), taskrunner.Hooks{})
	if err != nil {
		return err
	}
	r := taskrunner.NewRunner(reg, execx.NewOSExecutor(false), zap.NewNop())
	r.Stdout = cmd.OutOrStdout()
	if _, err := r.Run(cmd.Context(), "help", nil); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Tools:")
	for _, c := range rootCmd.Commands() {
		if c.GroupID == "tools" {
			fmt.Fprintf(out, "  %-22s%s\n", c.Name(), c.Short)
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Global flags: --config, --output/-o, --dry-run, --log-level")
	return nil
}
