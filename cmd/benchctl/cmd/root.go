package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/config"
	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/taskrunner"
)

var (
	cfgFile      string
	outputFormat string
	dryRun       bool
	logLevel     string

	// current is the environment built for the running command.
	current *app
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "benchctl",
	Short: "Task runner for the PostgreSQL vs Neo4j benchmark",
	Long: `benchctl drives the PostgreSQL vs Neo4j graph benchmark: it starts and stops
the database containers, cleans both databases, runs the benchmark scripts
for each dataset size, repeats full runs with per-iteration logs and shows
aggregated results.

Tasks take key=value arguments, for example:
  benchctl test-all-n n=5
  benchctl view n=3`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.HasParent() || cmd.Name() == "help" {
			return nil
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return &taskrunner.ExitError{Code: taskrunner.CodeRunnerError, Task: cmd.Name(), Err: err}
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp()
	},
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when RunE fails
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}

	var ee *taskrunner.ExitError
	if !errors.As(err, &ee) || ee.Err != nil {
		// a bare non-zero status was already explained by the command's own output
		fmt.Fprintf(os.Stderr, "benchctl: %v\n", err)
	}
	return taskrunner.ExitCode(err)
}

func init() {
	cobra.OnInitialize(initConfig)

	// bare benchctl prints the task listing
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return printHelp(cmd)
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./benchctl.yaml or $HOME/.benchctl/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "print commands instead of running them")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	config.SetDefaults(viper.GetViper())

	path := cfgFile
	if path == "" {
		path = config.FindFile()
	}

	viper.SetEnvPrefix("BENCHCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if path == "" {
		return
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configErr = fmt.Errorf("failed to read config %s: %w", path, err)
	}
}

// configErr is reported by newApp so that it maps to an exit status.
var configErr error

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}
	return config.Load(viper.GetViper())
}
