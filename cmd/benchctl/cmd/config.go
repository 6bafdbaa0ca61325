package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Configuration management",
	GroupID: "tools",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file and BENCHCTL_*
environment variables have been applied. Credentials are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "format", "f", "yaml", "output format: yaml or json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := current.cfg.Redacted()
	out := cmd.OutOrStdout()

	if f := viper.ConfigFileUsed(); f != "" {
		cmd.PrintErrf("# config file: %s\n", f)
	}

	// the global -o also accepts yaml here
	format := configOutput
	if outputFormat == "json" || outputFormat == "yaml" {
		format = outputFormat
	}

	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown format %q (want yaml or json)", format)
	}
}
