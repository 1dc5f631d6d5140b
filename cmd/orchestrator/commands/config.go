package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	var output string
	check := &cobra.Command{
		Use:   "check",
		Short: "Resolve and validate configuration",
		Long: `Resolve configuration from every source, validate it and print a redacted
summary. Secrets are never printed. Exits with status 1 when invalid.

Examples:
  orchestrator config check
  orchestrator config check --output json --env-file deploy/.env`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), output, cfg.Redacted())
		},
	}
	check.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml|json)")

	cmd.AddCommand(check)
	return cmd
}

func printSummary(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (use yaml or json)", format)
	}
}
