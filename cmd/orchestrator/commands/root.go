// Package commands implementa a CLI do orquestrador.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	"orchestrator-gateway/internal/config"
)

type BuildInfo struct {
	Version string
	Commit  string
}

type globalFlags struct {
	configFile string
	envFile    string
}

// NewRootCmd monta a árvore de comandos. Cada chamada cria flags novas.
func NewRootCmd(info BuildInfo) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "orchestrator",
		Short: "CLOS Orchestrator - bootstrap and request pipeline",
		Long: `Central orchestration service: starts the database pool, cache client and
agent worker pool in order, serves /api/v1 through the middleware pipeline
(host validation, CORS, logging, metrics, rate limiting, fault boundary) and
shuts everything down in reverse order on SIGINT/SIGTERM.

Configuration comes from defaults, an optional config file, an optional .env
file and environment variables, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file; ignored when missing")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	root.AddCommand(newVersionCmd(info))
	root.CompletionOptions.DisableDefaultCmd = true
	return root
}

func (f *globalFlags) resolve() (*config.Config, error) {
	return config.Resolve(config.Sources{
		Environ:    os.Environ(),
		DotEnvFile: f.envFile,
		ConfigFile: f.configFile,
	})
}
