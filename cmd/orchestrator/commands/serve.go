package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"orchestrator-gateway/internal/app"
	"orchestrator-gateway/internal/logger"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestrator",
		Long: `Resolve configuration, start every managed resource and serve HTTP until
SIGINT or SIGTERM. Exits with status 1 on invalid configuration or when a
resource fails to start.

Examples:
  # Use ./.env and the process environment
  orchestrator serve

  # Explicit config file
  orchestrator serve --config /etc/clos/orchestrator.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}

			log, err := logger.New(logger.Config{
				Level:  cfg.EffectiveLogLevel(),
				Format: cfg.LogFormat,
				Output: cfg.LogOutput,
			})
			if err != nil {
				return err
			}
			log = log.With(logger.KeyEnv, cfg.Environment)
			if cfg.Reload {
				log.Warn("CLOS_RELOAD has no effect on a compiled binary; restart the process to pick up changes")
			}

			a, err := app.New(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Run(ctx); err != nil {
				log.Error("orchestrator stopped with error", logger.KeyError, err)
				return err
			}
			return nil
		},
	}
}
