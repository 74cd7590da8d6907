package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/orchestrator"
	"github.com/aide-sh/aide/internal/signal"
)

// AddRunCommand registers the run command on the root command.
func AddRunCommand(root *cobra.Command) {
	var dryRun bool
	var once bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the workflow engine",
		Long: `Run starts the full engine: the inbox watcher, the processing loop,
the watchdog, and the scheduler. It blocks until interrupted.

With --once, a single processing pass runs and the command exits; no
background loops are started.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()
			ctx := logger.WithContext(cmd.Context())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Workflow.DryRun = true
			}

			o, err := orchestrator.New(cfg)
			if err != nil {
				return fmt.Errorf("build orchestrator: %w", err)
			}

			if once {
				processed, approved, err := o.Tick(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d task(s), %d approval(s)\n", processed, approved)
				return nil
			}

			handler := signal.NewHandler(ctx)
			defer handler.Stop()
			ctx = handler.Context()

			if err := o.Start(ctx); err != nil {
				return err
			}
			logger.Info().Bool("dry_run", cfg.Workflow.DryRun).Msg("engine running; press Ctrl-C to stop")

			<-handler.Interrupted()
			logger.Info().Msg("shutting down")
			return o.Stop(ctx)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "suppress execution side effects; records still flow through the vault")
	cmd.Flags().BoolVar(&once, "once", false, "run a single processing pass and exit")
	root.AddCommand(cmd)
}
