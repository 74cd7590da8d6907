package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/orchestrator"
)

// AddStatusCommand registers the status command on the root command.
func AddStatusCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print an engine status snapshot as JSON",
		Long: `Status inspects the vault and prints the pending queue, active
multi-step tasks, and scheduler state as JSON. It reflects the on-disk
vault even when no engine is running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := GetLogger()
			ctx := logger.WithContext(cmd.Context())

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			o, err := orchestrator.New(cfg)
			if err != nil {
				return err
			}

			status, err := o.Status(ctx)
			if err != nil {
				return fmt.Errorf("collect status: %w", err)
			}

			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	root.AddCommand(cmd)
}
