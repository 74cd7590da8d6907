package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/orchestrator"
)

// AddApproveCommand registers the approve command on the root command.
func AddApproveCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "approve <task>",
		Short: "Approve a pending task",
		Long: `Approve moves a task (and its plan) from Pending_Approval into
Approved. The next engine tick executes and archives it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			name := args[0]
			if err := o.Approve(ctx, name); err != nil {
				return fmt.Errorf("approve %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Approved %s\n", name)
			return nil
		},
	}
	root.AddCommand(cmd)
}
