package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/orchestrator"
)

// AddRejectCommand registers the reject command on the root command.
func AddRejectCommand(root *cobra.Command) {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <task>",
		Short: "Reject a pending task",
		Long: `Reject declines a task waiting in Pending_Approval. The rejection
reason is appended to the record and the task is archived into Done
with a REJECTED marker.`,
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
			if err := o.Reject(ctx, name, reason); err != nil {
				return fmt.Errorf("reject %s: %w", name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rejected %s\n", name)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the task was rejected")
	root.AddCommand(cmd)
}
