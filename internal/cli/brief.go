package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/orchestrator"
)

// AddBriefCommand registers the brief command on the root command.
func AddBriefCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "brief",
		Short: "Generate a briefing report now",
		Long: `Brief builds a briefing report from the vault on demand, outside the
weekly schedule, and writes it into the Briefings folder.`,
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

			name, err := o.GenerateBriefing(ctx)
			if err != nil {
				return fmt.Errorf("generate briefing: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Briefing written: %s\n", name)
			return nil
		},
	}
	root.AddCommand(cmd)
}
