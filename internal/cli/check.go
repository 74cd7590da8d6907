package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/vault"
)

// AddCheckCommand registers the check command on the root command.
func AddCheckCommand(root *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and prepare the vault",
		Long: `Check loads the configuration, validates it, and creates the vault
directory tree if missing. It runs no loops and moves no tasks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := vault.NewFileStore(cfg.Vault.Path)
			if err != nil {
				return fmt.Errorf("open vault: %w", err)
			}
			if err := store.EnsureLocations(); err != nil {
				return fmt.Errorf("prepare vault: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration OK")
			fmt.Fprintf(out, "  Vault:               %s\n", cfg.Vault.Path)
			fmt.Fprintf(out, "  Dry run:             %t\n", cfg.Workflow.DryRun)
			fmt.Fprintf(out, "  Approval threshold:  $%.2f\n", cfg.Workflow.ApprovalThreshold)
			fmt.Fprintf(out, "  Known contacts:      %d\n", len(cfg.Workflow.KnownContacts))
			fmt.Fprintf(out, "  Process interval:    %s\n", cfg.Intervals.Process)
			fmt.Fprintf(out, "  Watcher interval:    %s\n", cfg.Intervals.Watcher)
			fmt.Fprintf(out, "  Health interval:     %s\n", cfg.Intervals.HealthCheck)
			if logPath, err := LogFilePath(); err == nil {
				fmt.Fprintf(out, "  Log file:            %s\n", logPath)
			}
			return nil
		},
	}
	root.AddCommand(cmd)
}
