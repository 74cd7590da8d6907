// Package cli provides the command-line interface for aide.
package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aide-sh/aide/internal/config"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// globalLogger stores the initialized logger for use by subcommands.
// It is set during PersistentPreRunE and should be accessed via GetLogger.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the initialized logger for use by subcommands. It
// must only be called after the root command's PersistentPreRunE has
// executed; before that it returns a zero-value logger that discards
// everything.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	verbose bool
	quiet   bool
}

// loadConfig loads and validates configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

// newRootCmd creates the root command for the aide CLI.
func newRootCmd(flags *rootFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aide",
		Short: "aide - human-in-the-loop workflow engine",
		Long: `aide watches a task vault, classifies incoming work by risk, and routes
anything consequential to a human before it executes.

The vault is a plain directory tree: a task's state is the folder that
holds it. Safe tasks flow straight through; risky ones wait in
Pending_Approval until you approve or reject them.`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			globalLoggerMu.Lock()
			globalLogger = InitLogger(flags.verbose, flags.quiet)
			globalLoggerMu.Unlock()
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "only log warnings and errors")

	AddRunCommand(cmd)
	AddCheckCommand(cmd)
	AddApproveCommand(cmd)
	AddRejectCommand(cmd)
	AddStatusCommand(cmd)
	AddBriefCommand(cmd)

	return cmd
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	// A local .env can hold AIDE_* overrides; missing files are fine.
	_ = godotenv.Load()

	flags := &rootFlags{}
	cmd := newRootCmd(flags, info)
	defer CloseLogFile()
	return cmd.ExecuteContext(ctx)
}
