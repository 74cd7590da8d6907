// Package config loads and validates aide configuration.
//
// Precedence, highest first: environment variables (AIDE_*), the
// per-directory project file (.aide.yaml), the global file
// (~/.aide/config.yaml), built-in defaults.
//
// Import rules:
//   - CAN import: internal/constants, internal/errors, std lib
//   - MUST NOT import: internal/vault, internal/workflow, internal/cli
package config

import (
	"time"

	"github.com/aide-sh/aide/internal/constants"
)

// Config is the complete aide configuration.
type Config struct {
	Vault     VaultConfig     `yaml:"vault" mapstructure:"vault"`
	Workflow  WorkflowConfig  `yaml:"workflow" mapstructure:"workflow"`
	Intervals IntervalsConfig `yaml:"intervals" mapstructure:"intervals"`
	Watchdog  WatchdogConfig  `yaml:"watchdog" mapstructure:"watchdog"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// VaultConfig locates the task vault on disk.
type VaultConfig struct {
	// Path is the vault root directory. Required.
	Path string `yaml:"path" mapstructure:"path"`
}

// WorkflowConfig tunes classification and execution behavior.
type WorkflowConfig struct {
	// DryRun logs intended actions without executing callbacks or moving
	// records out of Approved.
	DryRun bool `yaml:"dry_run" mapstructure:"dry_run"`

	// KnownContacts are email addresses whose replies may bypass approval.
	KnownContacts []string `yaml:"known_contacts" mapstructure:"known_contacts"`

	// ApprovalThreshold is the dollar amount above which tasks always
	// require human approval.
	ApprovalThreshold float64 `yaml:"approval_threshold" mapstructure:"approval_threshold"`
}

// IntervalsConfig holds the engine's periodic loop intervals.
type IntervalsConfig struct {
	// Process is the orchestrator tick interval (task processing and
	// approval scanning).
	Process time.Duration `yaml:"process" mapstructure:"process"`

	// HealthCheck is the watchdog's watcher health check interval.
	HealthCheck time.Duration `yaml:"health_check" mapstructure:"health_check"`

	// Watcher is the inbox watcher's poll interval.
	Watcher time.Duration `yaml:"watcher" mapstructure:"watcher"`
}

// WatchdogConfig tunes watcher supervision.
type WatchdogConfig struct {
	// MaxRestartAttempts is the cumulative restart budget per watcher
	// before a human alert is raised.
	MaxRestartAttempts int `yaml:"max_restart_attempts" mapstructure:"max_restart_attempts"`

	// Staleness is how old a watcher's last check may be before it is
	// considered stalled.
	Staleness time.Duration `yaml:"staleness" mapstructure:"staleness"`
}

// LoggingConfig tunes the CLI logger.
type LoggingConfig struct {
	// Level is the minimum zerolog level (trace, debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Workflow: WorkflowConfig{
			ApprovalThreshold: constants.ApprovalAmountThreshold,
		},
		Intervals: IntervalsConfig{
			Process:     constants.DefaultProcessInterval,
			HealthCheck: constants.DefaultHealthCheckInterval,
			Watcher:     constants.DefaultWatcherInterval,
		},
		Watchdog: WatchdogConfig{
			MaxRestartAttempts: constants.MaxRestartAttempts,
			Staleness:          constants.StalenessThreshold,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
