package config

import (
	"time"

	"github.com/aide-sh/aide/internal/errors"
)

// Interval bounds. The process loop is the engine's heartbeat; values
// outside this range are almost certainly configuration mistakes.
const (
	minInterval = time.Second
	maxInterval = time.Hour
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first validation failure found.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.Wrap(errors.ErrConfigInvalid, "config is nil")
	}

	if cfg.Vault.Path == "" {
		return errors.Wrap(errors.ErrConfigInvalid, "vault.path must not be empty")
	}

	if cfg.Workflow.ApprovalThreshold <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"workflow.approval_threshold must be positive, got %.2f", cfg.Workflow.ApprovalThreshold)
	}

	if err := validateIntervals(&cfg.Intervals); err != nil {
		return err
	}

	if cfg.Watchdog.MaxRestartAttempts < 1 || cfg.Watchdog.MaxRestartAttempts > 10 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"watchdog.max_restart_attempts must be between 1 and 10, got %d", cfg.Watchdog.MaxRestartAttempts)
	}
	if cfg.Watchdog.Staleness <= 0 {
		return errors.Wrapf(errors.ErrConfigInvalid,
			"watchdog.staleness must be positive, got %s", cfg.Watchdog.Staleness)
	}

	return validateLogLevel(cfg.Logging.Level)
}

func validateIntervals(cfg *IntervalsConfig) error {
	intervals := []struct {
		name  string
		value time.Duration
	}{
		{"intervals.process", cfg.Process},
		{"intervals.health_check", cfg.HealthCheck},
		{"intervals.watcher", cfg.Watcher},
	}

	for _, iv := range intervals {
		if iv.value < minInterval || iv.value > maxInterval {
			return errors.Wrapf(errors.ErrConfigInvalid,
				"%s must be between %s and %s, got %s", iv.name, minInterval, maxInterval, iv.value)
		}
	}
	return nil
}

func validateLogLevel(level string) error {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return errors.Wrapf(errors.ErrConfigInvalid, "logging.level %q is not a valid level", level)
	}
}
