package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/errors"
)

// writeConfigFile writes YAML config content to a temp file and returns
// its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefaultConfig tests built-in defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, constants.DefaultProcessInterval, cfg.Intervals.Process)
	assert.Equal(t, constants.DefaultHealthCheckInterval, cfg.Intervals.HealthCheck)
	assert.Equal(t, constants.DefaultWatcherInterval, cfg.Intervals.Watcher)
	assert.Equal(t, constants.MaxRestartAttempts, cfg.Watchdog.MaxRestartAttempts)
	assert.Equal(t, constants.StalenessThreshold, cfg.Watchdog.Staleness)
	assert.InDelta(t, constants.ApprovalAmountThreshold, cfg.Workflow.ApprovalThreshold, 0.001)
	assert.False(t, cfg.Workflow.DryRun)
	assert.Equal(t, "info", cfg.Logging.Level)
}

// TestLoadFromPaths tests file loading and precedence.
func TestLoadFromPaths(t *testing.T) {
	t.Run("defaults when no files exist", func(t *testing.T) {
		cfg, err := LoadFromPaths("", "")
		require.NoError(t, err)

		assert.NotEmpty(t, cfg.Vault.Path)
		assert.Equal(t, constants.DefaultProcessInterval, cfg.Intervals.Process)
	})

	t.Run("reads global config", func(t *testing.T) {
		global := writeConfigFile(t, `
vault:
  path: /tmp/vault
intervals:
  process: 30s
workflow:
  known_contacts:
    - trusted@example.com
`)

		cfg, err := LoadFromPaths("", global)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/vault", cfg.Vault.Path)
		assert.Equal(t, 30*time.Second, cfg.Intervals.Process)
		assert.Equal(t, []string{"trusted@example.com"}, cfg.Workflow.KnownContacts)
	})

	t.Run("project overrides global", func(t *testing.T) {
		global := writeConfigFile(t, `
vault:
  path: /tmp/global-vault
intervals:
  process: 30s
`)
		project := writeConfigFile(t, `
vault:
  path: /tmp/project-vault
`)

		cfg, err := LoadFromPaths(project, global)
		require.NoError(t, err)

		assert.Equal(t, "/tmp/project-vault", cfg.Vault.Path)
		// Non-overridden keys inherit from global
		assert.Equal(t, 30*time.Second, cfg.Intervals.Process)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		global := writeConfigFile(t, `
intervals:
  process: 5ms
`)

		_, err := LoadFromPaths("", global)
		require.Error(t, err)
		require.ErrorIs(t, err, errors.ErrConfigInvalid)
	})

	t.Run("environment variables take precedence", func(t *testing.T) {
		t.Setenv("AIDE_VAULT_PATH", "/tmp/env-vault")

		global := writeConfigFile(t, `
vault:
  path: /tmp/file-vault
`)

		cfg, err := LoadFromPaths("", global)
		require.NoError(t, err)
		assert.Equal(t, "/tmp/env-vault", cfg.Vault.Path)
	})
}

// TestValidate tests configuration validation rules.
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Vault.Path = "/tmp/vault"
		return cfg
	}

	t.Run("accepts defaults with vault path", func(t *testing.T) {
		require.NoError(t, Validate(valid()))
	})

	t.Run("rejects nil config", func(t *testing.T) {
		require.ErrorIs(t, Validate(nil), errors.ErrConfigInvalid)
	})

	t.Run("rejects empty vault path", func(t *testing.T) {
		cfg := valid()
		cfg.Vault.Path = ""
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)
	})

	t.Run("rejects non-positive threshold", func(t *testing.T) {
		cfg := valid()
		cfg.Workflow.ApprovalThreshold = 0
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)
	})

	t.Run("rejects out-of-range intervals", func(t *testing.T) {
		cfg := valid()
		cfg.Intervals.HealthCheck = 100 * time.Millisecond
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)

		cfg = valid()
		cfg.Intervals.Watcher = 2 * time.Hour
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)
	})

	t.Run("rejects restart attempts out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Watchdog.MaxRestartAttempts = 0
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)

		cfg = valid()
		cfg.Watchdog.MaxRestartAttempts = 11
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "verbose"
		require.ErrorIs(t, Validate(cfg), errors.ErrConfigInvalid)
	})
}
