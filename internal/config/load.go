package config

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/errors"
)

// newViperInstance creates a Viper instance with the AIDE_ environment
// prefix, key replacer, and built-in defaults applied.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("AIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults configures all default values on the Viper instance.
// Keys must match the YAML tag names exactly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("vault.path", "")
	v.SetDefault("workflow.dry_run", false)
	v.SetDefault("workflow.known_contacts", []string{})
	v.SetDefault("workflow.approval_threshold", constants.ApprovalAmountThreshold)
	v.SetDefault("intervals.process", constants.DefaultProcessInterval.String())
	v.SetDefault("intervals.health_check", constants.DefaultHealthCheckInterval.String())
	v.SetDefault("intervals.watcher", constants.DefaultWatcherInterval.String())
	v.SetDefault("watchdog.max_restart_attempts", constants.MaxRestartAttempts)
	v.SetDefault("watchdog.staleness", constants.StalenessThreshold.String())
	v.SetDefault("logging.level", "info")
}

// Load reads configuration from all available sources with proper
// precedence, highest first:
//  1. Environment variables (AIDE_* prefix)
//  2. Project config (.aide.yaml in the working directory)
//  3. Global config (~/.aide/config.yaml)
//  4. Built-in defaults
//
// Missing config files are not errors; an empty vault path falls back to
// ~/.aide/vault.
func Load() (*Config, error) {
	v := newViperInstance()

	if err := loadGlobalConfig(v); err != nil {
		return nil, err
	}
	if err := loadProjectConfig(v); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(v)
}

// LoadFromPaths loads configuration from specific file paths. Either
// path can be empty to skip that level; projectPath takes precedence.
func LoadFromPaths(projectPath, globalPath string) (*Config, error) {
	v := newViperInstance()

	if globalPath != "" && fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(err, "failed to read global config: %s", globalPath)
		}
	}

	if projectPath != "" && fileExists(projectPath) {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
			return nil, errors.Wrapf(err, "failed to read project config: %s", projectPath)
		}
	}

	return unmarshalAndValidate(v)
}

// loadGlobalConfig reads ~/.aide/config.yaml if it exists.
func loadGlobalConfig(v *viper.Viper) error {
	globalPath, err := GlobalConfigPath()
	if err != nil || !fileExists(globalPath) {
		return nil
	}

	v.SetConfigFile(globalPath)
	if err := v.ReadInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read global config file")
	}
	return nil
}

// loadProjectConfig merges .aide.yaml from the working directory if it
// exists.
func loadProjectConfig(v *viper.Viper) error {
	projectPath := ProjectConfigPath()
	if !fileExists(projectPath) {
		return nil
	}

	v.SetConfigFile(projectPath)
	if err := v.MergeInConfig(); err != nil && !isConfigNotFoundError(err) {
		return errors.Wrap(err, "failed to read project config file")
	}
	return nil
}

// unmarshalAndValidate decodes viper state into a Config, resolves the
// default vault path, and validates the result.
func unmarshalAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.Vault.Path == "" {
		fallback, err := DefaultVaultPath()
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve default vault path")
		}
		cfg.Vault.Path = fallback
	}

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// viperDecoderOption configures mapstructure to convert duration strings
// like "10s" into time.Duration.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
}

// isConfigNotFoundError reports whether err is viper's missing-config
// sentinel.
func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
