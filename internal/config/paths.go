package config

import (
	"os"
	"path/filepath"

	"github.com/aide-sh/aide/internal/constants"
	"github.com/aide-sh/aide/internal/errors"
)

// GlobalConfigDir returns the global aide configuration directory,
// typically ~/.aide.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, constants.AideHome), nil
}

// GlobalConfigPath returns the global configuration file path,
// typically ~/.aide/config.yaml.
func GlobalConfigPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.GlobalConfigName), nil
}

// GlobalLogDir returns the CLI log directory, typically ~/.aide/logs.
func GlobalLogDir() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// ProjectConfigPath returns the per-directory configuration file name,
// resolved relative to the current working directory.
func ProjectConfigPath() string {
	return constants.ProjectConfigName
}

// DefaultVaultPath returns the fallback vault location (~/.aide/vault)
// used when no vault path is configured.
func DefaultVaultPath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vault"), nil
}
