package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appDir             = "devfleet"
	configFileName     = "config.yaml"
	projectConfigName  = ".devfleet.yaml"
	registryFileName   = "servers.json"
	portLedgerFileName = "ports.json"
)

// GlobalConfigPath returns the path of the user-level config file,
// ~/.config/devfleet/config.yaml on Linux.
func GlobalConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(dir, appDir, configFileName), nil
}

// ProjectConfigPath returns the path of the project-local config file
// for the given working directory.
func ProjectConfigPath(cwd string) string {
	return filepath.Join(cwd, projectConfigName)
}

// StateDir returns the directory holding mutable shared state (the
// registry file and the sequential port ledger). It honors
// XDG_STATE_HOME and falls back to ~/.local/state.
func StateDir() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", appDir), nil
}

// RegistryPath returns the path of the persisted server registry.
func RegistryPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, registryFileName), nil
}

// PortLedgerPath returns the path of the sequential allocation ledger.
func PortLedgerPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, portLedgerFileName), nil
}
