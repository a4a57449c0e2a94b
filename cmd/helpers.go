package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devfleet/internal/cli"
	"devfleet/internal/config"
	"devfleet/internal/reconcile"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"

	"github.com/mattn/go-isatty"
)

// resolveCwd turns the --cwd flag into an absolute directory, defaulting
// to the invocation's working directory.
func resolveCwd(flagValue string) (string, error) {
	if flagValue == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("could not determine working directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(flagValue)
	if err != nil {
		return "", fmt.Errorf("invalid --cwd %q: %w", flagValue, err)
	}
	return abs, nil
}

// newEngine wires the reconciliation engine for one invocation: merged
// config for cwd, the shared registry store, the pm2 supervisor, and a
// terminal prompter when stdin is interactive.
func newEngine(cwd string) (*reconcile.Engine, *registry.Store, error) {
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, nil, err
	}

	registryPath, err := config.RegistryPath()
	if err != nil {
		return nil, nil, err
	}
	store := registry.NewStore(registryPath)

	opts := reconcile.Options{}
	if isatty.IsTerminal(os.Stdin.Fd()) {
		opts.Prompter = cli.NewTerminalPrompter(os.Stdin, os.Stderr)
	}

	return reconcile.New(store, cfg, supervisor.NewPM2(), opts), store, nil
}

// parseEnvFlags turns repeated KEY=VALUE flags into an env template
// map. A missing '=' is an error rather than an empty value so typos
// fail loudly.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q: expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
