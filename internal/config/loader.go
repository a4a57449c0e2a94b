package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"devfleet/internal/api"
	"devfleet/pkg/logging"

	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment overrides, e.g.
// DEVFLEET_HOSTNAME or DEVFLEET_PORTRANGE_MIN.
const envPrefix = "DEVFLEET"

// Load merges configuration from, lowest to highest precedence:
// built-in defaults, the global config file, the project-local config
// file in cwd, and DEVFLEET_* environment variables. The result is
// immutable for the remainder of the invocation.
func Load(cwd string) (GlobalConfig, error) {
	globalPath, err := GlobalConfigPath()
	if err != nil {
		return GlobalConfig{}, err
	}
	projectPath := ""
	if cwd != "" {
		projectPath = ProjectConfigPath(cwd)
	}
	return LoadFrom(globalPath, projectPath)
}

// LoadFrom is Load with explicit file locations, used directly by tests.
func LoadFrom(globalPath, projectPath string) (GlobalConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults := GetDefaultConfig()
	v.SetDefault("hostname", defaults.Hostname)
	v.SetDefault("protocol", string(defaults.Protocol))
	v.SetDefault("portrange.min", defaults.PortRange.Min)
	v.SetDefault("portrange.max", defaults.PortRange.Max)
	v.SetDefault("refreshonchange", string(defaults.RefreshOnChange))

	v.SetConfigFile(globalPath)
	if err := v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return GlobalConfig{}, fmt.Errorf("error loading config from %s: %w", globalPath, err)
		}
		logging.Debug("ConfigLoader", "No global config at %s, using defaults", globalPath)
	}

	if projectPath != "" {
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			if !isNotExist(err) {
				return GlobalConfig{}, fmt.Errorf("error loading config from %s: %w", projectPath, err)
			}
		} else {
			logging.Debug("ConfigLoader", "Merged project config from %s", projectPath)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("error parsing configuration: %w", err)
	}
	if cfg.Vars == nil {
		cfg.Vars = map[string]string{}
	}

	if err := validate(&cfg); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

func validate(cfg *GlobalConfig) error {
	if cfg.Hostname == "" {
		return fmt.Errorf("hostname must not be empty")
	}
	if cfg.Protocol != api.ProtocolHTTP && cfg.Protocol != api.ProtocolHTTPS {
		return fmt.Errorf("invalid protocol %q: must be http or https", cfg.Protocol)
	}
	if cfg.PortRange.Min <= 0 || cfg.PortRange.Max > 65535 || cfg.PortRange.Min > cfg.PortRange.Max {
		return fmt.Errorf("invalid port range %d-%d", cfg.PortRange.Min, cfg.PortRange.Max)
	}
	if !cfg.RefreshOnChange.Valid() {
		return fmt.Errorf("invalid refreshOnChange policy %q", cfg.RefreshOnChange)
	}
	if cfg.Protocol == api.ProtocolHTTPS && (cfg.HTTPSCert == "") != (cfg.HTTPSKey == "") {
		return fmt.Errorf("httpsCert and httpsKey must be set together")
	}
	return nil
}
