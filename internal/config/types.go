package config

import (
	"strings"

	"devfleet/internal/api"
)

// RefreshPolicy controls how configuration drift is handled when an
// already-registered server is started again.
type RefreshPolicy string

const (
	// RefreshManual ignores drift entirely; servers keep the
	// configuration they were resolved with until explicitly refreshed.
	RefreshManual RefreshPolicy = "manual"
	// RefreshPrompt surfaces the drift diff and refreshes only when the
	// caller confirms.
	RefreshPrompt RefreshPolicy = "prompt"
	// RefreshAuto re-resolves and restarts whenever drift is detected.
	RefreshAuto RefreshPolicy = "auto"
	// RefreshOnStart behaves like auto, but only on start/restart
	// requests (the only place this engine observes drift anyway; the
	// distinction matters to surfaces that also run background checks).
	RefreshOnStart RefreshPolicy = "on-start"
)

// Valid reports whether p is one of the known policies.
func (p RefreshPolicy) Valid() bool {
	switch p {
	case RefreshManual, RefreshPrompt, RefreshAuto, RefreshOnStart:
		return true
	}
	return false
}

// PortRange bounds the ports the allocator may hand out, inclusive.
type PortRange struct {
	Min int `yaml:"min" mapstructure:"min"`
	Max int `yaml:"max" mapstructure:"max"`
}

// Size returns the number of ports in the range.
func (r PortRange) Size() int {
	return r.Max - r.Min + 1
}

// Contains reports whether port lies within the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Min && port <= r.Max
}

// GlobalConfig is the fully merged process-wide configuration. It is
// loaded once per invocation and treated as immutable afterwards; the
// only mutation path is an explicit persisted Set through the Writer.
type GlobalConfig struct {
	Hostname        string            `yaml:"hostname" mapstructure:"hostname"`
	Protocol        api.Protocol      `yaml:"protocol" mapstructure:"protocol"`
	PortRange       PortRange         `yaml:"portRange" mapstructure:"portrange"`
	HTTPSCert       string            `yaml:"httpsCert,omitempty" mapstructure:"httpscert"`
	HTTPSKey        string            `yaml:"httpsKey,omitempty" mapstructure:"httpskey"`
	Vars            map[string]string `yaml:"vars,omitempty" mapstructure:"vars"`
	RefreshOnChange RefreshPolicy     `yaml:"refreshOnChange" mapstructure:"refreshonchange"`
}

// VarsKeyPrefix is the config-key namespace for user-defined template
// variables, e.g. the variable {{api-base}} maps to key "vars.api-base".
const VarsKeyPrefix = "vars."

// Value returns the live value of a single config key as used for drift
// comparison. The second return is false when the key is unset, which
// drift detection treats as distinct from every string value. The
// hostname, protocol and refreshOnChange scalars are validated non-empty
// at load time, so presence never has to be inferred for them; for the
// optional httpsCert and httpsKey an empty string means unset, the same
// reading the template built-ins apply.
func (c *GlobalConfig) Value(key string) (string, bool) {
	if name, ok := strings.CutPrefix(key, VarsKeyPrefix); ok {
		v, ok := c.Vars[name]
		return v, ok
	}

	switch key {
	case "hostname":
		return c.Hostname, c.Hostname != ""
	case "protocol":
		return string(c.Protocol), c.Protocol != ""
	case "httpsCert":
		return c.HTTPSCert, c.HTTPSCert != ""
	case "httpsKey":
		return c.HTTPSKey, c.HTTPSKey != ""
	case "refreshOnChange":
		return string(c.RefreshOnChange), c.RefreshOnChange != ""
	}
	return "", false
}
