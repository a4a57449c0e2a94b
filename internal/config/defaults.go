package config

import "devfleet/internal/api"

// Default values applied before any config file or environment override
// is merged in.
const (
	DefaultHostname = "localhost"
	DefaultPortMin  = 3000
	DefaultPortMax  = 3999
)

// GetDefaultConfig returns the built-in configuration used when no
// config file exists anywhere.
func GetDefaultConfig() GlobalConfig {
	return GlobalConfig{
		Hostname:        DefaultHostname,
		Protocol:        api.ProtocolHTTP,
		PortRange:       PortRange{Min: DefaultPortMin, Max: DefaultPortMax},
		Vars:            map[string]string{},
		RefreshOnChange: RefreshPrompt,
	}
}
