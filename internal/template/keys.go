package template

import "strings"

// configKeysByBuiltin maps each built-in variable to the global-config
// keys its value is derived from. The port variable depends on the
// allocator, not on config, so it contributes no keys; drift in the
// port range is handled separately by the reconciler.
var configKeysByBuiltin = map[string][]string{
	"hostname":   {"hostname"},
	"url":        {"hostname", "protocol"},
	"https-cert": {"httpsCert"},
	"https-key":  {"httpsKey"},
}

// ConfigKeysFor computes the set of global-config keys a template
// depends on, given its extracted variables. This is recorded on the
// entry as usedConfigKeys and becomes the drift baseline.
func ConfigKeysFor(variables []string) []string {
	seen := map[string]bool{}
	var keys []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	for _, name := range variables {
		if name == "port" || strings.HasPrefix(name, serverRefPrefix) || !wellFormed(name) {
			continue
		}
		if builtin, ok := configKeysByBuiltin[name]; ok {
			for _, key := range builtin {
				add(key)
			}
			continue
		}
		add("vars." + name)
	}
	return keys
}

// VariableFor returns the template variable through which a drifted
// config key entered the template, preferring the variables the
// template actually uses. Used to label drift diff entries.
func VariableFor(configKey string, variables []string) string {
	for _, name := range variables {
		if builtin, ok := configKeysByBuiltin[name]; ok {
			for _, key := range builtin {
				if key == configKey {
					return name
				}
			}
			continue
		}
		if "vars."+name == configKey {
			return name
		}
	}
	if name, ok := strings.CutPrefix(configKey, "vars."); ok {
		return name
	}
	return configKey
}
