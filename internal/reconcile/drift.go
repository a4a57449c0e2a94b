package reconcile

import (
	"devfleet/internal/api"
	"devfleet/internal/config"
	"devfleet/internal/template"
)

// DetectDrift compares a server's config snapshot against the live
// global configuration, key by key over the server's usedConfigKeys.
// Comparison is exact value equality; a key that was unset at
// resolution time differs from every set value and vice versa. The
// result is ephemeral and never persisted.
func DetectDrift(entry *api.ServerEntry, cfg *config.GlobalConfig) *api.DriftResult {
	result := &api.DriftResult{}
	variables := template.ExtractVariables(entry.Command)

	for _, key := range entry.UsedConfigKeys {
		startedWith, hadValue := entry.ConfigSnapshot[key]
		current, hasValue := cfg.Value(key)
		if hadValue == hasValue && startedWith == current {
			continue
		}

		diff := api.DriftEntry{
			ConfigKey:        key,
			TemplateVariable: template.VariableFor(key, variables),
		}
		if hadValue {
			v := startedWith
			diff.StartedWith = &v
		}
		if hasValue {
			v := current
			diff.CurrentValue = &v
		}
		result.Diffs = append(result.Diffs, diff)
	}

	result.HasDrift = len(result.Diffs) > 0
	return result
}
