package reconcile

import (
	"testing"

	"devfleet/internal/api"
	"devfleet/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func driftConfig() config.GlobalConfig {
	return config.GlobalConfig{
		Hostname:        "localhost",
		Protocol:        api.ProtocolHTTP,
		PortRange:       config.PortRange{Min: 3000, Max: 3999},
		Vars:            map[string]string{},
		RefreshOnChange: config.RefreshManual,
	}
}

func TestDetectDriftNoChanges(t *testing.T) {
	cfg := driftConfig()
	entry := &api.ServerEntry{
		Command:        "serve --url {{url}}",
		UsedConfigKeys: []string{"hostname", "protocol"},
		ConfigSnapshot: map[string]string{"hostname": "localhost", "protocol": "http"},
	}

	drift := DetectDrift(entry, &cfg)
	assert.False(t, drift.HasDrift)
	assert.Empty(t, drift.Diffs)
}

func TestDetectDriftValueChanged(t *testing.T) {
	cfg := driftConfig()
	cfg.Hostname = "dev.local"
	entry := &api.ServerEntry{
		Command:        "serve --url {{url}}",
		UsedConfigKeys: []string{"hostname", "protocol"},
		ConfigSnapshot: map[string]string{"hostname": "localhost", "protocol": "http"},
	}

	drift := DetectDrift(entry, &cfg)
	require.True(t, drift.HasDrift)
	require.Len(t, drift.Diffs, 1)

	diff := drift.Diffs[0]
	assert.Equal(t, "hostname", diff.ConfigKey)
	assert.Equal(t, "url", diff.TemplateVariable)
	require.NotNil(t, diff.StartedWith)
	require.NotNil(t, diff.CurrentValue)
	assert.Equal(t, "localhost", *diff.StartedWith)
	assert.Equal(t, "dev.local", *diff.CurrentValue)
}

func TestDetectDriftUnsetToSet(t *testing.T) {
	cfg := driftConfig()
	cfg.Vars["api-base"] = "https://api.example.com"
	entry := &api.ServerEntry{
		Command:        "curl {{api-base}}",
		UsedConfigKeys: []string{"vars.api-base"},
		// The key was unset at resolution time, so it is absent here.
		ConfigSnapshot: map[string]string{},
	}

	drift := DetectDrift(entry, &cfg)
	require.True(t, drift.HasDrift)
	require.Len(t, drift.Diffs, 1)
	assert.Nil(t, drift.Diffs[0].StartedWith)
	require.NotNil(t, drift.Diffs[0].CurrentValue)
	assert.Equal(t, "https://api.example.com", *drift.Diffs[0].CurrentValue)
}

func TestDetectDriftSetToUnset(t *testing.T) {
	cfg := driftConfig()
	entry := &api.ServerEntry{
		Command:        "curl {{api-base}}",
		UsedConfigKeys: []string{"vars.api-base"},
		ConfigSnapshot: map[string]string{"vars.api-base": "https://api.example.com"},
	}

	drift := DetectDrift(entry, &cfg)
	require.True(t, drift.HasDrift)
	require.Len(t, drift.Diffs, 1)
	require.NotNil(t, drift.Diffs[0].StartedWith)
	assert.Nil(t, drift.Diffs[0].CurrentValue)
}

func TestDetectDriftIgnoresUnusedKeys(t *testing.T) {
	// Only keys the server actually used participate; unrelated config
	// changes never show up as drift.
	cfg := driftConfig()
	cfg.HTTPSCert = "/etc/certs/dev.pem"
	entry := &api.ServerEntry{
		Command:        "serve --port {{port}}",
		UsedConfigKeys: nil,
		ConfigSnapshot: map[string]string{},
	}

	drift := DetectDrift(entry, &cfg)
	assert.False(t, drift.HasDrift)
}
