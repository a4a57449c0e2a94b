package cli

import (
	"bytes"
	"context"
	"testing"

	"devfleet/internal/api"
	"devfleet/internal/supervisor"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Keep assertions independent of the terminal.
	color.NoColor = true
}

// staticSupervisor answers Describe from a fixed map.
type staticSupervisor struct {
	infos map[string]*supervisor.ProcessInfo
}

func (s *staticSupervisor) Start(ctx context.Context, spec supervisor.StartSpec) error { return nil }
func (s *staticSupervisor) Stop(ctx context.Context, name string) error                { return nil }
func (s *staticSupervisor) Restart(ctx context.Context, name string) error             { return nil }

func (s *staticSupervisor) Describe(ctx context.Context, name string) (*supervisor.ProcessInfo, error) {
	info, ok := s.infos[name]
	if !ok {
		return nil, &supervisor.ProcessNotFoundError{Name: name}
	}
	return info, nil
}

func TestFetchStatusesDegradesOnNotFound(t *testing.T) {
	sup := &staticSupervisor{infos: map[string]*supervisor.ProcessInfo{
		"devfleet-web": {Name: "devfleet-web", Status: supervisor.StatusOnline},
	}}
	entries := []api.ServerEntry{
		{Name: "web", ProcessName: "devfleet-web"},
		{Name: "api", ProcessName: "devfleet-api"},
	}

	rows := FetchStatuses(context.Background(), sup, entries)
	require.Len(t, rows, 2)
	// Order follows the input, regardless of completion order.
	assert.Equal(t, "web", rows[0].Entry.Name)
	require.NotNil(t, rows[0].Info)
	assert.Equal(t, supervisor.StatusOnline, rows[0].Info.Status)
	assert.Nil(t, rows[1].Info)
}

func TestRenderServerTable(t *testing.T) {
	var buf bytes.Buffer
	rows := []ServerRow{
		{
			Entry: api.ServerEntry{
				Name: "web", Cwd: "/work/shop", Command: "npm run dev",
				Protocol: api.ProtocolHTTP, Hostname: "localhost", Port: 3042,
				Tags: []string{"frontend"},
			},
			Info: &supervisor.ProcessInfo{Status: supervisor.StatusOnline},
		},
		{
			Entry: api.ServerEntry{
				Name: "api", Cwd: "/work/shop", Command: "cargo run",
				Protocol: api.ProtocolHTTP, Hostname: "localhost", Port: 3100,
			},
		},
	}

	RenderServerTable(&buf, rows)
	out := buf.String()

	assert.Contains(t, out, "web")
	assert.Contains(t, out, "http://localhost:3042")
	assert.Contains(t, out, "online")
	assert.Contains(t, out, "frontend")
	// No process info renders as a dash, not an error.
	assert.Contains(t, out, "-")
}

func TestRenderStartResultActions(t *testing.T) {
	entry := &api.ServerEntry{Name: "web", Protocol: api.ProtocolHTTP, Hostname: "localhost", Port: 3042}

	cases := []struct {
		action api.Action
		want   string
	}{
		{api.ActionStarted, "Started"},
		{api.ActionReused, "Reusing"},
		{api.ActionRestarted, "Restarted"},
		{api.ActionRefreshed, "Refreshed"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		RenderStartResult(&buf, &api.StartResult{Action: tc.action, Entry: entry})
		assert.Contains(t, buf.String(), tc.want)
		assert.Contains(t, buf.String(), "http://localhost:3042")
	}
}

func TestRenderStartResultDeclinedDrift(t *testing.T) {
	entry := &api.ServerEntry{Name: "web", Protocol: api.ProtocolHTTP, Hostname: "localhost", Port: 3042}
	old := "localhost"
	var buf bytes.Buffer

	RenderStartResult(&buf, &api.StartResult{
		Action: api.ActionReused,
		Entry:  entry,
		Drift: &api.DriftResult{HasDrift: true, Diffs: []api.DriftEntry{{
			ConfigKey:        "hostname",
			TemplateVariable: "url",
			StartedWith:      &old,
			CurrentValue:     nil,
		}}},
		DriftDeclined: true,
	})

	out := buf.String()
	assert.Contains(t, out, "drift")
	assert.Contains(t, out, "hostname")
	assert.Contains(t, out, "<unset>")
}

func TestRenderStartResultPortReassigned(t *testing.T) {
	entry := &api.ServerEntry{Name: "web", Protocol: api.ProtocolHTTP, Hostname: "localhost", Port: 3043}
	var buf bytes.Buffer

	RenderStartResult(&buf, &api.StartResult{
		Action:         api.ActionStarted,
		Entry:          entry,
		PortReassigned: true,
	})
	assert.Contains(t, buf.String(), "3043")
	assert.Contains(t, buf.String(), "preferred port was taken")
}
