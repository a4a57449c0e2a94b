// Package cli formats core results for terminal consumption and
// implements the interactive prompter the reconciler uses for drift
// confirmation and missing-variable input.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"devfleet/internal/api"
	"devfleet/internal/supervisor"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/sync/errgroup"
)

// ServerRow pairs a registry entry with the supervisor's live view of
// it. Info is nil when the supervisor does not know the process.
type ServerRow struct {
	Entry api.ServerEntry         `json:"server"`
	Info  *supervisor.ProcessInfo `json:"process,omitempty"`
}

// FetchStatuses queries the supervisor for every entry concurrently.
// Probing the supervisor is slow enough that serial describes dominate
// list latency for larger fleets. Supervisor errors degrade to "no
// process info" rather than failing the listing.
func FetchStatuses(ctx context.Context, sup supervisor.Supervisor, entries []api.ServerEntry) []ServerRow {
	rows := make([]ServerRow, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, entry := range entries {
		i, entry := i, entry
		rows[i].Entry = entry
		g.Go(func() error {
			info, err := sup.Describe(ctx, entry.ProcessName)
			if err == nil {
				rows[i].Info = info
			}
			return nil
		})
	}
	g.Wait()
	return rows
}

// RenderServerTable writes the fleet listing as a table.
func RenderServerTable(w io.Writer, rows []ServerRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"NAME", "STATUS", "ENDPOINT", "CWD", "COMMAND", "TAGS"})

	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Entry.Name,
			formatStatus(row.Info),
			row.Entry.URL(),
			row.Entry.Cwd,
			truncate(row.Entry.Command, 40),
			formatTags(row.Entry.Tags),
		})
	}
	t.Render()
}

func formatStatus(info *supervisor.ProcessInfo) string {
	if info == nil {
		return "-"
	}
	switch info.Status {
	case supervisor.StatusOnline:
		return color.GreenString("online") + " " + formatUptime(info.Uptime)
	case supervisor.StatusStopped:
		return color.YellowString("stopped")
	case supervisor.StatusErrored:
		return color.RedString("errored")
	default:
		return string(info.Status)
	}
}

func formatUptime(uptime time.Duration) string {
	if uptime <= 0 {
		return ""
	}
	return "(" + uptime.Round(time.Second).String() + ")"
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	out := ""
	for i, tag := range tags {
		if i > 0 {
			out += ","
		}
		out += tag
	}
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// RenderJSON writes any result record as indented JSON, for scripting
// and automation surfaces.
func RenderJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderStartResult writes a human-readable account of what a
// start/restart/refresh actually did.
func RenderStartResult(w io.Writer, result *api.StartResult) {
	entry := result.Entry
	switch result.Action {
	case api.ActionStarted:
		fmt.Fprintf(w, "%s %s on %s\n", color.GreenString("Started"), entry.Name, entry.URL())
	case api.ActionReused:
		fmt.Fprintf(w, "%s %s, already running on %s\n", color.CyanString("Reusing"), entry.Name, entry.URL())
	case api.ActionRestarted:
		fmt.Fprintf(w, "%s %s on %s\n", color.GreenString("Restarted"), entry.Name, entry.URL())
	case api.ActionRefreshed:
		fmt.Fprintf(w, "%s %s against current configuration, now on %s\n", color.GreenString("Refreshed"), entry.Name, entry.URL())
	}

	if result.PortReassigned {
		fmt.Fprintf(w, "%s preferred port was taken; using %d\n", color.YellowString("note:"), entry.Port)
	}
	if result.Drift != nil && result.DriftDeclined {
		fmt.Fprintf(w, "%s configuration drift detected but not applied:\n", color.YellowString("note:"))
		RenderDrift(w, result.Drift)
	}
}

// RenderDrift writes the drift diff, one line per changed key.
func RenderDrift(w io.Writer, drift *api.DriftResult) {
	for _, diff := range drift.Diffs {
		fmt.Fprintf(w, "  %s ({{%s}}): %s -> %s\n",
			diff.ConfigKey,
			diff.TemplateVariable,
			formatDriftValue(diff.StartedWith),
			formatDriftValue(diff.CurrentValue),
		)
	}
}

func formatDriftValue(v *string) string {
	if v == nil {
		return color.New(color.Faint).Sprint("<unset>")
	}
	return *v
}
