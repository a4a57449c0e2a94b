package api

import (
	"fmt"
	"time"
)

// Protocol is the scheme a managed server publishes its endpoint under.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
)

// ServerEntry is one managed dev server as recorded in the registry.
//
// The (Cwd, Name) pair is the primary identity key and is unique across
// all live entries. ID and Cwd never change after creation; everything
// else may be rewritten on rename, restart or refresh.
type ServerEntry struct {
	// ID is an opaque unique identifier assigned once at creation.
	ID string `json:"id"`

	// Name is the logical name, unique within its working directory.
	// For servers started without an explicit name it is derived
	// deterministically from command and environment.
	Name string `json:"name"`

	// NameExplicit records whether the name was supplied by the caller
	// rather than derived. Derived names are identity-stable only while
	// command and environment are unchanged.
	NameExplicit bool `json:"nameExplicit,omitempty"`

	// Cwd is the absolute working directory the server runs from.
	Cwd string `json:"cwd"`

	// Command is the template as given by the caller; ResolvedCommand is
	// the fully substituted value from the last successful resolution.
	Command         string `json:"command"`
	ResolvedCommand string `json:"resolvedCommand"`

	// Published endpoint.
	Port     int      `json:"port"`
	Protocol Protocol `json:"protocol"`
	Hostname string   `json:"hostname"`

	// Env is the resolved environment for the process. Keys are unique;
	// insertion order is irrelevant.
	Env map[string]string `json:"env,omitempty"`

	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`

	// UsedConfigKeys lists the global-config keys the command template
	// referenced at resolution time. ConfigSnapshot holds the values of
	// those keys at that moment and is the drift baseline; a key listed
	// in UsedConfigKeys but absent from the snapshot was unset when the
	// template was resolved.
	UsedConfigKeys []string          `json:"usedConfigKeys,omitempty"`
	ConfigSnapshot map[string]string `json:"configSnapshot,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	// ProcessName is the name the external supervisor knows this server
	// by. Derived deterministically from Name; not part of identity.
	ProcessName string `json:"processName"`
}

// URL composes the published endpoint as protocol://hostname:port.
func (e *ServerEntry) URL() string {
	return fmt.Sprintf("%s://%s:%d", e.Protocol, e.Hostname, e.Port)
}

// DriftEntry describes one global-config key whose live value differs
// from the value recorded in a server's snapshot. A nil StartedWith or
// CurrentValue means the key was unset on that side; unset is distinct
// from every string value.
type DriftEntry struct {
	ConfigKey        string  `json:"configKey"`
	TemplateVariable string  `json:"templateVariable"`
	StartedWith      *string `json:"startedWith"`
	CurrentValue     *string `json:"currentValue"`
}

// DriftResult is the outcome of comparing a server's config snapshot
// against the live global configuration. It is computed per check and
// never persisted.
type DriftResult struct {
	HasDrift bool         `json:"hasDrift"`
	Diffs    []DriftEntry `json:"diffs,omitempty"`
}

// ListFilter selects registry entries. All set fields must match
// (conjunctive composition). Command is a glob-style pattern.
type ListFilter struct {
	Name    string
	Tag     string
	Cwd     string
	Command string
}

// Action describes what a start/restart/refresh request actually did.
type Action string

const (
	// ActionStarted means a new server was registered and started.
	ActionStarted Action = "started"
	// ActionReused means an existing running server was left untouched.
	ActionReused Action = "reused"
	// ActionRestarted means the existing server was torn down and
	// restarted with its (possibly re-resolved) configuration.
	ActionRestarted Action = "restarted"
	// ActionRefreshed means configuration drift was reconciled: templates
	// were re-rendered, the snapshot republished and the process restarted.
	ActionRefreshed Action = "refreshed"
)

// StartResult is the plain record handed back to the CLI/MCP surface.
type StartResult struct {
	Action Action       `json:"action"`
	Entry  *ServerEntry `json:"server"`

	// Drift carries the diff whenever drift was detected, regardless of
	// whether it was acted upon. DriftDeclined is set when the prompt
	// policy surfaced the diff and the caller declined the refresh.
	Drift         *DriftResult `json:"drift,omitempty"`
	DriftDeclined bool         `json:"driftDeclined,omitempty"`

	// PortReassigned is set when the port the server ended up on differs
	// from the preferred (deterministic or explicit) one.
	PortReassigned bool `json:"portReassigned,omitempty"`
}
