package registry

import (
	"fmt"
	"hash/fnv"
	"sort"

	"devfleet/internal/api"
)

// Identity is what a start request knows about the server it refers to.
type Identity struct {
	// Cwd is the absolute working directory, always set.
	Cwd string

	// Name is the explicit logical name, empty when the caller did not
	// supply one.
	Name string

	// Command and Env identify implicitly named servers.
	Command string
	Env     map[string]string
}

// DeriveName returns the deterministic name for a server started
// without an explicit name, so the same (command, env) pair in the same
// directory always resolves to the same entry. Any change to command or
// env yields a different name, which is a different identity, never a
// mutation of the old entry.
func DeriveName(command string, env map[string]string) string {
	h := fnv.New32a()
	h.Write([]byte(command))

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(env[k]))
	}

	return fmt.Sprintf("auto-%08x", h.Sum32())
}

// EffectiveName returns the logical name the entry will live under:
// the explicit name if one was given, the derived name otherwise.
func (id Identity) EffectiveName() string {
	if id.Name != "" {
		return id.Name
	}
	return DeriveName(id.Command, id.Env)
}

// Explicit reports whether the caller supplied the name.
func (id Identity) Explicit() bool {
	return id.Name != ""
}

// strategy is one way of locating an existing entry for an identity.
// Strategies are tried in order; adding a new resolution rule means
// appending a strategy, not editing call sites.
type strategy struct {
	name string
	find func(snap *Snapshot, id Identity) (*api.ServerEntry, bool)
}

func byExplicitName(snap *Snapshot, id Identity) (*api.ServerEntry, bool) {
	if !id.Explicit() {
		return nil, false
	}
	return snap.FindByIdentity(id.Cwd, id.Name)
}

func byDerivedName(snap *Snapshot, id Identity) (*api.ServerEntry, bool) {
	if id.Explicit() {
		return nil, false
	}
	return snap.FindByIdentity(id.Cwd, DeriveName(id.Command, id.Env))
}

func byLegacyCommand(snap *Snapshot, id Identity) (*api.ServerEntry, bool) {
	// The legacy (cwd, command) key predates named identity and is only
	// honored when the caller did not name the server.
	if id.Explicit() {
		return nil, false
	}
	return snap.FindByCommand(id.Cwd, id.Command)
}

var strategies = []strategy{
	{name: "byExplicitName", find: byExplicitName},
	{name: "byDerivedName", find: byDerivedName},
	{name: "byLegacyCommandHash", find: byLegacyCommand},
}

// Resolve locates the existing entry for the identity, if any, trying
// each strategy in order. The returned string names the strategy that
// matched, for logging.
func Resolve(snap *Snapshot, id Identity) (*api.ServerEntry, string, bool) {
	for _, s := range strategies {
		if entry, ok := s.find(snap, id); ok {
			return entry, s.name, true
		}
	}
	return nil, "", false
}
