package template

import (
	"fmt"
	"strings"

	"devfleet/internal/api"
)

// VariableSource resolves a template variable name to a value. Sources
// are consulted in order; the first one that recognizes the name wins.
// The error return is for names the source does recognize but cannot
// resolve (a cross-server reference to a server that does not exist).
type VariableSource interface {
	Lookup(name string) (string, bool, error)
}

// serverRefPrefix marks cross-server references: {{server:NAME}} or
// {{server:NAME@CWD}} resolve to the referenced server's URL.
const serverRefPrefix = "server:"

// BuiltinVars resolves the built-in variables for the server currently
// being resolved. Built-ins always win on a name collision with
// user-defined variables.
type BuiltinVars struct {
	Port      int
	Hostname  string
	Protocol  api.Protocol
	HTTPSCert string
	HTTPSKey  string
}

func (b BuiltinVars) Lookup(name string) (string, bool, error) {
	switch name {
	case "port":
		return fmt.Sprintf("%d", b.Port), true, nil
	case "hostname":
		return b.Hostname, true, nil
	case "url":
		return fmt.Sprintf("%s://%s:%d", b.Protocol, b.Hostname, b.Port), true, nil
	case "https-cert":
		if b.HTTPSCert == "" {
			return "", false, nil
		}
		return b.HTTPSCert, true, nil
	case "https-key":
		if b.HTTPSKey == "" {
			return "", false, nil
		}
		return b.HTTPSKey, true, nil
	}
	return "", false, nil
}

// ServerLookup is the registry capability cross-server references need.
type ServerLookup interface {
	FindByIdentity(cwd, name string) (*api.ServerEntry, bool)
}

// ServerRefs resolves {{server:...}} references through the registry at
// render time. References without an @CWD qualifier resolve against
// DefaultCwd.
type ServerRefs struct {
	Registry   ServerLookup
	DefaultCwd string
}

func (s ServerRefs) Lookup(name string) (string, bool, error) {
	ref, ok := strings.CutPrefix(name, serverRefPrefix)
	if !ok {
		return "", false, nil
	}
	if s.Registry == nil {
		return "", false, fmt.Errorf("cross-server reference {{%s}} cannot be resolved without a registry", name)
	}

	serverName, cwd, qualified := strings.Cut(ref, "@")
	if !qualified {
		cwd = s.DefaultCwd
	}

	entry, found := s.Registry.FindByIdentity(cwd, serverName)
	if !found {
		return "", false, api.NewServerNotFoundError(serverName, cwd)
	}
	return entry.URL(), true, nil
}

// UserVars resolves user-defined variables from the global
// configuration. Registered last so built-ins shadow it.
type UserVars map[string]string

func (u UserVars) Lookup(name string) (string, bool, error) {
	value, ok := u[name]
	return value, ok, nil
}
