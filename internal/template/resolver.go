// Package template renders {{variable}} placeholders in command
// strings and environment maps. Syntax is case-sensitive with no
// nesting. Rendering is fail-fast and total: either every placeholder
// resolves or the whole render fails with the full list of unresolved
// names, never a partial substitution.
package template

import (
	"errors"
	"regexp"
	"strings"

	"devfleet/internal/api"
)

// variablePattern matches any {{...}} span without nested braces. The
// captured name is validated against the grammar separately so that a
// malformed placeholder fails the render instead of passing through
// into a launched command verbatim.
var (
	variablePattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)
	namePattern     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
)

// wellFormed reports whether a captured placeholder name satisfies the
// variable grammar: a plain name starting with a letter or underscore,
// or a server: reference with a non-empty server name.
func wellFormed(name string) bool {
	if ref, ok := strings.CutPrefix(name, serverRefPrefix); ok {
		serverName, _, _ := strings.Cut(ref, "@")
		return serverName != ""
	}
	return namePattern.MatchString(name)
}

// Resolver substitutes variables from an ordered list of sources.
type Resolver struct {
	sources []VariableSource
}

// NewResolver builds a resolver over the given sources, consulted in
// order. The conventional order is built-ins, server references, then
// user-defined variables.
func NewResolver(sources ...VariableSource) *Resolver {
	return &Resolver{sources: sources}
}

// ExtractVariables returns the unique placeholder names referenced by
// the template, in first-appearance order, malformed ones included.
// Pure scan, no side effects.
func ExtractVariables(template string) []string {
	seen := map[string]bool{}
	var names []string
	for _, match := range variablePattern.FindAllStringSubmatch(template, -1) {
		name := match[1]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// MissingVariable describes a placeholder that no source can resolve.
type MissingVariable struct {
	Name string

	// Configurable is true when the variable maps to a global-config key
	// and can be filled interactively or with a config write. Cross-
	// server references to unknown servers are not configurable.
	Configurable bool

	// Prompt is the question to ask an interactive caller.
	Prompt string

	// ConfigKey is the global-config key that would supply the value.
	ConfigKey string
}

// FindMissingVariables returns every referenced variable the resolver
// cannot supply a value for.
func (r *Resolver) FindMissingVariables(template string) []MissingVariable {
	var missing []MissingVariable
	for _, name := range ExtractVariables(template) {
		if !wellFormed(name) {
			// Malformed placeholders can never resolve and cannot be
			// filled from config.
			missing = append(missing, MissingVariable{Name: name})
			continue
		}
		if _, ok, _ := r.lookup(name); ok {
			continue
		}
		missing = append(missing, describeMissing(name))
	}
	return missing
}

func describeMissing(name string) MissingVariable {
	if strings.HasPrefix(name, serverRefPrefix) {
		return MissingVariable{Name: name}
	}
	return MissingVariable{
		Name:         name,
		Configurable: true,
		Prompt:       "Enter a value for {{" + name + "}}",
		ConfigKey:    "vars." + name,
	}
}

// Render substitutes every placeholder in the template. If any
// placeholder cannot be resolved the render fails with a
// MissingVariableError naming all of them and the input is returned
// unchanged nowhere — callers only see the fully substituted string.
func (r *Resolver) Render(template string) (string, error) {
	var missing []string

	result := variablePattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		name := placeholder[2 : len(placeholder)-2]
		if !wellFormed(name) {
			missing = append(missing, name)
			return placeholder
		}
		value, ok, err := r.lookup(name)
		if err != nil || !ok {
			missing = append(missing, name)
			return placeholder
		}
		return value
	})

	if len(missing) > 0 {
		return "", api.NewMissingVariableError(template, missing)
	}
	return result, nil
}

// RenderEnv applies Render independently to each value of the map.
// Keys are never templated. Like Render, this is all-or-nothing.
func (r *Resolver) RenderEnv(env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return map[string]string{}, nil
	}

	resolved := make(map[string]string, len(env))
	var missing []string
	for key, value := range env {
		rendered, err := r.Render(value)
		if err != nil {
			var missingErr *api.MissingVariableError
			if errors.As(err, &missingErr) {
				missing = append(missing, missingErr.Variables...)
				continue
			}
			return nil, err
		}
		resolved[key] = rendered
	}

	if len(missing) > 0 {
		return nil, api.NewMissingVariableError("", dedupe(missing))
	}
	return resolved, nil
}

func (r *Resolver) lookup(name string) (string, bool, error) {
	for _, source := range r.sources {
		value, ok, err := source.Lookup(name)
		if err != nil {
			return "", false, err
		}
		if ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
