package template

import (
	"testing"

	"devfleet/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRegistry backs cross-server reference tests.
type fakeRegistry struct {
	entries map[string]api.ServerEntry
}

func (f *fakeRegistry) FindByIdentity(cwd, name string) (*api.ServerEntry, bool) {
	entry, ok := f.entries[cwd+"\x00"+name]
	if !ok {
		return nil, false
	}
	return &entry, true
}

func newResolver(t *testing.T) *Resolver {
	t.Helper()
	builtins := BuiltinVars{Port: 3042, Hostname: "localhost", Protocol: api.ProtocolHTTP}
	refs := ServerRefs{
		Registry: &fakeRegistry{entries: map[string]api.ServerEntry{
			"/work/shop\x00api": {Name: "api", Hostname: "localhost", Protocol: api.ProtocolHTTP, Port: 3100},
			"/work/infra\x00db": {Name: "db", Hostname: "localhost", Protocol: api.ProtocolHTTP, Port: 5432},
		}},
		DefaultCwd: "/work/shop",
	}
	return NewResolver(builtins, refs, UserVars{"api-base": "https://api.example.com"})
}

func TestExtractVariables(t *testing.T) {
	names := ExtractVariables("serve --port {{port}} --host {{hostname}} --url {{url}} --port {{port}}")
	assert.Equal(t, []string{"port", "hostname", "url"}, names)
}

func TestExtractVariablesCapturesMalformed(t *testing.T) {
	// Malformed names are still extracted so resolution can reject them;
	// they must never slip through as literal braces.
	names := ExtractVariables("{{1bad}} {{ spaced }} {{good_name}} {{also-good}}")
	assert.Equal(t, []string{"1bad", " spaced ", "good_name", "also-good"}, names)
}

func TestRenderFailsOnMalformedPlaceholder(t *testing.T) {
	r := newResolver(t)

	// A typo'd placeholder must fail the render, not launch a command
	// with literal braces in it.
	_, err := r.Render("start --port {{ port }}")
	require.Error(t, err)
	var missing *api.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{" port "}, missing.Variables)

	_, err = r.Render("serve {{1bad}} on {{port}}")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"1bad"}, missing.Variables)

	_, err = r.Render("serve {{}}")
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{""}, missing.Variables)
}

func TestFindMissingVariablesMalformedNotConfigurable(t *testing.T) {
	r := newResolver(t)

	missing := r.FindMissingVariables("{{ port }} {{server:}}")
	require.Len(t, missing, 2)

	assert.Equal(t, " port ", missing[0].Name)
	assert.False(t, missing[0].Configurable)
	assert.Equal(t, "server:", missing[1].Name)
	assert.False(t, missing[1].Configurable)
}

func TestRenderBuiltins(t *testing.T) {
	r := newResolver(t)

	out, err := r.Render("serve --port {{port}} --url {{url}}")
	require.NoError(t, err)
	assert.Equal(t, "serve --port 3042 --url http://localhost:3042", out)
}

func TestRenderUserVariable(t *testing.T) {
	r := newResolver(t)

	out, err := r.Render("curl {{api-base}}/health")
	require.NoError(t, err)
	assert.Equal(t, "curl https://api.example.com/health", out)
}

func TestRenderServerReference(t *testing.T) {
	r := newResolver(t)

	out, err := r.Render("API_URL={{server:api}}")
	require.NoError(t, err)
	assert.Equal(t, "API_URL=http://localhost:3100", out)
}

func TestRenderQualifiedServerReference(t *testing.T) {
	r := newResolver(t)

	out, err := r.Render("DB={{server:db@/work/infra}}")
	require.NoError(t, err)
	assert.Equal(t, "DB=http://localhost:5432", out)
}

func TestRenderUnknownServerReference(t *testing.T) {
	r := newResolver(t)

	_, err := r.Render("X={{server:ghost}}")
	require.Error(t, err)
	assert.True(t, api.IsMissingVariable(err))
}

func TestRenderIsAllOrNothing(t *testing.T) {
	r := newResolver(t)

	_, err := r.Render("{{port}} {{nope}} {{hostname}} {{also-nope}}")
	require.Error(t, err)

	var missing *api.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"nope", "also-nope"}, missing.Variables)
}

func TestRenderHTTPSBuiltinsUnsetAreMissing(t *testing.T) {
	r := NewResolver(BuiltinVars{Port: 3000, Hostname: "localhost", Protocol: api.ProtocolHTTP})

	_, err := r.Render("--cert {{https-cert}} --key {{https-key}}")
	require.Error(t, err)

	var missing *api.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"https-cert", "https-key"}, missing.Variables)
}

func TestRenderEnvAggregatesMissing(t *testing.T) {
	r := newResolver(t)

	_, err := r.RenderEnv(map[string]string{
		"PORT": "{{port}}",
		"A":    "{{undefined-a}}",
		"B":    "{{undefined-b}}",
	})
	require.Error(t, err)

	var missing *api.MissingVariableError
	require.ErrorAs(t, err, &missing)
	assert.ElementsMatch(t, []string{"undefined-a", "undefined-b"}, missing.Variables)
}

func TestRenderEnvValuesOnly(t *testing.T) {
	r := newResolver(t)

	env, err := r.RenderEnv(map[string]string{"{{port}}": "{{port}}"})
	require.NoError(t, err)
	// The key stays verbatim, only values are templated.
	assert.Equal(t, map[string]string{"{{port}}": "3042"}, env)
}

func TestFindMissingVariables(t *testing.T) {
	r := newResolver(t)

	missing := r.FindMissingVariables("{{port}} {{custom}} {{server:ghost}}")
	require.Len(t, missing, 2)

	assert.Equal(t, "custom", missing[0].Name)
	assert.True(t, missing[0].Configurable)
	assert.Equal(t, "vars.custom", missing[0].ConfigKey)

	assert.Equal(t, "server:ghost", missing[1].Name)
	assert.False(t, missing[1].Configurable)
}

func TestBuiltinsShadowUserVars(t *testing.T) {
	builtins := BuiltinVars{Port: 3042, Hostname: "localhost", Protocol: api.ProtocolHTTP}
	r := NewResolver(builtins, UserVars{"port": "9999", "hostname": "evil"})

	out, err := r.Render("{{port}} {{hostname}}")
	require.NoError(t, err)
	assert.Equal(t, "3042 localhost", out)
}
