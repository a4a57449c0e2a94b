// Package reconcile decides what to do when a server is started:
// register it fresh, reuse the running process, restart it in place, or
// re-resolve its configuration when the global config drifted since the
// last resolution. It composes the registry, the template resolver and
// the port allocator, and hands processes off to the external
// supervisor.
package reconcile

import (
	"context"
	"fmt"

	"devfleet/internal/api"
	"devfleet/internal/config"
	"devfleet/internal/ports"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"
	"devfleet/internal/template"
	"devfleet/pkg/logging"
)

// Prompter is how the engine asks the caller questions. A nil prompter
// means the invocation is non-interactive: drift confirmations are
// declined (and recorded) and missing configurable variables become
// ConfigValidationFailed.
type Prompter interface {
	// ConfirmRefresh surfaces a drift diff and asks whether to refresh.
	ConfirmRefresh(entry *api.ServerEntry, drift *api.DriftResult) (bool, error)

	// PromptVariable asks for the value of a missing configurable
	// variable. ok=false means the caller declined.
	PromptVariable(v template.MissingVariable) (value string, ok bool, err error)
}

// Options configures an Engine beyond its required collaborators.
type Options struct {
	// Prober overrides OS-level port probing, for tests.
	Prober ports.Prober

	// Prompter handles interactive questions; nil means non-interactive.
	Prompter Prompter

	// SetConfig persists a single global-config key, used when a missing
	// variable is filled interactively. Defaults to config.Set.
	SetConfig func(key, value string) error

	// LedgerPath locates the sequential-allocation side file. Defaults
	// to the path next to the registry.
	LedgerPath string
}

// Engine runs the identity, allocation and drift-reconciliation logic
// for one invocation. The GlobalConfig it holds is the invocation's
// immutable merged configuration; nothing here reads ambient state.
type Engine struct {
	store     *registry.Store
	cfg       config.GlobalConfig
	allocator *ports.Allocator
	sup       supervisor.Supervisor
	prompter  Prompter
	setConfig func(key, value string) error
	ledger    string
}

// New creates an engine over the given collaborators.
func New(store *registry.Store, cfg config.GlobalConfig, sup supervisor.Supervisor, opts Options) *Engine {
	setConfig := opts.SetConfig
	if setConfig == nil {
		setConfig = config.Set
	}
	ledger := opts.LedgerPath
	if ledger == "" {
		if path, err := config.PortLedgerPath(); err == nil {
			ledger = path
		}
	}
	return &Engine{
		store:     store,
		cfg:       cfg,
		allocator: ports.New(cfg.PortRange, opts.Prober),
		sup:       sup,
		prompter:  opts.Prompter,
		setConfig: setConfig,
		ledger:    ledger,
	}
}

// builtinsFor assembles the built-in variable set for a server that
// will listen on the given port.
func (e *Engine) builtinsFor(port int) template.BuiltinVars {
	return template.BuiltinVars{
		Port:      port,
		Hostname:  e.cfg.Hostname,
		Protocol:  e.cfg.Protocol,
		HTTPSCert: e.cfg.HTTPSCert,
		HTTPSKey:  e.cfg.HTTPSKey,
	}
}

// resolverFor builds the ordered variable sources: built-ins win over
// everything, cross-server references resolve through the registry
// snapshot, user-defined variables come last.
func (e *Engine) resolverFor(snap *registry.Snapshot, cwd string, port int) *template.Resolver {
	return template.NewResolver(
		e.builtinsFor(port),
		template.ServerRefs{Registry: snap, DefaultCwd: cwd},
		template.UserVars(e.cfg.Vars),
	)
}

// fillMissingVariables checks the command and env templates for
// unresolvable variables before anything is rendered or started.
// Configurable ones are prompted for and persisted; without a prompter
// they fail with ConfigValidationFailed. Non-configurable ones fail as
// missing outright.
func (e *Engine) fillMissingVariables(resolver *template.Resolver, command string, env map[string]string) error {
	templates := []string{command}
	for _, v := range env {
		templates = append(templates, v)
	}

	for _, tmpl := range templates {
		for _, missing := range resolver.FindMissingVariables(tmpl) {
			if !missing.Configurable {
				return api.NewMissingVariableError(tmpl, []string{missing.Name})
			}
			if e.prompter == nil {
				return api.NewConfigValidationError(missing.Name, missing.ConfigKey)
			}

			value, ok, err := e.prompter.PromptVariable(missing)
			if err != nil {
				return err
			}
			if !ok {
				return api.NewConfigValidationError(missing.Name, missing.ConfigKey)
			}
			if err := e.setConfig(missing.ConfigKey, value); err != nil {
				return fmt.Errorf("persisting %s: %w", missing.ConfigKey, err)
			}
			e.cfg.Vars[missing.Name] = value
			logging.Info("Reconcile", "Filled missing variable {{%s}} via %s", missing.Name, missing.ConfigKey)
		}
	}
	return nil
}

// snapshotFor records the live values of the used config keys; keys
// that are unset right now are listed but absent from the snapshot.
func (e *Engine) snapshotFor(usedKeys []string) map[string]string {
	snapshot := map[string]string{}
	for _, key := range usedKeys {
		if value, ok := e.cfg.Value(key); ok {
			snapshot[key] = value
		}
	}
	return snapshot
}

// teardown stops the supervisor process, treating "not found" as
// success so teardown is idempotent. Every other supervisor error
// propagates.
func (e *Engine) teardown(ctx context.Context, processName string) error {
	err := e.sup.Stop(ctx, processName)
	if err != nil && !supervisor.IsProcessNotFound(err) {
		return err
	}
	return nil
}

// launch hands a fully resolved entry to the supervisor.
func (e *Engine) launch(ctx context.Context, entry *api.ServerEntry) error {
	env := make(map[string]string, len(entry.Env)+1)
	for k, v := range entry.Env {
		env[k] = v
	}
	// Dev servers conventionally read PORT; publish the allocated one.
	env["PORT"] = fmt.Sprintf("%d", entry.Port)

	return e.sup.Start(ctx, supervisor.StartSpec{
		Name:       entry.ProcessName,
		Executable: "/bin/sh",
		Args:       []string{"-c", entry.ResolvedCommand},
		Cwd:        entry.Cwd,
		Env:        env,
	})
}

// envEqual compares two resolved environments by keys and values,
// independent of order.
func envEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
