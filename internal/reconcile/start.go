package reconcile

import (
	"context"

	"devfleet/internal/api"
	"devfleet/internal/config"
	"devfleet/internal/ports"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"
	"devfleet/internal/template"
	"devfleet/pkg/logging"
)

// StartRequest describes one start/restart invocation from the CLI or
// MCP surface.
type StartRequest struct {
	// Name is the explicit logical name; empty means the identity is
	// derived from command and env.
	Name string

	// Cwd is the absolute working directory, always set.
	Cwd string

	// Command is the command template. May be empty on restart requests
	// that address an already-registered server by name.
	Command string

	// Env holds environment value templates; keys are never templated.
	Env map[string]string

	Tags        []string
	Description string

	// ExplicitPort pins the port; it must lie within the configured
	// range. Zero means derive.
	ExplicitPort int

	// Sequential switches to the session-scoped sequential allocator for
	// batch/automated contexts.
	Sequential bool

	// ForceRefresh re-resolves against live config regardless of the
	// configured refresh policy (the refresh operation).
	ForceRefresh bool

	// PreferRestart restarts a running server instead of reusing it (the
	// restart operation).
	PreferRestart bool
}

// StartOrReuse is the control flow for a start request: resolve
// identity, then either register-and-start fresh or reconcile the
// existing entry against live configuration and process state.
func (e *Engine) StartOrReuse(ctx context.Context, req StartRequest) (*api.StartResult, error) {
	snap := e.store.Load()
	identity := registry.Identity{Cwd: req.Cwd, Name: req.Name, Command: req.Command, Env: req.Env}

	entry, strategyName, found := registry.Resolve(snap, identity)
	if !found {
		if req.Command == "" {
			return nil, api.NewServerNotFoundError(identity.EffectiveName(), req.Cwd)
		}
		return e.startFresh(ctx, snap, identity, req)
	}

	logging.Debug("Reconcile", "Resolved server %s via %s", entry.Name, strategyName)
	return e.reconcileExisting(ctx, snap, entry, req)
}

// startFresh is the path for a previously unknown identity: allocate a
// port, render templates, persist, hand off to the supervisor.
func (e *Engine) startFresh(ctx context.Context, snap *registry.Snapshot, identity registry.Identity, req StartRequest) (*api.StartResult, error) {
	assign := ports.AssignOptions{ExplicitPort: req.ExplicitPort}
	if req.Sequential && req.ExplicitPort == 0 {
		assign.Ledger = ports.OpenLedger(e.ledger)
	}
	port, reassigned, err := e.allocator.Assign(req.Cwd, req.Command, assign)
	if err != nil {
		return nil, err
	}

	resolver := e.resolverFor(snap, req.Cwd, port)
	if err := e.fillMissingVariables(resolver, req.Command, req.Env); err != nil {
		return nil, err
	}

	resolvedCommand, err := resolver.Render(req.Command)
	if err != nil {
		return nil, err
	}
	resolvedEnv, err := resolver.RenderEnv(req.Env)
	if err != nil {
		return nil, err
	}

	usedKeys := template.ConfigKeysFor(template.ExtractVariables(req.Command))
	entry := &api.ServerEntry{
		Name:            identity.EffectiveName(),
		NameExplicit:    identity.Explicit(),
		Cwd:             req.Cwd,
		Command:         req.Command,
		ResolvedCommand: resolvedCommand,
		Port:            port,
		Protocol:        e.cfg.Protocol,
		Hostname:        e.cfg.Hostname,
		Env:             resolvedEnv,
		Tags:            req.Tags,
		Description:     req.Description,
		UsedConfigKeys:  usedKeys,
		ConfigSnapshot:  e.snapshotFor(usedKeys),
	}

	if err := e.store.Add(ctx, entry); err != nil {
		return nil, err
	}
	logging.Info("Reconcile", "Registered server %s in %s on port %d", entry.Name, entry.Cwd, entry.Port)

	if err := e.launch(ctx, entry); err != nil {
		return nil, err
	}

	return &api.StartResult{
		Action:         api.ActionStarted,
		Entry:          entry,
		PortReassigned: reassigned,
	}, nil
}

// reconcileExisting runs the drift/liveness state machine for a start
// request that resolved to a registered server.
func (e *Engine) reconcileExisting(ctx context.Context, snap *registry.Snapshot, entry *api.ServerEntry, req StartRequest) (*api.StartResult, error) {
	drift := DetectDrift(entry, &e.cfg)

	// Policy dispatch. ForceRefresh (the refresh operation) re-resolves
	// even without drift, so stale snapshots can always be repaired.
	refresh := req.ForceRefresh
	declined := false
	if drift.HasDrift && !refresh {
		switch e.cfg.RefreshOnChange {
		case config.RefreshAuto, config.RefreshOnStart:
			refresh = true
		case config.RefreshPrompt:
			if e.prompter == nil {
				declined = true
			} else {
				confirmed, err := e.prompter.ConfirmRefresh(entry, drift)
				if err != nil {
					return nil, err
				}
				refresh = confirmed
				declined = !confirmed
			}
		}
		// "manual" ignores drift entirely.
	}

	// An explicit name with a different command template is the same
	// server with new instructions. Implicitly named servers can never
	// reach this point with a changed command: the derived name would
	// have resolved to a different identity.
	commandChanged := req.Command != "" && entry.NameExplicit && req.Command != entry.Command
	commandTemplate := entry.Command
	if commandChanged {
		commandTemplate = req.Command
	}

	result := &api.StartResult{Entry: entry}
	if drift.HasDrift {
		result.Drift = drift
		result.DriftDeclined = declined
	}

	if refresh {
		return e.refreshEntry(ctx, snap, entry, req, commandTemplate, result)
	}

	// Even without a config refresh, a changed command template or a
	// changed resolved environment means the running process is stale
	// and must be replaced, not left running.
	envChanged := false
	resolvedEnv := entry.Env
	if req.Env != nil {
		resolver := e.resolverFor(snap, entry.Cwd, entry.Port)
		if err := e.fillMissingVariables(resolver, "", req.Env); err != nil {
			return nil, err
		}
		newEnv, err := resolver.RenderEnv(req.Env)
		if err != nil {
			return nil, err
		}
		if !envEqual(newEnv, entry.Env) {
			envChanged = true
			resolvedEnv = newEnv
		}
	}

	if commandChanged || envChanged {
		resolver := e.resolverFor(snap, entry.Cwd, entry.Port)
		if err := e.fillMissingVariables(resolver, commandTemplate, nil); err != nil {
			return nil, err
		}
		resolvedCommand, err := resolver.Render(commandTemplate)
		if err != nil {
			return nil, err
		}

		usedKeys := template.ConfigKeysFor(template.ExtractVariables(commandTemplate))
		configSnapshot := e.snapshotFor(usedKeys)
		updated, err := e.store.Update(ctx, entry.ID, registry.EntryUpdate{
			Command:         &commandTemplate,
			ResolvedCommand: &resolvedCommand,
			Env:             resolvedEnv,
			UsedConfigKeys:  usedKeys,
			ConfigSnapshot:  configSnapshot,
		})
		if err != nil {
			return nil, err
		}

		if err := e.teardown(ctx, updated.ProcessName); err != nil {
			return nil, err
		}
		if err := e.launch(ctx, updated); err != nil {
			return nil, err
		}

		logging.Info("Reconcile", "Restarted server %s with changed configuration", updated.Name)
		result.Action = api.ActionRestarted
		result.Entry = updated
		return result, nil
	}

	return e.ensureRunning(ctx, entry, req.PreferRestart, result)
}

// refreshEntry re-resolves templates against the live configuration,
// republishes the snapshot and restarts the process.
func (e *Engine) refreshEntry(ctx context.Context, snap *registry.Snapshot, entry *api.ServerEntry, req StartRequest, commandTemplate string, result *api.StartResult) (*api.StartResult, error) {
	// Port re-validation: a port that fell outside the current range is
	// re-derived fresh, never reused as-is.
	port := entry.Port
	portReassigned := false
	if !e.cfg.PortRange.Contains(port) {
		var err error
		port, portReassigned, err = e.allocator.Assign(entry.Cwd, commandTemplate, ports.AssignOptions{})
		if err != nil {
			return nil, err
		}
		logging.Info("Reconcile", "Port %d is outside range %d-%d, reallocated %d for %s",
			entry.Port, e.cfg.PortRange.Min, e.cfg.PortRange.Max, port, entry.Name)
	}

	resolver := e.resolverFor(snap, entry.Cwd, port)
	if err := e.fillMissingVariables(resolver, commandTemplate, req.Env); err != nil {
		return nil, err
	}

	resolvedCommand, err := resolver.Render(commandTemplate)
	if err != nil {
		return nil, err
	}

	resolvedEnv := entry.Env
	if req.Env != nil {
		resolvedEnv, err = resolver.RenderEnv(req.Env)
		if err != nil {
			return nil, err
		}
	}

	usedKeys := template.ConfigKeysFor(template.ExtractVariables(commandTemplate))
	configSnapshot := e.snapshotFor(usedKeys)
	updated, err := e.store.Update(ctx, entry.ID, registry.EntryUpdate{
		Command:         &commandTemplate,
		ResolvedCommand: &resolvedCommand,
		Port:            &port,
		Protocol:        &e.cfg.Protocol,
		Hostname:        &e.cfg.Hostname,
		Env:             resolvedEnv,
		UsedConfigKeys:  usedKeys,
		ConfigSnapshot:  configSnapshot,
	})
	if err != nil {
		return nil, err
	}

	if err := e.teardown(ctx, updated.ProcessName); err != nil {
		return nil, err
	}
	if err := e.launch(ctx, updated); err != nil {
		return nil, err
	}

	logging.Info("Reconcile", "Refreshed server %s against current configuration", updated.Name)
	result.Action = api.ActionRefreshed
	result.Entry = updated
	result.PortReassigned = portReassigned
	return result, nil
}

// ensureRunning handles the no-change path: reuse a running process,
// restart a stopped or errored one, and start one the supervisor has
// never seen.
func (e *Engine) ensureRunning(ctx context.Context, entry *api.ServerEntry, preferRestart bool, result *api.StartResult) (*api.StartResult, error) {
	info, err := e.sup.Describe(ctx, entry.ProcessName)
	if err != nil {
		if !supervisor.IsProcessNotFound(err) {
			return nil, err
		}
		// Registered but never handed to the supervisor (or the
		// supervisor lost it): start it from the stored resolution.
		if err := e.launch(ctx, entry); err != nil {
			return nil, err
		}
		result.Action = api.ActionStarted
		return result, nil
	}

	if info.Status == supervisor.StatusOnline && !preferRestart {
		result.Action = api.ActionReused
		return result, nil
	}

	if err := e.sup.Restart(ctx, entry.ProcessName); err != nil {
		return nil, err
	}
	result.Action = api.ActionRestarted
	return result, nil
}
