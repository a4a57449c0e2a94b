package reconcile

import (
	"context"
	"fmt"

	"devfleet/internal/api"
	"devfleet/internal/registry"
	"devfleet/internal/supervisor"
	"devfleet/pkg/logging"
)

// findServer resolves a name the way the management operations expect:
// first within the given working directory, then across all directories
// when the name is unambiguous there.
func (e *Engine) findServer(snap *registry.Snapshot, cwd, name string) (*api.ServerEntry, error) {
	if entry, ok := snap.FindByIdentity(cwd, name); ok {
		return entry, nil
	}

	matches := snap.FindByName(name)
	switch len(matches) {
	case 0:
		return nil, api.NewServerNotFoundError(name, cwd)
	case 1:
		entry := matches[0]
		return &entry, nil
	default:
		return nil, fmt.Errorf("server name %s is ambiguous across %d working directories; run from one of them", name, len(matches))
	}
}

// Refresh force re-resolves a registered server against the live
// configuration and restarts it, regardless of the refresh policy.
func (e *Engine) Refresh(ctx context.Context, cwd, name string) (*api.StartResult, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, name)
	if err != nil {
		return nil, err
	}
	return e.StartOrReuse(ctx, StartRequest{
		Name:         entry.Name,
		Cwd:          entry.Cwd,
		ForceRefresh: true,
	})
}

// Restart restarts a registered server, reconciling drift on the way
// per policy but never reusing a running process as-is.
func (e *Engine) Restart(ctx context.Context, cwd, name string) (*api.StartResult, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, name)
	if err != nil {
		return nil, err
	}
	return e.StartOrReuse(ctx, StartRequest{
		Name:          entry.Name,
		Cwd:           entry.Cwd,
		PreferRestart: true,
	})
}

// Stop tears the process down but keeps the registry entry. A process
// the supervisor does not know counts as already stopped.
func (e *Engine) Stop(ctx context.Context, cwd, name string) (*api.ServerEntry, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, name)
	if err != nil {
		return nil, err
	}
	if err := e.teardown(ctx, entry.ProcessName); err != nil {
		return nil, err
	}
	logging.Info("Reconcile", "Stopped server %s", entry.Name)
	return entry, nil
}

// Remove tears the process down (unless keepRunning) and deletes the
// registry entry.
func (e *Engine) Remove(ctx context.Context, cwd, name string, keepRunning bool) (*api.ServerEntry, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, name)
	if err != nil {
		return nil, err
	}
	if !keepRunning {
		if err := e.teardown(ctx, entry.ProcessName); err != nil {
			return nil, err
		}
	}
	if err := e.store.Remove(ctx, entry.ID); err != nil {
		return nil, err
	}
	logging.Info("Reconcile", "Removed server %s from %s", entry.Name, entry.Cwd)
	return entry, nil
}

// Rename gives a server a new explicit name. The supervisor linkage
// name follows the logical name, so the process is torn down under the
// old name and started again under the new one.
func (e *Engine) Rename(ctx context.Context, cwd, oldName, newName string) (*api.ServerEntry, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, oldName)
	if err != nil {
		return nil, err
	}

	if err := e.teardown(ctx, entry.ProcessName); err != nil {
		return nil, err
	}

	explicit := true
	updated, err := e.store.Update(ctx, entry.ID, registry.EntryUpdate{
		Name:         &newName,
		NameExplicit: &explicit,
	})
	if err != nil {
		return nil, err
	}

	if err := e.launch(ctx, updated); err != nil {
		return nil, err
	}
	logging.Info("Reconcile", "Renamed server %s to %s", oldName, newName)
	return updated, nil
}

// Describe returns the registry entry together with the supervisor's
// live view of it. The supervisor is the ground truth for "running";
// an absent process yields status unknown rather than an error.
func (e *Engine) Describe(ctx context.Context, cwd, name string) (*api.ServerEntry, *supervisor.ProcessInfo, error) {
	snap := e.store.Load()
	entry, err := e.findServer(snap, cwd, name)
	if err != nil {
		return nil, nil, err
	}

	info, err := e.sup.Describe(ctx, entry.ProcessName)
	if err != nil {
		if supervisor.IsProcessNotFound(err) {
			return entry, nil, nil
		}
		return nil, nil, err
	}
	return entry, info, nil
}
