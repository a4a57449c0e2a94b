package mcp

import (
	"context"
	"path/filepath"
	"sync"

	"devfleet/internal/registry"
	"devfleet/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// RegistryCache keeps a loaded registry snapshot for the long-lived MCP
// surface, invalidated when another invocation rewrites the registry
// file. CLI invocations load fresh every time and do not need this;
// the MCP server answers many list/get calls between mutations.
type RegistryCache struct {
	store *registry.Store

	mu   sync.RWMutex
	snap *registry.Snapshot
}

// NewRegistryCache creates a cache over the store.
func NewRegistryCache(store *registry.Store) *RegistryCache {
	return &RegistryCache{store: store}
}

// Snapshot returns the cached snapshot, loading it on first use and
// after every invalidation.
func (c *RegistryCache) Snapshot() *registry.Snapshot {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil {
		return snap
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		c.snap = c.store.Load()
	}
	return c.snap
}

// Invalidate drops the cached snapshot. Called after local mutations
// and on filesystem change events.
func (c *RegistryCache) Invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()
}

// Watch invalidates the cache whenever the registry file changes on
// disk. The watch is on the parent directory because atomic rewrites
// replace the file node itself. Blocks until the context is done.
func (c *RegistryCache) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(c.store.Path())
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logging.Debug("MCPServer", "Watching %s for registry changes", dir)

	target := filepath.Base(c.store.Path())
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) == target {
				logging.Debug("MCPServer", "Registry changed on disk (%s), invalidating cache", event.Op)
				c.Invalidate()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("MCPServer", "Registry watcher error: %v", err)
		}
	}
}
