package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"devfleet/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "servers.json"))
}

func addEntry(t *testing.T, store *Store, entry api.ServerEntry) api.ServerEntry {
	t.Helper()
	require.NoError(t, store.Add(context.Background(), &entry))
	return entry
}

func TestAddAssignsIdentityFields(t *testing.T) {
	store := newTestStore(t)

	entry := addEntry(t, store, api.ServerEntry{
		Name: "api", Cwd: "/work/shop", Command: "cargo run", Port: 3100,
	})

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, "devfleet-api", entry.ProcessName)

	loaded, ok := store.Load().FindByIdentity("/work/shop", "api")
	require.True(t, ok)
	assert.Equal(t, entry.ID, loaded.ID)
}

func TestAddRejectsDuplicateIdentity(t *testing.T) {
	store := newTestStore(t)
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run"})

	err := store.Add(context.Background(), &api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "other"})
	require.Error(t, err)
	assert.True(t, api.IsDuplicateServer(err))
}

func TestSameNameDifferentCwdCoexist(t *testing.T) {
	store := newTestStore(t)
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run"})
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/blog", Command: "npm start"})

	snap := store.Load()
	assert.Equal(t, 2, snap.Len())
	assert.Len(t, snap.FindByName("api"), 2)
}

func TestUpdateMergesFields(t *testing.T) {
	store := newTestStore(t)
	entry := addEntry(t, store, api.ServerEntry{
		Name: "api", Cwd: "/work/shop", Command: "cargo run", Port: 3100,
		ConfigSnapshot: map[string]string{"hostname": "localhost"},
	})

	port := 3200
	snapVals := map[string]string{"hostname": "dev.local"}
	updated, err := store.Update(context.Background(), entry.ID, EntryUpdate{
		Port:           &port,
		ConfigSnapshot: snapVals,
	})
	require.NoError(t, err)
	assert.Equal(t, 3200, updated.Port)
	assert.Equal(t, snapVals, updated.ConfigSnapshot)
	// Untouched fields survive.
	assert.Equal(t, "cargo run", updated.Command)
}

func TestUpdateRenameRederivesProcessName(t *testing.T) {
	store := newTestStore(t)
	entry := addEntry(t, store, api.ServerEntry{Name: "auto-cafe0001", Cwd: "/work/shop", Command: "npm start"})

	name := "web"
	explicit := true
	updated, err := store.Update(context.Background(), entry.ID, EntryUpdate{Name: &name, NameExplicit: &explicit})
	require.NoError(t, err)
	assert.Equal(t, "devfleet-web", updated.ProcessName)
	assert.True(t, updated.NameExplicit)
}

func TestUpdateRenameCollision(t *testing.T) {
	store := newTestStore(t)
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run"})
	entry := addEntry(t, store, api.ServerEntry{Name: "web", Cwd: "/work/shop", Command: "npm start"})

	name := "api"
	_, err := store.Update(context.Background(), entry.ID, EntryUpdate{Name: &name})
	require.Error(t, err)
	assert.True(t, api.IsDuplicateServer(err))
}

func TestUpdateUnknownID(t *testing.T) {
	store := newTestStore(t)

	name := "x"
	_, err := store.Update(context.Background(), "no-such-id", EntryUpdate{Name: &name})
	require.Error(t, err)
	assert.True(t, api.IsServerNotFound(err))
}

func TestRemove(t *testing.T) {
	store := newTestStore(t)
	entry := addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run"})

	require.NoError(t, store.Remove(context.Background(), entry.ID))
	assert.Equal(t, 0, store.Load().Len())

	err := store.Remove(context.Background(), entry.ID)
	require.Error(t, err)
	assert.True(t, api.IsServerNotFound(err))
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, 0, store.Load().Len())
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte("{definitely not json"), 0o644))

	store := NewStore(path)
	assert.Equal(t, 0, store.Load().Len())

	// The store stays usable: the next mutation rewrites a valid file.
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run"})
	assert.Equal(t, 1, store.Load().Len())
}

func TestLoadUnsupportedVersionIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"servers":[{"name":"x"}]}`), 0o644))

	store := NewStore(path)
	assert.Equal(t, 0, store.Load().Len())
}

func TestListFilters(t *testing.T) {
	store := newTestStore(t)
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/shop", Command: "cargo run", Tags: []string{"backend"}})
	addEntry(t, store, api.ServerEntry{Name: "web", Cwd: "/work/shop", Command: "npm run dev", Tags: []string{"frontend"}})
	addEntry(t, store, api.ServerEntry{Name: "api", Cwd: "/work/blog", Command: "npm run api", Tags: []string{"backend"}})

	snap := store.Load()

	assert.Len(t, snap.List(api.ListFilter{}), 3)
	assert.Len(t, snap.List(api.ListFilter{Name: "api"}), 2)
	assert.Len(t, snap.List(api.ListFilter{Tag: "frontend"}), 1)
	assert.Len(t, snap.List(api.ListFilter{Cwd: "/work/shop"}), 2)
	assert.Len(t, snap.List(api.ListFilter{Command: "npm*"}), 2)

	// Conjunctive composition.
	assert.Len(t, snap.List(api.ListFilter{Name: "api", Cwd: "/work/shop"}), 1)

	// Malformed glob matches nothing rather than erroring.
	assert.Empty(t, snap.List(api.ListFilter{Command: "[unclosed"}))
}
