// Package registry is the durable, file-backed source of truth for
// every known server. The whole registry is loaded into an indexed
// in-memory snapshot at the start of an operation; mutations re-load,
// modify and atomically rewrite the file under a cross-process advisory
// lock so concurrent invocations serialize rather than corrupt it.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"devfleet/internal/api"
	"devfleet/internal/lockfile"
	"devfleet/pkg/logging"

	"github.com/google/uuid"
)

// schemaVersion tags the persisted document. Unknown versions are
// treated like corruption: logged and replaced with an empty registry.
const schemaVersion = 1

// processNamePrefix derives the supervisor linkage name from the
// logical name. The linkage name only addresses the supervisor; it is
// not part of identity.
const processNamePrefix = "devfleet-"

// ProcessNameFor returns the supervisor process name for a server name.
func ProcessNameFor(name string) string {
	return processNamePrefix + name
}

type document struct {
	Version int               `json:"version"`
	Servers []api.ServerEntry `json:"servers"`
}

// Store reads and writes the registry file.
type Store struct {
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry into an indexed snapshot. A missing file is
// an empty registry. Schema-invalid content is logged and treated as
// empty rather than fatal: the registry is an index, the supervisor's
// live process list stays the ground truth for what is running.
// Readers that do not intend to write may Load without the lock.
func (s *Store) Load() *Snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Registry", "Cannot read %s, starting empty: %v", s.path, err)
		}
		return newSnapshot(nil)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn("Registry", "%v", api.NewRegistryCorruptError(s.path, err))
		return newSnapshot(nil)
	}
	if doc.Version != schemaVersion {
		logging.Warn("Registry", "%v", api.NewRegistryCorruptError(s.path,
			errors.New("unsupported schema version")))
		return newSnapshot(nil)
	}
	return newSnapshot(doc.Servers)
}

// Add assigns the entry's ID, creation timestamp and supervisor linkage
// name, enforces identity uniqueness and persists. The passed entry is
// updated in place with the assigned fields.
func (s *Store) Add(ctx context.Context, entry *api.ServerEntry) error {
	return s.mutate(ctx, func(snap *Snapshot) error {
		if _, exists := snap.FindByIdentity(entry.Cwd, entry.Name); exists {
			return api.NewDuplicateServerError(entry.Name, entry.Cwd)
		}

		entry.ID = uuid.NewString()
		entry.CreatedAt = time.Now().UTC()
		entry.ProcessName = ProcessNameFor(entry.Name)

		snap.entries = append(snap.entries, *entry)
		return nil
	})
}

// EntryUpdate carries the fields Update merges into an existing entry.
// Nil fields are left untouched; non-nil map and slice fields replace
// the stored value wholesale, they are never deep-merged.
type EntryUpdate struct {
	Name            *string
	NameExplicit    *bool
	Command         *string
	ResolvedCommand *string
	Port            *int
	Protocol        *api.Protocol
	Hostname        *string
	Description     *string
	Env             map[string]string
	Tags            []string
	UsedConfigKeys  []string
	ConfigSnapshot  map[string]string
}

// Update merges fields into the entry with the given ID and persists.
// Renames re-derive the supervisor linkage name and re-check identity
// uniqueness. Fails with ServerNotFound for unknown IDs.
func (s *Store) Update(ctx context.Context, id string, update EntryUpdate) (*api.ServerEntry, error) {
	var updated api.ServerEntry
	err := s.mutate(ctx, func(snap *Snapshot) error {
		entry := snap.findByID(id)
		if entry == nil {
			return api.NewServerNotFoundError(id, "")
		}

		if update.Name != nil && *update.Name != entry.Name {
			if other, exists := snap.FindByIdentity(entry.Cwd, *update.Name); exists && other.ID != id {
				return api.NewDuplicateServerError(*update.Name, entry.Cwd)
			}
			entry.Name = *update.Name
			entry.ProcessName = ProcessNameFor(entry.Name)
		}
		if update.NameExplicit != nil {
			entry.NameExplicit = *update.NameExplicit
		}
		if update.Command != nil {
			entry.Command = *update.Command
		}
		if update.ResolvedCommand != nil {
			entry.ResolvedCommand = *update.ResolvedCommand
		}
		if update.Port != nil {
			entry.Port = *update.Port
		}
		if update.Protocol != nil {
			entry.Protocol = *update.Protocol
		}
		if update.Hostname != nil {
			entry.Hostname = *update.Hostname
		}
		if update.Description != nil {
			entry.Description = *update.Description
		}
		if update.Env != nil {
			entry.Env = update.Env
		}
		if update.Tags != nil {
			entry.Tags = update.Tags
		}
		if update.UsedConfigKeys != nil {
			entry.UsedConfigKeys = update.UsedConfigKeys
		}
		if update.ConfigSnapshot != nil {
			entry.ConfigSnapshot = update.ConfigSnapshot
		}

		updated = *entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove deletes the entry with the given ID. Fails with ServerNotFound
// for unknown IDs.
func (s *Store) Remove(ctx context.Context, id string) error {
	return s.mutate(ctx, func(snap *Snapshot) error {
		for i := range snap.entries {
			if snap.entries[i].ID == id {
				snap.entries = append(snap.entries[:i], snap.entries[i+1:]...)
				return nil
			}
		}
		return api.NewServerNotFoundError(id, "")
	})
}

// mutate runs one logical read-modify-write cycle under the advisory
// lock: lock, re-load from disk, apply, atomically rewrite, unlock.
func (s *Store) mutate(ctx context.Context, apply func(*Snapshot) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(ctx, s.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	snap := s.Load()
	if err := apply(snap); err != nil {
		return err
	}
	return s.write(snap)
}

func (s *Store) write(snap *Snapshot) error {
	doc := document{Version: schemaVersion, Servers: snap.entries}
	if doc.Servers == nil {
		doc.Servers = []api.ServerEntry{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// Snapshot is the in-memory indexed view of the registry at load time.
type Snapshot struct {
	entries []api.ServerEntry
}

func newSnapshot(entries []api.ServerEntry) *Snapshot {
	return &Snapshot{entries: entries}
}

// FindByIdentity looks an entry up by its primary (cwd, name) key.
func (snap *Snapshot) FindByIdentity(cwd, name string) (*api.ServerEntry, bool) {
	for i := range snap.entries {
		if snap.entries[i].Cwd == cwd && snap.entries[i].Name == name {
			entry := snap.entries[i]
			return &entry, true
		}
	}
	return nil, false
}

// FindByCommand looks an entry up by the legacy (cwd, command) key,
// honored for servers registered before named identity existed.
func (snap *Snapshot) FindByCommand(cwd, command string) (*api.ServerEntry, bool) {
	for i := range snap.entries {
		if snap.entries[i].Cwd == cwd && snap.entries[i].Command == command {
			entry := snap.entries[i]
			return &entry, true
		}
	}
	return nil, false
}

// FindByID looks an entry up by its opaque ID.
func (snap *Snapshot) FindByID(id string) (*api.ServerEntry, bool) {
	entry := snap.findByID(id)
	if entry == nil {
		return nil, false
	}
	copy := *entry
	return &copy, true
}

func (snap *Snapshot) findByID(id string) *api.ServerEntry {
	for i := range snap.entries {
		if snap.entries[i].ID == id {
			return &snap.entries[i]
		}
	}
	return nil
}

// FindByName returns all entries with the given logical name, across
// working directories.
func (snap *Snapshot) FindByName(name string) []api.ServerEntry {
	var matches []api.ServerEntry
	for _, entry := range snap.entries {
		if entry.Name == name {
			matches = append(matches, entry)
		}
	}
	return matches
}

// List returns the entries matching the filter. Filters compose
// conjunctively; the command filter is a glob-style pattern.
func (snap *Snapshot) List(filter api.ListFilter) []api.ServerEntry {
	var matches []api.ServerEntry
	for _, entry := range snap.entries {
		if filter.Name != "" && entry.Name != filter.Name {
			continue
		}
		if filter.Cwd != "" && entry.Cwd != filter.Cwd {
			continue
		}
		if filter.Tag != "" && !hasTag(entry.Tags, filter.Tag) {
			continue
		}
		if filter.Command != "" && !commandMatches(filter.Command, entry.Command) {
			continue
		}
		matches = append(matches, entry)
	}
	return matches
}

// Len returns the number of live entries.
func (snap *Snapshot) Len() int {
	return len(snap.entries)
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func commandMatches(pattern, command string) bool {
	ok, err := path.Match(pattern, command)
	if err != nil {
		// Malformed patterns match nothing.
		return false
	}
	return ok
}
