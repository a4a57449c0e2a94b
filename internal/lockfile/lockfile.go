// Package lockfile provides cross-process advisory locking for the
// shared state files. Every read-modify-write cycle against the
// registry or the port ledger runs under one of these locks so that
// concurrent CLI invocations serialize instead of corrupting the store.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"devfleet/pkg/logging"

	"github.com/gofrs/flock"
)

const (
	// retryInterval is how often acquisition is retried while another
	// invocation holds the lock.
	retryInterval = 50 * time.Millisecond

	// acquireTimeout bounds how long an invocation waits before either
	// breaking a stale lock or giving up.
	acquireTimeout = 5 * time.Second

	// staleAfter is the staleness window: a lock file untouched for this
	// long is assumed to belong to a crashed holder and is broken. The OS
	// releases flocks on process exit, so this only matters for holders
	// that died in ways the kernel could not clean up (e.g. a hung NFS
	// client on a shared home directory).
	staleAfter = 10 * time.Second
)

// Lock is a held advisory lock. Release it with Unlock.
type Lock struct {
	fl   *flock.Flock
	path string
}

// errLockReplaced signals that the lock file was unlinked and recreated
// while the flock was being acquired, meaning the acquired lock guards
// a dead inode rather than the file now at the path.
var errLockReplaced = errors.New("lock file replaced during acquisition")

// Acquire takes the advisory lock guarding path. The lock itself lives
// in a sibling ".lock" file so the guarded file can be atomically
// replaced while the lock is held.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	lockPath := path + ".lock"

	for attempt := 0; attempt < 3; attempt++ {
		lock, err := lockOnce(ctx, lockPath)
		if err == nil {
			return lock, nil
		}
		if errors.Is(err, errLockReplaced) {
			continue
		}
		if ctx.Err() != nil {
			return nil, err
		}
		// Timed out. If the lock file looks abandoned, break it once
		// and go around with a fresh window.
		if !breakIfStale(lockPath) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("timed out waiting for lock %s", lockPath)
}

func lockOnce(ctx context.Context, lockPath string) (*Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	before, _ := os.Stat(lockPath)

	fl := flock.New(lockPath)
	ok, err := fl.TryLockContext(ctx, retryInterval)
	if err != nil || !ok {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("timed out waiting for lock %s", lockPath)
		}
		return nil, fmt.Errorf("acquiring lock %s: %w", lockPath, err)
	}

	// A stale-lock break while we were blocked leaves us holding the
	// unlinked inode, not the file now at the path. Holding that lock
	// excludes nobody; release and start over against the new file.
	after, statErr := os.Stat(lockPath)
	if statErr != nil || (before != nil && !os.SameFile(before, after)) {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			logging.Warn("Lockfile", "Failed to release replaced lock %s: %v", lockPath, unlockErr)
		}
		return nil, errLockReplaced
	}

	touch(lockPath)
	return &Lock{fl: fl, path: lockPath}, nil
}

// Unlock releases the lock.
func (l *Lock) Unlock() {
	if err := l.fl.Unlock(); err != nil {
		logging.Warn("Lockfile", "Failed to release %s: %v", l.path, err)
	}
}

// breakIfStale removes the lock file when its mtime is older than the
// staleness window. Returns true if the file was removed.
func breakIfStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) < staleAfter {
		return false
	}
	logging.Warn("Lockfile", "Breaking stale lock %s (age %s)", lockPath, time.Since(info.ModTime()).Round(time.Second))
	if os.Remove(lockPath) != nil {
		return false
	}
	// Recreate the path exclusively so at most one breaker claims the
	// fresh inode; losing the race just means someone else already did.
	if f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644); err == nil {
		f.Close()
	}
	return true
}

// touch refreshes the lock file mtime so a healthy holder is never
// mistaken for a stale one.
func touch(lockPath string) {
	now := time.Now()
	_ = os.Chtimes(lockPath, now, now)
}
