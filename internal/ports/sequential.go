package ports

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"devfleet/internal/api"
	"devfleet/internal/config"
	"devfleet/internal/lockfile"
	"devfleet/pkg/logging"
)

// claimFreshness is how long a ledger claim stays valid. Entries older
// than this are discarded on load so the ledger cannot grow without
// bound across unrelated sessions.
const claimFreshness = time.Hour

// Ledger tracks ports already claimed by this and other recent
// automated invocations. It backs sequential allocation: the range is
// scanned in order and claimed or unavailable ports are skipped, which
// avoids the hash collisions that deterministic derivation can produce
// when many servers start near-simultaneously.
type Ledger struct {
	path    string
	claimed map[int]time.Time
}

// ledgerDocument is the persisted shape of the ledger.
type ledgerDocument struct {
	Claims []ledgerClaim `json:"claims"`
}

type ledgerClaim struct {
	Port      int       `json:"port"`
	ClaimedAt time.Time `json:"claimedAt"`
}

// OpenLedger loads the ledger side file, dropping stale claims. A
// missing or unreadable file starts an empty ledger; the ledger is an
// optimization, not durable truth.
func OpenLedger(path string) *Ledger {
	l := &Ledger{path: path, claimed: map[int]time.Time{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return l
	}
	var doc ledgerDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logging.Warn("PortAllocator", "Ignoring unparseable port ledger %s: %v", path, err)
		return l
	}

	cutoff := time.Now().Add(-claimFreshness)
	for _, claim := range doc.Claims {
		if claim.ClaimedAt.After(cutoff) {
			l.claimed[claim.Port] = claim.ClaimedAt
		}
	}
	return l
}

// NextAvailable scans the range in order, skipping claimed and
// unavailable ports, claims the first free one and persists the claim.
// reassigned is true whenever any port had to be skipped.
func (l *Ledger) NextAvailable(rng config.PortRange, prober Prober) (int, bool, error) {
	skipped := false
	for port := rng.Min; port <= rng.Max; port++ {
		if _, taken := l.claimed[port]; taken {
			skipped = true
			continue
		}
		if !prober.IsAvailable(port) {
			skipped = true
			continue
		}

		l.claimed[port] = time.Now()
		if err := l.save(); err != nil {
			logging.Warn("PortAllocator", "Failed to persist port ledger: %v", err)
		}
		return port, skipped, nil
	}
	return 0, false, api.NewPortAllocationFailedError(rng.Min, rng.Max)
}

// save rewrites the side file under the shared advisory lock. Claims
// made by concurrent invocations since our load are merged in rather
// than clobbered.
func (l *Ledger) save() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}

	lock, err := lockfile.Acquire(context.Background(), l.path)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	merged := OpenLedger(l.path)
	for port, at := range l.claimed {
		if existing, ok := merged.claimed[port]; !ok || at.After(existing) {
			merged.claimed[port] = at
		}
	}

	doc := ledgerDocument{}
	for port, at := range merged.claimed {
		doc.Claims = append(doc.Claims, ledgerClaim{Port: port, ClaimedAt: at})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".tmp-*")
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
	return os.Rename(tmpName, l.path)
}
