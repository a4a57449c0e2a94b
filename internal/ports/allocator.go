// Package ports derives and verifies network ports for managed dev
// servers. Derivation is a pure hash of the server's identity so that
// repeated invocations land on the same port without shared state;
// verification probes the OS and falls back to a scan of the configured
// range when the derived port is taken.
package ports

import (
	"hash/fnv"

	"devfleet/internal/api"
	"devfleet/internal/config"
	"devfleet/pkg/logging"
)

// Allocator assigns ports within a configured range.
type Allocator struct {
	rng    config.PortRange
	prober Prober
}

// New creates an allocator for the given range. A nil prober defaults
// to real TCP probing.
func New(rng config.PortRange, prober Prober) *Allocator {
	if prober == nil {
		prober = &NetProber{}
	}
	return &Allocator{rng: rng, prober: prober}
}

// Range returns the configured port range.
func (a *Allocator) Range() config.PortRange {
	return a.rng
}

// DeterministicPort maps a (cwd, command) pair into the range via a
// 32-bit FNV-1a hash of "cwd:command". The result is stable across
// process restarts and platforms; it depends on nothing but the two
// inputs and the range bounds.
func DeterministicPort(cwd, command string, rng config.PortRange) int {
	h := fnv.New32a()
	h.Write([]byte(cwd))
	h.Write([]byte(":"))
	h.Write([]byte(command))
	return rng.Min + int(h.Sum32()%uint32(rng.Size()))
}

// FindAvailable returns preferred if it is free. Otherwise it scans
// forward from preferred+1 to the top of the range, wraps, and scans
// from the bottom up to preferred-1, returning the first free port with
// reassigned=true. An exhausted range yields PortAllocationFailed,
// which is terminal for this invocation.
func (a *Allocator) FindAvailable(preferred int) (int, bool, error) {
	if a.prober.IsAvailable(preferred) {
		return preferred, false, nil
	}
	logging.Debug("PortAllocator", "Preferred port %d is taken, scanning %d-%d", preferred, a.rng.Min, a.rng.Max)

	for port := preferred + 1; port <= a.rng.Max; port++ {
		if a.prober.IsAvailable(port) {
			return port, true, nil
		}
	}
	for port := a.rng.Min; port < preferred; port++ {
		if a.prober.IsAvailable(port) {
			return port, true, nil
		}
	}
	return 0, false, api.NewPortAllocationFailedError(a.rng.Min, a.rng.Max)
}

// AssignOptions modify how Assign picks the preferred port.
type AssignOptions struct {
	// ExplicitPort, when non-zero, is validated against the range and
	// used as the preferred port.
	ExplicitPort int

	// Ledger, when set, switches to sequential allocation for batch and
	// automated contexts where hash collisions across near-simultaneous
	// invocations are undesirable.
	Ledger *Ledger
}

// Assign picks a port for (cwd, command). With an explicit port it
// validates the bounds then searches from there; with a ledger it
// allocates sequentially; otherwise it derives deterministically and
// searches. The reassigned flag is true whenever the returned port is
// not the preferred one.
func (a *Allocator) Assign(cwd, command string, opts AssignOptions) (int, bool, error) {
	if opts.ExplicitPort != 0 {
		if !a.rng.Contains(opts.ExplicitPort) {
			return 0, false, api.NewPortOutOfRangeError(opts.ExplicitPort, a.rng.Min, a.rng.Max)
		}
		return a.FindAvailable(opts.ExplicitPort)
	}

	if opts.Ledger != nil {
		return opts.Ledger.NextAvailable(a.rng, a.prober)
	}

	return a.FindAvailable(DeterministicPort(cwd, command, a.rng))
}
