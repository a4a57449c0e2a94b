// Package supervisor is the boundary to the external long-lived
// process manager that owns OS process lifecycles. The core only needs
// four capabilities from it; everything else about the supervisor
// (restart policies, log handling) is its own business.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the supervisor's view of a managed process.
type Status string

const (
	StatusOnline  Status = "online"
	StatusStopped Status = "stopped"
	StatusErrored Status = "errored"
	StatusUnknown Status = "unknown"
)

// ProcessInfo describes a process known to the supervisor.
type ProcessInfo struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	PID         int           `json:"pid,omitempty"`
	Uptime      time.Duration `json:"uptime,omitempty"`
	CPUPercent  float64       `json:"cpuPercent,omitempty"`
	MemoryBytes uint64        `json:"memoryBytes,omitempty"`
}

// StartSpec is everything the supervisor needs to launch a process.
type StartSpec struct {
	Name       string
	Executable string
	Args       []string
	Cwd        string
	Env        map[string]string
}

// Supervisor abstracts the external process manager.
type Supervisor interface {
	// Start launches a process under the given supervisor name.
	Start(ctx context.Context, spec StartSpec) error

	// Stop stops and removes the named process. Stopping a process the
	// supervisor does not know fails with ProcessNotFound; callers
	// tearing down decide whether to absorb that.
	Stop(ctx context.Context, name string) error

	// Restart restarts the named process in place.
	Restart(ctx context.Context, name string) error

	// Describe reports the process state, or ProcessNotFound when the
	// supervisor has no process under that name. "Not found" is always
	// distinguishable from other failures.
	Describe(ctx context.Context, name string) (*ProcessInfo, error)
}

// ProcessNotFoundError indicates the supervisor has no process under
// the requested name.
type ProcessNotFoundError struct {
	Name string
}

func (e *ProcessNotFoundError) Error() string {
	return fmt.Sprintf("supervisor has no process named %s", e.Name)
}

// IsProcessNotFound checks if an error is a ProcessNotFoundError using
// error unwrapping.
func IsProcessNotFound(err error) bool {
	var notFound *ProcessNotFoundError
	return errors.As(err, &notFound)
}
