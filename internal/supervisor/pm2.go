package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"devfleet/pkg/logging"
)

// PM2 drives a pm2 daemon through its CLI. Commands run with the
// invocation's environment plus the spec's variables; pm2 captures them
// into the process it forks.
type PM2 struct {
	// Binary is the pm2 executable, "pm2" on PATH by default.
	Binary string
}

// NewPM2 creates a PM2 client.
func NewPM2() *PM2 {
	return &PM2{Binary: "pm2"}
}

// pm2Process is the subset of `pm2 jlist` output the core reads.
type pm2Process struct {
	Name   string `json:"name"`
	PID    int    `json:"pid"`
	PM2Env struct {
		Status   string `json:"status"`
		PMUptime int64  `json:"pm_uptime"`
	} `json:"pm2_env"`
	Monit struct {
		Memory uint64  `json:"memory"`
		CPU    float64 `json:"cpu"`
	} `json:"monit"`
}

// Start launches the process under pm2. An existing process with the
// same name is replaced so a stale definition never lingers.
func (p *PM2) Start(ctx context.Context, spec StartSpec) error {
	args := []string{"start", spec.Executable, "--name", spec.Name, "--cwd", spec.Cwd}
	if len(spec.Args) > 0 {
		args = append(args, "--")
		args = append(args, spec.Args...)
	}

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	logging.Debug("Supervisor", "pm2 %s", strings.Join(args, " "))
	if _, err := p.run(ctx, env, args...); err != nil {
		return fmt.Errorf("pm2 start %s: %w", spec.Name, err)
	}
	return nil
}

// Stop stops and removes the named process.
func (p *PM2) Stop(ctx context.Context, name string) error {
	out, err := p.run(ctx, nil, "delete", name)
	if err != nil {
		if isNotFoundOutput(out) {
			return &ProcessNotFoundError{Name: name}
		}
		return fmt.Errorf("pm2 delete %s: %w", name, err)
	}
	return nil
}

// Restart restarts the named process in place.
func (p *PM2) Restart(ctx context.Context, name string) error {
	out, err := p.run(ctx, nil, "restart", name)
	if err != nil {
		if isNotFoundOutput(out) {
			return &ProcessNotFoundError{Name: name}
		}
		return fmt.Errorf("pm2 restart %s: %w", name, err)
	}
	return nil
}

// Describe reports the state of the named process from `pm2 jlist`.
func (p *PM2) Describe(ctx context.Context, name string) (*ProcessInfo, error) {
	out, err := p.run(ctx, nil, "jlist")
	if err != nil {
		return nil, fmt.Errorf("pm2 jlist: %w", err)
	}

	var procs []pm2Process
	if err := json.Unmarshal(out, &procs); err != nil {
		return nil, fmt.Errorf("parsing pm2 jlist output: %w", err)
	}

	for _, proc := range procs {
		if proc.Name != name {
			continue
		}
		info := &ProcessInfo{
			Name:        proc.Name,
			Status:      mapStatus(proc.PM2Env.Status),
			PID:         proc.PID,
			CPUPercent:  proc.Monit.CPU,
			MemoryBytes: proc.Monit.Memory,
		}
		if proc.PM2Env.PMUptime > 0 {
			info.Uptime = time.Since(time.UnixMilli(proc.PM2Env.PMUptime))
		}
		return info, nil
	}
	return nil, &ProcessNotFoundError{Name: name}
}

func (p *PM2) run(ctx context.Context, env []string, args ...string) ([]byte, error) {
	binary := p.Binary
	if binary == "" {
		binary = "pm2"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	if env != nil {
		cmd.Env = env
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err != nil {
		return out.Bytes(), fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

func isNotFoundOutput(out []byte) bool {
	return bytes.Contains(bytes.ToLower(out), []byte("not found"))
}

func mapStatus(pm2Status string) Status {
	switch pm2Status {
	case "online", "launching":
		return StatusOnline
	case "stopped", "stopping":
		return StatusStopped
	case "errored":
		return StatusErrored
	default:
		return StatusUnknown
	}
}
