package ports

import (
	"net"
	"strconv"

	"devfleet/pkg/logging"
)

// Prober answers whether a TCP port can currently be bound on this
// machine. Probing is real I/O with tens of milliseconds of latency per
// call; callers scanning a range must budget for range-size many probes.
type Prober interface {
	IsAvailable(port int) bool
}

// NetProber probes by binding and immediately releasing a TCP listener.
type NetProber struct {
	// Host is the address to bind the probe listener on. Empty means
	// loopback only, which matches how dev servers are reached.
	Host string
}

// IsAvailable reports whether the port could be bound right now. A port
// that is free at probe time can still be taken by the time the server
// process binds it; the allocator treats that as the next invocation's
// problem rather than holding the listener open.
func (p *NetProber) IsAvailable(port int) bool {
	host := p.Host
	if host == "" {
		host = "127.0.0.1"
	}
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		logging.Debug("PortAllocator", "Port %d unavailable: %v", port, err)
		return false
	}
	l.Close()
	return true
}
