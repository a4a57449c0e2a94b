package ports

import (
	"math/rand"
	"path/filepath"
	"testing"

	"devfleet/internal/api"
	"devfleet/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProber marks specific ports as taken.
type fakeProber struct {
	taken map[int]bool
}

func (p *fakeProber) IsAvailable(port int) bool {
	return !p.taken[port]
}

func allTaken(rng config.PortRange) *fakeProber {
	p := &fakeProber{taken: map[int]bool{}}
	for port := rng.Min; port <= rng.Max; port++ {
		p.taken[port] = true
	}
	return p
}

func TestDeterministicPortStable(t *testing.T) {
	rng := config.PortRange{Min: 3000, Max: 3999}

	first := DeterministicPort("/home/dev/shop", "npm run dev", rng)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DeterministicPort("/home/dev/shop", "npm run dev", rng))
	}
}

func TestDeterministicPortWithinRange(t *testing.T) {
	rng := config.PortRange{Min: 3000, Max: 3999}

	inputs := []struct {
		cwd     string
		command string
	}{
		{"/home/dev/shop", "npm run dev"},
		{"/home/dev/api", "cargo run"},
		{"/", ""},
		{"", "x"},
		{"/a/very/long/path/with/many/segments/indeed", "python -m http.server {{port}}"},
	}
	for _, in := range inputs {
		port := DeterministicPort(in.cwd, in.command, rng)
		assert.True(t, rng.Contains(port), "port %d for %q/%q escaped range", port, in.cwd, in.command)
	}

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		cwd := randomString(r, r.Intn(64))
		command := randomString(r, r.Intn(128))
		port := DeterministicPort(cwd, command, rng)
		assert.True(t, rng.Contains(port), "port %d for %q/%q escaped range", port, cwd, command)
	}
}

func randomString(r *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 /-_{}."
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(b)
}

func TestDeterministicPortInputSensitivity(t *testing.T) {
	rng := config.PortRange{Min: 3000, Max: 3999}

	base := DeterministicPort("/home/dev/shop", "npm run dev", rng)
	differentCwd := DeterministicPort("/home/dev/shop2", "npm run dev", rng)
	differentCmd := DeterministicPort("/home/dev/shop", "npm run dev:api", rng)

	// Collisions are possible in a 1000-port range but not for these
	// particular inputs; the point is that both components feed the hash.
	assert.NotEqual(t, base, differentCwd)
	assert.NotEqual(t, base, differentCmd)
}

func TestFindAvailablePrefersDerivedPort(t *testing.T) {
	rng := config.PortRange{Min: 5000, Max: 5010}
	a := New(rng, &fakeProber{taken: map[int]bool{}})

	port, reassigned, err := a.FindAvailable(5004)
	require.NoError(t, err)
	assert.Equal(t, 5004, port)
	assert.False(t, reassigned)
}

func TestFindAvailableScansForward(t *testing.T) {
	rng := config.PortRange{Min: 5000, Max: 5002}
	prober := allTaken(rng)
	delete(prober.taken, 5001)
	a := New(rng, prober)

	port, reassigned, err := a.FindAvailable(5000)
	require.NoError(t, err)
	assert.Equal(t, 5001, port)
	assert.True(t, reassigned)
}

func TestFindAvailableWrapsAround(t *testing.T) {
	rng := config.PortRange{Min: 9055, Max: 9057}
	prober := allTaken(rng)
	delete(prober.taken, 9056)
	a := New(rng, prober)

	// Preferred is at the top of the range; the scan wraps to the bottom.
	port, reassigned, err := a.FindAvailable(9057)
	require.NoError(t, err)
	assert.Equal(t, 9056, port)
	assert.True(t, reassigned)
}

func TestFindAvailableExhausted(t *testing.T) {
	rng := config.PortRange{Min: 5000, Max: 5002}
	a := New(rng, allTaken(rng))

	_, _, err := a.FindAvailable(5001)
	require.Error(t, err)
	assert.True(t, api.IsPortAllocationFailed(err))
}

func TestAssignExplicitPortOutOfRange(t *testing.T) {
	rng := config.PortRange{Min: 3000, Max: 3999}
	a := New(rng, &fakeProber{taken: map[int]bool{}})

	_, _, err := a.Assign("/home/dev/shop", "npm run dev", AssignOptions{ExplicitPort: 8080})
	require.Error(t, err)
	assert.True(t, api.IsPortOutOfRange(err))
}

func TestAssignExplicitPortTaken(t *testing.T) {
	rng := config.PortRange{Min: 3000, Max: 3010}
	a := New(rng, &fakeProber{taken: map[int]bool{3005: true}})

	port, reassigned, err := a.Assign("/home/dev/shop", "npm run dev", AssignOptions{ExplicitPort: 3005})
	require.NoError(t, err)
	assert.Equal(t, 3006, port)
	assert.True(t, reassigned)
}

func TestAssignSequentialSkipsClaimed(t *testing.T) {
	rng := config.PortRange{Min: 4000, Max: 4005}
	ledger := OpenLedger(filepath.Join(t.TempDir(), "ports.json"))
	a := New(rng, &fakeProber{taken: map[int]bool{4000: true}})

	port, reassigned, err := a.Assign("/home/dev/shop", "npm run dev", AssignOptions{Ledger: ledger})
	require.NoError(t, err)
	assert.Equal(t, 4001, port)
	assert.True(t, reassigned)

	// Same ledger, next allocation skips the fresh claim.
	port, _, err = a.Assign("/home/dev/api", "cargo run", AssignOptions{Ledger: ledger})
	require.NoError(t, err)
	assert.Equal(t, 4002, port)
}
