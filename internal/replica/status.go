// Package replica implements the ReplicaStatus registry and the
// ReplicaMonitor background task that keeps it current via PING/PONG
// heartbeats, reconnecting on failure.
package replica

import (
	"net"
	"sync"
	"time"
)

// Status is the liveness record for one replica. The stream field is
// never serialized or exposed outside this package; external callers
// only ever see a Snapshot.
type Status struct {
	Name     string
	Addr     string // host:port, as configured
	Ping     time.Duration
	Ready    bool
	Failures int
	stream   net.Conn
}

// Snapshot is the read-only, JSON-friendly view of a Status returned by
// registry queries. It never carries the live connection handle.
type Snapshot struct {
	Name     string `json:"name"`
	Addr     string `json:"addr"`
	PingMS   int64  `json:"ping_ms"`
	Ready    bool   `json:"ready"`
	Failures int    `json:"failures"`
}

func (s Status) snapshot() Snapshot {
	return Snapshot{
		Name:     s.Name,
		Addr:     s.Addr,
		PingMS:   s.Ping.Milliseconds(),
		Ready:    s.Ready,
		Failures: s.Failures,
	}
}

// Registry is the per-replica liveness map. It is guarded by a single
// mutex and owned exclusively by the ReplicaMonitor task that mutates
// it; other subsystems only ever read through GetStatus/Snapshot.
type Registry struct {
	mu       sync.Mutex
	statuses map[string]*Status
	// order fixes the listing order once, at construction, so repeated
	// snapshots list replicas in the same order. NewRegistry fills it by
	// ranging over its map argument, so it does not follow the order in
	// which replicas were configured.
	order []string
}

// NewRegistry builds a Registry from the configured replica addresses,
// one entry per name, all starting Disconnected (ready=false,
// failures=0, no stream).
func NewRegistry(replicas map[string]string) *Registry {
	r := &Registry{statuses: make(map[string]*Status, len(replicas))}
	for name, addr := range replicas {
		r.statuses[name] = &Status{Name: name, Addr: addr}
		r.order = append(r.order, name)
	}
	return r
}

// GetStatus returns a read-only snapshot of the named replica's status.
// This is the only query operation other subsystems (diagnostics,
// tests) are meant to use to consult registry state.
func (r *Registry) GetStatus(name string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.statuses[name]
	if !ok {
		return Snapshot{}, false
	}
	return s.snapshot(), true
}

// Snapshot returns a read-only view of every replica's status, in the
// registry's fixed listing order (see Registry.order). Because the monitor holds the registry lock for
// the duration of one full tick pass, a single call here observes a
// per-tick-consistent view (spec §4.5).
func (r *Registry) Snapshot() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Snapshot, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.statuses[name].snapshot())
	}
	return out
}

// withLock runs fn with the registry mutex held, for the monitor's
// exclusive use when mutating status during a tick pass.
func (r *Registry) withLock(fn func(statuses map[string]*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.statuses)
}
