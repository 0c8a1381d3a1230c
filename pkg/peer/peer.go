// Package peer maintains the node's view of the network: known peer
// URLs, their health state, and the retry bookkeeping that decides which
// peers gossip fans out to (component C7).
package peer

import (
	"sync"
	"time"
)

const (
	// MaxRetries is the ceiling on consecutive failed health checks
	// before a peer is treated as unreachable (but not removed).
	MaxRetries = 3
	// HealthCheckInterval is how often the background health loop
	// re-probes every known peer.
	HealthCheckInterval = 30 * time.Second
	// MinRecheckInterval floors how soon the periodic health loop
	// re-probes a peer that was checked very recently.
	MinRecheckInterval = 10 * time.Second
	// HealthCheckTimeout bounds a single health probe.
	HealthCheckTimeout = 3 * time.Second
)

// Status is one peer's current health bookkeeping.
type Status struct {
	URL       string    `json:"url"`
	Healthy   bool      `json:"healthy"`
	Retries   int       `json:"retries"`
	LastCheck time.Time `json:"last_check"`
	LastSeen  time.Time `json:"last_seen"`
}

// Registry is the thread-safe table of known peers.
type Registry struct {
	mu    sync.Mutex
	self  string
	peers map[string]*Status
}

// NewRegistry returns an empty registry that will refuse to add self as
// a peer of itself.
func NewRegistry(self string) *Registry {
	return &Registry{self: self, peers: make(map[string]*Status)}
}

// Add registers a new peer URL. It is a no-op if url is the node's own
// address or already known.
func (r *Registry) Add(url string) bool {
	if url == "" || url == r.self {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.peers[url]; exists {
		return false
	}
	r.peers[url] = &Status{URL: url, Healthy: true}
	return true
}

// Remove drops a peer from the registry entirely.
func (r *Registry) Remove(url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, url)
}

// All returns every known peer URL, regardless of health.
func (r *Registry) All() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for url := range r.peers {
		out = append(out, url)
	}
	return out
}

// Healthy returns every peer URL currently marked healthy.
func (r *Registry) Healthy() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for url, s := range r.peers {
		if s.Healthy {
			out = append(out, url)
		}
	}
	return out
}

// HealthyExcluding returns every healthy peer URL other than exclude —
// used by the gossip fan-out to avoid echoing a message back to its
// source.
func (r *Registry) HealthyExcluding(exclude string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.peers))
	for url, s := range r.peers {
		if s.Healthy && url != exclude {
			out = append(out, url)
		}
	}
	return out
}

// RecordSuccess marks a probe (or any successful contact) against url as
// healthy, resetting its retry counter.
func (r *Registry) RecordSuccess(url string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[url]
	if !ok {
		return
	}
	s.Healthy = true
	s.Retries = 0
	s.LastCheck = at
	s.LastSeen = at
}

// RecordFailure marks a failed probe against url, incrementing its retry
// counter and marking it unhealthy once MaxRetries is reached.
func (r *Registry) RecordFailure(url string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[url]
	if !ok {
		return
	}
	s.LastCheck = at
	if s.Retries < MaxRetries {
		s.Retries++
	}
	if s.Retries >= MaxRetries {
		s.Healthy = false
	}
}

// DueForCheck reports whether url hasn't been probed within
// MinRecheckInterval of now, used by the periodic health loop to skip
// recently checked peers. Forced checks do not consult it.
func (r *Registry) DueForCheck(url string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.peers[url]
	if !ok {
		return false
	}
	return now.Sub(s.LastCheck) >= MinRecheckInterval
}

// Snapshot returns a copy of every known peer's status, for persistence
// or API reporting.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.peers))
	for _, s := range r.peers {
		out = append(out, *s)
	}
	return out
}

// Restore replaces the registry's peer set from a prior snapshot's URLs,
// reinitialized as healthy with no retry history.
func (r *Registry) Restore(urls []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = make(map[string]*Status, len(urls))
	for _, url := range urls {
		if url == r.self {
			continue
		}
		r.peers[url] = &Status{URL: url, Healthy: true}
	}
}
