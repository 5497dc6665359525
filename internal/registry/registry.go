// Package registry tracks peers discovered over the mesh link via the
// announce/discover messages that ride the same bus as file transfers.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/meshxfer/meshxfer/internal/wire"
)

// PeerRecord is what is known about a node other than ourselves.
type PeerRecord struct {
	NodeID   string
	Role     string
	LastSeen time.Time
}

// Registry is a mutex-protected map of known peers, keyed by node id.
// Reads and writes are cheap enough that a single RWMutex over the whole
// map is sufficient; there is no per-peer locking.
type Registry struct {
	selfID string

	mu    sync.RWMutex
	peers map[string]PeerRecord
}

// New creates an empty registry for a node identified by selfID. selfID is
// used to filter out echoes of our own announce/discover broadcasts.
func New(selfID string) *Registry {
	return &Registry{
		selfID: selfID,
		peers:  make(map[string]PeerRecord),
	}
}

// HandleAnnounce records or refreshes a peer from an announce frame. An
// announce naming ourselves is ignored.
func (r *Registry) HandleAnnounce(f wire.Frame) {
	if f.Type != wire.TypeAnnounce || f.NodeID == "" || f.NodeID == r.selfID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[f.NodeID] = PeerRecord{
		NodeID:   f.NodeID,
		Role:     f.Role,
		LastSeen: time.Now(),
	}
}

// HandleDiscover records the requesting peer (discover frames double as a
// liveness signal) and reports whether the local node should respond with
// its own announce frame. A discover naming ourselves never triggers a
// self-response.
func (r *Registry) HandleDiscover(f wire.Frame) (shouldRespond bool) {
	if f.Type != wire.TypeDiscover || f.NodeID == "" || f.NodeID == r.selfID {
		return false
	}
	r.mu.Lock()
	peer, exists := r.peers[f.NodeID]
	peer.NodeID = f.NodeID
	peer.LastSeen = time.Now()
	if !exists {
		peer.Role = ""
	}
	r.peers[f.NodeID] = peer
	r.mu.Unlock()
	return true
}

// Get returns the record for nodeID, if known.
func (r *Registry) Get(nodeID string) (PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[nodeID]
	return p, ok
}

// List returns a snapshot of all known peers.
func (r *Registry) List() []PeerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerRecord, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// FormatKnownNodes renders the peer list the way the operator console's
// /nodes command prints it: "{id} (role: {role}, last seen: {n}s ago)".
func (r *Registry) FormatKnownNodes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lines := make([]string, 0, len(r.peers))
	now := time.Now()
	for _, p := range r.peers {
		role := p.Role
		if role == "" {
			role = "unknown"
		}
		ago := int(now.Sub(p.LastSeen).Seconds())
		lines = append(lines, fmt.Sprintf("%s (role: %s, last seen: %ds ago)", p.NodeID, role, ago))
	}
	return lines
}
