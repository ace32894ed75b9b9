// Package directory defines the Directory Client external contract
// (spec §3, §6) and provides an in-memory implementation suitable for
// tests and single-process demos.
package directory

import (
	"sync"

	"github.com/nodebridge/linkmesh/internal/nodeid"
)

// Callback matches storage.get_node(peer_id, callback); callback(key,
// value) (spec §6, "Directory contract"). found reports whether the peer
// has a registered URI; when found is false, uri is "".
type Callback func(peerID nodeid.ID, uri string, found bool)

// Client resolves a peer identifier to a reachable URI.
type Client interface {
	GetNode(peerID nodeid.ID, cb Callback)
}

// InMemory is a Client backed by a static map, used in tests and small
// demos in place of the storage/directory service named out of scope in
// spec §1.
type InMemory struct {
	mu    sync.RWMutex
	byKey map[string]string
}

// NewInMemory builds an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{byKey: make(map[string]string)}
}

// Put registers a peer's URI. Safe to call concurrently with GetNode.
func (d *InMemory) Put(peerID nodeid.ID, uri string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[peerID.String()] = uri
}

// Remove forgets a peer's URI.
func (d *InMemory) Remove(peerID nodeid.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byKey, peerID.String())
}

// GetNode resolves peerID synchronously but still calls cb, so callers
// written against the asynchronous contract work unmodified against a
// real, async-resolving directory service.
func (d *InMemory) GetNode(peerID nodeid.ID, cb Callback) {
	d.mu.RLock()
	uri, ok := d.byKey[peerID.String()]
	d.mu.RUnlock()
	cb(peerID, uri, ok)
}
