// Package linkmgr implements the Link Manager (spec §4.4): it indexes
// active links, orchestrates joins, resolves simultaneous-connect races,
// and notifies waiters. This is a direct translation of
// calvin_network.py's CalvinNetwork, with the callback-driven control
// flow reshaped around Go closures collected under the Manager's mutex and
// fired after it's released. That mutex guards the Manager's own indexes
// (links, pending joins, receive handler); it does not cover the Links
// themselves, each of which guards its reply and tunnel maps with its own
// mutex.
package linkmgr

import (
	"sync"

	"github.com/nodebridge/linkmesh/internal/directory"
	"github.com/nodebridge/linkmesh/internal/link"
	"github.com/nodebridge/linkmesh/internal/linkerr"
	"github.com/nodebridge/linkmesh/internal/linklog"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/registry"
	"github.com/nodebridge/linkmesh/internal/transport"
	"github.com/nodebridge/linkmesh/internal/uri"
)

// Outcome is the resolution a join waiter is fired with
// (spec §4.4, "status of ACK | NACK", plus the resolution-error status
// request_link can report when the directory has no URI for the peer).
type Outcome int

const (
	ACK Outcome = iota
	NACK
	ErrorOutcome
)

func (o Outcome) String() string {
	switch o {
	case ACK:
		return "ACK"
	case NACK:
		return "NACK"
	default:
		return "ERROR"
	}
}

// ResultCallback is fired at most once per registration: from
// join_finished resolving the URI it waited on; immediately by join, with
// ACK when the peer is already linked or NACK when the URI's scheme has no
// registered transport; or immediately by request_link when the directory
// can't resolve the peer at all.
type ResultCallback func(outcome Outcome, uri string, err error)

// Manager is the per-node Link Manager singleton (spec §9, "Globals").
type Manager struct {
	mu sync.Mutex

	localID nodeid.ID
	reg     *registry.Registry
	dir     directory.Client
	log     linklog.Logger

	links         map[string]*link.Link     // peerID string -> Link
	pendingByURI  map[string][]ResultCallback
	pendingByPeer map[string]string // peerID string -> uri

	recvHandler transport.DataReceivedFunc
}

// New builds a Manager for localID, using reg to resolve schemes to
// factories and dir to resolve peer identifiers to URIs.
func New(localID nodeid.ID, reg *registry.Registry, dir directory.Client, log linklog.Logger) *Manager {
	if log == nil {
		log = linklog.Noop
	}
	return &Manager{
		localID:       localID,
		reg:           reg,
		dir:           dir,
		log:           log,
		links:         make(map[string]*link.Link),
		pendingByURI:  make(map[string][]ResultCallback),
		pendingByPeer: make(map[string]string),
	}
}

// RegisterRecv registers the single process-wide continuation that
// receives every inbound message across every link (spec §4.5).
func (m *Manager) RegisterRecv(fn transport.DataReceivedFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvHandler = fn
}

// RecvHandler returns the currently registered receive continuation, or
// nil if none has been registered yet. Transport plugins are wired to
// this at registration time (spec §4.1).
func (m *Manager) RecvHandler() transport.DataReceivedFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recvHandler
}

// Callbacks builds the transport.Callbacks a plugin should be registered
// with, wiring JoinFinished and PeerDisconnected back into this Manager
// and DataReceived into whatever RegisterRecv last set.
func (m *Manager) Callbacks() transport.Callbacks {
	return transport.Callbacks{
		JoinFinished: m.JoinFinished,
		DataReceived: func(msg transport.Message) {
			if h := m.RecvHandler(); h != nil {
				h(msg)
			}
		},
		PeerDisconnected: m.PeerDisconnected,
	}
}

// RequestLink requests that a link to peerID be established, the
// preferred way of joining other nodes (spec §4.4, "request_link").
//
// Returns true when a link already exists, in which case cb is never
// called. Returns false when the link needs to be established; cb then
// fires exactly once, asynchronously, with ACK/NACK/ErrorOutcome.
func (m *Manager) RequestLink(peerID nodeid.ID, cb ResultCallback) bool {
	m.mu.Lock()
	_, exists := m.links[peerID.String()]
	m.mu.Unlock()
	if exists {
		return true
	}

	m.dir.GetNode(peerID, func(_ nodeid.ID, resolvedURI string, found bool) {
		if !found {
			if cb != nil {
				cb(ErrorOutcome, "", linkerr.New(linkerr.KindPeerNotFound, "peer id could not be found in storage"))
			}
			return
		}
		m.Join([]string{resolvedURI}, []nodeid.ID{peerID}, cb)
	})
	return false
}

// Join attempts to establish links to the given uris, optionally paired
// with known peer identifiers at the same index, for simultaneous-join
// deduplication (spec §4.4, "join"). cb is invoked once per uri with its
// resolution. peerIDs may be nil; if its length doesn't match uris it is
// treated as if no peer identifiers were supplied, exactly like the
// original's zip-with-None fallback.
func (m *Manager) Join(uris []string, peerIDs []nodeid.ID, cb ResultCallback) {
	usePeerIDs := peerIDs != nil && len(peerIDs) == len(uris)

	var toFire []func()
	m.mu.Lock()
	for i, u := range uris {
		var peerID nodeid.ID
		if usePeerIDs {
			peerID = peerIDs[i]
		}
		m.joinOneLocked(u, peerID, cb, &toFire)
	}
	m.mu.Unlock()

	for _, f := range toFire {
		f()
	}
}

// joinOneLocked implements one (uri, peerID) pair of Join's loop body.
// Caller must hold m.mu. Any callback or transport invocation is deferred
// into toFire so it runs after the lock is released.
func (m *Manager) joinOneLocked(u string, peerID nodeid.ID, cb ResultCallback, toFire *[]func()) {
	havePeer := peerID != nil
	var peerKey string
	if havePeer {
		peerKey = peerID.String()
	}

	_, uriPending := m.pendingByURI[u]
	_, peerPending := m.pendingByPeer[peerKey]
	peerPending = havePeer && peerPending
	_, peerLinked := m.links[peerKey]
	peerLinked = havePeer && peerLinked

	if uriPending || peerPending || peerLinked {
		// Simultaneous join detected (spec §4.4, step 1).
		if peerLinked {
			// Link was already established; call the callback now.
			if cb != nil {
				fireACK(toFire, cb, u)
			}
			return
		}
		// Otherwise also want to be called when the ongoing setup finishes.
		if cb != nil {
			m.pendingByURI[u] = append(m.pendingByURI[u], cb)
		}
		return
	}

	// Fresh path (spec §4.4, step 2).
	scheme, _, ok := uri.SplitScheme(u)
	if !ok || !m.reg.Has(scheme) {
		// Open question resolved in SPEC_FULL.md: surface as an immediate
		// NACK rather than silently dropping the join.
		m.log.Warnf("join requested for uri %q with unregistered scheme, NACKing", u)
		if cb != nil {
			fireNACK(toFire, cb, u)
		}
		return
	}

	if havePeer {
		m.pendingByPeer[peerKey] = u
	}
	if cb != nil {
		m.pendingByURI[u] = []ResultCallback{cb}
	}

	factory, _ := m.reg.Factory(scheme)
	joinURI := u
	*toFire = append(*toFire, func() {
		if err := factory.Join(joinURI); err != nil {
			m.log.Errorf("failed to start join to %s: %v", joinURI, err)
		}
	})
}

// JoinFinished is invoked by a plugin when a join attempt resolves,
// successfully or not, on either side of the attempt (spec §4.4,
// "join_finished").
func (m *Manager) JoinFinished(channel transport.Channel, peerID nodeid.ID, u string, isOriginator bool) {
	var toFire []func()
	m.mu.Lock()

	if channel == nil {
		// Failure branch: a failed join only has waiters if we originated it.
		if cbs, ok := m.pendingByURI[u]; ok {
			delete(m.pendingByURI, u)
			for _, cb := range cbs {
				fireNACK(&toFire, cb, u)
			}
		}
		m.mu.Unlock()
		for _, f := range toFire {
			f()
		}
		return
	}

	m.log.Debugf("join finished for (%v, %s) originator=%v", peerID, u, isOriginator)

	peerKey := peerID.String()
	if existing, ok := m.links[peerKey]; ok {
		// Simultaneous-connect race: both channels exist. Tie-break on the
		// total order of NodeIdentity so both ends converge on the same
		// winner (spec §4.4 table, §9 "Tie-break symmetry").
		if m.shouldReplace(isOriginator, peerID) {
			m.links[peerKey] = link.New(m.localID, peerID, channel, existing)
		} else {
			ch := channel
			*toFire = append(*toFire, func() { _ = ch.Disconnect() })
		}
	} else {
		m.links[peerKey] = link.New(m.localID, peerID, channel, nil)
	}

	m.fanOutLocked(u, peerKey, &toFire)

	m.mu.Unlock()
	for _, f := range toFire {
		f()
	}
}

// shouldReplace applies the tie-break table of spec §4.4: the channel
// whose originator has the larger NodeIdentity survives.
//
//	is_originator | local vs peer | Action
//	true          | local > peer  | Replace
//	true          | local < peer  | Drop
//	false         | local > peer  | Drop
//	false         | local < peer  | Replace
func (m *Manager) shouldReplace(isOriginator bool, peerID nodeid.ID) bool {
	cmp := m.localID.Compare(peerID)
	if isOriginator {
		return cmp > 0
	}
	return cmp < 0
}

// fanOutLocked fires every waiter that should observe this successful
// join (spec §4.4, "Waiter fan-out"). Caller must hold m.mu.
func (m *Manager) fanOutLocked(u string, peerKey string, toFire *[]func()) {
	if waitURI, ok := m.pendingByPeer[peerKey]; ok {
		delete(m.pendingByPeer, peerKey)
		if cbs, ok := m.pendingByURI[waitURI]; ok {
			delete(m.pendingByURI, waitURI)
			for _, cb := range cbs {
				fireACK(toFire, cb, waitURI)
			}
		}
	}

	if cbs, ok := m.pendingByURI[u]; ok {
		delete(m.pendingByURI, u)
		for _, cb := range cbs {
			fireACK(toFire, cb, u)
		}
	}
}

// PeerDisconnected removes the link to peerID, if present. The reason is
// logged but not surfaced upward — higher layers discover loss on their
// next send attempt (spec §4.4, "peer_disconnected").
func (m *Manager) PeerDisconnected(_ transport.Channel, peerID nodeid.ID, reason string) {
	m.mu.Lock()
	_, existed := m.links[peerID.String()]
	delete(m.links, peerID.String())
	m.mu.Unlock()

	if existed {
		m.log.Infof("peer %v disconnected: %s", peerID, reason)
	}
}

// LinkGet returns the Link to peerID, if any (spec §4.4, "link_get").
func (m *Manager) LinkGet(peerID nodeid.ID) (*link.Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[peerID.String()]
	return l, ok
}

// ListLinks returns every peer with an active link (spec §4.4, "list_links").
func (m *Manager) ListLinks() []nodeid.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]nodeid.ID, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l.PeerID())
	}
	return out
}

// LinkCheck raises LinkNotEstablished if peerID has no active link
// (spec §4.4, "link_check").
func (m *Manager) LinkCheck(peerID nodeid.ID) error {
	m.mu.Lock()
	_, ok := m.links[peerID.String()]
	m.mu.Unlock()
	if !ok {
		return linkerr.New(linkerr.KindLinkNotEstablished, "no link established to peer "+peerID.String())
	}
	return nil
}

// PendingJoinCount reports the number of distinct URIs with an
// outstanding join (spec §9, "PendingJoin cleanup": there is no timeout at
// this layer, but an operator can at least observe a stuck join).
func (m *Manager) PendingJoinCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pendingByURI)
}

func fireACK(toFire *[]func(), cb ResultCallback, u string) {
	*toFire = append(*toFire, func() { cb(ACK, u, nil) })
}

func fireNACK(toFire *[]func(), cb ResultCallback, u string) {
	*toFire = append(*toFire, func() { cb(NACK, u, nil) })
}
