// Package transport defines the external contracts named in spec §3 and
// §6: the capability sets a Transport Plugin exposes (Factory, Channel)
// and the callbacks the Link Manager injects into every plugin at
// registration time.
package transport

import "github.com/nodebridge/linkmesh/internal/nodeid"

// Message is the minimal shape a transport plugin needs to move across the
// wire: opaque bytes, or a structured value a format codec already decoded.
// The plugin itself decides which representation it uses internally; the
// Link only requires Send to accept whatever the plugin produced on
// receipt (spec §4.3, send "stamps fields, delegates to the channel").
type Message = interface{}

// Channel is the capability set of one live peer connection
// (spec §3, "TransportChannel").
type Channel interface {
	// Send transmits msg over this channel. No backpressure guarantees
	// beyond whatever the concrete channel provides.
	Send(msg Message) error

	// Disconnect tears down the channel. Idempotent.
	Disconnect() error
}

// Factory is the capability set a plugin contributes for one scheme
// (spec §3, "TransportFactory").
type Factory interface {
	// Listen starts accepting inbound connections on uri. Resolution is
	// asynchronous: the plugin reports each accepted peer through
	// Callbacks.JoinFinished with isOriginator=false.
	Listen(uri string) error

	// Join starts an outbound connection attempt to uri. Resolution is
	// asynchronous, through Callbacks.JoinFinished with isOriginator=true,
	// on success (a non-nil Channel) or failure (a nil Channel).
	Join(uri string) error
}

// JoinFinishedFunc is invoked by a plugin when a join attempt resolves,
// successfully or not, whichever side initiated it (spec §4.4).
//
// channel is nil on failure. peerID is the identity of the peer the
// channel now connects to (unknown — zero value — on failure). uri is the
// URI the join was attempted against. isOriginator is true when this node
// requested the join, false when the peer did.
type JoinFinishedFunc func(channel Channel, peerID nodeid.ID, uri string, isOriginator bool)

// DataReceivedFunc is the single process-wide entry point for inbound
// messages across every link (spec §4.5, Receive Dispatcher).
type DataReceivedFunc func(msg Message)

// PeerDisconnectedFunc is invoked by a plugin when a channel it owns goes
// away, for any reason (spec §4.4, peer_disconnected).
type PeerDisconnectedFunc func(channel Channel, peerID nodeid.ID, reason string)

// Callbacks is the set of lifecycle callbacks a plugin is wired to at
// registration time (spec §4.1, §6 "Plugin contract").
type Callbacks struct {
	JoinFinished     JoinFinishedFunc
	DataReceived     DataReceivedFunc
	PeerDisconnected PeerDisconnectedFunc
}

// RegisterFunc is the entry point every plugin module exposes
// (spec §6, "each plugin module exposes register(...)").
//
// local is this node's identity. schemes and formats are the caller's
// desired subsets (the plugin is free to ignore schemes/formats it
// doesn't support). The returned map is scheme -> Factory for every
// scheme this plugin module can serve.
type RegisterFunc func(local nodeid.ID, callbacks Callbacks, schemes []string, formats []string) (map[string]Factory, error)
