// Package link implements one active peer connection (spec §3 "Link",
// §4.3). It is a direct translation of calvin_network.py's CalvinLink,
// with the reply registry reshaped around Go closures instead of Python
// callables, and tunnels indexed by tunnel-id the way the original
// comments describe but never actually implement as a lookup.
package link

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nodebridge/linkmesh/internal/envelope"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/transport"
)

// ReplyFunc is invoked exactly once with the reply's Value when a reply
// arrives for the request that registered it (spec §3, "pending_replies").
type ReplyFunc func(value interface{})

// Tunnel is indexed by this Link for lookup only; it is created and owned
// by higher layers (spec §3, "tunnels").
type Tunnel interface {
	TunnelType() string
}

// Link owns exactly one transport.Channel to a single peer (spec §3, §4.3).
type Link struct {
	mu sync.Mutex

	localID nodeid.ID
	peerID  nodeid.ID
	channel transport.Channel

	pendingReplies map[string]ReplyFunc
	tunnels        map[string]Tunnel
}

// New creates a fresh Link, optionally migrating pendingReplies and
// tunnels from a replaced Link (spec §3 invariant: "Replacing a Link ...
// migrates pending_replies and tunnels ... then closes the old channel").
// old may be nil.
func New(localID, peerID nodeid.ID, channel transport.Channel, old *Link) *Link {
	l := &Link{
		localID:        localID,
		peerID:         peerID,
		channel:        channel,
		pendingReplies: make(map[string]ReplyFunc),
		tunnels:        make(map[string]Tunnel),
	}
	if old != nil {
		old.mu.Lock()
		l.pendingReplies = old.pendingReplies
		l.tunnels = old.tunnels
		old.mu.Unlock()
		old.Close()
	}
	return l
}

// PeerID is immutable for the lifetime of the Link (spec §3 invariant).
func (l *Link) PeerID() nodeid.ID {
	return l.peerID
}

// LocalID returns the local node identity this Link was created with.
func (l *Link) LocalID() nodeid.ID {
	return l.localID
}

// Send stamps from/to and delegates to the channel (spec §4.3, "send").
func (l *Link) Send(body interface{}) error {
	env := envelope.Envelope{
		FromRT: l.localID.String(),
		ToRT:   l.peerID.String(),
		Body:   body,
	}
	return l.channel.Send(env)
}

// SendWithReply allocates a fresh message id, registers cb, stamps the id
// on the message, then sends (spec §4.3, "send_with_reply"). The Link
// never times out the reply; retry is the caller's responsibility.
func (l *Link) SendWithReply(cb ReplyFunc, body interface{}) error {
	msgID := uuid.New().String()

	l.mu.Lock()
	l.pendingReplies[msgID] = cb
	l.mu.Unlock()

	env := envelope.Envelope{
		FromRT:  l.localID.String(),
		ToRT:    l.peerID.String(),
		MsgUUID: msgID,
		Body:    body,
	}
	return l.channel.Send(env)
}

// ReplyHandler looks up env.MsgUUID in pendingReplies, removes it, and
// invokes the continuation exactly once (spec §4.3, "reply_handler").
// Unknown reply ids are silently discarded — a late reply for a link that
// already fired, or for one that's been replaced or closed, must not fault.
// The bool return tells a dispatcher whether env actually correlated to a
// pending request on this Link, as opposed to being a fresh inbound
// request that happens to carry its own msg_uuid.
func (l *Link) ReplyHandler(env envelope.Envelope) bool {
	l.mu.Lock()
	cb, ok := l.pendingReplies[env.MsgUUID]
	if ok {
		delete(l.pendingReplies, env.MsgUUID)
	}
	l.mu.Unlock()

	if !ok {
		return false
	}
	cb(env.Value)
	return true
}

// PutTunnel indexes a tunnel under tunnelID for later lookup by type. This
// is not part of the original spec's operation list but is how higher
// layers populate the map this Link only reads from.
func (l *Link) PutTunnel(tunnelID string, t Tunnel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tunnels[tunnelID] = t
}

// Tunnel returns the first tunnel whose type matches tunnelType, or
// (nil, false) if none match or tunnelType is empty (spec §4.3,
// "get_tunnel": "When tunnel_type is not supplied, returns none").
func (l *Link) Tunnel(tunnelType string) (Tunnel, bool) {
	if tunnelType == "" {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.tunnels {
		if t.TunnelType() == tunnelType {
			return t, true
		}
	}
	return nil, false
}

// Close disconnects the channel. After Close, further sends are undefined
// — the Link is considered discarded (spec §4.3, "close").
func (l *Link) Close() {
	_ = l.channel.Disconnect()
}
