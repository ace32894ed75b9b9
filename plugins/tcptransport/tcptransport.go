// Package tcptransport is a concrete Transport Plugin (spec §4.1, §6)
// over raw TCP. Every connection opens with a one-frame handshake
// exchanging each side's NodeIdentity, modeled on the teacher's
// HandshakeInitiate/HandshakeAccept pair in cbor/io.go, after which every
// frame on the wire is a codec-encoded message envelope.
package tcptransport

import (
	"fmt"
	"net"
	"sync"

	"github.com/nodebridge/linkmesh/formats"
	cborformat "github.com/nodebridge/linkmesh/formats/cbor"
	jsonformat "github.com/nodebridge/linkmesh/formats/json"
	"github.com/nodebridge/linkmesh/internal/envelope"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/registry"
	"github.com/nodebridge/linkmesh/internal/transport"
	"github.com/nodebridge/linkmesh/internal/uri"
)

func init() {
	registry.RegisterPluginConstructor("tcptransport", Register)
}

// Register is the plugin entry point named in spec §6, "each plugin
// module exposes register(...)".
func Register(local nodeid.ID, callbacks transport.Callbacks, schemes, requestedFormats []string) (map[string]transport.Factory, error) {
	if schemes != nil && !contains(schemes, "tcp") {
		return map[string]transport.Factory{}, nil
	}
	return map[string]transport.Factory{
		"tcp": &Factory{local: local, callbacks: callbacks, codec: pickCodec(requestedFormats)},
	}, nil
}

func pickCodec(requested []string) formats.Codec {
	for _, name := range requested {
		switch name {
		case "cbor":
			return cborformat.New()
		case "json":
			return jsonformat.New()
		}
	}
	return jsonformat.New()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Factory is the tcp scheme's transport.Factory.
type Factory struct {
	local     nodeid.ID
	callbacks transport.Callbacks
	codec     formats.Codec

	mu        sync.Mutex
	listeners []net.Listener
}

// Listen accepts inbound tcp connections on uri's address part (spec §4.2).
// An address of "default" or empty binds to an OS-assigned port.
func (f *Factory) Listen(u string) error {
	addr := addrOf(u)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.listeners = append(f.listeners, ln)
	f.mu.Unlock()

	go f.acceptLoop(ln, u)
	return nil
}

func (f *Factory) acceptLoop(ln net.Listener, u string) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn, u, false)
	}
}

// Join dials out to uri's address, resolving through JoinFinished on
// success (a non-nil Channel) or failure (spec §4.4).
func (f *Factory) Join(u string) error {
	addr := addrOf(u)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		if f.callbacks.JoinFinished != nil {
			f.callbacks.JoinFinished(nil, nil, u, true)
		}
		return err
	}
	go f.handle(conn, u, true)
	return nil
}

func addrOf(u string) string {
	_, addr, ok := uri.SplitScheme(u)
	if !ok {
		addr = u
	}
	if addr == "default" || addr == "" {
		addr = ":0"
	}
	return addr
}

func (f *Factory) handle(conn net.Conn, u string, isOriginator bool) {
	peerID, err := f.handshake(conn)
	if err != nil {
		_ = conn.Close()
		if f.callbacks.JoinFinished != nil {
			f.callbacks.JoinFinished(nil, nil, u, isOriginator)
		}
		return
	}

	ch := &channel{conn: conn, codec: f.codec}
	if f.callbacks.JoinFinished != nil {
		f.callbacks.JoinFinished(ch, peerID, u, isOriginator)
	}

	f.readLoop(ch, peerID)
}

// handshake exchanges raw NodeIdentity bytes over a single frame each
// way, the wire's only untyped frame — everything after is codec-encoded.
func (f *Factory) handshake(conn net.Conn) (nodeid.ID, error) {
	if err := writeFrame(conn, []byte(f.local)); err != nil {
		return nil, err
	}
	peerBytes, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	return nodeid.New(peerBytes), nil
}

func (f *Factory) readLoop(ch *channel, peerID nodeid.ID) {
	for {
		payload, err := readFrame(ch.conn)
		if err != nil {
			if f.callbacks.PeerDisconnected != nil {
				f.callbacks.PeerDisconnected(ch, peerID, err.Error())
			}
			return
		}
		env, err := f.codec.Decode(payload)
		if err != nil {
			// A malformed frame is dropped; the connection itself is fine.
			continue
		}
		if f.callbacks.DataReceived != nil {
			f.callbacks.DataReceived(env)
		}
	}
}

// channel is the tcp scheme's transport.Channel.
type channel struct {
	mu    sync.Mutex
	conn  net.Conn
	codec formats.Codec
}

func (c *channel) Send(msg transport.Message) error {
	env, ok := msg.(envelope.Envelope)
	if !ok {
		return fmt.Errorf("tcptransport: Send expects envelope.Envelope, got %T", msg)
	}
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeFrame(c.conn, data)
}

func (c *channel) Disconnect() error {
	return c.conn.Close()
}
