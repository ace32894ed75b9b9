// Package wstransport is a concrete Transport Plugin (spec §4.1, §6) over
// WebSocket, using gorilla/websocket for framing in place of the manual
// length-prefixing plugins/tcptransport needs — a websocket connection
// already frames each message, so one handshake message carries the
// NodeIdentity exchange and every message after that carries one
// codec-encoded envelope.
package wstransport

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

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
	registry.RegisterPluginConstructor("wstransport", Register)
}

// Register is the plugin entry point named in spec §6.
func Register(local nodeid.ID, callbacks transport.Callbacks, schemes, requestedFormats []string) (map[string]transport.Factory, error) {
	if schemes != nil && !contains(schemes, "ws") {
		return map[string]transport.Factory{}, nil
	}
	return map[string]transport.Factory{
		"ws": &Factory{local: local, callbacks: callbacks, codec: pickCodec(requestedFormats)},
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Factory is the ws scheme's transport.Factory.
type Factory struct {
	local     nodeid.ID
	callbacks transport.Callbacks
	codec     formats.Codec

	mu      sync.Mutex
	servers []*http.Server
}

// Listen starts an HTTP server on uri's address and upgrades every
// request to a websocket connection (spec §4.2).
func (f *Factory) Listen(u string) error {
	addr := addrOf(u)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go f.handle(conn, u, false)
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	f.mu.Lock()
	f.servers = append(f.servers, srv)
	f.mu.Unlock()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go srv.Serve(ln)
	return nil
}

// Join dials uri as a websocket client (spec §4.4).
func (f *Factory) Join(u string) error {
	addr := addrOf(u)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr, nil)
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

func (f *Factory) handle(conn *websocket.Conn, u string, isOriginator bool) {
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

func (f *Factory) handshake(conn *websocket.Conn) (nodeid.ID, error) {
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte(f.local)); err != nil {
		return nil, err
	}
	_, peerBytes, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return nodeid.New(peerBytes), nil
}

func (f *Factory) readLoop(ch *channel, peerID nodeid.ID) {
	for {
		_, payload, err := ch.conn.ReadMessage()
		if err != nil {
			if f.callbacks.PeerDisconnected != nil {
				f.callbacks.PeerDisconnected(ch, peerID, err.Error())
			}
			return
		}
		env, err := f.codec.Decode(payload)
		if err != nil {
			continue
		}
		if f.callbacks.DataReceived != nil {
			f.callbacks.DataReceived(env)
		}
	}
}

// channel is the ws scheme's transport.Channel.
type channel struct {
	mu    sync.Mutex
	conn  *websocket.Conn
	codec formats.Codec
}

func (c *channel) Send(msg transport.Message) error {
	env, ok := msg.(envelope.Envelope)
	if !ok {
		return fmt.Errorf("wstransport: Send expects envelope.Envelope, got %T", msg)
	}
	data, err := c.codec.Encode(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (c *channel) Disconnect() error {
	return c.conn.Close()
}
