package linkmgr_test

import (
	"sync"
	"testing"
	"time"

	"github.com/nodebridge/linkmesh/internal/directory"
	"github.com/nodebridge/linkmesh/internal/linkerr"
	"github.com/nodebridge/linkmesh/internal/linkmgr"
	"github.com/nodebridge/linkmesh/internal/nodeid"
	"github.com/nodebridge/linkmesh/internal/registry"
	"github.com/nodebridge/linkmesh/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeChannel struct {
	mu        sync.Mutex
	sent      []interface{}
	disconnected bool
}

func (c *fakeChannel) Send(msg transport.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

// fakeFactory records Join calls so a test can drive JoinFinished itself,
// standing in for a real transport plugin's asynchronous resolution.
type fakeFactory struct {
	mu      sync.Mutex
	joined  []string
}

func (f *fakeFactory) Listen(string) error { return nil }

func (f *fakeFactory) Join(uri string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, uri)
	return nil
}

func (f *fakeFactory) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joined)
}

func newManager(t *testing.T, local nodeid.ID, factories map[string]transport.Factory) *linkmgr.Manager {
	t.Helper()
	reg := registry.New(nil)
	reg.RegisterStatic(factories)
	dir := directory.NewInMemory()
	return linkmgr.New(local, reg, dir, nil)
}

func TestJoinFreshPathCallsFactoryJoin(t *testing.T) {
	factory := &fakeFactory{}
	m := newManager(t, nodeid.FromString("local"), map[string]transport.Factory{"tcp": factory})

	var got linkmgr.Outcome
	var gotURI string
	done := make(chan struct{})
	m.Join([]string{"tcp:host:9000"}, nil, func(o linkmgr.Outcome, u string, err error) {
		got, gotURI = o, u
		close(done)
	})

	assert.Equal(t, 1, factory.joinCount())

	peer := nodeid.FromString("peer")
	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", true)

	<-done
	assert.Equal(t, linkmgr.ACK, got)
	assert.Equal(t, "tcp:host:9000", gotURI)

	l, ok := m.LinkGet(peer)
	require.True(t, ok)
	assert.True(t, peer.Equal(l.PeerID()))
}

func TestJoinUnknownSchemeNACKsImmediately(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)

	var got linkmgr.Outcome
	m.Join([]string{"nope:host"}, nil, func(o linkmgr.Outcome, u string, err error) {
		got = o
	})
	assert.Equal(t, linkmgr.NACK, got)
}

func TestJoinFinishedFailureNACKsWaiters(t *testing.T) {
	factory := &fakeFactory{}
	m := newManager(t, nodeid.FromString("local"), map[string]transport.Factory{"tcp": factory})

	var got linkmgr.Outcome
	m.Join([]string{"tcp:host:9000"}, nil, func(o linkmgr.Outcome, u string, err error) {
		got = o
	})

	m.JoinFinished(nil, nil, "tcp:host:9000", true)
	assert.Equal(t, linkmgr.NACK, got)
}

func TestJoinDuplicateWaitsInsteadOfRejoining(t *testing.T) {
	factory := &fakeFactory{}
	m := newManager(t, nodeid.FromString("local"), map[string]transport.Factory{"tcp": factory})

	var calls int
	cb := func(o linkmgr.Outcome, u string, err error) { calls++ }

	m.Join([]string{"tcp:host:9000"}, nil, cb)
	m.Join([]string{"tcp:host:9000"}, nil, cb)
	assert.Equal(t, 1, factory.joinCount(), "second join to the same uri must not start a second attempt")

	m.JoinFinished(&fakeChannel{}, nodeid.FromString("peer"), "tcp:host:9000", true)
	assert.Equal(t, 2, calls, "both waiters on the uri must be fired")
}

func TestJoinFinishedFansOutByPeerAndByURI(t *testing.T) {
	factory := &fakeFactory{}
	m := newManager(t, nodeid.FromString("local"), map[string]transport.Factory{"tcp": factory})
	peer := nodeid.FromString("peer")

	var viaPeer, viaURI bool
	m.Join([]string{"tcp:host:9000"}, []nodeid.ID{peer}, func(o linkmgr.Outcome, u string, err error) {
		viaPeer = o == linkmgr.ACK
	})
	// A second, concurrent request for the very same uri with no known peer id.
	m.Join([]string{"tcp:host:9000"}, nil, func(o linkmgr.Outcome, u string, err error) {
		viaURI = o == linkmgr.ACK
	})
	assert.Equal(t, 1, factory.joinCount())

	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", true)
	assert.True(t, viaPeer)
	assert.True(t, viaURI)
}

func TestJoinFinishedTieBreakOriginatorLocalIDWins(t *testing.T) {
	m := newManager(t, nodeid.FromString("zzz"), nil) // "zzz" > "peer"
	peer := nodeid.FromString("peer")

	first := &fakeChannel{}
	second := &fakeChannel{}

	m.JoinFinished(first, peer, "tcp:host:9000", true)
	m.JoinFinished(second, peer, "tcp:host:9000", true)

	l, ok := m.LinkGet(peer)
	require.True(t, ok)
	_ = l
	assert.True(t, second.disconnected || first.disconnected)
	// originator + local > peer => replace, so the first channel is the one dropped.
	assert.True(t, first.disconnected)
	assert.False(t, second.disconnected)
}

func TestJoinFinishedTieBreakOriginatorPeerIDWins(t *testing.T) {
	m := newManager(t, nodeid.FromString("aaa"), nil) // "aaa" < "peer"
	peer := nodeid.FromString("peer")

	first := &fakeChannel{}
	second := &fakeChannel{}

	m.JoinFinished(first, peer, "tcp:host:9000", true)
	m.JoinFinished(second, peer, "tcp:host:9000", true)

	// originator + local < peer => drop, so the second (later) channel is dropped.
	assert.False(t, first.disconnected)
	assert.True(t, second.disconnected)
}

func TestPeerDisconnectedRemovesLink(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	peer := nodeid.FromString("peer")
	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", false)

	_, ok := m.LinkGet(peer)
	require.True(t, ok)

	m.PeerDisconnected(nil, peer, "reset by peer")
	_, ok = m.LinkGet(peer)
	assert.False(t, ok)
}

func TestLinkCheckReturnsLinkNotEstablished(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	err := m.LinkCheck(nodeid.FromString("peer"))
	require.Error(t, err)
	var lerr *linkerr.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, linkerr.KindLinkNotEstablished, lerr.Kind)
}

func TestRequestLinkReturnsTrueWhenAlreadyLinked(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	peer := nodeid.FromString("peer")
	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", false)

	called := m.RequestLink(peer, func(linkmgr.Outcome, string, error) {
		t.Fatal("callback must not fire when already linked")
	})
	assert.True(t, called)
}

func TestRequestLinkUnknownPeerReportsError(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	peer := nodeid.FromString("ghost")

	var gotErr error
	already := m.RequestLink(peer, func(o linkmgr.Outcome, u string, err error) {
		gotErr = err
	})
	assert.False(t, already)
	require.Error(t, gotErr)
}

func TestRequestLinkResolvesThroughDirectory(t *testing.T) {
	factory := &fakeFactory{}
	reg := registry.New(nil)
	reg.RegisterStatic(map[string]transport.Factory{"tcp": factory})
	dir := directory.NewInMemory()
	peer := nodeid.FromString("peer")
	dir.Put(peer, "tcp:host:9000")

	m := linkmgr.New(nodeid.FromString("local"), reg, dir, nil)

	done := make(chan linkmgr.Outcome, 1)
	already := m.RequestLink(peer, func(o linkmgr.Outcome, u string, err error) {
		done <- o
	})
	require.False(t, already)
	require.Equal(t, 1, factory.joinCount())

	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", true)

	select {
	case o := <-done:
		assert.Equal(t, linkmgr.ACK, o)
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestRegisterRecvWiresDataReceived(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	received := make(chan transport.Message, 1)
	m.RegisterRecv(func(msg transport.Message) { received <- msg })

	m.Callbacks().DataReceived("hello")
	select {
	case msg := <-received:
		assert.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("message never reached the registered handler")
	}
}

func TestConcurrentRequestLinkConvergesOnOneLink(t *testing.T) {
	m := newManager(t, nodeid.FromString("local"), nil)
	peer := nodeid.FromString("peer")
	m.JoinFinished(&fakeChannel{}, peer, "tcp:host:9000", false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RequestLink(peer, nil)
			_ = m.LinkCheck(peer)
			_ = m.ListLinks()
		}()
	}
	wg.Wait()

	links := m.ListLinks()
	require.Len(t, links, 1)
	assert.True(t, peer.Equal(links[0]))
}
