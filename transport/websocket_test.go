package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRelay upgrades one connection and reflects every envelope back to it,
// recording what it saw. Enough relay to exercise the client wire protocol.
type echoRelay struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []Envelope
}

func (r *echoRelay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		r.mu.Lock()
		r.received = append(r.received, env)
		r.mu.Unlock()
		if env.Event != EventPeerLinkSync {
			conn.WriteJSON(env)
		}
	}
}

func (r *echoRelay) envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.received))
	copy(out, r.received)
	return out
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketBusConnectRegistersPeerLink(t *testing.T) {
	relay := &echoRelay{}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	bus := NewWebSocketBus(wsURL(srv))
	link, err := bus.Connect(context.Background(), "alice")
	require.NoError(t, err)
	defer bus.Disconnect()

	assert.Contains(t, link, "nx-alice-")
	assert.Equal(t, link, bus.PeerLinkID())

	require.Eventually(t, func() bool {
		return len(relay.envelopes()) >= 1
	}, time.Second, 10*time.Millisecond)

	first := relay.envelopes()[0]
	assert.Equal(t, EventPeerLinkSync, first.Event)
}

func TestWebSocketBusEmitAndDispatch(t *testing.T) {
	relay := &echoRelay{}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	bus := NewWebSocketBus(wsURL(srv))

	got := make(chan []byte, 1)
	bus.On("evt", func(payload []byte) { got <- payload })

	_, err := bus.Connect(context.Background(), "alice")
	require.NoError(t, err)
	defer bus.Disconnect()

	require.NoError(t, bus.Emit("evt", map[string]string{"body": "hello"}, "nx-bob-1234"))

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"body":"hello"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("echoed envelope never dispatched")
	}

	envs := relay.envelopes()
	require.Len(t, envs, 2)
	assert.Equal(t, "evt", envs[1].Event)
	assert.Equal(t, "nx-bob-1234", envs[1].Target)
}

func TestWebSocketBusConnectUnreachable(t *testing.T) {
	bus := NewWebSocketBus("ws://127.0.0.1:1/relay")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := bus.Connect(ctx, "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestWebSocketBusDisconnectIdempotent(t *testing.T) {
	relay := &echoRelay{}
	srv := httptest.NewServer(relay)
	defer srv.Close()

	bus := NewWebSocketBus(wsURL(srv))
	_, err := bus.Connect(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, bus.Disconnect())
	require.NoError(t, bus.Disconnect())
}
