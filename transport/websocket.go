package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketBus speaks the relay envelope protocol over a single websocket
// connection. Inbound envelopes are decoded by a read pump goroutine and
// dispatched to registered handlers; writes are serialized by a mutex since
// gorilla/websocket permits one concurrent writer.
type WebSocketBus struct {
	url string

	mu         sync.RWMutex
	handlers   map[string][]Handler
	conn       *websocket.Conn
	peerLinkID string

	writeMu sync.Mutex
	closed  sync.Once
	done    chan struct{}
}

// NewWebSocketBus creates a bus for the relay at url (ws:// or wss://).
func NewWebSocketBus(url string) *WebSocketBus {
	return &WebSocketBus{
		url:      url,
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

// Connect dials the relay, registers the session peer-link id, and starts
// the read pump. A dial failure is ErrUnreachable and fatal to session
// start; reconnection policy lives with the caller.
func (b *WebSocketBus) Connect(ctx context.Context, identityID string) (string, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Connect",
			"url":      b.url,
			"error":    err,
		}).Error("Relay dial failed")
		return "", fmt.Errorf("%w: dial %s: %v", ErrUnreachable, b.url, err)
	}

	peerLinkID := NewPeerLinkID(identityID)

	b.mu.Lock()
	b.conn = conn
	b.peerLinkID = peerLinkID
	b.mu.Unlock()

	if err := b.Emit(EventPeerLinkSync, PeerLinkPayload{PeerLinkID: peerLinkID}, ""); err != nil {
		conn.Close()
		return "", fmt.Errorf("%w: register peer link: %v", ErrUnreachable, err)
	}

	go b.readPump(conn)

	logrus.WithFields(logrus.Fields{
		"function":     "Connect",
		"url":          b.url,
		"peer_link_id": peerLinkID,
	}).Info("Connected to relay")

	return peerLinkID, nil
}

// On registers a handler for the named event.
func (b *WebSocketBus) On(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Emit writes one envelope to the relay. Fire-and-forget: a write error is
// returned but the relay gives no delivery confirmation either way.
func (b *WebSocketBus) Emit(event string, payload any, target string) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("emit %s: bus not connected", event)
	}

	env, err := marshalEnvelope(event, payload, target)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Disconnect closes the relay connection. Idempotent; the read pump exits on
// the closed connection.
func (b *WebSocketBus) Disconnect() error {
	b.closed.Do(func() {
		close(b.done)
		b.mu.Lock()
		conn := b.conn
		b.conn = nil
		b.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}

// PeerLinkID returns the id assigned at Connect.
func (b *WebSocketBus) PeerLinkID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peerLinkID
}

// readPump decodes inbound envelopes and dispatches them until the
// connection drops. Each envelope's handlers run to completion before the
// next envelope is read; envelopes of different event names arriving on
// other sessions interleave arbitrarily.
func (b *WebSocketBus) readPump(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			select {
			case <-b.done:
			default:
				logrus.WithFields(logrus.Fields{
					"function": "readPump",
					"error":    err,
				}).Warn("Relay read loop ended")
			}
			return
		}
		b.dispatch(env)
	}
}

// dispatch fans one envelope out to every handler for its event, in
// registration order.
func (b *WebSocketBus) dispatch(env Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[env.Event]))
	copy(handlers, b.handlers[env.Event])
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "dispatch",
		"event":    env.Event,
		"handlers": len(handlers),
		"bytes":    len(env.Payload),
	}).Debug("Dispatching relay event")

	for _, h := range handlers {
		h(env.Payload)
	}
}
