package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryRelay is an in-process relay hub. Buses created from the same relay
// see each other exactly as clients of a hosted relay would: joining
// broadcasts user_connected to everyone already present, targeted emits reach
// one peer-link, broadcasts reach every peer-link except the sender.
//
// Dispatch is synchronous within one emit, which keeps tests deterministic;
// callers must not rely on that, since the websocket bus delivers from a read
// pump instead.
type MemoryRelay struct {
	mu      sync.Mutex
	clients map[string]*MemoryBus
}

// NewMemoryRelay creates an empty in-process relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{clients: make(map[string]*MemoryBus)}
}

// NewBus creates a bus attached to this relay. The bus is inert until
// Connect is called.
func (r *MemoryRelay) NewBus() *MemoryBus {
	return &MemoryBus{relay: r, handlers: make(map[string][]Handler)}
}

// join registers a connected bus and notifies every other client of the new
// peer-link, mirroring the hosted relay's user_connected behavior.
func (r *MemoryRelay) join(b *MemoryBus) {
	r.mu.Lock()
	r.clients[b.peerLinkID] = b
	others := r.snapshotLocked(b.peerLinkID)
	r.mu.Unlock()

	payload, _ := json.Marshal(PeerLinkPayload{PeerLinkID: b.peerLinkID})
	for _, c := range others {
		c.dispatch(Envelope{Event: EventUserConnected, Payload: payload})
	}
}

// leave removes a bus from the relay.
func (r *MemoryRelay) leave(peerLinkID string) {
	r.mu.Lock()
	delete(r.clients, peerLinkID)
	r.mu.Unlock()
}

// route delivers an envelope from the sender to its audience. Unknown
// targets are dropped silently: the relay offers no delivery confirmation.
func (r *MemoryRelay) route(from string, env Envelope) {
	r.mu.Lock()
	var recipients []*MemoryBus
	if env.Target != "" {
		if c, ok := r.clients[env.Target]; ok {
			recipients = []*MemoryBus{c}
		}
	} else {
		recipients = r.snapshotLocked(from)
	}
	r.mu.Unlock()

	for _, c := range recipients {
		c.dispatch(env)
	}
}

// snapshotLocked copies every client except the named one. Caller holds r.mu.
func (r *MemoryRelay) snapshotLocked(except string) []*MemoryBus {
	out := make([]*MemoryBus, 0, len(r.clients))
	for id, c := range r.clients {
		if id != except {
			out = append(out, c)
		}
	}
	return out
}

// MemoryBus is one client endpoint of a MemoryRelay.
type MemoryBus struct {
	relay *MemoryRelay

	mu         sync.RWMutex
	handlers   map[string][]Handler
	peerLinkID string
	connected  bool
}

// Connect joins the relay and returns the session peer-link id.
func (b *MemoryBus) Connect(_ context.Context, identityID string) (string, error) {
	b.mu.Lock()
	if b.connected {
		id := b.peerLinkID
		b.mu.Unlock()
		return id, nil
	}
	b.peerLinkID = NewPeerLinkID(identityID)
	b.connected = true
	id := b.peerLinkID
	b.mu.Unlock()

	b.relay.join(b)

	logrus.WithFields(logrus.Fields{
		"function":     "Connect",
		"peer_link_id": id,
	}).Debug("Joined in-process relay")

	return id, nil
}

// On registers a handler for the named event.
func (b *MemoryBus) On(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Emit publishes payload under the named event, targeted or broadcast.
func (b *MemoryBus) Emit(event string, payload any, target string) error {
	b.mu.RLock()
	connected := b.connected
	from := b.peerLinkID
	b.mu.RUnlock()

	if !connected {
		return fmt.Errorf("emit %s: bus not connected", event)
	}

	env, err := marshalEnvelope(event, payload, target)
	if err != nil {
		return err
	}

	b.relay.route(from, env)
	return nil
}

// Disconnect leaves the relay. Idempotent.
func (b *MemoryBus) Disconnect() error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	id := b.peerLinkID
	b.mu.Unlock()

	b.relay.leave(id)
	return nil
}

// PeerLinkID returns the id assigned at Connect.
func (b *MemoryBus) PeerLinkID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.peerLinkID
}

// dispatch fans one envelope out to every handler registered for its event,
// in registration order.
func (b *MemoryBus) dispatch(env Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[env.Event]))
	copy(handlers, b.handlers[env.Event])
	b.mu.RUnlock()

	for _, h := range handlers {
		h(env.Payload)
	}
}
