// Package transport abstracts the relay channel carrying presence and
// message traffic between sessions.
//
// A Bus is a named-event publish/subscribe surface plus a best-effort direct
// link addressed by an opaque peer-link id. Delivery is fire-and-forget: no
// acknowledgement, no ordering across event names, and no FIFO guarantee for
// the same event name across different senders. Retry and reconnection policy
// belong to the caller, not this layer.
//
// Two implementations are provided: MemoryBus, an in-process relay used by
// tests and demos, and WebSocketBus, the client for a hosted relay.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Relay event vocabulary.
const (
	// EventUserConnected announces that a new peer-link became reachable.
	// Payload: PeerLinkPayload.
	EventUserConnected = "user_connected"
	// EventPresenceAnnouncement carries the sender's identity to a newly
	// seen peer-link. Payload: directory.Identity.
	EventPresenceAnnouncement = "presence_announcement"
	// EventPresenceResponse answers an announcement with the local
	// identity. Payload: directory.Identity.
	EventPresenceResponse = "presence_response"
	// EventMessageReceived delivers a chat message. Payload: messaging.Message.
	EventMessageReceived = "messageReceived"
	// EventGroupSync replicates a newly created group to its members.
	// Payload: group.Group.
	EventGroupSync = "group_sync"
	// EventPeerLinkSync registers the client's peer-link id with the relay
	// right after connecting.
	EventPeerLinkSync = "peer_link_sync"
)

// ErrUnreachable indicates the relay could not be reached. Fatal to session
// start; the bus does not retry on its own.
var ErrUnreachable = errors.New("relay unreachable")

// PeerLinkPayload is the body of a user_connected event.
type PeerLinkPayload struct {
	PeerLinkID string `json:"peerLinkId"`
}

// Envelope is the wire frame for every relay event. An empty Target means
// relay-scope broadcast; otherwise the relay delivers to that peer-link only.
type Envelope struct {
	Event   string          `json:"event"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes the raw payload of one received event.
type Handler func(payload []byte)

// Bus is the relay connection used by the sync coordinator. Implementations
// must invoke every handler registered for an event, in registration order,
// for every received occurrence (multicast dispatch, not a consumer queue).
type Bus interface {
	// Connect establishes the relay session for the given identity id and
	// returns the local peer-link id. Reports ErrUnreachable when the
	// relay is down.
	Connect(ctx context.Context, identityID string) (string, error)

	// On registers a handler for the named event. Registration is expected
	// to happen once, before traffic flows.
	On(event string, handler Handler)

	// Emit publishes payload under the named event. An empty target
	// broadcasts to the relay's default scope. Fire-and-forget.
	Emit(event string, payload any, target string) error

	// Disconnect releases the relay session. Idempotent.
	Disconnect() error

	// PeerLinkID returns the id assigned at Connect, or "" before then.
	PeerLinkID() string
}

// NewPeerLinkID derives a session-scoped peer-link id for an identity. The
// random suffix keeps reconnects of the same identity distinguishable.
func NewPeerLinkID(identityID string) string {
	return fmt.Sprintf("nx-%s-%s", identityID, uuid.NewString()[:4])
}

// marshalEnvelope builds the wire frame for an emit.
func marshalEnvelope(event string, payload any, target string) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("emit %s: %w", event, err)
	}
	return Envelope{Event: event, Target: target, Payload: body}, nil
}
