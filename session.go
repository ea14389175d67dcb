package nexuschat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nexuschat/crypto"
	"github.com/opd-ai/nexuschat/directory"
	"github.com/opd-ai/nexuschat/group"
	"github.com/opd-ai/nexuschat/messaging"
	"github.com/opd-ai/nexuschat/store"
	"github.com/opd-ai/nexuschat/transport"
)

// ErrNoDisplayName rejects session creation without an identity name.
var ErrNoDisplayName = errors.New("display name is required")

// Session is one running chat session: identity, keys, relay connection,
// peer directory, message pipeline, and durable history, wired together.
// All mutable session state hangs off this value; there are no package
// globals.
type Session struct {
	// identity carries no PeerLinkID of its own; Self() fills it in from
	// the bus, which knows it the moment the relay session exists.
	identity directory.Identity
	keys     *crypto.KeyPair
	bus      transport.Bus
	peers    *directory.Directory
	groups   *group.Manager
	engine   *messaging.Engine

	disconnected sync.Once
}

// New starts a session: generates the session key pair, connects to the
// relay, loads the persisted history, and registers the relay event
// handlers. Key generation and relay connection failures are fatal here;
// everything after session start degrades instead of failing.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if opts.DisplayName == "" {
		return nil, ErrNoDisplayName
	}
	opts.applyLogLevel()

	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	identity := directory.NewIdentity(opts.DisplayName, opts.Email, opts.AvatarRef)
	identity.PublicKey, err = keys.ExportPublicKey()
	if err != nil {
		return nil, fmt.Errorf("export session key: %w", err)
	}

	bus := opts.Bus
	if bus == nil {
		bus = transport.NewWebSocketBus(opts.RelayURL)
	}

	msgColl, err := store.Open[messaging.Message](opts.DataDir, "messages")
	if err != nil {
		return nil, err
	}
	grpColl, err := store.Open[group.Group](opts.DataDir, "groups")
	if err != nil {
		return nil, err
	}

	s := &Session{
		identity: identity,
		keys:     keys,
		bus:      bus,
		peers:    directory.New(),
	}
	s.groups = group.NewManager(identity.ID, s.peers, grpColl, bus)
	s.engine = messaging.NewEngine(identity, keys, s.peers, s.groups, msgColl, bus)

	// Handler registration is static: once, here, and before Connect, so
	// an announcement arriving the instant the relay learns of us is
	// never dropped.
	bus.On(transport.EventUserConnected, s.onUserConnected)
	bus.On(transport.EventPresenceAnnouncement, s.onPresenceAnnouncement)
	bus.On(transport.EventPresenceResponse, s.onPresenceResponse)
	bus.On(transport.EventMessageReceived, s.onMessageReceived)
	bus.On(transport.EventGroupSync, s.onGroupSync)

	peerLink, err := bus.Connect(context.Background(), identity.ID)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "New",
		"identity":     identity.ID,
		"peer_link_id": peerLink,
		"messages":     len(s.engine.Messages()),
		"groups":       len(s.groups.List()),
	}).Info("Session started")

	return s, nil
}

// onUserConnected answers a newly reachable peer-link with a targeted
// presence announcement carrying the local identity and public key.
func (s *Session) onUserConnected(payload []byte) {
	var p transport.PeerLinkPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onUserConnected",
			"error":    err,
		}).Warn("Malformed user_connected payload")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":     "onUserConnected",
		"peer_link_id": p.PeerLinkID,
	}).Debug("Announcing to new peer-link")

	if err := s.bus.Emit(transport.EventPresenceAnnouncement, s.Self(), p.PeerLinkID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onUserConnected",
			"error":    err,
		}).Warn("Announcement emit failed")
	}
}

// onPresenceAnnouncement inserts the announcing identity and replies with a
// presence response, but only on first sight. The reply-once rule is what
// resolves the simultaneous mutual announcement race without ping-pong.
func (s *Session) onPresenceAnnouncement(payload []byte) {
	remote, ok := s.decodeIdentity(payload, "onPresenceAnnouncement")
	if !ok {
		return
	}

	if !s.peers.Add(remote, directory.StateAnnounced) {
		return
	}

	if err := s.bus.Emit(transport.EventPresenceResponse, s.Self(), remote.PeerLinkID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onPresenceAnnouncement",
			"remote":   remote.ID,
			"error":    err,
		}).Warn("Presence response emit failed")
	}
}

// onPresenceResponse inserts the responding identity and never replies.
func (s *Session) onPresenceResponse(payload []byte) {
	remote, ok := s.decodeIdentity(payload, "onPresenceResponse")
	if !ok {
		return
	}
	s.peers.Add(remote, directory.StateMutual)
}

// onMessageReceived feeds an inbound message through the engine.
func (s *Session) onMessageReceived(payload []byte) {
	var msg messaging.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onMessageReceived",
			"error":    err,
		}).Warn("Malformed message payload")
		return
	}
	s.engine.Receive(msg)
}

// onGroupSync accepts a group replicated by its creator.
func (s *Session) onGroupSync(payload []byte) {
	var g group.Group
	if err := json.Unmarshal(payload, &g); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onGroupSync",
			"error":    err,
		}).Warn("Malformed group_sync payload")
		return
	}
	s.groups.SyncIn(g)
}

// decodeIdentity parses a presence payload, dropping self-echoes that a
// relay may produce for broadcast events.
func (s *Session) decodeIdentity(payload []byte, function string) (directory.Identity, bool) {
	var remote directory.Identity
	if err := json.Unmarshal(payload, &remote); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": function,
			"error":    err,
		}).Warn("Malformed presence payload")
		return directory.Identity{}, false
	}
	if remote.ID == "" || remote.ID == s.identity.ID {
		return directory.Identity{}, false
	}
	return remote, true
}

// SendDirect sends a 1:1 message to an identity id.
func (s *Session) SendDirect(text, recipientID string) (*messaging.Message, error) {
	return s.engine.SendDirect(text, recipientID)
}

// SendGroup sends a message to every reachable member of a group and
// refreshes the group's conversation summary.
func (s *Session) SendGroup(text, groupID string) (*messaging.Message, error) {
	msg, err := s.engine.SendGroup(text, groupID)
	if err != nil {
		return nil, err
	}
	s.groups.SetLastMessage(groupID, fmt.Sprintf("%s: %s", s.identity.ID, text))
	return msg, nil
}

// CreateGroup creates a group owned by this identity and replicates it to
// the invitees.
func (s *Session) CreateGroup(name string, memberIDs []string) (group.Group, error) {
	return s.groups.Create(name, memberIDs)
}

// Self returns the local identity as announced to peers, including the
// session peer-link id.
func (s *Session) Self() directory.Identity {
	id := s.identity
	id.PeerLinkID = s.bus.PeerLinkID()
	return id
}

// PeerLinkID returns the session's own relay address.
func (s *Session) PeerLinkID() string {
	return s.bus.PeerLinkID()
}

// Contacts returns every known peer in discovery order.
func (s *Session) Contacts() []directory.Entry {
	return s.peers.List()
}

// ResolvePeerLink returns the peer-link id for an identity, for collaborators
// such as call signaling that target transport sends themselves.
func (s *Session) ResolvePeerLink(identityID string) (string, bool) {
	return s.peers.PeerLink(identityID)
}

// Messages returns the session message history in arrival order.
func (s *Session) Messages() []messaging.Message {
	return s.engine.Messages()
}

// Groups returns every group this session knows of.
func (s *Session) Groups() []group.Group {
	return s.groups.List()
}

// Disconnect releases the relay connection. Idempotent; operations already
// in flight complete and their results are discarded.
func (s *Session) Disconnect() error {
	var err error
	s.disconnected.Do(func() {
		err = s.bus.Disconnect()
		logrus.WithFields(logrus.Fields{
			"function": "Disconnect",
			"identity": s.identity.ID,
		}).Info("Session disconnected")
	})
	return err
}
