package messaging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nexuschat/crypto"
	"github.com/opd-ai/nexuschat/directory"
	"github.com/opd-ai/nexuschat/group"
	"github.com/opd-ai/nexuschat/store"
	"github.com/opd-ai/nexuschat/transport"
)

var (
	// ErrUnknownGroup rejects a group send for a group id the local
	// session has never seen.
	ErrUnknownGroup = errors.New("unknown group")
	// ErrNoResolvableTarget marks a direct send whose recipient has no
	// peer-link on file. Recoverable: the message is persisted locally
	// and the error never escapes the engine.
	ErrNoResolvableTarget = errors.New("no resolvable target peer-link")
)

// PeerResolver supplies recipient public keys and peer-links. Implemented by
// directory.Directory; the engine only reads it.
type PeerResolver interface {
	Resolve(identityID string) (directory.Entry, bool)
}

// GroupSource supplies group membership for fan-out and receive filtering.
// Implemented by group.Manager.
type GroupSource interface {
	Get(groupID string) (group.Group, bool)
}

// Engine is the message pipeline for one session. Safe for concurrent use;
// duplicate detection and append are a single compare-and-update cycle under
// the engine mutex, since relay handlers for different event names may
// interleave.
type Engine struct {
	self   directory.Identity
	keys   *crypto.KeyPair
	peers  PeerResolver
	groups GroupSource
	coll   *store.Collection[Message]
	bus    transport.Bus

	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
}

// NewEngine creates an engine preloaded with the persisted message history,
// so deduplication also covers messages stored by a previous session.
func NewEngine(self directory.Identity, keys *crypto.KeyPair, peers PeerResolver, groups GroupSource, coll *store.Collection[Message], bus transport.Bus) *Engine {
	e := &Engine{
		self:   self,
		keys:   keys,
		peers:  peers,
		groups: groups,
		coll:   coll,
		bus:    bus,
		seen:   make(map[string]struct{}),
	}

	for _, m := range coll.Find(nil) {
		if _, dup := e.seen[m.ID]; dup {
			continue
		}
		e.seen[m.ID] = struct{}{}
		e.messages = append(e.messages, m)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewEngine",
		"self":     self.ID,
		"history":  len(e.messages),
	}).Debug("Loaded message history")

	return e
}

// SendDirect sends a 1:1 message. When the recipient's public key is on
// file the text is sealed for them; a malformed key or an unencryptable
// payload degrades to a plaintext send rather than failing the delivery.
// The message is always persisted locally; it additionally goes out over
// the relay when the recipient has a resolvable peer-link.
func (e *Engine) SendDirect(text, recipientID string) (*Message, error) {
	msg := newMessage(e.self.ID)
	msg.ReceiverID = recipientID
	msg.Text = text
	msg.DecryptedText = text

	entry, known := e.peers.Resolve(recipientID)
	if known && entry.Identity.PublicKey != "" {
		if sealed, err := e.seal(text, entry.Identity.PublicKey); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "SendDirect",
				"recipient": recipientID,
				"error":     err,
			}).Warn("Encryption unavailable, sending plaintext")
		} else {
			msg.Text = sealed
			msg.Encrypted = true
		}
	}

	if err := e.accept(msg); err != nil {
		return nil, err
	}

	if err := e.routeDirect(msg, entry, known); err != nil {
		// Local-only persistence; there is no store-and-forward queue
		// waiting for the peer to reappear.
		logrus.WithFields(logrus.Fields{
			"function":  "SendDirect",
			"recipient": recipientID,
			"message":   msg.ID,
			"error":     err,
		}).Debug("Message persisted locally only")
	}

	return &msg, nil
}

// SendGroup sends a plaintext message to every member of the group except
// the sender. Fan-out is per member; members without a resolvable peer-link
// are silently skipped and the relay gives no delivery confirmation, so
// partial delivery is an expected outcome.
func (e *Engine) SendGroup(text, groupID string) (*Message, error) {
	g, ok := e.groups.Get(groupID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, groupID)
	}

	msg := newMessage(e.self.ID)
	msg.GroupID = groupID
	msg.Text = text

	if err := e.accept(msg); err != nil {
		return nil, err
	}

	delivered := 0
	for _, memberID := range g.Members {
		if memberID == e.self.ID {
			continue
		}
		entry, known := e.peers.Resolve(memberID)
		if !known || entry.Identity.PeerLinkID == "" {
			continue
		}
		if err := e.bus.Emit(transport.EventMessageReceived, msg, entry.Identity.PeerLinkID); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SendGroup",
				"group":    groupID,
				"member":   memberID,
				"error":    err,
			}).Warn("Group fan-out emit failed")
			continue
		}
		delivered++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "SendGroup",
		"group":     groupID,
		"message":   msg.ID,
		"members":   len(g.Members),
		"delivered": delivered,
	}).Info("Sent group message")

	return &msg, nil
}

// Receive handles one inbound message from the relay. Messages for other
// audiences are ignored, duplicates are discarded exactly once, and an
// encrypted direct message that fails to decrypt is kept with a marker body.
// No failure inside Receive escapes to the dispatch loop.
func (e *Engine) Receive(msg Message) {
	forMe := msg.ReceiverID == e.self.ID
	forMyGroup := false
	if msg.GroupID != "" {
		_, forMyGroup = e.groups.Get(msg.GroupID)
	}
	if !forMe && !forMyGroup {
		logrus.WithFields(logrus.Fields{
			"function": "Receive",
			"message":  msg.ID,
			"sender":   msg.SenderID,
		}).Debug("Ignoring message for another audience")
		return
	}

	if forMe && msg.Encrypted {
		plaintext, err := e.keys.Decrypt(msg.Text)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Receive",
				"message":  msg.ID,
				"sender":   msg.SenderID,
				"error":    err,
			}).Warn("Could not decrypt message, storing marker")
			msg.DecryptedText = DecryptionFailedMarker
		} else {
			msg.DecryptedText = plaintext
		}
	}

	if err := e.accept(msg); err != nil {
		if errors.Is(err, errDuplicate) {
			logrus.WithFields(logrus.Fields{
				"function": "Receive",
				"message":  msg.ID,
			}).Debug("Discarded duplicate message")
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "Receive",
			"message":  msg.ID,
			"error":    err,
		}).Error("Failed to persist received message")
	}
}

// Messages returns a snapshot of the session's message history in arrival
// order.
func (e *Engine) Messages() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// errDuplicate is internal to accept; duplicates are a normal outcome.
var errDuplicate = errors.New("duplicate message id")

// accept runs the check-for-duplicate-then-append cycle atomically and
// persists the accepted message.
func (e *Engine) accept(msg Message) error {
	e.mu.Lock()
	if _, dup := e.seen[msg.ID]; dup {
		e.mu.Unlock()
		return errDuplicate
	}
	e.seen[msg.ID] = struct{}{}
	e.messages = append(e.messages, msg)
	e.mu.Unlock()

	if _, err := e.coll.InsertOne(msg); err != nil {
		return fmt.Errorf("persist message %s: %w", msg.ID, err)
	}
	return nil
}

// seal encrypts text for an exported public key, translating every failure
// into something the caller can degrade on.
func (e *Engine) seal(text, exportedKey string) (string, error) {
	pub, err := crypto.ImportPublicKey(exportedKey)
	if err != nil {
		return "", err
	}
	return crypto.Encrypt(text, pub)
}

// routeDirect emits a direct message to its recipient's peer-link, or
// reports ErrNoResolvableTarget when none is on file.
func (e *Engine) routeDirect(msg Message, entry directory.Entry, known bool) error {
	if !known || entry.Identity.PeerLinkID == "" {
		return fmt.Errorf("%w: %s", ErrNoResolvableTarget, msg.ReceiverID)
	}
	if err := e.bus.Emit(transport.EventMessageReceived, msg, entry.Identity.PeerLinkID); err != nil {
		return fmt.Errorf("route message %s: %w", msg.ID, err)
	}
	return nil
}
