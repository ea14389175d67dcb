package messaging

import (
	"time"

	"github.com/google/uuid"
)

// DecryptionFailedMarker is shown in place of a direct message body that
// could not be opened with the session key. The envelope is kept either way.
const DecryptionFailedMarker = "[Decryption Failed]"

// Message is one chat message as stored and as carried over the relay.
// Exactly one of ReceiverID and GroupID is set. Encrypted is true iff the
// message is a direct message that was sealed for its recipient; group
// messages are never individually encrypted in this design.
//
// DecryptedText is session-local working state: the sender's original text
// on the way out, the decrypted (or marker) text on the way in. It is
// excluded from JSON so it reaches neither the store nor the wire.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId,omitempty"`
	GroupID    string `json:"groupId,omitempty"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Encrypted  bool   `json:"encrypted"`

	DecryptedText string `json:"-"`
}

// DisplayText returns what the presentation layer should render for this
// message on the local session.
func (m Message) DisplayText() string {
	if m.DecryptedText != "" {
		return m.DecryptedText
	}
	return m.Text
}

// newMessage builds a message skeleton with a fresh globally unique id and
// the current epoch-millisecond timestamp.
func newMessage(senderID string) Message {
	return Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
	}
}
