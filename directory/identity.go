// Package directory implements the peer directory: the local mapping from
// identity id to the peer's public key and session peer-link id, built by the
// presence announce/response protocol.
//
// Example:
//
//	dir := directory.New()
//	if dir.Add(remote, directory.StateAnnounced) {
//	    // first sighting, reply with a presence_response
//	}
//	entry, ok := dir.Resolve("alice")
package directory

import (
	"strings"
)

// Identity describes one participant as distributed over presence events.
// ID is stable across sessions; PublicKey and PeerLinkID are refreshed every
// session because keys are regenerated at login.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	AvatarRef   string `json:"avatarRef"`
	Status      string `json:"status"`
	PublicKey   string `json:"publicKey"`
	PeerLinkID  string `json:"peerLinkId"`
}

// NewIdentity builds a local identity. The id is derived once from the
// normalized display name and never changes afterwards.
func NewIdentity(displayName, email, avatarRef string) Identity {
	return Identity{
		ID:          DeriveID(displayName),
		DisplayName: displayName,
		Email:       email,
		AvatarRef:   avatarRef,
		Status:      "online",
	}
}

// DeriveID normalizes a display name into a stable identity id: lowercased,
// whitespace collapsed to underscores.
func DeriveID(displayName string) string {
	return strings.Join(strings.Fields(strings.ToLower(displayName)), "_")
}
