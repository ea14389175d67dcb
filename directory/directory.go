package directory

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// State tracks how far the presence handshake with a peer has progressed.
type State uint8

const (
	// StateUnknown means the peer has never been seen.
	StateUnknown State = iota
	// StateAnnounced means the peer announced itself and we replied.
	StateAnnounced
	// StateMutual means both sides have seen each other.
	StateMutual
)

// String implements fmt.Stringer for log output.
func (s State) String() string {
	switch s {
	case StateAnnounced:
		return "announced"
	case StateMutual:
		return "mutual"
	default:
		return "unknown"
	}
}

// Entry is the denormalized directory view: the identity plus its presence
// state. PeerLinkID inside the identity is what transport sends target.
type Entry struct {
	Identity Identity
	State    State
}

// Directory holds every known remote identity, keyed by Identity.ID. Peer
// link ids are session-scoped and may repeat across reconnects, so they are
// never used as keys. Entries are never evicted; there is deliberately no
// presence timeout in this layer.
//
// Safe for concurrent use.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{entries: make(map[string]*Entry)}
}

// Add inserts an identity at the given state and reports whether it was
// absent before. Re-adding a known identity is a no-op except that the state
// may move forward (Announced to Mutual); it never regresses. Callers reply
// to a presence announcement only when Add reports an insert, which is what
// stops the announce/response ping-pong.
func (d *Directory) Add(identity Identity, state State) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.entries[identity.ID]; ok {
		if state > existing.State {
			logrus.WithFields(logrus.Fields{
				"function":  "Add",
				"identity":  identity.ID,
				"old_state": existing.State,
				"new_state": state,
			}).Debug("Upgrading directory entry state")
			existing.State = state
		}
		return false
	}

	d.entries[identity.ID] = &Entry{Identity: identity, State: state}
	d.order = append(d.order, identity.ID)

	logrus.WithFields(logrus.Fields{
		"function":     "Add",
		"identity":     identity.ID,
		"state":        state,
		"peer_link_id": identity.PeerLinkID,
	}).Info("Inserted directory entry")

	return true
}

// Resolve returns the entry for an identity id, if known.
func (d *Directory) Resolve(identityID string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[identityID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// PeerLink returns the peer-link id for an identity, if one is on file. The
// calling layer uses this to target call signaling.
func (d *Directory) PeerLink(identityID string) (string, bool) {
	e, ok := d.Resolve(identityID)
	if !ok || e.Identity.PeerLinkID == "" {
		return "", false
	}
	return e.Identity.PeerLinkID, true
}

// List returns every entry in insertion order.
func (d *Directory) List() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.entries[id])
	}
	return out
}

// Len reports the number of known identities.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
