// Package group implements group conversations: creation, replication to
// invited members over the relay, and the local group set.
//
// Membership is fixed at creation (creator plus invitees). There is no
// leave or add-member operation; extending membership would need an explicit
// merge and broadcast rule for deltas, which this design does not define.
package group

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nexuschat/directory"
	"github.com/opd-ai/nexuschat/store"
	"github.com/opd-ai/nexuschat/transport"
)

// ErrEmptyName rejects group creation without a name.
var ErrEmptyName = errors.New("group name cannot be empty")

// Group is one group conversation. Members holds identity ids, creator
// first. Group traffic is not individually encrypted; that is a documented
// property of the design, not an oversight.
type Group struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Members     []string `json:"members"`
	LastMessage string   `json:"lastMessage"`
}

// HasMember reports whether an identity belongs to the group.
func (g Group) HasMember(identityID string) bool {
	for _, m := range g.Members {
		if m == identityID {
			return true
		}
	}
	return false
}

// Manager owns the local group set and keeps it synchronized with the
// durable collection. Safe for concurrent use.
type Manager struct {
	selfID string
	peers  *directory.Directory
	coll   *store.Collection[Group]
	bus    transport.Bus

	mu     sync.RWMutex
	groups map[string]Group
	order  []string
}

// NewManager creates a manager preloaded with every group already in the
// collection, so a restarted session sees its groups before the relay does.
func NewManager(selfID string, peers *directory.Directory, coll *store.Collection[Group], bus transport.Bus) *Manager {
	m := &Manager{
		selfID: selfID,
		peers:  peers,
		coll:   coll,
		bus:    bus,
		groups: make(map[string]Group),
	}

	for _, g := range coll.Find(nil) {
		if _, ok := m.groups[g.ID]; ok {
			continue
		}
		m.groups[g.ID] = g
		m.order = append(m.order, g.ID)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewManager",
		"self":     selfID,
		"groups":   len(m.order),
	}).Debug("Loaded group set")

	return m
}

// Create builds a new group with the local identity as creator, persists it,
// and replicates it to every invitee with a resolvable peer-link. Invitees
// without one simply never learn of the group; delivery is best-effort.
func (m *Manager) Create(name string, memberIDs []string) (Group, error) {
	if name == "" {
		return Group{}, ErrEmptyName
	}

	g := Group{
		ID:          "group-" + uuid.NewString()[:8],
		Name:        name,
		Members:     append([]string{m.selfID}, memberIDs...),
		LastMessage: "Group created",
	}

	m.mu.Lock()
	m.groups[g.ID] = g
	m.order = append(m.order, g.ID)
	m.mu.Unlock()

	if _, err := m.coll.InsertOne(g); err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}

	delivered := 0
	for _, memberID := range memberIDs {
		link, ok := m.peers.PeerLink(memberID)
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "Create",
				"group":    g.ID,
				"member":   memberID,
			}).Debug("No peer-link for invitee, skipping sync")
			continue
		}
		if err := m.bus.Emit(transport.EventGroupSync, g, link); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Create",
				"group":    g.ID,
				"member":   memberID,
				"error":    err,
			}).Warn("Group sync emit failed")
			continue
		}
		delivered++
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Create",
		"group":     g.ID,
		"members":   len(g.Members),
		"delivered": delivered,
	}).Info("Created group")

	return g, nil
}

// SyncIn accepts a group replicated from another session. Inserting an
// already known group is a no-op; the first copy wins. Reports whether the
// group was new.
func (m *Manager) SyncIn(g Group) bool {
	m.mu.Lock()
	if _, ok := m.groups[g.ID]; ok {
		m.mu.Unlock()
		return false
	}
	m.groups[g.ID] = g
	m.order = append(m.order, g.ID)
	m.mu.Unlock()

	if _, err := m.coll.InsertOne(g); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SyncIn",
			"group":    g.ID,
			"error":    err,
		}).Error("Failed to persist synced group")
	}

	logrus.WithFields(logrus.Fields{
		"function": "SyncIn",
		"group":    g.ID,
		"name":     g.Name,
	}).Info("Accepted synced group")

	return true
}

// Get returns a group by id.
func (m *Manager) Get(groupID string) (Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[groupID]
	return g, ok
}

// List returns every known group in insertion order.
func (m *Manager) List() []Group {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Group, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.groups[id])
	}
	return out
}

// SetLastMessage updates the group's conversation summary in memory and in
// the store.
func (m *Manager) SetLastMessage(groupID, summary string) {
	m.mu.Lock()
	g, ok := m.groups[groupID]
	if !ok {
		m.mu.Unlock()
		return
	}
	g.LastMessage = summary
	m.groups[groupID] = g
	m.mu.Unlock()

	if _, err := m.coll.UpdateOne(
		func(g Group) bool { return g.ID == groupID },
		func(g *Group) { g.LastMessage = summary },
	); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetLastMessage",
			"group":    groupID,
			"error":    err,
		}).Error("Failed to persist group summary")
	}
}
