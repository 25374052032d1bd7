// Package registry holds Mission Control's process-wide mutable state: the
// in-memory mission table and the client -> mission-id subscription index.
// Both are guarded by a single mutex, mirroring the guarded-map discipline
// the rest of this codebase uses for shared in-process state.
package registry

import (
	"sync"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

// Registry is the in-memory mission table plus the per-client subscription
// index. All access goes through its methods; callers never see the
// underlying maps.
type Registry struct {
	mu            sync.RWMutex
	missions      map[string]*model.Mission
	subscriptions map[string]map[string]bool // clientId -> set of missionId
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		missions:      make(map[string]*model.Mission),
		subscriptions: make(map[string]map[string]bool),
	}
}

// Insert adds or replaces a mission in the table.
func (r *Registry) Insert(m *model.Mission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missions[m.ID] = m
}

// Get returns a clone of the mission, or NotFound.
func (r *Registry) Get(missionID string) (*model.Mission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.missions[missionID]
	if !ok {
		return nil, errors.NotFound("mission", missionID)
	}
	return m.Clone(), nil
}

// Mutate applies fn to the live mission under the write lock and returns a
// clone of the result. fn must not retain the pointer it is given.
func (r *Registry) Mutate(missionID string, fn func(m *model.Mission) error) (*model.Mission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.missions[missionID]
	if !ok {
		return nil, errors.NotFound("mission", missionID)
	}
	if err := fn(m); err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Remove deletes a mission and scrubs it from every client's subscription set.
func (r *Registry) Remove(missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.missions, missionID)
	for clientID, missions := range r.subscriptions {
		if missions[missionID] {
			delete(missions, missionID)
			if len(missions) == 0 {
				delete(r.subscriptions, clientID)
			}
		}
	}
}

// ListByUser returns summaries of every in-memory mission owned by userID.
func (r *Registry) ListByUser(userID string) []model.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Summary
	for _, m := range r.missions {
		if m.UserID == userID {
			out = append(out, m.ToSummary())
		}
	}
	return out
}

// All returns a clone of every in-memory mission, for the telemetry tick.
func (r *Registry) All() []*model.Mission {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Mission, 0, len(r.missions))
	for _, m := range r.missions {
		out = append(out, m.Clone())
	}
	return out
}

// Subscribe registers clientID's interest in missionID. Re-subscribing an
// already-subscribed client is a no-op.
func (r *Registry) Subscribe(clientID, missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscriptions[clientID]
	if !ok {
		set = make(map[string]bool)
		r.subscriptions[clientID] = set
	}
	set[missionID] = true
}

// Unsubscribe removes missionID from clientID's set, dropping the client
// entry entirely once its last mission is removed.
func (r *Registry) Unsubscribe(clientID, missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subscriptions[clientID]
	if !ok {
		return
	}
	delete(set, missionID)
	if len(set) == 0 {
		delete(r.subscriptions, clientID)
	}
}

// ClientsFor returns the ids of every client subscribed to missionID.
func (r *Registry) ClientsFor(missionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for clientID, set := range r.subscriptions {
		if set[missionID] {
			out = append(out, clientID)
		}
	}
	return out
}

// Subscriptions returns a snapshot of every (clientId, missionId) pair in
// the index, the shape the telemetry tick iterates over.
func (r *Registry) Subscriptions() []Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Pair
	for clientID, set := range r.subscriptions {
		for missionID := range set {
			out = append(out, Pair{ClientID: clientID, MissionID: missionID})
		}
	}
	return out
}

// IsEmpty reports whether the subscription index has no entries at all.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions) == 0
}

// Pair is one (clientId, missionId) subscription edge.
type Pair struct {
	ClientID  string
	MissionID string
}
