// Package humaninput correlates a suspended step's request for a human
// answer with the eventual response, adapting the consume-and-delete
// correlation table idiom used elsewhere in this codebase for queued,
// reply-addressed work.
package humaninput

import (
	"sync"

	"github.com/cpravetz/stage7-sub007/internal/common/errors"
	"github.com/cpravetz/stage7-sub007/internal/mission/model"
)

// Router is the pending-input correlation table: at most one entry per
// requestId, created on registration and removed on response or abort.
type Router struct {
	mu      sync.RWMutex
	pending map[string]*model.PendingInput
}

// New creates an empty Router.
func New() *Router {
	return &Router{pending: make(map[string]*model.PendingInput)}
}

// Register records a new pending input. A second Register for the same
// requestId overwrites the first, since requestId is unique by contract.
func (r *Router) Register(p model.PendingInput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.pending[p.RequestID] = &cp
}

// Take looks up and removes the pending entry for requestId, returning
// NotFound if absent. This is the single consume point for a response.
func (r *Router) Take(requestID string) (*model.PendingInput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[requestID]
	if !ok {
		return nil, errors.NotFound("pending input", requestID)
	}
	delete(r.pending, requestID)
	return p, nil
}

// CancelForMission removes every pending entry belonging to missionID,
// used when a mission is aborted while a step is still waiting on input.
func (r *Router) CancelForMission(missionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.pending {
		if p.MissionID == missionID {
			delete(r.pending, id)
		}
	}
}

// Status reports whether requestId currently has a pending entry, without
// consuming it.
func (r *Router) Status(requestID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[requestID]
	return ok
}
