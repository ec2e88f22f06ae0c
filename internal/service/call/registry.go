package call

import (
	"sync"

	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
	"callbridge-backend/pkg/errors"
)

// Registry owns the set of live call sessions. It is the only structure
// shared across sessions; critical sections are limited to map access.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	recStore RecordingStore
}

// NewRegistry creates an empty session registry
func NewRegistry(recStore RecordingStore) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		recStore: recStore,
	}
}

// Initiate creates a new session in the initiating state
func (r *Registry) Initiate(initiatorID uuid.UUID, participants []uuid.UUID, callType domain.CallType, title string) (*Session, error) {
	if len(participants) == 0 {
		return nil, errors.InvalidArgumentError("At least one participant is required")
	}
	if !callType.Valid() {
		return nil, errors.InvalidArgumentError("Unrecognized call type: " + string(callType))
	}

	session := newSession(initiatorID, participants, callType, title, r.recStore)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	return session, nil
}

// Get returns the live session with the given id
func (r *Registry) Get(callID uuid.UUID) (*Session, error) {
	r.mu.RLock()
	session, ok := r.sessions[callID]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.CallNotFoundError()
	}
	return session, nil
}

// ActiveFor returns every live session the identity is part of
func (r *Registry) ActiveFor(identity uuid.UUID) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*Session
	for _, session := range r.sessions {
		if session.Involves(identity) {
			sessions = append(sessions, session)
		}
	}
	return sessions
}

// Remove retires a session from the live set. Called by the service as part
// of the end transition, after the history record has been built.
func (r *Registry) Remove(callID uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, callID)
	r.mu.Unlock()
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
