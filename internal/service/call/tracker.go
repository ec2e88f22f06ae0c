package call

import (
	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
)

// ConnectionTracker tracks per-identity connection state within a call.
// The key set is fixed at creation (participants plus initiator) and never
// changes. It has no lock of its own: it is owned by a Session and only
// touched under the session mutex.
type ConnectionTracker struct {
	states map[uuid.UUID]domain.ConnectionState
	refs   map[uuid.UUID]string
}

// NewConnectionTracker creates a tracker with every identity pending
func NewConnectionTracker(identities []uuid.UUID) *ConnectionTracker {
	states := make(map[uuid.UUID]domain.ConnectionState, len(identities))
	for _, id := range identities {
		states[id] = domain.ConnectionPending
	}
	return &ConnectionTracker{
		states: states,
		refs:   make(map[uuid.UUID]string, len(identities)),
	}
}

// Has reports whether the identity belongs to the tracked set
func (t *ConnectionTracker) Has(identity uuid.UUID) bool {
	_, ok := t.states[identity]
	return ok
}

// State returns the connection state for an identity
func (t *ConnectionTracker) State(identity uuid.UUID) domain.ConnectionState {
	return t.states[identity]
}

// SetConnected marks an identity connected and remembers its connection ref
func (t *ConnectionTracker) SetConnected(identity uuid.UUID, connectionRef string) {
	if _, ok := t.states[identity]; !ok {
		return
	}
	t.states[identity] = domain.ConnectionConnected
	t.refs[identity] = connectionRef
}

// SetDisconnected marks an identity disconnected
func (t *ConnectionTracker) SetDisconnected(identity uuid.UUID) {
	if _, ok := t.states[identity]; !ok {
		return
	}
	t.states[identity] = domain.ConnectionDisconnected
	delete(t.refs, identity)
}

// ConnectionRef returns the connection ref recorded at join time
func (t *ConnectionTracker) ConnectionRef(identity uuid.UUID) string {
	return t.refs[identity]
}

// ConnectedCount returns the number of currently connected identities
func (t *ConnectionTracker) ConnectedCount() int {
	count := 0
	for _, state := range t.states {
		if state == domain.ConnectionConnected {
			count++
		}
	}
	return count
}

// ConnectedIDs returns the set of currently connected identities
func (t *ConnectionTracker) ConnectedIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.states))
	for id, state := range t.states {
		if state == domain.ConnectionConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllConnected reports whether every tracked identity is connected
func (t *ConnectionTracker) AllConnected() bool {
	for _, state := range t.states {
		if state != domain.ConnectionConnected {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the state map
func (t *ConnectionTracker) Snapshot() map[uuid.UUID]domain.ConnectionState {
	snapshot := make(map[uuid.UUID]domain.ConnectionState, len(t.states))
	for id, state := range t.states {
		snapshot[id] = state
	}
	return snapshot
}
