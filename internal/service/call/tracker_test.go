package call

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"callbridge-backend/internal/domain"
)

func TestTrackerStartsAllPending(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	tracker := NewConnectionTracker([]uuid.UUID{a, b})

	assert.True(t, tracker.Has(a))
	assert.True(t, tracker.Has(b))
	assert.False(t, tracker.Has(uuid.New()))
	assert.Equal(t, domain.ConnectionPending, tracker.State(a))
	assert.Equal(t, 0, tracker.ConnectedCount())
	assert.False(t, tracker.AllConnected())
}

func TestTrackerConnectDisconnect(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	tracker := NewConnectionTracker([]uuid.UUID{a, b})

	tracker.SetConnected(a, "conn-a")
	assert.Equal(t, domain.ConnectionConnected, tracker.State(a))
	assert.Equal(t, "conn-a", tracker.ConnectionRef(a))
	assert.Equal(t, 1, tracker.ConnectedCount())
	assert.False(t, tracker.AllConnected())

	tracker.SetConnected(b, "conn-b")
	assert.True(t, tracker.AllConnected())
	assert.ElementsMatch(t, []uuid.UUID{a, b}, tracker.ConnectedIDs())

	tracker.SetDisconnected(a)
	assert.Equal(t, domain.ConnectionDisconnected, tracker.State(a))
	assert.Empty(t, tracker.ConnectionRef(a))
	assert.Equal(t, []uuid.UUID{b}, tracker.ConnectedIDs())
}

func TestTrackerIgnoresUnknownIdentity(t *testing.T) {
	a := uuid.New()
	tracker := NewConnectionTracker([]uuid.UUID{a})

	stranger := uuid.New()
	tracker.SetConnected(stranger, "conn-x")
	tracker.SetDisconnected(stranger)

	// The tracked set is fixed at creation.
	assert.False(t, tracker.Has(stranger))
	assert.Equal(t, 0, tracker.ConnectedCount())
}

func TestTrackerSnapshotIsCopy(t *testing.T) {
	a := uuid.New()
	tracker := NewConnectionTracker([]uuid.UUID{a})

	snapshot := tracker.Snapshot()
	snapshot[a] = domain.ConnectionConnected

	assert.Equal(t, domain.ConnectionPending, tracker.State(a))
}
