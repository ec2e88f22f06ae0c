package call

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbridge-backend/internal/domain"
	"callbridge-backend/internal/repository/memory"
	"callbridge-backend/pkg/errors"
)

func newTestRegistry() *Registry {
	return NewRegistry(memory.NewRecordingStore())
}

func TestRegistryInitiate(t *testing.T) {
	registry := newTestRegistry()
	initiator := uuid.New()
	callee := uuid.New()

	session, err := registry.Initiate(initiator, []uuid.UUID{callee}, domain.CallTypeVideo, "standup")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, registry.Len())

	found, err := registry.Get(session.ID())
	require.NoError(t, err)
	assert.Same(t, session, found)
}

func TestRegistryInitiateValidation(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Initiate(uuid.New(), nil, domain.CallTypeVideo, "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))

	_, err = registry.Initiate(uuid.New(), []uuid.UUID{uuid.New()}, "hologram", "")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidArgument))

	assert.Equal(t, 0, registry.Len())
}

func TestRegistryGetUnknown(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Get(uuid.New())
	assert.True(t, errors.HasCode(err, errors.ErrCodeCallNotFound))
}

func TestRegistryActiveFor(t *testing.T) {
	registry := newTestRegistry()
	alice := uuid.New()
	bob := uuid.New()
	carol := uuid.New()

	s1, err := registry.Initiate(alice, []uuid.UUID{bob}, domain.CallTypeAudio, "")
	require.NoError(t, err)
	s2, err := registry.Initiate(bob, []uuid.UUID{carol}, domain.CallTypeVideo, "")
	require.NoError(t, err)

	assert.Len(t, registry.ActiveFor(alice), 1)
	assert.Len(t, registry.ActiveFor(bob), 2)
	assert.Len(t, registry.ActiveFor(carol), 1)
	assert.Empty(t, registry.ActiveFor(uuid.New()))

	registry.Remove(s1.ID())
	assert.Empty(t, registry.ActiveFor(alice))
	assert.Len(t, registry.ActiveFor(bob), 1)

	registry.Remove(s2.ID())
	assert.Equal(t, 0, registry.Len())
}
