package call

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callbridge-backend/internal/domain"
	"callbridge-backend/internal/repository/memory"
	"callbridge-backend/pkg/errors"
)

// fakeClock drives the session clock in fixed steps so durations are exact
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestSession(t *testing.T, initiator uuid.UUID, participants []uuid.UUID) (*Session, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	s := newSession(initiator, participants, domain.CallTypeVideo, "standup", memory.NewRecordingStore())
	s.nowFn = clock.Now
	return s, clock
}

func TestSessionStartsInitiating(t *testing.T) {
	initiator := uuid.New()
	callee := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{callee})

	snapshot := s.Snapshot()
	assert.Equal(t, domain.CallStatusInitiating, snapshot.Status)
	assert.Equal(t, domain.ConnectionPending, snapshot.ConnectionStatus[initiator])
	assert.Equal(t, domain.ConnectionPending, snapshot.ConnectionStatus[callee])
	assert.Nil(t, snapshot.StartedAt)
}

func TestSessionActivatesWhenAllConnected(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a, b})

	snapshot, connected, err := s.Join(initiator, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, 1, connected)
	assert.Equal(t, domain.CallStatusInitiating, snapshot.Status)

	snapshot, connected, err = s.Join(a, "conn-2")
	require.NoError(t, err)
	assert.Equal(t, 2, connected)
	assert.Equal(t, domain.CallStatusInitiating, snapshot.Status)

	// The last pending participant connecting flips the call active.
	snapshot, connected, err = s.Join(b, "conn-3")
	require.NoError(t, err)
	assert.Equal(t, 3, connected)
	assert.Equal(t, domain.CallStatusActive, snapshot.Status)
	require.NotNil(t, snapshot.StartedAt)
}

func TestSessionJoinUninvited(t *testing.T) {
	s, _ := newTestSession(t, uuid.New(), []uuid.UUID{uuid.New()})

	_, _, err := s.Join(uuid.New(), "conn-x")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotInvited))
}

func TestSessionRejoinAfterDisconnect(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a, b})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)
	_, _, err = s.Join(b, "c3")
	require.NoError(t, err)

	// a drops and comes back: the call stays active, a is connected again
	// under the new connection ref.
	snapshot, connected, record, err := s.Leave(a)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Equal(t, 2, connected)
	assert.Equal(t, domain.CallStatusActive, snapshot.Status)
	assert.Equal(t, domain.ConnectionDisconnected, snapshot.ConnectionStatus[a])

	snapshot, connected, err = s.Join(a, "c2-bis")
	require.NoError(t, err)
	assert.Equal(t, 3, connected)
	assert.Equal(t, domain.CallStatusActive, snapshot.Status)
	assert.Equal(t, "c2-bis", s.tracker.ConnectionRef(a))
}

func TestSessionAutoEndsWhenEmpty(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a, b})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)
	_, _, err = s.Join(b, "c3")
	require.NoError(t, err)

	_, _, record, err := s.Leave(initiator)
	require.NoError(t, err)
	assert.Nil(t, record)

	// a alone is not the initiator: the call stays alive for rejoins.
	_, connected, record, err := s.Leave(b)
	require.NoError(t, err)
	assert.Equal(t, 1, connected)
	assert.Nil(t, record)

	// Last participant out ends the call.
	snapshot, connected, record, err := s.Leave(a)
	require.NoError(t, err)
	assert.Equal(t, 0, connected)
	require.NotNil(t, record)
	assert.Equal(t, domain.CallStatusEnded, snapshot.Status)
	assert.Equal(t, domain.CallStatusEnded, record.Status)
}

func TestSessionAutoEndsWhenOnlyInitiatorRemains(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a, b})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)
	_, _, err = s.Join(b, "c3")
	require.NoError(t, err)

	_, _, record, err := s.Leave(a)
	require.NoError(t, err)
	assert.Nil(t, record)

	// b leaving strands the initiator alone: the call ends.
	_, connected, record, err := s.Leave(b)
	require.NoError(t, err)
	assert.Equal(t, 1, connected)
	require.NotNil(t, record)
	assert.Equal(t, domain.CallStatusEnded, s.Snapshot().Status)
}

func TestSessionSurvivesInitiatorLeaving(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	b := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a, b})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)
	_, _, err = s.Join(b, "c3")
	require.NoError(t, err)

	// Initiator leaving first does not end the call while two others talk.
	snapshot, connected, record, err := s.Leave(initiator)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Equal(t, 2, connected)
	assert.Equal(t, domain.CallStatusActive, snapshot.Status)
}

func TestSessionEndInitiatorOnly(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)

	_, err = s.End(a)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))
	assert.Equal(t, domain.CallStatusActive, s.Snapshot().Status)

	record, err := s.End(initiator)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.CallStatusEnded, s.Snapshot().Status)
}

func TestSessionEndIdempotent(t *testing.T) {
	initiator := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{uuid.New()})

	record, err := s.End(initiator)
	require.NoError(t, err)
	require.NotNil(t, record)

	// Exactly one history record per call: the second end yields nothing.
	record, err = s.End(initiator)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestSessionDurationExact(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	s, clock := newTestSession(t, initiator, []uuid.UUID{a})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)

	clock.Advance(125 * time.Second)

	record, err := s.End(initiator)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, 125, record.Duration)
}

func TestSessionEndBeforeActiveHasZeroDuration(t *testing.T) {
	initiator := uuid.New()
	s, clock := newTestSession(t, initiator, []uuid.UUID{uuid.New()})

	clock.Advance(30 * time.Second)

	record, err := s.End(initiator)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Nil(t, record.StartedAt)
	assert.Equal(t, 0, record.Duration)
}

func TestSessionOperationsAfterEnd(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a})

	_, err := s.End(initiator)
	require.NoError(t, err)

	_, _, err = s.Join(a, "c1")
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))

	_, _, _, err = s.Leave(a)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))

	_, err = s.RelaySignal(a, domain.SignalTypeOffer, nil, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))

	_, err = s.StartRecording(initiator)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidState))
}

func TestSessionRelaySignalLogOrder(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)

	offer := json.RawMessage(`{"sdp":"offer"}`)
	answer := json.RawMessage(`{"sdp":"answer"}`)

	instr, err := s.RelaySignal(initiator, domain.SignalTypeOffer, offer, &a)
	require.NoError(t, err)
	require.NotNil(t, instr.TargetID)
	assert.Equal(t, a, *instr.TargetID)

	// A pending participant may signal before connecting.
	_, err = s.RelaySignal(a, domain.SignalTypeAnswer, answer, &initiator)
	require.NoError(t, err)

	_, err = s.RelaySignal(uuid.New(), domain.SignalTypeOffer, offer, nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotInvited))

	log := s.SignalLog()
	require.Len(t, log, 2)
	assert.Equal(t, domain.SignalTypeOffer, log[0].Type)
	assert.Equal(t, initiator, log[0].SenderID)
	assert.Equal(t, domain.SignalTypeAnswer, log[1].Type)
	assert.Equal(t, a, log[1].SenderID)
}

func TestSessionRecordingLifecycle(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	store := memory.NewRecordingStore()
	clock := newFakeClock()
	s := newSession(initiator, []uuid.UUID{a}, domain.CallTypeAudio, "", store)
	s.nowFn = clock.Now

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)

	_, err = s.StartRecording(a)
	assert.True(t, errors.HasCode(err, errors.ErrCodePermissionDenied))

	rec, err := s.StartRecording(initiator)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingStatusRecording, rec.Status)

	_, err = s.StartRecording(initiator)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyRecording))

	chunk1 := []byte("first-chunk")
	chunk2 := []byte("second")

	size, err := s.AppendChunk(context.Background(), chunk1)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk1)), size)

	size, err = s.AppendChunk(context.Background(), chunk2)
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk1)+len(chunk2)), size)

	stopped, err := s.StopRecording(initiator)
	require.NoError(t, err)
	assert.Equal(t, domain.RecordingStatusCompleted, stopped.Status)
	assert.Equal(t, int64(len(chunk1)+len(chunk2)), stopped.SizeBytes)
	require.NotNil(t, stopped.EndedAt)

	_, err = s.AppendChunk(context.Background(), []byte("late"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoActiveRecording))

	_, err = s.StopRecording(initiator)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoActiveRecording))

	assert.Equal(t, append(chunk1, chunk2...), store.Bytes(rec.RecordingID))
}

func TestSessionAppendChunkWithoutRecording(t *testing.T) {
	initiator := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{uuid.New()})

	_, err := s.AppendChunk(context.Background(), []byte("data"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeNoActiveRecording))
}

func TestSessionEndCompletesRecording(t *testing.T) {
	initiator := uuid.New()
	a := uuid.New()
	s, _ := newTestSession(t, initiator, []uuid.UUID{a})

	_, _, err := s.Join(initiator, "c1")
	require.NoError(t, err)
	_, _, err = s.Join(a, "c2")
	require.NoError(t, err)

	_, err = s.StartRecording(initiator)
	require.NoError(t, err)

	record, err := s.End(initiator)
	require.NoError(t, err)
	require.NotNil(t, record.Recording)
	assert.Equal(t, domain.RecordingStatusCompleted, record.Recording.Status)
	require.NotNil(t, record.Recording.EndedAt)
}
