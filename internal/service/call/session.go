package call

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
	"callbridge-backend/pkg/errors"
)

// Session is the live state machine for one call. All state transitions are
// serialized through the session mutex; chunk persistence holds a separate
// per-recording writer lock so recording I/O never blocks join/leave/signal
// handling for other participants.
type Session struct {
	mu sync.Mutex

	callID       uuid.UUID
	initiatorID  uuid.UUID
	participants []uuid.UUID
	callType     domain.CallType
	title        string

	status    domain.CallStatus
	tracker   *ConnectionTracker
	createdAt time.Time
	startedAt *time.Time
	endedAt   *time.Time

	signalLog []domain.SignalEntry

	recording *domain.RecordingSession
	recMu     sync.Mutex
	recStore  RecordingStore

	nowFn func() time.Time
}

// newSession creates a session in the initiating state with every identity
// pending. Callers go through Registry.Initiate.
func newSession(initiatorID uuid.UUID, participants []uuid.UUID, callType domain.CallType, title string, recStore RecordingStore) *Session {
	tracked := make([]uuid.UUID, 0, len(participants)+1)
	tracked = append(tracked, initiatorID)
	for _, p := range participants {
		if p != initiatorID {
			tracked = append(tracked, p)
		}
	}

	s := &Session{
		callID:       uuid.New(),
		initiatorID:  initiatorID,
		participants: participants,
		callType:     callType,
		title:        title,
		status:       domain.CallStatusInitiating,
		tracker:      NewConnectionTracker(tracked),
		recStore:     recStore,
		nowFn:        time.Now,
	}
	s.createdAt = s.nowFn()
	return s
}

// ID returns the immutable session identifier
func (s *Session) ID() uuid.UUID {
	return s.callID
}

// InitiatorID returns the immutable initiator identity
func (s *Session) InitiatorID() uuid.UUID {
	return s.initiatorID
}

// Involves reports whether the identity is the initiator or an invited participant
func (s *Session) Involves(identity uuid.UUID) bool {
	return s.tracker.Has(identity)
}

// Snapshot returns a copy of the current session state
func (s *Session) Snapshot() *domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *domain.CallSession {
	snapshot := &domain.CallSession{
		CallID:           s.callID,
		InitiatorID:      s.initiatorID,
		Participants:     append([]uuid.UUID(nil), s.participants...),
		CallType:         s.callType,
		Title:            s.title,
		Status:           s.status,
		ConnectionStatus: s.tracker.Snapshot(),
		CreatedAt:        s.createdAt,
		StartedAt:        s.startedAt,
		EndedAt:          s.endedAt,
	}
	if s.startedAt != nil && s.endedAt != nil {
		snapshot.Duration = int(s.endedAt.Sub(*s.startedAt) / time.Second)
	}
	if s.recording != nil {
		rec := *s.recording
		snapshot.Recording = &rec
	}
	return snapshot
}

// Join marks the identity connected. When every tracked identity is connected
// and the call is still initiating it transitions to active and stamps the
// start time. Returns the session snapshot and the connected count.
func (s *Session) Join(identity uuid.UUID, connectionRef string) (*domain.CallSession, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.CallStatusEnded {
		return nil, 0, errors.InvalidStateError("call has ended")
	}
	if !s.tracker.Has(identity) {
		return nil, 0, errors.NotInvitedError()
	}

	s.tracker.SetConnected(identity, connectionRef)

	if s.status == domain.CallStatusInitiating && s.tracker.AllConnected() {
		s.status = domain.CallStatusActive
		started := s.nowFn()
		s.startedAt = &started
	}

	return s.snapshotLocked(), s.tracker.ConnectedCount(), nil
}

// Leave marks the identity disconnected. The call auto-ends when nobody is
// left connected, or when the initiator is the only one remaining. When the
// initiator leaves first and two or more others stay connected the call is
// deliberately kept alive without its initiator.
//
// The returned history record is non-nil exactly when this leave ended the
// call; the caller is responsible for persisting it and retiring the session.
func (s *Session) Leave(identity uuid.UUID) (*domain.CallSession, int, *domain.CallHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.CallStatusEnded {
		return nil, 0, nil, errors.InvalidStateError("call has ended")
	}
	if !s.tracker.Has(identity) {
		return nil, 0, nil, errors.NotInvitedError()
	}

	s.tracker.SetDisconnected(identity)

	connected := s.tracker.ConnectedIDs()
	var record *domain.CallHistoryRecord
	if len(connected) == 0 || (len(connected) == 1 && connected[0] == s.initiatorID) {
		record = s.endLocked()
	}

	return s.snapshotLocked(), len(connected), record, nil
}

// End terminates the call on behalf of an external requester. Only the
// initiator may end a call this way; auto-end from Leave bypasses the check.
// Ending is idempotent: a second End returns nil without producing a record.
func (s *Session) End(requesterID uuid.UUID) (*domain.CallHistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.initiatorID {
		return nil, errors.PermissionDeniedError("Only the call initiator may end the call")
	}
	if s.status == domain.CallStatusEnded {
		return nil, nil
	}
	return s.endLocked(), nil
}

// endLocked performs the terminal transition. Callers hold the session mutex.
func (s *Session) endLocked() *domain.CallHistoryRecord {
	if s.status == domain.CallStatusEnded {
		return nil
	}

	s.status = domain.CallStatusEnded
	ended := s.nowFn()
	s.endedAt = &ended

	// Finalize an in-progress recording. Storage finalization (composing the
	// durable object, resolving the storage ref) happens outside the lock.
	if s.recording != nil && s.recording.Status == domain.RecordingStatusRecording {
		s.recording.Status = domain.RecordingStatusCompleted
		s.recording.EndedAt = &ended
	}

	record := &domain.CallHistoryRecord{
		CallID:       s.callID,
		InitiatorID:  s.initiatorID,
		Participants: append([]uuid.UUID(nil), s.participants...),
		CallType:     s.callType,
		Title:        s.title,
		StartedAt:    s.startedAt,
		EndedAt:      ended,
		Status:       domain.CallStatusEnded,
	}
	if s.startedAt != nil {
		record.Duration = int(ended.Sub(*s.startedAt) / time.Second)
	}
	if s.recording != nil {
		rec := *s.recording
		record.Recording = &rec
	}
	return record
}

// RelayInstruction tells the relay where a signaling payload must go:
// a single target when TargetID is set, otherwise every other connected
// participant of the call.
type RelayInstruction struct {
	CallID   uuid.UUID
	Entry    domain.SignalEntry
	TargetID *uuid.UUID
}

// RelaySignal validates the sender, appends the message to the signaling log
// and returns the delivery instruction. The payload is never interpreted.
func (s *Session) RelaySignal(senderID uuid.UUID, signalType string, payload json.RawMessage, targetID *uuid.UUID) (*RelayInstruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.CallStatusEnded {
		return nil, errors.InvalidStateError("call has ended")
	}
	if !s.tracker.Has(senderID) {
		return nil, errors.NotInvitedError()
	}

	entry := domain.SignalEntry{
		Type:      signalType,
		SenderID:  senderID,
		Payload:   payload,
		Timestamp: s.nowFn(),
	}
	s.signalLog = append(s.signalLog, entry)

	return &RelayInstruction{
		CallID:   s.callID,
		Entry:    entry,
		TargetID: targetID,
	}, nil
}

// SignalLog returns a copy of the signaling log, in arrival order
func (s *Session) SignalLog() []domain.SignalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SignalEntry(nil), s.signalLog...)
}

// StartRecording attaches a new recording to the call. Initiator only.
func (s *Session) StartRecording(requesterID uuid.UUID) (*domain.RecordingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.CallStatusEnded {
		return nil, errors.InvalidStateError("call has ended")
	}
	if requesterID != s.initiatorID {
		return nil, errors.PermissionDeniedError("Only the call initiator may record the call")
	}
	if s.recording != nil && s.recording.Status == domain.RecordingStatusRecording {
		return nil, errors.AlreadyRecordingError()
	}

	s.recording = &domain.RecordingSession{
		RecordingID: uuid.New(),
		CallID:      s.callID,
		Status:      domain.RecordingStatusRecording,
		StartedAt:   s.nowFn(),
	}

	rec := *s.recording
	return &rec, nil
}

// AppendChunk persists one recording chunk. Writes for the same recording are
// serialized through the recording writer lock; a failed write degrades the
// recording (size unchanged, error reported) without affecting the call.
func (s *Session) AppendChunk(ctx context.Context, chunk []byte) (int64, error) {
	s.mu.Lock()
	if s.status == domain.CallStatusEnded {
		s.mu.Unlock()
		return 0, errors.InvalidStateError("call has ended")
	}
	if s.recording == nil || s.recording.Status != domain.RecordingStatusRecording {
		s.mu.Unlock()
		return 0, errors.NoActiveRecordingError()
	}
	recordingID := s.recording.RecordingID
	s.mu.Unlock()

	s.recMu.Lock()
	defer s.recMu.Unlock()

	// Recheck under the writer lock: the recording may have been stopped
	// while a previous chunk was in flight.
	s.mu.Lock()
	if s.recording == nil || s.recording.RecordingID != recordingID || s.recording.Status != domain.RecordingStatusRecording {
		s.mu.Unlock()
		return 0, errors.NoActiveRecordingError()
	}
	s.mu.Unlock()

	size, err := s.recStore.Append(ctx, recordingID, chunk)
	if err != nil {
		return 0, errors.StorageError(err)
	}

	s.mu.Lock()
	if s.recording != nil && s.recording.RecordingID == recordingID {
		s.recording.SizeBytes = size
	}
	s.mu.Unlock()

	return size, nil
}

// StopRecording completes the in-progress recording. Initiator only. Storage
// finalization happens in the service, outside the session mutex.
func (s *Session) StopRecording(requesterID uuid.UUID) (*domain.RecordingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.CallStatusEnded {
		return nil, errors.InvalidStateError("call has ended")
	}
	if requesterID != s.initiatorID {
		return nil, errors.PermissionDeniedError("Only the call initiator may record the call")
	}
	if s.recording == nil || s.recording.Status != domain.RecordingStatusRecording {
		return nil, errors.NoActiveRecordingError()
	}

	ended := s.nowFn()
	s.recording.Status = domain.RecordingStatusCompleted
	s.recording.EndedAt = &ended

	rec := *s.recording
	return &rec, nil
}

// setStorageRef records the durable storage reference resolved at finalize time
func (s *Session) setStorageRef(recordingID uuid.UUID, ref string, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording != nil && s.recording.RecordingID == recordingID {
		s.recording.StorageRef = ref
		if size > 0 {
			s.recording.SizeBytes = size
		}
	}
}
