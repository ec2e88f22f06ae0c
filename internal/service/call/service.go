package call

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callbridge-backend/internal/domain"
	"callbridge-backend/pkg/errors"
	"callbridge-backend/pkg/logger"
	"callbridge-backend/pkg/metrics"
)

// Service handles call session business logic: lifecycle, signaling relay,
// recording and history. All session mutation flows through here.
type Service struct {
	registry *Registry
	history  HistoryStore
	recStore RecordingStore
	relay    *Relay
	analysis AnalysisSubmitter
	metrics  *metrics.Metrics
}

// NewService creates a new call service
func NewService(registry *Registry, history HistoryStore, recStore RecordingStore, relay *Relay, analysis AnalysisSubmitter, m *metrics.Metrics) *Service {
	return &Service{
		registry: registry,
		history:  history,
		recStore: recStore,
		relay:    relay,
		analysis: analysis,
		metrics:  m,
	}
}

// InitiateCallInput contains call initiation data
type InitiateCallInput struct {
	InitiatorID  uuid.UUID
	Participants []uuid.UUID
	CallType     domain.CallType
	Title        string
}

// InitiateCall creates a new call session in the initiating state
func (s *Service) InitiateCall(ctx context.Context, input *InitiateCallInput) (*domain.CallSession, error) {
	session, err := s.registry.Initiate(input.InitiatorID, input.Participants, input.CallType, input.Title)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CallStarted(string(input.CallType))
	}
	logger.FromContext(ctx).Info("Call initiated",
		zap.String("call_id", session.ID().String()),
		zap.String("initiator_id", input.InitiatorID.String()),
		zap.String("call_type", string(input.CallType)),
		zap.Int("participants", len(input.Participants)))

	return session.Snapshot(), nil
}

// JoinCall connects an identity to a call. The connectionRef identifies the
// transport connection the identity joined from.
func (s *Service) JoinCall(ctx context.Context, callID, identity uuid.UUID, connectionRef string) (*domain.CallSession, int, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, 0, err
	}

	snapshot, connected, err := session.Join(identity, connectionRef)
	if err != nil {
		s.logRejection(ctx, "join", callID, identity, err)
		return nil, 0, err
	}

	if s.relay != nil {
		s.relay.transport.JoinGroup(identity, callID)
		if err := s.relay.transport.Broadcast(callID, EventParticipantJoin, snapshot, identity); err != nil {
			logger.Warn("Join notification failed", zap.String("call_id", callID.String()), zap.Error(err))
		}
	}

	return snapshot, connected, nil
}

// LeaveCall disconnects an identity from a call, ending the call when nobody
// meaningful remains connected.
func (s *Service) LeaveCall(ctx context.Context, callID, identity uuid.UUID) (*domain.CallSession, int, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, 0, err
	}

	snapshot, connected, record, err := session.Leave(identity)
	if err != nil {
		s.logRejection(ctx, "leave", callID, identity, err)
		return nil, 0, err
	}

	if s.relay != nil {
		s.relay.transport.LeaveGroup(identity, callID)
		if err := s.relay.transport.Broadcast(callID, EventParticipantLeave, snapshot, identity); err != nil {
			logger.Warn("Leave notification failed", zap.String("call_id", callID.String()), zap.Error(err))
		}
	}

	if record != nil {
		s.retireSession(ctx, session, record)
	}

	return snapshot, connected, nil
}

// EndCallResult reports the outcome of an explicit end request. The call is
// ended whenever the result is non-nil; HistoryPersisted is false when the
// record could not be written to the history store.
type EndCallResult struct {
	Record           *domain.CallHistoryRecord `json:"record"`
	HistoryPersisted bool                      `json:"history_persisted"`
	Warning          string                    `json:"warning,omitempty"`
}

// EndCall force-terminates a call on behalf of its initiator. A history
// persistence failure never rolls the end back; it is reported in the result.
func (s *Service) EndCall(ctx context.Context, callID, requesterID uuid.UUID) (*EndCallResult, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, err
	}

	record, err := session.End(requesterID)
	if err != nil {
		s.logRejection(ctx, "end", callID, requesterID, err)
		return nil, err
	}
	if record == nil {
		// Lost a race with auto-end; the session is already retired.
		return nil, errors.CallNotFoundError()
	}

	result := &EndCallResult{Record: record, HistoryPersisted: true}
	if persistErr := s.retireSession(ctx, session, record); persistErr != nil {
		result.HistoryPersisted = false
		result.Warning = "call ended but its history record could not be persisted"
	}
	return result, nil
}

// RelaySignal appends a signaling message to the session log and delivers it
// to its target, or to all other participants when no target is named.
func (s *Service) RelaySignal(ctx context.Context, callID, senderID uuid.UUID, signalType string, payload json.RawMessage, targetID *uuid.UUID) (DeliveryStatus, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return DeliveryStatus{}, err
	}

	instruction, err := session.RelaySignal(senderID, signalType, payload, targetID)
	if err != nil {
		s.logRejection(ctx, "signal", callID, senderID, err)
		return DeliveryStatus{}, err
	}

	return s.relay.Deliver(instruction), nil
}

// StartRecording starts a new recording on the call. Initiator only.
func (s *Service) StartRecording(ctx context.Context, callID, requesterID uuid.UUID) (*domain.RecordingSession, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, err
	}

	rec, err := session.StartRecording(requesterID)
	if err != nil {
		s.logRejection(ctx, "start_recording", callID, requesterID, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordingStarted()
	}
	if s.relay != nil {
		if err := s.relay.transport.Broadcast(callID, EventRecordingStarted, rec); err != nil {
			logger.Warn("Recording notification failed", zap.String("call_id", callID.String()), zap.Error(err))
		}
	}
	logger.FromContext(ctx).Info("Recording started",
		zap.String("call_id", callID.String()),
		zap.String("recording_id", rec.RecordingID.String()))

	return rec, nil
}

// AppendRecordingChunk persists one chunk of recorded media
func (s *Service) AppendRecordingChunk(ctx context.Context, callID uuid.UUID, chunk []byte) (int64, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return 0, err
	}

	size, err := session.AppendChunk(ctx, chunk)
	if err != nil {
		if s.metrics != nil && errors.HasCode(err, errors.ErrCodeStorage) {
			s.metrics.RecordingChunkFailed()
		}
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordingChunk(len(chunk))
	}
	return size, nil
}

// StopRecording completes the in-progress recording, seals its storage and
// hands the finished recording to the analysis pipeline.
func (s *Service) StopRecording(ctx context.Context, callID, requesterID uuid.UUID) (*domain.RecordingSession, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, err
	}

	rec, err := session.StopRecording(requesterID)
	if err != nil {
		s.logRejection(ctx, "stop_recording", callID, requesterID, err)
		return nil, err
	}

	ref, size, finErr := s.recStore.Finalize(ctx, rec.RecordingID)
	if finErr != nil {
		// The recording stays completed with whatever was persisted; the
		// call keeps operating on degraded storage.
		logger.Error("Recording finalize failed",
			zap.String("call_id", callID.String()),
			zap.String("recording_id", rec.RecordingID.String()),
			zap.Error(finErr))
	} else {
		session.setStorageRef(rec.RecordingID, ref, size)
		rec.StorageRef = ref
		if size > 0 {
			rec.SizeBytes = size
		}
	}

	if s.metrics != nil {
		s.metrics.RecordingStopped()
	}
	if s.relay != nil {
		if err := s.relay.transport.Broadcast(callID, EventRecordingStopped, rec); err != nil {
			logger.Warn("Recording notification failed", zap.String("call_id", callID.String()), zap.Error(err))
		}
	}

	s.submitForAnalysis(rec, session.Snapshot().Participants)

	return rec, nil
}

// GetCall returns a snapshot of a live call
func (s *Service) GetCall(ctx context.Context, callID uuid.UUID) (*domain.CallSession, error) {
	session, err := s.registry.Get(callID)
	if err != nil {
		return nil, err
	}
	return session.Snapshot(), nil
}

// ActiveCalls returns snapshots of every live call the identity is part of
func (s *Service) ActiveCalls(ctx context.Context, identity uuid.UUID) []*domain.CallSession {
	sessions := s.registry.ActiveFor(identity)
	snapshots := make([]*domain.CallSession, 0, len(sessions))
	for _, session := range sessions {
		snapshots = append(snapshots, session.Snapshot())
	}
	return snapshots
}

// History returns the identity's ended calls, most recent first
func (s *Service) History(ctx context.Context, identity uuid.UUID, limit int) ([]*domain.CallHistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.history.Query(ctx, identity, limit)
}

// retireSession moves an ended session out of the live set and into history.
// Persistence failures never corrupt the in-memory transition; the history
// append error is returned so explicit end requests can report it, while the
// auto-end path logs it and moves on.
func (s *Service) retireSession(ctx context.Context, session *Session, record *domain.CallHistoryRecord) error {
	// Seal a recording that was still running when the call ended.
	if record.Recording != nil && record.Recording.StorageRef == "" {
		ref, size, err := s.recStore.Finalize(ctx, record.Recording.RecordingID)
		if err != nil {
			logger.Error("Recording finalize failed",
				zap.String("call_id", record.CallID.String()),
				zap.String("recording_id", record.Recording.RecordingID.String()),
				zap.Error(err))
		} else {
			record.Recording.StorageRef = ref
			if size > 0 {
				record.Recording.SizeBytes = size
			}
			s.submitForAnalysis(record.Recording, record.Participants)
		}
	}

	persistErr := s.history.Append(ctx, record)
	if persistErr != nil {
		logger.Error("History persist failed",
			zap.String("call_id", record.CallID.String()),
			zap.Error(persistErr))
	}

	s.registry.Remove(record.CallID)

	if s.metrics != nil {
		s.metrics.CallEnded(string(record.CallType), time.Duration(record.Duration)*time.Second)
	}
	if s.relay != nil {
		if err := s.relay.transport.Broadcast(record.CallID, EventCallEnded, record); err != nil {
			logger.Warn("End notification failed", zap.String("call_id", record.CallID.String()), zap.Error(err))
		}
	}

	logger.FromContext(ctx).Info("Call ended",
		zap.String("call_id", record.CallID.String()),
		zap.Int("duration_seconds", record.Duration))

	return persistErr
}

// submitForAnalysis hands a completed recording to the downstream analysis
// consumer. Fire-and-forget: the call flow never waits on it.
func (s *Service) submitForAnalysis(rec *domain.RecordingSession, participants []uuid.UUID) {
	if s.analysis == nil || rec == nil || rec.StorageRef == "" {
		return
	}
	go s.analysis.Submit(context.Background(), rec.StorageRef, participants)
}

// logRejection records a rejected operation. NotInvited rejections are
// surfaced at warn level as potential authorization probes.
func (s *Service) logRejection(ctx context.Context, op string, callID, identity uuid.UUID, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("call_id", callID.String()),
		zap.String("identity", identity.String()),
		zap.Error(err),
	}
	if errors.HasCode(err, errors.ErrCodeNotInvited) {
		logger.FromContext(ctx).Warn("Rejected call operation from uninvited identity", fields...)
		return
	}
	logger.FromContext(ctx).Debug("Rejected call operation", fields...)
}
