package call

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"callbridge-backend/pkg/logger"
	"callbridge-backend/pkg/metrics"
)

// Event names pushed through the transport layer
const (
	EventSignal           = "signal"
	EventParticipantJoin  = "participant_joined"
	EventParticipantLeave = "participant_left"
	EventCallEnded        = "call_ended"
	EventRecordingStarted = "recording_started"
	EventRecordingStopped = "recording_stopped"
)

// Transport delivers named events to connected peers. Each call session maps
// to one broadcast group keyed by the call id. Implemented by the WebSocket
// signaling hub; delivery is best-effort.
type Transport interface {
	Send(identity uuid.UUID, event string, payload any) error
	Broadcast(groupID uuid.UUID, event string, payload any, excluding ...uuid.UUID) error
	JoinGroup(identity, groupID uuid.UUID)
	LeaveGroup(identity, groupID uuid.UUID)
}

// DeliveryStatus reports the outcome of a best-effort relay
type DeliveryStatus struct {
	Delivered bool       `json:"delivered"`
	TargetID  *uuid.UUID `json:"target_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// Relay routes a session's relay instruction through the transport layer:
// to the named target when present, otherwise to every other participant of
// the call's broadcast group. It holds no state of its own.
type Relay struct {
	transport Transport
	metrics   *metrics.Metrics
}

// NewRelay creates a relay over the given transport
func NewRelay(transport Transport, m *metrics.Metrics) *Relay {
	return &Relay{
		transport: transport,
		metrics:   m,
	}
}

// Deliver executes one relay instruction. A delivery failure is reported in
// the status, never as an error: the originating signaling exchange must not
// fail because a target is unreachable.
func (r *Relay) Deliver(instruction *RelayInstruction) DeliveryStatus {
	var err error
	if instruction.TargetID != nil {
		err = r.transport.Send(*instruction.TargetID, EventSignal, instruction.Entry)
	} else {
		err = r.transport.Broadcast(instruction.CallID, EventSignal, instruction.Entry, instruction.Entry.SenderID)
	}

	if err != nil {
		logger.Warn("Signal delivery failed",
			zap.String("call_id", instruction.CallID.String()),
			zap.String("signal_type", instruction.Entry.Type),
			zap.Error(err))
		if r.metrics != nil {
			r.metrics.SignalDeliveryFailed(instruction.Entry.Type)
		}
		return DeliveryStatus{
			Delivered: false,
			TargetID:  instruction.TargetID,
			Reason:    err.Error(),
		}
	}

	if r.metrics != nil {
		r.metrics.SignalRelayed(instruction.Entry.Type)
	}
	return DeliveryStatus{
		Delivered: true,
		TargetID:  instruction.TargetID,
	}
}
