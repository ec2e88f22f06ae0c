package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallHistoryRecord is the immutable snapshot of a call taken at the moment
// it ends. Created exactly once per call, never mutated afterward.
type CallHistoryRecord struct {
	CallID       uuid.UUID         `json:"call_id"`
	InitiatorID  uuid.UUID         `json:"initiator_id"`
	Participants []uuid.UUID       `json:"participants"`
	CallType     CallType          `json:"call_type"`
	Title        string            `json:"title,omitempty"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	EndedAt      time.Time         `json:"ended_at"`
	Duration     int               `json:"duration"` // in seconds
	Recording    *RecordingSession `json:"recording,omitempty"`
	Status       CallStatus        `json:"status"`
}

// Involves reports whether the identity was the initiator or an invited
// participant of the recorded call.
func (r *CallHistoryRecord) Involves(identity uuid.UUID) bool {
	if r.InitiatorID == identity {
		return true
	}
	for _, p := range r.Participants {
		if p == identity {
			return true
		}
	}
	return false
}
