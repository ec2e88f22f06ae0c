package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents recording lifecycle state
type RecordingStatus string

const (
	RecordingStatusRecording RecordingStatus = "recording"
	RecordingStatusCompleted RecordingStatus = "completed"
)

// RecordingSession represents the recording attached to a call.
// A call owns at most one recording with status "recording" at a time.
type RecordingSession struct {
	RecordingID uuid.UUID       `json:"recording_id"`
	CallID      uuid.UUID       `json:"call_id"`
	StorageRef  string          `json:"storage_ref,omitempty"`
	Status      RecordingStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"`
	SizeBytes   int64           `json:"size_bytes"`
}
