package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType represents the media type of a call session
type CallType string

const (
	CallTypeAudio       CallType = "audio"
	CallTypeVideo       CallType = "video"
	CallTypeScreenShare CallType = "screen_share"
)

// Valid reports whether the call type is one of the recognized types
func (t CallType) Valid() bool {
	switch t {
	case CallTypeAudio, CallTypeVideo, CallTypeScreenShare:
		return true
	}
	return false
}

// CallStatus represents the lifecycle state of a call session.
// Transitions are monotonic: initiating -> active -> ended.
type CallStatus string

const (
	CallStatusInitiating CallStatus = "initiating"
	CallStatusActive     CallStatus = "active"
	CallStatusEnded      CallStatus = "ended"
)

// ConnectionState represents a single participant's connection state
type ConnectionState string

const (
	ConnectionPending      ConnectionState = "pending"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// CallSession is a point-in-time snapshot of a call session
type CallSession struct {
	CallID           uuid.UUID                     `json:"call_id"`
	InitiatorID      uuid.UUID                     `json:"initiator_id"`
	Participants     []uuid.UUID                   `json:"participants"`
	CallType         CallType                      `json:"call_type"`
	Title            string                        `json:"title,omitempty"`
	Status           CallStatus                    `json:"status"`
	ConnectionStatus map[uuid.UUID]ConnectionState `json:"connection_status"`
	CreatedAt        time.Time                     `json:"created_at"`
	StartedAt        *time.Time                    `json:"started_at,omitempty"`
	EndedAt          *time.Time                    `json:"ended_at,omitempty"`
	Duration         int                           `json:"duration,omitempty"` // in seconds
	Recording        *RecordingSession             `json:"recording,omitempty"`
}
