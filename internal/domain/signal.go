package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Signal types exchanged during the WebRTC handshake. The payload is opaque
// to this service; it is relayed, never interpreted.
const (
	SignalTypeOffer  = "offer"
	SignalTypeAnswer = "answer"
	SignalTypeICE    = "ice_candidate"
)

// SignalEntry is one relayed signaling message as recorded in a session's
// signaling log. The log records arrival order, not causal order.
type SignalEntry struct {
	Type      string          `json:"type"`
	SenderID  uuid.UUID       `json:"sender_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
