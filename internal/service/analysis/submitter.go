package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"callbridge-backend/pkg/logger"
)

// Submitter hands finished call recordings to the AI analysis pipeline.
// Submissions are fire-and-forget: a failed hand-off is logged and dropped,
// it never affects the call that produced the recording.
type Submitter struct {
	endpoint string
	client   *http.Client
}

// NewSubmitter creates a submitter posting to the given analysis endpoint
func NewSubmitter(endpoint string) *Submitter {
	return &Submitter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type submission struct {
	RecordingRef string      `json:"recording_ref"`
	Participants []uuid.UUID `json:"participants"`
	SubmittedAt  time.Time   `json:"submitted_at"`
}

// Submit posts the recording reference to the analysis endpoint
func (s *Submitter) Submit(ctx context.Context, recordingRef string, participants []uuid.UUID) {
	body, err := json.Marshal(submission{
		RecordingRef: recordingRef,
		Participants: participants,
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to encode analysis submission", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		logger.Error("Failed to build analysis request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Warn("Analysis hand-off failed",
			zap.String("recording_ref", recordingRef),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logger.Warn("Analysis hand-off rejected",
			zap.String("recording_ref", recordingRef),
			zap.Int("status", resp.StatusCode))
		return
	}

	logger.Debug("Recording submitted for analysis",
		zap.String("recording_ref", recordingRef),
		zap.Int("participants", len(participants)))
}

// NoopSubmitter discards every submission. Used when no analysis endpoint is
// configured and in tests.
type NoopSubmitter struct{}

// Submit drops the submission
func (NoopSubmitter) Submit(ctx context.Context, recordingRef string, participants []uuid.UUID) {}
