package call

import (
	"context"

	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
)

// HistoryStore persists call history records after a call ends.
// Implementations: in-memory ring (internal/repository/memory), CockroachDB
// (internal/repository/cockroach) and Redis (internal/repository/redis).
type HistoryStore interface {
	// Append persists one record. Records are immutable once appended.
	Append(ctx context.Context, record *domain.CallHistoryRecord) error
	// Query returns records involving the identity, most recent first,
	// capped at limit.
	Query(ctx context.Context, identity uuid.UUID, limit int) ([]*domain.CallHistoryRecord, error)
}

// RecordingStore persists recording chunks. Append calls for the same
// recording are serialized by the owning session; different recordings never
// contend inside one store.
type RecordingStore interface {
	// Append writes one chunk and returns the accumulated size in bytes.
	Append(ctx context.Context, recordingID uuid.UUID, chunk []byte) (int64, error)
	// Finalize seals the recording and returns its durable storage
	// reference and final size.
	Finalize(ctx context.Context, recordingID uuid.UUID) (string, int64, error)
	// Discard drops any accumulated chunks for the recording.
	Discard(ctx context.Context, recordingID uuid.UUID) error
}

// AnalysisSubmitter hands a finished recording to the downstream analysis
// pipeline. Submissions are fire-and-forget: failures are logged by the
// implementation and never surfaced to the call flow.
type AnalysisSubmitter interface {
	Submit(ctx context.Context, recordingRef string, participants []uuid.UUID)
}
