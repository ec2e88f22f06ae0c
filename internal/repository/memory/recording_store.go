package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// RecordingStore buffers recording chunks in memory. Used as the default
// backend in development and as the test backend; production deployments use
// the MinIO-backed store.
type RecordingStore struct {
	mu      sync.Mutex
	buffers map[uuid.UUID][]byte
}

// NewRecordingStore creates an empty in-memory recording store
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{
		buffers: make(map[uuid.UUID][]byte),
	}
}

// Append writes one chunk and returns the accumulated size
func (s *RecordingStore) Append(ctx context.Context, recordingID uuid.UUID, chunk []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffers[recordingID] = append(s.buffers[recordingID], chunk...)
	return int64(len(s.buffers[recordingID])), nil
}

// Finalize seals the recording and returns its reference and final size
func (s *RecordingStore) Finalize(ctx context.Context, recordingID uuid.UUID) (string, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.buffers[recordingID]
	ref := fmt.Sprintf("memory://recordings/%s", recordingID)
	return ref, int64(len(buf)), nil
}

// Discard drops any accumulated chunks for the recording
func (s *RecordingStore) Discard(ctx context.Context, recordingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buffers, recordingID)
	return nil
}

// Bytes returns a copy of the accumulated data, for tests and diagnostics
func (s *RecordingStore) Bytes(recordingID uuid.UUID) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]byte(nil), s.buffers[recordingID]...)
}
