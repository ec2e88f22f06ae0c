package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"callbridge-backend/internal/domain"
)

// DefaultHistoryRetention is how many ended calls are kept when no explicit
// capacity is configured.
const DefaultHistoryRetention = 100

// HistoryStore keeps the most recent N call history records in memory.
// Eviction is FIFO: when full, the oldest record goes first regardless of
// how often it is queried.
type HistoryStore struct {
	mu       sync.RWMutex
	records  []*domain.CallHistoryRecord
	capacity int
}

// NewHistoryStore creates a bounded in-memory history store
func NewHistoryStore(capacity int) *HistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryRetention
	}
	return &HistoryStore{
		records:  make([]*domain.CallHistoryRecord, 0, capacity),
		capacity: capacity,
	}
}

// Append persists one record, evicting the oldest when at capacity
func (s *HistoryStore) Append(ctx context.Context, record *domain.CallHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.records) >= s.capacity {
		overflow := len(s.records) - s.capacity + 1
		s.records = append(s.records[:0], s.records[overflow:]...)
	}
	s.records = append(s.records, record)
	return nil
}

// Query returns records involving the identity, most recent first
func (s *HistoryStore) Query(ctx context.Context, identity uuid.UUID, limit int) ([]*domain.CallHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*domain.CallHistoryRecord
	for i := len(s.records) - 1; i >= 0 && len(matches) < limit; i-- {
		if s.records[i].Involves(identity) {
			matches = append(matches, s.records[i])
		}
	}
	return matches, nil
}

// Len returns the number of retained records
func (s *HistoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
