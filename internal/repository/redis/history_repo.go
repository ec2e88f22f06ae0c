package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"callbridge-backend/internal/domain"
)

// HistoryRepository persists call history records in Redis: one serialized
// record per call plus a per-identity list of call ids trimmed to the
// retention bound (FIFO, newest at the head).
type HistoryRepository struct {
	client    *redis.Client
	retention int64
}

// NewHistoryRepository creates a new Redis-backed history repository
func NewHistoryRepository(client *redis.Client, retention int) *HistoryRepository {
	if retention <= 0 {
		retention = 100
	}
	return &HistoryRepository{
		client:    client,
		retention: int64(retention),
	}
}

// Append persists one record and indexes it for every involved identity
func (r *HistoryRepository) Append(ctx context.Context, record *domain.CallHistoryRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal history record: %w", err)
	}

	recordKey := fmt.Sprintf("call_history:%s", record.CallID)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, recordKey, data, 0)

	identities := append([]uuid.UUID{record.InitiatorID}, record.Participants...)
	seen := make(map[uuid.UUID]bool, len(identities))
	for _, identity := range identities {
		if seen[identity] {
			continue
		}
		seen[identity] = true
		indexKey := fmt.Sprintf("user_call_history:%s", identity)
		pipe.LPush(ctx, indexKey, record.CallID.String())
		pipe.LTrim(ctx, indexKey, 0, r.retention-1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist history record: %w", err)
	}
	return nil
}

// Query returns records involving the identity, most recent first
func (r *HistoryRepository) Query(ctx context.Context, identity uuid.UUID, limit int) ([]*domain.CallHistoryRecord, error) {
	indexKey := fmt.Sprintf("user_call_history:%s", identity)

	ids, err := r.client.LRange(ctx, indexKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}

	records := make([]*domain.CallHistoryRecord, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, fmt.Sprintf("call_history:%s", id)).Bytes()
		if err == redis.Nil {
			// Record evicted from another identity's index; skip.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history record: %w", err)
		}

		var record domain.CallHistoryRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history record: %w", err)
		}
		records = append(records, &record)
	}
	return records, nil
}
