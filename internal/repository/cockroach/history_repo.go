package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"callbridge-backend/internal/domain"
)

// HistoryRepository persists call history records in CockroachDB
type HistoryRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(pool *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

// Append persists one call history record with its participants
func (r *HistoryRepository) Append(ctx context.Context, record *domain.CallHistoryRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO call_history (
			call_id, initiator_id, call_type, title, started_at, ended_at, duration,
			recording_id, recording_ref, recording_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var recordingID *uuid.UUID
	var recordingRef *string
	var recordingSize *int64
	if record.Recording != nil {
		recordingID = &record.Recording.RecordingID
		recordingRef = &record.Recording.StorageRef
		recordingSize = &record.Recording.SizeBytes
	}

	_, err = tx.Exec(ctx, query,
		record.CallID,
		record.InitiatorID,
		record.CallType,
		record.Title,
		record.StartedAt,
		record.EndedAt,
		record.Duration,
		recordingID,
		recordingRef,
		recordingSize,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call history: %w", err)
	}

	for _, participant := range record.Participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO call_history_participants (call_id, user_id) VALUES ($1, $2)`,
			record.CallID, participant,
		)
		if err != nil {
			return fmt.Errorf("failed to insert call participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit call history: %w", err)
	}

	return nil
}

// Query returns records involving the identity, most recent first
func (r *HistoryRepository) Query(ctx context.Context, identity uuid.UUID, limit int) ([]*domain.CallHistoryRecord, error) {
	query := `
		SELECT DISTINCT h.call_id, h.initiator_id, h.call_type, h.title,
		       h.started_at, h.ended_at, h.duration,
		       h.recording_id, h.recording_ref, h.recording_size
		FROM call_history h
		LEFT JOIN call_history_participants hp ON h.call_id = hp.call_id
		WHERE h.initiator_id = $1 OR hp.user_id = $1
		ORDER BY h.ended_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query call history: %w", err)
	}
	defer rows.Close()

	var records []*domain.CallHistoryRecord
	for rows.Next() {
		record := &domain.CallHistoryRecord{Status: domain.CallStatusEnded}
		var recordingID *uuid.UUID
		var recordingRef *string
		var recordingSize *int64

		err := rows.Scan(
			&record.CallID,
			&record.InitiatorID,
			&record.CallType,
			&record.Title,
			&record.StartedAt,
			&record.EndedAt,
			&record.Duration,
			&recordingID,
			&recordingRef,
			&recordingSize,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call history: %w", err)
		}

		if recordingID != nil {
			record.Recording = &domain.RecordingSession{
				RecordingID: *recordingID,
				CallID:      record.CallID,
				Status:      domain.RecordingStatusCompleted,
			}
			if recordingRef != nil {
				record.Recording.StorageRef = *recordingRef
			}
			if recordingSize != nil {
				record.Recording.SizeBytes = *recordingSize
			}
		}

		records = append(records, record)
	}

	for _, record := range records {
		participants, err := r.participants(ctx, record.CallID)
		if err != nil {
			return nil, err
		}
		record.Participants = participants
	}

	return records, nil
}

// participants loads the participant set for one recorded call
func (r *HistoryRepository) participants(ctx context.Context, callID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM call_history_participants WHERE call_id = $1`,
		callID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query call participants: %w", err)
	}
	defer rows.Close()

	var participants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan call participant: %w", err)
		}
		participants = append(participants, id)
	}
	return participants, nil
}
