package minio

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// RecordingStore persists recording chunks in MinIO object storage. Each
// chunk lands as its own object under recordings/<id>/; finalize composes
// them into a single recording object and drops the parts.
type RecordingStore struct {
	client     *miniogo.Client
	bucketName string

	mu    sync.Mutex
	parts map[uuid.UUID]*partState
}

type partState struct {
	count int
	size  int64
}

// NewRecordingStore creates a MinIO-backed recording store, ensuring the
// bucket exists
func NewRecordingStore(endpoint, accessKey, secretKey, bucketName string, secure bool) (*RecordingStore, error) {
	client, err := miniogo.New(endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &RecordingStore{
		client:     client,
		bucketName: bucketName,
		parts:      make(map[uuid.UUID]*partState),
	}, nil
}

// Append uploads one chunk object and returns the accumulated size
func (s *RecordingStore) Append(ctx context.Context, recordingID uuid.UUID, chunk []byte) (int64, error) {
	s.mu.Lock()
	state, ok := s.parts[recordingID]
	if !ok {
		state = &partState{}
		s.parts[recordingID] = state
	}
	partIndex := state.count
	s.mu.Unlock()

	objectKey := chunkKey(recordingID, partIndex)
	_, err := s.client.PutObject(ctx, s.bucketName, objectKey,
		bytes.NewReader(chunk), int64(len(chunk)),
		miniogo.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return 0, fmt.Errorf("failed to upload recording chunk: %w", err)
	}

	s.mu.Lock()
	state.count++
	state.size += int64(len(chunk))
	size := state.size
	s.mu.Unlock()

	return size, nil
}

// Finalize composes the chunk objects into one recording object and removes
// the parts
func (s *RecordingStore) Finalize(ctx context.Context, recordingID uuid.UUID) (string, int64, error) {
	s.mu.Lock()
	state, ok := s.parts[recordingID]
	if ok {
		delete(s.parts, recordingID)
	}
	s.mu.Unlock()

	finalKey := fmt.Sprintf("recordings/%s/recording.bin", recordingID)

	if !ok || state.count == 0 {
		// Recording stopped before any chunk arrived: store an empty object
		// so the storage ref still resolves.
		_, err := s.client.PutObject(ctx, s.bucketName, finalKey,
			bytes.NewReader(nil), 0,
			miniogo.PutObjectOptions{ContentType: "application/octet-stream"})
		if err != nil {
			return "", 0, fmt.Errorf("failed to store empty recording: %w", err)
		}
		return s.storageRef(finalKey), 0, nil
	}

	sources := make([]miniogo.CopySrcOptions, 0, state.count)
	for i := 0; i < state.count; i++ {
		sources = append(sources, miniogo.CopySrcOptions{
			Bucket: s.bucketName,
			Object: chunkKey(recordingID, i),
		})
	}

	dst := miniogo.CopyDestOptions{
		Bucket: s.bucketName,
		Object: finalKey,
	}

	if _, err := s.client.ComposeObject(ctx, dst, sources...); err != nil {
		return "", 0, fmt.Errorf("failed to compose recording: %w", err)
	}

	// Best-effort cleanup of the chunk objects.
	for i := 0; i < state.count; i++ {
		_ = s.client.RemoveObject(ctx, s.bucketName, chunkKey(recordingID, i), miniogo.RemoveObjectOptions{})
	}

	return s.storageRef(finalKey), state.size, nil
}

// Discard drops every chunk object accumulated for the recording
func (s *RecordingStore) Discard(ctx context.Context, recordingID uuid.UUID) error {
	s.mu.Lock()
	state, ok := s.parts[recordingID]
	if ok {
		delete(s.parts, recordingID)
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	for i := 0; i < state.count; i++ {
		if err := s.client.RemoveObject(ctx, s.bucketName, chunkKey(recordingID, i), miniogo.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove recording chunk: %w", err)
		}
	}
	return nil
}

func (s *RecordingStore) storageRef(objectKey string) string {
	return fmt.Sprintf("minio://%s/%s", s.bucketName, objectKey)
}

func chunkKey(recordingID uuid.UUID, index int) string {
	return fmt.Sprintf("recordings/%s/chunk-%06d", recordingID, index)
}
