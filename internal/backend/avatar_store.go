package backend

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
)

const defaultPresignTTL = time.Hour

// MinIOAvatarStore keeps avatars in a MinIO bucket and hands out presigned GET URLs.
type MinIOAvatarStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

// NewMinIOAvatarStore constructs an adapter. The bucket must exist.
func NewMinIOAvatarStore(client *minio.Client, bucket string, ttl time.Duration) *MinIOAvatarStore {
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}
	return &MinIOAvatarStore{client: client, bucket: bucket, ttl: ttl}
}

func (s *MinIOAvatarStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

func (s *MinIOAvatarStore) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// URL returns a presigned GET URL valid for the configured TTL.
func (s *MinIOAvatarStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign %q: %w", key, err)
	}
	return u.String(), nil
}

// Ping reports whether the bucket is reachable.
func (s *MinIOAvatarStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

type storedAvatar struct {
	contentType string
	data        []byte
}

// MemoryAvatarStore keeps avatars in process memory. URLs point at baseURL + key.
type MemoryAvatarStore struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]storedAvatar
}

func NewMemoryAvatarStore(baseURL string) *MemoryAvatarStore {
	return &MemoryAvatarStore{baseURL: baseURL, objects: make(map[string]storedAvatar)}
}

func (s *MemoryAvatarStore) Put(_ context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedAvatar{contentType: contentType, data: append([]byte(nil), data...)}
	return nil
}

func (s *MemoryAvatarStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *MemoryAvatarStore) URL(_ context.Context, key string) (string, error) {
	return s.baseURL + "/" + key, nil
}

// Open returns a stored avatar.
func (s *MemoryAvatarStore) Open(key string) (contentType string, data []byte, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj.contentType, obj.data, ok
}

// Len reports how many avatars are stored.
func (s *MemoryAvatarStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
