package redis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rmax-ai/facetgraph/pkg/engine"
)

// CacheStore keeps session snapshots in redis, msgpack-encoded, with a sliding TTL.
type CacheStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ engine.CacheStore = (*CacheStore)(nil)

// NewCacheStore creates a cache store. A zero ttl keeps snapshots until deleted.
func NewCacheStore(client *redis.Client, ttl time.Duration) *CacheStore {
	return &CacheStore{client: client, ttl: ttl}
}

func (s *CacheStore) makeKey(sessionID string) string {
	return fmt.Sprintf("facetgraph:session:%s", sessionID)
}

func (s *CacheStore) Get(ctx context.Context, sessionID string) (*engine.Snapshot, error) {
	key := s.makeKey(sessionID)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to GET %s: %w", key, err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to refresh ttl of %s: %w", key, err)
		}
	}
	return snap, nil
}

func (s *CacheStore) Put(ctx context.Context, sessionID string, snap *engine.Snapshot) error {
	key := s.makeKey(sessionID)
	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to SET %s: %w", key, err)
	}
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, sessionID string) error {
	key := s.makeKey(sessionID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to DEL %s: %w", key, err)
	}
	return nil
}

// Snapshot types carry json tags only; msgpack reads the same names.
func encodeSnapshot(snap *engine.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (*engine.Snapshot, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	var snap engine.Snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
