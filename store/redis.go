package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisMetadataStore stores metadata as plain string values in Redis.
type RedisMetadataStore struct {
	client redis.UniversalClient
}

// NewRedisMetadataStore wraps an existing client. The store owns the client
// and closes it on Close.
func NewRedisMetadataStore(client redis.UniversalClient) *RedisMetadataStore {
	return &RedisMetadataStore{client: client}
}

// OpenRedis connects to the Redis server described by a redis:// or
// rediss:// URL. The connection is established lazily; use Ping to verify it.
func OpenRedis(url string) (*RedisMetadataStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	return NewRedisMetadataStore(redis.NewClient(opts)), nil
}

func (s *RedisMetadataStore) Get(ctx context.Context, tokenID string) (json.RawMessage, bool, error) {
	key := MetadataKey(tokenID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: redis get %q: %w", key, err)
	}
	return decodeStored(key, raw)
}

func (s *RedisMetadataStore) Set(ctx context.Context, tokenID string, value json.RawMessage) error {
	if err := checkValue(value); err != nil {
		return err
	}
	key := MetadataKey(tokenID)
	if err := s.client.Set(ctx, key, []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("store: redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisMetadataStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: redis ping: %w", err)
	}
	return nil
}

func (s *RedisMetadataStore) Close() error {
	return s.client.Close()
}

var _ MetadataStore = (*RedisMetadataStore)(nil)
