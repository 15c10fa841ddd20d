// Package redis implements the store.CursorStore interface backed by a Redis
// hash: one field per space, each holding the JSON-encoded cursor.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/store"
)

// DefaultKey is the hash holding the cursors.
const DefaultKey = "chattobot:cursors"

// RedisStore implements store.CursorStore on a Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ store.CursorStore = (*RedisStore)(nil)

// New connects to the Redis server at a redis:// or rediss:// URL and pings
// it. An empty key means DefaultKey.
func New(ctx context.Context, url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	s := NewWithOptions(opts, key)
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return s, nil
}

// NewWithOptions returns a store without checking connectivity.
func NewWithOptions(opts *redis.Options, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: redis.NewClient(opts), key: key}
}

// Load returns every cursor in the hash.
func (s *RedisStore) Load(ctx context.Context) (model.Cursors, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read cursors: %w", err)
	}
	out := make(model.Cursors, len(fields))
	for space, raw := range fields {
		var c model.Cursor
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode cursor %s: %w", space, err)
		}
		out[space] = c
	}
	return out, nil
}

// Save replaces the hash atomically.
func (s *RedisStore) Save(ctx context.Context, cursors model.Cursors) error {
	values := make([]any, 0, 2*len(cursors))
	for space, c := range cursors {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode cursor %s: %w", space, err)
		}
		values = append(values, space, string(data))
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key)
	if len(values) > 0 {
		pipe.HSet(ctx, s.key, values...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write cursors: %w", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
