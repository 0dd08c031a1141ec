// Copyright 2020 Presidenza del Consiglio dei Ministri
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coordination is a facade over the Redis store that coordinates the
// analytics pipeline: the token authorization ledger, the salt replay
// registry, and the ingestion queues.
package coordination

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection configuration of the coordination store.
type Config struct {
	URL string `env:"ANALYTICS_BROKER_REDIS_URL, default=redis://localhost:6379/1"`
}

// Store wraps the Redis client shared by the packages coordinating through
// it. Key layout is owned by those packages; Store only contributes the
// operations that must be atomic.
type Store struct {
	client *redis.Client
}

// NewStore connects to the configured Redis instance and verifies the
// connection.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("coordination.NewStore: invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("coordination.NewStore: failed to connect: %w", err)
	}
	return &Store{client: client}, nil
}

// Client returns the underlying Redis client.
func (s *Store) Client() *redis.Client {
	return s.client
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (s *Store) Close() error {
	return s.client.Close()
}

// Enqueue appends values to the tail of the list at key.
func (s *Store) Enqueue(ctx context.Context, key string, values ...interface{}) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("coordination.Enqueue: failed to push to %q: %w", key, err)
	}
	return nil
}

// DrainList atomically removes and returns up to max elements from the head
// of the list at key. The read and the trim run in a single transaction so
// that no concurrent producer or drainer can observe a half drained list.
func (s *Store) DrainList(ctx context.Context, key string, max int64) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}

	var elements *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		elements = pipe.LRange(ctx, key, 0, max-1)
		pipe.LTrim(ctx, key, max, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("coordination.DrainList: failed to drain %q: %w", key, err)
	}
	return elements.Val(), nil
}

// ListLength returns the number of elements in the list at key.
func (s *Store) ListLength(ctx context.Context, key string) (int64, error) {
	length, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("coordination.ListLength: failed to read length of %q: %w", key, err)
	}
	return length, nil
}
