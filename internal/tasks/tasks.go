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

// Package tasks implements the Redis backed job queues feeding the
// authorization workers. Jobs are delivered at most once: a job that fails is
// logged and dropped, never retried, because both authorization flows are
// driven by a polling client that will simply enqueue a fresh attempt.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection configuration of the task broker.
type Config struct {
	URL string `env:"TASK_BROKER_REDIS_URL, default=redis://localhost:6379/0"`
}

// Envelope is the wire form of a queued job.
type Envelope struct {
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
}

// Broker produces and consumes jobs on named queues.
type Broker struct {
	client *redis.Client
}

// NewBroker connects to the configured Redis instance and verifies the
// connection.
func NewBroker(ctx context.Context, cfg *Config) (*Broker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("tasks.NewBroker: invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("tasks.NewBroker: failed to connect: %w", err)
	}
	return &Broker{client: client}, nil
}

// Enqueue schedules a job on the named queue.
func (b *Broker) Enqueue(ctx context.Context, queue, task string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("tasks.Enqueue: failed to marshal payload: %w", err)
	}
	raw, err := json.Marshal(&Envelope{Task: task, Payload: body})
	if err != nil {
		return fmt.Errorf("tasks.Enqueue: failed to marshal envelope: %w", err)
	}
	if err := b.client.RPush(ctx, queue, raw).Err(); err != nil {
		return fmt.Errorf("tasks.Enqueue: failed to push to %q: %w", queue, err)
	}
	return nil
}

// Ping verifies the broker is reachable.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client's connections.
func (b *Broker) Close() error {
	return b.client.Close()
}
