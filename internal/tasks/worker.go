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

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/immuni-app/analytics-server/pkg/logging"
)

const (
	// popTimeout bounds each blocking pop so the worker can notice context
	// cancellation between jobs.
	popTimeout = 5 * time.Second

	// popBackoff is how long the worker pauses after a failed pop before
	// trying again.
	popBackoff = 1 * time.Second
)

// Handler processes the payload of one job. A returned error marks the job
// failed; it is logged and dropped.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Worker consumes one queue and dispatches jobs to registered handlers.
type Worker struct {
	broker   *Broker
	queue    string
	handlers map[string]Handler
}

// NewWorker creates a worker for the named queue.
func NewWorker(broker *Broker, queue string) *Worker {
	return &Worker{
		broker:   broker,
		queue:    queue,
		handlers: make(map[string]Handler),
	}
}

// Register installs the handler for a task name. Registering the same name
// twice panics; registration happens at startup, before Run.
func (w *Worker) Register(task string, h Handler) {
	if _, ok := w.handlers[task]; ok {
		panic(fmt.Sprintf("tasks: handler for %q is already registered", task))
	}
	w.handlers[task] = h
}

// Run consumes jobs until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("tasks.Worker")
	logger.Infow("worker started", "queue", w.queue)

	for {
		if ctx.Err() != nil {
			logger.Infow("worker stopped", "queue", w.queue)
			return nil
		}

		res, err := w.broker.client.BLPop(ctx, popTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				logger.Infow("worker stopped", "queue", w.queue)
				return nil
			}
			logger.Errorw("failed to pop job", "queue", w.queue, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(popBackoff):
			}
			continue
		}

		// res[0] is the queue name, res[1] the element.
		w.handle(ctx, res[1])
	}
}

func (w *Worker) handle(ctx context.Context, raw string) {
	logger := logging.FromContext(ctx).Named("tasks.Worker")

	var envelope Envelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		logger.Errorw("discarding malformed job", "queue", w.queue, "error", err)
		return
	}

	h, ok := w.handlers[envelope.Task]
	if !ok {
		logger.Errorw("discarding job with no registered handler", "queue", w.queue, "task", envelope.Task)
		return
	}

	start := time.Now()
	if err := h(ctx, envelope.Payload); err != nil {
		logger.Errorw("job failed", "queue", w.queue, "task", envelope.Task, "error", err)
		return
	}
	logger.Debugw("job completed", "queue", w.queue, "task", envelope.Task, "duration", time.Since(start))
}
