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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
)

func newTestBroker(tb testing.TB) *Broker {
	tb.Helper()

	srv := miniredis.RunT(tb)
	broker, err := NewBroker(context.Background(), &Config{URL: "redis://" + srv.Addr()})
	if err != nil {
		tb.Fatalf("failed to create broker: %v", err)
	}
	tb.Cleanup(func() {
		broker.Close()
	})
	return broker
}

func TestWorkerProcessesJobs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := newTestBroker(t)

	type job struct {
		Name string `json:"name"`
	}

	got := make(chan job, 2)
	worker := NewWorker(broker, "test_queue")
	worker.Register("greet", func(ctx context.Context, payload json.RawMessage) error {
		var j job
		if err := json.Unmarshal(payload, &j); err != nil {
			return err
		}
		got <- j
		return nil
	})

	// A malformed element and a job without a handler must both be dropped
	// without stopping the worker.
	if err := broker.client.RPush(ctx, "test_queue", "not json").Err(); err != nil {
		t.Fatal(err)
	}
	if err := broker.Enqueue(ctx, "test_queue", "unknown", &job{Name: "nobody"}); err != nil {
		t.Fatal(err)
	}
	if err := broker.Enqueue(ctx, "test_queue", "greet", &job{Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := broker.Enqueue(ctx, "test_queue", "greet", &job{Name: "second"}); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	want := []job{{Name: "first"}, {Name: "second"}}
	var processed []job
	for len(processed) < len(want) {
		select {
		case j := <-got:
			processed = append(processed, j)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, processed %v", processed)
		}
	}
	if diff := cmp.Diff(want, processed); diff != "" {
		t.Errorf("jobs mismatch (-want, +got):\n%s", diff)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancellation", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	t.Parallel()

	broker := newTestBroker(t)
	worker := NewWorker(broker, "q")
	worker.Register("task", func(context.Context, json.RawMessage) error { return nil })

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	worker.Register("task", func(context.Context, json.RawMessage) error { return nil })
}
