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

package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/immuni-app/analytics-server/internal/project"
)

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	cfg := testConfig()
	service, _, _ := newTestService(t, cfg)

	scheduler, err := NewScheduler(ctx, cfg, service)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	scheduler.Start()
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := scheduler.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewSchedulerInvalidCrontab(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	cfg := testConfig()
	cfg.StoreIngestedDataPeriodicity = "not a crontab"
	service, _, _ := newTestService(t, cfg)

	if _, err := NewScheduler(ctx, cfg, service); err == nil {
		t.Fatal("NewScheduler: want error, got nil")
	}
}
