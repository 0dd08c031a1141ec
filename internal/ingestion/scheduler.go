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
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/immuni-app/analytics-server/pkg/logging"
)

// Scheduler drives the periodic tasks. A task whose previous run is still
// in flight is skipped, so a slow store cannot pile up concurrent batches.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler registers the periodic tasks on their configured crontabs.
// ctx is the context the tasks will run under; cancelling it aborts the
// in-flight ones.
func NewScheduler(ctx context.Context, cfg *Config, service *Service) (*Scheduler, error) {
	logger := logging.FromContext(ctx).Named("ingestion.Scheduler")

	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{logger: logger}),
	))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"store_exposure_payloads", cfg.StoreIngestedDataPeriodicity, service.StoreExposurePayloads},
		{"store_operational_info", cfg.StoreOperationalInfoPeriodicity, service.StoreOperationalInfo},
		{"delete_old_data", cfg.DeleteOldDataPeriodicity, service.DeleteOldData},
	}
	for _, job := range jobs {
		job := job
		if _, err := c.AddFunc(job.spec, func() {
			if err := job.run(ctx); err != nil {
				logger.Errorw("periodic task failed", "task", job.name, "error", err)
			}
		}); err != nil {
			return nil, fmt.Errorf("ingestion.NewScheduler: invalid crontab for %s: %w", job.name, err)
		}
	}

	return &Scheduler{cron: c}, nil
}

// Start begins dispatching tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops dispatching and waits for the running tasks to finish, up to
// the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts the service logger to the cron logging interface, which
// only receives skip notices from the job chain.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
