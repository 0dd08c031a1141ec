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

// This utility seeds a local development stack: it authorizes an analytics
// token and queues sample exposure payloads, so the upload endpoints and the
// scheduled tasks have something to work with.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/immuni-app/analytics-server/internal/buildinfo"
	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/interrupt"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/project"
	"github.com/immuni-app/analytics-server/internal/quota"
	"github.com/immuni-app/analytics-server/internal/setup"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// Compile-time check to assert this config matches requirements.
var _ setup.CoordinationConfigProvider = (*seedConfig)(nil)

type seedConfig struct {
	Coordination coordination.Config

	// AnalyticsToken is the token to authorize. A random one is generated
	// when empty.
	AnalyticsToken      string `env:"SEED_ANALYTICS_TOKEN"`
	TokenSize           int    `env:"ANALYTICS_TOKEN_SIZE, default=128"`
	TokenExpirationDays int    `env:"ANALYTICS_TOKEN_EXPIRATION_DAYS, default=62"`

	ExposurePayloads int    `env:"SEED_EXPOSURE_PAYLOADS, default=25"`
	ExposureQueueKey string `env:"EXPOSURE_PAYLOAD_QUEUE_KEY, default=ingested_exposure_data"`
}

func (c *seedConfig) CoordinationConfig() *coordination.Config {
	return &c.Coordination
}

func main() {
	ctx, done := interrupt.Context()

	logger := logging.NewLoggerFromEnv().Named("tools.seed").
		With("build_id", buildinfo.AnalyticsServer.ID()).
		With("build_tag", buildinfo.AnalyticsServer.Tag())
	ctx = logging.WithLogger(ctx, logger)

	err := realMain(ctx)
	done()

	if err != nil {
		logger.Fatal(err)
	}
	logger.Info("seeding complete")
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var config seedConfig
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	store := env.Coordination()
	now := time.Now().UTC()

	token := config.AnalyticsToken
	if token == "" {
		if token, err = project.RandomHexString(config.TokenSize); err != nil {
			return fmt.Errorf("failed to generate analytics token: %w", err)
		}
	}
	ledger := quota.New(store, time.Duration(config.TokenExpirationDays)*24*time.Hour)
	if err := ledger.Issue(ctx, token, now); err != nil {
		return fmt.Errorf("failed to issue quota: %w", err)
	}
	logger.Infow("authorized analytics token", "analytics_token", token)

	elements := make([]interface{}, 0, config.ExposurePayloads)
	for i := 0; i < config.ExposurePayloads; i++ {
		b, err := json.Marshal(samplePayload(now, i))
		if err != nil {
			return fmt.Errorf("failed to encode sample payload: %w", err)
		}
		elements = append(elements, b)
	}
	if err := store.Enqueue(ctx, config.ExposureQueueKey, elements...); err != nil {
		return fmt.Errorf("failed to queue sample payloads: %w", err)
	}
	logger.Infow("queued sample exposure payloads",
		"count", len(elements),
		"queue", config.ExposureQueueKey)
	return nil
}

var seedProvinces = []string{"RM", "MI", "NA", "TO", "FI"}

func samplePayload(now time.Time, i int) *model.IngestedExposurePayload {
	d := now.AddDate(0, 0, -(i % 14))
	day := model.NewDate(d.Year(), d.Month(), d.Day())

	return &model.IngestedExposurePayload{
		Version: model.CurrentPayloadVersion,
		Payload: &model.ExposurePayload{
			Province: seedProvinces[i%len(seedProvinces)],
			ExposureDetectionSummaries: []model.ExposureDetectionSummary{{
				Date:                  day,
				MatchedKeyCount:       1 + i%3,
				DaysSinceLastExposure: i % 7,
				AttenuationDurations:  []int{300, 0, 0},
				MaximumRiskScore:      4,
				ExposureInfo: []model.ExposureInfo{{
					Date:                  day,
					Duration:              300,
					AttenuationValue:      45,
					AttenuationDurations:  []int{300, 0, 0},
					TransmissionRiskLevel: 1 + i%8,
					TotalRiskScore:        4,
				}},
			}},
		},
	}
}
