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

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/immuni-app/analytics-server/internal/metrics"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/observability"
)

var (
	mStoredExposurePayload = stats.Int64(metrics.MetricRoot+"stored_exposure_payload",
		"Number of stored ExposurePayload documents", stats.UnitDimensionless)
	mWrongExposurePayload = stats.Int64(metrics.MetricRoot+"wrong_exposure_payload",
		"Number of malformed ExposurePayload documents coming from the ingestion MS", stats.UnitDimensionless)
	mDeletedExposurePayload = stats.Int64(metrics.MetricRoot+"deleted_exposure_payload",
		"Number of deleted ExposurePayload documents", stats.UnitDimensionless)
	mDeletedOperationalInfo = stats.Int64(metrics.MetricRoot+"deleted_operational_info",
		"Number of deleted OperationalInfo documents", stats.UnitDimensionless)

	// mOperationalInfoEnqueued sums to the number of documents sitting on
	// the storage queue: the enqueuers record +1, the store task records -1
	// per stored document.
	mOperationalInfoEnqueued = stats.Int64(metrics.MetricRoot+"operational_info_enqueued",
		"Number of operational info requests enqueued", stats.UnitDimensionless)

	platformTagKey = tag.MustNewKey("platform")
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "stored_exposure_payload",
			Description: "Number of stored ExposurePayload documents",
			Measure:     mStoredExposurePayload,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "wrong_exposure_payload",
			Description: "Number of malformed ExposurePayload documents coming from the ingestion MS",
			Measure:     mWrongExposurePayload,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "deleted_exposure_payload",
			Description: "Number of deleted ExposurePayload documents",
			Measure:     mDeletedExposurePayload,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "deleted_operational_info",
			Description: "Number of deleted OperationalInfo documents",
			Measure:     mDeletedOperationalInfo,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "operational_info_enqueued",
			Description: "Number of operational info requests enqueued",
			Measure:     mOperationalInfoEnqueued,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{platformTagKey},
		},
	}...)
}

func recordEnqueued(ctx context.Context, platform model.Platform, delta int64) {
	if err := stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(platformTagKey, platform.String()),
	}, mOperationalInfoEnqueued.M(delta)); err != nil {
		logging.FromContext(ctx).Named("ingestion").Warnw("failed to record enqueued operational info", "error", err)
	}
}
