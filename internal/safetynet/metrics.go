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

package safetynet

import (
	"context"
	"strconv"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/immuni-app/analytics-server/internal/metrics"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/observability"
)

var (
	mReusedSalt = stats.Int64(metrics.MetricRoot+"operational_info_android_reused_salt",
		"Number of Android operational info requests using an already used salt", stats.UnitDimensionless)

	afterVerificationTagKey = tag.MustNewKey("after_verification")
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "operational_info_android_reused_salt",
			Description: "Number of Android operational info requests using an already used salt",
			Measure:     mReusedSalt,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{afterVerificationTagKey},
		},
	}...)
}

// RecordReusedSalt counts a replayed salt. afterVerification distinguishes
// replays caught by the worker after a successful verification from those
// the API rejected upfront.
func RecordReusedSalt(ctx context.Context, afterVerification bool) {
	if err := stats.RecordWithTags(ctx, []tag.Mutator{
		tag.Upsert(afterVerificationTagKey, strconv.FormatBool(afterVerification)),
	}, mReusedSalt.M(1)); err != nil {
		logging.FromContext(ctx).Named("safetynet").Warnw("failed to record reused salt", "error", err)
	}
}
