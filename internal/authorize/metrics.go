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

package authorize

import (
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"

	"github.com/immuni-app/analytics-server/internal/metrics"
	"github.com/immuni-app/analytics-server/pkg/observability"
)

var (
	mFirstStepBegin = stats.Int64(metrics.MetricRoot+"authorize_analytics_token_first_step_begin",
		"Number of analytics tokens which started the authorization first step", stats.UnitDimensionless)
	mSecondStepBegin = stats.Int64(metrics.MetricRoot+"authorize_analytics_token_second_step_begin",
		"Number of analytics tokens which started the authorization second step", stats.UnitDimensionless)
	mThirdStepBegin = stats.Int64(metrics.MetricRoot+"authorize_analytics_token_third_step_begin",
		"Number of analytics tokens which started the authorization third step", stats.UnitDimensionless)
	mAuthorized = stats.Int64(metrics.MetricRoot+"authorize_analytics_token_authorized",
		"Number of analytics tokens successfully authorized", stats.UnitDimensionless)
	mBlacklisted = stats.Int64(metrics.MetricRoot+"authorize_analytics_token_blacklisted",
		"Number of analytics tokens unsuccessfully authorized", stats.UnitDimensionless)
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "authorize_analytics_token_first_step_begin",
			Description: "Number of analytics tokens which started the authorization first step",
			Measure:     mFirstStepBegin,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "authorize_analytics_token_second_step_begin",
			Description: "Number of analytics tokens which started the authorization second step",
			Measure:     mSecondStepBegin,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "authorize_analytics_token_third_step_begin",
			Description: "Number of analytics tokens which started the authorization third step",
			Measure:     mThirdStepBegin,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "authorize_analytics_token_authorized",
			Description: "Number of analytics tokens successfully authorized",
			Measure:     mAuthorized,
			Aggregation: view.Sum(),
		},
		{
			Name:        metrics.MetricRoot + "authorize_analytics_token_blacklisted",
			Description: "Number of analytics tokens unsuccessfully authorized",
			Measure:     mBlacklisted,
			Aggregation: view.Sum(),
		},
	}...)
}
