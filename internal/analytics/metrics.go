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

package analytics

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"

	"github.com/immuni-app/analytics-server/internal/metrics"
	"github.com/immuni-app/analytics-server/internal/middleware"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/observability"
)

var (
	mRequests = stats.Int64(metrics.MetricRoot+"operational_info_requests",
		"Number of operational info requests the server responded to", stats.UnitDimensionless)

	platformTagKey = tag.MustNewKey("platform")
	dummyTagKey    = tag.MustNewKey("dummy")
	statusTagKey   = tag.MustNewKey("http_status")
)

func init() {
	observability.CollectViews([]*view.View{
		{
			Name:        metrics.MetricRoot + "operational_info_requests",
			Description: "Number of operational info requests the server responded to",
			Measure:     mRequests,
			Aggregation: view.Sum(),
			TagKeys:     []tag.Key{platformTagKey, dummyTagKey, statusTagKey},
		},
	}...)
}

// recordRequests counts every response an upload endpoint produces, dummies
// and schema rejections included. It runs outside the dummy shaper so the
// status it records is the one on the wire.
func recordRequests(platform model.Platform) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			err := stats.RecordWithTags(ctx, []tag.Mutator{
				tag.Upsert(platformTagKey, platform.String()),
				tag.Upsert(dummyTagKey, strconv.FormatBool(middleware.IsDummy(r))),
				tag.Upsert(statusTagKey, strconv.Itoa(recorder.status)),
			}, mRequests.M(1))
			if err != nil {
				logging.FromContext(ctx).Warnw("failed to record request", "error", err)
			}
		})
	}
}

// statusRecorder remembers the status code written to the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
