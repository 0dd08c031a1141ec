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

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/immuni-app/analytics-server/pkg/logging"
)

// Pinger verifies that a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// pingLimiter limits when we actually ping the backing services to at most
// 1/sec to prevent a DOS since this is an unauthenticated endpoint.
var pingLimiter = rate.NewLimiter(rate.Every(1*time.Second), 1)

func HandleHealthz(pingers ...Pinger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		logger := logging.FromContext(ctx).Named("server.HandleHealthz")

		if pingLimiter.Allow() {
			for _, p := range pingers {
				if err := p.Ping(ctx); err != nil {
					logger.Errorw("failed to ping dependency", "error", err)
					http.Error(w, http.StatusText(http.StatusInternalServerError),
						http.StatusInternalServerError)
					return
				}
			}
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "ok"}`)
	})
}
