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

package middleware

import (
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/render"
)

// ShapeDummyTraffic requires the Immuni-Dummy-Data header on every request
// and short-circuits dummy uploads with an empty 204, after a normally
// distributed delay with the given mean and standard deviation. Clients send
// dummy uploads as cover traffic; the response must not let a network
// observer tell them apart from real ones.
//
// The header is part of the request schema, so a missing or malformed value
// is rejected with a 400 before the body is even read.
func ShapeDummyTraffic(mean, sigma time.Duration, h *render.Renderer) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Header.Get(v1.DummyDataHeader) {
			case "0":
				next.ServeHTTP(w, r)
			case "1":
				delay := time.Duration(rand.NormFloat64()*float64(sigma) + float64(mean))
				if delay < 0 {
					delay = 0
				}

				select {
				case <-time.After(delay):
				case <-r.Context().Done():
				}
				h.RenderJSON(w, http.StatusNoContent, nil)
			default:
				h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			}
		})
	}
}

// IsDummy reports whether the request declared itself as cover traffic.
func IsDummy(r *http.Request) bool {
	return r.Header.Get(v1.DummyDataHeader) == "1"
}
