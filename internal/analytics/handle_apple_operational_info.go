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
	"errors"
	"net/http"
	"time"

	"github.com/immuni-app/analytics-server/internal/jsonutil"
	"github.com/immuni-app/analytics-server/internal/model"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// handleAppleOperationalInfo ingests an iOS operational info upload. The
// bearer token must hold quota for the upload's exposure_notification value;
// an upload without quota gets the same 204 as a stored one, so the response
// never reveals whether the token was authorized.
func (s *Server) handleAppleOperationalInfo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleAppleOperationalInfo")

		token, ok := bearerToken(r)
		if !ok || !s.isAnalyticsToken(token) {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		var req v1.AppleOperationalInfoRequest
		if _, err := jsonutil.Unmarshal(w, r, &req); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		info, err := model.NewOperationalInfo(model.PlatformIOS, &req.OperationalInfo)
		if err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		consumed, err := s.ledger.Consume(ctx, token, info.ExposureNotification, time.Now().UTC())
		if err != nil {
			logger.Errorw("failed to consume upload quota", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}

		if consumed {
			if err := s.enqueuer.EnqueueOperationalInfo(ctx, info); err != nil {
				logger.Errorw("failed to enqueue operational info", "error", err)
				s.h.RenderJSON(w, http.StatusInternalServerError, nil)
				return
			}
		}

		s.h.RenderJSON(w, http.StatusNoContent, nil)
	})
}
