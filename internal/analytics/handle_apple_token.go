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
	"encoding/base64"
	"errors"
	"net/http"
	"time"

	"github.com/immuni-app/analytics-server/internal/authorize"
	"github.com/immuni-app/analytics-server/internal/jsonutil"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// handleAppleToken reports whether an analytics token already holds quota,
// scheduling the DeviceCheck authorization flow when it does not. 201 means
// authorized, 202 means a worker will take it from here; clients poll until
// they see the 201.
func (s *Server) handleAppleToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleAppleToken")

		var req v1.AuthorizeTokenRequest
		if _, err := jsonutil.Unmarshal(w, r, &req); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		if !s.isAnalyticsToken(req.AnalyticsToken) || !s.isDeviceToken(req.DeviceToken) {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		authorized, err := s.ledger.IsAuthorized(ctx, req.AnalyticsToken, time.Now().UTC())
		if err != nil {
			logger.Errorw("failed to check token authorization", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}
		if authorized {
			s.h.RenderJSON(w, http.StatusCreated, nil)
			return
		}

		if err := s.env.Broker().Enqueue(ctx, authorize.QueueKey, authorize.TaskName, &req); err != nil {
			logger.Errorw("failed to schedule token authorization", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}

		s.h.RenderJSON(w, http.StatusAccepted, nil)
	})
}

// isDeviceToken reports whether the value can be a DeviceCheck token:
// non-empty base64 within the configured size cap.
func (s *Server) isDeviceToken(token string) bool {
	if token == "" || len(token) > s.config.DeviceTokenMaxLength {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(token)
	return err == nil
}
