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

	"github.com/immuni-app/analytics-server/internal/jsonutil"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/safetynet"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// handleGoogleOperationalInfo ingests an Android operational info upload.
// Verifying the SafetyNet attestation needs a certificate chain check and a
// signature verification, too much work for the request path; the upload is
// parked on the authorization queue and verified by a worker. The response
// is a 204 either way.
//
// The used-salt lookup is a fast path to shed replays early. The
// authoritative check stays in the worker, behind an atomic set-if-absent.
func (s *Server) handleGoogleOperationalInfo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleGoogleOperationalInfo")

		var req v1.GoogleOperationalInfoRequest
		if _, err := jsonutil.Unmarshal(w, r, &req); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		if _, err := model.NewOperationalInfo(model.PlatformAndroid, &req.OperationalInfo); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}
		if !s.isSalt(req.Salt) || !s.isSignedAttestation(req.SignedAttestation) {
			s.h.RenderJSON(w, http.StatusBadRequest, errors.New(v1.ErrorSchemaValidation))
			return
		}

		used, err := s.salts.IsUsed(ctx, req.Salt)
		if err != nil {
			logger.Errorw("failed to check salt", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}
		if used {
			logger.Warnw("Found previously used salt.", "salt", req.Salt)
			safetynet.RecordReusedSalt(ctx, false)
			s.h.RenderJSON(w, http.StatusNoContent, nil)
			return
		}

		if err := s.env.Broker().Enqueue(ctx, safetynet.QueueKey, safetynet.TaskName, &req); err != nil {
			logger.Errorw("failed to schedule attestation verification", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, nil)
			return
		}

		s.h.RenderJSON(w, http.StatusNoContent, nil)
	})
}

// isSalt reports whether the value has the shape of a client salt: exactly
// the configured number of base64 characters.
func (s *Server) isSalt(salt string) bool {
	if len(salt) != s.config.SaltLength {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(salt)
	return err == nil
}

func (s *Server) isSignedAttestation(attestation string) bool {
	return attestation != "" && len(attestation) <= s.config.SignedAttestationMaxLength
}
