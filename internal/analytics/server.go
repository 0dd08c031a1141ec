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

// Package analytics exposes the HTTP surface of the analytics backend: the
// per-platform operational info uploads and the iOS token authorization
// endpoint.
//
// The surface is deliberately hard to probe. Every upload response is either
// a schema-level 400 or a 204; whether an upload was actually enqueued or
// silently dropped (quota exhausted, replayed salt, failed attestation) is
// not observable from the outside.
package analytics

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/immuni-app/analytics-server/internal/ingestion"
	"github.com/immuni-app/analytics-server/internal/middleware"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/quota"
	"github.com/immuni-app/analytics-server/internal/safetynet"
	"github.com/immuni-app/analytics-server/internal/serverenv"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/render"
	"github.com/immuni-app/analytics-server/pkg/server"
)

// Server hosts the analytics upload and authorization endpoints.
type Server struct {
	config   *Config
	env      *serverenv.ServerEnv
	h        *render.Renderer
	ledger   *quota.Ledger
	salts    *safetynet.SaltRegistry
	enqueuer *ingestion.Enqueuer
}

// NewServer makes a Server.
func NewServer(cfg *Config, env *serverenv.ServerEnv) (*Server, error) {
	if env.Coordination() == nil {
		return nil, fmt.Errorf("missing Coordination in server env")
	}
	if env.Broker() == nil {
		return nil, fmt.Errorf("missing Broker in server env")
	}

	return &Server{
		config:   cfg,
		env:      env,
		h:        render.NewRenderer(),
		ledger:   quota.New(env.Coordination(), cfg.TokenExpiration()),
		salts:    safetynet.NewSaltRegistry(env.Coordination(), cfg.SaltExpiration()),
		enqueuer: ingestion.NewEnqueuer(env.Coordination(), cfg.OperationalInfoQueueKey),
	}, nil
}

// Routes defines and returns the routes for this server.
func (s *Server) Routes(ctx context.Context) *mux.Router {
	logger := logging.FromContext(ctx)

	r := mux.NewRouter()
	r.Use(middleware.PopulateRequestID())
	r.Use(middleware.PopulateLogger(logger))
	r.Use(middleware.Recovery())

	r.Handle("/healthz", server.HandleHealthz(s.env.Coordination())).Methods(http.MethodGet)

	// Maintenance gates the API, not the health check.
	api := r.PathPrefix("/v1/analytics").Subrouter()
	api.Use(middleware.ProcessMaintenance(s.config))

	dummy := middleware.ShapeDummyTraffic(s.config.DummyRequestMean(), s.config.DummyRequestSigma(), s.h)

	api.Handle("/apple/operational-info",
		recordRequests(model.PlatformIOS)(dummy(s.handleAppleOperationalInfo()))).Methods(http.MethodPost)
	api.Handle("/google/operational-info",
		recordRequests(model.PlatformAndroid)(dummy(s.handleGoogleOperationalInfo()))).Methods(http.MethodPost)
	api.Handle("/apple/token",
		s.handleAppleToken()).Methods(http.MethodPost)

	return r
}

// isAnalyticsToken reports whether the value has the shape of an analytics
// token: fixed-size lowercase hex. Tokens are client-generated randomness,
// so the shape check is the only validation possible before the ledger
// lookup.
func (s *Server) isAnalyticsToken(token string) bool {
	if len(token) != s.config.AnalyticsTokenSize {
		return false
	}
	for _, c := range token {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "

	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return h[len(prefix):], true
}
