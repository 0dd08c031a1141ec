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

// This binary runs the Android attestation verification worker. It consumes
// verification jobs from the broker, checks the SafetyNet attestation and
// queues the operational info of genuine devices for storage.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/immuni-app/analytics-server/internal/buildinfo"
	"github.com/immuni-app/analytics-server/internal/ingestion"
	"github.com/immuni-app/analytics-server/internal/interrupt"
	"github.com/immuni-app/analytics-server/internal/safetynet"
	"github.com/immuni-app/analytics-server/internal/setup"
	"github.com/immuni-app/analytics-server/internal/tasks"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, done := interrupt.Context()

	logger := logging.NewLoggerFromEnv().
		With("build_id", buildinfo.AnalyticsServer.ID()).
		With("build_tag", buildinfo.AnalyticsServer.Tag())
	ctx = logging.WithLogger(ctx, logger)

	defer func() {
		done()
		if r := recover(); r != nil {
			logger.Fatalw("application panic", "panic", r)
		}
	}()

	err := realMain(ctx)
	done()

	if err != nil {
		logger.Fatal(err)
	}
	logger.Info("successful shutdown")
}

func realMain(ctx context.Context) error {
	logger := logging.FromContext(ctx)

	var config safetynet.Config
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	if err := server.ServeMetricsIfPrometheus(ctx); err != nil {
		return fmt.Errorf("server.ServeMetricsIfPrometheus: %w", err)
	}

	verifier := safetynet.NewVerifier(&config)
	salts := safetynet.NewSaltRegistry(env.Coordination(), config.MaxSkew())
	enqueuer := ingestion.NewEnqueuer(env.Coordination(), config.OperationalInfoQueueKey)
	processor := safetynet.NewProcessor(verifier, salts, enqueuer)

	worker := tasks.NewWorker(env.Broker(), safetynet.QueueKey)
	worker.Register(safetynet.TaskName, processor.HandleVerifyAttestation())

	r := mux.NewRouter()
	r.Handle("/healthz", server.HandleHealthz(env.Coordination(), env.Broker())).Methods(http.MethodGet)

	srv := server.New(config.Port, r)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}
	logger.Infow("attestation worker listening", "port", config.Port, "queue", safetynet.QueueKey)

	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("worker.Run: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
