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

// This binary hosts the analytics HTTP surface: the per-platform operational
// info uploads and the iOS token authorization endpoint.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/immuni-app/analytics-server/internal/analytics"
	"github.com/immuni-app/analytics-server/internal/buildinfo"
	"github.com/immuni-app/analytics-server/internal/interrupt"
	"github.com/immuni-app/analytics-server/internal/setup"
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

	var config analytics.Config
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	if err := server.ServeMetricsIfPrometheus(ctx); err != nil {
		return fmt.Errorf("server.ServeMetricsIfPrometheus: %w", err)
	}

	analyticsServer, err := analytics.NewServer(&config, env)
	if err != nil {
		return fmt.Errorf("analytics.NewServer: %w", err)
	}

	srv := server.New(config.Port, analyticsServer.Routes(ctx))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}
	logger.Infow("analytics server listening", "port", config.Port)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
