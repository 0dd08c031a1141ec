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

// This binary runs every server component in a single process: the analytics
// HTTP surface, both authorization workers and the scheduled ingestion tasks.
// It is intended for development and small deployments.
package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/immuni-app/analytics-server/internal/analytics"
	"github.com/immuni-app/analytics-server/internal/authorize"
	"github.com/immuni-app/analytics-server/internal/buildinfo"
	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/devicecheck"
	"github.com/immuni-app/analytics-server/internal/documents"
	"github.com/immuni-app/analytics-server/internal/ingestion"
	"github.com/immuni-app/analytics-server/internal/interrupt"
	"github.com/immuni-app/analytics-server/internal/quota"
	"github.com/immuni-app/analytics-server/internal/safetynet"
	"github.com/immuni-app/analytics-server/internal/setup"
	"github.com/immuni-app/analytics-server/internal/tasks"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/observability"
	"github.com/immuni-app/analytics-server/pkg/secrets"
	"github.com/immuni-app/analytics-server/pkg/server"
)

const shutdownTimeout = 10 * time.Second

// Compile-time check to assert this config matches requirements.
var (
	_ setup.CoordinationConfigProvider          = (*MonoConfig)(nil)
	_ setup.BrokerConfigProvider                = (*MonoConfig)(nil)
	_ setup.DocumentsConfigProvider             = (*MonoConfig)(nil)
	_ setup.SecretManagerConfigProvider         = (*MonoConfig)(nil)
	_ setup.ObservabilityExporterConfigProvider = (*MonoConfig)(nil)
)

// MonoConfig aggregates every component config. Nested configs read the same
// environment variables they read when deployed separately, so a value set
// once reaches every component that uses it.
type MonoConfig struct {
	Analytics analytics.Config
	Authorize authorize.Config
	SafetyNet safetynet.Config
	Ingestion ingestion.Config

	Port string `env:"PORT, default=8080"`
}

func (c *MonoConfig) CoordinationConfig() *coordination.Config { return &c.Analytics.Coordination }
func (c *MonoConfig) BrokerConfig() *tasks.Config              { return &c.Analytics.Broker }
func (c *MonoConfig) DocumentsConfig() *documents.Config       { return &c.Ingestion.Documents }
func (c *MonoConfig) SecretManagerConfig() *secrets.Config     { return &c.Analytics.SecretManager }

func (c *MonoConfig) ObservabilityExporterConfig() *observability.Config {
	return &c.Analytics.Observability
}

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

	var config MonoConfig
	env, err := setup.Setup(ctx, &config)
	if err != nil {
		return fmt.Errorf("setup.Setup: %w", err)
	}
	defer env.Close(ctx)

	if err := server.ServeMetricsIfPrometheus(ctx); err != nil {
		return fmt.Errorf("server.ServeMetricsIfPrometheus: %w", err)
	}

	// Analytics HTTP surface.
	analyticsServer, err := analytics.NewServer(&config.Analytics, env)
	if err != nil {
		return fmt.Errorf("analytics.NewServer: %w", err)
	}

	// iOS token authorization worker.
	deviceCheck, err := devicecheck.New(&config.Authorize.DeviceCheck)
	if err != nil {
		return fmt.Errorf("devicecheck.New: %w", err)
	}
	ledger := quota.New(env.Coordination(), config.Authorize.TokenExpiration())
	authorizer := authorize.New(&config.Authorize, deviceCheck, ledger)
	iosWorker := tasks.NewWorker(env.Broker(), authorize.QueueKey)
	iosWorker.Register(authorize.TaskName, authorizer.HandleAuthorizeToken())

	// Android attestation verification worker.
	verifier := safetynet.NewVerifier(&config.SafetyNet)
	salts := safetynet.NewSaltRegistry(env.Coordination(), config.SafetyNet.MaxSkew())
	enqueuer := ingestion.NewEnqueuer(env.Coordination(), config.SafetyNet.OperationalInfoQueueKey)
	processor := safetynet.NewProcessor(verifier, salts, enqueuer)
	androidWorker := tasks.NewWorker(env.Broker(), safetynet.QueueKey)
	androidWorker.Register(safetynet.TaskName, processor.HandleVerifyAttestation())

	// Scheduled ingestion tasks.
	service := ingestion.New(&config.Ingestion, env.Coordination(), env.Documents())
	scheduler, err := ingestion.NewScheduler(ctx, &config.Ingestion, service)
	if err != nil {
		return fmt.Errorf("ingestion.NewScheduler: %w", err)
	}

	srv := server.New(config.Port, analyticsServer.Routes(ctx))
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server.Start: %w", err)
	}
	scheduler.Start()
	logger.Infow("monolith running", "port", config.Port)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return iosWorker.Run(gctx) })
	group.Go(func() error { return androidWorker.Run(gctx) })
	if err := group.Wait(); err != nil {
		return fmt.Errorf("worker.Run: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("scheduler.Stop: %w", err)
	}
	return srv.Stop(shutdownCtx)
}
