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

// Package setup provides common initialization logic for the server
// binaries. A binary declares the backends it needs by the provider
// interfaces its config implements; Setup processes the environment and
// builds exactly those.
package setup

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/documents"
	"github.com/immuni-app/analytics-server/internal/serverenv"
	"github.com/immuni-app/analytics-server/internal/tasks"
	"github.com/immuni-app/analytics-server/pkg/logging"
	"github.com/immuni-app/analytics-server/pkg/observability"
	"github.com/immuni-app/analytics-server/pkg/secrets"
)

// CoordinationConfigProvider signals that the config knows how to configure
// the coordination store.
type CoordinationConfigProvider interface {
	CoordinationConfig() *coordination.Config
}

// DocumentsConfigProvider signals that the config knows how to configure the
// document store.
type DocumentsConfigProvider interface {
	DocumentsConfig() *documents.Config
}

// BrokerConfigProvider signals that the config knows how to configure the
// task broker.
type BrokerConfigProvider interface {
	BrokerConfig() *tasks.Config
}

// SecretManagerConfigProvider signals that the config knows how to configure
// a secret manager. When present, values of other variables may use the
// secret:// indirection.
type SecretManagerConfigProvider interface {
	SecretManagerConfig() *secrets.Config
}

// ObservabilityExporterConfigProvider signals that the config knows how to
// configure an observability exporter.
type ObservabilityExporterConfigProvider interface {
	ObservabilityExporterConfig() *observability.Config
}

// Setup processes the environment into the provided config and builds a
// ServerEnv with the backends the config declares. Callers own the returned
// env and must Close it on exit.
func Setup(ctx context.Context, config interface{}) (*serverenv.ServerEnv, error) {
	return SetupWith(ctx, config, envconfig.OsLookuper())
}

// SetupWith is Setup with an explicit variable lookuper, for tests.
func SetupWith(ctx context.Context, config interface{}, l envconfig.Lookuper) (*serverenv.ServerEnv, error) {
	logger := logging.FromContext(ctx)

	var mutatorFuncs []envconfig.MutatorFunc
	var serverEnvOpts []serverenv.Option

	// The secret manager comes first: the remaining configuration may
	// reference values stored in it.
	if provider, ok := config.(SecretManagerConfigProvider); ok {
		logger.Info("configuring secret manager")

		smConfig := provider.SecretManagerConfig()
		if err := envconfig.ProcessWith(ctx, smConfig, l); err != nil {
			return nil, fmt.Errorf("unable to process secret manager config: %w", err)
		}

		sm, err := secrets.SecretManagerFor(ctx, smConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to connect to secret manager: %w", err)
		}
		if smConfig.CacheTTL > 0 {
			sm, err = secrets.WrapCacher(ctx, sm, smConfig.CacheTTL)
			if err != nil {
				return nil, fmt.Errorf("unable to create secret manager cache: %w", err)
			}
		}

		mutatorFuncs = append(mutatorFuncs, secrets.Resolver(sm, smConfig))
		serverEnvOpts = append(serverEnvOpts, serverenv.WithSecretManager(sm))
	}

	// Process the main config, resolving secret references along the way.
	if err := envconfig.ProcessWith(ctx, config, l, mutatorFuncs...); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	if provider, ok := config.(ObservabilityExporterConfigProvider); ok {
		logger.Info("configuring observability exporter")

		oeConfig := provider.ObservabilityExporterConfig()
		oe, err := observability.NewFromEnv(oeConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to create observability exporter: %w", err)
		}
		if err := oe.StartExporter(); err != nil {
			return nil, fmt.Errorf("error starting observability exporter: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, serverenv.WithObservabilityExporter(oe))
	}

	if provider, ok := config.(CoordinationConfigProvider); ok {
		logger.Info("configuring coordination store")

		store, err := coordination.NewStore(ctx, provider.CoordinationConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to coordination store: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, serverenv.WithCoordination(store))
	}

	if provider, ok := config.(DocumentsConfigProvider); ok {
		logger.Info("configuring document store")

		db, err := documents.NewDB(ctx, provider.DocumentsConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to document store: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, serverenv.WithDocuments(db))
	}

	if provider, ok := config.(BrokerConfigProvider); ok {
		logger.Info("configuring task broker")

		broker, err := tasks.NewBroker(ctx, provider.BrokerConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to connect to task broker: %w", err)
		}
		serverEnvOpts = append(serverEnvOpts, serverenv.WithBroker(broker))
	}

	return serverenv.New(ctx, serverEnvOpts...), nil
}
