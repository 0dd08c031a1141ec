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

// Package serverenv defines the environment a server binary runs in: the
// shared backend connections, built once during setup and torn down together
// on exit.
package serverenv

import (
	"context"

	"github.com/hashicorp/go-multierror"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/documents"
	"github.com/immuni-app/analytics-server/internal/tasks"
	"github.com/immuni-app/analytics-server/pkg/observability"
	"github.com/immuni-app/analytics-server/pkg/secrets"
)

// ServerEnv represents the environment a server binary runs in.
type ServerEnv struct {
	coordination  *coordination.Store
	documents     *documents.DB
	broker        *tasks.Broker
	secretManager secrets.SecretManager
	exporter      observability.Exporter
}

// Option modifies the ServerEnv during creation.
type Option func(*ServerEnv) *ServerEnv

// New creates a ServerEnv with the requested options.
func New(ctx context.Context, opts ...Option) *ServerEnv {
	env := &ServerEnv{}
	for _, f := range opts {
		env = f(env)
	}
	return env
}

// WithCoordination installs the coordination store.
func WithCoordination(store *coordination.Store) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.coordination = store
		return s
	}
}

// WithDocuments installs the document store.
func WithDocuments(db *documents.DB) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.documents = db
		return s
	}
}

// WithBroker installs the task broker.
func WithBroker(broker *tasks.Broker) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.broker = broker
		return s
	}
}

// WithSecretManager installs the secret manager.
func WithSecretManager(sm secrets.SecretManager) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.secretManager = sm
		return s
	}
}

// WithObservabilityExporter installs the observability exporter.
func WithObservabilityExporter(oe observability.Exporter) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.exporter = oe
		return s
	}
}

// Coordination returns the coordination store, or nil if one is not
// installed.
func (s *ServerEnv) Coordination() *coordination.Store {
	return s.coordination
}

// Documents returns the document store, or nil if one is not installed.
func (s *ServerEnv) Documents() *documents.DB {
	return s.documents
}

// Broker returns the task broker, or nil if one is not installed.
func (s *ServerEnv) Broker() *tasks.Broker {
	return s.broker
}

// SecretManager returns the secret manager, or nil if one is not installed.
func (s *ServerEnv) SecretManager() secrets.SecretManager {
	return s.secretManager
}

// ObservabilityExporter returns the observability exporter, or nil if one is
// not installed.
func (s *ServerEnv) ObservabilityExporter() observability.Exporter {
	return s.exporter
}

// Close shuts down the server environment, releasing every installed
// connection. All closers run; their errors are collected.
func (s *ServerEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	var merr *multierror.Error

	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if s.coordination != nil {
		if err := s.coordination.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if s.documents != nil {
		if err := s.documents.Close(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}

	return merr.ErrorOrNil()
}
