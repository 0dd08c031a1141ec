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
	"time"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/middleware"
	"github.com/immuni-app/analytics-server/internal/setup"
	"github.com/immuni-app/analytics-server/internal/tasks"
	"github.com/immuni-app/analytics-server/pkg/observability"
	"github.com/immuni-app/analytics-server/pkg/secrets"
)

// Compile-time check to assert this config matches requirements.
var (
	_ setup.CoordinationConfigProvider          = (*Config)(nil)
	_ setup.BrokerConfigProvider                = (*Config)(nil)
	_ setup.SecretManagerConfigProvider         = (*Config)(nil)
	_ setup.ObservabilityExporterConfigProvider = (*Config)(nil)
	_ middleware.MaintenanceModeProvider        = (*Config)(nil)
)

// Config is the configuration for the analytics HTTP server.
type Config struct {
	Coordination  coordination.Config
	Broker        tasks.Config
	SecretManager secrets.Config
	Observability observability.Config

	Port string `env:"PORT, default=8080"`

	// Maintenance rejects every request with a 429 while set, gating
	// planned downtime of the coordination store.
	Maintenance bool `env:"MAINTENANCE_MODE, default=false"`

	AnalyticsTokenSize  int `env:"ANALYTICS_TOKEN_SIZE, default=128"`
	TokenExpirationDays int `env:"ANALYTICS_TOKEN_EXPIRATION_DAYS, default=62"`

	DeviceTokenMaxLength       int `env:"DEVICE_TOKEN_MAX_LENGTH, default=10000"`
	SaltLength                 int `env:"SALT_LENGTH, default=24"`
	SignedAttestationMaxLength int `env:"SIGNED_ATTESTATION_MAX_LENGTH, default=10000"`

	// MaxSkewMinutes mirrors the setting of the Android authorization
	// worker. The salt pre-check must remember used salts at least as long
	// as the verifier accepts the attestations they arrived in.
	MaxSkewMinutes int `env:"SAFETY_NET_MAX_SKEW_MINUTES, default=10"`

	DummyRequestTimeoutMillis int `env:"DUMMY_REQUEST_TIMEOUT_MILLIS, default=150"`
	DummyRequestTimeoutSigma  int `env:"DUMMY_REQUEST_TIMEOUT_SIGMA, default=20"`

	OperationalInfoQueueKey string `env:"OPERATIONAL_INFO_QUEUE_KEY, default=operational_info"`
}

func (c *Config) CoordinationConfig() *coordination.Config {
	return &c.Coordination
}

func (c *Config) BrokerConfig() *tasks.Config {
	return &c.Broker
}

func (c *Config) SecretManagerConfig() *secrets.Config {
	return &c.SecretManager
}

func (c *Config) ObservabilityExporterConfig() *observability.Config {
	return &c.Observability
}

func (c *Config) MaintenanceMode() bool {
	return c.Maintenance
}

// TokenExpiration is the time-to-live of a token's quota.
func (c *Config) TokenExpiration() time.Duration {
	return time.Duration(c.TokenExpirationDays) * 24 * time.Hour
}

// SaltExpiration is how long a used salt stays visible to the pre-check.
func (c *Config) SaltExpiration() time.Duration {
	return time.Duration(c.MaxSkewMinutes) * time.Minute
}

// DummyRequestMean and DummyRequestSigma parameterize the response delay
// distribution of dummy uploads.
func (c *Config) DummyRequestMean() time.Duration {
	return time.Duration(c.DummyRequestTimeoutMillis) * time.Millisecond
}

func (c *Config) DummyRequestSigma() time.Duration {
	return time.Duration(c.DummyRequestTimeoutSigma) * time.Millisecond
}
