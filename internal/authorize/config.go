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

package authorize

import (
	"time"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/devicecheck"
	"github.com/immuni-app/analytics-server/internal/project"
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
)

// Config is the configuration for the iOS token authorization worker.
type Config struct {
	Coordination  coordination.Config
	Broker        tasks.Config
	DeviceCheck   devicecheck.Config
	SecretManager secrets.Config
	Observability observability.Config

	Port string `env:"PORT, default=8080"`

	// Environment gates the destructive DeviceCheck writes: devices are
	// blacklisted in release only, so developer devices survive testing.
	Environment project.Environment `env:"ENV, default=development"`

	TokenExpirationDays int `env:"ANALYTICS_TOKEN_EXPIRATION_DAYS, default=62"`

	// Randomized pauses between the DeviceCheck reads. They widen the race
	// window a concurrent authorization attempt has to fit into.
	CheckTimeSecondsMin float64 `env:"CHECK_TIME_SECONDS_MIN, default=7"`
	CheckTimeSecondsMax float64 `env:"CHECK_TIME_SECONDS_MAX, default=10"`
	ReadTimeSecondsMin  float64 `env:"READ_TIME_SECONDS_MIN, default=0"`
	ReadTimeSecondsMax  float64 `env:"READ_TIME_SECONDS_MAX, default=3"`
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

// TokenExpiration is the time-to-live of a token's quota.
func (c *Config) TokenExpiration() time.Duration {
	return time.Duration(c.TokenExpirationDays) * 24 * time.Hour
}
