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

package safetynet

import (
	"time"

	"github.com/immuni-app/analytics-server/internal/coordination"
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

// Config is the configuration for the Android attestation verification
// worker.
type Config struct {
	Coordination  coordination.Config
	Broker        tasks.Config
	SecretManager secrets.Config
	Observability observability.Config

	Port string `env:"PORT, default=8080"`

	// IssuerHostname is the hostname the attestation leaf certificate must
	// be issued to.
	IssuerHostname string `env:"SAFETY_NET_ISSUER_HOSTNAME, default=attest.android.com"`

	// PackageName and APKDigest identify the app allowed to upload.
	PackageName string `env:"SAFETY_NET_PACKAGE_NAME, default=it.ministerodellasalute.immuni"`
	APKDigest   string `env:"SAFETY_NET_APK_DIGEST"`

	// MaxSkewMinutes bounds the age of an attestation. It also bounds the
	// useful lifetime of a salt, so burned salts are only remembered this
	// long.
	MaxSkewMinutes int `env:"SAFETY_NET_MAX_SKEW_MINUTES, default=10"`

	// OperationalInfoQueueKey is the queue verified uploads are pushed to
	// for the scheduled storage task to drain.
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

// MaxSkew is the tolerated distance between an attestation timestamp and the
// server clock.
func (c *Config) MaxSkew() time.Duration {
	return time.Duration(c.MaxSkewMinutes) * time.Minute
}
