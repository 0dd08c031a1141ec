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

package ingestion

import (
	"time"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/documents"
	"github.com/immuni-app/analytics-server/internal/setup"
	"github.com/immuni-app/analytics-server/pkg/observability"
	"github.com/immuni-app/analytics-server/pkg/secrets"
)

// Compile-time check to assert this config matches requirements.
var (
	_ setup.CoordinationConfigProvider          = (*Config)(nil)
	_ setup.DocumentsConfigProvider             = (*Config)(nil)
	_ setup.SecretManagerConfigProvider         = (*Config)(nil)
	_ setup.ObservabilityExporterConfigProvider = (*Config)(nil)
)

// Config is the configuration for the scheduled ingestion service.
type Config struct {
	Coordination  coordination.Config
	Documents     documents.Config
	SecretManager secrets.Config
	Observability observability.Config

	Port string `env:"PORT, default=8080"`

	// Queue keys shared with the services feeding them.
	OperationalInfoQueueKey string `env:"OPERATIONAL_INFO_QUEUE_KEY, default=operational_info"`
	ExposureQueueKey        string `env:"EXPOSURE_PAYLOAD_QUEUE_KEY, default=ingested_exposure_data"`
	ExposureErrorsQueueKey  string `env:"EXPOSURE_PAYLOAD_ERRORS_QUEUE_KEY, default=errors_exposure_data"`

	// Max elements each store run drains, keeping individual inserts small
	// regardless of the backlog.
	MaxIngestedExposurePayloads int64 `env:"EXPOSURE_PAYLOAD_MAX_INGESTED_ELEMENTS, default=100"`
	MaxIngestedOperationalInfo  int64 `env:"OPERATIONAL_INFO_MAX_INGESTED_ELEMENTS, default=100"`

	DataRetentionDays int `env:"DATA_RETENTION_DAYS, default=30"`

	// Crontab entries driving the periodic tasks.
	StoreIngestedDataPeriodicity    string `env:"STORE_INGESTED_DATA_PERIODICITY, default=* * * * *"`
	StoreOperationalInfoPeriodicity string `env:"STORE_OPERATIONAL_INFO_PERIODICITY, default=* * * * *"`
	DeleteOldDataPeriodicity        string `env:"DELETE_OLD_DATA_PERIODICITY, default=0 0 * * *"`
}

func (c *Config) CoordinationConfig() *coordination.Config {
	return &c.Coordination
}

func (c *Config) DocumentsConfig() *documents.Config {
	return &c.Documents
}

func (c *Config) SecretManagerConfig() *secrets.Config {
	return &c.SecretManager
}

func (c *Config) ObservabilityExporterConfig() *observability.Config {
	return &c.Observability
}

// Retention is how long analytics documents are kept before the cleanup
// task removes them.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.DataRetentionDays) * 24 * time.Hour
}
