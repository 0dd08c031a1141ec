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

// Package ingestion moves analytics data from the queues fed by the API
// services into the document store, and enforces the retention policy.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opencensus.io/stats"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/documents"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// DocumentStore is the subset of the document store the periodic tasks use.
type DocumentStore interface {
	AddExposurePayloads(ctx context.Context, payloads []*model.ExposurePayload) error
	AddOperationalInfo(ctx context.Context, infos []*model.OperationalInfo) error
	DeleteExposurePayloadsBefore(ctx context.Context, reference time.Time) (int64, error)
	DeleteOperationalInfoBefore(ctx context.Context, reference time.Time) (int64, error)
}

var _ DocumentStore = (*documents.DB)(nil)

// Service runs the periodic storage and cleanup tasks.
type Service struct {
	store *coordination.Store
	db    DocumentStore

	operationalInfoQueueKey string
	exposureQueueKey        string
	exposureErrorsQueueKey  string
	maxExposurePayloads     int64
	maxOperationalInfo      int64
	retention               time.Duration
}

// New builds a Service from the given configuration.
func New(cfg *Config, store *coordination.Store, db DocumentStore) *Service {
	return &Service{
		store:                   store,
		db:                      db,
		operationalInfoQueueKey: cfg.OperationalInfoQueueKey,
		exposureQueueKey:        cfg.ExposureQueueKey,
		exposureErrorsQueueKey:  cfg.ExposureErrorsQueueKey,
		maxExposurePayloads:     cfg.MaxIngestedExposurePayloads,
		maxOperationalInfo:      cfg.MaxIngestedOperationalInfo,
		retention:               cfg.Retention(),
	}
}

// StoreExposurePayloads drains a batch of ingested exposure envelopes and
// stores the valid ones. Malformed elements are moved to the errors queue
// for manual inspection instead of being dropped.
func (s *Service) StoreExposurePayloads(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("ingestion.Service")

	elements, err := s.store.DrainList(ctx, s.exposureQueueKey, s.maxExposurePayloads)
	if err != nil {
		return fmt.Errorf("ingestion.StoreExposurePayloads: %w", err)
	}

	var payloads []*model.ExposurePayload
	var badFormat []interface{}
	for _, element := range elements {
		var ingested model.IngestedExposurePayload
		if err := json.Unmarshal([]byte(element), &ingested); err != nil || !ingested.Valid() {
			badFormat = append(badFormat, element)
			continue
		}
		payloads = append(payloads, ingested.Payload)
	}

	if len(payloads) > 0 {
		if err := s.db.AddExposurePayloads(ctx, payloads); err != nil {
			return fmt.Errorf("ingestion.StoreExposurePayloads: %w", err)
		}
		stats.Record(ctx, mStoredExposurePayload.M(int64(len(payloads))))
	}

	if len(badFormat) > 0 {
		if err := s.store.Enqueue(ctx, s.exposureErrorsQueueKey, badFormat...); err != nil {
			return fmt.Errorf("ingestion.StoreExposurePayloads: %w", err)
		}
		logger.Warnw("Found ingested data with bad format.", "bad_format_data", len(badFormat))
		stats.Record(ctx, mWrongExposurePayload.M(int64(len(badFormat))))
	}

	queueLength, err := s.store.ListLength(ctx, s.exposureQueueKey)
	if err != nil {
		return fmt.Errorf("ingestion.StoreExposurePayloads: %w", err)
	}
	logger.Infow("Store exposure payload periodic task completed.",
		"ingested_data", len(payloads),
		"ingestion_queue_length", queueLength)
	return nil
}

// StoreOperationalInfo drains a batch of operational info documents coming
// from the upload handlers and stores them. The queue is fed by this
// service's own producers, so a malformed element is a bug: it is logged
// and skipped rather than failing the batch.
func (s *Service) StoreOperationalInfo(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("ingestion.Service")
	logger.Infow("Store operational info periodic task started.")

	elements, err := s.store.DrainList(ctx, s.operationalInfoQueueKey, s.maxOperationalInfo)
	if err != nil {
		return fmt.Errorf("ingestion.StoreOperationalInfo: %w", err)
	}

	infos := make([]*model.OperationalInfo, 0, len(elements))
	for _, element := range elements {
		var info model.OperationalInfo
		if err := json.Unmarshal([]byte(element), &info); err != nil {
			logger.Warnw("failed to decode queued operational info", "error", err)
			continue
		}
		infos = append(infos, &info)
	}

	if len(infos) > 0 {
		if err := s.db.AddOperationalInfo(ctx, infos); err != nil {
			return fmt.Errorf("ingestion.StoreOperationalInfo: %w", err)
		}

		// Decremented in the same batch the documents are stored in.
		perPlatform := make(map[model.Platform]int64)
		for _, info := range infos {
			perPlatform[info.Platform]++
		}
		for platform, count := range perPlatform {
			recordEnqueued(ctx, platform, -count)
		}
	}

	queueLength, err := s.store.ListLength(ctx, s.operationalInfoQueueKey)
	if err != nil {
		return fmt.Errorf("ingestion.StoreOperationalInfo: %w", err)
	}
	logger.Infow("Store operational info periodic task completed.",
		"stored_data", len(infos),
		"operational_info_queue_length", queueLength)
	return nil
}

// DeleteOldData removes the documents older than the retention window from
// both collections.
func (s *Service) DeleteOldData(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("ingestion.Service")
	logger.Infow("Data deletion started.")

	reference := time.Now().UTC().Add(-s.retention)

	deletedPayloads, err := s.db.DeleteExposurePayloadsBefore(ctx, reference)
	if err != nil {
		return fmt.Errorf("ingestion.DeleteOldData: %w", err)
	}
	stats.Record(ctx, mDeletedExposurePayload.M(deletedPayloads))
	logger.Infow("ExposurePayload documents deletion completed.",
		"n_deleted", deletedPayloads,
		"created_before", reference.Format(time.RFC3339))

	deletedInfos, err := s.db.DeleteOperationalInfoBefore(ctx, reference)
	if err != nil {
		return fmt.Errorf("ingestion.DeleteOldData: %w", err)
	}
	stats.Record(ctx, mDeletedOperationalInfo.M(deletedInfos))
	logger.Infow("OperationalInfo documents deletion completed.",
		"n_deleted", deletedInfos,
		"created_before", reference.Format(time.RFC3339))
	return nil
}
