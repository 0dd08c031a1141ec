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
	"context"
	"encoding/json"
	"fmt"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/safetynet"
)

// Enqueuer covers the safetynet worker's outbound queue.
var _ safetynet.Enqueuer = (*Enqueuer)(nil)

// Enqueuer pushes validated operational info onto the storage queue the
// scheduled service drains.
type Enqueuer struct {
	store    *coordination.Store
	queueKey string
}

// NewEnqueuer builds an Enqueuer writing to the given queue.
func NewEnqueuer(store *coordination.Store, queueKey string) *Enqueuer {
	return &Enqueuer{
		store:    store,
		queueKey: queueKey,
	}
}

// EnqueueOperationalInfo appends the document to the storage queue.
func (e *Enqueuer) EnqueueOperationalInfo(ctx context.Context, info *model.OperationalInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("ingestion.EnqueueOperationalInfo: %w", err)
	}
	if err := e.store.Enqueue(ctx, e.queueKey, data); err != nil {
		return fmt.Errorf("ingestion.EnqueueOperationalInfo: %w", err)
	}
	recordEnqueued(ctx, info.Platform, 1)
	return nil
}
