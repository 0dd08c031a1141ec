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

package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/immuni-app/analytics-server/internal/model"
)

// AddOperationalInfo inserts a batch of operational info documents.
func (db *DB) AddOperationalInfo(ctx context.Context, infos []*model.OperationalInfo) error {
	if len(infos) == 0 {
		return nil
	}

	docs := make([]interface{}, len(infos))
	for i, info := range infos {
		docs[i] = info
	}
	if _, err := db.database.Collection(operationalInfoCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("documents.AddOperationalInfo: %w", err)
	}
	return nil
}

// DeleteOperationalInfoBefore deletes the operational info documents created
// before the reference time and returns how many were removed.
func (db *DB) DeleteOperationalInfoBefore(ctx context.Context, reference time.Time) (int64, error) {
	deleted, err := db.deleteBefore(ctx, operationalInfoCollection, reference)
	if err != nil {
		return 0, fmt.Errorf("documents.DeleteOperationalInfoBefore: %w", err)
	}
	return deleted, nil
}
