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

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/immuni-app/analytics-server/internal/model"
)

// AddExposurePayloads inserts a batch of exposure payload documents.
func (db *DB) AddExposurePayloads(ctx context.Context, payloads []*model.ExposurePayload) error {
	if len(payloads) == 0 {
		return nil
	}

	docs := make([]interface{}, len(payloads))
	for i, payload := range payloads {
		docs[i] = payload
	}
	if _, err := db.database.Collection(exposurePayloadCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("documents.AddExposurePayloads: %w", err)
	}
	return nil
}

// DeleteExposurePayloadsBefore deletes the exposure payload documents created
// before the reference time and returns how many were removed.
func (db *DB) DeleteExposurePayloadsBefore(ctx context.Context, reference time.Time) (int64, error) {
	deleted, err := db.deleteBefore(ctx, exposurePayloadCollection, reference)
	if err != nil {
		return 0, fmt.Errorf("documents.DeleteExposurePayloadsBefore: %w", err)
	}
	return deleted, nil
}

// deleteBefore removes the documents of a collection created before the
// reference time. Documents carry no creation timestamp of their own: the
// ObjectId embeds the insertion time, so an $lte match on a synthetic id
// selects everything inserted up to that moment.
func (db *DB) deleteBefore(ctx context.Context, collection string, reference time.Time) (int64, error) {
	bound := primitive.NewObjectIDFromTimestamp(reference)
	res, err := db.database.Collection(collection).DeleteMany(ctx, bson.M{"_id": bson.M{"$lte": bound}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
