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

// Package documents is a facade over the document store holding the
// analytics corpus.
package documents

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	operationalInfoCollection = "operational_info"
	exposurePayloadCollection = "exposure_payload"
)

// Config holds the connection configuration of the document store.
type Config struct {
	URL            string        `env:"ANALYTICS_MONGO_URL, default=mongodb://localhost:27017"`
	Database       string        `env:"ANALYTICS_MONGO_DB, default=immuni-analytics"`
	ConnectTimeout time.Duration `env:"ANALYTICS_MONGO_CONNECT_TIMEOUT, default=10s"`
}

// DB wraps the client of the document store.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewDB connects to the configured document store and verifies the
// connection.
func NewDB(ctx context.Context, cfg *Config) (*DB, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("documents.NewDB: failed to connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("documents.NewDB: failed to ping: %w", err)
	}

	return &DB{
		client:   client,
		database: client.Database(cfg.Database),
	}, nil
}

// Ping verifies the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, readpref.Primary())
}

// Close disconnects from the store.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}
