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
	"context"
	"fmt"
	"time"

	"github.com/immuni-app/analytics-server/internal/coordination"
)

// saltKeyPrefix namespaces burned salts in the coordination store. The tilde
// keeps them apart from the queue keys sharing the same database.
const saltKeyPrefix = "~safetynet-used-salt:"

// SaltRegistry remembers the salts of verified attestations so that a
// captured attestation cannot be replayed. Entries expire together with the
// attestation timestamp window they belong to.
type SaltRegistry struct {
	store *coordination.Store
	ttl   time.Duration
}

// NewSaltRegistry builds a registry on the given store. ttl should match the
// verifier's maximum clock skew: past that window a replayed attestation is
// rejected by the timestamp check alone.
func NewSaltRegistry(store *coordination.Store, ttl time.Duration) *SaltRegistry {
	return &SaltRegistry{
		store: store,
		ttl:   ttl,
	}
}

// Burn marks the salt as used. It reports false when the salt was already
// burned by an earlier upload.
func (r *SaltRegistry) Burn(ctx context.Context, salt string) (bool, error) {
	burned, err := r.store.Client().SetNX(ctx, saltKey(salt), "1", r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("safetynet.Burn: %w", err)
	}
	return burned, nil
}

// IsUsed reports whether the salt was burned already, without burning it.
func (r *SaltRegistry) IsUsed(ctx context.Context, salt string) (bool, error) {
	n, err := r.store.Client().Exists(ctx, saltKey(salt)).Result()
	if err != nil {
		return false, fmt.Errorf("safetynet.IsUsed: %w", err)
	}
	return n > 0, nil
}

func saltKey(salt string) string {
	return saltKeyPrefix + salt
}
