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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/internal/project"
)

func newTestStore(tb testing.TB) (*miniredis.Miniredis, *coordination.Store) {
	tb.Helper()

	srv := miniredis.RunT(tb)
	store, err := coordination.NewStore(context.Background(), &coordination.Config{
		URL: "redis://" + srv.Addr(),
	})
	if err != nil {
		tb.Fatalf("coordination.NewStore: %v", err)
	}
	tb.Cleanup(func() {
		if err := store.Close(); err != nil {
			tb.Errorf("failed to close store: %v", err)
		}
	})

	return srv, store
}

func TestSaltRegistry(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	_, store := newTestStore(t)
	registry := NewSaltRegistry(store, 10*time.Minute)

	used, err := registry.IsUsed(ctx, "fresh-salt")
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if used {
		t.Fatal("IsUsed reported an unseen salt as used")
	}

	burned, err := registry.Burn(ctx, "fresh-salt")
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if !burned {
		t.Fatal("Burn failed to claim an unseen salt")
	}

	used, err = registry.IsUsed(ctx, "fresh-salt")
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if !used {
		t.Fatal("IsUsed missed a burned salt")
	}

	burned, err = registry.Burn(ctx, "fresh-salt")
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if burned {
		t.Fatal("Burn claimed an already burned salt")
	}

	used, err = registry.IsUsed(ctx, "another-salt")
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if used {
		t.Fatal("IsUsed leaked a burn onto another salt")
	}
}

func TestSaltRegistryExpiry(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	srv, store := newTestStore(t)
	registry := NewSaltRegistry(store, time.Minute)

	if burned, err := registry.Burn(ctx, "short-lived"); err != nil || !burned {
		t.Fatalf("Burn: got (%t, %v), want (true, nil)", burned, err)
	}

	srv.FastForward(2 * time.Minute)

	used, err := registry.IsUsed(ctx, "short-lived")
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if used {
		t.Fatal("IsUsed reported an expired salt as used")
	}
	if burned, err := registry.Burn(ctx, "short-lived"); err != nil || !burned {
		t.Fatalf("Burn after expiry: got (%t, %v), want (true, nil)", burned, err)
	}
}
