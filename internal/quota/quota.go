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

// Package quota implements the monthly upload ledger of analytics tokens.
//
// An authorized token owns a Redis set holding one member per upload it may
// still perform: one with and one without exposure for the current month,
// and the same pair for the next month. Uploading spends the matching
// member. The set expires on its own, so tokens need no cleanup job.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/immuni-app/analytics-server/internal/coordination"
	"github.com/immuni-app/analytics-server/pkg/timeutils"
)

// Ledger tracks the remaining upload quota of analytics tokens.
type Ledger struct {
	store      *coordination.Store
	expiration time.Duration
}

// New creates a Ledger on the given store. expiration bounds the lifetime of
// a token's quota; it should comfortably cover the two months the quota
// spans.
func New(store *coordination.Store, expiration time.Duration) *Ledger {
	return &Ledger{
		store:      store,
		expiration: expiration,
	}
}

// member returns the ledger member spent by an upload in the month of the
// given time, with or without exposure.
func member(month time.Time, withExposure bool) string {
	flag := "0"
	if withExposure {
		flag = "1"
	}
	return month.Format("2006-01-02") + ":" + flag
}

// Issue grants the token its upload quota for the current and the next
// month, and refreshes the ledger expiration. A token never holds more than
// one upload per kind per month: Issue adds set members, it does not stack
// them.
func (l *Ledger) Issue(ctx context.Context, token string, now time.Time) error {
	current := timeutils.BeginningOfMonth(now)
	next := timeutils.NextMonth(now)

	members := []interface{}{
		member(current, false),
		member(current, true),
		member(next, false),
		member(next, true),
	}

	_, err := l.store.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, token, members...)
		pipe.Expire(ctx, token, l.expiration)
		return nil
	})
	if err != nil {
		return fmt.Errorf("quota.Issue: %w", err)
	}
	return nil
}

// IsAuthorized reports whether the token has any upload quota left for the
// current month.
func (l *Ledger) IsAuthorized(ctx context.Context, token string, now time.Time) (bool, error) {
	current := timeutils.BeginningOfMonth(now)

	present, err := l.store.Client().SMIsMember(ctx, token,
		member(current, false), member(current, true)).Result()
	if err != nil {
		return false, fmt.Errorf("quota.IsAuthorized: %w", err)
	}
	for _, ok := range present {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Consume spends the token's current month quota for an upload with or
// without exposure. It reports whether there was quota left to spend: the
// removal of the member is the atomic check, so concurrent uploads cannot
// both spend the same member.
func (l *Ledger) Consume(ctx context.Context, token string, withExposure bool, now time.Time) (bool, error) {
	current := timeutils.BeginningOfMonth(now)

	removed, err := l.store.Client().SRem(ctx, token, member(current, withExposure)).Result()
	if err != nil {
		return false, fmt.Errorf("quota.Consume: %w", err)
	}
	return removed == 1, nil
}
