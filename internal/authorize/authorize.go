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

// Package authorize implements the asynchronous analytics token
// authorization flow for iOS devices.
//
// The flow grants an upload quota to an analytics token after checking,
// through three spaced reads of the device's two DeviceCheck bits, that the
// device did not run a concurrent authorization. A device caught with an
// unexpected bit configuration is blacklisted by setting both bits.
package authorize

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"go.opencensus.io/stats"

	"github.com/immuni-app/analytics-server/internal/devicecheck"
	"github.com/immuni-app/analytics-server/internal/project"
	"github.com/immuni-app/analytics-server/internal/quota"
	"github.com/immuni-app/analytics-server/internal/tasks"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
	"github.com/immuni-app/analytics-server/pkg/cryptorand"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

// rnd draws the protocol pauses from the OS entropy source, so their timing
// cannot be reproduced from a seed.
var rnd = rand.New(cryptorand.NewSource())

const (
	// QueueKey is the broker queue authorization jobs are consumed from.
	QueueKey = "authorization_ios"

	// TaskName identifies the token authorization task on the queue.
	TaskName = "authorize_analytics_token"
)

// DeviceChecker is the part of the DeviceCheck client the authorization
// flow relies on.
type DeviceChecker interface {
	FetchBits(ctx context.Context, deviceToken string) (devicecheck.BitState, error)
	SetBits(ctx context.Context, deviceToken string, bit0, bit1 bool) error
}

// Authorizer runs the three-read protocol against the DeviceCheck API and
// issues the monthly quota grant for tokens that pass it.
type Authorizer struct {
	deviceCheck DeviceChecker
	ledger      *quota.Ledger
	env         project.Environment

	checkTimeMin time.Duration
	checkTimeMax time.Duration
	readTimeMin  time.Duration
	readTimeMax  time.Duration
}

// New creates an Authorizer with the environment gate and pause ranges taken
// from the given config.
func New(cfg *Config, deviceCheck DeviceChecker, ledger *quota.Ledger) *Authorizer {
	return &Authorizer{
		deviceCheck:  deviceCheck,
		ledger:       ledger,
		env:          cfg.Environment,
		checkTimeMin: secondsToDuration(cfg.CheckTimeSecondsMin),
		checkTimeMax: secondsToDuration(cfg.CheckTimeSecondsMax),
		readTimeMin:  secondsToDuration(cfg.ReadTimeSecondsMin),
		readTimeMax:  secondsToDuration(cfg.ReadTimeSecondsMax),
	}
}

// HandleAuthorizeToken returns the broker handler running the authorization
// flow. The payload is the authorization request body as received by the
// HTTP surface.
func (a *Authorizer) HandleAuthorizeToken() tasks.Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var req v1.AuthorizeTokenRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("authorize: failed to decode payload: %w", err)
		}
		return a.Authorize(ctx, req.AnalyticsToken, req.DeviceToken)
	}
}

// Authorize validates the device behind deviceToken and, on success, issues
// the upload quota for analyticsToken.
//
// A DeviceCheck API failure at any step aborts without authorization and
// without blacklisting, so the client may retry with a fresh request.
func (a *Authorizer) Authorize(ctx context.Context, analyticsToken, deviceToken string) error {
	logger := logging.FromContext(ctx).Named("authorize.Authorizer")

	stats.Record(ctx, mFirstStepBegin.M(1))
	state, err := a.deviceCheck.FetchBits(ctx, deviceToken)
	if err != nil {
		return discardAPIError(err)
	}
	used, err := state.UsedInCurrentMonth(time.Now().UTC())
	if err != nil {
		return err
	}
	if a.env.Release() && used {
		logger.Warnw("Detected device that already authorized an analytics_token in the current month.")
		return nil
	}
	if !state.IsDefault() {
		logger.Warnw("Found token that is not compliant with the default configuration in the first step.")
		return a.blacklist(ctx, deviceToken)
	}

	sleepContext(ctx, uniformDuration(a.checkTimeMin, a.checkTimeMax))

	stats.Record(ctx, mSecondStepBegin.M(1))
	state, err = a.deviceCheck.FetchBits(ctx, deviceToken)
	if err != nil {
		return discardAPIError(err)
	}
	if !state.IsDefault() {
		logger.Warnw("Found token that is not compliant with the default configuration in the second step.")
		return a.blacklist(ctx, deviceToken)
	}
	if err := a.deviceCheck.SetBits(ctx, deviceToken, true, false); err != nil {
		return discardAPIError(err)
	}

	sleepContext(ctx, uniformDuration(a.readTimeMin, a.readTimeMax))

	stats.Record(ctx, mThirdStepBegin.M(1))
	state, err = a.deviceCheck.FetchBits(ctx, deviceToken)
	if err != nil {
		return discardAPIError(err)
	}
	if !state.IsAuthorized() {
		logger.Warnw("Found token that is not authorized in the third step.")
		return a.blacklist(ctx, deviceToken)
	}
	if err := a.deviceCheck.SetBits(ctx, deviceToken, false, false); err != nil {
		return discardAPIError(err)
	}

	if err := a.ledger.Issue(ctx, analyticsToken, time.Now().UTC()); err != nil {
		return fmt.Errorf("authorize: failed to issue quota: %w", err)
	}

	logger.Infow("New authorized analytics token.")
	stats.Record(ctx, mAuthorized.M(1))
	return nil
}

// blacklist marks the device as compromised. The remote write only happens
// in the release environment, the metric is recorded everywhere.
func (a *Authorizer) blacklist(ctx context.Context, deviceToken string) error {
	stats.Record(ctx, mBlacklisted.M(1))

	if !a.env.Release() {
		return nil
	}
	if err := a.deviceCheck.SetBits(ctx, deviceToken, true, true); err != nil {
		return discardAPIError(err)
	}
	return nil
}

// discardAPIError swallows DeviceCheck API failures. The flow aborts, the
// job ends cleanly, and the device keeps whatever state it had.
func discardAPIError(err error) error {
	if devicecheck.IsAPIError(err) {
		return nil
	}
	return err
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// uniformDuration picks a uniform random duration in [min, max].
func uniformDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rnd.Int63n(int64(max-min)))
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
