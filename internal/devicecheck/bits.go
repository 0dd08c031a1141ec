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

package devicecheck

import (
	"fmt"
	"time"

	"github.com/immuni-app/analytics-server/pkg/timeutils"
)

// monthLayout is the format of the last_update_time field of the DeviceCheck
// API.
const monthLayout = "2006-01"

// BitState is the per-device two bit state the DeviceCheck API stores, with
// the month it was last written. The authorization flow encodes three device
// conditions in the two bits: default (00), authorized (10) and
// blacklisted (11).
type BitState struct {
	Bit0           bool   `json:"bit0"`
	Bit1           bool   `json:"bit1"`
	LastUpdateTime string `json:"last_update_time"`
}

// IsDefault reports whether the device is in the default configuration,
// with both bits unset.
func (s BitState) IsDefault() bool {
	return !s.Bit0 && !s.Bit1
}

// IsAuthorized reports whether the device holds an authorization.
func (s BitState) IsAuthorized() bool {
	return s.Bit0 && !s.Bit1
}

// IsBlacklisted reports whether the device has been blacklisted.
func (s BitState) IsBlacklisted() bool {
	return s.Bit0 && s.Bit1
}

// UsedInCurrentMonth reports whether the device state was last written in
// the current month or later. A device whose state was never written
// reports false.
func (s BitState) UsedInCurrentMonth(now time.Time) (bool, error) {
	if s.LastUpdateTime == "" {
		return false, nil
	}
	updated, err := time.Parse(monthLayout, s.LastUpdateTime)
	if err != nil {
		return false, fmt.Errorf("devicecheck: invalid last_update_time %q: %w", s.LastUpdateTime, err)
	}
	return !timeutils.BeginningOfMonth(updated).Before(timeutils.BeginningOfMonth(now)), nil
}
