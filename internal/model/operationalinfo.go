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

// Package model contains the documents persisted by the analytics service and
// the validation that turns wire requests into them.
package model

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
)

// minLastRiskyExposureYear bounds the plausible dates of a risky exposure.
// The exposure notification system did not exist before 2020.
const minLastRiskyExposureYear = 2020

// OperationalInfo is the stored form of an upload of epidemiological
// indicators. The same shape travels on the ingestion queue as JSON and is
// persisted to the document store as BSON.
//
// LastRiskyExposureOn is only set when the upload reported an exposure
// notification: without one, the date carries no signal and retaining it
// would only grow the stored fingerprint of the device.
type OperationalInfo struct {
	ID                     primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Platform               Platform           `bson:"platform" json:"platform"`
	Province               string             `bson:"province" json:"province"`
	ExposurePermission     bool               `bson:"exposure_permission" json:"exposure_permission"`
	BluetoothActive        bool               `bson:"bluetooth_active" json:"bluetooth_active"`
	NotificationPermission bool               `bson:"notification_permission" json:"notification_permission"`
	ExposureNotification   bool               `bson:"exposure_notification" json:"exposure_notification"`
	LastRiskyExposureOn    *Date              `bson:"last_risky_exposure_on" json:"last_risky_exposure_on"`
}

// NewOperationalInfo validates a wire request and builds the document to
// store. All failures are schema violations from the client's point of view;
// the error text is for logs only.
func NewOperationalInfo(platform Platform, req *v1.OperationalInfo) (*OperationalInfo, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("model.NewOperationalInfo: unknown platform %q", platform)
	}
	if !ValidProvince(req.Province) {
		return nil, fmt.Errorf("model.NewOperationalInfo: invalid province %q", req.Province)
	}

	flags := []struct {
		name  string
		value int
	}{
		{"exposure_permission", req.ExposurePermission},
		{"bluetooth_active", req.BluetoothActive},
		{"notification_permission", req.NotificationPermission},
		{"exposure_notification", req.ExposureNotification},
	}
	for _, f := range flags {
		if f.value != 0 && f.value != 1 {
			return nil, fmt.Errorf("model.NewOperationalInfo: field %s must be 0 or 1, got %d", f.name, f.value)
		}
	}

	date, err := ParseDate(req.LastRiskyExposureOn)
	if err != nil {
		return nil, fmt.Errorf("model.NewOperationalInfo: invalid last_risky_exposure_on: %w", err)
	}
	if date.Year() < minLastRiskyExposureYear {
		return nil, fmt.Errorf("model.NewOperationalInfo: last_risky_exposure_on %s is before %d", date, minLastRiskyExposureYear)
	}

	info := &OperationalInfo{
		Platform:               platform,
		Province:               req.Province,
		ExposurePermission:     req.ExposurePermission == 1,
		BluetoothActive:        req.BluetoothActive == 1,
		NotificationPermission: req.NotificationPermission == 1,
		ExposureNotification:   req.ExposureNotification == 1,
	}
	if info.ExposureNotification {
		info.LastRiskyExposureOn = &date
	}
	return info, nil
}
