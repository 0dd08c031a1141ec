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

package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CurrentPayloadVersion is the only envelope version this service stores.
// Envelopes with any other version land on the errors queue for manual
// inspection.
const CurrentPayloadVersion = 1

// IngestedExposurePayload is the envelope the exposure ingestion service
// pushes onto the analytics queue for every upload of exposure data.
type IngestedExposurePayload struct {
	Version int              `json:"version"`
	Payload *ExposurePayload `json:"payload"`
}

// Valid reports whether the envelope can be stored.
func (p *IngestedExposurePayload) Valid() bool {
	return p.Version == CurrentPayloadVersion && p.Payload != nil
}

// ExposurePayload is the stored form of the exposure data coming with an
// upload of temporary exposure keys.
type ExposurePayload struct {
	ID                         primitive.ObjectID         `bson:"_id,omitempty" json:"-"`
	Province                   string                     `bson:"province" json:"province"`
	SymptomsStartedOn          *Date                      `bson:"symptoms_started_on,omitempty" json:"symptoms_started_on,omitempty"`
	ExposureDetectionSummaries []ExposureDetectionSummary `bson:"exposure_detection_summaries" json:"exposure_detection_summaries"`
}

// ExposureDetectionSummary mirrors the summary the exposure notification
// framework computes for one day of key matching on the device.
type ExposureDetectionSummary struct {
	Date                  Date           `bson:"date" json:"date"`
	MatchedKeyCount       int            `bson:"matched_key_count" json:"matched_key_count"`
	DaysSinceLastExposure int            `bson:"days_since_last_exposure" json:"days_since_last_exposure"`
	AttenuationDurations  []int          `bson:"attenuation_durations" json:"attenuation_durations"`
	MaximumRiskScore      int            `bson:"maximum_risk_score" json:"maximum_risk_score"`
	ExposureInfo          []ExposureInfo `bson:"exposure_info" json:"exposure_info"`
}

// ExposureInfo describes a single exposure contributing to a detection
// summary.
type ExposureInfo struct {
	Date                  Date  `bson:"date" json:"date"`
	Duration              int   `bson:"duration" json:"duration"`
	AttenuationValue      int   `bson:"attenuation_value" json:"attenuation_value"`
	AttenuationDurations  []int `bson:"attenuation_durations" json:"attenuation_durations"`
	TransmissionRiskLevel int   `bson:"transmission_risk_level" json:"transmission_risk_level"`
	TotalRiskScore        int   `bson:"total_risk_score" json:"total_risk_score"`
}
