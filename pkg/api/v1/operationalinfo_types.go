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

// Package v1 contains the wire types of the analytics API.
//
// Mobile clients upload epidemiological indicators ("operational info")
// through platform-specific endpoints. Both endpoints answer with an empty
// body on success so that a network observer cannot distinguish accepted,
// rejected, and dummy traffic by response shape.
package v1

const (
	// DummyDataHeader is the request header through which clients declare
	// whether an upload carries genuine or dummy data. It must be present on
	// every operational info request, with value "0" (genuine) or "1" (dummy).
	DummyDataHeader = "Immuni-Dummy-Data"

	// ErrorSchemaValidation is the message returned with every HTTP 400. The
	// text is deliberately generic: clients get no oracle for which part of a
	// request failed validation.
	ErrorSchemaValidation = "Request not compliant with the defined schema."
)

// OperationalInfo is the set of epidemiological indicators shared by the
// per-platform upload endpoints.
// province: the two-letter code of an Italian province.
// exposurePermission, bluetoothActive, notificationPermission,
// exposureNotification: integer booleans, must be exactly 0 or 1.
// lastRiskyExposureOn: an ISO date (YYYY-MM-DD) no earlier than 2020. Always
// required, even when exposureNotification is 0; the value is only persisted
// when a risky exposure was actually notified.
type OperationalInfo struct {
	Province               string `json:"province"`
	ExposurePermission     int    `json:"exposure_permission"`
	BluetoothActive        int    `json:"bluetooth_active"`
	NotificationPermission int    `json:"notification_permission"`
	ExposureNotification   int    `json:"exposure_notification"`
	LastRiskyExposureOn    string `json:"last_risky_exposure_on"`
}

// GoogleOperationalInfoRequest is the body of the Android upload endpoint.
// salt: a random base64 string generated by the client and embedded in the
// attestation nonce, used server side to reject replayed attestations.
// signedAttestation: the SafetyNet attestation of the upload, as the JWS
// produced by the SafetyNet API on the device.
type GoogleOperationalInfoRequest struct {
	OperationalInfo

	Salt              string `json:"salt"`
	SignedAttestation string `json:"signed_attestation"`
}

// AppleOperationalInfoRequest is the body of the iOS upload endpoint. The
// analytics token authorizing the upload travels in the Authorization header,
// not in the body.
type AppleOperationalInfoRequest struct {
	OperationalInfo
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
}
