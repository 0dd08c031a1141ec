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

package v1

// AuthorizeTokenRequest is the body of the iOS token authorization endpoint.
//
// analyticsToken: A random token generated on the device, sent as lowercase
// hex. Once authorized it entitles the device to a bounded number of uploads
// per month.
//
// deviceToken: The DeviceCheck token of the device, base64 encoded. It lets
// the server query Apple for the device's per-device two-bit state without
// ever learning a stable device identifier.
//
// The endpoint returns 201 with an empty body when the token is already
// authorized, and 202 with an empty body when authorization has been
// scheduled. Clients are expected to poll until they receive a 201.
type AuthorizeTokenRequest struct {
	AnalyticsToken string `json:"analytics_token"`
	DeviceToken    string `json:"device_token"`
}
