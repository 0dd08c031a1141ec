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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
)

func validRequest() v1.OperationalInfo {
	return v1.OperationalInfo{
		Province:               "RM",
		ExposurePermission:     1,
		BluetoothActive:        1,
		NotificationPermission: 0,
		ExposureNotification:   1,
		LastRiskyExposureOn:    "2020-06-08",
	}
}

func TestNewOperationalInfo(t *testing.T) {
	t.Parallel()

	riskyDate := NewDate(2020, time.June, 8)

	cases := []struct {
		name     string
		platform Platform
		mutate   func(*v1.OperationalInfo)
		want     *OperationalInfo
		wantErr  bool
	}{
		{
			name:     "ios_with_exposure",
			platform: PlatformIOS,
			mutate:   func(r *v1.OperationalInfo) {},
			want: &OperationalInfo{
				Platform:             PlatformIOS,
				Province:             "RM",
				ExposurePermission:   true,
				BluetoothActive:      true,
				ExposureNotification: true,
				LastRiskyExposureOn:  &riskyDate,
			},
		},
		{
			name:     "android_without_exposure_drops_date",
			platform: PlatformAndroid,
			mutate: func(r *v1.OperationalInfo) {
				r.ExposureNotification = 0
			},
			want: &OperationalInfo{
				Platform:           PlatformAndroid,
				Province:           "RM",
				ExposurePermission: true,
				BluetoothActive:    true,
			},
		},
		{
			name:     "unknown_platform",
			platform: Platform("windows"),
			mutate:   func(r *v1.OperationalInfo) {},
			wantErr:  true,
		},
		{
			name:     "unknown_province",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.Province = "XX"
			},
			wantErr: true,
		},
		{
			name:     "lowercase_province",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.Province = "rm"
			},
			wantErr: true,
		},
		{
			name:     "flag_out_of_range",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.BluetoothActive = 2
			},
			wantErr: true,
		},
		{
			name:     "negative_flag",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.NotificationPermission = -1
			},
			wantErr: true,
		},
		{
			name:     "malformed_date",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.LastRiskyExposureOn = "08/06/2020"
			},
			wantErr: true,
		},
		{
			name:     "date_before_2020",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.LastRiskyExposureOn = "2019-12-31"
			},
			wantErr: true,
		},
		{
			name:     "missing_date",
			platform: PlatformIOS,
			mutate: func(r *v1.OperationalInfo) {
				r.LastRiskyExposureOn = ""
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := validRequest()
			tc.mutate(&req)

			got, err := NewOperationalInfo(tc.platform, &req)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}
