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

package timeutils

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBeginningOfMonth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		day  time.Time
		want time.Time
	}{
		{
			name: "mid_month",
			day:  time.Date(2020, 10, 17, 4, 15, 0, 0, time.UTC),
			want: time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "first_of_month",
			day:  time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
			want: time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "last_of_month",
			day:  time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2020, 12, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := BeginningOfMonth(tc.day)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestNextMonth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		day  time.Time
		want time.Time
	}{
		{
			name: "mid_month",
			day:  time.Date(2020, 10, 17, 4, 15, 0, 0, time.UTC),
			want: time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "year_rollover",
			day:  time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC),
			want: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "january",
			day:  time.Date(2021, 1, 31, 12, 0, 0, 0, time.UTC),
			want: time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NextMonth(tc.day)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}
