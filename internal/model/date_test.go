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
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		input   string
		want    Date
		wantErr bool
	}{
		{
			name:  "valid",
			input: "2020-06-08",
			want:  NewDate(2020, time.June, 8),
		},
		{
			name:    "not_zero_padded",
			input:   "2020-6-8",
			wantErr: true,
		},
		{
			name:    "with_time",
			input:   "2020-06-08T10:00:00Z",
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseDate(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want.Time) {
				t.Errorf("parsed %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	t.Parallel()

	type doc struct {
		On       Date  `json:"on"`
		Optional *Date `json:"optional"`
	}

	in := doc{On: NewDate(2020, time.October, 31)}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"on":"2020-10-31","optional":null}`
	if string(b) != want {
		t.Errorf("marshal got %s, want %s", b, want)
	}

	var out doc
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want, +got):\n%s", diff)
	}
}

func TestDateUnmarshalRejectsBadInput(t *testing.T) {
	t.Parallel()

	for _, input := range []string{`42`, `"2020-13-01"`, `"soon"`} {
		var d Date
		if err := json.Unmarshal([]byte(input), &d); err == nil {
			t.Errorf("expected error unmarshalling %s", input)
		}
	}
}
