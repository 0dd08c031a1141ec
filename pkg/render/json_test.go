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

package render

import (
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRenderJSON(t *testing.T) {
	t.Parallel()

	r := NewRenderer()

	cases := []struct {
		name string
		code int
		data interface{}
		want string
	}{
		{
			name: "no_content",
			code: 204,
			data: nil,
			want: "",
		},
		{
			name: "no_content_ignores_data",
			code: 204,
			data: map[string]string{"hello": "world"},
			want: "",
		},
		{
			name: "ok_nil",
			code: 200,
			data: nil,
			want: `{"ok":true}`,
		},
		{
			name: "err_nil",
			code: 500,
			data: nil,
			want: `{"message":"Internal Server Error"}`,
		},
		{
			name: "err_value",
			code: 400,
			data: fmt.Errorf("Request not compliant with the defined schema."),
			want: `{"message":"Request not compliant with the defined schema."}`,
		},
		{
			name: "data",
			code: 200,
			data: map[string]string{"hello": "world"},
			want: `{"hello":"world"}`,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := httptest.NewRecorder()
			r.RenderJSON(w, tc.code, tc.data)

			if got, want := w.Code, tc.code; got != want {
				t.Errorf("expected code %d to be %d", got, want)
			}

			if got, want := strings.TrimSpace(w.Body.String()), tc.want; got != want {
				t.Errorf("expected body %q to be %q", got, want)
			}
		})
	}
}
