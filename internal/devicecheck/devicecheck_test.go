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
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func newTestKey(tb testing.TB) (*ecdsa.PrivateKey, string) {
	tb.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		tb.Fatalf("failed to marshal key: %v", err)
	}

	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}); err != nil {
		tb.Fatalf("failed to encode key: %v", err)
	}
	return key, buf.String()
}

func newTestClient(tb testing.TB, url, pemKey string) *Client {
	tb.Helper()

	client, err := New(&Config{
		URL:            url,
		KeyID:          "TESTKEY123",
		TeamID:         "TESTTEAM12",
		PrivateKey:     pemKey,
		TimeoutSeconds: 5,
	})
	if err != nil {
		tb.Fatalf("New: %v", err)
	}

	// Keep the retry loop fast.
	client.retryBase = time.Millisecond
	client.retryCap = 2 * time.Millisecond
	return client
}

// checkAuthorization asserts that the Authorization header carries an ES256
// token signed with the test key.
func checkAuthorization(r *http.Request, key *ecdsa.PrivateKey) error {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return fmt.Errorf("missing authorization header")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return &key.PublicKey, nil
	})
	if err != nil {
		return fmt.Errorf("failed to parse token: %w", err)
	}

	if kid := token.Header["kid"]; kid != "TESTKEY123" {
		return fmt.Errorf("kid = %v, want TESTKEY123", kid)
	}
	claims := token.Claims.(jwt.MapClaims)
	if iss := claims["iss"]; iss != "TESTTEAM12" {
		return fmt.Errorf("iss = %v, want TESTTEAM12", iss)
	}
	return nil
}

func TestFetchBits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	key, pemKey := newTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query_two_bits" {
			t.Errorf("path = %q, want /query_two_bits", r.URL.Path)
		}
		if err := checkAuthorization(r, key); err != nil {
			t.Errorf("bad authorization: %v", err)
		}

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if _, err := uuid.Parse(req.TransactionID); err != nil {
			t.Errorf("transaction_id %q is not a uuid: %v", req.TransactionID, err)
		}
		if req.Timestamp <= 0 {
			t.Errorf("timestamp = %d, want > 0", req.Timestamp)
		}
		if req.DeviceToken != "device-token" {
			t.Errorf("device_token = %q, want device-token", req.DeviceToken)
		}

		fmt.Fprint(w, `{"bit0": true, "bit1": false, "last_update_time": "2020-06"}`)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	got, err := client.FetchBits(ctx, "device-token")
	if err != nil {
		t.Fatalf("FetchBits: %v", err)
	}

	want := BitState{Bit0: true, Bit1: false, LastUpdateTime: "2020-06"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestFetchBitsNeverSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, pemKey := newTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "Failed to find bit state")
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	got, err := client.FetchBits(ctx, "device-token")
	if err != nil {
		t.Fatalf("FetchBits: %v", err)
	}
	if diff := cmp.Diff(BitState{}, got); diff != "" {
		t.Errorf("mismatch (-want, +got):\n%s", diff)
	}
}

func TestFetchBitsBadRequest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, pemKey := newTestKey(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "Missing or incorrectly formatted device token", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	if _, err := client.FetchBits(ctx, "device-token"); !errors.Is(err, ErrBadFormat) {
		t.Fatalf("FetchBits = %v, want ErrBadFormat", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1: client errors must not be retried", calls)
	}
}

func TestFetchBitsServerError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, pemKey := newTestKey(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "Server error", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	if _, err := client.FetchBits(ctx, "device-token"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("FetchBits = %v, want ErrUnavailable", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFetchBitsRecoversAfterServerError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, pemKey := newTestKey(t)

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "Server error", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"bit0": false, "bit1": false, "last_update_time": "2020-05"}`)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	got, err := client.FetchBits(ctx, "device-token")
	if err != nil {
		t.Fatalf("FetchBits: %v", err)
	}
	if got.LastUpdateTime != "2020-05" {
		t.Errorf("LastUpdateTime = %q, want 2020-05", got.LastUpdateTime)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestSetBits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	key, pemKey := newTestKey(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/update_two_bits" {
			t.Errorf("path = %q, want /update_two_bits", r.URL.Path)
		}
		if err := checkAuthorization(r, key); err != nil {
			t.Errorf("bad authorization: %v", err)
		}

		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.DeviceToken != "device-token" {
			t.Errorf("device_token = %q, want device-token", req.DeviceToken)
		}
		if !req.Bit0 || req.Bit1 {
			t.Errorf("bits = (%t, %t), want (true, false)", req.Bit0, req.Bit1)
		}
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, pemKey)

	if err := client.SetBits(ctx, "device-token", true, false); err != nil {
		t.Fatalf("SetBits: %v", err)
	}
}

func TestNewRejectsBadKey(t *testing.T) {
	t.Parallel()

	_, err := New(&Config{
		URL:            "https://api.development.devicecheck.apple.com/v1",
		KeyID:          "TESTKEY123",
		TeamID:         "TESTTEAM12",
		PrivateKey:     "not a pem key",
		TimeoutSeconds: 5,
	})
	if err == nil {
		t.Fatal("New succeeded with a malformed key, want error")
	}
}
