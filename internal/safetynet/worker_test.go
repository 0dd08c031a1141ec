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

package safetynet

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/project"
	v1 "github.com/immuni-app/analytics-server/pkg/api/v1"
)

type fakeEnqueuer struct {
	infos []*model.OperationalInfo
}

func (f *fakeEnqueuer) EnqueueOperationalInfo(_ context.Context, info *model.OperationalInfo) error {
	f.infos = append(f.infos, info)
	return nil
}

// buildSignedPayload builds a broker payload whose attestation matches the
// upload content, with mutate applied to the claims before signing.
func buildSignedPayload(tb testing.TB, chain *testChain, mutate func(jwt.MapClaims)) json.RawMessage {
	tb.Helper()

	salt, err := project.RandomBase64String(24)
	if err != nil {
		tb.Fatalf("failed to generate salt: %v", err)
	}

	req := v1.GoogleOperationalInfoRequest{
		OperationalInfo: v1.OperationalInfo{
			Province:             "RM",
			ExposurePermission:   1,
			BluetoothActive:      1,
			ExposureNotification: 1,
			LastRiskyExposureOn:  "2020-06-15",
		},
		Salt: salt,
	}
	info, err := model.NewOperationalInfo(model.PlatformAndroid, &req.OperationalInfo)
	if err != nil {
		tb.Fatalf("model.NewOperationalInfo: %v", err)
	}

	claims := validClaims(info, req.LastRiskyExposureOn, salt)
	if mutate != nil {
		mutate(claims)
	}
	req.SignedAttestation = signAttestation(tb, jwt.SigningMethodRS256, chain.leafKey, chain.x5c, claims)

	payload, err := json.Marshal(req)
	if err != nil {
		tb.Fatalf("failed to marshal payload: %v", err)
	}
	return payload
}

func newTestProcessor(tb testing.TB, chain *testChain) (*Processor, *SaltRegistry, *fakeEnqueuer) {
	tb.Helper()

	_, store := newTestStore(tb)
	registry := NewSaltRegistry(store, 10*time.Minute)
	enqueuer := &fakeEnqueuer{}
	return NewProcessor(newTestVerifier(tb, chain), registry, enqueuer), registry, enqueuer
}

func TestHandleVerifyAttestation(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	processor, registry, enqueuer := newTestProcessor(t, chain)
	payload := buildSignedPayload(t, chain, nil)

	if err := processor.HandleVerifyAttestation()(ctx, payload); err != nil {
		t.Fatalf("HandleVerifyAttestation: %v", err)
	}

	if got := len(enqueuer.infos); got != 1 {
		t.Fatalf("enqueued %d operational infos, want 1", got)
	}
	info := enqueuer.infos[0]
	if info.Platform != model.PlatformAndroid {
		t.Errorf("enqueued platform %q, want %q", info.Platform, model.PlatformAndroid)
	}
	if info.LastRiskyExposureOn == nil || info.LastRiskyExposureOn.String() != "2020-06-15" {
		t.Errorf("enqueued last_risky_exposure_on %v, want 2020-06-15", info.LastRiskyExposureOn)
	}

	var req v1.GoogleOperationalInfoRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	used, err := registry.IsUsed(ctx, req.Salt)
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if !used {
		t.Error("the salt of a verified upload was not burned")
	}
}

func TestHandleVerifyAttestationReplayedSalt(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	processor, _, enqueuer := newTestProcessor(t, chain)
	payload := buildSignedPayload(t, chain, nil)

	handler := processor.HandleVerifyAttestation()
	if err := handler(ctx, payload); err != nil {
		t.Fatalf("HandleVerifyAttestation: %v", err)
	}
	if err := handler(ctx, payload); err != nil {
		t.Fatalf("HandleVerifyAttestation replay: %v", err)
	}

	if got := len(enqueuer.infos); got != 1 {
		t.Fatalf("enqueued %d operational infos, want 1 (replays must be dropped)", got)
	}
}

func TestHandleVerifyAttestationRejected(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	processor, registry, enqueuer := newTestProcessor(t, chain)
	payload := buildSignedPayload(t, chain, func(c jwt.MapClaims) {
		c["basicIntegrity"] = false
	})

	// Rejected attestations are dropped without failing the task.
	if err := processor.HandleVerifyAttestation()(ctx, payload); err != nil {
		t.Fatalf("HandleVerifyAttestation: %v", err)
	}

	if got := len(enqueuer.infos); got != 0 {
		t.Fatalf("enqueued %d operational infos, want 0", got)
	}

	var req v1.GoogleOperationalInfoRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		t.Fatalf("failed to unmarshal payload: %v", err)
	}
	used, err := registry.IsUsed(ctx, req.Salt)
	if err != nil {
		t.Fatalf("IsUsed: %v", err)
	}
	if used {
		t.Error("the salt of a rejected upload must not be burned")
	}
}

func TestHandleVerifyAttestationBadPayload(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	processor, _, enqueuer := newTestProcessor(t, chain)

	cases := []struct {
		name    string
		payload json.RawMessage
	}{
		{"not_json", json.RawMessage("not json")},
		{"invalid_operational_info", json.RawMessage(`{"province":"XX","last_risky_exposure_on":"2020-06-15"}`)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if err := processor.HandleVerifyAttestation()(ctx, tc.payload); err == nil {
				t.Fatal("HandleVerifyAttestation: want error, got nil")
			}
		})
	}

	if got := len(enqueuer.infos); got != 0 {
		t.Fatalf("enqueued %d operational infos, want 0", got)
	}
}
