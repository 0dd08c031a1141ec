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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/internal/project"
)

const (
	testHostname    = "attest.android.com"
	testPackageName = "it.ministerodellasalute.immuni"
	testAPKDigest   = "nKaSkfYSNNNfqeMosfNXGg0sUTWPxcMgZqpqyYsBA0w="
)

// testChain is a freshly generated CA and a leaf certificate issued by it,
// in the form an attestation carries them.
type testChain struct {
	roots   *x509.CertPool
	leafKey interface{}
	x5c     []string
}

func newTestChain(tb testing.TB, hostname string) *testChain {
	tb.Helper()

	leafKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate leaf key: %v", err)
	}
	return buildTestChain(tb, hostname, leafKey.Public(), leafKey)
}

// newTestECChain issues a leaf with an EC key, which the verifier must
// refuse regardless of the signature being valid.
func newTestECChain(tb testing.TB, hostname string) *testChain {
	tb.Helper()

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		tb.Fatalf("failed to generate leaf key: %v", err)
	}
	return buildTestChain(tb, hostname, leafKey.Public(), leafKey)
}

func buildTestChain(tb testing.TB, hostname string, leafPublic crypto.PublicKey, leafKey interface{}) *testChain {
	tb.Helper()

	caKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate ca key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "safetynet test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		tb.Fatalf("failed to create ca certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		tb.Fatalf("failed to parse ca certificate: %v", err)
	}

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: hostname},
		DNSNames:     []string{hostname},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, caCert, leafPublic, caKey)
	if err != nil {
		tb.Fatalf("failed to create leaf certificate: %v", err)
	}

	roots := x509.NewCertPool()
	roots.AddCert(caCert)

	return &testChain{
		roots:   roots,
		leafKey: leafKey,
		x5c: []string{
			base64.StdEncoding.EncodeToString(leafDER),
			base64.StdEncoding.EncodeToString(caDER),
		},
	}
}

func newTestVerifier(tb testing.TB, chain *testChain) *Verifier {
	tb.Helper()

	v := NewVerifier(&Config{
		IssuerHostname: testHostname,
		PackageName:    testPackageName,
		APKDigest:      testAPKDigest,
		MaxSkewMinutes: 10,
	})
	v.roots = chain.roots
	return v
}

func newTestUpload(tb testing.TB) (*model.OperationalInfo, string, string) {
	tb.Helper()

	salt, err := project.RandomBase64String(24)
	if err != nil {
		tb.Fatalf("failed to generate salt: %v", err)
	}
	info := &model.OperationalInfo{
		Platform:             model.PlatformAndroid,
		Province:             "RM",
		ExposurePermission:   true,
		BluetoothActive:      true,
		ExposureNotification: true,
	}
	return info, "2020-06-15", salt
}

func validClaims(info *model.OperationalInfo, lastRiskyExposureOn, salt string) jwt.MapClaims {
	return jwt.MapClaims{
		"nonce":                      computeNonce(info, lastRiskyExposureOn, salt),
		"timestampMs":                time.Now().UnixMilli(),
		"apkPackageName":             testPackageName,
		"apkCertificateDigestSha256": []string{testAPKDigest},
		"basicIntegrity":             true,
		"ctsProfileMatch":            true,
		"evaluationType":             "BASIC,HARDWARE_BACKED",
	}
}

func signAttestation(tb testing.TB, method jwt.SigningMethod, key interface{}, x5c []string, claims jwt.MapClaims) string {
	tb.Helper()

	token := jwt.NewWithClaims(method, claims)
	if x5c != nil {
		token.Header["x5c"] = x5c
	}
	signed, err := token.SignedString(key)
	if err != nil {
		tb.Fatalf("failed to sign attestation: %v", err)
	}
	return signed
}

func TestVerify(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	token := signAttestation(t, jwt.SigningMethodRS256, chain.leafKey, chain.x5c, validClaims(info, date, salt))
	if err := v.Verify(ctx, token, salt, info, date); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsPayload(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	cases := []struct {
		name   string
		mutate func(claims jwt.MapClaims)
	}{
		{
			name: "expired_timestamp",
			mutate: func(c jwt.MapClaims) {
				c["timestampMs"] = time.Now().Add(-11 * time.Minute).UnixMilli()
			},
		},
		{
			name: "future_timestamp",
			mutate: func(c jwt.MapClaims) {
				c["timestampMs"] = time.Now().Add(11 * time.Minute).UnixMilli()
			},
		},
		{
			name: "nonce_over_different_salt",
			mutate: func(c jwt.MapClaims) {
				c["nonce"] = computeNonce(info, date, "another-salt")
			},
		},
		{
			name: "wrong_package_name",
			mutate: func(c jwt.MapClaims) {
				c["apkPackageName"] = "com.example.clone"
			},
		},
		{
			name: "wrong_apk_digest",
			mutate: func(c jwt.MapClaims) {
				c["apkCertificateDigestSha256"] = []string{"AAAAAAAA"}
			},
		},
		{
			name: "missing_apk_digest",
			mutate: func(c jwt.MapClaims) {
				c["apkCertificateDigestSha256"] = []string{}
			},
		},
		{
			name: "failed_basic_integrity",
			mutate: func(c jwt.MapClaims) {
				c["basicIntegrity"] = false
			},
		},
		{
			name: "failed_cts_profile_match",
			mutate: func(c jwt.MapClaims) {
				c["ctsProfileMatch"] = false
			},
		},
		{
			name: "software_only_evaluation",
			mutate: func(c jwt.MapClaims) {
				c["evaluationType"] = "BASIC"
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			claims := validClaims(info, date, salt)
			tc.mutate(claims)
			token := signAttestation(t, jwt.SigningMethodRS256, chain.leafKey, chain.x5c, claims)

			err := v.Verify(ctx, token, salt, info, date)
			if !errors.Is(err, ErrVerification) {
				t.Fatalf("Verify: got %v, want ErrVerification", err)
			}
		})
	}
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"two_parts", "header.payload"},
		{"four_parts", "header.payload.signature.extra"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := v.Verify(ctx, tc.token, salt, info, date)
			if !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("Verify: got %v, want ErrMalformedToken", err)
			}
			if !IsVerificationFailure(err) {
				t.Fatalf("IsVerificationFailure(%v) = false, want true", err)
			}
		})
	}
}

func TestVerifyRejectsCertificates(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	untrusted := newTestChain(t, testHostname)

	cases := []struct {
		name  string
		token string
	}{
		{
			name:  "missing_certificates",
			token: signAttestation(t, jwt.SigningMethodRS256, chain.leafKey, nil, validClaims(info, date, salt)),
		},
		{
			name: "undecodable_certificates",
			token: signAttestation(t, jwt.SigningMethodRS256, chain.leafKey,
				[]string{"%%% not base64 %%%"}, validClaims(info, date, salt)),
		},
		{
			name: "invalid_leaf_certificate",
			token: signAttestation(t, jwt.SigningMethodRS256, chain.leafKey,
				[]string{base64.StdEncoding.EncodeToString([]byte("not a certificate"))}, validClaims(info, date, salt)),
		},
		{
			name:  "untrusted_chain",
			token: signAttestation(t, jwt.SigningMethodRS256, untrusted.leafKey, untrusted.x5c, validClaims(info, date, salt)),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := v.Verify(ctx, tc.token, salt, info, date)
			if !errors.Is(err, ErrVerification) {
				t.Fatalf("Verify: got %v, want ErrVerification", err)
			}
		})
	}

	// A trusted chain issued to the wrong hostname must be rejected too.
	t.Run("wrong_hostname", func(t *testing.T) {
		t.Parallel()

		wrongHost := newTestChain(t, "example.com")
		wrongHostVerifier := newTestVerifier(t, wrongHost)
		token := signAttestation(t, jwt.SigningMethodRS256, wrongHost.leafKey, wrongHost.x5c, validClaims(info, date, salt))

		err := wrongHostVerifier.Verify(ctx, token, salt, info, date)
		if !errors.Is(err, ErrVerification) {
			t.Fatalf("Verify: got %v, want ErrVerification", err)
		}
	})
}

func TestVerifyRejectsSignature(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	t.Run("signed_with_another_key", func(t *testing.T) {
		t.Parallel()

		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed to generate key: %v", err)
		}
		token := signAttestation(t, jwt.SigningMethodRS256, otherKey, chain.x5c, validClaims(info, date, salt))

		if err := v.Verify(ctx, token, salt, info, date); !errors.Is(err, ErrVerification) {
			t.Fatalf("Verify: got %v, want ErrVerification", err)
		}
	})

	t.Run("tampered_payload", func(t *testing.T) {
		t.Parallel()

		token := signAttestation(t, jwt.SigningMethodRS256, chain.leafKey, chain.x5c, validClaims(info, date, salt))
		parts := strings.Split(token, ".")
		parts[1] = base64.RawURLEncoding.EncodeToString([]byte(`{"basicIntegrity":false}`))
		token = strings.Join(parts, ".")

		if err := v.Verify(ctx, token, salt, info, date); !errors.Is(err, ErrVerification) {
			t.Fatalf("Verify: got %v, want ErrVerification", err)
		}
	})
}

func TestVerifyRejectsNonRSALeaf(t *testing.T) {
	t.Parallel()

	ctx := project.TestContext(t)
	chain := newTestECChain(t, testHostname)
	v := newTestVerifier(t, chain)
	info, date, salt := newTestUpload(t)

	token := signAttestation(t, jwt.SigningMethodES256, chain.leafKey, chain.x5c, validClaims(info, date, salt))
	if err := v.Verify(ctx, token, salt, info, date); !errors.Is(err, ErrVerification) {
		t.Fatalf("Verify: got %v, want ErrVerification", err)
	}
}

func TestComputeNonce(t *testing.T) {
	t.Parallel()

	info := &model.OperationalInfo{
		Province:               "MI",
		ExposurePermission:     true,
		BluetoothActive:        false,
		NotificationPermission: true,
		ExposureNotification:   false,
	}

	digest := sha256.Sum256([]byte("MI1010" + "2020-01-31" + "somesalt"))
	want := base64.StdEncoding.EncodeToString(digest[:])

	if got := computeNonce(info, "2020-01-31", "somesalt"); got != want {
		t.Fatalf("computeNonce: got %q, want %q", got, want)
	}
}
