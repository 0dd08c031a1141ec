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

// Package safetynet verifies Google SafetyNet attestations for Android
// analytics uploads.
//
// An upload is accepted when its attestation carries a certificate chain
// rooted in the system trust store and issued to the expected hostname, a
// valid RSA signature, and a payload binding the exact upload content
// through a salted nonce. Each salt is single use, so a captured genuine
// attestation cannot be replayed.
package safetynet

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/immuni-app/analytics-server/internal/model"
	"github.com/immuni-app/analytics-server/pkg/base64util"
	"github.com/immuni-app/analytics-server/pkg/logging"
)

const loggerName = "safetynet.Verifier"

var (
	// ErrMalformedToken signals a jws token that does not have the three
	// dot separated parts.
	ErrMalformedToken = errors.New("safetynet: malformed jws token")

	// ErrVerification signals an attestation that failed one of the
	// verification steps.
	ErrVerification = errors.New("safetynet: attestation verification failed")
)

// IsVerificationFailure reports whether err means the attestation was
// rejected, as opposed to an infrastructure failure.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrMalformedToken) || errors.Is(err, ErrVerification)
}

// jwsHeader is the decoded first part of an attestation token.
type jwsHeader struct {
	Algorithm string   `json:"alg"`
	CertChain []string `json:"x5c"`
}

// attestationPayload is the decoded second part of an attestation token,
// limited to the fields the verification relies on.
type attestationPayload struct {
	Nonce                      string   `json:"nonce"`
	TimestampMs                int64    `json:"timestampMs"`
	APKPackageName             string   `json:"apkPackageName"`
	APKCertificateDigestSha256 []string `json:"apkCertificateDigestSha256"`
	BasicIntegrity             bool     `json:"basicIntegrity"`
	CTSProfileMatch            bool     `json:"ctsProfileMatch"`
	EvaluationType             string   `json:"evaluationType"`
}

// Verifier checks SafetyNet attestations against the configured package
// identity and clock skew bounds. It is safe for concurrent use.
type Verifier struct {
	issuerHostname string
	packageName    string
	apkDigest      string
	maxSkew        time.Duration

	// roots overrides the system trust store, used in tests.
	roots *x509.CertPool
}

// NewVerifier builds a Verifier from the given configuration.
func NewVerifier(cfg *Config) *Verifier {
	return &Verifier{
		issuerHostname: cfg.IssuerHostname,
		packageName:    cfg.PackageName,
		apkDigest:      cfg.APKDigest,
		maxSkew:        cfg.MaxSkew(),
	}
}

// Verify checks that attestation is genuine and binds the given upload
// content. lastRiskyExposureOn is the date string exactly as the client sent
// it, since it is part of the nonce the client hashed.
//
// Failures return ErrMalformedToken or ErrVerification wrapped errors.
func (v *Verifier) Verify(ctx context.Context, attestation, salt string, info *model.OperationalInfo, lastRiskyExposureOn string) error {
	header, err := v.header(ctx, attestation)
	if err != nil {
		return err
	}
	certificates, err := v.certificates(ctx, header)
	if err != nil {
		return err
	}
	leaf, err := v.leafCertificate(ctx, certificates)
	if err != nil {
		return err
	}
	if err := v.validateChain(ctx, leaf, certificates[1:]); err != nil {
		return err
	}
	if err := v.verifySignature(ctx, attestation, leaf); err != nil {
		return err
	}
	payload, err := v.payload(ctx, attestation)
	if err != nil {
		return err
	}
	return v.validatePayload(ctx, payload, info, lastRiskyExposureOn, salt, time.Now().UTC())
}

// jwsPart returns the index-th dot separated part of the token.
func jwsPart(token string, index int) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	return parts[index], nil
}

func (v *Verifier) header(ctx context.Context, token string) (*jwsHeader, error) {
	logger := logging.FromContext(ctx).Named(loggerName)

	part, err := jwsPart(token, 0)
	if err != nil {
		logger.Warnw("Could not retrieve header from jws token.", "error", err)
		return nil, err
	}
	data, err := base64util.DecodeString(part)
	if err != nil {
		logger.Warnw("Could not retrieve header from jws token.", "error", err)
		return nil, fmt.Errorf("%w: header: %v", ErrVerification, err)
	}

	var header jwsHeader
	if err := json.Unmarshal(data, &header); err != nil {
		logger.Warnw("Could not retrieve header from jws token.", "error", err)
		return nil, fmt.Errorf("%w: header: %v", ErrVerification, err)
	}
	return &header, nil
}

func (v *Verifier) payload(ctx context.Context, token string) (*attestationPayload, error) {
	logger := logging.FromContext(ctx).Named(loggerName)

	part, err := jwsPart(token, 1)
	if err != nil {
		logger.Warnw("Could not retrieve payload from jws token.", "error", err)
		return nil, err
	}
	data, err := base64util.DecodeString(part)
	if err != nil {
		logger.Warnw("Could not retrieve payload from jws token.", "error", err)
		return nil, fmt.Errorf("%w: payload: %v", ErrVerification, err)
	}

	var payload attestationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Warnw("Could not retrieve payload from jws token.", "error", err)
		return nil, fmt.Errorf("%w: payload: %v", ErrVerification, err)
	}
	return &payload, nil
}

func (v *Verifier) certificates(ctx context.Context, header *jwsHeader) ([][]byte, error) {
	logger := logging.FromContext(ctx).Named(loggerName)

	if len(header.CertChain) == 0 {
		logger.Warnw("Could not retrieve certificates from jws header.")
		return nil, fmt.Errorf("%w: missing x5c certificates", ErrVerification)
	}

	certificates := make([][]byte, 0, len(header.CertChain))
	for _, c := range header.CertChain {
		der, err := base64util.DecodeString(c)
		if err != nil {
			logger.Warnw("Could not decode jws header certificates.", "error", err)
			return nil, fmt.Errorf("%w: x5c certificates: %v", ErrVerification, err)
		}
		certificates = append(certificates, der)
	}
	return certificates, nil
}

func (v *Verifier) leafCertificate(ctx context.Context, certificates [][]byte) (*x509.Certificate, error) {
	logger := logging.FromContext(ctx).Named(loggerName)

	leaf, err := x509.ParseCertificate(certificates[0])
	if err != nil {
		logger.Warnw("Could not load the leaf certificate.", "error", err)
		return nil, fmt.Errorf("%w: leaf certificate: %v", ErrVerification, err)
	}
	return leaf, nil
}

// validateChain validates the TLS chain and checks that the leaf was issued
// to the expected hostname.
func (v *Verifier) validateChain(ctx context.Context, leaf *x509.Certificate, intermediates [][]byte) error {
	logger := logging.FromContext(ctx).Named(loggerName)

	pool := x509.NewCertPool()
	for _, der := range intermediates {
		certificate, err := x509.ParseCertificate(der)
		if err != nil {
			logger.Warnw("Could not validate the certificates chain.", "error", err)
			return fmt.Errorf("%w: certificate chain: %v", ErrVerification, err)
		}
		pool.AddCert(certificate)
	}

	if _, err := leaf.Verify(x509.VerifyOptions{
		DNSName:       v.issuerHostname,
		Intermediates: pool,
		Roots:         v.roots,
	}); err != nil {
		logger.Warnw("Could not validate the certificates chain.", "error", err)
		return fmt.Errorf("%w: certificate chain: %v", ErrVerification, err)
	}
	return nil
}

// verifySignature checks the jws signature against the leaf's RSA public
// key, with the algorithm advertised in the header.
func (v *Verifier) verifySignature(ctx context.Context, token string, leaf *x509.Certificate) error {
	logger := logging.FromContext(ctx).Named(loggerName)

	publicKey, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		logger.Warnw("Unexpected certificate public_key type.", "type", fmt.Sprintf("%T", leaf.PublicKey))
		return fmt.Errorf("%w: unexpected public key type %T", ErrVerification, leaf.PublicKey)
	}

	if _, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}); err != nil {
		logger.Warnw("Could not verify jws signature.", "error", err)
		return fmt.Errorf("%w: signature: %v", ErrVerification, err)
	}
	return nil
}

func (v *Verifier) validatePayload(ctx context.Context, payload *attestationPayload, info *model.OperationalInfo, lastRiskyExposureOn, salt string, now time.Time) error {
	logger := logging.FromContext(ctx).Named(loggerName)

	lowerBound := now.Add(-v.maxSkew).UnixMilli()
	upperBound := now.Add(v.maxSkew).UnixMilli()

	valid := lowerBound <= payload.TimestampMs && payload.TimestampMs <= upperBound &&
		payload.Nonce == computeNonce(info, lastRiskyExposureOn, salt) &&
		payload.APKPackageName == v.packageName &&
		len(payload.APKCertificateDigestSha256) > 0 &&
		payload.APKCertificateDigestSha256[0] == v.apkDigest &&
		payload.BasicIntegrity &&
		payload.CTSProfileMatch &&
		hasHardwareBackedEvaluation(payload.EvaluationType)

	if !valid {
		logger.Warnw("The jws payload did not pass the validation check.",
			"timestamp_ms", payload.TimestampMs,
			"lower_bound_skew", lowerBound,
			"upper_bound_skew", upperBound)
		return fmt.Errorf("%w: payload validation", ErrVerification)
	}
	return nil
}

// computeNonce hashes the upload content and salt the way clients do when
// requesting the attestation.
func computeNonce(info *model.OperationalInfo, lastRiskyExposureOn, salt string) string {
	var b strings.Builder
	b.WriteString(info.Province)
	b.WriteString(intString(info.ExposurePermission))
	b.WriteString(intString(info.BluetoothActive))
	b.WriteString(intString(info.NotificationPermission))
	b.WriteString(intString(info.ExposureNotification))
	b.WriteString(lastRiskyExposureOn)
	b.WriteString(salt)

	digest := sha256.Sum256([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(digest[:])
}

func hasHardwareBackedEvaluation(evaluationType string) bool {
	for _, t := range strings.Split(evaluationType, ",") {
		if t == "HARDWARE_BACKED" {
			return true
		}
	}
	return false
}

func intString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
