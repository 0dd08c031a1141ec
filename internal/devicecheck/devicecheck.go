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

// Package devicecheck is a client for Apple's DeviceCheck API, which stores
// two bits of state per physical device. The authorization flow for iOS
// analytics uploads relies on those bits to grant at most one analytics
// token per device per month.
package devicecheck

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/immuni-app/analytics-server/pkg/logging"
)

var (
	// ErrBadFormat is returned when the DeviceCheck API rejects a request
	// as malformed.
	ErrBadFormat = errors.New("devicecheck: bad request format")

	// ErrUnavailable is returned when the DeviceCheck API cannot be reached
	// or keeps failing with server errors.
	ErrUnavailable = errors.New("devicecheck: api not available")
)

// noBitsBody is the literal body the DeviceCheck API returns when querying
// a device whose bits were never set.
const noBitsBody = "Failed to find bit state"

// IsAPIError reports whether err represents a DeviceCheck API failure, as
// opposed to a local one. Callers in the authorization flow abort silently
// on API failures so that the client can retry the whole flow later.
func IsAPIError(err error) bool {
	return errors.Is(err, ErrBadFormat) || errors.Is(err, ErrUnavailable)
}

// Config is the configuration for a DeviceCheck API client. The private key
// is the content of the .p8 file issued by Apple, so it is usually set via a
// secret:// reference.
type Config struct {
	URL            string `env:"APPLE_DEVICE_CHECK_URL, default=https://api.development.devicecheck.apple.com/v1"`
	KeyID          string `env:"APPLE_KEY_ID"`
	TeamID         string `env:"APPLE_TEAM_ID"`
	PrivateKey     string `env:"APPLE_CERTIFICATE_KEY"`
	TimeoutSeconds int    `env:"REQUESTS_TIMEOUT_SECONDS, default=5"`
}

// Timeout is the per request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Client calls the DeviceCheck API on behalf of a single Apple developer
// team. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	url        string
	keyID      string
	teamID     string
	key        *ecdsa.PrivateKey

	// Retry knobs, overridden in tests to avoid multi-second sleeps.
	retryBase time.Duration
	retryCap  time.Duration
}

// New builds a Client from the given configuration, parsing the PEM encoded
// private key used to sign authorization tokens.
func New(cfg *Config) (*Client, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("devicecheck.New: failed to parse private key: %w", err)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		url:        cfg.URL,
		keyID:      cfg.KeyID,
		teamID:     cfg.TeamID,
		key:        key,
		retryBase:  2 * time.Second,
		retryCap:   10 * time.Second,
	}, nil
}

type queryRequest struct {
	TransactionID string `json:"transaction_id"`
	Timestamp     int64  `json:"timestamp"`
	DeviceToken   string `json:"device_token"`
}

type updateRequest struct {
	queryRequest
	Bit0 bool `json:"bit0"`
	Bit1 bool `json:"bit1"`
}

// FetchBits queries the two bits and the month they were last written for
// the device identified by deviceToken. A device whose bits were never set
// yields the zero BitState.
func (c *Client) FetchBits(ctx context.Context, deviceToken string) (BitState, error) {
	body, err := c.post(ctx, "/query_two_bits", &queryRequest{
		TransactionID: uuid.NewString(),
		Timestamp:     time.Now().UnixMilli(),
		DeviceToken:   deviceToken,
	})
	if err != nil {
		return BitState{}, err
	}
	if string(body) == noBitsBody {
		return BitState{}, nil
	}

	var state BitState
	if err := json.Unmarshal(body, &state); err != nil {
		return BitState{}, fmt.Errorf("devicecheck.FetchBits: failed to decode response: %w", err)
	}
	return state, nil
}

// SetBits writes the two bits for the device identified by deviceToken.
func (c *Client) SetBits(ctx context.Context, deviceToken string, bit0, bit1 bool) error {
	_, err := c.post(ctx, "/update_two_bits", &updateRequest{
		queryRequest: queryRequest{
			TransactionID: uuid.NewString(),
			Timestamp:     time.Now().UnixMilli(),
			DeviceToken:   deviceToken,
		},
		Bit0: bit0,
		Bit1: bit1,
	})
	return err
}

// post sends a signed request to the given DeviceCheck endpoint, retrying
// transport and server errors up to 3 attempts with exponential backoff.
func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	logger := logging.FromContext(ctx).Named("devicecheck.Client")
	url := c.url + path

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("devicecheck: failed to marshal request: %w", err)
	}
	authToken, err := c.authorizationToken()
	if err != nil {
		return nil, err
	}

	backoff, err := retry.NewExponential(c.retryBase)
	if err != nil {
		return nil, fmt.Errorf("devicecheck: failed to configure backoff: %w", err)
	}
	backoff = retry.WithCappedDuration(c.retryCap, backoff)
	backoff = retry.WithMaxRetries(2, backoff)

	attempt := 0
	var respBody []byte
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("devicecheck: failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+authToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			logger.Warnf("HTTP request to url %s failed (attempt %d)", url, attempt)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.Warnf("HTTP request to url %s failed (attempt %d)", url, attempt)
			return retry.RetryableError(err)
		}

		switch {
		case resp.StatusCode >= 500:
			logger.Warnf("HTTP request to url %s failed (attempt %d)", url, attempt)
			return retry.RetryableError(ErrUnavailable)
		case resp.StatusCode >= 400:
			logger.Warnw("The DeviceCheck API returned a 400 error.",
				"status", resp.StatusCode, "response", string(data))
			return ErrBadFormat
		}

		respBody = data
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBadFormat) {
			return nil, ErrBadFormat
		}
		logger.Warnw("The DeviceCheck API is not available.", "error", err)
		if errors.Is(err, ErrUnavailable) {
			return nil, ErrUnavailable
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return respBody, nil
}

// authorizationToken returns a short lived ES256 JWT per Apple's
// DeviceCheck authentication scheme.
func (c *Client) authorizationToken() (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.teamID,
		"iat": time.Now().Unix(),
	})
	token.Header["kid"] = c.keyID

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("devicecheck: failed to sign authorization token: %w", err)
	}
	return signed, nil
}
