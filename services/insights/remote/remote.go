// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package remote provides shared plumbing for authenticated calls against
// the Google reporting APIs.
//
// The package owns two invariants the client packages rely on:
//
//   - Every HTTP 401 is translated into ErrTokenExpired, a distinguished
//     sentinel. Callers discriminate with errors.Is and prompt
//     re-authorization instead of showing a generic error.
//   - No automatic retry. Retry and backoff are a caller/UI concern.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// ErrTokenExpired is returned for any HTTP 401 from a remote API.
//
// Discriminate with errors.Is(err, remote.ErrTokenExpired). The UI reaction
// is a reconnect prompt, never a data-error message.
var ErrTokenExpired = errors.New("access token expired or revoked")

// APIError carries status and body for any non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote API error: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

const (
	defaultTimeout = 30 * time.Second

	// maxErrorBody limits how much of an error response is kept for messages.
	maxErrorBody = 2048
)

// Doer issues bearer-authenticated JSON requests with client-side rate
// limiting.
//
// Thread Safety: Doer is safe for concurrent use.
type Doer struct {
	client  *http.Client
	limiter *rate.Limiter
}

// DoerOption configures a Doer.
type DoerOption func(*Doer)

// WithHTTPClient overrides the underlying HTTP client (tests).
func WithHTTPClient(c *http.Client) DoerOption {
	return func(d *Doer) {
		d.client = c
	}
}

// WithRateLimit overrides the requests-per-second limit.
func WithRateLimit(rps float64, burst int) DoerOption {
	return func(d *Doer) {
		d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewDoer creates a Doer with a 30s HTTP timeout and a conservative
// 10 req/s limit, matching Google's per-user quota guidance.
func NewDoer(opts ...DoerOption) *Doer {
	d := &Doer{
		client:  &http.Client{Timeout: defaultTimeout},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetJSON issues an authenticated GET and decodes the response into out.
//
// Outputs:
//
//	error - ErrTokenExpired (wrapped) on 401, *APIError on other non-2xx,
//	        transport or decode errors otherwise.
func (d *Doer) GetJSON(ctx context.Context, token, url string, out any) error {
	return d.do(ctx, token, http.MethodGet, url, nil, out)
}

// PostJSON issues an authenticated POST with a JSON body and decodes the
// response into out.
func (d *Doer) PostJSON(ctx context.Context, token, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return d.do(ctx, token, http.MethodPost, url, payload, out)
}

func (d *Doer) do(ctx context.Context, token, method, url string, body []byte, out any) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("%s: %w", url, ErrTokenExpired)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: url, Body: string(raw)}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}

// Number is a lenient numeric JSON value.
//
// The reporting APIs return metrics inconsistently as numbers, numeric
// strings, or null. Anything that does not parse coerces to 0 rather than
// failing the whole report.
type Number float64

// UnmarshalJSON implements json.Unmarshaler with coercion semantics.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(bytes.TrimSpace(data))
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// Float64 returns the plain float value.
func (n Number) Float64() float64 {
	return float64(n)
}
