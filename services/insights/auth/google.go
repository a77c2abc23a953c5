// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Provider performs remote verification against the identity provider.
type Provider interface {
	// VerifyToken confirms a token is still valid. A nil error is the only
	// confirmed-valid outcome; any error (including network failure) means
	// the grant must be treated as expired.
	VerifyToken(ctx context.Context, token string) error

	// AccountEmail fetches the connected account's email. Best-effort:
	// callers treat failure as non-fatal.
	AccountEmail(ctx context.Context, token string) (string, error)
}

const (
	googleTokenInfoURL = "https://www.googleapis.com/oauth2/v3/tokeninfo"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// GoogleProvider verifies tokens against Google's tokeninfo endpoint.
type GoogleProvider struct {
	client       *http.Client
	tokenInfoURL string
	userInfoURL  string
}

// GoogleProviderOption configures a GoogleProvider.
type GoogleProviderOption func(*GoogleProvider)

// WithProviderHTTPClient overrides the HTTP client (tests).
func WithProviderHTTPClient(c *http.Client) GoogleProviderOption {
	return func(p *GoogleProvider) {
		p.client = c
	}
}

// WithProviderEndpoints overrides the verification endpoints (tests).
func WithProviderEndpoints(tokenInfo, userInfo string) GoogleProviderOption {
	return func(p *GoogleProvider) {
		p.tokenInfoURL = tokenInfo
		p.userInfoURL = userInfo
	}
}

// NewGoogleProvider creates a provider with a 15s HTTP timeout.
func NewGoogleProvider(opts ...GoogleProviderOption) *GoogleProvider {
	p := &GoogleProvider{
		client:       &http.Client{Timeout: 15 * time.Second},
		tokenInfoURL: googleTokenInfoURL,
		userInfoURL:  googleUserInfoURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// VerifyToken implements Provider.
func (p *GoogleProvider) VerifyToken(ctx context.Context, token string) error {
	u := p.tokenInfoURL + "?access_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build tokeninfo request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tokeninfo returned %d", resp.StatusCode)
	}
	return nil
}

// AccountEmail implements Provider.
func (p *GoogleProvider) AccountEmail(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch account email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("userinfo returned %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode userinfo: %w", err)
	}
	return info.Email, nil
}
