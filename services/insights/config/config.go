// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds environment configuration for the insights core.
//
// Configuration is read once at startup. The Google OAuth client ID is the
// only value whose absence is a distinguished condition: Connect must fail
// with ErrNotConfigured (setup guidance), never a generic runtime error.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ErrNotConfigured indicates the Google OAuth client is not set up.
//
// This is a configuration error, not a runtime failure: callers surface it
// verbatim with setup instructions and must not alter any persisted state.
var ErrNotConfigured = errors.New("google oauth client is not configured (set AEOPULSE_GOOGLE_CLIENT_ID)")

// DefaultRedirectURI is used when no redirect override is configured.
const DefaultRedirectURI = "https://app.aeopulse.dev/oauth/callback"

// Config holds all environment-derived settings for the insights core.
type Config struct {
	// GoogleClientID is the OAuth client identifier for the implicit grant.
	// Required for Connect; everything else works without it.
	GoogleClientID string `env:"AEOPULSE_GOOGLE_CLIENT_ID"`

	// OAuthRedirectURI overrides the default authorization redirect target.
	OAuthRedirectURI string `env:"AEOPULSE_OAUTH_REDIRECT_URI"`

	// CacheDir is the directory for the durable cache tier. Empty means
	// the host application decides (or runs memory-only).
	CacheDir string `env:"AEOPULSE_CACHE_DIR"`

	// MaxCacheEntries caps the durable cache tier entry count.
	MaxCacheEntries int `env:"AEOPULSE_MAX_CACHE_ENTRIES" envDefault:"500"`

	// LogDir enables JSON file logging when set. Empty means stderr only.
	LogDir string `env:"AEOPULSE_LOG_DIR"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment config: %w", err)
	}
	if cfg.OAuthRedirectURI == "" {
		cfg.OAuthRedirectURI = DefaultRedirectURI
	}
	return cfg, nil
}

// CheckOAuth reports whether the OAuth client is usable.
//
// Outputs:
//
//	error - ErrNotConfigured when the client ID is absent, nil otherwise.
func (c Config) CheckOAuth() error {
	if c.GoogleClientID == "" {
		return ErrNotConfigured
	}
	return nil
}
