// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package auth owns the delegated-access token lifecycle for the Google
// integration: the implicit-grant authorization flow, grant persistence,
// expiry detection, and live verification.
package auth

import "time"

// Grant is a delegated-access credential obtained through user consent.
//
// A grant is owned by exactly one user and persisted under that user's
// identity. Re-authorization always replaces the grant wholesale; there is
// no partial update.
type Grant struct {
	AccessToken  string    `json:"access_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       string    `json:"scopes"`
	ConnectedAt  time.Time `json:"connected_at"`
	AccountEmail string    `json:"account_email,omitempty"`
}

// Expired reports whether the grant's expiry has passed.
func (g *Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Status is the per-user integration state.
//
// Transitions: idle → loading → {connected | expired | disconnected | error}.
// Expired grants are retained so their scopes and account email remain
// visible; disconnecting purges the grant entirely.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusLoading      Status = "loading"
	StatusConnected    Status = "connected"
	StatusExpired      Status = "expired"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)
