// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package webhook delivers project-domain events to external HTTP
// subscribers.
//
// Dispatch is fire-and-forget from the emitting caller's perspective:
// deliveries fan out concurrently with independent timeouts, failures are
// recorded per subscription and never propagate, and the subscription
// list's delivery status is written back in one batched update per cycle.
package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Format selects the rendered payload shape for a subscriber.
type Format string

const (
	// FormatGeneric is the structured JSON envelope. Unrecognized formats
	// fall back to it.
	FormatGeneric Format = "generic"

	// FormatSlack is the chat-ops blocks format (markdown section plus a
	// context footer).
	FormatSlack Format = "slack"

	// FormatDiscord is the chat-ops embed format (title, description,
	// color, timestamp, footer).
	FormatDiscord Format = "discord"
)

// Delivery status values recorded on a subscription.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Subscription is one registered webhook endpoint, owned by a project.
type Subscription struct {
	ID      string   `json:"id"`
	URL     string   `json:"url"`
	Enabled bool     `json:"enabled"`
	Events  []string `json:"events"`
	Format  Format   `json:"format"`

	// Delivery status, mutated by the dispatcher after every attempted
	// delivery. Untouched for subscriptions not targeted in a cycle.
	LastTriggeredAt time.Time `json:"last_triggered_at,omitempty"`
	LastStatus      string    `json:"last_status,omitempty"`
	LastError       string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewSubscription creates an enabled subscription with a fresh ID.
func NewSubscription(url string, events []string, format Format) Subscription {
	return Subscription{
		ID:        uuid.NewString(),
		URL:       url,
		Enabled:   true,
		Events:    events,
		Format:    format,
		CreatedAt: time.Now(),
	}
}

// ProjectContext is the slice of a project document the dispatcher needs.
type ProjectContext struct {
	ID            string
	Name          string
	URL           string
	Subscriptions []Subscription
}

// DeliveryResult is the raw outcome of one delivery attempt.
type DeliveryResult struct {
	OK         bool
	StatusCode int
	Error      string
}
