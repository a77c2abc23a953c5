// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"sync"
)

// GrantStore persists grants per user identity.
//
// Implementations must be safe for concurrent use.
type GrantStore interface {
	// LoadGrant returns the persisted grant, or (nil, nil) when absent.
	LoadGrant(ctx context.Context, userID string) (*Grant, error)

	// SaveGrant replaces the persisted grant wholesale.
	SaveGrant(ctx context.Context, userID string, g *Grant) error

	// ClearGrant removes the persisted grant. Absent grants are not an error.
	ClearGrant(ctx context.Context, userID string) error
}

// MemoryGrantStore is an in-process GrantStore for tests and ephemeral hosts.
type MemoryGrantStore struct {
	mu     sync.Mutex
	grants map[string]Grant
}

// NewMemoryGrantStore creates an empty in-memory grant store.
func NewMemoryGrantStore() *MemoryGrantStore {
	return &MemoryGrantStore{grants: make(map[string]Grant)}
}

// LoadGrant implements GrantStore.
func (s *MemoryGrantStore) LoadGrant(_ context.Context, userID string) (*Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[userID]
	if !ok {
		return nil, nil
	}
	out := g
	return &out, nil
}

// SaveGrant implements GrantStore.
func (s *MemoryGrantStore) SaveGrant(_ context.Context, userID string, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[userID] = *g
	return nil
}

// ClearGrant implements GrantStore.
func (s *MemoryGrantStore) ClearGrant(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, userID)
	return nil
}
