// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package badgerstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aeopulse/aeopulse/services/insights/auth"
)

const grantKeyPrefix = "grant:"

// GrantStore persists delegated-access grants in the shared KV store.
//
// Grants live under their own key prefix, outside any cache namespace, so
// cache clears can never purge credentials.
type GrantStore struct {
	kv *KV
}

// NewGrantStore creates a grant store over an open KV.
func NewGrantStore(kv *KV) *GrantStore {
	return &GrantStore{kv: kv}
}

// LoadGrant implements auth.GrantStore.
func (s *GrantStore) LoadGrant(_ context.Context, userID string) (*auth.Grant, error) {
	raw, found, err := s.kv.Get(grantKeyPrefix + userID)
	if err != nil {
		return nil, fmt.Errorf("load grant for %s: %w", userID, err)
	}
	if !found {
		return nil, nil
	}
	var g auth.Grant
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode grant for %s: %w", userID, err)
	}
	return &g, nil
}

// SaveGrant implements auth.GrantStore.
func (s *GrantStore) SaveGrant(_ context.Context, userID string, g *auth.Grant) error {
	raw, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode grant for %s: %w", userID, err)
	}
	if err := s.kv.Set(grantKeyPrefix+userID, raw); err != nil {
		return fmt.Errorf("save grant for %s: %w", userID, err)
	}
	return nil
}

// ClearGrant implements auth.GrantStore.
func (s *GrantStore) ClearGrant(_ context.Context, userID string) error {
	if err := s.kv.Delete(grantKeyPrefix + userID); err != nil {
		return fmt.Errorf("clear grant for %s: %w", userID, err)
	}
	return nil
}
