// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package project defines the project-persistence collaborator surface.
//
// The insights core never owns project documents; it only reads subscriber
// configuration and writes back delivery status through this interface.
// Updates are partial merges, never full-document replaces.
package project

import (
	"context"
	"sync"
)

// Store is the external project persistence collaborator.
//
// Implementations must apply fields as a partial merge into the project
// document identified by id.
type Store interface {
	UpdateProject(ctx context.Context, id string, fields map[string]any) error
}

// MemoryStore is an in-process Store for tests and embedding hosts.
//
// Thread Safety: MemoryStore is safe for concurrent use.
type MemoryStore struct {
	mu       sync.Mutex
	projects map[string]map[string]any
}

// NewMemoryStore creates an empty in-memory project store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{projects: make(map[string]map[string]any)}
}

// UpdateProject implements Store with merge semantics.
func (s *MemoryStore) UpdateProject(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.projects[id]
	if !ok {
		doc = make(map[string]any)
		s.projects[id] = doc
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

// Project returns the stored field map for a project, or nil.
func (s *MemoryStore) Project(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.projects[id]
	if !ok {
		return nil
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
