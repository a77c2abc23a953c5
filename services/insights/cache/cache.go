// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the two-tier report cache.
//
// The tiers follow the usual persistence split:
//
//	Hot (RAM, process-local) → Warm (durable key-value store)
//
// Reads consult the memory tier first; a durable hit re-populates memory.
// Entries past their TTL are still returned, flagged stale, so callers can
// serve them immediately while triggering a background refresh. The memory
// tier, when present, is authoritative; the durable tier may transiently lag
// after a failed write-through.
//
// Entries are immutable snapshots: Get returns a copy of the stored bytes,
// and callers must not assume writes to the returned slice are visible
// anywhere.
package cache

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DurableStore is the warm tier consumed by Store.
//
// Implementations must be safe for concurrent use. A nil DurableStore puts
// the Store into memory-only mode.
type DurableStore interface {
	// Get returns the stored value, or found=false when the key is absent.
	Get(key string) (val []byte, found bool, err error)

	// Set writes or overwrites a value.
	Set(key string, val []byte) error

	// Delete removes keys. Missing keys are not an error.
	Delete(keys ...string) error

	// List returns all stored keys with the given prefix.
	List(prefix string) ([]string, error)

	// EstimateSize returns the approximate stored byte size under prefix.
	EstimateSize(prefix string) (int64, error)
}

// Result is the outcome of a cache read.
type Result struct {
	// Data is the cached payload, nil on a miss.
	Data json.RawMessage

	// Miss is true iff neither tier has the key.
	Miss bool

	// Stale is true when the entry's age meets or exceeds the read TTL.
	// Stale entries still carry their data.
	Stale bool
}

// Stats describes current cache occupancy.
type Stats struct {
	MemoryEntries  int
	DurableEntries int
	ApproxSizeKB   int64
}

// entry is the persisted envelope for one cache value.
type entry struct {
	Data     json.RawMessage `json:"data"`
	StoredAt int64           `json:"stored_at"` // unix millis
}

const (
	// DefaultMaxDurableEntries caps the durable tier entry count.
	DefaultMaxDurableEntries = 500

	// evictBatch is how many entries one quota-recovery eviction removes.
	evictBatch = 20
)

// Store is a namespaced two-tier cache.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	namespace  string
	durable    DurableStore
	maxDurable int
	logger     *slog.Logger
	now        func() time.Time

	mu  sync.RWMutex
	mem map[string]entry
}

// Option configures a Store.
type Option func(*Store)

// WithMaxDurableEntries overrides the durable tier entry cap.
func WithMaxDurableEntries(n int) Option {
	return func(s *Store) {
		s.maxDurable = n
	}
}

// WithLogger sets the logger for contained failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store under the given key namespace.
//
// Inputs:
//
//	namespace - Key prefix isolating this cache from unrelated durable data.
//	durable - Warm tier, or nil for memory-only operation.
func New(namespace string, durable DurableStore, opts ...Option) *Store {
	s := &Store{
		namespace:  namespace,
		durable:    durable,
		maxDurable: DefaultMaxDurableEntries,
		logger:     slog.Default(),
		now:        time.Now,
		mem:        make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Namespace returns the cache's key prefix.
func (s *Store) Namespace() string {
	return s.namespace
}

// Get reads a key with the given freshness window.
//
// Description:
//
//	Consults the memory tier first. On a memory miss the durable tier is
//	consulted and, if it holds the key, the memory tier is populated before
//	returning. A corrupt durable value behaves exactly as a miss and is
//	never surfaced as an error.
//
// Inputs:
//
//	key - Logical key (without the namespace prefix). See Key.
//	ttl - Freshness window. Entries at least this old are flagged stale.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) Get(key string, ttl time.Duration) Result {
	full := s.fullKey(key)

	s.mu.RLock()
	e, ok := s.mem[full]
	s.mu.RUnlock()
	if ok {
		hitsTotal.WithLabelValues(tierMemory).Inc()
		return s.result(e, ttl)
	}

	if s.durable == nil {
		missesTotal.Inc()
		return Result{Miss: true}
	}

	raw, found, err := s.durable.Get(full)
	if err != nil {
		s.logger.Warn("durable cache read failed",
			slog.String("key", full),
			slog.String("error", err.Error()),
		)
		missesTotal.Inc()
		return Result{Miss: true}
	}
	if !found {
		missesTotal.Inc()
		return Result{Miss: true}
	}

	var stored entry
	if err := json.Unmarshal(raw, &stored); err != nil || stored.Data == nil {
		// Corrupt entries behave as a miss; eviction reaps them later.
		s.logger.Warn("corrupt durable cache entry treated as miss",
			slog.String("key", full),
		)
		missesTotal.Inc()
		return Result{Miss: true}
	}

	s.mu.Lock()
	s.mem[full] = stored
	s.mu.Unlock()

	hitsTotal.WithLabelValues(tierDurable).Inc()
	return s.result(stored, ttl)
}

// result builds a Result with an immutable copy of the entry data.
func (s *Store) result(e entry, ttl time.Duration) Result {
	age := s.now().UnixMilli() - e.StoredAt
	stale := age >= ttl.Milliseconds()
	if stale {
		staleReadsTotal.Inc()
	}
	data := make(json.RawMessage, len(e.Data))
	copy(data, e.Data)
	return Result{Data: data, Stale: stale}
}

// Set writes a value to both tiers.
//
// Description:
//
//	The value is JSON-encoded and stamped with the current time. A durable
//	write failure triggers one eviction of the oldest entries followed by a
//	single retry; if the retry also fails the write silently degrades to
//	memory-only (logged, never raised). A successful durable write enforces
//	the entry cap by evicting oldest-first.
//
// Thread Safety: Safe for concurrent use. Concurrent writers to the same
// key are last-write-wins.
func (s *Store) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	full := s.fullKey(key)
	e := entry{Data: data, StoredAt: s.now().UnixMilli()}

	s.mu.Lock()
	s.mem[full] = e
	s.mu.Unlock()

	if s.durable == nil {
		return nil
	}

	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := s.durable.Set(full, raw); err != nil {
		s.evictOldest(evictBatch)
		if err := s.durable.Set(full, raw); err != nil {
			writeDowngradesTotal.Inc()
			s.logger.Warn("durable cache write degraded to memory-only",
				slog.String("key", full),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}
	s.enforceCap()
	return nil
}

// Clear removes one key from both tiers.
func (s *Store) Clear(key string) {
	full := s.fullKey(key)
	s.mu.Lock()
	delete(s.mem, full)
	s.mu.Unlock()
	s.deleteDurable(full)
}

// ClearAll removes every entry under this cache's namespace.
//
// Unrelated durably-stored keys outside the namespace are never touched.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.mem = make(map[string]entry)
	s.mu.Unlock()

	if s.durable == nil {
		return
	}
	keys, err := s.durable.List(s.namespace + ":")
	if err != nil {
		s.logger.Warn("durable cache clear failed", slog.String("error", err.Error()))
		return
	}
	s.deleteDurable(keys...)
}

// ClearSubject removes all entries whose key contains the subject id.
func (s *Store) ClearSubject(subjectID string) {
	if subjectID == "" {
		return
	}

	s.mu.Lock()
	for k := range s.mem {
		if strings.Contains(k, subjectID) {
			delete(s.mem, k)
		}
	}
	s.mu.Unlock()

	if s.durable == nil {
		return
	}
	keys, err := s.durable.List(s.namespace + ":")
	if err != nil {
		s.logger.Warn("durable cache subject clear failed",
			slog.String("subject", subjectID),
			slog.String("error", err.Error()),
		)
		return
	}
	var matched []string
	for _, k := range keys {
		if strings.Contains(k, subjectID) {
			matched = append(matched, k)
		}
	}
	s.deleteDurable(matched...)
}

// Stats returns current occupancy of both tiers.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{MemoryEntries: len(s.mem)}
	s.mu.RUnlock()

	if s.durable == nil {
		return st
	}
	if keys, err := s.durable.List(s.namespace + ":"); err == nil {
		st.DurableEntries = len(keys)
	}
	if size, err := s.durable.EstimateSize(s.namespace + ":"); err == nil {
		st.ApproxSizeKB = size / 1024
	}
	return st
}

func (s *Store) fullKey(key string) string {
	return s.namespace + ":" + key
}

func (s *Store) deleteDurable(keys ...string) {
	if s.durable == nil || len(keys) == 0 {
		return
	}
	if err := s.durable.Delete(keys...); err != nil {
		s.logger.Warn("durable cache delete failed", slog.String("error", err.Error()))
	}
}

// agedKey pairs a durable key with its stored timestamp for eviction.
type agedKey struct {
	key      string
	storedAt int64
}

// enforceCap evicts oldest entries until the durable tier is within the cap.
func (s *Store) enforceCap() {
	aged, err := s.agedKeys()
	if err != nil || len(aged) <= s.maxDurable {
		return
	}
	s.evict(aged, len(aged)-s.maxDurable)
}

// evictOldest removes up to n of the oldest durable entries.
func (s *Store) evictOldest(n int) {
	aged, err := s.agedKeys()
	if err != nil {
		return
	}
	s.evict(aged, n)
}

// agedKeys loads every namespaced durable key with its age.
// Corrupt entries get age zero so they are evicted first.
func (s *Store) agedKeys() ([]agedKey, error) {
	keys, err := s.durable.List(s.namespace + ":")
	if err != nil {
		return nil, err
	}
	aged := make([]agedKey, 0, len(keys))
	for _, k := range keys {
		var storedAt int64
		if raw, found, err := s.durable.Get(k); err == nil && found {
			var e entry
			if json.Unmarshal(raw, &e) == nil {
				storedAt = e.StoredAt
			}
		}
		aged = append(aged, agedKey{key: k, storedAt: storedAt})
	}
	return aged, nil
}

func (s *Store) evict(aged []agedKey, n int) {
	if n <= 0 || len(aged) == 0 {
		return
	}
	sort.Slice(aged, func(i, j int) bool {
		return aged[i].storedAt < aged[j].storedAt
	})
	if n > len(aged) {
		n = len(aged)
	}
	victims := make([]string, 0, n)
	for _, a := range aged[:n] {
		victims = append(victims, a.key)
	}
	s.deleteDurable(victims...)
	evictionsTotal.Add(float64(len(victims)))

	s.logger.Debug("evicted durable cache entries",
		slog.Int("count", len(victims)),
	)
}
