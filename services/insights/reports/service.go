// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package reports orchestrates cached report fetching for the dashboard.
//
// Read path: compute the cache key, consult the two-tier cache, and then
// per key independently:
//
//   - fresh: serve from cache, no remote call
//   - stale: serve from cache AND trigger a background refresh
//   - miss: block on a real fetch, write through on success
//
// Concurrent and background fetches for the same key are deduplicated with
// singleflight. A per-subject generation counter discards the results of a
// superseded in-flight fetch so a quick succession of range changes can
// never commit older data over newer state.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/aeopulse/aeopulse/services/insights/cache"
	"github.com/aeopulse/aeopulse/services/insights/ga4"
	"github.com/aeopulse/aeopulse/services/insights/gsc"
	"github.com/aeopulse/aeopulse/services/insights/remote"
)

var tracer = otel.Tracer("aeopulse.insights.reports")

// DefaultNamespace is the cache namespace for dashboard report data.
const DefaultNamespace = "aeo-cache"

// ErrSuperseded is returned when a newer fetch for the same subject started
// before this one resolved. The caller should drop the result; the newer
// fetch owns the subject's state.
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// refreshTimeout bounds background refreshes, which have no caller to
// cancel them.
const refreshTimeout = 30 * time.Second

// TokenSource supplies the delegated-access token for remote calls and
// absorbs unauthorized feedback. *auth.Manager satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	MarkExpired()
}

// SearchClient is the Search Console surface the service consumes.
type SearchClient interface {
	Query(ctx context.Context, token, siteURL string, req gsc.QueryRequest) (*gsc.Report, error)
}

// TrafficClient is the GA4 surface the service consumes.
type TrafficClient interface {
	TrafficBySource(ctx context.Context, token, propertyID, start, end string) (*ga4.Report, error)
	SessionsTimeline(ctx context.Context, token, propertyID, start, end string) (*ga4.Report, error)
	SourceLandingPages(ctx context.Context, token, propertyID, start, end string) (*ga4.Report, error)
}

// Service coordinates cache, token and remote clients for report reads.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	cache   *cache.Store
	search  SearchClient
	traffic TrafficClient
	tokens  TokenSource
	logger  *slog.Logger

	flight singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64

	// refreshWG tracks background refreshes for tests and shutdown.
	refreshWG sync.WaitGroup
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for contained background failures.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// NewService creates a report service.
func NewService(c *cache.Store, search SearchClient, traffic TrafficClient, tokens TokenSource, opts ...ServiceOption) *Service {
	s := &Service{
		cache:   c,
		search:  search,
		traffic: traffic,
		tokens:  tokens,
		logger:  slog.Default(),
		gens:    make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InvalidateSubject purges all cached reports for one subject (a site URL
// or GA4 property ID).
func (s *Service) InvalidateSubject(subjectID string) {
	s.cache.ClearSubject(subjectID)
}

// CacheStats exposes cache occupancy for the debug panel.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Wait blocks until background refreshes settle. Intended for tests and
// graceful shutdown.
func (s *Service) Wait() {
	s.refreshWG.Wait()
}

// nextGen starts a new fetch generation for a subject, superseding any
// in-flight fetch for it.
func (s *Service) nextGen(subject string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[subject]++
	return s.gens[subject]
}

// currentGen returns the subject's latest generation.
func (s *Service) currentGen(subject string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[subject]
}

// cachedFetch reads one report through the cache with stale-while-
// revalidate semantics.
//
// Fresh and stale entries are returned immediately; stale entries also
// spawn a deduplicated background refresh whose errors are contained. A
// miss blocks on the real fetch and writes through.
func cachedFetch[T any](ctx context.Context, s *Service, key string, ttl time.Duration, fetch func(ctx context.Context, token string) (*T, error)) (*T, error) {
	res := s.cache.Get(key, ttl)
	if !res.Miss {
		var v T
		if err := json.Unmarshal(res.Data, &v); err == nil {
			if res.Stale {
				refreshAsync(s, key, fetch)
			}
			return &v, nil
		}
		// Undecodable cached payload: fall through to a real fetch.
	}

	out, err, _ := s.flight.Do(key, func() (any, error) {
		return fetchAndStore(ctx, s, key, fetch)
	})
	if err != nil {
		return nil, err
	}
	return out.(*T), nil
}

// fetchAndStore performs the remote call and writes through to the cache.
func fetchAndStore[T any](ctx context.Context, s *Service, key string, fetch func(ctx context.Context, token string) (*T, error)) (*T, error) {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	v, err := fetch(ctx, token)
	if err != nil {
		if errors.Is(err, remote.ErrTokenExpired) {
			s.tokens.MarkExpired()
		}
		return nil, err
	}
	if err := s.cache.Set(key, v); err != nil {
		s.logger.Warn("cache write-through failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
	return v, nil
}

// refreshAsync spawns a contained background refresh for a stale key.
func refreshAsync[T any](s *Service, key string, fetch func(ctx context.Context, token string) (*T, error)) {
	s.refreshWG.Add(1)
	go func() {
		defer s.refreshWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("background refresh panicked",
					slog.String("key", key),
					slog.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		_, err, _ := s.flight.Do(key, func() (any, error) {
			return fetchAndStore(ctx, s, key, fetch)
		})
		if err != nil {
			s.logger.Warn("background refresh failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// commitCheck verifies this fetch generation still owns the subject.
func (s *Service) commitCheck(subject string, gen uint64) error {
	if s.currentGen(subject) != gen {
		return fmt.Errorf("%w: subject %s", ErrSuperseded, subject)
	}
	return nil
}
