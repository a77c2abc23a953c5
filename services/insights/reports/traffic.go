// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reports

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/aeopulse/aeopulse/services/insights/cache"
	"github.com/aeopulse/aeopulse/services/insights/daterange"
	"github.com/aeopulse/aeopulse/services/insights/ga4"
)

// TrafficOverview combines the GA4 reports for one property and range,
// including AI referral attribution.
type TrafficOverview struct {
	Sources      *ga4.Report
	Timeline     *ga4.Report
	LandingPages *ga4.Report
	AI           *ga4.AITraffic
	Range        daterange.Range
}

// TrafficOverview fetches the source, timeline and landing-page reports
// for a GA4 property.
//
// Same semantics as SearchOverview: concurrent sub-fetches, independent
// per-key staleness, generation-guarded commit. The AI attribution is
// derived from the sources report on every read, never cached separately.
func (s *Service) TrafficOverview(ctx context.Context, propertyID string, r daterange.Range) (*TrafficOverview, error) {
	gen := s.nextGen(propertyID)

	ctx, span := tracer.Start(ctx, "reports.TrafficOverview")
	span.SetAttributes(
		attribute.String("property", propertyID),
		attribute.String("range", r.String()),
	)
	defer span.End()

	var sources, timeline, landing *ga4.Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		key := cache.Key(typeTrafficSources, propertyID, r.Start, r.End)
		var err error
		sources, err = cachedFetch(gctx, s, key, TTLTrafficSources, func(ctx context.Context, token string) (*ga4.Report, error) {
			return s.traffic.TrafficBySource(ctx, token, propertyID, r.Start, r.End)
		})
		return err
	})
	g.Go(func() error {
		key := cache.Key(typeTrafficSeries, propertyID, r.Start, r.End)
		var err error
		timeline, err = cachedFetch(gctx, s, key, TTLTrafficSeries, func(ctx context.Context, token string) (*ga4.Report, error) {
			return s.traffic.SessionsTimeline(ctx, token, propertyID, r.Start, r.End)
		})
		return err
	})
	g.Go(func() error {
		key := cache.Key(typeLandingPages, propertyID, r.Start, r.End)
		var err error
		landing, err = cachedFetch(gctx, s, key, TTLLandingPages, func(ctx context.Context, token string) (*ga4.Report, error) {
			return s.traffic.SourceLandingPages(ctx, token, propertyID, r.Start, r.End)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.commitCheck(propertyID, gen); err != nil {
		return nil, err
	}

	return &TrafficOverview{
		Sources:      sources,
		Timeline:     timeline,
		LandingPages: landing,
		AI:           ga4.AttributeRows(sources.Rows),
		Range:        r,
	}, nil
}
