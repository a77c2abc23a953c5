// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reports

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/aeopulse/aeopulse/services/insights/cache"
	"github.com/aeopulse/aeopulse/services/insights/classify"
	"github.com/aeopulse/aeopulse/services/insights/daterange"
	"github.com/aeopulse/aeopulse/services/insights/gsc"
)

// ClassifiedQuery is a search-analytics query row decorated with its
// AI-answer relevance. The decoration is recomputed on every read and
// never cached.
type ClassifiedQuery struct {
	gsc.Row
	Relevant bool
	Category classify.Category
}

// SearchOverview combines the three related Search Console reports for one
// site and range.
type SearchOverview struct {
	Queries     []ClassifiedQuery
	QueryTotals gsc.Totals
	Pages       *gsc.Report
	Timeline    *gsc.Report
	Range       daterange.Range
}

const searchRowLimit = 500

// SearchOverview fetches the query, page and date breakdowns for a site.
//
// Description:
//
//	The three reports are issued concurrently; each cache key is
//	independently fresh/stale/miss-checked, so a partially fresh overview
//	refreshes only what is stale. The combined result commits only if no
//	newer fetch for the same site started in the meantime (ErrSuperseded
//	otherwise).
//
// Thread Safety: Safe for concurrent use.
func (s *Service) SearchOverview(ctx context.Context, siteURL string, r daterange.Range) (*SearchOverview, error) {
	gen := s.nextGen(siteURL)

	ctx, span := tracer.Start(ctx, "reports.SearchOverview")
	span.SetAttributes(
		attribute.String("site", siteURL),
		attribute.String("range", r.String()),
	)
	defer span.End()

	var queries, pages, timeline *gsc.Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		queries, err = s.searchReport(gctx, siteURL, r, typeSearchQueries, TTLSearchQueries, "query")
		return err
	})
	g.Go(func() error {
		var err error
		pages, err = s.searchReport(gctx, siteURL, r, typeSearchPages, TTLSearchPages, "page")
		return err
	})
	g.Go(func() error {
		var err error
		timeline, err = s.searchReport(gctx, siteURL, r, typeSearchTimeline, TTLSearchTimeline, "date")
		return err
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.commitCheck(siteURL, gen); err != nil {
		return nil, err
	}

	overview := &SearchOverview{
		Queries:     decorateQueries(queries.Rows),
		QueryTotals: queries.Totals,
		Pages:       pages,
		Timeline:    timeline,
		Range:       r,
	}
	return overview, nil
}

// searchReport fetches one cached single-dimension breakdown.
func (s *Service) searchReport(ctx context.Context, siteURL string, r daterange.Range, reportType string, ttl time.Duration, dimension string) (*gsc.Report, error) {
	key := cache.Key(reportType, siteURL, r.Start, r.End)
	return cachedFetch(ctx, s, key, ttl, func(ctx context.Context, token string) (*gsc.Report, error) {
		return s.search.Query(ctx, token, siteURL, gsc.QueryRequest{
			StartDate:  r.Start,
			EndDate:    r.End,
			Dimensions: []string{dimension},
			RowLimit:   searchRowLimit,
		})
	})
}

// decorateQueries classifies each query row's primary dimension value.
func decorateQueries(rows []gsc.Row) []ClassifiedQuery {
	out := make([]ClassifiedQuery, 0, len(rows))
	for _, row := range rows {
		cq := ClassifiedQuery{Row: row}
		if len(row.Keys) > 0 {
			c := classify.Classify(row.Keys[0])
			cq.Relevant = c.Relevant
			cq.Category = c.Category
		}
		out = append(out, cq)
	}
	return out
}
