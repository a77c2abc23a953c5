// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gsc is a typed client for the Search Console search-analytics API.
//
// The client performs no retries and no caching; both are the caller's
// concern (see the reports package). HTTP 401 propagates as
// remote.ErrTokenExpired so the UI can prompt re-authorization.
package gsc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aeopulse/aeopulse/services/insights/remote"
)

const defaultBaseURL = "https://www.googleapis.com/webmasters/v3"

// Site is a property the connected account can query.
type Site struct {
	URL             string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

// Row is one search-analytics result row.
//
// Keys holds the requested dimension values in request order. Metrics are
// coerced to numbers; anything unparseable becomes 0.
type Row struct {
	Keys        []string      `json:"keys"`
	Clicks      remote.Number `json:"clicks"`
	Impressions remote.Number `json:"impressions"`
	CTR         remote.Number `json:"ctr"`
	Position    remote.Number `json:"position"`
}

// Totals aggregates a report's rows.
type Totals struct {
	Clicks      float64
	Impressions float64
	CTR         float64
	Position    float64
}

// Report is a normalized search-analytics response.
type Report struct {
	Rows     []Row
	Totals   Totals
	RowCount int
}

// FilterOperator values accepted by the API.
const (
	OpEquals      = "equals"
	OpContains    = "contains"
	OpNotContains = "notContains"
)

// Filter restricts a query to matching dimension values.
type Filter struct {
	Dimension  string `json:"dimension"`
	Operator   string `json:"operator"`
	Expression string `json:"expression"`
}

// QueryRequest describes one search-analytics query.
//
// Supported shapes: single-dimension grouping (Dimensions=["query"]),
// time series (Dimensions=["date"]), and two-dimension cross reports
// (e.g. Dimensions=["query","page"]).
type QueryRequest struct {
	StartDate  string
	EndDate    string
	Dimensions []string
	RowLimit   int
	Filters    []Filter
}

// Client calls the Search Console API.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	doer    *remote.Doer
	baseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithDoer overrides the request plumbing.
func WithDoer(d *remote.Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// NewClient creates a Search Console client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		doer:    remote.NewDoer(),
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListSites returns the properties the token can access.
func (c *Client) ListSites(ctx context.Context, token string) ([]Site, error) {
	var resp struct {
		SiteEntry []Site `json:"siteEntry"`
	}
	if err := c.doer.GetJSON(ctx, token, c.baseURL+"/sites", &resp); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return resp.SiteEntry, nil
}

// Query runs one search-analytics query for a site.
func (c *Client) Query(ctx context.Context, token, siteURL string, req QueryRequest) (*Report, error) {
	if req.RowLimit <= 0 {
		req.RowLimit = 1000
	}

	body := map[string]any{
		"startDate":  req.StartDate,
		"endDate":    req.EndDate,
		"dimensions": req.Dimensions,
		"rowLimit":   req.RowLimit,
	}
	if len(req.Filters) > 0 {
		body["dimensionFilterGroups"] = []map[string]any{
			{"filters": req.Filters},
		}
	}

	endpoint := fmt.Sprintf("%s/sites/%s/searchAnalytics/query",
		c.baseURL, url.PathEscape(siteURL))

	var resp struct {
		Rows []Row `json:"rows"`
	}
	if err := c.doer.PostJSON(ctx, token, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("search analytics query for %s: %w", siteURL, err)
	}

	return &Report{
		Rows:     resp.Rows,
		Totals:   sumRows(resp.Rows),
		RowCount: len(resp.Rows),
	}, nil
}

// sumRows aggregates click/impression totals with an impression-weighted
// average position.
func sumRows(rows []Row) Totals {
	var t Totals
	var weightedPos float64
	for _, r := range rows {
		t.Clicks += r.Clicks.Float64()
		t.Impressions += r.Impressions.Float64()
		weightedPos += r.Position.Float64() * r.Impressions.Float64()
	}
	if t.Impressions > 0 {
		t.CTR = t.Clicks / t.Impressions
		t.Position = weightedPos / t.Impressions
	}
	return t
}
