// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ga4 is a typed client for the Analytics Data API (GA4).
//
// Mirrors the gsc package contract: no retries, no caching, HTTP 401
// propagates as remote.ErrTokenExpired.
package ga4

import (
	"context"
	"fmt"
	"strings"

	"github.com/aeopulse/aeopulse/services/insights/remote"
)

const (
	defaultDataBaseURL  = "https://analyticsdata.googleapis.com/v1beta"
	defaultAdminBaseURL = "https://analyticsadmin.googleapis.com/v1beta"
)

// Property is a GA4 property the connected account can query.
type Property struct {
	ID          string
	DisplayName string
	Type        string
}

// Row is one normalized report row: dimension values in request order,
// metric values coerced to numbers (unparseable becomes 0).
type Row struct {
	Dimensions []string
	Metrics    []float64
}

// Report is a normalized runReport response.
type Report struct {
	Rows     []Row
	Totals   []float64
	RowCount int
}

// OrderBy sorts report rows by a metric, descending by default.
type OrderBy struct {
	Metric string
	Asc    bool
}

// ReportRequest describes one runReport call.
//
// Supported shapes: single-dimension grouping, date time series, and
// two-dimension cross reports (e.g. sessionSource × landingPage).
type ReportRequest struct {
	StartDate  string
	EndDate    string
	Dimensions []string
	Metrics    []string
	Limit      int
	OrderBy    *OrderBy
}

// Client calls the GA4 Data and Admin APIs.
//
// Thread Safety: Client is safe for concurrent use.
type Client struct {
	doer         *remote.Doer
	dataBaseURL  string
	adminBaseURL string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the API base URLs (tests).
func WithBaseURLs(data, admin string) Option {
	return func(c *Client) {
		c.dataBaseURL = data
		c.adminBaseURL = admin
	}
}

// WithDoer overrides the request plumbing.
func WithDoer(d *remote.Doer) Option {
	return func(c *Client) {
		c.doer = d
	}
}

// NewClient creates a GA4 client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		doer:         remote.NewDoer(),
		dataBaseURL:  defaultDataBaseURL,
		adminBaseURL: defaultAdminBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListProperties returns the GA4 properties the token can access.
func (c *Client) ListProperties(ctx context.Context, token string) ([]Property, error) {
	var resp struct {
		AccountSummaries []struct {
			PropertySummaries []struct {
				Property     string `json:"property"` // "properties/123456"
				DisplayName  string `json:"displayName"`
				PropertyType string `json:"propertyType"`
			} `json:"propertySummaries"`
		} `json:"accountSummaries"`
	}
	if err := c.doer.GetJSON(ctx, token, c.adminBaseURL+"/accountSummaries", &resp); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}

	var props []Property
	for _, acct := range resp.AccountSummaries {
		for _, p := range acct.PropertySummaries {
			props = append(props, Property{
				ID:          strings.TrimPrefix(p.Property, "properties/"),
				DisplayName: p.DisplayName,
				Type:        p.PropertyType,
			})
		}
	}
	return props, nil
}

// runReport wire shapes.
type reportRow struct {
	DimensionValues []struct {
		Value string `json:"value"`
	} `json:"dimensionValues"`
	MetricValues []struct {
		Value remote.Number `json:"value"`
	} `json:"metricValues"`
}

// RunReport executes one report query against a property.
func (c *Client) RunReport(ctx context.Context, token, propertyID string, req ReportRequest) (*Report, error) {
	if req.Limit <= 0 {
		req.Limit = 1000
	}

	dims := make([]map[string]string, 0, len(req.Dimensions))
	for _, d := range req.Dimensions {
		dims = append(dims, map[string]string{"name": d})
	}
	mets := make([]map[string]string, 0, len(req.Metrics))
	for _, m := range req.Metrics {
		mets = append(mets, map[string]string{"name": m})
	}

	body := map[string]any{
		"dateRanges":         []map[string]string{{"startDate": req.StartDate, "endDate": req.EndDate}},
		"dimensions":         dims,
		"metrics":            mets,
		"limit":              req.Limit,
		"metricAggregations": []string{"TOTAL"},
	}
	if req.OrderBy != nil {
		body["orderBys"] = []map[string]any{
			{
				"metric": map[string]string{"metricName": req.OrderBy.Metric},
				"desc":   !req.OrderBy.Asc,
			},
		}
	}

	endpoint := fmt.Sprintf("%s/properties/%s:runReport", c.dataBaseURL, propertyID)

	var resp struct {
		Rows     []reportRow `json:"rows"`
		Totals   []reportRow `json:"totals"`
		RowCount int         `json:"rowCount"`
	}
	if err := c.doer.PostJSON(ctx, token, endpoint, body, &resp); err != nil {
		return nil, fmt.Errorf("run report for property %s: %w", propertyID, err)
	}

	report := &Report{RowCount: resp.RowCount}
	for _, r := range resp.Rows {
		report.Rows = append(report.Rows, normalizeRow(r))
	}
	if report.RowCount == 0 {
		report.RowCount = len(report.Rows)
	}
	if len(resp.Totals) > 0 {
		report.Totals = normalizeRow(resp.Totals[0]).Metrics
	} else {
		report.Totals = sumMetrics(report.Rows, len(req.Metrics))
	}
	return report, nil
}

func normalizeRow(r reportRow) Row {
	row := Row{}
	for _, d := range r.DimensionValues {
		row.Dimensions = append(row.Dimensions, d.Value)
	}
	for _, m := range r.MetricValues {
		row.Metrics = append(row.Metrics, m.Value.Float64())
	}
	return row
}

func sumMetrics(rows []Row, n int) []float64 {
	totals := make([]float64, n)
	for _, r := range rows {
		for i, v := range r.Metrics {
			if i < n {
				totals[i] += v
			}
		}
	}
	return totals
}

// TrafficBySource fetches sessions grouped by session source.
func (c *Client) TrafficBySource(ctx context.Context, token, propertyID, start, end string) (*Report, error) {
	return c.RunReport(ctx, token, propertyID, ReportRequest{
		StartDate:  start,
		EndDate:    end,
		Dimensions: []string{"sessionSource"},
		Metrics:    []string{"sessions", "totalUsers"},
		OrderBy:    &OrderBy{Metric: "sessions"},
	})
}

// SessionsTimeline fetches a per-day session time series.
func (c *Client) SessionsTimeline(ctx context.Context, token, propertyID, start, end string) (*Report, error) {
	return c.RunReport(ctx, token, propertyID, ReportRequest{
		StartDate:  start,
		EndDate:    end,
		Dimensions: []string{"date"},
		Metrics:    []string{"sessions"},
	})
}

// SourceLandingPages fetches the source × landing-page cross report used to
// correlate traffic origin with entry content.
func (c *Client) SourceLandingPages(ctx context.Context, token, propertyID, start, end string) (*Report, error) {
	return c.RunReport(ctx, token, propertyID, ReportRequest{
		StartDate:  start,
		EndDate:    end,
		Dimensions: []string{"sessionSource", "landingPage"},
		Metrics:    []string{"sessions"},
		OrderBy:    &OrderBy{Metric: "sessions"},
	})
}
