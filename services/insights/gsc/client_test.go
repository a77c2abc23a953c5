// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gsc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeopulse/aeopulse/services/insights/remote"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(
		WithBaseURL(srv.URL),
		WithDoer(remote.NewDoer(remote.WithRateLimit(1000, 1000))),
	)
}

func TestListSites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		w.Write([]byte(`{"siteEntry":[
			{"siteUrl":"https://example.com/","permissionLevel":"siteOwner"},
			{"siteUrl":"sc-domain:example.org","permissionLevel":"siteFullUser"}
		]}`))
	}))
	defer srv.Close()

	sites, err := testClient(srv).ListSites(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "https://example.com/", sites[0].URL)
	assert.Equal(t, "siteOwner", sites[0].PermissionLevel)
	assert.Equal(t, "sc-domain:example.org", sites[1].URL)
}

// TestQuery verifies the request wire shape and the row/total normalization,
// including string-typed metric coercion.
func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/https:%2F%2Fexample.com%2F/searchAnalytics/query", r.URL.EscapedPath())

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2024-01-01", body["startDate"])
		assert.Equal(t, "2024-01-28", body["endDate"])
		assert.Equal(t, []any{"query"}, body["dimensions"])
		assert.Equal(t, float64(500), body["rowLimit"])

		w.Write([]byte(`{"rows":[
			{"keys":["what is seo"],"clicks":10,"impressions":100,"ctr":0.1,"position":"3.5"},
			{"keys":["seo tools"],"clicks":"5","impressions":300,"ctr":"bad","position":7.5}
		]}`))
	}))
	defer srv.Close()

	report, err := testClient(srv).Query(context.Background(), "tok", "https://example.com/", QueryRequest{
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-28",
		Dimensions: []string{"query"},
		RowLimit:   500,
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.RowCount)

	assert.Equal(t, []string{"what is seo"}, report.Rows[0].Keys)
	assert.Equal(t, 10.0, report.Rows[0].Clicks.Float64())
	assert.Equal(t, 3.5, report.Rows[0].Position.Float64())
	// Coerced values: "5" parses, "bad" becomes 0.
	assert.Equal(t, 5.0, report.Rows[1].Clicks.Float64())
	assert.Equal(t, 0.0, report.Rows[1].CTR.Float64())

	assert.Equal(t, 15.0, report.Totals.Clicks)
	assert.Equal(t, 400.0, report.Totals.Impressions)
	assert.InDelta(t, 15.0/400.0, report.Totals.CTR, 1e-9)
	// Impression-weighted position: (3.5*100 + 7.5*300) / 400.
	assert.InDelta(t, 6.5, report.Totals.Position, 1e-9)
}

func TestQueryDefaultRowLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1000), body["rowLimit"])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).Query(context.Background(), "tok", "https://example.com/", QueryRequest{
		StartDate: "2024-01-01", EndDate: "2024-01-02", Dimensions: []string{"date"},
	})
	require.NoError(t, err)
}

func TestQuerySendsFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Groups []struct {
				Filters []Filter `json:"filters"`
			} `json:"dimensionFilterGroups"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Groups, 1)
		require.Len(t, body.Groups[0].Filters, 1)
		assert.Equal(t, Filter{Dimension: "page", Operator: OpContains, Expression: "/blog/"}, body.Groups[0].Filters[0])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testClient(srv).Query(context.Background(), "tok", "https://example.com/", QueryRequest{
		StartDate: "2024-01-01", EndDate: "2024-01-02", Dimensions: []string{"page"},
		Filters: []Filter{{Dimension: "page", Operator: OpContains, Expression: "/blog/"}},
	})
	require.NoError(t, err)
}

// TestQueryUnauthorized verifies 401 propagates as the token sentinel so the
// caller can prompt reconnection.
func TestQueryUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv).Query(context.Background(), "stale", "https://example.com/", QueryRequest{
		StartDate: "2024-01-01", EndDate: "2024-01-02", Dimensions: []string{"query"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrTokenExpired))
}

func TestQueryEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	report, err := testClient(srv).Query(context.Background(), "tok", "https://example.com/", QueryRequest{
		StartDate: "2024-01-01", EndDate: "2024-01-02", Dimensions: []string{"query"},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Rows)
	assert.Equal(t, 0, report.RowCount)
	assert.Equal(t, Totals{}, report.Totals)
}
