// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoer() *Doer {
	return NewDoer(WithRateLimit(1000, 1000))
}

func TestGetJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"name":"value"}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
	}
	err := testDoer().GetJSON(context.Background(), "tok-123", srv.URL, &out)
	require.NoError(t, err)
	assert.Equal(t, "value", out.Name)
}

func TestPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "2024-01-01", body["startDate"])
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	var out struct{}
	err := testDoer().PostJSON(context.Background(), "tok", srv.URL,
		map[string]string{"startDate": "2024-01-01"}, &out)
	require.NoError(t, err)
}

// TestUnauthorizedIsTokenExpired verifies every 401 maps to the sentinel,
// regardless of response body.
func TestUnauthorizedIsTokenExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testDoer().GetJSON(context.Background(), "stale", srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTokenExpired))
}

// TestServerErrorIsAPIError verifies non-401 failures surface as *APIError
// with status and body, never as the token sentinel.
func TestServerErrorIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := testDoer().GetJSON(context.Background(), "tok", srv.URL, nil)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrTokenExpired))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "quota exhausted")
	assert.Contains(t, apiErr.Endpoint, srv.URL)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := testDoer().GetJSON(ctx, "tok", "http://127.0.0.1:0/never", nil)
	assert.Error(t, err)
}

func TestNumberCoercion(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"plain number", `{"v": 5}`, 5},
		{"float", `{"v": 3.25}`, 3.25},
		{"numeric string", `{"v": "7.5"}`, 7.5},
		{"null", `{"v": null}`, 0},
		{"empty string", `{"v": ""}`, 0},
		{"garbage string", `{"v": "n/a"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out struct {
				V Number `json:"v"`
			}
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &out))
			assert.Equal(t, tt.want, out.V.Float64())
		})
	}
}

// TestNumberNeverFailsReport verifies a bad metric value cannot poison
// sibling fields in the same document.
func TestNumberNeverFailsReport(t *testing.T) {
	var out struct {
		Good Number `json:"good"`
		Bad  Number `json:"bad"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"good": "12", "bad": "oops"}`), &out))
	assert.Equal(t, 12.0, out.Good.Float64())
	assert.Equal(t, 0.0, out.Bad.Float64())
}
