// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package daterange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	now := time.Date(2024, 5, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		preset Preset
		start  string
	}{
		{Last7Days, "2024-05-08"},
		{Last28Days, "2024-04-17"},
		{Last3Months, "2024-02-15"},
		{Last6Months, "2023-11-15"},
		{Last12Mon, "2023-05-15"},
		{Last16Mon, "2023-01-15"},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			r, err := Resolve(tt.preset, now)
			require.NoError(t, err)
			assert.Equal(t, tt.start, r.Start)
			assert.Equal(t, "2024-05-14", r.End, "range must end at the latest complete day")
		})
	}
}

// TestResolveSevenDayWindow verifies the 7d preset spans exactly seven
// inclusive days.
func TestResolveSevenDayWindow(t *testing.T) {
	now := time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)
	r, err := Resolve(Last7Days, now)
	require.NoError(t, err)

	start, err := time.Parse("2006-01-02", r.Start)
	require.NoError(t, err)
	end, err := time.Parse("2006-01-02", r.End)
	require.NoError(t, err)
	assert.Equal(t, 6*24*time.Hour, end.Sub(start))
}

func TestResolveUnknownPreset(t *testing.T) {
	_, err := Resolve(Preset("90d"), time.Now())
	assert.Error(t, err)
}

func TestLatestAvailable(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC), LatestAvailable(now))
}

func TestExactAndString(t *testing.T) {
	r := Exact(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC),
	)
	assert.Equal(t, Range{Start: "2024-01-01", End: "2024-01-28"}, r)
	assert.Equal(t, "2024-01-01..2024-01-28", r.String())
}
