// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package daterange resolves relative reporting presets into concrete
// inclusive date ranges.
//
// The reporting APIs lag by roughly a day, so "yesterday" is the latest
// day with complete data. All presets are computed backward from that day,
// inclusive on both ends.
package daterange

import (
	"fmt"
	"time"
)

// layout is the wire date format used by both reporting APIs.
const layout = "2006-01-02"

// Preset is a relative date-range token.
type Preset string

const (
	Last7Days   Preset = "7d"
	Last28Days  Preset = "28d"
	Last3Months Preset = "3m"
	Last6Months Preset = "6m"
	Last12Mon   Preset = "12m"
	Last16Mon   Preset = "16m"
)

// Range is an inclusive date range.
type Range struct {
	Start string
	End   string
}

// String renders the range for cache keys and logs.
func (r Range) String() string {
	return r.Start + ".." + r.End
}

// LatestAvailable returns the most recent day with complete reporting data.
func LatestAvailable(now time.Time) time.Time {
	return now.AddDate(0, 0, -1)
}

// Resolve computes a preset's inclusive range ending at the latest
// available day.
//
// Outputs:
//
//	Range - Start and End formatted as YYYY-MM-DD.
//	error - Non-nil for an unknown preset.
func Resolve(p Preset, now time.Time) (Range, error) {
	end := LatestAvailable(now)
	var start time.Time

	switch p {
	case Last7Days:
		start = end.AddDate(0, 0, -6)
	case Last28Days:
		start = end.AddDate(0, 0, -27)
	case Last3Months:
		start = end.AddDate(0, -3, 0).AddDate(0, 0, 1)
	case Last6Months:
		start = end.AddDate(0, -6, 0).AddDate(0, 0, 1)
	case Last12Mon:
		start = end.AddDate(-1, 0, 0).AddDate(0, 0, 1)
	case Last16Mon:
		start = end.AddDate(0, -16, 0).AddDate(0, 0, 1)
	default:
		return Range{}, fmt.Errorf("unknown date range preset %q", p)
	}

	return Range{
		Start: start.Format(layout),
		End:   end.Format(layout),
	}, nil
}

// Exact builds a range from explicit bounds, normalizing to the wire format.
func Exact(start, end time.Time) Range {
	return Range{Start: start.Format(layout), End: end.Format(layout)}
}
