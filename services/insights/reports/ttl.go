// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package reports

import "time"

// Per-type cache TTLs. Fixed defaults; per-project overrides are
// intentionally not supported.
const (
	TTLSearchQueries  = 6 * time.Hour
	TTLSearchPages    = 6 * time.Hour
	TTLSearchTimeline = 6 * time.Hour
	TTLTrafficSources = time.Hour
	TTLTrafficSeries  = time.Hour
	TTLLandingPages   = time.Hour
)

// Cache key report types. Every caller fetching a given report type must
// use the matching constant so keys stay stable across the codebase.
const (
	typeSearchQueries  = "gscQueries"
	typeSearchPages    = "gscPages"
	typeSearchTimeline = "gscTimeline"
	typeTrafficSources = "ga4Sources"
	typeTrafficSeries  = "ga4Timeline"
	typeLandingPages   = "ga4Landing"
)
