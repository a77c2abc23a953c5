// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import "strings"

// Key builds a deterministic cache key.
//
// Format: {type}:{subjectID}:{rangeStart}:{rangeEnd}[:{extra}...]
//
// All callers of a given report type must build keys through this function
// so independent subjects can never collide and subject-scoped invalidation
// works by substring match.
func Key(reportType, subjectID, rangeStart, rangeEnd string, extra ...string) string {
	parts := append([]string{reportType, subjectID, rangeStart, rangeEnd}, extra...)
	return strings.Join(parts, ":")
}
