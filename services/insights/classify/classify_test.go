// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		relevant bool
		category Category
	}{
		{"definition prefix", "what is SEO", true, CategoryDefinition},
		{"definition mid-query", "seo meaning of the term", true, CategoryDefinition},
		{"define prefix", "define answer engine optimization", true, CategoryDefinition},
		{"how-to", "how to rank on google", true, CategoryHowTo},
		{"how does", "how does google crawl pages", true, CategoryHowTo},
		{"comparison vs", "ahrefs vs semrush", true, CategoryComparison},
		{"comparison difference", "difference between seo and aeo", true, CategoryComparison},
		{"comparison beats listicle", "best CRM vs worst CRM", true, CategoryComparison},
		{"listicle best", "best crm software", true, CategoryListicle},
		{"listicle top", "top 10 keyword tools", true, CategoryListicle},
		{"listicle alternatives", "alternatives to semrush", true, CategoryListicle},
		{"informational who", "who invented pagerank", true, CategoryInformational},
		{"informational why", "why is my site slow", true, CategoryInformational},
		{"question mark", "is seo dead?", true, CategoryQuestion},
		{"definition beats informational", "what is a backlink", true, CategoryDefinition},
		{"not relevant", "hello world", false, ""},
		{"brand query", "acme corp login", false, ""},
		{"empty", "", false, ""},
		{"whitespace only", "   ", false, ""},
		{"case insensitive", "WHAT IS SEO", true, CategoryDefinition},
		{"trailing space trimmed", "  what is seo  ", true, CategoryDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.query)
			assert.Equal(t, tt.relevant, got.Relevant)
			assert.Equal(t, tt.category, got.Category)
		})
	}
}

// TestClassifySingleCategory verifies a multi-pattern query gets exactly the
// highest-priority label.
func TestClassifySingleCategory(t *testing.T) {
	// Matches definition, comparison and question patterns at once.
	got := Classify("what is better than semrush?")
	assert.True(t, got.Relevant)
	assert.Equal(t, CategoryDefinition, got.Category)
}
