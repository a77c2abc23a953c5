// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classify labels search queries by their relevance to AI-assistant
// answers.
//
// Classification is pure and deterministic: it is recomputed on every read
// and never persisted alongside report rows.
package classify

import "strings"

// Category is the single label assigned to a relevant query.
type Category string

const (
	CategoryDefinition    Category = "definition"
	CategoryHowTo         Category = "how-to"
	CategoryComparison    Category = "comparison"
	CategoryListicle      Category = "listicle"
	CategoryInformational Category = "informational"
	CategoryQuestion      Category = "question"
)

// Classification is the result of classifying one query.
type Classification struct {
	// Relevant is true when the query matches any answer-style pattern.
	Relevant bool

	// Category is the matched label, or empty when not relevant.
	Category Category
}

// Rule ordering below is load-bearing: first match wins, and the priority
// definition > how-to > comparison > listicle > informational > question is
// preserved exactly. A query only ever receives one category even when
// several patterns match ("best CRM vs worst CRM" is a comparison, not a
// listicle).

var definitionMarkers = []string{"what is ", "what are ", "define ", "definition of ", "meaning of "}

var howToMarkers = []string{"how to ", "how do ", "how does ", "how can ", "how should "}

var comparisonMarkers = []string{" vs ", " vs. ", " versus ", "difference between ", "compared to ", "better than "}

var listicleMarkers = []string{"best ", "top ", "cheapest ", "fastest ", "easiest ", "list of ", "alternatives to "}

var informationalPrefixes = []string{"who ", "when ", "where ", "why ", "which ", "what "}

// Classify labels a raw query string.
//
// Description:
//
//	Matches the lowercased query against an ordered rule table. Relevance
//	means any rule matched; the category is the first matching rule's
//	label. Non-matching queries return {Relevant: false, Category: ""}.
//
// Thread Safety: Pure function, safe for concurrent use.
func Classify(query string) Classification {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Classification{}
	}

	switch {
	case hasAnyPrefixOrSubstring(q, definitionMarkers):
		return Classification{Relevant: true, Category: CategoryDefinition}
	case hasAnyPrefixOrSubstring(q, howToMarkers):
		return Classification{Relevant: true, Category: CategoryHowTo}
	case containsAny(q, comparisonMarkers):
		return Classification{Relevant: true, Category: CategoryComparison}
	case hasAnyPrefixOrSubstring(q, listicleMarkers):
		return Classification{Relevant: true, Category: CategoryListicle}
	case hasAnyPrefix(q, informationalPrefixes):
		return Classification{Relevant: true, Category: CategoryInformational}
	case strings.HasSuffix(q, "?"):
		return Classification{Relevant: true, Category: CategoryQuestion}
	}
	return Classification{}
}

func hasAnyPrefix(q string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(q, p) {
			return true
		}
	}
	return false
}

func containsAny(q string, subs []string) bool {
	for _, s := range subs {
		if strings.Contains(q, s) {
			return true
		}
	}
	return false
}

// hasAnyPrefixOrSubstring matches markers at the start of the query or,
// for mid-query phrasings like "seo meaning of the term", anywhere in it.
func hasAnyPrefixOrSubstring(q string, markers []string) bool {
	for _, m := range markers {
		if strings.HasPrefix(q, m) || strings.Contains(q, " "+m) {
			return true
		}
	}
	return false
}
