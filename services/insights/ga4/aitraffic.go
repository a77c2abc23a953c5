// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ga4

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed assistants.yaml
var assistantsYAML []byte

// assistantRegistry is the static registry of known AI-assistant referrer
// host patterns, loaded once from the embedded YAML.
var assistantRegistry = mustLoadRegistry()

type assistantEntry struct {
	Name  string   `yaml:"name"`
	Hosts []string `yaml:"hosts"`
}

func mustLoadRegistry() []assistantEntry {
	var doc struct {
		Assistants []assistantEntry `yaml:"assistants"`
	}
	if err := yaml.Unmarshal(assistantsYAML, &doc); err != nil {
		panic(fmt.Sprintf("ga4: embedded assistant registry is invalid: %v", err))
	}
	return doc.Assistants
}

// MatchAssistant reports which AI assistant, if any, a traffic source
// belongs to. Matching is a case-insensitive substring check against the
// registry's known hosts.
func MatchAssistant(source string) (string, bool) {
	s := strings.ToLower(source)
	for _, a := range assistantRegistry {
		for _, host := range a.Hosts {
			if strings.Contains(s, host) {
				return a.Name, true
			}
		}
	}
	return "", false
}

// AttributedRow is a traffic row attributed to a specific AI assistant.
type AttributedRow struct {
	Source    string
	Assistant string
	Sessions  float64
}

// AITraffic is the result of AI referral attribution over a traffic report.
type AITraffic struct {
	// Rows is the full traffic-by-source row set.
	Rows []Row

	// AIRows is the AI-attributed subset.
	AIRows []AttributedRow

	// AIShare is aiSessions / totalSessions, 0 when there are no sessions.
	AIShare float64
}

// AIAttributedTraffic fetches traffic by source and attributes each source
// against the assistant registry.
func (c *Client) AIAttributedTraffic(ctx context.Context, token, propertyID, start, end string) (*AITraffic, error) {
	report, err := c.TrafficBySource(ctx, token, propertyID, start, end)
	if err != nil {
		return nil, fmt.Errorf("ai traffic attribution: %w", err)
	}
	return AttributeRows(report.Rows), nil
}

// AttributeRows classifies already-fetched traffic rows. Each row's first
// dimension must be the session source and its first metric the session
// count.
func AttributeRows(rows []Row) *AITraffic {
	out := &AITraffic{Rows: rows}

	var total, ai float64
	for _, r := range rows {
		if len(r.Dimensions) == 0 || len(r.Metrics) == 0 {
			continue
		}
		sessions := r.Metrics[0]
		total += sessions
		if name, ok := MatchAssistant(r.Dimensions[0]); ok {
			ai += sessions
			out.AIRows = append(out.AIRows, AttributedRow{
				Source:    r.Dimensions[0],
				Assistant: name,
				Sessions:  sessions,
			})
		}
	}
	if total > 0 {
		out.AIShare = ai / total
	}
	return out
}
