// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package webhook

import (
	"fmt"
	"time"
)

const payloadSource = "aeopulse"

// discordEmbedColor is the brand accent used on embed payloads.
const discordEmbedColor = 0x5865F2

// Message renders the human-readable text for an event.
//
// Unknown event types fall back to "Event: {type}"; missing data fields
// fall back to placeholders. This function never fails on missing data.
func Message(eventType string, data map[string]any) string {
	switch eventType {
	case "check":
		return fmt.Sprintf("Task completed: %s", strField(data, "task", "unknown task"))
	case "uncheck":
		return fmt.Sprintf("Task reopened: %s", strField(data, "task", "unknown task"))
	case "checklist_complete":
		return fmt.Sprintf("Checklist finished: %s", strField(data, "checklist", "unknown checklist"))
	case "analyze":
		return fmt.Sprintf("Analysis completed for %s", strField(data, "target", "the project"))
	case "score_drop":
		return fmt.Sprintf("Visibility score dropped to %s", strField(data, "score", "an unknown value"))
	case "citation_found":
		return fmt.Sprintf("New AI citation found for query %q", strField(data, "query", "unknown query"))
	case "citation_lost":
		return fmt.Sprintf("AI citation lost for query %q", strField(data, "query", "unknown query"))
	case "member_added":
		return fmt.Sprintf("Team member added: %s", strField(data, "member", "unknown member"))
	case "member_removed":
		return fmt.Sprintf("Team member removed: %s", strField(data, "member", "unknown member"))
	case "project_updated":
		return "Project settings were updated"
	case "test":
		return "Test notification from AeoPulse"
	default:
		return fmt.Sprintf("Event: %s", eventType)
	}
}

func strField(data map[string]any, key, fallback string) string {
	if data == nil {
		return fallback
	}
	v, ok := data[key]
	if !ok || v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		if s == "" {
			return fallback
		}
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Render produces the delivery payload for one subscriber format.
//
// The returned value is JSON-encodable. Unrecognized formats fall back to
// the generic envelope.
func Render(format Format, eventType string, data map[string]any, proj ProjectContext) any {
	msg := Message(eventType, data)
	now := time.Now().UTC()

	switch format {
	case FormatSlack:
		return map[string]any{
			"blocks": []any{
				map[string]any{
					"type": "section",
					"text": map[string]any{
						"type": "mrkdwn",
						"text": fmt.Sprintf("*%s*\n%s", proj.Name, msg),
					},
				},
				map[string]any{
					"type": "context",
					"elements": []any{
						map[string]any{
							"type": "mrkdwn",
							"text": fmt.Sprintf("%s | %s | %s", payloadSource, eventType, now.Format(time.RFC3339)),
						},
					},
				},
			},
		}
	case FormatDiscord:
		return map[string]any{
			"embeds": []any{
				map[string]any{
					"title":       proj.Name,
					"description": msg,
					"color":       discordEmbedColor,
					"timestamp":   now.Format(time.RFC3339),
					"footer": map[string]any{
						"text": fmt.Sprintf("%s | %s", payloadSource, eventType),
					},
				},
			},
		}
	default:
		return map[string]any{
			"event":   eventType,
			"message": msg,
			"project": map[string]any{
				"name": proj.Name,
				"url":  proj.URL,
			},
			"data":      data,
			"timestamp": now.Format(time.RFC3339),
			"source":    payloadSource,
		}
	}
}
