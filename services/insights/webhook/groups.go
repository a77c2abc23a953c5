// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package webhook

// Wildcard subscribes to every event type, known or not.
const Wildcard = "*"

// eventGroups maps coarse group tokens to their member event types, so a
// subscriber can opt into a whole group instead of enumerating types.
var eventGroups = map[string][]string{
	"checklist": {"check", "uncheck", "checklist_complete"},
	"alerts":    {"analyze", "score_drop", "citation_found", "citation_lost"},
	"team":      {"member_added", "member_removed", "project_updated"},
}

// Groups returns the registered group tokens.
func Groups() []string {
	out := make([]string, 0, len(eventGroups))
	for g := range eventGroups {
		out = append(out, g)
	}
	return out
}

// GroupEvents returns the event types in a group, or nil for unknown groups.
func GroupEvents(group string) []string {
	events, ok := eventGroups[group]
	if !ok {
		return nil
	}
	out := make([]string, len(events))
	copy(out, events)
	return out
}

// Matches reports whether a subscription should receive an event.
//
// A wildcard subscription matches everything. Otherwise the subscription
// matches iff any registered token equals the event type or names a group
// containing it. An empty event list matches nothing: the filter fails
// closed.
func Matches(sub Subscription, eventType string) bool {
	for _, token := range sub.Events {
		if token == Wildcard || token == eventType {
			return true
		}
		for _, member := range eventGroups[token] {
			if member == eventType {
				return true
			}
		}
	}
	return false
}
