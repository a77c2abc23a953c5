// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"errors"
	"net/url"
	"strconv"
)

// ErrPopupClosed is reported by a Popup whose window was closed before the
// authorization round-trip completed.
var ErrPopupClosed = errors.New("authorization popup was closed")

// Popup is an open authorization window.
//
// Location returns the window's current URL. Until the provider redirects
// back to a same-origin page the URL is unreadable; implementations signal
// that with a non-nil error other than ErrPopupClosed, and the manager
// keeps polling. ErrPopupClosed is terminal.
type Popup interface {
	Location() (string, error)
	Close()
}

// Launcher opens authorization popups. The host application supplies the
// concrete implementation (browser window, embedded webview, device flow
// shim in tests).
type Launcher interface {
	Open(authURL string) (Popup, error)
}

// fragment holds the implicit-grant parameters parsed from a redirect URL.
type fragment struct {
	AccessToken string
	ExpiresIn   int64
	Scope       string
	State       string
	ErrorCode   string
}

// parseFragment extracts implicit-grant parameters from a URL fragment.
//
// Outputs:
//
//	fragment - Parsed parameters.
//	bool - False when the URL carries no fragment parameters yet; the
//	       caller should keep polling.
//	error - Non-nil when the URL or fragment is unparseable.
func parseFragment(rawURL string) (fragment, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fragment{}, false, err
	}
	if u.Fragment == "" {
		return fragment{}, false, nil
	}
	vals, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return fragment{}, false, err
	}
	if len(vals) == 0 {
		return fragment{}, false, nil
	}

	f := fragment{
		AccessToken: vals.Get("access_token"),
		Scope:       vals.Get("scope"),
		State:       vals.Get("state"),
		ErrorCode:   vals.Get("error"),
	}
	if raw := vals.Get("expires_in"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			f.ExpiresIn = secs
		}
	}
	return f, true, nil
}
