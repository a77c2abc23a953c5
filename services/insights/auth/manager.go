// Copyright (C) 2026 AeoPulse (oss@aeopulse.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/aeopulse/aeopulse/services/insights/config"
)

// Authorization failure sentinels. Each is surfaced as a connection failure;
// the manager transitions to StatusError and retries only on explicit user
// action.
var (
	// ErrNotSignedIn means Connect was called without a local identity.
	ErrNotSignedIn = errors.New("sign in before connecting a Google account")

	// ErrConnectInFlight guards against overlapping authorization popups,
	// which would clobber each other's anti-CSRF state tokens.
	ErrConnectInFlight = errors.New("an authorization popup is already open")

	// ErrStateMismatch means the redirect's state token did not match the
	// one generated for this flow. This check is mandatory (CSRF defense).
	ErrStateMismatch = errors.New("authorization state mismatch, rejecting token")

	// ErrNoToken means the redirect fragment carried no access token.
	ErrNoToken = errors.New("authorization response carried no access token")

	// ErrAuthTimeout means the popup did not complete within the deadline.
	ErrAuthTimeout = errors.New("authorization timed out")

	// ErrNoGrant means no grant is loaded for the current user.
	ErrNoGrant = errors.New("no Google account connected")

	// ErrGrantExpired means the loaded grant's expiry has passed.
	ErrGrantExpired = errors.New("google connection expired, reconnect required")
)

// ProviderError carries an error code returned by the provider in the
// redirect fragment (e.g. "access_denied").
type ProviderError struct {
	Code string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("authorization provider returned error %q", e.Code)
}

const (
	googleAuthURL = "https://accounts.google.com/o/oauth2/v2/auth"

	defaultPollInterval = 500 * time.Millisecond
	defaultPopupTimeout = 5 * time.Minute
)

// Scopes requested during authorization.
var Scopes = []string{
	"https://www.googleapis.com/auth/webmasters.readonly",
	"https://www.googleapis.com/auth/analytics.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Manager owns the delegated-access token lifecycle for one user at a time.
//
// State machine: idle → loading → {connected | expired | disconnected |
// error}. Load drives the loading transition on identity change; Connect,
// Reconnect and Disconnect are explicit user actions.
//
// Thread Safety: Manager is safe for concurrent use, but only one
// authorization popup may be in flight; a second Connect while one is open
// fails with ErrConnectInFlight.
type Manager struct {
	cfg      config.Config
	store    GrantStore
	launcher Launcher
	provider Provider
	logger   *slog.Logger

	pollInterval time.Duration
	popupTimeout time.Duration
	now          func() time.Time

	mu         sync.Mutex
	userID     string
	status     Status
	grant      *Grant
	lastErr    error
	connecting bool
	stateToken string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithPollInterval overrides the popup poll interval (tests).
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.pollInterval = d
	}
}

// WithPopupTimeout overrides the absolute authorization deadline (tests).
func WithPopupTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.popupTimeout = d
	}
}

// WithManagerClock overrides the time source (tests).
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a token manager.
func NewManager(cfg config.Config, store GrantStore, launcher Launcher, provider Provider, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:          cfg,
		store:        store,
		launcher:     launcher,
		provider:     provider,
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		popupTimeout: defaultPopupTimeout,
		now:          time.Now,
		status:       StatusIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load drives the loading transition for a (possibly new) user identity.
//
// Description:
//
//	Attempts to load a previously persisted grant. No grant ⇒ disconnected.
//	Past expiry ⇒ expired, grant retained so scopes and email stay visible.
//	Otherwise the grant is verified live against the provider: a
//	confirmed-valid response ⇒ connected; anything else, including network
//	failure, ⇒ expired.
//
// Thread Safety: Safe for concurrent use.
func (m *Manager) Load(ctx context.Context, userID string) Status {
	m.setLoading(userID)

	g, err := m.store.LoadGrant(ctx, userID)
	if err != nil {
		m.logger.Warn("grant load failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return m.fail(fmt.Errorf("load grant: %w", err))
	}
	if g == nil {
		return m.transition(StatusDisconnected, nil)
	}
	if g.Expired(m.now()) {
		return m.transition(StatusExpired, g)
	}
	if err := m.provider.VerifyToken(ctx, g.AccessToken); err != nil {
		m.logger.Info("grant verification failed, treating as expired",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return m.transition(StatusExpired, g)
	}
	return m.transition(StatusConnected, g)
}

// Connect runs the interactive authorization flow.
//
// Description:
//
//	Requires a signed-in identity and provider client configuration; both
//	failures are descriptive and leave state untouched. Opens the popup
//	with a fresh anti-CSRF state token and polls it every poll interval
//	under a 5-minute absolute deadline, until it either closes (rejected),
//	or redirects with a fragment carrying the token. A state token
//	mismatch always rejects. On success the account email is fetched
//	best-effort and the full grant is persisted wholesale.
//
// Outputs:
//
//	*Grant - The connected grant.
//	error - config.ErrNotConfigured, ErrNotSignedIn, ErrConnectInFlight,
//	        ErrPopupClosed, ErrStateMismatch, ErrNoToken, ErrAuthTimeout,
//	        *ProviderError, or a persistence error.
func (m *Manager) Connect(ctx context.Context, userID string) (*Grant, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	if err := m.cfg.CheckOAuth(); err != nil {
		return nil, err
	}

	state := uuid.NewString()
	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return nil, ErrConnectInFlight
	}
	m.connecting = true
	m.stateToken = state
	m.userID = userID
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.stateToken = ""
		m.mu.Unlock()
	}()

	popup, err := m.launcher.Open(m.authURL(state))
	if err != nil {
		err = fmt.Errorf("open authorization popup: %w", err)
		m.fail(err)
		return nil, err
	}

	frag, err := m.awaitRedirect(ctx, popup, state)
	if err != nil {
		m.fail(err)
		return nil, err
	}

	grant := &Grant{
		AccessToken: frag.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(frag.ExpiresIn) * time.Second),
		Scopes:      frag.Scope,
		ConnectedAt: m.now(),
	}

	// Best-effort: a missing email never fails the connection.
	if email, err := m.provider.AccountEmail(ctx, grant.AccessToken); err == nil {
		grant.AccountEmail = email
	} else {
		m.logger.Debug("account email fetch failed",
			slog.String("error", err.Error()),
		)
	}

	if err := m.store.SaveGrant(ctx, userID, grant); err != nil {
		err = fmt.Errorf("persist grant: %w", err)
		m.fail(err)
		return nil, err
	}

	m.transition(StatusConnected, grant)
	m.logger.Info("google account connected",
		slog.String("user_id", userID),
		slog.Bool("email_present", grant.AccountEmail != ""),
	)
	return grant, nil
}

// Reconnect re-runs the authorization flow, intended for the expired state.
func (m *Manager) Reconnect(ctx context.Context, userID string) (*Grant, error) {
	return m.Connect(ctx, userID)
}

// Disconnect purges the persisted grant unconditionally.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	err := m.store.ClearGrant(ctx, userID)

	m.mu.Lock()
	m.userID = userID
	m.status = StatusDisconnected
	m.grant = nil
	m.lastErr = nil
	m.mu.Unlock()

	if err != nil {
		return fmt.Errorf("clear grant: %w", err)
	}
	return nil
}

// AccessToken returns the current usable bearer token.
//
// Outputs:
//
//	string - The token when a fresh grant is loaded.
//	error - ErrNoGrant when nothing is loaded, ErrGrantExpired when the
//	        grant's expiry has passed (state transitions to expired).
func (m *Manager) AccessToken(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.grant == nil {
		return "", ErrNoGrant
	}
	if m.grant.Expired(m.now()) {
		m.status = StatusExpired
		return "", ErrGrantExpired
	}
	return m.grant.AccessToken, nil
}

// MarkExpired transitions to expired after a downstream API reported the
// token unauthorized. The grant is retained.
func (m *Manager) MarkExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grant != nil {
		m.status = StatusExpired
	}
}

// Status returns the current lifecycle state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Grant returns a copy of the current grant, or nil.
func (m *Manager) Grant() *Grant {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grant == nil {
		return nil
	}
	out := *m.grant
	return &out
}

// Err returns the last connection error, or nil.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// authURL builds the provider's implicit-grant authorization URL.
func (m *Manager) authURL(state string) string {
	oc := oauth2.Config{
		ClientID:    m.cfg.GoogleClientID,
		RedirectURL: m.cfg.OAuthRedirectURI,
		Scopes:      Scopes,
		Endpoint:    oauth2.Endpoint{AuthURL: googleAuthURL},
	}
	return oc.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_type", "token"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// awaitRedirect polls the popup until it closes, redirects, or times out.
func (m *Manager) awaitRedirect(ctx context.Context, popup Popup, state string) (fragment, error) {
	deadline, cancel := context.WithTimeout(ctx, m.popupTimeout)
	defer cancel()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-deadline.Done():
			popup.Close()
			if errors.Is(deadline.Err(), context.DeadlineExceeded) {
				return fragment{}, ErrAuthTimeout
			}
			return fragment{}, deadline.Err()
		case <-ticker.C:
			loc, err := popup.Location()
			if errors.Is(err, ErrPopupClosed) {
				return fragment{}, ErrPopupClosed
			}
			if err != nil {
				// Cross-origin pages are unreadable until the provider
				// redirects back. Keep polling.
				continue
			}
			frag, ok, err := parseFragment(loc)
			if err != nil || !ok {
				continue
			}

			popup.Close()
			if frag.ErrorCode != "" {
				return fragment{}, &ProviderError{Code: frag.ErrorCode}
			}
			if frag.State != state {
				return fragment{}, ErrStateMismatch
			}
			if frag.AccessToken == "" {
				return fragment{}, ErrNoToken
			}
			return frag, nil
		}
	}
}

func (m *Manager) setLoading(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userID = userID
	m.status = StatusLoading
	m.lastErr = nil
}

func (m *Manager) transition(s Status, g *Grant) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = s
	m.grant = g
	m.lastErr = nil
	return s
}

func (m *Manager) fail(err error) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusError
	m.lastErr = err
	return m.status
}
