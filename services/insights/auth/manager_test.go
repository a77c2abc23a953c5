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
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeopulse/aeopulse/services/insights/config"
)

// fakePopup is a controllable authorization window.
type fakePopup struct {
	mu     sync.Mutex
	loc    string
	locErr error
	closed bool
}

func (p *fakePopup) Location() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loc, p.locErr
}

func (p *fakePopup) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *fakePopup) setState(loc string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loc = loc
	p.locErr = err
}

func (p *fakePopup) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeLauncher opens fakePopups and simulates the provider redirect by
// deriving the popup's final location from the auth URL it was given.
type fakeLauncher struct {
	mu       sync.Mutex
	popup    *fakePopup
	openErr  error
	gotURL   string
	redirect func(state string) (loc string, err error)
}

func (l *fakeLauncher) Open(authURL string) (Popup, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gotURL = authURL
	if l.openErr != nil {
		return nil, l.openErr
	}
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}
	state := u.Query().Get("state")
	l.popup = &fakePopup{}
	if l.redirect != nil {
		l.popup.setState(l.redirect(state))
	}
	return l.popup, nil
}

func (l *fakeLauncher) authURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gotURL
}

func (l *fakeLauncher) openedPopup() *fakePopup {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.popup
}

// fakeProvider controls verification and email lookups.
type fakeProvider struct {
	verifyErr error
	email     string
	emailErr  error
}

func (p *fakeProvider) VerifyToken(context.Context, string) error { return p.verifyErr }

func (p *fakeProvider) AccountEmail(context.Context, string) (string, error) {
	return p.email, p.emailErr
}

// failingGrantStore returns a fixed error from every operation.
type failingGrantStore struct{ err error }

func (s *failingGrantStore) LoadGrant(context.Context, string) (*Grant, error) { return nil, s.err }
func (s *failingGrantStore) SaveGrant(context.Context, string, *Grant) error   { return s.err }
func (s *failingGrantStore) ClearGrant(context.Context, string) error          { return s.err }

func testConfig() config.Config {
	return config.Config{
		GoogleClientID:   "client-123",
		OAuthRedirectURI: "https://app.example.com/oauth/callback",
	}
}

// successRedirect builds the implicit-grant redirect for a given state.
func successRedirect(state string) (string, error) {
	return "https://app.example.com/oauth/callback" +
		"#access_token=tok-abc&token_type=Bearer&expires_in=3600&scope=email&state=" + state, nil
}

func newTestManager(launcher Launcher, provider Provider, opts ...ManagerOption) (*Manager, *MemoryGrantStore) {
	store := NewMemoryGrantStore()
	base := []ManagerOption{WithPollInterval(time.Millisecond)}
	m := NewManager(testConfig(), store, launcher, provider, append(base, opts...)...)
	return m, store
}

func TestConnectSuccess(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	launcher := &fakeLauncher{redirect: successRedirect}
	provider := &fakeProvider{email: "user@example.com"}
	m, store := newTestManager(launcher, provider, WithManagerClock(func() time.Time { return now }))

	grant, err := m.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	assert.Equal(t, "tok-abc", grant.AccessToken)
	assert.Equal(t, "email", grant.Scopes)
	assert.Equal(t, "user@example.com", grant.AccountEmail)
	assert.Equal(t, now.Add(time.Hour), grant.ExpiresAt)
	assert.Equal(t, StatusConnected, m.Status())
	assert.True(t, launcher.openedPopup().isClosed())

	persisted, err := store.LoadGrant(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, persisted)
	assert.Equal(t, "tok-abc", persisted.AccessToken)

	// Implicit-grant request parameters.
	u, err := url.Parse(launcher.authURL())
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "token", q.Get("response_type"))
	assert.Equal(t, "client-123", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/oauth/callback", q.Get("redirect_uri"))
	assert.NotEmpty(t, q.Get("state"))
	assert.Contains(t, q.Get("scope"), "webmasters.readonly")
}

// TestConnectMissingEmailIsNonFatal verifies a failed email lookup still
// connects.
func TestConnectMissingEmailIsNonFatal(t *testing.T) {
	launcher := &fakeLauncher{redirect: successRedirect}
	provider := &fakeProvider{emailErr: errors.New("userinfo down")}
	m, _ := newTestManager(launcher, provider)

	grant, err := m.Connect(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, grant.AccountEmail)
	assert.Equal(t, StatusConnected, m.Status())
}

// TestConnectStateMismatch verifies a forged state token always rejects the
// returned access token.
func TestConnectStateMismatch(t *testing.T) {
	launcher := &fakeLauncher{redirect: func(string) (string, error) {
		return "https://app.example.com/oauth/callback#access_token=tok&state=forged", nil
	}}
	m, store := newTestManager(launcher, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrStateMismatch)
	assert.Equal(t, StatusError, m.Status())

	persisted, _ := store.LoadGrant(context.Background(), "user-1")
	assert.Nil(t, persisted, "a rejected token must never be persisted")
}

func TestConnectPopupClosed(t *testing.T) {
	launcher := &fakeLauncher{redirect: func(string) (string, error) {
		return "", ErrPopupClosed
	}}
	m, _ := newTestManager(launcher, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrPopupClosed)
	assert.Equal(t, StatusError, m.Status())
}

func TestConnectProviderError(t *testing.T) {
	launcher := &fakeLauncher{redirect: func(state string) (string, error) {
		return "https://app.example.com/oauth/callback#error=access_denied&state=" + state, nil
	}}
	m, _ := newTestManager(launcher, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "access_denied", provErr.Code)
}

func TestConnectNoToken(t *testing.T) {
	launcher := &fakeLauncher{redirect: func(state string) (string, error) {
		return "https://app.example.com/oauth/callback#state=" + state, nil
	}}
	m, _ := newTestManager(launcher, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrNoToken)
}

// TestConnectTimeout verifies an abandoned popup fails after the absolute
// deadline and is force-closed.
func TestConnectTimeout(t *testing.T) {
	// Cross-origin pages stay unreadable, so the manager polls forever.
	launcher := &fakeLauncher{redirect: func(string) (string, error) {
		return "", errors.New("cross-origin location unreadable")
	}}
	m, _ := newTestManager(launcher, &fakeProvider{}, WithPopupTimeout(30*time.Millisecond))

	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrAuthTimeout)
	assert.True(t, launcher.openedPopup().isClosed())
}

func TestConnectNotSignedIn(t *testing.T) {
	m, _ := newTestManager(&fakeLauncher{}, &fakeProvider{})

	_, err := m.Connect(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Equal(t, StatusIdle, m.Status(), "identity failures must not touch state")
}

func TestConnectNotConfigured(t *testing.T) {
	store := NewMemoryGrantStore()
	m := NewManager(config.Config{}, store, &fakeLauncher{}, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, config.ErrNotConfigured)
	assert.Equal(t, StatusIdle, m.Status())
}

// TestConnectInFlight verifies a second Connect while a popup is open fails
// fast instead of clobbering the first flow's state token.
func TestConnectInFlight(t *testing.T) {
	launcher := &fakeLauncher{redirect: func(string) (string, error) {
		return "", errors.New("cross-origin location unreadable")
	}}
	m, _ := newTestManager(launcher, &fakeProvider{})

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(context.Background(), "user-1")
		done <- err
	}()

	// Let the first flow open its popup and start polling.
	time.Sleep(20 * time.Millisecond)
	_, err := m.Connect(context.Background(), "user-1")
	assert.ErrorIs(t, err, ErrConnectInFlight)

	launcher.openedPopup().setState("", ErrPopupClosed)
	assert.ErrorIs(t, <-done, ErrPopupClosed)
}

func TestLoadNoGrant(t *testing.T) {
	m, _ := newTestManager(&fakeLauncher{}, &fakeProvider{})

	status := m.Load(context.Background(), "user-1")
	assert.Equal(t, StatusDisconnected, status)
	assert.Nil(t, m.Grant())
}

// TestLoadExpiredGrantRetained verifies a past-expiry grant surfaces as
// expired while remaining visible.
func TestLoadExpiredGrantRetained(t *testing.T) {
	m, store := newTestManager(&fakeLauncher{}, &fakeProvider{})
	require.NoError(t, store.SaveGrant(context.Background(), "user-1", &Grant{
		AccessToken:  "old",
		ExpiresAt:    time.Now().Add(-time.Hour),
		AccountEmail: "user@example.com",
	}))

	status := m.Load(context.Background(), "user-1")
	assert.Equal(t, StatusExpired, status)
	require.NotNil(t, m.Grant())
	assert.Equal(t, "user@example.com", m.Grant().AccountEmail)
}

// TestLoadVerificationFailure verifies an unverifiable grant is treated as
// expired, never as connected.
func TestLoadVerificationFailure(t *testing.T) {
	provider := &fakeProvider{verifyErr: errors.New("tokeninfo returned 400")}
	m, store := newTestManager(&fakeLauncher{}, provider)
	require.NoError(t, store.SaveGrant(context.Background(), "user-1", &Grant{
		AccessToken: "revoked",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	assert.Equal(t, StatusExpired, m.Load(context.Background(), "user-1"))
}

func TestLoadVerifiedGrant(t *testing.T) {
	m, store := newTestManager(&fakeLauncher{}, &fakeProvider{})
	require.NoError(t, store.SaveGrant(context.Background(), "user-1", &Grant{
		AccessToken: "good",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	assert.Equal(t, StatusConnected, m.Load(context.Background(), "user-1"))

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "good", token)
}

func TestLoadStoreFailure(t *testing.T) {
	store := &failingGrantStore{err: errors.New("disk gone")}
	m := NewManager(testConfig(), store, &fakeLauncher{}, &fakeProvider{})

	assert.Equal(t, StatusError, m.Load(context.Background(), "user-1"))
	assert.Error(t, m.Err())
}

// TestDisconnectPurges verifies Disconnect removes the grant and transitions
// regardless of prior state.
func TestDisconnectPurges(t *testing.T) {
	launcher := &fakeLauncher{redirect: successRedirect}
	m, store := newTestManager(launcher, &fakeProvider{})

	_, err := m.Connect(context.Background(), "user-1")
	require.NoError(t, err)

	require.NoError(t, m.Disconnect(context.Background(), "user-1"))
	assert.Equal(t, StatusDisconnected, m.Status())
	assert.Nil(t, m.Grant())

	persisted, _ := store.LoadGrant(context.Background(), "user-1")
	assert.Nil(t, persisted)
}

// TestDisconnectStoreFailureStillTransitions verifies the local state is
// reset even when the purge write fails.
func TestDisconnectStoreFailureStillTransitions(t *testing.T) {
	store := &failingGrantStore{err: errors.New("disk gone")}
	m := NewManager(testConfig(), store, &fakeLauncher{}, &fakeProvider{})

	err := m.Disconnect(context.Background(), "user-1")
	assert.Error(t, err)
	assert.Equal(t, StatusDisconnected, m.Status())
}

func TestAccessTokenNoGrant(t *testing.T) {
	m, _ := newTestManager(&fakeLauncher{}, &fakeProvider{})

	_, err := m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNoGrant)
}

// TestAccessTokenExpiry verifies expiry is detected at read time and flips
// the status.
func TestAccessTokenExpiry(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	var mu sync.Mutex
	m, store := newTestManager(&fakeLauncher{}, &fakeProvider{}, WithManagerClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}))
	require.NoError(t, store.SaveGrant(context.Background(), "user-1", &Grant{
		AccessToken: "tok",
		ExpiresAt:   now.Add(time.Hour),
	}))
	require.Equal(t, StatusConnected, m.Load(context.Background(), "user-1"))

	mu.Lock()
	clock = now.Add(2 * time.Hour)
	mu.Unlock()

	_, err := m.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrGrantExpired)
	assert.Equal(t, StatusExpired, m.Status())
}

func TestMarkExpired(t *testing.T) {
	m, store := newTestManager(&fakeLauncher{}, &fakeProvider{})
	require.NoError(t, store.SaveGrant(context.Background(), "user-1", &Grant{
		AccessToken: "tok",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
	require.Equal(t, StatusConnected, m.Load(context.Background(), "user-1"))

	m.MarkExpired()
	assert.Equal(t, StatusExpired, m.Status())
	assert.NotNil(t, m.Grant(), "the grant is retained for display")
}
