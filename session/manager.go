// Package session owns the client's authentication state: restoring a
// persisted token at startup, verifying it, refreshing it in the background,
// completing an OAuth-callback login and logging out. It is the single
// source of truth for "is this visitor authenticated, and as whom".
package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/greenplanet/storefront/authapi"
	"github.com/greenplanet/storefront/credentials"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// refreshLeeway is how close to expiry a token is considered stale.
const refreshLeeway = 2 * time.Minute

// API is the slice of the auth backend the manager needs.
type API interface {
	Verify(ctx context.Context, accessToken string) (*authapi.UserProfile, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*authapi.TokenResponse, error)
	Logout(ctx context.Context, accessToken string) error
	LoginURL() string
}

var (
	ErrNoSession       = errors.New("no active session")
	ErrLoginIncomplete = errors.New("login callback missing token or user id")
	ErrForcedLogout    = errors.New("session expired, login required")
)

// Listener receives a snapshot after every state change.
type Listener func(Snapshot)

type Manager struct {
	store           credentials.Store
	api             API
	log             zerolog.Logger
	refreshInterval time.Duration
	verifyTimeout   time.Duration
	navigate        func(url string)
	nowFunc         func() time.Time

	mu        sync.RWMutex
	status    Status
	token     *oauth2.Token
	userID    string
	user      *authapi.UserProfile
	lastErr   error
	loginDone bool // one-shot CompleteLogin latch
	listeners []Listener

	refreshGroup singleflight.Group

	loopMu   sync.Mutex
	loopStop chan struct{}
}

type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowFunc = nowFunc
	}
}

// WithRefreshInterval overrides the background refresh cadence.
func WithRefreshInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.refreshInterval = d
	}
}

// WithVerifyTimeout bounds verify/refresh network calls.
func WithVerifyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.verifyTimeout = d
	}
}

// WithNavigator sets the full-page navigation hook used by LoginWithGoogle.
func WithNavigator(navigate func(url string)) Option {
	return func(m *Manager) {
		m.navigate = navigate
	}
}

// NewManager wires the session manager. Exactly one manager should exist
// per running application; the application root constructs it and passes it
// down by reference.
func NewManager(store credentials.Store, api API, options ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("[NewManager] credential store is required")
	}
	if api == nil {
		return nil, errors.New("[NewManager] auth API client is required")
	}

	m := &Manager{
		store:           store,
		api:             api,
		log:             log.With().Str("component", "session").Logger(),
		refreshInterval: 30 * time.Minute,
		verifyTimeout:   10 * time.Second,
		nowFunc:         time.Now,
		status:          StatusInitializing,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Restore is invoked once at startup. A missing or rejected stored token is
// a normal event: the session ends Anonymous silently, with the stale
// credentials cleared. Restore always leaves the Initializing state, even
// when verification times out.
func (m *Manager) Restore(ctx context.Context) error {
	accessToken, err := m.store.Get(credentials.KeyAccessToken)
	if err != nil {
		m.setAnonymous(nil)
		return nil
	}
	userID, err := m.store.Get(credentials.KeyUserID)
	if err != nil {
		m.setAnonymous(nil)
		return nil
	}

	verifyCtx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()

	user, err := m.api.Verify(verifyCtx, accessToken)
	if err != nil {
		m.log.Debug().Err(err).Msg("stored token rejected, starting anonymous")
		m.clearCredentials()
		m.setAnonymous(nil)
		return nil
	}

	refreshToken, _ := m.store.Get(credentials.KeyRefreshToken)
	m.setAuthenticated(accessToken, refreshToken, userID, user)
	m.log.Info().Str("userId", userID).Msg("session restored")
	return nil
}

// CompleteLogin handles the OAuth callback's credential delivery. It is
// guarded by a one-shot latch: a duplicate trigger in the same process is a
// no-op. A verify rejection rolls back any partially written credentials.
func (m *Manager) CompleteLogin(ctx context.Context, accessToken, refreshToken, userID string, user *authapi.UserProfile) error {
	if accessToken == "" || userID == "" {
		return ErrLoginIncomplete
	}

	m.mu.Lock()
	if m.loginDone {
		m.mu.Unlock()
		return nil
	}
	m.loginDone = true
	m.mu.Unlock()

	if err := m.persistCredentials(accessToken, refreshToken, userID); err != nil {
		m.clearCredentials()
		m.releaseLoginLatch()
		return errors.Wrap(err, "[Manager.CompleteLogin] persist credentials")
	}

	if user == nil {
		verifyCtx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
		defer cancel()

		verified, err := m.api.Verify(verifyCtx, accessToken)
		if err != nil {
			m.clearCredentials()
			m.setAnonymous(err)
			m.releaseLoginLatch()
			return errors.Wrap(err, "[Manager.CompleteLogin] delivered token rejected")
		}
		user = verified
	}

	m.setAuthenticated(accessToken, refreshToken, userID, user)
	m.log.Info().Str("userId", userID).Msg("login completed")
	return nil
}

// LoginWithGoogle dispatches a full-page navigation to the backend's OAuth
// entry point and returns the URL. Control leaves the application; there is
// no XHR and no client-side timeout.
func (m *Manager) LoginWithGoogle() string {
	url := m.api.LoginURL()
	if m.navigate != nil {
		m.navigate(url)
	}
	return url
}

// Refresh exchanges the stored refresh token for a new access token. It is
// single-flight: concurrent callers join the in-flight exchange and observe
// the same outcome, so simultaneous 401s never race on the credential
// store. A failed exchange forces logout and returns ErrForcedLogout.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, m.doRefresh(ctx)
	})
	return err
}

func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusAuthenticated || m.token == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	accessToken := m.token.AccessToken
	refreshToken := m.token.RefreshToken
	m.status = StatusRefreshing
	m.mu.Unlock()
	m.notify()

	refreshCtx, cancel := context.WithTimeout(ctx, m.verifyTimeout)
	defer cancel()

	tr, err := m.api.Refresh(refreshCtx, accessToken, refreshToken)
	if err != nil {
		m.log.Warn().Err(err).Msg("token refresh failed, forcing logout")
		m.clearCredentials()
		m.setAnonymous(ErrForcedLogout)
		return ErrForcedLogout
	}

	if tr.RefreshToken != "" {
		refreshToken = tr.RefreshToken
	}

	m.mu.Lock()
	m.token = newToken(tr.Token, refreshToken)
	m.status = StatusAuthenticated
	m.lastErr = nil
	m.mu.Unlock()
	m.notify()

	if err := m.persistTokens(tr.Token, refreshToken); err != nil {
		return errors.Wrap(err, "[Manager.doRefresh] persist rotated tokens")
	}

	m.log.Debug().Msg("token refreshed")
	return nil
}

// Logout clears local credentials and state first, then best-effort
// notifies the backend. A failed notify never blocks local logout. The cart
// is untouched: it lives under its own key.
func (m *Manager) Logout(ctx context.Context) error {
	m.stopAutoRefresh()

	m.mu.Lock()
	accessToken := ""
	if m.token != nil {
		accessToken = m.token.AccessToken
	}
	m.mu.Unlock()

	m.clearCredentials()
	m.setAnonymous(nil)
	m.releaseLoginLatch()

	if accessToken != "" {
		if err := m.api.Logout(ctx, accessToken); err != nil {
			m.log.Warn().Err(err).Msg("backend logout notify failed")
		}
	}
	m.log.Info().Msg("logged out")
	return nil
}

// StartAutoRefresh launches the background refresh loop. It is a no-op if
// the loop is already running. Stop it with Close or Logout.
func (m *Manager) StartAutoRefresh() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.loopStop != nil {
		return
	}
	stop := make(chan struct{})
	m.loopStop = stop

	go func() {
		ticker := time.NewTicker(m.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !m.Snapshot().IsAuthenticated {
					continue
				}
				if err := m.Refresh(context.Background()); err != nil {
					m.log.Warn().Err(err).Msg("background refresh failed")
				}
			}
		}
	}()
}

// Close stops the background refresh loop. Safe to call multiple times.
func (m *Manager) Close() {
	m.stopAutoRefresh()
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// AccessToken returns the current token for a single outgoing call. Callers
// must read it per request rather than holding it across suspension points,
// so a concurrent refresh is picked up by the next call.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return ""
	}
	return m.token.AccessToken
}

// UserID returns the authenticated user's id, or "" when anonymous.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// NeedsRefresh reports whether the access token is missing an expiry or due
// to expire within the leeway window.
func (m *Manager) NeedsRefresh() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusAuthenticated || m.token == nil {
		return false
	}
	if m.token.Expiry.IsZero() {
		return true
	}
	return m.token.Expiry.Before(m.nowFunc().Add(refreshLeeway))
}

// OnChange registers a listener invoked after every state change.
func (m *Manager) OnChange(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

func (m *Manager) snapshotLocked() Snapshot {
	accessToken := ""
	if m.token != nil {
		accessToken = m.token.AccessToken
	}
	return Snapshot{
		Status:          m.status,
		IsAuthenticated: m.status == StatusAuthenticated,
		Loading:         m.status == StatusInitializing || m.status == StatusRefreshing,
		AccessToken:     accessToken,
		UserID:          m.userID,
		User:            m.user,
		LastError:       m.lastErr,
	}
}

func (m *Manager) notify() {
	m.mu.RLock()
	snapshot := m.snapshotLocked()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (m *Manager) setAuthenticated(accessToken, refreshToken, userID string, user *authapi.UserProfile) {
	m.mu.Lock()
	m.token = newToken(accessToken, refreshToken)
	m.userID = userID
	m.user = user
	m.status = StatusAuthenticated
	m.lastErr = nil
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) setAnonymous(lastErr error) {
	m.mu.Lock()
	m.token = nil
	m.userID = ""
	m.user = nil
	m.status = StatusAnonymous
	m.lastErr = lastErr
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) releaseLoginLatch() {
	m.mu.Lock()
	m.loginDone = false
	m.mu.Unlock()
}

func (m *Manager) persistCredentials(accessToken, refreshToken, userID string) error {
	if err := m.store.Set(credentials.KeyAccessToken, accessToken); err != nil {
		return err
	}
	if err := m.store.Set(credentials.KeyUserID, userID); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := m.store.Set(credentials.KeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) persistTokens(accessToken, refreshToken string) error {
	if err := m.store.Set(credentials.KeyAccessToken, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := m.store.Set(credentials.KeyRefreshToken, refreshToken); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) clearCredentials() {
	for _, key := range []string{credentials.KeyAccessToken, credentials.KeyRefreshToken, credentials.KeyUserID} {
		if err := m.store.Delete(key); err != nil {
			m.log.Warn().Err(err).Str("key", key).Msg("failed to clear credential")
		}
	}
}

func (m *Manager) stopAutoRefresh() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.loopStop == nil {
		return
	}
	close(m.loopStop)
	m.loopStop = nil
}

// newToken builds the token pair, reading the JWT exp claim (unverified;
// signature checks are the backend's job) so NeedsRefresh can reason about
// expiry when the refresh response carries none.
func newToken(accessToken, refreshToken string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       tokenExpiry(accessToken),
	}
}

func tokenExpiry(raw string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
