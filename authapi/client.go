// Package authapi wraps the storefront backend's authentication endpoints.
// It is the only place auth HTTP status codes are interpreted; everything
// above it works with the apierrors taxonomy.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/greenplanet/storefront/internal/apierrors"
	"github.com/greenplanet/storefront/internal/config"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	routeGoogle  = "/api/auth/google"
	routeVerify  = "/api/auth/verify"
	routeRefresh = "/api/auth/refresh"
	routeLogout  = "/api/auth/logout"
	routeMe      = "/api/auth/me"
)

// UserProfile is the read-only projection of the logged-in user returned by
// the backend. Replaced wholesale on each successful verify.
type UserProfile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Email     string `json:"email,omitempty"`
}

// TokenResponse is the refresh endpoint's payload. RefreshToken is only set
// when the backend rotates it.
type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (primarily for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(cfg config.APIConfig, options ...Option) *Client {
	c := &Client{
		baseURL:    cfg.GetBaseURL(),
		httpClient: &http.Client{Timeout: cfg.GetRequestTimeout()},
		log:        log.With().Str("component", "authapi").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// LoginURL is the full-navigation entry point of the Google OAuth flow.
// The caller leaves the application; there is no XHR and no timeout.
func (c *Client) LoginURL() string {
	return c.baseURL + routeGoogle
}

// Verify checks an access token and returns the user it belongs to.
func (c *Client) Verify(ctx context.Context, accessToken string) (*UserProfile, error) {
	body, err := c.do(ctx, http.MethodGet, routeVerify, accessToken, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Verify] verify request")
	}
	return decodeUser(body)
}

// Me returns the current user via the cookie/bearer authenticated endpoint.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserProfile, error) {
	body, err := c.do(ctx, http.MethodGet, routeMe, accessToken, nil)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Me] me request")
	}
	return decodeUser(body)
}

// Refresh exchanges the refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] marshal body")
	}
	body, err := c.do(ctx, http.MethodPost, routeRefresh, accessToken, payload)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] refresh request")
	}
	var tr TokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] decode response")
	}
	if tr.Token == "" {
		return nil, errors.New("[Client.Refresh] response missing token")
	}
	return &tr, nil
}

// Logout invalidates the session server-side. Best effort; callers are
// expected to complete local logout regardless of the returned error.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	if _, err := c.do(ctx, http.MethodPost, routeLogout, accessToken, nil); err != nil {
		return errors.Wrap(err, "[Client.Logout] logout request")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, route, accessToken string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+route, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierrors.Transport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.Transport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Debug().Int("status", resp.StatusCode).Str("route", route).Msg("auth request rejected")
		return nil, apierrors.FromStatus(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// decodeUser accepts both `{user: {...}}` and a bare user object; the
// backend returns either depending on the endpoint.
func decodeUser(body []byte) (*UserProfile, error) {
	var wrapped struct {
		User *UserProfile `json:"user"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.User != nil && wrapped.User.ID != "" {
		return wrapped.User, nil
	}
	var user UserProfile
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, errors.Wrap(err, "[decodeUser] decode user payload")
	}
	if user.ID == "" {
		return nil, errors.New("[decodeUser] user payload missing id")
	}
	return &user, nil
}
