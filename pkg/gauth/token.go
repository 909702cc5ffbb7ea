// Package gauth provides the OAuth token source shared by the Gmail and
// Calendar adapters.
package gauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const googleTokenEndpoint = "https://oauth2.googleapis.com/token"

// TokenSource yields bearer tokens for Google API calls. It starts from
// a stored access token and refreshes through the standard token
// endpoint when the token expires.
//
// ClientID and ClientSecret may be empty: Google accepts refresh grants
// for tokens minted by the original client without re-presenting the
// client credentials in some flows. That refresh-only mode is
// deliberate here; pass real credentials when available.
type TokenSource struct {
	endpoint     string
	clientID     string
	clientSecret string
	client       *http.Client

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// Config configures a token source.
type Config struct {
	AccessToken  string
	RefreshToken string
	// Expiry of the stored access token. Zero means unknown, which
	// forces a refresh on first use when a refresh token exists.
	Expiry       time.Time
	ClientID     string
	ClientSecret string
	// Endpoint overrides the Google token endpoint, for tests.
	Endpoint string
}

// New builds a token source from stored credentials.
func New(cfg Config) *TokenSource {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = googleTokenEndpoint
	}
	return &TokenSource{
		endpoint:     endpoint,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: 30 * time.Second},
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
		expiry:       cfg.Expiry,
	}
}

// Token returns a valid access token, refreshing when needed.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A zero expiry means the token's lifetime is unknown; treat it as
	// expired so a refresh happens before the first API call.
	if t.accessToken != "" && !t.expiry.IsZero() && time.Now().Before(t.expiry.Add(-time.Minute)) {
		return t.accessToken, nil
	}
	if t.refreshToken == "" {
		if t.accessToken != "" {
			// No way to refresh; use what we have and let the API reject it.
			return t.accessToken, nil
		}
		return "", fmt.Errorf("no access token and no refresh token")
	}
	return t.refresh(ctx)
}

func (t *TokenSource) refresh(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.refreshToken},
	}
	if t.clientID != "" {
		form.Set("client_id", t.clientID)
	}
	if t.clientSecret != "" {
		form.Set("client_secret", t.clientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh returned %d", resp.StatusCode)
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("token response has no access token")
	}

	t.accessToken = parsed.AccessToken
	t.expiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return t.accessToken, nil
}
