package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventhint/eventhint/config"
	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/store"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// Calendar scope is requested up front so linked calendars can sync
	// without a second consent round.
	oauthScopes = "openid email profile https://www.googleapis.com/auth/calendar"
)

// googleOAuth drives the authorization-code flow against Google. The
// endpoint URLs are fields so tests can point it at a local server.
type googleOAuth struct {
	clientID     string
	clientSecret string
	redirectURI  string

	authURL     string
	tokenURL    string
	userinfoURL string
	httpClient  *http.Client
}

func newGoogleOAuth(settings *config.Settings) *googleOAuth {
	return &googleOAuth{
		clientID:     settings.GoogleClientID,
		clientSecret: settings.GoogleClientSecret,
		redirectURI:  settings.GoogleRedirectURI,
		authURL:      googleAuthURL,
		tokenURL:     googleTokenURL,
		userinfoURL:  googleUserinfoURL,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

// AuthorizeURL builds the consent page URL for the given state.
func (g *googleOAuth) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", g.clientID)
	q.Set("redirect_uri", g.redirectURI)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)
	return g.authURL + "?" + q.Encode()
}

type oauthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Exchange trades the authorization code for tokens.
func (g *googleOAuth) Exchange(ctx context.Context, code string) (*oauthTokens, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)
	form.Set("redirect_uri", g.redirectURI)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindInternal, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindUpstreamUnavailable, "token exchange failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eherrors.Ef(eherrors.KindUpstreamRejected,
			"token exchange returned status %d", resp.StatusCode)
	}

	var tokens oauthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, eherrors.Wrap(eherrors.KindUpstreamRejected, "malformed token response", err)
	}
	if tokens.AccessToken == "" {
		return nil, eherrors.E(eherrors.KindUpstreamRejected, "token response missing access token")
	}
	return &tokens, nil
}

type googleUser struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Userinfo fetches the authenticated user's profile.
func (g *googleOAuth) Userinfo(ctx context.Context, accessToken string) (*googleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userinfoURL, nil)
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindInternal, "failed to build userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindUpstreamUnavailable, "userinfo fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eherrors.Ef(eherrors.KindUpstreamRejected,
			"userinfo returned status %d", resp.StatusCode)
	}

	var u googleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, eherrors.Wrap(eherrors.KindUpstreamRejected, "malformed userinfo response", err)
	}
	if u.Email == "" {
		return nil, eherrors.E(eherrors.KindUpstreamRejected, "userinfo response missing email")
	}
	return &u, nil
}

// handleGoogleLogin redirects the browser to Google's consent page, or
// answers 501 when OAuth credentials are not configured.
func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.settings.OAuthConfigured() {
		writeError(w, eherrors.E(eherrors.KindOAuthMisconfigured,
			"google oauth is not configured"))
		return
	}
	http.Redirect(w, r, s.oauth.AuthorizeURL(uuid.New().String()), http.StatusFound)
}

// handleGoogleCallback completes the flow: exchanges the code, provisions
// the user on first login, seals the provider tokens, and hands the
// browser back to the frontend with a session token.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !s.settings.OAuthConfigured() {
		writeError(w, eherrors.E(eherrors.KindOAuthMisconfigured,
			"google oauth is not configured"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, eherrors.E(eherrors.KindInputInvalid, "missing authorization code"))
		return
	}

	tokens, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	profile, err := s.oauth.Userinfo(r.Context(), tokens.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := s.upsertUser(r.Context(), profile)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.storeTokens(r.Context(), user, tokens); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.tokens.Issue(user.ID.String())
	if err != nil {
		writeError(w, eherrors.Wrap(eherrors.KindInternal, "failed to issue session token", err))
		return
	}

	s.log.Info("user logged in", logging.F("user_id", user.ID.String()))
	http.Redirect(w, r,
		fmt.Sprintf("%s/auth/callback?token=%s", s.settings.FrontendURL, url.QueryEscape(session)),
		http.StatusFound)
}

func (s *Server) upsertUser(ctx context.Context, profile *googleUser) (*store.User, error) {
	user, err := s.users.GetByEmail(ctx, profile.Email)
	if err == nil {
		return user, nil
	}
	if eherrors.KindOf(err) != eherrors.KindNotFound {
		return nil, err
	}

	user = &store.User{
		ID:          uuid.New(),
		Email:       profile.Email,
		DisplayName: profile.Name,
		Timezone:    s.settings.DefaultTimezone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Server) storeTokens(ctx context.Context, user *store.User, tokens *oauthTokens) error {
	access, err := s.sealer.Seal(tokens.AccessToken)
	if err != nil {
		return eherrors.Wrap(eherrors.KindInternal, "failed to seal access token", err)
	}
	user.AccessTokenSealed = []byte(access)

	// Google only returns the refresh token on the first consent; a
	// missing one keeps the previously stored value.
	if tokens.RefreshToken != "" {
		refresh, err := s.sealer.Seal(tokens.RefreshToken)
		if err != nil {
			return eherrors.Wrap(eherrors.KindInternal, "failed to seal refresh token", err)
		}
		user.RefreshTokenSealed = []byte(refresh)
	}

	if tokens.ExpiresIn > 0 {
		expiry := time.Now().UTC().Add(time.Duration(tokens.ExpiresIn) * time.Second)
		user.TokenExpiry = &expiry
	}
	return s.users.UpdateTokens(ctx, user)
}
