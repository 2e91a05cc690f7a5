package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/charlesng35/feedsync/internal/credentials"
)

// expirySkew refreshes tokens slightly before their exp claim so in-flight
// requests do not race the deadline.
const expirySkew = 30 * time.Second

// RefreshFunc exchanges a refresh token for a new pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

// AuthTransport injects the stored bearer token into outgoing requests and
// keeps the session alive: proactively when the access token's exp claim has
// passed, and reactively once when the backend answers 401. Login and
// refresh calls pass through untouched.
type AuthTransport struct {
	base    http.RoundTripper
	creds   credentials.Store
	refresh RefreshFunc
	clock   func() time.Time

	mu sync.Mutex // serialises refreshes
}

// NewAuthTransport wraps the default transport with token handling.
func NewAuthTransport(creds credentials.Store, refresh RefreshFunc, clock func() time.Time) (*AuthTransport, error) {
	if creds == nil {
		return nil, errors.New("gateway: auth transport requires a credential store")
	}
	if refresh == nil {
		return nil, errors.New("gateway: auth transport requires a refresh func")
	}
	if clock == nil {
		clock = time.Now
	}

	return &AuthTransport{
		base:    http.DefaultTransport,
		creds:   creds,
		refresh: refresh,
		clock:   clock,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if isPublicPath(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	pair, err := t.creds.Tokens(ctx)
	if err != nil || pair == nil || pair.AccessToken == "" {
		// No usable session: let the backend answer 401.
		return t.base.RoundTrip(req)
	}

	access := pair.AccessToken
	if pair.RefreshToken != "" && tokenExpired(access, t.clock()) {
		if refreshed, refreshErr := t.refreshTokens(ctx, access); refreshErr == nil {
			access = refreshed
		}
	}

	resp, err := t.base.RoundTrip(withBearer(req, access))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || pair.RefreshToken == "" {
		return resp, err
	}

	refreshed, refreshErr := t.refreshTokens(ctx, access)
	if refreshErr != nil {
		return resp, nil
	}
	retry, retryErr := rewindBody(req)
	if retryErr != nil {
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.base.RoundTrip(withBearer(retry, refreshed))
}

// refreshTokens performs a single-flight refresh. When a competing request
// already rotated the pair, the stored token is reused without a second
// network call.
func (t *AuthTransport) refreshTokens(ctx context.Context, staleAccess string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pair, err := t.creds.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if pair == nil || pair.RefreshToken == "" {
		return "", errors.New("gateway: no refresh token available")
	}
	if pair.AccessToken != "" && pair.AccessToken != staleAccess {
		return pair.AccessToken, nil
	}

	tokens, err := t.refresh(ctx, pair.RefreshToken)
	if err != nil {
		return "", err
	}
	if tokens.AccessToken == "" {
		return "", errors.New("gateway: refresh returned no access token")
	}

	next := credentials.TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		SavedAt:      t.clock(),
	}
	if next.RefreshToken == "" {
		next.RefreshToken = pair.RefreshToken
	}
	if err := t.creds.Save(ctx, next); err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

func isPublicPath(path string) bool {
	return strings.HasSuffix(path, "/auth/login") || strings.HasSuffix(path, "/auth/refresh")
}

func withBearer(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return clone
}

// rewindBody produces a retryable copy of req. Requests whose body cannot be
// replayed are not retried.
func rewindBody(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("gateway: request body cannot be replayed")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	clone := req.Clone(req.Context())
	clone.Body = body
	return clone, nil
}

// tokenExpired peeks at the unverified exp claim. Opaque tokens simply rely
// on the 401 retry path.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time.Add(-expirySkew))
}
