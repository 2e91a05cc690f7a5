package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/charlesng35/feedsync/internal/entity"
)

// defaultTokenTTLMins is the expiry hint sent with login and refresh calls.
const defaultTokenTTLMins = 30

// Tokens is a freshly issued access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthGateway wraps the remote session endpoints. It never touches the local
// cache or credential store.
type AuthGateway struct {
	client  *Client
	ttlMins int
}

// NewAuthGateway constructs an AuthGateway over client.
func NewAuthGateway(client *Client) (*AuthGateway, error) {
	if client == nil {
		return nil, errors.New("gateway: auth gateway requires a client")
	}
	return &AuthGateway{client: client, ttlMins: defaultTokenTTLMins}, nil
}

type loginRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ExpiresInMins int    `json:"expiresInMins"`
}

type sessionPayload struct {
	entity.User
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges credentials for a session.
func (g *AuthGateway) Login(ctx context.Context, username, password string) (*entity.Session, error) {
	var payload sessionPayload
	err := g.client.do(ctx, "login", http.MethodPost, "/auth/login", nil, loginRequest{
		Username:      username,
		Password:      password,
		ExpiresInMins: g.ttlMins,
	}, &payload)
	if err != nil {
		return nil, err
	}

	return &entity.Session{
		User:         payload.User,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}, nil
}

// CurrentUser fetches the canonical profile for the active session.
func (g *AuthGateway) CurrentUser(ctx context.Context) (*entity.User, error) {
	var user entity.User
	if err := g.client.do(ctx, "current user", http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type refreshRequest struct {
	RefreshToken  string `json:"refreshToken"`
	ExpiresInMins int    `json:"expiresInMins"`
}

// Refresh exchanges a refresh token for a new pair.
func (g *AuthGateway) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	if refreshToken == "" {
		return Tokens{}, &ServerError{Op: "refresh", Message: "no refresh token available"}
	}

	var tokens Tokens
	err := g.client.do(ctx, "refresh", http.MethodPost, "/auth/refresh", nil, refreshRequest{
		RefreshToken:  refreshToken,
		ExpiresInMins: g.ttlMins,
	}, &tokens)
	if err != nil {
		return Tokens{}, err
	}
	return tokens, nil
}
