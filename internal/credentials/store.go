package credentials

import (
	"context"
	"time"
)

// TokenPair is the access/refresh token pair issued by the remote API. It is
// owned exclusively by the credential store; nothing else persists tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	SavedAt      time.Time `json:"savedAt"`
}

// Store holds the agent's session tokens. Tokens returns nil without error
// when no pair has been saved; Clear is idempotent.
type Store interface {
	Tokens(ctx context.Context) (*TokenPair, error)
	Save(ctx context.Context, pair TokenPair) error
	Clear(ctx context.Context) error
}
