package repository

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/feedsync/internal/connectivity"
	"github.com/charlesng35/feedsync/internal/credentials"
	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	"github.com/charlesng35/feedsync/internal/store"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
	"github.com/charlesng35/feedsync/pkg/logger"
	"github.com/charlesng35/feedsync/pkg/metrics"
)

// currentUserKey is the singleton cache slot for the active profile.
const currentUserKey = "current"

// SessionRepository coordinates the login session across the connectivity
// probe, the credential store, the profile cache and the remote auth
// endpoints. A cached profile always wins over the network; the network is
// only consulted on a cache miss.
type SessionRepository struct {
	checker connectivity.Checker
	creds   credentials.Store
	users   *store.Typed[entity.User]
	remote  SessionGateway
	clock   func() time.Time
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(checker connectivity.Checker, creds credentials.Store, users *store.Typed[entity.User], remote SessionGateway) (*SessionRepository, error) {
	if checker == nil {
		return nil, errors.New("session repository: connectivity checker is required")
	}
	if creds == nil {
		return nil, errors.New("session repository: credential store is required")
	}
	if users == nil {
		return nil, errors.New("session repository: profile cache is required")
	}
	if remote == nil {
		return nil, errors.New("session repository: auth gateway is required")
	}

	return &SessionRepository{
		checker: checker,
		creds:   creds,
		users:   users,
		remote:  remote,
		clock:   time.Now,
	}, nil
}

// Login exchanges credentials for a session. On success the token pair is
// persisted, the canonical profile is fetched and mirrored into the cache,
// in that order. A failure after the remote login succeeded is reported as
// an unexpected server failure; tokens already saved stay saved.
func (r *SessionRepository) Login(ctx context.Context, username, password string) (*entity.Session, error) {
	ctx = ensureContext(ctx)

	if !r.checker.IsConnected(ctx) {
		return nil, apperrors.ErrOffline
	}

	session, err := r.remote.Login(ctx, username, password)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("login", "failure").Inc()
		if srv, ok := gateway.AsServer(err); ok &&
			(srv.StatusCode == http.StatusBadRequest || srv.StatusCode == http.StatusUnauthorized) {
			// The remote rejected the credentials themselves.
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("login", "success").Inc()

	pair := credentials.TokenPair{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		SavedAt:      r.clock(),
	}
	if err := r.creds.Save(ctx, pair); err != nil {
		logger.ErrorWithStack("token save after login failed", err)
		return nil, apperrors.Unexpected(err)
	}

	user, err := r.remote.CurrentUser(ctx)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("current_user", "failure").Inc()
		logger.ErrorWithStack("profile fetch after login failed", err)
		return nil, apperrors.Unexpected(err)
	}
	metrics.GatewayRequests.WithLabelValues("current_user", "success").Inc()

	if err := r.users.Put(ctx, currentUserKey, *user); err != nil {
		logger.ErrorWithStack("profile cache write after login failed", err,
			zap.String("collection", r.users.Collection()))
		return nil, apperrors.Unexpected(err)
	}

	session.User = *user
	return session, nil
}

// CurrentUser returns the active profile. A cached record is served without
// touching the network, even when online; on a miss the profile is fetched
// and written through. A miss while offline has nothing to serve.
func (r *SessionRepository) CurrentUser(ctx context.Context) (*entity.User, error) {
	ctx = ensureContext(ctx)
	collection := r.users.Collection()

	user, ok, err := r.users.Get(ctx, currentUserKey)
	switch {
	case err != nil:
		// Unreadable records count as misses; the remote path may still serve.
		metrics.CacheReads.WithLabelValues(collection, "error").Inc()
		logger.ErrorWithStack("profile cache read failed", err, zap.String("collection", collection))
	case ok:
		metrics.CacheReads.WithLabelValues(collection, "hit").Inc()
		return &user, nil
	default:
		metrics.CacheReads.WithLabelValues(collection, "miss").Inc()
	}

	if !r.checker.IsConnected(ctx) {
		return nil, apperrors.ErrNoUserData
	}

	fetched, err := r.remote.CurrentUser(ctx)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("current_user", "failure").Inc()
		return nil, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("current_user", "success").Inc()

	if err := r.users.Put(ctx, currentUserKey, *fetched); err != nil {
		// The fetched profile is still good; only the next offline read suffers.
		logger.ErrorWithStack("profile cache write failed", err, zap.String("collection", collection))
	}
	return fetched, nil
}

// RefreshProfile re-fetches the canonical profile and overwrites the cached
// copy. Interactive reads stay cache-first; this exists for the background
// sync loop, which wants the mirror fresh.
func (r *SessionRepository) RefreshProfile(ctx context.Context) (*entity.User, error) {
	ctx = ensureContext(ctx)

	if !r.checker.IsConnected(ctx) {
		return nil, apperrors.ErrOffline
	}

	fetched, err := r.remote.CurrentUser(ctx)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("current_user", "failure").Inc()
		return nil, translate(err)
	}
	metrics.GatewayRequests.WithLabelValues("current_user", "success").Inc()

	if err := r.users.Put(ctx, currentUserKey, *fetched); err != nil {
		logger.ErrorWithStack("profile cache refresh write failed", err,
			zap.String("collection", r.users.Collection()))
	}
	return fetched, nil
}

// Logout clears the stored tokens and the cached profile. It never touches
// the network and calling it twice is harmless.
func (r *SessionRepository) Logout(ctx context.Context) error {
	ctx = ensureContext(ctx)

	err := multierr.Append(
		r.creds.Clear(ctx),
		r.users.Delete(ctx, currentUserKey),
	)
	if err != nil {
		logger.ErrorWithStack("logout cleanup failed", err)
		return apperrors.New(apperrors.KindCache, err.Error(), http.StatusInternalServerError).WithInternal(err)
	}
	return nil
}

// IsAuthenticated reports whether a non-empty access token is stored. It is
// a purely local check; an unreadable credential store counts as logged out.
func (r *SessionRepository) IsAuthenticated(ctx context.Context) bool {
	ctx = ensureContext(ctx)

	pair, err := r.creds.Tokens(ctx)
	if err != nil {
		logger.ErrorWithStack("credential read failed", err)
		return false
	}
	return pair != nil && pair.AccessToken != ""
}
