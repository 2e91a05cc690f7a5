package repository

import (
	"context"
	"errors"
	"net/http"

	"github.com/charlesng35/feedsync/internal/entity"
	"github.com/charlesng35/feedsync/internal/gateway"
	apperrors "github.com/charlesng35/feedsync/pkg/errors"
)

// SessionGateway is the remote surface the session repository depends on.
type SessionGateway interface {
	Login(ctx context.Context, username, password string) (*entity.Session, error)
	CurrentUser(ctx context.Context) (*entity.User, error)
}

// PostGateway is the remote surface the feed repository depends on.
type PostGateway interface {
	ListPage(ctx context.Context, limit, offset int) ([]entity.Post, error)
	Search(ctx context.Context, term string) ([]entity.Post, error)
	Create(ctx context.Context, draft gateway.PostDraft) (*entity.Post, error)
	Delete(ctx context.Context, id int64) error
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// translate converts a collaborator error into the user-facing failure
// taxonomy. The repositories are the only translation boundary: nothing
// above them observes raw gateway or storage errors.
func translate(err error) *apperrors.Failure {
	var failure *apperrors.Failure
	if errors.As(err, &failure) {
		return failure
	}

	if gateway.IsNetwork(err) {
		return apperrors.ErrOffline
	}

	if srvErr, ok := gateway.AsServer(err); ok {
		status := srvErr.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		return apperrors.New(apperrors.KindServer, srvErr.Message, status).WithInternal(err)
	}

	return apperrors.Unexpected(err)
}
